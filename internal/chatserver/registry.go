package chatserver

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"switchboard/internal/logger"
)

// ConnID identifies an accepted connection. IDs are assigned sequentially
// starting at 1 and never reused; 0 is reserved for the listener.
type ConnID uint64

// ErrUnknownConnection is returned when an operation names a connection the
// registry does not hold, either because it never existed or because it was
// removed after a disconnect or transport failure.
var ErrUnknownConnection = errors.New("chatserver: unknown connection")

// TransportError reports a failed socket write. By the time a caller sees
// one, the affected connection has already been removed from the registry.
type TransportError struct {
	ID  ConnID
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("chatserver: %s on connection %d: %v", e.Op, e.ID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// record pairs a live socket with the transcript of its conversation.
type record struct {
	conn net.Conn
	log  []string
}

// Registry tracks live connections and their transcripts behind one mutex.
// Send performs the socket write while holding it, so a transcript never
// reorders against the wire; the cost is that a peer that stops draining
// its socket stalls every registry operation until the write completes.
type Registry struct {
	mu     sync.Mutex
	conns  map[ConnID]*record
	closed bool
	log    *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[ConnID]*record),
		log:   logger.Global().WithPrefix("registry"),
	}
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// IDs returns a snapshot of the live connection IDs in no particular order.
func (r *Registry) IDs() []ConnID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]ConnID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// History returns a copy of the transcript for id. The second return is
// false when the connection is not in the registry.
func (r *Registry) History(id ConnID) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return append([]string(nil), rec.log...), true
}

// Send writes text to the peer on id and appends it to the transcript. A
// failed write removes the connection, closes its socket, and returns a
// *TransportError; sending to an unknown connection returns
// ErrUnknownConnection.
func (r *Registry) Send(id ConnID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}

	if _, err := rec.conn.Write([]byte(text)); err != nil {
		r.log.Warn("connection %d removed after failed write: %v", id, err)
		r.removeLocked(id)
		return &TransportError{ID: id, Op: "write", Err: err}
	}

	rec.log = append(rec.log, text)
	return nil
}

// insert registers a freshly accepted connection with an empty transcript.
// Once closeAll has run the registry takes no new connections: the socket is
// closed instead and false is returned, so an accept racing shutdown cannot
// slip a live connection past Stop.
func (r *Registry) insert(id ConnID, conn net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		conn.Close()
		return false
	}
	r.conns[id] = &record{conn: conn, log: make([]string, 0)}
	return true
}

// recordInbound appends one received chunk to the transcript for id. Chunks
// for a connection that is already gone are dropped; the read pump may race
// a removal triggered by a failed Send.
func (r *Registry) recordInbound(id ConnID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.conns[id]
	if !ok {
		return
	}
	rec.log = append(rec.log, text)
}

// remove drops id and closes its socket. Safe to call for an id that is
// already gone.
func (r *Registry) remove(id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
}

func (r *Registry) removeLocked(id ConnID) {
	rec, ok := r.conns[id]
	if !ok {
		return
	}
	delete(r.conns, id)
	rec.conn.Close()
}

// closeAll closes every socket, empties the registry, and turns away any
// insert that arrives later.
func (r *Registry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for id, rec := range r.conns {
		rec.conn.Close()
		delete(r.conns, id)
	}
}
