package chatserver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"unicode/utf8"

	"golang.org/x/net/netutil"

	"switchboard/internal/config"
	"switchboard/internal/logger"
)

// Server accepts chat connections and feeds the registry.
type Server struct {
	addr        string
	readBufSize int
	maxConns    int

	registry *Registry
	log      *logger.Logger

	// nextID is touched only by the accept loop.
	nextID ConnID

	mu       sync.Mutex
	listener net.Listener
	running  bool

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewServer creates a server for the given configuration. Nothing touches
// the network until Start.
func NewServer(cfg *config.Config) *Server {
	return &Server{
		addr:        cfg.ListenAddr,
		readBufSize: cfg.ReadBufferSize,
		maxConns:    cfg.MaxConnections,
		registry:    NewRegistry(),
		log:         logger.Global().WithPrefix("server"),
		nextID:      1,
		stopChan:    make(chan struct{}),
	}
}

// Start binds the listen address and launches the accept loop. A failed
// bind is returned to the caller; after a successful bind all failures are
// handled on the background goroutines.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	if s.maxConns > 0 {
		listener = netutil.LimitListener(listener, s.maxConns)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(listener)

	s.log.Info("listening on %s (max connections: %d)", listener.Addr(), s.maxConns)
	return nil
}

// Addr returns the bound listen address, or nil before Start. Useful when
// the configured address picks an ephemeral port.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Registry returns the connection registry the console operates on.
func (s *Server) Registry() *Registry {
	return s.registry
}

// IsRunning returns whether the server has been started and not yet stopped.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// acceptLoop accepts incoming connections until the listener closes.
func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.log.Info("listener closed, exiting accept loop")
				return
			}
			select {
			case <-s.stopChan:
				return
			default:
			}
			s.log.Error("error accepting connection: %v", err)
			continue
		}

		id := s.nextID
		s.nextID++

		if !s.registry.insert(id, conn) {
			// Stop won the race for this socket; it is already closed.
			continue
		}
		s.wg.Add(1)
		go s.readPump(id, conn)

		s.log.Info("connection %d accepted from %s (total: %d)", id, conn.RemoteAddr(), s.registry.Count())
	}
}

// readPump pulls fixed-size chunks off the socket until the peer goes away,
// then removes the connection. Each successful read becomes one transcript
// entry after trailing NUL bytes are trimmed; chunks that are not valid
// UTF-8 are logged and dropped without closing the connection.
func (s *Server) readPump(id ConnID, conn net.Conn) {
	defer s.wg.Done()
	defer s.registry.remove(id)

	buf := make([]byte, s.readBufSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := bytes.TrimRight(buf[:n], "\x00")
			if utf8.Valid(chunk) {
				s.registry.recordInbound(id, string(chunk))
			} else {
				s.log.Warn("connection %d: dropping %d bytes that are not valid UTF-8", id, n)
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.log.Info("connection %d closed by peer", id)
			case errors.Is(err, net.ErrClosed):
				s.log.Debug("connection %d closed", id)
			default:
				s.log.Warn("connection %d read error: %v", id, err)
			}
			return
		}
	}
}

// Stop closes the listener and every live connection, then waits for the
// background goroutines to drain. A connection the accept loop admits while
// Stop runs is closed at the registry instead of registered. Safe to call
// more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.log.Info("stopping server")
		close(s.stopChan)

		s.mu.Lock()
		listener := s.listener
		s.running = false
		s.mu.Unlock()

		if listener != nil {
			if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				s.log.Error("error closing listener: %v", err)
			}
		}

		s.registry.closeAll()
		s.wg.Wait()
		s.log.Info("server stopped")
	})
	return nil
}
