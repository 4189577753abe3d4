// Package chatserver implements the TCP side of the switchboard chat host.
//
// A single process owns both the listener and the console that operates on
// it. The package keeps those two worlds apart with a small surface: the
// network side accepts sockets and records what peers say, while the console
// side only ever talks to the Registry.
//
// # Architecture
//
//   - Server: binds the listen address, accepts connections, and runs one
//     read goroutine per peer. The Go runtime parks all blocked reads on its
//     poller, so peers do not cost an OS thread each.
//   - Registry: a mutex-guarded map from connection ID to live socket and
//     transcript. Count, IDs, History, and Send are the only operations the
//     console consumes.
//
// Connection IDs are handed out sequentially starting at 1 and are never
// reused, so an ID observed once always names the same peer. ID 0 is
// reserved for the listener itself.
//
// # Transcripts
//
// Each successful socket read becomes one transcript entry after trailing
// NUL bytes are trimmed. Reads are fixed-size and carry no framing: a peer
// message larger than the read buffer shows up as several entries, and two
// quick messages may coalesce into one. Entries written via Send are
// appended to the same transcript, so History returns both directions in
// order. Chunks that do not decode as UTF-8 are logged and dropped without
// disturbing the connection.
//
// # Errors
//
// A failed bind aborts Start. A failed accept is logged and the loop keeps
// going. A failed write removes the connection and surfaces as a
// *TransportError; operations naming a connection that is gone return
// ErrUnknownConnection.
//
// # Usage
//
//	srv := chatserver.NewServer(cfg)
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop()
//
//	reg := srv.Registry()
//	for _, id := range reg.IDs() {
//	    if err := reg.Send(id, "hello"); err != nil {
//	        // connection may have gone away
//	    }
//	}
package chatserver
