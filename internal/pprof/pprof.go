// Package pprof exposes the runtime profiling endpoints on an HTTP server.
//
// The registry serializes socket writes behind one mutex, so when the
// console feels sluggish the block and mutex profiles are the first places
// to look. Keep the address on loopback; the endpoints are unauthenticated.
package pprof

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	netpprof "net/http/pprof"
	"runtime"
	"sync"
	"time"

	"switchboard/internal/logger"
)

// Config holds the profiling configuration
type Config struct {
	// HTTPAddr is the address for the profiling HTTP server
	// (e.g. "localhost:6060"). Empty disables profiling entirely.
	HTTPAddr string

	// BlockProfileRate samples 1/n blocking events (default: 1).
	BlockProfileRate int

	// MutexProfileFraction samples 1/n mutex contention events (default: 1).
	MutexProfileFraction int
}

// Handler manages the profiling HTTP server
type Handler struct {
	config   Config
	server   *http.Server
	listener net.Listener
	log      *logger.Logger

	mu       sync.Mutex
	stopping bool
}

// NewHandler creates a new pprof handler with the given configuration
func NewHandler(config Config) *Handler {
	if config.BlockProfileRate == 0 {
		config.BlockProfileRate = 1
	}
	if config.MutexProfileFraction == 0 {
		config.MutexProfileFraction = 1
	}

	return &Handler{
		config: config,
		log:    logger.Global().WithPrefix("pprof"),
	}
}

// Start binds the profiling server and enables block and mutex sampling.
// With no address configured it does nothing.
func (h *Handler) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.config.HTTPAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", netpprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", netpprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", netpprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", netpprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", netpprof.Trace)
	mux.Handle("/debug/pprof/goroutine", netpprof.Handler("goroutine"))
	mux.Handle("/debug/pprof/heap", netpprof.Handler("heap"))
	mux.Handle("/debug/pprof/block", netpprof.Handler("block"))
	mux.Handle("/debug/pprof/mutex", netpprof.Handler("mutex"))
	mux.Handle("/debug/pprof/threadcreate", netpprof.Handler("threadcreate"))

	ln, err := net.Listen("tcp", h.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to bind pprof HTTP server: %w", err)
	}

	runtime.SetBlockProfileRate(h.config.BlockProfileRate)
	runtime.SetMutexProfileFraction(h.config.MutexProfileFraction)

	h.listener = ln
	h.server = &http.Server{
		Addr:    h.config.HTTPAddr,
		Handler: mux,
		// The terminal belongs to the TUI, so internal http errors go to
		// the log file instead of stderr.
		ErrorLog: slog.NewLogLogger(logger.NewSlogHandler(logger.Global().WithPrefix("pprof")), slog.LevelError),
	}

	go func() {
		if err := h.server.Serve(h.listener); err != nil && err != http.ErrServerClosed {
			h.log.Error("pprof server error: %v", err)
		}
	}()

	h.log.Info("profiling server listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound address of the profiling server, or nil when it is
// not running.
func (h *Handler) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Stop shuts down the profiling server and disables sampling
func (h *Handler) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopping {
		return nil
	}
	h.stopping = true

	runtime.SetBlockProfileRate(0)
	runtime.SetMutexProfileFraction(0)

	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown pprof server: %w", err)
		}
		h.server = nil
		h.listener = nil
	}

	return nil
}
