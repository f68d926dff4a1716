// Package server implements the TCP server embedding the tau engine.
//
// The server accepts one connection at a time and serves one request per
// connection, strictly sequentially. Concurrent clients are serialized,
// not parallelized, which is what lets the engine and its backends run
// without locks. A failed read on `get` degrades to an empty result so a
// cold store never breaks dashboards polling it; failed writes and clears
// simply terminate the request.
package server

import (
	"fmt"
	"net"
	"sync"

	"github.com/keleshev/tau/config"
	"github.com/keleshev/tau/internal/backend"
	"github.com/keleshev/tau/internal/logging"
	"github.com/keleshev/tau/internal/tau"
	"github.com/keleshev/tau/internal/wire"
)

var log = logging.Component("server")

// Config holds server configuration.
type Config struct {
	// Listen is the address to listen on (e.g. "localhost:6283").
	Listen string

	// Engine is the query engine serving requests (required).
	Engine *tau.Tau
}

// Server is the tau network server.
type Server struct {
	cfg      *Config
	engine   *tau.Tau
	listener net.Listener

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New creates a new server.
func New(cfg *Config) *Server {
	if cfg.Listen == "" {
		cfg.Listen = config.DefaultAddress
	}
	return &Server{
		cfg:      cfg,
		engine:   cfg.Engine,
		shutdown: make(chan struct{}),
	}
}

// Listen binds the listening socket. It is split from Serve so callers
// (and tests) can learn the bound address before serving.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.listener = ln
	log.Info("listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address. Valid after Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Listen
	}
	return s.listener.Addr().String()
}

// Serve accepts and handles connections until Shutdown. Connections are
// handled on the accepting goroutine, one at a time.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
				log.Error("accept error", "error", err)
				continue
			}
		}
		s.handleConn(conn)
	}
}

// Run binds the socket and serves until Shutdown.
func (s *Server) Run() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown stops accepting connections. Safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		log.Info("shutting down")
		close(s.shutdown)
		if s.listener != nil {
			s.listener.Close()
		}
	})
}

// =============================================================================
// Request handling
// =============================================================================

// handleConn serves one request and closes the connection.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	r := wire.NewReader(conn)
	w := wire.NewWriter(conn)

	msg, err := r.ReadMessage()
	if err != nil {
		log.Error("read request", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}

	switch msg.Command {
	case "set":
		s.handleSet(msg.Argument)
	case "get":
		s.handleGet(w, msg.Argument)
	case "signals":
		s.handleSignals(w)
	case "clear":
		if err := s.engine.Clear(); err != nil {
			log.Error("clear failed", "error", err)
		}
	default:
		log.Warn("unknown command", "command", msg.Command)
	}
}

func (s *Server) handleSet(argument any) {
	values, ok := argument.(map[string]any)
	if !ok {
		log.Error("set argument is not a mapping")
		return
	}
	if err := s.engine.Set(values); err != nil {
		log.Error("set failed", "error", err)
	}
}

func (s *Server) handleGet(w *wire.Writer, argument any) {
	q, err := wire.DecodeQuery(argument)
	if err != nil {
		log.Error("bad get request", "error", err)
		return
	}

	result, err := s.engine.Get(q)
	if err != nil {
		if !backend.IsError(err) {
			log.Error("get failed", "error", err)
			return
		}
		// Storage could not answer; reply empty instead of breaking the
		// connection.
		log.Debug("get degraded to empty result", "error", err)
		result = emptyResult(q)
	}

	if err := w.WriteValue(result); err != nil {
		log.Error("write response", "error", err)
	}
}

func (s *Server) handleSignals(w *wire.Writer) {
	signals, err := s.engine.Signals()
	if err != nil {
		log.Error("signals failed", "error", err)
		return
	}
	if signals == nil {
		signals = []string{}
	}
	if err := w.WriteValue(signals); err != nil {
		log.Error("write response", "error", err)
	}
}

// emptyResult mirrors the engine's result shaping for a query that could
// not be answered: nil for a single concrete name, an empty mapping
// otherwise.
func emptyResult(q tau.Query) any {
	if len(q.Names) == 1 && !tau.IsPattern(q.Names[0]) {
		return nil
	}
	return map[string]any{}
}
