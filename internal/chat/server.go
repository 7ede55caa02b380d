package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type Server struct {
	addr     string
	logger   *slog.Logger
	router   *Router
	listener net.Listener

	maxLineBytes int

	sessions   sync.WaitGroup
	acceptDone chan struct{}
	draining   atomic.Bool

	mu    sync.Mutex
	conns map[string]*peerConn
}

type Option func(s *Server, ro *RouterOptions)

// WithMaxLineBytes bounds input lines, terminator included.
func WithMaxLineBytes(n int) Option {
	return func(s *Server, _ *RouterOptions) { s.maxLineBytes = n }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(_ *Server, ro *RouterOptions) { ro.WriteTimeout = d }
}

func WithMailboxCapacity(n int) Option {
	return func(_ *Server, ro *RouterOptions) { ro.MailboxCapacity = n }
}

func WithEventBuffer(n int) Option {
	return func(_ *Server, ro *RouterOptions) { ro.EventBuffer = n }
}

func NewServer(addr string, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:         addr,
		logger:       logger,
		maxLineBytes: 64 * 1024,
		acceptDone:   make(chan struct{}),
		conns:        make(map[string]*peerConn),
	}
	ro := RouterOptions{EventBuffer: 128}
	for _, opt := range opts {
		if opt != nil {
			opt(s, &ro)
		}
	}
	s.router = NewRouter(ro, logger)
	return s
}

// Start binds the listening socket. A bind failure is returned as is; the
// server never retries.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = ln

	go s.router.Run()
	go s.acceptLoop(ln)

	s.logger.Info("server started", "addr", ln.Addr().String())
	return nil
}

// Addr is the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Router() *Router {
	return s.router
}

// Stop stops accepting, ends every session, then waits for the router to
// drain all writers. When ctx expires first the remaining connections are
// closed outright and ctx's error is returned.
func (s *Server) Stop(ctx context.Context) error {
	if s.listener == nil {
		return ErrServerStopped
	}
	if !s.draining.CompareAndSwap(false, true) {
		return ErrServerStopped
	}
	s.logger.Info("shutting down")

	_ = s.listener.Close()
	<-s.acceptDone

	// Unblock every session read; writers keep running until the router
	// closes their mailboxes.
	now := time.Now()
	for _, pc := range s.liveConns() {
		_ = pc.SetReadDeadline(now)
	}

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		s.router.Close()
		s.router.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("shutdown complete")
		return nil
	case <-ctx.Done():
		s.logger.Warn("shutdown timed out, closing connections", "open", len(s.liveConns()))
		for _, pc := range s.liveConns() {
			pc.forceClose()
		}
		<-done
		return ctx.Err()
	}
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer close(s.acceptDone)

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > time.Second {
				tempDelay = time.Second
			}
			s.logger.Warn("accept failed", "error", err, "retry_in", tempDelay)
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0

		pc := s.track(conn)
		s.logger.Info("client connected", "addr", pc.remoteAddr(), "conn_id", pc.id)

		s.sessions.Add(1)
		go s.serve(pc)
	}
}

func (s *Server) serve(pc *peerConn) {
	defer s.sessions.Done()

	sess := &session{
		conn:         pc,
		events:       s.router.Events(),
		maxLineBytes: s.maxLineBytes,
		draining:     s.draining.Load,
	}
	name, err := sess.run()
	logger := s.logger.With("addr", pc.remoteAddr(), "conn_id", pc.id)
	switch {
	case errors.Is(err, ErrPeerDisconnected):
		logger.Info("client left before registering")
	case err != nil && s.draining.Load() && errors.Is(err, os.ErrDeadlineExceeded):
		logger.Debug("session interrupted by shutdown", "peer", name)
	case err != nil:
		logger.Warn("session read failed", "peer", name, "op", "read", "error", err)
	default:
		logger.Info("client disconnected", "peer", name)
	}
}

func (s *Server) track(conn net.Conn) *peerConn {
	var pc *peerConn
	pc = newPeerConn(conn, func() { s.forget(pc.id) })
	s.mu.Lock()
	s.conns[pc.id] = pc
	s.mu.Unlock()
	return pc
}

func (s *Server) forget(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

func (s *Server) liveConns() []*peerConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*peerConn, 0, len(s.conns))
	for _, pc := range s.conns {
		out = append(out, pc)
	}
	return out
}
