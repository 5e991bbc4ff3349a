package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"example.com/kawaii/v2/internal/config"
	"example.com/kawaii/v2/internal/logger"
	"example.com/kawaii/v2/internal/util"
)

// Server owns the listeners and the net/http server in front of the router.
type Server struct {
	cfg *config.Config
	log *logger.Logger

	mu         sync.Mutex
	listeners  []net.Listener
	httpServer *http.Server
}

// NewServer wires handler behind access logging and, when enabled, cleartext HTTP/2.
func NewServer(cfg *config.Config, lg *logger.Logger, handler http.Handler) (*Server, error) {
	if cfg == nil || cfg.Server == nil {
		return nil, fmt.Errorf("server configuration cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	h := withAccessLog(handler, lg)
	if cfg.Server.EnableH2C == nil || *cfg.Server.EnableH2C {
		h = h2c.NewHandler(h, &http2.Server{IdleTimeout: config.DurationValue(cfg.Server.IdleTimeout)})
	}

	s := &Server{cfg: cfg, log: lg}
	s.httpServer = &http.Server{
		Handler:      h,
		ReadTimeout:  config.DurationValue(cfg.Server.ReadTimeout),
		WriteTimeout: config.DurationValue(cfg.Server.WriteTimeout),
		IdleTimeout:  config.DurationValue(cfg.Server.IdleTimeout),
	}
	return s, nil
}

// Listen binds the configured address, or adopts sockets handed over by a
// socket-activating supervisor.
func (s *Server) Listen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listeners) > 0 {
		return fmt.Errorf("server is already listening")
	}

	inherited, err := util.InheritedListeners()
	if err != nil {
		return fmt.Errorf("failed to adopt inherited listeners: %w", err)
	}
	if len(inherited) > 0 {
		for _, ln := range inherited {
			s.log.Info("Using inherited listener", logger.LogFields{"localAddr": ln.Addr().String()})
		}
		s.listeners = inherited
		return nil
	}

	if s.cfg.Server.Address == nil || *s.cfg.Server.Address == "" {
		return fmt.Errorf("server listen address (server.address) is not configured")
	}
	addr := *s.cfg.Server.Address
	ln, err := util.CreateListener(ctx, "tcp", addr)
	if err != nil {
		if util.IsAddrInUse(err) {
			return fmt.Errorf("address %s is already in use: %w", addr, err)
		}
		return err
	}
	s.log.Info("Listening", logger.LogFields{"address": addr, "localAddr": ln.Addr().String()})
	s.listeners = []net.Listener{ln}
	return nil
}

// Addr returns the address of the first listener, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listeners) == 0 {
		return nil
	}
	return s.listeners[0].Addr()
}

// Serve accepts connections until ctx is cancelled or SIGINT/SIGTERM arrives,
// then shuts down gracefully. SIGHUP reopens log files.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	listeners := s.listeners
	s.mu.Unlock()
	if len(listeners) == 0 {
		return fmt.Errorf("server has no listeners; call Listen first")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	eg, ctx := errgroup.WithContext(ctx)
	for _, ln := range listeners {
		ln := ln
		eg.Go(func() error {
			if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", ln.Addr(), err)
			}
			return nil
		})
	}
	eg.Go(func() error {
		for {
			select {
			case <-hup:
				s.ReopenLogs()
			case <-ctx.Done():
				return s.shutdown()
			}
		}
	})
	return eg.Wait()
}

// Start is Listen followed by Serve.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// ReopenLogs reopens file-backed log targets, for use after log rotation.
func (s *Server) ReopenLogs() {
	if err := s.log.ReopenLogFiles(); err != nil {
		s.log.Error("Failed to reopen log files", logger.LogFields{"error": err.Error()})
		return
	}
	s.log.Info("Reopened log files")
}

func (s *Server) shutdown() error {
	timeout := config.DurationValue(s.cfg.Server.GracefulShutdownTimeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s.log.Info("Shutting down server", logger.LogFields{"timeout": timeout.String()})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error("Graceful shutdown did not complete", logger.LogFields{"error": err.Error()})
		s.httpServer.Close()
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	s.log.Info("Server stopped")
	return nil
}
