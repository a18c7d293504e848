package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	serverReadTimeout  = 60 * time.Second
	serverWriteTimeout = serverReadTimeout
	serverDrainTimeout = 30 * time.Second
)

// Server is an http.Server that drains in-flight requests when the process
// receives SIGINT or SIGTERM.
type Server struct {
	*http.Server

	stop    chan os.Signal
	quit    chan struct{}
	stopped chan struct{}
}

// NewServer creates a Server with timeouts and handler.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *Server {
	return &Server{
		Server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		stop:    make(chan os.Signal, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// ListenAndServe listens on srv.Addr and serves until stopped.
func (srv *Server) ListenAndServe() error {
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return srv.Serve(ln)
}

// Serve accepts connections on ln. After a stop signal it returns nil once
// in-flight requests have finished and the shutdown hooks were started.
func (srv *Server) Serve(ln net.Listener) error {
	signal.Notify(srv.stop, syscall.SIGINT, syscall.SIGTERM)
	go srv.awaitStop()

	Sugar.Infof("HTTP server listening on %s", ln.Addr())
	err := srv.Server.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		signal.Stop(srv.stop)
		close(srv.quit)
		return err
	}
	<-srv.stopped
	return nil
}

// Stop shuts the server down as if it had received SIGTERM.
func (srv *Server) Stop() {
	select {
	case srv.stop <- syscall.SIGTERM:
	default:
	}
}

func (srv *Server) awaitStop() {
	select {
	case sig := <-srv.stop:
		Sugar.Infof("received %s, draining HTTP server", sig)
	case <-srv.quit:
		return
	}
	signal.Stop(srv.stop)

	ctx, cancel := context.WithTimeout(context.Background(), serverDrainTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		Sugar.Errorf("HTTP server shutdown error: %v", err)
	} else {
		Sugar.Info("HTTP server shutdown success")
	}
	close(srv.stopped)
}

// GraceServer serves handler on addr until SIGINT or SIGTERM. Each onShutdown
// hook runs once the server has stopped accepting requests.
func GraceServer(addr string, handler http.Handler, onShutdown ...func()) error {
	srv := NewServer(addr, handler, serverReadTimeout, serverWriteTimeout)
	for _, f := range onShutdown {
		srv.RegisterOnShutdown(f)
	}
	return srv.ListenAndServe()
}
