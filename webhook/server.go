package webhook

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/curtisnewbie/lettuce/config"
	"github.com/curtisnewbie/lettuce/flow"
)

// Create http server listening on server.host and server.port.
func NewServer(router http.Handler) *http.Server {
	addr := fmt.Sprintf("%s:%s", config.GetPropStr(config.PropServerHost), config.GetPropStr(config.PropServerPort))
	return &http.Server{
		Addr:    addr,
		Handler: router,
	}
}

// Start serving in background.
//
// The returned channel receives the error if the server stops unexpectedly.
func StartServer(rail flow.Rail, server *http.Server) (<-chan error, error) {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return nil, fmt.Errorf("http.Server Listen: %w", err)
	}
	la := ln.Addr().(*net.TCPAddr)
	rail.Infof("Serving HTTP on %s (actual port: %d)", server.Addr, la.Port)

	errc := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errc <- fmt.Errorf("http.Server Serve: %w", err)
		}
		close(errc)
	}()
	return errc, nil
}

// Shutdown server, in-flight requests are given server.gracefulShutdownTimeSec to complete.
func ShutdownServer(rail flow.Rail, server *http.Server) {
	rail.Info("Shutting down http server")
	timeout := config.GetPropInt(config.PropServerGracefulShutdownTimeSec)
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}
	if err := server.Shutdown(ctx); err != nil {
		rail.Warnf("Http server shutdown, %v", err)
	}
	rail.Info("Http server exited")
}
