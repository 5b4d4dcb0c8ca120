package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kandobyte/mcpbox/pkg/authserver"
	"github.com/kandobyte/mcpbox/pkg/config"
	"github.com/kandobyte/mcpbox/pkg/httpapi"
	"github.com/kandobyte/mcpbox/pkg/log"
	"github.com/kandobyte/mcpbox/pkg/multiplexer"
	"github.com/kandobyte/mcpbox/pkg/telemetry"
)

// runGateway wires config -> store -> authserver -> multiplexer -> httpapi
// -> http.Server and runs until ctx is cancelled by a termination signal,
// per spec §5's shutdown sequence.
func runGateway(ctx context.Context, configPath string, watch bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log.Configure(cfg.LogConfig())

	st, err := cfg.NewStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var authSrv *authserver.Server
	if cfg.Auth.Type == "oauth" {
		authSrv, err = buildAuthServer(ctx, cfg, st)
		if err != nil {
			return err
		}
		defer authSrv.Close()
	}

	tel, err := telemetry.New()
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	mux := multiplexer.New(cfg.Log.McpDebug)
	log.Logf("starting %d configured MCP server(s)", len(cfg.McpServers))
	mux.Start(cfg.ChildSpecs())
	defer mux.Shutdown()

	if watch {
		watcher, err := config.Watch(configPath)
		if err != nil {
			return fmt.Errorf("watching config file: %w", err)
		}
		defer watcher.Close()
		go watchAndReconcile(ctx, watcher, configPath, mux)
	}

	var apiKey string
	if cfg.Auth.Type == "apikey" {
		apiKey = cfg.Auth.APIKey.APIKey
	}

	handler := httpapi.NewRouter(mux, httpapi.Options{
		AuthMode:   cfg.AuthMode(),
		APIKey:     apiKey,
		Issuer:     cfg.Issuer(),
		AuthServer: authSrv,
		Telemetry:  tel,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serveCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Logf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case err := <-serveErr:
		return err
	case <-serveCtx.Done():
	}

	return gracefulShutdown(srv)
}

// gracefulShutdown gives in-flight requests 10 seconds to finish. A second
// termination signal while waiting forces an immediate exit, per spec §5.
func gracefulShutdown(srv *http.Server) error {
	log.Log("shutting down, press Ctrl+C again to force exit")

	forceCtx, forceStop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer forceStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Shutdown(shutdownCtx) }()

	select {
	case err := <-done:
		return err
	case <-forceCtx.Done():
		log.Warnf("forcing exit")
		os.Exit(1)
		return nil
	}
}
