package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/config"
	"github.com/felixgeelhaar/healthbuddy/internal/daemon"
	mcpserver "github.com/felixgeelhaar/healthbuddy/internal/mcp"
)

// cmdMCP starts the MCP server on stdio, or on HTTP with --http <addr>.
// It runs the same session stack as the daemon without the REST API.
func cmdMCP(args []string) error {
	var httpAddr string
	if len(args) > 0 {
		if args[0] != "--http" || len(args) < 2 {
			return fmt.Errorf("usage: healthbuddy mcp [--http <addr>]")
		}
		httpAddr = args[1]
	}

	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dataDir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stack, err := daemon.NewServer(ctx, daemon.ServerConfig{Config: cfg, DataDir: dataDir})
	if err != nil {
		return fmt.Errorf("create session stack: %w", err)
	}
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := stack.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		}
	}()

	srv := mcpserver.NewServer(mcpserver.Config{
		Sessions: stack.Sessions(),
		Engine:   stack.Engine(),
		Version:  Version,
	})

	if httpAddr != "" {
		err = srv.ServeHTTP(ctx, httpAddr)
	} else {
		err = srv.ServeStdio(ctx)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
