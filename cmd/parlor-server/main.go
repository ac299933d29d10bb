// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// parlor-server is the Parlor room broker: a websocket signaling
// server that admits signed joins, routes SDP offers, answers, and
// ICE candidates between room participants, relays chat broadcasts,
// and (unless disabled) persists accepted messages to SQLite.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/parlorchat/parlor/broker"
	"github.com/parlorchat/parlor/lib/config"
	"github.com/parlorchat/parlor/lib/version"
	"github.com/parlorchat/parlor/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "parlor-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		host        string
		port        int
		database    string
		persistP2P  bool
		logLevel    string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("parlor-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to YAML config file (default: $PARLOR_CONFIG, else built-in defaults)")
	flagSet.StringVar(&host, "host", "", "listen host (overrides config)")
	flagSet.IntVar(&port, "port", 0, "listen port (overrides config)")
	flagSet.StringVar(&database, "db", "", "SQLite database path (overrides config)")
	flagSet.BoolVar(&persistP2P, "persist-p2p", true, "persist relayed chat messages")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("parlor-server")
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if database != "" {
		cfg.Storage.Database = database
	}
	if flagSet.Changed("persist-p2p") {
		cfg.Storage.PersistP2P = persistP2P
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var messageStore broker.MessageStore
	if cfg.Storage.PersistP2P {
		st, err := store.Open(store.Config{Path: cfg.Storage.Database, Logger: logger})
		if err != nil {
			return fmt.Errorf("opening message store: %w", err)
		}
		defer st.Close()
		messageStore = st
		logger.Info("message persistence enabled", "database", cfg.Storage.Database)
	} else {
		logger.Info("running as pure relay, no persistence")
	}

	b := broker.New(messageStore, logger)
	mux := http.NewServeMux()
	mux.Handle("/ws", b.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()
	logger.Info("broker listening", "addr", cfg.Addr(), "version", version.Info())

	select {
	case err := <-serveErr:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// newLogger builds the JSON logger. The level string has already
// passed config validation.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
