// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// parlor is the terminal chat client. It joins a room through a
// parlor-server broker, negotiates direct WebRTC links to the other
// participants, and renders the conversation as a bubbletea TUI.
// Identity (a secp256k1 key pair) is generated on first run and kept
// in the state directory, so the user's public key is stable across
// sessions.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/parlorchat/parlor/identity"
	"github.com/parlorchat/parlor/kvstore"
	"github.com/parlorchat/parlor/lib/version"
	"github.com/parlorchat/parlor/mesh"
	"github.com/parlorchat/parlor/wire"
)

const identityKey = "identity"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "parlor: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		serverURL   string
		room        string
		name        string
		stateDir    string
		relayOnly   bool
		stunServer  string
		logPath     string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("parlor", pflag.ContinueOnError)
	flagSet.StringVar(&serverURL, "server", "ws://localhost:8080/ws", "broker websocket URL")
	flagSet.StringVar(&room, "room", "", "room to join (required)")
	flagSet.StringVar(&name, "name", "", "display name (required)")
	flagSet.StringVar(&stateDir, "state-dir", "", "state directory (default: user config dir)")
	flagSet.BoolVar(&relayOnly, "relay-only", false, "skip peer links, relay everything through the broker")
	flagSet.StringVar(&stunServer, "stun", "stun:stun.l.google.com:19302", "STUN server URL, empty for host candidates only")
	flagSet.StringVar(&logPath, "log-file", "", "write JSON log records to this file")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("parlor")
		return nil
	}
	if room == "" || name == "" {
		return fmt.Errorf("--room and --name are required")
	}

	logger, closeLog, err := newLogger(logPath)
	if err != nil {
		return err
	}
	defer closeLog()

	keyPair, err := loadIdentity(stateDir)
	if err != nil {
		return err
	}
	user := wire.User{Name: name, PublicKey: keyPair.PublicKey}

	var transport mesh.Transport
	if !relayOnly {
		var stun []string
		if stunServer != "" {
			stun = []string{stunServer}
		}
		transport = mesh.NewWebRTCTransport(stun)
	}

	// The callbacks fire on mesh goroutines and close over the
	// program, which can only exist once the manager does. Events
	// start flowing at Connect, after the program is assigned.
	var program *tea.Program
	manager, err := mesh.New(mesh.Config{
		ServerURL: serverURL,
		Room:      room,
		User:      user,
		KeyPair:   keyPair,
		Transport: transport,
		RelayOnly: relayOnly,
		Logger:    logger,
		OnMessage: func(msg wire.ChatMessage) {
			program.Send(chatReceivedMsg{message: msg})
		},
		OnAck: func(id string) {
			program.Send(ackReceivedMsg{messageID: id})
		},
		OnPresence: func(users []wire.User) {
			program.Send(presenceMsg{participants: users})
		},
		OnDeleted: func(id string) {
			program.Send(deletedMsg{messageID: id})
		},
		OnClosed: func() {
			program.Send(meshClosedMsg{})
		},
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	program = tea.NewProgram(newModel(room, user, manager), tea.WithAltScreen())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err = manager.Connect(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", serverURL, err)
	}

	_, err = program.Run()
	return err
}

// loadIdentity returns the persistent key pair, generating and
// storing one on first run.
func loadIdentity(stateDir string) (identity.KeyPair, error) {
	if stateDir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return identity.KeyPair{}, fmt.Errorf("resolving config dir: %w", err)
		}
		stateDir = filepath.Join(configDir, "parlor")
	}
	store, err := kvstore.Open(stateDir)
	if err != nil {
		return identity.KeyPair{}, fmt.Errorf("opening state store: %w", err)
	}

	var keyPair identity.KeyPair
	err = store.Get(identityKey, &keyPair)
	switch {
	case err == nil:
		// Re-derive to catch a corrupted private key early.
		return identity.Load(keyPair.PrivateKey)
	case errors.Is(err, kvstore.ErrNotFound):
		keyPair, err = identity.Generate()
		if err != nil {
			return identity.KeyPair{}, err
		}
		if err := store.Set(identityKey, keyPair); err != nil {
			return identity.KeyPair{}, fmt.Errorf("storing identity: %w", err)
		}
		return keyPair, nil
	default:
		return identity.KeyPair{}, fmt.Errorf("loading identity: %w", err)
	}
}

func newLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		// The TUI owns the terminal; without a log file, discard.
		return slog.New(slog.DiscardHandler), func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(file, nil))
	return logger, func() { file.Close() }, nil
}
