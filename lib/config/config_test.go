// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parlor.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadFile_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9100
storage:
  database: /tmp/test.db
  persist_p2p: false
log:
  level: debug
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9100 {
		t.Errorf("server = %+v, want 127.0.0.1:9100", cfg.Server)
	}
	if cfg.Storage.PersistP2P {
		t.Error("persist_p2p should be disabled")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
	if got := cfg.Addr(); got != "127.0.0.1:9100" {
		t.Errorf("Addr() = %q, want 127.0.0.1:9100", got)
	}
}

func TestLoadFile_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9200\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Port != 9200 {
		t.Errorf("port = %d, want 9200", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q, want default info", cfg.Log.Level)
	}
	if !cfg.Storage.PersistP2P {
		t.Error("persist_p2p should default to true")
	}
}

func TestLoadFile_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, "server:\n  prot: 9200\n")

	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
}

func TestValidate_BadLevel(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for bad log level, got nil")
	}
}

func TestValidate_PortRange(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for port 0, got nil")
	}
}

func TestLoad_NoEnvUsesDefaults(t *testing.T) {
	t.Setenv("PARLOR_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Server.Port)
	}
}
