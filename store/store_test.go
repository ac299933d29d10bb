// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package store_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/parlorchat/parlor/lib/testutil"
	"github.com/parlorchat/parlor/store"
	"github.com/parlorchat/parlor/wire"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{
		Path:   filepath.Join(t.TempDir(), "messages.db"),
		Logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPersistAndQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := wire.ChatMessage{
		ID:        testutil.UniqueID("msg"),
		Timestamp: 1000,
		Sender:    "alice",
		PublicKey: "02aa",
		Content:   "hello",
		Signature: "sig-a",
	}
	second := wire.ChatMessage{
		ID:        testutil.UniqueID("msg"),
		Timestamp: 2000,
		Sender:    "bob",
		PublicKey: "03bb",
		Content:   "hi",
		Signature: "sig-b",
	}

	if err := s.Persist(ctx, "lobby", first); err != nil {
		t.Fatalf("Persist first: %v", err)
	}
	if err := s.Persist(ctx, "lobby", second); err != nil {
		t.Fatalf("Persist second: %v", err)
	}
	if err := s.Persist(ctx, "ops", second); err != nil {
		t.Fatalf("Persist other room: %v", err)
	}

	messages, err := s.Messages(ctx, "lobby", 10)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].ID != first.ID || messages[1].ID != second.ID {
		t.Errorf("messages out of order: %s, %s", messages[0].ID, messages[1].ID)
	}
	if messages[0].Content != "hello" || messages[0].Signature != "sig-a" {
		t.Errorf("first message round trip: %+v", messages[0])
	}
}

func TestPersistIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	msg := wire.ChatMessage{
		ID:        "m1",
		Timestamp: 1000,
		Sender:    "alice",
		PublicKey: "02aa",
		Content:   "hello",
		Signature: "sig",
	}
	for range 3 {
		if err := s.Persist(ctx, "lobby", msg); err != nil {
			t.Fatalf("Persist: %v", err)
		}
	}

	messages, err := s.Messages(ctx, "lobby", 10)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(messages) != 1 {
		t.Errorf("got %d messages, want 1 after duplicate persists", len(messages))
	}
}

func TestDeleteMessage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	msg := wire.ChatMessage{ID: "m1", Timestamp: 1, Sender: "a", PublicKey: "02aa", Content: "x", Signature: "s"}
	if err := s.Persist(ctx, "lobby", msg); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	// A different key cannot delete someone else's message.
	if err := s.DeleteMessage(ctx, "lobby", "m1", "03bb"); err != nil {
		t.Fatalf("DeleteMessage wrong key: %v", err)
	}
	messages, err := s.Messages(ctx, "lobby", 10)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1 after foreign delete attempt", len(messages))
	}

	if err := s.DeleteMessage(ctx, "lobby", "m1", "02aa"); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	messages, err = s.Messages(ctx, "lobby", 10)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("got %d messages, want 0 after delete", len(messages))
	}

	// Unknown IDs are a no-op, not an error.
	if err := s.DeleteMessage(ctx, "lobby", "never-existed", "02aa"); err != nil {
		t.Errorf("DeleteMessage unknown ID: %v", err)
	}
}

func TestBlockList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	blocked, err := s.IsBlocked(ctx, "02aa")
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if blocked {
		t.Error("key blocked before Block")
	}

	if err := s.Block(ctx, "02aa"); err != nil {
		t.Fatalf("Block: %v", err)
	}
	blocked, err = s.IsBlocked(ctx, "02aa")
	if err != nil {
		t.Fatalf("IsBlocked after Block: %v", err)
	}
	if !blocked {
		t.Error("key not blocked after Block")
	}

	if err := s.Unblock(ctx, "02aa"); err != nil {
		t.Fatalf("Unblock: %v", err)
	}
	blocked, err = s.IsBlocked(ctx, "02aa")
	if err != nil {
		t.Fatalf("IsBlocked after Unblock: %v", err)
	}
	if blocked {
		t.Error("key still blocked after Unblock")
	}
}
