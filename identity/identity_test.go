// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/parlorchat/parlor/wire"
)

func mustGenerate(t *testing.T) KeyPair {
	t.Helper()
	keyPair, err := Generate()
	if err != nil {
		t.Fatalf("generating key pair: %v", err)
	}
	return keyPair
}

func TestGenerateProducesCompressedKey(t *testing.T) {
	keyPair := mustGenerate(t)
	raw, err := hex.DecodeString(keyPair.PublicKey)
	if err != nil {
		t.Fatalf("public key is not hex: %v", err)
	}
	if len(raw) != 33 {
		t.Errorf("public key is %d bytes, want 33 (compressed)", len(raw))
	}
	if raw[0] != 0x02 && raw[0] != 0x03 {
		t.Errorf("public key prefix = %#x, want 0x02 or 0x03", raw[0])
	}
	priv, err := hex.DecodeString(keyPair.PrivateKey)
	if err != nil {
		t.Fatalf("private key is not hex: %v", err)
	}
	if len(priv) != 32 {
		t.Errorf("private key is %d bytes, want 32", len(priv))
	}
}

func TestLoadRederivesPublicKey(t *testing.T) {
	keyPair := mustGenerate(t)
	loaded, err := Load(keyPair.PrivateKey)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PublicKey != keyPair.PublicKey {
		t.Errorf("re-derived public key = %q, want %q", loaded.PublicKey, keyPair.PublicKey)
	}
}

func TestLoadRejectsBadKeys(t *testing.T) {
	cases := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"not hex", "zznothex"},
		{"short", "abcd"},
		{"long", strings.Repeat("ab", 33)},
		{"zero", strings.Repeat("00", 32)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(tc.key); err == nil {
				t.Errorf("Load(%q) succeeded, want error", tc.key)
			}
		})
	}
}

func TestCanonicalFormsAreDeterministic(t *testing.T) {
	join := &wire.Join{
		Room:   "lounge",
		User:   wire.User{Name: "alice", PublicKey: "02aa"},
		Signed: wire.Signed{PublicKey: "02aa"},
	}
	if got := CanonicalJoin(join); got != "join|lounge|alice|02aa" {
		t.Errorf("CanonicalJoin = %q", got)
	}

	offer := &wire.Offer{
		Offer:  wire.SessionDescription{Type: "offer", SDP: "v=0"},
		Target: wire.User{Name: "bob", PublicKey: "03bb"},
		Room:   "lounge",
		Signed: wire.Signed{PublicKey: "02aa"},
	}
	if got := CanonicalOffer(offer); got != "offer|lounge|03bb|v=0|02aa" {
		t.Errorf("CanonicalOffer = %q", got)
	}

	msg := &wire.ChatMessage{
		ID:        "m1",
		Timestamp: 1700000000000,
		Sender:    "alice",
		Content:   "hi",
		Attachments: []wire.Attachment{
			{Name: "a.txt", Digest: "deadbeef"},
		},
		PublicKey: "02aa",
	}
	want := "chat|m1|1700000000000|alice|hi|a.txt:deadbeef|02aa"
	if got := CanonicalMessage(msg); got != want {
		t.Errorf("CanonicalMessage = %q, want %q", got, want)
	}

	// The signature never feeds back into the canonical form.
	msg.Signature = "3044"
	if got := CanonicalMessage(msg); got != want {
		t.Errorf("canonical form changed after signing: %q", got)
	}
	// Client-local state never feeds in either.
	msg.State = wire.StateAcknowledged
	if got := CanonicalMessage(msg); got != want {
		t.Errorf("canonical form changed with local state: %q", got)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	keyPair := mustGenerate(t)
	signature, err := Sign("payload", keyPair)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !Verify("payload", signature, keyPair.PublicKey) {
		t.Error("signature does not verify")
	}
	if Verify("tampered", signature, keyPair.PublicKey) {
		t.Error("signature verified against different payload")
	}
	other := mustGenerate(t)
	if Verify("payload", signature, other.PublicKey) {
		t.Error("signature verified against different key")
	}
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	keyPair := mustGenerate(t)
	signature, err := Sign("payload", keyPair)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	cases := []struct {
		name      string
		canonical string
		signature string
		publicKey string
	}{
		{"empty signature", "payload", "", keyPair.PublicKey},
		{"empty key", "payload", signature, ""},
		{"signature not hex", "payload", "zz", keyPair.PublicKey},
		{"signature not DER", "payload", "deadbeef", keyPair.PublicKey},
		{"key not hex", "payload", signature, "zz"},
		{"key not on curve", "payload", signature, strings.Repeat("02", 33)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if Verify(tc.canonical, tc.signature, tc.publicKey) {
				t.Error("Verify accepted malformed input")
			}
		})
	}
}

func TestSignedEnvelopesRoundTrip(t *testing.T) {
	keyPair := mustGenerate(t)

	join := &wire.Join{Room: "lounge", User: wire.User{Name: "alice", PublicKey: keyPair.PublicKey}}
	if err := SignJoin(join, keyPair); err != nil {
		t.Fatalf("sign join: %v", err)
	}
	if !VerifyJoin(join) {
		t.Error("join does not verify")
	}
	join.Room = "other"
	if VerifyJoin(join) {
		t.Error("join verified after room change")
	}

	offer := &wire.Offer{
		Offer:  wire.SessionDescription{Type: "offer", SDP: "v=0"},
		Target: wire.User{Name: "bob", PublicKey: "03bb"},
		Room:   "lounge",
	}
	if err := SignOffer(offer, keyPair); err != nil {
		t.Fatalf("sign offer: %v", err)
	}
	if offer.PublicKey != keyPair.PublicKey {
		t.Error("sign did not stamp the public key")
	}
	if !VerifyOffer(offer) {
		t.Error("offer does not verify")
	}
	offer.Offer.SDP = "v=1"
	if VerifyOffer(offer) {
		t.Error("offer verified after SDP change")
	}

	msg := &wire.ChatMessage{ID: "m1", Timestamp: 1, Sender: "alice", Content: "hi"}
	if err := SignMessage(msg, keyPair); err != nil {
		t.Fatalf("sign message: %v", err)
	}
	if !VerifyMessage(msg) {
		t.Error("message does not verify")
	}
	msg.Content = "bye"
	if VerifyMessage(msg) {
		t.Error("message verified after content change")
	}
}
