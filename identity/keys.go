// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// KeyPair is a secp256k1 key pair in the wire representation: the
// private scalar and the compressed public point, both hex-encoded.
// The public key doubles as the participant's durable identity.
type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// Generate creates a fresh key pair. Callers persist the result (via
// the key-value store) and reuse it across sessions; identity is lost
// if the private key is lost.
func Generate() (KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return KeyPair{}, fmt.Errorf("generating secp256k1 key: %w", err)
	}
	return KeyPair{
		PrivateKey: hex.EncodeToString(priv.Serialize()),
		PublicKey:  hex.EncodeToString(priv.PubKey().SerializeCompressed()),
	}, nil
}

// Load reconstructs a key pair from a stored hex private key,
// re-deriving the public key. The private key must be exactly 32
// bytes of hex.
func Load(privateKeyHex string) (KeyPair, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return KeyPair{}, fmt.Errorf("decoding private key hex: %w", err)
	}
	if len(raw) != 32 {
		return KeyPair{}, fmt.Errorf("private key is %d bytes, want 32", len(raw))
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	if priv.Key.IsZero() {
		return KeyPair{}, fmt.Errorf("private key is zero")
	}
	return KeyPair{
		PrivateKey: privateKeyHex,
		PublicKey:  hex.EncodeToString(priv.PubKey().SerializeCompressed()),
	}, nil
}

// parsePublicKey decodes a hex compressed public key. Returns an
// error for anything that is not a valid curve point.
func parsePublicKey(publicKeyHex string) (*secp256k1.PublicKey, error) {
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decoding public key hex: %w", err)
	}
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	return pub, nil
}
