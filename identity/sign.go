// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/parlorchat/parlor/wire"
)

// CanonicalJoin returns the canonical form of a join envelope:
// the room plus the announced identity.
func CanonicalJoin(join *wire.Join) string {
	return strings.Join([]string{
		"join", join.Room, join.User.Name, join.User.PublicKey,
	}, "|")
}

// CanonicalOffer returns the canonical form of an offer envelope. It
// binds the SDP to the target's identity and the offerer's key, so a
// relayed offer cannot be redirected or re-attributed. Sender and Room
// stamps added by the broker are excluded (Room is client-set and
// included; the broker re-stamps it with the same value).
func CanonicalOffer(offer *wire.Offer) string {
	return strings.Join([]string{
		"offer", offer.Room, offer.Target.PublicKey, offer.Offer.SDP, offer.PublicKey,
	}, "|")
}

// CanonicalMessage returns the canonical form of a chat message: the
// idempotency ID, timestamp, display name, content, the attachment
// descriptors, and the author's key. State is client-local and never
// included.
func CanonicalMessage(msg *wire.ChatMessage) string {
	parts := []string{
		"chat", msg.ID, strconv.FormatInt(msg.Timestamp, 10), msg.Sender, msg.Content,
	}
	for _, attachment := range msg.Attachments {
		parts = append(parts, attachment.Name+":"+attachment.Digest)
	}
	parts = append(parts, msg.PublicKey)
	return strings.Join(parts, "|")
}

// Sign produces a hex DER ECDSA signature over SHA-256 of the
// canonical string.
func Sign(canonical string, keyPair KeyPair) (string, error) {
	raw, err := hex.DecodeString(keyPair.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("decoding private key hex: %w", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("private key is %d bytes, want 32", len(raw))
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	digest := sha256.Sum256([]byte(canonical))
	signature := ecdsa.Sign(priv, digest[:])
	return hex.EncodeToString(signature.Serialize()), nil
}

// Verify checks a hex DER signature over the canonical string against
// a hex compressed public key. Malformed or missing input verifies
// false; Verify never panics and never reports why a check failed.
func Verify(canonical, signatureHex, publicKeyHex string) bool {
	if signatureHex == "" || publicKeyHex == "" {
		return false
	}
	pub, err := parsePublicKey(publicKeyHex)
	if err != nil {
		return false
	}
	rawSignature, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	signature, err := ecdsa.ParseDERSignature(rawSignature)
	if err != nil {
		return false
	}
	digest := sha256.Sum256([]byte(canonical))
	return signature.Verify(digest[:], pub)
}

// SignJoin stamps the key pair's public key (if absent) and the
// signature onto a join envelope.
func SignJoin(join *wire.Join, keyPair KeyPair) error {
	if join.PublicKey == "" {
		join.PublicKey = keyPair.PublicKey
	}
	signature, err := Sign(CanonicalJoin(join), keyPair)
	if err != nil {
		return err
	}
	join.Signature = signature
	return nil
}

// VerifyJoin recomputes the join canonical form from the envelope's
// current field values and checks the embedded signature.
func VerifyJoin(join *wire.Join) bool {
	return Verify(CanonicalJoin(join), join.Signature, join.PublicKey)
}

// SignOffer stamps the key pair's public key (if absent) and the
// signature onto an offer envelope. The public key must be stamped
// before canonicalization since it is part of the signed contract.
func SignOffer(offer *wire.Offer, keyPair KeyPair) error {
	if offer.PublicKey == "" {
		offer.PublicKey = keyPair.PublicKey
	}
	signature, err := Sign(CanonicalOffer(offer), keyPair)
	if err != nil {
		return err
	}
	offer.Signature = signature
	return nil
}

// VerifyOffer checks the embedded signature on an offer envelope.
func VerifyOffer(offer *wire.Offer) bool {
	return Verify(CanonicalOffer(offer), offer.Signature, offer.PublicKey)
}

// SignMessage stamps the key pair's public key (if absent) and the
// signature onto a chat message. The message is immutable afterward:
// any change to a signed field invalidates the signature.
func SignMessage(msg *wire.ChatMessage, keyPair KeyPair) error {
	if msg.PublicKey == "" {
		msg.PublicKey = keyPair.PublicKey
	}
	signature, err := Sign(CanonicalMessage(msg), keyPair)
	if err != nil {
		return err
	}
	msg.Signature = signature
	return nil
}

// VerifyMessage checks the embedded signature on a chat message.
func VerifyMessage(msg *wire.ChatMessage) bool {
	return Verify(CanonicalMessage(msg), msg.Signature, msg.PublicKey)
}
