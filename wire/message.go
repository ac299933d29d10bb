// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// User identifies a room participant. PublicKey (hex-encoded
// compressed secp256k1 point) is the durable identity; Name is a
// display label — not unique, and not authenticated beyond the
// signatures on the messages that carry it.
type User struct {
	Name      string `json:"name"`
	PublicKey string `json:"publicKey"`
}

// MessageState is client-local delivery metadata for a ChatMessage.
// It never crosses the wire and is never part of the signed payload.
type MessageState string

const (
	StateSent         MessageState = "sent"
	StateFailed       MessageState = "failed"
	StateAcknowledged MessageState = "acknowledged"
)

// ChatMessage is one chat line. ID is client-generated and serves as
// the idempotency key for deduplication and ack correlation. Once
// signed, the message is immutable: Timestamp, Sender, Content,
// and PublicKey are covered by the signature.
type ChatMessage struct {
	ID          string       `json:"id"`
	Timestamp   int64        `json:"timestamp"`
	Sender      string       `json:"sender"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	PublicKey   string       `json:"publicKey,omitempty"`
	Signature   string       `json:"signature,omitempty"`
	State       MessageState `json:"-"`
}

// Attachment is file metadata riding along with a chat message.
// Attachment bodies are stored and served outside this protocol;
// only the descriptor travels with the message.
type Attachment struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Digest   string `json:"digest,omitempty"`
}
