// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Parlor's standard CBOR encoding configuration.
//
// Parlor uses two serialization formats with a clear boundary: JSON for
// the signaling wire protocol and data channels (interoperable with
// browser clients), and CBOR for local state the process owns alone —
// the key-value store's values on disk.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes.
package codec
