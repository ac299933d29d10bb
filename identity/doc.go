// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity provides the cryptographic authentication layer:
// secp256k1 key pairs, type-specific canonicalization of signable
// envelopes, and ECDSA signing and verification over the canonical
// form.
//
// A [KeyPair] is a hex private scalar plus the hex compressed public
// point. Keys are generated once (or supplied externally) and never
// rotated by this package.
//
// Canonicalization maps a signable object to a fixed, type-specific
// ordered concatenation of its semantically-signed fields — never the
// JSON bytes, so two representations of the same logical envelope that
// differ only in property order produce identical canonical strings.
// The signature field itself is always excluded; the public key is
// included where it is part of the signed contract. Each signable type
// has its own canonical function ([CanonicalJoin], [CanonicalOffer],
// [CanonicalMessage]); a verifier must be handed the function matching
// the claimed type rather than guessing it from content.
//
// Signatures are DER-serialized ECDSA over SHA-256 of the canonical
// string, hex-encoded on the wire. [Verify] never panics and never
// returns an error: malformed or missing input verifies false, so a
// forged message yields no signal about why it was rejected.
package identity
