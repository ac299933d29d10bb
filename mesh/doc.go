// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package mesh implements the client's peer connection manager: one
// [Manager] per room, holding a signaling websocket and a map of
// per-peer links keyed by participant public key. The manager survives
// broker disconnects; each Connect after a Disconnect is held to a
// fixed reconnect cooldown.
//
// The manager seeds the mesh from the broker's room-info reply,
// creating an initiating link for every listed participant, and offers
// to each later user-joined arrival as well. Each link runs the
// offer/answer/ICE exchange as an explicit state machine (new →
// have-local-offer or have-remote-offer → connected → failed/closed),
// so negotiation is testable against a fake [Transport] without a
// network stack.
//
// When two peers offer to each other simultaneously (glare), the side
// whose public key sorts lexicographically lower keeps its outstanding
// offer and ignores the inbound one; the higher side discards its own
// attempt and answers. Both sides therefore converge on exactly one
// active link per peer pair without a coordinator.
//
// Outbound offers are signed and inbound offers verified; an offer
// whose signature fails, or whose embedded key differs from the
// broker-stamped sender, is dropped. Data-channel payloads without a
// signature are never delivered to the application (the advisory ping
// frame excepted), and the signature is verified against the chat
// canonical form before delivery.
//
// A periodic recovery pass re-initiates any expected link that is not
// connected with an open channel, skipping peers still inside their
// per-link cooldown. Failures are contained per link: an error in one
// peer's negotiation removes that link only, while a signaling socket
// failure tears down the whole mesh and starts the reconnect
// cooldown.
package mesh
