// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package broker implements the signaling server: the room and
// participant registry, signature verification on security-sensitive
// envelopes, and routing of join, offer, answer, ICE, broadcast, ack,
// and deletion traffic between websocket clients.
//
// One websocket connection is one [session]. A session becomes a room
// member when its signed join verifies; the [Broker] then owns the
// (room, participant) relationship through [room]'s accessor methods,
// so the rooms map and each room's member map can never disagree. A
// room is created lazily on first join and deleted when its last
// member leaves. Rooms live only in broker memory — persistence covers
// messages, not rooms.
//
// Authentication failures are dropped with only a log line: a forged
// message gets no signal back about why it failed. Routing failures
// (unknown target or room) are likewise logged and dropped, never
// retried. A panic inside one connection's handler tears down that
// connection only; the broker keeps serving every other socket.
//
// The ordering contract is per-socket: one read goroutine per
// connection processes that connection's messages in arrival order,
// taking the broker mutex for each registry mutation. No ordering is
// guaranteed across connections.
package broker
