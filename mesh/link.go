// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package mesh

import (
	"github.com/parlorchat/parlor/wire"
)

// linkState tracks one peer link through negotiation. Transitions are
// guarded by the Manager mutex.
type linkState int

const (
	// linkNew: connection created, no offer exchanged yet.
	linkNew linkState = iota
	// linkHaveLocalOffer: we sent an offer and are waiting for the
	// answer.
	linkHaveLocalOffer
	// linkHaveRemoteOffer: we received an offer and sent the answer.
	linkHaveRemoteOffer
	// linkConnected: the data channel is open.
	linkConnected
	// linkFailed: the connection failed or disconnected. The link
	// stays in the table so the recovery pass can find it.
	linkFailed
	// linkClosed: torn down deliberately (peer left, manager closed).
	linkClosed
)

func (s linkState) String() string {
	switch s {
	case linkNew:
		return "new"
	case linkHaveLocalOffer:
		return "have-local-offer"
	case linkHaveRemoteOffer:
		return "have-remote-offer"
	case linkConnected:
		return "connected"
	case linkFailed:
		return "failed"
	case linkClosed:
		return "closed"
	}
	return "unknown"
}

// peerLink is one direct connection to a remote peer, keyed in the
// Manager's table by the peer's public key. All fields except pc and
// channel callbacks are guarded by the Manager mutex.
type peerLink struct {
	user      wire.User
	pc        PeerConnection
	channel   DataChannel
	state     linkState
	initiator bool

	// pendingCandidates buffers remote ICE candidates that arrive
	// before the remote description is set.
	pendingCandidates []wire.CandidateInit
	remoteDescribed   bool
}

// open reports whether the link can carry a message right now.
func (l *peerLink) open() bool {
	return l.state == linkConnected && l.channel != nil && l.channel.Open()
}

// teardown closes the underlying connection. Safe to call in any
// state; close errors are ignored because the link is already dead.
func (l *peerLink) teardown() {
	if l.channel != nil {
		_ = l.channel.Close()
	}
	if l.pc != nil {
		_ = l.pc.Close()
	}
}
