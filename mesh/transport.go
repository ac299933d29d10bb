// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package mesh

import "github.com/parlorchat/parlor/wire"

// ConnectionState is the coarse peer connection state surfaced by a
// Transport. It mirrors webrtc.PeerConnectionState without importing
// pion into the state machine.
type ConnectionState int

const (
	StateNew ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Transport creates peer connections. The production implementation
// is [WebRTCTransport] over pion; tests inject a fake so negotiation
// and glare resolution run without a network stack.
type Transport interface {
	// NewPeerConnection creates one peer connection. Each PeerLink
	// owns exactly one.
	NewPeerConnection() (PeerConnection, error)
}

// PeerConnection is one underlying connection to a remote peer. The
// callback registration methods must be called before negotiation
// begins; callbacks may fire on transport-owned goroutines.
type PeerConnection interface {
	// CreateDataChannel opens an outbound message-oriented channel.
	// The initiator calls this eagerly before offering, so either
	// side can use whichever channel opens first.
	CreateDataChannel(label string) (DataChannel, error)

	// CreateOffer builds the local SDP offer.
	CreateOffer() (wire.SessionDescription, error)

	// CreateAnswer builds the local SDP answer to a previously set
	// remote offer.
	CreateAnswer() (wire.SessionDescription, error)

	// SetLocalDescription applies a locally created offer or answer
	// and starts ICE gathering.
	SetLocalDescription(desc wire.SessionDescription) error

	// SetRemoteDescription applies the remote side's offer or answer.
	SetRemoteDescription(desc wire.SessionDescription) error

	// AddICECandidate applies one trickled remote candidate.
	// Transport-level errors are surfaced but non-fatal to the link.
	AddICECandidate(candidate wire.CandidateInit) error

	// OnICECandidate registers the handler for locally gathered
	// candidates. The handler is never called with an empty
	// candidate (end-of-gathering is not signaled).
	OnICECandidate(handler func(wire.CandidateInit))

	// OnDataChannel registers the handler for channels opened by the
	// remote peer.
	OnDataChannel(handler func(DataChannel))

	// OnConnectionStateChange registers the state observer.
	OnConnectionStateChange(handler func(ConnectionState))

	// Close tears the connection down, cancelling any in-flight
	// negotiation.
	Close() error
}

// DataChannel is a message-oriented channel to one remote peer.
type DataChannel interface {
	// Label identifies the channel within its connection.
	Label() string

	// Open reports whether the channel is ready to carry messages.
	Open() bool

	// Send queues one message. Fire-and-forget: delivery is not
	// acknowledged at this layer.
	Send(data []byte) error

	// OnOpen registers the readiness handler.
	OnOpen(handler func())

	// OnMessage registers the inbound message handler.
	OnMessage(handler func(data []byte))

	// Close closes the channel without touching its connection.
	Close() error
}
