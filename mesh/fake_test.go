// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package mesh

import (
	"fmt"
	"sync"

	"github.com/parlorchat/parlor/wire"
)

// fakeTransport records every connection it creates so tests can
// drive negotiation and channel traffic without a network stack.
type fakeTransport struct {
	mu    sync.Mutex
	conns []*fakeConn
}

var _ Transport = (*fakeTransport)(nil)

func (t *fakeTransport) NewPeerConnection() (PeerConnection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	conn := &fakeConn{}
	t.conns = append(t.conns, conn)
	return conn, nil
}

func (t *fakeTransport) connCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *fakeTransport) conn(i int) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[i]
}

type fakeConn struct {
	mu            sync.Mutex
	local         []wire.SessionDescription
	remote        []wire.SessionDescription
	candidates    []wire.CandidateInit
	channels      []*fakeChannel
	closed        bool
	onCandidate   func(wire.CandidateInit)
	onDataChannel func(DataChannel)
	onState       func(ConnectionState)
}

var _ PeerConnection = (*fakeConn)(nil)

func (c *fakeConn) CreateDataChannel(label string) (DataChannel, error) {
	channel := &fakeChannel{label: label}
	c.mu.Lock()
	c.channels = append(c.channels, channel)
	c.mu.Unlock()
	return channel, nil
}

func (c *fakeConn) CreateOffer() (wire.SessionDescription, error) {
	return wire.SessionDescription{Type: "offer", SDP: "v=0 fake offer"}, nil
}

func (c *fakeConn) CreateAnswer() (wire.SessionDescription, error) {
	return wire.SessionDescription{Type: "answer", SDP: "v=0 fake answer"}, nil
}

func (c *fakeConn) SetLocalDescription(desc wire.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = append(c.local, desc)
	return nil
}

func (c *fakeConn) SetRemoteDescription(desc wire.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote = append(c.remote, desc)
	return nil
}

func (c *fakeConn) AddICECandidate(candidate wire.CandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed")
	}
	c.candidates = append(c.candidates, candidate)
	return nil
}

func (c *fakeConn) OnICECandidate(handler func(wire.CandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCandidate = handler
}

func (c *fakeConn) OnDataChannel(handler func(DataChannel)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDataChannel = handler
}

func (c *fakeConn) OnConnectionStateChange(handler func(ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = handler
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) remoteDescriptions() []wire.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wire.SessionDescription(nil), c.remote...)
}

func (c *fakeConn) addedCandidates() []wire.CandidateInit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wire.CandidateInit(nil), c.candidates...)
}

// fireState invokes the registered state observer, as pion would from
// its own goroutine.
func (c *fakeConn) fireState(state ConnectionState) {
	c.mu.Lock()
	handler := c.onState
	c.mu.Unlock()
	if handler != nil {
		handler(state)
	}
}

// emitCandidate simulates local ICE gathering producing a candidate.
func (c *fakeConn) emitCandidate(candidate wire.CandidateInit) {
	c.mu.Lock()
	handler := c.onCandidate
	c.mu.Unlock()
	if handler != nil {
		handler(candidate)
	}
}

// openLocalChannel marks the initiator-created channel open and fires
// its OnOpen handler.
func (c *fakeConn) openLocalChannel() *fakeChannel {
	c.mu.Lock()
	channel := c.channels[0]
	c.mu.Unlock()
	channel.markOpen()
	return channel
}

// openRemoteChannel simulates the remote initiator's channel arriving
// and opening, as it does on the answering side.
func (c *fakeConn) openRemoteChannel(label string) *fakeChannel {
	channel := &fakeChannel{label: label}
	c.mu.Lock()
	handler := c.onDataChannel
	c.mu.Unlock()
	if handler != nil {
		handler(channel)
	}
	channel.markOpen()
	return channel
}

type fakeChannel struct {
	mu        sync.Mutex
	label     string
	open      bool
	sent      [][]byte
	onOpen    func()
	onMessage func([]byte)
	closed    bool
}

var _ DataChannel = (*fakeChannel)(nil)

func (c *fakeChannel) Label() string { return c.label }

func (c *fakeChannel) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open && !c.closed
}

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || c.closed {
		return fmt.Errorf("channel not open")
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeChannel) OnOpen(handler func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = handler
}

func (c *fakeChannel) OnMessage(handler func(data []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.open = false
	return nil
}

func (c *fakeChannel) markOpen() {
	c.mu.Lock()
	c.open = true
	handler := c.onOpen
	c.mu.Unlock()
	if handler != nil {
		handler()
	}
}

// inject delivers data as if the remote peer sent it.
func (c *fakeChannel) inject(data []byte) {
	c.mu.Lock()
	handler := c.onMessage
	c.mu.Unlock()
	if handler != nil {
		handler(data)
	}
}

func (c *fakeChannel) sentMessages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}
