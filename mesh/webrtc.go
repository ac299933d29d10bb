// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package mesh

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/parlorchat/parlor/wire"
)

// WebRTCTransport is the production [Transport] backed by pion.
type WebRTCTransport struct {
	api    *webrtc.API
	config webrtc.Configuration
}

var _ Transport = (*WebRTCTransport)(nil)

// NewWebRTCTransport builds a transport using the given STUN servers.
// With no servers it still negotiates host candidates, which suffices
// on a shared LAN or in loopback tests.
func NewWebRTCTransport(stunServers []string) *WebRTCTransport {
	var config webrtc.Configuration
	if len(stunServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}
	settings := webrtc.SettingEngine{}
	return &WebRTCTransport{
		api:    webrtc.NewAPI(webrtc.WithSettingEngine(settings)),
		config: config,
	}
}

func (t *WebRTCTransport) NewPeerConnection() (PeerConnection, error) {
	pc, err := t.api.NewPeerConnection(t.config)
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}
	return &webrtcConnection{pc: pc}, nil
}

type webrtcConnection struct {
	pc *webrtc.PeerConnection
}

var _ PeerConnection = (*webrtcConnection)(nil)

func (c *webrtcConnection) CreateDataChannel(label string) (DataChannel, error) {
	ch, err := c.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, fmt.Errorf("creating data channel %q: %w", label, err)
	}
	return &webrtcChannel{ch: ch}, nil
}

func (c *webrtcConnection) CreateOffer() (wire.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return wire.SessionDescription{}, fmt.Errorf("creating offer: %w", err)
	}
	return wire.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (c *webrtcConnection) CreateAnswer() (wire.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return wire.SessionDescription{}, fmt.Errorf("creating answer: %w", err)
	}
	return wire.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (c *webrtcConnection) SetLocalDescription(desc wire.SessionDescription) error {
	return c.pc.SetLocalDescription(toSessionDescription(desc))
}

func (c *webrtcConnection) SetRemoteDescription(desc wire.SessionDescription) error {
	return c.pc.SetRemoteDescription(toSessionDescription(desc))
}

func (c *webrtcConnection) AddICECandidate(candidate wire.CandidateInit) error {
	return c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        candidate.Candidate,
		SDPMid:           candidate.SDPMid,
		SDPMLineIndex:    candidate.SDPMLineIndex,
		UsernameFragment: candidate.UsernameFragment,
	})
}

func (c *webrtcConnection) OnICECandidate(handler func(wire.CandidateInit)) {
	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		handler(wire.CandidateInit{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
}

func (c *webrtcConnection) OnDataChannel(handler func(DataChannel)) {
	c.pc.OnDataChannel(func(ch *webrtc.DataChannel) {
		handler(&webrtcChannel{ch: ch})
	})
}

func (c *webrtcConnection) OnConnectionStateChange(handler func(ConnectionState)) {
	c.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		handler(toConnectionState(state))
	})
}

func (c *webrtcConnection) Close() error {
	return c.pc.Close()
}

type webrtcChannel struct {
	ch *webrtc.DataChannel
}

var _ DataChannel = (*webrtcChannel)(nil)

func (c *webrtcChannel) Label() string { return c.ch.Label() }

func (c *webrtcChannel) Open() bool {
	return c.ch.ReadyState() == webrtc.DataChannelStateOpen
}

func (c *webrtcChannel) Send(data []byte) error {
	return c.ch.Send(data)
}

func (c *webrtcChannel) OnOpen(handler func()) {
	c.ch.OnOpen(handler)
}

func (c *webrtcChannel) OnMessage(handler func(data []byte)) {
	c.ch.OnMessage(func(msg webrtc.DataChannelMessage) {
		handler(msg.Data)
	})
}

func (c *webrtcChannel) Close() error {
	return c.ch.Close()
}

func toSessionDescription(desc wire.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	}
}

func toConnectionState(state webrtc.PeerConnectionState) ConnectionState {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return StateNew
	case webrtc.PeerConnectionStateConnecting:
		return StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return StateFailed
	case webrtc.PeerConnectionStateClosed:
		return StateClosed
	}
	return StateNew
}
