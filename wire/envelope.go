// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Type discriminates envelope variants on the wire.
type Type string

const (
	TypeJoin         Type = "join"
	TypeOffer        Type = "offer"
	TypeAnswer       Type = "answer"
	TypeICECandidate Type = "ice-candidate"
	TypeBroadcast    Type = "broadcast"
	TypeAck          Type = "ack"
	TypeDeleteMsg    Type = "delete-msg"
	TypeRoomInfo     Type = "room-info"
	TypeUserJoined   Type = "user-joined"
	TypeUserLeft     Type = "user-left"
	TypePing         Type = "ping"
)

// Envelope is the closed union of signaling message variants. The
// unexported marker method restricts implementations to this package.
type Envelope interface {
	// Kind returns the wire type tag for this variant.
	Kind() Type

	envelope()
}

// Signed carries the authentication fields shared by signable
// envelope variants. The signature covers the variant's canonical
// form (see the identity package), never the JSON bytes.
type Signed struct {
	PublicKey string `json:"publicKey,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// SessionDescription is an SDP offer or answer. It mirrors the JSON
// shape of webrtc.SessionDescription ("type" is "offer" or "answer").
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// CandidateInit is a trickled ICE candidate. It mirrors the JSON
// shape of webrtc.ICECandidateInit.
type CandidateInit struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Join announces a user entering a room. Signed: the broker drops
// joins whose signature does not verify against the embedded key.
type Join struct {
	Room string `json:"room"`
	User User   `json:"user"`
	Signed
}

// Offer carries an SDP offer to a single target participant. Signed:
// the receiving client (not the broker) verifies it before answering.
// Sender and Room are stamped by the broker from the originating
// session; clients never trust client-supplied values for them.
type Offer struct {
	Offer  SessionDescription `json:"offer"`
	Target User               `json:"target"`
	Room   string             `json:"room,omitempty"`
	Sender *User              `json:"sender,omitempty"`
	Signed
}

// Answer carries an SDP answer back to the offerer. Unsigned by
// design: an answer is only acted on by a link that already verified
// the corresponding offer.
type Answer struct {
	Answer SessionDescription `json:"answer"`
	Target User               `json:"target"`
	Room   string             `json:"room,omitempty"`
	Sender *User              `json:"sender,omitempty"`
}

// ICECandidate trickles one ICE candidate to a single target. Unsigned
// by design (same trust anchor as Answer).
type ICECandidate struct {
	Candidate CandidateInit `json:"candidate"`
	Target    User          `json:"target"`
	Room      string        `json:"room,omitempty"`
	Sender    *User         `json:"sender,omitempty"`
}

// Broadcast relays a chat message through the broker to every other
// room member. The authentication lives on the embedded ChatMessage,
// not on the envelope.
type Broadcast struct {
	Message ChatMessage `json:"message"`
	Room    string      `json:"room"`
	Sender  string      `json:"sender,omitempty"`
}

// Ack confirms to the originating socket (and only that socket) that
// the broker accepted — and, when persistence is enabled, stored — the
// chat message with the given ID.
type Ack struct {
	ID string `json:"id"`
}

// DeleteMsg asks the broker to fan a deletion notice out to every room
// member except the acting participant.
type DeleteMsg struct {
	MessageID string `json:"messageId"`
	Room      string `json:"room"`
	PublicKey string `json:"publicKey,omitempty"`
}

// RoomInfo is the broker's reply to a successful join. Participants
// excludes the joining user themself.
type RoomInfo struct {
	Room         string `json:"room"`
	Participants []User `json:"participants"`
}

// UserJoined notifies existing room members of a new arrival.
type UserJoined struct {
	Room string `json:"room"`
	User User   `json:"user"`
}

// UserLeft notifies remaining room members of a departure.
type UserLeft struct {
	Room string `json:"room"`
	User User   `json:"user"`
}

// Ping is advisory data-channel housekeeping. Receivers log and
// discard it; it is the only unsigned payload tolerated on a data
// channel.
type Ping struct{}

func (*Join) Kind() Type         { return TypeJoin }
func (*Offer) Kind() Type        { return TypeOffer }
func (*Answer) Kind() Type       { return TypeAnswer }
func (*ICECandidate) Kind() Type { return TypeICECandidate }
func (*Broadcast) Kind() Type    { return TypeBroadcast }
func (*Ack) Kind() Type          { return TypeAck }
func (*DeleteMsg) Kind() Type    { return TypeDeleteMsg }
func (*RoomInfo) Kind() Type     { return TypeRoomInfo }
func (*UserJoined) Kind() Type   { return TypeUserJoined }
func (*UserLeft) Kind() Type     { return TypeUserLeft }
func (*Ping) Kind() Type         { return TypePing }

func (*Join) envelope()         {}
func (*Offer) envelope()        {}
func (*Answer) envelope()       {}
func (*ICECandidate) envelope() {}
func (*Broadcast) envelope()    {}
func (*Ack) envelope()          {}
func (*DeleteMsg) envelope()    {}
func (*RoomInfo) envelope()     {}
func (*UserJoined) envelope()   {}
func (*UserLeft) envelope()     {}
func (*Ping) envelope()         {}

// Decode parses one wire message. The type tag selects the concrete
// variant; a missing or unknown tag is an error so that malformed or
// future message types are rejected at the boundary rather than
// dispatched on a best guess.
func Decode(data []byte) (Envelope, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding envelope header: %w", err)
	}

	var env Envelope
	switch head.Type {
	case TypeJoin:
		env = &Join{}
	case TypeOffer:
		env = &Offer{}
	case TypeAnswer:
		env = &Answer{}
	case TypeICECandidate:
		env = &ICECandidate{}
	case TypeBroadcast:
		env = &Broadcast{}
	case TypeAck:
		env = &Ack{}
	case TypeDeleteMsg:
		env = &DeleteMsg{}
	case TypeRoomInfo:
		env = &RoomInfo{}
	case TypeUserJoined:
		env = &UserJoined{}
	case TypeUserLeft:
		env = &UserLeft{}
	case TypePing:
		env = &Ping{}
	case "":
		return nil, fmt.Errorf("envelope has no type tag")
	default:
		return nil, fmt.Errorf("unknown envelope type %q", head.Type)
	}

	if err := json.Unmarshal(data, env); err != nil {
		return nil, fmt.Errorf("decoding %s envelope: %w", head.Type, err)
	}
	return env, nil
}

// Encode marshals an envelope and splices the type tag into the
// object body. Variant structs deliberately have no Type field, so
// the tag cannot drift from the concrete type.
func Encode(env Envelope) ([]byte, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", env.Kind(), err)
	}
	tag := fmt.Sprintf(`{"type":%q`, env.Kind())
	if bytes.Equal(body, []byte("{}")) {
		return []byte(tag + "}"), nil
	}
	return append([]byte(tag+","), body[1:]...), nil
}
