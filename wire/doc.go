// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the shared data model for the signaling
// protocol: the identity types ([User], [ChatMessage]) and the closed
// set of envelope variants exchanged between clients and the room
// broker.
//
// Every message on the signaling socket (and on peer data channels) is
// a JSON object with a "type" field selecting one envelope variant.
// [Decode] probes the type tag and unmarshals into the matching
// concrete struct; an unrecognized tag is an error, so the union is
// closed — adding a variant requires touching the Decode switch.
// [Encode] is the inverse and splices the type tag into the variant's
// JSON body, so variant structs do not carry a redundant type field.
//
// Client-originated variants that cross a trust boundary ([Join],
// [Offer], and the [ChatMessage] inside a [Broadcast]) embed [Signed]
// and are authenticated by the identity package. Server-originated
// variants ([RoomInfo], [UserJoined], [UserLeft], [Ack]) are unsigned:
// the client trusts them by virtue of the socket they arrived on.
//
// The SDP and ICE payload types ([SessionDescription],
// [CandidateInit]) mirror the pion/webrtc JSON shapes without
// importing pion, keeping the broker free of WebRTC dependencies.
package wire
