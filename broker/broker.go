// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/parlorchat/parlor/identity"
	"github.com/parlorchat/parlor/wire"
)

// MessageStore is the persistence collaborator consulted for accepted
// chat broadcasts. A nil store makes the broker a pure relay.
type MessageStore interface {
	// Persist stores an accepted chat broadcast. Must be idempotent
	// on the message ID.
	Persist(ctx context.Context, room string, msg wire.ChatMessage) error

	// DeleteMessage removes a stored message authored by publicKey.
	DeleteMessage(ctx context.Context, room, messageID, publicKey string) error

	// IsBlocked reports whether a sender public key is blocked.
	IsBlocked(ctx context.Context, publicKey string) (bool, error)
}

// Broker routes signaling traffic between room participants. Construct
// with New and serve its Handler; every exported method is safe for
// concurrent use.
type Broker struct {
	store  MessageStore
	logger *slog.Logger

	upgrader websocket.Upgrader

	// mu guards rooms and every room's member map. Each inbound
	// message's registry mutations happen under one acquisition, so
	// a handler observes and produces a consistent registry state.
	mu    sync.Mutex
	rooms map[string]*room
}

// New creates a broker. store may be nil to disable persistence;
// logger is required.
func New(store MessageStore, logger *slog.Logger) *Broker {
	return &Broker{
		store:  store,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from arbitrary origins; identity
			// comes from message signatures, not the Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		rooms: make(map[string]*room),
	}
}

// Handler returns the websocket endpoint. Each upgraded connection is
// served until its socket closes.
func (b *Broker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error response.
			b.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		sess := newSession(b, conn)
		go sess.writeLoop()
		sess.readLoop()
	})
}

// room owns one room's membership. All methods require b.mu held; the
// registry has exactly one lock so room state and the rooms map move
// together.
type room struct {
	name    string
	members map[string]*session // keyed by participant public key
}

// dispatch routes one decoded envelope from a session. Envelope types
// that only the server may originate are dropped if a client sends
// them.
func (b *Broker) dispatch(sess *session, env wire.Envelope) {
	switch env := env.(type) {
	case *wire.Join:
		b.handleJoin(sess, env)
	case *wire.Offer:
		b.handleOffer(sess, env)
	case *wire.Answer:
		b.handleAnswer(sess, env)
	case *wire.ICECandidate:
		b.handleICECandidate(sess, env)
	case *wire.Broadcast:
		b.handleBroadcast(sess, env)
	case *wire.DeleteMsg:
		b.handleDelete(sess, env)
	case *wire.Ping:
		b.logger.Debug("ping received on signaling socket", "remote", sess.remote())
	default:
		b.logger.Warn("client sent server-originated envelope type",
			"type", env.Kind(),
			"remote", sess.remote(),
		)
	}
}

// handleJoin verifies the signed join, registers the session as a room
// member, replies with room-info (participants excluding the joiner),
// and announces user-joined to everyone else.
func (b *Broker) handleJoin(sess *session, join *wire.Join) {
	if join.Room == "" || join.User.PublicKey == "" {
		b.logger.Warn("join missing room or public key", "remote", sess.remote())
		return
	}
	if join.User.PublicKey != join.PublicKey && join.PublicKey != "" {
		b.logger.Warn("join signed with a key other than the announced identity",
			"remote", sess.remote())
		return
	}
	if !identity.VerifyJoin(join) {
		b.logger.Warn("join signature verification failed",
			"room", join.Room,
			"remote", sess.remote(),
		)
		return
	}

	b.mu.Lock()
	// A second join on the same socket moves the session: the old
	// member slot must be released first, or the previous room keeps a
	// ghost participant that can never leave.
	var vacated []*session
	var vacatedRoom string
	var vacatedUser wire.User
	if sess.joined && (sess.room != join.Room || sess.user.PublicKey != join.User.PublicKey) {
		if old, ok := b.rooms[sess.room]; ok && old.members[sess.user.PublicKey] == sess {
			delete(old.members, sess.user.PublicKey)
			vacatedRoom = sess.room
			vacatedUser = sess.user
			if len(old.members) == 0 {
				delete(b.rooms, sess.room)
			} else {
				for _, member := range old.members {
					vacated = append(vacated, member)
				}
			}
		}
	}

	rm, ok := b.rooms[join.Room]
	if !ok {
		rm = &room{name: join.Room, members: make(map[string]*session)}
		b.rooms[join.Room] = rm
	}

	// A rejoin with the same key replaces the stale session; its
	// eventual close must not evict the new member (see leave).
	rm.members[join.User.PublicKey] = sess
	sess.room = join.Room
	sess.user = join.User
	sess.joined = true

	participants := make([]wire.User, 0, len(rm.members)-1)
	others := make([]*session, 0, len(rm.members)-1)
	for key, member := range rm.members {
		if key == join.User.PublicKey {
			continue
		}
		participants = append(participants, member.user)
		others = append(others, member)
	}
	b.mu.Unlock()

	for _, member := range vacated {
		member.send(&wire.UserLeft{Room: vacatedRoom, User: vacatedUser})
	}
	if vacatedRoom != "" {
		b.logger.Info("participant moved rooms",
			"from", vacatedRoom,
			"to", join.Room,
			"name", vacatedUser.Name,
		)
	}

	sess.send(&wire.RoomInfo{Room: join.Room, Participants: participants})
	for _, member := range others {
		member.send(&wire.UserJoined{Room: join.Room, User: join.User})
	}

	b.logger.Info("participant joined",
		"room", join.Room,
		"name", join.User.Name,
		"participants", len(participants)+1,
	)
}

// leave removes a closed session from its room, deletes the room when
// it empties, and otherwise announces user-left to the remaining
// members.
func (b *Broker) leave(sess *session) {
	if !sess.joined {
		return
	}

	b.mu.Lock()
	rm, ok := b.rooms[sess.room]
	if !ok || rm.members[sess.user.PublicKey] != sess {
		// The member slot was taken over by a rejoin; this stale
		// session no longer owns it.
		b.mu.Unlock()
		return
	}
	delete(rm.members, sess.user.PublicKey)

	if len(rm.members) == 0 {
		delete(b.rooms, sess.room)
		b.mu.Unlock()
		b.logger.Info("room deleted", "room", sess.room)
		return
	}

	remaining := make([]*session, 0, len(rm.members))
	for _, member := range rm.members {
		remaining = append(remaining, member)
	}
	b.mu.Unlock()

	for _, member := range remaining {
		member.send(&wire.UserLeft{Room: sess.room, User: sess.user})
	}
	b.logger.Info("participant left", "room", sess.room, "name", sess.user.Name)
}

// target finds the session for a participant public key in the
// sender's room. Returns nil when the sender never joined or the
// target is unknown (a routing failure, dropped by callers).
func (b *Broker) target(sess *session, publicKey string) *session {
	if !sess.joined {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	rm, ok := b.rooms[sess.room]
	if !ok {
		return nil
	}
	return rm.members[publicKey]
}

// handleOffer forwards an SDP offer to its target, stamping the
// sender identity and room from the session. The broker does not
// verify offer signatures — the receiving client does, against the
// stamped sender.
func (b *Broker) handleOffer(sess *session, offer *wire.Offer) {
	peer := b.target(sess, offer.Target.PublicKey)
	if peer == nil {
		b.logger.Warn("offer for unknown target",
			"room", sess.room,
			"remote", sess.remote(),
		)
		return
	}
	sender := sess.user
	offer.Sender = &sender
	offer.Room = sess.room
	peer.send(offer)
}

// handleAnswer forwards an SDP answer to its target. Unsigned by
// design: answers are anchored to an already-verified offer exchange.
func (b *Broker) handleAnswer(sess *session, answer *wire.Answer) {
	peer := b.target(sess, answer.Target.PublicKey)
	if peer == nil {
		b.logger.Warn("answer for unknown target",
			"room", sess.room,
			"remote", sess.remote(),
		)
		return
	}
	sender := sess.user
	answer.Sender = &sender
	answer.Room = sess.room
	peer.send(answer)
}

// handleICECandidate forwards a trickled ICE candidate to its target.
func (b *Broker) handleICECandidate(sess *session, candidate *wire.ICECandidate) {
	peer := b.target(sess, candidate.Target.PublicKey)
	if peer == nil {
		b.logger.Warn("ice candidate for unknown target",
			"room", sess.room,
			"remote", sess.remote(),
		)
		return
	}
	sender := sess.user
	candidate.Sender = &sender
	candidate.Room = sess.room
	peer.send(candidate)
}

// handleBroadcast verifies, persists, and relays a chat broadcast.
// The originating socket receives an ack once persistence completes;
// everyone else in the room receives the broadcast itself. Blocked
// senders are still relayed live but never persisted and never acked;
// see the room history behavior notes in DESIGN.md.
func (b *Broker) handleBroadcast(sess *session, broadcast *wire.Broadcast) {
	if !sess.joined {
		b.logger.Warn("broadcast before join", "remote", sess.remote())
		return
	}
	if broadcast.Message.ID == "" {
		b.logger.Warn("broadcast without message id", "room", sess.room)
		return
	}
	if !identity.VerifyMessage(&broadcast.Message) {
		b.logger.Warn("broadcast signature verification failed",
			"room", sess.room,
			"message_id", broadcast.Message.ID,
			"remote", sess.remote(),
		)
		return
	}

	persisted := b.store == nil
	if b.store != nil {
		ctx := context.Background()
		blocked, err := b.store.IsBlocked(ctx, broadcast.Message.PublicKey)
		if err != nil {
			b.logger.Error("block list check failed",
				"message_id", broadcast.Message.ID,
				"error", err,
			)
		}
		if !blocked && err == nil {
			if err := b.store.Persist(ctx, sess.room, broadcast.Message); err != nil {
				b.logger.Error("persisting broadcast failed",
					"room", sess.room,
					"message_id", broadcast.Message.ID,
					"error", err,
				)
			} else {
				persisted = true
			}
		}
	}

	b.mu.Lock()
	var others []*session
	if rm, ok := b.rooms[sess.room]; ok {
		for key, member := range rm.members {
			if key != sess.user.PublicKey {
				others = append(others, member)
			}
		}
	}
	b.mu.Unlock()

	broadcast.Room = sess.room
	broadcast.Sender = sess.user.Name
	for _, member := range others {
		member.send(broadcast)
	}
	if persisted {
		sess.send(&wire.Ack{ID: broadcast.Message.ID})
	}
}

// handleDelete relays a deletion notice to every room member except
// the acting participant, and retracts the stored copy.
func (b *Broker) handleDelete(sess *session, deletion *wire.DeleteMsg) {
	if !sess.joined || deletion.MessageID == "" {
		b.logger.Warn("invalid delete-msg", "remote", sess.remote())
		return
	}

	if b.store != nil {
		err := b.store.DeleteMessage(context.Background(), sess.room, deletion.MessageID, sess.user.PublicKey)
		if err != nil {
			b.logger.Error("deleting stored message failed",
				"room", sess.room,
				"message_id", deletion.MessageID,
				"error", err,
			)
		}
	}

	b.mu.Lock()
	var others []*session
	if rm, ok := b.rooms[sess.room]; ok {
		for key, member := range rm.members {
			if key != sess.user.PublicKey {
				others = append(others, member)
			}
		}
	}
	b.mu.Unlock()

	deletion.Room = sess.room
	deletion.PublicKey = sess.user.PublicKey
	for _, member := range others {
		member.send(deletion)
	}
}

// RoomCount reports the number of live rooms. Exposed for operational
// visibility and tests.
func (b *Broker) RoomCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms)
}

// Participants returns the current participant list of a room, or nil
// if the room does not exist.
func (b *Broker) Participants(roomName string) []wire.User {
	b.mu.Lock()
	defer b.mu.Unlock()

	rm, ok := b.rooms[roomName]
	if !ok {
		return nil
	}
	users := make([]wire.User, 0, len(rm.members))
	for _, member := range rm.members {
		users = append(users, member.user)
	}
	return users
}
