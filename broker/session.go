// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"runtime/debug"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/parlorchat/parlor/wire"
)

// outboundBuffer is the per-session send queue depth. A session that
// cannot drain this many pending messages is closed as a slow
// consumer rather than blocking the senders' handlers.
const outboundBuffer = 64

// session is one websocket connection's server-side state. room and
// user are set by handleJoin under the broker mutex and read by the
// connection's own read goroutine afterward.
type session struct {
	broker *Broker
	conn   *websocket.Conn

	outbound  chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	room   string
	user   wire.User
	joined bool
}

func newSession(b *Broker, conn *websocket.Conn) *session {
	return &session{
		broker:   b,
		conn:     conn,
		outbound: make(chan []byte, outboundBuffer),
		closed:   make(chan struct{}),
	}
}

func (s *session) remote() string {
	return s.conn.RemoteAddr().String()
}

// readLoop processes inbound messages in arrival order until the
// socket closes, then runs membership cleanup. A panic in a handler
// is confined to this connection: it is logged and the connection is
// torn down, while the broker continues serving every other socket.
func (s *session) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			s.broker.logger.Error("panic in connection handler",
				"remote", s.remote(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
		s.close()
		s.broker.leave(s)
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.broker.logger.Warn("websocket read error", "remote", s.remote(), "error", err)
			}
			return
		}

		env, err := wire.Decode(data)
		if err != nil {
			s.broker.logger.Warn("undecodable message dropped",
				"remote", s.remote(),
				"error", err,
			)
			continue
		}
		s.broker.dispatch(s, env)
	}
}

// writeLoop is the session's single writer; gorilla connections allow
// at most one concurrent writer, so every outbound frame funnels
// through the queue.
func (s *session) writeLoop() {
	for {
		select {
		case data := <-s.outbound:
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.broker.logger.Debug("websocket write failed", "remote", s.remote(), "error", err)
				s.close()
				return
			}
		case <-s.closed:
			return
		}
	}
}

// send queues an envelope for delivery. Delivery is best-effort: a
// full queue or closed session drops the connection rather than the
// message silently backing up into unrelated handlers.
func (s *session) send(env wire.Envelope) {
	data, err := wire.Encode(env)
	if err != nil {
		s.broker.logger.Error("encoding outbound envelope failed",
			"type", env.Kind(),
			"error", err,
		)
		return
	}

	select {
	case s.outbound <- data:
	case <-s.closed:
	default:
		s.broker.logger.Warn("slow consumer, closing session",
			"remote", s.remote(),
			"room", s.room,
		)
		s.close()
	}
}

// close terminates the socket. Safe to call from any goroutine, any
// number of times.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}
