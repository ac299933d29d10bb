// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/parlorchat/parlor/identity"
	"github.com/parlorchat/parlor/lib/clock"
	"github.com/parlorchat/parlor/wire"
)

const (
	// reconnectCooldown is how long a failed peer link stays on ice
	// before either the recovery pass or a fresh presence event may
	// re-offer to the same peer.
	reconnectCooldown = 5 * time.Second

	// recoveryInterval is the period of the pass that re-establishes
	// links to roster members we should be connected to but are not.
	recoveryInterval = 5 * time.Second

	// channelLabel names the single data channel per link.
	channelLabel = "chat"

	// outboundBuffer bounds queued broker-bound writes.
	outboundBuffer = 64

	// seenWindow bounds the delivered-ID dedup set. Duplicates only
	// arise from the peer-link/relay double delivery of recent
	// messages, so a sliding window of recent IDs suffices.
	seenWindow = 4096
)

var (
	// ErrClosed is returned by operations on a manager that has been
	// shut down or is not connected.
	ErrClosed = errors.New("mesh: manager closed")

	// ErrCooldown is returned by Connect while the reconnect cooldown
	// from the previous disconnect is still running.
	ErrCooldown = errors.New("mesh: reconnect cooldown active")
)

// Config configures a Manager. ServerURL, Room, User, KeyPair, and
// Transport are required unless RelayOnly is set, in which case
// Transport may be nil.
type Config struct {
	// ServerURL is the broker websocket endpoint, e.g.
	// "ws://host:8080/ws".
	ServerURL string

	// Room to join.
	Room string

	// User is the local identity presented to the room. Its
	// PublicKey must match KeyPair.
	User wire.User

	// KeyPair signs the join, outbound offers, and chat messages.
	KeyPair identity.KeyPair

	// Transport creates peer connections. Ignored when RelayOnly.
	Transport Transport

	// RelayOnly disables peer links entirely: messages travel through
	// the broker alone.
	RelayOnly bool

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// OnMessage receives each verified, deduplicated inbound chat
	// message, regardless of whether it arrived over a peer link or
	// the broker relay.
	OnMessage func(wire.ChatMessage)

	// OnAck receives the IDs of own messages the broker accepted.
	OnAck func(messageID string)

	// OnPresence receives the room roster (excluding the local user)
	// after every membership change.
	OnPresence func(participants []wire.User)

	// OnDeleted receives deletion notices fanned out by the broker.
	OnDeleted func(messageID string)

	// OnClosed fires once when the manager shuts down, whether by
	// Close or by losing the broker connection.
	OnClosed func()
}

// Manager maintains a mesh of peer links to every other room member,
// falling back to broker relay for peers without an open link. A
// Manager handles one room membership; after Disconnect (or a lost
// broker connection) the same Manager may Connect again once the
// reconnect cooldown passes.
type Manager struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu             sync.Mutex
	conn           *websocket.Conn
	outbound       chan []byte
	done           chan struct{} // closed when the current connection ends
	connected      bool
	shutdown       bool
	disconnectedAt time.Time
	recovery       *clock.Ticker
	stopRecovery   chan struct{}
	links          map[string]*peerLink // keyed by peer public key
	roster         map[string]wire.User // keyed by peer public key
	cooldownUntil  map[string]time.Time
	seen           *dedupSet // delivered message IDs
}

// dedupSet remembers the most recent message IDs, evicting the oldest
// once the window fills, so a long-lived session's memory does not
// grow with room traffic.
type dedupSet struct {
	limit int
	ids   map[string]struct{}
	order []string
}

func newDedupSet(limit int) *dedupSet {
	return &dedupSet{limit: limit, ids: make(map[string]struct{})}
}

// observe records id and reports whether it was already present.
func (d *dedupSet) observe(id string) bool {
	if _, ok := d.ids[id]; ok {
		return true
	}
	d.ids[id] = struct{}{}
	d.order = append(d.order, id)
	if len(d.order) > d.limit {
		delete(d.ids, d.order[0])
		d.order = d.order[1:]
	}
	return false
}

// New validates the configuration and returns an unconnected Manager.
func New(cfg Config) (*Manager, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("mesh: server URL is required")
	}
	if cfg.Room == "" {
		return nil, fmt.Errorf("mesh: room is required")
	}
	if cfg.User.Name == "" {
		return nil, fmt.Errorf("mesh: user name is required")
	}
	if cfg.User.PublicKey != cfg.KeyPair.PublicKey {
		return nil, fmt.Errorf("mesh: user public key does not match key pair")
	}
	if !cfg.RelayOnly && cfg.Transport == nil {
		return nil, fmt.Errorf("mesh: transport is required unless relay-only")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Manager{
		cfg:           cfg,
		clock:         cfg.Clock,
		logger:        cfg.Logger.With("room", cfg.Room),
		links:         make(map[string]*peerLink),
		roster:        make(map[string]wire.User),
		cooldownUntil: make(map[string]time.Time),
		seen:          newDedupSet(seenWindow),
	}, nil
}

// Connect dials the broker, sends the signed join, and starts the
// read, write, and recovery loops. It returns once the join has been
// queued; room-info and subsequent negotiation happen asynchronously.
//
// Reconnecting within the cooldown after a disconnect returns
// ErrCooldown without dialing; this throttles flap loops where the
// broker drops the connection immediately.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.connected {
		m.mu.Unlock()
		return fmt.Errorf("mesh: already connected")
	}
	if !m.disconnectedAt.IsZero() && m.clock.Now().Before(m.disconnectedAt.Add(reconnectCooldown)) {
		m.mu.Unlock()
		return ErrCooldown
	}
	m.mu.Unlock()

	conn, _, err := m.cfg.Dialer.DialContext(ctx, m.cfg.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", m.cfg.ServerURL, err)
	}

	join := &wire.Join{Room: m.cfg.Room, User: m.cfg.User}
	if err := identity.SignJoin(join, m.cfg.KeyPair); err != nil {
		conn.Close()
		return fmt.Errorf("signing join: %w", err)
	}

	m.mu.Lock()
	m.conn = conn
	m.outbound = make(chan []byte, outboundBuffer)
	m.done = make(chan struct{})
	m.connected = true
	if m.recovery == nil && !m.cfg.RelayOnly {
		m.recovery = m.clock.NewTicker(recoveryInterval)
		m.stopRecovery = make(chan struct{})
		go m.recoveryLoop()
	}
	outbound, done := m.outbound, m.done
	m.mu.Unlock()

	go m.writeLoop(conn, outbound, done)
	go m.readLoop(conn, done)

	if err := m.sendEnvelope(join); err != nil {
		m.Disconnect()
		return err
	}
	return nil
}

// Disconnect tears down every peer link and the broker connection,
// starting the reconnect cooldown. The Manager may Connect again.
func (m *Manager) Disconnect() {
	m.teardown(false)
}

// Close is a terminal Disconnect: the recovery loop stops and any
// further Connect fails with ErrClosed. Idempotent.
func (m *Manager) Close() {
	m.teardown(true)
}

func (m *Manager) teardown(terminal bool) {
	m.mu.Lock()
	if terminal && !m.shutdown {
		m.shutdown = true
		if m.recovery != nil {
			m.recovery.Stop()
			close(m.stopRecovery)
		}
	}
	if !m.connected {
		m.mu.Unlock()
		return
	}
	m.connected = false
	m.disconnectedAt = m.clock.Now()
	conn := m.conn
	close(m.done)
	for key, link := range m.links {
		link.state = linkClosed
		link.teardown()
		delete(m.links, key)
	}
	// The roster belongs to the session; a rejoin repopulates it
	// from a fresh room-info.
	clear(m.roster)
	m.mu.Unlock()

	conn.Close()
	if m.cfg.OnClosed != nil {
		m.cfg.OnClosed()
	}
}

// Send builds, signs, and dispatches one chat message: directly over
// every open peer link, and through the broker for persistence, relay
// to unlinked peers, and the delivery ack. It returns the message as
// sent (state MessageSent) for local echo; the ack arrives later via
// OnAck.
func (m *Manager) Send(content string, attachments []wire.Attachment) (wire.ChatMessage, error) {
	msg := wire.ChatMessage{
		ID:          uuid.NewString(),
		Timestamp:   m.clock.Now().UnixMilli(),
		Sender:      m.cfg.User.Name,
		Content:     content,
		Attachments: attachments,
		PublicKey:   m.cfg.KeyPair.PublicKey,
		State:       wire.StateSent,
	}
	if err := identity.SignMessage(&msg, m.cfg.KeyPair); err != nil {
		return wire.ChatMessage{}, fmt.Errorf("signing message: %w", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return wire.ChatMessage{}, fmt.Errorf("encoding message: %w", err)
	}

	m.mu.Lock()
	m.seen.observe(msg.ID)
	direct := 0
	for key, link := range m.links {
		if !link.open() {
			continue
		}
		if err := link.channel.Send(data); err != nil {
			m.logger.Warn("direct send failed", "peer", abbreviate(key), "error", err)
			continue
		}
		direct++
	}
	m.mu.Unlock()
	m.logger.Debug("message sent", "id", msg.ID, "direct", direct)

	if err := m.sendEnvelope(&wire.Broadcast{Message: msg, Room: m.cfg.Room}); err != nil {
		msg.State = wire.StateFailed
		return msg, err
	}
	return msg, nil
}

// Delete asks the broker to fan out a deletion notice for one of the
// local user's own messages.
func (m *Manager) Delete(messageID string) error {
	return m.sendEnvelope(&wire.DeleteMsg{
		MessageID: messageID,
		Room:      m.cfg.Room,
		PublicKey: m.cfg.KeyPair.PublicKey,
	})
}

// Peers returns the current roster, excluding the local user.
func (m *Manager) Peers() []wire.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rosterLocked()
}

// OpenLinks reports how many peer links currently carry an open data
// channel.
func (m *Manager) OpenLinks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	open := 0
	for _, link := range m.links {
		if link.open() {
			open++
		}
	}
	return open
}

func (m *Manager) rosterLocked() []wire.User {
	users := make([]wire.User, 0, len(m.roster))
	for _, user := range m.roster {
		users = append(users, user)
	}
	return users
}

// sendEnvelope queues one envelope for the broker. It fails fast when
// the manager is not connected or the write queue is full (a full
// queue means the broker connection is stalled).
func (m *Manager) sendEnvelope(env wire.Envelope) error {
	data, err := wire.Encode(env)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", env.Kind(), err)
	}
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return ErrClosed
	}
	outbound, done := m.outbound, m.done
	m.mu.Unlock()

	select {
	case outbound <- data:
		return nil
	case <-done:
		return ErrClosed
	}
}

// writeLoop is the connection's single writer; gorilla connections
// allow at most one concurrent writer.
func (m *Manager) writeLoop(conn *websocket.Conn, outbound <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case data := <-outbound:
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				m.logger.Warn("broker write failed", "error", err)
				m.Disconnect()
				return
			}
		case <-done:
			return
		}
	}
}

func (m *Manager) readLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer m.Disconnect()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				m.logger.Warn("broker connection lost", "error", err)
			}
			return
		}
		env, err := wire.Decode(data)
		if err != nil {
			m.logger.Warn("undecodable broker message", "error", err)
			continue
		}
		m.dispatch(env)
	}
}

func (m *Manager) dispatch(env wire.Envelope) {
	switch msg := env.(type) {
	case *wire.RoomInfo:
		m.handleRoomInfo(msg)
	case *wire.UserJoined:
		m.handleUserJoined(msg)
	case *wire.UserLeft:
		m.handleUserLeft(msg)
	case *wire.Offer:
		m.handleOffer(msg)
	case *wire.Answer:
		m.handleAnswer(msg)
	case *wire.ICECandidate:
		m.handleCandidate(msg)
	case *wire.Broadcast:
		m.deliver(msg.Message)
	case *wire.Ack:
		if m.cfg.OnAck != nil {
			m.cfg.OnAck(msg.ID)
		}
	case *wire.DeleteMsg:
		if m.cfg.OnDeleted != nil {
			m.cfg.OnDeleted(msg.MessageID)
		}
	default:
		m.logger.Warn("unexpected broker message", "type", env.Kind())
	}
}

// handleRoomInfo seeds the roster and, as the newest arrival, offers
// to every existing participant.
func (m *Manager) handleRoomInfo(info *wire.RoomInfo) {
	m.mu.Lock()
	for _, user := range info.Participants {
		m.roster[user.PublicKey] = user
	}
	roster := m.rosterLocked()
	m.mu.Unlock()

	m.logger.Info("joined room", "participants", len(info.Participants))
	m.notifyPresence(roster)

	if m.cfg.RelayOnly {
		return
	}
	for _, user := range info.Participants {
		if err := m.initiate(user); err != nil {
			m.logger.Warn("offer failed", "peer", user.Name, "error", err)
		}
	}
}

// handleUserJoined adds the arrival to the roster and offers to it.
// The newcomer offers too, from its room-info; the glare rule
// converges the simultaneous offers onto one link.
func (m *Manager) handleUserJoined(msg *wire.UserJoined) {
	m.mu.Lock()
	m.roster[msg.User.PublicKey] = msg.User
	roster := m.rosterLocked()
	m.mu.Unlock()
	m.logger.Info("user joined", "user", msg.User.Name)
	m.notifyPresence(roster)

	if m.cfg.RelayOnly {
		return
	}
	if err := m.initiate(msg.User); err != nil {
		m.logger.Warn("offer failed", "peer", msg.User.Name, "error", err)
	}
}

func (m *Manager) handleUserLeft(msg *wire.UserLeft) {
	m.mu.Lock()
	delete(m.roster, msg.User.PublicKey)
	if link, ok := m.links[msg.User.PublicKey]; ok {
		link.state = linkClosed
		link.teardown()
		delete(m.links, msg.User.PublicKey)
	}
	roster := m.rosterLocked()
	m.mu.Unlock()
	m.logger.Info("user left", "user", msg.User.Name)
	m.notifyPresence(roster)
}

func (m *Manager) notifyPresence(roster []wire.User) {
	if m.cfg.OnPresence != nil {
		m.cfg.OnPresence(roster)
	}
}

// initiate creates a peer connection, sends a signed offer, and
// registers the link in have-local-offer state. Skipped without error
// when a usable link already exists or the peer is in reconnect
// cooldown.
func (m *Manager) initiate(peer wire.User) error {
	m.mu.Lock()
	if link, ok := m.links[peer.PublicKey]; ok && link.state != linkFailed && link.state != linkClosed {
		m.mu.Unlock()
		return nil
	}
	if until, ok := m.cooldownUntil[peer.PublicKey]; ok && m.clock.Now().Before(until) {
		m.mu.Unlock()
		m.logger.Debug("peer in cooldown", "peer", peer.Name)
		return nil
	}
	// Clear out a failed predecessor before replacing it.
	if link, ok := m.links[peer.PublicKey]; ok {
		link.teardown()
		delete(m.links, peer.PublicKey)
	}
	m.mu.Unlock()

	pc, err := m.cfg.Transport.NewPeerConnection()
	if err != nil {
		return fmt.Errorf("creating connection to %s: %w", peer.Name, err)
	}
	link := &peerLink{user: peer, pc: pc, state: linkNew, initiator: true}
	m.wireConnection(link)

	channel, err := pc.CreateDataChannel(channelLabel)
	if err != nil {
		pc.Close()
		return fmt.Errorf("creating channel to %s: %w", peer.Name, err)
	}
	m.wireChannel(link, channel)

	offer, err := pc.CreateOffer()
	if err != nil {
		pc.Close()
		return fmt.Errorf("creating offer to %s: %w", peer.Name, err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return fmt.Errorf("applying local offer for %s: %w", peer.Name, err)
	}

	// Room is part of the signed canonical form; the broker re-stamps
	// it with the same value in flight.
	env := &wire.Offer{Offer: offer, Target: peer, Room: m.cfg.Room}
	if err := identity.SignOffer(env, m.cfg.KeyPair); err != nil {
		pc.Close()
		return fmt.Errorf("signing offer to %s: %w", peer.Name, err)
	}

	m.mu.Lock()
	link.state = linkHaveLocalOffer
	m.links[peer.PublicKey] = link
	m.mu.Unlock()

	if err := m.sendEnvelope(env); err != nil {
		m.failLink(peer.PublicKey)
		return err
	}
	m.logger.Debug("offer sent", "peer", peer.Name)
	return nil
}

// handleOffer answers a verified remote offer. Glare — both sides
// offering at once — resolves by public key order: the side with the
// lexicographically smaller key keeps its outstanding offer and drops
// the incoming one; the larger side abandons its own and answers.
func (m *Manager) handleOffer(offer *wire.Offer) {
	if m.cfg.RelayOnly {
		return
	}
	if offer.Sender == nil || offer.Sender.PublicKey == "" {
		m.logger.Warn("offer without sender")
		return
	}
	sender := *offer.Sender
	if offer.PublicKey != sender.PublicKey || !identity.VerifyOffer(offer) {
		m.logger.Warn("dropping offer with bad signature", "peer", sender.Name)
		return
	}

	m.mu.Lock()
	if existing, ok := m.links[sender.PublicKey]; ok {
		switch existing.state {
		case linkHaveLocalOffer:
			if m.cfg.User.PublicKey < sender.PublicKey {
				// Our offer wins; the peer will answer it.
				m.mu.Unlock()
				m.logger.Debug("glare: keeping local offer", "peer", sender.Name)
				return
			}
			m.logger.Debug("glare: yielding to remote offer", "peer", sender.Name)
			existing.state = linkClosed
			existing.teardown()
			delete(m.links, sender.PublicKey)
		case linkConnected, linkHaveRemoteOffer:
			// A fresh offer over a live link means the peer restarted
			// its side. Replace ours.
			existing.state = linkClosed
			existing.teardown()
			delete(m.links, sender.PublicKey)
		default:
			existing.teardown()
			delete(m.links, sender.PublicKey)
		}
	}
	m.roster[sender.PublicKey] = sender
	m.mu.Unlock()

	pc, err := m.cfg.Transport.NewPeerConnection()
	if err != nil {
		m.logger.Warn("answer setup failed", "peer", sender.Name, "error", err)
		return
	}
	link := &peerLink{user: sender, pc: pc, state: linkHaveRemoteOffer}
	m.wireConnection(link)
	pc.OnDataChannel(func(channel DataChannel) {
		m.wireChannel(link, channel)
	})

	if err := pc.SetRemoteDescription(offer.Offer); err != nil {
		m.logger.Warn("applying remote offer failed", "peer", sender.Name, "error", err)
		pc.Close()
		return
	}
	answer, err := pc.CreateAnswer()
	if err != nil {
		m.logger.Warn("creating answer failed", "peer", sender.Name, "error", err)
		pc.Close()
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		m.logger.Warn("applying local answer failed", "peer", sender.Name, "error", err)
		pc.Close()
		return
	}

	m.mu.Lock()
	link.remoteDescribed = true
	pending := link.pendingCandidates
	link.pendingCandidates = nil
	m.links[sender.PublicKey] = link
	m.mu.Unlock()
	for _, candidate := range pending {
		if err := pc.AddICECandidate(candidate); err != nil {
			m.logger.Warn("buffered candidate rejected", "peer", sender.Name, "error", err)
		}
	}

	if err := m.sendEnvelope(&wire.Answer{Answer: answer, Target: sender}); err != nil {
		m.logger.Warn("sending answer failed", "peer", sender.Name, "error", err)
		m.failLink(sender.PublicKey)
		return
	}
	m.logger.Debug("answer sent", "peer", sender.Name)
}

func (m *Manager) handleAnswer(answer *wire.Answer) {
	if answer.Sender == nil {
		m.logger.Warn("answer without sender")
		return
	}
	key := answer.Sender.PublicKey

	m.mu.Lock()
	link, ok := m.links[key]
	if !ok || link.state != linkHaveLocalOffer {
		m.mu.Unlock()
		m.logger.Debug("unsolicited answer dropped", "peer", answer.Sender.Name)
		return
	}
	m.mu.Unlock()

	if err := link.pc.SetRemoteDescription(answer.Answer); err != nil {
		m.logger.Warn("applying answer failed", "peer", answer.Sender.Name, "error", err)
		m.failLink(key)
		return
	}

	m.mu.Lock()
	link.remoteDescribed = true
	pending := link.pendingCandidates
	link.pendingCandidates = nil
	m.mu.Unlock()
	for _, candidate := range pending {
		if err := link.pc.AddICECandidate(candidate); err != nil {
			m.logger.Warn("buffered candidate rejected", "peer", answer.Sender.Name, "error", err)
		}
	}
}

func (m *Manager) handleCandidate(msg *wire.ICECandidate) {
	if msg.Sender == nil {
		return
	}
	key := msg.Sender.PublicKey

	m.mu.Lock()
	link, ok := m.links[key]
	if !ok {
		m.mu.Unlock()
		m.logger.Debug("candidate for unknown link dropped", "peer", msg.Sender.Name)
		return
	}
	if !link.remoteDescribed {
		link.pendingCandidates = append(link.pendingCandidates, msg.Candidate)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if err := link.pc.AddICECandidate(msg.Candidate); err != nil {
		m.logger.Warn("candidate rejected", "peer", msg.Sender.Name, "error", err)
	}
}

// wireConnection attaches the per-connection callbacks: trickled ICE
// out to the peer, and state observation for failure handling. A
// failure tears down only this link; the rest of the mesh and the
// broker connection are untouched.
func (m *Manager) wireConnection(link *peerLink) {
	peer := link.user
	link.pc.OnICECandidate(func(candidate wire.CandidateInit) {
		err := m.sendEnvelope(&wire.ICECandidate{Candidate: candidate, Target: peer})
		if err != nil && !errors.Is(err, ErrClosed) {
			m.logger.Warn("sending candidate failed", "peer", peer.Name, "error", err)
		}
	})
	link.pc.OnConnectionStateChange(func(state ConnectionState) {
		m.logger.Debug("link state", "peer", peer.Name, "state", state)
		switch state {
		case StateFailed, StateDisconnected:
			m.failLink(peer.PublicKey)
		}
	})
}

func (m *Manager) wireChannel(link *peerLink, channel DataChannel) {
	peer := link.user
	channel.OnOpen(func() {
		m.mu.Lock()
		link.channel = channel
		link.state = linkConnected
		m.mu.Unlock()
		m.logger.Info("peer link open", "peer", peer.Name)
	})
	channel.OnMessage(func(data []byte) {
		m.handleChannelData(peer, data)
	})
}

// handleChannelData processes one inbound data-channel payload. Pings
// are housekeeping and dropped after a debug log; everything else must
// be a signed chat message or it is discarded.
func (m *Manager) handleChannelData(peer wire.User, data []byte) {
	var probe struct {
		Type      string `json:"type"`
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		m.logger.Warn("undecodable peer payload", "peer", peer.Name, "error", err)
		return
	}
	if probe.Type == string(wire.TypePing) {
		m.logger.Debug("peer ping", "peer", peer.Name)
		return
	}
	if probe.Signature == "" {
		m.logger.Warn("unsigned peer payload dropped", "peer", peer.Name)
		return
	}
	var msg wire.ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		m.logger.Warn("undecodable peer message", "peer", peer.Name, "error", err)
		return
	}
	m.deliver(msg)
}

// deliver verifies, deduplicates, and surfaces one inbound chat
// message. Messages arrive up to twice (peer link and broker relay);
// the ID set collapses them to one callback.
func (m *Manager) deliver(msg wire.ChatMessage) {
	if msg.ID == "" {
		m.logger.Warn("message without ID dropped")
		return
	}
	if !identity.VerifyMessage(&msg) {
		m.logger.Warn("dropping message with bad signature", "id", msg.ID, "sender", msg.Sender)
		return
	}

	m.mu.Lock()
	dup := m.seen.observe(msg.ID)
	m.mu.Unlock()
	if dup {
		return
	}

	if m.cfg.OnMessage != nil {
		m.cfg.OnMessage(msg)
	}
}

// failLink marks a link failed, tears it down, and starts the
// reconnect cooldown. The link entry stays in the table so the
// recovery pass sees the failure.
func (m *Manager) failLink(publicKey string) {
	m.mu.Lock()
	link, ok := m.links[publicKey]
	if !ok || link.state == linkClosed || link.state == linkFailed {
		m.mu.Unlock()
		return
	}
	link.state = linkFailed
	link.teardown()
	m.cooldownUntil[publicKey] = m.clock.Now().Add(reconnectCooldown)
	m.mu.Unlock()
	m.logger.Warn("peer link failed", "peer", link.user.Name)
}

// recoveryLoop periodically re-offers to roster members without a
// live link. Both sides of a dead link may re-offer at once; the
// glare rule converges them onto one connection. The loop spans
// reconnects and exits only at Close.
func (m *Manager) recoveryLoop() {
	for {
		select {
		case <-m.recovery.C:
			m.recoverLinks()
		case <-m.stopRecovery:
			return
		}
	}
}

func (m *Manager) recoverLinks() {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return
	}
	var stale []wire.User
	for key, user := range m.roster {
		link, ok := m.links[key]
		if ok && link.state != linkFailed && link.state != linkClosed {
			continue
		}
		if until, ok := m.cooldownUntil[key]; ok && m.clock.Now().Before(until) {
			continue
		}
		stale = append(stale, user)
	}
	m.mu.Unlock()

	for _, user := range stale {
		m.logger.Info("recovering peer link", "peer", user.Name)
		if err := m.initiate(user); err != nil {
			m.logger.Warn("recovery offer failed", "peer", user.Name, "error", err)
		}
	}
}

// abbreviate shortens a public key for log output.
func abbreviate(publicKey string) string {
	if len(publicKey) <= 12 {
		return publicKey
	}
	return publicKey[:12]
}
