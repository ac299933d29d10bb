// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/parlorchat/parlor/wire"
)

// chatSender is the slice of the mesh manager the model needs.
// Narrowed to an interface so model tests run without a broker.
type chatSender interface {
	Send(content string, attachments []wire.Attachment) (wire.ChatMessage, error)
	Delete(messageID string) error
	OpenLinks() int
}

// Messages delivered into the bubbletea loop by mesh callbacks.
type (
	chatReceivedMsg struct{ message wire.ChatMessage }
	ackReceivedMsg  struct{ messageID string }
	presenceMsg     struct{ participants []wire.User }
	deletedMsg      struct{ messageID string }
	meshClosedMsg   struct{}
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	peerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	senderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	ownStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("78"))
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	stateStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	noticeStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("241"))
)

type model struct {
	room string
	user wire.User
	mesh chatSender

	input    textinput.Model
	messages []wire.ChatMessage
	peers    []wire.User
	notice   string
	width    int
	height   int
	closed   bool
}

func newModel(room string, user wire.User, mesh chatSender) model {
	input := textinput.New()
	input.Placeholder = "message (/delete <id> retracts, /quit exits)"
	input.Focus()
	input.CharLimit = 2000
	return model{
		room:  room,
		user:  user,
		mesh:  mesh,
		input: input,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		return m, nil

	case chatReceivedMsg:
		m.insert(msg.message)
		return m, nil

	case ackReceivedMsg:
		for i := range m.messages {
			if m.messages[i].ID == msg.messageID {
				m.messages[i].State = wire.StateAcknowledged
			}
		}
		return m, nil

	case presenceMsg:
		m.peers = msg.participants
		return m, nil

	case deletedMsg:
		for i, message := range m.messages {
			if message.ID == msg.messageID {
				m.messages = append(m.messages[:i], m.messages[i+1:]...)
				break
			}
		}
		return m, nil

	case meshClosedMsg:
		m.closed = true
		m.notice = "connection lost"
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit handles enter: /quit exits, a /delete command retracts one of
// the user's own messages, anything else is sent to the room.
func (m model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()

	if text == "/quit" {
		return m, tea.Quit
	}

	if id, ok := strings.CutPrefix(text, "/delete "); ok {
		id = strings.TrimSpace(id)
		if err := m.mesh.Delete(id); err != nil {
			m.notice = fmt.Sprintf("delete failed: %v", err)
			return m, nil
		}
		for i, message := range m.messages {
			if message.ID == id {
				m.messages = append(m.messages[:i], m.messages[i+1:]...)
				break
			}
		}
		return m, nil
	}

	sent, err := m.mesh.Send(text, nil)
	if err != nil {
		m.notice = fmt.Sprintf("send failed: %v", err)
		return m, nil
	}
	m.notice = ""
	m.insert(sent)
	return m, nil
}

// insert adds a message keeping the list ordered by timestamp, ties
// broken by ID so every participant renders the same order.
func (m *model) insert(message wire.ChatMessage) {
	m.messages = append(m.messages, message)
	sort.SliceStable(m.messages, func(i, j int) bool {
		if m.messages[i].Timestamp != m.messages[j].Timestamp {
			return m.messages[i].Timestamp < m.messages[j].Timestamp
		}
		return m.messages[i].ID < m.messages[j].ID
	})
}

func (m model) View() string {
	var b strings.Builder

	links := 0
	if !m.closed {
		links = m.mesh.OpenLinks()
	}
	header := headerStyle.Render("#"+m.room) + peerStyle.Render(
		fmt.Sprintf("  %d peer(s), %d direct link(s)", len(m.peers), links))
	b.WriteString(header)
	b.WriteString("\n\n")

	visible := m.messages
	if limit := m.height - 6; limit > 0 && len(visible) > limit {
		visible = visible[len(visible)-limit:]
	}
	for _, message := range visible {
		b.WriteString(m.renderMessage(message))
		b.WriteByte('\n')
	}
	if len(m.messages) == 0 {
		b.WriteString(noticeStyle.Render("no messages yet"))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	if m.notice != "" {
		b.WriteString(stateStyle.Render(m.notice))
		b.WriteByte('\n')
	}
	b.WriteString(m.input.View())
	return b.String()
}

func (m model) renderMessage(message wire.ChatMessage) string {
	stamp := time.UnixMilli(message.Timestamp).Format("15:04")
	nameStyle := senderStyle
	if message.PublicKey == m.user.PublicKey {
		nameStyle = ownStyle
	}
	line := fmt.Sprintf("%s %s %s",
		timeStyle.Render(stamp),
		nameStyle.Render(message.Sender+":"),
		message.Content,
	)
	switch message.State {
	case wire.StateSent:
		line += stateStyle.Render(" ∙")
	case wire.StateFailed:
		line += stateStyle.Render(" (failed)")
	}
	for _, attachment := range message.Attachments {
		line += noticeStyle.Render(" [" + attachment.Name + "]")
	}
	return line
}
