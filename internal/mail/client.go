package mail

import (
	"fmt"
	"log/slog"
	"strings"
)

// SessionSource supplies the active recipient set for group-address
// resolution. internal/session.Store satisfies this via a thin adapter
// built where the two packages are wired together (the sessionSource type
// in internal/cli), keeping this package decoupled from internal/session.
type SessionSource interface {
	ActiveRecipients() ([]Recipient, error)
}

// Client is the mail subsystem's public contract (spec.md §4.3), layering
// group/broadcast addressing over Store's single-recipient rows.
type Client struct {
	store    *Store
	sessions SessionSource
	nudges   *NudgeStore
}

// SendRequest is the input to Send.
type SendRequest struct {
	From     string
	To       string
	Subject  string
	Body     string
	Type     MsgType
	Priority Priority
	Payload  string
}

// NewClient builds a Client over store, resolving group addresses against
// sessions and recording nudge markers in nudges.
func NewClient(store *Store, sessions SessionSource, nudges *NudgeStore) *Client {
	return &Client{store: store, sessions: sessions, nudges: nudges}
}

// Send delivers req, expanding a group/broadcast address into one row per
// resolved recipient. Returns the inserted ids (spec.md §4.3).
func (c *Client) Send(req SendRequest) ([]int64, error) {
	active, err := c.sessions.ActiveRecipients()
	if err != nil {
		return nil, err
	}
	activeNames := make(map[string]bool, len(active))
	for _, r := range active {
		activeNames[r.AgentName] = true
	}

	var recipients []string
	if IsGroupAddress(req.To, activeNames) {
		recipients = ResolveGroup(req.To, req.From, active)
	} else {
		recipients = []string{req.To}
	}

	var ids []int64
	for _, to := range recipients {
		m := Message{
			From: req.From, To: to, Subject: req.Subject, Body: req.Body,
			Type: req.Type, Priority: req.Priority, Payload: req.Payload,
		}
		id, err := c.store.insertOne(m)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
		if c.nudges != nil && m.IsUrgent() {
			if err := c.nudges.SetPending(to, nudgeFromMessage(m, id)); err != nil {
				// fire-and-forget: nudges are best-effort markers
				slog.Warn("mail: setting nudge marker", "to", to, "messageId", id, "error", err)
			}
		}
	}
	slog.Debug("mail: delivered", "from", req.From, "to", req.To, "recipients", len(recipients))
	return ids, nil
}

func nudgeFromMessage(m Message, id int64) Nudge {
	return Nudge{
		MessageID: id,
		From:      m.From,
		Type:      m.Type,
		Priority:  m.Priority,
		Subject:   m.Subject,
	}
}

// Check returns unread mail for agent and marks it read (spec.md §4.3).
func (c *Client) Check(agent string) ([]Message, error) {
	return c.store.Check(agent)
}

// CheckInject renders the unread messages addressed to agent as a textual
// block suitable for prepending to an LLM prompt, prefixed by the pending
// nudge banner (if any), and drains the nudge marker (spec.md §4.3, §4.8).
func (c *Client) CheckInject(agent string) (string, error) {
	msgs, err := c.store.Check(agent)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if c.nudges != nil {
		if n, ok, err := c.nudges.TakePending(agent); err == nil && ok {
			b.WriteString(renderNudgeBanner(n))
			b.WriteString("\n\n")
		}
	}

	if len(msgs) == 0 {
		if b.Len() == 0 {
			return "", nil
		}
		return b.String(), nil
	}

	b.WriteString(fmt.Sprintf("You have %d unread message(s):\n\n", len(msgs)))
	for _, m := range msgs {
		b.WriteString(fmt.Sprintf("[%s] from %s (%s/%s): %s\n%s\n\n", m.CreatedAt.Format("15:04:05"), m.From, m.Type, m.Priority, m.Subject, m.Body))
	}
	return b.String(), nil
}

func renderNudgeBanner(n Nudge) string {
	return fmt.Sprintf("*** PRIORITY NUDGE *** %s sent a %s message (%s): %s", n.From, n.Type, n.Priority, n.Subject)
}

// List proxies Store.List.
func (c *Client) List(from, to string, unreadOnly bool, limit int) ([]Message, error) {
	return c.store.List(from, to, unreadOnly, limit)
}

// MarkRead proxies Store.MarkRead.
func (c *Client) MarkRead(id int64) (bool, error) {
	return c.store.MarkRead(id)
}

// Reply proxies Store.Reply.
func (c *Client) Reply(id int64, body, from string) (int64, error) {
	return c.store.Reply(id, body, from)
}

// Purge proxies Store.Purge.
func (c *Client) Purge(f PurgeFilter) (int64, error) {
	return c.store.Purge(f)
}
