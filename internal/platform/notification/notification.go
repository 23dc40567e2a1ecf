// Package notification delivers schedule changes to staff over email and SMS.
// Rendering happens through a small {{key}} template engine; delivery runs
// through pluggable senders, and the queue in this package moves sending off
// the request path.
package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type is the channel used to deliver a notification.
type Type string

const (
	TypeEmail Type = "email"
	TypeSMS   Type = "sms"
)

// Status tracks a notification through its delivery lifecycle.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Notification is a single outbound message.
type Notification struct {
	ID           string            `json:"id"`
	Type         Type              `json:"type"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject,omitempty"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Status       Status            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Manager renders, sends, and keeps a record of notifications. The record is
// in-memory and insertion-ordered; it exists for inspection and retry, not as
// a durable outbox.
type Manager struct {
	email     EmailSender
	sms       SMSSender
	templates *TemplateEngine

	mu     sync.Mutex
	byID   map[string]*Notification
	outbox []*Notification
}

// NewManager constructs a Manager.
func NewManager(email EmailSender, sms SMSSender, tpl *TemplateEngine) *Manager {
	return &Manager{
		email:     email,
		sms:       sms,
		templates: tpl,
		byID:      make(map[string]*Notification),
	}
}

// Send dispatches n through the channel named by its Type, assigns an id and
// timestamps, and records the outcome. A delivery failure is both recorded on
// n and returned.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now().UTC()
	n.Status = StatusPending

	err := m.deliver(ctx, n)

	m.mu.Lock()
	markOutcome(n, err)
	if _, seen := m.byID[n.ID]; !seen {
		m.outbox = append(m.outbox, n)
	}
	m.byID[n.ID] = n
	m.mu.Unlock()

	return err
}

func (m *Manager) deliver(ctx context.Context, n *Notification) error {
	switch n.Type {
	case TypeEmail:
		return m.email.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	case TypeSMS:
		return m.sms.SendSMS(ctx, n.Recipient, n.Body)
	default:
		return fmt.Errorf("unsupported notification type: %s", n.Type)
	}
}

// markOutcome is called with the manager lock held once n is shared.
func markOutcome(n *Notification, err error) {
	if err != nil {
		n.Status = StatusFailed
		n.Error = err.Error()
		return
	}
	now := time.Now().UTC()
	n.Status = StatusSent
	n.SentAt = &now
	n.Error = ""
}

// SendFromTemplate renders the named template and sends the result. An empty
// typ falls back to the channel declared on the template; an explicit typ
// overrides it, which is how urgent pages go out by SMS from an email-shaped
// template.
func (m *Manager) SendFromTemplate(ctx context.Context, typ Type, templateID string, data map[string]string, recipient string) (*Notification, error) {
	tpl, ok := m.templates.Template(templateID)
	if !ok {
		return nil, fmt.Errorf("template %q not found", templateID)
	}
	if typ == "" {
		typ = tpl.Type
	}

	subject, body := tpl.fill(data)
	n := &Notification{
		Type:         typ,
		Recipient:    recipient,
		Subject:      subject,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
	}
	return n, m.Send(ctx, n)
}

// Get retrieves a notification by id.
func (m *Manager) Get(_ context.Context, id string) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	return n, nil
}

// ListByRecipient returns up to limit notifications addressed to recipient,
// newest first.
func (m *Manager) ListByRecipient(_ context.Context, recipient string, limit int) ([]*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Notification
	for i := len(m.outbox) - 1; i >= 0 && len(out) < limit; i-- {
		if m.outbox[i].Recipient == recipient {
			out = append(out, m.outbox[i])
		}
	}
	return out, nil
}

// Retry re-sends a notification that previously failed. Anything not in
// failed status is rejected.
func (m *Manager) Retry(ctx context.Context, id string) error {
	m.mu.Lock()
	n, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("notification %q not found", id)
	}
	if n.Status != StatusFailed {
		m.mu.Unlock()
		return fmt.Errorf("notification %q is not in failed status (current: %s)", id, n.Status)
	}
	m.mu.Unlock()

	err := m.deliver(ctx, n)

	m.mu.Lock()
	markOutcome(n, err)
	m.mu.Unlock()

	return err
}

// Stats returns notification counts grouped by status.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int)
	for _, n := range m.outbox {
		counts[string(n.Status)]++
	}
	return counts
}
