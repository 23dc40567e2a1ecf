package notification

import (
	"fmt"
	"strings"
	"sync"
)

// Template defines a reusable notification template. Subject and Body may
// contain {{key}} placeholders filled at render time.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Type    Type   `json:"type"`
}

// fill substitutes {{key}} placeholders from data. Placeholders without a
// matching key are left untouched.
func (t *Template) fill(data map[string]string) (subject, body string) {
	if len(data) == 0 {
		return t.Subject, t.Body
	}
	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Subject), r.Replace(t.Body)
}

// builtInTemplates covers every schedule change the API notifies about.
var builtInTemplates = []Template{
	{
		ID:      "shift-scheduled",
		Name:    "Shift Scheduled",
		Subject: "Shift scheduled: {{title}}",
		Body:    "You have been scheduled for {{title}} on {{date}} from {{start}} to {{end}}.",
		Type:    TypeEmail,
	},
	{
		ID:      "emergency-reported",
		Name:    "Emergency Reported",
		Subject: "Emergency {{code}}",
		Body:    "Emergency {{code}}: {{title}}. Report to your station immediately.",
		Type:    TypeSMS,
	},
	{
		ID:      "meeting-invitation",
		Name:    "Meeting Invitation",
		Subject: "Meeting invitation: {{title}}",
		Body:    "You are invited to {{title}} on {{date}}. Topic: {{topic}}.",
		Type:    TypeEmail,
	},
	{
		ID:      "event-cancelled",
		Name:    "Event Cancelled",
		Subject: "Cancelled: {{title}}",
		Body:    "{{title}} has been cancelled. Reason: {{reason}}.",
		Type:    TypeEmail,
	},
	{
		ID:      "event-rescheduled",
		Name:    "Event Rescheduled",
		Subject: "Rescheduled: {{title}}",
		Body:    "{{title}} has been moved to {{date}}, {{start}} to {{end}}.",
		Type:    TypeEmail,
	},
}

// TemplateEngine holds notification templates, keyed by id.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template, len(builtInTemplates)),
	}
	for _, t := range builtInTemplates {
		e.RegisterTemplate(t)
	}
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Template looks up a template by id.
func (e *TemplateEngine) Template(id string) (*Template, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.templates[id]
	return t, ok
}

// Render fills the named template with data. Unknown ids are an error.
func (e *TemplateEngine) Render(id string, data map[string]string) (subject, body string, err error) {
	t, ok := e.Template(id)
	if !ok {
		return "", "", fmt.Errorf("template %q not found", id)
	}
	subject, body = t.fill(data)
	return subject, body, nil
}
