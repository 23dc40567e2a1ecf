package notification

import (
	"context"
	"strings"
	"testing"
)

func TestTemplateEngine_RenderShiftScheduled(t *testing.T) {
	engine := NewTemplateEngine()

	subject, body, err := engine.Render("shift-scheduled", map[string]string{
		"title": "Night shift - ICU",
		"date":  "2025-03-10",
		"start": "22:00",
		"end":   "06:00",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Shift scheduled: Night shift - ICU" {
		t.Errorf("unexpected subject: %q", subject)
	}
	if !strings.Contains(body, "2025-03-10") || !strings.Contains(body, "22:00") || !strings.Contains(body, "06:00") {
		t.Errorf("expected rendered values in body, got %q", body)
	}
}

func TestTemplateEngine_MissingKeysLeftAsIs(t *testing.T) {
	engine := NewTemplateEngine()

	_, body, err := engine.Render("event-cancelled", map[string]string{
		"title": "Morning shift",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body, "{{reason}}") {
		t.Errorf("expected unreplaced placeholder to remain, got %q", body)
	}
}

func TestTemplateEngine_UnknownTemplate(t *testing.T) {
	engine := NewTemplateEngine()

	_, _, err := engine.Render("does-not-exist", nil)
	if err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestTemplateEngine_RegisterTemplate(t *testing.T) {
	engine := NewTemplateEngine()
	engine.RegisterTemplate(Template{
		ID:      "on-call-swap",
		Name:    "On-Call Swap",
		Subject: "Swap request from {{from}}",
		Body:    "{{from}} asked to swap the {{date}} shift with you.",
		Type:    TypeEmail,
	})

	subject, _, err := engine.Render("on-call-swap", map[string]string{"from": "Dr. Okafor"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Swap request from Dr. Okafor" {
		t.Errorf("unexpected subject: %q", subject)
	}
}

func newTestManager() (*Manager, *MockEmailSender, *MockSMSSender) {
	email := &MockEmailSender{}
	sms := &MockSMSSender{}
	return NewManager(email, sms, NewTemplateEngine()), email, sms
}

func TestManager_SendEmail(t *testing.T) {
	mgr, email, _ := newTestManager()

	n := &Notification{
		Type:      TypeEmail,
		Recipient: "resident@hospital.test",
		Subject:   "Roster updated",
		Body:      "Check the new roster.",
	}
	if err := mgr.Send(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n.ID == "" {
		t.Error("expected an id to be assigned")
	}
	if n.Status != "sent" {
		t.Errorf("expected status 'sent', got %q", n.Status)
	}
	if n.SentAt == nil {
		t.Error("expected SentAt to be set")
	}

	calls := email.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email call, got %d", len(calls))
	}
	if calls[0].To != "resident@hospital.test" || calls[0].Subject != "Roster updated" {
		t.Errorf("unexpected call: %+v", calls[0])
	}
}

func TestManager_SendSMS(t *testing.T) {
	mgr, _, sms := newTestManager()

	n := &Notification{
		Type:      TypeSMS,
		Recipient: "+15550100",
		Body:      "Code Blue, Ward 3",
	}
	if err := mgr.Send(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := sms.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 sms call, got %d", len(calls))
	}
	if calls[0].Body != "Code Blue, Ward 3" {
		t.Errorf("unexpected call: %+v", calls[0])
	}
}

func TestManager_SendUnsupportedType(t *testing.T) {
	mgr, _, _ := newTestManager()

	n := &Notification{Type: "carrier-pigeon", Recipient: "tower"}
	err := mgr.Send(context.Background(), n)
	if err == nil {
		t.Fatal("expected error for unsupported type")
	}
	if n.Status != "failed" {
		t.Errorf("expected status 'failed', got %q", n.Status)
	}
}

func TestManager_SendFailureRecordsError(t *testing.T) {
	email := &MockEmailSender{ShouldFail: true, FailError: "smtp unreachable"}
	mgr := NewManager(email, &MockSMSSender{}, NewTemplateEngine())

	n := &Notification{Type: TypeEmail, Recipient: "x@y.test", Body: "hi"}
	err := mgr.Send(context.Background(), n)
	if err == nil {
		t.Fatal("expected send error")
	}
	if n.Status != "failed" {
		t.Errorf("expected status 'failed', got %q", n.Status)
	}
	if n.Error != "smtp unreachable" {
		t.Errorf("expected recorded error, got %q", n.Error)
	}
}

func TestManager_SendFromTemplate(t *testing.T) {
	mgr, email, _ := newTestManager()

	n, err := mgr.SendFromTemplate(context.Background(), "", "meeting-invitation", map[string]string{
		"title": "Tumor board",
		"topic": "Case review",
		"date":  "2025-04-01",
	}, "oncology@hospital.test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n.Type != TypeEmail {
		t.Errorf("expected type from template, got %q", n.Type)
	}
	if n.TemplateID != "meeting-invitation" {
		t.Errorf("expected template id to be recorded, got %q", n.TemplateID)
	}

	calls := email.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email call, got %d", len(calls))
	}
	if calls[0].Subject != "Meeting invitation: Tumor board" {
		t.Errorf("unexpected subject: %q", calls[0].Subject)
	}
}

func TestManager_SendFromTemplateTypeOverride(t *testing.T) {
	mgr, email, sms := newTestManager()

	// event-cancelled is declared as email; an explicit SMS override wins.
	_, err := mgr.SendFromTemplate(context.Background(), TypeSMS, "event-cancelled", map[string]string{
		"title":  "Night shift",
		"reason": "Unit closed",
	}, "+15550100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(email.Calls()) != 0 {
		t.Error("expected no email delivery")
	}
	if len(sms.Calls()) != 1 {
		t.Fatalf("expected 1 sms call, got %d", len(sms.Calls()))
	}
}

func TestManager_SendFromTemplateUnknown(t *testing.T) {
	mgr, _, _ := newTestManager()

	_, err := mgr.SendFromTemplate(context.Background(), TypeEmail, "nope", nil, "x@y.test")
	if err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestManager_Retry(t *testing.T) {
	email := &MockEmailSender{ShouldFail: true, FailError: "smtp unreachable"}
	mgr := NewManager(email, &MockSMSSender{}, NewTemplateEngine())

	n := &Notification{Type: TypeEmail, Recipient: "x@y.test", Body: "hi"}
	_ = mgr.Send(context.Background(), n)
	if n.Status != "failed" {
		t.Fatalf("expected initial send to fail, got %q", n.Status)
	}

	email.ShouldFail = false
	if err := mgr.Retry(context.Background(), n.ID); err != nil {
		t.Fatalf("unexpected retry error: %v", err)
	}
	if n.Status != "sent" {
		t.Errorf("expected status 'sent' after retry, got %q", n.Status)
	}
	if n.Error != "" {
		t.Errorf("expected error to be cleared, got %q", n.Error)
	}
}

func TestManager_RetryRejectsNonFailed(t *testing.T) {
	mgr, _, _ := newTestManager()

	n := &Notification{Type: TypeEmail, Recipient: "x@y.test", Body: "hi"}
	if err := mgr.Send(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mgr.Retry(context.Background(), n.ID); err == nil {
		t.Fatal("expected error retrying a sent notification")
	}
}

func TestManager_GetNotFound(t *testing.T) {
	mgr, _, _ := newTestManager()

	if _, err := mgr.Get(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown notification")
	}
}

func TestManager_ListByRecipient(t *testing.T) {
	mgr, _, _ := newTestManager()

	for i := 0; i < 3; i++ {
		_ = mgr.Send(context.Background(), &Notification{Type: TypeEmail, Recipient: "a@y.test", Body: "hi"})
	}
	_ = mgr.Send(context.Background(), &Notification{Type: TypeEmail, Recipient: "b@y.test", Body: "hi"})

	list, err := mgr.ListByRecipient(context.Background(), "a@y.test", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 3 {
		t.Errorf("expected 3 notifications, got %d", len(list))
	}

	limited, _ := mgr.ListByRecipient(context.Background(), "a@y.test", 2)
	if len(limited) != 2 {
		t.Errorf("expected limit to apply, got %d", len(limited))
	}
}

func TestManager_Stats(t *testing.T) {
	email := &MockEmailSender{}
	mgr := NewManager(email, &MockSMSSender{}, NewTemplateEngine())

	_ = mgr.Send(context.Background(), &Notification{Type: TypeEmail, Recipient: "a@y.test", Body: "hi"})
	email.ShouldFail = true
	email.FailError = "down"
	_ = mgr.Send(context.Background(), &Notification{Type: TypeEmail, Recipient: "a@y.test", Body: "hi"})

	stats := mgr.Stats(context.Background())
	if stats["sent"] != 1 || stats["failed"] != 1 {
		t.Errorf("unexpected stats: %v", stats)
	}
}
