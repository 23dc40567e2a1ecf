package auth

import (
	"strings"
	"testing"
	"time"
)

var testKey = []byte("test-signing-key-0123456789abcdef")

func TestIssueAndParse(t *testing.T) {
	issuer := NewTokenIssuer(testKey, time.Hour)

	token, expiresAt, err := issuer.Issue("staff-123", "physician")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if until := time.Until(expiresAt); until < 59*time.Minute || until > time.Hour {
		t.Errorf("expiry %v from now, want about an hour", until)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "staff-123" {
		t.Errorf("subject = %q, want staff-123", claims.Subject)
	}
	if claims.Role != "physician" {
		t.Errorf("role = %q, want physician", claims.Role)
	}
}

func TestParse_WrongKey(t *testing.T) {
	token, _, err := NewTokenIssuer(testKey, time.Hour).Issue("staff-123", "nurse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other := NewTokenIssuer([]byte("a-completely-different-signing-key"), time.Hour)
	if _, err := other.Parse(token); err == nil {
		t.Error("expected error for token signed with another key")
	}
}

func TestParse_Expired(t *testing.T) {
	issuer := NewTokenIssuer(testKey, -time.Minute)
	token, _, err := issuer.Issue("staff-123", "nurse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := issuer.Parse(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestParse_Garbage(t *testing.T) {
	issuer := NewTokenIssuer(testKey, time.Hour)
	for _, tok := range []string{"", "not-a-token", strings.Repeat("x.", 3)} {
		if _, err := issuer.Parse(tok); err == nil {
			t.Errorf("Parse(%q): expected error", tok)
		}
	}
}
