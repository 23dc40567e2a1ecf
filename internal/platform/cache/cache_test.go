package cache

import (
	"context"
	"testing"
	"time"
)

func TestCache_DisabledWithoutAddr(t *testing.T) {
	c := New("", time.Minute)
	if c.Enabled() {
		t.Error("expected cache without redis address to be disabled")
	}

	ctx := context.Background()

	var dest map[string]string
	hit, err := c.GetJSON(ctx, "roster:2025-03-10", &dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit {
		t.Error("expected disabled cache to miss")
	}

	if err := c.SetJSON(ctx, "roster:2025-03-10", map[string]string{"a": "b"}); err != nil {
		t.Errorf("expected no-op set, got %v", err)
	}
	if err := c.Delete(ctx, "roster:2025-03-10"); err != nil {
		t.Errorf("expected no-op delete, got %v", err)
	}
	if err := c.Ping(ctx); err != nil {
		t.Errorf("expected disabled cache to report healthy, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("unexpected error on close: %v", err)
	}
}

func TestCache_NilReceiverSafe(t *testing.T) {
	var c *Cache
	if c.Enabled() {
		t.Error("expected nil cache to be disabled")
	}

	ctx := context.Background()
	if _, err := c.GetJSON(ctx, "k", nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := c.SetJSON(ctx, "k", 1); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCache_DeleteNoKeys(t *testing.T) {
	c := New("", time.Minute)
	if err := c.Delete(context.Background()); err != nil {
		t.Errorf("expected delete with no keys to be a no-op, got %v", err)
	}
}
