package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRedisDeduperReserveRememberReplay(t *testing.T) {
	mr, client := newTestRedis(t)
	deduper := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	id, reserved, err := deduper.Reserve(ctx, "a@example.com", "k1")
	if err != nil || !reserved || id != "" {
		t.Fatalf("expected fresh reservation, got %q %v %v", id, reserved, err)
	}

	if _, _, err := deduper.Reserve(ctx, "a@example.com", "k1"); !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected in-flight error, got %v", err)
	}

	if err := deduper.Remember(ctx, "a@example.com", "k1", "task-9"); err != nil {
		t.Fatalf("remember: %v", err)
	}
	id, reserved, err = deduper.Reserve(ctx, "a@example.com", "k1")
	if err != nil || reserved || id != "task-9" {
		t.Fatalf("expected replay of task-9, got %q %v %v", id, reserved, err)
	}

	key := deduper.key("a@example.com", "k1")
	if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
}

func TestRedisDeduperKeyNamespacing(t *testing.T) {
	_, client := newTestRedis(t)
	deduper := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	if _, reserved, err := deduper.Reserve(ctx, "a@example.com", "shared"); err != nil || !reserved {
		t.Fatalf("reserve a: %v %v", reserved, err)
	}
	if _, reserved, err := deduper.Reserve(ctx, "b@example.com", "shared"); err != nil || !reserved {
		t.Fatalf("expected separate namespace per owner: %v %v", reserved, err)
	}
}

func TestRedisDeduperRemoveAllowsRetry(t *testing.T) {
	_, client := newTestRedis(t)
	deduper := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	if _, _, err := deduper.Reserve(ctx, "a@example.com", "k"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := deduper.Remove(ctx, "a@example.com", "k"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, reserved, err := deduper.Reserve(ctx, "a@example.com", "k"); err != nil || !reserved {
		t.Fatalf("expected reservation after remove: %v %v", reserved, err)
	}
}
