package dedup

import (
	"context"
	"testing"
	"time"
)

func TestMemorySetIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	at := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	if ok, _ := m.Exists(ctx, "k"); ok {
		t.Fatalf("expected empty store")
	}
	if err := m.Set(ctx, "k", at); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Set(ctx, "k", at.AddDate(0, 0, 10)); err != nil {
		t.Fatalf("Set again: %v", err)
	}
	if ok, _ := m.Exists(ctx, "k"); !ok {
		t.Fatalf("expected key to exist")
	}

	// The first timestamp is kept, so the marker is pruned by its original age.
	n, _ := m.Prune(ctx, at.Add(time.Hour))
	if n != 1 || m.Len() != 0 {
		t.Fatalf("pruned %d, remaining %d", n, m.Len())
	}
}

func TestMemoryHonorsCanceledContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Exists(ctx, "k"); err == nil {
		t.Fatalf("expected error on canceled context")
	}
}
