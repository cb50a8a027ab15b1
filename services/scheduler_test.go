package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"lanos_go/config"
	"lanos_go/forms"
)

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(nil, nil, nil, time.Hour)
	err := s.Start(&config.Config{AuditFlushSpec: "every now and then"})
	if err == nil || !strings.Contains(err.Error(), "audit-flush") {
		t.Fatalf("expected audit-flush schedule error, got %v", err)
	}
}

func TestSchedulerSweepsIdleSessions(t *testing.T) {
	reg, err := forms.DefaultRegistry()
	if err != nil {
		t.Fatal(err)
	}
	store := forms.NewStore(reg, forms.Deps{})
	if _, err := store.Open(context.Background(), "bootcamp-booking", nil); err != nil {
		t.Fatal(err)
	}
	// a negative idle time makes every session stale
	s := NewScheduler(nil, store, nil, -time.Minute)
	s.SweepSessions()
	if store.Len() != 0 {
		t.Fatalf("expected sessions swept, %d left", store.Len())
	}
}

func TestDigestNeedsNotifier(t *testing.T) {
	s := NewScheduler(nil, nil, nil, time.Hour)
	if err := s.SendDigest(context.Background()); err == nil {
		t.Fatalf("expected error without audit service and notifier")
	}
}
