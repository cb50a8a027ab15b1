package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"lanos_go/forms"
	"lanos_go/models"

	"github.com/google/go-cmp/cmp"
)

type recordingHub struct {
	messages []interface{}
}

func (h *recordingHub) Broadcast(message interface{}) {
	h.messages = append(h.messages, message)
}

func TestEntryFromAttempt(t *testing.T) {
	at := time.Date(2024, 6, 1, 15, 4, 5, 0, time.FixedZone("IST", 19800))
	ctx := WithClient(context.Background(), "10.0.0.7", "Mozilla/5.0")
	got := EntryFromAttempt(ctx, forms.Attempt{
		SessionID: "s-1",
		FormID:    "student-registration",
		Outcome:   forms.OutcomeTransport,
		Message:   "Registration failed. Please try again later.",
		Payload:   map[string]any{"fullName": "Asha"},
		Err:       errors.New("connection refused"),
		Duration:  1500 * time.Millisecond,
	}, at)

	want := Entry{
		FormID:     "student-registration",
		SessionID:  "s-1",
		Outcome:    "transport",
		Message:    "Registration failed. Please try again later.",
		Error:      "connection refused",
		Payload:    map[string]any{"fullName": "Asha"},
		DurationMS: 1500,
		IPAddress:  "10.0.0.7",
		UserAgent:  "Mozilla/5.0",
		CreatedAt:  at.UTC(),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entry mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordWithoutStoresBroadcasts(t *testing.T) {
	hub := &recordingHub{}
	svc := NewService(nil, nil, true, hub)
	if svc.useRedis {
		t.Fatalf("redis must be disabled without a client")
	}
	svc.Hook(context.Background(), forms.Attempt{FormID: "event-registration", Outcome: forms.OutcomeSuccess})
	if len(hub.messages) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(hub.messages))
	}
	msg := hub.messages[0].(map[string]interface{})
	if msg["type"] != "submission" {
		t.Fatalf("unexpected message %v", msg)
	}
	if n, err := svc.Flush(context.Background(), 100); n != 0 || err != nil {
		t.Fatalf("flush without redis should be a no-op, got %d, %v", n, err)
	}
	if _, _, err := svc.List(context.Background(), Query{}); err == nil {
		t.Fatalf("List should fail without a database")
	}
}

func TestToRow(t *testing.T) {
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	row := toRow(Entry{FormID: "f", Outcome: "success", Payload: map[string]any{"a": 1}, CreatedAt: at})
	if string(row.Payload) != `{"a":1}` || !row.CreatedAt.Equal(at) {
		t.Fatalf("unexpected row %+v", row)
	}
	if row := toRow(Entry{}); row.Payload != nil {
		t.Fatalf("nil payload should stay nil")
	}
}

func TestFormatDigest(t *testing.T) {
	day := time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)
	got := FormatDigest(day, []models.FormCount{
		{FormID: "student-registration", Outcome: "success", Total: 4},
		{FormID: "student-registration", Outcome: "invalid", Total: 3},
		{FormID: "bootcamp-booking", Outcome: "success", Total: 1},
	})
	want := "📊 Daily Submission Digest (2024-06-01)\n\n" +
		"bootcamp-booking: 1 submitted, 1 attempts\n" +
		"student-registration: 4 submitted, 7 attempts\n" +
		"\nTotal: 5 submitted, 8 attempts\n"
	if got != want {
		t.Fatalf("digest mismatch:\n got %q\nwant %q", got, want)
	}
	if got := FormatDigest(day, nil); got != "📊 Daily Submission Digest (2024-06-01)\n\nNo submissions today.\n" {
		t.Fatalf("empty digest %q", got)
	}
}
