package forms

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeBackend struct {
	mu       sync.Mutex
	existing map[string]bool // "endpoint?value"
	options  map[string][]string
	optErr   map[string]error
	createFn func(payload map[string]any) (Receipt, error)

	// block, when set, holds Create until it is closed; entered is
	// signalled once Create is reached.
	block   chan struct{}
	entered chan struct{}

	creates  []map[string]any
	checks   []string
	optCalls []string
}

func (b *fakeBackend) Create(ctx context.Context, endpoint string, payload map[string]any) (Receipt, error) {
	b.mu.Lock()
	b.creates = append(b.creates, payload)
	block, entered, fn := b.block, b.entered, b.createFn
	b.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if fn != nil {
		return fn(payload)
	}
	return Receipt{ID: "42"}, nil
}

func (b *fakeBackend) Exists(ctx context.Context, endpoint, param, value string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checks = append(b.checks, endpoint)
	return b.existing[endpoint+"?"+value], nil
}

func (b *fakeBackend) Options(ctx context.Context, endpoint string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.optCalls = append(b.optCalls, endpoint)
	if err := b.optErr[endpoint]; err != nil {
		return nil, err
	}
	return b.options[endpoint], nil
}

func (b *fakeBackend) createCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.creates)
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (n *fakeNotifier) Send(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return n.err
}

type rejection struct {
	msg    string
	fields map[string]string
}

func (r *rejection) Error() string                  { return "backend rejected: " + r.msg }
func (r *rejection) UserMessage() string            { return r.msg }
func (r *rejection) FieldErrors() map[string]string { return r.fields }

var errNetwork = errors.New("connection refused")

func mustSchema(t *testing.T, id string) *Schema {
	t.Helper()
	reg, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}
	s, err := reg.Get(id)
	if err != nil {
		t.Fatalf("Get(%q): %v", id, err)
	}
	return s
}

func mustSet(t *testing.T, c *Controller, values map[string]any) {
	t.Helper()
	for k, v := range values {
		if err := c.Set(k, v); err != nil {
			t.Fatalf("Set(%q, %v): %v", k, v, err)
		}
	}
}

func validStudent() map[string]any {
	return map[string]any{
		"fullName":             "Asha Verma",
		"mobileNumber":         "9876543210",
		"emailAddress":         "asha@example.com",
		"collegeName":          "LNCT",
		"currentCourseAndYear": "B.Tech 2nd year",
		"cityTown":             "Bhopal",
		"hearAboutExam":        "Poster",
		"confirmation":         true,
	}
}

func validScholarship() map[string]any {
	return map[string]any{
		"fullName":     "Rohan Das",
		"phone":        "9876543210",
		"email":        "rohan@example.com",
		"collegeName":  "RGPV",
		"course":       "B.Tech",
		"semester":     "3",
		"city":         "Indore",
		"heardFrom":    "WhatsApp",
		"confirmation": true,
	}
}
