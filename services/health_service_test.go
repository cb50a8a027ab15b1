package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReportStatus(t *testing.T) {
	tests := []struct {
		name     string
		deps     HealthDeps
		want     string
		wantCode int
	}{
		{
			name:     "backend down is critical",
			deps:     HealthDeps{Backend: pingFunc(func(context.Context) error { return errors.New("refused") })},
			want:     SeverityCritical.String(),
			wantCode: 503,
		},
		{
			name:     "no database degrades",
			deps:     HealthDeps{Backend: pingFunc(func(context.Context) error { return nil })},
			want:     SeverityDegraded.String(),
			wantCode: 200,
		},
		{
			name:     "missing backend client",
			deps:     HealthDeps{},
			want:     SeverityCritical.String(),
			wantCode: 503,
		},
	}
	for _, tc := range tests {
		svc := NewHealthService("", "", tc.deps)
		report := svc.GetHealthReport(context.Background())
		if report.Status != tc.want {
			t.Fatalf("%s: status %q, want %q (%+v)", tc.name, report.Status, tc.want, report.Dependencies)
		}
		if got := svc.HTTPStatusForOverall(report.Status); got != tc.wantCode {
			t.Fatalf("%s: http %d, want %d", tc.name, got, tc.wantCode)
		}
		if len(report.Dependencies) != 3 || report.Dependencies[0].Name != "registration_api" {
			t.Fatalf("%s: unexpected dependencies %+v", tc.name, report.Dependencies)
		}
	}
}

func TestHealthReportRedisDisabled(t *testing.T) {
	svc := NewHealthService("svc", "2.0.0", HealthDeps{
		Backend:     pingFunc(func(context.Context) error { return nil }),
		Environment: "test",
		Sessions:    func() int { return 4 },
	})
	report := svc.GetHealthReport(context.Background())
	redis := report.Dependencies[2]
	if redis.Status != dependencyStatusDisabled {
		t.Fatalf("redis status %q, want disabled", redis.Status)
	}
	if report.Service != "svc" || report.Version != "2.0.0" || report.Environment != "test" {
		t.Fatalf("unexpected identity %+v", report)
	}
	if report.Runtime.OpenSessions != 4 {
		t.Fatalf("open sessions %d, want 4", report.Runtime.OpenSessions)
	}
}

func TestHumanizeDuration(t *testing.T) {
	tests := map[time.Duration]string{
		0:                                 "0s",
		90 * time.Second:                  "1m 30s",
		26*time.Hour + 5*time.Second:      "1d 2h 5s",
		3*time.Hour + 500*time.Millisecond: "3h 1s",
	}
	for in, want := range tests {
		if got := humanizeDuration(in); got != want {
			t.Fatalf("humanizeDuration(%v) = %q, want %q", in, got, want)
		}
	}
}
