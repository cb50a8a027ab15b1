package services

import (
	"context"
	"fmt"
	"time"

	"lanos_go/config"
	"lanos_go/forms"
	"lanos_go/services/audit"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler runs the periodic jobs: audit queue flush, idle session sweep
// and the daily digest.
type Scheduler struct {
	cron     *cron.Cron
	audit    *audit.Service
	store    *forms.Store
	notifier forms.Notifier
	idle     time.Duration
	now      func() time.Time
}

func NewScheduler(auditSvc *audit.Service, store *forms.Store, notifier forms.Notifier, idle time.Duration) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		audit:    auditSvc,
		store:    store,
		notifier: notifier,
		idle:     idle,
		now:      time.Now,
	}
}

// Start registers the jobs with the specs from cfg and starts the cron loop.
func (s *Scheduler) Start(cfg *config.Config) error {
	jobs := []struct {
		name string
		spec string
		run  func()
	}{
		{"audit-flush", cfg.AuditFlushSpec, s.FlushAudit},
		{"session-sweep", cfg.SweepSpec, s.SweepSessions},
		{"daily-digest", cfg.DigestSpec, func() {
			if err := s.SendDigest(context.Background()); err != nil {
				logrus.WithError(err).Warn("daily digest not sent")
			}
		}},
	}
	for _, job := range jobs {
		if job.spec == "" || job.spec == "off" {
			continue
		}
		if _, err := s.cron.AddFunc(job.spec, job.run); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", job.name, job.spec, err)
		}
	}
	s.cron.Start()
	logrus.Info("Scheduler started")
	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) FlushAudit() {
	if s.audit == nil {
		return
	}
	n, err := s.audit.Flush(context.Background(), 200)
	if err != nil {
		logrus.WithError(err).Warn("[audit] flush failed")
	}
	if n > 0 {
		logrus.WithField("rows", n).Info("[audit] flushed queued submissions")
	}
}

func (s *Scheduler) SweepSessions() {
	if s.store == nil {
		return
	}
	if n := s.store.Sweep(s.idle); n > 0 {
		logrus.WithFields(logrus.Fields{
			"removed":   n,
			"remaining": s.store.Len(),
		}).Info("swept idle form sessions")
	}
}

// SendDigest posts today's submission counts through the notifier.
func (s *Scheduler) SendDigest(ctx context.Context) error {
	if s.audit == nil || s.notifier == nil {
		return fmt.Errorf("digest needs the audit service and a notifier")
	}
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	counts, err := s.audit.CountsSince(ctx, midnight)
	if err != nil {
		return err
	}
	return s.notifier.Send(ctx, audit.FormatDigest(now, counts))
}
