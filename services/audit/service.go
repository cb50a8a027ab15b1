// Package audit records every form submit attempt. Entries are queued in
// Redis when available and flushed to MySQL by a cron job; without Redis
// they are written directly.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"lanos_go/forms"
	"lanos_go/models"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const redisListKey = "submissions:audit"

// Entry is the queued form of a SubmissionLog row.
type Entry struct {
	FormID     string         `json:"form_id"`
	SessionID  string         `json:"session_id"`
	Outcome    string         `json:"outcome"`
	Message    string         `json:"message"`
	ServerID   string         `json:"server_id,omitempty"`
	Error      string         `json:"error,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Broadcaster pushes live events to connected admin dashboards.
type Broadcaster interface {
	Broadcast(message interface{})
}

type Service struct {
	db       *gorm.DB
	redis    *redis.Client
	useRedis bool
	hub      Broadcaster
	now      func() time.Time
}

func NewService(db *gorm.DB, rdb *redis.Client, useRedis bool, hub Broadcaster) *Service {
	return &Service{
		db:       db,
		redis:    rdb,
		useRedis: useRedis && rdb != nil,
		hub:      hub,
		now:      time.Now,
	}
}

type clientKey struct{}

type clientInfo struct {
	ip, userAgent string
}

// WithClient attaches the caller's address and user agent to ctx so the
// submit hook can record them.
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, clientInfo{ip: ip, userAgent: userAgent})
}

// EntryFromAttempt converts a controller attempt into an audit entry.
func EntryFromAttempt(ctx context.Context, a forms.Attempt, at time.Time) Entry {
	e := Entry{
		FormID:     a.FormID,
		SessionID:  a.SessionID,
		Outcome:    string(a.Outcome),
		Message:    a.Message,
		ServerID:   a.ServerID,
		Payload:    a.Payload,
		DurationMS: a.Duration.Milliseconds(),
		CreatedAt:  at.UTC(),
	}
	if a.Err != nil {
		e.Error = a.Err.Error()
	}
	if info, ok := ctx.Value(clientKey{}).(clientInfo); ok {
		e.IPAddress = info.ip
		e.UserAgent = info.userAgent
	}
	return e
}

// Hook is installed as forms.Deps.Hook.
func (s *Service) Hook(ctx context.Context, a forms.Attempt) {
	if err := s.Record(ctx, EntryFromAttempt(ctx, a, s.now())); err != nil {
		logrus.WithFields(logrus.Fields{
			"form":    a.FormID,
			"session": a.SessionID,
			"outcome": a.Outcome,
		}).WithError(err).Error("failed to record submission")
	}
}

// Record queues e in Redis, falling back to a direct insert, and announces
// it to the admin hub.
func (s *Service) Record(ctx context.Context, e Entry) error {
	if s.hub != nil {
		s.hub.Broadcast(map[string]interface{}{
			"type": "submission",
			"data": e,
		})
	}

	if s.useRedis {
		b, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err = s.redis.RPush(ctx, redisListKey, b).Err(); err == nil {
			return nil
		}
		logrus.WithError(err).Warn("[audit] Redis queue failed, falling back to direct insert")
	}
	return s.createDirect(ctx, []Entry{e})
}

func (s *Service) createDirect(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if s.db == nil {
		for _, e := range entries {
			logrus.WithFields(logrus.Fields{
				"form":    e.FormID,
				"session": e.SessionID,
				"outcome": e.Outcome,
			}).Info("submission (no audit database)")
		}
		return nil
	}
	rows := make([]models.SubmissionLog, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, toRow(e))
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

func toRow(e Entry) models.SubmissionLog {
	var payload models.JSON
	if e.Payload != nil {
		if b, err := json.Marshal(e.Payload); err == nil {
			payload = b
		}
	}
	row := models.SubmissionLog{
		FormID:     e.FormID,
		SessionID:  e.SessionID,
		Outcome:    e.Outcome,
		Message:    e.Message,
		ServerID:   e.ServerID,
		Error:      e.Error,
		Payload:    payload,
		DurationMS: e.DurationMS,
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
	}
	row.CreatedAt = e.CreatedAt
	return row
}

// Flush moves queued entries from Redis to the database in batches and
// returns how many were written.
func (s *Service) Flush(ctx context.Context, batchSize int) (int, error) {
	if !s.useRedis {
		return 0, nil
	}
	if s.db == nil {
		return 0, errors.New("audit database not available")
	}
	written := 0
	for i := 0; i < 5; i++ { // up to 5 sub-batches per run
		vals, err := s.redis.LRange(ctx, redisListKey, 0, int64(batchSize-1)).Result()
		if err != nil {
			return written, fmt.Errorf("read audit queue: %w", err)
		}
		if len(vals) == 0 {
			return written, nil
		}
		entries := make([]Entry, 0, len(vals))
		for _, raw := range vals {
			var e Entry
			if err := json.Unmarshal([]byte(raw), &e); err != nil {
				logrus.WithError(err).Warn("[audit] dropping malformed queue item")
				continue
			}
			entries = append(entries, e)
		}
		if err := s.createDirect(ctx, entries); err != nil {
			// keep the batch queued for the next run
			return written, err
		}
		if err := s.redis.LTrim(ctx, redisListKey, int64(len(vals)), -1).Err(); err != nil {
			logrus.WithError(err).Warn("[audit] LTrim failed")
		}
		written += len(entries)
		if len(vals) < batchSize {
			break
		}
	}
	return written, nil
}

// Query selects audit rows for the admin dashboard.
type Query struct {
	FormID  string
	Outcome string
	Limit   int
	Offset  int
}

func (s *Service) List(ctx context.Context, q Query) ([]models.SubmissionLog, int64, error) {
	if s.db == nil {
		return nil, 0, errors.New("audit database not available")
	}
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}
	tx := s.db.WithContext(ctx).Model(&models.SubmissionLog{})
	if q.FormID != "" {
		tx = tx.Where("form_id = ?", q.FormID)
	}
	if q.Outcome != "" {
		tx = tx.Where("outcome = ?", q.Outcome)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.SubmissionLog
	err := tx.Order("created_at DESC").Limit(q.Limit).Offset(q.Offset).Find(&rows).Error
	return rows, total, err
}

// CountsSince groups attempts since the given time by form and outcome.
func (s *Service) CountsSince(ctx context.Context, since time.Time) ([]models.FormCount, error) {
	if s.db == nil {
		return nil, errors.New("audit database not available")
	}
	var out []models.FormCount
	err := s.db.WithContext(ctx).
		Model(&models.SubmissionLog{}).
		Select("form_id, outcome, COUNT(*) AS total").
		Where("created_at >= ?", since).
		Group("form_id, outcome").
		Scan(&out).Error
	return out, err
}

// FormatDigest renders the daily summary message.
func FormatDigest(day time.Time, counts []models.FormCount) string {
	type tally struct {
		success, total int64
	}
	byForm := make(map[string]*tally)
	for _, c := range counts {
		t, ok := byForm[c.FormID]
		if !ok {
			t = &tally{}
			byForm[c.FormID] = t
		}
		t.total += c.Total
		if c.Outcome == string(forms.OutcomeSuccess) {
			t.success += c.Total
		}
	}
	ids := make([]string, 0, len(byForm))
	for id := range byForm {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Daily Submission Digest (%s)\n\n", day.Format("2006-01-02"))
	if len(ids) == 0 {
		b.WriteString("No submissions today.\n")
		return b.String()
	}
	var success, total int64
	for _, id := range ids {
		t := byForm[id]
		fmt.Fprintf(&b, "%s: %d submitted, %d attempts\n", id, t.success, t.total)
		success += t.success
		total += t.total
	}
	fmt.Fprintf(&b, "\nTotal: %d submitted, %d attempts\n", success, total)
	return b.String()
}
