package services

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Severity orders health states; the report takes the worst one.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityDegraded
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityDegraded:
		return "degraded"
	case SeverityCritical:
		return "critical"
	default:
		return "ok"
	}
}

const (
	dependencyStatusUp       = "up"
	dependencyStatusDown     = "down"
	dependencyStatusDisabled = "disabled"

	defaultServiceName = "Lanos Registration API"
	defaultVersion     = "1.0.0"
	defaultTimeout     = 1500 * time.Millisecond
)

// errDisabled marks an optional dependency that is switched off.
var errDisabled = errors.New("disabled")

// Pinger is anything that can report reachability, such as the backend client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthDeps are the dependencies probed by the health report. Nil members
// are reported as down or disabled.
type HealthDeps struct {
	DB            *gorm.DB
	Redis         *redis.Client
	Backend       Pinger
	UseRedisAudit bool
	Environment   string
	Sessions      func() int
}

// HealthService aggregates application health information for reporting endpoints.
type HealthService struct {
	serviceName string
	version     string
	startTime   time.Time
	timeout     time.Duration
	deps        HealthDeps
}

type HealthReport struct {
	Status        string             `json:"status"`
	Service       string             `json:"service"`
	Version       string             `json:"version"`
	Environment   string             `json:"environment"`
	Time          time.Time          `json:"time"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	UptimeHuman   string             `json:"uptime_human"`
	Dependencies  []DependencyStatus `json:"dependencies"`
	Runtime       RuntimeInfo        `json:"runtime"`
}

type DependencyStatus struct {
	Name      string                 `json:"name"`
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

type RuntimeInfo struct {
	GoVersion      string `json:"go_version"`
	Goroutines     int    `json:"goroutines"`
	HeapAllocBytes uint64 `json:"heap_alloc_bytes"`
	OpenSessions   int    `json:"open_sessions"`
}

// probe is one dependency check. onFailure is the severity a failed probe
// contributes to the report.
type probe struct {
	name      string
	onFailure Severity
	run       func(ctx context.Context) (map[string]interface{}, error)
}

func NewHealthService(serviceName, version string, deps HealthDeps) *HealthService {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = defaultServiceName
	}
	if strings.TrimSpace(version) == "" {
		version = defaultVersion
	}
	return &HealthService{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		timeout:     defaultTimeout,
		deps:        deps,
	}
}

// GetHealthReport probes every dependency. The registration API is needed to
// accept forms, so losing it is critical; the audit database and Redis only
// degrade the service.
func (s *HealthService) GetHealthReport(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	env := strings.TrimSpace(s.deps.Environment)
	if env == "" {
		env = "unknown"
	}
	uptime := time.Since(s.startTime)
	if uptime < 0 {
		uptime = 0
	}

	worst := SeverityOK
	var deps []DependencyStatus
	for _, p := range s.probes() {
		dep, sev := runProbe(ctx, p)
		deps = append(deps, dep)
		if sev > worst {
			worst = sev
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	info := RuntimeInfo{
		GoVersion:      runtime.Version(),
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: mem.HeapAlloc,
	}
	if s.deps.Sessions != nil {
		info.OpenSessions = s.deps.Sessions()
	}

	return HealthReport{
		Status:        worst.String(),
		Service:       s.serviceName,
		Version:       s.version,
		Environment:   env,
		Time:          time.Now().UTC(),
		UptimeSeconds: uptime.Seconds(),
		UptimeHuman:   humanizeDuration(uptime),
		Dependencies:  deps,
		Runtime:       info,
	}
}

// HTTPStatusForOverall maps a health status to an HTTP status code.
func (s *HealthService) HTTPStatusForOverall(status string) int {
	if status == SeverityCritical.String() {
		return 503
	}
	return 200
}

func runProbe(ctx context.Context, p probe) (DependencyStatus, Severity) {
	dep := DependencyStatus{Name: p.name}
	start := time.Now()
	details, err := p.run(ctx)
	dep.LatencyMs = time.Since(start).Milliseconds()
	dep.Details = details

	switch {
	case errors.Is(err, errDisabled):
		dep.Status = dependencyStatusDisabled
		dep.LatencyMs = 0
		return dep, SeverityOK
	case err != nil:
		dep.Status = dependencyStatusDown
		dep.Error = err.Error()
		return dep, p.onFailure
	}
	dep.Status = dependencyStatusUp
	return dep, SeverityOK
}

func (s *HealthService) probes() []probe {
	redisSeverity := SeverityOK
	if s.deps.UseRedisAudit {
		redisSeverity = SeverityDegraded
	}
	return []probe{
		{name: "registration_api", onFailure: SeverityCritical, run: s.pingBackend},
		{name: "mysql", onFailure: SeverityDegraded, run: s.pingDatabase},
		{name: "redis", onFailure: redisSeverity, run: s.pingRedis},
	}
}

func (s *HealthService) pingBackend(ctx context.Context) (map[string]interface{}, error) {
	if s.deps.Backend == nil {
		return nil, errors.New("backend client not configured")
	}
	return nil, s.deps.Backend.Ping(ctx)
}

func (s *HealthService) pingDatabase(ctx context.Context) (map[string]interface{}, error) {
	if s.deps.DB == nil {
		return nil, errors.New("database connection not initialised")
	}
	sqlDB, err := s.deps.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("sql DB handle error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, err
	}
	stats := sqlDB.Stats()
	return map[string]interface{}{
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
	}, nil
}

func (s *HealthService) pingRedis(ctx context.Context) (map[string]interface{}, error) {
	client := s.deps.Redis
	if client == nil {
		if s.deps.UseRedisAudit {
			return nil, errors.New("redis client not initialised")
		}
		return nil, errDisabled
	}
	pingCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	mode := "optional"
	if s.deps.UseRedisAudit {
		mode = "audit-queue"
	}
	return map[string]interface{}{"address": client.Options().Addr, "mode": mode}, nil
}

// humanizeDuration renders d as e.g. "1d 2h 5s", rounded to the second.
func humanizeDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	units := []struct {
		size   time.Duration
		suffix string
	}{
		{24 * time.Hour, "d"},
		{time.Hour, "h"},
		{time.Minute, "m"},
		{time.Second, "s"},
	}
	var parts []string
	for _, u := range units {
		if n := d / u.size; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
			d -= n * u.size
		}
	}
	return strings.Join(parts, " ")
}
