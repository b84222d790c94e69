package license

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/actiomidia/projeto-bot-whatsapp/internal/infrastructure"
)

// DefaultRevalidationInterval is how long a checked record is trusted before
// the authority is consulted again.
const DefaultRevalidationInterval = 300 * time.Second

const (
	triggerForeground = "foreground"
	triggerBackground = "background"
	triggerClear      = "clear"

	auditTimeout = 15 * time.Second
)

// ManagerConfig configures a Manager. Zero values fall back to defaults.
type ManagerConfig struct {
	Interval time.Duration
	Policy   *Policy
	Logger   *slog.Logger
	Metrics  *LicenseMetrics
	Audit    AuditSink
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Manager is the validation orchestrator. It owns the single in-memory
// license record, deduplicates concurrent revalidations, applies the
// resilience policy, keeps the persisted store in step and runs the
// periodic background re-check between Start and Stop.
type Manager struct {
	authority Authority
	store     Store
	policy    *Policy
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
	metrics   *LicenseMetrics
	audit     AuditSink

	group singleflight.Group
	// execMu keeps revalidations for different keys from overlapping.
	execMu sync.Mutex

	mu     sync.RWMutex
	record *Record
	last   Outcome
	loaded bool
	// epoch advances whenever Clear or ForceRevalidate rewrites the record
	// outside a revalidation.
	epoch uint64

	forced   atomic.Bool
	inFlight atomic.Int32

	lifecycleMu sync.Mutex
	stopCh      chan struct{}
	doneCh      chan struct{}
	auditWG     sync.WaitGroup
}

// NewManager creates a Manager. Nothing is loaded until Start or the first
// check.
func NewManager(authority Authority, store Store, cfg ManagerConfig) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRevalidationInterval
	}
	if cfg.Policy == nil {
		cfg.Policy = NewPolicy(PolicyConfig{})
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		authority: authority,
		store:     store,
		policy:    cfg.Policy,
		interval:  cfg.Interval,
		now:       cfg.Now,
		logger:    cfg.Logger.With(slog.String("component", "license_manager")),
		metrics:   cfg.Metrics,
		audit:     cfg.Audit,
		last:      noRecordOutcome(time.Time{}),
	}
}

// Interval returns the revalidation interval.
func (m *Manager) Interval() time.Duration { return m.interval }

// Policy returns the resilience policy in use.
func (m *Manager) Policy() *Policy { return m.policy }

func noRecordOutcome(now time.Time) Outcome {
	return Outcome{
		Verdict:   VerdictInvalid,
		Reason:    ReasonNoRecord,
		Message:   "no license activated",
		CheckedAt: now,
	}
}

func cachedOutcome(rec *Record, now time.Time) Outcome {
	out := Outcome{
		Verdict:      VerdictUsable,
		Reason:       ReasonCacheHit,
		Status:       rec.AuthorityStatus,
		Message:      "license valid",
		FailureCount: rec.ConsecutiveFailureCount,
		CheckedAt:    now,
		Record:       rec.Clone(),
	}
	if rec.ConsecutiveFailureCount > 0 {
		out.Verdict = VerdictDegraded
		out.Cached = true
		out.Message = "operating on cached license"
	}
	return out
}

// Load reads the persisted record into memory once. A corrupt document is
// logged and treated as absent.
func (m *Manager) Load(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return
	}
	m.loaded = true

	rec, err := m.store.Load()
	if err != nil {
		m.metrics.recordStoreError(ctx, "load")
		m.logger.ErrorContext(ctx, "Discarding unreadable license record",
			slog.String("error", err.Error()),
			slog.Bool("corrupt", errors.Is(err, ErrCorruptRecord)),
		)
		rec = nil
	}
	m.record = rec

	if rec == nil {
		m.logger.InfoContext(ctx, "No local license record found")
		return
	}
	m.last = cachedOutcome(rec, m.now())
	m.logger.InfoContext(ctx, "Local license record loaded",
		slog.String("key_prefix", rec.KeyPrefix()),
		slog.String("authority_status", rec.AuthorityStatus),
		slog.Time("expires_at", rec.ExpiresAt),
		slog.Int("consecutive_failures", rec.ConsecutiveFailureCount),
	)
}

// CheckCached is the cheap path. A warm, unexpired record checked within the
// interval is answered without any network call; anything else goes through
// Revalidate.
func (m *Manager) CheckCached(ctx context.Context) Outcome {
	m.Load(ctx)

	rec := m.CurrentRecord()
	now := m.now()
	if rec == nil {
		return noRecordOutcome(now)
	}
	if rec.Expired(now) {
		// Revalidate applies the local expiry check before any network call.
		return m.Revalidate(ctx, rec.Key)
	}
	if !m.forced.Load() && now.Sub(rec.LastCheckedAt) < m.interval {
		m.metrics.recordCacheHit(ctx)
		return cachedOutcome(rec, now)
	}
	return m.Revalidate(ctx, rec.Key)
}

// Revalidate consults the authority for key. Concurrent callers for the same
// key share a single request and observe the same outcome. The call is not
// cancelled when ctx is; the authority client's timeout bounds it instead.
//
// Revalidations for different keys run one after the other, so a caller
// asking about a second key while the first is in flight can wait up to
// twice the authority timeout.
func (m *Manager) Revalidate(ctx context.Context, key string) Outcome {
	return m.revalidate(ctx, key, triggerForeground)
}

func (m *Manager) revalidate(ctx context.Context, key, trigger string) Outcome {
	key = NormalizeKey(key)
	if key == "" {
		return Outcome{
			Verdict:   VerdictInvalid,
			Reason:    ReasonNoRecord,
			Message:   "license key is required",
			CheckedAt: m.now(),
		}
	}
	m.Load(ctx)

	detached := context.WithoutCancel(ctx)
	v, _, shared := m.group.Do(key, func() (interface{}, error) {
		return m.execute(detached, key, trigger), nil
	})
	if shared {
		m.metrics.recordShared(ctx)
	}
	return v.(Outcome)
}

func (m *Manager) execute(ctx context.Context, key, trigger string) Outcome {
	m.execMu.Lock()
	defer m.execMu.Unlock()

	m.inFlight.Add(1)
	defer m.inFlight.Add(-1)

	ctx, span := otel.Tracer(TracerName).Start(ctx, "license.revalidate",
		trace.WithAttributes(
			attribute.String("license.key_prefix", KeyPrefix(key)),
			attribute.String("license.trigger", trigger),
		),
	)
	defer span.End()

	start := time.Now()
	m.forced.Store(false)

	m.mu.RLock()
	prev, epoch := m.record.Clone(), m.epoch
	m.mu.RUnlock()
	prev = sameKey(prev, key)

	dec, expired := m.policy.CheckExpiry(prev, m.now())
	var rebase func(*Record) Decision
	if !expired {
		raw := m.authority.Check(ctx, key)
		m.metrics.recordAuthority(ctx, raw)
		now := m.now()
		dec = m.policy.Apply(prev, key, raw, now)
		rebase = func(cur *Record) Decision {
			return m.policy.Apply(cur, key, raw, now)
		}
	}

	out := m.commit(ctx, key, epoch, dec, rebase, trigger)

	m.metrics.recordValidation(ctx, trigger, time.Since(start), out)
	span.SetAttributes(
		attribute.String("license.verdict", out.Verdict.String()),
		attribute.String("license.reason", string(out.Reason)),
		attribute.Int("license.failure_count", out.FailureCount),
	)
	if out.Verdict == VerdictInvalid {
		span.SetStatus(codes.Error, out.Message)
	} else {
		span.SetStatus(codes.Ok, out.Message)
	}
	return out
}

// sameKey returns rec when it belongs to key. A different key starts from
// Absent and never inherits tolerance.
func sameKey(rec *Record, key string) *Record {
	if rec != nil && rec.Key != key {
		return nil
	}
	return rec
}

// commit applies a decision to memory and the store as one step. When the
// record was rewritten since epoch, a cleared record stays cleared and a
// surviving one has the authority outcome applied to it afresh.
func (m *Manager) commit(ctx context.Context, key string, epoch uint64, dec Decision, rebase func(*Record) Decision, trigger string) Outcome {
	m.mu.Lock()
	if m.epoch != epoch {
		if m.record == nil {
			out := m.last
			m.mu.Unlock()
			m.logger.InfoContext(ctx, "Discarding revalidation superseded by clear",
				slog.String("key_prefix", KeyPrefix(key)),
				slog.String("trigger", trigger),
			)
			return out
		}
		if rebase != nil {
			dec = rebase(sameKey(m.record.Clone(), key))
		}
	}
	from := m.last.Verdict
	switch {
	case dec.Delete:
		if err := m.store.Clear(); err != nil {
			m.metrics.recordStoreError(ctx, "clear")
			m.logger.ErrorContext(ctx, "Failed to remove license record",
				slog.String("key_prefix", KeyPrefix(key)),
				slog.String("error", err.Error()),
			)
		}
		m.record = nil
	case dec.Persist && dec.Next != nil:
		if err := m.store.Save(dec.Next); err != nil {
			m.metrics.recordStoreError(ctx, "save")
			m.logger.ErrorContext(ctx, "Failed to persist license record",
				slog.String("key_prefix", KeyPrefix(key)),
				slog.String("error", err.Error()),
			)
		}
		m.record = dec.Next
	}
	out := dec.Outcome
	m.last = out
	m.mu.Unlock()

	if dec.Delete {
		m.metrics.recordDeletion(ctx, out.Reason)
	}
	m.metrics.recordVerdict(ctx, out)
	m.logOutcome(ctx, key, trigger, out)

	if from != out.Verdict || dec.Delete {
		m.recordTransition(ctx, key, from, out, trigger)
	}
	return out
}

func (m *Manager) logOutcome(ctx context.Context, key, trigger string, out Outcome) {
	attrs := []slog.Attr{
		slog.String("key_prefix", KeyPrefix(key)),
		slog.String("trigger", trigger),
		slog.String("verdict", out.Verdict.String()),
		slog.String("reason", string(out.Reason)),
		slog.String("status", out.Status),
		slog.Int("consecutive_failures", out.FailureCount),
	}
	switch {
	case out.Verdict == VerdictUsable:
		m.logger.LogAttrs(ctx, slog.LevelInfo, "License confirmed by authority", attrs...)
	case out.Verdict == VerdictDegraded:
		m.logger.LogAttrs(ctx, slog.LevelWarn, "License check inconclusive, using cached record",
			append(attrs, slog.String("message", out.Message))...)
	case out.Reason == ReasonNoRecord:
		m.logger.LogAttrs(ctx, slog.LevelInfo, "No usable license", attrs...)
	default:
		m.logger.LogAttrs(ctx, slog.LevelWarn, "License invalidated",
			append(attrs, slog.String("message", out.Message))...)
	}
}

func (m *Manager) recordTransition(ctx context.Context, key string, from Verdict, out Outcome, trigger string) {
	if m.audit == nil {
		return
	}
	t := Transition{
		At:           out.CheckedAt,
		KeyPrefix:    KeyPrefix(key),
		From:         from.String(),
		To:           out.Verdict.String(),
		Reason:       out.Reason,
		Status:       out.Status,
		FailureCount: out.FailureCount,
		Trigger:      trigger,
		TraceID:      infrastructure.GetTraceID(ctx),
	}
	if t.At.IsZero() {
		t.At = m.now()
	}

	// Audit sinks may be remote; they must not extend a revalidation.
	m.auditWG.Add(1)
	go func() {
		defer m.auditWG.Done()
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
		defer cancel()
		if err := m.audit.RecordTransition(actx, t); err != nil {
			m.logger.WarnContext(actx, "Failed to record license transition",
				slog.String("error", err.Error()),
			)
		}
	}()
}

// ForceRevalidate arms a one-shot bypass of the interval for the next
// CheckCached or background tick and resets the failure count.
func (m *Manager) ForceRevalidate(ctx context.Context) {
	m.Load(ctx)
	m.forced.Store(true)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.record == nil || m.record.ConsecutiveFailureCount == 0 {
		return
	}
	next := m.record.Clone()
	next.ConsecutiveFailureCount = 0
	m.epoch++
	if err := m.store.Save(next); err != nil {
		m.metrics.recordStoreError(ctx, "save")
		m.logger.ErrorContext(ctx, "Failed to persist license record",
			slog.String("key_prefix", next.KeyPrefix()),
			slog.String("error", err.Error()),
		)
	}
	m.record = next
	m.logger.InfoContext(ctx, "License revalidation forced",
		slog.String("key_prefix", next.KeyPrefix()),
	)
}

// Forced reports whether a forced revalidation is pending.
func (m *Manager) Forced() bool { return m.forced.Load() }

// Clear unconditionally removes the in-memory and persisted record. The
// in-memory record is gone even when the store fails.
func (m *Manager) Clear(ctx context.Context) error {
	m.Load(ctx)
	m.forced.Store(false)

	m.mu.Lock()
	prev := m.record
	from := m.last.Verdict
	err := m.store.Clear()
	m.record = nil
	m.epoch++
	m.last = Outcome{
		Verdict:   VerdictInvalid,
		Reason:    ReasonCleared,
		Message:   "license cleared",
		CheckedAt: m.now(),
	}
	out := m.last
	m.mu.Unlock()

	if err != nil {
		m.metrics.recordStoreError(ctx, "clear")
		m.logger.ErrorContext(ctx, "Failed to remove license record", slog.String("error", err.Error()))
	}
	if prev != nil {
		m.metrics.recordDeletion(ctx, ReasonCleared)
		m.logger.InfoContext(ctx, "License cleared", slog.String("key_prefix", prev.KeyPrefix()))
		m.recordTransition(ctx, prev.Key, from, out, triggerClear)
	}
	return err
}

// CurrentRecord returns a copy of the in-memory record, or nil. It never
// performs I/O.
func (m *Manager) CurrentRecord() *Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record.Clone()
}

// IsUsable reports whether the in-memory record is present and unexpired.
func (m *Manager) IsUsable() bool {
	return m.CurrentRecord().Usable(m.now())
}

// LastVerdict returns the most recent outcome without waiting for any
// in-flight revalidation.
func (m *Manager) LastVerdict() Outcome {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.last
	out.Record = m.record.Clone()
	return out
}

// InFlight reports whether a revalidation is currently running.
func (m *Manager) InFlight() bool { return m.inFlight.Load() > 0 }

// Start loads the persisted record and launches the background re-check.
// Calling Start on a running Manager is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.stopCh != nil {
		return
	}
	m.Load(ctx)

	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.run(m.stopCh, m.doneCh)

	m.logger.InfoContext(ctx, "License manager started",
		slog.Duration("interval", m.interval),
		slog.Int("failure_threshold", m.policy.Threshold()),
	)
}

// Stop halts the background re-check and waits for pending audit writes.
// A revalidation already in flight is allowed to finish.
func (m *Manager) Stop() {
	m.lifecycleMu.Lock()
	stopCh, doneCh := m.stopCh, m.doneCh
	m.stopCh, m.doneCh = nil, nil
	m.lifecycleMu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}
	m.auditWG.Wait()
}

func (m *Manager) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.tick(infrastructure.ContextWithTraceID(context.Background()))
		}
	}
}

// tick runs one silent background re-check.
func (m *Manager) tick(ctx context.Context) {
	rec := m.CurrentRecord()
	if rec == nil || m.InFlight() {
		return
	}
	m.revalidate(ctx, rec.Key, triggerBackground)
}
