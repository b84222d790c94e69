package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	apierrors "github.com/actiomidia/projeto-bot-whatsapp/internal/errors"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/infrastructure"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/domain"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/events"
)

const (
	// DefaultBulkDelay spaces consecutive sends to avoid account bans.
	DefaultBulkDelay = 3 * time.Second
	// DefaultMaxTargets caps one bulk job.
	DefaultMaxTargets = 500
)

// BulkKind selects numbers or groups as targets.
type BulkKind string

const (
	BulkNumbers BulkKind = "numbers"
	BulkGroups  BulkKind = "groups"
)

// Abort reasons reported in the bulk summary.
const (
	AbortStopOnError    = "stop_on_error"
	AbortLicenseInvalid = "license_invalid"
	AbortCancelled      = "cancelled"
	AbortSessionLost    = "session_not_ready"
)

// BulkRequest describes one job.
type BulkRequest struct {
	Kind    BulkKind
	Targets []string
	Message string
	// Delay overrides the configured spacing when positive.
	Delay       time.Duration
	StopOnError bool
}

// BulkConfig configures a BulkSender.
type BulkConfig struct {
	Delay      time.Duration
	MaxTargets int
	// StopOnError applies to every job, in addition to the per-request flag.
	StopOnError bool
	Logger      *slog.Logger
	Metrics     *infrastructure.AppMetrics
	Publisher   Publisher
	// Reports, when set, receives every finished job.
	Reports ReportSink
}

// ReportSink stores the outcome of a finished job and returns its name.
type ReportSink interface {
	WriteBulkReport(ctx context.Context, summary events.BulkSummary) (string, error)
}

// BulkSender sends one message to many targets, one at a time. Only one job
// runs at once. The license is re-checked before every send so a revoked
// key stops a job mid-way.
type BulkSender struct {
	session   Session
	gate      LicenseGate
	delay     time.Duration
	max       int
	stopOnErr bool
	logger    *slog.Logger
	metrics   *infrastructure.AppMetrics
	publisher Publisher
	reports   ReportSink

	mu      sync.Mutex
	jobID   string
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// NewBulkSender creates a sender. gate may be nil in tests.
func NewBulkSender(session Session, gate LicenseGate, cfg BulkConfig) *BulkSender {
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.MaxTargets <= 0 {
		cfg.MaxTargets = DefaultMaxTargets
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = NopPublisher{}
	}
	return &BulkSender{
		session:   session,
		gate:      gate,
		delay:     cfg.Delay,
		max:       cfg.MaxTargets,
		stopOnErr: cfg.StopOnError,
		logger:    cfg.Logger.With(slog.String("component", "bulk_sender")),
		metrics:   cfg.Metrics,
		publisher: cfg.Publisher,
		reports:   cfg.Reports,
	}
}

// MaxTargets is the largest accepted job.
func (b *BulkSender) MaxTargets() int { return b.max }

// Running returns the ID of the job in progress, or "".
func (b *BulkSender) Running() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jobID
}

func (b *BulkSender) validate(req *BulkRequest) error {
	req.StopOnError = req.StopOnError || b.stopOnErr
	if req.Message == "" {
		return apierrors.ErrValidation("message", "message is required")
	}
	if len(req.Targets) == 0 {
		return apierrors.ErrValidation("targets", "at least one target is required")
	}
	if len(req.Targets) > b.max {
		return apierrors.ErrValidation("targets", fmt.Sprintf("at most %d targets per job", b.max))
	}
	if req.Kind == BulkGroups {
		for _, id := range req.Targets {
			if !IsGroupID(id) {
				return apierrors.ErrValidation("group_ids", fmt.Sprintf("%q is not a group id", id))
			}
		}
	}
	if !b.session.Ready() {
		return apierrors.ErrSessionNotReady
	}
	return nil
}

func (b *BulkSender) acquire(parent context.Context) (context.Context, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.jobID != "" {
		return nil, "", apierrors.ErrBulkAlreadyRunning
	}
	ctx, cancel := context.WithCancel(parent)
	b.jobID = uuid.New().String()
	b.cancel = cancel
	b.running.Add(1)
	return ctx, b.jobID, nil
}

func (b *BulkSender) release() {
	b.mu.Lock()
	if b.cancel != nil {
		b.cancel()
	}
	b.jobID = ""
	b.cancel = nil
	b.mu.Unlock()
	b.running.Done()
}

// Start validates req and runs it in the background. Progress is published
// as realtime events.
func (b *BulkSender) Start(ctx context.Context, req BulkRequest) (string, error) {
	if err := b.validate(&req); err != nil {
		return "", err
	}
	// The job outlives the HTTP request that started it.
	jobCtx, jobID, err := b.acquire(context.WithoutCancel(ctx))
	if err != nil {
		return "", err
	}
	go func() {
		defer b.release()
		b.run(jobCtx, jobID, req)
	}()
	return jobID, nil
}

// Run executes req synchronously and returns its summary.
func (b *BulkSender) Run(ctx context.Context, req BulkRequest) (events.BulkSummary, error) {
	if err := b.validate(&req); err != nil {
		return events.BulkSummary{}, err
	}
	jobCtx, jobID, err := b.acquire(ctx)
	if err != nil {
		return events.BulkSummary{}, err
	}
	defer b.release()
	return b.run(jobCtx, jobID, req), nil
}

// Cancel aborts the running job, if any.
func (b *BulkSender) Cancel() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel == nil {
		return false
	}
	b.cancel()
	return true
}

// Stop cancels the running job and waits for it to finish.
func (b *BulkSender) Stop() {
	b.Cancel()
	b.running.Wait()
}

type bulkEventTypes struct {
	progress, sent, failed, complete events.MessageType
	metricKind                       string
}

func eventTypesFor(kind BulkKind) bulkEventTypes {
	if kind == BulkGroups {
		return bulkEventTypes{
			progress:   events.MessageTypeGroupBulkProgress,
			sent:       events.MessageTypeGroupMessageSent,
			failed:     events.MessageTypeGroupMessageFailed,
			complete:   events.MessageTypeGroupBulkComplete,
			metricKind: "group",
		}
	}
	return bulkEventTypes{
		progress:   events.MessageTypeBulkProgress,
		sent:       events.MessageTypeBulkMessageSent,
		failed:     events.MessageTypeBulkMessageFailed,
		complete:   events.MessageTypeBulkComplete,
		metricKind: "direct",
	}
}

func (b *BulkSender) run(ctx context.Context, jobID string, req BulkRequest) events.BulkSummary {
	ctx = infrastructure.WithTraceID(ctx, jobID)
	types := eventTypesFor(req.Kind)
	total := len(req.Targets)

	delay := b.delay
	if req.Delay > 0 {
		delay = req.Delay
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	summary := events.BulkSummary{
		JobID:     jobID,
		Kind:      string(req.Kind),
		Total:     total,
		Results:   make([]events.BulkResult, 0, total),
		StartTime: time.Now(),
	}

	b.logger.InfoContext(ctx, "bulk job started",
		slog.String("job_id", jobID),
		slog.String("kind", string(req.Kind)),
		slog.Int("total", total),
		slog.Duration("delay", delay),
		slog.Bool("stop_on_error", req.StopOnError),
	)

	for i, target := range req.Targets {
		if err := limiter.Wait(ctx); err != nil {
			summary.Aborted, summary.Reason = true, AbortCancelled
			break
		}
		if b.gate != nil && !b.gate.IsUsable() {
			summary.Aborted, summary.Reason = true, AbortLicenseInvalid
			break
		}
		if !b.session.Ready() {
			summary.Aborted, summary.Reason = true, AbortSessionLost
			break
		}

		b.publisher.Broadcast(types.progress, events.BulkProgress{
			JobID:      jobID,
			Total:      total,
			Current:    i + 1,
			Sent:       summary.Sent,
			Failed:     summary.Failed,
			Percentage: (i + 1) * 100 / total,
		})

		res, err := b.sendOne(ctx, req.Kind, target, req.Message)
		b.metrics.RecordMessage(ctx, types.metricKind, err)

		item := events.BulkItemEvent{JobID: jobID, Target: target, Index: i + 1, Total: total}
		result := events.BulkResult{Target: target, Timestamp: time.Now()}
		if err != nil {
			summary.Failed++
			item.Error, result.Error = err.Error(), err.Error()
			summary.Results = append(summary.Results, result)
			b.publisher.Broadcast(types.failed, item)
			b.logger.WarnContext(ctx, "bulk send failed",
				slog.String("job_id", jobID),
				slog.String("target", maskTarget(req.Kind, target)),
				slog.Int("index", i+1),
				slog.String("error", err.Error()),
			)
			if errors.Is(err, context.Canceled) {
				summary.Aborted, summary.Reason = true, AbortCancelled
				break
			}
			if req.StopOnError {
				summary.Aborted, summary.Reason = true, AbortStopOnError
				break
			}
			continue
		}

		summary.Sent++
		item.MessageID, item.Name = res.MessageID, res.GroupName
		result.Success, result.MessageID, result.Name = true, res.MessageID, res.GroupName
		summary.Results = append(summary.Results, result)
		b.publisher.Broadcast(types.sent, item)
	}

	summary.Skipped = total - summary.Sent - summary.Failed
	summary.EndTime = time.Now()
	if b.reports != nil {
		name, err := b.reports.WriteBulkReport(ctx, summary)
		if err != nil {
			b.logger.ErrorContext(ctx, "bulk report not written",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()))
		}
		summary.Report = name
	}
	b.publisher.Broadcast(types.complete, summary)

	outcome := "completed"
	if summary.Aborted {
		outcome = summary.Reason
	}
	b.metrics.RecordBulkJob(ctx, outcome, summary.EndTime.Sub(summary.StartTime))

	b.logger.InfoContext(ctx, "bulk job finished",
		slog.String("job_id", jobID),
		slog.Int("sent", summary.Sent),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped),
		slog.Bool("aborted", summary.Aborted),
		slog.String("reason", summary.Reason),
		slog.Duration("duration", summary.EndTime.Sub(summary.StartTime)),
	)
	return summary
}

func (b *BulkSender) sendOne(ctx context.Context, kind BulkKind, target, message string) (domain.SendResult, error) {
	if kind == BulkGroups {
		return b.session.SendToGroup(ctx, target, message)
	}
	return b.session.Send(ctx, target, message)
}

func maskTarget(kind BulkKind, target string) string {
	if kind == BulkGroups {
		return target
	}
	digits, _, err := NormalizeNumber(target)
	if err != nil {
		return "invalid"
	}
	return MaskNumber(digits)
}
