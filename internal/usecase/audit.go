package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/goldnightmare/analysis-api/internal/domain"
	"github.com/goldnightmare/analysis-api/internal/observability"
)

// auditQueueSize bounds memory under a dead store; overflow drops records,
// which the contract for best-effort audit writes allows.
const auditQueueSize = 1024

// AuditRecorder persists analysis logs and daily summary roll-ups from a
// background worker. Enqueueing never blocks the request path and failures
// never propagate to users.
type AuditRecorder struct {
	logs      domain.AnalysisLogRepository
	summaries domain.DailySummaryRepository
	clock     domain.Clock
	log       *slog.Logger

	queue    chan domain.AnalysisLog
	wg       sync.WaitGroup
	stopOnce sync.Once

	failures int
}

// NewAuditRecorder builds the recorder. Call Start before Record.
func NewAuditRecorder(logs domain.AnalysisLogRepository, summaries domain.DailySummaryRepository, clock domain.Clock, log *slog.Logger) *AuditRecorder {
	return &AuditRecorder{
		logs:      logs,
		summaries: summaries,
		clock:     clock,
		log:       log,
		queue:     make(chan domain.AnalysisLog, auditQueueSize),
	}
}

// Start launches the single background worker.
func (r *AuditRecorder) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for item := range r.queue {
			r.process(item)
			observability.AuditQueueDepth.Set(float64(len(r.queue)))
		}
	}()
}

// Stop drains the queue and waits for the worker to finish.
func (r *AuditRecorder) Stop() {
	r.stopOnce.Do(func() { close(r.queue) })
	r.wg.Wait()
}

// Record enqueues one attempt, dropping on overflow.
func (r *AuditRecorder) Record(l domain.AnalysisLog) {
	if l.ID == "" {
		l.ID = newID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = r.clock.Now().UTC()
	}
	select {
	case r.queue <- l:
		observability.AuditQueueDepth.Set(float64(len(r.queue)))
	default:
		observability.AuditDroppedTotal.Inc()
		r.log.Warn("audit queue full, dropping record", slog.Int64("user_id", l.UserID))
	}
}

func (r *AuditRecorder) process(l domain.AnalysisLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Every item probes the backend; a failed insert is a dropped record,
	// there are no retries.
	if err := r.logs.Insert(ctx, l); err != nil {
		observability.AuditDroppedTotal.Inc()
		r.noteFailure(err)
		return
	}

	date := domain.DateOf(l.CreatedAt)
	s, err := r.summaries.Get(ctx, l.UserID, date)
	if err != nil {
		s = domain.DailySummary{ID: newID(), UserID: l.UserID, Date: date}
	}
	s.Observe(l.Kind, l.Success, l.ProcessingMS)
	if err := r.summaries.Upsert(ctx, s); err != nil {
		r.noteFailure(err)
		return
	}
	r.failures = 0
}

func (r *AuditRecorder) noteFailure(err error) {
	r.failures++
	if r.failures == 10 {
		r.log.Warn("audit backend failing repeatedly, records may be dropped", slog.Any("error", err))
		return
	}
	r.log.Warn("audit write failed", slog.Any("error", err), slog.Int("consecutive", r.failures))
}
