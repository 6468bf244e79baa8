package event

import (
	"context"

	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// JobLogHandler writes one structured log line per batch job lifecycle
// event, so job progress can be followed from the logs alone.
type JobLogHandler struct {
	logger *zap.Logger
}

// NewJobLogHandler creates a new JobLogHandler
func NewJobLogHandler(logger *zap.Logger) *JobLogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobLogHandler{logger: logger.Named("jobs")}
}

// EventTypes implements shared.EventHandler
func (h *JobLogHandler) EventTypes() []string {
	return []string{
		integration.EventTypeJobStarted,
		integration.EventTypeSliceCompleted,
		integration.EventTypeJobCompleted,
		integration.EventTypeJobPaused,
		integration.EventTypeJobResumed,
		integration.EventTypeJobStopped,
		integration.EventTypeJobFailed,
	}
}

// Handle implements shared.EventHandler
func (h *JobLogHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*integration.JobEvent)
	if !ok {
		return nil
	}

	fields := []zap.Field{
		zap.String("job_id", e.JobID.String()),
		zap.String("status", e.Status.String()),
		zap.Int("cursor", e.Cursor),
		zap.Int("total", e.Total),
		zap.Int("processed", e.Counters.Processed),
		zap.Int("succeeded", e.Counters.Succeeded),
		zap.Int("failed", e.Counters.Failed),
	}
	if e.SliceSize > 0 {
		fields = append(fields, zap.Int("slice_size", e.SliceSize))
	}
	if e.Reason != "" {
		fields = append(fields, zap.String("reason", e.Reason))
	}

	h.logger.Info(e.EventType(), fields...)
	return nil
}

var _ shared.EventHandler = (*JobLogHandler)(nil)
