package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/storesync/backend/internal/domain/catalog"
	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/domain/shared"
	"github.com/storesync/backend/internal/infrastructure/logger"
	"github.com/storesync/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Reconcile outcomes reported to SyncMetrics
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeFailed  = "failed"
)

// SyncMetrics receives per-item and per-slice measurements.
type SyncMetrics interface {
	RecordItem(ctx context.Context, storeID uuid.UUID, outcome string)
	RecordSlice(ctx context.Context, processed int, duration time.Duration, stoppedEarly bool)
}

type noopMetrics struct{}

func (noopMetrics) RecordItem(context.Context, uuid.UUID, string) {}
func (noopMetrics) RecordSlice(context.Context, int, time.Duration, bool) {}

// CoordinatorConfig holds the slice and lease settings
type CoordinatorConfig struct {
	// BatchSize is the default slice size when a job does not set one
	BatchSize         int
	Budget            SliceBudget
	ContinuationDelay time.Duration
	LeaseTTL          time.Duration
	MaxRecentErrors   int
	// PersistTimeout bounds writes made after the caller's context is done
	PersistTimeout time.Duration
}

// DefaultCoordinatorConfig returns sensible defaults
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		BatchSize: 25,
		Budget: SliceBudget{
			TimeBudget:     25 * time.Second,
			MemoryFraction: DefaultMemoryFraction,
		},
		ContinuationDelay: time.Second,
		LeaseTTL:          time.Minute,
		MaxRecentErrors:   integration.DefaultMaxRecentErrors,
		PersistTimeout:    10 * time.Second,
	}
}

func (c *CoordinatorConfig) applyDefaults() {
	d := DefaultCoordinatorConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = c.Budget.TimeBudget + 30*time.Second
	}
	if c.MaxRecentErrors <= 0 {
		c.MaxRecentErrors = d.MaxRecentErrors
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = d.PersistTimeout
	}
	if c.ContinuationDelay < 0 {
		c.ContinuationDelay = 0
	}
}

// CoordinatorDeps are the collaborators of the BatchCoordinator.
// Images, Metrics, Meter and Clock are optional.
type CoordinatorDeps struct {
	Stores    integration.StoreRepository
	Jobs      integration.JobRepository
	Ledger    integration.LedgerRepository
	Source    catalog.SourceCatalog
	Clients   integration.StorefrontClientFactory
	Images    integration.ImageValidator
	Lease     integration.JobLease
	Scheduler integration.ContinuationScheduler
	Events    shared.EventPublisher
	Metrics   SyncMetrics
	Meter     ResourceMeter
	Clock     func() time.Time
	Logger    *zap.Logger
}

// BatchCoordinator drives batch jobs through bounded, resumable slices.
type BatchCoordinator struct {
	stores     integration.StoreRepository
	jobs       integration.JobRepository
	ledger     integration.LedgerRepository
	source     catalog.SourceCatalog
	clients    integration.StorefrontClientFactory
	images     integration.ImageValidator
	lease      integration.JobLease
	scheduler  integration.ContinuationScheduler
	events     shared.EventPublisher
	metrics    SyncMetrics
	meter      ResourceMeter
	now        func() time.Time
	reconciler *Reconciler
	validate   *validator.Validate
	config     CoordinatorConfig
	logger     *zap.Logger
}

// NewBatchCoordinator creates a new BatchCoordinator
func NewBatchCoordinator(deps CoordinatorDeps, config CoordinatorConfig) *BatchCoordinator {
	config.applyDefaults()
	c := &BatchCoordinator{
		stores:    deps.Stores,
		jobs:      deps.Jobs,
		ledger:    deps.Ledger,
		source:    deps.Source,
		clients:   deps.Clients,
		images:    deps.Images,
		lease:     deps.Lease,
		scheduler: deps.Scheduler,
		events:    deps.Events,
		metrics:   deps.Metrics,
		meter:     deps.Meter,
		now:       deps.Clock,
		validate:  validator.New(),
		config:    config,
		logger:    deps.Logger,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.metrics == nil {
		c.metrics = noopMetrics{}
	}
	if c.meter == nil {
		c.meter = RuntimeMeter{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.reconciler = NewReconciler(c.logger)
	return c
}

// ---------------------------------------------------------------------------
// Command surface
// ---------------------------------------------------------------------------

// StartBatch validates the command, probes every destination store's
// credentials and creates a job whose first slice is enqueued immediately.
// A store that rejects its credentials fails the call with *CredentialError
// and no job is created.
func (c *BatchCoordinator) StartBatch(ctx context.Context, cmd StartBatchCommand) (*StartBatchResponse, error) {
	job, err := c.createJob(ctx, cmd, nil)
	if err != nil {
		return nil, err
	}
	return &StartBatchResponse{JobID: job.ID, Progress: job.Progress()}, nil
}

func (c *BatchCoordinator) createJob(ctx context.Context, cmd StartBatchCommand, retryOf *uuid.UUID) (*integration.BatchJob, error) {
	if err := c.validate.Struct(cmd); err != nil {
		return nil, shared.InvalidInputf("%s", err)
	}

	itemIDs := cmd.WorkItemIDs
	if len(itemIDs) == 0 {
		if !cmd.AllSyncable {
			return nil, shared.InvalidInputf("work_item_ids is required unless all_syncable is set")
		}
		items, err := c.source.ListSyncableItems(ctx)
		if err != nil {
			return nil, fmt.Errorf("list syncable items: %w", err)
		}
		itemIDs = make([]int64, 0, len(items))
		for _, item := range items {
			itemIDs = append(itemIDs, item.ID)
		}
	}

	job, err := integration.NewBatchJob(itemIDs, cmd.DestinationStoreIDs, cmd.Options.ToJobOptions())
	if err != nil {
		return nil, shared.InvalidInputf("%s", err)
	}
	job.RetryOf = retryOf

	if err := c.probeStores(ctx, job.DestinationStoreIDs); err != nil {
		return nil, err
	}

	if err := c.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create batch job: %w", err)
	}

	c.logger.Info("Batch job created",
		zap.String("job_id", job.ID.String()),
		zap.Int("work_items", job.Total()),
		zap.Int("stores", len(job.DestinationStoreIDs)),
	)
	c.publish(ctx, integration.NewJobEvent(integration.EventTypeJobStarted, job, 0))
	c.enqueue(ctx, job, c.now())
	return job, nil
}

func (c *BatchCoordinator) probeStores(ctx context.Context, ids []uuid.UUID) error {
	stores, err := c.stores.FindByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load stores: %w", err)
	}
	byID := make(map[uuid.UUID]*integration.StoreProfile, len(stores))
	for i := range stores {
		byID[stores[i].ID] = &stores[i]
	}

	for _, id := range ids {
		store, ok := byID[id]
		if !ok {
			return shared.NotFoundf("store %s not found", id)
		}
		if !store.IsActive() {
			return shared.InvalidInputf("store %s is inactive", id)
		}
		client, err := c.clients.ClientFor(store)
		if err != nil {
			return &integration.CredentialError{StoreID: id, Err: err}
		}
		if err := client.Probe(ctx); err != nil {
			c.logger.Warn("Store probe failed",
				zap.String("store_id", id.String()),
				zap.Error(err),
			)
			var ce *integration.CredentialError
			if errors.As(err, &ce) {
				ce.StoreID = id
				return ce
			}
			return &integration.CredentialError{StoreID: id, Err: err}
		}
	}
	return nil
}

// GetStatus returns the progress view of a job
func (c *BatchCoordinator) GetStatus(ctx context.Context, jobID uuid.UUID) (*BatchStatusResponse, error) {
	job, err := c.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return ToBatchStatusResponse(job), nil
}

// Pause suspends a processing job; the next continuation becomes a no-op.
func (c *BatchCoordinator) Pause(ctx context.Context, jobID uuid.UUID) (*BatchStatusResponse, error) {
	return c.control(ctx, jobID, integration.EventTypeJobPaused, func(job *integration.BatchJob, now time.Time) error {
		return job.Pause(now)
	})
}

// Resume continues a paused job and enqueues its next slice
func (c *BatchCoordinator) Resume(ctx context.Context, jobID uuid.UUID) (*BatchStatusResponse, error) {
	resp, err := c.control(ctx, jobID, integration.EventTypeJobResumed, func(job *integration.BatchJob, now time.Time) error {
		return job.Resume(now)
	})
	if err != nil {
		return nil, err
	}
	job, err := c.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	c.enqueue(ctx, job, c.now())
	return resp, nil
}

// Stop terminates a job. It cannot be resumed afterwards.
func (c *BatchCoordinator) Stop(ctx context.Context, jobID uuid.UUID) (*BatchStatusResponse, error) {
	return c.control(ctx, jobID, integration.EventTypeJobStopped, func(job *integration.BatchJob, now time.Time) error {
		return job.Stop(now)
	})
}

func (c *BatchCoordinator) control(
	ctx context.Context,
	jobID uuid.UUID,
	eventType string,
	apply func(*integration.BatchJob, time.Time) error,
) (*BatchStatusResponse, error) {
	job, err := c.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	from := job.Status
	if err := apply(job, c.now()); err != nil {
		return nil, err
	}
	if err := c.jobs.CompareAndSetStatus(ctx, job.ID, from, job.Status, job.StatusReason); err != nil {
		return nil, err
	}

	c.logger.Info("Batch job status changed",
		zap.String("job_id", job.ID.String()),
		zap.String("from", from.String()),
		zap.String("to", job.Status.String()),
	)
	c.publish(ctx, integration.NewJobEvent(eventType, job, 0))
	return ToBatchStatusResponse(job), nil
}

// Retry starts a new job over the items of a finished job that failed on
// any store, plus whatever it never reached.
func (c *BatchCoordinator) Retry(ctx context.Context, jobID uuid.UUID) (*StartBatchResponse, error) {
	job, err := c.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.IsTerminal() {
		return nil, fmt.Errorf("%w: job %s is still %s", integration.ErrInvalidTransition, job.ID, job.Status)
	}

	failed, err := c.ledger.FailedSourceItems(ctx, job.DestinationStoreIDs, job.WorkItemIDs[:job.Cursor])
	if err != nil {
		return nil, fmt.Errorf("find failed items: %w", err)
	}
	failedSet := make(map[int64]struct{}, len(failed))
	for _, id := range failed {
		failedSet[id] = struct{}{}
	}

	retryIDs := make([]int64, 0, len(failed)+job.Remaining())
	for i, id := range job.WorkItemIDs {
		if _, ok := failedSet[id]; ok || i >= job.Cursor {
			retryIDs = append(retryIDs, id)
		}
	}
	if len(retryIDs) == 0 {
		return nil, integration.ErrNothingToRetry
	}

	cmd := StartBatchCommand{
		WorkItemIDs:         retryIDs,
		DestinationStoreIDs: job.DestinationStoreIDs,
		Options:             optionsInput(job.Options),
	}
	retry, err := c.createJob(ctx, cmd, &job.ID)
	if err != nil {
		return nil, err
	}
	return &StartBatchResponse{JobID: retry.ID, Progress: retry.Progress()}, nil
}

func optionsInput(o integration.JobOptions) BatchOptionsInput {
	updateStock := o.UpdateStock
	return BatchOptionsInput{
		IncludeVariations: o.IncludeVariations,
		IncludeImages:     o.IncludeImages,
		IncludeCategories: o.IncludeCategories,
		PreservePrices:    o.PreservePrices,
		UpdateStock:       &updateStock,
		BatchSize:         o.BatchSize,
		Priority:          o.Priority,
	}
}

// Recover enqueues every job left processing, e.g. after a restart.
func (c *BatchCoordinator) Recover(ctx context.Context) (int, error) {
	jobs, err := c.jobs.FindByStatus(ctx, integration.JobStatusProcessing)
	if err != nil {
		return 0, err
	}
	for i := range jobs {
		c.enqueue(ctx, &jobs[i], c.now())
	}
	if len(jobs) > 0 {
		c.logger.Info("Recovered processing batch jobs", zap.Int("count", len(jobs)))
	}
	return len(jobs), nil
}

// ---------------------------------------------------------------------------
// Slice execution
// ---------------------------------------------------------------------------

type storeTarget struct {
	store   *integration.StoreProfile
	client  integration.StorefrontClient
	err     error
	written int // ledger rows written this slice
}

// ExecuteSlice runs the next slice of a job under its lease. A job that is
// not processing is left untouched. Items run in order across every store;
// after each item the slice budget decides whether to stop early. Remaining
// work is handed to the continuation scheduler.
func (c *BatchCoordinator) ExecuteSlice(ctx context.Context, jobID uuid.UUID) (*SliceOutcome, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "batch_job", "execute_slice",
		telemetry.WithAttribute(telemetry.SpanAttrJobID, jobID.String()),
	)
	defer span.End()
	ctx, _ = logger.WithJobID(ctx, c.logger, jobID.String())

	outcome, err := c.executeSlice(ctx, jobID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrProcessed, outcome.Processed,
		telemetry.SpanAttrCursor, outcome.Cursor,
		telemetry.SpanAttrJobStatus, outcome.Status.String(),
	)
	return outcome, nil
}

func (c *BatchCoordinator) executeSlice(ctx context.Context, jobID uuid.UUID) (*SliceOutcome, error) {
	saved, err := c.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	lease, err := c.lease.Acquire(ctx, jobID, c.config.LeaseTTL, saved.FencingToken)
	if err != nil {
		return nil, err
	}
	defer func() {
		releaseCtx, cancel := c.persistContext(ctx)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			c.logger.Warn("Failed to release job lease",
				zap.String("job_id", jobID.String()),
				zap.Error(err),
			)
		}
	}()

	job, err := c.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != integration.JobStatusProcessing {
		c.logger.Debug("Skipping slice for non-processing job",
			zap.String("job_id", job.ID.String()),
			zap.String("status", job.Status.String()),
		)
		return &SliceOutcome{JobID: job.ID, Status: job.Status, Cursor: job.Cursor, Total: job.Total(), Skipped: true}, nil
	}

	if lease.Token() <= job.FencingToken {
		return nil, integration.ErrStaleFencingToken
	}
	job.FencingToken = lease.Token()
	job.Attempts++

	targets := c.loadTargets(ctx, job.DestinationStoreIDs)
	if allStoresDeleted(targets) {
		return c.failJob(ctx, job, "every destination store was deleted")
	}
	slice := job.NextSlice(c.sliceSize(job))
	started := c.now()
	processed := 0
	stoppedEarly := false

	for _, itemID := range slice {
		ok := c.processItem(ctx, job, itemID, targets)
		if ctx.Err() != nil {
			// Interrupted mid-item; the item is redone by the next slice.
			break
		}
		job.RecordItem(ok)
		processed++

		if processed < len(slice) && c.config.Budget.ShouldStop(c.now().Sub(started), c.meter.MemoryInUse()) {
			stoppedEarly = true
			logger.L(ctx).Info("Stopping slice early",
				zap.Int("processed", processed),
				zap.Error(integration.ErrResourceBudgetExceeded),
			)
			break
		}
	}

	now := c.now()
	if err := job.Advance(processed, now); err != nil {
		return nil, err
	}

	persistCtx, cancel := c.persistContext(ctx)
	defer cancel()
	if err := c.jobs.SaveProgress(persistCtx, job); err != nil {
		return nil, fmt.Errorf("save job progress: %w", err)
	}

	for id, target := range targets {
		if target.err != nil || processed == 0 {
			continue
		}
		if err := c.stores.UpdateLastSyncAt(persistCtx, id, now); err != nil {
			c.logger.Warn("Failed to update store last sync time",
				zap.String("store_id", id.String()),
				zap.Error(err),
			)
		}
	}

	if flushed := flushedStores(job.DestinationStoreIDs, targets); len(flushed) > 0 {
		c.publish(persistCtx, integration.NewLedgerFlushedEvent(job.ID, flushed, writtenRecords(targets)))
	}

	c.metrics.RecordSlice(persistCtx, processed, now.Sub(started), stoppedEarly)
	logger.L(ctx).Info("Slice executed",
		zap.Int("processed", processed),
		zap.Int("cursor", job.Cursor),
		zap.Int("total", job.Total()),
		zap.String("status", job.Status.String()),
		zap.Bool("stopped_early", stoppedEarly),
	)

	switch job.Status {
	case integration.JobStatusCompleted:
		c.publish(persistCtx, integration.NewJobEvent(integration.EventTypeJobCompleted, job, processed))
	case integration.JobStatusProcessing:
		c.publish(persistCtx, integration.NewJobEvent(integration.EventTypeSliceCompleted, job, processed))
		c.enqueue(persistCtx, job, now.Add(c.config.ContinuationDelay))
	}

	return &SliceOutcome{
		JobID:        job.ID,
		Status:       job.Status,
		Processed:    processed,
		Cursor:       job.Cursor,
		Total:        job.Total(),
		StoppedEarly: stoppedEarly,
	}, nil
}

// failJob ends a job that no slice can advance and saves it under the
// current lease
func (c *BatchCoordinator) failJob(ctx context.Context, job *integration.BatchJob, reason string) (*SliceOutcome, error) {
	if err := job.Fail(reason, c.now()); err != nil {
		return nil, err
	}
	persistCtx, cancel := c.persistContext(ctx)
	defer cancel()
	if err := c.jobs.SaveProgress(persistCtx, job); err != nil {
		return nil, fmt.Errorf("save failed job: %w", err)
	}
	logger.L(ctx).Warn("Job failed", zap.String("reason", reason), zap.Int("cursor", job.Cursor))
	c.publish(persistCtx, integration.NewJobEvent(integration.EventTypeJobFailed, job, 0))
	return &SliceOutcome{JobID: job.ID, Status: job.Status, Cursor: job.Cursor, Total: job.Total()}, nil
}

func allStoresDeleted(targets map[uuid.UUID]*storeTarget) bool {
	if len(targets) == 0 {
		return false
	}
	for _, t := range targets {
		if !errors.Is(t.err, integration.ErrStoreNotFound) {
			return false
		}
	}
	return true
}

func (c *BatchCoordinator) sliceSize(job *integration.BatchJob) int {
	if job.Options.BatchSize > 0 {
		return job.Options.BatchSize
	}
	return c.config.BatchSize
}

func (c *BatchCoordinator) loadTargets(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]*storeTarget {
	targets := make(map[uuid.UUID]*storeTarget, len(ids))
	for _, id := range ids {
		target := &storeTarget{}
		targets[id] = target

		store, err := c.stores.FindByID(ctx, id)
		if err != nil {
			target.err = err
			continue
		}
		target.store = store
		if !store.IsActive() {
			target.err = integration.ErrStoreInactive
			continue
		}
		target.client, target.err = c.clients.ClientFor(store)
	}
	return targets
}

// processItem reconciles one work item on every store of the job and
// reports whether all of them succeeded.
func (c *BatchCoordinator) processItem(
	ctx context.Context,
	job *integration.BatchJob,
	itemID int64,
	targets map[uuid.UUID]*storeTarget,
) bool {
	item, err := c.source.GetItem(ctx, itemID)
	if err != nil {
		c.itemFailed(job, itemID, nil, "", err)
		return false
	}
	sku, err := item.NaturalKey()
	if err != nil {
		c.itemFailed(job, itemID, nil, "", integration.NewFormatError(itemID, "missing SKU"))
		return false
	}

	transfer, formatErr := Format(*item, FormatOptionsFromJob(job.Options, c.imageFilter(ctx)))

	allOK := true
	for _, storeID := range job.DestinationStoreIDs {
		target := targets[storeID]

		stepErr := formatErr
		if stepErr == nil {
			stepErr = target.err
		}
		if stepErr != nil {
			allOK = false
			c.itemFailed(job, itemID, &storeID, sku, stepErr)
			c.writeLedger(ctx, job, storeID, target, sku, integration.UpsertInput{
				SourceItemID: itemID,
				Status:       integration.SyncRecordStatusError,
				Error:        errorMessage(stepErr),
			})
			c.metrics.RecordItem(ctx, storeID, OutcomeFailed)
			continue
		}

		known, err := c.ledger.Get(ctx, storeID, sku)
		if err != nil && !errors.Is(err, integration.ErrSyncRecordNotFound) {
			c.logger.Warn("Ledger lookup failed, falling back to remote lookup",
				zap.String("store_id", storeID.String()),
				zap.String("sku", sku),
				zap.Error(err),
			)
		}

		result, err := c.reconciler.Reconcile(ctx, target.client, known, transfer, job.Options.UpdateOptions())
		if err != nil {
			allOK = false
			c.itemFailed(job, itemID, &storeID, sku, err)
			c.writeLedger(ctx, job, storeID, target, sku, integration.UpsertInput{
				SourceItemID: itemID,
				Status:       integration.SyncRecordStatusError,
				Error:        errorMessage(err),
			})
			c.metrics.RecordItem(ctx, storeID, OutcomeFailed)
			continue
		}

		destID := result.DestinationID
		c.writeLedger(ctx, job, storeID, target, sku, integration.UpsertInput{
			SourceItemID:  itemID,
			DestinationID: &destID,
			Status:        integration.SyncRecordStatusSynced,
		})
		outcome := OutcomeUpdated
		if result.Created {
			outcome = OutcomeCreated
		}
		c.metrics.RecordItem(ctx, storeID, outcome)
	}
	return allOK
}

// flushedStores returns the stores whose ledger the slice wrote, in job order
func flushedStores(ids []uuid.UUID, targets map[uuid.UUID]*storeTarget) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if t := targets[id]; t != nil && t.written > 0 {
			out = append(out, id)
		}
	}
	return out
}

func writtenRecords(targets map[uuid.UUID]*storeTarget) int {
	n := 0
	for _, t := range targets {
		n += t.written
	}
	return n
}

func (c *BatchCoordinator) writeLedger(ctx context.Context, job *integration.BatchJob, storeID uuid.UUID, target *storeTarget, sku string, in integration.UpsertInput) {
	record, err := c.ledger.Upsert(ctx, storeID, sku, in)
	if err != nil {
		c.logger.Error("Failed to write sync record",
			zap.String("job_id", job.ID.String()),
			zap.String("store_id", storeID.String()),
			zap.String("sku", sku),
			zap.Error(err),
		)
		return
	}
	target.written++
	jobID := job.ID
	c.publish(ctx, integration.NewSyncRecordWrittenEvent(record, &jobID))
}

func (c *BatchCoordinator) itemFailed(job *integration.BatchJob, itemID int64, storeID *uuid.UUID, sku string, err error) {
	job.AppendError(integration.JobError{
		ItemID:  itemID,
		StoreID: storeID,
		SKU:     sku,
		Message: err.Error(),
		At:      c.now(),
	}, c.config.MaxRecentErrors)

	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.Int64("item_id", itemID),
		zap.String("sku", sku),
		zap.Error(err),
	}
	if storeID != nil {
		fields = append(fields, zap.String("store_id", storeID.String()))
	}
	c.logger.Warn("Work item failed", fields...)
}

func (c *BatchCoordinator) imageFilter(ctx context.Context) ImageFilter {
	if c.images == nil {
		return nil
	}
	return func(rawURL string) bool {
		return c.images.Valid(ctx, rawURL)
	}
}

func (c *BatchCoordinator) enqueue(ctx context.Context, job *integration.BatchJob, notBefore time.Time) {
	if err := c.scheduler.Enqueue(ctx, job.ID, notBefore, job.Options.Priority); err != nil {
		c.logger.Error("Failed to enqueue job continuation",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}
}

func (c *BatchCoordinator) publish(ctx context.Context, events ...shared.DomainEvent) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(ctx, events...); err != nil {
		c.logger.Warn("Failed to publish events", zap.Error(err))
	}
}

// persistContext keeps writes alive after the caller's context ended so a
// shutdown mid-slice still records progress.
func (c *BatchCoordinator) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.config.PersistTimeout)
}

func errorMessage(err error) *string {
	msg := integration.TruncateMessage(err.Error())
	return &msg
}
