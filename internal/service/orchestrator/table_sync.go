package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crm-sync/internal/config"
	"crm-sync/internal/encode"
	"crm-sync/internal/extract"
	"crm-sync/internal/merge"
	"crm-sync/internal/models"
	"crm-sync/internal/repository"
	"crm-sync/internal/tabledesc"
)

// SyncTable runs one incremental synchronization of table. The run holds the table's
// persisted running status as its lock; on failure the lock is handed back so the next
// scheduled run retries from the same watermark.
func (o *SyncOrchestrator) SyncTable(ctx context.Context, table string) (*TableResult, error) {
	runID := uuid.New()
	start := o.now()
	logger := o.logger.With().Str("table", table).Str("run_id", runID.String()).Logger()

	acquired, err := o.store.Transition(ctx, table, models.StatusRunning,
		repository.TransitionOptions{RequireStatus: models.StatusReady})
	if err != nil {
		logger.Warn().Err(err).Msg("Could not acquire table")
		return nil, &SyncError{Table: table, Stage: StageAcquire, Err: err}
	}
	logger.Info().Time("watermark", acquired.WatermarkUTC()).Msg("Acquired table")

	result, stage, err := o.runAcquired(ctx, logger, acquired, start)
	if err != nil {
		if stage != StageRelease || !errors.Is(err, repository.ErrPreconditionFailed) {
			o.releaseAfterFailure(ctx, logger, acquired, err)
		}
		logger.Error().Err(err).Str("stage", stage).Msg("Sync failed")
		return nil, &SyncError{Table: table, Stage: stage, Err: err}
	}

	result.RunID = runID
	result.Duration = time.Since(start)
	logger.Info().
		Str("outcome", string(result.Outcome)).
		Int("extracted", result.Extracted).
		Int64("upserted", result.Upserted).
		Int64("deleted", result.Deleted).
		Time("watermark", result.Watermark).
		Dur("duration", result.Duration).
		Msg("Sync completed")
	return result, nil
}

func (o *SyncOrchestrator) runAcquired(
	ctx context.Context,
	logger zerolog.Logger,
	acquired *models.SyncStatus,
	start time.Time,
) (*TableResult, string, error) {
	table := acquired.TableName
	desc, err := o.resolver.Resolve(ctx, table)
	if err != nil {
		return nil, StageResolve, err
	}

	previous := acquired.WatermarkUTC()
	result := &TableResult{
		Table:             table,
		Outcome:           OutcomeNoChanges,
		PreviousWatermark: previous,
	}

	payload, err := encode.NewPayload(desc, o.opts.SpoolDir)
	if err != nil {
		return nil, StageExtract, err
	}
	defer func() {
		if err := payload.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove spool file")
		}
	}()

	for record, err := range o.source.ExtractSince(ctx, desc, previous, true) {
		if err != nil {
			return nil, StageExtract, err
		}
		if err := payload.Append(record); err != nil {
			return nil, StageExtract, err
		}
	}
	result.Extracted = payload.Rows()
	logger.Debug().Int("records", result.Extracted).Msg("Extraction finished")

	var batchMax *time.Time
	if payload.Rows() > 0 {
		merged, err := o.merger.Merge(ctx, desc, payload)
		if err != nil {
			return nil, StageMerge, err
		}
		result.Outcome = OutcomeMerged
		result.Upserted = merged.Upserted
		result.Deleted = merged.Deleted
		batchMax = merged.BatchMaxTimestamp
	}

	released, err := o.store.Transition(ctx, table, models.StatusReady,
		o.successOptions(desc, start, batchMax))
	if err != nil {
		return nil, StageRelease, err
	}
	result.Watermark = released.WatermarkUTC()
	return result, "", nil
}

// successOptions hands the lock back and advances the watermark by the configured
// strategy. The store never lets the watermark decrease.
func (o *SyncOrchestrator) successOptions(
	desc *tabledesc.Descriptor,
	start time.Time,
	batchMax *time.Time,
) repository.TransitionOptions {
	opts := repository.TransitionOptions{
		RequireStatus:    models.StatusRunning,
		StampLastRefresh: true,
		ResetFailures:    true,
	}
	switch o.opts.WatermarkStrategy {
	case config.WatermarkRunStart:
		candidate := start.Add(-o.opts.SafetyMargin)
		opts.WatermarkCandidate = &candidate
	default:
		opts.WatermarkFromMirror = &repository.MirrorColumn{Table: desc.Name, Column: desc.TimestampField}
		opts.WatermarkCandidate = batchMax
	}
	return opts
}

// releaseAfterFailure returns a running table to ready, or to error once the configured
// number of consecutive failures is reached. It runs even when ctx is cancelled so an
// interrupted run does not leave the table locked.
func (o *SyncOrchestrator) releaseAfterFailure(
	ctx context.Context,
	logger zerolog.Logger,
	acquired *models.SyncStatus,
	cause error,
) {
	next := models.StatusReady
	failures := acquired.ConsecutiveFailures + 1
	if o.opts.MaxConsecutiveFailures > 0 && failures >= o.opts.MaxConsecutiveFailures {
		next = models.StatusError
	}

	_, err := o.store.Transition(context.WithoutCancel(ctx), acquired.TableName, next, repository.TransitionOptions{
		RequireStatus: models.StatusRunning,
		RecordFailure: cause.Error(),
	})
	if err != nil {
		logger.Error().Err(err).Str("to", next.String()).Msg("Failed to release table after failure")
		return
	}
	if next == models.StatusError {
		logger.Error().Int("consecutive_failures", failures).Msg("Too many consecutive failures, table set to error")
		return
	}
	logger.Warn().Int("consecutive_failures", failures).Msg("Table released after failure")
}

// DryRun reports how many changes a run would pick up, without taking the lock.
func (o *SyncOrchestrator) DryRun(ctx context.Context, table string) (*DryRunResult, error) {
	status, err := o.store.GetStatus(ctx, table)
	if err != nil {
		return nil, &SyncError{Table: table, Stage: StageAcquire, Err: err}
	}
	desc, err := o.resolver.Resolve(ctx, table)
	if err != nil {
		return nil, &SyncError{Table: table, Stage: StageResolve, Err: err}
	}
	watermark := status.WatermarkUTC()
	pending, err := o.source.CountSince(ctx, desc, watermark, true)
	if err != nil {
		return nil, &SyncError{Table: table, Stage: StageExtract, Err: err}
	}
	return &DryRunResult{
		Table:     table,
		Watermark: watermark,
		Query:     extract.BuildQuery(desc, watermark),
		Pending:   pending,
	}, nil
}

var _ merge.Staged = (*encode.Payload)(nil)
