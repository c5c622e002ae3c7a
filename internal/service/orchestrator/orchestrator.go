package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crm-sync/internal/config"
	"crm-sync/internal/repository"
	"crm-sync/pkg/log"
)

type SyncOrchestrator struct {
	logger   zerolog.Logger
	store    repository.SyncStatusRepository
	resolver DescriptorResolver
	source   ChangeSource
	merger   Merger
	opts     Options
	now      func() time.Time
}

func NewSyncOrchestrator(
	store repository.SyncStatusRepository,
	resolver DescriptorResolver,
	source ChangeSource,
	merger Merger,
	opts Options,
) *SyncOrchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &SyncOrchestrator{
		logger:   log.Logger.With().Str("component", "orchestrator").Logger(),
		store:    store,
		resolver: resolver,
		source:   source,
		merger:   merger,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SyncTables synchronizes tables concurrently, at most Concurrency at a time. The
// returned error joins every table that failed or could not be acquired.
func (o *SyncOrchestrator) SyncTables(ctx context.Context, tables []string) (*BatchResult, error) {
	startTime := time.Now()
	o.logger.Info().Strs("tables", tables).Int("concurrency", o.opts.Concurrency).Msg("Starting synchronization")

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	result := &BatchResult{
		Total:    len(tables),
		Outcomes: make([]*TableOutcome, 0, len(tables)),
	}
	for outcome := range o.runInParallel(ctx, tables) {
		result.Outcomes = append(result.Outcomes, outcome)
		o.categorize(result, outcome)
	}
	result.Duration = time.Since(startTime)

	o.logSummary(result)

	var errs []error
	for _, outcome := range result.Outcomes {
		if outcome.Err != nil {
			errs = append(errs, outcome.Err)
		}
	}
	return result, errors.Join(errs...)
}

func (o *SyncOrchestrator) runInParallel(ctx context.Context, tables []string) chan *TableOutcome {
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, o.opts.Concurrency)
	outcomes := make(chan *TableOutcome, len(tables))

	for _, table := range tables {
		wg.Add(1)
		go o.executeTable(ctx, table, &wg, semaphore, outcomes)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	return outcomes
}

func (o *SyncOrchestrator) executeTable(
	ctx context.Context,
	table string,
	wg *sync.WaitGroup,
	semaphore chan struct{},
	outcomes chan *TableOutcome,
) {
	defer wg.Done()

	select {
	case semaphore <- struct{}{}:
		defer func() { <-semaphore }()
	case <-ctx.Done():
		outcomes <- &TableOutcome{Table: table, Err: &SyncError{Table: table, Stage: StageAcquire, Err: ctx.Err()}}
		return
	}

	result, err := o.SyncTable(ctx, table)
	outcomes <- &TableOutcome{Table: table, Result: result, Err: err}
}

func (o *SyncOrchestrator) categorize(result *BatchResult, outcome *TableOutcome) {
	switch {
	case outcome.Err != nil && isSkip(outcome.Err):
		result.Skipped++
		o.logger.Warn().Err(outcome.Err).Str("table", outcome.Table).Msg("Table skipped")
	case outcome.Err != nil:
		result.Failed++
		o.logger.Error().Err(outcome.Err).Str("table", outcome.Table).Str("stage", describeStage(outcome.Err)).Msg("Table failed")
	case outcome.Result.Outcome == OutcomeMerged:
		result.Merged++
	default:
		result.NoChanges++
	}
}

func describeStage(err error) string {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Stage
	}
	return fmt.Sprintf("%T", err)
}

// isSkip reports runs that never started: the table was busy, in error, or the batch
// was cancelled before its turn.
func isSkip(err error) bool {
	var syncErr *SyncError
	if !errors.As(err, &syncErr) || syncErr.Stage != StageAcquire {
		return false
	}
	return errors.Is(err, repository.ErrPreconditionFailed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (o *SyncOrchestrator) logSummary(result *BatchResult) {
	o.logger.Info().
		Int("total", result.Total).
		Int("merged", result.Merged).
		Int("no_changes", result.NoChanges).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Dur("duration", result.Duration).
		Msg("Synchronization completed")
}

// RunDaemon synchronizes tables immediately and then every interval until ctx is done.
// Failed passes are logged and retried at the next tick.
func (o *SyncOrchestrator) RunDaemon(ctx context.Context, tables []string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: got %s", config.ErrIntervalNotSet, interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.logger.Info().Dur("interval", interval).Msg("Daemon started")
	for {
		if _, err := o.SyncTables(ctx, tables); err != nil && ctx.Err() == nil {
			o.logger.Warn().Err(err).Msg("Synchronization pass finished with errors")
		}

		select {
		case <-ctx.Done():
			o.logger.Info().Msg("Daemon stopped")
			return nil
		case <-ticker.C:
		}
	}
}
