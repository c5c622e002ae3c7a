package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"crm-sync/internal/models"
	"crm-sync/internal/repository"
	"crm-sync/pkg/db"
	"crm-sync/pkg/log"
)

const statusColumns = `tablename, status, syncuntil, last_refresh, consecutive_failures, last_error, updated_at`

// SyncStatusRepository stores the per-table lifecycle rows. Every call goes through a
// circuit breaker and is retried while the database is unreachable.
type SyncStatusRepository struct {
	psql           *db.PostgresDatastore
	circuitBreaker *gobreaker.CircuitBreaker
	retryOptFunc   func() []backoff.RetryOption
	logger         zerolog.Logger
}

var _ repository.SyncStatusRepository = (*SyncStatusRepository)(nil)

func NewSyncStatusRepository(psql *db.PostgresDatastore) *SyncStatusRepository {
	return &SyncStatusRepository{
		psql:           psql,
		circuitBreaker: newCircuitBreaker(),
		retryOptFunc:   newBackoffStrategy,
		logger: log.Logger.With().
			Str("component", "sync_status_repository").
			Logger(),
	}
}

//nolint:mnd
func newCircuitBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sync_status",
		MaxRequests: 1,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, repository.ErrTableNotFound) ||
				errors.Is(err, repository.ErrPreconditionFailed) ||
				errors.Is(err, repository.ErrInvalidTransition)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
}

//nolint:mnd
func newBackoffStrategy() []backoff.RetryOption {
	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = 200 * time.Millisecond
	strategy.MaxInterval = 5 * time.Second
	return []backoff.RetryOption{
		backoff.WithBackOff(strategy),
		backoff.WithMaxTries(10),
		backoff.WithMaxElapsedTime(1 * time.Minute),
	}
}

func (repo *SyncStatusRepository) GetStatus(ctx context.Context, table string) (*models.SyncStatus, error) {
	result, err := execute(ctx, repo, func() (*models.SyncStatus, error) {
		var status models.SyncStatus
		query := `SELECT ` + statusColumns + ` FROM sync_status WHERE tablename = $1`
		if err := repo.psql.DB.GetContext(ctx, &status, query, table); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, backoff.Permanent(fmt.Errorf("%w: %s", repository.ErrTableNotFound, table))
			}
			return nil, err
		}
		return &status, nil
	})
	if err != nil {
		repo.logger.Debug().Err(err).Str("table", table).Msg("Failed to get sync status")
		return nil, err
	}
	return result, nil
}

func (repo *SyncStatusRepository) ListStatuses(ctx context.Context) ([]models.SyncStatus, error) {
	return execute(ctx, repo, func() ([]models.SyncStatus, error) {
		statuses := make([]models.SyncStatus, 0)
		query := `SELECT ` + statusColumns + ` FROM sync_status ORDER BY tablename`
		if err := repo.psql.DB.SelectContext(ctx, &statuses, query); err != nil {
			return nil, err
		}
		return statuses, nil
	})
}

// Register creates the ready row for a table whose mirror was bulk loaded up to watermark.
// An existing row is left untouched and returned.
func (repo *SyncStatusRepository) Register(ctx context.Context, table string, watermark time.Time) (*models.SyncStatus, error) {
	_, err := execute(ctx, repo, func() (struct{}, error) {
		query := `INSERT INTO sync_status (tablename, status, syncuntil) VALUES ($1, $2, $3)
			ON CONFLICT (tablename) DO NOTHING`
		_, err := repo.psql.DB.ExecContext(ctx, query, table, models.StatusReady.String(), watermark.UTC())
		return struct{}{}, err
	})
	if err != nil {
		return nil, err
	}
	repo.logger.Info().Str("table", table).Time("watermark", watermark.UTC()).Msg("Registered table")
	return repo.GetStatus(ctx, table)
}

// Transition changes the status of a table in one conditional update. When RequireStatus
// is set and the current status differs, nothing changes and ErrPreconditionFailed is
// returned.
//
// Each call stamps the row with a fresh transition id. A retry that finds the
// precondition gone checks for that id, so an attempt that committed before its
// connection failed is reported as applied rather than rejected.
func (repo *SyncStatusRepository) Transition(
	ctx context.Context,
	table string,
	newStatus models.Status,
	opts repository.TransitionOptions,
) (*models.SyncStatus, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", repository.ErrInvalidTransition, newStatus)
	}
	if opts.RecordFailure != "" && opts.ResetFailures {
		return nil, fmt.Errorf("%w: cannot record and reset failures at once", repository.ErrInvalidTransition)
	}

	transitionID := uuid.New()
	query, args := repo.buildTransition(table, newStatus, transitionID, opts)

	attempt := 0
	result, err := execute(ctx, repo, func() (*models.SyncStatus, error) {
		attempt++
		return repo.applyTransition(ctx, table, transitionID, query, args, attempt > 1, opts.RequireStatus)
	})
	if err != nil {
		repo.logger.Warn().Err(err).
			Str("table", table).
			Str("to", newStatus.String()).
			Str("require", opts.RequireStatus.String()).
			Msg("Status transition rejected")
		return nil, err
	}

	repo.logger.Debug().
		Str("table", table).
		Str("to", newStatus.String()).
		Time("watermark", result.WatermarkUTC()).
		Msg("Status transition applied")
	return result, nil
}

// applyTransition runs one attempt of a transition. On a retried attempt an unmatched
// update is checked against the transition id before it counts as a failed precondition.
func (repo *SyncStatusRepository) applyTransition(
	ctx context.Context,
	table string,
	transitionID uuid.UUID,
	query string,
	args []any,
	retried bool,
	required models.Status,
) (*models.SyncStatus, error) {
	var status models.SyncStatus
	err := repo.psql.DB.GetContext(ctx, &status, query, args...)
	if err == nil {
		return &status, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if retried {
		applied, err := repo.appliedTransition(ctx, table, transitionID)
		if err != nil {
			return nil, err
		}
		if applied != nil {
			repo.logger.Info().
				Str("table", table).
				Str("transition_id", transitionID.String()).
				Msg("Status transition was applied by an earlier attempt")
			return applied, nil
		}
	}
	return nil, backoff.Permanent(repo.preconditionError(ctx, table, required))
}

// appliedTransition returns the row if it still carries transitionID, or nil.
func (repo *SyncStatusRepository) appliedTransition(
	ctx context.Context,
	table string,
	transitionID uuid.UUID,
) (*models.SyncStatus, error) {
	var status models.SyncStatus
	query := `SELECT ` + statusColumns + ` FROM sync_status WHERE tablename = $1 AND transition_id = $2`
	err := repo.psql.DB.GetContext(ctx, &status, query, table, transitionID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, err
	default:
		return &status, nil
	}
}

func (repo *SyncStatusRepository) buildTransition(
	table string,
	newStatus models.Status,
	transitionID uuid.UUID,
	opts repository.TransitionOptions,
) (string, []any) {
	args := []any{table, newStatus.String(), transitionID}
	sets := []string{"status = $2", "transition_id = $3", "updated_at = now()"}

	if opts.WatermarkFromMirror != nil || opts.WatermarkCandidate != nil {
		terms := []string{"syncuntil"}
		if m := opts.WatermarkFromMirror; m != nil {
			ids := repo.psql.Identifiers()
			terms = append(terms, fmt.Sprintf("(SELECT max(%s) FROM %s)::timestamp",
				ids.Name(m.Column), ids.Table(m.Table)))
		}
		if opts.WatermarkCandidate != nil {
			args = append(args, opts.WatermarkCandidate.UTC())
			terms = append(terms, fmt.Sprintf("$%d::timestamp", len(args)))
		}
		sets = append(sets, "syncuntil = GREATEST("+strings.Join(terms, ", ")+")")
	}
	if opts.StampLastRefresh {
		sets = append(sets, "last_refresh = (now() AT TIME ZONE 'UTC')")
	}
	if opts.RecordFailure != "" {
		args = append(args, opts.RecordFailure)
		sets = append(sets,
			"consecutive_failures = consecutive_failures + 1",
			fmt.Sprintf("last_error = $%d", len(args)))
	}
	if opts.ResetFailures {
		sets = append(sets, "consecutive_failures = 0", "last_error = NULL")
	}

	where := "tablename = $1"
	if opts.RequireStatus != "" {
		args = append(args, opts.RequireStatus.String())
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query := `UPDATE sync_status SET ` + strings.Join(sets, ", ") +
		` WHERE ` + where + ` RETURNING ` + statusColumns
	return query, args
}

// preconditionError explains a rejected conditional update using the current row.
func (repo *SyncStatusRepository) preconditionError(ctx context.Context, table string, required models.Status) error {
	var current models.Status
	err := repo.psql.DB.GetContext(ctx, &current, `SELECT status FROM sync_status WHERE tablename = $1`, table)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %s", repository.ErrTableNotFound, table)
	case err != nil:
		return fmt.Errorf("%w: table %s (current status unknown: %v)", repository.ErrPreconditionFailed, table, err)
	default:
		return fmt.Errorf("%w: table %s is %s, expected %s", repository.ErrPreconditionFailed, table, current, required)
	}
}

// execute runs op with retries inside the circuit breaker and maps failures onto the
// repository sentinel errors.
func execute[T any](ctx context.Context, repo *SyncStatusRepository, op func() (T, error)) (T, error) {
	var zero T
	result, err := repo.circuitBreaker.Execute(func() (interface{}, error) {
		return backoff.Retry(ctx, op, repo.retryOptFunc()...)
	})
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			repo.logger.Error().Err(err).Msg("Circuit breaker rejected database request")
			return zero, fmt.Errorf("%w: %w", repository.ErrDatabaseUnavailable, err)
		case errors.Is(err, repository.ErrTableNotFound),
			errors.Is(err, repository.ErrPreconditionFailed),
			errors.Is(err, repository.ErrInvalidTransition):
			return zero, err
		default:
			repo.logger.Error().Err(err).Msg("Database request failed")
			return zero, fmt.Errorf("%w: %w", repository.ErrDatabaseGeneric, err)
		}
	}
	return result.(T), nil
}
