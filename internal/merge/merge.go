package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"crm-sync/internal/tabledesc"
	"crm-sync/pkg/db"
	"crm-sync/pkg/log"
)

// Stages of a merge, reported by ExecutionError.
const (
	StageConnect   = "connect"
	StageBegin     = "begin"
	StageStage     = "stage"
	StageLoad      = "load"
	StageUpsert    = "upsert"
	StageDelete    = "delete"
	StageWatermark = "watermark"
	StageCommit    = "commit"
)

// ExecutionError is a failed merge statement. The transaction has been rolled back and
// the mirror is unchanged.
type ExecutionError struct {
	Table string
	Stage string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("merge of %s failed at %s: %v", e.Table, e.Stage, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Staged is an encoded change set: a header line equal to Header() followed by Rows()
// rows in the loader's textual format.
type Staged interface {
	Header() []string
	Rows() int
	Open() (io.Reader, error)
}

// Store hands out a dedicated native connection and the identifier escaping in use.
type Store interface {
	WithPgxConn(ctx context.Context, fn func(conn *pgx.Conn) error) error
	Identifiers() db.Identifiers
}

// Result counts the rows touched by a merge. BatchMaxTimestamp is the greatest change
// timestamp present in the batch, including rows flagged deleted.
type Result struct {
	Upserted          int64
	Deleted           int64
	BatchMaxTimestamp *time.Time
}

type Engine struct {
	store  Store
	logger zerolog.Logger
}

func NewEngine(store Store) *Engine {
	return &Engine{
		store: store,
		logger: log.Logger.With().
			Str("component", "merge_engine").
			Logger(),
	}
}

// Merge applies a change set to the mirror of desc in one transaction: the rows are
// loaded into a transaction scoped staging table, the latest version of every key is
// upserted unless flagged deleted, then keys whose latest version is flagged deleted are
// removed. An empty change set returns without touching the database.
func (e *Engine) Merge(ctx context.Context, desc *tabledesc.Descriptor, staged Staged) (*Result, error) {
	if staged.Rows() == 0 {
		return &Result{}, nil
	}
	if strings.Join(staged.Header(), ",") != strings.Join(desc.SyncFields, ",") {
		return nil, &ExecutionError{Table: desc.Name, Stage: StageLoad,
			Err: fmt.Errorf("payload header %v does not match sync fields %v", staged.Header(), desc.SyncFields)}
	}

	stmts := buildStatements(e.store.Identifiers(), desc)
	logger := e.logger.With().Str("table", desc.Name).Logger()
	start := time.Now()

	var result Result
	err := e.store.WithPgxConn(ctx, func(conn *pgx.Conn) error {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return stageErr(desc, StageBegin, err)
		}
		defer func() {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				logger.Warn().Err(rbErr).Msg("Rollback failed")
			}
		}()

		if _, err := tx.Exec(ctx, stmts.createStage); err != nil {
			return stageErr(desc, StageStage, err)
		}

		reader, err := staged.Open()
		if err != nil {
			return stageErr(desc, StageLoad, err)
		}
		tag, err := tx.Conn().PgConn().CopyFrom(ctx, reader, stmts.copy)
		if err != nil {
			return stageErr(desc, StageLoad, err)
		}
		logger.Debug().Int64("rows", tag.RowsAffected()).Msg("Loaded staging table")

		tag, err = tx.Exec(ctx, stmts.upsert)
		if err != nil {
			return stageErr(desc, StageUpsert, err)
		}
		result.Upserted = tag.RowsAffected()

		if stmts.delete != "" {
			tag, err = tx.Exec(ctx, stmts.delete)
			if err != nil {
				return stageErr(desc, StageDelete, err)
			}
			result.Deleted = tag.RowsAffected()
		}

		if err := tx.QueryRow(ctx, stmts.batchMax).Scan(&result.BatchMaxTimestamp); err != nil {
			return stageErr(desc, StageWatermark, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return stageErr(desc, StageCommit, err)
		}
		return nil
	})
	if err != nil {
		var execErr *ExecutionError
		if !errors.As(err, &execErr) {
			err = stageErr(desc, StageConnect, err)
		}
		logger.Error().Err(err).Msg("Merge failed, transaction rolled back")
		return nil, err
	}

	logger.Info().
		Int("staged", staged.Rows()).
		Int64("upserted", result.Upserted).
		Int64("deleted", result.Deleted).
		Dur("duration", time.Since(start)).
		Msg("Merged changes")
	return &result, nil
}

func stageErr(desc *tabledesc.Descriptor, stage string, err error) error {
	return &ExecutionError{Table: desc.Name, Stage: stage, Err: err}
}
