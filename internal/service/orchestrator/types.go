package orchestrator

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"crm-sync/internal/extract"
	"crm-sync/internal/merge"
	"crm-sync/internal/tabledesc"
)

// Stages of a table run, reported by SyncError.
const (
	StageAcquire = "acquire"
	StageResolve = "resolve"
	StageExtract = "extract"
	StageMerge   = "merge"
	StageRelease = "release"
)

type Outcome string

const (
	OutcomeNoChanges Outcome = "no_changes"
	OutcomeMerged    Outcome = "merged"
)

type DescriptorResolver interface {
	Resolve(ctx context.Context, table string) (*tabledesc.Descriptor, error)
}

type ChangeSource interface {
	ExtractSince(ctx context.Context, desc *tabledesc.Descriptor, watermark time.Time, includeDeleted bool) iter.Seq2[extract.ChangeRecord, error]
	CountSince(ctx context.Context, desc *tabledesc.Descriptor, watermark time.Time, includeDeleted bool) (int, error)
}

type Merger interface {
	Merge(ctx context.Context, desc *tabledesc.Descriptor, staged merge.Staged) (*merge.Result, error)
}

// SyncError is a failed table run. Stage tells how far the run got.
type SyncError struct {
	Table string
	Stage string
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync of %s failed at %s: %v", e.Table, e.Stage, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// TableResult describes a successful table run.
type TableResult struct {
	Table             string
	RunID             uuid.UUID
	Outcome           Outcome
	Extracted         int
	Upserted          int64
	Deleted           int64
	PreviousWatermark time.Time
	Watermark         time.Time
	Duration          time.Duration
}

// TableOutcome pairs a table with the result or error of its run.
type TableOutcome struct {
	Table  string
	Result *TableResult
	Err    error
}

type BatchResult struct {
	Total     int
	Merged    int
	NoChanges int
	Failed    int
	Skipped   int
	Duration  time.Duration
	Outcomes  []*TableOutcome
}

type DryRunResult struct {
	Table     string
	Watermark time.Time
	Query     string
	Pending   int
}

// Options tune how runs advance the watermark and when failures escalate.
type Options struct {
	Concurrency            int
	WatermarkStrategy      string
	SafetyMargin           time.Duration
	MaxConsecutiveFailures int
	SpoolDir               string
}
