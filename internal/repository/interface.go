package repository

import (
	"context"
	"time"

	"crm-sync/internal/models"
)

// MirrorColumn names a mirror table column whose maximum is folded into the watermark.
type MirrorColumn struct {
	Table  string
	Column string
}

// TransitionOptions qualifies a status change. Every set option is applied in the same
// conditional update, so the change is atomic with respect to other processes.
type TransitionOptions struct {
	// RequireStatus makes the update conditional on the current status.
	RequireStatus models.Status
	// WatermarkFromMirror folds max(column) of the mirror table into the new watermark.
	WatermarkFromMirror *MirrorColumn
	// WatermarkCandidate is folded into the new watermark. The watermark never decreases.
	WatermarkCandidate *time.Time
	StampLastRefresh   bool
	// RecordFailure increments the failure counter and stores the message.
	RecordFailure string
	ResetFailures bool
}

type SyncStatusRepository interface {
	GetStatus(ctx context.Context, table string) (*models.SyncStatus, error)
	ListStatuses(ctx context.Context) ([]models.SyncStatus, error)
	Register(ctx context.Context, table string, watermark time.Time) (*models.SyncStatus, error)
	Transition(ctx context.Context, table string, newStatus models.Status, opts TransitionOptions) (*models.SyncStatus, error)
}
