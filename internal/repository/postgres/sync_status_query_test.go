package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"crm-sync/internal/models"
	"crm-sync/internal/repository"
	"crm-sync/pkg/db"
)

func TestBuildTransition(t *testing.T) {
	repo := &SyncStatusRepository{psql: &db.PostgresDatastore{}}
	candidate := time.Date(2024, 1, 1, 0, 0, 1, 0, time.FixedZone("UTC+1", 3600))
	transitionID := uuid.MustParse("6f1c1a52-8a43-4a0e-9d8e-3c2b1f0a9e11")

	testCases := []struct {
		name          string
		status        models.Status
		opts          repository.TransitionOptions
		expectedQuery string
		expectedArgs  []any
	}{
		{
			name:   "plain conditional acquire",
			status: models.StatusRunning,
			opts:   repository.TransitionOptions{RequireStatus: models.StatusReady},
			expectedQuery: `UPDATE sync_status SET status = $2, transition_id = $3, updated_at = now() ` +
				`WHERE tablename = $1 AND status = $4 RETURNING ` + statusColumns,
			expectedArgs: []any{"Account", "running", transitionID, "ready"},
		},
		{
			name:   "success with mirror and candidate watermark",
			status: models.StatusReady,
			opts: repository.TransitionOptions{
				RequireStatus:       models.StatusRunning,
				WatermarkFromMirror: &repository.MirrorColumn{Table: "Account", Column: "SystemModstamp"},
				WatermarkCandidate:  &candidate,
				StampLastRefresh:    true,
				ResetFailures:       true,
			},
			expectedQuery: `UPDATE sync_status SET status = $2, transition_id = $3, updated_at = now(), ` +
				`syncuntil = GREATEST(syncuntil, (SELECT max("systemmodstamp") FROM "account")::timestamp, $4::timestamp), ` +
				`last_refresh = (now() AT TIME ZONE 'UTC'), consecutive_failures = 0, last_error = NULL ` +
				`WHERE tablename = $1 AND status = $5 RETURNING ` + statusColumns,
			expectedArgs: []any{"Account", "ready", transitionID, candidate.UTC(), "running"},
		},
		{
			name:   "unconditional failure record",
			status: models.StatusError,
			opts:   repository.TransitionOptions{RecordFailure: "merge failed"},
			expectedQuery: `UPDATE sync_status SET status = $2, transition_id = $3, updated_at = now(), ` +
				`consecutive_failures = consecutive_failures + 1, last_error = $4 ` +
				`WHERE tablename = $1 RETURNING ` + statusColumns,
			expectedArgs: []any{"Account", "error", transitionID, "merge failed"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			query, args := repo.buildTransition("Account", tc.status, transitionID, tc.opts)

			assert.Equal(t, tc.expectedQuery, query)
			assert.Equal(t, tc.expectedArgs, args)
		})
	}
}
