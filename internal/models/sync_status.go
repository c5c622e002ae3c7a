package models

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of one mirrored table.
const (
	StatusReady   Status = "ready"
	StatusRunning Status = "running"
	StatusError   Status = "error"
)

type Status string

func (s Status) String() string {
	return string(s)
}

func (s Status) Valid() bool {
	switch s {
	case StatusReady, StatusRunning, StatusError:
		return true
	}
	return false
}

// ParseStatus converts the textual form used on the command line and in the database.
func ParseStatus(value string) (Status, error) {
	s := Status(value)
	if !s.Valid() {
		return "", fmt.Errorf("unknown sync status %q", value)
	}
	return s, nil
}

// SyncStatus is one row of the sync_status relation. Watermark is the remote timestamp up to
// which all changes are known to be applied to the mirror; it is stored without a time zone
// and always interpreted as UTC.
type SyncStatus struct {
	TableName           string     `db:"tablename"`
	Status              Status     `db:"status"`
	Watermark           *time.Time `db:"syncuntil"`
	LastRefresh         *time.Time `db:"last_refresh"`
	ConsecutiveFailures int        `db:"consecutive_failures"`
	LastError           *string    `db:"last_error"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// WatermarkUTC returns the watermark in UTC, or the zero time when none is recorded.
func (s *SyncStatus) WatermarkUTC() time.Time {
	if s.Watermark == nil {
		return time.Time{}
	}
	return s.Watermark.UTC()
}

func (s *SyncStatus) GetLastError() string {
	if s.LastError == nil {
		return ""
	}
	return *s.LastError
}
