package repository

import (
	"errors"
)

var (
	ErrTableNotFound       = errors.New("sync status not found for table")
	ErrPreconditionFailed  = errors.New("sync status precondition failed")
	ErrDatabaseUnavailable = errors.New("database is unavailable")
	ErrDatabaseGeneric     = errors.New("database error occurred while processing request")
	ErrInvalidTransition   = errors.New("invalid sync status transition request")
)
