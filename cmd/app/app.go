// Package app loads the configuration shared by every command.
package app

import (
	"context"
	"errors"

	"crm-sync/internal/config"
	"crm-sync/internal/core"
	"crm-sync/internal/service/tablematching"
	"crm-sync/pkg/log"
)

var ErrNoTables = errors.New("no tables selected")

// Setup loads and validates the configuration, initialises logging and returns the
// component wiring. Callers must Close the wiring.
func Setup() (*core.Wiring, error) {
	cfg, err := config.Load()
	if err != nil {
		log.Logger.Error().Err(err).Msg("Error loading config")
		return nil, err
	}
	log.Init(cfg.ID, cfg.LogLevel, log.FileOptions{Path: cfg.LogFile})
	return core.NewWiring(cfg), nil
}

// SelectTables returns the tables named by args, or by the configured tables when args
// is empty. Patterns expand against the registered tables; configured ignore patterns
// always apply.
func SelectTables(ctx context.Context, w *core.Wiring, args []string) ([]string, error) {
	include := args
	if len(include) == 0 {
		include = w.GetConfig().Tables
	}
	matcher := tablematching.NewTableMatcher(include, w.GetConfig().TablesToIgnore)

	var known []string
	if matcher.NeedsKnownTables() {
		store, err := w.InitSyncStatusRepository()
		if err != nil {
			return nil, err
		}
		statuses, err := store.ListStatuses(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range statuses {
			known = append(known, s.TableName)
		}
	}

	tables := matcher.Select(known)
	if len(tables) == 0 {
		return nil, ErrNoTables
	}
	return tables, nil
}
