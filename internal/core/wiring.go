package core

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"crm-sync/internal/config"
	"crm-sync/internal/credentials"
	"crm-sync/internal/extract"
	"crm-sync/internal/merge"
	repo "crm-sync/internal/repository"
	psqlRepo "crm-sync/internal/repository/postgres"
	"crm-sync/internal/salesforce"
	"crm-sync/internal/service/orchestrator"
	"crm-sync/internal/tabledesc"
	"crm-sync/pkg/db"
	"crm-sync/pkg/db/migrations"
	"crm-sync/pkg/log"
)

// Wiring builds the process-wide components from the configuration. Shared components
// are created once and reused by every caller.
type Wiring struct {
	config *config.Config
	logger zerolog.Logger

	datastoreOnce sync.Once
	datastore     *db.PostgresDatastore
	datastoreErr  error

	clientOnce sync.Once
	client     *salesforce.Client
	clientErr  error

	resolverOnce sync.Once
	resolver     *tabledesc.Resolver
}

func NewWiring(cfg *config.Config) *Wiring {
	return &Wiring{
		config: cfg,
		logger: log.Logger.With().Str("component", "wiring").Logger(),
	}
}

func (w *Wiring) GetConfig() *config.Config {
	return w.config
}

func (w *Wiring) InitPostgresDataStore() (*db.PostgresDatastore, error) {
	w.datastoreOnce.Do(func() {
		w.datastore, w.datastoreErr = db.NewPostgresDatastore(&w.config.Postgres, migrations.NewSyncStatusMigrations())
		if w.datastoreErr != nil {
			w.logger.Error().Err(w.datastoreErr).Msg("Failed to create Postgres datastore")
		}
	})
	return w.datastore, w.datastoreErr
}

func (w *Wiring) InitSyncStatusRepository() (repo.SyncStatusRepository, error) {
	datastore, err := w.InitPostgresDataStore()
	if err != nil {
		return nil, err
	}
	return psqlRepo.NewSyncStatusRepository(datastore), nil
}

func (w *Wiring) InitSalesforceClient() (*salesforce.Client, error) {
	w.clientOnce.Do(func() {
		provider, err := credentials.NewProvider(&w.config.Salesforce)
		if err != nil {
			w.clientErr = fmt.Errorf("failed to create credentials provider: %w", err)
			w.logger.Error().Err(w.clientErr).Msg("Failed to create remote client")
			return
		}
		w.client = salesforce.NewClient(salesforce.Options{
			LoginURL:   w.config.Salesforce.LoginURL,
			APIVersion: w.config.Salesforce.APIVersion,
			Timeout:    w.config.Salesforce.Timeout,
		}, provider)
	})
	return w.client, w.clientErr
}

func (w *Wiring) InitResolver() (*tabledesc.Resolver, error) {
	client, err := w.InitSalesforceClient()
	if err != nil {
		return nil, err
	}
	w.resolverOnce.Do(func() {
		w.resolver = tabledesc.NewResolver(client, tabledesc.NewDirMappingSource(w.config.MappingDir))
	})
	return w.resolver, nil
}

func (w *Wiring) InitOrchestrator() (*orchestrator.SyncOrchestrator, error) {
	store, err := w.InitSyncStatusRepository()
	if err != nil {
		return nil, err
	}
	datastore, err := w.InitPostgresDataStore()
	if err != nil {
		return nil, err
	}
	client, err := w.InitSalesforceClient()
	if err != nil {
		return nil, err
	}
	resolver, err := w.InitResolver()
	if err != nil {
		return nil, err
	}

	return orchestrator.NewSyncOrchestrator(
		store,
		resolver,
		extract.NewExtractor(client),
		merge.NewEngine(datastore),
		orchestrator.Options{
			Concurrency:            w.config.Concurrency,
			WatermarkStrategy:      w.config.Sync.WatermarkStrategy,
			SafetyMargin:           w.config.Sync.SafetyMargin,
			MaxConsecutiveFailures: w.config.Sync.MaxConsecutiveFailures,
			SpoolDir:               w.config.Sync.SpoolDir,
		},
	), nil
}

// Close releases the database pool if one was opened.
func (w *Wiring) Close() {
	if w.datastore != nil {
		w.datastore.Close()
	}
}
