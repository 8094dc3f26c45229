package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"mediarepo/internal/blobstore"
	"mediarepo/internal/config"
	"mediarepo/internal/events"
	"mediarepo/internal/logging"
	"mediarepo/internal/notifications"
	"mediarepo/internal/pipeline"
	"mediarepo/internal/store"
	"mediarepo/internal/workflow"
)

// Build opens the store and blob backend named by cfg, builds the analysis
// clients, and assembles a daemon. Unbuildable clients are logged; stages
// that need them fail with a configuration error.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, hub *logging.StreamHub) (*Daemon, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	blobs, err := blobstore.Open(ctx, cfg, st)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	clients, err := pipeline.ClientsFromConfig(cfg)
	if err != nil {
		logging.WarnWithContext(logger, "analysis clients incomplete", "clients_incomplete",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "set base_url for each service in [services]"),
		)
	}
	return Assemble(cfg, logger, st, blobs, clients, hub)
}

// Assemble builds the bus, runner, and workflow manager around already
// opened storage and clients.
func Assemble(cfg *config.Config, logger *slog.Logger, st *store.Store, blobs blobstore.Store, clients pipeline.Clients, hub *logging.StreamHub) (*Daemon, error) {
	bus := events.NewBus(logger)
	runner := pipeline.NewRunner(cfg, clients, blobs, logger)
	mgr := workflow.NewManager(cfg, st, blobs, runner, bus, logger)
	return New(cfg, logger, Dependencies{
		Store:    st,
		Blobs:    blobs,
		Bus:      bus,
		Workflow: mgr,
		Clients:  clients,
		Hub:      hub,
		Notifier: notifications.NewService(cfg),
	})
}
