package appbootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"incidents-reseau/api"
	"incidents-reseau/config"
	"incidents-reseau/core/blob"
	"incidents-reseau/core/incidents"
	"incidents-reseau/core/queue"
	"incidents-reseau/core/store"
	"incidents-reseau/core/utils"
)

type runtimeComposition struct {
	serverDeps api.ServerDeps
	auditor    *incidents.CountAuditor
	queue      queue.Queue
}

func composeRuntime(ctx context.Context, cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) (*runtimeComposition, error) {
	isPG := strings.HasPrefix(cfg.DBURL, "postgres://") || strings.HasPrefix(cfg.DBURL, "postgresql://")
	incidentsStore := store.NewIncidentsStore(db, isPG)

	blobs, err := composeBlobStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var q queue.Queue = queue.Disabled{}
	if cfg.Queue.Enabled {
		q = queue.NewAMQPQueue(cfg.Queue.URL, cfg.Queue.Name, logger)
		logger.Printf("queue activée: %s", cfg.Queue.Name)
	} else {
		logger.Printf("queue désactivée, notifications ignorées")
	}

	incidentsSvc := incidents.NewService(cfg, incidentsStore, blobs, q, logger)
	auditor := incidents.NewCountAuditor(cfg.Audit, incidentsStore, logger)

	return &runtimeComposition{
		serverDeps: api.ServerDeps{
			Cfg:          cfg,
			Store:        incidentsStore,
			IncidentsSvc: incidentsSvc,
			Blobs:        blobs,
			Queue:        q,
			Logger:       logger,
		},
		auditor: auditor,
		queue:   q,
	}, nil
}

// composeBlobStore picks the cloud bucket when configured and falls back to
// local disk otherwise; the application must come up either way.
func composeBlobStore(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) (blob.Store, error) {
	if cfg.Blob.Enabled {
		gcs, err := blob.NewGCSStore(ctx, cfg.Blob.Bucket, cfg.Blob.CredentialsFile)
		if err != nil {
			logger.Errorf("stockage cloud indisponible (%v), repli sur le disque local", err)
		} else {
			logger.Printf("stockage cloud actif: bucket %s", cfg.Blob.Bucket)
			return gcs, nil
		}
	}
	local, err := blob.NewLocalStore(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("stockage local: %w", err)
	}
	logger.Printf("stockage local actif: %s", cfg.Storage.Dir)
	return local, nil
}
