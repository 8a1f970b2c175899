package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/scrim-arena/internal/config"
	"github.com/scrim-arena/internal/domain"
	"github.com/scrim-arena/internal/postgres"
	"github.com/scrim-arena/internal/redis"
)

// SyncWorker periodically repairs the Redis standings mirror from
// PostgreSQL, the source of truth, so ranked reads survive Redis restarts
// and missed updates.
type SyncWorker struct {
	redis    *redis.StandingsService
	postgres *postgres.Repository
	config   *config.SyncConfig
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(
	redisService *redis.StandingsService,
	postgresRepo *postgres.Repository,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *SyncWorker {
	return &SyncWorker{
		redis:    redisService,
		postgres: postgresRepo,
		config:   cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background sync process
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sync worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background sync process
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sync worker stopped")
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// run is the main worker loop
func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.syncAll(ctx)
		}
	}
}

// syncAll mirrors every mode's standings into Redis
func (w *SyncWorker) syncAll(ctx context.Context) {
	w.logger.Info("starting sync cycle")
	startTime := time.Now()

	syncedCount := 0
	errorCount := 0

	for _, mode := range domain.Modes {
		if err := w.SyncMode(ctx, mode); err != nil {
			w.logger.Error("failed to sync standings",
				"mode", mode.String(),
				"error", err,
			)
			errorCount++
		} else {
			syncedCount++
		}
	}

	duration := time.Since(startTime)
	w.logger.Info("sync cycle completed",
		"duration", duration,
		"synced", syncedCount,
		"errors", errorCount,
	)
}

// SyncMode mirrors one mode's standings from PostgreSQL to Redis
func (w *SyncWorker) SyncMode(ctx context.Context, mode domain.Mode) error {
	w.logger.Debug("syncing standings", "mode", mode.String())

	entries, err := w.postgres.GetAllEntries(ctx, mode)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		w.logger.Debug("no standings to sync", "mode", mode.String())
		return nil
	}

	// Process in batches to avoid oversized pipeline commands
	batchSize := w.config.BatchSize
	if batchSize == 0 {
		batchSize = 1000
	}

	for start := 0; start < len(entries); start += batchSize {
		end := start + batchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := w.redis.BatchSetEntries(ctx, mode, entries[start:end]); err != nil {
			return err
		}
	}

	w.logger.Debug("synced standings",
		"mode", mode.String(),
		"player_count", len(entries),
	)
	return nil
}

// SyncAllModes mirrors every mode once; used at startup for recovery
func (w *SyncWorker) SyncAllModes(ctx context.Context) error {
	w.logger.Info("syncing all standings from database")

	for _, mode := range domain.Modes {
		if err := w.SyncMode(ctx, mode); err != nil {
			w.logger.Error("failed to sync standings from database",
				"mode", mode.String(),
				"error", err,
			)
			// Continue with other modes
		}
	}

	w.logger.Info("completed syncing standings from database")
	return nil
}

// RunOnce runs a single sync cycle (useful for manual triggers)
func (w *SyncWorker) RunOnce(ctx context.Context) {
	w.syncAll(ctx)
}
