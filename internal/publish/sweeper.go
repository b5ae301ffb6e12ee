package publish

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/datapub/internal/logfields"
	"git.home.luguber.info/inful/datapub/internal/retry"
)

// RecheckFunc retries a pending build check. It returns nil when the dataset
// has reached a terminal state and no further rechecks are needed.
type RecheckFunc func(ctx context.Context) error

// PendingRegistry tracks datasets whose site build outlived the in-job poll
// deadline. The sweeper re-checks them periodically.
type PendingRegistry struct {
	mu      sync.Mutex
	entries map[string]RecheckFunc
}

// NewPendingRegistry creates an empty registry.
func NewPendingRegistry() *PendingRegistry {
	return &PendingRegistry{entries: make(map[string]RecheckFunc)}
}

// Add registers a recheck for a dataset, replacing any previous one.
func (r *PendingRegistry) Add(datasetID string, fn RecheckFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[datasetID] = fn
}

// Remove drops the recheck for a dataset.
func (r *PendingRegistry) Remove(datasetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, datasetID)
}

// Len returns the number of pending datasets.
func (r *PendingRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep runs every registered recheck once. Entries that complete are
// removed; entries that are still pending stay registered for the next
// sweep.
func (r *PendingRegistry) Sweep(ctx context.Context) {
	r.mu.Lock()
	pending := make(map[string]RecheckFunc, len(r.entries))
	for id, fn := range r.entries {
		pending[id] = fn
	}
	r.mu.Unlock()

	for id, fn := range pending {
		err := fn(ctx)
		switch {
		case err == nil:
			slog.Info("pending build completed", logfields.DatasetID(id))
			r.Remove(id)
		case retry.IsDeadline(err):
			slog.Debug("site still building", logfields.DatasetID(id))
		default:
			slog.Warn("pending build recheck failed",
				logfields.DatasetID(id), logfields.Error(err))
			r.Remove(id)
		}
	}
}

// Sweeper wraps a gocron scheduler running the periodic pending-build sweep.
type Sweeper struct {
	scheduler gocron.Scheduler
	registry  *PendingRegistry
}

// NewSweeper creates a sweeper over the given registry.
func NewSweeper(registry *PendingRegistry, interval time.Duration) (*Sweeper, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { registry.Sweep(context.Background()) }),
		gocron.WithName("pending-build-sweep"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sweep job: %w", err)
	}

	return &Sweeper{scheduler: s, registry: registry}, nil
}

// Start begins periodic sweeping.
func (s *Sweeper) Start() {
	slog.Info("Starting pending-build sweeper")
	s.scheduler.Start()
}

// Stop gracefully shuts down the sweeper.
func (s *Sweeper) Stop() error {
	slog.Info("Stopping pending-build sweeper")
	return s.scheduler.Shutdown()
}
