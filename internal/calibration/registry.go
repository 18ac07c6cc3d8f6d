package calibration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/LimmatCapital/Verdict/internal/scoring"
	"github.com/LimmatCapital/Verdict/internal/store"
)

// Registry hands compiled snapshots to the scoring path. It holds the
// published pointer behind an RWMutex and caches pinned versions by id;
// published and archived configurations are immutable, so cached snapshots
// never go stale.
type Registry struct {
	store  store.Store
	logger *slog.Logger

	mu        sync.RWMutex
	published *scoring.Snapshot
	cache     map[string]*scoring.Snapshot
}

func NewRegistry(s store.Store, logger *slog.Logger) *Registry {
	return &Registry{store: s, logger: logger, cache: make(map[string]*scoring.Snapshot)}
}

// Reload swaps the published pointer to whatever the store says is live.
// Called at startup and after every publish.
func (r *Registry) Reload(ctx context.Context) error {
	v, err := r.store.GetPublishedVersion(ctx)
	if err != nil {
		return fmt.Errorf("load published version: %w", err)
	}
	if v == nil {
		r.mu.Lock()
		r.published = nil
		r.mu.Unlock()
		r.logger.Warn("no published model version, evaluations will fail until one is published")
		return nil
	}

	snap, err := r.load(ctx, v.VersionID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.published = snap
	r.mu.Unlock()
	r.logger.Info("published model loaded", "model_version", snap.VersionID)
	return nil
}

// Published returns the live snapshot, nil when nothing is published.
func (r *Registry) Published() *scoring.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.published
}

// Resolve implements scoring.VersionResolver. An empty id returns the
// published snapshot; a pinned id loads and caches that version. Drafts are
// rejected: they never score live traffic.
func (r *Registry) Resolve(ctx context.Context, versionID string) (*scoring.Snapshot, error) {
	if versionID == "" {
		snap := r.Published()
		if snap == nil {
			return nil, errors.New("no published model version")
		}
		return snap, nil
	}

	r.mu.RLock()
	snap, ok := r.cache[versionID]
	r.mu.RUnlock()
	if ok {
		return snap, nil
	}
	return r.load(ctx, versionID)
}

func (r *Registry) load(ctx context.Context, versionID string) (*scoring.Snapshot, error) {
	cfg, err := r.store.GetVersionConfig(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("load version %s: %w", versionID, err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("model version %s: %w", versionID, ErrNotFound)
	}
	if cfg.Version.Status == store.StatusDraft {
		return nil, fmt.Errorf("model version %s is a draft and cannot score requests", versionID)
	}

	snap, err := scoring.NewSnapshot(cfg)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.cache[versionID] = snap
	r.mu.Unlock()
	return snap, nil
}
