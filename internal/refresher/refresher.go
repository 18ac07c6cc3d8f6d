// Package refresher runs the nightly dealer metrics batch: portfolio
// statistics are pulled from the warehouse, turned into per-dealer default
// rates, and upserted into risk_dealer_metrics where the scoring path and
// BR-07 read them.
package refresher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/LimmatCapital/Verdict/internal/config"
	"github.com/LimmatCapital/Verdict/internal/datahub"
	"github.com/LimmatCapital/Verdict/internal/herald"
	"github.com/LimmatCapital/Verdict/internal/store"
)

// trendBand is the default-rate delta, in absolute terms, beyond which a
// dealer counts as IMPROVING or WORSENING rather than STABLE.
const trendBand = 0.02

// ErrAlreadyRunning is returned when a refresh cycle is requested while one
// is still in flight.
var ErrAlreadyRunning = errors.New("dealer refresh already running")

type Refresher struct {
	store   store.Store
	datahub datahub.Client
	events  herald.Client
	cfg     *config.Config
	logger  *slog.Logger
	now     func() time.Time

	runMu    sync.Mutex
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Result summarizes one refresh cycle.
type Result struct {
	SnapshotDate     string  `json:"snapshot_date"`
	DealersProcessed int     `json:"dealers_processed"`
	RowsWritten      int     `json:"rows_written"`
	WatchlistCount   int     `json:"watchlist_count"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
	Status           string  `json:"status"`
}

func New(s store.Store, dh datahub.Client, events herald.Client, cfg *config.Config, logger *slog.Logger) *Refresher {
	return &Refresher{
		store:   s,
		datahub: dh,
		events:  events,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

func (r *Refresher) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.refreshLoop(ctx)
}

func (r *Refresher) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *Refresher) refreshLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("scheduled dealer refresh failed", "error", err)
			}
		}
	}
}

// SetupSubscriptions lets other services request an out-of-cycle refresh
// over the broker.
func (r *Refresher) SetupSubscriptions() {
	if r.events == nil {
		return
	}
	_ = r.events.Subscribe(herald.SubjectDealerRefreshRequest, func(_ string, _ []byte) {
		if _, err := r.RunOnce(context.Background()); err != nil {
			r.logger.Warn("requested dealer refresh failed", "error", err)
		}
	})
}

// RunOnce executes a single refresh cycle. Only one cycle runs at a time;
// a second caller gets an error instead of queueing behind the first.
func (r *Refresher) RunOnce(ctx context.Context) (*Result, error) {
	if !r.runMu.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer r.runMu.Unlock()

	start := r.now().UTC()
	snapshotDate := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	r.logger.Info("dealer refresh started", "snapshot_date", snapshotDate.Format("2006-01-02"))

	stats, err := r.datahub.FetchDealerStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch dealer stats: %w", err)
	}

	previous, err := r.store.GetLatestDealerRates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load previous rates: %w", err)
	}

	metrics := make([]*store.DealerMetric, 0, len(stats))
	watchlist := 0
	for _, s := range stats {
		if s.TotalOriginated < r.cfg.Refresher.MinContractVolume {
			continue
		}
		m := r.buildMetric(s, previous, snapshotDate, start)
		if m.IsWatchlist {
			watchlist++
		}
		metrics = append(metrics, m)
	}

	if err := r.store.UpsertDealerMetrics(ctx, metrics); err != nil {
		return nil, fmt.Errorf("upsert dealer metrics: %w", err)
	}

	elapsed := math.Round(r.now().UTC().Sub(start).Seconds()*100) / 100
	result := &Result{
		SnapshotDate:     snapshotDate.Format("2006-01-02"),
		DealersProcessed: len(metrics),
		RowsWritten:      len(metrics),
		WatchlistCount:   watchlist,
		ElapsedSeconds:   elapsed,
		Status:           "success",
	}

	r.logger.Info("dealer refresh complete",
		"snapshot_date", result.SnapshotDate,
		"dealers_processed", result.DealersProcessed,
		"watchlist_count", result.WatchlistCount,
		"elapsed_seconds", result.ElapsedSeconds,
	)
	if r.events != nil {
		_ = r.events.Publish(herald.SubjectDealerMetricsRefreshed, herald.DealerMetricsRefreshedEvent{
			SnapshotDate:     result.SnapshotDate,
			DealersProcessed: result.DealersProcessed,
			RowsWritten:      result.RowsWritten,
			WatchlistCount:   result.WatchlistCount,
			ElapsedSeconds:   result.ElapsedSeconds,
		})
	}
	return result, nil
}

func (r *Refresher) buildMetric(s datahub.DealerContractStats, previous map[string]float64, snapshotDate, now time.Time) *store.DealerMetric {
	rate := 0.0
	if s.TotalOriginated > 0 {
		rate = math.Round(float64(s.DefaultCount)/float64(s.TotalOriginated)*10000) / 10000
	}

	var prev *float64
	if p, ok := previous[s.DealerID]; ok {
		v := p
		prev = &v
	}

	threshold := r.cfg.Refresher.WatchlistThreshold
	onWatchlist := rate > threshold
	reason := ""
	if onWatchlist {
		reason = fmt.Sprintf("Default rate %.1f%% exceeds %.0f%% threshold", rate*100, threshold*100)
	}

	return &store.DealerMetric{
		DealerID:            s.DealerID,
		DealerName:          s.DealerName,
		SnapshotDate:        snapshotDate,
		ActiveContracts:     s.ActiveContracts,
		TotalOriginated:     s.TotalOriginated,
		DefaultCount:        s.DefaultCount,
		CurrentDefaultRate:  rate,
		PreviousDefaultRate: prev,
		DefaultRateTrend:    computeTrend(rate, prev),
		ActiveMonths:        activeMonths(s.FirstContractDate, now),
		VolumeTier:          volumeTier(s.TotalOriginated),
		AvgContractSize:     s.AvgContractSize,
		IsWatchlist:         onWatchlist,
		WatchlistReason:     reason,
		DataSource:          "DATAHUB",
	}
}

func computeTrend(current float64, previous *float64) string {
	if previous == nil {
		return "NEW"
	}
	delta := current - *previous
	switch {
	case delta < -trendBand:
		return "IMPROVING"
	case delta > trendBand:
		return "WORSENING"
	}
	return "STABLE"
}

func volumeTier(totalOriginated int) string {
	switch {
	case totalOriginated >= 200:
		return "PLATINUM"
	case totalOriginated >= 50:
		return "GOLD"
	case totalOriginated >= 20:
		return "SILVER"
	}
	return "BRONZE"
}

func activeMonths(firstContract *string, now time.Time) int {
	if firstContract == nil {
		return 0
	}
	first, err := time.Parse("2006-01-02", *firstContract)
	if err != nil {
		return 0
	}
	days := now.Sub(first).Hours() / 24
	if days < 0 {
		return 0
	}
	return int(days / 30.44)
}
