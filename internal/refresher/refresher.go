package refresher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/vzahanych/area-insight/internal/config"
	"github.com/vzahanych/area-insight/internal/model"
	"github.com/vzahanych/area-insight/pkg/telemetry"
	"go.uber.org/zap"
)

// LocationRefresher brings one location's weekly forecast up to date.
type LocationRefresher interface {
	RefreshLocation(ctx context.Context, rec model.LocationRecord) (bool, error)
}

type LocationLister interface {
	ListLocations(ctx context.Context) ([]model.LocationRecord, error)
}

// Summary describes one pass over the stored locations.
type Summary struct {
	Total     int
	Refreshed int
	Failed    int
}

// Refresher warms the weekly forecast of every stored location once a day so
// the first combined lookup after midnight is a cache hit.
type Refresher struct {
	cfg       config.CacheConfig
	lister    LocationLister
	target    LocationRefresher
	scheduler *gocron.Scheduler
	logger    *zap.Logger
	tele      *telemetry.Telemetry

	mu     sync.Mutex
	cancel context.CancelFunc
}

func New(cfg config.CacheConfig, lister LocationLister, target LocationRefresher, loc *time.Location, logger *zap.Logger, tele *telemetry.Telemetry) *Refresher {
	if loc == nil {
		loc = time.Local
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		cfg:       cfg,
		lister:    lister,
		target:    target,
		scheduler: gocron.NewScheduler(loc),
		logger:    logger.With(zap.String("component", "refresher")),
		tele:      tele,
	}
}

// Start schedules the daily pass at cfg.RefreshAt and returns immediately.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return fmt.Errorf("refresher already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	_, err := r.scheduler.Every(1).Day().At(r.cfg.RefreshAt).Do(func() {
		summary, err := r.RunOnce(runCtx)
		if err != nil {
			r.logger.Error("Scheduled refresh failed", zap.Error(err))
			return
		}
		r.logger.Info("Scheduled refresh completed",
			zap.Int("total", summary.Total),
			zap.Int("refreshed", summary.Refreshed),
			zap.Int("failed", summary.Failed))
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to schedule refresh at %q: %w", r.cfg.RefreshAt, err)
	}

	r.cancel = cancel
	r.scheduler.StartAsync()
	r.logger.Info("Refresher started", zap.String("at", r.cfg.RefreshAt), zap.Int("workers", r.cfg.Workers))
	return nil
}

func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.scheduler.Stop()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.logger.Info("Refresher stopped")
}

// RunOnce refreshes every stored location using cfg.Workers workers. A failing
// location is counted and skipped; the error is only returned when the
// locations themselves cannot be listed.
func (r *Refresher) RunOnce(ctx context.Context) (Summary, error) {
	ctx, span := r.tele.StartSpan(ctx, "refresher.RunOnce")
	defer span.End()

	records, err := r.lister.ListLocations(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list locations: %w", err)
	}

	summary := Summary{Total: len(records)}
	if len(records) == 0 {
		return summary, nil
	}

	tasks := make(chan task, len(records))
	results := make(chan taskResult, len(records))
	for _, rec := range records {
		tasks <- task{record: rec}
	}
	close(tasks)

	workers := min(r.cfg.Workers, len(records))
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go newWorker(r.target, i, r.logger, r.tele).start(ctx, tasks, results, &wg)
	}
	wg.Wait()
	close(results)

	processed := 0
	for res := range results {
		processed++
		switch {
		case res.err != nil:
			summary.Failed++
		case res.refreshed:
			summary.Refreshed++
		}
	}
	// tasks left behind by a cancelled context count as failures
	summary.Failed += summary.Total - processed

	return summary, ctx.Err()
}
