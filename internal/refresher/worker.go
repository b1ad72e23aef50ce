package refresher

import (
	"context"
	"sync"

	"github.com/vzahanych/area-insight/internal/model"
	"github.com/vzahanych/area-insight/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type task struct {
	record model.LocationRecord
}

type taskResult struct {
	locationID string
	refreshed  bool
	err        error
}

type worker struct {
	target   LocationRefresher
	workerID int
	logger   *zap.Logger
	tele     *telemetry.Telemetry
}

func newWorker(target LocationRefresher, workerID int, logger *zap.Logger, tele *telemetry.Telemetry) *worker {
	return &worker{
		target:   target,
		workerID: workerID,
		logger:   logger.With(zap.Int("worker_id", workerID)),
		tele:     tele,
	}
}

// start drains tasks until the queue is closed or ctx is cancelled.
func (w *worker) start(ctx context.Context, tasks <-chan task, results chan<- taskResult, wg *sync.WaitGroup) {
	defer wg.Done()

	w.logger.Debug("Worker started")

	for {
		select {
		case t, ok := <-tasks:
			if !ok {
				w.logger.Debug("Task queue closed, worker stopping")
				return
			}
			results <- w.process(ctx, t)

		case <-ctx.Done():
			w.logger.Info("Context cancelled, worker stopping")
			return
		}
	}
}

func (w *worker) process(ctx context.Context, t task) taskResult {
	ctx, span := w.tele.StartSpan(ctx, "refresher.process",
		attribute.String("location_id", t.record.ID),
		attribute.Int("worker_id", w.workerID),
	)
	defer span.End()

	refreshed, err := w.target.RefreshLocation(ctx, t.record)
	if err != nil {
		w.logger.Error("Refresh failed", zap.String("location_id", t.record.ID), zap.Error(err))
		w.tele.RecordError(ctx, err, map[string]interface{}{"location_id": t.record.ID})
	} else {
		w.logger.Debug("Refresh completed",
			zap.String("location_id", t.record.ID),
			zap.Bool("refreshed", refreshed))
	}
	span.SetAttributes(attribute.Bool("refreshed", refreshed))

	return taskResult{locationID: t.record.ID, refreshed: refreshed, err: err}
}
