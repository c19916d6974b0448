package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/insightq/analysis-jobs/internal/domain"
	"github.com/insightq/analysis-jobs/internal/queue"
)

// Config tunes the dispatcher pool.
type Config struct {
	// Concurrency is the number of goroutines competing per category queue.
	Concurrency int
	// DequeueWait bounds how long a goroutine blocks on an empty queue
	// before re-checking for shutdown.
	DequeueWait time.Duration
}

// Dispatcher drains the task queues with a pool of goroutines per category.
// No lock serializes dispatch: goroutines compete for entries and the
// store's conditional transitions arbitrate races.
type Dispatcher struct {
	processor   *Processor
	queue       queue.TaskQueue
	logger      *slog.Logger
	concurrency int
	dequeueWait time.Duration
	wg          sync.WaitGroup
	stopChan    chan struct{}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(processor *Processor, taskQueue queue.TaskQueue, cfg Config, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		processor:   processor,
		queue:       taskQueue,
		logger:      logger,
		concurrency: cfg.Concurrency,
		dequeueWait: cfg.DequeueWait,
		stopChan:    make(chan struct{}),
	}
}

// Start spawns the worker pool and returns immediately.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting dispatcher pool",
		slog.Int("concurrency", d.concurrency),
		slog.Int("categories", len(domain.Categories())),
	)

	for _, category := range domain.Categories() {
		for i := 0; i < d.concurrency; i++ {
			d.wg.Add(1)
			go d.workerLoop(ctx, category, i)
		}
	}
}

// Stop signals the pool and waits for in-flight entries to finish.
func (d *Dispatcher) Stop() {
	d.logger.Info("Stopping dispatcher pool...")
	close(d.stopChan)
	d.wg.Wait()
	d.logger.Info("Dispatcher pool stopped")
}

func (d *Dispatcher) workerLoop(ctx context.Context, category domain.Category, workerNum int) {
	defer d.wg.Done()

	workerName := fmt.Sprintf("%s-%d", category, workerNum)
	log := d.logger.With(slog.String("worker", workerName))
	log.Info("Dispatcher worker started")

	for {
		select {
		case <-d.stopChan:
			log.Info("Dispatcher worker stopping - stop requested")
			return
		case <-ctx.Done():
			log.Info("Dispatcher worker stopping - context canceled")
			return
		default:
		}

		entry, ok, err := d.queue.Dequeue(ctx, category, d.dequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("Dequeue failed", slog.Any("error", err))
			time.Sleep(d.dequeueWait)
			continue
		}
		if !ok {
			continue
		}

		if err := d.processor.Process(ctx, entry); err != nil {
			log.Error("Failed to process entry",
				slog.String("job_id", entry.JobID),
				slog.Any("error", err),
			)
		}
	}
}
