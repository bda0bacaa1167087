// Package publisher implements the publisher loop: poll the state store
// for due jobs, transition them to queued, and hand them to the queue.
package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	ergate "github.com/ergatehq/ergate"
	"github.com/ergatehq/ergate/internal/shield"
)

// Metrics receives counters for what a publisher cycle observes.
type Metrics interface {
	BatchPublished(size int)
}

type noopMetrics struct{}

func (noopMetrics) BatchPublished(int) {}

// Config controls a Publisher's poll cadence and transient-error retry
// behavior. PollInterval is the only required field; zero-valued backoff
// fields fall back to backoff.NewExponentialBackOff defaults.
type Config struct {
	PollInterval time.Duration
	MaxRetryTime time.Duration
}

// Publisher periodically moves due jobs from the state store onto the
// queue. It never inspects job content; its only job is the
// fetch-transition-publish cycle.
type Publisher struct {
	StateStore ergate.StateStore
	Queue      ergate.Queue
	Config     Config
	Metrics    Metrics
	Log        *slog.Logger
}

// New builds a Publisher. metrics may be nil.
func New(store ergate.StateStore, queue ergate.Queue, cfg Config, metrics Metrics, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Publisher{StateStore: store, Queue: queue, Config: cfg, Metrics: metrics, Log: log}
}

// Run loops until ctx is cancelled: fetch-and-queue one batch (shielded
// from termination signals so a transition can't be persisted without
// its jobs reaching the queue), then sleep for the poll interval.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		release := shield.Enter()
		err := p.fetchAndQueue(ctx)
		release()
		if err != nil {
			p.Log.ErrorContext(ctx, "publisher cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Config.PollInterval):
		}
	}
}

// fetchAndQueue runs exactly one fetch-transition-publish cycle, with
// exponential backoff on transient store/queue errors (connection
// refused, timeout) so a brief outage doesn't spin the loop at full poll
// frequency. It never retries on a successful, empty batch.
func (p *Publisher) fetchAndQueue(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	opts := []backoff.RetryOption{backoff.WithBackOff(bo)}
	if p.Config.MaxRetryTime > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(p.Config.MaxRetryTime))
	}

	jobs, err := backoff.Retry(ctx, func() ([]ergate.Job, error) {
		return p.StateStore.FetchManyAndTransitionToQueued(ctx)
	}, opts...)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, p.Queue.PutMany(ctx, jobs)
	}, opts...)
	if err != nil {
		return err
	}

	p.Metrics.BatchPublished(len(jobs))
	return nil
}
