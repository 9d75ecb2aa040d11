// Package poller turns repeated GitHub queries into a stream of snapshots.
//
// A discovery cycle lists the most recently active repositories, then takes
// FetchIterations snapshots of their latest workflow runs, pausing
// IterationWait after each one. Every call to Snapshots or Stream runs its own
// independent loop; nothing is shared between consumers.
package poller

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"Actionboard/internal/config"
	"Actionboard/internal/metrics"
	"Actionboard/internal/models"
	"Actionboard/internal/retry"
)

// API is the upstream capability the poller depends on. Implementations do
// not retry; the poller wraps every call in its retry policy.
type API interface {
	// FetchRepositories returns up to count repositories, most recently active first
	FetchRepositories(ctx context.Context, count uint8) ([]models.Repository, error)

	// FetchWorkflowRuns returns up to count runs of one repository in no particular order
	FetchWorkflowRuns(ctx context.Context, owner, repo string, count uint8) ([]models.Run, error)
}

type Config struct {
	MaxRepositories uint8
	FetchIterations int
	MaxRunsPerRepo  uint8
	RetryWait       time.Duration
	IterationWait   time.Duration
}

// DefaultConfig returns the stock polling cadence
func DefaultConfig() Config {
	return Config{
		MaxRepositories: 5,
		FetchIterations: 2,
		MaxRunsPerRepo:  2,
		RetryWait:       60 * time.Second,
		IterationWait:   30 * time.Second,
	}
}

// ConfigFrom converts the validated poller section of the configuration
func ConfigFrom(cfg config.PollerConfig) Config {
	return Config{
		MaxRepositories: uint8(cfg.MaxRepositories),
		FetchIterations: cfg.FetchIterations,
		MaxRunsPerRepo:  uint8(cfg.MaxRunsPerRepo),
		RetryWait:       cfg.RetryWait,
		IterationWait:   cfg.IterationWait,
	}
}

// Retry operation names, also used as metric labels
const (
	opRepositories = "repositories"
	opWorkflowRuns = "workflow_runs"
)

// Result is one item of the channel form of the sequence
type Result struct {
	Snapshot models.Snapshot
	Err      error
}

type Poller struct {
	api     API
	cfg     Config
	policy  retry.Policy
	sleep   retry.SleepFunc
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(api API, cfg Config, policy retry.Policy, met *metrics.Metrics, logger *slog.Logger) *Poller {
	p := &Poller{
		api:     api,
		cfg:     cfg,
		sleep:   policy.Sleep,
		metrics: met,
		logger:  logger.With("component", "poller"),
	}
	if p.sleep == nil {
		p.sleep = retry.Sleep
	}

	onRetry := policy.OnRetry
	policy.OnRetry = func(op string, attempt int, wait time.Duration, err error) {
		met.RetryAttempts.WithLabelValues(op).Inc()
		p.logger.Warn("operation failed, retrying",
			"operation", op,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
		if onRetry != nil {
			onRetry(op, attempt, wait, err)
		}
	}
	onExhausted := policy.OnExhausted
	policy.OnExhausted = func(op string, attempts int, err error) {
		met.RetryExhausted.WithLabelValues(op).Inc()
		if onExhausted != nil {
			onExhausted(op, attempts, err)
		}
	}
	p.policy = policy

	return p
}

// Snapshots returns a lazily evaluated, unbounded sequence of snapshots.
// The sequence only ends when ctx is done, the consumer stops ranging, or an
// error outlives the retry policy; in the error cases the error is the last
// item yielded.
func (p *Poller) Snapshots(ctx context.Context) iter.Seq2[models.Snapshot, error] {
	return func(yield func(models.Snapshot, error) bool) {
		if err := p.run(ctx, func(s models.Snapshot) bool { return yield(s, nil) }); err != nil {
			yield(models.Snapshot{}, err)
		}
	}
}

// Stream runs the sequence on its own goroutine and delivers it over an
// unbuffered channel. The channel is closed when the sequence ends. Cancel
// ctx to stop the producer; no snapshot is delivered after that.
func (p *Poller) Stream(ctx context.Context) <-chan Result {
	out := make(chan Result)

	go func() {
		defer close(out)
		for snapshot, err := range p.Snapshots(ctx) {
			select {
			case out <- Result{Snapshot: snapshot, Err: err}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// run drives discovery cycles until emit returns false or an error occurs.
// A nil return means the consumer went away.
func (p *Poller) run(ctx context.Context, emit func(models.Snapshot) bool) error {
	for {
		p.logger.Info("fetching repositories")
		repositories, err := retry.Do(ctx, p.policy, opRepositories, func(ctx context.Context) ([]models.Repository, error) {
			return p.api.FetchRepositories(ctx, p.cfg.MaxRepositories)
		})
		if err != nil {
			return p.stopped(ctx, fmt.Errorf("fetch repositories: %w", err))
		}
		p.logger.Info("fetched repositories", "count", len(repositories))

		if len(repositories) == 0 {
			p.metrics.DiscoveryCycles.WithLabelValues("empty").Inc()
			p.logger.Warn("no repositories found, waiting before retrying", "wait", p.cfg.RetryWait)
			if err := p.sleep(ctx, p.cfg.RetryWait); err != nil {
				return p.stopped(ctx, err)
			}
			continue
		}
		p.metrics.DiscoveryCycles.WithLabelValues("ok").Inc()

		for i := 0; i < p.cfg.FetchIterations; i++ {
			p.logger.Info("fetching workflow runs", "iteration", i+1, "iterations", p.cfg.FetchIterations)

			snapshot, err := p.collect(ctx, repositories)
			if err != nil {
				return p.stopped(ctx, err)
			}

			p.metrics.SnapshotsEmitted.Inc()
			p.metrics.SnapshotRuns.Observe(float64(len(snapshot.Runs)))
			p.logger.Info("emitting snapshot", "runs", len(snapshot.Runs))
			if !emit(snapshot) {
				return nil
			}

			p.logger.Debug("waiting before next fetch", "wait", p.cfg.IterationWait)
			if err := p.sleep(ctx, p.cfg.IterationWait); err != nil {
				return p.stopped(ctx, err)
			}
		}
	}
}

// collect fetches runs for each repository in turn and merges them into one
// snapshot. A single failing repository fails the whole snapshot.
func (p *Poller) collect(ctx context.Context, repositories []models.Repository) (models.Snapshot, error) {
	var all []models.Run

	for _, repo := range repositories {
		p.logger.Debug("fetching runs", "repository", repo.FullName())

		runs, err := retry.Do(ctx, p.policy, opWorkflowRuns, func(ctx context.Context) ([]models.Run, error) {
			return p.api.FetchWorkflowRuns(ctx, repo.Owner, repo.Name, p.cfg.MaxRunsPerRepo)
		})
		if err != nil {
			return models.Snapshot{}, fmt.Errorf("fetch workflow runs for %s: %w", repo.FullName(), err)
		}
		all = append(all, runs...)
	}

	return models.NewSnapshot(all), nil
}

// stopped passes err through unless it is only the consumer's cancellation
func (p *Poller) stopped(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		p.logger.Debug("poller stopped", "reason", ctx.Err())
		return ctx.Err()
	}
	p.logger.Error("poller failed", "error", err)
	return err
}
