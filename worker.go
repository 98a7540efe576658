package dextralhorn

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

// job is one deferred pipeline run for a trigger.
type job struct {
	id  string
	req snapshot.RequestSnapshot
	res snapshot.ResponseSnapshot
}

// enqueue hands the trigger to the worker without blocking.
// It reports false if the queue is full or closed, in which case the job is dropped.
func (e *Engine) enqueue(req snapshot.RequestSnapshot, res snapshot.ResponseSnapshot) bool {
	j := job{id: uuid.NewString(), req: req, res: res}

	e.queueMu.RLock()
	defer e.queueMu.RUnlock()
	if e.closed || e.queue == nil {
		e.log.Warn().Str("job", j.id).Str("trigger", req.RouteName).Msg("Queue closed, dropping prefetch job")
		return false
	}
	select {
	case e.queue <- j:
		e.log.Trace().Str("job", j.id).Str("queue", e.queueName).Str("trigger", req.RouteName).Msg("Queued prefetch job")
		return true
	default:
		e.log.Warn().Str("job", j.id).Str("queue", e.queueName).Str("trigger", req.RouteName).Msg("Queue full, dropping prefetch job")
		return false
	}
}

// work runs queued jobs one at a time until the queue is closed.
func (e *Engine) work() {
	defer e.workers.Done()
	e.log.Info().Str("queue", e.queueName).Msg("Starting prefetch worker")
	for j := range e.queue {
		e.run(j)
	}
}

// run executes a job, retrying with exponential backoff until it succeeds,
// fails permanently or runs out of tries. Closing the engine ends pending
// retries. Failure is reported once.
func (e *Engine) run(j job) {
	ctx := context.Background()
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = 100 * time.Millisecond
	backoffCfg.MaxInterval = 5 * time.Second

	jobLog := e.log.With().Str("job", j.id).Str("trigger", j.req.RouteName).Logger()
	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := e.Handle(ctx, j.req, j.res)
		if err == nil {
			jobLog.Debug().Int("attempt", attempt).Dur("took", time.Since(start)).Msg("Prefetch job done")
			return
		}
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) || attempt >= e.tries {
			e.reporter.JobFailed(j.id, j.req.RouteName, attempt, err)
			return
		}
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = backoffCfg.MaxInterval
		}
		jobLog.Debug().Err(err).Int("attempt", attempt).Dur("retryIn", sleep).Msg("Retrying prefetch job")
		select {
		case <-time.After(sleep):
		case <-e.stop:
			jobLog.Debug().Int("attempt", attempt).Msg("Engine closed, abandoning retries")
			e.reporter.JobFailed(j.id, j.req.RouteName, attempt, err)
			return
		}
	}
}

// expireCache runs a loop removing expired entries from the store,
// once per interval, until the engine is closed.
func (e *Engine) expireCache(interval time.Duration) {
	defer e.workers.Done()
	e.log.Info().Msgf("Starting cache expiry loop with interval %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case now := <-ticker.C:
			removed, err := e.provider.Expire(now)
			if err != nil {
				e.log.Error().Err(err).Msg("Could not remove expired entries")
				continue
			}
			if removed > 0 {
				e.log.Trace().Int("removed", removed).Msg("Removed expired entries")
			}
		}
	}
}
