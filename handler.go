package dextralhorn

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sourcegraph/conc/pool"

	serializer "github.com/always-cache/dextral-horn/pkg/response-serializer"
	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

// Handle runs the prefetch pipeline for a trigger: it resolves the targets of
// the first rule matching the trigger, dispatches them and caches the
// cacheable responses.
// Rule errors are permanent. Failed dispatches are reported and skipped.
func (e *Engine) Handle(ctx context.Context, req snapshot.RequestSnapshot, res snapshot.ResponseSnapshot) error {
	if e.dispatcher == nil {
		return backoff.Permanent(ErrNoRouter)
	}
	targets, err := e.Targets(req, res)
	if err != nil {
		return backoff.Permanent(err)
	}
	if len(targets) == 0 {
		return nil
	}
	e.log.Debug().Str("trigger", req.RouteName).Int("targets", len(targets)).Msg("Prefetching targets")

	p := pool.New().WithErrors().WithMaxGoroutines(e.concurrency)
	for _, target := range targets {
		target := target
		p.Go(func() error {
			return e.prefetch(ctx, target)
		})
	}
	return p.Wait()
}

// Targets resolves the targets of the first rule matching the trigger.
func (e *Engine) Targets(req snapshot.RequestSnapshot, res snapshot.ResponseSnapshot) ([]snapshot.TargetRoute, error) {
	var targets []snapshot.TargetRoute
	for _, t := range e.rules.Match(req.RouteName, req.Method) {
		resolved, err := e.resolver.Resolve(t, req, res)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", t.Route, err)
		}
		targets = append(targets, resolved...)
	}
	return targets, nil
}

// prefetch dispatches one target and stores the response if it is cacheable.
func (e *Engine) prefetch(ctx context.Context, target snapshot.TargetRoute) error {
	requestTime := time.Now()
	res := e.dispatcher.Dispatch(ctx, target)
	responseTime := time.Now()
	if res.Body != nil {
		defer res.Body.Close()
	}

	if !e.validator.ShouldCache(res) {
		e.reporter.NonCacheableResponse(target, res.StatusCode, e.validator.Results(res))
		return nil
	}
	_, err := e.responses.Put(serializer.TimedResponse{
		Response:     res,
		RequestTime:  requestTime,
		ResponseTime: responseTime,
	}, target)
	if err != nil {
		return fmt.Errorf("store %s: %w", target.RouteName, err)
	}
	return nil
}
