package dextralhorn

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/always-cache/dextral-horn/cache"
	"github.com/always-cache/dextral-horn/pkg/dispatcher"
	"github.com/always-cache/dextral-horn/pkg/events"
	"github.com/always-cache/dextral-horn/pkg/identifier"
	"github.com/always-cache/dextral-horn/pkg/resolver"
	responsecache "github.com/always-cache/dextral-horn/pkg/response-cache"
	"github.com/always-cache/dextral-horn/pkg/rules"
	"github.com/always-cache/dextral-horn/pkg/snapshot"
	"github.com/always-cache/dextral-horn/pkg/strategy"
	"github.com/always-cache/dextral-horn/pkg/validator"
)

var ErrNoRouter = errors.New("dextralhorn: router is required when enabled")

type Engine struct {
	enabled        bool
	rules          rules.Rules
	registry       *strategy.Registry
	resolver       *resolver.Resolver
	dispatcher     *dispatcher.Dispatcher
	validator      validator.Validator
	provider       cache.CacheProvider
	responses      *responsecache.ResponseCache
	reporter       events.Reporter
	log            zerolog.Logger
	snapshotOpts   snapshot.Options
	prefetchHeader string
	concurrency    int
	tries          int

	queueName string
	queue     chan job
	queueMu   sync.RWMutex
	closed    bool
	stop      chan struct{}
	workers   sync.WaitGroup
	closeOnce sync.Once
}

// CreateEngine initializes the prefetch engine.
// Rules are checked against the strategy registry up front.
// When enabled, it starts the job worker and the expiry sweep.
func CreateEngine(config Config) (*Engine, error) {
	config.applyDefaults()

	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	// create a child logger and add defaults
	logger = logger.With().
		Str("component", "dextral-horn").
		Logger()

	registry := config.Registry
	if registry == nil {
		registry = strategy.DefaultRegistry()
	}
	if err := config.Rules.Lint(registry); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	if config.Enabled && config.Router == nil {
		return nil, ErrNoRouter
	}

	reporter := config.Reporter
	if reporter == nil {
		reporter = events.NewLogReporter(logger)
	}
	provider := config.Cache
	if provider == nil {
		provider = config.NewCacheProvider()
	}

	e := &Engine{
		enabled:        config.Enabled,
		rules:          config.Rules,
		registry:       registry,
		resolver:       resolver.New(registry, config.PrefetchHeader),
		validator:      validator.New(config.CacheMaxSize),
		provider:       provider,
		reporter:       reporter,
		log:            logger,
		prefetchHeader: config.PrefetchHeader,
		concurrency:    config.DispatchConcurrency,
		tries:          config.QueueTries,
		queueName:      config.QueueName,
		stop:           make(chan struct{}),
		snapshotOpts: snapshot.Options{
			PrefetchHeader:    config.PrefetchHeader,
			SessionCookieName: config.SessionCookieName,
		},
	}
	e.responses = responsecache.New(provider, responsecache.Options{
		Prefix:     config.PrefetchPrefix,
		TTL:        config.CacheTTL,
		Identifier: identifier.New(config.AuthDriver, config.SessionCookieName),
		Reporter:   reporter,
	})

	if !config.Enabled {
		e.log.Info().Msg("Prefetching disabled")
		return e, nil
	}

	e.dispatcher = dispatcher.New(config.Router, config.Router, config.SessionCookieName, reporter)
	e.queue = make(chan job, config.QueueSize)

	// start the worker and a goroutine to remove expired entries
	e.workers.Add(2)
	go e.work()
	go e.expireCache(config.CacheTTL)

	return e, nil
}

// Enabled reports whether the middlewares are active.
func (e *Engine) Enabled() bool {
	return e.enabled
}

// Responses returns the response cache of the engine.
func (e *Engine) Responses() *responsecache.ResponseCache {
	return e.responses
}

// Clear removes all prefetched entries carrying every given tag.
// It reports false if the cache store cannot clear by tags.
func (e *Engine) Clear(tags ...string) bool {
	return e.responses.Clear(tags...)
}

// Close stops accepting jobs and waits until queued jobs are done or ctx ends.
func (e *Engine) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		e.queueMu.Lock()
		e.closed = true
		if e.queue != nil {
			close(e.queue)
		}
		e.queueMu.Unlock()
		close(e.stop)
	})

	done := make(chan struct{})
	go func() {
		e.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
