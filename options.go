package router

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Router.
type Option func(*Router) error

// Storer is the minimal store interface held by the Router. It covers
// lifecycle operations only. The full composite interface (store.Store)
// is used in subsystem layers that don't create import cycles;
// implementations satisfy store.Store which embeds all subsystem stores.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// dispatchRunner is an internal interface for dispatcher lifecycle.
type dispatchRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Router is the central holder for configuration, logging, and the
// persistence backend. Create one with New() and functional options,
// then use engine.Build() to wire the dispatcher and subsystems on top.
type Router struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	dispatcher dispatchRunner
	extensions extensionEmitter

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Router with the given options.
func New(opts ...Option) (*Router, error) {
	r := &Router{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Logger returns the router's logger.
func (r *Router) Logger() *slog.Logger { return r.logger }

// Store returns the router's store.
func (r *Router) Store() Storer { return r.store }

// Config returns a copy of the router's configuration.
func (r *Router) Config() Config { return r.config }

// SetDispatcher sets the dispatcher runner (called by the engine package).
func (r *Router) SetDispatcher(d dispatchRunner) { r.dispatcher = d }

// SetExtensions sets the extension emitter (called by the engine package).
func (r *Router) SetExtensions(e extensionEmitter) { r.extensions = e }

// Start begins offer dispatching.
func (r *Router) Start(ctx context.Context) error {
	if r.dispatcher == nil {
		return ErrNoStore
	}
	if err := r.dispatcher.Start(ctx); err != nil {
		return err
	}
	r.started = true
	return nil
}

// Stop gracefully shuts down the router.
func (r *Router) Stop(ctx context.Context) error {
	if r.dispatcher != nil && r.started {
		if err := r.dispatcher.Stop(ctx); err != nil {
			r.logger.Error("dispatcher stop error", "error", err)
		}
	}
	if r.extensions != nil {
		r.extensions.EmitShutdown(ctx)
	}
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}

// WithLogger sets the structured logger for the router.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) error {
		r.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the router.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(r *Router) error {
		r.store = s
		return nil
	}
}

// WithDefaultOfferTTL sets the fallback offer expiration duration.
func WithDefaultOfferTTL(d time.Duration) Option {
	return func(r *Router) error {
		if d <= 0 {
			return ErrInvalidOfferTTL
		}
		r.config.DefaultOfferTTL = d
		return nil
	}
}

// WithSweepInterval sets how often the dispatcher runs safety-net sweeps.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Router) error {
		r.config.SweepInterval = d
		return nil
	}
}

// WithJanitorSchedule sets the cron expression for background maintenance.
func WithJanitorSchedule(expr string) Option {
	return func(r *Router) error {
		r.config.JanitorSchedule = expr
		return nil
	}
}

// WithClosedJobRetention sets how long closed jobs are kept before purge.
func WithClosedJobRetention(d time.Duration) Option {
	return func(r *Router) error {
		r.config.ClosedJobRetention = d
		return nil
	}
}
