package queue

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/xraph/router/id"
)

// Config defines per-queue offer throttling.
type Config struct {
	// QueueID identifies the queue the limits apply to.
	QueueID id.QueueID

	// OfferRate is the maximum sustained offers per second the
	// dispatcher may issue from this queue. Zero disables rate limiting.
	OfferRate float64

	// OfferBurst is the burst size for the token-bucket limiter.
	// Defaults to 1 if OfferRate is set but OfferBurst is zero.
	OfferBurst int
}

// queueState tracks runtime throttle state for a single queue.
type queueState struct {
	config  Config
	limiter *rate.Limiter
}

// Manager applies per-queue offer rate limits. It is safe for concurrent
// use. Queues without a registered Config are unthrottled.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*queueState
}

// NewManager creates a Manager with the given queue configurations.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		queues: make(map[string]*queueState, len(configs)),
	}
	for _, cfg := range configs {
		m.queues[cfg.QueueID.String()] = newQueueState(cfg)
	}
	return m
}

func newQueueState(cfg Config) *queueState {
	qs := &queueState{config: cfg}
	if cfg.OfferRate > 0 {
		burst := cfg.OfferBurst
		if burst <= 0 {
			burst = 1
		}
		qs.limiter = rate.NewLimiter(rate.Limit(cfg.OfferRate), burst)
	}
	return qs
}

// AllowOffer reports whether the dispatcher may issue one more offer from
// the given queue right now.
func (m *Manager) AllowOffer(queueID id.QueueID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := m.queues[queueID.String()]
	if qs == nil || qs.limiter == nil {
		return true
	}
	return qs.limiter.Allow()
}

// SetConfig registers or replaces the throttle config for a queue.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queues[cfg.QueueID.String()] = newQueueState(cfg)
}
