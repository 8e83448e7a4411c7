package ingestkafka

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Grounded on internal/api/middleware/ratelimit.go's InMemoryRateLimiter:
// the same token-bucket-per-key plus idle-cleanup-goroutine shape, stripped
// of the HTTP framing (no RFC 7807 response, no PluginContext) since this
// throttles Kafka message consumption per CI source rather than HTTP
// requests per plugin.

const (
	burstMultiplier        = 2
	defaultCleanupInterval = 5 * time.Minute
	defaultIdleTimeout     = 1 * time.Hour
)

// SourceRateLimiter throttles ingest throughput per CI source
// (ingest.Source: "appveyor", "circleci", ...), so one noisy producer
// cannot starve the consumer group for the rest.
type SourceRateLimiter struct {
	rps             int
	burst           int
	cleanupInterval time.Duration
	idleTimeout     time.Duration

	mu      sync.RWMutex
	byKey   map[string]*sourceLimiter
	done    chan struct{}
	ticker  *time.Ticker
	closeMu sync.Once
}

type sourceLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
	mu         sync.Mutex
}

// NewSourceRateLimiter creates a limiter allowing rps messages/sec per
// source, with burst capacity computed as 2×rps.
func NewSourceRateLimiter(rps int) *SourceRateLimiter {
	rl := &SourceRateLimiter{
		rps:             rps,
		burst:           rps * burstMultiplier,
		cleanupInterval: defaultCleanupInterval,
		idleTimeout:     defaultIdleTimeout,
		byKey:           make(map[string]*sourceLimiter),
		done:            make(chan struct{}),
	}

	rl.startCleanup()

	return rl
}

// Allow reports whether a message from source should be processed now.
func (rl *SourceRateLimiter) Allow(source string) bool {
	rl.mu.RLock()
	sl, ok := rl.byKey[source]
	rl.mu.RUnlock()

	if !ok {
		rl.mu.Lock()
		if sl, ok = rl.byKey[source]; !ok {
			sl = &sourceLimiter{
				limiter:    rate.NewLimiter(rate.Limit(rl.rps), rl.burst),
				lastAccess: time.Now(),
			}
			rl.byKey[source] = sl
		}
		rl.mu.Unlock()
	}

	sl.mu.Lock()
	sl.lastAccess = time.Now()
	sl.mu.Unlock()

	return sl.limiter.Allow()
}

// Close stops the idle-cleanup goroutine. Safe to call more than once.
func (rl *SourceRateLimiter) Close() {
	rl.closeMu.Do(func() {
		if rl.ticker != nil {
			rl.ticker.Stop()
		}

		close(rl.done)
	})
}

func (rl *SourceRateLimiter) startCleanup() {
	rl.ticker = time.NewTicker(rl.cleanupInterval)

	go func() {
		for {
			select {
			case <-rl.ticker.C:
				rl.cleanup()
			case <-rl.done:
				return
			}
		}
	}()
}

func (rl *SourceRateLimiter) cleanup() {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, sl := range rl.byKey {
		sl.mu.Lock()
		idle := now.Sub(sl.lastAccess)
		sl.mu.Unlock()

		if idle > rl.idleTimeout {
			delete(rl.byKey, key)
		}
	}
}
