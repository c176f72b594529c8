package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate limiter defaults.
const (
	DefaultRateLimitMaxEntries  = 10000
	DefaultRateLimitCleanup     = 5 * time.Minute
	DefaultRateLimitIdleTimeout = 30 * time.Minute
)

// RateLimitConfig configures a RateLimiter.
type RateLimitConfig struct {
	// Rate is the sustained number of requests per second per identifier.
	Rate float64

	// Burst is the number of requests an identifier may make at once.
	// Defaults to ceil(Rate) when zero.
	Burst int

	// MaxEntries bounds the number of tracked identifiers; the least
	// recently used identifier is evicted when the bound is hit.
	// Default: 10000
	MaxEntries int

	// CleanupInterval is how often idle identifiers are swept.
	// Default: 5 minutes
	CleanupInterval time.Duration

	// IdleTimeout is how long an identifier may go unseen before it is swept.
	// Default: 30 minutes
	IdleTimeout time.Duration
}

func (c *RateLimitConfig) applyDefaults() {
	if c.Burst <= 0 {
		c.Burst = int(c.Rate)
		if float64(c.Burst) < c.Rate {
			c.Burst++
		}
		if c.Burst < 1 {
			c.Burst = 1
		}
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultRateLimitMaxEntries
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultRateLimitCleanup
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultRateLimitIdleTimeout
	}
}

type limiterEntry struct {
	identifier string
	limiter    *rate.Limiter
	lastSeen   time.Time
}

// RateLimiter is a per-identifier token bucket limiter (typically keyed by
// client IP) with LRU eviction and a background sweep of idle identifiers.
type RateLimiter struct {
	cfg    RateLimitConfig
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a rate limiter and starts its cleanup goroutine.
// Call Stop to release it.
func NewRateLimiter(cfg RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	rl := &RateLimiter{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		stop:    make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow reports whether one more request from identifier is allowed now.
func (rl *RateLimiter) Allow(identifier string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, ok := rl.entries[identifier]; ok {
		rl.lru.MoveToFront(elem)
		entry := elem.Value.(*limiterEntry)
		entry.lastSeen = now
		return entry.limiter.AllowN(now, 1)
	}

	if len(rl.entries) >= rl.cfg.MaxEntries {
		rl.evictOldest()
	}

	entry := &limiterEntry{
		identifier: identifier,
		limiter:    rate.NewLimiter(rate.Limit(rl.cfg.Rate), rl.cfg.Burst),
		lastSeen:   now,
	}
	rl.entries[identifier] = rl.lru.PushFront(entry)

	return entry.limiter.AllowN(now, 1)
}

// evictOldest drops the least recently used identifier. Caller holds mu.
func (rl *RateLimiter) evictOldest() {
	elem := rl.lru.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*limiterEntry)
	delete(rl.entries, entry.identifier)
	rl.lru.Remove(elem)

	rl.logger.Debug("Rate limiter evicted identifier",
		"tracked", len(rl.entries))
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Sweep()
		case <-rl.stop:
			return
		}
	}
}

// Sweep removes identifiers idle for longer than IdleTimeout and returns how
// many were removed.
func (rl *RateLimiter) Sweep() int {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	// the list is ordered by recency, so stop at the first fresh entry
	for elem := rl.lru.Back(); elem != nil; {
		entry := elem.Value.(*limiterEntry)
		if now.Sub(entry.lastSeen) <= rl.cfg.IdleTimeout {
			break
		}
		prev := elem.Prev()
		delete(rl.entries, entry.identifier)
		rl.lru.Remove(elem)
		removed++
		elem = prev
	}

	if removed > 0 {
		rl.logger.Debug("Rate limiter sweep completed",
			"removed", removed,
			"remaining", len(rl.entries))
	}
	return removed
}

// Len returns the number of tracked identifiers.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}

// Stop terminates the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}
