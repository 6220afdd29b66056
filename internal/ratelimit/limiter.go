// Package ratelimit paces outbound requests against a publisher's published
// limits: a cap on requests inside a trailing window plus a minimum spacing
// between any two requests.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Config describes the limits enforced by a Limiter.
type Config struct {
	Window      time.Duration `yaml:"window"`       // Length of the trailing window
	MaxRequests int           `yaml:"max_requests"` // Requests allowed inside one window
	MinInterval time.Duration `yaml:"min_interval"` // Minimum gap between two admissions
	Buffer      time.Duration `yaml:"buffer"`       // Extra wait added when the window is full
}

// DefaultConfig returns the VNDB publish limits: 200 requests per 5 minutes,
// at least 1.5s apart.
func DefaultConfig() Config {
	return Config{
		Window:      5 * time.Minute,
		MaxRequests: 200,
		MinInterval: 1500 * time.Millisecond,
		Buffer:      100 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.MaxRequests <= 0 {
		c.MaxRequests = def.MaxRequests
	}
	if c.MinInterval < 0 {
		c.MinInterval = 0
	}
	if c.Buffer < 0 {
		c.Buffer = 0
	}
	return c
}

// Limiter tracks recent admissions and makes callers wait until one more
// request fits inside the configured limits.
//
// Admission is serialised: a caller holds the lock while it waits, so
// concurrent callers queue up behind each other instead of racing on the
// shared window.
type Limiter struct {
	cfg    Config
	clock  Clock
	logger *slog.Logger

	mu     sync.Mutex
	stamps []time.Time // admissions inside the window, oldest first
	last   time.Time   // most recent admission
}

// New creates a Limiter. A nil clock uses wall time and a nil logger uses
// slog.Default().
func New(cfg Config, clock Clock, logger *slog.Logger) *Limiter {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Limiter{
		cfg:    cfg,
		clock:  clock,
		logger: logger,
		stamps: make([]time.Time, 0, cfg.MaxRequests),
	}
}

// Config returns the effective limits.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Admit blocks until it is safe to send one request and then records it.
// It returns ctx.Err() if the context ends while waiting; nothing is recorded
// in that case.
func (l *Limiter) Admit(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.clock.Now())
	for len(l.stamps) >= l.cfg.MaxRequests {
		now := l.clock.Now()
		wait := l.cfg.Window - now.Sub(l.stamps[0]) + l.cfg.Buffer
		l.logger.Debug("rate window full, waiting",
			"in_window", len(l.stamps),
			"wait", wait)
		if err := l.clock.Sleep(ctx, wait); err != nil {
			return err
		}
		l.prune(l.clock.Now())
	}

	if !l.last.IsZero() {
		if elapsed := l.clock.Now().Sub(l.last); elapsed < l.cfg.MinInterval {
			gap := l.cfg.MinInterval - elapsed
			l.logger.Debug("spacing request", "wait", gap)
			if err := l.clock.Sleep(ctx, gap); err != nil {
				return err
			}
		}
	}

	now := l.clock.Now()
	l.stamps = append(l.stamps, now)
	l.last = now
	return nil
}

// InWindow reports how many admissions fall inside the current window.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.clock.Now())
	return len(l.stamps)
}

// prune drops timestamps that have left the window. Callers hold l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.cfg.Window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
