package peernetic

import (
	"log/slog"
	"time"
)

// Option configures a Host at construction time.
type Option func(*hostConfig)

type hostConfig struct {
	requestTimeout  time.Duration
	cleanupInterval time.Duration

	clock     Clock
	logger    *slog.Logger
	scheduler DelayScheduler
}

func defaultHostConfig() hostConfig {
	return hostConfig{
		requestTimeout:  5 * time.Second,
		cleanupInterval: 1 * time.Second,
		logger:          slog.Default(),
	}
}

// WithRequestTimeout sets how long Host.Request waits for a reply before
// failing with ErrRequestTimeout. Default: 5s.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *hostConfig) {
		c.requestTimeout = d
	}
}

// WithCleanupInterval sets how often the dispatch loop sweeps expired
// pending requests. Default: 1s.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *hostConfig) {
		c.cleanupInterval = d
	}
}

// WithClock overrides the Host's time source. Production code rarely needs
// this — WallClock is the default — but the Simulator supplies its virtual
// clock through this option so NonceManager/Transmission/Timer components
// constructed against the host see the same notion of "now" the simulator's
// event queue is advancing.
func WithClock(c Clock) Option {
	return func(cfg *hostConfig) {
		cfg.clock = c
	}
}

// WithLogger overrides the Host's structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *hostConfig) {
		c.logger = l
	}
}

// WithDelayScheduler overrides the DelayScheduler backing the Host's Timer
// gateway. Production code never needs this — WallDelayScheduler is the
// default — but the Simulator supplies a virtual-clock-driven scheduler
// through this option so timer:/SendAfter/SendCron delays advance with
// simulated time instead of wall time.
func WithDelayScheduler(s DelayScheduler) Option {
	return func(c *hostConfig) {
		c.scheduler = s
	}
}
