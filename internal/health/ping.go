package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HealthPinger is implemented by dependencies that can probe themselves.
// HealthPing must return nil when the dependency is reachable.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}

const defaultProbeTimeout = 2 * time.Second

// PingChecker turns a HealthPinger into a periodically probed Checker.
type PingChecker struct {
	name         string
	target       HealthPinger
	probeTimeout time.Duration
	healthy      atomic.Bool
	lastErr      atomic.Value // string
	log          zerolog.Logger
}

// NewPingChecker starts unhealthy until the first probe succeeds.
func NewPingChecker(name string, target HealthPinger, probeTimeout time.Duration, log zerolog.Logger) *PingChecker {
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	c := &PingChecker{name: name, target: target, probeTimeout: probeTimeout, log: log}
	c.lastErr.Store("")
	return c
}

func (c *PingChecker) Name() string    { return c.name }
func (c *PingChecker) IsHealthy() bool { return c.healthy.Load() }

// LastError is the message of the most recent failed probe, "" after a success.
func (c *PingChecker) LastError() string { return c.lastErr.Load().(string) }

// Probe runs one check and records its result.
func (c *PingChecker) Probe(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	if err := c.target.HealthPing(checkCtx); err != nil {
		if c.healthy.Swap(false) || c.LastError() == "" {
			c.log.Error().Str("checker", c.name).Err(err).Msg("health probe failed")
		}
		c.lastErr.Store(err.Error())
		return false
	}
	c.healthy.Store(true)
	c.lastErr.Store("")
	return true
}

func (c *PingChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Probe(ctx)
		}
	}
}
