package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ReconnectPolicy controls automatic redial after an abnormal closure.
// The zero value keeps it off: by default a dropped connection stays
// down until the caller acts, and reconnection is the caller's call.
// Each successful redial yields a fresh session identifier; the old
// one is never reused.
type ReconnectPolicy struct {
	Enabled         bool
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	if p.InitialInterval == 0 {
		p.InitialInterval = 500 * time.Millisecond
	}
	if p.MaxInterval == 0 {
		p.MaxInterval = 30 * time.Second
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = 5
	}
	return p
}

func (c *Client) maybeReconnect() {
	c.mu.Lock()
	enabled := c.policy.Enabled && !c.closing
	c.mu.Unlock()
	if !enabled {
		return
	}

	go func() {
		p := c.policy.withDefaults()

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = p.InitialInterval
		bo.MaxInterval = p.MaxInterval
		bo.MaxElapsedTime = 0

		attempt := 0
		err := backoff.Retry(func() error {
			attempt++
			slog.Info("Reconnect attempt", "attempt", attempt)
			return c.Connect(context.Background())
		}, backoff.WithMaxRetries(bo, p.MaxRetries))

		if err != nil {
			slog.Error("Reconnect budget exhausted", "attempts", attempt, "error", err)
			c.setState(StateError)
			if c.cbs.OnError != nil {
				c.cbs.OnError(fmt.Errorf("transport: reconnect budget exhausted: %w", err))
			}
		}
	}()
}
