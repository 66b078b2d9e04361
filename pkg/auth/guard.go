package auth

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/flaskion/flaskion-client/pkg/client"
	"github.com/flaskion/flaskion-client/pkg/logging"
)

// DefaultRedirectDelay leaves the error message visible before navigating away.
const DefaultRedirectDelay = 800 * time.Millisecond

// Guard turns 401 responses into a single delayed sign-in redirect.
type Guard struct {
	delay    time.Duration
	redirect func()
	logger   zerolog.Logger

	mu      sync.Mutex
	pending *time.Timer
}

// NewGuard creates a guard that calls redirect once per burst of 401s.
// A non-positive delay selects DefaultRedirectDelay.
func NewGuard(delay time.Duration, redirect func()) *Guard {
	if delay <= 0 {
		delay = DefaultRedirectDelay
	}
	return &Guard{
		delay:    delay,
		redirect: redirect,
		logger:   logging.NewLogger("auth-guard"),
	}
}

// Observe inspects a response and schedules the redirect on 401.
// It reports whether a redirect is now pending. Further 401s while one is
// pending are coalesced into it.
func (g *Guard) Observe(resp *client.Response) bool {
	if !resp.IsUnauthorized() {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending != nil {
		return true
	}

	g.logger.Info().Dur("delay", g.delay).Msg("Unauthorized response, redirecting to sign-in")

	var timer *time.Timer
	timer = time.AfterFunc(g.delay, func() {
		g.mu.Lock()
		if g.pending != timer {
			g.mu.Unlock()
			return
		}
		g.pending = nil
		g.mu.Unlock()

		if g.redirect != nil {
			g.redirect()
		}
	})
	g.pending = timer
	return true
}

// Pending reports whether a redirect is scheduled.
func (g *Guard) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending != nil
}

// Stop cancels a pending redirect. It reports whether one was cancelled.
func (g *Guard) Stop() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil {
		return false
	}
	g.pending.Stop()
	g.pending = nil
	return true
}
