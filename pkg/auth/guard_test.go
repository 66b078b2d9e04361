package auth

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flaskion/flaskion-client/pkg/client"
)

func response(t *testing.T, status int) *client.Response {
	t.Helper()
	resp, err := client.NewResponse(status, []byte(`{"errors":"invalid_token","message":"Token has expired."}`), nil, time.Time{})
	require.NoError(t, err)
	return resp
}

func TestGuard_RedirectsOnUnauthorized(t *testing.T) {
	var calls atomic.Int32
	g := NewGuard(20*time.Millisecond, func() { calls.Add(1) })

	assert.True(t, g.Observe(response(t, 401)))
	assert.True(t, g.Pending())
	assert.Equal(t, int32(0), calls.Load(), "redirect must be delayed")

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, g.Pending())
}

func TestGuard_CoalescesBurst(t *testing.T) {
	var calls atomic.Int32
	g := NewGuard(30*time.Millisecond, func() { calls.Add(1) })

	for i := 0; i < 5; i++ {
		g.Observe(response(t, 401))
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGuard_IgnoresOtherStatuses(t *testing.T) {
	var calls atomic.Int32
	g := NewGuard(time.Millisecond, func() { calls.Add(1) })

	for _, status := range []int{200, 400, 403, 404, 500} {
		assert.False(t, g.Observe(response(t, status)), "status %d", status)
	}
	assert.False(t, g.Observe(nil))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestGuard_Stop(t *testing.T) {
	var calls atomic.Int32
	g := NewGuard(30*time.Millisecond, func() { calls.Add(1) })

	assert.False(t, g.Stop(), "nothing pending")

	g.Observe(response(t, 401))
	assert.True(t, g.Stop())
	assert.False(t, g.Pending())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())

	// A new 401 after Stop schedules again
	g.Observe(response(t, 401))
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestNewGuard_DefaultDelay(t *testing.T) {
	g := NewGuard(0, nil)
	assert.Equal(t, DefaultRedirectDelay, g.delay)
	assert.Equal(t, 800*time.Millisecond, g.delay)
}
