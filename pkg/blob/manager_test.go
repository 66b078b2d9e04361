package blob

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flaskion/flaskion-client/internal/testutil"
	"github.com/flaskion/flaskion-client/pkg/auth"
	"github.com/flaskion/flaskion-client/pkg/client"
)

type fetchFunc func(ctx context.Context, req client.Request) (*client.RawResponse, error)

func (f fetchFunc) Fetch(ctx context.Context, req client.Request) (*client.RawResponse, error) {
	return f(ctx, req)
}

func okFetcher(body string) Fetcher {
	return fetchFunc(func(context.Context, client.Request) (*client.RawResponse, error) {
		return &client.RawResponse{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"image/png"}},
			Body:       []byte(body),
		}, nil
	})
}

// newFakeBackend returns a manager wired to a fake API with a signed-in user.
func newFakeBackend(t *testing.T, opts ...Option) (*Manager, *testutil.FakeAPI) {
	t.Helper()

	api := testutil.NewFakeAPI()
	t.Cleanup(api.Close)

	store := auth.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), api.IssueToken("user@example.com")))

	cfg := client.DefaultConfig(api.URL(), store)
	cfg.RetryMax = 0
	c, err := client.New(cfg)
	require.NoError(t, err)

	return NewManager(c, opts...), api
}

func TestManager_Acquire(t *testing.T) {
	m, api := newFakeBackend(t)
	img := api.AddImage("generated", "2025-01-01", []byte("\x89PNG-data"))

	h, err := m.Acquire(context.Background(), img.Path)
	require.NoError(t, err)

	assert.Equal(t, img.Path, h.SourcePath)
	assert.True(t, strings.HasPrefix(h.LocalURL, "blob:"+DefaultOrigin+"/"), h.LocalURL)
	assert.Equal(t, "image/png", h.ContentType)
	assert.Equal(t, len("\x89PNG-data"), h.Size)
	assert.False(t, h.CreatedAt.IsZero())
	assert.Equal(t, 1, m.Live())

	data, contentType, ok := m.Resolve(h.LocalURL)
	require.True(t, ok)
	assert.Equal(t, "\x89PNG-data", string(data))
	assert.Equal(t, "image/png", contentType)
}

func TestManager_Acquire_UnreachablePath(t *testing.T) {
	m, _ := newFakeBackend(t)

	_, err := m.Acquire(context.Background(), "/api/v1/images/generated/2025-01-01/missing.png")

	var rfe *ResourceFetchError
	require.ErrorAs(t, err, &rfe)
	assert.Equal(t, http.StatusNotFound, rfe.Status)
	assert.Equal(t, "/api/v1/images/generated/2025-01-01/missing.png", rfe.Path)
	assert.Equal(t, 0, m.Live())
}

func TestManager_Acquire_TransportFailure(t *testing.T) {
	api := testutil.NewFakeAPI()
	cfg := client.DefaultConfig(api.URL(), nil)
	cfg.RetryMax = 0
	c, err := client.New(cfg)
	require.NoError(t, err)
	api.Close()

	m := NewManager(c)
	_, err = m.Acquire(context.Background(), "/api/v1/images/generated/2025-01-01/a.png")

	assert.True(t, IsResourceFetchError(err))
	assert.True(t, client.IsTransportError(err), "fetch error should unwrap to the transport error")
}

func TestManager_Acquire_WithoutAuth(t *testing.T) {
	m, api := newFakeBackend(t)
	img := api.AddImage("generated", "2025-01-01", []byte("x"))

	_, err := m.Acquire(context.Background(), img.Path, WithAuth(false))

	var rfe *ResourceFetchError
	require.ErrorAs(t, err, &rfe)
	assert.Equal(t, http.StatusUnauthorized, rfe.Status)
	assert.Empty(t, api.LastRequestHeader().Get("Authorization"))
}

func TestManager_ReleaseIsIdempotent(t *testing.T) {
	m := NewManager(okFetcher("img"))

	h, err := m.Acquire(context.Background(), "/a.png")
	require.NoError(t, err)
	require.Equal(t, 1, m.Live())

	m.Release(h)
	m.Release(h)
	m.Release(nil)
	assert.False(t, m.ReleaseURL(h.LocalURL))
	assert.False(t, m.ReleaseURL("blob:unknown/123"))

	assert.Equal(t, 0, m.Live())
	_, _, ok := m.Resolve(h.LocalURL)
	assert.False(t, ok)
}

func TestManager_ConcurrentAcquire(t *testing.T) {
	m := NewManager(okFetcher("img"))

	var wg sync.WaitGroup
	handles := make([]*Handle, 16)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := m.Acquire(context.Background(), "/a.png")
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	assert.Equal(t, len(handles), m.Live())
	seen := map[string]bool{}
	for _, h := range handles {
		assert.False(t, seen[h.LocalURL], "local URLs must be unique")
		seen[h.LocalURL] = true
		m.Release(h)
	}
	assert.Equal(t, 0, m.Live())
}

func TestManager_AcquireSlot_ReplacesPrevious(t *testing.T) {
	m := NewManager(okFetcher("img"))
	ctx := context.Background()

	first, err := m.AcquireSlot(ctx, "modal", "/a.png")
	require.NoError(t, err)
	second, err := m.AcquireSlot(ctx, "modal", "/b.png")
	require.NoError(t, err)

	assert.Equal(t, 1, m.Live())
	_, _, ok := m.Resolve(first.LocalURL)
	assert.False(t, ok, "previous slot handle must be released")

	current, ok := m.Slot("modal")
	require.True(t, ok)
	assert.Equal(t, second.LocalURL, current.LocalURL)
}

func TestManager_AcquireSlot_NewestWins(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	m := NewManager(fetchFunc(func(ctx context.Context, req client.Request) (*client.RawResponse, error) {
		if req.URL() == "/slow.png" {
			started <- struct{}{}
			<-release
		}
		return &client.RawResponse{StatusCode: http.StatusOK, Body: []byte(req.URL())}, nil
	}))
	ctx := context.Background()

	slowErr := make(chan error, 1)
	go func() {
		_, err := m.AcquireSlot(ctx, "gallery/0", "/slow.png")
		slowErr <- err
	}()
	<-started

	fast, err := m.AcquireSlot(ctx, "gallery/0", "/fast.png")
	require.NoError(t, err)

	close(release)
	assert.ErrorIs(t, <-slowErr, ErrSuperseded)

	assert.Equal(t, 1, m.Live(), "superseded handle must be released")
	current, ok := m.Slot("gallery/0")
	require.True(t, ok)
	assert.Equal(t, fast.LocalURL, current.LocalURL)
}

func TestManager_ReleaseSlot_SupersedesInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	m := NewManager(fetchFunc(func(ctx context.Context, req client.Request) (*client.RawResponse, error) {
		started <- struct{}{}
		<-release
		return &client.RawResponse{StatusCode: http.StatusOK, Body: []byte("x")}, nil
	}))

	errc := make(chan error, 1)
	go func() {
		_, err := m.AcquireSlot(context.Background(), "gallery/3", "/a.png")
		errc <- err
	}()
	<-started

	assert.False(t, m.ReleaseSlot("gallery/3"), "no handle yet")
	close(release)

	assert.ErrorIs(t, <-errc, ErrSuperseded)
	assert.Equal(t, 0, m.Live())
}

func TestManager_ReleaseSlots(t *testing.T) {
	m := NewManager(okFetcher("img"))
	ctx := context.Background()

	for _, slot := range []string{"gallery/0", "gallery/1", "gallery/2", "modal"} {
		_, err := m.AcquireSlot(ctx, slot, "/"+slot+".png")
		require.NoError(t, err)
	}

	assert.Equal(t, 3, m.ReleaseSlots("gallery/"))
	assert.Equal(t, 1, m.Live())
	_, ok := m.Slot("modal")
	assert.True(t, ok)
	assert.Equal(t, 0, m.ReleaseSlots("gallery/"))
}

func TestManager_Release_ClearsSlot(t *testing.T) {
	m := NewManager(okFetcher("img"))

	h, err := m.AcquireSlot(context.Background(), "modal", "/a.png")
	require.NoError(t, err)

	m.Release(h)
	_, ok := m.Slot("modal")
	assert.False(t, ok)
	assert.False(t, m.ReleaseSlot("modal"))
}

func TestManager_AcquireSlot_CancelledDoesNotSupersede(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	m := NewManager(fetchFunc(func(ctx context.Context, req client.Request) (*client.RawResponse, error) {
		started <- struct{}{}
		<-release
		return &client.RawResponse{StatusCode: http.StatusOK, Body: []byte(req.URL())}, nil
	}))

	type result struct {
		h   *Handle
		err error
	}
	live := make(chan result, 1)
	go func() {
		h, err := m.AcquireSlot(context.Background(), "modal", "/current.png")
		live <- result{h, err}
	}()
	<-started

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.AcquireSlot(cancelled, "modal", "/abandoned.png")
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	got := <-live
	require.NoError(t, got.err)
	assert.Equal(t, "/current.png", got.h.SourcePath)

	current, ok := m.Slot("modal")
	require.True(t, ok)
	assert.Equal(t, got.h.LocalURL, current.LocalURL)
}

func TestManager_SlotsAreForgotten(t *testing.T) {
	m := NewManager(fetchFunc(func(ctx context.Context, req client.Request) (*client.RawResponse, error) {
		if strings.Contains(req.URL(), "missing") {
			return &client.RawResponse{StatusCode: http.StatusNotFound}, nil
		}
		return &client.RawResponse{StatusCode: http.StatusOK, Body: []byte("img")}, nil
	}))
	ctx := context.Background()

	for i := range 10 {
		_, err := m.AcquireSlot(ctx, "gallery/"+strings.Repeat("x", i), "/a.png")
		require.NoError(t, err)
	}
	assert.Equal(t, 10, m.ReleaseSlots("gallery/"))

	h, err := m.AcquireSlot(ctx, "modal", "/a.png")
	require.NoError(t, err)
	m.Release(h)

	_, err = m.AcquireSlot(ctx, "broken", "/missing.png")
	assert.True(t, IsResourceFetchError(err))

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Empty(t, m.slots, "released and failed slots must not be kept")
}

func TestManager_Close(t *testing.T) {
	m := NewManager(okFetcher("img"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := m.Acquire(ctx, "/a.png")
		require.NoError(t, err)
	}

	m.Close()
	assert.Equal(t, 0, m.Live())

	_, err := m.Acquire(ctx, "/a.png")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManager_WithOrigin(t *testing.T) {
	m := NewManager(okFetcher("img"), WithOrigin("http://localhost:5000/"))

	h, err := m.Acquire(context.Background(), "/a.png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(h.LocalURL, "blob:http://localhost:5000/"), h.LocalURL)
}

func TestManager_Acquire_ContextCanceled(t *testing.T) {
	m := NewManager(fetchFunc(func(ctx context.Context, req client.Request) (*client.RawResponse, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return &client.RawResponse{StatusCode: http.StatusOK}, nil
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Acquire(ctx, "/a.png")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, IsResourceFetchError(err))
	assert.Equal(t, 0, m.Live())
}

func TestResourceFetchError_Error(t *testing.T) {
	withStatus := &ResourceFetchError{Path: "/a.png", Status: 404}
	assert.Equal(t, "fetch resource /a.png: status 404", withStatus.Error())

	transport := &ResourceFetchError{Path: "/a.png", Err: errors.New("connection refused")}
	assert.Equal(t, "fetch resource /a.png: connection refused", transport.Error())
}
