// Package blob turns server image paths into locally addressable handles
// and owns their release.
//
// Every Acquire must be paired with exactly one Release unless the handle
// is handed to DownloadAndRelease. Releasing twice is a no-op.
package blob

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/flaskion/flaskion-client/pkg/cache"
	"github.com/flaskion/flaskion-client/pkg/client"
	"github.com/flaskion/flaskion-client/pkg/logging"
)

// DefaultOrigin is used in local URLs when no origin is configured.
const DefaultOrigin = "flaskion-client"

// Fetcher performs a raw exchange. *client.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, req client.Request) (*client.RawResponse, error)
}

// Handle is a live, locally addressable view of fetched bytes.
type Handle struct {
	SourcePath  string
	LocalURL    string
	CreatedAt   time.Time
	ContentType string
	Size        int
}

type object struct {
	handle *Handle
	data   []byte
}

// slotState tracks a display slot while it holds a handle or has
// acquisitions in flight.
type slotState struct {
	gen      uint64
	inFlight int
	handle   *Handle
}

// Manager acquires and releases handles. It is safe for concurrent use.
type Manager struct {
	fetcher    Fetcher
	cache      *cache.Manager
	cacheScope string
	origin     string
	logger     zerolog.Logger

	mu     sync.Mutex
	live   map[string]*object
	slots  map[string]*slotState
	closed bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithCache serves repeat acquisitions from an image cache. scope keeps
// entries of different accounts apart.
func WithCache(c *cache.Manager, scope string) Option {
	return func(m *Manager) {
		m.cache = c
		m.cacheScope = scope
	}
}

// WithOrigin sets the origin embedded in local URLs.
func WithOrigin(origin string) Option {
	return func(m *Manager) {
		if origin != "" {
			m.origin = strings.TrimSuffix(origin, "/")
		}
	}
}

// NewManager creates a manager fetching through f.
func NewManager(f Fetcher, opts ...Option) *Manager {
	if f == nil {
		panic("fetcher cannot be nil")
	}
	m := &Manager{
		fetcher: f,
		origin:  DefaultOrigin,
		logger:  logging.NewLogger("blob"),
		live:    make(map[string]*object),
		slots:   make(map[string]*slotState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type acquireOptions struct {
	auth bool
}

// AcquireOption configures a single acquisition.
type AcquireOption func(*acquireOptions)

// WithAuth controls whether the bearer token is sent. The default is true.
func WithAuth(auth bool) AcquireOption {
	return func(o *acquireOptions) {
		o.auth = auth
	}
}

// Acquire fetches the bytes at path and returns a live handle. It fails with
// *ResourceFetchError on transport failure or a non-success status.
func (m *Manager) Acquire(ctx context.Context, path string, opts ...AcquireOption) (*Handle, error) {
	o := acquireOptions{auth: true}
	for _, opt := range opts {
		opt(&o)
	}

	if m.isClosed() {
		return nil, ErrClosed
	}

	data, contentType, source, err := m.load(ctx, path, o)
	if err != nil {
		acquiresTotal.WithLabelValues("error").Inc()
		m.logger.Warn().Err(err).Str("path", path).Msg("Resource fetch failed")
		return nil, err
	}

	h := &Handle{
		SourcePath:  path,
		LocalURL:    "blob:" + m.origin + "/" + uuid.NewString(),
		CreatedAt:   time.Now(),
		ContentType: contentType,
		Size:        len(data),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.live[h.LocalURL] = &object{handle: h, data: data}
	liveHandles.Inc()
	liveBytes.Add(float64(len(data)))
	acquiresTotal.WithLabelValues(source).Inc()

	m.logger.Debug().
		Str("path", path).
		Str("local_url", h.LocalURL).
		Str("source", source).
		Int("bytes", len(data)).
		Msg("Handle acquired")

	return h, nil
}

// load returns the bytes for path and where they came from.
func (m *Manager) load(ctx context.Context, path string, o acquireOptions) ([]byte, string, string, error) {
	var (
		key    cache.CacheKey
		cached *cache.CacheEntry
	)
	if m.cache != nil {
		key = cache.CacheKey{Path: path}
		if o.auth {
			key.Scope = m.cacheScope
		}
		entry, fresh, err := m.cache.Lookup(ctx, key)
		switch {
		case err == nil && fresh:
			return entry.Data, entry.ContentType, "cache", nil
		case err == nil && cache.ShouldMakeConditionalRequest(entry):
			cached = entry
		case err != nil && !errors.Is(err, cache.ErrCacheMiss):
			m.logger.Warn().Err(err).Str("path", path).Msg("Cache lookup failed, fetching directly")
		}
	}

	reqOpts := []client.RequestOption{}
	if o.auth {
		reqOpts = append(reqOpts, client.WithAuth())
	}
	for k, v := range cache.ConditionalHeaders(cached) {
		reqOpts = append(reqOpts, client.WithHeader(k, v))
	}

	req, err := client.NewRequest(http.MethodGet, path, reqOpts...)
	if err != nil {
		return nil, "", "", &ResourceFetchError{Path: path, Err: err}
	}

	raw, err := m.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, "", "", &ResourceFetchError{Path: path, Err: err}
	}

	if raw.StatusCode == http.StatusNotModified && cached != nil {
		m.logger.Debug().Str("path", path).Str("etag", cached.ETag).Msg("Cached image revalidated")
		if _, err := m.cache.UpdateTTL(ctx, key, cache.ExpiresFromHeaders(raw.Header)); err != nil {
			m.logger.Warn().Err(err).Str("path", path).Msg("Cache refresh failed")
		}
		return cached.Data, cached.ContentType, "revalidated", nil
	}

	if !raw.IsSuccess() {
		return nil, "", "", &ResourceFetchError{Path: path, Status: raw.StatusCode}
	}

	contentType := raw.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(raw.Body)
	}

	if m.cache != nil {
		if entry, ok := cache.NewEntry(raw.StatusCode, raw.Header, raw.Body); ok {
			entry.ContentType = contentType
			if err := m.cache.Set(ctx, key, entry); err != nil {
				m.logger.Warn().Err(err).Str("path", path).Msg("Cache store failed")
			}
		}
	}

	return raw.Body, contentType, "network", nil
}

// Release invalidates the handle's local URL and frees its bytes.
// Releasing a nil, unknown or already released handle is a no-op.
func (m *Manager) Release(h *Handle) {
	if h == nil {
		return
	}
	m.ReleaseURL(h.LocalURL)
}

// ReleaseURL releases the handle behind localURL and reports whether one
// was live.
func (m *Manager) ReleaseURL(localURL string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releaseLocked(localURL)
}

func (m *Manager) releaseLocked(localURL string) bool {
	obj, ok := m.live[localURL]
	if !ok {
		return false
	}
	delete(m.live, localURL)
	for name, s := range m.slots {
		if s.handle == obj.handle {
			s.handle = nil
			m.pruneSlotLocked(name, s)
		}
	}

	liveHandles.Dec()
	liveBytes.Sub(float64(len(obj.data)))
	releasesTotal.Inc()
	m.logger.Debug().Str("local_url", localURL).Msg("Handle released")
	return true
}

// AcquireSlot acquires path for a display slot, releasing the handle the
// slot held before. When acquisitions for one slot overlap, the most
// recently issued one wins; the others release their handle and return
// ErrSuperseded.
//
// A cancelled ctx fails before the slot is touched, so an abandoned caller
// never supersedes a live one.
func (m *Manager) AcquireSlot(ctx context.Context, slot, path string, opts ...AcquireOption) (*Handle, error) {
	m.mu.Lock()
	if err := ctx.Err(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	s, ok := m.slots[slot]
	if !ok {
		s = &slotState{}
		m.slots[slot] = s
	}
	s.gen++
	s.inFlight++
	gen := s.gen
	m.mu.Unlock()

	h, err := m.Acquire(ctx, path, opts...)

	m.mu.Lock()
	defer m.mu.Unlock()
	s.inFlight--

	if err != nil {
		m.pruneSlotLocked(slot, s)
		return nil, err
	}

	if s.gen != gen {
		m.releaseLocked(h.LocalURL)
		m.pruneSlotLocked(slot, s)
		acquiresTotal.WithLabelValues("superseded").Inc()
		return nil, ErrSuperseded
	}

	prev := s.handle
	s.handle = h
	if prev != nil {
		m.releaseLocked(prev.LocalURL)
	}
	return h, nil
}

// pruneSlotLocked forgets a slot that holds nothing and has nothing in flight.
func (m *Manager) pruneSlotLocked(name string, s *slotState) {
	if s.handle == nil && s.inFlight == 0 && m.slots[name] == s {
		delete(m.slots, name)
	}
}

// Slot returns the handle currently held by slot.
func (m *Manager) Slot(slot string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[slot]
	if !ok || s.handle == nil {
		return nil, false
	}
	return s.handle, true
}

// ReleaseSlot releases the slot's handle and supersedes any acquisition in
// flight for it. It reports whether a handle was released.
func (m *Manager) ReleaseSlot(slot string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releaseSlotLocked(slot)
}

func (m *Manager) releaseSlotLocked(slot string) bool {
	s, ok := m.slots[slot]
	if !ok {
		return false
	}
	s.gen++
	if s.handle == nil {
		m.pruneSlotLocked(slot, s)
		return false
	}
	return m.releaseLocked(s.handle.LocalURL)
}

// ReleaseSlots releases every slot whose name starts with prefix and
// returns how many handles were released.
func (m *Manager) ReleaseSlots(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	released := 0
	for name := range m.slots {
		if strings.HasPrefix(name, prefix) && m.releaseSlotLocked(name) {
			released++
		}
	}
	return released
}

// Resolve returns a copy of the bytes and the content type behind a live
// local URL.
func (m *Manager) Resolve(localURL string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.live[localURL]
	if !ok {
		return nil, "", false
	}
	return bytes.Clone(obj.data), obj.handle.ContentType, true
}

// Live returns the number of live handles.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Close releases every live handle. Later acquisitions fail with ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for localURL := range m.live {
		m.releaseLocked(localURL)
	}
	m.closed = true
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
