package pagination

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/flaskion/flaskion-client/pkg/blob"
	"github.com/flaskion/flaskion-client/pkg/client"
	"github.com/flaskion/flaskion-client/pkg/logging"
)

// Config holds controller configuration.
type Config struct {
	// Limit is the page size requested from the server.
	Limit int

	// Concurrency bounds the image fetches in flight per page.
	Concurrency int

	// SlotPrefix names the blob slots holding item images.
	SlotPrefix string
}

// DefaultConfig returns the gallery defaults.
func DefaultConfig() Config {
	return Config{
		Limit:       20,
		Concurrency: 6,
		SlotPrefix:  "gallery/",
	}
}

// Blobs is the part of blob.Manager the controller uses.
type Blobs interface {
	AcquireSlot(ctx context.Context, slot, path string, opts ...blob.AcquireOption) (*blob.Handle, error)
	Release(h *blob.Handle)
	ReleaseSlots(prefix string) int
}

// Renderer displays the accumulated items. Its methods are never called
// concurrently.
type Renderer interface {
	// Clear drops everything displayed for the previous filter and sort.
	Clear()

	// AppendPlaceholders appends items, in server order, starting at index start.
	AppendPlaceholders(start int, items []Item)

	// Fill shows the image of the item at index.
	Fill(index int, item Item, h *blob.Handle)

	// FillFailed marks the item at index as unresolved.
	FillFailed(index int, item Item, err error)
}

// Controller is the offset/limit state machine behind the gallery.
type Controller struct {
	fetcher  PageFetcher
	blobs    Blobs
	renderer Renderer
	config   Config
	logger   zerolog.Logger

	base       context.Context
	baseCancel context.CancelFunc

	// renderMu serializes renderer calls and orders them with state commits.
	renderMu sync.Mutex

	mu        sync.Mutex
	state     State
	gen       uint64
	genCtx    context.Context
	genCancel context.CancelFunc
	closed    bool

	// pending holds one channel per materialization batch, closed when
	// the batch finishes.
	pending []chan struct{}
}

// NewController creates an idle controller. blobs and renderer may be nil.
func NewController(fetcher PageFetcher, blobs Blobs, renderer Renderer, cfg Config) *Controller {
	if fetcher == nil {
		panic("page fetcher cannot be nil")
	}
	defaults := DefaultConfig()
	if cfg.Limit <= 0 {
		cfg.Limit = defaults.Limit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.SlotPrefix == "" {
		cfg.SlotPrefix = defaults.SlotPrefix
	}

	base, cancel := context.WithCancel(context.Background())
	return &Controller{
		fetcher:    fetcher,
		blobs:      blobs,
		renderer:   renderer,
		config:     cfg,
		logger:     logging.NewLogger("gallery"),
		base:       base,
		baseCancel: cancel,
		state:      State{Limit: cfg.Limit, Phase: PhaseIdle},
		genCtx:     base,
		genCancel:  func() {},
	}
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Reset discards everything loaded so far and loads the first page for
// filter and sort. Any load in flight is cancelled and its result dropped.
func (c *Controller) Reset(ctx context.Context, filter, sort string) (State, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return State{}, ErrClosed
	}
	c.genCancel()
	c.gen++
	gen := c.gen
	c.genCtx, c.genCancel = context.WithCancel(c.base)
	genCtx := c.genCtx
	c.state = State{
		Filter: filter,
		Sort:   sort,
		Limit:  c.config.Limit,
		Phase:  PhaseLoading,
	}
	c.mu.Unlock()

	c.renderMu.Lock()
	if c.blobs != nil {
		c.blobs.ReleaseSlots(c.config.SlotPrefix)
	}
	if c.renderer != nil {
		c.renderer.Clear()
	}
	c.renderMu.Unlock()

	c.logger.Info().Str("filter", filter).Str("sort", sort).Msg("Loading gallery")

	q := Query{Filter: filter, Sort: sort, Offset: 0, Limit: c.config.Limit}
	return c.load(ctx, genCtx, gen, q, "reset")
}

// LoadMore appends the next page. It is a no-op once the collection is
// exhausted, fails with ErrNotLoaded before the first Reset and with
// ErrLoadInProgress while another load runs.
func (c *Controller) LoadMore(ctx context.Context) (State, error) {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return State{}, ErrClosed
	case c.state.Phase == PhaseIdle:
		c.mu.Unlock()
		return c.State(), ErrNotLoaded
	case c.state.Phase == PhaseLoading || c.state.Phase == PhaseAppending:
		c.mu.Unlock()
		return c.State(), ErrLoadInProgress
	case c.state.Phase == PhaseExhausted:
		snapshot := c.state.clone()
		c.mu.Unlock()
		return snapshot, nil
	}

	c.state.Phase = PhaseAppending
	gen := c.gen
	genCtx := c.genCtx
	q := Query{
		Filter: c.state.Filter,
		Sort:   c.state.Sort,
		Offset: c.state.Offset,
		Limit:  c.config.Limit,
	}
	c.mu.Unlock()

	return c.load(ctx, genCtx, gen, q, "more")
}

func (c *Controller) load(ctx, genCtx context.Context, gen uint64, q Query, kind string) (State, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(genCtx, cancel)
	defer stop()

	resp, page, err := c.fetcher.FetchPage(reqCtx, q)

	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	c.mu.Lock()
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		loadsTotal.WithLabelValues(kind, "stale").Inc()
		c.logger.Debug().Str("filter", q.Filter).Int("offset", q.Offset).Msg("Discarding stale gallery page")
		return c.State(), ErrStale
	}

	if err != nil || !resp.IsSuccess() {
		out := client.Describe(resp, err)
		c.state.Message = out.Message
		if kind == "reset" {
			c.state.Items = nil
			c.state.Offset = 0
			c.state.Total = 0
		}
		c.state.Phase = PhaseLoaded
		snapshot := c.state.clone()
		c.mu.Unlock()

		loadsTotal.WithLabelValues(kind, "failed").Inc()
		c.logger.Warn().
			Str("error_class", string(out.Class)).
			Int("status", out.Status).
			Str("filter", q.Filter).
			Int("offset", q.Offset).
			Msg("Gallery load failed")
		return snapshot, &LoadError{Outcome: out, Err: err}
	}

	start := len(c.state.Items)
	c.state.Items = append(c.state.Items, page.Items...)
	c.state.Offset += len(page.Items)
	c.state.Total = page.Total
	// An empty page before the announced total would never advance.
	if c.state.Offset > c.state.Total || len(page.Items) == 0 {
		c.state.Total = c.state.Offset
	}
	c.state.Message = ""
	if c.state.Offset >= c.state.Total {
		c.state.Phase = PhaseExhausted
	} else {
		c.state.Phase = PhaseLoaded
	}
	snapshot := c.state.clone()
	c.mu.Unlock()

	loadsTotal.WithLabelValues(kind, "ok").Inc()
	c.logger.Info().
		Str("filter", q.Filter).
		Int("received", len(page.Items)).
		Int("offset", snapshot.Offset).
		Int("total", snapshot.Total).
		Str("phase", string(snapshot.Phase)).
		Msg("Gallery page loaded")

	if c.renderer != nil {
		c.renderer.AppendPlaceholders(start, slices.Clone(page.Items))
	}
	c.materialize(genCtx, gen, start, page.Items)

	return snapshot, nil
}

// materialize starts one image fetch per item, bounded by Concurrency.
func (c *Controller) materialize(genCtx context.Context, gen uint64, start int, items []Item) {
	if c.blobs == nil || len(items) == 0 {
		return
	}

	items = slices.Clone(items)
	done := make(chan struct{})
	c.mu.Lock()
	c.pending = slices.DeleteFunc(c.pending, isClosed)
	c.pending = append(c.pending, done)
	c.mu.Unlock()

	go func() {
		defer close(done)

		g, ctx := errgroup.WithContext(genCtx)
		g.SetLimit(c.config.Concurrency)
		for i, item := range items {
			index := start + i
			g.Go(func() error {
				c.materializeItem(ctx, gen, index, item)
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (c *Controller) materializeItem(ctx context.Context, gen uint64, index int, item Item) {
	// Slots are per generation so a late acquisition of an abandoned
	// generation cannot supersede the current one.
	slot := fmt.Sprintf("%s%d/%d", c.config.SlotPrefix, gen, index)

	var (
		h   *blob.Handle
		err error
	)
	if ctx.Err() == nil {
		h, err = c.blobs.AcquireSlot(ctx, slot, item.Path)
	} else {
		err = ctx.Err()
	}

	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	if !c.current(gen) {
		if h != nil {
			c.blobs.Release(h)
		}
		itemsMaterialized.WithLabelValues("discarded").Inc()
		return
	}

	if err != nil {
		itemsMaterialized.WithLabelValues("failed").Inc()
		c.logger.Warn().Err(err).Int("index", index).Str("path", item.Path).Msg("Gallery image unavailable")
		if c.renderer != nil {
			c.renderer.FillFailed(index, item, err)
		}
		return
	}

	itemsMaterialized.WithLabelValues("filled").Inc()
	if c.renderer != nil {
		c.renderer.Fill(index, item, h)
	}
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && !c.closed
}

// Wait blocks until every image fetch started so far has finished. It may
// run concurrently with Reset and LoadMore; batches started after Wait was
// called are not waited for.
func (c *Controller) Wait() {
	c.mu.Lock()
	pending := slices.Clone(c.pending)
	c.mu.Unlock()

	for _, done := range pending {
		<-done
	}
}

// Close cancels all work, waits for it and releases the gallery slots.
func (c *Controller) Close() {
	c.renderMu.Lock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.renderMu.Unlock()
		return
	}
	c.closed = true
	c.genCancel()
	c.baseCancel()
	c.mu.Unlock()
	c.renderMu.Unlock()

	c.Wait()
	if c.blobs != nil {
		c.blobs.ReleaseSlots(c.config.SlotPrefix)
	}
}
