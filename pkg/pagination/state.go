package pagination

import (
	"context"
	"errors"
	"slices"

	"github.com/flaskion/flaskion-client/pkg/client"
)

var (
	// ErrNotLoaded is returned by LoadMore before the first Reset.
	ErrNotLoaded = errors.New("gallery not loaded")

	// ErrLoadInProgress is returned by LoadMore while a load is in flight.
	ErrLoadInProgress = errors.New("load in progress")

	// ErrStale is returned by a load whose result was discarded because a
	// newer Reset started.
	ErrStale = errors.New("load superseded by reset")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("controller closed")
)

// Phase is the lifecycle position of a Controller.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLoading   Phase = "loading"
	PhaseLoaded    Phase = "loaded"
	PhaseAppending Phase = "appending"
	PhaseExhausted Phase = "exhausted"
)

// Item is one gallery entry as returned by the server.
type Item struct {
	Path  string  `json:"path"`
	Type  string  `json:"type"`
	Date  string  `json:"date"`
	MTime float64 `json:"mtime"`
}

// Query selects one page of the collection.
type Query struct {
	Filter string
	Sort   string
	Offset int
	Limit  int
}

// Page is one successfully decoded collection response.
type Page struct {
	Items []Item `json:"images"`
	Total int    `json:"total"`
}

// PageFetcher loads one page. A transport failure is returned as err; an
// HTTP-level failure is returned as a non-success response.
type PageFetcher interface {
	FetchPage(ctx context.Context, q Query) (*client.Response, Page, error)
}

// State is a snapshot of the controller.
type State struct {
	Filter string
	Sort   string
	Offset int
	Limit  int
	Total  int
	Items  []Item
	Phase  Phase

	// Message is the user-visible text of the last failed load, empty otherwise.
	Message string
}

func (s State) clone() State {
	s.Items = slices.Clone(s.Items)
	return s
}

// LoadError reports a failed load after the state has been updated.
type LoadError struct {
	Outcome client.Outcome
	Err     error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return "load gallery: " + e.Outcome.Message
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *LoadError) Unwrap() error {
	return e.Err
}
