// Package source defines the boundary to the rendered, authenticated screener.
//
// An Adapter owns one navigable session. Every wait takes an explicit timeout
// and reports ErrTimeout when the condition was not met in time, so callers can
// treat a missing element as an ordinary outcome.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when a bounded wait expires
var ErrTimeout = errors.New("source: wait timed out")

// ErrUnsupportedLocator is returned by adapters that cannot resolve a locator strategy
var ErrUnsupportedLocator = errors.New("source: unsupported locator")

// By selects how a Locator value is interpreted
type By string

const (
	ByID    By = "id"
	ByCSS   By = "css"
	ByXPath By = "xpath"
)

// Locator addresses elements in the rendered document
type Locator struct {
	By    By
	Value string
}

// ID returns a locator matching the element with the given id attribute
func ID(id string) Locator { return Locator{By: ByID, Value: id} }

// CSS returns a locator matching a CSS selector
func CSS(selector string) Locator { return Locator{By: ByCSS, Value: selector} }

// XPath returns a locator matching an XPath expression
func XPath(expr string) Locator { return Locator{By: ByXPath, Value: expr} }

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.By, l.Value)
}

// Element is an opaque handle to a rendered element. It is only meaningful to
// the adapter that returned it.
type Element interface{}

// Adapter is an authenticated, navigable document source
type Adapter interface {
	// ActivateTab waits for the tab control, scrolls it into view and clicks it
	ActivateTab(ctx context.Context, loc Locator, timeout time.Duration) error

	// WaitClickable returns the first element matching loc once it can be clicked
	WaitClickable(ctx context.Context, loc Locator, timeout time.Duration) (Element, error)

	// WaitPresent returns every element matching loc once at least one exists
	WaitPresent(ctx context.Context, loc Locator, timeout time.Duration) ([]Element, error)

	// WaitStale reports whether el was detached from the document within timeout
	WaitStale(ctx context.Context, el Element, timeout time.Duration) bool

	// Click scrolls el into view and activates it
	Click(ctx context.Context, el Element) error

	// Disabled reports whether a control is marked disabled
	Disabled(ctx context.Context, el Element) bool

	// ReadCells returns the rendered text of every cell of a row element
	ReadCells(ctx context.Context, row Element) ([]string, error)

	// Close releases the session
	Close() error
}

// Exporter is implemented by adapters that can download the CSV export a
// page offers behind one of its controls
type Exporter interface {
	// ExportCSV opens pageURL, activates control and returns the downloaded file
	ExportCSV(ctx context.Context, pageURL string, control Locator, timeout time.Duration) ([]byte, error)
}

// WithTimeout derives a context bounded by timeout; a non-positive timeout
// leaves the parent deadline in place.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Timeout maps context expiry to ErrTimeout and wraps other errors with op
func Timeout(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
