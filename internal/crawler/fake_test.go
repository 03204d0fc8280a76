package crawler

import (
	"context"
	"fmt"
	"time"

	"sjsage522/orbscreener/internal/source"
)

// fakeSource renders pages of rows per tab and emulates a material paginator
type fakeSource struct {
	tabs map[source.Locator][][][]string

	active source.Locator
	page   int
	gen    int

	noNext       bool
	nextDisabled bool
	lastEnabled  bool
	neverStale   bool
	failActivate map[source.Locator]bool

	activated []source.Locator
	clicks    int
}

type fakeElement struct {
	next  bool
	gen   int
	cells []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		tabs:         make(map[source.Locator][][][]string),
		failActivate: make(map[source.Locator]bool),
	}
}

// pages builds n pages of size rows each with symbols unique across pages
func pages(prefix string, n, size int) [][][]string {
	out := make([][][]string, n)
	for p := 0; p < n; p++ {
		for r := 0; r < size; r++ {
			symbol := fmt.Sprintf("%s%d", prefix, p*size+r)
			out[p] = append(out[p], []string{symbol, "100.00\n+1.00 (+1.00%)"})
		}
	}
	return out
}

func (f *fakeSource) ActivateTab(ctx context.Context, loc source.Locator, timeout time.Duration) error {
	f.activated = append(f.activated, loc)
	if _, ok := f.tabs[loc]; !ok || f.failActivate[loc] {
		return fmt.Errorf("activate %s: %w", loc, source.ErrTimeout)
	}
	f.active = loc
	f.page = 0
	f.gen++
	return nil
}

func (f *fakeSource) WaitClickable(ctx context.Context, loc source.Locator, timeout time.Duration) (source.Element, error) {
	els, err := f.WaitPresent(ctx, loc, timeout)
	if err != nil {
		return nil, err
	}
	return els[0], nil
}

func (f *fakeSource) WaitPresent(ctx context.Context, loc source.Locator, timeout time.Duration) ([]source.Element, error) {
	cfg := DefaultConfig()
	switch loc {
	case cfg.RowLocator:
		pages := f.tabs[f.active]
		if f.page >= len(pages) || len(pages[f.page]) == 0 {
			return nil, source.ErrTimeout
		}
		var els []source.Element
		for _, cells := range pages[f.page] {
			els = append(els, &fakeElement{gen: f.gen, cells: cells})
		}
		return els, nil
	case cfg.NextLocator:
		if f.noNext {
			return nil, source.ErrTimeout
		}
		return []source.Element{&fakeElement{next: true, gen: f.gen}}, nil
	}
	return nil, source.ErrUnsupportedLocator
}

func (f *fakeSource) WaitStale(ctx context.Context, el source.Element, timeout time.Duration) bool {
	if f.neverStale {
		return false
	}
	return el.(*fakeElement).gen != f.gen
}

func (f *fakeSource) Click(ctx context.Context, el source.Element) error {
	f.clicks++
	if !el.(*fakeElement).next {
		return nil
	}
	if f.page+1 < len(f.tabs[f.active]) {
		f.page++
		f.gen++
	}
	return nil
}

func (f *fakeSource) Disabled(ctx context.Context, el source.Element) bool {
	if f.nextDisabled {
		return true
	}
	last := f.page == len(f.tabs[f.active])-1
	return last && !f.lastEnabled
}

func (f *fakeSource) ReadCells(ctx context.Context, row source.Element) ([]string, error) {
	return row.(*fakeElement).cells, nil
}

func (f *fakeSource) Close() error { return nil }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TabSettle = 0
	cfg.PageSettle = 0
	return cfg
}
