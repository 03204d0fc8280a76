// Package replay implements source.Adapter over saved screener pages.
//
// Each tab owns an ordered list of rendered pages. Clicking the paginator's
// next control moves to the following page and re-renders, which detaches
// every element handed out for the previous page.
package replay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"sjsage522/orbscreener/internal/source"
	"sjsage522/orbscreener/logger"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// Options names the selectors the replay needs to emulate the paginator
type Options struct {
	CellSelector string
	NextSelector string
}

// DefaultOptions matches the markup of the screener's material tables
func DefaultOptions() Options {
	return Options{
		CellSelector: "mat-cell",
		NextSelector: "button.mat-mdc-paginator-navigation-next",
	}
}

// Adapter replays rendered pages per tab
type Adapter struct {
	opts       Options
	tabs       map[source.Locator][]*goquery.Document
	active     source.Locator
	hasActive  bool
	page       int
	generation int
	closed     bool
	export     []byte
	log        *logger.Logger
}

type element struct {
	sel        *goquery.Selection
	generation int
}

var (
	_ source.Adapter  = (*Adapter)(nil)
	_ source.Exporter = (*Adapter)(nil)
)

// exportFile is the saved CSV export served by ExportCSV
const exportFile = "export.csv"

// New builds an adapter from raw HTML pages keyed by the tab locator
func New(pages map[source.Locator][]string, opts Options) (*Adapter, error) {
	a := newAdapter(opts)
	for loc, htmlPages := range pages {
		for i, page := range htmlPages {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
			if err != nil {
				return nil, fmt.Errorf("parse %s page %d: %w", loc, i+1, err)
			}
			a.tabs[loc] = append(a.tabs[loc], doc)
		}
	}
	return a, nil
}

// LoadDir builds an adapter from dir/<tab id>/*.html. Pages are ordered by file
// name and decoded using the charset they declare. An optional dir/export.csv
// is served as the page's CSV export.
func LoadDir(dir string, opts Options) (*Adapter, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read replay dir: %w", err)
	}

	a := newAdapter(opts)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		files, err := filepath.Glob(filepath.Join(dir, entry.Name(), "*.html"))
		if err != nil {
			return nil, err
		}
		sort.Strings(files)

		loc := source.ID(entry.Name())
		for _, file := range files {
			doc, err := loadPage(file)
			if err != nil {
				return nil, err
			}
			a.tabs[loc] = append(a.tabs[loc], doc)
		}
		a.log.Debug().Str("tab", entry.Name()).Int("pages", len(a.tabs[loc])).Msg("Loaded replay tab")
	}

	export, err := os.ReadFile(filepath.Join(dir, exportFile))
	switch {
	case err == nil:
		a.export = export
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read replay export: %w", err)
	}
	return a, nil
}

// SetExport replaces the CSV served by ExportCSV
func (a *Adapter) SetExport(csv []byte) {
	a.export = csv
}

func newAdapter(opts Options) *Adapter {
	return &Adapter{
		opts: opts,
		tabs: make(map[source.Locator][]*goquery.Document),
		log:  logger.ForSource("replay"),
	}
}

func loadPage(path string) (*goquery.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	utf8Body, err := charset.NewReader(f, "text/html")
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	doc, err := goquery.NewDocumentFromReader(utf8Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// ActivateTab implements source.Adapter
func (a *Adapter) ActivateTab(ctx context.Context, loc source.Locator, timeout time.Duration) error {
	if err := a.check(ctx); err != nil {
		return err
	}
	if _, ok := a.tabs[loc]; !ok {
		return fmt.Errorf("activate %s: %w", loc, source.ErrTimeout)
	}
	a.active = loc
	a.hasActive = true
	a.page = 0
	a.generation++
	return nil
}

// WaitClickable implements source.Adapter
func (a *Adapter) WaitClickable(ctx context.Context, loc source.Locator, timeout time.Duration) (source.Element, error) {
	elements, err := a.WaitPresent(ctx, loc, timeout)
	if err != nil {
		return nil, err
	}
	for _, el := range elements {
		if !a.Disabled(ctx, el) {
			return el, nil
		}
	}
	return nil, fmt.Errorf("wait clickable %s: %w", loc, source.ErrTimeout)
}

// WaitPresent implements source.Adapter. Nothing renders later in a replay, so
// an absent element times out immediately.
func (a *Adapter) WaitPresent(ctx context.Context, loc source.Locator, timeout time.Duration) ([]source.Element, error) {
	if err := a.check(ctx); err != nil {
		return nil, err
	}
	doc := a.current()
	if doc == nil {
		return nil, fmt.Errorf("wait present %s: %w", loc, source.ErrTimeout)
	}
	selector, err := cssFor(loc)
	if err != nil {
		return nil, err
	}

	found := doc.Find(selector)
	if found.Length() == 0 {
		return nil, fmt.Errorf("wait present %s: %w", loc, source.ErrTimeout)
	}
	elements := make([]source.Element, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		elements = append(elements, &element{sel: s, generation: a.generation})
	})
	return elements, nil
}

// WaitStale implements source.Adapter
func (a *Adapter) WaitStale(ctx context.Context, el source.Element, timeout time.Duration) bool {
	e, ok := el.(*element)
	if !ok {
		return false
	}
	return e.generation != a.generation
}

// Click implements source.Adapter. Only the next-page control changes state.
func (a *Adapter) Click(ctx context.Context, el source.Element) error {
	if err := a.check(ctx); err != nil {
		return err
	}
	e, ok := el.(*element)
	if !ok {
		return fmt.Errorf("click: unexpected element %T", el)
	}
	if e.generation != a.generation {
		return fmt.Errorf("click: element is stale")
	}
	if a.opts.NextSelector == "" || !e.sel.Is(a.opts.NextSelector) {
		return nil
	}
	if a.page+1 < len(a.tabs[a.active]) {
		a.page++
		a.generation++
	}
	return nil
}

// Disabled implements source.Adapter
func (a *Adapter) Disabled(ctx context.Context, el source.Element) bool {
	e, ok := el.(*element)
	if !ok {
		return true
	}
	if _, exists := e.sel.Attr("disabled"); exists {
		return true
	}
	if aria, _ := e.sel.Attr("aria-disabled"); aria == "true" {
		return true
	}
	class, _ := e.sel.Attr("class")
	return strings.Contains(class, "disabled")
}

// ReadCells implements source.Adapter
func (a *Adapter) ReadCells(ctx context.Context, row source.Element) ([]string, error) {
	e, ok := row.(*element)
	if !ok {
		return nil, fmt.Errorf("read cells: unexpected element %T", row)
	}
	if e.generation != a.generation {
		return nil, fmt.Errorf("read cells: element is stale")
	}
	var cells []string
	e.sel.Find(a.opts.CellSelector).Each(func(_ int, s *goquery.Selection) {
		cells = append(cells, innerText(s))
	})
	return cells, nil
}

// ExportCSV implements source.Exporter. Without a saved export the download
// never arrives.
func (a *Adapter) ExportCSV(ctx context.Context, pageURL string, control source.Locator, timeout time.Duration) ([]byte, error) {
	if err := a.check(ctx); err != nil {
		return nil, err
	}
	if a.export == nil {
		return nil, fmt.Errorf("export %s: %w", pageURL, source.ErrTimeout)
	}
	out := make([]byte, len(a.export))
	copy(out, a.export)
	return out, nil
}

// Close implements source.Adapter
func (a *Adapter) Close() error {
	a.closed = true
	return nil
}

// Page returns the zero-based page index of the active tab
func (a *Adapter) Page() int {
	return a.page
}

func (a *Adapter) check(ctx context.Context) error {
	if a.closed {
		return fmt.Errorf("replay: adapter is closed")
	}
	return ctx.Err()
}

func (a *Adapter) current() *goquery.Document {
	if !a.hasActive {
		return nil
	}
	pages := a.tabs[a.active]
	if a.page >= len(pages) {
		return nil
	}
	return pages[a.page]
}

func cssFor(loc source.Locator) (string, error) {
	switch loc.By {
	case source.ByID:
		return "[id=" + strconv.Quote(loc.Value) + "]", nil
	case source.ByCSS:
		return loc.Value, nil
	default:
		return "", fmt.Errorf("%w: %s", source.ErrUnsupportedLocator, loc)
	}
}

var blockElements = map[string]bool{
	"div": true, "p": true, "li": true, "tr": true, "section": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// innerText approximates the browser's innerText: block children and <br>
// break lines, whitespace inside a line collapses to single spaces.
func innerText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
		case html.ElementNode:
			if n.Data == "br" {
				b.WriteString("\n")
				return
			}
			block := blockElements[n.Data]
			if block {
				b.WriteString("\n")
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			if block {
				b.WriteString("\n")
			}
		}
	}
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
