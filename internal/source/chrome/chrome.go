// Package chrome implements source.Adapter on a headless Chrome session driven
// through the DevTools protocol.
package chrome

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"sjsage522/orbscreener/internal/source"
	"sjsage522/orbscreener/logger"
	apperrors "sjsage522/orbscreener/pkg/errors"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// Options configures the browser session and the login flow
type Options struct {
	LoginURL string
	PageURL  string
	Email    string
	Password string

	EmailXPath    string
	PasswordXPath string
	SubmitXPath   string
	PopupXPath    string

	CellSelector string

	Headless    bool
	ExecPath    string
	ExtraFlags  []string
	ProxyServer string
	LoginWait   time.Duration
	PopupWait   time.Duration
	LoginSettle time.Duration
	PageSettle  time.Duration
}

// DefaultOptions returns the selectors and waits of the screener login page
func DefaultOptions() Options {
	return Options{
		LoginURL:      "https://intradayscreener.com/login",
		PageURL:       "https://intradayscreener.com/opening-range-breakout",
		EmailXPath:    `//input[@type="email"]`,
		PasswordXPath: `//input[@type="password"]`,
		SubmitXPath:   `//button[contains(@class,"login-btn")]`,
		PopupXPath:    `//*[@id="whatsnewModal"]/div/div/div[1]/button/span`,
		CellSelector:  "mat-cell",
		Headless:      true,
		LoginWait:     30 * time.Second,
		PopupWait:     5 * time.Second,
		LoginSettle:   3 * time.Second,
		PageSettle:    2 * time.Second,
	}
}

// Adapter is a logged-in browser tab positioned on the screener page
type Adapter struct {
	opts        Options
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	log         *logger.Logger
}

var (
	_ source.Adapter  = (*Adapter)(nil)
	_ source.Exporter = (*Adapter)(nil)
)

// Open starts the browser, logs in and navigates to the screener page.
// Any failure here is fatal for the run and the browser is released.
func Open(ctx context.Context, opts Options, log *logger.Logger) (*Adapter, error) {
	a := newAdapter(opts, log)
	if err := a.start(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.login(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newAdapter(opts Options, log *logger.Logger) *Adapter {
	if log == nil {
		log = logger.ForSource("chrome")
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	for _, flag := range opts.ExtraFlags {
		allocOpts = append(allocOpts, chromedp.Flag(flag, true))
	}
	if opts.ProxyServer != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyServer))
		log.Info().Str("proxy", opts.ProxyServer).Msg("Routing browser through proxy")
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return &Adapter{
		opts:        opts,
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		log:         log,
	}
}

// start launches Chrome. The first Run on a fresh chromedp context owns the
// browser process, so it runs on the session context and never on a bounded one.
func (a *Adapter) start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewFatal("chrome", "browser not started", err)
	}
	if err := chromedp.Run(a.ctx); err != nil {
		return apperrors.NewFatal("chrome", "browser did not start", err)
	}
	a.log.Debug().Msg("Browser started")
	return nil
}

func (a *Adapter) login(ctx context.Context) error {
	lctx, cancel := a.bounded(ctx, a.opts.LoginWait)
	defer cancel()

	a.log.Info().Str("url", a.opts.LoginURL).Msg("Opening login page")
	err := chromedp.Run(lctx,
		chromedp.Navigate(a.opts.LoginURL),
		chromedp.WaitVisible(a.opts.EmailXPath, chromedp.BySearch),
		chromedp.SendKeys(a.opts.EmailXPath, a.opts.Email, chromedp.BySearch),
		chromedp.SendKeys(a.opts.PasswordXPath, a.opts.Password, chromedp.BySearch),
		chromedp.Click(a.opts.SubmitXPath, chromedp.BySearch),
	)
	if err != nil {
		return apperrors.NewFatal("chrome", "login did not complete", source.Timeout("login", err))
	}
	a.log.Info().Msg("Login submitted")
	a.pause(ctx, a.opts.LoginSettle)

	if a.opts.PopupXPath != "" {
		pctx, pcancel := a.bounded(ctx, a.opts.PopupWait)
		err := chromedp.Run(pctx, chromedp.Click(a.opts.PopupXPath, chromedp.BySearch, chromedp.NodeVisible))
		pcancel()
		if err != nil {
			a.log.Debug().Msg("No announcement popup, continuing")
		}
	}

	nctx, ncancel := a.bounded(ctx, a.opts.LoginWait)
	defer ncancel()
	if err := chromedp.Run(nctx, chromedp.Navigate(a.opts.PageURL)); err != nil {
		return apperrors.NewFatal("chrome", "screener page did not load", source.Timeout("navigate", err))
	}
	a.log.Info().Str("url", a.opts.PageURL).Msg("Opened screener page")
	a.pause(ctx, a.opts.PageSettle)
	return nil
}

// ActivateTab implements source.Adapter
func (a *Adapter) ActivateTab(ctx context.Context, loc source.Locator, timeout time.Duration) error {
	el, err := a.WaitClickable(ctx, loc, timeout)
	if err != nil {
		return err
	}
	return a.Click(ctx, el)
}

// WaitClickable implements source.Adapter
func (a *Adapter) WaitClickable(ctx context.Context, loc source.Locator, timeout time.Duration) (source.Element, error) {
	sel, opts, err := query(loc, false)
	if err != nil {
		return nil, err
	}
	tctx, cancel := a.bounded(ctx, timeout)
	defer cancel()

	var nodes []*cdp.Node
	opts = append(opts, chromedp.NodeVisible, chromedp.NodeEnabled)
	if err := chromedp.Run(tctx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return nil, source.Timeout("wait clickable "+loc.String(), err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("wait clickable %s: %w", loc, source.ErrTimeout)
	}
	return nodes[0], nil
}

// WaitPresent implements source.Adapter
func (a *Adapter) WaitPresent(ctx context.Context, loc source.Locator, timeout time.Duration) ([]source.Element, error) {
	sel, opts, err := query(loc, true)
	if err != nil {
		return nil, err
	}
	tctx, cancel := a.bounded(ctx, timeout)
	defer cancel()

	var nodes []*cdp.Node
	if err := chromedp.Run(tctx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return nil, source.Timeout("wait present "+loc.String(), err)
	}
	elements := make([]source.Element, len(nodes))
	for i, n := range nodes {
		elements[i] = n
	}
	return elements, nil
}

// WaitStale implements source.Adapter by polling isConnected on the old node
func (a *Adapter) WaitStale(ctx context.Context, el source.Element, timeout time.Duration) bool {
	node, ok := el.(*cdp.Node)
	if !ok {
		return false
	}
	tctx, cancel := a.bounded(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		var connected bool
		err := a.callOn(tctx, node, `function() { return this.isConnected; }`, &connected)
		if err != nil || !connected {
			// a node the protocol can no longer resolve has been replaced
			return tctx.Err() == nil
		}
		select {
		case <-tctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// Click implements source.Adapter. The click is dispatched from script so
// overlays covering the paginator do not intercept it.
func (a *Adapter) Click(ctx context.Context, el source.Element) error {
	node, ok := el.(*cdp.Node)
	if !ok {
		return fmt.Errorf("click: unexpected element %T", el)
	}
	return a.callOn(ctx, node, `function() { this.scrollIntoView({block: 'center'}); this.click(); return true; }`, nil)
}

// Disabled implements source.Adapter
func (a *Adapter) Disabled(ctx context.Context, el source.Element) bool {
	node, ok := el.(*cdp.Node)
	if !ok {
		return true
	}
	var disabled bool
	err := a.callOn(ctx, node, `function() {
		return !!this.disabled || this.getAttribute('aria-disabled') === 'true' ||
			Array.from(this.classList).some(c => c.indexOf('disabled') >= 0);
	}`, &disabled)
	if err != nil {
		_, hasAttr := node.Attribute("disabled")
		return hasAttr
	}
	return disabled
}

// ReadCells implements source.Adapter using innerText so multi-line cells keep their line breaks
func (a *Adapter) ReadCells(ctx context.Context, row source.Element) ([]string, error) {
	node, ok := row.(*cdp.Node)
	if !ok {
		return nil, fmt.Errorf("read cells: unexpected element %T", row)
	}
	fn := fmt.Sprintf(`function() {
		return Array.from(this.querySelectorAll(%s)).map(c => c.innerText);
	}`, strconv.Quote(a.opts.CellSelector))

	var cells []string
	if err := a.callOn(ctx, node, fn, &cells); err != nil {
		return nil, fmt.Errorf("read cells: %w", err)
	}
	return cells, nil
}

// ExportCSV implements source.Exporter. The tab leaves the screener page, so
// callers export only after the walk is done. Downloads land in a private
// directory that is removed once the file has been read.
func (a *Adapter) ExportCSV(ctx context.Context, pageURL string, control source.Locator, timeout time.Duration) ([]byte, error) {
	dir, err := os.MkdirTemp("", "orb-export-")
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	defer os.RemoveAll(dir)

	tctx, cancel := a.bounded(ctx, timeout)
	defer cancel()

	done := make(chan string, 1)
	lctx, stopListening := context.WithCancel(a.ctx)
	defer stopListening()
	chromedp.ListenTarget(lctx, func(ev interface{}) {
		progress, ok := ev.(*browser.EventDownloadProgress)
		if !ok || progress.State != browser.DownloadProgressStateCompleted {
			return
		}
		select {
		case done <- progress.GUID:
		default:
		}
	})

	err = chromedp.Run(tctx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(dir).
			WithEventsEnabled(true),
		chromedp.Navigate(pageURL),
	)
	if err != nil {
		return nil, source.Timeout("export "+pageURL, err)
	}
	a.log.Info().Str("url", pageURL).Msg("Opened export page")

	el, err := a.WaitClickable(tctx, control, timeout)
	if err != nil {
		return nil, err
	}
	if err := a.Click(tctx, el); err != nil {
		return nil, fmt.Errorf("export click: %w", err)
	}

	select {
	case guid := <-done:
		data, err := os.ReadFile(filepath.Join(dir, guid))
		if err != nil {
			return nil, fmt.Errorf("export read: %w", err)
		}
		a.log.Info().Int("bytes", len(data)).Msg("CSV export downloaded")
		return data, nil
	case <-tctx.Done():
		return nil, source.Timeout("export download", tctx.Err())
	}
}

// Close implements source.Adapter
func (a *Adapter) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.allocCancel != nil {
		a.allocCancel()
	}
	a.log.Info().Msg("Browser closed")
	return nil
}

// bounded derives a context from the browser session that also ends when the caller's ctx does
func (a *Adapter) bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	tctx, cancel := source.WithTimeout(a.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return tctx, func() {
		stop()
		cancel()
	}
}

// callOn runs a function with this bound to node and decodes its JSON result into out
func (a *Adapter) callOn(ctx context.Context, node *cdp.Node, fn string, out interface{}) error {
	rctx, cancel := a.bounded(ctx, 0)
	defer cancel()

	return chromedp.Run(rctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(node.BackendNodeID).Do(ctx)
		if err != nil {
			return err
		}
		res, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("script exception: %s", exc.Text)
		}
		if out == nil || res == nil || len(res.Value) == 0 {
			return nil
		}
		return json.Unmarshal([]byte(res.Value), out)
	}))
}

func (a *Adapter) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// query maps a locator onto a chromedp selector and query options
func query(loc source.Locator, all bool) (string, []chromedp.QueryOption, error) {
	switch loc.By {
	case source.ByXPath:
		return loc.Value, []chromedp.QueryOption{chromedp.BySearch}, nil
	case source.ByID:
		return fmt.Sprintf(`[id=%s]`, strconv.Quote(loc.Value)), []chromedp.QueryOption{chromedp.ByQuery}, nil
	case source.ByCSS:
		if all {
			return loc.Value, []chromedp.QueryOption{chromedp.ByQueryAll}, nil
		}
		return loc.Value, []chromedp.QueryOption{chromedp.ByQuery}, nil
	default:
		return "", nil, fmt.Errorf("%w: %s", source.ErrUnsupportedLocator, loc)
	}
}
