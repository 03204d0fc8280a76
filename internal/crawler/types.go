package crawler

import (
	"time"

	"sjsage522/orbscreener/internal/model"
	"sjsage522/orbscreener/internal/source"
)

// Tab is one category view: the control that activates it and its label
type Tab struct {
	Locator source.Locator
	Label   string
}

// State is a state of the pagination state machine
type State int

const (
	// StateCollect reads every currently rendered row
	StateCollect State = iota
	// StateAdvanceCheck looks for an enabled next-page control
	StateAdvanceCheck
	// StateAdvanced waits for the previous rows to be replaced
	StateAdvanced
	// StateDone is terminal
	StateDone
)

func (s State) String() string {
	switch s {
	case StateCollect:
		return "COLLECT"
	case StateAdvanceCheck:
		return "ADVANCE_CHECK"
	case StateAdvanced:
		return "ADVANCED"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Config holds the locators and bounded waits used while crawling
type Config struct {
	RowLocator  source.Locator
	NextLocator source.Locator

	TabWait   time.Duration
	RowWait   time.Duration
	NextWait  time.Duration
	StaleWait time.Duration

	TabSettle  time.Duration
	PageSettle time.Duration

	// MaxPages caps the pages read from one tab even if the source keeps offering more
	MaxPages int
}

// DefaultConfig returns the locators and waits of the screener's material tables
func DefaultConfig() Config {
	return Config{
		RowLocator:  source.CSS("mat-row"),
		NextLocator: source.CSS("button.mat-mdc-paginator-navigation-next"),
		TabWait:     30 * time.Second,
		RowWait:     30 * time.Second,
		NextWait:    5 * time.Second,
		StaleWait:   10 * time.Second,
		TabSettle:   2 * time.Second,
		PageSettle:  1 * time.Second,
		MaxPages:    200,
	}
}

// CrawlResult is what one tab's paginated sweep produced
type CrawlResult struct {
	Rows      []model.RawRow
	Pages     int
	Discarded int
	Trace     []State
}

// TabResult summarizes one tab of a walk
type TabResult struct {
	Label     string
	Rows      int
	Pages     int
	Discarded int
	Err       error
}
