package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"sjsage522/orbscreener/internal/crawler"
	"sjsage522/orbscreener/internal/dedup"
	"sjsage522/orbscreener/internal/model"
	"sjsage522/orbscreener/internal/normalize"
	"sjsage522/orbscreener/internal/run"
	"sjsage522/orbscreener/internal/source"
	"sjsage522/orbscreener/logger"
	apperrors "sjsage522/orbscreener/pkg/errors"
	"sjsage522/orbscreener/services/cache"
	"sjsage522/orbscreener/services/publisher"
	"sjsage522/orbscreener/services/store"

	"github.com/google/uuid"
)

// Opener acquires an authenticated source for one run
type Opener func(ctx context.Context) (source.Adapter, error)

// Sink is the persistence sink as used by the pipeline
type Sink interface {
	Insert(ctx context.Context, rec model.NormalizedRecord) (model.StoredRecord, error)
	BulkInsert(ctx context.Context, recs []model.NormalizedRecord) store.BulkResult
}

// AccuracySink stores rows of the intraday accuracy export
type AccuracySink interface {
	BulkInsertAccuracy(ctx context.Context, recs []model.AccuracyRecord) (store.AccuracyResult, error)
}

// AccuracyOptions configures the CSV export stage. An empty PageURL skips it.
type AccuracyOptions struct {
	PageURL string
	Control source.Locator
	Wait    time.Duration
}

// AccuracySummary reports what the export stage did
type AccuracySummary struct {
	Rows       int
	Rejected   int
	Stored     int
	Duplicates int
	Failed     int
	Err        error
}

// Options configures a pipeline
type Options struct {
	Tabs       []crawler.Tab
	Crawl      crawler.Config
	Layout     normalize.Layout
	Policy     dedup.Policy
	Location   *time.Location
	BulkInsert bool
	// SeenTTL bounds how long shared dedup keys outlive their run
	SeenTTL  time.Duration
	Accuracy AccuracyOptions
}

// Summary reports what one run did
type Summary struct {
	ExecutionID string
	RunID       string
	RunDate     string
	Tabs        []crawler.TabResult
	Rows        int
	Rejected    int
	Duplicates  int
	Stored      int
	Failed      int
	Published   int
	Accuracy    AccuracySummary
	Duration    time.Duration
}

// Pipeline runs acquire, walk, normalize, dedup, persist and release
type Pipeline struct {
	open  Opener
	sink  Sink
	opts  Options
	cache cache.CacheService
	pub   publisher.Publisher
	log   *logger.Logger
	now   func() time.Time
}

// NewPipeline creates a pipeline
func NewPipeline(open Opener, sink Sink, opts Options) *Pipeline {
	if opts.SeenTTL <= 0 {
		opts.SeenTTL = 2 * run.BucketMinutes * time.Minute
	}
	return &Pipeline{
		open: open,
		sink: sink,
		opts: opts,
		log:  logger.ForWorker(),
		now:  time.Now,
	}
}

// WithCache shares dedup keys between executions of the same run through c
func (p *Pipeline) WithCache(c cache.CacheService) *Pipeline {
	p.cache = c
	return p
}

// WithPublisher publishes every stored record through pub
func (p *Pipeline) WithPublisher(pub publisher.Publisher) *Pipeline {
	p.pub = pub
	return p
}

// Run executes one run. Only a failure to acquire the source is returned;
// every other failure is counted in the summary and logged.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	start := p.now()
	r := run.New(start, p.opts.Location)
	summary := Summary{
		ExecutionID: uuid.NewString(),
		RunID:       r.ID,
		RunDate:     r.DateString(),
	}
	log := p.log.WithFields(logger.Fields{
		"execution_id": summary.ExecutionID,
		"run_id":       r.ID,
	})
	log.Info().Int("tabs", len(p.opts.Tabs)).Str("policy", string(p.opts.Policy)).Msg("Run started")

	src, err := p.open(ctx)
	if err != nil {
		if !apperrors.IsFatal(err) {
			err = apperrors.NewFatal("source", "source could not be acquired", err)
		}
		log.Error().Err(err).Msg("Run aborted")
		return summary, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warn().Err(err).Msg("Source did not close cleanly")
		}
	}()

	rows, tabs := crawler.NewTabWalker(src, p.opts.Crawl).Walk(ctx, p.opts.Tabs)
	summary.Tabs = tabs
	summary.Rows = len(rows)

	normalizer := normalize.New(r, p.opts.Layout)
	var shared dedup.KeySet
	if p.cache != nil {
		shared = dedup.NewCacheSet(p.cache, r.ID, p.opts.SeenTTL)
	}
	deduper := dedup.New(p.opts.Policy, shared)

	var accepted []model.NormalizedRecord
	for _, rec := range normalizer.NormalizeAll(rows) {
		if _, ok := deduper.Accept(rec); !ok {
			continue
		}
		accepted = append(accepted, rec)
	}
	summary.Rejected = normalizer.Stats().Rejected
	summary.Duplicates = deduper.Dropped()
	log.Debug().Int("accepted", deduper.Accepted()).Int("duplicates", summary.Duplicates).Msg("Deduplicated records")

	result := p.persist(ctx, accepted)
	summary.Stored = result.Succeeded
	summary.Failed = result.Failed
	for _, rej := range result.Rejections {
		if !errors.Is(rej, store.ErrDuplicate) {
			deduper.Forget(rej.Key)
		}
	}

	summary.Published = p.publish(ctx, log, result.Stored)
	if p.opts.Accuracy.PageURL != "" {
		summary.Accuracy = p.exportAccuracy(ctx, log, src, r)
	}
	summary.Duration = p.now().Sub(start)

	log.Info().
		Int("rows", summary.Rows).
		Int("rejected", summary.Rejected).
		Int("duplicates", summary.Duplicates).
		Int("stored", summary.Stored).
		Int("failed", summary.Failed).
		Int("published", summary.Published).
		Int("accuracy_stored", summary.Accuracy.Stored).
		Dur("duration", summary.Duration).
		Msg("Run finished")
	return summary, nil
}

func (p *Pipeline) persist(ctx context.Context, recs []model.NormalizedRecord) store.BulkResult {
	if p.opts.BulkInsert {
		return p.sink.BulkInsert(ctx, recs)
	}

	var result store.BulkResult
	for _, rec := range recs {
		stored, err := p.sink.Insert(ctx, rec)
		if err != nil {
			var rej *store.Rejection
			if !errors.As(err, &rej) {
				rej = &store.Rejection{Record: rec, Err: err}
			}
			result.Failed++
			result.Rejections = append(result.Rejections, rej)
			continue
		}
		result.Succeeded++
		result.Stored = append(result.Stored, stored)
	}
	return result
}

func (p *Pipeline) publish(ctx context.Context, log *logger.Logger, stored []model.StoredRecord) int {
	if p.pub == nil {
		return 0
	}
	published := 0
	for _, rec := range stored {
		if err := p.pub.Publish(ctx, rec); err != nil {
			log.Warn().Err(err).Int64("id", rec.ID).Msg("Record not published")
			continue
		}
		published++
	}
	if err := p.pub.TrimStreams(ctx); err != nil {
		log.Warn().Err(err).Msg("Stream trimming failed")
	}
	return published
}

// exportAccuracy downloads the accuracy CSV through src and stores its rows.
// It runs after the walk because the export navigates away from the screener.
func (p *Pipeline) exportAccuracy(ctx context.Context, log *logger.Logger, src source.Adapter, r run.Run) AccuracySummary {
	var summary AccuracySummary
	fail := func(err error) AccuracySummary {
		summary.Err = err
		log.Warn().Err(err).Msg("Accuracy export skipped")
		return summary
	}

	exporter, ok := src.(source.Exporter)
	if !ok {
		return fail(fmt.Errorf("source %T cannot export CSV", src))
	}
	sink, ok := p.sink.(AccuracySink)
	if !ok {
		return fail(fmt.Errorf("sink %T cannot store accuracy rows", p.sink))
	}

	data, err := exporter.ExportCSV(ctx, p.opts.Accuracy.PageURL, p.opts.Accuracy.Control, p.opts.Accuracy.Wait)
	if err != nil {
		return fail(err)
	}
	recs, rejects, err := normalize.ParseAccuracyCSV(bytes.NewReader(data), r)
	summary.Rows = len(recs) + len(rejects)
	summary.Rejected = len(rejects)
	for _, rej := range rejects {
		log.Debug().Err(rej).Msg("Accuracy row rejected")
	}
	if err != nil {
		return fail(err)
	}

	result, err := sink.BulkInsertAccuracy(ctx, recs)
	if err != nil {
		return fail(err)
	}
	summary.Stored = len(result.Stored)
	summary.Duplicates = result.Duplicates
	summary.Failed = result.Failed
	log.Info().
		Int("rows", summary.Rows).
		Int("rejected", summary.Rejected).
		Int("stored", summary.Stored).
		Int("duplicates", summary.Duplicates).
		Msg("Accuracy export stored")
	return summary
}
