package worker

import (
	"context"
	"fmt"
	"time"

	"sjsage522/orbscreener/logger"

	"github.com/robfig/cron/v3"
)

// Runner executes one pipeline run
type Runner interface {
	Run(ctx context.Context) (Summary, error)
}

// Worker runs the pipeline once or on a cron schedule
type Worker struct {
	runner   Runner
	schedule string
	location *time.Location
	log      *logger.Logger
}

// NewWorker creates a worker. An empty schedule runs once.
func NewWorker(runner Runner, schedule string, location *time.Location) *Worker {
	if location == nil {
		location = time.UTC
	}
	return &Worker{
		runner:   runner,
		schedule: schedule,
		location: location,
		log:      logger.ForWorker(),
	}
}

// Start runs the pipeline once when no schedule is set, and otherwise on every
// tick of the schedule until ctx is done. A tick that arrives while a run is
// still in progress is skipped.
func (w *Worker) Start(ctx context.Context) error {
	if w.schedule == "" {
		_, err := w.runner.Run(ctx)
		return err
	}

	c := cron.New(
		cron.WithLocation(w.location),
		cron.WithLogger(cronLogger{log: w.log}),
		cron.WithChain(cron.Recover(cronLogger{log: w.log}), cron.SkipIfStillRunning(cronLogger{log: w.log})),
	)
	if _, err := c.AddFunc(w.schedule, func() { w.tick(ctx) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", w.schedule, err)
	}

	c.Start()
	w.log.Info().Str("schedule", w.schedule).Str("location", w.location.String()).Msg("Worker scheduled")

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	w.log.Info().Msg("Worker stopped")
	return nil
}

func (w *Worker) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	summary, err := w.runner.Run(ctx)
	if err != nil {
		logger.LogError("worker", err, "Scheduled run %s failed", summary.RunID)
		return
	}
	w.log.Debug().Str("run_id", summary.RunID).Dur("elapsed", time.Since(start)).Msg("Scheduled run done")
}

// cronLogger adapts the logger to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
