package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/irrigation-assistant/internal/livestate"
	"github.com/i474232898/irrigation-assistant/internal/weather"
)

// Ingestion fetches and appends forecast batches. *weather.Service implements it.
type Ingestion interface {
	FetchBatch(ctx context.Context, loc weather.Location) (weather.Batch, error)
	Append(ctx context.Context, batch weather.Batch) error
}

// StateSink receives the forecast summary of the primary location.
type StateSink interface {
	Update(partial map[string]json.RawMessage, source string) (map[string]any, error)
}

// AppendRecorder counts append outcomes.
type AppendRecorder interface {
	Append(err error)
}

// Options wires a Scheduler.
type Options struct {
	Locations []weather.Location
	Interval  time.Duration
	Timeout   time.Duration
	Horizon   time.Duration
	Ingestion Ingestion
	Sink      StateSink
	Recorder  AppendRecorder
	Logger    *slog.Logger
}

// Scheduler periodically fetches forecasts for the configured locations and
// appends them to the forecast log.
type Scheduler struct {
	scheduler *gocron.Scheduler
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a new Scheduler.
func New(opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Horizon <= 0 {
		opts.Horizon = weather.DefaultHorizon
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Start schedules the periodic job, which also runs once right away.
func (s *Scheduler) Start() error {
	if len(s.opts.Locations) == 0 {
		s.logger.Info("scheduler: no locations configured; nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(s.opts.Interval).SingletonMode().Do(func() {
		s.logger.Info("scheduler: running forecast fetch job", "locations", len(s.opts.Locations))
		if err := s.RunOnce(context.Background()); err != nil {
			s.logger.Error("scheduler: forecast fetch job failed", "error", err)
			return
		}
		s.logger.Info("scheduler: completed forecast fetch job")
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce fetches every location concurrently. A failing location does not
// cancel the others. The first location's nearest upcoming record is pushed
// into the live state.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var g errgroup.Group
	for i, loc := range s.opts.Locations {
		loc := loc
		primary := i == 0
		g.Go(func() error {
			return s.fetch(ctx, loc, primary)
		})
	}
	return g.Wait()
}

func (s *Scheduler) fetch(ctx context.Context, loc weather.Location, primary bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	batch, err := s.opts.Ingestion.FetchBatch(ctx, loc)
	if err != nil {
		s.logger.WarnContext(ctx, "scheduler: fetch failed", "location", loc.Key(), "error", err)
		return err
	}

	err = s.opts.Ingestion.Append(ctx, batch)
	if s.opts.Recorder != nil {
		s.opts.Recorder.Append(err)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "scheduler: append failed", "location", loc.Key(), "error", err)
	}

	if primary && s.opts.Sink != nil {
		s.syncState(ctx, batch)
	}
	return nil
}

func (s *Scheduler) syncState(ctx context.Context, batch weather.Batch) {
	upcoming := weather.FilterWindow(batch.Records, s.now(), s.opts.Horizon)
	if len(upcoming) == 0 {
		return
	}
	next := upcoming[0]
	partial, err := livestate.Partial(map[string]any{
		"forecast": next.WeatherCondition,
		"rainProb": next.PrecipitationProbPercent,
	})
	if err == nil {
		_, err = s.opts.Sink.Update(partial, livestate.SourceForecast)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "scheduler: state sync failed", "error", err)
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
