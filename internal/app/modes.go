package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alanyoungcy/polyvol/internal/calendar"
	"github.com/alanyoungcy/polyvol/internal/domain"
	"github.com/alanyoungcy/polyvol/internal/scoring"
	"github.com/alanyoungcy/polyvol/internal/series"
	"github.com/alanyoungcy/polyvol/internal/store/file"
)

// BackfillOptions configures one backfill run.
type BackfillOptions struct {
	Days []time.Time
	// MarketsFile replaces the Gamma catalog with a previously dumped one.
	MarketsFile string
	// Merge folds the results into the main series file.
	Merge bool
	// OutDir overrides the data directory for this run.
	OutDir string
}

// MarketsOptions configures a catalog dump.
type MarketsOptions struct {
	ActiveOnly bool
	// Out is a file path or an existing directory.
	Out string
}

// scoreOptions maps the score section onto aggregator options at the given
// bucket width.
func (a *App) scoreOptions(fidelity int) scoring.Options {
	return scoring.Options{
		TopN:     a.cfg.Score.TopN,
		Fidelity: fidelity,
		Thresholds: scoring.Thresholds{
			Value:  a.cfg.Score.EventThreshold,
			Member: a.cfg.Score.MemberThreshold,
		},
		Decimals: a.cfg.Score.Decimals,
	}
}

// Backfill scores every requested day against one catalog and writes
// scores_<label>.json. With Merge the series file is updated as well.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) (err error) {
	defer func() { a.reportFailure(ctx, "backfill", err) }()

	if len(opts.Days) == 0 {
		return fmt.Errorf("app: backfill: no days")
	}
	deps, err := a.dependencies(ctx)
	if err != nil {
		return err
	}
	logger := a.logger.With(slog.String("command", "backfill"))

	var markets []domain.Market
	if opts.MarketsFile != "" {
		markets, err = file.ReadCatalog(opts.MarketsFile)
		if err != nil {
			return fmt.Errorf("app: backfill: %w", err)
		}
	} else {
		markets = deps.Catalog.Load(ctx, false)
	}
	if len(markets) == 0 {
		logger.WarnContext(ctx, "catalog empty, every day will score zero")
	}
	logger.InfoContext(ctx, "backfill starting",
		slog.Int("days", len(opts.Days)),
		slog.Int("markets", len(markets)),
	)

	workers := a.cfg.Score.Workers
	if workers <= 0 {
		workers = series.DefaultWorkers()
	}
	agg := scoring.NewAggregator(deps.Ranker, deps.Prices, deps.Location, a.scoreOptions(a.cfg.Score.BackfillFidelity), a.logger)
	scores, err := series.NewBuilder(agg, workers, a.logger).Build(ctx, opts.Days, markets)
	if err != nil {
		return fmt.Errorf("app: backfill: %w", err)
	}

	store := deps.Files
	if opts.OutDir != "" {
		store = file.New(opts.OutDir)
	}
	path, err := store.SaveBackfill(ctx, calendar.Label(opts.Days), scores)
	if err != nil {
		return fmt.Errorf("app: backfill: %w", err)
	}
	logger.InfoContext(ctx, "backfill written", slog.String("path", path), slog.Int("scores", len(scores)))

	var full []domain.DayScore
	if opts.Merge {
		existing, err := store.LoadSeries(ctx)
		if err != nil {
			return fmt.Errorf("app: backfill: %w", err)
		}
		full = series.Merge(existing, scores)
		if err := store.SaveSeries(ctx, full); err != nil {
			return fmt.Errorf("app: backfill: %w", err)
		}
		logger.InfoContext(ctx, "series merged", slog.String("path", store.SeriesPath()), slog.Int("points", len(full)))
	}

	series.Publish(ctx, deps.Sinks, scores, full, logger)
	return nil
}

// Hourly refreshes today's point. An empty snapshot or a concurrent run is
// reported as a warning, not a failure.
func (a *App) Hourly(ctx context.Context, now time.Time) (err error) {
	defer func() { a.reportFailure(ctx, "hourly", err) }()

	deps, err := a.dependencies(ctx)
	if err != nil {
		return err
	}
	rankAt, err := series.ParseRankAt(a.cfg.Score.HourlyRankAt)
	if err != nil {
		return fmt.Errorf("app: hourly: %w", err)
	}
	h := series.NewHourly(series.HourlyDeps{
		Catalog:   deps.Catalog,
		Ranker:    deps.Ranker,
		Prices:    deps.Prices,
		Snapshots: deps.Files,
		Series:    deps.Files,
		Lock:      deps.Lock,
		Sinks:     deps.Sinks,
	}, deps.Location, a.scoreOptions(a.cfg.Score.HourlyFidelity), a.logger, series.WithRankAt(rankAt))

	score, err := h.Run(ctx, now)
	switch {
	case errors.Is(err, domain.ErrNoData), errors.Is(err, domain.ErrLockHeld):
		a.logger.WarnContext(ctx, "hourly update skipped", slog.String("reason", err.Error()))
		return nil
	case err != nil:
		return fmt.Errorf("app: hourly: %w", err)
	}
	a.logger.InfoContext(ctx, "hourly update done",
		slog.String("date", score.Time),
		slog.Float64("value", score.Value),
	)
	return nil
}

// Markets dumps the normalised catalog straight from Gamma and returns the
// written path. The dump is mirrored to S3 when configured.
func (a *App) Markets(ctx context.Context, opts MarketsOptions) (path string, err error) {
	defer func() { a.reportFailure(ctx, "markets", err) }()

	deps, err := a.dependencies(ctx)
	if err != nil {
		return "", err
	}
	out := opts.Out
	if out == "" {
		out = deps.Files.Root()
		if err := os.MkdirAll(out, 0o755); err != nil {
			return "", fmt.Errorf("app: markets: %w", err)
		}
	}

	markets := deps.Loader.Load(ctx, opts.ActiveOnly)
	now := time.Now().In(deps.Location)
	path, err = file.WriteCatalog(out, markets, now)
	if err != nil {
		return "", fmt.Errorf("app: markets: %w", err)
	}
	a.logger.InfoContext(ctx, "catalog written",
		slog.String("path", path),
		slog.Int("markets", len(markets)),
		slog.Bool("active_only", opts.ActiveOnly),
	)

	if deps.Publisher != nil {
		key, err := deps.Publisher.PublishCatalog(ctx, markets, now)
		if err != nil {
			a.logger.ErrorContext(ctx, "catalog upload failed", slog.String("error", err.Error()))
		} else {
			a.logger.InfoContext(ctx, "catalog uploaded", slog.String("key", key))
		}
	}
	return path, nil
}
