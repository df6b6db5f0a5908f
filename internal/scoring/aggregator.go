package scoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyvol/internal/calendar"
	"github.com/alanyoungcy/polyvol/internal/catalog"
	"github.com/alanyoungcy/polyvol/internal/domain"
	"github.com/alanyoungcy/polyvol/internal/ranking"
)

// TopRanker ranks markets by open interest.
type TopRanker interface {
	Top(ctx context.Context, q ranking.Query) []domain.OpenInterestEntry
}

// ChangeSource measures a token's price change over a window.
type ChangeSource interface {
	Change(ctx context.Context, tokenID string, start, end time.Time, fidelity int) float64
}

// Options tune the aggregator.
type Options struct {
	TopN       int
	Fidelity   int // minutes per price bucket
	Thresholds Thresholds
	Decimals   int
}

// DefaultOptions mirrors the published index: top 10, hourly buckets,
// 8/10 thresholds, three decimals.
func DefaultOptions() Options {
	return Options{
		TopN:       ranking.DefaultTopN,
		Fidelity:   60,
		Thresholds: DefaultThresholds(),
		Decimals:   3,
	}
}

// Aggregator computes one day's score from a shared, read-only catalog.
type Aggregator struct {
	ranker TopRanker
	prices ChangeSource
	loc    *time.Location
	opts   Options
	logger *slog.Logger
}

// NewAggregator creates an Aggregator. Days are cut in loc.
func NewAggregator(ranker TopRanker, prices ChangeSource, loc *time.Location, opts Options, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		ranker: ranker,
		prices: prices,
		loc:    loc,
		opts:   opts,
		logger: logger.With(slog.String("component", "aggregator")),
	}
}

// Options returns the aggregator's settings.
func (a *Aggregator) Options() Options {
	return a.opts
}

// ScoreDay ranks the markets alive during day at the day's start, measures
// each ranked market's change over the full window and summarises them. The
// ranked members are returned alongside the score.
func (a *Aggregator) ScoreDay(ctx context.Context, day time.Time, markets []domain.Market) (domain.DayScore, []Member) {
	w := calendar.Window(day, a.loc)
	date := w.Date()

	alive := catalog.FilterByWindow(markets, w)
	top := a.ranker.Top(ctx, ranking.Query{Markets: alive, At: w.Start, N: a.opts.TopN})
	if len(top) == 0 {
		a.logger.Warn("no ranked markets", slog.String("date", date), slog.Int("candidates", len(alive)))
		return domain.DayScore{Time: date}, nil
	}

	byID := domain.IndexByCondition(alive)
	members := make([]Member, 0, len(top))
	for _, e := range top {
		m := byID[e.MarketID]
		member := Member{
			ConditionID:  e.MarketID,
			TokenID:      m.TokenID,
			Question:     m.Question,
			OpenInterest: e.Amount,
		}
		if m.TokenID != "" {
			member.Change = a.prices.Change(ctx, m.TokenID, w.Start, w.End, a.opts.Fidelity)
			member.Measured = true
		}
		members = append(members, member)
	}

	value, events := Summarize(members, a.opts.Thresholds)
	score := NewDayScore(date, value, events, a.opts.Decimals)
	a.logger.Info("day scored",
		slog.String("date", date),
		slog.Int("candidates", len(alive)),
		slog.Int("ranked", len(members)),
		slog.Float64("value", score.Value),
		slog.Int("events", len(score.Events)),
	)
	return score, members
}
