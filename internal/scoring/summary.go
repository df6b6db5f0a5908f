// Package scoring turns a day's top open-interest markets and their price
// changes into one volatility value plus optional highlight events.
package scoring

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyvol/internal/domain"
)

// Thresholds gate highlight events. Both comparisons are strict.
type Thresholds struct {
	// Value is the day score above which events are attached.
	Value float64
	// Member is the absolute change above which a market becomes an event.
	Member float64
}

// DefaultThresholds returns the published 8 / 10 gates.
func DefaultThresholds() Thresholds {
	return Thresholds{Value: 8, Member: 10}
}

// UnknownTitle labels events whose market has no question text.
const UnknownTitle = "Unknown"

// Member is one ranked market and its measured change.
type Member struct {
	ConditionID  string
	TokenID      string
	Question     string
	OpenInterest float64
	Change       float64
	// Measured is false when the market had no token id and so no change.
	Measured bool
}

// Summarize averages |Change| over measured members and, when that mean
// exceeds th.Value, lists the members whose |Change| exceeds th.Member,
// largest first. Unmeasured members count neither in the sum nor in the
// divisor. Values are unrounded.
func Summarize(members []Member, th Thresholds) (float64, []domain.HighlightEvent) {
	var (
		sum   float64
		count int
	)
	for _, m := range members {
		if !m.Measured {
			continue
		}
		sum += math.Abs(m.Change)
		count++
	}
	if count == 0 {
		return 0, nil
	}
	value := sum / float64(count)
	if value <= th.Value {
		return value, nil
	}

	var movers []Member
	for _, m := range members {
		if m.Measured && math.Abs(m.Change) > th.Member {
			movers = append(movers, m)
		}
	}
	sort.SliceStable(movers, func(i, j int) bool {
		return math.Abs(movers[i].Change) > math.Abs(movers[j].Change)
	})

	events := make([]domain.HighlightEvent, 0, len(movers))
	for _, m := range movers {
		title := m.Question
		if title == "" {
			title = UnknownTitle
		}
		events = append(events, domain.HighlightEvent{Title: title, Value: m.Change})
	}
	if len(events) == 0 {
		return value, nil
	}
	return value, events
}

// Round rounds v half away from zero to places decimals. Negative places
// leave v untouched.
func Round(v float64, places int) float64 {
	if places < 0 {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(int32(places)).Float64()
	return f
}

// NewDayScore rounds value and event values into a persisted series point.
func NewDayScore(day string, value float64, events []domain.HighlightEvent, places int) domain.DayScore {
	out := domain.DayScore{Time: day, Value: Round(value, places)}
	for _, e := range events {
		out.Events = append(out.Events, domain.HighlightEvent{Title: e.Title, Value: Round(e.Value, places)})
	}
	return out
}
