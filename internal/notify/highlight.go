package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/alanyoungcy/polyvol/internal/domain"
)

// HighlightSink turns scores carrying highlight events into notifications.
// Scores without events are ignored, as are snapshots.
type HighlightSink struct {
	notifier *Notifier
}

// NewHighlightSink creates a sink dispatching through n.
func NewHighlightSink(n *Notifier) *HighlightSink {
	return &HighlightSink{notifier: n}
}

// Name implements domain.ScoreSink.
func (h *HighlightSink) Name() string { return "notify" }

// PublishScores sends one alert per score with events. It only sees the
// points a run changed, so an hourly run alerts again whenever the day's
// value moves.
func (h *HighlightSink) PublishScores(ctx context.Context, scores []domain.DayScore) error {
	var errs []string
	for _, s := range scores {
		if len(s.Events) == 0 {
			continue
		}
		title, msg := FormatHighlight(s)
		if err := h.notifier.Notify(ctx, EventHighlight, title, msg); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: highlight: %s", strings.Join(errs, "; "))
	}
	return nil
}

// PublishSnapshot implements domain.ScoreSink.
func (h *HighlightSink) PublishSnapshot(context.Context, string, []domain.SnapshotEntry) error {
	return nil
}

// FormatHighlight renders a score's alert title and body.
func FormatHighlight(s domain.DayScore) (string, string) {
	title := fmt.Sprintf("Volatility %s: %.2f", s.Time, s.Value)
	var b strings.Builder
	for i, e := range s.Events {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s (%+.2f%%)", e.Title, e.Value)
	}
	return title, b.String()
}

// Compile-time interface check.
var _ domain.ScoreSink = (*HighlightSink)(nil)
