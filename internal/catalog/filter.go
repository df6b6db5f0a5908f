package catalog

import "github.com/alanyoungcy/polyvol/internal/domain"

// FilterByWindow keeps markets that existed at some point during w: created
// no later than w.End and not closed before w.Start. A missing or malformed
// createdAt excludes the market; a malformed closedTime counts as still open.
func FilterByWindow(markets []domain.Market, w domain.DayWindow) []domain.Market {
	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		created, ok := ParseTimestamp(m.CreatedAt)
		if !ok || created.After(w.End) {
			continue
		}
		if closed, ok := ParseTimestamp(m.ClosedTime); ok && closed.Before(w.Start) {
			continue
		}
		out = append(out, m)
	}
	return out
}
