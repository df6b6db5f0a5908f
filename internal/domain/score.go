package domain

import "time"

// DateLayout is the civil-day format used for series keys and file names.
const DateLayout = "2006-01-02"

// HighlightEvent is a sharply moving market attached to a day's score.
type HighlightEvent struct {
	Title string  `json:"title"`
	Value float64 `json:"value"` // signed percent change
}

// DayScore is one point of the persisted volatility series.
type DayScore struct {
	Time   string           `json:"time"`
	Value  float64          `json:"value"`
	Events []HighlightEvent `json:"events,omitempty"`
}

// SnapshotEntry is one member of a day's top-N open-interest snapshot.
type SnapshotEntry struct {
	ConditionID  string   `json:"conditionId"`
	TokenID      string   `json:"tokenId"`
	Question     string   `json:"question"`
	OpenInterest float64  `json:"openInterest"`
	PriceChange  *float64 `json:"priceChange,omitempty"`
}

// DayWindow is the half-open interval [Start, End) of one civil day.
type DayWindow struct {
	Start time.Time
	End   time.Time
}

// Date returns the civil day string of the window start.
func (w DayWindow) Date() string {
	return w.Start.Format(DateLayout)
}
