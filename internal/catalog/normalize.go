// Package catalog loads the Polymarket market catalog and reduces each raw
// record to the slim domain.Market the scoring pipeline works with.
package catalog

import (
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyvol/internal/domain"
	"github.com/alanyoungcy/polyvol/internal/platform/polymarket"
)

// timestampLayout always writes a numeric offset, including "+00:00" for UTC.
const timestampLayout = "2006-01-02T15:04:05-07:00"

var fractionalSeconds = regexp.MustCompile(`(\d{2}:\d{2}:\d{2})\.\d+`)

// Accepted after normalisation. Zone-less layouts are read as UTC.
var (
	zonedLayouts = []string{
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05-0700",
		"2006-01-02T15:04Z07:00",
	}
	naiveLayouts = []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02",
	}
)

// ParseTimestamp reads the timestamp serialisations Gamma emits
// ("2024-07-10T20:35:52.123Z", "2024-07-10 20:35:52+00", naive ISO, ...).
// Fractional seconds are discarded and zone-less values are taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	s = fractionalSeconds.ReplaceAllString(s, "$1")
	s = strings.Replace(s, "Z", "+00:00", 1)
	if strings.Contains(s, " ") && !strings.Contains(s, "T") {
		s = strings.Replace(s, " ", "T", 1)
	}
	if strings.HasSuffix(s, "+00") {
		s += ":00"
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeTimestamp re-expresses s in loc at one-second precision, or
// returns "" when s cannot be parsed.
func NormalizeTimestamp(s string, loc *time.Location) string {
	t, ok := ParseTimestamp(s)
	if !ok {
		return ""
	}
	return t.In(loc).Truncate(time.Second).Format(timestampLayout)
}

// NormalizeConditionID lowercases a 32-byte hex condition id. Anything else
// is returned unchanged.
func NormalizeConditionID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) != 2+2*common.HashLength || !strings.HasPrefix(id, "0x") && !strings.HasPrefix(id, "0X") {
		return id
	}
	if !isHex(id[2:]) {
		return id
	}
	return common.HexToHash(id).Hex()
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// Normalize reduces a raw Gamma record to a domain.Market.
func Normalize(m polymarket.APIMarket, loc *time.Location) domain.Market {
	out := domain.Market{
		ConditionID: NormalizeConditionID(m.ConditionID),
		Question:    m.Question,
		CreatedAt:   NormalizeTimestamp(m.CreatedAt, loc),
		ClosedTime:  NormalizeTimestamp(m.ClosedTime, loc),
		TokenID:     polymarket.YesTokenID(m.ClobTokenIDs),
	}
	for _, ev := range m.Events {
		if id := string(ev.ID); id != "" {
			out.EventIDs = append(out.EventIDs, id)
		}
	}
	return out
}
