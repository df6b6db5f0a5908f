package domain

// Market is the slim, normalised view of a Polymarket market used by the
// volatility pipeline. JSON tags match the catalog files written by the
// markets command so previously dumped catalogs can be reloaded verbatim.
type Market struct {
	ConditionID string   `json:"conditionId,omitempty"`
	Question    string   `json:"question,omitempty"`
	CreatedAt   string   `json:"createdAt,omitempty"`  // RFC 3339, civil timezone, empty if unparseable
	ClosedTime  string   `json:"closedTime,omitempty"` // RFC 3339, civil timezone, empty if open or unparseable
	TokenID     string   `json:"tokenId,omitempty"`    // "Yes" outcome CLOB token
	EventIDs    []string `json:"event_ids,omitempty"`
}

// IsEmpty reports whether no normalised field carries a value.
func (m Market) IsEmpty() bool {
	return m.ConditionID == "" &&
		m.Question == "" &&
		m.CreatedAt == "" &&
		m.ClosedTime == "" &&
		m.TokenID == "" &&
		len(m.EventIDs) == 0
}

// IndexByCondition maps condition id to market. Markets without a condition
// id are skipped; later duplicates win.
func IndexByCondition(markets []Market) map[string]Market {
	out := make(map[string]Market, len(markets))
	for _, m := range markets {
		if m.ConditionID == "" {
			continue
		}
		out[m.ConditionID] = m
	}
	return out
}
