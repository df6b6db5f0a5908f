package polymarket

import (
	"encoding/json"
	"strconv"
)

// flexString unmarshals from a JSON string or number so Gamma ids decode
// whether the API sends "12345" or 12345.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket is the subset of a Gamma /markets record the volatility pipeline
// reads. Timestamps arrive in several serialisations and are normalised by
// the catalog package, not here.
type APIMarket struct {
	ConditionID  string        `json:"conditionId"`
	Question     string        `json:"question"`
	CreatedAt    string        `json:"createdAt"`
	ClosedTime   string        `json:"closedTime"`
	ClobTokenIDs string        `json:"clobTokenIds"` // JSON-encoded: e.g. "[\"123\",\"456\"]"
	Events       []APIEventRef `json:"events"`
}

// APIEventRef is the parent-event stub embedded in a Gamma market.
type APIEventRef struct {
	ID    flexString `json:"id"`
	Title string     `json:"title"`
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// PricePoint is one time bucket of a CLOB price history.
type PricePoint struct {
	T int64   `json:"t"`
	P float64 `json:"p"`
}

// priceHistoryResponse is the envelope of GET /prices-history.
type priceHistoryResponse struct {
	History []PricePoint `json:"history"`
}

// YesTokenID returns the first element of a JSON-encoded token id list, or ""
// when the string is empty, malformed, or holds an empty list.
func YesTokenID(clobTokenIDs string) string {
	if clobTokenIDs == "" {
		return ""
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(clobTokenIDs), &raw); err != nil || len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw[0], &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw[0], &n); err == nil {
		return n.String()
	}
	return ""
}

func unixString(ts int64) string {
	return strconv.FormatInt(ts, 10)
}
