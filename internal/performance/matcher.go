package performance

import (
	"strings"
	"unicode"

	"github.com/serviceline/serviceline/internal/records"
)

// MatchSummary counts bookings with and without a billing record.
type MatchSummary struct {
	TotalBookings int `json:"totalBookings"`
	MatchedVINs   int `json:"matchedVINs"`
	UnmatchedVINs int `json:"unmatchedVINs"`
}

// ConversionRate is the matched share in percent, 0 without bookings.
func (m MatchSummary) ConversionRate() float64 {
	if m.TotalBookings == 0 {
		return 0
	}
	return float64(m.MatchedVINs) * 100 / float64(m.TotalBookings)
}

// NormalizeIdentifier upper-cases s and removes all whitespace.
func NormalizeIdentifier(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}

// Identifier returns the normalised VIN of a row, or its registration
// number when the VIN is blank.
func Identifier(r records.Record) string {
	if id := NormalizeIdentifier(r.VIN); id != "" {
		return id
	}
	return NormalizeIdentifier(r.RegistrationNo)
}

// MatchResult is the outcome of matching a booking set.
type MatchResult struct {
	Summary    MatchSummary
	MatchedIDs []int64
	Unmatched  []records.Record
}

// MatchBookings marks a booking matched when its identifier equals the
// identifier of at least one billing row. Only exact equality counts.
// Callers pass both sets from the same showroom and city.
func MatchBookings(bookings, billing []records.Record) MatchResult {
	known := make(map[string]struct{}, len(billing))
	for _, b := range billing {
		if id := Identifier(b); id != "" {
			known[id] = struct{}{}
		}
	}
	res := MatchResult{MatchedIDs: []int64{}}
	for _, bk := range bookings {
		res.Summary.TotalBookings++
		id := Identifier(bk)
		if _, ok := known[id]; ok && id != "" {
			res.Summary.MatchedVINs++
			res.MatchedIDs = append(res.MatchedIDs, bk.ID)
			continue
		}
		res.Summary.UnmatchedVINs++
		res.Unmatched = append(res.Unmatched, bk)
	}
	return res
}

// IsMatched reports whether one booking has a billing counterpart.
func IsMatched(booking records.Record, billing []records.Record) bool {
	id := Identifier(booking)
	if id == "" {
		return false
	}
	for _, b := range billing {
		if Identifier(b) == id {
			return true
		}
	}
	return false
}
