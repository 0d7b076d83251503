package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var currencyPrefixes = []string{"inr", "rs.", "rs", "₹", "$"}

// Amount parses a spreadsheet money cell. Missing or non-numeric values are
// zero; thousands separators and currency markers are ignored.
func Amount(raw string) decimal.Decimal {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return decimal.Zero
	}
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	s = strings.Trim(s, "()")
	for _, p := range currencyPrefixes {
		s = strings.TrimSpace(strings.TrimPrefix(s, p))
	}
	s = strings.NewReplacer(",", "", " ", "", "\u00a0", "").Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	if negative {
		d = d.Neg()
	}
	return d
}

// AmountFloat is Amount as a float64.
func AmountFloat(raw string) float64 {
	return Amount(raw).InexactFloat64()
}

var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"2-1-2006",
	"2/1/2006",
	"02-Jan-2006",
	"02 Jan 2006",
	"01-02-06",
	"2006-01-02 15:04:05",
	"02-01-2006 15:04",
	time.RFC3339,
}

// ParseDate reads the date formats seen in DMS exports, including Excel
// serial numbers. The second return is false when nothing matched.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 2958466 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
