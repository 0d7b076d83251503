// Package performance computes advisor achievement, booking conversion and
// pace against targets for the dashboards.
package performance

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/serviceline/serviceline/internal/records"
)

// UnknownAdvisor is the bucket for rows without an advisor name.
const UnknownAdvisor = "Unknown"

// AdvisorTotals are the achieved metrics of one advisor.
type AdvisorTotals struct {
	LabourAmount       float64 `json:"labourAmount"`
	PartAmount         float64 `json:"partAmount"`
	VehicleCount       int     `json:"vehicleCount"`
	PaidServiceCount   int     `json:"paidServiceCount"`
	FreeServiceCount   int     `json:"freeServiceCount"`
	RunningRepairCount int     `json:"runningRepairCount"`
}

var runningRepairMarkers = []string{"r&r", "r and r", "running repair", "rr", "running"}

// Categories reports the paid, free and running repair flags of a work
// type. The tests are independent: a row may count in several or none.
func Categories(workType string) (paid, free, runningRepair bool) {
	wt := strings.ToLower(workType)
	paid = strings.Contains(wt, "paid")
	free = strings.Contains(wt, "free")
	for _, m := range runningRepairMarkers {
		if strings.Contains(wt, m) {
			runningRepair = true
			break
		}
	}
	return paid, free, runningRepair
}

// AdvisorKey returns the grouping name of a row: the trimmed advisor name,
// case preserved, or UnknownAdvisor when blank.
func AdvisorKey(name string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return UnknownAdvisor
}

type accumulator struct {
	labour, part decimal.Decimal
	totals       AdvisorTotals
}

func (a *accumulator) add(r records.Record) {
	a.labour = a.labour.Add(r.LabourAmount)
	a.part = a.part.Add(r.PartAmount)
	a.totals.VehicleCount++
	paid, free, rr := Categories(r.WorkType)
	if paid {
		a.totals.PaidServiceCount++
	}
	if free {
		a.totals.FreeServiceCount++
	}
	if rr {
		a.totals.RunningRepairCount++
	}
}

func (a *accumulator) result() AdvisorTotals {
	t := a.totals
	t.LabourAmount = a.labour.InexactFloat64()
	t.PartAmount = a.part.InexactFloat64()
	return t
}

// AggregateByAdvisor folds records into totals keyed by advisor name.
func AggregateByAdvisor(recs []records.Record) map[string]AdvisorTotals {
	acc := make(map[string]*accumulator)
	for _, r := range recs {
		k := AdvisorKey(r.AdvisorName)
		a, ok := acc[k]
		if !ok {
			a = &accumulator{}
			acc[k] = a
		}
		a.add(r)
	}
	out := make(map[string]AdvisorTotals, len(acc))
	for k, a := range acc {
		out[k] = a.result()
	}
	return out
}

// AdvisorGroup is an aggregation bucket keyed by user id when the rows were
// reconciled, or by name for legacy rows.
type AdvisorGroup struct {
	UserID int64  `json:"userId,omitempty"`
	Name   string `json:"name"`
	AdvisorTotals
}

// AggregateByAdvisorID groups rows by advisor_id, falling back to the name
// bucket for rows that have none. An id group takes the first name seen.
// Groups are sorted by name, then user id.
func AggregateByAdvisorID(recs []records.Record) []AdvisorGroup {
	type groupKey struct {
		id   int64
		name string
	}
	acc := make(map[groupKey]*accumulator)
	names := make(map[groupKey]string)
	var order []groupKey
	for _, r := range recs {
		var k groupKey
		if r.AdvisorID != nil {
			k.id = *r.AdvisorID
		} else {
			k.name = AdvisorKey(r.AdvisorName)
		}
		a, ok := acc[k]
		if !ok {
			a = &accumulator{}
			acc[k] = a
			names[k] = AdvisorKey(r.AdvisorName)
			order = append(order, k)
		}
		a.add(r)
	}
	out := make([]AdvisorGroup, 0, len(order))
	for _, k := range order {
		out = append(out, AdvisorGroup{UserID: k.id, Name: names[k], AdvisorTotals: acc[k].result()})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
