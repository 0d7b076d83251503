package performance

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serviceline/serviceline/internal/records"
)

func rec(advisor, workType string, labour, part float64) records.Record {
	return records.Record{
		AdvisorName:  advisor,
		WorkType:     workType,
		LabourAmount: decimal.NewFromFloat(labour),
		PartAmount:   decimal.NewFromFloat(part),
	}
}

func TestAggregateCategoryCounts(t *testing.T) {
	got := AggregateByAdvisor([]records.Record{
		rec("Ravi", "Paid Service", 1000, 200),
		rec("Ravi", "Free Service", 0, 0),
		rec("Ravi", "Running Repair R&R", 500.5, 99.5),
	})
	require.Contains(t, got, "Ravi")
	totals := got["Ravi"]
	assert.Equal(t, 1, totals.PaidServiceCount)
	assert.Equal(t, 1, totals.FreeServiceCount)
	assert.Equal(t, 1, totals.RunningRepairCount)
	assert.Equal(t, 3, totals.VehicleCount)
	assert.Equal(t, 1500.5, totals.LabourAmount)
	assert.Equal(t, 299.5, totals.PartAmount)
}

func TestAggregateCountersAreNotExclusive(t *testing.T) {
	got := AggregateByAdvisor([]records.Record{
		rec("Neha", "Paid + Free check", 0, 0),
		rec("Neha", "Accident", 0, 0),
	})["Neha"]
	assert.Equal(t, 2, got.VehicleCount)
	assert.Equal(t, 1, got.PaidServiceCount)
	assert.Equal(t, 1, got.FreeServiceCount)
	assert.Greater(t, got.PaidServiceCount+got.FreeServiceCount, 1)
	assert.Zero(t, got.RunningRepairCount)
}

func TestAggregateKeysAreTrimmedNotLowercased(t *testing.T) {
	got := AggregateByAdvisor([]records.Record{
		rec(" Ravi ", "", 1, 0),
		rec("Ravi", "", 1, 0),
		rec("RAVI", "", 1, 0),
		rec("", "", 1, 0),
		rec("   ", "", 1, 0),
	})
	assert.Equal(t, 2, got["Ravi"].VehicleCount)
	assert.Equal(t, 1, got["RAVI"].VehicleCount)
	assert.Equal(t, 2, got[UnknownAdvisor].VehicleCount)
}

func TestAggregatePartitionsAllRecords(t *testing.T) {
	names := []string{"A", "B", "", "C ", " A"}
	var recs []records.Record
	for i := 0; i < 57; i++ {
		recs = append(recs, rec(names[i%len(names)], fmt.Sprintf("type %d", i), float64(i), 0))
	}
	total := 0
	for _, t := range AggregateByAdvisor(recs) {
		total += t.VehicleCount
	}
	assert.Equal(t, len(recs), total)

	total = 0
	for _, g := range AggregateByAdvisorID(recs) {
		total += g.VehicleCount
	}
	assert.Equal(t, len(recs), total)
}

func TestAggregateEmpty(t *testing.T) {
	assert.Empty(t, AggregateByAdvisor(nil))
	assert.Empty(t, AggregateByAdvisorID(nil))
}

func TestCategoriesRunningRepairMarkers(t *testing.T) {
	for _, wt := range []string{"R&R", "r and r job", "Running Repair", "RR", "running"} {
		_, _, rr := Categories(wt)
		assert.True(t, rr, wt)
	}
	paid, free, rr := Categories("PMS")
	assert.False(t, paid || free || rr)
}

func TestAggregateByAdvisorIDMergesSpellings(t *testing.T) {
	id := int64(42)
	a := rec("Ravi Kumar", "Paid", 100, 0)
	a.AdvisorID = &id
	b := rec("RAVI K", "Paid", 50, 0)
	b.AdvisorID = &id
	legacy := rec("Ravi Kumar", "Free", 10, 0)

	groups := AggregateByAdvisorID([]records.Record{a, b, legacy})
	require.Len(t, groups, 2)
	assert.Equal(t, "Ravi Kumar", groups[0].Name)
	assert.Zero(t, groups[0].UserID, "legacy name bucket sorts before the id group")
	assert.Equal(t, 1, groups[0].VehicleCount)
	assert.Equal(t, int64(42), groups[1].UserID)
	assert.Equal(t, 2, groups[1].VehicleCount)
	assert.Equal(t, 150.0, groups[1].LabourAmount)
}
