package performance

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/serviceline/serviceline/internal/ingest"
	"github.com/serviceline/serviceline/internal/rbac"
	"github.com/serviceline/serviceline/internal/records"
	"github.com/serviceline/serviceline/internal/shared"
	"github.com/serviceline/serviceline/internal/targets"
)

// RecordSource reads and flags service records.
type RecordSource interface {
	List(ctx context.Context, f records.Filter) ([]records.Record, error)
	SetMatched(ctx context.Context, showroomID int64, city string, matchedIDs []int64) (int64, error)
}

// TargetSource returns the saved advisor split for a city and month.
type TargetSource interface {
	AdvisorTargets(ctx context.Context, showroomID int64, city, month string) ([]targets.AdvisorTarget, error)
}

// Service builds dashboard views on top of records and targets.
type Service struct {
	records RecordSource
	targets TargetSource
	cache   *Cache
	now     func() time.Time
}

// NewService wires the dashboard service. cache may be nil.
func NewService(recs RecordSource, tgts TargetSource, cache *Cache) *Service {
	return &Service{records: recs, targets: tgts, cache: cache, now: time.Now}
}

// WithClock overrides the clock used for month defaults and pace.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AdvisorRow is one advisor line of the performance table.
type AdvisorRow struct {
	UserID        int64  `json:"userId,omitempty"`
	Advisor       string `json:"advisor"`
	Labour        Metric `json:"labour"`
	Parts         Metric `json:"parts"`
	TotalVehicles Metric `json:"totalVehicles"`
	PaidService   Metric `json:"paidService"`
	FreeService   Metric `json:"freeService"`
	RR            Metric `json:"rr"`
}

// AdvisorDashboard is the payload of the advisor performance view.
type AdvisorDashboard struct {
	City          string       `json:"city"`
	Month         string       `json:"month"`
	RemainingDays int          `json:"remainingDays"`
	Advisors      []AdvisorRow `json:"advisors"`
	Total         AdvisorRow   `json:"total"`
}

// BookingDashboard is the payload of the booking conversion view.
type BookingDashboard struct {
	City           string       `json:"city"`
	Summary        MatchSummary `json:"summary"`
	ConversionRate float64      `json:"conversionRate"`
	Unmatched      []string     `json:"unmatched"`
}

func scopeToken(f records.Filter) string {
	if f.AdvisorUserID != 0 {
		return "u" + strconv.FormatInt(f.AdvisorUserID, 10)
	}
	return "all"
}

// AdvisorDashboard combines achieved totals with saved targets for the
// principal's visible advisors.
func (s *Service) AdvisorDashboard(ctx context.Context, p *rbac.Principal, city, month string) (*AdvisorDashboard, error) {
	now := s.now()
	month, err := shared.ParseMonth(month, now)
	if err != nil {
		return nil, err
	}
	f := records.ScopeFor(p, city)
	if f.City == "" {
		return nil, shared.ErrCityRequired
	}
	f.Type = ingest.TypeROBilling
	f.From, f.To, err = shared.MonthBounds(month, time.UTC)
	if err != nil {
		return nil, err
	}

	key, err := s.cache.BuildKey(ctx, "dashboard", "advisors", strconv.FormatInt(f.ShowroomID, 10), strings.ToLower(f.City), month, scopeToken(f))
	if err != nil {
		return nil, err
	}
	var out AdvisorDashboard
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.buildAdvisorDashboard(ctx, f, month)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) buildAdvisorDashboard(ctx context.Context, f records.Filter, month string) (*AdvisorDashboard, error) {
	var (
		recs []records.Record
		tgts []targets.AdvisorTarget
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		recs, err = s.records.List(gctx, f)
		return err
	})
	g.Go(func() error {
		var err error
		tgts, err = s.targets.AdvisorTargets(gctx, f.ShowroomID, f.City, month)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load advisor dashboard: %w", err)
	}

	days := remainingDaysInMonth(month, s.now())
	dash := &AdvisorDashboard{City: f.City, Month: month, RemainingDays: days, Advisors: []AdvisorRow{}}

	groups := AggregateByAdvisorID(recs)
	assigned := matchTargets(groups, tgts)
	used := make([]bool, len(tgts))
	var sumTarget targets.Values
	var sumAchieved AdvisorTotals
	for gi, grp := range groups {
		var tv targets.Values
		if ti := assigned[gi]; ti >= 0 {
			tv = tgts[ti].Values
			used[ti] = true
		}
		dash.Advisors = append(dash.Advisors, buildRow(grp.UserID, grp.Name, tv, grp.AdvisorTotals, days))
		sumTarget = addValues(sumTarget, tv)
		sumAchieved = addTotals(sumAchieved, grp.AdvisorTotals)
	}
	// Advisors with a target but no billing yet. An advisor only sees their
	// own.
	for ti, t := range tgts {
		if used[ti] || !ownsTarget(f, t) {
			continue
		}
		dash.Advisors = append(dash.Advisors, buildRow(t.UserID, t.AdvisorName, t.Values, AdvisorTotals{}, days))
		sumTarget = addValues(sumTarget, t.Values)
	}
	sort.SliceStable(dash.Advisors, func(i, j int) bool { return dash.Advisors[i].Advisor < dash.Advisors[j].Advisor })
	dash.Total = buildRow(0, "Total", sumTarget, sumAchieved, days)
	return dash, nil
}

// matchTargets pairs each group with at most one target and returns the
// target index per group, -1 for none. Account ids are matched first so a
// reconciled advisor keeps their share whatever spelling the rows used.
// Names then match case-insensitively unless both sides carry different ids.
func matchTargets(groups []AdvisorGroup, tgts []targets.AdvisorTarget) []int {
	assigned := make([]int, len(groups))
	used := make([]bool, len(tgts))
	for gi, grp := range groups {
		assigned[gi] = -1
		if grp.UserID == 0 {
			continue
		}
		for ti, t := range tgts {
			if !used[ti] && t.UserID == grp.UserID {
				assigned[gi], used[ti] = ti, true
				break
			}
		}
	}
	for gi, grp := range groups {
		if assigned[gi] >= 0 {
			continue
		}
		for ti, t := range tgts {
			if used[ti] || normalizeName(t.AdvisorName) != normalizeName(grp.Name) {
				continue
			}
			if t.UserID != 0 && grp.UserID != 0 && t.UserID != grp.UserID {
				continue
			}
			assigned[gi], used[ti] = ti, true
			break
		}
	}
	return assigned
}

func ownsTarget(f records.Filter, t targets.AdvisorTarget) bool {
	if f.AdvisorUserID == 0 {
		return true
	}
	if t.UserID != 0 {
		return t.UserID == f.AdvisorUserID
	}
	return normalizeName(t.AdvisorName) == normalizeName(f.AdvisorName)
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func buildRow(userID int64, name string, t targets.Values, a AdvisorTotals, days int) AdvisorRow {
	return AdvisorRow{
		UserID:        userID,
		Advisor:       name,
		Labour:        NewMetric(t.Labour, a.LabourAmount, days),
		Parts:         NewMetric(t.Parts, a.PartAmount, days),
		TotalVehicles: NewMetric(t.TotalVehicles, float64(a.VehicleCount), days),
		PaidService:   NewMetric(t.PaidService, float64(a.PaidServiceCount), days),
		FreeService:   NewMetric(t.FreeService, float64(a.FreeServiceCount), days),
		RR:            NewMetric(t.RR, float64(a.RunningRepairCount), days),
	}
}

func addValues(a, b targets.Values) targets.Values {
	return targets.Values{
		Labour:        a.Labour + b.Labour,
		Parts:         a.Parts + b.Parts,
		TotalVehicles: a.TotalVehicles + b.TotalVehicles,
		PaidService:   a.PaidService + b.PaidService,
		FreeService:   a.FreeService + b.FreeService,
		RR:            a.RR + b.RR,
	}
}

func addTotals(a, b AdvisorTotals) AdvisorTotals {
	return AdvisorTotals{
		LabourAmount:       a.LabourAmount + b.LabourAmount,
		PartAmount:         a.PartAmount + b.PartAmount,
		VehicleCount:       a.VehicleCount + b.VehicleCount,
		PaidServiceCount:   a.PaidServiceCount + b.PaidServiceCount,
		FreeServiceCount:   a.FreeServiceCount + b.FreeServiceCount,
		RunningRepairCount: a.RunningRepairCount + b.RunningRepairCount,
	}
}

// BookingDashboard matches the visible bookings of a city against all of
// the city's billing rows.
func (s *Service) BookingDashboard(ctx context.Context, p *rbac.Principal, city string) (*BookingDashboard, error) {
	f := records.ScopeFor(p, city)
	if f.City == "" {
		return nil, shared.ErrCityRequired
	}
	key, err := s.cache.BuildKey(ctx, "dashboard", "bookings", strconv.FormatInt(f.ShowroomID, 10), strings.ToLower(f.City), scopeToken(f))
	if err != nil {
		return nil, err
	}
	var out BookingDashboard
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		bookingFilter := f
		bookingFilter.Type = ingest.TypeBookingList
		res, err := s.match(ctx, bookingFilter)
		if err != nil {
			return nil, err
		}
		dash := &BookingDashboard{
			City:           f.City,
			Summary:        res.Summary,
			ConversionRate: res.Summary.ConversionRate(),
			Unmatched:      make([]string, 0, len(res.Unmatched)),
		}
		for _, r := range res.Unmatched {
			dash.Unmatched = append(dash.Unmatched, Identifier(r))
		}
		return dash, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) match(ctx context.Context, bookingFilter records.Filter) (MatchResult, error) {
	billingFilter := records.Filter{ShowroomID: bookingFilter.ShowroomID, City: bookingFilter.City, Type: ingest.TypeROBilling}
	var bookings, billing []records.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bookings, err = s.records.List(gctx, bookingFilter)
		return err
	})
	g.Go(func() error {
		var err error
		billing, err = s.records.List(gctx, billingFilter)
		return err
	})
	if err := g.Wait(); err != nil {
		return MatchResult{}, fmt.Errorf("load bookings: %w", err)
	}
	return MatchBookings(bookings, billing), nil
}

// Rematch recomputes and stores the matched flag of every booking row in
// the showroom and city.
func (s *Service) Rematch(ctx context.Context, showroomID int64, city string) (MatchSummary, int64, error) {
	res, err := s.match(ctx, records.Filter{ShowroomID: showroomID, City: city, Type: ingest.TypeBookingList})
	if err != nil {
		return MatchSummary{}, 0, err
	}
	updated, err := s.records.SetMatched(ctx, showroomID, city, res.MatchedIDs)
	if err != nil {
		return MatchSummary{}, 0, fmt.Errorf("store matched flags: %w", err)
	}
	return res.Summary, updated, nil
}
