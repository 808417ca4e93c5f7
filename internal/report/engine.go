// Package report computes calendar and report aggregates as a pure fold
// over a snapshot of plans, visits, and customers. The engine holds no
// state; every call derives its numbers from the snapshot it is handed.
package report

import (
	"sort"

	"github.com/anzarahmad52/salesman-journey/internal/model"
	"github.com/anzarahmad52/salesman-journey/internal/schedule"
	"github.com/anzarahmad52/salesman-journey/internal/visit"
)

// Snapshot is the input universe for one aggregation run.
type Snapshot struct {
	Plans     []model.JourneyPlan
	Visits    []model.Visit
	Customers []model.Customer
}

// DefaultPoorAccuracyM is the threshold above which a visit counts as a
// poor-accuracy check-in when the query does not override it.
const DefaultPoorAccuracyM = 50.0

func matchesVisit(v model.Visit, q model.VisitQuery) bool {
	if q.SalesmanID != "" && v.SalesmanID != q.SalesmanID {
		return false
	}
	if q.PlanID != "" && v.PlanID != q.PlanID {
		return false
	}
	if q.CustomerID != "" && v.CustomerID != q.CustomerID {
		return false
	}
	return true
}

func matchesDue(d model.DueVisit, q model.VisitQuery) bool {
	if q.SalesmanID != "" && d.SalesmanID != q.SalesmanID {
		return false
	}
	if q.PlanID != "" && d.PlanID != q.PlanID {
		return false
	}
	if q.CustomerID != "" && d.CustomerID != q.CustomerID {
		return false
	}
	return true
}

// checkInDate returns the calendar day a visit counts toward. A visit
// belongs to the day it was checked in; visits never started have no day.
func checkInDate(v model.Visit) (model.Date, bool) {
	if v.CheckInTime == nil {
		return model.Date{}, false
	}
	return model.DateOf(*v.CheckInTime), true
}

// dueKey identifies a planned expectation for matching against completions.
func dueKey(salesmanID, customerID string, d model.Date) string {
	return salesmanID + "|" + customerID + "|" + d.String()
}

// fold is the shared pass both the calendar and the reports are built on.
type fold struct {
	due       []model.DueVisit
	checkedIn []model.Visit // visits with a check-in inside [from,to]
	completed map[string]*model.Visit
}

func (s Snapshot) fold(q model.VisitQuery) fold {
	var f fold
	f.completed = map[string]*model.Visit{}
	f.due = schedule.DueVisitsAll(s.Plans, q.From, q.To)
	n := 0
	for _, d := range f.due {
		if matchesDue(d, q) {
			f.due[n] = d
			n++
		}
	}
	f.due = f.due[:n]

	for i := range s.Visits {
		v := s.Visits[i]
		if !matchesVisit(v, q) {
			continue
		}
		d, ok := checkInDate(v)
		if !ok || d.Before(q.From) || d.After(q.To) {
			continue
		}
		f.checkedIn = append(f.checkedIn, v)
		key := dueKey(v.SalesmanID, v.CustomerID, d)
		if _, seen := f.completed[key]; !seen {
			f.completed[key] = &s.Visits[i]
		}
	}
	sort.Slice(f.checkedIn, func(i, j int) bool {
		return f.checkedIn[i].CheckInTime.Before(*f.checkedIn[j].CheckInTime)
	})
	return f
}

func (f fold) isCompleted(d model.DueVisit) bool {
	_, ok := f.completed[dueKey(d.SalesmanID, d.CustomerID, d.Date)]
	return ok
}

// missedCount is planned minus completed, floored at zero. Unplanned visits
// can push completions past the plan; the floor keeps missed non-negative.
func missedCount(planned, completed int) int {
	m := planned - completed
	if m < 0 {
		m = 0
	}
	return m
}

// avgPositive averages the sum over positive accuracy samples; nil when no
// sample qualifies. Non-positive values are legacy rows with no measurement.
func avgPositive(vals []float64) *float64 {
	var sum float64
	n := 0
	for _, v := range vals {
		if v > 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

// MonthCalendar aggregates one calendar month day by day. Every day of the
// month appears in the map, zero-valued when nothing happened.
func (s Snapshot) MonthCalendar(month model.Date, q model.VisitQuery) model.CalendarResponse {
	first := month.MonthStart()
	last := first.AddDays(first.DaysInMonth() - 1)
	q.From, q.To = first, last
	f := s.fold(q)

	days := make(map[string]model.DayStat, first.DaysInMonth())
	acc := make(map[string][]float64)
	for d := first; !d.After(last); d = d.AddDays(1) {
		days[d.String()] = model.DayStat{}
	}
	for _, dv := range f.due {
		st := days[dv.Date.String()]
		st.Planned++
		days[dv.Date.String()] = st
	}
	for _, v := range f.checkedIn {
		d, _ := checkInDate(v)
		st := days[d.String()]
		st.Completed++
		days[d.String()] = st
		if v.AccuracyM != nil {
			acc[d.String()] = append(acc[d.String()], *v.AccuracyM)
		}
	}
	for key, st := range days {
		st.Missed = missedCount(st.Planned, st.Completed)
		st.AvgAccuracyM = avgPositive(acc[key])
		days[key] = st
	}
	return model.CalendarResponse{Month: first.String()[:7], Days: days}
}

// Stats runs the report query and fills the sections the view mode asks for.
func (s Snapshot) Stats(q model.VisitQuery) model.RangeStats {
	f := s.fold(q)
	out := model.RangeStats{Planned: len(f.due), Completed: len(f.checkedIn)}
	out.Missed = missedCount(out.Planned, out.Completed)
	switch q.ViewMode {
	case model.ViewCustomerSummary:
		out.Customers = s.customerSummary(f, q)
	case model.ViewSummary:
		// Summary rows ride on RangeStats via SummaryRows; callers wanting
		// per-salesman lines call that directly.
	default:
		out.Details = s.detailRows(f, q)
	}
	return out
}

func (s Snapshot) detailRows(f fold, q model.VisitQuery) []model.DetailRow {
	var rows []model.DetailRow
	if q.Status != model.StatusMissedOnly {
		for _, v := range f.checkedIn {
			d, _ := checkInDate(v)
			rows = append(rows, model.DetailRow{
				VisitID:      v.ID,
				Date:         d,
				SalesmanID:   v.SalesmanID,
				CustomerID:   v.CustomerID,
				PlanID:       v.PlanID,
				CheckInTime:  v.CheckInTime,
				CheckOutTime: v.CheckOutTime,
				DurationMin:  v.DurationMinutes(),
				AccuracyM:    v.AccuracyM,
				AccuracyFlag: visit.AccuracyFlag(v.AccuracyM),
				Visited:      true,
			})
		}
	}
	if q.Status != model.StatusCompletedOnly {
		for _, dv := range f.due {
			if f.isCompleted(dv) {
				continue
			}
			rows = append(rows, model.DetailRow{
				Date:         dv.Date,
				SalesmanID:   dv.SalesmanID,
				CustomerID:   dv.CustomerID,
				PlanID:       dv.PlanID,
				AccuracyFlag: visit.AccuracyUnknown,
			})
		}
	}
	if q.Status == model.StatusPlannedOnly {
		// Planned view keeps only rows that trace back to the schedule.
		n := 0
		for _, r := range rows {
			if r.PlanID != "" {
				rows[n] = r
				n++
			}
		}
		rows = rows[:n]
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].CustomerID < rows[j].CustomerID
	})
	return rows
}

// SummaryRows aggregates the range per salesman.
func (s Snapshot) SummaryRows(q model.VisitQuery) []model.SummaryRow {
	f := s.fold(q)
	threshold := q.AccuracyThreshold
	if threshold <= 0 {
		threshold = DefaultPoorAccuracyM
	}

	rows := map[string]*model.SummaryRow{}
	get := func(id string) *model.SummaryRow {
		r, ok := rows[id]
		if !ok {
			r = &model.SummaryRow{SalesmanID: id}
			rows[id] = r
		}
		return r
	}

	for _, dv := range f.due {
		get(dv.SalesmanID).Planned++
	}
	acc := map[string][]float64{}
	for _, v := range f.checkedIn {
		r := get(v.SalesmanID)
		r.Attempted++
		r.Completed++
		if v.AccuracyM != nil {
			acc[v.SalesmanID] = append(acc[v.SalesmanID], *v.AccuracyM)
			if *v.AccuracyM > threshold {
				r.PoorAccuracy++
			}
		}
		if d := v.DurationMinutes(); d != nil {
			r.TotalDurationMin += *d
		}
		if r.FirstCheckIn == nil || v.CheckInTime.Before(*r.FirstCheckIn) {
			t := *v.CheckInTime
			r.FirstCheckIn = &t
		}
		if v.CheckOutTime != nil && (r.LastCheckOut == nil || v.CheckOutTime.After(*r.LastCheckOut)) {
			t := *v.CheckOutTime
			r.LastCheckOut = &t
		}
	}

	out := make([]model.SummaryRow, 0, len(rows))
	for _, r := range rows {
		r.Missed = missedCount(r.Planned, r.Completed)
		if r.Planned > 0 {
			r.CompletionPct = float64(r.Planned-r.Missed) / float64(r.Planned) * 100
		}
		if r.Completed > 0 {
			r.AvgDurationMin = float64(r.TotalDurationMin) / float64(r.Completed)
		}
		r.AvgAccuracyM = avgPositive(acc[r.SalesmanID])
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SalesmanID < out[j].SalesmanID })
	return out
}

func (s Snapshot) customerSummary(f fold, q model.VisitQuery) []model.CustomerSummaryRow {
	names := map[string]string{}
	for _, c := range s.Customers {
		names[c.ID] = c.Name
	}
	rows := map[string]*model.CustomerSummaryRow{}
	get := func(sm, cust string) *model.CustomerSummaryRow {
		key := sm + "|" + cust
		r, ok := rows[key]
		if !ok {
			r = &model.CustomerSummaryRow{SalesmanID: sm, CustomerID: cust, Customer: names[cust]}
			rows[key] = r
		}
		return r
	}
	for _, dv := range f.due {
		get(dv.SalesmanID, dv.CustomerID).Planned++
	}
	for _, v := range f.checkedIn {
		get(v.SalesmanID, v.CustomerID).Completed++
	}
	out := make([]model.CustomerSummaryRow, 0, len(rows))
	for _, r := range rows {
		r.Missed = missedCount(r.Planned, r.Completed)
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SalesmanID != out[j].SalesmanID {
			return out[i].SalesmanID < out[j].SalesmanID
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	return out
}

// Coverage reports, for every enabled customer, whether and how often they
// were visited in range. Customers with zero visits still appear.
func (s Snapshot) Coverage(q model.VisitQuery) []model.CoverageRow {
	f := s.fold(q)
	byCust := map[string]*model.CoverageRow{}
	var out []*model.CoverageRow
	for _, c := range s.Customers {
		if c.Disabled {
			continue
		}
		if q.CustomerID != "" && c.ID != q.CustomerID {
			continue
		}
		r := &model.CoverageRow{
			CustomerID:    c.ID,
			Customer:      c.Name,
			Territory:     c.Territory,
			CustomerGroup: c.CustomerGroup,
		}
		byCust[c.ID] = r
		out = append(out, r)
	}
	for _, v := range f.checkedIn {
		r, ok := byCust[v.CustomerID]
		if !ok {
			continue
		}
		d, _ := checkInDate(v)
		r.Visited = true
		r.VisitCount++
		if r.LastVisitDate == nil || d.After(*r.LastVisitDate) {
			day := d
			r.LastVisitDate = &day
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	rows := make([]model.CoverageRow, len(out))
	for i, r := range out {
		rows[i] = *r
	}
	return rows
}

// DayStatOn computes the calendar cell for one date; used by check-out
// notifications to push the refreshed cell to subscribers.
func (s Snapshot) DayStatOn(d model.Date, q model.VisitQuery) model.DayStat {
	cal := s.MonthCalendar(d, q)
	return cal.Days[d.String()]
}
