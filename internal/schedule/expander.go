// Package schedule expands journey plan templates into the set of customer
// visits due on a calendar date. A template is a weekly rotation over
// cycleWeeks weeks anchored to cycleAnchorDate; week N of the cycle repeats
// every cycleWeeks*7 days.
package schedule

import (
	"sort"

	"github.com/anzarahmad52/salesman-journey/internal/model"
)

// floorDiv is integer division rounding toward negative infinity, so dates
// before the anchor produce negative week counts instead of truncating to 0.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// mod is the true (non-negative) modulo.
func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// EffectiveWeek returns the 1-based week-in-cycle for a date, or false when
// the template has no anchor or the date precedes it.
func EffectiveWeek(tpl model.JourneyPlan, d model.Date) (int, bool) {
	if tpl.CycleAnchorDate.IsZero() || d.Before(tpl.CycleAnchorDate) {
		return 0, false
	}
	cw := tpl.CycleWeeks
	if cw < 1 {
		cw = 1
	}
	weeks := floorDiv(d.DaysSince(tpl.CycleAnchorDate), 7)
	return mod(weeks, cw) + 1, true
}

// AppliesOn reports whether the template is in effect on the given date:
// not disabled, anchored, started, and not past its end date. This is the
// date-window check the aggregation engine uses; it is independent of the
// wall-clock Status shown to users.
func AppliesOn(tpl model.JourneyPlan, d model.Date) bool {
	if tpl.Disabled || tpl.CycleAnchorDate.IsZero() || tpl.StartDate.IsZero() {
		return false
	}
	if d.Before(tpl.StartDate) {
		return false
	}
	if !tpl.EndDate.IsZero() && d.After(tpl.EndDate) {
		return false
	}
	return true
}

// DueVisitsOn expands one template for one date. Rows whose weekNo exceeds
// cycleWeeks are skipped (they are flagged on the template, not deleted).
// Output is ordered by customer id for determinism.
func DueVisitsOn(tpl model.JourneyPlan, d model.Date) []model.DueVisit {
	if !AppliesOn(tpl, d) {
		return nil
	}
	week, ok := EffectiveWeek(tpl, d)
	if !ok {
		return nil
	}
	weekday := d.Weekday()

	var due []model.DueVisit
	for _, rd := range tpl.RouteDays {
		if rd.WeekNo > tpl.CycleWeeks {
			continue
		}
		if rd.WeekNo != week || rd.Weekday != weekday {
			continue
		}
		due = append(due, model.DueVisit{
			PlanID:     tpl.ID,
			SalesmanID: tpl.SalesmanID,
			CustomerID: rd.CustomerID,
			Date:       d,
			WeekNo:     rd.WeekNo,
			Weekday:    rd.Weekday,
		})
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CustomerID < due[j].CustomerID })
	return due
}

// DueVisitsRange expands one template over an inclusive date range, ordered
// by date then customer id.
func DueVisitsRange(tpl model.JourneyPlan, from, to model.Date) []model.DueVisit {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil
	}
	var due []model.DueVisit
	for d := from; !d.After(to); d = d.AddDays(1) {
		due = append(due, DueVisitsOn(tpl, d)...)
	}
	return due
}

// DueVisitsAll expands every template that applies, ordered by date,
// salesman, then customer.
func DueVisitsAll(tpls []model.JourneyPlan, from, to model.Date) []model.DueVisit {
	var due []model.DueVisit
	for _, tpl := range tpls {
		due = append(due, DueVisitsRange(tpl, from, to)...)
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].Date.Equal(due[j].Date) {
			return due[i].Date.Before(due[j].Date)
		}
		if due[i].SalesmanID != due[j].SalesmanID {
			return due[i].SalesmanID < due[j].SalesmanID
		}
		return due[i].CustomerID < due[j].CustomerID
	})
	return due
}
