package schedule

import (
	"fmt"

	"github.com/anzarahmad52/salesman-journey/internal/model"
)

// ValidatePlanIn checks a plan template payload before it is stored. Hard
// failures reject the write; week-number overflow is handled separately as a
// soft flag (see FlagRows) so shrinking cycleWeeks never destroys rows.
func ValidatePlanIn(in model.JourneyPlanIn) error {
	if in.SalesmanID == "" {
		return fmt.Errorf("salesmanId required")
	}
	if in.CycleWeeks < 1 {
		return fmt.Errorf("cycleWeeks must be >= 1, got %d", in.CycleWeeks)
	}
	if !in.EndDate.IsZero() && !in.StartDate.IsZero() && in.EndDate.Before(in.StartDate) {
		return fmt.Errorf("endDate %s precedes startDate %s", in.EndDate, in.StartDate)
	}
	if !in.CycleAnchorDate.IsZero() && !in.StartDate.IsZero() && in.StartDate.Before(in.CycleAnchorDate) {
		return fmt.Errorf("cycleAnchorDate %s is after startDate %s", in.CycleAnchorDate, in.StartDate)
	}
	seen := map[string]int{}
	for i, rd := range in.RouteDays {
		if rd.CustomerID == "" {
			return fmt.Errorf("routeDays[%d]: customerId required", i)
		}
		if rd.Weekday < 0 || rd.Weekday > 6 {
			return fmt.Errorf("routeDays[%d]: weekday %d out of range 0-6", i, rd.Weekday)
		}
		if rd.WeekNo < 1 {
			return fmt.Errorf("routeDays[%d]: weekNo must be >= 1, got %d", i, rd.WeekNo)
		}
		// The same customer may not repeat on the same weekday, even in a
		// different week of the cycle: the rep would never know which week
		// "this Tuesday" belongs to when standing at the door.
		key := fmt.Sprintf("%d/%s", rd.Weekday, rd.CustomerID)
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("routeDays[%d]: customer %s already scheduled on %s (row %d)",
				i, rd.CustomerID, model.WeekdayName(rd.Weekday), prev)
		}
		seen[key] = i
	}
	return nil
}

// FlagRows returns the ids of route days whose weekNo exceeds the template's
// cycleWeeks. Such rows typically appear after cycleWeeks is shrunk on an
// existing template; they are kept but excluded from expansion.
func FlagRows(tpl model.JourneyPlan) []string {
	var flagged []string
	for _, rd := range tpl.RouteDays {
		if rd.WeekNo > tpl.CycleWeeks {
			flagged = append(flagged, rd.ID)
		}
	}
	return flagged
}

// Status derives the display status of a template from its flags and date
// window relative to today. needs_correction wins over everything except an
// explicit disable.
func Status(tpl model.JourneyPlan, today model.Date) string {
	if tpl.Disabled {
		return model.PlanInactive
	}
	if len(FlagRows(tpl)) > 0 {
		return model.PlanNeedsCorrection
	}
	if tpl.StartDate.IsZero() || tpl.CycleAnchorDate.IsZero() {
		return model.PlanDraft
	}
	if today.Before(tpl.StartDate) {
		return model.PlanScheduled
	}
	if !tpl.EndDate.IsZero() && today.After(tpl.EndDate) {
		return model.PlanExpired
	}
	return model.PlanActive
}

// Normalize fills derived fields of a stored template: defaulted anchor,
// weekly frequency, flagged rows, and status.
func Normalize(tpl *model.JourneyPlan, today model.Date) {
	tpl.Frequency = "weekly"
	if tpl.CycleAnchorDate.IsZero() {
		tpl.CycleAnchorDate = tpl.StartDate
	}
	tpl.FlaggedRows = FlagRows(*tpl)
	tpl.Status = Status(*tpl, today)
}
