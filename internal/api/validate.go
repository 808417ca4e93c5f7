package api

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/anzarahmad52/salesman-journey/internal/model"
)

// parseVisitQuery builds the shared report filter from query params.
// from/to default to the current month when omitted.
func parseVisitQuery(q url.Values) (model.VisitQuery, error) {
	var vq model.VisitQuery
	if v := q.Get("from"); v != "" {
		d, err := model.ParseDate(v)
		if err != nil {
			return vq, err
		}
		vq.From = d
	}
	if v := q.Get("to"); v != "" {
		d, err := model.ParseDate(v)
		if err != nil {
			return vq, err
		}
		vq.To = d
	}
	if vq.From.IsZero() && vq.To.IsZero() {
		today := model.DateOf(time.Now())
		vq.From = today.MonthStart()
		vq.To = vq.From.AddDays(vq.From.DaysInMonth() - 1)
	}
	if vq.From.IsZero() || vq.To.IsZero() {
		return vq, fmt.Errorf("from and to must be given together")
	}
	if vq.To.Before(vq.From) {
		return vq, fmt.Errorf("to %s precedes from %s", vq.To, vq.From)
	}
	vq.SalesmanID = q.Get("salesmanId")
	vq.PlanID = q.Get("journeyPlanId")
	vq.CustomerID = q.Get("customerId")

	switch st := q.Get("status"); st {
	case "", model.StatusPlannedOnly, model.StatusCompletedOnly, model.StatusMissedOnly:
		vq.Status = st
	default:
		return vq, fmt.Errorf("invalid status %q (want planned, completed, or missed)", st)
	}
	view := q.Get("view")
	if view == "" {
		view = q.Get("viewMode")
	}
	switch view {
	case "", model.ViewDetail, model.ViewSummary, model.ViewCustomerSummary:
		vq.ViewMode = view
	default:
		return vq, fmt.Errorf("invalid view %q", view)
	}
	// poorAccuracyThreshold is the calendar's spelling of the same knob
	v := q.Get("accuracyThreshold")
	if v == "" {
		v = q.Get("poorAccuracyThreshold")
	}
	if v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return vq, fmt.Errorf("invalid accuracyThreshold %q", v)
		}
		vq.AccuracyThreshold = f
	}
	return vq, nil
}

// parseMonth parses YYYY-MM into the first day of that month.
func parseMonth(s string) (model.Date, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return model.Date{}, fmt.Errorf("invalid month %q (want YYYY-MM)", s)
	}
	return model.DateOf(t), nil
}
