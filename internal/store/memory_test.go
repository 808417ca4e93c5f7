package store

import (
	"context"
	"testing"
	"time"

	"github.com/anzarahmad52/salesman-journey/internal/model"
)

func TestMemoryImportCustomersDedup(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	loc := &model.GeoPoint{Lat: 24.7, Lng: 46.6}
	_, created, skipped, err := m.ImportCustomers(ctx, "t1", []model.CustomerIn{
		{ExternalRef: "CUST-001", Name: "Acme", Location: loc},
		{ExternalRef: "CUST-002", Name: "Globex"},
	})
	if err != nil || created != 2 || skipped != 0 {
		t.Fatalf("first import: %d/%d err=%v", created, skipped, err)
	}
	_, created, skipped, err = m.ImportCustomers(ctx, "t1", []model.CustomerIn{
		{ExternalRef: "CUST-001", Name: "Acme again"},
		{ExternalRef: "CUST-003", Name: "Initech"},
	})
	if err != nil || created != 1 || skipped != 1 {
		t.Fatalf("second import: %d/%d err=%v", created, skipped, err)
	}
	out, _, err := m.ListCustomers(ctx, "t1", "", "", 10)
	if err != nil || len(out) != 3 {
		t.Fatalf("list: %d err=%v", len(out), err)
	}
}

func TestMemoryCustomersTenantIsolation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.ImportCustomers(ctx, "t1", []model.CustomerIn{{Name: "Acme"}})
	out, _, _ := m.ListCustomers(ctx, "t1", "", "", 10)
	if len(out) != 1 {
		t.Fatalf("t1 list = %d", len(out))
	}
	if _, err := m.GetCustomer(ctx, "t2", out[0].ID); err != ErrNotFound {
		t.Fatalf("cross-tenant get: %v", err)
	}
}

func TestMemoryJourneyPlanCRUD(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	in := model.JourneyPlanIn{
		SalesmanID: "sm-1",
		CycleWeeks: 2,
		StartDate:  model.NewDate(2025, time.January, 6),
		RouteDays: []model.RouteDayIn{
			{WeekNo: 1, Weekday: 1, CustomerID: "cust-a"},
			{WeekNo: 2, Weekday: 1, CustomerID: "cust-b"},
		},
	}
	tpl, err := m.CreateJourneyPlan(ctx, "t1", in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tpl.Frequency != "weekly" || !tpl.CycleAnchorDate.Equal(in.StartDate) {
		t.Fatalf("normalization missing: %+v", tpl)
	}
	if len(tpl.RouteDays) != 2 || tpl.RouteDays[0].ID == "" {
		t.Fatalf("route days = %+v", tpl.RouteDays)
	}

	// Shrink the cycle: existing week-2 row stays but gets flagged.
	in.CycleWeeks = 1
	got, err := m.UpdateJourneyPlan(ctx, "t1", tpl.ID, in)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Status != model.PlanNeedsCorrection || len(got.FlaggedRows) != 1 {
		t.Fatalf("after shrink: status=%s flagged=%v", got.Status, got.FlaggedRows)
	}
	if len(got.RouteDays) != 2 {
		t.Fatalf("rows dropped on shrink: %d", len(got.RouteDays))
	}

	if err := m.DeleteJourneyPlan(ctx, "t1", tpl.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.GetJourneyPlan(ctx, "t1", tpl.ID); err != ErrNotFound {
		t.Fatalf("get after delete: %v", err)
	}
}

func TestMemoryGenerateVisitsDedup(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	day := model.NewDate(2025, time.January, 6)
	due := []model.DueVisit{
		{PlanID: "jp-1", SalesmanID: "sm-1", CustomerID: "cust-a", Date: day},
		{PlanID: "jp-1", SalesmanID: "sm-1", CustomerID: "cust-b", Date: day},
	}
	created, skipped, err := m.GenerateVisits(ctx, "t1", due)
	if err != nil || created != 2 || skipped != 0 {
		t.Fatalf("first generate: %d/%d err=%v", created, skipped, err)
	}
	created, skipped, err = m.GenerateVisits(ctx, "t1", due)
	if err != nil || created != 0 || skipped != 2 {
		t.Fatalf("regenerate: %d/%d err=%v", created, skipped, err)
	}
}

func TestMemoryListVisitsFilters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	d1 := model.NewDate(2025, time.January, 6)
	d2 := model.NewDate(2025, time.January, 13)
	m.GenerateVisits(ctx, "t1", []model.DueVisit{
		{SalesmanID: "sm-1", CustomerID: "cust-a", Date: d1},
		{SalesmanID: "sm-1", CustomerID: "cust-a", Date: d2},
		{SalesmanID: "sm-2", CustomerID: "cust-b", Date: d1},
	})
	out, _, err := m.ListVisits(ctx, "t1", model.VisitQuery{SalesmanID: "sm-1"}, "", 10)
	if err != nil || len(out) != 2 {
		t.Fatalf("salesman filter: %d err=%v", len(out), err)
	}
	out, _, err = m.ListVisits(ctx, "t1", model.VisitQuery{From: d1, To: d1}, "", 10)
	if err != nil || len(out) != 2 {
		t.Fatalf("date filter: %d err=%v", len(out), err)
	}
}

func TestMemoryUpdateVisitRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	day := model.NewDate(2025, time.January, 6)
	m.GenerateVisits(ctx, "t1", []model.DueVisit{{SalesmanID: "sm-1", CustomerID: "cust-a", Date: day}})
	vs, _, _ := m.ListVisits(ctx, "t1", model.VisitQuery{}, "", 10)
	v := vs[0]
	now := time.Now().UTC()
	acc := 12.5
	v.CheckInTime = &now
	v.AccuracyM = &acc
	v.Location = "24.7, 46.6"
	got, err := m.UpdateVisit(ctx, "t1", v)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.State() != model.VisitCheckedIn || got.AccuracyM == nil {
		t.Fatalf("updated visit = %+v", got)
	}
}

func TestMemorySubscriptionsAndDeliveries(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	s, err := m.CreateSubscription(ctx, model.SubscriptionRequest{
		TenantID: "t1", URL: "https://example.com/hook", Events: []string{"visit.checked_in"}, Secret: "sk",
	})
	if err != nil {
		t.Fatalf("create sub: %v", err)
	}
	subs, err := m.GetSubscriptionsForEvent(ctx, "t1", "visit.checked_in")
	if err != nil || len(subs) != 1 || subs[0].ID != s.ID {
		t.Fatalf("lookup: %v %v", subs, err)
	}
	if subs, _ := m.GetSubscriptionsForEvent(ctx, "t1", "visit.checked_out"); len(subs) != 0 {
		t.Fatal("event filter leaked")
	}

	id, err := m.EnqueueWebhook(ctx, "t1", s.ID, "visit.checked_in", s.URL, "sk", []byte(`{}`))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	if err != nil || len(due) != 1 || due[0].ID != id {
		t.Fatalf("due: %v %v", due, err)
	}
	if err := m.MarkWebhookDelivery(ctx, id, true, nil, "", 200, 12); err != nil {
		t.Fatalf("mark: %v", err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatal("delivered item still due")
	}
	if err := m.RetryWebhookDelivery(ctx, "t1", id); err != nil {
		t.Fatalf("retry: %v", err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 {
		t.Fatal("retried item not due")
	}
}

func TestMemoryDeleteSubscriptionMissing(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	s, err := m.CreateSubscription(ctx, model.SubscriptionRequest{
		TenantID: "t1", URL: "https://example.com/hook", Events: []string{"visit.checked_in"},
	})
	if err != nil {
		t.Fatalf("create sub: %v", err)
	}
	if err := m.DeleteSubscription(ctx, "t1", s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.DeleteSubscription(ctx, "t1", s.ID); err != ErrNotFound {
		t.Fatalf("second delete: %v, want ErrNotFound", err)
	}
	if err := m.DeleteSubscription(ctx, "t1", "nope"); err != ErrNotFound {
		t.Fatalf("unknown id: %v, want ErrNotFound", err)
	}
}

func TestMemoryLoadUniverseReturnsEveryPlan(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	day := model.NewDate(2025, time.January, 6)
	for i := 0; i < 520; i++ {
		_, err := m.CreateJourneyPlan(ctx, "t1", model.JourneyPlanIn{
			SalesmanID: "sm-1",
			CycleWeeks: 1,
			StartDate:  day,
			RouteDays:  []model.RouteDayIn{{WeekNo: 1, Weekday: 1, CustomerID: "cust-a"}},
		})
		if err != nil {
			t.Fatalf("create plan %d: %v", i, err)
		}
	}
	plans, _, _, err := m.LoadUniverse(ctx, "t1", model.VisitQuery{From: day, To: day})
	if err != nil {
		t.Fatalf("load universe: %v", err)
	}
	if len(plans) != 520 {
		t.Fatalf("plans = %d, want 520", len(plans))
	}
}
