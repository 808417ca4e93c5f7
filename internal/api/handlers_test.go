package api

import (
    "bytes"
    "encoding/json"
    "fmt"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/anzarahmad52/salesman-journey/internal/config"
)

func newTestServer(t *testing.T) *Server {
    t.Helper()
    var cfg config.Config
    cfg.Geofence.RadiusM = 100
    cfg.Geofence.PoorAccuracyThreshold = 50
    s, err := NewServer(cfg)
    if err != nil { t.Fatalf("NewServer: %v", err) }
    return s
}

func adminReq(method, target string, body []byte) *http.Request {
    var req *http.Request
    if body != nil {
        req = httptest.NewRequest(method, target, bytes.NewReader(body))
        req.Header.Set("Content-Type", "application/json")
    } else {
        req = httptest.NewRequest(method, target, nil)
    }
    req.Header.Set("X-Tenant-Id", "t_test")
    req.Header.Set("X-Role", "admin")
    return req
}

func TestHealthReady(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
    if rr.Code != 200 { t.Fatalf("health: got %d", rr.Code) }
    rr = httptest.NewRecorder()
    s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
    if rr.Code != 200 { t.Fatalf("ready: got %d", rr.Code) }
}

func importCustomers(t *testing.T, s *Server) []string {
    t.Helper()
    body := []byte(`{"tenantId":"t_test","customers":[
        {"externalRef":"C1","name":"Alpha Mart","location":{"lat":24.8607,"lng":67.0011}},
        {"externalRef":"C2","name":"Beta Store"}
    ]}`)
    rr := httptest.NewRecorder()
    s.CustomersHandler(rr, adminReq(http.MethodPost, "/v1/customers", body))
    if rr.Code != http.StatusAccepted { t.Fatalf("import: got %d body %s", rr.Code, rr.Body.String()) }

    rr = httptest.NewRecorder()
    s.CustomersHandler(rr, adminReq(http.MethodGet, "/v1/customers", nil))
    if rr.Code != 200 { t.Fatalf("list customers: got %d", rr.Code) }
    var list struct {
        Items []struct {
            ID          string `json:"id"`
            ExternalRef string `json:"externalRef"`
        } `json:"items"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil { t.Fatal(err) }
    if len(list.Items) != 2 { t.Fatalf("want 2 customers, got %d", len(list.Items)) }
    ids := make([]string, 2)
    for _, it := range list.Items {
        if it.ExternalRef == "C1" { ids[0] = it.ID } else { ids[1] = it.ID }
    }
    return ids
}

func TestCustomersImportDedup(t *testing.T) {
    s := newTestServer(t)
    importCustomers(t, s)
    body := []byte(`{"tenantId":"t_test","customers":[{"externalRef":"C1","name":"Alpha Mart"}]}`)
    rr := httptest.NewRecorder()
    s.CustomersHandler(rr, adminReq(http.MethodPost, "/v1/customers", body))
    if rr.Code != http.StatusAccepted { t.Fatalf("re-import: got %d", rr.Code) }
    var res struct {
        Created int `json:"created"`
        Skipped int `json:"skipped"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &res)
    if res.Created != 0 || res.Skipped != 1 {
        t.Fatalf("re-import: created=%d skipped=%d", res.Created, res.Skipped)
    }
}

func createPlan(t *testing.T, s *Server, customerID string) string {
    t.Helper()
    body := []byte(fmt.Sprintf(`{
        "salesmanId":"s-1","cycleWeeks":1,
        "startDate":"2025-01-06","cycleAnchorDate":"2025-01-06",
        "routeDays":[{"weekNo":1,"weekday":1,"customerId":%q}]
    }`, customerID))
    rr := httptest.NewRecorder()
    s.JourneyPlansHandler(rr, adminReq(http.MethodPost, "/v1/journey-plans", body))
    if rr.Code != http.StatusCreated { t.Fatalf("create plan: got %d body %s", rr.Code, rr.Body.String()) }
    var tpl struct {
        ID string `json:"id"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &tpl)
    if tpl.ID == "" { t.Fatal("plan id missing") }
    return tpl.ID
}

func TestJourneyPlanValidation(t *testing.T) {
    s := newTestServer(t)
    ids := importCustomers(t, s)
    // weekNo 0 is rejected before anything is stored
    body := []byte(fmt.Sprintf(`{
        "salesmanId":"s-1","cycleWeeks":1,"startDate":"2025-01-06",
        "routeDays":[{"weekNo":0,"weekday":1,"customerId":%q}]
    }`, ids[0]))
    rr := httptest.NewRecorder()
    s.JourneyPlansHandler(rr, adminReq(http.MethodPost, "/v1/journey-plans", body))
    if rr.Code != http.StatusUnprocessableEntity { t.Fatalf("bad plan: got %d", rr.Code) }

    // salesman role may not create plans
    body = []byte(fmt.Sprintf(`{
        "salesmanId":"s-1","cycleWeeks":1,"startDate":"2025-01-06",
        "routeDays":[{"weekNo":1,"weekday":1,"customerId":%q}]
    }`, ids[0]))
    req := httptest.NewRequest(http.MethodPost, "/v1/journey-plans", bytes.NewReader(body))
    req.Header.Set("X-Tenant-Id", "t_test")
    req.Header.Set("X-Role", "salesman")
    req.Header.Set("X-Salesman-Id", "s-1")
    rr = httptest.NewRecorder()
    s.JourneyPlansHandler(rr, req)
    if rr.Code != http.StatusForbidden { t.Fatalf("salesman create plan: got %d", rr.Code) }
}

func TestPlanDueDates(t *testing.T) {
    s := newTestServer(t)
    ids := importCustomers(t, s)
    planID := createPlan(t, s, ids[0])

    rr := httptest.NewRecorder()
    s.JourneyPlanByIDHandler(rr, adminReq(http.MethodGet, "/v1/journey-plans/"+planID+"/due?date=2025-01-13", nil))
    if rr.Code != 200 { t.Fatalf("due: got %d body %s", rr.Code, rr.Body.String()) }
    var due struct {
        Items []struct {
            CustomerID string `json:"customerId"`
            WeekNo     int    `json:"weekNo"`
        } `json:"items"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &due)
    if len(due.Items) != 1 || due.Items[0].CustomerID != ids[0] {
        t.Fatalf("due items: %+v", due.Items)
    }

    // Tuesday has nothing planned
    rr = httptest.NewRecorder()
    s.JourneyPlanByIDHandler(rr, adminReq(http.MethodGet, "/v1/journey-plans/"+planID+"/due?date=2025-01-14", nil))
    _ = json.Unmarshal(rr.Body.Bytes(), &due)
    if len(due.Items) != 0 { t.Fatalf("tuesday should be empty: %+v", due.Items) }
}

func generateVisit(t *testing.T, s *Server, date string) string {
    t.Helper()
    rr := httptest.NewRecorder()
    s.VisitsGenerateHandler(rr, adminReq(http.MethodPost, "/v1/visits/generate", []byte(`{"date":"`+date+`"}`)))
    if rr.Code != 200 { t.Fatalf("generate: got %d body %s", rr.Code, rr.Body.String()) }

    rr = httptest.NewRecorder()
    s.VisitsHandler(rr, adminReq(http.MethodGet, "/v1/visits?from="+date+"&to="+date, nil))
    if rr.Code != 200 { t.Fatalf("list visits: got %d body %s", rr.Code, rr.Body.String()) }
    var list struct {
        Items []struct {
            ID string `json:"id"`
        } `json:"items"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &list)
    if len(list.Items) != 1 { t.Fatalf("want 1 visit, got %d", len(list.Items)) }
    return list.Items[0].ID
}

func TestGenerateVisitsIdempotent(t *testing.T) {
    s := newTestServer(t)
    ids := importCustomers(t, s)
    createPlan(t, s, ids[0])

    rr := httptest.NewRecorder()
    s.VisitsGenerateHandler(rr, adminReq(http.MethodPost, "/v1/visits/generate", []byte(`{"date":"2025-01-13"}`)))
    var res struct {
        Created int `json:"created"`
        Skipped int `json:"skipped"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &res)
    if res.Created != 1 || res.Skipped != 0 { t.Fatalf("first generate: %+v", res) }

    rr = httptest.NewRecorder()
    s.VisitsGenerateHandler(rr, adminReq(http.MethodPost, "/v1/visits/generate", []byte(`{"date":"2025-01-13"}`)))
    _ = json.Unmarshal(rr.Body.Bytes(), &res)
    if res.Created != 0 || res.Skipped != 1 { t.Fatalf("second generate: %+v", res) }
}

func TestCheckInLifecycle(t *testing.T) {
    s := newTestServer(t)
    ids := importCustomers(t, s)
    createPlan(t, s, ids[0])
    visitID := generateVisit(t, s, "2025-01-13")

    // ~11m from the customer: inside the fence, good accuracy
    body := []byte(`{"position":{"lat":24.8608,"lng":67.0011}}`)
    rr := httptest.NewRecorder()
    s.VisitByIDHandler(rr, adminReq(http.MethodPost, "/v1/visits/"+visitID+"/check-in", body))
    if rr.Code != 200 { t.Fatalf("check-in: got %d body %s", rr.Code, rr.Body.String()) }
    var vv struct {
        State        string `json:"state"`
        AccuracyFlag string `json:"accuracyFlag"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &vv)
    if vv.State != "checked_in" { t.Fatalf("state: %s", vv.State) }
    if vv.AccuracyFlag != "good" { t.Fatalf("accuracy flag: %s", vv.AccuracyFlag) }

    // double check-in conflicts
    rr = httptest.NewRecorder()
    s.VisitByIDHandler(rr, adminReq(http.MethodPost, "/v1/visits/"+visitID+"/check-in", body))
    if rr.Code != http.StatusConflict { t.Fatalf("double check-in: got %d", rr.Code) }

    // check-out
    rr = httptest.NewRecorder()
    s.VisitByIDHandler(rr, adminReq(http.MethodPost, "/v1/visits/"+visitID+"/check-out", []byte(`{"outcome":"sale"}`)))
    if rr.Code != 200 { t.Fatalf("check-out: got %d body %s", rr.Code, rr.Body.String()) }
    var out struct {
        State   string `json:"state"`
        Outcome string `json:"outcome"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &out)
    if out.State != "checked_out" { t.Fatalf("state after check-out: %s", out.State) }
    if out.Outcome != "sale" { t.Fatalf("outcome: %s", out.Outcome) }

    // check-out again conflicts
    rr = httptest.NewRecorder()
    s.VisitByIDHandler(rr, adminReq(http.MethodPost, "/v1/visits/"+visitID+"/check-out", nil))
    if rr.Code != http.StatusConflict { t.Fatalf("double check-out: got %d", rr.Code) }
}

func TestCheckInOutOfRange(t *testing.T) {
    s := newTestServer(t)
    ids := importCustomers(t, s)
    createPlan(t, s, ids[0])
    visitID := generateVisit(t, s, "2025-01-13")

    // ~1.5km away
    body := []byte(`{"position":{"lat":24.8741,"lng":67.0011}}`)
    rr := httptest.NewRecorder()
    s.VisitByIDHandler(rr, adminReq(http.MethodPost, "/v1/visits/"+visitID+"/check-in", body))
    if rr.Code != http.StatusUnprocessableEntity { t.Fatalf("out of range: got %d body %s", rr.Code, rr.Body.String()) }
    var prob struct {
        Title     string  `json:"title"`
        DistanceM float64 `json:"distanceM"`
        RadiusM   float64 `json:"radiusM"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &prob)
    if prob.Title != "Out of range" { t.Fatalf("title: %s", prob.Title) }
    if prob.RadiusM != 100 { t.Fatalf("radius: %v", prob.RadiusM) }
    if prob.DistanceM < 1000 { t.Fatalf("distance: %v", prob.DistanceM) }

    // nothing was recorded
    rr = httptest.NewRecorder()
    s.VisitByIDHandler(rr, adminReq(http.MethodGet, "/v1/visits/"+visitID, nil))
    var vv struct {
        State string `json:"state"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &vv)
    if vv.State != "not_started" { t.Fatalf("state after rejection: %s", vv.State) }

    // check-out before check-in conflicts
    rr = httptest.NewRecorder()
    s.VisitByIDHandler(rr, adminReq(http.MethodPost, "/v1/visits/"+visitID+"/check-out", nil))
    if rr.Code != http.StatusConflict { t.Fatalf("check-out before check-in: got %d", rr.Code) }
}

func TestCheckInGeolocationFailure(t *testing.T) {
    s := newTestServer(t)
    ids := importCustomers(t, s)
    createPlan(t, s, ids[0])
    visitID := generateVisit(t, s, "2025-01-13")

    rr := httptest.NewRecorder()
    s.VisitByIDHandler(rr, adminReq(http.MethodPost, "/v1/visits/"+visitID+"/check-in", []byte(`{"failure":"denied"}`)))
    if rr.Code != http.StatusUnprocessableEntity { t.Fatalf("denied: got %d", rr.Code) }
}

func TestCheckInRBAC(t *testing.T) {
    s := newTestServer(t)
    ids := importCustomers(t, s)
    createPlan(t, s, ids[0])
    visitID := generateVisit(t, s, "2025-01-13")

    body := []byte(`{"position":{"lat":24.8607,"lng":67.0011}}`)
    req := httptest.NewRequest(http.MethodPost, "/v1/visits/"+visitID+"/check-in", bytes.NewReader(body))
    req.Header.Set("X-Tenant-Id", "t_test")
    req.Header.Set("X-Role", "salesman")
    req.Header.Set("X-Salesman-Id", "s-2")
    rr := httptest.NewRecorder()
    s.VisitByIDHandler(rr, req)
    if rr.Code != http.StatusForbidden { t.Fatalf("other salesman check-in: got %d", rr.Code) }

    // the assigned salesman may
    req = httptest.NewRequest(http.MethodPost, "/v1/visits/"+visitID+"/check-in", bytes.NewReader(body))
    req.Header.Set("X-Tenant-Id", "t_test")
    req.Header.Set("X-Role", "salesman")
    req.Header.Set("X-Salesman-Id", "s-1")
    rr = httptest.NewRecorder()
    s.VisitByIDHandler(rr, req)
    if rr.Code != 200 { t.Fatalf("own salesman check-in: got %d body %s", rr.Code, rr.Body.String()) }
}

func TestCalendarAndReports(t *testing.T) {
    s := newTestServer(t)
    ids := importCustomers(t, s)

    // Check-in timestamps are wall clock, so the scenario anchors on today:
    // a weekly plan whose route day is today's weekday.
    today := time.Now().UTC()
    todayStr := today.Format("2006-01-02")
    start := today.AddDate(0, 0, -28).Format("2006-01-02")
    body := []byte(fmt.Sprintf(`{
        "salesmanId":"s-1","cycleWeeks":1,
        "startDate":%q,"cycleAnchorDate":%q,
        "routeDays":[{"weekNo":1,"weekday":%d,"customerId":%q}]
    }`, start, start, int(today.Weekday()), ids[0]))
    rr := httptest.NewRecorder()
    s.JourneyPlansHandler(rr, adminReq(http.MethodPost, "/v1/journey-plans", body))
    if rr.Code != http.StatusCreated { t.Fatalf("create plan: got %d body %s", rr.Code, rr.Body.String()) }

    visitID := generateVisit(t, s, todayStr)
    rr = httptest.NewRecorder()
    s.VisitByIDHandler(rr, adminReq(http.MethodPost, "/v1/visits/"+visitID+"/check-in", []byte(`{"position":{"lat":24.8608,"lng":67.0011}}`)))
    if rr.Code != 200 { t.Fatalf("check-in: got %d", rr.Code) }

    month := today.Format("2006-01")
    rr = httptest.NewRecorder()
    s.CalendarHandler(rr, adminReq(http.MethodGet, "/v1/calendar?month="+month, nil))
    if rr.Code != 200 { t.Fatalf("calendar: got %d body %s", rr.Code, rr.Body.String()) }
    var cal struct {
        Month string `json:"month"`
        Days  map[string]struct {
            Planned   int `json:"planned"`
            Completed int `json:"completed"`
            Missed    int `json:"missed"`
        } `json:"days"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &cal)
    if cal.Month != month { t.Fatalf("month: %s want %s", cal.Month, month) }
    if len(cal.Days) < 28 { t.Fatalf("want a full month of day cells, got %d", len(cal.Days)) }
    dToday := cal.Days[todayStr]
    if dToday.Planned != 1 || dToday.Completed != 1 || dToday.Missed != 0 {
        t.Fatalf("today %s: %+v", todayStr, dToday)
    }

    first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
    last := first.AddDate(0, 1, -1)
    rr = httptest.NewRecorder()
    s.ReportVisitsHandler(rr, adminReq(http.MethodGet,
        "/v1/reports/visits?from="+first.Format("2006-01-02")+"&to="+last.Format("2006-01-02")+"&view=summary", nil))
    if rr.Code != 200 { t.Fatalf("summary report: got %d body %s", rr.Code, rr.Body.String()) }
    var sum struct {
        Items []struct {
            SalesmanID string `json:"salesmanId"`
            Planned    int    `json:"planned"`
            Completed  int    `json:"completed"`
        } `json:"items"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &sum)
    if len(sum.Items) != 1 || sum.Items[0].Completed != 1 {
        t.Fatalf("summary rows: %+v", sum.Items)
    }
    if sum.Items[0].Planned < 1 { t.Fatalf("planned: %+v", sum.Items[0]) }

    rr = httptest.NewRecorder()
    s.ReportCoverageHandler(rr, adminReq(http.MethodGet,
        "/v1/reports/coverage?from="+first.Format("2006-01-02")+"&to="+last.Format("2006-01-02"), nil))
    if rr.Code != 200 { t.Fatalf("coverage: got %d", rr.Code) }
    var cov struct {
        Items []struct {
            CustomerID string `json:"customerId"`
            Visited    bool   `json:"visited"`
        } `json:"items"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &cov)
    visited := false
    for _, c := range cov.Items {
        if c.CustomerID == ids[0] && c.Visited { visited = true }
    }
    if !visited { t.Fatalf("coverage should mark %s visited: %+v", ids[0], cov.Items) }
}

func TestReportInvalidQuery(t *testing.T) {
    s := newTestServer(t)
    rr := httptest.NewRecorder()
    s.ReportVisitsHandler(rr, adminReq(http.MethodGet, "/v1/reports/visits?from=2025-02-01&to=2025-01-01", nil))
    if rr.Code != http.StatusBadRequest { t.Fatalf("inverted range: got %d", rr.Code) }
    rr = httptest.NewRecorder()
    s.ReportVisitsHandler(rr, adminReq(http.MethodGet, "/v1/reports/visits?status=bogus", nil))
    if rr.Code != http.StatusBadRequest { t.Fatalf("bad status: got %d", rr.Code) }
}

func TestSubscriptionsCRUD(t *testing.T) {
    s := newTestServer(t)
    body := []byte(`{"tenantId":"t_test","url":"https://example.com/hook","events":["visit.checked_in"],"secret":"shh"}`)
    rr := httptest.NewRecorder()
    s.SubscriptionsHandler(rr, adminReq(http.MethodPost, "/v1/subscriptions", body))
    if rr.Code != http.StatusCreated { t.Fatalf("create sub: got %d body %s", rr.Code, rr.Body.String()) }
    var sub struct {
        ID string `json:"id"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &sub)

    rr = httptest.NewRecorder()
    s.SubscriptionsHandler(rr, adminReq(http.MethodGet, "/v1/subscriptions", nil))
    if rr.Code != 200 { t.Fatalf("list subs: got %d", rr.Code) }

    rr = httptest.NewRecorder()
    s.SubscriptionByIDHandler(rr, adminReq(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
    if rr.Code != http.StatusNoContent { t.Fatalf("delete sub: got %d", rr.Code) }
}

func TestWebhookDeliveriesAdminOnly(t *testing.T) {
    s := newTestServer(t)
    req := httptest.NewRequest(http.MethodGet, "/v1/admin/webhook-deliveries", nil)
    req.Header.Set("X-Tenant-Id", "t_test")
    req.Header.Set("X-Role", "salesman")
    rr := httptest.NewRecorder()
    s.WebhookDeliveriesHandler(rr, req)
    if rr.Code != http.StatusForbidden { t.Fatalf("non-admin: got %d", rr.Code) }

    rr = httptest.NewRecorder()
    s.WebhookDeliveriesHandler(rr, adminReq(http.MethodGet, "/v1/admin/webhook-deliveries", nil))
    if rr.Code != 200 { t.Fatalf("admin: got %d", rr.Code) }
}

func TestServerCarriesConfiguredAuthAndWebhooks(t *testing.T) {
    var cfg config.Config
    cfg.Auth.Mode = "HMAC"
    cfg.Auth.HMACSecret = "sekrit"
    cfg.Webhooks.MaxAttempts = 4
    s, err := NewServer(cfg)
    if err != nil { t.Fatalf("NewServer: %v", err) }
    if s.Auth.Mode != "hmac" || string(s.Auth.HMACSecret) != "sekrit" {
        t.Fatalf("verifier not built from config: mode=%q", s.Auth.Mode)
    }
    if w := s.NewWebhookWorker(); w.MaxAttempts != 4 {
        t.Fatalf("worker max attempts = %d, want 4", w.MaxAttempts)
    }
}
