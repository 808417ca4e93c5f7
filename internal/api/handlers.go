package api

import (
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/anzarahmad52/salesman-journey/internal/buildinfo"
    "github.com/anzarahmad52/salesman-journey/internal/metrics"
    "github.com/anzarahmad52/salesman-journey/internal/model"
    "github.com/anzarahmad52/salesman-journey/internal/report"
    "github.com/anzarahmad52/salesman-journey/internal/schedule"
    "github.com/anzarahmad52/salesman-journey/internal/store"
    "github.com/anzarahmad52/salesman-journey/internal/visit"
    "github.com/anzarahmad52/salesman-journey/internal/webhooks"
)

// CustomersHandler handles POST/GET /v1/customers
func (s *Server) CustomersHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        pr := s.getPrincipal(r)
        if !pr.CanManagePlans() { writeProblem(w, 403, "Forbidden", "supervisor or admin required", r.URL.Path); return }
        var req struct {
            TenantID  string             `json:"tenantId"`
            Customers []model.CustomerIn `json:"customers"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.TenantID == "" { _, req.TenantID = s.withTenant(r) }
        for i, c := range req.Customers {
            if c.Name == "" {
                writeProblem(w, http.StatusBadRequest, "Invalid customer", fmt.Sprintf("customers[%d]: name required", i), r.URL.Path)
                return
            }
        }
        imp, created, skipped, err := s.Store.ImportCustomers(r.Context(), req.TenantID, req.Customers)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Import customers failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusAccepted, map[string]any{"importId": imp, "created": created, "skipped": skipped})
    case http.MethodGet:
        _, tenant := s.withTenant(r)
        territory := r.URL.Query().Get("territory")
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListCustomers(r.Context(), tenant, territory, cursor, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List customers failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// JourneyPlansHandler handles POST/GET /v1/journey-plans
func (s *Server) JourneyPlansHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        pr := s.getPrincipal(r)
        if !pr.CanManagePlans() { writeProblem(w, 403, "Forbidden", "supervisor or admin required", r.URL.Path); return }
        var in model.JourneyPlanIn
        if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := schedule.ValidatePlanIn(in); err != nil {
            writeProblem(w, http.StatusUnprocessableEntity, "Invalid journey plan", err.Error(), r.URL.Path)
            return
        }
        _, tenant := s.withTenant(r)
        tpl, err := s.Store.CreateJourneyPlan(r.Context(), tenant, in)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create journey plan failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, tpl)
    case http.MethodGet:
        _, tenant := s.withTenant(r)
        salesmanID := r.URL.Query().Get("salesmanId")
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListJourneyPlans(r.Context(), tenant, salesmanID, cursor, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List journey plans failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// JourneyPlanByIDHandler handles /v1/journey-plans/{id} and /v1/journey-plans/{id}/due
func (s *Server) JourneyPlanByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/journey-plans/")
    if rest == r.URL.Path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]
    _, tenant := s.withTenant(r)

    if len(parts) > 1 && parts[1] == "due" {
        if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
        tpl, err := s.Store.GetJourneyPlan(r.Context(), tenant, id)
        if err != nil {
            writeProblem(w, http.StatusNotFound, "Journey plan not found", err.Error(), r.URL.Path)
            return
        }
        q := r.URL.Query()
        if v := q.Get("date"); v != "" {
            d, err := model.ParseDate(v)
            if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid date", err.Error(), r.URL.Path); return }
            writeJSON(w, http.StatusOK, map[string]any{"items": schedule.DueVisitsOn(tpl, d)})
            return
        }
        vq, err := parseVisitQuery(q)
        if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid range", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": schedule.DueVisitsRange(tpl, vq.From, vq.To)})
        return
    }

    switch r.Method {
    case http.MethodGet:
        tpl, err := s.Store.GetJourneyPlan(r.Context(), tenant, id)
        if err != nil {
            writeProblem(w, http.StatusNotFound, "Journey plan not found", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, tpl)
    case http.MethodPut:
        pr := s.getPrincipal(r)
        if !pr.CanManagePlans() { writeProblem(w, 403, "Forbidden", "supervisor or admin required", r.URL.Path); return }
        var in model.JourneyPlanIn
        if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := schedule.ValidatePlanIn(in); err != nil {
            writeProblem(w, http.StatusUnprocessableEntity, "Invalid journey plan", err.Error(), r.URL.Path)
            return
        }
        tpl, err := s.Store.UpdateJourneyPlan(r.Context(), tenant, id, in)
        if errors.Is(err, store.ErrNotFound) {
            writeProblem(w, http.StatusNotFound, "Journey plan not found", "", r.URL.Path)
            return
        }
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Update journey plan failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, tpl)
    case http.MethodDelete:
        pr := s.getPrincipal(r)
        if !pr.CanManagePlans() { writeProblem(w, 403, "Forbidden", "supervisor or admin required", r.URL.Path); return }
        if err := s.Store.DeleteJourneyPlan(r.Context(), tenant, id); err != nil {
            writeProblem(w, http.StatusNotFound, "Journey plan not found", err.Error(), r.URL.Path)
            return
        }
        w.WriteHeader(http.StatusNoContent)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// VisitsGenerateHandler handles POST /v1/visits/generate: materialize planned
// visit rows for a date from the active templates.
func (s *Server) VisitsGenerateHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    pr := s.getPrincipal(r)
    if !pr.CanManagePlans() { writeProblem(w, 403, "Forbidden", "supervisor or admin required", r.URL.Path); return }
    var req struct {
        Date       string `json:"date"`
        SalesmanID string `json:"salesmanId,omitempty"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    day, err := model.ParseDate(req.Date)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid date", err.Error(), r.URL.Path)
        return
    }
    _, tenant := s.withTenant(r)
    plans := []model.JourneyPlan{}
    cursor := ""
    for {
        page, next, err := s.Store.ListJourneyPlans(r.Context(), tenant, req.SalesmanID, cursor, 500)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List journey plans failed", err.Error(), r.URL.Path)
            return
        }
        plans = append(plans, page...)
        if next == "" { break }
        cursor = next
    }
    due := schedule.DueVisitsAll(plans, day, day)
    created, skipped, err := s.Store.GenerateVisits(r.Context(), tenant, due)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Generate visits failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"date": day, "due": len(due), "created": created, "skipped": skipped})
}

// VisitsHandler handles GET /v1/visits
func (s *Server) VisitsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    vq, err := parseVisitQuery(r.URL.Query())
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error(), r.URL.Path)
        return
    }
    pr := s.getPrincipal(r)
    if pr.Role == "salesman" { vq.SalesmanID = pr.SalesmanID }
    _, tenant := s.withTenant(r)
    cursor := r.URL.Query().Get("cursor")
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, next, err := s.Store.ListVisits(r.Context(), tenant, vq, cursor, limit)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List visits failed", err.Error(), r.URL.Path)
        return
    }
    out := make([]map[string]any, 0, len(items))
    for _, v := range items {
        out = append(out, visitView(v))
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": out, "nextCursor": next})
}

func visitView(v model.Visit) map[string]any {
    m := map[string]any{
        "id": v.ID, "salesmanId": v.SalesmanID, "customerId": v.CustomerID,
        "planDate": v.PlanDate, "state": v.State(),
        "accuracyFlag": visit.AccuracyFlag(v.AccuracyM),
    }
    if v.PlanID != "" { m["journeyPlanId"] = v.PlanID }
    if v.CheckInTime != nil { m["checkInTime"] = v.CheckInTime }
    if v.CheckOutTime != nil { m["checkOutTime"] = v.CheckOutTime }
    if v.Location != "" { m["location"] = v.Location }
    if v.AccuracyM != nil { m["accuracyM"] = *v.AccuracyM }
    if d := v.DurationMinutes(); d != nil { m["durationMin"] = *d }
    if v.Outcome != "" { m["outcome"] = v.Outcome }
    if v.Notes != "" { m["notes"] = v.Notes }
    return m
}

// VisitByIDHandler handles /v1/visits/{id}, /check-in, /check-out, /stream
func (s *Server) VisitByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/visits/")
    if rest == r.URL.Path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]
    _, tenant := s.withTenant(r)

    if len(parts) > 1 {
        switch parts[1] {
        case "check-in":
            s.checkInHandler(w, r, tenant, id)
        case "check-out":
            s.checkOutHandler(w, r, tenant, id)
        case "stream":
            s.visitStreamHandler(w, r, tenant, id)
        default:
            writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        }
        return
    }

    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    v, err := s.Store.GetVisit(r.Context(), tenant, id)
    if err != nil {
        writeProblem(w, http.StatusNotFound, "Visit not found", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, visitView(v))
}

func (s *Server) checkInHandler(w http.ResponseWriter, r *http.Request, tenant, id string) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    v, err := s.Store.GetVisit(r.Context(), tenant, id)
    if err != nil {
        writeProblem(w, http.StatusNotFound, "Visit not found", err.Error(), r.URL.Path)
        return
    }
    pr := s.getPrincipal(r)
    if !pr.ActsFor(v.SalesmanID) {
        writeProblem(w, 403, "Forbidden", "visit belongs to another salesman", r.URL.Path)
        return
    }
    var req model.CheckInRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    cust, err := s.Store.GetCustomer(r.Context(), tenant, v.CustomerID)
    if err != nil {
        writeProblem(w, http.StatusNotFound, "Customer not found", err.Error(), r.URL.Path)
        return
    }

    err = visit.CheckIn(&v, cust, req, s.GeofenceRadiusM, time.Now())
    if err != nil {
        s.rejectCheckIn(w, r, tenant, v, err)
        return
    }

    updated, err := s.Store.UpdateVisit(r.Context(), tenant, v)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Check-in failed", err.Error(), r.URL.Path)
        return
    }
    metrics.CheckIns.WithLabelValues("accepted").Inc()
    if updated.AccuracyM != nil { metrics.GeofenceDistance.Observe(*updated.AccuracyM) }
    if req.Position != nil {
        s.Presence.Upsert(tenant, updated.SalesmanID, updated.CustomerID, req.Position.Lat, req.Position.Lng, updated.CheckInTime.Format(time.RFC3339))
    }
    data := map[string]any{
        "visitId": updated.ID, "salesmanId": updated.SalesmanID, "customerId": updated.CustomerID,
        "checkInTime": updated.CheckInTime.Format(time.RFC3339),
    }
    if updated.AccuracyM != nil { data["accuracyM"] = *updated.AccuracyM }
    s.Pub.Emit(r.Context(), tenant, webhooks.EventCheckedIn, data)
    s.Broker.Publish(updated.SalesmanID, SSEEvent{Type: webhooks.EventCheckedIn, Data: data})
    writeJSON(w, http.StatusOK, visitView(updated))
}

// rejectCheckIn maps lifecycle and geofence failures onto problem responses
// without mutating the stored visit.
func (s *Server) rejectCheckIn(w http.ResponseWriter, r *http.Request, tenant string, v model.Visit, err error) {
    var oor *visit.OutOfRangeError
    var mle *visit.MissingLocationError
    var ge *visit.GeolocationError
    switch {
    case errors.As(err, &oor):
        metrics.CheckIns.WithLabelValues("out_of_range").Inc()
        metrics.GeofenceDistance.Observe(oor.DistanceM)
        data := map[string]any{
            "visitId": v.ID, "salesmanId": v.SalesmanID, "customerId": v.CustomerID,
            "distanceM": oor.DistanceM, "radiusM": oor.RadiusM,
        }
        s.Pub.Emit(r.Context(), tenant, webhooks.EventOutOfRange, data)
        s.Broker.Publish(v.SalesmanID, SSEEvent{Type: webhooks.EventOutOfRange, Data: data})
        writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
            "type": "about:blank", "title": "Out of range", "status": 422,
            "detail": err.Error(), "instance": r.URL.Path,
            "distanceM": oor.DistanceM, "radiusM": oor.RadiusM,
        })
    case errors.As(err, &mle):
        metrics.CheckIns.WithLabelValues("missing_location").Inc()
        writeProblem(w, http.StatusUnprocessableEntity, "Customer has no location", err.Error(), r.URL.Path)
    case errors.As(err, &ge):
        metrics.CheckIns.WithLabelValues("geolocation_failed").Inc()
        writeProblem(w, http.StatusUnprocessableEntity, "Geolocation unavailable", err.Error(), r.URL.Path)
    case errors.Is(err, visit.ErrAlreadyCheckedIn), errors.Is(err, visit.ErrAlreadyCheckedOut):
        metrics.CheckIns.WithLabelValues("conflict").Inc()
        writeProblem(w, http.StatusConflict, "Conflict", err.Error(), r.URL.Path)
    default:
        writeProblem(w, http.StatusInternalServerError, "Check-in failed", err.Error(), r.URL.Path)
    }
}

func (s *Server) checkOutHandler(w http.ResponseWriter, r *http.Request, tenant, id string) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    v, err := s.Store.GetVisit(r.Context(), tenant, id)
    if err != nil {
        writeProblem(w, http.StatusNotFound, "Visit not found", err.Error(), r.URL.Path)
        return
    }
    pr := s.getPrincipal(r)
    if !pr.ActsFor(v.SalesmanID) {
        writeProblem(w, 403, "Forbidden", "visit belongs to another salesman", r.URL.Path)
        return
    }
    // Optional outcome and notes ride along with the check-out.
    if r.Body != nil {
        var body struct {
            Outcome string `json:"outcome"`
            Notes   string `json:"notes"`
        }
        if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
            if body.Outcome != "" { v.Outcome = body.Outcome }
            if body.Notes != "" { v.Notes = body.Notes }
        }
    }
    if err := visit.CheckOut(&v, time.Now()); err != nil {
        switch {
        case errors.Is(err, visit.ErrNotCheckedIn), errors.Is(err, visit.ErrAlreadyCheckedOut):
            writeProblem(w, http.StatusConflict, "Conflict", err.Error(), r.URL.Path)
        default:
            writeProblem(w, http.StatusInternalServerError, "Check-out failed", err.Error(), r.URL.Path)
        }
        return
    }
    updated, err := s.Store.UpdateVisit(r.Context(), tenant, v)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Check-out failed", err.Error(), r.URL.Path)
        return
    }
    data := map[string]any{
        "visitId": updated.ID, "salesmanId": updated.SalesmanID, "customerId": updated.CustomerID,
        "checkOutTime": updated.CheckOutTime.Format(time.RFC3339),
    }
    if d := updated.DurationMinutes(); d != nil { data["durationMin"] = *d }
    s.Pub.Emit(r.Context(), tenant, webhooks.EventCheckedOut, data)
    s.Broker.Publish(updated.SalesmanID, SSEEvent{Type: webhooks.EventCheckedOut, Data: data})
    writeJSON(w, http.StatusOK, visitView(updated))
}

// visitStreamHandler streams visit events for the visit's salesman over SSE.
func (s *Server) visitStreamHandler(w http.ResponseWriter, r *http.Request, tenant, id string) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    v, err := s.Store.GetVisit(r.Context(), tenant, id)
    if err != nil {
        writeProblem(w, http.StatusNotFound, "Visit not found", err.Error(), r.URL.Path)
        return
    }
    pr := s.getPrincipal(r)
    if !pr.ActsFor(v.SalesmanID) {
        writeProblem(w, 403, "Forbidden", "not authorized for visit events", r.URL.Path)
        return
    }
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    ch := s.Broker.Subscribe(v.SalesmanID)
    defer s.Broker.Unsubscribe(v.SalesmanID, ch)
    // initial heartbeat
    fmt.Fprintf(w, "event: heartbeat\n")
    fmt.Fprintf(w, "data: {\"visitId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
    flusher.Flush()
    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case evt := <-ch:
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
        case <-time.After(15 * time.Second):
            fmt.Fprintf(w, "event: heartbeat\n")
            fmt.Fprintf(w, "data: {\"visitId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
            flusher.Flush()
        }
    }
}

// VisitsStreamHandler streams all visit events of one salesman over SSE.
// GET /v1/visits/stream?salesmanId=
func (s *Server) VisitsStreamHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    pr := s.getPrincipal(r)
    salesmanID := r.URL.Query().Get("salesmanId")
    if salesmanID == "" && pr.Role == "salesman" { salesmanID = pr.SalesmanID }
    if salesmanID == "" {
        writeProblem(w, http.StatusBadRequest, "Invalid query", "salesmanId required", r.URL.Path)
        return
    }
    if !pr.ActsFor(salesmanID) {
        writeProblem(w, 403, "Forbidden", "not authorized for salesman events", r.URL.Path)
        return
    }
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    ch := s.Broker.Subscribe(salesmanID)
    defer s.Broker.Unsubscribe(salesmanID, ch)
    fmt.Fprintf(w, "event: heartbeat\n")
    fmt.Fprintf(w, "data: {\"salesmanId\":\"%s\",\"ts\":\"%s\"}\n\n", salesmanID, time.Now().Format(time.RFC3339))
    flusher.Flush()
    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case evt := <-ch:
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
        case <-time.After(15 * time.Second):
            fmt.Fprintf(w, "event: heartbeat\n")
            fmt.Fprintf(w, "data: {\"salesmanId\":\"%s\",\"ts\":\"%s\"}\n\n", salesmanID, time.Now().Format(time.RFC3339))
            flusher.Flush()
        }
    }
}

func (s *Server) snapshot(r *http.Request, tenant string, q model.VisitQuery) (report.Snapshot, error) {
    plans, visits, customers, err := s.Store.LoadUniverse(r.Context(), tenant, q)
    if err != nil { return report.Snapshot{}, err }
    return report.Snapshot{Plans: plans, Visits: visits, Customers: customers}, nil
}

// CalendarHandler handles GET /v1/calendar?month=YYYY-MM
func (s *Server) CalendarHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    monthStr := r.URL.Query().Get("month")
    if monthStr == "" { monthStr = time.Now().UTC().Format("2006-01") }
    month, err := parseMonth(monthStr)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid month", err.Error(), r.URL.Path)
        return
    }
    vq, err := parseVisitQuery(r.URL.Query())
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error(), r.URL.Path)
        return
    }
    pr := s.getPrincipal(r)
    if pr.Role == "salesman" { vq.SalesmanID = pr.SalesmanID }
    _, tenant := s.withTenant(r)
    vq.From = month.MonthStart()
    vq.To = vq.From.AddDays(vq.From.DaysInMonth() - 1)
    snap, err := s.snapshot(r, tenant, vq)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Calendar failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, snap.MonthCalendar(month, vq))
}

// ReportVisitsHandler handles GET /v1/reports/visits
func (s *Server) ReportVisitsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    vq, err := parseVisitQuery(r.URL.Query())
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error(), r.URL.Path)
        return
    }
    pr := s.getPrincipal(r)
    if pr.Role == "salesman" { vq.SalesmanID = pr.SalesmanID }
    if vq.AccuracyThreshold <= 0 { vq.AccuracyThreshold = s.PoorAccuracyThreshold }
    _, tenant := s.withTenant(r)
    snap, err := s.snapshot(r, tenant, vq)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Report failed", err.Error(), r.URL.Path)
        return
    }
    if vq.ViewMode == model.ViewSummary {
        writeJSON(w, http.StatusOK, map[string]any{"view": vq.ViewMode, "items": snap.SummaryRows(vq)})
        return
    }
    st := snap.Stats(vq)
    resp := map[string]any{
        "view": vq.ViewMode, "planned": st.Planned, "completed": st.Completed, "missed": st.Missed,
    }
    if vq.ViewMode == model.ViewCustomerSummary {
        resp["items"] = st.Customers
    } else {
        resp["items"] = st.Details
    }
    writeJSON(w, http.StatusOK, resp)
}

// ReportCoverageHandler handles GET /v1/reports/coverage
func (s *Server) ReportCoverageHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    vq, err := parseVisitQuery(r.URL.Query())
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error(), r.URL.Path)
        return
    }
    pr := s.getPrincipal(r)
    if pr.Role == "salesman" { vq.SalesmanID = pr.SalesmanID }
    _, tenant := s.withTenant(r)
    snap, err := s.snapshot(r, tenant, vq)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Coverage failed", err.Error(), r.URL.Path)
        return
    }
    rows := snap.Coverage(vq)
    if r.URL.Query().Get("notVisitedOnly") == "true" {
        filtered := rows[:0]
        for _, row := range rows {
            if !row.Visited { filtered = append(filtered, row) }
        }
        rows = filtered
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": rows})
}

// PresenceHandler handles GET /v1/presence (latest salesman positions)
func (s *Server) PresenceHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    pr := s.getPrincipal(r)
    if !pr.CanManagePlans() { writeProblem(w, 403, "Forbidden", "supervisor or admin required", r.URL.Path); return }
    _, tenant := s.withTenant(r)
    writeJSON(w, http.StatusOK, map[string]any{"items": s.Presence.ListByTenant(tenant)})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req model.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.TenantID == "" { _, req.TenantID = s.withTenant(r) }
        if req.URL == "" || len(req.Events) == 0 {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events required", r.URL.Path)
            return
        }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        _, tenant := s.withTenant(r)
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListSubscriptions(r.Context(), tenant, cursor, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if id == "" { writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path); return }
    if r.Method != http.MethodDelete { w.WriteHeader(http.StatusMethodNotAllowed); return }
    _, tenant := s.withTenant(r)
    if err := s.Store.DeleteSubscription(r.Context(), tenant, id); err != nil {
        writeProblem(w, http.StatusNotFound, "Subscription not found", err.Error(), r.URL.Path)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    pr := s.getPrincipal(r)
    if !pr.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    _, tenant := s.withTenant(r)
    status := r.URL.Query().Get("status")
    cursor := r.URL.Query().Get("cursor")
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, next, err := s.Store.ListWebhookDeliveries(r.Context(), tenant, status, cursor, limit)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// WebhookDeliveryRetryHandler handles POST /v1/admin/webhook-deliveries/{id}/retry
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/")
    parts := strings.Split(rest, "/")
    if len(parts) != 2 || parts[1] != "retry" {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    pr := s.getPrincipal(r)
    if !pr.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    _, tenant := s.withTenant(r)
    if err := s.Store.RetryWebhookDelivery(r.Context(), tenant, parts[0]); err != nil {
        writeProblem(w, http.StatusNotFound, "Delivery not found", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"status": "retry"})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // Memory store is always ready; Postgres readiness is its ping at boot.
    writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
