package store

import (
    "context"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/anzarahmad52/salesman-journey/internal/model"
    "github.com/anzarahmad52/salesman-journey/internal/schedule"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu        sync.Mutex
    customers map[string]model.Customer        // id -> customer
    custTen   map[string][]string              // tenant -> customer ids
    plans     map[string]model.JourneyPlan     // id -> plan (route days inline)
    planTen   map[string][]string              // tenant -> plan ids
    visits    map[string]model.Visit           // id -> visit
    visitTen  map[string][]string              // tenant -> visit ids
    subs      map[string][]model.Subscription  // tenant -> subscriptions
    // Webhooks queue state
    deliveries         map[string]*memDelivery // id -> delivery state
    deliveriesByTenant map[string][]string     // tenant -> delivery ids
}

func NewMemory() *Memory {
    return &Memory{
        customers: map[string]model.Customer{},
        custTen: map[string][]string{},
        plans: map[string]model.JourneyPlan{},
        planTen: map[string][]string{},
        visits: map[string]model.Visit{},
        visitTen: map[string][]string{},
        subs: map[string][]model.Subscription{},
        deliveries: map[string]*memDelivery{},
        deliveriesByTenant: map[string][]string{},
    }
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
    DeliveredAt   *time.Time
}

func (m *Memory) ImportCustomers(ctx context.Context, tenantID string, customers []model.CustomerIn) (string, int, int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    created, skipped := 0, 0
    for _, c := range customers {
        if c.ExternalRef != "" && m.findCustomerByRefLocked(tenantID, c.ExternalRef) != "" { skipped++; continue }
        id := uuid.New().String()
        out := model.Customer{ID: id, TenantID: tenantID, ExternalRef: c.ExternalRef, Name: c.Name, Territory: c.Territory, CustomerGroup: c.CustomerGroup}
        if c.Location != nil { out.Location = *c.Location }
        m.customers[id] = out
        m.custTen[tenantID] = append(m.custTen[tenantID], id)
        created++
    }
    return "imp_mem", created, skipped, nil
}

func (m *Memory) findCustomerByRefLocked(tenantID, ref string) string {
    for _, id := range m.custTen[tenantID] {
        if m.customers[id].ExternalRef == ref { return id }
    }
    return ""
}

func (m *Memory) ListCustomers(ctx context.Context, tenantID, territory, cursor string, limit int) ([]model.Customer, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.custTen[tenantID]
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    out := []model.Customer{}
    var next string
    for i := start; i < len(ids) && len(out) < limit; i++ {
        c := m.customers[ids[i]]
        if territory == "" || c.Territory == territory { out = append(out, c) }
        next = ids[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) GetCustomer(ctx context.Context, tenantID, id string) (model.Customer, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    c, ok := m.customers[id]
    if !ok || c.TenantID != tenantID { return model.Customer{}, ErrNotFound }
    return c, nil
}

func (m *Memory) CreateJourneyPlan(ctx context.Context, tenantID string, in model.JourneyPlanIn) (model.JourneyPlan, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    id := uuid.New().String()
    tpl := planFromInput(id, tenantID, in)
    m.plans[id] = tpl
    m.planTen[tenantID] = append(m.planTen[tenantID], id)
    return normalized(tpl), nil
}

func planFromInput(id, tenantID string, in model.JourneyPlanIn) model.JourneyPlan {
    tpl := model.JourneyPlan{
        ID: id, TenantID: tenantID, SalesmanID: in.SalesmanID,
        CycleWeeks: in.CycleWeeks, StartDate: in.StartDate, EndDate: in.EndDate,
        CycleAnchorDate: in.CycleAnchorDate, Disabled: in.Disabled,
    }
    for _, rd := range in.RouteDays {
        tpl.RouteDays = append(tpl.RouteDays, model.RouteDay{
            ID: uuid.New().String(), PlanID: id,
            WeekNo: rd.WeekNo, Weekday: rd.Weekday, CustomerID: rd.CustomerID,
        })
    }
    return tpl
}

func normalized(tpl model.JourneyPlan) model.JourneyPlan {
    schedule.Normalize(&tpl, model.DateOf(time.Now()))
    return tpl
}

func (m *Memory) GetJourneyPlan(ctx context.Context, tenantID, id string) (model.JourneyPlan, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    tpl, ok := m.plans[id]
    if !ok || tpl.TenantID != tenantID { return model.JourneyPlan{}, ErrNotFound }
    return normalized(tpl), nil
}

func (m *Memory) ListJourneyPlans(ctx context.Context, tenantID, salesmanID, cursor string, limit int) ([]model.JourneyPlan, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.planTen[tenantID]
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    out := []model.JourneyPlan{}
    var next string
    for i := start; i < len(ids) && len(out) < limit; i++ {
        tpl := m.plans[ids[i]]
        if salesmanID == "" || tpl.SalesmanID == salesmanID { out = append(out, normalized(tpl)) }
        next = ids[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) UpdateJourneyPlan(ctx context.Context, tenantID, id string, in model.JourneyPlanIn) (model.JourneyPlan, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    old, ok := m.plans[id]
    if !ok || old.TenantID != tenantID { return model.JourneyPlan{}, ErrNotFound }
    tpl := planFromInput(id, tenantID, in)
    // Keep stable route day ids where the row survived the edit.
    for i, rd := range tpl.RouteDays {
        for _, prev := range old.RouteDays {
            if prev.WeekNo == rd.WeekNo && prev.Weekday == rd.Weekday && prev.CustomerID == rd.CustomerID {
                tpl.RouteDays[i].ID = prev.ID
                break
            }
        }
    }
    m.plans[id] = tpl
    return normalized(tpl), nil
}

func (m *Memory) DeleteJourneyPlan(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    tpl, ok := m.plans[id]
    if !ok || tpl.TenantID != tenantID { return ErrNotFound }
    delete(m.plans, id)
    ids := m.planTen[tenantID]
    for i, pid := range ids {
        if pid == id { m.planTen[tenantID] = append(ids[:i], ids[i+1:]...); break }
    }
    return nil
}

func (m *Memory) GenerateVisits(ctx context.Context, tenantID string, due []model.DueVisit) (int, int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    created, skipped := 0, 0
    for _, dv := range due {
        if m.visitExistsLocked(tenantID, dv.SalesmanID, dv.CustomerID, dv.Date) { skipped++; continue }
        id := uuid.New().String()
        m.visits[id] = model.Visit{
            ID: id, TenantID: tenantID, SalesmanID: dv.SalesmanID,
            CustomerID: dv.CustomerID, PlanID: dv.PlanID, PlanDate: dv.Date,
        }
        m.visitTen[tenantID] = append(m.visitTen[tenantID], id)
        created++
    }
    return created, skipped, nil
}

func (m *Memory) visitExistsLocked(tenantID, salesmanID, customerID string, d model.Date) bool {
    for _, id := range m.visitTen[tenantID] {
        v := m.visits[id]
        if v.SalesmanID == salesmanID && v.CustomerID == customerID && v.PlanDate.Equal(d) { return true }
    }
    return false
}

func (m *Memory) GetVisit(ctx context.Context, tenantID, id string) (model.Visit, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    v, ok := m.visits[id]
    if !ok || v.TenantID != tenantID { return model.Visit{}, ErrNotFound }
    return v, nil
}

func visitMatches(v model.Visit, q model.VisitQuery) bool {
    if q.SalesmanID != "" && v.SalesmanID != q.SalesmanID { return false }
    if q.PlanID != "" && v.PlanID != q.PlanID { return false }
    if q.CustomerID != "" && v.CustomerID != q.CustomerID { return false }
    day := v.PlanDate
    if day.IsZero() && v.CheckInTime != nil { day = model.DateOf(*v.CheckInTime) }
    if !q.From.IsZero() && (day.IsZero() || day.Before(q.From)) { return false }
    if !q.To.IsZero() && (day.IsZero() || day.After(q.To)) { return false }
    return true
}

func (m *Memory) ListVisits(ctx context.Context, tenantID string, q model.VisitQuery, cursor string, limit int) ([]model.Visit, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.visitTen[tenantID]
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    out := []model.Visit{}
    var next string
    for i := start; i < len(ids) && len(out) < limit; i++ {
        v := m.visits[ids[i]]
        if visitMatches(v, q) { out = append(out, v) }
        next = ids[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) UpdateVisit(ctx context.Context, tenantID string, v model.Visit) (model.Visit, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    old, ok := m.visits[v.ID]
    if !ok || old.TenantID != tenantID { return model.Visit{}, ErrNotFound }
    v.TenantID = tenantID
    m.visits[v.ID] = v
    return v, nil
}

func (m *Memory) LoadUniverse(ctx context.Context, tenantID string, q model.VisitQuery) ([]model.JourneyPlan, []model.Visit, []model.Customer, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var plans []model.JourneyPlan
    for _, id := range m.planTen[tenantID] {
        tpl := m.plans[id]
        if q.SalesmanID != "" && tpl.SalesmanID != q.SalesmanID { continue }
        if q.PlanID != "" && tpl.ID != q.PlanID { continue }
        plans = append(plans, normalized(tpl))
    }
    var visits []model.Visit
    for _, id := range m.visitTen[tenantID] {
        v := m.visits[id]
        if visitMatches(v, q) { visits = append(visits, v) }
    }
    var customers []model.Customer
    for _, id := range m.custTen[tenantID] {
        customers = append(customers, m.customers[id])
    }
    return plans, visits, customers, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
    m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, s := range m.subs[tenantID] {
        for _, e := range s.Events { if e == eventType { out = append(out, s); break } }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    subs := m.subs[tenantID]
    start := 0
    if cursor != "" {
        for i, s := range subs {
            if s.ID == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    end := start + limit
    if end > len(subs) { end = len(subs) }
    out := append([]model.Subscription{}, subs[start:end]...)
    next := ""
    if end < len(subs) && len(out) > 0 { next = out[len(out)-1].ID }
    return out, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    subs := m.subs[tenantID]
    for i, s := range subs {
        if s.ID == id {
            m.subs[tenantID] = append(subs[:i], subs[i+1:]...)
            return nil
        }
    }
    return ErrNotFound
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    id := uuid.New().String()
    d := &memDelivery{WebhookDelivery: WebhookDelivery{
        ID: id, TenantID: tenantID, SubscriptionID: subscriptionID,
        EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending",
    }, NextAttemptAt: time.Now()}
    m.deliveries[id] = d
    m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 { limit = 50 }
    now := time.Now()
    out := []WebhookDelivery{}
    for _, d := range m.deliveries {
        if len(out) >= limit { break }
        if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
            out = append(out, d.WebhookDelivery)
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d, ok := m.deliveries[id]
    if !ok { return ErrNotFound }
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = "delivered"
        now := time.Now()
        d.DeliveredAt = &now
        return nil
    }
    d.Status = "retry"
    d.Attempts++
    d.LastError = lastError
    if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(time.Minute) }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d, ok := m.deliveries[id]
    if !ok { return ErrNotFound }
    d.Status = "failed"
    d.LastError = lastError
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.deliveriesByTenant[tenantID]
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    out := []map[string]any{}
    var next string
    for i := start; i < len(ids) && len(out) < limit; i++ {
        d := m.deliveries[ids[i]]
        if status != "" && d.Status != status { next = ids[i]; continue }
        out = append(out, map[string]any{
            "id": d.ID, "eventType": d.EventType, "status": d.Status,
            "attempts": d.Attempts, "nextAttemptAt": d.NextAttemptAt,
            "lastError": d.LastError, "url": d.URL,
        })
        next = ids[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d, ok := m.deliveries[id]
    if !ok || d.TenantID != tenantID { return ErrNotFound }
    d.Status = "retry"
    d.NextAttemptAt = time.Now()
    return nil
}
