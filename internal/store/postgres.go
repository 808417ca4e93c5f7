package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    _ "github.com/jackc/pgx/v5/stdlib"
    "github.com/google/uuid"

    "github.com/anzarahmad52/salesman-journey/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

// ImportCustomers inserts customers. Dedup by (tenant_id, external_ref).
func (p *Postgres) ImportCustomers(ctx context.Context, tenantID string, customers []model.CustomerIn) (string, int, int, error) {
    importID := fmt.Sprintf("imp_%d", time.Now().UnixNano())
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return "", 0, 0, err }
    defer func(){ _ = tx.Rollback() }()

    created, skipped := 0, 0
    for _, c := range customers {
        if c.ExternalRef != "" {
            var existsID string
            err = tx.QueryRowContext(ctx, `SELECT id::text FROM customers WHERE tenant_id=$1 AND external_ref=$2`, tenantID, c.ExternalRef).Scan(&existsID)
            if err == nil { skipped++; continue }
            if !errors.Is(err, sql.ErrNoRows) { return "", 0, 0, err }
        }
        var lat, lng any
        if c.Location != nil { lat, lng = c.Location.Lat, c.Location.Lng }
        _, err = tx.ExecContext(ctx, `INSERT INTO customers (id, tenant_id, external_ref, name, territory, customer_group, lat, lng) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
            uuid.New(), tenantID, nullIfEmpty(c.ExternalRef), c.Name, nullIfEmpty(c.Territory), nullIfEmpty(c.CustomerGroup), lat, lng)
        if err != nil { return "", 0, 0, err }
        created++
    }
    if err := tx.Commit(); err != nil { return "", 0, 0, err }
    return importID, created, skipped, nil
}

func scanCustomer(sc interface{ Scan(...any) error }) (model.Customer, error) {
    var c model.Customer
    var ref, terr, group sql.NullString
    var lat, lng sql.NullFloat64
    if err := sc.Scan(&c.ID, &c.TenantID, &ref, &c.Name, &terr, &group, &lat, &lng, &c.Disabled); err != nil {
        return model.Customer{}, err
    }
    c.ExternalRef, c.Territory, c.CustomerGroup = ref.String, terr.String, group.String
    if lat.Valid { c.Location = model.GeoPoint{Lat: lat.Float64, Lng: lng.Float64} }
    return c, nil
}

const customerCols = `id::text, tenant_id::text, external_ref, name, territory, customer_group, lat, lng, disabled`

func (p *Postgres) ListCustomers(ctx context.Context, tenantID, territory, cursor string, limit int) ([]model.Customer, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT ` + customerCols + ` FROM customers WHERE tenant_id=$1`
    args := []any{tenantID}
    if territory != "" {
        args = append(args, territory)
        q += fmt.Sprintf(` AND territory=$%d`, len(args))
    }
    if cursor != "" {
        args = append(args, cursor)
        q += fmt.Sprintf(` AND id::text > $%d`, len(args))
    }
    args = append(args, limit)
    q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Customer{}
    for rows.Next() {
        c, err := scanCustomer(rows)
        if err != nil { return nil, "", err }
        out = append(out, c)
    }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, rows.Err()
}

func (p *Postgres) GetCustomer(ctx context.Context, tenantID, id string) (model.Customer, error) {
    row := p.db.QueryRowContext(ctx, `SELECT `+customerCols+` FROM customers WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    c, err := scanCustomer(row)
    if errors.Is(err, sql.ErrNoRows) { return model.Customer{}, ErrNotFound }
    return c, err
}

func (p *Postgres) CreateJourneyPlan(ctx context.Context, tenantID string, in model.JourneyPlanIn) (model.JourneyPlan, error) {
    id := uuid.New().String()
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return model.JourneyPlan{}, err }
    defer func(){ _ = tx.Rollback() }()
    if err := insertPlanTx(ctx, tx, id, tenantID, in); err != nil { return model.JourneyPlan{}, err }
    if err := tx.Commit(); err != nil { return model.JourneyPlan{}, err }
    return p.GetJourneyPlan(ctx, tenantID, id)
}

func insertPlanTx(ctx context.Context, tx *sql.Tx, id, tenantID string, in model.JourneyPlanIn) error {
    _, err := tx.ExecContext(ctx, `INSERT INTO journey_plans (id, tenant_id, salesman_id, cycle_weeks, start_date, end_date, cycle_anchor_date, disabled)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
        id, tenantID, in.SalesmanID, in.CycleWeeks, dateArg(in.StartDate), dateArg(in.EndDate), dateArg(in.CycleAnchorDate), in.Disabled)
    if err != nil { return err }
    for _, rd := range in.RouteDays {
        _, err = tx.ExecContext(ctx, `INSERT INTO route_days (id, plan_id, week_no, weekday, customer_id) VALUES ($1,$2,$3,$4,$5)`,
            uuid.New(), id, rd.WeekNo, rd.Weekday, rd.CustomerID)
        if err != nil { return err }
    }
    return nil
}

func (p *Postgres) GetJourneyPlan(ctx context.Context, tenantID, id string) (model.JourneyPlan, error) {
    row := p.db.QueryRowContext(ctx, `SELECT id::text, tenant_id::text, salesman_id, cycle_weeks, start_date, end_date, cycle_anchor_date, disabled
        FROM journey_plans WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    tpl, err := scanPlan(row)
    if errors.Is(err, sql.ErrNoRows) { return model.JourneyPlan{}, ErrNotFound }
    if err != nil { return model.JourneyPlan{}, err }
    if err := p.attachRouteDays(ctx, []*model.JourneyPlan{&tpl}); err != nil { return model.JourneyPlan{}, err }
    return normalized(tpl), nil
}

func scanPlan(sc interface{ Scan(...any) error }) (model.JourneyPlan, error) {
    var tpl model.JourneyPlan
    var start, end, anchor sql.NullTime
    if err := sc.Scan(&tpl.ID, &tpl.TenantID, &tpl.SalesmanID, &tpl.CycleWeeks, &start, &end, &anchor, &tpl.Disabled); err != nil {
        return model.JourneyPlan{}, err
    }
    if start.Valid { tpl.StartDate = model.DateOf(start.Time) }
    if end.Valid { tpl.EndDate = model.DateOf(end.Time) }
    if anchor.Valid { tpl.CycleAnchorDate = model.DateOf(anchor.Time) }
    return tpl, nil
}

func (p *Postgres) attachRouteDays(ctx context.Context, plans []*model.JourneyPlan) error {
    byID := map[string]*model.JourneyPlan{}
    ids := make([]string, 0, len(plans))
    for _, tpl := range plans {
        byID[tpl.ID] = tpl
        ids = append(ids, tpl.ID)
    }
    if len(ids) == 0 { return nil }
    idsJSON, _ := json.Marshal(ids)
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, plan_id::text, week_no, weekday, customer_id::text FROM route_days
        WHERE plan_id::text IN (SELECT jsonb_array_elements_text($1::jsonb)) ORDER BY week_no, weekday, customer_id`, idsJSON)
    if err != nil { return err }
    defer rows.Close()
    for rows.Next() {
        var rd model.RouteDay
        if err := rows.Scan(&rd.ID, &rd.PlanID, &rd.WeekNo, &rd.Weekday, &rd.CustomerID); err != nil { return err }
        if tpl, ok := byID[rd.PlanID]; ok { tpl.RouteDays = append(tpl.RouteDays, rd) }
    }
    return rows.Err()
}

func (p *Postgres) ListJourneyPlans(ctx context.Context, tenantID, salesmanID, cursor string, limit int) ([]model.JourneyPlan, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT id::text, tenant_id::text, salesman_id, cycle_weeks, start_date, end_date, cycle_anchor_date, disabled FROM journey_plans WHERE tenant_id=$1`
    args := []any{tenantID}
    if salesmanID != "" {
        args = append(args, salesmanID)
        q += fmt.Sprintf(` AND salesman_id=$%d`, len(args))
    }
    if cursor != "" {
        args = append(args, cursor)
        q += fmt.Sprintf(` AND id::text > $%d`, len(args))
    }
    args = append(args, limit)
    q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.JourneyPlan{}
    refs := []*model.JourneyPlan{}
    for rows.Next() {
        tpl, err := scanPlan(rows)
        if err != nil { return nil, "", err }
        out = append(out, tpl)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    for i := range out { refs = append(refs, &out[i]) }
    if err := p.attachRouteDays(ctx, refs); err != nil { return nil, "", err }
    for i := range out { out[i] = normalized(out[i]) }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, nil
}

func (p *Postgres) UpdateJourneyPlan(ctx context.Context, tenantID, id string, in model.JourneyPlanIn) (model.JourneyPlan, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return model.JourneyPlan{}, err }
    defer func(){ _ = tx.Rollback() }()
    res, err := tx.ExecContext(ctx, `UPDATE journey_plans SET salesman_id=$3, cycle_weeks=$4, start_date=$5, end_date=$6, cycle_anchor_date=$7, disabled=$8, updated_at=now()
        WHERE tenant_id=$1 AND id=$2`,
        tenantID, id, in.SalesmanID, in.CycleWeeks, dateArg(in.StartDate), dateArg(in.EndDate), dateArg(in.CycleAnchorDate), in.Disabled)
    if err != nil { return model.JourneyPlan{}, err }
    if n, _ := res.RowsAffected(); n == 0 { return model.JourneyPlan{}, ErrNotFound }
    if _, err := tx.ExecContext(ctx, `DELETE FROM route_days WHERE plan_id=$1`, id); err != nil { return model.JourneyPlan{}, err }
    for _, rd := range in.RouteDays {
        _, err = tx.ExecContext(ctx, `INSERT INTO route_days (id, plan_id, week_no, weekday, customer_id) VALUES ($1,$2,$3,$4,$5)`,
            uuid.New(), id, rd.WeekNo, rd.Weekday, rd.CustomerID)
        if err != nil { return model.JourneyPlan{}, err }
    }
    if err := tx.Commit(); err != nil { return model.JourneyPlan{}, err }
    return p.GetJourneyPlan(ctx, tenantID, id)
}

func (p *Postgres) DeleteJourneyPlan(ctx context.Context, tenantID, id string) error {
    res, err := p.db.ExecContext(ctx, `DELETE FROM journey_plans WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) GenerateVisits(ctx context.Context, tenantID string, due []model.DueVisit) (int, int, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return 0, 0, err }
    defer func(){ _ = tx.Rollback() }()
    created, skipped := 0, 0
    for _, dv := range due {
        res, err := tx.ExecContext(ctx, `INSERT INTO visits (id, tenant_id, salesman_id, customer_id, plan_id, plan_date)
            VALUES ($1,$2,$3,$4,$5,$6)
            ON CONFLICT (tenant_id, salesman_id, customer_id, plan_date) DO NOTHING`,
            uuid.New(), tenantID, dv.SalesmanID, dv.CustomerID, nullIfEmpty(dv.PlanID), dateArg(dv.Date))
        if err != nil { return 0, 0, err }
        if n, _ := res.RowsAffected(); n == 0 { skipped++ } else { created++ }
    }
    if err := tx.Commit(); err != nil { return 0, 0, err }
    return created, skipped, nil
}

const visitCols = `id::text, tenant_id::text, salesman_id, customer_id::text, COALESCE(plan_id::text,''), plan_date, check_in_time, check_out_time, COALESCE(location,''), accuracy_m, COALESCE(outcome,''), COALESCE(notes,'')`

func scanVisit(sc interface{ Scan(...any) error }) (model.Visit, error) {
    var v model.Visit
    var planDate, in, out sql.NullTime
    var acc sql.NullFloat64
    if err := sc.Scan(&v.ID, &v.TenantID, &v.SalesmanID, &v.CustomerID, &v.PlanID, &planDate, &in, &out, &v.Location, &acc, &v.Outcome, &v.Notes); err != nil {
        return model.Visit{}, err
    }
    if planDate.Valid { v.PlanDate = model.DateOf(planDate.Time) }
    if in.Valid { t := in.Time.UTC(); v.CheckInTime = &t }
    if out.Valid { t := out.Time.UTC(); v.CheckOutTime = &t }
    if acc.Valid { v.AccuracyM = &acc.Float64 }
    return v, nil
}

func (p *Postgres) GetVisit(ctx context.Context, tenantID, id string) (model.Visit, error) {
    row := p.db.QueryRowContext(ctx, `SELECT `+visitCols+` FROM visits WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    v, err := scanVisit(row)
    if errors.Is(err, sql.ErrNoRows) { return model.Visit{}, ErrNotFound }
    return v, err
}

func (p *Postgres) ListVisits(ctx context.Context, tenantID string, q model.VisitQuery, cursor string, limit int) ([]model.Visit, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    sqlq := `SELECT ` + visitCols + ` FROM visits WHERE tenant_id=$1`
    args := []any{tenantID}
    add := func(clause string, v any) {
        args = append(args, v)
        sqlq += fmt.Sprintf(clause, len(args))
    }
    if q.SalesmanID != "" { add(` AND salesman_id=$%d`, q.SalesmanID) }
    if q.PlanID != "" { add(` AND plan_id=$%d`, q.PlanID) }
    if q.CustomerID != "" { add(` AND customer_id=$%d`, q.CustomerID) }
    if !q.From.IsZero() { add(` AND COALESCE(plan_date, check_in_time::date) >= $%d`, q.From.String()) }
    if !q.To.IsZero() { add(` AND COALESCE(plan_date, check_in_time::date) <= $%d`, q.To.String()) }
    if cursor != "" { add(` AND id::text > $%d`, cursor) }
    add(` ORDER BY id LIMIT $%d`, limit)
    rows, err := p.db.QueryContext(ctx, sqlq, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Visit{}
    for rows.Next() {
        v, err := scanVisit(rows)
        if err != nil { return nil, "", err }
        out = append(out, v)
    }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, rows.Err()
}

func (p *Postgres) UpdateVisit(ctx context.Context, tenantID string, v model.Visit) (model.Visit, error) {
    res, err := p.db.ExecContext(ctx, `UPDATE visits SET check_in_time=$3, check_out_time=$4, location=$5, accuracy_m=$6, outcome=$7, notes=$8, updated_at=now()
        WHERE tenant_id=$1 AND id=$2`,
        tenantID, v.ID, v.CheckInTime, v.CheckOutTime, nullIfEmpty(v.Location), v.AccuracyM, nullIfEmpty(v.Outcome), nullIfEmpty(v.Notes))
    if err != nil { return model.Visit{}, err }
    if n, _ := res.RowsAffected(); n == 0 { return model.Visit{}, ErrNotFound }
    return p.GetVisit(ctx, tenantID, v.ID)
}

func (p *Postgres) LoadUniverse(ctx context.Context, tenantID string, q model.VisitQuery) ([]model.JourneyPlan, []model.Visit, []model.Customer, error) {
    var plans []model.JourneyPlan
    cursor := ""
    for {
        page, next, err := p.ListJourneyPlans(ctx, tenantID, q.SalesmanID, cursor, 500)
        if err != nil { return nil, nil, nil, err }
        plans = append(plans, page...)
        if next == "" { break }
        cursor = next
    }
    if q.PlanID != "" {
        n := 0
        for _, tpl := range plans {
            if tpl.ID == q.PlanID { plans[n] = tpl; n++ }
        }
        plans = plans[:n]
    }
    var visits []model.Visit
    cursor = ""
    for {
        page, next, err := p.ListVisits(ctx, tenantID, q, cursor, 500)
        if err != nil { return nil, nil, nil, err }
        visits = append(visits, page...)
        if next == "" { break }
        cursor = next
    }
    var customers []model.Customer
    cursor = ""
    for {
        page, next, err := p.ListCustomers(ctx, tenantID, "", cursor, 500)
        if err != nil { return nil, nil, nil, err }
        customers = append(customers, page...)
        if next == "" { break }
        cursor = next
    }
    return plans, visits, customers, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    ev, _ := json.Marshal(req.Events)
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`, id, req.TenantID, req.URL, ev, req.Secret)
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND events @> $2::jsonb`, tenantID, fmt.Sprintf("[\"%s\"]", eventType))
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var events []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil { return nil, err }
        s.TenantID = tenantID
        _ = json.Unmarshal(events, &s.Events)
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    var out []model.Subscription
    for rows.Next() {
        var s model.Subscription
        var ev []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, "", err }
        s.TenantID = tenantID
        _ = json.Unmarshal(ev, &s.Events)
        out = append(out, s)
    }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`, id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
            id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
    return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT id::text, event_type, status, attempts, next_attempt_at, last_error, url FROM webhook_deliveries WHERE tenant_id=$1`
    args := []any{tenantID}
    if status != "" {
        args = append(args, status)
        q += fmt.Sprintf(` AND status=$%d`, len(args))
    }
    if cursor != "" {
        args = append(args, cursor)
        q += fmt.Sprintf(` AND id::text > $%d`, len(args))
    }
    args = append(args, limit)
    q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []map[string]any{}
    last := ""
    for rows.Next() {
        var id, eventType, st, url string
        var attempts int
        var nextAt sql.NullTime
        var lastErr sql.NullString
        if err := rows.Scan(&id, &eventType, &st, &attempts, &nextAt, &lastErr, &url); err != nil { return nil, "", err }
        item := map[string]any{"id": id, "eventType": eventType, "status": st, "attempts": attempts, "url": url}
        if nextAt.Valid { item["nextAttemptAt"] = nextAt.Time }
        if lastErr.Valid { item["lastError"] = lastErr.String }
        out = append(out, item)
        last = id
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='retry', next_attempt_at=now(), updated_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

// MigrateDir applies every .sql file in dir in lexical order. Statements are
// idempotent (CREATE IF NOT EXISTS), so re-running on boot is safe.
func (p *Postgres) MigrateDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil { return err }
    names := []string{}
    for _, e := range entries {
        if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") { names = append(names, e.Name()) }
    }
    sort.Strings(names)
    for _, name := range names {
        b, err := os.ReadFile(filepath.Join(dir, name))
        if err != nil { return err }
        if _, err := p.db.Exec(string(b)); err != nil {
            return fmt.Errorf("migrate %s: %w", name, err)
        }
    }
    return nil
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }

func dateArg(d model.Date) any {
    if d.IsZero() { return nil }
    return d.String()
}
