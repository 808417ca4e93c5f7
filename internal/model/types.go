package model

import "time"

// Core domain types for journey plans, customers, and visits.

type GeoPoint struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}

// HasLocation reports whether the point carries usable coordinates.
// Zero lat+lng means "no location data" (unset in the source system).
func (g GeoPoint) HasLocation() bool { return g.Lat != 0 || g.Lng != 0 }

type Customer struct {
    ID            string   `json:"id"`
    TenantID      string   `json:"tenantId"`
    ExternalRef   string   `json:"externalRef,omitempty"`
    Name          string   `json:"name"`
    Territory     string   `json:"territory,omitempty"`
    CustomerGroup string   `json:"customerGroup,omitempty"`
    Location      GeoPoint `json:"location"`
    Disabled      bool     `json:"disabled,omitempty"`
}

type CustomerIn struct {
    ExternalRef   string    `json:"externalRef,omitempty"`
    Name          string    `json:"name"`
    Territory     string    `json:"territory,omitempty"`
    CustomerGroup string    `json:"customerGroup,omitempty"`
    Location      *GeoPoint `json:"location"`
}

// Journey plan template status values, derived from dates and flags.
const (
    PlanDraft           = "draft"
    PlanScheduled       = "scheduled"
    PlanActive          = "active"
    PlanExpired         = "expired"
    PlanInactive        = "inactive"
    PlanNeedsCorrection = "needs_correction"
)

type JourneyPlan struct {
    ID              string     `json:"id"`
    TenantID        string     `json:"tenantId"`
    SalesmanID      string     `json:"salesmanId"`
    Frequency       string     `json:"frequency"` // always "weekly"
    CycleWeeks      int        `json:"cycleWeeks"`
    StartDate       Date       `json:"startDate"`
    EndDate         Date       `json:"endDate,omitempty"`
    CycleAnchorDate Date       `json:"cycleAnchorDate"`
    Disabled        bool       `json:"disabled,omitempty"`
    Status          string     `json:"status"`
    RouteDays       []RouteDay `json:"routeDays"`
    // FlaggedRows lists route day ids whose weekNo exceeds cycleWeeks.
    // Rows are retained but excluded from expansion until corrected.
    FlaggedRows []string `json:"flaggedRows,omitempty"`
}

type RouteDay struct {
    ID         string `json:"id"`
    PlanID     string `json:"planId,omitempty"`
    WeekNo     int    `json:"weekNo"`
    Weekday    int    `json:"weekday"` // Sun=0 .. Sat=6
    CustomerID string `json:"customerId"`
}

type JourneyPlanIn struct {
    SalesmanID      string       `json:"salesmanId"`
    CycleWeeks      int          `json:"cycleWeeks"`
    StartDate       Date         `json:"startDate"`
    EndDate         Date         `json:"endDate,omitempty"`
    CycleAnchorDate Date         `json:"cycleAnchorDate,omitempty"`
    Disabled        bool         `json:"disabled,omitempty"`
    RouteDays       []RouteDayIn `json:"routeDays"`
}

type RouteDayIn struct {
    WeekNo     int    `json:"weekNo"`
    Weekday    int    `json:"weekday"`
    CustomerID string `json:"customerId"`
}

// DueVisit is a derived expectation that a customer should be visited on a
// date. Recomputed on demand, never persisted.
type DueVisit struct {
    PlanID     string `json:"planId"`
    SalesmanID string `json:"salesmanId"`
    CustomerID string `json:"customerId"`
    Date       Date   `json:"date"`
    WeekNo     int    `json:"weekNo"`
    Weekday    int    `json:"weekday"`
}

// Visit lifecycle states.
const (
    VisitNotStarted = "not_started"
    VisitCheckedIn  = "checked_in"
    VisitCheckedOut = "checked_out"
)

type Visit struct {
    ID           string     `json:"id"`
    TenantID     string     `json:"tenantId"`
    SalesmanID   string     `json:"salesmanId"`
    CustomerID   string     `json:"customerId"`
    PlanID       string     `json:"planId,omitempty"`
    PlanDate     Date       `json:"planDate"`
    CheckInTime  *time.Time `json:"checkInTime,omitempty"`
    CheckOutTime *time.Time `json:"checkOutTime,omitempty"`
    // Location is the device position recorded at check-in, "lat, lng".
    Location string `json:"location,omitempty"`
    // AccuracyM is the measured distance in meters between the device and
    // the customer's registered position at check-in. Positional deviation,
    // not GPS precision.
    AccuracyM *float64 `json:"accuracyM,omitempty"`
    Outcome   string   `json:"outcome,omitempty"`
    Notes     string   `json:"notes,omitempty"`
}

// State derives the lifecycle state from the recorded timestamps.
func (v Visit) State() string {
    switch {
    case v.CheckOutTime != nil:
        return VisitCheckedOut
    case v.CheckInTime != nil:
        return VisitCheckedIn
    default:
        return VisitNotStarted
    }
}

// DurationMinutes returns whole minutes between check-in and check-out, or
// nil when either end is missing.
func (v Visit) DurationMinutes() *int {
    if v.CheckInTime == nil || v.CheckOutTime == nil { return nil }
    m := int(v.CheckOutTime.Sub(*v.CheckInTime) / time.Minute)
    return &m
}

// CheckInRequest carries either a device position or the reason geolocation
// could not be acquired. Exactly one of the two should be set.
type CheckInRequest struct {
    Position *GeoPoint `json:"position,omitempty"`
    Failure  string    `json:"failure,omitempty"` // "denied" | "unsupported"
}

// DayStat is the per-date aggregate behind one calendar cell.
type DayStat struct {
    Planned      int      `json:"planned"`
    Completed    int      `json:"completed"`
    Missed       int      `json:"missed"`
    AvgAccuracyM *float64 `json:"avg_accuracy_m"`
}

type CalendarResponse struct {
    Month string             `json:"month"` // YYYY-MM
    Days  map[string]DayStat `json:"days"`
}

// Status filter values for report queries.
const (
    StatusPlannedOnly   = "planned"
    StatusCompletedOnly = "completed"
    StatusMissedOnly    = "missed"
)

// Report view modes.
const (
    ViewDetail          = "detail"
    ViewSummary         = "summary"
    ViewCustomerSummary = "customer_summary"
)

// VisitQuery is the shared filter shape used by the calendar and every
// report surface. Built per request and passed explicitly; there is no
// process-wide pending-filter state.
type VisitQuery struct {
    From              Date    `json:"from"`
    To                Date    `json:"to"`
    SalesmanID        string  `json:"salesmanId,omitempty"`
    PlanID            string  `json:"journeyPlanId,omitempty"`
    CustomerID        string  `json:"customerId,omitempty"`
    Status            string  `json:"status,omitempty"`
    AccuracyThreshold float64 `json:"accuracyThreshold,omitempty"` // default 50
    ViewMode          string  `json:"viewMode,omitempty"`
}

// DetailRow is one visit in the detail report.
type DetailRow struct {
    VisitID      string     `json:"visitId"`
    Date         Date       `json:"date"`
    SalesmanID   string     `json:"salesmanId"`
    CustomerID   string     `json:"customerId"`
    PlanID       string     `json:"journeyPlanId,omitempty"`
    CheckInTime  *time.Time `json:"checkInTime,omitempty"`
    CheckOutTime *time.Time `json:"checkOutTime,omitempty"`
    DurationMin  *int       `json:"durationMin,omitempty"`
    AccuracyM    *float64   `json:"accuracyM,omitempty"`
    AccuracyFlag string     `json:"accuracyFlag"`
    Visited      bool       `json:"visited"`
}

// SummaryRow aggregates one salesman over the requested range.
type SummaryRow struct {
    SalesmanID       string     `json:"salesmanId"`
    Planned          int        `json:"planned"`
    Attempted        int        `json:"attempted"`
    Completed        int        `json:"completed"`
    Missed           int        `json:"missed"`
    CompletionPct    float64    `json:"completionPct"`
    TotalDurationMin int        `json:"totalDurationMin"`
    AvgDurationMin   float64    `json:"avgDurationMin"`
    AvgAccuracyM     *float64   `json:"avgAccuracyM,omitempty"`
    PoorAccuracy     int        `json:"poorAccuracy"`
    FirstCheckIn     *time.Time `json:"firstCheckIn,omitempty"`
    LastCheckOut     *time.Time `json:"lastCheckOut,omitempty"`
}

// CustomerSummaryRow aggregates one (salesman, customer) pair.
type CustomerSummaryRow struct {
    SalesmanID string `json:"salesmanId"`
    CustomerID string `json:"customerId"`
    Customer   string `json:"customerName,omitempty"`
    Planned    int    `json:"planned"`
    Completed  int    `json:"completed"`
    Missed     int    `json:"missed"`
}

// CoverageRow reports whether a customer was visited at least once in range.
type CoverageRow struct {
    CustomerID    string `json:"customerId"`
    Customer      string `json:"customerName,omitempty"`
    Territory     string `json:"territory,omitempty"`
    CustomerGroup string `json:"customerGroup,omitempty"`
    Visited       bool   `json:"visited"`
    VisitCount    int    `json:"visitCount"`
    LastVisitDate *Date  `json:"lastVisitDate,omitempty"`
}

// RangeStats is the per-range aggregate exposed to reports.
type RangeStats struct {
    Planned   int                  `json:"planned"`
    Completed int                  `json:"completed"`
    Missed    int                  `json:"missed"`
    Coverage  []CoverageRow        `json:"coverage,omitempty"`
    Details   []DetailRow          `json:"details,omitempty"`
    Customers []CustomerSummaryRow `json:"customers,omitempty"`
}

// Webhook subscriptions (visit.* events).

type SubscriptionRequest struct {
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret"`
}

type Subscription struct {
    ID       string   `json:"id"`
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret,omitempty"`
}
