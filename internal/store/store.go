package store

import (
    "context"
    "errors"
    "time"

    "github.com/anzarahmad52/salesman-journey/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
    // Customers
    ImportCustomers(ctx context.Context, tenantID string, customers []model.CustomerIn) (importID string, created, skipped int, err error)
    ListCustomers(ctx context.Context, tenantID, territory, cursor string, limit int) ([]model.Customer, string, error)
    GetCustomer(ctx context.Context, tenantID, id string) (model.Customer, error)

    // Journey plans
    CreateJourneyPlan(ctx context.Context, tenantID string, in model.JourneyPlanIn) (model.JourneyPlan, error)
    GetJourneyPlan(ctx context.Context, tenantID, id string) (model.JourneyPlan, error)
    ListJourneyPlans(ctx context.Context, tenantID, salesmanID, cursor string, limit int) ([]model.JourneyPlan, string, error)
    UpdateJourneyPlan(ctx context.Context, tenantID, id string, in model.JourneyPlanIn) (model.JourneyPlan, error)
    DeleteJourneyPlan(ctx context.Context, tenantID, id string) error

    // Visits
    GenerateVisits(ctx context.Context, tenantID string, due []model.DueVisit) (created, skipped int, err error)
    GetVisit(ctx context.Context, tenantID, id string) (model.Visit, error)
    ListVisits(ctx context.Context, tenantID string, q model.VisitQuery, cursor string, limit int) ([]model.Visit, string, error)
    UpdateVisit(ctx context.Context, tenantID string, v model.Visit) (model.Visit, error)

    // Aggregation inputs: everything the calendar/report engine needs for a
    // tenant, bounded by the query's filters.
    LoadUniverse(ctx context.Context, tenantID string, q model.VisitQuery) (plans []model.JourneyPlan, visits []model.Visit, customers []model.Customer, err error)

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, tenantID, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
    RetryWebhookDelivery(ctx context.Context, tenantID, id string) error
}

var ErrNotFound = errors.New("not found")
