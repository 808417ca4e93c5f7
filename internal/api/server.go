package api

import (
    "context"
    "net/http"
    "strings"

    "github.com/anzarahmad52/salesman-journey/internal/auth"
    "github.com/anzarahmad52/salesman-journey/internal/config"
    "github.com/anzarahmad52/salesman-journey/internal/store"
    "github.com/anzarahmad52/salesman-journey/internal/webhooks"
    "os"
)

type Server struct {
    Store    store.Store
    Pub      *webhooks.Publisher
    Auth     *auth.Verifier
    Broker   EventBroker
    Presence *PresenceCache

    GeofenceRadiusM       float64
    PoorAccuracyThreshold float64
    WebhookMaxAttempts    int
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store.
func NewServer(cfg config.Config) (*Server, error) {
    var s store.Store
    if strings.TrimSpace(cfg.DatabaseURL) == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(cfg.DatabaseURL)
        if err != nil {
            return nil, err
        }
        // Run migrations (dev helper)
        if os.Getenv("DB_MIGRATE") != "false" {
            _ = sp.MigrateDir("db/migrations")
        }
        s = sp
    }
    var broker EventBroker
    if cfg.RedisURL != "" {
        if rb, err := NewRedisBroker(); err == nil { broker = rb } else { broker = NewBroker() }
    } else {
        broker = NewBroker()
    }
    return &Server{
        Store: s,
        Pub: webhooks.NewPublisher(s),
        Auth: auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.HMACSecret, cfg.Auth.JWKSURL),
        Broker: broker,
        Presence: NewPresenceCache(),
        GeofenceRadiusM: cfg.Geofence.RadiusM,
        PoorAccuracyThreshold: cfg.Geofence.PoorAccuracyThreshold,
        WebhookMaxAttempts: cfg.Webhooks.MaxAttempts,
    }, nil
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
    tenant := s.getPrincipal(r).Tenant
    ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
    return ctx, tenant
}

type ctxKeyTenant struct{}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store, s.WebhookMaxAttempts)
}
