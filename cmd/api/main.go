package main

import (
    "bufio"
    "fmt"
    "log"
    "net"
    "net/http"
    "strconv"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "github.com/anzarahmad52/salesman-journey/internal/api"
    "github.com/anzarahmad52/salesman-journey/internal/config"
    "github.com/anzarahmad52/salesman-journey/internal/metrics"
)

func main() {
    cfg, err := config.Load()
    if err != nil {
        log.Fatalf("failed to load config: %v", err)
    }
    srvDeps, err := api.NewServer(cfg)
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }

    mux := http.NewServeMux()

    // Customers
    mux.HandleFunc("/v1/customers", srvDeps.CustomersHandler)

    // Journey plans
    mux.HandleFunc("/v1/journey-plans", srvDeps.JourneyPlansHandler)
    mux.HandleFunc("/v1/journey-plans/", srvDeps.JourneyPlanByIDHandler) // includes /due

    // Visits
    mux.HandleFunc("/v1/visits/generate", srvDeps.VisitsGenerateHandler)
    mux.HandleFunc("/v1/visits/ws", srvDeps.VisitsWSHandler)
    mux.HandleFunc("/v1/visits/stream", srvDeps.VisitsStreamHandler)
    mux.HandleFunc("/v1/visits", srvDeps.VisitsHandler)
    mux.HandleFunc("/v1/visits/", srvDeps.VisitByIDHandler) // includes /check-in, /check-out, /stream

    // Calendar and reports
    mux.HandleFunc("/v1/calendar", srvDeps.CalendarHandler)
    mux.HandleFunc("/v1/reports/visits", srvDeps.ReportVisitsHandler)
    mux.HandleFunc("/v1/reports/coverage", srvDeps.ReportCoverageHandler)

    // Presence
    mux.HandleFunc("/v1/presence", srvDeps.PresenceHandler)

    // Subscriptions
    mux.HandleFunc("/v1/subscriptions", srvDeps.SubscriptionsHandler)
    mux.HandleFunc("/v1/subscriptions/", srvDeps.SubscriptionByIDHandler)

    // Health
    mux.HandleFunc("/healthz", srvDeps.HealthHandler)
    mux.HandleFunc("/readyz", srvDeps.ReadyHandler)

    // Admin
    mux.HandleFunc("/v1/admin/webhook-deliveries", srvDeps.WebhookDeliveriesHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries/", srvDeps.WebhookDeliveryRetryHandler)

    // Metrics
    metrics.RegisterDefault()
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    addr := ":" + strconv.Itoa(cfg.Port)

    rl := api.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

    srv := &http.Server{
        Addr:              addr,
        Handler:           logMiddleware(rl.Middleware(mux)),
        ReadHeaderTimeout: 5 * time.Second,
    }

    log.Printf("API listening on %s", addr)
    if srvDeps.Pub != nil {
        worker := srvDeps.NewWebhookWorker()
        worker.Start()
    }
    if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
        log.Fatalf("server error: %v", err)
    }
}

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (sr *statusRecorder) WriteHeader(code int) {
    sr.status = code
    sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
    if f, ok := sr.ResponseWriter.(http.Flusher); ok { f.Flush() }
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    if h, ok := sr.ResponseWriter.(http.Hijacker); ok { return h.Hijack() }
    return nil, nil, fmt.Errorf("hijack not supported")
}

func logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(rec, r)
        dur := time.Since(start)
        status := fmt.Sprintf("%d", rec.status)
        metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(dur.Seconds())
        log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
    })
}
