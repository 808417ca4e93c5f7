package api

import (
	"sync"
)

// LatestPosition holds the last device position recorded for a salesman,
// refreshed on every accepted check-in.
type LatestPosition struct {
	Tenant     string  `json:"tenantId"`
	SalesmanID string  `json:"salesmanId"`
	CustomerID string  `json:"customerId"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	TS         string  `json:"ts"`
}

// PresenceCache stores latest salesman positions per tenant.
type PresenceCache struct {
	mu sync.Mutex
	// key: tenant|salesmanId
	m map[string]LatestPosition
}

// NewPresenceCache constructs a PresenceCache.
func NewPresenceCache() *PresenceCache { return &PresenceCache{m: map[string]LatestPosition{}} }

func (c *PresenceCache) key(tenant, salesmanID string) string {
	return tenant + "|" + salesmanID
}

// Upsert stores or updates the latest position for a salesman.
func (c *PresenceCache) Upsert(tenant, salesmanID, customerID string, lat, lng float64, ts string) {
	if tenant == "" || salesmanID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[c.key(tenant, salesmanID)] = LatestPosition{
		Tenant: tenant, SalesmanID: salesmanID, CustomerID: customerID,
		Lat: lat, Lng: lng, TS: ts,
	}
}

// Get returns the latest position for a salesman, if any.
func (c *PresenceCache) Get(tenant, salesmanID string) (LatestPosition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.m[c.key(tenant, salesmanID)]
	return p, ok
}

// ListByTenant returns the latest positions for every salesman of a tenant.
func (c *PresenceCache) ListByTenant(tenant string) []LatestPosition {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []LatestPosition{}
	prefix := tenant + "|"
	for k, v := range c.m {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, v)
		}
	}
	return out
}
