// Package api implements HTTP handlers and helpers for the visit service.
package api

import (
    "net/http"
    "strings"
)

type Principal struct {
	Tenant     string
	Role       string // admin, supervisor, salesman
	SalesmanID string
}

// getPrincipal extracts tenant, role, and salesman from JWT or headers.
// - If Authorization: Bearer is present, uses configured verifier (dev/hmac/jwks).
// - Else falls back to headers for dev.
func (s *Server) getPrincipal(r *http.Request) Principal {
    authz := r.Header.Get("Authorization")
    if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
        tok := strings.TrimSpace(authz[len("Bearer "):])
        if pr, err := s.Auth.Verify(tok); err == nil {
            return Principal{Tenant: pr.Tenant, Role: pr.Role, SalesmanID: pr.SalesmanID}
        }
    }
    tenant := r.Header.Get("X-Tenant-Id")
    role := r.Header.Get("X-Role")
    salesmanID := r.Header.Get("X-Salesman-Id")
    if tenant == "" {
        tenant = "t_demo"
    }
    if role == "" {
        role = "admin"
    }
    return Principal{Tenant: tenant, Role: role, SalesmanID: salesmanID}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// CanManagePlans reports whether the principal may create or edit templates.
func (p Principal) CanManagePlans() bool { return p.Role == "admin" || p.Role == "supervisor" }

// ActsFor reports whether the principal may operate visits of salesmanID.
// A salesman is scoped to their own visits; admins and supervisors see all.
func (p Principal) ActsFor(salesmanID string) bool {
    if p.Role != "salesman" { return true }
    return p.SalesmanID != "" && p.SalesmanID == salesmanID
}
