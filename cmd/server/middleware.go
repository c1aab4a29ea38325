package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lazulihq/reco-api/reco"
)

type contextKey string

const (
	tenantContextKey  contextKey = "tenant"
	subjectContextKey contextKey = "subject"
)

// requireAuth validates the Bearer JWT (HS256, shared secret) and stores the
// token subject in the request context. Missing or malformed credentials are
// unauthorized; so is a token that fails verification, with the reason
// surfaced in the response details.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}
		raw := strings.TrimSpace(header[len("bearer "):])

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token", err)
			return
		}

		sub, _ := claims["sub"].(string)
		ctx := context.WithValue(r.Context(), subjectContextKey, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireTenant resolves the tenant from the X-Tenant header or the ?tenant=
// query parameter and stores it in the request context.
func (s *Server) requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		domain := r.Header.Get("X-Tenant")
		if domain == "" {
			domain = r.URL.Query().Get("tenant")
		}
		if domain == "" {
			respondError(w, http.StatusBadRequest, "tenant not specified (X-Tenant header or ?tenant=)", nil)
			return
		}

		tenant, err := s.tenants.ByDomain(r.Context(), domain)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to resolve tenant", err)
			return
		}
		if tenant == nil {
			respondError(w, http.StatusNotFound, "tenant not found", nil)
			return
		}

		ctx := context.WithValue(r.Context(), tenantContextKey, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tenantFrom returns the tenant resolved by requireTenant.
func tenantFrom(ctx context.Context) *reco.Tenant {
	t, _ := ctx.Value(tenantContextKey).(*reco.Tenant)
	return t
}
