// Package tenant resolves the councillor identifier that scopes every
// read and write. Resolution is deterministic and never fails: requests
// with no signal at all fall back to a configured councillor so the
// anonymous tracking endpoints stay reachable.
package tenant

import (
	"context"
	"net/http"
	"strings"
)

type contextKey struct{}

// Resolver derives the active councillor ID from a request, in order:
// an authenticated session override header, a routing hint (query
// parameter, then the first Host subdomain label), then the fallback.
type Resolver struct {
	header     string
	queryParam string
	fallback   string
}

// NewResolver creates a resolver. Empty header/queryParam disable that
// source; fallback must be non-empty.
func NewResolver(header, queryParam, fallback string) *Resolver {
	return &Resolver{header: header, queryParam: queryParam, fallback: fallback}
}

// Resolve returns the councillor ID for the request. It is side-effect
// free and always returns a non-empty ID.
func (r *Resolver) Resolve(req *http.Request) string {
	if r.header != "" {
		if id := strings.TrimSpace(req.Header.Get(r.header)); id != "" {
			return id
		}
	}
	if r.queryParam != "" {
		if id := strings.TrimSpace(req.URL.Query().Get(r.queryParam)); id != "" {
			return id
		}
	}
	if label := subdomainLabel(req.Host); label != "" {
		return label
	}
	return r.fallback
}

// Middleware stores the resolved councillor ID in the request context.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := WithCouncillor(req.Context(), r.Resolve(req))
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

// WithCouncillor returns a context carrying the councillor ID.
func WithCouncillor(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the councillor ID stored by Middleware, or "".
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// subdomainLabel extracts the first label of a multi-part host name.
// "ward-7.councilmail.org" → "ward-7"; bare hosts, IPs, and localhost
// yield "".
func subdomainLabel(host string) string {
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	parts := strings.Split(host, ".")
	if len(parts) < 3 {
		return ""
	}
	label := parts[0]
	if label == "" || label == "www" || isNumeric(label) {
		return ""
	}
	return label
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
