package tenant

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newRequest(t *testing.T, url string) *http.Request {
	t.Helper()
	return httptest.NewRequest(http.MethodGet, url, nil)
}

func TestResolveHeaderWins(t *testing.T) {
	r := NewResolver("X-Councillor-ID", "councillorId", "public")

	req := newRequest(t, "http://ward-7.councilmail.org/campaigns?councillorId=query-id")
	req.Header.Set("X-Councillor-ID", "header-id")

	assert.Equal(t, "header-id", r.Resolve(req))
}

func TestResolveQueryBeforeSubdomain(t *testing.T) {
	r := NewResolver("X-Councillor-ID", "councillorId", "public")

	req := newRequest(t, "http://ward-7.councilmail.org/track/pixel?councillorId=query-id")
	assert.Equal(t, "query-id", r.Resolve(req))
}

func TestResolveSubdomain(t *testing.T) {
	r := NewResolver("X-Councillor-ID", "councillorId", "public")

	assert.Equal(t, "ward-7", r.Resolve(newRequest(t, "http://ward-7.councilmail.org/lists")))
	assert.Equal(t, "public", r.Resolve(newRequest(t, "http://councilmail.org/lists")), "bare host has no label")
	assert.Equal(t, "public", r.Resolve(newRequest(t, "http://www.councilmail.org/lists")), "www is not a tenant")
	assert.Equal(t, "public", r.Resolve(newRequest(t, "http://127.0.0.1:8080/lists")))
	assert.Equal(t, "public", r.Resolve(newRequest(t, "http://localhost:8080/lists")))
}

func TestResolveIsDeterministic(t *testing.T) {
	r := NewResolver("X-Councillor-ID", "councillorId", "public")
	req := newRequest(t, "http://councilmail.org/track/pixel")

	first := r.Resolve(req)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, r.Resolve(req))
	}
}

func TestMiddlewareStoresContext(t *testing.T) {
	r := NewResolver("X-Councillor-ID", "", "public")

	var got string
	h := r.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		got = FromContext(req.Context())
	}))

	req := newRequest(t, "http://councilmail.org/lists")
	req.Header.Set("X-Councillor-ID", "cll-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "cll-42", got)
}
