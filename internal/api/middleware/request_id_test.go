package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mradl/mradl/internal/api/middleware"
)

// requestIDFor runs RequestID with the given inbound header and returns the
// id seen by the handler and the one echoed in the response.
func requestIDFor(inbound string) (seen, echoed string) {
	h := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = middleware.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/weather", http.NoBody)
	if inbound != "" {
		req.Header.Set(middleware.RequestIDHeader, inbound)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return seen, rec.Header().Get(middleware.RequestIDHeader)
}

func TestRequestID_Inbound(t *testing.T) {
	tests := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{"none sent", "", false},
		{"client id", "ios-7F3A_91c2", true},
		{"uuid", "0b6f5c1e-8d7a-4f4e-9a55-2f0d8c3a1b77", true},
		{"max length", strings.Repeat("a", 64), true},
		{"too long", strings.Repeat("a", 65), false},
		{"newline injection", "abc\ninjected", false},
		{"spaces", "abc def", false},
		{"json quote", `abc"def`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen, echoed := requestIDFor(tt.inbound)

			assert.Equal(t, seen, echoed)
			if tt.keep {
				assert.Equal(t, tt.inbound, seen)
			} else {
				assert.True(t, strings.HasPrefix(seen, "req_"), seen)
			}
		})
	}
}

func TestRequestID_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		id, _ := requestIDFor("")
		_, dup := seen[id]
		assert.False(t, dup, "duplicate request id %s", id)
		seen[id] = struct{}{}
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	assert.Empty(t, middleware.GetRequestID(context.Background()))
}
