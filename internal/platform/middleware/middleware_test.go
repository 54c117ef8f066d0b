// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/historyatlas/internal/platform/ctxutil"
	"github.com/taibuivan/historyatlas/internal/platform/middleware"
	"github.com/taibuivan/historyatlas/internal/platform/sec"
)

type stubConfig struct {
	development bool
}

func (c stubConfig) IsDevelopment() bool  { return c.development }
func (c stubConfig) OriginSuffix() string { return "historyatlas.org" }

type stubVerifier struct {
	claims *sec.AuthClaims
}

func (v stubVerifier) VerifyToken(token string) (*sec.AuthClaims, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return v.claims, nil
}

var okHandler = http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
	writer.WriteHeader(http.StatusOK)
})

/*
TestCORS_OriginSuffix allows subdomains of the configured suffix only.
*/
func TestCORS_OriginSuffix(t *testing.T) {
	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://historyatlas.org", true},
		{"https://www.historyatlas.org", true},
		{"http://localhost.historyatlas.org:3000", true},
		{"https://evilhistoryatlas.org", false},
		{"https://historyatlas.org.evil.com", false},
	}

	handler := middleware.CORS(stubConfig{})(okHandler)
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/api/v1/stories/default", nil)
			request.Header.Set("Origin", tt.origin)
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)

			got := recorder.Header().Get("Access-Control-Allow-Origin")
			if tt.allowed {
				assert.Equal(t, tt.origin, got)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

/*
TestRequireRole maps anonymous to 401 and insufficient roles to 403.
*/
func TestRequireRole(t *testing.T) {
	chain := func(claims *sec.AuthClaims) http.Handler {
		return middleware.Authenticate(stubVerifier{claims: claims})(
			middleware.RequireRole(sec.RoleIngestor)(okHandler),
		)
	}

	tests := []struct {
		name   string
		header string
		claims *sec.AuthClaims
		status int
	}{
		{"anonymous", "", nil, http.StatusUnauthorized},
		{"malformed", "Token good", nil, http.StatusUnauthorized},
		{"invalid", "Bearer bad", nil, http.StatusUnauthorized},
		{"reader", "Bearer good", &sec.AuthClaims{Role: string(sec.RoleReader)}, http.StatusForbidden},
		{"ingestor", "Bearer good", &sec.AuthClaims{Role: string(sec.RoleIngestor)}, http.StatusOK},
		{"admin", "bearer good", &sec.AuthClaims{Role: string(sec.RoleAdmin)}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
			if tt.header != "" {
				request.Header.Set("Authorization", tt.header)
			}
			recorder := httptest.NewRecorder()
			chain(tt.claims).ServeHTTP(recorder, request)
			assert.Equal(t, tt.status, recorder.Code)
		})
	}
}

/*
TestRequestID echoes a caller supplied id and fills the context.
*/
func TestRequestID(t *testing.T) {
	var seen string
	handler := middleware.RequestID()(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		seen = ctxutil.GetRequestID(request.Context())
	}))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("X-Request-ID", "abc")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", recorder.Header().Get("X-Request-ID"))
}
