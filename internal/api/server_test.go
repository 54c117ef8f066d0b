// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/historyatlas/internal/api"
	"github.com/taibuivan/historyatlas/internal/core/ingest"
	"github.com/taibuivan/historyatlas/internal/core/ordering"
	"github.com/taibuivan/historyatlas/internal/core/story"
	"github.com/taibuivan/historyatlas/internal/core/storyindex/indextest"
	"github.com/taibuivan/historyatlas/internal/platform/config"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newServer(t *testing.T, dependencies api.HealthDependencies) (http.Handler, *indextest.Builder) {
	t.Helper()
	cfg, err := config.LoadWith(map[string]string{"DATABASE_URL": "postgres://atlas@localhost/atlas"})
	require.NoError(t, err)

	builder := indextest.New(t)
	index := builder.Index
	traverser := story.NewTraverser(index, cfg.StoryWindowSize, discard)
	assigner := ordering.NewAssigner(index, discard)

	liveness, readiness := api.NewHealthHandlers(dependencies, discard)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	server := api.NewServer(ctx, cfg, discard, nil, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Story:     story.NewHandler(story.NewService(index, traverser, nil, "en", discard)),
		Ingest:    ingest.NewHTTPHandler(ingest.NewHandler(index, assigner, "en", discard)),
		Ordering:  ordering.NewHandler(ctx, ordering.NewReorderer(index, ordering.Options{}, discard), discard),
	})
	return server.Handler(), builder
}

func serve(handler http.Handler, request *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

/*
TestServer_Routes checks the mounted surface end to end.
*/
func TestServer_Routes(t *testing.T) {
	handler, builder := newServer(t, api.HealthDependencies{})
	person := builder.Person("Subject")
	summary := builder.Event("event", person)
	builder.Order(map[uuid.UUID]int64{builder.Instance(summary, person): 100_000})

	bearer := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`{"events":[]}`))
	bearer.Header.Set("Authorization", "Bearer forged")

	tests := []struct {
		name    string
		request *http.Request
		status  int
	}{
		{"liveness", httptest.NewRequest(http.MethodGet, "/health", nil), http.StatusOK},
		{"readiness", httptest.NewRequest(http.MethodGet, "/ready", nil), http.StatusOK},
		{"metrics", httptest.NewRequest(http.MethodGet, "/metrics", nil), http.StatusOK},
		{"default story", httptest.NewRequest(http.MethodGet, "/api/v1/stories/default", nil), http.StatusOK},
		{"story window", httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/stories/%s/events/%s", person, summary), nil), http.StatusOK},
		{"anonymous ingestion", httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`{"events":[]}`)), http.StatusUnauthorized},
		{"unverifiable token", bearer, http.StatusUnauthorized},
		{"anonymous admin", httptest.NewRequest(http.MethodPost, "/api/v1/admin/story-orders/recalculate", nil), http.StatusUnauthorized},
		{"unknown route", httptest.NewRequest(http.MethodGet, "/api/v1/comics", nil), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, serve(handler, tt.request).Code)
		})
	}
}

/*
TestServer_Metrics verifies that request metrics are exported.
*/
func TestServer_Metrics(t *testing.T) {
	handler, _ := newServer(t, api.HealthDependencies{})
	serve(handler, httptest.NewRequest(http.MethodGet, "/health", nil))

	recorder := serve(handler, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, recorder.Body.String(), "historyatlas_")
}

/*
TestServer_Degraded reports failing dependencies with 503.
*/
func TestServer_Degraded(t *testing.T) {
	handler, _ := newServer(t, api.HealthDependencies{
		CheckDatabase: func(context.Context) error { return nil },
		CheckCache:    func(context.Context) error { return errors.New("redis: ping failed") },
	})

	recorder := serve(handler, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"degraded"`)
	assert.Contains(t, recorder.Body.String(), "redis: ping failed")
}
