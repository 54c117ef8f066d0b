// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ordering_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/historyatlas/internal/core/ordering"
	"github.com/taibuivan/historyatlas/internal/platform/ctxutil"
	"github.com/taibuivan/historyatlas/internal/platform/sec"
)

func adminRouter(handler *ordering.Handler, role sec.UserRole) http.Handler {
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			claims := &sec.AuthClaims{UserID: "operator", Role: string(role)}
			next.ServeHTTP(writer, request.WithContext(ctxutil.WithAuthUser(request.Context(), claims)))
		})
	})
	handler.RegisterRoutes(router)
	return router
}

func call(router http.Handler, method, target string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(method, target, nil))
	return recorder
}

/*
TestHandler_Recalculate runs a background reorder and reads its report.
*/
func TestHandler_Recalculate(t *testing.T) {
	f := newFixture(t)
	f.dated(1990)
	f.dated(1991)

	handler := ordering.NewHandler(context.Background(), ordering.NewReorderer(f.Index, ordering.Options{}, discard), discard)
	router := adminRouter(handler, sec.RoleAdmin)

	recorder := call(router, http.MethodPost, "/admin/story-orders/recalculate")
	require.Equal(t, http.StatusAccepted, recorder.Code)
	handler.Wait()

	recorder = call(router, http.MethodGet, "/admin/story-orders/status")
	require.Equal(t, http.StatusOK, recorder.Code)

	var envelope struct {
		Data ordering.RunStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	assert.False(t, envelope.Data.Running)
	require.NotNil(t, envelope.Data.Report)
	assert.Equal(t, int64(2), envelope.Data.Report.Assigned)
	assert.Empty(t, envelope.Data.Error)
	assert.NotNil(t, envelope.Data.FinishedAt)

	pending, err := f.Index.CountPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

/*
TestHandler_RequiresAdmin rejects lower roles.
*/
func TestHandler_RequiresAdmin(t *testing.T) {
	f := newFixture(t)
	handler := ordering.NewHandler(context.Background(), ordering.NewReorderer(f.Index, ordering.Options{}, discard), discard)

	for _, role := range []sec.UserRole{sec.RoleReader, sec.RoleIngestor} {
		t.Run(string(role), func(t *testing.T) {
			router := adminRouter(handler, role)
			assert.Equal(t, http.StatusForbidden, call(router, http.MethodPost, "/admin/story-orders/recalculate").Code)
			assert.Equal(t, http.StatusForbidden, call(router, http.MethodGet, "/admin/story-orders/status").Code)
		})
	}
	assert.False(t, handler.Snapshot().Running)
}
