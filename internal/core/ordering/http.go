// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ordering

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/historyatlas/internal/platform/apperr"
	"github.com/taibuivan/historyatlas/internal/platform/constants"
	"github.com/taibuivan/historyatlas/internal/platform/middleware"
	"github.com/taibuivan/historyatlas/internal/platform/respond"
	"github.com/taibuivan/historyatlas/internal/platform/sec"
)

// RunStatus describes the latest on-demand bulk run.
type RunStatus struct {
	Running    bool       `json:"running"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Report     *Report    `json:"report,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// # Handler Implementation

// Handler triggers [Reorderer] runs from the admin API. At most one run is in
// flight; it outlives the request that started it.
type Handler struct {
	reorderer *Reorderer
	base      context.Context
	logger    *slog.Logger

	mu     sync.Mutex
	status RunStatus
	done   chan struct{}
}

// NewHandler constructs an admin [Handler]. Runs are canceled when base is.
func NewHandler(base context.Context, reorderer *Reorderer, logger *slog.Logger) *Handler {
	return &Handler{reorderer: reorderer, base: base, logger: logger}
}

// RegisterRoutes attaches the admin endpoints to the API router.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Route("/admin/story-orders", func(admin chi.Router) {
		admin.Use(middleware.RequireRole(sec.RoleAdmin))
		admin.Post("/recalculate", handler.Recalculate)
		admin.Get("/status", handler.Status)
	})
}

/*
POST /api/v1/admin/story-orders/recalculate.

Description: Starts a bulk reorder of every NULL story order in the
background.

Response:
  - 202: RunStatus: the run just started
  - 409: ErrConflict: a run is already in progress
*/
func (handler *Handler) Recalculate(writer http.ResponseWriter, request *http.Request) {
	status, started := handler.start()
	if !started {
		respond.Error(writer, request, apperr.Conflict("A story order recalculation is already running"))
		return
	}
	respond.Accepted(writer, status)
}

/*
GET /api/v1/admin/story-orders/status.

Response:
  - 200: RunStatus: the running or last finished run
*/
func (handler *Handler) Status(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, handler.Snapshot())
}

// Snapshot returns a copy of the current status.
func (handler *Handler) Snapshot() RunStatus {
	handler.mu.Lock()
	defer handler.mu.Unlock()
	return handler.status
}

// Wait blocks until the in-flight run, if any, has finished.
func (handler *Handler) Wait() {
	handler.mu.Lock()
	done := handler.done
	handler.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (handler *Handler) start() (RunStatus, bool) {
	handler.mu.Lock()
	defer handler.mu.Unlock()

	if handler.status.Running {
		return handler.status, false
	}

	now := time.Now().UTC()
	handler.status = RunStatus{Running: true, StartedAt: &now}
	handler.done = make(chan struct{})

	go handler.run(handler.done)
	return handler.status, true
}

func (handler *Handler) run(done chan struct{}) {
	defer close(done)

	ctx, cancel := context.WithTimeout(handler.base, constants.BulkStatementTimeout)
	defer cancel()

	report, err := handler.reorderer.Run(ctx)

	handler.mu.Lock()
	defer handler.mu.Unlock()

	finished := time.Now().UTC()
	handler.status.Running = false
	handler.status.FinishedAt = &finished
	handler.status.Report = &report
	if err != nil {
		handler.status.Error = err.Error()
		handler.logger.Error("story_order_recalculation_failed", slog.Any("error", err))
	}
}
