// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ingest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/historyatlas/internal/platform/apperr"
	"github.com/taibuivan/historyatlas/internal/platform/ctxutil"
	"github.com/taibuivan/historyatlas/internal/platform/middleware"
	requestutil "github.com/taibuivan/historyatlas/internal/platform/request"
	"github.com/taibuivan/historyatlas/internal/platform/respond"
	"github.com/taibuivan/historyatlas/internal/platform/sec"
)

// MaxBatchEvents bounds one POST /events body.
const MaxBatchEvents = 500

// Batch is the body of POST /events.
type Batch struct {
	Events []Envelope `json:"events"`
}

// # Handler Implementation

// HTTPHandler exposes the ingestion [Handler] to the write model.
type HTTPHandler struct {
	events *Handler
}

// NewHTTPHandler constructs a new ingestion [HTTPHandler].
func NewHTTPHandler(events *Handler) *HTTPHandler {
	return &HTTPHandler{events: events}
}

// RegisterRoutes attaches the protected ingestion endpoint to the API router.
func (handler *HTTPHandler) RegisterRoutes(api chi.Router) {
	api.Group(func(ingestor chi.Router) {
		ingestor.Use(middleware.RequireRole(sec.RoleIngestor))
		ingestor.Post("/events", handler.PostEvents)
	})
}

/*
POST /api/v1/events.

Description: Applies a batch of write-model events in order.

Request:
  - events: []Envelope (type, index, payload)

Response:
  - 200: Result: applied, duplicate and ordering counters
  - 400: ErrValidation: malformed body, unknown type or invalid payload
  - 404: ErrNotFound: an event references a summary or tag not yet ingested
*/
func (handler *HTTPHandler) PostEvents(writer http.ResponseWriter, request *http.Request) {
	var batch Batch
	if err := requestutil.DecodeJSON(writer, request, &batch); err != nil {
		respond.Error(writer, request, err)
		return
	}
	if len(batch.Events) == 0 || len(batch.Events) > MaxBatchEvents {
		respond.Error(writer, request, apperr.ValidationError("Invalid batch",
			apperr.FieldError{Field: "events", Message: "Must hold between 1 and 500 events"}))
		return
	}

	result, err := handler.events.Handle(request.Context(), batch.Events)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	ctxutil.Component(request.Context(), "ingest").InfoContext(request.Context(), "event_batch_ingested",
		slog.Int("events", len(batch.Events)),
		slog.Int("applied", result.Applied),
		slog.Int("deferred", result.Deferred),
	)
	respond.OK(writer, result)
}
