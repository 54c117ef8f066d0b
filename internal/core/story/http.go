// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package story

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	requestutil "github.com/taibuivan/historyatlas/internal/platform/request"
	"github.com/taibuivan/historyatlas/internal/platform/respond"
	"github.com/taibuivan/historyatlas/internal/platform/validate"
)

const (
	FieldDirection = "direction"
	FieldSize      = "size"
	FieldID        = "id"
)

// # Handler Implementation

// Handler implements the HTTP layer of the story queries.
type Handler struct {
	service *Service
}

// NewHandler constructs a new story [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes attaches the public story endpoints to the API router.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Get("/manifest/{tagID}", handler.GetManifest)
	api.Get("/stories/default", handler.GetDefaultStory)
	api.Get("/stories/{storyID}/events/{eventID}", handler.GetStoryList)
	api.Get("/places", handler.GetPlaceByCoords)
	api.Get("/entities", handler.GetEntitySummaries)
}

// # Stories

/*
GET /api/v1/stories/{storyID}/events/{eventID}.

Description: Returns the window of a story around one of its events.

Request:
  - storyID: string (tag UUID)
  - eventID: string (summary UUID)
  - direction: string (next, prev, or empty for a centered view)
  - lang: string (story title language)
  - size: int (events per walked side, capped at 50)

Response:
  - 200: Story: id, name and hydrated events
  - 400: ErrValidation: malformed ids, direction or size
  - 404: ErrNotFound: unknown story or event
*/
func (handler *Handler) GetStoryList(writer http.ResponseWriter, request *http.Request) {
	storyID, err := requestutil.UUIDParam(request, "storyID")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	eventID, err := requestutil.UUIDParam(request, "eventID")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	size, err := requestutil.IntQuery(request, FieldSize, 0)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	direction := atlas.Direction(request.URL.Query().Get(FieldDirection))

	v := &validate.Validator{}
	v.Custom(FieldDirection, !direction.Valid(), "Must be one of: next, prev")
	v.Custom(FieldSize, size < 0, "Must not be negative")
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	story, err := handler.service.GetStoryList(request.Context(), Request{
		StoryID:   storyID,
		EventID:   eventID,
		Direction: direction,
		Lang:      request.URL.Query().Get("lang"),
		Size:      size,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, story)
}

/*
GET /api/v1/stories/default.

Description: Resolves a starting pointer from an optional story and event.

Request:
  - story_id: string (optional tag UUID)
  - event_id: string (optional summary UUID)

Response:
  - 200: StoryPointer: event_id and story_id
  - 400: ErrValidation: malformed ids
  - 404: ErrNotFound: no story can be resolved
*/
func (handler *Handler) GetDefaultStory(writer http.ResponseWriter, request *http.Request) {
	storyID, err := requestutil.OptionalUUID(request, "story_id")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	eventID, err := requestutil.OptionalUUID(request, "event_id")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	pointer, err := handler.service.GetDefaultStoryAndEvent(request.Context(), storyID, eventID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, pointer)
}

// # Entities

/*
GET /api/v1/manifest/{tagID}.

Description: Returns the citations and yearly timeline of a tag.

Request:
  - tagID: string (UUID)
  - type: string (optional PERSON, PLACE or TIME)

Response:
  - 200: Manifest
  - 400: ErrValidation: unknown type
  - 404: ErrNotFound: no tag of that type
*/
func (handler *Handler) GetManifest(writer http.ResponseWriter, request *http.Request) {
	tagID, err := requestutil.UUIDParam(request, "tagID")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	manifest, err := handler.service.GetManifest(request.Context(), tagID, request.URL.Query().Get("type"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, manifest)
}

/*
GET /api/v1/places.

Description: Looks up the place tag at exact coordinates.

Request:
  - lat: float
  - lon: float

Response:
  - 200: {id}: the place id, null when none matches
  - 400: ErrValidation: missing or out of range coordinates
*/
func (handler *Handler) GetPlaceByCoords(writer http.ResponseWriter, request *http.Request) {
	latitude, err := requestutil.FloatQuery(request, FieldLatitude)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	longitude, err := requestutil.FloatQuery(request, FieldLongitude)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	id, err := handler.service.GetPlaceByCoords(request.Context(), latitude, longitude)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{FieldID: id})
}

/*
GET /api/v1/entities.

Description: Describes several tags at once.

Request:
  - ids: string (comma separated UUIDs, at most 100)

Response:
  - 200: []EntitySummary
  - 400: ErrValidation: missing or malformed ids
*/
func (handler *Handler) GetEntitySummaries(writer http.ResponseWriter, request *http.Request) {
	ids, err := requestutil.UUIDList(request, FieldIDs)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	summaries, err := handler.service.GetEntitySummariesByIDs(request.Context(), ids)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, summaries)
}
