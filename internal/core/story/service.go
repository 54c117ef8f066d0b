// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package story

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/core/storyindex"
	"github.com/taibuivan/historyatlas/internal/platform/validate"
	"github.com/taibuivan/historyatlas/pkg/slice"
)

const (
	FieldLatitude  = "lat"
	FieldLongitude = "lon"
	FieldIDs       = "ids"

	// MaxEntityIDs bounds one entity summary lookup.
	MaxEntityIDs = 100
)

// Cache is the read view of the default story cache.
type Cache interface {
	// Peek returns a primed story without computing a missing one.
	Peek(tagID uuid.UUID) (*atlas.CachedStory, bool)

	// Get returns the default story of a tag, computing it on a miss.
	Get(ctx context.Context, tagID uuid.UUID) (*atlas.CachedStory, error)

	// Top returns the primed story of the most tagged entity.
	Top() (*atlas.CachedStory, bool)
}

// # Service Layer

// Service answers the story queries.
type Service struct {
	index     storyindex.Reader
	traverser *Traverser
	cache     Cache
	lang      string
	logger    *slog.Logger
}

// NewService constructs a [Service]. cache may be nil; lang is the language
// cached stories are titled in.
func NewService(index storyindex.Reader, traverser *Traverser, cache Cache, lang string, logger *slog.Logger) *Service {
	return &Service{index: index, traverser: traverser, cache: cache, lang: lang, logger: logger}
}

// # Story Operations

/*
GetStoryList returns the story window addressed by request.

Description: A centered request for a tag's default pointer in the cached
language is served from the cache, which computes and keeps a missing entry.
Everything else goes to the traverser.

Returns:
  - *atlas.Story: the hydrated window
  - error: [atlas.MissingResourceError] for an unknown story or event
*/
func (service *Service) GetStoryList(ctx context.Context, request Request) (*atlas.Story, error) {
	if request.Lang == "" {
		request.Lang = service.lang
	}

	if service.cacheable(request) {
		if cached, ok := service.cachedDefault(ctx, request.StoryID, request.EventID); ok {
			service.logger.Debug("story_served_from_cache",
				slog.String("story_id", request.StoryID.String()),
				slog.Time("computed_at", cached.ComputedAt),
			)
			return &cached.Story, nil
		}
	}
	return service.traverser.Story(ctx, request)
}

// cachedDefault returns the cached default story of storyID when eventID is
// its default pointer. A miss reads through the cache only after the index
// confirms the pointer, so other pivots never trigger a computation.
func (service *Service) cachedDefault(ctx context.Context, storyID, eventID uuid.UUID) (*atlas.CachedStory, bool) {
	if cached, ok := service.cache.Peek(storyID); ok {
		return cached, cached.Pointer.EventID == eventID
	}

	first, err := service.index.DefaultEventForTag(ctx, storyID)
	if err != nil || first.SummaryID != eventID {
		return nil, false
	}

	cached, err := service.cache.Get(ctx, storyID)
	if err != nil {
		if !atlas.IsMissing(err) {
			service.logger.Warn("story_cache_read_failed",
				slog.String("story_id", storyID.String()),
				slog.Any("error", err),
			)
		}
		return nil, false
	}
	return cached, cached.Pointer.EventID == eventID
}

func (service *Service) cacheable(request Request) bool {
	return service.cache != nil &&
		request.Direction == atlas.DirectionNone &&
		request.Lang == service.lang &&
		(request.Size <= 0 || request.Size == service.traverser.window)
}

/*
GetDefaultStoryAndEvent resolves a possibly partial pointer.

Description:
  - story and event: the pair is checked and returned.
  - story only: the story's first ordered event, read through the cache so
    the window the client asks for next is already computed.
  - event only: the first ordered tag of the event, by character position.
  - neither: the most tagged story and its first event.

Returns:
  - *atlas.StoryPointer: a pointer a traversal can start from
  - error: [atlas.MissingResourceError] when nothing can be resolved
*/
func (service *Service) GetDefaultStoryAndEvent(ctx context.Context, storyID, eventID *uuid.UUID) (*atlas.StoryPointer, error) {
	switch {
	case storyID != nil && eventID != nil:
		if _, err := service.traverser.pivot(ctx, *eventID, *storyID); err != nil {
			return nil, err
		}
		return &atlas.StoryPointer{EventID: *eventID, StoryID: *storyID}, nil

	case storyID != nil:
		if service.cache != nil {
			cached, err := service.cache.Get(ctx, *storyID)
			switch {
			case err == nil:
				return &cached.Pointer, nil
			case atlas.IsMissing(err):
				return nil, err
			}
			service.logger.Warn("story_cache_read_failed",
				slog.String("story_id", storyID.String()),
				slog.Any("error", err),
			)
		}
		first, err := service.index.DefaultEventForTag(ctx, *storyID)
		if err != nil {
			return nil, err
		}
		return &atlas.StoryPointer{EventID: first.SummaryID, StoryID: *storyID}, nil

	case eventID != nil:
		cotags, err := service.index.CoTags(ctx, *eventID)
		if err != nil {
			return nil, err
		}
		for _, instance := range cotags {
			if instance.Ordered() {
				return &atlas.StoryPointer{EventID: *eventID, StoryID: instance.TagID}, nil
			}
		}
		return nil, atlas.NewMissing("story", *eventID)
	}

	if service.cache != nil {
		if cached, ok := service.cache.Top(); ok {
			return &cached.Pointer, nil
		}
	}

	top, err := service.index.MostTaggedStories(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(top) == 0 {
		return nil, &atlas.MissingResourceError{Resource: "story"}
	}
	first, err := service.index.DefaultEventForTag(ctx, top[0])
	if err != nil {
		return nil, err
	}
	return &atlas.StoryPointer{EventID: first.SummaryID, StoryID: top[0]}, nil
}

// # Queries

/*
GetManifest returns the citations and yearly timeline of a tag.

Parameters:
  - tagID: uuid.UUID
  - typ: string (optional PERSON, PLACE or TIME, case insensitive)

Returns:
  - *atlas.Manifest
  - error: [atlas.UnknownManifestTypeError] for an unsupported typ,
    [atlas.MissingResourceError] when no tag of that type exists
*/
func (service *Service) GetManifest(ctx context.Context, tagID uuid.UUID, typ string) (*atlas.Manifest, error) {
	var want atlas.TagType
	if typ != "" {
		want = atlas.TagType(strings.ToUpper(typ))
		if !want.Valid() {
			return nil, &atlas.UnknownManifestTypeError{Type: typ}
		}
	}

	manifest, err := service.index.Manifest(ctx, tagID)
	if err != nil {
		return nil, err
	}
	if want != "" && manifest.Type != want {
		return nil, atlas.NewMissing(strings.ToLower(string(want)), tagID)
	}
	return manifest, nil
}

/*
GetPlaceByCoords returns the place tag at exactly (latitude, longitude).

Returns:
  - *uuid.UUID: nil when no place sits at the coordinates
  - error: validation errors for out of range coordinates
*/
func (service *Service) GetPlaceByCoords(ctx context.Context, latitude, longitude float64) (*uuid.UUID, error) {
	validator := &validate.Validator{}
	validator.Latitude(FieldLatitude, latitude)
	validator.Longitude(FieldLongitude, longitude)
	if err := validator.Err(); err != nil {
		return nil, err
	}
	return service.index.PlaceByCoords(ctx, latitude, longitude)
}

/*
GetEntitySummariesByIDs describes the given tags in request order, once per
distinct id. Unknown ids are skipped.
*/
func (service *Service) GetEntitySummariesByIDs(ctx context.Context, ids []uuid.UUID) ([]atlas.EntitySummary, error) {
	ids = slice.Unique(ids)

	validator := &validate.Validator{}
	validator.Custom(FieldIDs, len(ids) == 0, "At least one id is required")
	validator.Custom(FieldIDs, len(ids) > MaxEntityIDs, "At most 100 ids per request")
	if err := validator.Err(); err != nil {
		return nil, err
	}
	return service.index.EntitySummaries(ctx, ids)
}
