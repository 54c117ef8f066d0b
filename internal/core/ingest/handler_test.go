// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ingest_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/core/chrono"
	"github.com/taibuivan/historyatlas/internal/core/ingest"
	"github.com/taibuivan/historyatlas/internal/core/ordering"
	"github.com/taibuivan/historyatlas/internal/core/storyindex"
	"github.com/taibuivan/historyatlas/internal/platform/apperr"
	"github.com/taibuivan/historyatlas/pkg/pointer"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// stream numbers events the way the write model does.
type stream struct {
	t     *testing.T
	index int64
}

func (s *stream) event(eventType string, payload any) ingest.Envelope {
	s.t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(s.t, err)
	s.index++
	return ingest.Envelope{Type: eventType, Index: s.index, Payload: raw}
}

func (s *stream) summary(id uuid.UUID, text string) ingest.Envelope {
	return s.event(ingest.TypeSummaryAdded, ingest.SummaryPayload{ID: id, Text: text})
}

func (s *stream) person(eventType string, tagID, summaryID uuid.UUID, name string, after ...uuid.UUID) ingest.Envelope {
	return s.event(eventType, ingest.TagPayload{
		ID: tagID, SummaryID: summaryID, Name: name, CitationStart: 0, CitationEnd: len(name), After: after,
	})
}

func (s *stream) year(tagID, summaryID uuid.UUID, year int) ingest.Envelope {
	datetime := fmt.Sprintf("+%04d-00-00T00:00:00Z", year)
	return s.event(ingest.TypeTimeAdded, ingest.TagPayload{
		ID: tagID, SummaryID: summaryID, Name: datetime, CitationStart: 20, CitationEnd: 24,
		Time: datetime, CalendarModel: "gregorian", Precision: chrono.PrecisionYear,
	})
}

func newHandler(t *testing.T) (*ingest.Handler, *storyindex.MemoryIndex, *stream) {
	index := storyindex.NewMemoryIndex()
	handler := ingest.NewHandler(index, ordering.NewAssigner(index, discard), "en", discard)
	return handler, index, &stream{t: t}
}

/*
TestHandler_Lifecycle ingests a cited summary with a person and a date and
checks every row it produces.
*/
func TestHandler_Lifecycle(t *testing.T) {
	ctx := context.Background()
	handler, index, s := newHandler(t)
	summaryID, citationID, sourceID := uuid.New(), uuid.New(), uuid.New()
	personID, timeID := uuid.New(), uuid.New()

	result, err := handler.Handle(ctx, []ingest.Envelope{
		s.event(ingest.TypeSummaryAdded, ingest.SummaryPayload{ID: summaryID, CitationID: citationID, Text: "Ada publishes her notes in 1843."}),
		s.event(ingest.TypeCitationAdded, ingest.CitationPayload{ID: citationID, Text: "Sketch of the Analytical Engine", PageNum: pointer.To(7)}),
		s.event(ingest.TypeMetaAdded, ingest.MetaPayload{ID: sourceID, CitationID: citationID, Title: "Scientific Memoirs", Author: "Taylor"}),
		s.person(ingest.TypePersonAdded, personID, summaryID, "  Ada \t Lovelace "),
		s.year(timeID, summaryID, 1843),
	})
	require.NoError(t, err)
	assert.Equal(t, ingest.Result{Applied: 5, Instances: 2, Ordered: 2}, result)

	instance, err := index.InstanceForEvent(ctx, summaryID, personID)
	require.NoError(t, err)
	require.True(t, instance.Ordered())
	assert.Equal(t, ordering.DefaultBase, *instance.StoryOrder)

	names, err := index.StoryNames(ctx, []uuid.UUID{personID, timeID}, "en")
	require.NoError(t, err)
	assert.Equal(t, "The Life of Ada Lovelace", names[personID])
	assert.Equal(t, "+1843-00-00T00:00:00Z", names[timeID])

	events, err := index.EventsByIDs(ctx, []uuid.UUID{summaryID}, "en")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Source)
	assert.Equal(t, "Scientific Memoirs", events[0].Source.Title)
	assert.Equal(t, pointer.To(7), events[0].Source.PageNum)
	require.NotNil(t, events[0].Date)
	assert.Equal(t, chrono.PrecisionYear, events[0].Date.Precision)
}

/*
TestHandler_PlaceCoordinates verifies that a place keeps the coordinates it
was ingested with.
*/
func TestHandler_PlaceCoordinates(t *testing.T) {
	ctx := context.Background()
	handler, index, s := newHandler(t)
	summaryID, placeID := uuid.New(), uuid.New()

	_, err := handler.Handle(ctx, []ingest.Envelope{
		s.summary(summaryID, "The treaty is signed in Paris."),
		s.event(ingest.TypePlaceAdded, ingest.TagPayload{
			ID: placeID, SummaryID: summaryID, Name: "Paris", CitationStart: 24, CitationEnd: 29,
			Latitude: pointer.To(48.8566), Longitude: pointer.To(2.3522),
		}),
	})
	require.NoError(t, err)

	found, err := index.PlaceByCoords(ctx, 48.8566, 2.3522)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, placeID, *found)
}

/*
TestHandler_OrdersByDate verifies that instances of one batch are placed by
event date, not arrival order.
*/
func TestHandler_OrdersByDate(t *testing.T) {
	ctx := context.Background()
	handler, index, s := newHandler(t)
	personID := uuid.New()
	late, early := uuid.New(), uuid.New()

	_, err := handler.Handle(ctx, []ingest.Envelope{
		s.summary(late, "late"),
		s.person(ingest.TypePersonAdded, personID, late, "Subject"),
		s.year(uuid.New(), late, 1901),
		s.summary(early, "early"),
		s.person(ingest.TypePersonTagged, personID, early, "Subject"),
		s.year(uuid.New(), early, 1850),
	})
	require.NoError(t, err)

	lateInstance, err := index.InstanceForEvent(ctx, late, personID)
	require.NoError(t, err)
	earlyInstance, err := index.InstanceForEvent(ctx, early, personID)
	require.NoError(t, err)

	require.True(t, lateInstance.Ordered())
	require.True(t, earlyInstance.Ordered())
	assert.Less(t, *earlyInstance.StoryOrder, *lateInstance.StoryOrder)
}

/*
TestHandler_AtMostOnce covers replayed indexes, re-sent payloads and
repeated tagging.
*/
func TestHandler_AtMostOnce(t *testing.T) {
	ctx := context.Background()
	handler, index, s := newHandler(t)
	summaryID, personID := uuid.New(), uuid.New()

	first := []ingest.Envelope{s.summary(summaryID, "event"), s.person(ingest.TypePersonAdded, personID, summaryID, "Subject")}
	_, err := handler.Handle(ctx, first)
	require.NoError(t, err)

	t.Run("re-sent payloads are remembered", func(t *testing.T) {
		result, err := handler.Handle(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, ingest.Result{Repeated: 2}, result)
	})

	t.Run("replayed index is dropped", func(t *testing.T) {
		replay := first[0]
		replay.Payload = json.RawMessage(fmt.Sprintf(`{"id":%q,"text":"rewritten"}`, summaryID))

		result, err := handler.Handle(ctx, []ingest.Envelope{replay})
		require.NoError(t, err)
		assert.Equal(t, ingest.Result{Duplicates: 1}, result)

		events, err := index.EventsByIDs(ctx, []uuid.UUID{summaryID}, "en")
		require.NoError(t, err)
		assert.Equal(t, "event", events[0].Text)
	})

	t.Run("tagging twice keeps one instance", func(t *testing.T) {
		result, err := handler.Handle(ctx, []ingest.Envelope{
			s.person(ingest.TypePersonTagged, personID, summaryID, "Subject"),
		})
		require.NoError(t, err)
		assert.Equal(t, ingest.Result{Applied: 1}, result)
		assert.Len(t, index.Instances(personID), 1)
	})
}

/*
TestHandler_StopsOnFailure verifies that a failing event stops the batch,
leaves its index unclaimed and still orders what was created before it.
*/
func TestHandler_StopsOnFailure(t *testing.T) {
	ctx := context.Background()
	handler, index, s := newHandler(t)
	known, unknown, personID := uuid.New(), uuid.New(), uuid.New()

	tagged := s.person(ingest.TypePersonTagged, personID, unknown, "Subject")
	result, err := handler.Handle(ctx, []ingest.Envelope{
		s.summary(known, "known"),
		s.person(ingest.TypePersonAdded, personID, known, "Subject"),
		tagged,
		s.summary(uuid.New(), "never reached"),
	})
	require.Error(t, err)
	assert.True(t, atlas.IsMissing(err))
	assert.Equal(t, ingest.Result{Applied: 2, Instances: 1, Ordered: 1}, result)

	result, err = handler.Handle(ctx, []ingest.Envelope{s.summary(unknown, "late summary"), tagged})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Applied)
	assert.Len(t, index.Instances(personID), 2)
}

/*
TestHandler_Validation rejects malformed events before any write.
*/
func TestHandler_Validation(t *testing.T) {
	s := &stream{t: t}
	summaryID := uuid.New()

	tests := []struct {
		name  string
		event ingest.Envelope
	}{
		{"unknown type", s.event("DragonAdded", map[string]string{})},
		{"malformed payload", ingest.Envelope{Type: ingest.TypeSummaryAdded, Index: 99, Payload: json.RawMessage(`[1,2]`)}},
		{"summary without id", s.event(ingest.TypeSummaryAdded, ingest.SummaryPayload{Text: "text"})},
		{"person without name", s.person(ingest.TypePersonAdded, uuid.New(), summaryID, "")},
		{"inverted span", s.event(ingest.TypePersonAdded, ingest.TagPayload{ID: uuid.New(), SummaryID: summaryID, Name: "X", CitationStart: 5, CitationEnd: 2})},
		{"place without coordinates", s.event(ingest.TypePlaceAdded, ingest.TagPayload{ID: uuid.New(), SummaryID: summaryID, Name: "Paris"})},
		{"place out of range", s.event(ingest.TypePlaceAdded, ingest.TagPayload{
			ID: uuid.New(), SummaryID: summaryID, Name: "Nowhere", Latitude: pointer.To(91.0), Longitude: pointer.To(0.0),
		})},
		{"time without precision", s.event(ingest.TypeTimeAdded, ingest.TagPayload{ID: uuid.New(), SummaryID: summaryID, Name: "1900", Time: "+1900-00-00T00:00:00Z"})},
		{"time unparsable", s.event(ingest.TypeTimeAdded, ingest.TagPayload{
			ID: uuid.New(), SummaryID: summaryID, Name: "soon", Time: "soon", Precision: chrono.PrecisionYear,
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _, _ := newHandler(t)
			result, err := handler.Handle(context.Background(), []ingest.Envelope{tt.event})
			require.Error(t, err)

			appErr := apperr.As(err)
			require.NotNil(t, appErr, "error %v carries no AppError", err)
			assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
			assert.Zero(t, result.Applied)
		})
	}
}

// deferringAssigner never manages to place an instance.
type deferringAssigner struct{ calls int }

func (assigner *deferringAssigner) Assign(context.Context, uuid.UUID) (int64, error) {
	assigner.calls++
	return 0, atlas.ErrUnorderable
}

/*
TestHandler_Deferred verifies that unorderable instances are left for the
bulk reorderer without failing the batch.
*/
func TestHandler_Deferred(t *testing.T) {
	index := storyindex.NewMemoryIndex()
	assigner := &deferringAssigner{}
	handler := ingest.NewHandler(index, assigner, "en", discard)
	s := &stream{t: t}
	summaryID, personID := uuid.New(), uuid.New()

	result, err := handler.Handle(context.Background(), []ingest.Envelope{
		s.summary(summaryID, "event"),
		s.person(ingest.TypePersonAdded, personID, summaryID, "Subject"),
	})
	require.NoError(t, err)
	assert.Equal(t, ingest.Result{Applied: 2, Instances: 1, Deferred: 1}, result)
	assert.Equal(t, 1, assigner.calls)

	pending, err := index.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}

/*
TestStoryTitle names stories the way the atlas presents them.
*/
func TestStoryTitle(t *testing.T) {
	assert.Equal(t, "The Life of Ada", ingest.StoryTitle(atlas.TagPerson, "Ada"))
	assert.Equal(t, "The History of Paris", ingest.StoryTitle(atlas.TagPlace, "Paris"))
	assert.Equal(t, "1900", ingest.StoryTitle(atlas.TagTime, "1900"))
}
