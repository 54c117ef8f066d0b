// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package story_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/core/chrono"
	"github.com/taibuivan/historyatlas/internal/core/story"
	"github.com/taibuivan/historyatlas/internal/core/storyindex/indextest"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// world seeds dated events and threads them into stories.
type world struct {
	*indextest.Builder
}

func newWorld(t *testing.T) *world {
	return &world{Builder: indextest.New(t)}
}

// event creates a summary dated to year that mentions tags.
func (w *world) event(year int, tags ...uuid.UUID) uuid.UUID {
	summaryID := w.Event("event", tags...)
	w.Mention(summaryID, w.Year(year))
	return summaryID
}

// thread orders the instances of tagID in the given summaries, in sequence.
func (w *world) thread(tagID uuid.UUID, summaries ...uuid.UUID) {
	orders := make(map[uuid.UUID]int64, len(summaries))
	for i, summaryID := range summaries {
		orders[w.Instance(summaryID, tagID)] = 100_000 + int64(i)*1_000
	}
	w.Order(orders)
}

func eventIDs(s *atlas.Story) []uuid.UUID {
	ids := make([]uuid.UUID, len(s.Events))
	for i, event := range s.Events {
		ids[i] = event.ID
	}
	return ids
}

func storyIDs(s *atlas.Story) []uuid.UUID {
	ids := make([]uuid.UUID, len(s.Events))
	for i, event := range s.Events {
		ids[i] = event.StoryID
	}
	return ids
}

// crossing is Person X with eight events; the eighth also belongs to Place Y,
// whose story continues with three more.
type crossing struct {
	*world
	x, y   uuid.UUID
	xs, ys []uuid.UUID
}

func newCrossing(t *testing.T) *crossing {
	w := newWorld(t)
	c := &crossing{world: w, x: w.Person("Person X"), y: w.Place("Place Y", 48.85, 2.35)}

	for i := 1; i <= 8; i++ {
		c.xs = append(c.xs, w.event(1900+i, c.x))
	}
	w.Mention(c.xs[7], c.y)
	for i := 0; i < 3; i++ {
		c.ys = append(c.ys, w.event(1910+i, c.y))
	}

	w.thread(c.x, c.xs...)
	w.thread(c.y, append([]uuid.UUID{c.xs[7]}, c.ys...)...)
	return c
}

/*
TestTraverser_SplicesOntoCoTag verifies that a story running out continues
with a co-occurring tag, in increasing chronological order.
*/
func TestTraverser_SplicesOntoCoTag(t *testing.T) {
	ctx := context.Background()
	c := newCrossing(t)
	traverser := story.NewTraverser(c.Index, 0, discard)

	got, err := traverser.Story(ctx, story.Request{StoryID: c.x, EventID: c.xs[4], Direction: atlas.DirectionNext, Size: 5})
	require.NoError(t, err)

	assert.Equal(t, "Person X", got.Name)
	assert.Equal(t, []uuid.UUID{c.xs[5], c.xs[6], c.xs[7], c.ys[0], c.ys[1]}, eventIDs(got))
	assert.Equal(t, []uuid.UUID{c.x, c.x, c.x, c.y, c.y}, storyIDs(got))

	var previous *chrono.Date
	for _, event := range got.Events {
		require.NotNil(t, event.Date)
		date := chrono.MustParse(event.Date.DateTime, event.Date.Precision)
		if previous != nil {
			assert.True(t, previous.Before(date), "%s follows %s", date, previous)
		}
		previous = &date
	}
}

/*
TestTraverser_WindowBound verifies that windows never exceed their size and
return everything reachable when the graph is smaller.
*/
func TestTraverser_WindowBound(t *testing.T) {
	ctx := context.Background()
	c := newCrossing(t)
	traverser := story.NewTraverser(c.Index, 0, discard)

	tests := []struct {
		name     string
		size     int
		expected int
	}{
		{"smaller than the local story", 2, 2},
		{"exactly the reachable events", 6, 6},
		{"larger than everything reachable", 20, 6},
		{"capped at the maximum", 500, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := traverser.Story(ctx, story.Request{StoryID: c.x, EventID: c.xs[4], Direction: atlas.DirectionNext, Size: tt.size})
			require.NoError(t, err)
			assert.Len(t, got.Events, tt.expected)
		})
	}
}

/*
TestTraverser_Prev verifies the mirrored walk, including a splice back onto
the tag that shares the first collected event.
*/
func TestTraverser_Prev(t *testing.T) {
	ctx := context.Background()
	c := newCrossing(t)
	traverser := story.NewTraverser(c.Index, 0, discard)

	got, err := traverser.Story(ctx, story.Request{StoryID: c.y, EventID: c.ys[1], Direction: atlas.DirectionPrev, Size: 5})
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{c.xs[4], c.xs[5], c.xs[6], c.xs[7], c.ys[0]}, eventIDs(got))
	assert.Equal(t, []uuid.UUID{c.x, c.x, c.x, c.y, c.y}, storyIDs(got))
}

/*
TestTraverser_Centered joins both sides around the pivot.
*/
func TestTraverser_Centered(t *testing.T) {
	ctx := context.Background()
	c := newCrossing(t)
	traverser := story.NewTraverser(c.Index, 2, discard)

	got, err := traverser.Story(ctx, story.Request{StoryID: c.x, EventID: c.xs[4]})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{c.xs[2], c.xs[3], c.xs[4], c.xs[5], c.xs[6]}, eventIDs(got))

	// The first event has no earlier side.
	got, err = traverser.Story(ctx, story.Request{StoryID: c.x, EventID: c.xs[0]})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{c.xs[0], c.xs[1], c.xs[2]}, eventIDs(got))
}

/*
TestTraverser_Idempotent verifies that unchanged data yields identical
windows.
*/
func TestTraverser_Idempotent(t *testing.T) {
	ctx := context.Background()
	c := newCrossing(t)
	traverser := story.NewTraverser(c.Index, 0, discard)

	for _, direction := range []atlas.Direction{atlas.DirectionNext, atlas.DirectionPrev, atlas.DirectionNone} {
		request := story.Request{StoryID: c.x, EventID: c.xs[6], Direction: direction}
		first, err := traverser.Story(ctx, request)
		require.NoError(t, err)
		second, err := traverser.Story(ctx, request)
		require.NoError(t, err)
		assert.Equal(t, first, second, "direction %q", direction)
	}
}

/*
TestTraverser_SpliceChoice verifies the candidate ranking: earliest
continuation for next, latest for prev, undated last.
*/
func TestTraverser_SpliceChoice(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	subject := w.Person("Subject")
	early, late, undated := w.Person("Early"), w.Person("Late"), w.Person("Undated")

	hub := w.event(1900, subject, late, undated, early)
	lateNext, earlyNext := w.event(1950, late), w.event(1920, early)
	undatedNext := w.Event("undated", undated)
	latePrev, earlyPrev := w.event(1890, late), w.event(1850, early)

	w.thread(subject, hub)
	w.thread(late, latePrev, hub, lateNext)
	w.thread(early, earlyPrev, hub, earlyNext)
	w.thread(undated, hub, undatedNext)

	traverser := story.NewTraverser(w.Index, 0, discard)

	next, err := traverser.Story(ctx, story.Request{StoryID: subject, EventID: hub, Direction: atlas.DirectionNext, Size: 1})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{earlyNext}, eventIDs(next))
	assert.Equal(t, []uuid.UUID{early}, storyIDs(next))

	prev, err := traverser.Story(ctx, story.Request{StoryID: subject, EventID: hub, Direction: atlas.DirectionPrev, Size: 1})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{latePrev}, eventIDs(prev))

	// Later splices start from the last collected event, which shares no
	// other story here.
	all, err := traverser.Story(ctx, story.Request{StoryID: subject, EventID: hub, Direction: atlas.DirectionNext, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{earlyNext}, eventIDs(all))
}

/*
TestTraverser_Missing verifies the typed not found errors.
*/
func TestTraverser_Missing(t *testing.T) {
	ctx := context.Background()
	c := newCrossing(t)
	traverser := story.NewTraverser(c.Index, 0, discard)

	t.Run("unknown story", func(t *testing.T) {
		_, err := traverser.Story(ctx, story.Request{StoryID: uuid.New(), EventID: c.xs[0]})
		require.Error(t, err)
		assert.True(t, atlas.IsMissing(err))
		assert.Contains(t, err.Error(), "story not found")
	})

	t.Run("unordered pivot", func(t *testing.T) {
		loose := c.Event("loose", c.x)
		_, err := traverser.Story(ctx, story.Request{StoryID: c.x, EventID: loose})
		require.Error(t, err)
		assert.True(t, atlas.IsMissing(err))
	})

	t.Run("event outside the story", func(t *testing.T) {
		_, err := traverser.Story(ctx, story.Request{StoryID: c.x, EventID: c.ys[0]})
		assert.True(t, atlas.IsMissing(err))
	})
}

/*
TestTraverser_Hydration verifies that events carry their tags, source and
map locations.
*/
func TestTraverser_Hydration(t *testing.T) {
	ctx := context.Background()
	c := newCrossing(t)
	c.Cite(c.xs[7], "Annals")
	traverser := story.NewTraverser(c.Index, 0, discard)

	got, err := traverser.Story(ctx, story.Request{StoryID: c.x, EventID: c.xs[6], Direction: atlas.DirectionNext, Size: 1})
	require.NoError(t, err)
	require.Len(t, got.Events, 1)

	event := got.Events[0]
	require.NotNil(t, event.Source)
	assert.Equal(t, "Annals", event.Source.Title)
	assert.Len(t, event.Tags, 3)
	require.NotNil(t, event.Map)
	assert.Equal(t, c.y, event.Map.Locations[0].ID)
}

/*
TestTraverser_DefaultStory centers the window on the first ordered event.
*/
func TestTraverser_DefaultStory(t *testing.T) {
	ctx := context.Background()
	c := newCrossing(t)
	traverser := story.NewTraverser(c.Index, 3, discard)

	cached, err := traverser.DefaultStory(ctx, c.x, "en")
	require.NoError(t, err)
	assert.Equal(t, atlas.StoryPointer{EventID: c.xs[0], StoryID: c.x}, cached.Pointer)
	assert.Equal(t, []uuid.UUID{c.xs[0], c.xs[1], c.xs[2], c.xs[3]}, eventIDs(&cached.Story))
	assert.False(t, cached.ComputedAt.IsZero())

	_, err = traverser.DefaultStory(ctx, c.Person("Nobody"), "en")
	assert.True(t, atlas.IsMissing(err))
}
