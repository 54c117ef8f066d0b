// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package storyindex_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/core/chrono"
	"github.com/taibuivan/historyatlas/internal/core/storyindex"
	"github.com/taibuivan/historyatlas/internal/core/storyindex/indextest"
)

func orders(instances []atlas.TagInstance) []int64 {
	out := make([]int64, 0, len(instances))
	for _, instance := range instances {
		out = append(out, *instance.StoryOrder)
	}
	return out
}

/*
TestMemoryIndex_RangeScans verifies inclusive ranges and pivot windows.
*/
func TestMemoryIndex_RangeScans(t *testing.T) {
	ctx := context.Background()
	builder := indextest.New(t)
	person := builder.Person("Ada")

	set := map[uuid.UUID]int64{}
	for i := 1; i <= 5; i++ {
		summary := builder.Event("event", person)
		set[builder.Instance(summary, person)] = int64(i * 100)
	}
	builder.Order(set)

	// An unordered instance never shows up in scans.
	builder.Event("pending", person)

	tests := []struct {
		name     string
		r        atlas.OrderRange
		expected []int64
	}{
		{"between", atlas.Between(200, 400), []int64{200, 300, 400}},
		{"after pivot", atlas.AfterPivot(200, 2), []int64{300, 400}},
		{"before pivot keeps closest", atlas.BeforePivot(400, 2), []int64{200, 300}},
		{"after last", atlas.AfterPivot(500, 3), []int64{}},
		{"unbounded", atlas.OrderRange{}, []int64{100, 200, 300, 400, 500}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instances, err := builder.Index.TagInstancesForTag(ctx, person, tt.r)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, orders(instances))
		})
	}

	first, err := builder.Index.DefaultEventForTag(ctx, person)
	require.NoError(t, err)
	assert.Equal(t, int64(100), *first.StoryOrder)
}

/*
TestMemoryIndex_Hydration verifies the event read model.
*/
func TestMemoryIndex_Hydration(t *testing.T) {
	ctx := context.Background()
	builder := indextest.New(t)

	person := builder.Person("Ada Lovelace")
	place := builder.Place("London", 51.5, -0.12)
	late := builder.Year(1843)
	early := builder.Time("+1842-07-01T00:00:00Z", chrono.PrecisionMonth)

	summary := builder.Event("Ada publishes her notes in London.", person, place, late, early)
	builder.Cite(summary, "Sketch of the Analytical Engine")

	events, err := builder.Index.EventsByIDs(ctx, []uuid.UUID{uuid.New(), summary}, "en")
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, "Ada publishes her notes in London.", event.Text)

	// The earliest time tag is the event date.
	require.NotNil(t, event.Date)
	assert.Equal(t, "+1842-07-01T00:00:00Z", event.Date.DateTime)
	assert.Equal(t, chrono.PrecisionMonth, event.Date.Precision)

	require.NotNil(t, event.Source)
	assert.Equal(t, "Sketch of the Analytical Engine", event.Source.Title)

	require.Len(t, event.Tags, 4)
	assert.Equal(t, person, event.Tags[0].ID)
	assert.Equal(t, "Ada Lovelace", event.Tags[0].Name)
	assert.Equal(t, atlas.TagPlace, event.Tags[1].Type)

	require.NotNil(t, event.Map)
	require.Len(t, event.Map.Locations, 1)
	assert.Equal(t, 51.5, event.Map.Locations[0].Latitude)

	dates, err := builder.Index.SummaryDates(ctx, []uuid.UUID{summary, builder.Summary("undated")})
	require.NoError(t, err)
	assert.Len(t, dates, 1)
	assert.Equal(t, int64(1842), dates[summary].Year)
}

/*
TestMemoryIndex_OrderConflictAtCommit verifies that duplicate orders are
rejected when the transaction commits and leave no trace.
*/
func TestMemoryIndex_OrderConflictAtCommit(t *testing.T) {
	ctx := context.Background()
	builder := indextest.New(t)
	person := builder.Person("Ada")

	first := builder.Instance(builder.Event("one", person), person)
	second := builder.Instance(builder.Event("two", person), person)

	err := builder.Index.InOrderTx(ctx, func(tx storyindex.OrderTx) error {
		// Transient duplicates are fine until commit.
		if err := tx.UpdateStoryOrder(ctx, first, 100); err != nil {
			return err
		}
		return tx.UpdateStoryOrder(ctx, second, 100)
	})

	require.Error(t, err)
	assert.True(t, atlas.IsStoryOrderConflict(err))
	assert.Nil(t, builder.StoryOrder(first))
	assert.Nil(t, builder.StoryOrder(second))

	// A swap through a shared intermediate value commits cleanly.
	builder.Order(map[uuid.UUID]int64{first: 100, second: 200})
	require.NoError(t, builder.Index.InOrderTx(ctx, func(tx storyindex.OrderTx) error {
		return tx.ApplyOrders(ctx, []atlas.OrderUpdate{
			{InstanceID: first, TagID: person, Order: 200},
			{InstanceID: second, TagID: person, Order: 100},
		})
	}))
	assert.Equal(t, int64(200), *builder.StoryOrder(first))
}

/*
TestMemoryIndex_InjectConflicts verifies the retry hook used by ordering tests.
*/
func TestMemoryIndex_InjectConflicts(t *testing.T) {
	ctx := context.Background()
	builder := indextest.New(t)
	person := builder.Person("Ada")
	instance := builder.Instance(builder.Event("one", person), person)

	builder.Index.InjectConflicts(1)

	update := func(tx storyindex.OrderTx) error { return tx.UpdateStoryOrder(ctx, instance, 100) }
	assert.True(t, atlas.IsStoryOrderConflict(builder.Index.InOrderTx(ctx, update)))
	assert.Nil(t, builder.StoryOrder(instance))

	require.NoError(t, builder.Index.InOrderTx(ctx, update))
	assert.Equal(t, int64(100), *builder.StoryOrder(instance))
}

/*
TestMemoryIndex_WriteIdempotence verifies that replayed writes are no-ops.
*/
func TestMemoryIndex_WriteIdempotence(t *testing.T) {
	ctx := context.Background()
	builder := indextest.New(t)
	person := builder.Person("Ada")
	summary := builder.Summary("one")

	err := builder.Index.InWriteTx(ctx, func(tx storyindex.WriteTx) error {
		require.NoError(t, tx.RecordEvent(ctx, 7, "PERSON_ADDED"))

		var duplicate *atlas.DuplicateEventError
		require.ErrorAs(t, tx.RecordEvent(ctx, 7, "PERSON_ADDED"), &duplicate)
		assert.Equal(t, int64(7), duplicate.Index)

		created, err := tx.UpsertTag(ctx, atlas.Tag{ID: person, Type: atlas.TagPerson, Names: []string{"Countess"}})
		require.NoError(t, err)
		assert.False(t, created)

		instance := atlas.TagInstance{ID: uuid.New(), SummaryID: summary, TagID: person, StopChar: 3}
		created, err = tx.InsertTagInstance(ctx, instance)
		require.NoError(t, err)
		assert.True(t, created)

		instance.ID = uuid.New()
		created, err = tx.InsertTagInstance(ctx, instance)
		require.NoError(t, err)
		assert.False(t, created)
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, builder.Index.Instances(person), 1)

	entities, err := builder.Index.EntitySummaries(ctx, []uuid.UUID{person})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, []string{"Ada", "Countess"}, entities[0].Names)
}

/*
TestMemoryIndex_WriteRollback verifies that a failed event leaves no rows.
*/
func TestMemoryIndex_WriteRollback(t *testing.T) {
	ctx := context.Background()
	builder := indextest.New(t)
	summary := uuid.New()

	err := builder.Index.InWriteTx(ctx, func(tx storyindex.WriteTx) error {
		require.NoError(t, tx.InsertSummary(ctx, atlas.Summary{ID: summary, Text: "lost"}))
		_, err := tx.InsertTagInstance(ctx, atlas.TagInstance{ID: uuid.New(), SummaryID: summary, TagID: uuid.New()})
		return err
	})
	require.Error(t, err)
	assert.True(t, atlas.IsMissing(err))

	events, err := builder.Index.EventsByIDs(ctx, []uuid.UUID{summary}, "en")
	require.NoError(t, err)
	assert.Empty(t, events)
}

/*
TestMemoryIndex_Queries covers the manifest, titles, places and ranking.
*/
func TestMemoryIndex_Queries(t *testing.T) {
	ctx := context.Background()
	builder := indextest.New(t)

	person := builder.Person("Ada")
	place := builder.Place("London", 51.5, -0.12)
	y1842, y1843 := builder.Year(1842), builder.Year(1843)

	a := builder.Event("a", person, place, y1842)
	b := builder.Event("b", person, y1842)
	c := builder.Event("c", person, y1843)
	citeA, citeC := builder.Cite(a, "A"), builder.Cite(c, "C")

	builder.Order(map[uuid.UUID]int64{
		builder.Instance(a, person): 100,
		builder.Instance(b, person): 200,
		builder.Instance(c, person): 300,
		builder.Instance(a, place):  100,
	})

	t.Run("manifest", func(t *testing.T) {
		manifest, err := builder.Index.Manifest(ctx, person)
		require.NoError(t, err)
		assert.Equal(t, atlas.TagPerson, manifest.Type)
		assert.Equal(t, []uuid.UUID{citeA, citeC}, manifest.CitationIDs)
		assert.Equal(t, []atlas.TimelineEntry{
			{Year: 1842, Count: 2, RootID: a},
			{Year: 1843, Count: 1, RootID: c},
		}, manifest.Timeline)

		_, err = builder.Index.Manifest(ctx, uuid.New())
		assert.True(t, atlas.IsMissing(err))
	})

	t.Run("story names", func(t *testing.T) {
		names, err := builder.Index.StoryNames(ctx, []uuid.UUID{person, place}, "fr")
		require.NoError(t, err)
		assert.Equal(t, "Ada", names[person])
		assert.Equal(t, "London", names[place])
	})

	t.Run("place by coords", func(t *testing.T) {
		found, err := builder.Index.PlaceByCoords(ctx, 51.5, -0.12)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, place, *found)

		missing, err := builder.Index.PlaceByCoords(ctx, 0, 0)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("entity summaries", func(t *testing.T) {
		entities, err := builder.Index.EntitySummaries(ctx, []uuid.UUID{place, person})
		require.NoError(t, err)
		require.Len(t, entities, 2)

		assert.Equal(t, place, entities[0].ID)
		require.NotNil(t, entities[0].Latitude)
		assert.Equal(t, 51.5, *entities[0].Latitude)

		require.NotNil(t, entities[1].FirstCitedAt)
		assert.Equal(t, "+1842-00-00T00:00:00Z", *entities[1].FirstCitedAt)
		assert.Equal(t, "+1843-00-00T00:00:00Z", *entities[1].LastCitedAt)
	})

	t.Run("most tagged", func(t *testing.T) {
		ids, err := builder.Index.MostTaggedStories(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{person}, ids)
	})

	t.Run("co tags", func(t *testing.T) {
		tags, err := builder.Index.CoTags(ctx, a)
		require.NoError(t, err)
		require.Len(t, tags, 3)
		assert.Equal(t, []uuid.UUID{person, place, y1842}, []uuid.UUID{tags[0].TagID, tags[1].TagID, tags[2].TagID})
	})
}

/*
TestMemoryIndex_Pending verifies keyset pagination over unordered rows.
*/
func TestMemoryIndex_Pending(t *testing.T) {
	ctx := context.Background()
	builder := indextest.New(t)
	person := builder.Person("Ada")

	var instances []uuid.UUID
	for range 5 {
		summary := builder.Event("event", person)
		instances = append(instances, builder.Instance(summary, person))
	}
	builder.Order(map[uuid.UUID]int64{instances[0]: 100})

	count, err := builder.Index.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	page, err := builder.Index.PendingInstances(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, instances[1], page[0].ID)

	page, err = builder.Index.PendingInstances(ctx, &page[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, instances[3], page[0].ID)
	assert.Equal(t, instances[4], page[1].ID)
}
