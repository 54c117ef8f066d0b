// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package indextest seeds a [storyindex.MemoryIndex] for tests.
//
// Identifiers are allocated from a counter, so their byte order matches the
// order in which a test created them.
package indextest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/core/chrono"
	"github.com/taibuivan/historyatlas/internal/core/storyindex"
)

// Builder writes fixtures through the index's own write transactions.
type Builder struct {
	t     testing.TB
	Index *storyindex.MemoryIndex

	next  int
	spans map[uuid.UUID]int
}

// New returns a builder over a fresh memory index.
func New(t testing.TB) *Builder {
	t.Helper()
	return &Builder{t: t, Index: storyindex.NewMemoryIndex(), spans: make(map[uuid.UUID]int)}
}

// ID allocates the next sequential identifier.
func (builder *Builder) ID() uuid.UUID {
	builder.next++
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", builder.next))
}

func (builder *Builder) write(fn func(storyindex.WriteTx) error) {
	builder.t.Helper()
	require.NoError(builder.t, builder.Index.InWriteTx(context.Background(), fn))
}

// # Tags

func (builder *Builder) tag(tag atlas.Tag) uuid.UUID {
	builder.t.Helper()
	builder.write(func(tx storyindex.WriteTx) error {
		if _, err := tx.UpsertTag(context.Background(), tag); err != nil {
			return err
		}
		return tx.EnsureStory(context.Background(), tag.ID, "en", tag.Names[0])
	})
	return tag.ID
}

// Person creates a person tag with a story titled by name.
func (builder *Builder) Person(name string) uuid.UUID {
	builder.t.Helper()
	return builder.tag(atlas.Tag{ID: builder.ID(), Type: atlas.TagPerson, Names: []string{name}})
}

// Place creates a place tag at the given coordinates.
func (builder *Builder) Place(name string, latitude, longitude float64) uuid.UUID {
	builder.t.Helper()
	return builder.tag(atlas.Tag{
		ID: builder.ID(), Type: atlas.TagPlace, Names: []string{name},
		Place: &atlas.PlaceAttrs{Latitude: latitude, Longitude: longitude},
	})
}

// Time creates a time tag. The datetime doubles as its name.
func (builder *Builder) Time(datetime string, precision chrono.Precision) uuid.UUID {
	builder.t.Helper()
	return builder.tag(atlas.Tag{
		ID: builder.ID(), Type: atlas.TagTime, Names: []string{datetime},
		Time: &atlas.TimeAttrs{DateTime: datetime, CalendarModel: "gregorian", Precision: precision},
	})
}

// Year is shorthand for a year precision time tag.
func (builder *Builder) Year(year int) uuid.UUID {
	builder.t.Helper()
	return builder.Time(fmt.Sprintf("+%04d-00-00T00:00:00Z", year), chrono.PrecisionYear)
}

// # Summaries

// Summary creates an untagged summary.
func (builder *Builder) Summary(text string) uuid.UUID {
	builder.t.Helper()
	id := builder.ID()
	builder.write(func(tx storyindex.WriteTx) error {
		return tx.InsertSummary(context.Background(), atlas.Summary{ID: id, Text: text})
	})
	return id
}

// Mention tags a summary with an unordered instance and returns its id.
// Spans are laid out left to right in call order.
func (builder *Builder) Mention(summaryID, tagID uuid.UUID, after ...uuid.UUID) uuid.UUID {
	builder.t.Helper()
	start := builder.spans[summaryID]
	builder.spans[summaryID] = start + 10

	instance := atlas.TagInstance{
		ID: builder.ID(), SummaryID: summaryID, TagID: tagID,
		StartChar: start, StopChar: start + 5, After: atlas.NewAfter(after...),
	}
	builder.write(func(tx storyindex.WriteTx) error {
		_, err := tx.InsertTagInstance(context.Background(), instance)
		return err
	})
	return instance.ID
}

// Event creates a summary mentioning every tag, in order.
func (builder *Builder) Event(text string, tags ...uuid.UUID) uuid.UUID {
	builder.t.Helper()
	summaryID := builder.Summary(text)
	for _, tagID := range tags {
		builder.Mention(summaryID, tagID)
	}
	return summaryID
}

// Cite attaches a sourced citation to a summary.
func (builder *Builder) Cite(summaryID uuid.UUID, title string) uuid.UUID {
	builder.t.Helper()
	citationID, sourceID := builder.ID(), builder.ID()
	builder.write(func(tx storyindex.WriteTx) error {
		citation := atlas.Citation{ID: citationID, SummaryID: &summaryID, Text: title}
		if err := tx.InsertCitation(context.Background(), citation); err != nil {
			return err
		}
		return tx.InsertSource(context.Background(), atlas.Source{ID: sourceID, Title: title}, citationID)
	})
	return citationID
}

// # Orders

// Order sets story orders directly, keyed by instance id.
func (builder *Builder) Order(orders map[uuid.UUID]int64) {
	builder.t.Helper()
	require.NoError(builder.t, builder.Index.InOrderTx(context.Background(), func(tx storyindex.OrderTx) error {
		for instanceID, order := range orders {
			if err := tx.UpdateStoryOrder(context.Background(), instanceID, order); err != nil {
				return err
			}
		}
		return nil
	}))
}

// Instance returns the instance of tagID inside summaryID.
func (builder *Builder) Instance(summaryID, tagID uuid.UUID) uuid.UUID {
	builder.t.Helper()
	instance, err := builder.Index.InstanceForEvent(context.Background(), summaryID, tagID)
	require.NoError(builder.t, err)
	return instance.ID
}

// StoryOrder returns the current order of an instance, nil while unordered.
func (builder *Builder) StoryOrder(instanceID uuid.UUID) *int64 {
	builder.t.Helper()
	instance, ok := builder.Index.Instance(instanceID)
	require.True(builder.t, ok, "instance %s", instanceID)
	return instance.StoryOrder
}
