// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package storyindex is the storage layer of the story engine: the only code
that reads or writes tags, summaries, citations, sources, names and tag
instances.

It exposes three narrow views over the same tables:

  - [Reader]: pointer lookups and range scans used by traversal and queries.
  - [OrderStore]: transactional access to a tag's order ladder, used by the
    order assigner and the bulk reorderer.
  - [Writer]: transactional inserts used by the ingestion handler.

[PostgresIndex] implements all three on pgxpool. [MemoryIndex] implements the
same contracts in process and backs the tests of every consumer.

Uniqueness of (tag_id, story_order) is checked when an order transaction
commits. A violation surfaces as [atlas.StoryOrderConflictError]; callers
reload the ladder and retry.
*/
package storyindex

import (
	"context"

	"github.com/google/uuid"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/core/chrono"
)

// # Read Side

// Reader serves traversal and the query surface.
type Reader interface {
	// TagInstancesForTag returns ordered instances of a tag inside r, ascending.
	TagInstancesForTag(context context.Context, tagID uuid.UUID, r atlas.OrderRange) ([]atlas.TagInstance, error)

	// DefaultEventForTag returns the lowest ordered instance of a tag.
	DefaultEventForTag(context context.Context, tagID uuid.UUID) (*atlas.TagInstance, error)

	// InstanceForEvent returns the instance of tagID inside summaryID.
	InstanceForEvent(context context.Context, summaryID, tagID uuid.UUID) (*atlas.TagInstance, error)

	// CoTags returns every instance inside a summary ordered by start_char.
	CoTags(context context.Context, summaryID uuid.UUID) ([]atlas.TagInstance, error)

	// SummaryDates returns the event date of each dated summary among ids.
	SummaryDates(context context.Context, ids []uuid.UUID) (map[uuid.UUID]chrono.Date, error)

	// EventsByIDs hydrates summaries in one round trip, in the order of ids.
	// Unknown ids are skipped.
	EventsByIDs(context context.Context, ids []uuid.UUID, lang string) ([]atlas.HistoryEvent, error)

	// StoryNames returns one display title per tag, preferring lang.
	StoryNames(context context.Context, tagIDs []uuid.UUID, lang string) (map[uuid.UUID]string, error)

	// Manifest returns the citations and yearly timeline of a tag.
	Manifest(context context.Context, tagID uuid.UUID) (*atlas.Manifest, error)

	// PlaceByCoords returns the place tag at exactly (lat, lon), if any.
	PlaceByCoords(context context.Context, latitude, longitude float64) (*uuid.UUID, error)

	// EntitySummaries describes the given tags, in the order of ids.
	EntitySummaries(context context.Context, ids []uuid.UUID) ([]atlas.EntitySummary, error)

	// MostTaggedStories returns up to limit tags with the most ordered
	// instances, most first.
	MostTaggedStories(context context.Context, limit int) ([]uuid.UUID, error)
}

// # Ordering Side

// OrderStore opens order transactions and scans NULL rows for backfill.
type OrderStore interface {
	// InOrderTx runs fn inside one transaction whose story order uniqueness
	// check is deferred to commit.
	InOrderTx(context context.Context, fn func(OrderTx) error) error

	// PendingInstances returns up to limit NULL-order instances with ids
	// greater than cursor (all when cursor is nil), ascending by id.
	PendingInstances(context context.Context, cursor *uuid.UUID, limit int) ([]atlas.PendingInstance, error)

	// CountPending counts NULL-order instances.
	CountPending(context context.Context) (int64, error)

	// CreateBulkIndex and DropBulkIndex manage the optional throughput index
	// over NULL-order rows.
	CreateBulkIndex(context context.Context) error
	DropBulkIndex(context context.Context) error
}

// OrderTx is the view of one order transaction.
type OrderTx interface {
	// LockTag serializes order writers of one tag for the transaction.
	LockTag(context context.Context, tagID uuid.UUID) error

	// LoadInstance returns an instance with the event date of its summary.
	LoadInstance(context context.Context, instanceID uuid.UUID) (atlas.TagInstance, *chrono.Date, error)

	// Ladder returns the ordered instances of a tag ascending by order.
	Ladder(context context.Context, tagID uuid.UUID) ([]atlas.Rung, error)

	// ResolveAfter maps every summary of after that holds an instance of
	// tagID to that instance's order (nil while still NULL). Summaries without
	// such an instance are absent from the result.
	ResolveAfter(context context.Context, tagID uuid.UUID, after atlas.After) (map[uuid.UUID]*int64, error)

	// UpdateStoryOrder sets the order of one instance.
	UpdateStoryOrder(context context.Context, instanceID uuid.UUID, order int64) error

	// ApplyOrders writes many orders in one round trip.
	ApplyOrders(context context.Context, updates []atlas.OrderUpdate) error
}

// # Ingestion Side

// Writer opens ingestion transactions.
type Writer interface {
	InWriteTx(context context.Context, fn func(WriteTx) error) error
}

// WriteTx is the view of one ingestion transaction. Inserts of rows that
// already exist are no-ops.
type WriteTx interface {
	// RecordEvent claims an event index, or fails with [atlas.DuplicateEventError].
	RecordEvent(context context.Context, index int64, eventType string) error

	// UpsertTag inserts the tag with its variant row and reports whether it
	// was created.
	UpsertTag(context context.Context, tag atlas.Tag) (bool, error)

	// AddName links a (normalized) name to a tag.
	AddName(context context.Context, tagID uuid.UUID, name string) error

	// EnsureStory creates the story of a tag and its title in lang if absent.
	EnsureStory(context context.Context, tagID uuid.UUID, lang, name string) error

	InsertSummary(context context.Context, summary atlas.Summary) error
	InsertCitation(context context.Context, citation atlas.Citation) error
	AttachCitation(context context.Context, citationID, summaryID uuid.UUID) error
	InsertSource(context context.Context, source atlas.Source, citationID uuid.UUID) error

	// InsertTagInstance reports whether a new row was created; an existing
	// (summary, tag) pair is left untouched.
	InsertTagInstance(context context.Context, instance atlas.TagInstance) (bool, error)
}

// Index is the full storage surface.
type Index interface {
	Reader
	OrderStore
	Writer
}
