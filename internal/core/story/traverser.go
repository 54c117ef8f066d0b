// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package story builds stories out of the per-tag order ladders and serves the
read side of the engine.

A story is addressed by a pointer (event, tag). The [Traverser] walks the
tag's ordered instances away from the pivot and, when the tag runs out,
splices onto a tag that co-occurs in the last event it collected. The
[Service] wraps the traverser with the default story cache and the remaining
queries, and [Handler] exposes them over chi.
*/
package story

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/core/chrono"
	"github.com/taibuivan/historyatlas/internal/core/storyindex"
	"github.com/taibuivan/historyatlas/internal/platform/metrics"
)

// # Window Sizes

const (
	// DefaultWindowSize is the number of events on each walked side of a pivot.
	DefaultWindowSize = 10

	// MaxWindowSize caps caller supplied sizes.
	MaxWindowSize = 50
)

// # Traverser

// Traverser assembles story windows from a [storyindex.Reader].
type Traverser struct {
	index  storyindex.Reader
	window int
	logger *slog.Logger
}

// NewTraverser constructs a [Traverser]. A non-positive window takes
// [DefaultWindowSize].
func NewTraverser(index storyindex.Reader, window int, logger *slog.Logger) *Traverser {
	if window <= 0 {
		window = DefaultWindowSize
	}
	if window > MaxWindowSize {
		window = MaxWindowSize
	}
	return &Traverser{index: index, window: window, logger: logger}
}

// Request addresses one story window.
type Request struct {
	StoryID   uuid.UUID
	EventID   uuid.UUID
	Direction atlas.Direction
	Lang      string

	// Size overrides the traverser's window when positive.
	Size int
}

func (traverser *Traverser) size(requested int) int {
	switch {
	case requested <= 0:
		return traverser.window
	case requested > MaxWindowSize:
		return MaxWindowSize
	}
	return requested
}

/*
Story assembles the window addressed by request.

Description: With direction next (prev) the result holds up to Size events
strictly after (before) the pivot, ascending by story position and without
the pivot itself. With no direction both sides are walked concurrently and
joined around the pivot. Every event carries the tag whose story supplied it.

Returns:
  - *atlas.Story: the hydrated window, titled by the requested story
  - error: [atlas.MissingResourceError] when the story has no title or the
    pivot is not an ordered instance of the story
*/
func (traverser *Traverser) Story(ctx context.Context, request Request) (*atlas.Story, error) {
	started := time.Now()
	defer func() {
		metrics.StoryWindowDuration.WithLabelValues(directionLabel(request.Direction)).Observe(time.Since(started).Seconds())
	}()

	names, err := traverser.index.StoryNames(ctx, []uuid.UUID{request.StoryID}, request.Lang)
	if err != nil {
		return nil, err
	}
	name, ok := names[request.StoryID]
	if !ok {
		return nil, atlas.NewMissing("story", request.StoryID)
	}

	pivot, err := traverser.pivot(ctx, request.EventID, request.StoryID)
	if err != nil {
		return nil, err
	}

	size := traverser.size(request.Size)
	var pointers []atlas.StoryPointer

	switch request.Direction {
	case atlas.DirectionNext, atlas.DirectionPrev:
		if pointers, err = traverser.walk(ctx, *pivot, request.Direction, size); err != nil {
			return nil, err
		}

	default:
		var before, after []atlas.StoryPointer
		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			var err error
			before, err = traverser.walk(groupCtx, *pivot, atlas.DirectionPrev, size)
			return err
		})
		group.Go(func() error {
			var err error
			after, err = traverser.walk(groupCtx, *pivot, atlas.DirectionNext, size)
			return err
		})
		if err := group.Wait(); err != nil {
			return nil, err
		}
		pointers = centered(before, atlas.StoryPointer{EventID: pivot.SummaryID, StoryID: pivot.TagID}, after)
	}

	events, err := traverser.hydrate(ctx, pointers, request.Lang)
	if err != nil {
		return nil, err
	}

	traverser.logger.Debug("story_window_built",
		slog.String("story_id", request.StoryID.String()),
		slog.String("event_id", request.EventID.String()),
		slog.String("direction", directionLabel(request.Direction)),
		slog.Int("events", len(events)),
	)
	return &atlas.Story{ID: request.StoryID, Name: name, Events: events}, nil
}

/*
DefaultStory builds the centered window around a tag's first ordered event.

Returns:
  - *atlas.CachedStory: the story with its pointer and computation time
  - error: [atlas.MissingResourceError] when the tag has no ordered event
*/
func (traverser *Traverser) DefaultStory(ctx context.Context, tagID uuid.UUID, lang string) (*atlas.CachedStory, error) {
	first, err := traverser.index.DefaultEventForTag(ctx, tagID)
	if err != nil {
		return nil, err
	}

	story, err := traverser.Story(ctx, Request{StoryID: tagID, EventID: first.SummaryID, Lang: lang})
	if err != nil {
		return nil, err
	}
	return &atlas.CachedStory{
		Story:      *story,
		Pointer:    atlas.StoryPointer{EventID: first.SummaryID, StoryID: tagID},
		ComputedAt: time.Now().UTC(),
	}, nil
}

func (traverser *Traverser) pivot(ctx context.Context, eventID, storyID uuid.UUID) (*atlas.TagInstance, error) {
	instance, err := traverser.index.InstanceForEvent(ctx, eventID, storyID)
	if err != nil {
		return nil, err
	}
	if !instance.Ordered() {
		return nil, atlas.NewMissing("event", eventID)
	}
	return instance, nil
}

// # Walk

/*
walk collects up to n pointers on one side of start.

Description: The current tag is read in chunks of the missing count. A
chunk shorter than requested means the tag ran out, and the walk splices
onto a co-occurring tag of the last collected event (start's event while
nothing was collected). Events already collected are skipped, and every tag
is walked at most once. Pointers are returned in story order, so for prev
the closest event comes last.
*/
func (traverser *Traverser) walk(ctx context.Context, start atlas.TagInstance, direction atlas.Direction, n int) ([]atlas.StoryPointer, error) {
	seen := map[uuid.UUID]bool{start.SummaryID: true}
	visited := map[uuid.UUID]bool{start.TagID: true}

	var (
		collected []atlas.StoryPointer
		anchor    = start.SummaryID
		tagID     = start.TagID
		order     = *start.StoryOrder
	)

	for len(collected) < n {
		want := n - len(collected)
		chunk, err := traverser.index.TagInstancesForTag(ctx, tagID, rangeFrom(order, direction, want))
		if err != nil {
			return nil, err
		}
		if direction == atlas.DirectionPrev {
			reverse(chunk)
		}

		for _, instance := range chunk {
			if seen[instance.SummaryID] {
				continue
			}
			seen[instance.SummaryID] = true
			collected = append(collected, atlas.StoryPointer{EventID: instance.SummaryID, StoryID: tagID})
			anchor = instance.SummaryID
			if len(collected) == n {
				break
			}
		}

		if len(chunk) == want {
			order = *chunk[len(chunk)-1].StoryOrder
			continue
		}

		next, err := traverser.splice(ctx, anchor, direction, visited)
		if err != nil {
			return nil, err
		}
		if next == nil {
			break
		}
		metrics.StorySplicesTotal.Inc()
		visited[next.TagID] = true
		tagID, order = next.TagID, *next.StoryOrder
	}

	if direction == atlas.DirectionPrev {
		reverse(collected)
	}
	return collected, nil
}

// candidate is a co-occurring tag with the first event of its continuation.
type candidate struct {
	instance atlas.TagInstance
	first    atlas.TagInstance
	gap      int64
}

/*
splice picks the tag to continue with from the tags of anchor.

Description: Every unvisited ordered co-tag whose story continues in the
walked direction is a candidate. For next the candidate whose continuation
starts earliest wins; for prev the one that ends latest. Undated
continuations rank last, then the smaller order gap, then the lower tag id.

Returns:
  - *atlas.TagInstance: the co-tag's instance inside anchor, nil when no
    related story continues
*/
func (traverser *Traverser) splice(ctx context.Context, anchor uuid.UUID, direction atlas.Direction, visited map[uuid.UUID]bool) (*atlas.TagInstance, error) {
	cotags, err := traverser.index.CoTags(ctx, anchor)
	if err != nil {
		return nil, err
	}

	var candidates []candidate
	for _, instance := range cotags {
		if visited[instance.TagID] || !instance.Ordered() {
			continue
		}
		peek, err := traverser.index.TagInstancesForTag(ctx, instance.TagID, rangeFrom(*instance.StoryOrder, direction, 1))
		if err != nil {
			return nil, err
		}
		if len(peek) == 0 {
			continue
		}
		gap := *peek[0].StoryOrder - *instance.StoryOrder
		if gap < 0 {
			gap = -gap
		}
		candidates = append(candidates, candidate{instance: instance, first: peek[0], gap: gap})
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	summaries := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		summaries[i] = c.first.SummaryID
	}
	dates, err := traverser.index.SummaryDates(ctx, summaries)
	if err != nil {
		return nil, err
	}

	dateOf := func(c candidate) *chrono.Date {
		if date, ok := dates[c.first.SummaryID]; ok {
			return &date
		}
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		left, right := dateOf(candidates[i]), dateOf(candidates[j])
		if cmp := chrono.CompareOptional(left, right); cmp != 0 {
			if left != nil && right != nil && direction == atlas.DirectionPrev {
				return cmp > 0
			}
			return cmp < 0
		}
		if candidates[i].gap != candidates[j].gap {
			return candidates[i].gap < candidates[j].gap
		}
		return bytes.Compare(candidates[i].instance.TagID[:], candidates[j].instance.TagID[:]) < 0
	})

	chosen := candidates[0].instance
	traverser.logger.Debug("story_spliced",
		slog.String("anchor_id", anchor.String()),
		slog.String("story_id", chosen.TagID.String()),
		slog.String("direction", string(direction)),
	)
	return &chosen, nil
}

// # Hydration

// hydrate resolves every pointer with a single batched read.
func (traverser *Traverser) hydrate(ctx context.Context, pointers []atlas.StoryPointer, lang string) ([]atlas.HistoryEvent, error) {
	if len(pointers) == 0 {
		return []atlas.HistoryEvent{}, nil
	}

	ids := make([]uuid.UUID, len(pointers))
	for i, pointer := range pointers {
		ids[i] = pointer.EventID
	}
	loaded, err := traverser.index.EventsByIDs(ctx, ids, lang)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]atlas.HistoryEvent, len(loaded))
	for _, event := range loaded {
		byID[event.ID] = event
	}

	events := make([]atlas.HistoryEvent, 0, len(pointers))
	for _, pointer := range pointers {
		event, ok := byID[pointer.EventID]
		if !ok {
			continue
		}
		event.StoryID = pointer.StoryID
		events = append(events, event)
	}
	return events, nil
}

// # Helpers

func rangeFrom(order int64, direction atlas.Direction, limit int) atlas.OrderRange {
	if direction == atlas.DirectionPrev {
		return atlas.BeforePivot(order, limit)
	}
	return atlas.AfterPivot(order, limit)
}

// centered joins both sides around the pivot. The next side drops events
// the prev side already reached through a splice.
func centered(before []atlas.StoryPointer, pivot atlas.StoryPointer, after []atlas.StoryPointer) []atlas.StoryPointer {
	seen := make(map[uuid.UUID]bool, len(before)+1)
	out := make([]atlas.StoryPointer, 0, len(before)+len(after)+1)

	for _, pointer := range before {
		seen[pointer.EventID] = true
		out = append(out, pointer)
	}
	seen[pivot.EventID] = true
	out = append(out, pivot)

	for _, pointer := range after {
		if !seen[pointer.EventID] {
			out = append(out, pointer)
		}
	}
	return out
}

func reverse[T any](items []T) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}

func directionLabel(direction atlas.Direction) string {
	if direction == atlas.DirectionNone {
		return "centered"
	}
	return string(direction)
}
