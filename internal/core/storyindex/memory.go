// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package storyindex

import (
	"bytes"
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/core/chrono"
	"github.com/taibuivan/historyatlas/pkg/pointer"
)

// MemoryIndex is an in-process [Index].
//
// Transactions run one at a time against a private copy of the tables and
// swap it in on commit, so a failed callback leaves no trace. It is intended
// for tests and local tooling, not for production traffic.
type MemoryIndex struct {
	mu    sync.RWMutex
	state *memoryState

	// conflicts makes the next N order commits fail, for retry tests.
	conflicts int
}

type memoryState struct {
	tags       map[uuid.UUID]atlas.Tag
	summaries  map[uuid.UUID]atlas.Summary
	citations  map[uuid.UUID]atlas.Citation
	sources    map[uuid.UUID]atlas.Source
	instances  map[uuid.UUID]atlas.TagInstance
	storyNames map[uuid.UUID]map[string]string
	events     map[int64]string
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{state: &memoryState{
		tags:       make(map[uuid.UUID]atlas.Tag),
		summaries:  make(map[uuid.UUID]atlas.Summary),
		citations:  make(map[uuid.UUID]atlas.Citation),
		sources:    make(map[uuid.UUID]atlas.Source),
		instances:  make(map[uuid.UUID]atlas.TagInstance),
		storyNames: make(map[uuid.UUID]map[string]string),
		events:     make(map[int64]string),
	}}
}

// InjectConflicts makes the next n order transactions fail at commit with a
// story order conflict.
func (index *MemoryIndex) InjectConflicts(n int) {
	index.mu.Lock()
	defer index.mu.Unlock()
	index.conflicts = n
}

// Instances returns a snapshot of every tag instance of tagID ordered by id.
func (index *MemoryIndex) Instances(tagID uuid.UUID) []atlas.TagInstance {
	index.mu.RLock()
	defer index.mu.RUnlock()

	var out []atlas.TagInstance
	for _, instance := range index.state.instances {
		if instance.TagID == tagID {
			out = append(out, instance)
		}
	}
	sortByID(out)
	return out
}

// Instance returns a snapshot of one tag instance.
func (index *MemoryIndex) Instance(id uuid.UUID) (atlas.TagInstance, bool) {
	index.mu.RLock()
	defer index.mu.RUnlock()
	instance, ok := index.state.instances[id]
	return instance, ok
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		tags:       make(map[uuid.UUID]atlas.Tag, len(s.tags)),
		summaries:  make(map[uuid.UUID]atlas.Summary, len(s.summaries)),
		citations:  make(map[uuid.UUID]atlas.Citation, len(s.citations)),
		sources:    make(map[uuid.UUID]atlas.Source, len(s.sources)),
		instances:  make(map[uuid.UUID]atlas.TagInstance, len(s.instances)),
		storyNames: make(map[uuid.UUID]map[string]string, len(s.storyNames)),
		events:     make(map[int64]string, len(s.events)),
	}
	for id, tag := range s.tags {
		tag.Names = slices.Clone(tag.Names)
		out.tags[id] = tag
	}
	for id, v := range s.summaries {
		out.summaries[id] = v
	}
	for id, v := range s.citations {
		out.citations[id] = v
	}
	for id, v := range s.sources {
		out.sources[id] = v
	}
	for id, v := range s.instances {
		out.instances[id] = v
	}
	for id, names := range s.storyNames {
		copied := make(map[string]string, len(names))
		for lang, name := range names {
			copied[lang] = name
		}
		out.storyNames[id] = copied
	}
	for i, v := range s.events {
		out.events[i] = v
	}
	return out
}

// # Reader

func (index *MemoryIndex) TagInstancesForTag(_ context.Context, tagID uuid.UUID, r atlas.OrderRange) ([]atlas.TagInstance, error) {
	index.mu.RLock()
	defer index.mu.RUnlock()

	var matched []atlas.TagInstance
	for _, instance := range index.state.ordered(tagID) {
		if r.Contains(*instance.StoryOrder) {
			matched = append(matched, instance)
		}
	}
	if r.Pivot != nil && r.Limit > 0 && len(matched) > r.Limit {
		if r.Direction == atlas.DirectionPrev {
			matched = matched[len(matched)-r.Limit:]
		} else {
			matched = matched[:r.Limit]
		}
	}
	return matched, nil
}

func (index *MemoryIndex) DefaultEventForTag(_ context.Context, tagID uuid.UUID) (*atlas.TagInstance, error) {
	index.mu.RLock()
	defer index.mu.RUnlock()

	ordered := index.state.ordered(tagID)
	if len(ordered) == 0 {
		return nil, atlas.NewMissing("event", tagID)
	}
	return &ordered[0], nil
}

func (index *MemoryIndex) InstanceForEvent(_ context.Context, summaryID, tagID uuid.UUID) (*atlas.TagInstance, error) {
	index.mu.RLock()
	defer index.mu.RUnlock()

	if instance, ok := index.state.instanceOf(summaryID, tagID); ok {
		return &instance, nil
	}
	return nil, atlas.NewMissing("event", summaryID)
}

func (index *MemoryIndex) CoTags(_ context.Context, summaryID uuid.UUID) ([]atlas.TagInstance, error) {
	index.mu.RLock()
	defer index.mu.RUnlock()
	return index.state.inSummary(summaryID), nil
}

func (index *MemoryIndex) SummaryDates(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]chrono.Date, error) {
	index.mu.RLock()
	defer index.mu.RUnlock()

	out := make(map[uuid.UUID]chrono.Date, len(ids))
	for _, id := range ids {
		if date := index.state.summaryDate(id); date != nil {
			out[id] = *date
		}
	}
	return out, nil
}

func (index *MemoryIndex) EventsByIDs(_ context.Context, ids []uuid.UUID, _ string) ([]atlas.HistoryEvent, error) {
	index.mu.RLock()
	defer index.mu.RUnlock()

	events := make([]atlas.HistoryEvent, 0, len(ids))
	for _, id := range ids {
		summary, ok := index.state.summaries[id]
		if !ok {
			continue
		}
		events = append(events, index.state.hydrate(summary))
	}
	return events, nil
}

func (index *MemoryIndex) StoryNames(_ context.Context, tagIDs []uuid.UUID, lang string) (map[uuid.UUID]string, error) {
	index.mu.RLock()
	defer index.mu.RUnlock()

	out := make(map[uuid.UUID]string, len(tagIDs))
	for _, id := range tagIDs {
		names := index.state.storyNames[id]
		if len(names) == 0 {
			continue
		}
		if name, ok := names[lang]; ok {
			out[id] = name
			continue
		}
		langs := make([]string, 0, len(names))
		for l := range names {
			langs = append(langs, l)
		}
		sort.Strings(langs)
		out[id] = names[langs[0]]
	}
	return out, nil
}

func (index *MemoryIndex) Manifest(_ context.Context, tagID uuid.UUID) (*atlas.Manifest, error) {
	index.mu.RLock()
	defer index.mu.RUnlock()

	tag, ok := index.state.tags[tagID]
	if !ok {
		return nil, atlas.NewMissing("tag", tagID)
	}

	manifest := &atlas.Manifest{ID: tagID, Type: tag.Type, CitationIDs: []uuid.UUID{}, Timeline: []atlas.TimelineEntry{}}
	byYear := make(map[int64]*atlas.TimelineEntry)

	for _, instance := range index.state.ordered(tagID) {
		manifest.CitationIDs = append(manifest.CitationIDs, index.state.citationsOf(instance.SummaryID)...)

		date := index.state.summaryDate(instance.SummaryID)
		if date == nil {
			continue
		}
		entry, ok := byYear[date.Year]
		if !ok {
			entry = &atlas.TimelineEntry{RootID: instance.SummaryID, Year: date.Year}
			byYear[date.Year] = entry
		}
		entry.Count++
	}

	for _, entry := range byYear {
		manifest.Timeline = append(manifest.Timeline, *entry)
	}
	sort.Slice(manifest.Timeline, func(i, j int) bool { return manifest.Timeline[i].Year < manifest.Timeline[j].Year })
	return manifest, nil
}

func (index *MemoryIndex) PlaceByCoords(_ context.Context, latitude, longitude float64) (*uuid.UUID, error) {
	index.mu.RLock()
	defer index.mu.RUnlock()

	var found *uuid.UUID
	for id, tag := range index.state.tags {
		if tag.Place == nil || tag.Place.Latitude != latitude || tag.Place.Longitude != longitude {
			continue
		}
		if found == nil || idLess(id, *found) {
			match := id
			found = &match
		}
	}
	return found, nil
}

func (index *MemoryIndex) EntitySummaries(_ context.Context, ids []uuid.UUID) ([]atlas.EntitySummary, error) {
	index.mu.RLock()
	defer index.mu.RUnlock()

	out := make([]atlas.EntitySummary, 0, len(ids))
	for _, id := range ids {
		tag, ok := index.state.tags[id]
		if !ok {
			continue
		}

		entity := atlas.EntitySummary{ID: id, Type: tag.Type, Names: slices.Clone(tag.Names), CitationIDs: []uuid.UUID{}}
		if entity.Names == nil {
			entity.Names = []string{}
		}
		if tag.Place != nil {
			entity.Latitude = pointer.To(tag.Place.Latitude)
			entity.Longitude = pointer.To(tag.Place.Longitude)
		}

		var first, last *chrono.Date
		for _, instance := range index.state.ofTag(id) {
			entity.CitationIDs = append(entity.CitationIDs, index.state.citationsOf(instance.SummaryID)...)
			date := index.state.summaryDate(instance.SummaryID)
			if date == nil {
				continue
			}
			if first == nil || date.Before(*first) {
				first = date
			}
			if last == nil || last.Before(*date) {
				last = date
			}
		}
		if first != nil {
			entity.FirstCitedAt, entity.LastCitedAt = pointer.To(first.String()), pointer.To(last.String())
		}
		out = append(out, entity)
	}
	return out, nil
}

func (index *MemoryIndex) MostTaggedStories(_ context.Context, limit int) ([]uuid.UUID, error) {
	index.mu.RLock()
	defer index.mu.RUnlock()

	counts := make(map[uuid.UUID]int)
	for _, instance := range index.state.instances {
		if instance.Ordered() {
			counts[instance.TagID]++
		}
	}

	ids := make([]uuid.UUID, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return idLess(ids[i], ids[j])
	})
	if limit >= 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// # OrderStore

func (index *MemoryIndex) InOrderTx(_ context.Context, fn func(OrderTx) error) error {
	index.mu.Lock()
	defer index.mu.Unlock()

	tx := &memoryTx{state: index.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}

	if index.conflicts > 0 {
		index.conflicts--
		return &atlas.StoryOrderConflictError{}
	}
	if err := tx.state.checkOrders(); err != nil {
		return err
	}

	index.state = tx.state
	return nil
}

func (index *MemoryIndex) PendingInstances(_ context.Context, cursor *uuid.UUID, limit int) ([]atlas.PendingInstance, error) {
	index.mu.RLock()
	defer index.mu.RUnlock()

	var rows []atlas.TagInstance
	for _, instance := range index.state.instances {
		if instance.Ordered() {
			continue
		}
		if cursor != nil && !idLess(*cursor, instance.ID) {
			continue
		}
		rows = append(rows, instance)
	}
	sortByID(rows)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	pending := make([]atlas.PendingInstance, 0, len(rows))
	for _, row := range rows {
		pending = append(pending, atlas.PendingInstance{
			ID:        row.ID,
			TagID:     row.TagID,
			SummaryID: row.SummaryID,
			Date:      index.state.summaryDate(row.SummaryID),
			After:     row.After,
		})
	}
	return pending, nil
}

func (index *MemoryIndex) CountPending(context.Context) (int64, error) {
	index.mu.RLock()
	defer index.mu.RUnlock()

	var n int64
	for _, instance := range index.state.instances {
		if !instance.Ordered() {
			n++
		}
	}
	return n, nil
}

func (index *MemoryIndex) CreateBulkIndex(context.Context) error { return nil }
func (index *MemoryIndex) DropBulkIndex(context.Context) error   { return nil }

// # Writer

func (index *MemoryIndex) InWriteTx(_ context.Context, fn func(WriteTx) error) error {
	index.mu.Lock()
	defer index.mu.Unlock()

	tx := &memoryTx{state: index.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	index.state = tx.state
	return nil
}

// # Transaction

type memoryTx struct {
	state *memoryState
}

func (tx *memoryTx) LockTag(context.Context, uuid.UUID) error { return nil }

func (tx *memoryTx) LoadInstance(_ context.Context, instanceID uuid.UUID) (atlas.TagInstance, *chrono.Date, error) {
	instance, ok := tx.state.instances[instanceID]
	if !ok {
		return atlas.TagInstance{}, nil, atlas.NewMissing("tag instance", instanceID)
	}
	return instance, tx.state.summaryDate(instance.SummaryID), nil
}

func (tx *memoryTx) Ladder(_ context.Context, tagID uuid.UUID) ([]atlas.Rung, error) {
	ordered := tx.state.ordered(tagID)
	ladder := make([]atlas.Rung, 0, len(ordered))
	for _, instance := range ordered {
		ladder = append(ladder, atlas.Rung{
			InstanceID: instance.ID,
			SummaryID:  instance.SummaryID,
			Order:      *instance.StoryOrder,
			Date:       tx.state.summaryDate(instance.SummaryID),
		})
	}
	return ladder, nil
}

func (tx *memoryTx) ResolveAfter(_ context.Context, tagID uuid.UUID, after atlas.After) (map[uuid.UUID]*int64, error) {
	out := make(map[uuid.UUID]*int64, after.Len())
	for _, summaryID := range after.IDs() {
		if instance, ok := tx.state.instanceOf(summaryID, tagID); ok {
			out[summaryID] = instance.StoryOrder
		}
	}
	return out, nil
}

func (tx *memoryTx) UpdateStoryOrder(_ context.Context, instanceID uuid.UUID, order int64) error {
	instance, ok := tx.state.instances[instanceID]
	if !ok {
		return atlas.NewMissing("tag instance", instanceID)
	}
	instance.StoryOrder = &order
	tx.state.instances[instanceID] = instance
	return nil
}

func (tx *memoryTx) ApplyOrders(context context.Context, updates []atlas.OrderUpdate) error {
	for _, update := range updates {
		if err := tx.UpdateStoryOrder(context, update.InstanceID, update.Order); err != nil {
			return err
		}
	}
	return nil
}

func (tx *memoryTx) RecordEvent(_ context.Context, index int64, eventType string) error {
	if _, seen := tx.state.events[index]; seen {
		return &atlas.DuplicateEventError{Index: index}
	}
	tx.state.events[index] = eventType
	return nil
}

func (tx *memoryTx) UpsertTag(_ context.Context, tag atlas.Tag) (bool, error) {
	names := tag.Names
	_, exists := tx.state.tags[tag.ID]
	if !exists {
		tag.Names = nil
		tx.state.tags[tag.ID] = tag
	}
	for _, name := range names {
		tx.addName(tag.ID, name)
	}
	return !exists, nil
}

func (tx *memoryTx) AddName(_ context.Context, tagID uuid.UUID, name string) error {
	if _, ok := tx.state.tags[tagID]; !ok {
		return atlas.NewMissing("tag", tagID)
	}
	tx.addName(tagID, name)
	return nil
}

func (tx *memoryTx) addName(tagID uuid.UUID, name string) {
	tag := tx.state.tags[tagID]
	if name == "" || slices.Contains(tag.Names, name) {
		return
	}
	tag.Names = append(tag.Names, name)
	tx.state.tags[tagID] = tag
}

func (tx *memoryTx) EnsureStory(_ context.Context, tagID uuid.UUID, lang, name string) error {
	if _, ok := tx.state.tags[tagID]; !ok {
		return atlas.NewMissing("tag", tagID)
	}
	names, ok := tx.state.storyNames[tagID]
	if !ok {
		names = make(map[string]string)
		tx.state.storyNames[tagID] = names
	}
	if _, ok := names[lang]; !ok {
		names[lang] = name
	}
	return nil
}

func (tx *memoryTx) InsertSummary(_ context.Context, summary atlas.Summary) error {
	if _, ok := tx.state.summaries[summary.ID]; !ok {
		tx.state.summaries[summary.ID] = summary
	}
	return nil
}

func (tx *memoryTx) InsertCitation(_ context.Context, citation atlas.Citation) error {
	if citation.SummaryID != nil {
		if _, ok := tx.state.summaries[*citation.SummaryID]; !ok {
			return atlas.NewMissing("summary", *citation.SummaryID)
		}
	}
	if existing, ok := tx.state.citations[citation.ID]; ok {
		// A citation announced by its summary first only carries the link.
		if existing.SummaryID != nil && citation.SummaryID == nil {
			citation.SummaryID = existing.SummaryID
		}
		if citation.SourceID == nil {
			citation.SourceID = existing.SourceID
		}
	}
	tx.state.citations[citation.ID] = citation
	return nil
}

func (tx *memoryTx) AttachCitation(_ context.Context, citationID, summaryID uuid.UUID) error {
	if _, ok := tx.state.summaries[summaryID]; !ok {
		return atlas.NewMissing("summary", summaryID)
	}
	citation, ok := tx.state.citations[citationID]
	if !ok {
		citation = atlas.Citation{ID: citationID}
	}
	citation.SummaryID = pointer.To(summaryID)
	tx.state.citations[citationID] = citation
	return nil
}

func (tx *memoryTx) InsertSource(_ context.Context, source atlas.Source, citationID uuid.UUID) error {
	if _, ok := tx.state.sources[source.ID]; !ok {
		tx.state.sources[source.ID] = source
	}
	citation, ok := tx.state.citations[citationID]
	if !ok {
		citation = atlas.Citation{ID: citationID}
	}
	citation.SourceID = pointer.To(source.ID)
	tx.state.citations[citationID] = citation
	return nil
}

func (tx *memoryTx) InsertTagInstance(_ context.Context, instance atlas.TagInstance) (bool, error) {
	if _, ok := tx.state.summaries[instance.SummaryID]; !ok {
		return false, atlas.NewMissing("summary", instance.SummaryID)
	}
	if _, ok := tx.state.tags[instance.TagID]; !ok {
		return false, atlas.NewMissing("tag", instance.TagID)
	}
	if _, ok := tx.state.instanceOf(instance.SummaryID, instance.TagID); ok {
		return false, nil
	}
	tx.state.instances[instance.ID] = instance
	return true, nil
}

// # State Helpers

// ordered returns the ordered instances of a tag ascending by order.
func (s *memoryState) ordered(tagID uuid.UUID) []atlas.TagInstance {
	var out []atlas.TagInstance
	for _, instance := range s.instances {
		if instance.TagID == tagID && instance.Ordered() {
			out = append(out, instance)
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].StoryOrder < *out[j].StoryOrder })
	return out
}

func (s *memoryState) ofTag(tagID uuid.UUID) []atlas.TagInstance {
	var out []atlas.TagInstance
	for _, instance := range s.instances {
		if instance.TagID == tagID {
			out = append(out, instance)
		}
	}
	sortByID(out)
	return out
}

func (s *memoryState) inSummary(summaryID uuid.UUID) []atlas.TagInstance {
	var out []atlas.TagInstance
	for _, instance := range s.instances {
		if instance.SummaryID == summaryID {
			out = append(out, instance)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartChar != out[j].StartChar {
			return out[i].StartChar < out[j].StartChar
		}
		return idLess(out[i].TagID, out[j].TagID)
	})
	return out
}

func (s *memoryState) instanceOf(summaryID, tagID uuid.UUID) (atlas.TagInstance, bool) {
	for _, instance := range s.instances {
		if instance.SummaryID == summaryID && instance.TagID == tagID {
			return instance, true
		}
	}
	return atlas.TagInstance{}, false
}

// summaryTime returns the earliest time tag mentioned in a summary.
func (s *memoryState) summaryTime(summaryID uuid.UUID) (*atlas.Tag, *chrono.Date) {
	var (
		best     *atlas.Tag
		bestDate *chrono.Date
	)
	for _, instance := range s.inSummary(summaryID) {
		tag, ok := s.tags[instance.TagID]
		if !ok || tag.Time == nil {
			continue
		}
		date, err := tag.Time.Date()
		if err != nil {
			continue
		}
		if bestDate == nil || date.Before(*bestDate) {
			found := tag
			best, bestDate = &found, &date
		}
	}
	return best, bestDate
}

func (s *memoryState) summaryDate(summaryID uuid.UUID) *chrono.Date {
	_, date := s.summaryTime(summaryID)
	return date
}

func (s *memoryState) citationsOf(summaryID uuid.UUID) []uuid.UUID {
	var ids []uuid.UUID
	for id, citation := range s.citations {
		if citation.SummaryID != nil && *citation.SummaryID == summaryID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return idLess(ids[i], ids[j]) })
	return ids
}

func (s *memoryState) hydrate(summary atlas.Summary) atlas.HistoryEvent {
	event := atlas.HistoryEvent{ID: summary.ID, Text: summary.Text, Tags: []atlas.EventTag{}}

	if timeTag, _ := s.summaryTime(summary.ID); timeTag != nil {
		event.Date = &atlas.EventDate{
			DateTime:      timeTag.Time.DateTime,
			CalendarModel: timeTag.Time.CalendarModel,
			Precision:     timeTag.Time.Precision,
		}
	}

	for _, citationID := range s.citationsOf(summary.ID) {
		citation := s.citations[citationID]
		if citation.SourceID == nil {
			continue
		}
		source, ok := s.sources[*citation.SourceID]
		if !ok {
			continue
		}
		event.Source = &atlas.EventSource{
			ID:         source.ID,
			Title:      source.Title,
			Author:     source.Author,
			Publisher:  source.Publisher,
			PubDate:    source.PubDate,
			PageNum:    citation.PageNum,
			AccessDate: citation.AccessDate,
		}
		break
	}

	var locations []atlas.MapLocation
	for _, instance := range s.inSummary(summary.ID) {
		tag := s.tags[instance.TagID]
		name := ""
		if len(tag.Names) > 0 {
			name = tag.Names[0]
		}
		event.Tags = append(event.Tags, atlas.EventTag{
			ID:        tag.ID,
			Type:      tag.Type,
			Name:      name,
			StartChar: instance.StartChar,
			StopChar:  instance.StopChar,
		})
		if tag.Place != nil {
			locations = append(locations, atlas.MapLocation{
				ID:        tag.ID,
				Name:      name,
				Latitude:  tag.Place.Latitude,
				Longitude: tag.Place.Longitude,
			})
		}
	}
	if len(locations) > 0 {
		event.Map = &atlas.EventMap{Locations: locations}
	}
	return event
}

// checkOrders enforces the (tag_id, story_order) uniqueness at commit.
func (s *memoryState) checkOrders() error {
	type key struct {
		tag   uuid.UUID
		order int64
	}
	seen := make(map[key]struct{}, len(s.instances))
	for _, instance := range s.instances {
		if !instance.Ordered() {
			continue
		}
		k := key{instance.TagID, *instance.StoryOrder}
		if _, dup := seen[k]; dup {
			return &atlas.StoryOrderConflictError{TagID: k.tag, Order: k.order}
		}
		seen[k] = struct{}{}
	}
	return nil
}

func idLess(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func sortByID(instances []atlas.TagInstance) {
	sort.Slice(instances, func(i, j int) bool { return idLess(instances[i].ID, instances[j].ID) })
}
