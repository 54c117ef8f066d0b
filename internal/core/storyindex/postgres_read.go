// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package storyindex

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/core/chrono"
	"github.com/taibuivan/historyatlas/internal/platform/database/schema"
	"github.com/taibuivan/historyatlas/internal/platform/dberr"
)

var (
	tg = schema.AtlasTag
	pl = schema.AtlasPlace
	nm = schema.AtlasName
	tn = schema.AtlasTagName
	su = schema.AtlasSummary
	ci = schema.AtlasCitation
	so = schema.AtlasSource
	sn = schema.AtlasStoryName
)

/*
TagInstancesForTag scans the ordered instances of one tag.

Description: Pivot ranges read the closest rows on the requested side through
the (tag_id, story_order) unique index and are returned ascending, so a
"prev" window is reversed after the fetch.
*/
func (index *PostgresIndex) TagInstancesForTag(context context.Context, tagID uuid.UUID, r atlas.OrderRange) ([]atlas.TagInstance, error) {
	var (
		query strings.Builder
		args  = []any{tagID}
	)

	fmt.Fprintf(&query, "SELECT %s FROM %s ti WHERE ti.%s = $1 AND ti.%s IS NOT NULL",
		instanceColumns, ti.Table, ti.TagID, ti.StoryOrder)

	descending := false
	switch {
	case r.Pivot != nil && r.Direction == atlas.DirectionPrev:
		args = append(args, *r.Pivot)
		fmt.Fprintf(&query, " AND ti.%s < $%d ORDER BY ti.%s DESC", ti.StoryOrder, len(args), ti.StoryOrder)
		descending = true
	case r.Pivot != nil:
		args = append(args, *r.Pivot)
		fmt.Fprintf(&query, " AND ti.%s > $%d ORDER BY ti.%s ASC", ti.StoryOrder, len(args), ti.StoryOrder)
	default:
		if r.Min != nil {
			args = append(args, *r.Min)
			fmt.Fprintf(&query, " AND ti.%s >= $%d", ti.StoryOrder, len(args))
		}
		if r.Max != nil {
			args = append(args, *r.Max)
			fmt.Fprintf(&query, " AND ti.%s <= $%d", ti.StoryOrder, len(args))
		}
		fmt.Fprintf(&query, " ORDER BY ti.%s ASC", ti.StoryOrder)
	}

	if r.Pivot != nil && r.Limit > 0 {
		args = append(args, r.Limit)
		fmt.Fprintf(&query, " LIMIT $%d", len(args))
	}

	rows, err := index.pool.Query(context, query.String(), args...)
	if err != nil {
		return nil, dberr.Wrap(err, "tag_instances_for_tag")
	}

	instances, err := collectInstances(rows, "scan_tag_instance")
	if err != nil {
		return nil, err
	}
	if descending {
		slices.Reverse(instances)
	}
	return instances, nil
}

func (index *PostgresIndex) DefaultEventForTag(context context.Context, tagID uuid.UUID) (*atlas.TagInstance, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ti WHERE ti.%s = $1 AND ti.%s IS NOT NULL ORDER BY ti.%s ASC LIMIT 1`,
		instanceColumns, ti.Table, ti.TagID, ti.StoryOrder, ti.StoryOrder)

	instance, err := scanInstance(index.pool.QueryRow(context, query, tagID))
	if dberr.IsNotFound(err) {
		return nil, atlas.NewMissing("event", tagID)
	}
	if err != nil {
		return nil, dberr.Wrap(err, "default_event_for_tag")
	}
	return &instance, nil
}

func (index *PostgresIndex) InstanceForEvent(context context.Context, summaryID, tagID uuid.UUID) (*atlas.TagInstance, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ti WHERE ti.%s = $1 AND ti.%s = $2`,
		instanceColumns, ti.Table, ti.SummaryID, ti.TagID)

	instance, err := scanInstance(index.pool.QueryRow(context, query, summaryID, tagID))
	if dberr.IsNotFound(err) {
		return nil, atlas.NewMissing("event", summaryID)
	}
	if err != nil {
		return nil, dberr.Wrap(err, "instance_for_event")
	}
	return &instance, nil
}

func (index *PostgresIndex) CoTags(context context.Context, summaryID uuid.UUID) ([]atlas.TagInstance, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ti WHERE ti.%s = $1 ORDER BY ti.%s, ti.%s`,
		instanceColumns, ti.Table, ti.SummaryID, ti.StartChar, ti.TagID)

	rows, err := index.pool.Query(context, query, summaryID)
	if err != nil {
		return nil, dberr.Wrap(err, "co_tags")
	}
	return collectInstances(rows, "scan_co_tag")
}

func (index *PostgresIndex) SummaryDates(context context.Context, ids []uuid.UUID) (map[uuid.UUID]chrono.Date, error) {
	dates := make(map[uuid.UUID]chrono.Date, len(ids))
	if len(ids) == 0 {
		return dates, nil
	}

	query := fmt.Sprintf(`SELECT s.id, %s FROM unnest($1::uuid[]) AS s(id) %s WHERE ed.year IS NOT NULL`,
		eventDateColumns, eventDateJoin("s.id"))

	rows, err := index.pool.Query(context, query, idArgs(ids))
	if err != nil {
		return nil, dberr.Wrap(err, "summary_dates")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id      uuid.UUID
			columns dateColumns
		)
		if err := rows.Scan(append([]any{&id}, columns.targets()...)...); err != nil {
			return nil, dberr.Wrap(err, "scan_summary_date")
		}
		if date := columns.date(); date != nil {
			dates[id] = *date
		}
	}
	return dates, dberr.Wrap(rows.Err(), "summary_dates")
}

/*
EventsByIDs hydrates summaries into history events.

Description: The summary rows, their event dates, their first sourced
citation and every tag they mention are fetched by four statements queued on
one pgx.Batch, so a window of any size costs a single round trip.

Returns:
  - []atlas.HistoryEvent: in the order of ids, unknown ids skipped
*/
func (index *PostgresIndex) EventsByIDs(context context.Context, ids []uuid.UUID, _ string) ([]atlas.HistoryEvent, error) {
	if len(ids) == 0 {
		return []atlas.HistoryEvent{}, nil
	}
	args := idArgs(ids)

	batch := &pgx.Batch{}

	// 1. Summaries
	batch.Queue(fmt.Sprintf(`SELECT %s, %s FROM %s WHERE %s = ANY($1::uuid[])`,
		su.ID, su.Text, su.Table, su.ID), args)

	// 2. Event dates
	batch.Queue(fmt.Sprintf(`SELECT s.id, ed.datetime, ed.calendar_model, ed.precision
		FROM unnest($1::uuid[]) AS s(id) %s WHERE ed.year IS NOT NULL`, eventDateJoin("s.id")), args)

	// 3. First sourced citation per summary
	batch.Queue(fmt.Sprintf(`
		SELECT DISTINCT ON (c.%s) c.%s, src.%s, src.%s, src.%s, src.%s, src.%s, c.%s, c.%s
		FROM %s c
		JOIN %s src ON src.%s = c.%s
		WHERE c.%s = ANY($1::uuid[])
		ORDER BY c.%s, c.%s`,
		ci.SummaryID, ci.SummaryID, so.ID, so.Title, so.Author, so.Publisher, so.PubDate, ci.PageNum, ci.AccessDate,
		ci.Table,
		so.Table, so.ID, ci.SourceID,
		ci.SummaryID,
		ci.SummaryID, ci.ID,
	), args)

	// 4. Tags mentioned, with their primary name and place coordinates
	batch.Queue(fmt.Sprintf(`
		SELECT ti.%s, ti.%s, tg.%s, ti.%s, ti.%s, COALESCE(pn.name, ''), p.%s, p.%s
		FROM %s ti
		JOIN %s tg ON tg.%s = ti.%s
		LEFT JOIN %s p ON p.%s = tg.%s
		LEFT JOIN LATERAL (
			SELECT n.%s AS name FROM %s tn JOIN %s n ON n.%s = tn.%s
			WHERE tn.%s = tg.%s ORDER BY tn.%s, tn.%s LIMIT 1
		) pn ON TRUE
		WHERE ti.%s = ANY($1::uuid[])
		ORDER BY ti.%s, ti.%s, ti.%s`,
		ti.SummaryID, ti.TagID, tg.Type, ti.StartChar, ti.StopChar, pl.Latitude, pl.Longitude,
		ti.Table,
		tg.Table, tg.ID, ti.TagID,
		pl.Table, pl.ID, tg.ID,
		nm.Name, tn.Table, nm.Table, nm.ID, tn.NameID,
		tn.TagID, tg.ID, tn.AddedAt, tn.NameID,
		ti.SummaryID,
		ti.SummaryID, ti.StartChar, ti.TagID,
	), args)

	results := index.pool.SendBatch(context, batch)
	defer results.Close()

	events := make(map[uuid.UUID]*atlas.HistoryEvent, len(ids))

	// 1. Summaries
	rows, err := results.Query()
	if err != nil {
		return nil, dberr.Wrap(err, "events_summaries")
	}
	for rows.Next() {
		event := &atlas.HistoryEvent{Tags: []atlas.EventTag{}}
		if err := rows.Scan(&event.ID, &event.Text); err != nil {
			rows.Close()
			return nil, dberr.Wrap(err, "scan_event_summary")
		}
		events[event.ID] = event
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(err, "events_summaries")
	}

	// 2. Dates
	rows, err = results.Query()
	if err != nil {
		return nil, dberr.Wrap(err, "events_dates")
	}
	for rows.Next() {
		var (
			id        uuid.UUID
			date      atlas.EventDate
			precision int16
		)
		if err := rows.Scan(&id, &date.DateTime, &date.CalendarModel, &precision); err != nil {
			rows.Close()
			return nil, dberr.Wrap(err, "scan_event_date")
		}
		date.Precision = chrono.Precision(precision)
		if event, ok := events[id]; ok {
			event.Date = &date
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(err, "events_dates")
	}

	// 3. Sources
	rows, err = results.Query()
	if err != nil {
		return nil, dberr.Wrap(err, "events_sources")
	}
	for rows.Next() {
		var (
			summaryID uuid.UUID
			source    atlas.EventSource
		)
		if err := rows.Scan(&summaryID, &source.ID, &source.Title, &source.Author, &source.Publisher,
			&source.PubDate, &source.PageNum, &source.AccessDate); err != nil {
			rows.Close()
			return nil, dberr.Wrap(err, "scan_event_source")
		}
		if event, ok := events[summaryID]; ok {
			event.Source = &source
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(err, "events_sources")
	}

	// 4. Tags
	rows, err = results.Query()
	if err != nil {
		return nil, dberr.Wrap(err, "events_tags")
	}
	for rows.Next() {
		var (
			summaryID           uuid.UUID
			tag                 atlas.EventTag
			latitude, longitude *float64
		)
		if err := rows.Scan(&summaryID, &tag.ID, &tag.Type, &tag.StartChar, &tag.StopChar,
			&tag.Name, &latitude, &longitude); err != nil {
			rows.Close()
			return nil, dberr.Wrap(err, "scan_event_tag")
		}
		event, ok := events[summaryID]
		if !ok {
			continue
		}
		event.Tags = append(event.Tags, tag)
		if latitude != nil && longitude != nil {
			if event.Map == nil {
				event.Map = &atlas.EventMap{}
			}
			event.Map.Locations = append(event.Map.Locations, atlas.MapLocation{
				ID: tag.ID, Name: tag.Name, Latitude: *latitude, Longitude: *longitude,
			})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(err, "events_tags")
	}

	ordered := make([]atlas.HistoryEvent, 0, len(ids))
	for _, id := range ids {
		if event, ok := events[id]; ok {
			ordered = append(ordered, *event)
		}
	}
	return ordered, nil
}

func (index *PostgresIndex) StoryNames(context context.Context, tagIDs []uuid.UUID, lang string) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(tagIDs))
	if len(tagIDs) == 0 {
		return names, nil
	}

	// The requested language wins; any other title is an acceptable fallback.
	query := fmt.Sprintf(`
		SELECT DISTINCT ON (%s) %s, %s FROM %s
		WHERE %s = ANY($1::uuid[])
		ORDER BY %s, (%s = $2) DESC, %s`,
		sn.StoryID, sn.StoryID, sn.Name, sn.Table,
		sn.StoryID,
		sn.StoryID, sn.Lang, sn.Lang,
	)

	rows, err := index.pool.Query(context, query, idArgs(tagIDs), lang)
	if err != nil {
		return nil, dberr.Wrap(err, "story_names")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   uuid.UUID
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, dberr.Wrap(err, "scan_story_name")
		}
		names[id] = name
	}
	return names, dberr.Wrap(rows.Err(), "story_names")
}

/*
Manifest lists the citations of a tag's ordered summaries and a per-year
timeline whose root is the earliest ordered summary of that year.
*/
func (index *PostgresIndex) Manifest(context context.Context, tagID uuid.UUID) (*atlas.Manifest, error) {
	manifest := &atlas.Manifest{ID: tagID, CitationIDs: []uuid.UUID{}, Timeline: []atlas.TimelineEntry{}}

	typeQuery := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, tg.Type, tg.Table, tg.ID)
	if err := index.pool.QueryRow(context, typeQuery, tagID).Scan(&manifest.Type); err != nil {
		if dberr.IsNotFound(err) {
			return nil, atlas.NewMissing("tag", tagID)
		}
		return nil, dberr.Wrap(err, "manifest_tag")
	}

	batch := &pgx.Batch{}
	batch.Queue(fmt.Sprintf(`
		SELECT c.%s FROM %s ti JOIN %s c ON c.%s = ti.%s
		WHERE ti.%s = $1 AND ti.%s IS NOT NULL
		ORDER BY ti.%s, c.%s`,
		ci.ID, ti.Table, ci.Table, ci.SummaryID, ti.SummaryID,
		ti.TagID, ti.StoryOrder,
		ti.StoryOrder, ci.ID,
	), tagID)
	batch.Queue(fmt.Sprintf(`
		SELECT ed.year, COUNT(*), (array_agg(ti.%s ORDER BY ti.%s))[1]
		FROM %s ti %s
		WHERE ti.%s = $1 AND ti.%s IS NOT NULL AND ed.year IS NOT NULL
		GROUP BY ed.year ORDER BY ed.year`,
		ti.SummaryID, ti.StoryOrder,
		ti.Table, eventDateJoin("ti."+ti.SummaryID),
		ti.TagID, ti.StoryOrder,
	), tagID)

	results := index.pool.SendBatch(context, batch)
	defer results.Close()

	rows, err := results.Query()
	if err != nil {
		return nil, dberr.Wrap(err, "manifest_citations")
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, dberr.Wrap(err, "scan_manifest_citation")
		}
		manifest.CitationIDs = append(manifest.CitationIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(err, "manifest_citations")
	}

	rows, err = results.Query()
	if err != nil {
		return nil, dberr.Wrap(err, "manifest_timeline")
	}
	for rows.Next() {
		var entry atlas.TimelineEntry
		if err := rows.Scan(&entry.Year, &entry.Count, &entry.RootID); err != nil {
			rows.Close()
			return nil, dberr.Wrap(err, "scan_manifest_timeline")
		}
		manifest.Timeline = append(manifest.Timeline, entry)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(err, "manifest_timeline")
	}

	return manifest, nil
}

func (index *PostgresIndex) PlaceByCoords(context context.Context, latitude, longitude float64) (*uuid.UUID, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s = $2 ORDER BY %s LIMIT 1`,
		pl.ID, pl.Table, pl.Latitude, pl.Longitude, pl.ID)

	var id uuid.UUID
	if err := index.pool.QueryRow(context, query, latitude, longitude).Scan(&id); err != nil {
		if dberr.IsNotFound(err) {
			return nil, nil
		}
		return nil, dberr.Wrap(err, "place_by_coords")
	}
	return &id, nil
}

/*
EntitySummaries describes tags for the map and search panels.

Description: Types and coordinates, names, citations and the dates of every
mentioning summary are queued on one batch; the first and last cited dates
are then folded in Go with the same chronological comparison used for
ordering.
*/
func (index *PostgresIndex) EntitySummaries(context context.Context, ids []uuid.UUID) ([]atlas.EntitySummary, error) {
	if len(ids) == 0 {
		return []atlas.EntitySummary{}, nil
	}
	args := idArgs(ids)

	batch := &pgx.Batch{}
	batch.Queue(fmt.Sprintf(`
		SELECT tg.%s, tg.%s, p.%s, p.%s FROM %s tg LEFT JOIN %s p ON p.%s = tg.%s
		WHERE tg.%s = ANY($1::uuid[])`,
		tg.ID, tg.Type, pl.Latitude, pl.Longitude, tg.Table, pl.Table, pl.ID, tg.ID,
		tg.ID,
	), args)
	batch.Queue(fmt.Sprintf(`
		SELECT tn.%s, n.%s FROM %s tn JOIN %s n ON n.%s = tn.%s
		WHERE tn.%s = ANY($1::uuid[]) ORDER BY tn.%s, tn.%s, tn.%s`,
		tn.TagID, nm.Name, tn.Table, nm.Table, nm.ID, tn.NameID,
		tn.TagID, tn.TagID, tn.AddedAt, tn.NameID,
	), args)
	batch.Queue(fmt.Sprintf(`
		SELECT ti.%s, c.%s FROM %s ti JOIN %s c ON c.%s = ti.%s
		WHERE ti.%s = ANY($1::uuid[]) ORDER BY ti.%s, ti.%s, c.%s`,
		ti.TagID, ci.ID, ti.Table, ci.Table, ci.SummaryID, ti.SummaryID,
		ti.TagID, ti.TagID, ti.ID, ci.ID,
	), args)
	batch.Queue(fmt.Sprintf(`
		SELECT ti.%s, %s FROM %s ti %s
		WHERE ti.%s = ANY($1::uuid[]) AND ed.year IS NOT NULL`,
		ti.TagID, eventDateColumns, ti.Table, eventDateJoin("ti."+ti.SummaryID),
		ti.TagID,
	), args)

	results := index.pool.SendBatch(context, batch)
	defer results.Close()

	entities := make(map[uuid.UUID]*atlas.EntitySummary, len(ids))

	rows, err := results.Query()
	if err != nil {
		return nil, dberr.Wrap(err, "entity_tags")
	}
	for rows.Next() {
		entity := &atlas.EntitySummary{Names: []string{}, CitationIDs: []uuid.UUID{}}
		if err := rows.Scan(&entity.ID, &entity.Type, &entity.Latitude, &entity.Longitude); err != nil {
			rows.Close()
			return nil, dberr.Wrap(err, "scan_entity_tag")
		}
		entities[entity.ID] = entity
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(err, "entity_tags")
	}

	rows, err = results.Query()
	if err != nil {
		return nil, dberr.Wrap(err, "entity_names")
	}
	for rows.Next() {
		var (
			id   uuid.UUID
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return nil, dberr.Wrap(err, "scan_entity_name")
		}
		if entity, ok := entities[id]; ok {
			entity.Names = append(entity.Names, name)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(err, "entity_names")
	}

	rows, err = results.Query()
	if err != nil {
		return nil, dberr.Wrap(err, "entity_citations")
	}
	for rows.Next() {
		var id, citationID uuid.UUID
		if err := rows.Scan(&id, &citationID); err != nil {
			rows.Close()
			return nil, dberr.Wrap(err, "scan_entity_citation")
		}
		if entity, ok := entities[id]; ok {
			entity.CitationIDs = append(entity.CitationIDs, citationID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(err, "entity_citations")
	}

	rows, err = results.Query()
	if err != nil {
		return nil, dberr.Wrap(err, "entity_dates")
	}
	first := make(map[uuid.UUID]chrono.Date)
	last := make(map[uuid.UUID]chrono.Date)
	for rows.Next() {
		var (
			id      uuid.UUID
			columns dateColumns
		)
		if err := rows.Scan(append([]any{&id}, columns.targets()...)...); err != nil {
			rows.Close()
			return nil, dberr.Wrap(err, "scan_entity_date")
		}
		date := columns.date()
		if date == nil {
			continue
		}
		if current, ok := first[id]; !ok || date.Before(current) {
			first[id] = *date
		}
		if current, ok := last[id]; !ok || current.Before(*date) {
			last[id] = *date
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(err, "entity_dates")
	}

	out := make([]atlas.EntitySummary, 0, len(ids))
	for _, id := range ids {
		entity, ok := entities[id]
		if !ok {
			continue
		}
		if date, ok := first[id]; ok {
			firstText, lastText := date.String(), last[id].String()
			entity.FirstCitedAt, entity.LastCitedAt = &firstText, &lastText
		}
		out = append(out, *entity)
	}
	return out, nil
}

func (index *PostgresIndex) MostTaggedStories(context context.Context, limit int) ([]uuid.UUID, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE %s IS NOT NULL
		GROUP BY %s ORDER BY COUNT(*) DESC, %s ASC LIMIT $1`,
		ti.TagID, ti.Table, ti.StoryOrder,
		ti.TagID, ti.TagID,
	)

	rows, err := index.pool.Query(context, query, limit)
	if err != nil {
		return nil, dberr.Wrap(err, "most_tagged_stories")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, dberr.Wrap(err, "scan_most_tagged_story")
		}
		ids = append(ids, id)
	}
	return ids, dberr.Wrap(rows.Err(), "most_tagged_stories")
}
