// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package atlas

import (
	"time"

	"github.com/google/uuid"

	"github.com/taibuivan/historyatlas/internal/core/chrono"
)

// # Hydrated Read Model

// HistoryEvent is a summary fully hydrated for display.
type HistoryEvent struct {
	ID     uuid.UUID    `json:"id"`
	Text   string       `json:"text"`
	Date   *EventDate   `json:"date"`
	Source *EventSource `json:"source"`
	Tags   []EventTag   `json:"tags"`
	Map    *EventMap    `json:"map,omitempty"`

	// StoryID is the tag whose story supplied this event. It differs from the
	// requested story when the traversal spliced onto a co-occurring tag.
	StoryID uuid.UUID `json:"story_id"`
}

// EventDate is the time tag attached to an event.
type EventDate struct {
	DateTime      string           `json:"datetime"`
	CalendarModel string           `json:"calendar_model"`
	Precision     chrono.Precision `json:"precision"`
}

// EventSource is the first citation of an event and its source.
type EventSource struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	Publisher  string    `json:"publisher"`
	PubDate    string    `json:"pub_date"`
	PageNum    *int      `json:"page_num,omitempty"`
	AccessDate *string   `json:"access_date,omitempty"`
}

// EventTag is one tag mentioned in an event.
type EventTag struct {
	ID        uuid.UUID `json:"id"`
	Type      TagType   `json:"type"`
	Name      string    `json:"name"`
	StartChar int       `json:"start_char"`
	StopChar  int       `json:"stop_char"`
}

// EventMap lists the places of an event that have coordinates.
type EventMap struct {
	Locations []MapLocation `json:"locations"`
}

// MapLocation is a place marker.
type MapLocation struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}

// Story is the ordered sequence of events produced by a traversal.
type Story struct {
	ID     uuid.UUID      `json:"id"`
	Name   string         `json:"name"`
	Events []HistoryEvent `json:"events"`
}

// StoryPointer addresses an event within a story.
type StoryPointer struct {
	EventID uuid.UUID `json:"event_id"`
	StoryID uuid.UUID `json:"story_id"`
}

// CachedStory is a default story with the time it was computed.
type CachedStory struct {
	Story      Story        `json:"story"`
	Pointer    StoryPointer `json:"pointer"`
	ComputedAt time.Time    `json:"computed_at"`
}

// # Manifest & Entity Summaries

// Manifest describes everything known about one tag's story.
type Manifest struct {
	ID          uuid.UUID       `json:"id"`
	Type        TagType         `json:"type"`
	CitationIDs []uuid.UUID     `json:"citation_ids"`
	Timeline    []TimelineEntry `json:"timeline"`
}

// TimelineEntry groups a tag's events by year.
type TimelineEntry struct {
	Count  int       `json:"count"`
	RootID uuid.UUID `json:"root_id"`
	Year   int64     `json:"year"`
}

// EntitySummary is the compact description of a tag used by search results
// and hover cards.
type EntitySummary struct {
	ID           uuid.UUID   `json:"id"`
	Type         TagType     `json:"type"`
	Names        []string    `json:"names"`
	CitationIDs  []uuid.UUID `json:"citation_ids"`
	FirstCitedAt *string     `json:"first_citation_date,omitempty"`
	LastCitedAt  *string     `json:"last_citation_date,omitempty"`
	Latitude     *float64    `json:"latitude,omitempty"`
	Longitude    *float64    `json:"longitude,omitempty"`
}
