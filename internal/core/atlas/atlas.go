// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package atlas defines the domain model shared by the story engine.

A [Tag] is a person, place or time. A [Summary] is one historical occurrence,
backed by [Citation]s that point at [Source]s. A [TagInstance] records that a
tag is mentioned inside a summary and carries the tag-local story_order that
threads the tag's summaries into a story.

# Story Ordering

Within one tag, non-null story orders are unique and grow with the event date
wherever dates are known. Orders are deliberately sparse so that a new
instance can be slotted between two neighbours without renumbering the tag.
Instances whose order is still NULL are invisible to traversal.
*/
package atlas

import (
	"github.com/google/uuid"

	"github.com/taibuivan/historyatlas/internal/core/chrono"
)

// # Tags

// TagType discriminates the tag variants.
type TagType string

const (
	TagPerson TagType = "PERSON"
	TagPlace  TagType = "PLACE"
	TagTime   TagType = "TIME"
)

// Valid reports whether t is a known tag variant.
func (t TagType) Valid() bool {
	switch t {
	case TagPerson, TagPlace, TagTime:
		return true
	}
	return false
}

// Tag is a named entity that summaries can mention.
//
// Exactly one of the variant payloads is set for places and times; people
// carry no extra attributes.
type Tag struct {
	ID         uuid.UUID `json:"id"`
	Type       TagType   `json:"type"`
	WikidataID *string   `json:"wikidata_id,omitempty"`
	Names      []string  `json:"names,omitempty"`

	Place *PlaceAttrs `json:"place,omitempty"`
	Time  *TimeAttrs  `json:"time,omitempty"`
}

// PlaceAttrs are the geographic attributes of a place tag.
type PlaceAttrs struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	GeoShape  *string `json:"geoshape,omitempty"`
}

// TimeAttrs are the calendar attributes of a time tag.
type TimeAttrs struct {
	DateTime      string           `json:"datetime"`
	CalendarModel string           `json:"calendar_model"`
	Precision     chrono.Precision `json:"precision"`
}

// Date parses the time attributes into a comparable [chrono.Date].
func (attrs TimeAttrs) Date() (chrono.Date, error) {
	return chrono.Parse(attrs.DateTime, attrs.Precision)
}

// # Summaries & Evidence

// Summary is one sentence describing a historical occurrence.
type Summary struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
}

// Citation links a summary to its bibliographic source.
type Citation struct {
	ID         uuid.UUID  `json:"id"`
	SummaryID  *uuid.UUID `json:"summary_id,omitempty"`
	SourceID   *uuid.UUID `json:"source_id,omitempty"`
	Text       string     `json:"text"`
	PageNum    *int       `json:"page_num,omitempty"`
	AccessDate *string    `json:"access_date,omitempty"`
}

// Source is the bibliographic metadata behind citations.
type Source struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Publisher string    `json:"publisher"`
	PubDate   string    `json:"pub_date"`
}

// # Tag Instances

// TagInstance is one mention of a tag inside a summary, spanning the
// characters [StartChar, StopChar).
type TagInstance struct {
	ID         uuid.UUID `json:"id"`
	SummaryID  uuid.UUID `json:"summary_id"`
	TagID      uuid.UUID `json:"tag_id"`
	StartChar  int       `json:"start_char"`
	StopChar   int       `json:"stop_char"`
	StoryOrder *int64    `json:"story_order"`
	After      After     `json:"after"`
}

// Ordered reports whether the instance has been placed in its tag's story.
func (instance TagInstance) Ordered() bool {
	return instance.StoryOrder != nil
}

// OrderUpdate assigns a story order to a tag instance.
type OrderUpdate struct {
	InstanceID uuid.UUID
	TagID      uuid.UUID
	Order      int64
}

// Rung is an ordered tag instance as seen by the order placement logic.
type Rung struct {
	InstanceID uuid.UUID
	SummaryID  uuid.UUID
	Order      int64
	Date       *chrono.Date
}

// PendingInstance is a tag instance whose order is still NULL, with the date
// of its summary (if the summary carries a time tag).
type PendingInstance struct {
	ID        uuid.UUID
	TagID     uuid.UUID
	SummaryID uuid.UUID
	Date      *chrono.Date
	After     After
}

// # Query Shapes

// Direction selects which side of a pivot a traversal walks.
type Direction string

const (
	DirectionNone Direction = ""
	DirectionNext Direction = "next"
	DirectionPrev Direction = "prev"
)

// Valid reports whether d is a supported traversal direction.
func (d Direction) Valid() bool {
	switch d {
	case DirectionNone, DirectionNext, DirectionPrev:
		return true
	}
	return false
}

// OrderRange selects ordered tag instances of one tag.
//
// Either Min/Max bound an inclusive range, or Pivot/Direction/Limit select the
// first Limit instances strictly after (or before) the pivot order. Results
// are always returned in ascending story order.
type OrderRange struct {
	Min *int64
	Max *int64

	Pivot     *int64
	Direction Direction
	Limit     int
}

// Between selects orders within [min, max].
func Between(min, max int64) OrderRange {
	return OrderRange{Min: &min, Max: &max}
}

// AfterPivot selects up to limit orders strictly greater than pivot.
func AfterPivot(pivot int64, limit int) OrderRange {
	return OrderRange{Pivot: &pivot, Direction: DirectionNext, Limit: limit}
}

// BeforePivot selects up to limit orders strictly less than pivot, the ones
// closest to the pivot.
func BeforePivot(pivot int64, limit int) OrderRange {
	return OrderRange{Pivot: &pivot, Direction: DirectionPrev, Limit: limit}
}

// Contains reports whether order satisfies the Min/Max bounds of r. Pivot
// ranges are evaluated by the storage layer.
func (r OrderRange) Contains(order int64) bool {
	if r.Pivot != nil {
		if r.Direction == DirectionPrev {
			return order < *r.Pivot
		}
		return order > *r.Pivot
	}
	if r.Min != nil && order < *r.Min {
		return false
	}
	if r.Max != nil && order > *r.Max {
		return false
	}
	return true
}
