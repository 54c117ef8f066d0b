// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ingest

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/core/chrono"
	"github.com/taibuivan/historyatlas/internal/platform/validate"
	"github.com/taibuivan/historyatlas/pkg/pointer"
)

// # Event Types

const (
	TypePersonAdded   = "PersonAdded"
	TypePlaceAdded    = "PlaceAdded"
	TypeTimeAdded     = "TimeAdded"
	TypePersonTagged  = "PersonTagged"
	TypePlaceTagged   = "PlaceTagged"
	TypeTimeTagged    = "TimeTagged"
	TypeSummaryAdded  = "SummaryAdded"
	TypeCitationAdded = "CitationAdded"
	TypeMetaAdded     = "MetaAdded"
)

// tagTypes maps every tag event onto the variant it creates or tags.
var tagTypes = map[string]atlas.TagType{
	TypePersonAdded:  atlas.TagPerson,
	TypePersonTagged: atlas.TagPerson,
	TypePlaceAdded:   atlas.TagPlace,
	TypePlaceTagged:  atlas.TagPlace,
	TypeTimeAdded:    atlas.TagTime,
	TypeTimeTagged:   atlas.TagTime,
}

// # Envelope

// Envelope is one event as produced by the write model. Index increases
// monotonically across the stream and is processed at most once.
type Envelope struct {
	Type    string          `json:"type"`
	Index   int64           `json:"index"`
	Payload json.RawMessage `json:"payload"`
}

// # Payloads

// TagPayload is shared by the six tag events. Place and time attributes are
// only read for their variant.
type TagPayload struct {
	ID            uuid.UUID `json:"id"`
	CitationID    uuid.UUID `json:"citation_id"`
	SummaryID     uuid.UUID `json:"summary_id"`
	Name          string    `json:"name"`
	CitationStart int       `json:"citation_start"`
	CitationEnd   int       `json:"citation_end"`
	WikidataID    *string   `json:"wikidata_id,omitempty"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	GeoShape  *string  `json:"geo_shape,omitempty"`

	Time          string           `json:"time,omitempty"`
	CalendarModel string           `json:"calendar_model,omitempty"`
	Precision     chrono.Precision `json:"precision,omitempty"`

	// After lists summaries this mention must follow in the tag's story.
	After []uuid.UUID `json:"after,omitempty"`
}

func (payload TagPayload) validate(tagType atlas.TagType) error {
	v := &validate.Validator{}
	v.Custom("id", payload.ID == uuid.Nil, "This field is required")
	v.Custom("summary_id", payload.SummaryID == uuid.Nil, "This field is required")
	v.Required("name", payload.Name)
	v.Custom("citation_start", payload.CitationStart < 0, "Must not be negative")
	v.Custom("citation_end", payload.CitationEnd < payload.CitationStart, "Must not precede citation_start")

	switch tagType {
	case atlas.TagPlace:
		v.Custom("latitude", payload.Latitude == nil, "This field is required")
		v.Custom("longitude", payload.Longitude == nil, "This field is required")
		if payload.Latitude != nil && payload.Longitude != nil {
			v.Latitude("latitude", *payload.Latitude)
			v.Longitude("longitude", *payload.Longitude)
		}
	case atlas.TagTime:
		v.Required("time", payload.Time)
		v.Custom("precision", !payload.Precision.Valid(), "Must be a precision between 6 and 11")
		if payload.Time != "" && payload.Precision.Valid() {
			_, err := chrono.Parse(payload.Time, payload.Precision)
			v.Custom("time", err != nil, "Must be a Wikidata time value")
		}
	}
	return v.Err()
}

// tag builds the tag described by the payload.
func (payload TagPayload) tag(tagType atlas.TagType, name string) atlas.Tag {
	tag := atlas.Tag{ID: payload.ID, Type: tagType, WikidataID: payload.WikidataID, Names: []string{name}}
	switch tagType {
	case atlas.TagPlace:
		tag.Place = &atlas.PlaceAttrs{Latitude: pointer.Val(payload.Latitude), Longitude: pointer.Val(payload.Longitude), GeoShape: payload.GeoShape}
	case atlas.TagTime:
		tag.Time = &atlas.TimeAttrs{DateTime: payload.Time, CalendarModel: payload.CalendarModel, Precision: payload.Precision}
	}
	return tag
}

// SummaryPayload announces a summary and the citation it was written from.
type SummaryPayload struct {
	ID         uuid.UUID `json:"id"`
	CitationID uuid.UUID `json:"citation_id"`
	Text       string    `json:"text"`
}

// CitationPayload carries the quoted text of a citation.
type CitationPayload struct {
	ID         uuid.UUID  `json:"id"`
	SummaryID  *uuid.UUID `json:"summary_id,omitempty"`
	Text       string     `json:"text"`
	AccessDate *string    `json:"access_date,omitempty"`
	PageNum    *int       `json:"page_num,omitempty"`
}

// MetaPayload is the bibliographic source of a citation.
type MetaPayload struct {
	ID         uuid.UUID `json:"id"`
	CitationID uuid.UUID `json:"citation_id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	Publisher  string    `json:"publisher"`
	PubDate    string    `json:"pub_date"`
}
