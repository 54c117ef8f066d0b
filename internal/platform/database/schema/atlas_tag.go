package schema

// AtlasTagTable represents the 'tags' table
type AtlasTagTable struct {
	Table      string
	ID         string
	Type       string
	WikidataID string
}

// AtlasTag is the schema definition for tags
var AtlasTag = AtlasTagTable{
	Table:      "tags",
	ID:         "id",
	Type:       "type",
	WikidataID: "wikidata_id",
}

func (t AtlasTagTable) Columns() []string {
	return []string{t.ID, t.Type, t.WikidataID}
}

// AtlasPersonTable represents the 'people' table
type AtlasPersonTable struct {
	Table string
	ID    string
}

// AtlasPerson is the schema definition for people
var AtlasPerson = AtlasPersonTable{
	Table: "people",
	ID:    "id",
}

// AtlasPlaceTable represents the 'places' table
type AtlasPlaceTable struct {
	Table     string
	ID        string
	Latitude  string
	Longitude string
	GeoShape  string
}

// AtlasPlace is the schema definition for places
var AtlasPlace = AtlasPlaceTable{
	Table:     "places",
	ID:        "id",
	Latitude:  "latitude",
	Longitude: "longitude",
	GeoShape:  "geoshape",
}

func (t AtlasPlaceTable) Columns() []string {
	return []string{t.ID, t.Latitude, t.Longitude, t.GeoShape}
}

// AtlasTimeTable represents the 'times' table
type AtlasTimeTable struct {
	Table         string
	ID            string
	DateTime      string
	CalendarModel string
	Precision     string
	Year          string
	Month         string
	Day           string
}

// AtlasTime is the schema definition for times
var AtlasTime = AtlasTimeTable{
	Table:         "times",
	ID:            "id",
	DateTime:      "datetime",
	CalendarModel: "calendar_model",
	Precision:     "precision",
	Year:          "year",
	Month:         "month",
	Day:           "day",
}

func (t AtlasTimeTable) Columns() []string {
	return []string{t.ID, t.DateTime, t.CalendarModel, t.Precision, t.Year, t.Month, t.Day}
}
