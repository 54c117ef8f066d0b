package schema

// AtlasSummaryTable represents the 'summaries' table
type AtlasSummaryTable struct {
	Table string
	ID    string
	Text  string
}

// AtlasSummary is the schema definition for summaries
var AtlasSummary = AtlasSummaryTable{
	Table: "summaries",
	ID:    "id",
	Text:  "text",
}

// AtlasCitationTable represents the 'citations' table
type AtlasCitationTable struct {
	Table      string
	ID         string
	SummaryID  string
	SourceID   string
	Text       string
	PageNum    string
	AccessDate string
}

// AtlasCitation is the schema definition for citations
var AtlasCitation = AtlasCitationTable{
	Table:      "citations",
	ID:         "id",
	SummaryID:  "summary_id",
	SourceID:   "source_id",
	Text:       "text",
	PageNum:    "page_num",
	AccessDate: "access_date",
}

func (t AtlasCitationTable) Columns() []string {
	return []string{t.ID, t.SummaryID, t.SourceID, t.Text, t.PageNum, t.AccessDate}
}

// AtlasSourceTable represents the 'sources' table
type AtlasSourceTable struct {
	Table     string
	ID        string
	Title     string
	Author    string
	Publisher string
	PubDate   string
}

// AtlasSource is the schema definition for sources
var AtlasSource = AtlasSourceTable{
	Table:     "sources",
	ID:        "id",
	Title:     "title",
	Author:    "author",
	Publisher: "publisher",
	PubDate:   "pub_date",
}

func (t AtlasSourceTable) Columns() []string {
	return []string{t.ID, t.Title, t.Author, t.Publisher, t.PubDate}
}
