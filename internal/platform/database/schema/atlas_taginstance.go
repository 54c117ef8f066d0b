package schema

// AtlasTagInstanceTable represents the 'tag_instances' table
type AtlasTagInstanceTable struct {
	Table      string
	ID         string
	SummaryID  string
	TagID      string
	StartChar  string
	StopChar   string
	StoryOrder string
	After      string

	// OrderConstraint is the deferrable unique constraint over (tag_id, story_order).
	OrderConstraint string
	// BulkIndex is the temporary partial index used by the bulk reorder tool.
	BulkIndex string
}

// AtlasTagInstance is the schema definition for tag_instances
var AtlasTagInstance = AtlasTagInstanceTable{
	Table:           "tag_instances",
	ID:              "id",
	SummaryID:       "summary_id",
	TagID:           "tag_id",
	StartChar:       "start_char",
	StopChar:        "stop_char",
	StoryOrder:      "story_order",
	After:           "after",
	OrderConstraint: "tag_instances_tag_story_order_key",
	BulkIndex:       "tag_instances_null_order_tmp_idx",
}

func (t AtlasTagInstanceTable) Columns() []string {
	return []string{t.ID, t.SummaryID, t.TagID, t.StartChar, t.StopChar, t.StoryOrder, t.After}
}
