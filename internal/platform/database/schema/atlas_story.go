package schema

// AtlasStoryTable represents the 'stories' table
type AtlasStoryTable struct {
	Table string
	ID    string
}

// AtlasStory is the schema definition for stories
var AtlasStory = AtlasStoryTable{
	Table: "stories",
	ID:    "id",
}

// AtlasStoryNameTable represents the 'story_names' table
type AtlasStoryNameTable struct {
	Table   string
	StoryID string
	Lang    string
	Name    string
}

// AtlasStoryName is the schema definition for story_names
var AtlasStoryName = AtlasStoryNameTable{
	Table:   "story_names",
	StoryID: "story_id",
	Lang:    "lang",
	Name:    "name",
}
