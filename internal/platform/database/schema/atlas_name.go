package schema

// AtlasNameTable represents the 'names' table
type AtlasNameTable struct {
	Table string
	ID    string
	Name  string
}

// AtlasName is the schema definition for names
var AtlasName = AtlasNameTable{
	Table: "names",
	ID:    "id",
	Name:  "name",
}

// AtlasTagNameTable represents the 'tag_names' join table
type AtlasTagNameTable struct {
	Table   string
	TagID   string
	NameID  string
	AddedAt string
}

// AtlasTagName is the schema definition for tag_names
var AtlasTagName = AtlasTagNameTable{
	Table:   "tag_names",
	TagID:   "tag_id",
	NameID:  "name_id",
	AddedAt: "added_at",
}
