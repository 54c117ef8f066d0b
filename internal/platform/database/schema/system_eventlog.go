package schema

// SystemEventLogTable represents the 'event_log' table
type SystemEventLogTable struct {
	Table       string
	Index       string
	Type        string
	ProcessedAt string
}

// SystemEventLog is the schema definition for event_log
var SystemEventLog = SystemEventLogTable{
	Table:       "event_log",
	Index:       "index",
	Type:        "type",
	ProcessedAt: "processed_at",
}
