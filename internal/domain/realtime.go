package domain

import "fmt"

// ChangeSubscription selects row changes of one table.
type ChangeSubscription struct {
	Schema string
	Table  string
	Event  string // INSERT, UPDATE, DELETE or *
	Filter string // PostgREST-style filter, e.g. user_id=eq.<id>
}

// Topic is the channel name used when joining the change feed.
func (s ChangeSubscription) Topic() string {
	return fmt.Sprintf("realtime:%s:%s:%s", s.Schema, s.Table, s.Filter)
}

// ChangeEvent is one row change pushed by the server.
type ChangeEvent struct {
	Type      string         `json:"type"`
	Schema    string         `json:"schema"`
	Table     string         `json:"table"`
	Record    map[string]any `json:"record"`
	OldRecord map[string]any `json:"old_record"`
}

// RecordString returns a string column from the new record, or "".
func (e ChangeEvent) RecordString(column string) string {
	v, _ := e.Record[column].(string)
	return v
}
