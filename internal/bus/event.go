// Package bus fans Postgres row changes out to in-process subscribers.
package bus

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ChangeEvent is one row change as published by the notify_change() trigger.
// Old is empty on insert, New is empty on delete.
type ChangeEvent struct {
	Table string          `json:"table"`
	Op    string          `json:"op"`
	Old   json.RawMessage `json:"old,omitempty"`
	New   json.RawMessage `json:"new,omitempty"`
}

// Field returns a column of the after image, falling back to the before
// image. Non-string scalars are returned in their JSON form.
func (e ChangeEvent) Field(column string) (string, bool) {
	if v, ok := field(e.New, column); ok {
		return v, true
	}
	return field(e.Old, column)
}

// OldField and NewField read one side of the change only.
func (e ChangeEvent) OldField(column string) (string, bool) { return field(e.Old, column) }
func (e ChangeEvent) NewField(column string) (string, bool) { return field(e.New, column) }

func field(row json.RawMessage, column string) (string, bool) {
	if len(row) == 0 || bytes.Equal(row, []byte("null")) {
		return "", false
	}
	var cols map[string]json.RawMessage
	if err := json.Unmarshal(row, &cols); err != nil {
		return "", false
	}
	raw, ok := cols[column]
	if !ok || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}

// Filter narrows a subscription to rows whose column equals value.
type Filter struct {
	Column string
	Value  string
}

// Scope selects the events of one table, optionally filtered.
type Scope struct {
	Table  string
	Filter *Filter
}

// TableScope is a Scope over every row of table.
func TableScope(table string) Scope {
	return Scope{Table: table}
}

// RowScope is a Scope over rows of table where column = value.
func RowScope(table, column, value string) Scope {
	return Scope{Table: table, Filter: &Filter{Column: column, Value: value}}
}

// RowScopeInt is RowScope for integer columns.
func RowScopeInt(table, column string, value int) Scope {
	return RowScope(table, column, strconv.Itoa(value))
}

func (s Scope) matches(ev ChangeEvent) bool {
	if s.Table != ev.Table {
		return false
	}
	if s.Filter == nil {
		return true
	}
	if v, ok := ev.NewField(s.Filter.Column); ok && v == s.Filter.Value {
		return true
	}
	v, ok := ev.OldField(s.Filter.Column)
	return ok && v == s.Filter.Value
}
