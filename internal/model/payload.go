package model

import (
	"strconv"
	"time"
)

// Payload is the metadata stored alongside a vector. Keys mirror the
// ingestion schema: content, doc_type, title, author, year, chapter,
// source, date for document chunks; caption, figure_id, figure_type,
// page_number, file_path for figure chunks.
type Payload map[string]interface{}

func (p Payload) Str(key string) string {
	if p == nil {
		return ""
	}
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// Int reads an integer field tolerating the numeric types JSON decoding
// produces (float64) as well as string-encoded numbers.
func (p Payload) Int(key string) int {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func (p Payload) Float(key string) (float64, bool) {
	if p == nil {
		return 0, false
	}
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Time parses an RFC3339 or date-only field.
func (p Payload) Time(key string) (time.Time, bool) {
	raw := p.Str(key)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func (p Payload) Has(key string) bool {
	if p == nil {
		return false
	}
	v, ok := p[key]
	if !ok {
		return false
	}
	if s, isStr := v.(string); isStr {
		return s != ""
	}
	return v != nil
}
