package vectorstore

import (
	"strings"
	"time"

	"corpusqa/internal/model"
)

// Filter is a backend-independent filter expression. The same tree is
// reusable across backends; only field paths differ between the document
// and figure collections (see RemapFields).
type Filter interface {
	isFilter()
}

// Equal matches an exact field value.
type Equal struct {
	Field string
	Value interface{}
}

// Range matches a numeric field between optional bounds (inclusive).
type Range struct {
	Field string
	Min   *float64
	Max   *float64
}

// DateRange matches a date field between optional bounds (inclusive).
type DateRange struct {
	Field string
	From  *time.Time
	To    *time.Time
}

// MultiTermOr matches when the field equals any of the terms.
type MultiTermOr struct {
	Field string
	Terms []string
}

// Exists matches when the field is present and non-empty.
type Exists struct {
	Field string
}

// TextLike matches when the field contains the pattern (case-insensitive).
type TextLike struct {
	Field   string
	Pattern string
}

// And matches when all sub-filters match.
type And struct {
	Filters []Filter
}

// Or matches when any sub-filter matches.
type Or struct {
	Filters []Filter
}

func (Equal) isFilter()       {}
func (Range) isFilter()       {}
func (DateRange) isFilter()   {}
func (MultiTermOr) isFilter() {}
func (Exists) isFilter()      {}
func (TextLike) isFilter()    {}
func (And) isFilter()         {}
func (Or) isFilter()          {}

// RemapFields rewrites field paths through the mapping, returning a new
// tree. Fields absent from the mapping pass through unchanged. This is how
// a document-collection filter is reused against the figure collection
// (content -> caption, etc).
func RemapFields(f Filter, mapping map[string]string) Filter {
	if f == nil {
		return nil
	}
	remap := func(field string) string {
		if to, ok := mapping[field]; ok {
			return to
		}
		return field
	}
	switch v := f.(type) {
	case Equal:
		return Equal{Field: remap(v.Field), Value: v.Value}
	case Range:
		return Range{Field: remap(v.Field), Min: v.Min, Max: v.Max}
	case DateRange:
		return DateRange{Field: remap(v.Field), From: v.From, To: v.To}
	case MultiTermOr:
		return MultiTermOr{Field: remap(v.Field), Terms: v.Terms}
	case Exists:
		return Exists{Field: remap(v.Field)}
	case TextLike:
		return TextLike{Field: remap(v.Field), Pattern: v.Pattern}
	case And:
		sub := make([]Filter, len(v.Filters))
		for i, s := range v.Filters {
			sub[i] = RemapFields(s, mapping)
		}
		return And{Filters: sub}
	case Or:
		sub := make([]Filter, len(v.Filters))
		for i, s := range v.Filters {
			sub[i] = RemapFields(s, mapping)
		}
		return Or{Filters: sub}
	}
	return f
}

// Matches evaluates the filter against a payload in-process. The memory
// and redis engines use this directly; sqlite and qdrant compile the same
// tree to their native formats with identical semantics.
func Matches(f Filter, payload model.Payload) bool {
	if f == nil {
		return true
	}
	switch v := f.(type) {
	case Equal:
		return matchEqual(v, payload)
	case Range:
		n, ok := payload.Float(v.Field)
		if !ok {
			return false
		}
		if v.Min != nil && n < *v.Min {
			return false
		}
		if v.Max != nil && n > *v.Max {
			return false
		}
		return true
	case DateRange:
		t, ok := payload.Time(v.Field)
		if !ok {
			return false
		}
		if v.From != nil && t.Before(*v.From) {
			return false
		}
		if v.To != nil && t.After(*v.To) {
			return false
		}
		return true
	case MultiTermOr:
		got := payload.Str(v.Field)
		for _, term := range v.Terms {
			if got == term {
				return true
			}
		}
		return false
	case Exists:
		return payload.Has(v.Field)
	case TextLike:
		got := strings.ToLower(payload.Str(v.Field))
		return strings.Contains(got, strings.ToLower(v.Pattern))
	case And:
		for _, s := range v.Filters {
			if !Matches(s, payload) {
				return false
			}
		}
		return true
	case Or:
		if len(v.Filters) == 0 {
			return true
		}
		for _, s := range v.Filters {
			if Matches(s, payload) {
				return true
			}
		}
		return false
	}
	return false
}

func matchEqual(v Equal, payload model.Payload) bool {
	if want, ok := v.Value.(string); ok {
		return payload.Str(v.Field) == want
	}
	if want, ok := toFloat(v.Value); ok {
		got, has := payload.Float(v.Field)
		return has && got == want
	}
	if want, ok := v.Value.(bool); ok {
		got, has := payload[v.Field].(bool)
		return has && got == want
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
