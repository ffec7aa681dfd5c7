package vectorstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// filterJSON is the wire form of a filter expression: {"op": ..., ...}
// with nested expressions under "filters" for and/or.
type filterJSON struct {
	Op      string       `json:"op"`
	Field   string       `json:"field"`
	Value   interface{}  `json:"value"`
	Min     *float64     `json:"min"`
	Max     *float64     `json:"max"`
	From    string       `json:"from"`
	To      string       `json:"to"`
	Terms   []string     `json:"terms"`
	Pattern string       `json:"pattern"`
	Filters []filterJSON `json:"filters"`
}

// ParseFilter decodes a tagged filter expression. A nil result with nil
// error means no filter was given.
func ParseFilter(raw json.RawMessage) (Filter, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var fj filterJSON
	if err := json.Unmarshal(raw, &fj); err != nil {
		return nil, fmt.Errorf("decode filter failed: %w", err)
	}
	return buildFilter(fj)
}

func buildFilter(fj filterJSON) (Filter, error) {
	switch fj.Op {
	case "eq":
		if fj.Field == "" {
			return nil, fmt.Errorf("eq filter requires a field")
		}
		return Equal{Field: fj.Field, Value: fj.Value}, nil
	case "range":
		if fj.Field == "" {
			return nil, fmt.Errorf("range filter requires a field")
		}
		if fj.Min == nil && fj.Max == nil {
			return nil, fmt.Errorf("range filter requires min or max")
		}
		return Range{Field: fj.Field, Min: fj.Min, Max: fj.Max}, nil
	case "date_range":
		if fj.Field == "" {
			return nil, fmt.Errorf("date_range filter requires a field")
		}
		from, err := parseFilterTime(fj.From)
		if err != nil {
			return nil, err
		}
		to, err := parseFilterTime(fj.To)
		if err != nil {
			return nil, err
		}
		if from == nil && to == nil {
			return nil, fmt.Errorf("date_range filter requires from or to")
		}
		return DateRange{Field: fj.Field, From: from, To: to}, nil
	case "any":
		if fj.Field == "" || len(fj.Terms) == 0 {
			return nil, fmt.Errorf("any filter requires a field and terms")
		}
		return MultiTermOr{Field: fj.Field, Terms: fj.Terms}, nil
	case "exists":
		if fj.Field == "" {
			return nil, fmt.Errorf("exists filter requires a field")
		}
		return Exists{Field: fj.Field}, nil
	case "like":
		if fj.Field == "" || fj.Pattern == "" {
			return nil, fmt.Errorf("like filter requires a field and pattern")
		}
		return TextLike{Field: fj.Field, Pattern: fj.Pattern}, nil
	case "and", "or":
		if len(fj.Filters) == 0 {
			return nil, fmt.Errorf("%s filter requires sub-filters", fj.Op)
		}
		sub := make([]Filter, 0, len(fj.Filters))
		for _, child := range fj.Filters {
			built, err := buildFilter(child)
			if err != nil {
				return nil, err
			}
			sub = append(sub, built)
		}
		if fj.Op == "and" {
			return And{Filters: sub}, nil
		}
		return Or{Filters: sub}, nil
	default:
		return nil, fmt.Errorf("unknown filter op %q", fj.Op)
	}
}

func parseFilterTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid filter date %q", raw)
}
