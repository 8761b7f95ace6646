// Package query builds the search expressions the gateway submits to an
// engine. Every constructor is pure: the same inputs always yield an equal
// Query, and a Query carries no state beyond its own fields.
package query

import (
	"encoding/json"
)

// Kind identifies the shape of a query expression.
type Kind string

const (
	KindMatchAll Kind = "match_all"
	KindMatch    Kind = "match"
	KindTerm     Kind = "term"
	KindPrefix   Kind = "prefix"
	KindBool     Kind = "bool"
)

// Suggestion queries always target this field unless told otherwise and are
// analyzed with the edge-ngram analyzer installed when the index is created.
const (
	SuggestField    = "name"
	SuggestAnalyzer = "custom_index"
)

// Query is an engine-neutral search expression. Leaf kinds use Field, Value
// and Analyzer; KindBool uses Filter (non-scoring) and Must (scoring).
type Query struct {
	Kind     Kind    `json:"kind"`
	Field    string  `json:"field,omitempty"`
	Value    string  `json:"value,omitempty"`
	Analyzer string  `json:"analyzer,omitempty"`
	Filter   []Query `json:"filter,omitempty"`
	Must     []Query `json:"must,omitempty"`
}

// MatchAll matches every document in scope.
func MatchAll() Query {
	return Query{Kind: KindMatchAll}
}

// FieldMatch is an analyzed full-text match of value against field.
func FieldMatch(field, value string) Query {
	return Query{Kind: KindMatch, Field: field, Value: value}
}

// TermExact requires field to equal value without analysis.
func TermExact(field, value string) Query {
	return Query{Kind: KindTerm, Field: field, Value: value}
}

// Prefix matches documents whose field starts with value.
func Prefix(field, value string) Query {
	return Query{Kind: KindPrefix, Field: field, Value: value}
}

// BoolCombined filters on TermExact(field1, value1) and scores on
// FieldMatch(field2, value2).
func BoolCombined(field1, value1, field2, value2 string) Query {
	return Query{
		Kind:   KindBool,
		Filter: []Query{TermExact(field1, value1)},
		Must:   []Query{FieldMatch(field2, value2)},
	}
}

// SuggestMatch is an analyzed match using SuggestAnalyzer. An empty field
// defaults to SuggestField.
func SuggestMatch(field, value string) Query {
	if field == "" {
		field = SuggestField
	}
	return Query{Kind: KindMatch, Field: field, Value: value, Analyzer: SuggestAnalyzer}
}

// Source renders q as an Elasticsearch query DSL object, the value of the
// top-level "query" key of a search body.
func (q Query) Source() map[string]any {
	switch q.Kind {
	case KindMatch:
		body := map[string]any{"query": q.Value}
		if q.Analyzer != "" {
			body["analyzer"] = q.Analyzer
		}
		return map[string]any{"match": map[string]any{q.Field: body}}
	case KindTerm:
		return map[string]any{"term": map[string]any{q.Field: map[string]any{"value": q.Value}}}
	case KindPrefix:
		return map[string]any{"prefix": map[string]any{q.Field: map[string]any{"value": q.Value}}}
	case KindBool:
		b := map[string]any{}
		if len(q.Filter) > 0 {
			b["filter"] = sources(q.Filter)
		}
		if len(q.Must) > 0 {
			b["must"] = sources(q.Must)
		}
		return map[string]any{"bool": b}
	default:
		return map[string]any{"match_all": map[string]any{}}
	}
}

func sources(qs []Query) []any {
	out := make([]any, len(qs))
	for i, q := range qs {
		out[i] = q.Source()
	}
	return out
}

// String returns the DSL rendering as compact JSON, for logs.
func (q Query) String() string {
	b, err := json.Marshal(q.Source())
	if err != nil {
		return string(q.Kind)
	}
	return string(b)
}
