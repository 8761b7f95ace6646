package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldMatch_Deterministic(t *testing.T) {
	inputs := [][2]string{
		{"name", "Widget"},
		{"brand", "Acme Corp"},
		{"description", ""},
		{"", "value"},
		{"name", "ünïcödé"},
	}
	for _, in := range inputs {
		assert.Equal(t, FieldMatch(in[0], in[1]), FieldMatch(in[0], in[1]))
		assert.Equal(t, FieldMatch(in[0], in[1]).String(), FieldMatch(in[0], in[1]).String())
	}
}

func TestTermExact_DiffersFromFieldMatch(t *testing.T) {
	term := TermExact("brand", "Acme")
	match := FieldMatch("brand", "Acme")

	assert.Equal(t, KindTerm, term.Kind)
	assert.Equal(t, KindMatch, match.Kind)
	assert.NotEqual(t, term, match)
	assert.Contains(t, term.Source(), "term")
	assert.Contains(t, match.Source(), "match")
}

func TestBoolCombined_Structure(t *testing.T) {
	q := BoolCombined("brand", "Acme", "name", "Widget")

	assert.Equal(t, KindBool, q.Kind)
	require.Len(t, q.Filter, 1)
	require.Len(t, q.Must, 1)
	assert.Equal(t, TermExact("brand", "Acme"), q.Filter[0])
	assert.Equal(t, FieldMatch("name", "Widget"), q.Must[0])
	assert.Equal(t, q, BoolCombined("brand", "Acme", "name", "Widget"))
}

func TestSuggestMatch(t *testing.T) {
	q := SuggestMatch("", "Wid")
	assert.Equal(t, Query{Kind: KindMatch, Field: "name", Value: "Wid", Analyzer: "custom_index"}, q)

	q = SuggestMatch("brand", "Ac")
	assert.Equal(t, "brand", q.Field)
	assert.Equal(t, SuggestAnalyzer, q.Analyzer)
}

func TestMatchAll(t *testing.T) {
	assert.Equal(t, MatchAll(), MatchAll())
	assert.Equal(t, map[string]any{"match_all": map[string]any{}}, MatchAll().Source())
}

func TestSource_DSL(t *testing.T) {
	tests := []struct {
		name string
		q    Query
		want string
	}{
		{
			name: "match all",
			q:    MatchAll(),
			want: `{"match_all":{}}`,
		},
		{
			name: "field match",
			q:    FieldMatch("name", "Widget"),
			want: `{"match":{"name":{"query":"Widget"}}}`,
		},
		{
			name: "term",
			q:    TermExact("brand", "Acme"),
			want: `{"term":{"brand":{"value":"Acme"}}}`,
		},
		{
			name: "prefix",
			q:    Prefix("name", "wid"),
			want: `{"prefix":{"name":{"value":"wid"}}}`,
		},
		{
			name: "suggest",
			q:    SuggestMatch("name", "Wid"),
			want: `{"match":{"name":{"analyzer":"custom_index","query":"Wid"}}}`,
		},
		{
			name: "bool",
			q:    BoolCombined("brand", "Acme", "name", "Widget"),
			want: `{"bool":{"filter":[{"term":{"brand":{"value":"Acme"}}}],"must":[{"match":{"name":{"query":"Widget"}}}]}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.q.Source())
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
			assert.JSONEq(t, tt.want, tt.q.String())
		})
	}
}
