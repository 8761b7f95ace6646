package elasticsearch

import "github.com/utafrali/itemsearch/internal/query"

// DefaultIndexName is the index items are written to and searched in when
// no other index is named.
const DefaultIndexName = "items_index"

// indexMapping returns the settings and mappings for an items index. The
// suggestion analyzer splits on word boundaries, lowercases and emits every
// leading edge n-gram so a prefix such as "wid" matches "Widget". Queries on
// name are analyzed with the standard analyzer unless they name another one.
func indexMapping() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
			"analysis": map[string]any{
				"filter": map[string]any{
					"edge_ngram_filter": map[string]any{
						"type":     "edge_ngram",
						"min_gram": 1,
						"max_gram": 20,
					},
				},
				"analyzer": map[string]any{
					query.SuggestAnalyzer: map[string]any{
						"type":      "custom",
						"tokenizer": "standard",
						"filter":    []string{"lowercase", "edge_ngram_filter"},
					},
				},
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"id": map[string]any{"type": "keyword"},
				"name": map[string]any{
					"type":            "text",
					"analyzer":        query.SuggestAnalyzer,
					"search_analyzer": "standard",
					"fields": map[string]any{
						"keyword": map[string]any{"type": "keyword", "ignore_above": 256},
					},
				},
				"brand":       map[string]any{"type": "keyword"},
				"category":    map[string]any{"type": "keyword"},
				"description": map[string]any{"type": "text"},
				"price":       map[string]any{"type": "double"},
				"tags":        map[string]any{"type": "keyword"},
			},
		},
	}
}
