// Package memory is an in-process SearchEngine backed by bleve. It installs
// the same analyzers as the Elasticsearch mapping so suggestion and exact
// queries behave alike without a cluster.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/token/edgengram"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	bq "github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"

	"github.com/utafrali/itemsearch/internal/domain"
	"github.com/utafrali/itemsearch/internal/engine"
	"github.com/utafrali/itemsearch/internal/query"
)

const edgeNgramFilter = "edge_ngram_1_20"

var errClosed = errors.New("memory engine closed")

type index struct {
	bleve bleve.Index
	items map[string]domain.Item
}

// Engine holds any number of named in-memory indexes. Writes go to the
// default index; searches may target several.
type Engine struct {
	mu           sync.RWMutex
	indexes      map[string]*index
	defaultIndex string
	closed       bool
	logger       *slog.Logger
}

var _ engine.SearchEngine = (*Engine)(nil)

// New creates an engine with one empty index named defaultIndex.
func New(defaultIndex string, logger *slog.Logger) (*Engine, error) {
	e := &Engine{
		indexes:      make(map[string]*index),
		defaultIndex: defaultIndex,
		logger:       logger,
	}
	if err := e.CreateIndex(defaultIndex); err != nil {
		return nil, err
	}
	return e, nil
}

// CreateIndex adds an empty index. Creating an existing index is a no-op.
func (e *Engine) CreateIndex(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.indexes[name]; ok {
		return nil
	}

	m, err := itemIndexMapping()
	if err != nil {
		return fmt.Errorf("memory: build mapping: %w", err)
	}
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return fmt.Errorf("memory: create index %s: %w", name, err)
	}
	idx.SetName(name)

	e.indexes[name] = &index{bleve: idx, items: make(map[string]domain.Item)}
	e.logger.Info("memory index created", "index", name)
	return nil
}

// Index writes one item into the default index, assigning an ID when it
// has none.
func (e *Engine) Index(_ context.Context, item *domain.Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx, err := e.defaultLocked()
	if err != nil {
		return err
	}

	doc, err := document(item)
	if err != nil {
		return fmt.Errorf("memory index: %w", err)
	}
	if err := idx.bleve.Index(item.ID, doc); err != nil {
		return fmt.Errorf("memory index: %w", err)
	}
	idx.items[item.ID] = *item
	return nil
}

// BulkIndex writes items into the default index in one batch. Missing IDs
// are assigned and written back into items.
func (e *Engine) BulkIndex(_ context.Context, items []domain.Item) error {
	if len(items) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx, err := e.defaultLocked()
	if err != nil {
		return err
	}

	batch := idx.bleve.NewBatch()
	stored := make([]domain.Item, len(items))
	for i := range items {
		item := items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		doc, err := document(&item)
		if err != nil {
			return fmt.Errorf("memory bulk index: %w", err)
		}
		if err := batch.Index(item.ID, doc); err != nil {
			return fmt.Errorf("memory bulk index: %w", err)
		}
		stored[i] = item
	}
	if err := idx.bleve.Batch(batch); err != nil {
		return fmt.Errorf("memory bulk index: %w", err)
	}
	for i, item := range stored {
		idx.items[item.ID] = item
		items[i].ID = item.ID
	}
	return nil
}

// Search runs req against the named indexes, or all of them when
// req.Indices is empty. Hits are ordered by descending score.
func (e *Engine) Search(ctx context.Context, req *engine.Request) ([]domain.Hit, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, fmt.Errorf("memory search: %w: %w", engine.ErrUnavailable, errClosed)
	}

	targets, err := e.targetsLocked(req.Indices)
	if err != nil {
		return nil, err
	}

	bleveIndexes := make([]bleve.Index, len(targets))
	for i, name := range targets {
		bleveIndexes[i] = e.indexes[name].bleve
	}
	alias := bleve.NewIndexAlias(bleveIndexes...)

	sr := bleve.NewSearchRequestOptions(translate(req.Query), req.PageSize(), 0, false)
	res, err := alias.SearchInContext(ctx, sr)
	if err != nil {
		return nil, fmt.Errorf("memory search: %w", err)
	}

	hits := make([]domain.Hit, 0, len(res.Hits))
	for _, dm := range res.Hits {
		hit := domain.Hit{Index: dm.Index, ID: dm.ID, Score: dm.Score}
		for _, name := range targets {
			if dm.Index != "" && dm.Index != name {
				continue
			}
			if item, ok := e.indexes[name].items[dm.ID]; ok {
				hit.Index = name
				hit.Source = &item
				break
			}
		}
		hits = append(hits, hit)
	}

	e.logger.DebugContext(ctx, "memory search done", "indices", targets, "query", req.Query.String(), "hits", len(hits))
	return hits, nil
}

// Ping fails only after Close.
func (e *Engine) Ping(_ context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("memory ping: %w: %w", engine.ErrUnavailable, errClosed)
	}
	return nil
}

// Close releases every index.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	for _, idx := range e.indexes {
		errs = append(errs, idx.bleve.Close())
	}
	return errors.Join(errs...)
}

func (e *Engine) defaultLocked() (*index, error) {
	if e.closed {
		return nil, fmt.Errorf("%w: %w", engine.ErrUnavailable, errClosed)
	}
	return e.indexes[e.defaultIndex], nil
}

func (e *Engine) targetsLocked(requested []string) ([]string, error) {
	if len(requested) == 0 {
		names := make([]string, 0, len(e.indexes))
		for name := range e.indexes {
			names = append(names, name)
		}
		sort.Strings(names)
		return names, nil
	}
	for _, name := range requested {
		if _, ok := e.indexes[name]; !ok {
			return nil, fmt.Errorf("memory search: %w: %s", engine.ErrIndexNotFound, name)
		}
	}
	return requested, nil
}

// document flattens an item into the generic form bleve indexes, keyed by
// the item's JSON field names.
func document(item *domain.Item) (map[string]any, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// searchAnalyzers overrides the index-time analyzer of a field for match
// queries that do not name one, like search_analyzer in the Elasticsearch
// mapping.
var searchAnalyzers = map[string]string{
	"name": standard.Name,
}

// translate converts a query expression into its bleve equivalent.
func translate(q query.Query) bq.Query {
	switch q.Kind {
	case query.KindMatch:
		mq := bleve.NewMatchQuery(q.Value)
		mq.SetField(q.Field)
		mq.Analyzer = q.Analyzer
		if mq.Analyzer == "" {
			mq.Analyzer = searchAnalyzers[q.Field]
		}
		return mq
	case query.KindTerm:
		tq := bleve.NewTermQuery(q.Value)
		tq.SetField(q.Field)
		return tq
	case query.KindPrefix:
		pq := bleve.NewPrefixQuery(q.Value)
		pq.SetField(q.Field)
		return pq
	case query.KindBool:
		b := bleve.NewBooleanQuery()
		for _, f := range q.Filter {
			b.AddMust(translate(f))
		}
		for _, m := range q.Must {
			b.AddMust(translate(m))
		}
		return b
	default:
		return bleve.NewMatchAllQuery()
	}
}

func itemIndexMapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()

	err := im.AddCustomTokenFilter(edgeNgramFilter, map[string]any{
		"type": edgengram.Name,
		"min":  1.0,
		"max":  20.0,
	})
	if err != nil {
		return nil, err
	}

	err = im.AddCustomAnalyzer(query.SuggestAnalyzer, map[string]any{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name, edgeNgramFilter},
	})
	if err != nil {
		return nil, err
	}

	nameField := bleve.NewTextFieldMapping()
	nameField.Analyzer = query.SuggestAnalyzer

	nameKeyword := bleve.NewTextFieldMapping()
	nameKeyword.Name = "name.keyword"
	nameKeyword.Analyzer = keyword.Name

	itemMapping := bleve.NewDocumentMapping()
	itemMapping.AddFieldMappingsAt("name", nameField, nameKeyword)
	itemMapping.AddFieldMappingsAt("brand", keywordField())
	itemMapping.AddFieldMappingsAt("category", keywordField())
	itemMapping.AddFieldMappingsAt("tags", keywordField())

	im.DefaultMapping = itemMapping
	im.DefaultAnalyzer = standard.Name
	return im, nil
}

func keywordField() *mapping.FieldMapping {
	fm := bleve.NewTextFieldMapping()
	fm.Analyzer = keyword.Name
	return fm
}
