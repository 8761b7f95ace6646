package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/utafrali/itemsearch/internal/domain"
	"github.com/utafrali/itemsearch/internal/engine"
	"github.com/utafrali/itemsearch/internal/query"
)

// ItemRepository stores items and runs the canned item queries.
type ItemRepository interface {
	// Save writes one item. An empty ID is filled in by the engine.
	Save(ctx context.Context, item *domain.Item) error

	// SaveAll writes items in one bulk call. Missing IDs are filled in place
	// by the engine.
	SaveAll(ctx context.Context, items []domain.Item) error

	// SearchByNameAndBrand returns items whose name and brand both equal the
	// given values exactly.
	SearchByNameAndBrand(ctx context.Context, name, brand string) ([]domain.Hit, error)

	// CustomAutocompleteSearch returns items whose name has a word starting
	// with prefix, in engine order.
	CustomAutocompleteSearch(ctx context.Context, prefix string) ([]domain.Hit, error)
}

// EngineRepository implements ItemRepository on a SearchEngine, scoped to
// one index.
type EngineRepository struct {
	engine    engine.SearchEngine
	indexName string
}

var _ ItemRepository = (*EngineRepository)(nil)

// New creates a repository over eng whose queries target indexName.
func New(eng engine.SearchEngine, indexName string) *EngineRepository {
	return &EngineRepository{engine: eng, indexName: indexName}
}

func (r *EngineRepository) Save(ctx context.Context, item *domain.Item) error {
	if err := r.engine.Index(ctx, item); err != nil {
		return fmt.Errorf("save item %q: %w", item.Name, err)
	}
	return nil
}

func (r *EngineRepository) SaveAll(ctx context.Context, items []domain.Item) error {
	if err := r.engine.BulkIndex(ctx, items); err != nil {
		return fmt.Errorf("save %d items: %w", len(items), err)
	}
	return nil
}

func (r *EngineRepository) SearchByNameAndBrand(ctx context.Context, name, brand string) ([]domain.Hit, error) {
	q := query.Query{
		Kind: query.KindBool,
		Must: []query.Query{
			query.TermExact("name.keyword", name),
			query.TermExact("brand", brand),
		},
	}
	return r.search(ctx, q, "search by name and brand")
}

func (r *EngineRepository) CustomAutocompleteSearch(ctx context.Context, prefix string) ([]domain.Hit, error) {
	q := query.Prefix(query.SuggestField, strings.ToLower(prefix))
	return r.search(ctx, q, "autocomplete")
}

func (r *EngineRepository) search(ctx context.Context, q query.Query, op string) ([]domain.Hit, error) {
	hits, err := r.engine.Search(ctx, &engine.Request{
		Indices: []string{r.indexName},
		Query:   q,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return hits, nil
}
