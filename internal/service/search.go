package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/utafrali/itemsearch/internal/domain"
	"github.com/utafrali/itemsearch/internal/engine"
	"github.com/utafrali/itemsearch/internal/query"
	"github.com/utafrali/itemsearch/internal/repository"
	apperrors "github.com/utafrali/itemsearch/pkg/errors"
	"github.com/utafrali/itemsearch/pkg/logger"
)

// MaxResults caps the match-all operations.
const MaxResults = 1000

// SearchService runs item searches against the engine and the repository's
// canned queries.
type SearchService struct {
	engine    engine.SearchEngine
	repo      repository.ItemRepository
	indexName string
	policy    domain.ErrorPolicy
	logger    *slog.Logger
}

// NewSearchService creates a search service whose single-index operations
// target indexName.
func NewSearchService(
	eng engine.SearchEngine,
	repo repository.ItemRepository,
	indexName string,
	policy domain.ErrorPolicy,
	logger *slog.Logger,
) *SearchService {
	return &SearchService{
		engine:    eng,
		repo:      repo,
		indexName: indexName,
		policy:    policy,
		logger:    logger,
	}
}

// IndexAllDocuments returns up to MaxResults items across every index.
func (s *SearchService) IndexAllDocuments(ctx context.Context) ([]domain.Item, error) {
	hits, err := s.engine.Search(ctx, &engine.Request{Query: query.MatchAll(), Size: MaxResults})
	if err != nil {
		return nil, s.engineError(err, "all indexes")
	}
	return s.extractItems(ctx, hits), nil
}

// IndexDocuments returns up to MaxResults items from one index.
func (s *SearchService) IndexDocuments(ctx context.Context, indexName string) ([]domain.Item, error) {
	if indexName == "" && s.policy == domain.PolicyStrict {
		return nil, apperrors.InvalidInput("index name is required")
	}

	hits, err := s.engine.Search(ctx, &engine.Request{
		Indices: []string{indexName},
		Query:   query.MatchAll(),
		Size:    MaxResults,
	})
	if err != nil {
		return nil, s.engineError(err, indexName)
	}
	return s.extractItems(ctx, hits), nil
}

// SearchByFieldValue runs an analyzed match on the first field/value pair of
// req against the default index.
func (s *SearchService) SearchByFieldValue(ctx context.Context, req *domain.SearchRequest) ([]domain.Item, error) {
	pairs, err := s.pairs(req, domain.MinFieldSearchPairs)
	if err != nil {
		return nil, err
	}

	return s.search(ctx, query.FieldMatch(pairs[0].Field, pairs[0].Value))
}

// SearchByNameAndBrandExact returns items whose name and brand both equal
// the given values.
func (s *SearchService) SearchByNameAndBrandExact(ctx context.Context, name, brand string) ([]domain.Item, error) {
	hits, err := s.repo.SearchByNameAndBrand(ctx, name, brand)
	if err != nil {
		return nil, s.engineError(err, s.indexName)
	}
	return s.extractItems(ctx, hits), nil
}

// SearchBool filters on the first pair of req as an exact term and scores on
// the second as an analyzed match. Under the legacy policy a short request or
// an engine failure yields an empty result.
func (s *SearchService) SearchBool(ctx context.Context, req *domain.SearchRequest) ([]domain.Item, error) {
	if s.policy == domain.PolicyLegacy {
		pairs := req.Pairs()
		if len(pairs) < domain.MinBoolSearchPairs {
			s.logger.WarnContext(ctx, "bool search needs two field/value pairs, returning no results",
				slog.Int("pairs", len(pairs)))
			return []domain.Item{}, nil
		}
		items, err := s.search(ctx, query.BoolCombined(pairs[0].Field, pairs[0].Value, pairs[1].Field, pairs[1].Value))
		if err != nil {
			logger.WithContext(ctx, s.logger).WarnContext(ctx, "bool search failed, returning no results",
				slog.String("error", err.Error()))
			return []domain.Item{}, nil
		}
		return items, nil
	}

	pairs, err := s.pairs(req, domain.MinBoolSearchPairs)
	if err != nil {
		return nil, err
	}
	return s.search(ctx, query.BoolCombined(pairs[0].Field, pairs[0].Value, pairs[1].Field, pairs[1].Value))
}

// SuggestNames returns the distinct names matched by the suggestion
// analyzer, sorted.
func (s *SearchService) SuggestNames(ctx context.Context, name string) ([]string, error) {
	items, err := s.search(ctx, query.SuggestMatch(query.SuggestField, name))
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it.Name] = struct{}{}
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// SuggestNamesCanned returns the names matched by the repository's
// autocomplete query in engine order, duplicates included.
func (s *SearchService) SuggestNamesCanned(ctx context.Context, name string) ([]string, error) {
	hits, err := s.repo.CustomAutocompleteSearch(ctx, name)
	if err != nil {
		return nil, s.engineError(err, s.indexName)
	}

	items := s.extractItems(ctx, hits)
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}
	return names, nil
}

func (s *SearchService) search(ctx context.Context, q query.Query) ([]domain.Item, error) {
	hits, err := s.engine.Search(ctx, &engine.Request{
		Indices: []string{s.indexName},
		Query:   q,
	})
	if err != nil {
		return nil, s.engineError(err, s.indexName)
	}
	return s.extractItems(ctx, hits), nil
}

// pairs validates req under the strict policy. Under the legacy policy only a
// missing pair is rejected, as a server error.
func (s *SearchService) pairs(req *domain.SearchRequest, minPairs int) ([]domain.FieldValue, error) {
	if s.policy == domain.PolicyLegacy {
		pairs := req.Pairs()
		if len(pairs) < minPairs {
			return nil, apperrors.Internal(fmt.Errorf("search request has %d field/value pairs, need %d", len(pairs), minPairs))
		}
		return pairs, nil
	}

	if err := req.Validate(minPairs); err != nil {
		return nil, err
	}
	return req.Pairs(), nil
}

// engineError maps an engine failure to the error reported to callers.
func (s *SearchService) engineError(err error, index string) error {
	if s.policy == domain.PolicyLegacy {
		return apperrors.Internal(err)
	}
	if errors.Is(err, engine.ErrIndexNotFound) {
		return apperrors.NotFound("index", index)
	}
	if errors.Is(err, engine.ErrBadQuery) {
		return apperrors.InvalidInput("search engine rejected the query")
	}
	return apperrors.Unavailable("search engine", err)
}

// extractItems unwraps hit sources in engine order. Hits without a source are
// dropped and logged.
func (s *SearchService) extractItems(ctx context.Context, hits []domain.Hit) []domain.Item {
	items, skipped := domain.Items(hits)
	if len(skipped) > 0 {
		l := logger.WithContext(ctx, s.logger)
		for _, h := range skipped {
			l.WarnContext(ctx, "search hit has no source, skipping",
				slog.String("index", h.Index),
				slog.String("id", h.ID),
			)
		}
	}
	return items
}
