package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/itemsearch/internal/domain"
	"github.com/utafrali/itemsearch/internal/engine"
	"github.com/utafrali/itemsearch/internal/engine/elasticsearch"
	"github.com/utafrali/itemsearch/internal/engine/memory"
	"github.com/utafrali/itemsearch/internal/repository"
	"github.com/utafrali/itemsearch/internal/seed"
	apperrors "github.com/utafrali/itemsearch/pkg/errors"
	"github.com/utafrali/itemsearch/pkg/validator"
)

const testIndex = "items_index"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	engine *memory.Engine
	search *SearchService
	ingest *IngestService
}

func newFixture(t *testing.T, policy domain.ErrorPolicy) *fixture {
	t.Helper()
	eng, err := memory.New(testIndex, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	repo := repository.New(eng, testIndex)
	return &fixture{
		engine: eng,
		search: NewSearchService(eng, repo, testIndex, policy, discardLogger()),
		ingest: NewIngestService(repo, seed.NewLoader(""), policy, discardLogger()),
	}
}

// brokenEngine fails every call with err, or returns hits when err is nil.
type brokenEngine struct {
	err  error
	hits []domain.Hit
}

func (b *brokenEngine) Index(context.Context, *domain.Item) error { return b.err }
func (b *brokenEngine) BulkIndex(context.Context, []domain.Item) error { return b.err }
func (b *brokenEngine) Ping(context.Context) error { return b.err }
func (b *brokenEngine) Search(context.Context, *engine.Request) ([]domain.Hit, error) {
	return b.hits, b.err
}

func newBrokenServices(policy domain.ErrorPolicy, eng *brokenEngine, log *slog.Logger) (*SearchService, *IngestService) {
	return newServices(policy, eng, log)
}

func newServices(policy domain.ErrorPolicy, eng engine.SearchEngine, log *slog.Logger) (*SearchService, *IngestService) {
	repo := repository.New(eng, testIndex)
	return NewSearchService(eng, repo, testIndex, policy, log),
		NewIngestService(repo, seed.NewLoader(""), policy, log)
}

func pairs(kv ...string) *domain.SearchRequest {
	req := &domain.SearchRequest{}
	for i := 0; i+1 < len(kv); i += 2 {
		req.FieldName = append(req.FieldName, kv[i])
		req.SearchValue = append(req.SearchValue, kv[i+1])
	}
	return req
}

func names(items []domain.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}

var policies = []domain.ErrorPolicy{domain.PolicyStrict, domain.PolicyLegacy}

func TestEndToEnd_NameAndBrandExact(t *testing.T) {
	for _, policy := range policies {
		t.Run(string(policy), func(t *testing.T) {
			f := newFixture(t, policy)
			ctx := context.Background()

			created, err := f.ingest.CreateItem(ctx, &domain.Item{Name: "Widget", Brand: "Acme"})
			require.NoError(t, err)

			items, err := f.search.SearchByNameAndBrandExact(ctx, "Widget", "Acme")
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, *created, items[0])

			items, err = f.search.SearchByNameAndBrandExact(ctx, "Widget", "OtherBrand")
			require.NoError(t, err)
			assert.NotNil(t, items)
			assert.Empty(t, items)
		})
	}
}

func TestEndToEnd_SeedThenMatchAll(t *testing.T) {
	f := newFixture(t, domain.PolicyStrict)
	ctx := context.Background()

	n, err := f.ingest.LoadSeedData(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	want, err := seed.NewLoader("").Load()
	require.NoError(t, err)

	items, err := f.search.IndexAllDocuments(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, want, items)

	items, err = f.search.IndexDocuments(ctx, testIndex)
	require.NoError(t, err)
	assert.ElementsMatch(t, want, items)
}

func TestEndToEnd_SuggestNames(t *testing.T) {
	f := newFixture(t, domain.PolicyStrict)
	ctx := context.Background()

	for _, n := range []string{"Widget", "Widget", "Gadget"} {
		_, err := f.ingest.CreateItem(ctx, &domain.Item{Name: n})
		require.NoError(t, err)
	}

	got, err := f.search.SuggestNames(ctx, "Wid")
	require.NoError(t, err)
	assert.Contains(t, got, "Widget")
	assert.NotContains(t, got, "Gadget")
	assert.Len(t, got, 1, "duplicates collapse")
}

func TestSuggestNamesCanned_KeepsDuplicates(t *testing.T) {
	f := newFixture(t, domain.PolicyStrict)
	ctx := context.Background()

	for _, n := range []string{"Widget", "Widget", "Gadget"} {
		_, err := f.ingest.CreateItem(ctx, &domain.Item{Name: n})
		require.NoError(t, err)
	}

	got, err := f.search.SuggestNamesCanned(ctx, "wid")
	require.NoError(t, err)
	assert.Equal(t, []string{"Widget", "Widget"}, got)
}

func TestSearchByFieldValue(t *testing.T) {
	f := newFixture(t, domain.PolicyStrict)
	ctx := context.Background()
	_, err := f.ingest.LoadSeedData(ctx)
	require.NoError(t, err)

	items, err := f.search.SearchByFieldValue(ctx, pairs("name", "gadget"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Gadget"}, names(items))

	items, err = f.search.SearchByFieldValue(ctx, pairs("category", "tools", "name", "ignored"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Widget", "Doohickey"}, names(items))
}

func TestSearchByFieldValue_NoPairs(t *testing.T) {
	t.Run("legacy fails as server error", func(t *testing.T) {
		f := newFixture(t, domain.PolicyLegacy)
		_, err := f.search.SearchByFieldValue(context.Background(), &domain.SearchRequest{})
		require.Error(t, err)
		assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatus(err))
	})

	t.Run("strict is a validation error", func(t *testing.T) {
		f := newFixture(t, domain.PolicyStrict)
		_, err := f.search.SearchByFieldValue(context.Background(), &domain.SearchRequest{})
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))
	})

	t.Run("strict rejects unbalanced request", func(t *testing.T) {
		f := newFixture(t, domain.PolicyStrict)
		req := &domain.SearchRequest{FieldName: []string{"name", "brand"}, SearchValue: []string{"Widget"}}
		_, err := f.search.SearchByFieldValue(context.Background(), req)
		var valErr *validator.ValidationError
		assert.ErrorAs(t, err, &valErr)
	})
}

func TestSearchBool(t *testing.T) {
	for _, policy := range policies {
		t.Run(string(policy), func(t *testing.T) {
			f := newFixture(t, policy)
			ctx := context.Background()
			_, err := f.ingest.LoadSeedData(ctx)
			require.NoError(t, err)

			items, err := f.search.SearchBool(ctx, pairs("category", "tools", "name", "widget"))
			require.NoError(t, err)
			assert.Equal(t, []string{"Widget"}, names(items))

			items, err = f.search.SearchBool(ctx, pairs("category", "electronics", "name", "widget"))
			require.NoError(t, err)
			assert.Empty(t, items)
		})
	}
}

func TestSearchBool_FewerThanTwoPairs(t *testing.T) {
	t.Run("legacy degrades to empty", func(t *testing.T) {
		f := newFixture(t, domain.PolicyLegacy)
		for _, req := range []*domain.SearchRequest{{}, pairs("name", "Widget")} {
			items, err := f.search.SearchBool(context.Background(), req)
			require.NoError(t, err)
			assert.NotNil(t, items)
			assert.Empty(t, items)
		}
	})

	t.Run("strict is invalid input", func(t *testing.T) {
		f := newFixture(t, domain.PolicyStrict)
		_, err := f.search.SearchBool(context.Background(), pairs("name", "Widget"))
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestEngineFailure(t *testing.T) {
	engineErr := errors.Join(engine.ErrUnavailable, errors.New("connection refused"))
	ctx := context.Background()

	calls := map[string]func(s *SearchService) error{
		"all indexes": func(s *SearchService) error { _, err := s.IndexAllDocuments(ctx); return err },
		"one index":   func(s *SearchService) error { _, err := s.IndexDocuments(ctx, testIndex); return err },
		"field":       func(s *SearchService) error { _, err := s.SearchByFieldValue(ctx, pairs("name", "x")); return err },
		"name brand":  func(s *SearchService) error { _, err := s.SearchByNameAndBrandExact(ctx, "a", "b"); return err },
		"suggest":     func(s *SearchService) error { _, err := s.SuggestNames(ctx, "wid"); return err },
		"canned":      func(s *SearchService) error { _, err := s.SuggestNamesCanned(ctx, "wid"); return err },
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			strict, _ := newBrokenServices(domain.PolicyStrict, &brokenEngine{err: engineErr}, discardLogger())
			err := call(strict)
			assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
			assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatus(err))

			legacy, _ := newBrokenServices(domain.PolicyLegacy, &brokenEngine{err: engineErr}, discardLogger())
			err = call(legacy)
			assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatus(err))
		})
	}

	t.Run("bool", func(t *testing.T) {
		strict, _ := newBrokenServices(domain.PolicyStrict, &brokenEngine{err: engineErr}, discardLogger())
		_, err := strict.SearchBool(ctx, pairs("brand", "Acme", "name", "Widget"))
		assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)

		legacy, _ := newBrokenServices(domain.PolicyLegacy, &brokenEngine{err: engineErr}, discardLogger())
		items, err := legacy.SearchBool(ctx, pairs("brand", "Acme", "name", "Widget"))
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}

func TestRejectedQuery(t *testing.T) {
	queryErr := fmt.Errorf("elasticsearch search: %w: query_shard_exception: failed to create query", engine.ErrBadQuery)
	ctx := context.Background()

	strict, _ := newBrokenServices(domain.PolicyStrict, &brokenEngine{err: queryErr}, discardLogger())
	_, err := strict.SearchByFieldValue(ctx, pairs("price", "abc"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))

	_, err = strict.SearchBool(ctx, pairs("price", "abc", "name", "Widget"))
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))

	legacy, _ := newBrokenServices(domain.PolicyLegacy, &brokenEngine{err: queryErr}, discardLogger())
	_, err = legacy.SearchByFieldValue(ctx, pairs("price", "abc"))
	assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatus(err))
}

func TestRejectedQuery_FromCluster(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case strings.HasSuffix(r.URL.Path, "/_search"):
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"type":"search_phase_execution_exception","reason":"failed to create query: For input string: \"abc\""},"status":400}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	eng, err := elasticsearch.New(context.Background(), elasticsearch.Config{
		Addresses: []string{srv.URL},
		IndexName: testIndex,
	}, discardLogger())
	require.NoError(t, err)

	search, _ := newServices(domain.PolicyStrict, eng, discardLogger())
	_, err = search.SearchByFieldValue(context.Background(), pairs("price", "abc"))

	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))
	assert.NotErrorIs(t, err, apperrors.ErrServiceUnavail)
}

func TestIndexDocuments_UnknownIndex(t *testing.T) {
	f := newFixture(t, domain.PolicyStrict)
	_, err := f.search.IndexDocuments(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, apperrors.HTTPStatus(err))

	legacy := newFixture(t, domain.PolicyLegacy)
	_, err = legacy.search.IndexDocuments(context.Background(), "missing")
	assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatus(err))
}

func TestExtractItems_SkipsMissingSource(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	eng := &brokenEngine{hits: []domain.Hit{
		{Index: testIndex, ID: "1", Source: &domain.Item{ID: "1", Name: "Widget"}},
		{Index: testIndex, ID: "ghost"},
		{Index: testIndex, ID: "2", Source: &domain.Item{ID: "2", Name: "Gadget"}},
	}}
	s, _ := newBrokenServices(domain.PolicyStrict, eng, log)

	items, err := s.IndexAllDocuments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Widget", "Gadget"}, names(items))
	assert.Contains(t, buf.String(), "search hit has no source")
	assert.Contains(t, buf.String(), "id=ghost")
}

func TestCreateItem(t *testing.T) {
	f := newFixture(t, domain.PolicyStrict)
	ctx := context.Background()

	t.Run("assigns id and does not modify input", func(t *testing.T) {
		in := &domain.Item{Name: "Widget", Brand: "Acme"}
		out, err := f.ingest.CreateItem(ctx, in)
		require.NoError(t, err)
		assert.NotEmpty(t, out.ID)
		assert.Empty(t, in.ID)
	})

	t.Run("keeps given id", func(t *testing.T) {
		out, err := f.ingest.CreateItem(ctx, &domain.Item{ID: "given", Name: "Widget"})
		require.NoError(t, err)
		assert.Equal(t, "given", out.ID)
	})

	t.Run("name required", func(t *testing.T) {
		_, err := f.ingest.CreateItem(ctx, &domain.Item{Brand: "Acme"})
		var valErr *validator.ValidationError
		require.ErrorAs(t, err, &valErr)
		assert.Contains(t, valErr.Fields(), "name")
	})

	t.Run("engine failure", func(t *testing.T) {
		_, strict := newBrokenServices(domain.PolicyStrict, &brokenEngine{err: engine.ErrUnavailable}, discardLogger())
		_, err := strict.CreateItem(ctx, &domain.Item{Name: "Widget"})
		assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatus(err))

		_, legacy := newBrokenServices(domain.PolicyLegacy, &brokenEngine{err: engine.ErrUnavailable}, discardLogger())
		_, err = legacy.CreateItem(ctx, &domain.Item{Name: "Widget"})
		assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatus(err))
	})
}

type badSeeds struct{}

func (badSeeds) Load() ([]domain.Item, error) { return nil, errors.New("decode seed data: unexpected EOF") }

func TestLoadSeedData_Failure(t *testing.T) {
	eng, err := memory.New(testIndex, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	repo := repository.New(eng, testIndex)

	t.Run("legacy swallows and logs", func(t *testing.T) {
		var buf bytes.Buffer
		s := NewIngestService(repo, badSeeds{}, domain.PolicyLegacy, slog.New(slog.NewTextHandler(&buf, nil)))

		n, err := s.LoadSeedData(context.Background())
		assert.NoError(t, err)
		assert.Zero(t, n)
		assert.Contains(t, buf.String(), "failed to load seed data")
		assert.Contains(t, buf.String(), "unexpected EOF")
	})

	t.Run("strict reports internal error", func(t *testing.T) {
		var buf bytes.Buffer
		s := NewIngestService(repo, badSeeds{}, domain.PolicyStrict, slog.New(slog.NewTextHandler(&buf, nil)))

		n, err := s.LoadSeedData(context.Background())
		assert.ErrorIs(t, err, apperrors.ErrInternal)
		assert.Zero(t, n)
		assert.Contains(t, buf.String(), "failed to load seed data")
	})

	t.Run("legacy swallows engine failure", func(t *testing.T) {
		_, s := newBrokenServices(domain.PolicyLegacy, &brokenEngine{err: engine.ErrUnavailable}, discardLogger())
		n, err := s.LoadSeedData(context.Background())
		assert.NoError(t, err)
		assert.Zero(t, n)
	})
}
