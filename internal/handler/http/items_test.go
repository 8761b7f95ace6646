package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/itemsearch/internal/domain"
	"github.com/utafrali/itemsearch/internal/engine"
	"github.com/utafrali/itemsearch/internal/engine/memory"
	"github.com/utafrali/itemsearch/internal/repository"
	"github.com/utafrali/itemsearch/internal/seed"
	"github.com/utafrali/itemsearch/internal/service"
	"github.com/utafrali/itemsearch/pkg/health"
	"github.com/utafrali/itemsearch/pkg/httputil"
)

const testIndex = "items_index"

type errorBody = httputil.ErrorEnvelope

func newTestRouterWith(t *testing.T, eng engine.SearchEngine, policy domain.ErrorPolicy) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := repository.New(eng, testIndex)
	search := service.NewSearchService(eng, repo, testIndex, policy, logger)
	ingest := service.NewIngestService(repo, seed.NewLoader(""), policy, logger)

	hh := health.NewHandler(time.Second)
	hh.Register("search_engine", eng.Ping)

	return NewRouter(search, ingest, hh, "development", logger)
}

func newTestRouter(t *testing.T, policy domain.ErrorPolicy) http.Handler {
	t.Helper()
	eng, err := memory.New(testIndex, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return newTestRouterWith(t, eng, policy)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func itemNames(items []domain.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}

func seedRouter(t *testing.T, h http.Handler) {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/v1/items/init-index", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 3, decode[InitLoadResponse](t, w).Loaded)
}

func TestCreateItem(t *testing.T) {
	h := newTestRouter(t, domain.PolicyStrict)

	w := do(t, h, http.MethodPost, "/api/v1/items", `{"name":"Widget","brand":"Acme"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	created := decode[domain.Item](t, w)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Widget", created.Name)
	assert.Equal(t, "Acme", created.Brand)
}

func TestCreateItem_Invalid(t *testing.T) {
	h := newTestRouter(t, domain.PolicyStrict)

	t.Run("missing name", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/v1/items", `{"brand":"Acme"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decode[errorBody](t, w)
		assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
		assert.Contains(t, body.Error.Fields, "name")
	})

	t.Run("malformed json", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/v1/items", `{"name":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_INPUT", decode[errorBody](t, w).Error.Code)
	})

	t.Run("wrong content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader(`{"name":"Widget"}`))
		req.Header.Set("Content-Type", "text/plain")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	})
}

func TestSearchByNameAndBrand_EndToEnd(t *testing.T) {
	h := newTestRouter(t, domain.PolicyStrict)

	w := do(t, h, http.MethodPost, "/api/v1/items", `{"name":"Widget","brand":"Acme"}`)
	require.Equal(t, http.StatusOK, w.Code)
	created := decode[domain.Item](t, w)

	w = do(t, h, http.MethodGet, "/api/v1/items/search/Widget/Acme", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []domain.Item{created}, decode[[]domain.Item](t, w))

	w = do(t, h, http.MethodGet, "/api/v1/items/search/Widget/OtherBrand", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestInitIndexThenAllIndexes(t *testing.T) {
	h := newTestRouter(t, domain.PolicyStrict)
	seedRouter(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/items/allIndexes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.ElementsMatch(t, []string{"Widget", "Gadget", "Doohickey"}, itemNames(decode[[]domain.Item](t, w)))

	w = do(t, h, http.MethodGet, "/api/v1/items/getAllDataFromIndex/"+testIndex, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.Item](t, w), 3)
}

func TestGetAllDataFromIndex_Unknown(t *testing.T) {
	w := do(t, newTestRouter(t, domain.PolicyStrict), http.MethodGet, "/api/v1/items/getAllDataFromIndex/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode[errorBody](t, w).Error.Code)

	w = do(t, newTestRouter(t, domain.PolicyLegacy), http.MethodGet, "/api/v1/items/getAllDataFromIndex/missing", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSearchByField(t *testing.T) {
	h := newTestRouter(t, domain.PolicyStrict)
	seedRouter(t, h)

	t.Run("json body", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/api/v1/items/search", `{"fieldName":["name"],"searchValue":["gadget"]}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, []string{"Gadget"}, itemNames(decode[[]domain.Item](t, w)))
	})

	t.Run("query parameters", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/api/v1/items/search?fieldName=brand&searchValue=Initech", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, []string{"Doohickey"}, itemNames(decode[[]domain.Item](t, w)))
	})

	t.Run("no pairs", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/api/v1/items/search", `{"fieldName":[],"searchValue":[]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_INPUT", decode[errorBody](t, w).Error.Code)
	})

	t.Run("unbalanced", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/api/v1/items/search", `{"fieldName":["name","brand"],"searchValue":["Widget"]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", decode[errorBody](t, w).Error.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/api/v1/items/search", `{"fieldName":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSearchByField_LegacyNoPairsIsServerError(t *testing.T) {
	h := newTestRouter(t, domain.PolicyLegacy)

	w := do(t, h, http.MethodGet, "/api/v1/items/search", `{"fieldName":[],"searchValue":[]}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", decode[errorBody](t, w).Error.Code)
}

func TestBoolQuery(t *testing.T) {
	for _, policy := range []domain.ErrorPolicy{domain.PolicyStrict, domain.PolicyLegacy} {
		t.Run(string(policy), func(t *testing.T) {
			h := newTestRouter(t, policy)
			seedRouter(t, h)

			w := do(t, h, http.MethodGet, "/api/v1/items/boolQuery",
				`{"fieldName":["category","name"],"searchValue":["tools","widget"]}`)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, []string{"Widget"}, itemNames(decode[[]domain.Item](t, w)))
		})
	}
}

func TestBoolQuery_SinglePair(t *testing.T) {
	body := `{"fieldName":["name"],"searchValue":["Widget"]}`

	w := do(t, newTestRouter(t, domain.PolicyLegacy), http.MethodGet, "/api/v1/items/boolQuery", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(t, newTestRouter(t, domain.PolicyStrict), http.MethodGet, "/api/v1/items/boolQuery", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAutoSuggest(t *testing.T) {
	h := newTestRouter(t, domain.PolicyStrict)
	for _, n := range []string{"Widget", "Widget", "Gadget"} {
		require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/items", `{"name":"`+n+`"}`).Code)
	}

	w := do(t, h, http.MethodGet, "/api/v1/items/autoSuggest/Wid", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Widget"}, decode[[]string](t, w))

	w = do(t, h, http.MethodGet, "/api/v1/items/suggestionsQuery/wid", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Widget", "Widget"}, decode[[]string](t, w))
}

type downEngine struct{}

var errDown = errors.Join(engine.ErrUnavailable, errors.New("connection refused"))

func (downEngine) Index(context.Context, *domain.Item) error { return errDown }
func (downEngine) BulkIndex(context.Context, []domain.Item) error { return errDown }
func (downEngine) Ping(context.Context) error { return errDown }
func (downEngine) Search(context.Context, *engine.Request) ([]domain.Hit, error) {
	return nil, errDown
}

func TestEngineDown(t *testing.T) {
	strict := newTestRouterWith(t, downEngine{}, domain.PolicyStrict)
	legacy := newTestRouterWith(t, downEngine{}, domain.PolicyLegacy)
	boolBody := `{"fieldName":["brand","name"],"searchValue":["Acme","Widget"]}`

	tests := []struct {
		name         string
		method, path string
		body         string
		strict       int
		legacy       int
	}{
		{"all indexes", http.MethodGet, "/api/v1/items/allIndexes", "", 503, 500},
		{"field search", http.MethodGet, "/api/v1/items/search", `{"fieldName":["name"],"searchValue":["x"]}`, 503, 500},
		{"bool", http.MethodGet, "/api/v1/items/boolQuery", boolBody, 503, 200},
		{"suggest", http.MethodGet, "/api/v1/items/autoSuggest/wid", "", 503, 500},
		{"create", http.MethodPost, "/api/v1/items", `{"name":"Widget"}`, 503, 500},
		{"init index", http.MethodPost, "/api/v1/items/init-index", "", 500, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.strict, do(t, strict, tt.method, tt.path, tt.body).Code)
			assert.Equal(t, tt.legacy, do(t, legacy, tt.method, tt.path, tt.body).Code)
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestRouter(t, domain.PolicyStrict)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health/ready", "").Code)

	down := newTestRouterWith(t, downEngine{}, domain.PolicyStrict)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, down, http.MethodGet, "/health/ready", "").Code)

	w := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestCorrelationIDEchoed(t *testing.T) {
	h := newTestRouter(t, domain.PolicyStrict)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/items/allIndexes", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get("X-Correlation-ID"))
}
