package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/itemsearch/internal/domain"
	"github.com/utafrali/itemsearch/internal/service"
	"github.com/utafrali/itemsearch/pkg/httputil"
)

const maxBodyBytes = 1 << 20

// ItemHandler serves the /api/v1/items endpoints.
type ItemHandler struct {
	search *service.SearchService
	ingest *service.IngestService
	logger *slog.Logger
}

// NewItemHandler creates an item HTTP handler.
func NewItemHandler(search *service.SearchService, ingest *service.IngestService, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{
		search: search,
		ingest: ingest,
		logger: logger,
	}
}

// InitLoadResponse reports how many seed items were written.
type InitLoadResponse struct {
	Loaded int `json:"loaded"`
}

// CreateItem handles POST /api/v1/items
func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var item domain.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		httputil.WriteBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}

	stored, err := h.ingest.CreateItem(r.Context(), &item)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, stored)
}

// InitIndex handles POST /api/v1/items/init-index
func (h *ItemHandler) InitIndex(w http.ResponseWriter, r *http.Request) {
	n, err := h.ingest.LoadSeedData(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, InitLoadResponse{Loaded: n})
}

// AllIndexes handles GET /api/v1/items/allIndexes
func (h *ItemHandler) AllIndexes(w http.ResponseWriter, r *http.Request) {
	items, err := h.search.IndexAllDocuments(r.Context())
	h.writeResult(w, r, items, err)
}

// AllDataFromIndex handles GET /api/v1/items/getAllDataFromIndex/{indexName}
func (h *ItemHandler) AllDataFromIndex(w http.ResponseWriter, r *http.Request) {
	items, err := h.search.IndexDocuments(r.Context(), chi.URLParam(r, "indexName"))
	h.writeResult(w, r, items, err)
}

// SearchByField handles GET /api/v1/items/search
func (h *ItemHandler) SearchByField(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}
	items, err := h.search.SearchByFieldValue(r.Context(), req)
	h.writeResult(w, r, items, err)
}

// SearchByNameAndBrand handles GET /api/v1/items/search/{name}/{brand}
func (h *ItemHandler) SearchByNameAndBrand(w http.ResponseWriter, r *http.Request) {
	items, err := h.search.SearchByNameAndBrandExact(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "brand"))
	h.writeResult(w, r, items, err)
}

// BoolQuery handles GET /api/v1/items/boolQuery
func (h *ItemHandler) BoolQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}
	items, err := h.search.SearchBool(r.Context(), req)
	h.writeResult(w, r, items, err)
}

// AutoSuggest handles GET /api/v1/items/autoSuggest/{name}
func (h *ItemHandler) AutoSuggest(w http.ResponseWriter, r *http.Request) {
	names, err := h.search.SuggestNames(r.Context(), chi.URLParam(r, "name"))
	h.writeResult(w, r, names, err)
}

// SuggestionsQuery handles GET /api/v1/items/suggestionsQuery/{name}
func (h *ItemHandler) SuggestionsQuery(w http.ResponseWriter, r *http.Request) {
	names, err := h.search.SuggestNamesCanned(r.Context(), chi.URLParam(r, "name"))
	h.writeResult(w, r, names, err)
}

func (h *ItemHandler) writeResult(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

// decodeSearchRequest reads a SearchRequest from the request body. A request
// without a body may pass repeated fieldName and searchValue query
// parameters instead.
func decodeSearchRequest(w http.ResponseWriter, r *http.Request) (*domain.SearchRequest, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httputil.WriteBadRequest(w, r, "invalid request body: "+err.Error())
		return nil, false
	}

	req := &domain.SearchRequest{}
	if len(bytes.TrimSpace(body)) == 0 {
		q := r.URL.Query()
		req.FieldName = q["fieldName"]
		req.SearchValue = q["searchValue"]
		return req, true
	}

	if err := json.Unmarshal(body, req); err != nil {
		httputil.WriteBadRequest(w, r, "invalid request body: "+err.Error())
		return nil, false
	}
	return req, true
}
