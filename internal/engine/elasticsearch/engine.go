package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/utafrali/itemsearch/internal/domain"
	"github.com/utafrali/itemsearch/internal/engine"
)

// Config holds connection settings for the cluster.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	IndexName string
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Engine is an Elasticsearch-backed SearchEngine.
type Engine struct {
	client    *elasticsearch.Client
	indexName string
	logger    *slog.Logger
}

var _ engine.SearchEngine = (*Engine)(nil)

type esSearchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Hits []struct {
			Index  string          `json:"_index"`
			ID     string          `json:"_id"`
			Score  *float64        `json:"_score"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type esIndexResponse struct {
	ID     string `json:"_id"`
	Result string `json:"result"`
}

type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New connects to the cluster and makes sure the default index exists with
// the items mapping.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.IndexName == "" {
		cfg.IndexName = DefaultIndexName
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}

	e := &Engine{
		client:    client,
		indexName: cfg.IndexName,
		logger:    logger,
	}

	if err := e.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("elasticsearch: ensure index: %w", err)
	}

	return e, nil
}

// IndexName returns the default index.
func (e *Engine) IndexName() string {
	return e.indexName
}

// Ping checks whether the cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w: %w", engine.ErrUnavailable, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("elasticsearch ping", res)
	}
	return nil
}

func (e *Engine) ensureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.indexName}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index exists: %w: %w", engine.ErrUnavailable, err)
	}
	_ = res.Body.Close()

	if res.StatusCode == http.StatusOK {
		e.logger.Info("elasticsearch index already exists", "index", e.indexName)
		return nil
	}

	body, err := json.Marshal(indexMapping())
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	res, err = e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithBody(bytes.NewReader(body)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w: %w", engine.ErrUnavailable, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("create index", res)
	}

	e.logger.Info("elasticsearch index created", "index", e.indexName)
	return nil
}

// Index writes one item with an immediate refresh. When item.ID is empty the
// cluster assigns one and it is copied back into item.
func (e *Engine) Index(ctx context.Context, item *domain.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("elasticsearch index: marshal item: %w", err)
	}

	opts := []func(*esapi.IndexRequest){
		e.client.Index.WithRefresh("true"),
		e.client.Index.WithContext(ctx),
	}
	if item.ID != "" {
		opts = append(opts, e.client.Index.WithDocumentID(item.ID))
	}

	res, err := e.client.Index(e.indexName, bytes.NewReader(data), opts...)
	if err != nil {
		return fmt.Errorf("elasticsearch index: %w: %w", engine.ErrUnavailable, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("elasticsearch index", res)
	}

	var out esIndexResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("elasticsearch index: decode response: %w", err)
	}
	if item.ID == "" {
		item.ID = out.ID
	}

	e.logger.Debug("indexed item", "index", e.indexName, "id", item.ID, "result", out.Result)
	return nil
}

// BulkIndex writes items through the bulk NDJSON API with an immediate
// refresh. Any per-item failure fails the whole call. Items without an ID get
// the one the cluster assigned.
func (e *Engine) BulkIndex(ctx context.Context, items []domain.Item) error {
	if len(items) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range items {
		meta := map[string]any{"_index": e.indexName}
		if items[i].ID != "" {
			meta["_id"] = items[i].ID
		}
		if err := enc.Encode(map[string]any{"index": meta}); err != nil {
			return fmt.Errorf("elasticsearch bulk index: encode action: %w", err)
		}
		if err := enc.Encode(items[i]); err != nil {
			return fmt.Errorf("elasticsearch bulk index: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.indexName),
		e.client.Bulk.WithRefresh("true"),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk index: %w: %w", engine.ErrUnavailable, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("elasticsearch bulk index", res)
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("elasticsearch bulk index: decode response: %w", err)
	}

	if bulkResp.Errors {
		failed := 0
		var first string
		for _, it := range bulkResp.Items {
			if it.Index.Status >= 300 {
				if failed == 0 {
					first = fmt.Sprintf("%s: %s", it.Index.Error.Type, it.Index.Error.Reason)
				}
				failed++
			}
		}
		return fmt.Errorf("elasticsearch bulk index: %d of %d items failed, first: %s", failed, len(items), first)
	}

	// Bulk responses list items in request order.
	for i := range items {
		if items[i].ID == "" && i < len(bulkResp.Items) {
			items[i].ID = bulkResp.Items[i].Index.ID
		}
	}

	e.logger.Debug("bulk indexed items", "index", e.indexName, "count", len(items))
	return nil
}

// Search runs req. An empty req.Indices searches every index in the cluster.
func (e *Engine) Search(ctx context.Context, req *engine.Request) ([]domain.Hit, error) {
	body, err := json.Marshal(map[string]any{
		"query": req.Query.Source(),
		"size":  req.PageSize(),
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	e.logger.DebugContext(ctx, "elasticsearch search", "indices", req.Indices, "body", string(body))

	opts := []func(*esapi.SearchRequest){
		e.client.Search.WithBody(bytes.NewReader(body)),
		e.client.Search.WithContext(ctx),
	}
	if len(req.Indices) > 0 {
		opts = append(opts, e.client.Search.WithIndex(req.Indices...))
	}

	res, err := e.client.Search(opts...)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w: %w", engine.ErrUnavailable, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError("elasticsearch search", res)
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	hits := make([]domain.Hit, 0, len(esResp.Hits.Hits))
	for _, h := range esResp.Hits.Hits {
		hit := domain.Hit{Index: h.Index, ID: h.ID}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		if len(h.Source) > 0 && !bytes.Equal(h.Source, []byte("null")) {
			var item domain.Item
			if err := json.Unmarshal(h.Source, &item); err != nil {
				return nil, fmt.Errorf("elasticsearch search: decode hit %s: %w", h.ID, err)
			}
			if item.ID == "" {
				item.ID = h.ID
			}
			hit.Source = &item
		}
		hits = append(hits, hit)
	}

	e.logger.DebugContext(ctx, "elasticsearch search done", "indices", req.Indices, "hits", len(hits), "took_ms", esResp.Took)
	return hits, nil
}

// DeleteIndex removes the default index. A missing index is not an error.
func (e *Engine) DeleteIndex(ctx context.Context) error {
	res, err := e.client.Indices.Delete(
		[]string{e.indexName},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w: %w", engine.ErrUnavailable, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("elasticsearch delete index", res)
	}

	e.logger.Info("elasticsearch index deleted", "index", e.indexName)
	return nil
}

// responseError turns an error response into an error wrapping the matching
// engine sentinel.
func responseError(op string, res *esapi.Response) error {
	raw, _ := io.ReadAll(res.Body)

	var errResp esErrorResponse
	detail := res.Status()
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error.Type != "" {
		detail = errResp.Error.Type + ": " + errResp.Error.Reason
	}

	switch {
	case errResp.Error.Type == "index_not_found_exception":
		return fmt.Errorf("%s: %w: %s", op, engine.ErrIndexNotFound, detail)
	case res.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%s: %w: %s", op, engine.ErrUnavailable, detail)
	case res.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%s: %w: %s", op, engine.ErrBadQuery, detail)
	default:
		return fmt.Errorf("%s: %s", op, detail)
	}
}
