package engine

import (
	"context"
	"errors"

	"github.com/utafrali/itemsearch/internal/domain"
	"github.com/utafrali/itemsearch/internal/query"
)

// DefaultSize is the page size used when a Request does not set one.
const DefaultSize = 10

var (
	// ErrIndexNotFound is returned when a search names an index that does not exist.
	ErrIndexNotFound = errors.New("index not found")

	// ErrUnavailable is returned when the engine cannot be reached or answers
	// with a server-side failure.
	ErrUnavailable = errors.New("search engine unavailable")

	// ErrBadQuery is returned when the engine rejects a request as malformed,
	// for example a value that cannot be parsed for the field's type.
	ErrBadQuery = errors.New("search engine rejected query")
)

// Request describes one search. An empty Indices searches every index.
type Request struct {
	Indices []string
	Query   query.Query
	Size    int
}

// PageSize returns Size, or DefaultSize when Size is not positive.
func (r *Request) PageSize() int {
	if r.Size <= 0 {
		return DefaultSize
	}
	return r.Size
}

// SearchEngine indexes items and runs queries against them. Implementations
// must be safe for concurrent use.
type SearchEngine interface {
	// Index writes one item into the default index. The item is searchable
	// once Index returns.
	Index(ctx context.Context, item *domain.Item) error

	// BulkIndex writes items into the default index in one round trip.
	BulkIndex(ctx context.Context, items []domain.Item) error

	// Search runs req and returns hits in relevance order.
	Search(ctx context.Context, req *Request) ([]domain.Hit, error)

	// Ping reports whether the engine is reachable.
	Ping(ctx context.Context) error
}
