package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/itemsearch/internal/domain"
	"github.com/utafrali/itemsearch/pkg/logger"
	"github.com/utafrali/itemsearch/pkg/tracing"
)

const tracerName = "github.com/utafrali/itemsearch/internal/engine"

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_engine_requests_total",
			Help: "Total number of search engine calls",
		},
		[]string{"engine", "operation", "outcome"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_engine_request_duration_seconds",
			Help:    "Search engine call latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"engine", "operation"},
	)
)

// Instrumented decorates a SearchEngine with metrics, client spans and slow
// call logging.
type Instrumented struct {
	next          SearchEngine
	system        string
	slowThreshold time.Duration
	logger        *slog.Logger
}

var _ SearchEngine = (*Instrumented)(nil)

// NewInstrumented wraps next. system names the backend ("elasticsearch",
// "bleve") in metric labels and span attributes. A zero slowThreshold
// disables slow call logging.
func NewInstrumented(next SearchEngine, system string, slowThreshold time.Duration, logger *slog.Logger) *Instrumented {
	return &Instrumented{
		next:          next,
		system:        system,
		slowThreshold: slowThreshold,
		logger:        logger,
	}
}

func (e *Instrumented) Index(ctx context.Context, item *domain.Item) (err error) {
	ctx, end := e.observe(ctx, "index", "", attribute.String("item.id", item.ID))
	defer func() { end(err) }()
	return e.next.Index(ctx, item)
}

func (e *Instrumented) BulkIndex(ctx context.Context, items []domain.Item) (err error) {
	ctx, end := e.observe(ctx, "bulk_index", "", attribute.Int("items.count", len(items)))
	defer func() { end(err) }()
	return e.next.BulkIndex(ctx, items)
}

func (e *Instrumented) Search(ctx context.Context, req *Request) (hits []domain.Hit, err error) {
	ctx, end := e.observe(ctx, "search", req.Query.String(),
		attribute.String("db.search.indices", strings.Join(req.Indices, ",")),
		attribute.Int("db.search.size", req.PageSize()),
	)
	defer func() {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("db.search.hits", len(hits)))
		end(err)
	}()
	return e.next.Search(ctx, req)
}

func (e *Instrumented) Ping(ctx context.Context) (err error) {
	ctx, end := e.observe(ctx, "ping", "")
	defer func() { end(err) }()
	return e.next.Ping(ctx)
}

func (e *Instrumented) observe(ctx context.Context, operation, statement string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()

	attrs = append(attrs,
		attribute.String("db.system", e.system),
		attribute.String("db.operation", operation),
	)
	if statement != "" {
		attrs = append(attrs, attribute.String("db.statement", statement))
	}
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "search."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	return ctx, func(err error) {
		elapsed := time.Since(start)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		requestsTotal.WithLabelValues(e.system, operation, outcome(err)).Inc()
		requestDuration.WithLabelValues(e.system, operation).Observe(elapsed.Seconds())

		if e.slowThreshold > 0 && elapsed >= e.slowThreshold {
			args := []any{
				slog.String("engine", e.system),
				slog.String("operation", operation),
				slog.Duration("duration", elapsed),
			}
			if statement != "" {
				args = append(args, slog.String("statement", statement))
			}
			if err != nil {
				args = append(args, slog.String("error", err.Error()))
			}
			logger.WithContext(ctx, e.logger).WarnContext(ctx, "slow search engine call", args...)
		}
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrIndexNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrBadQuery):
		return "bad_query"
	default:
		return "error"
	}
}
