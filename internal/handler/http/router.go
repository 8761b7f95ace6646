package http

import (
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/itemsearch/internal/service"
	"github.com/utafrali/itemsearch/pkg/health"
	"github.com/utafrali/itemsearch/pkg/httputil"
	"github.com/utafrali/itemsearch/pkg/middleware"
)

// NewRouter creates a chi router with the item routes, health checks and
// metrics registered.
func NewRouter(
	searchService *service.SearchService,
	ingestService *service.IngestService,
	healthHandler *health.Handler,
	environment string,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(environment)))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.PrometheusMetrics("items"))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	items := NewItemHandler(searchService, ingestService, logger)

	r.Route("/api/v1/items", func(r chi.Router) {
		r.With(ContentTypeJSON).Post("/", items.CreateItem)
		r.Post("/init-index", items.InitIndex)
		r.Get("/allIndexes", items.AllIndexes)
		r.Get("/getAllDataFromIndex/{indexName}", items.AllDataFromIndex)
		r.Get("/search", items.SearchByField)
		r.Get("/search/{name}/{brand}", items.SearchByNameAndBrand)
		r.Get("/boolQuery", items.BoolQuery)
		r.Get("/autoSuggest/{name}", items.AutoSuggest)
		r.Get("/suggestionsQuery/{name}", items.SuggestionsQuery)
	})

	return r
}

// ContentTypeJSON rejects requests whose body is not declared as JSON.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			httputil.WriteCode(w, r, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Content-Type must be application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}
