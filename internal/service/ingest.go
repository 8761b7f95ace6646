package service

import (
	"context"
	"log/slog"

	"github.com/utafrali/itemsearch/internal/domain"
	"github.com/utafrali/itemsearch/internal/repository"
	apperrors "github.com/utafrali/itemsearch/pkg/errors"
	"github.com/utafrali/itemsearch/pkg/logger"
	"github.com/utafrali/itemsearch/pkg/validator"
)

// SeedSource supplies the seed dataset.
type SeedSource interface {
	Load() ([]domain.Item, error)
}

// IngestService writes items into the default index.
type IngestService struct {
	repo   repository.ItemRepository
	seeds  SeedSource
	policy domain.ErrorPolicy
	logger *slog.Logger
}

// NewIngestService creates an ingest service.
func NewIngestService(repo repository.ItemRepository, seeds SeedSource, policy domain.ErrorPolicy, logger *slog.Logger) *IngestService {
	return &IngestService{
		repo:   repo,
		seeds:  seeds,
		policy: policy,
		logger: logger,
	}
}

// CreateItem validates and stores one item and returns its stored form.
func (s *IngestService) CreateItem(ctx context.Context, item *domain.Item) (*domain.Item, error) {
	if err := validator.Validate(item); err != nil {
		return nil, err
	}

	stored := *item
	if err := s.repo.Save(ctx, &stored); err != nil {
		if s.policy == domain.PolicyLegacy {
			return nil, apperrors.Internal(err)
		}
		return nil, apperrors.Unavailable("search engine", err)
	}

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "item created",
		slog.String("id", stored.ID),
		slog.String("name", stored.Name),
	)
	return &stored, nil
}

// LoadSeedData reads the seed dataset and bulk-writes it, returning how many
// items were written. Under the legacy policy failures are logged and
// reported as zero items loaded with no error.
func (s *IngestService) LoadSeedData(ctx context.Context) (int, error) {
	l := logger.WithContext(ctx, s.logger)

	items, err := s.seeds.Load()
	if err == nil {
		err = s.repo.SaveAll(ctx, items)
	}
	if err != nil {
		l.ErrorContext(ctx, "failed to load seed data", slog.String("error", err.Error()))
		if s.policy == domain.PolicyLegacy {
			return 0, nil
		}
		return 0, apperrors.Internal(err)
	}

	l.InfoContext(ctx, "seed data loaded", slog.Int("count", len(items)))
	return len(items), nil
}
