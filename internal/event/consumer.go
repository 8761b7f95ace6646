package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/itemsearch/internal/domain"
	pkgkafka "github.com/utafrali/itemsearch/pkg/kafka"
	"github.com/utafrali/itemsearch/pkg/logger"
	"github.com/utafrali/itemsearch/pkg/validator"
)

// EventItemCreated is the event type carrying a new item in its data.
const EventItemCreated = "item.created"

// ItemCreator stores a new item.
type ItemCreator interface {
	CreateItem(ctx context.Context, item *domain.Item) (*domain.Item, error)
}

// Consumer turns item events into ingest calls.
type Consumer struct {
	ingest ItemCreator
	logger *slog.Logger
}

// NewConsumer creates an item event consumer.
func NewConsumer(ingest ItemCreator, logger *slog.Logger) *Consumer {
	return &Consumer{
		ingest: ingest,
		logger: logger,
	}
}

// Handle processes one event. Events of other types and items that fail
// validation are logged and dropped; engine failures are returned so the
// message is retried.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	if event.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
	}
	l := logger.WithContext(ctx, c.logger)

	if event.EventType != EventItemCreated {
		l.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	var item domain.Item
	if err := event.UnmarshalData(&item); err != nil {
		l.ErrorContext(ctx, "dropping item event with undecodable data",
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	stored, err := c.ingest.CreateItem(ctx, &item)
	if err != nil {
		var valErr *validator.ValidationError
		if errors.As(err, &valErr) {
			l.ErrorContext(ctx, "dropping invalid item event",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return fmt.Errorf("create item from event %s: %w", event.EventID, err)
	}

	l.InfoContext(ctx, "indexed item from event",
		slog.String("event_id", event.EventID),
		slog.String("item_id", stored.ID),
	)
	return nil
}
