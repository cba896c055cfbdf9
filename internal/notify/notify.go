// Package notify доставляет уведомления об аукционах во внешние системы:
// NATS JetStream, RabbitMQ, Redis pub/sub или журнал.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/artbid/internal/model"
)

// Publisher отправляет событие в одну внешнюю систему.
type Publisher interface {
	Publish(ctx context.Context, event model.Event) error
	Close() error
}

// NewEvent создаёт событие с новым идентификатором.
func NewEvent(typ model.EventType, auctionID int64, userID, amount *int64, at time.Time) model.Event {
	return model.Event{
		ID:         uuid.NewString(),
		Type:       typ,
		AuctionID:  auctionID,
		UserID:     userID,
		Amount:     amount,
		OccurredAt: at.UTC(),
	}
}

// MultiPublisher рассылает событие во все публикаторы. Ошибка одного не мешает остальным.
type MultiPublisher []Publisher

// Publish отправляет событие каждому публикатору и объединяет ошибки.
func (m MultiPublisher) Publish(ctx context.Context, event model.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close закрывает все публикаторы.
func (m MultiPublisher) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
