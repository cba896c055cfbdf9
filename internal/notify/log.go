package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/mmeshcher/artbid/internal/model"
)

// LogPublisher пишет события в журнал приложения.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher создаёт публикатор, пишущий события через zap.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish записывает событие одной строкой.
func (p *LogPublisher) Publish(_ context.Context, event model.Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.Int64("auctionID", event.AuctionID),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.UserID != nil {
		fields = append(fields, zap.Int64("userID", *event.UserID))
	}
	if event.Amount != nil {
		fields = append(fields, zap.Int64("amount", *event.Amount))
	}

	p.logger.Info("auction event", fields...)
	return nil
}

// Close ничего не делает.
func (p *LogPublisher) Close() error {
	return nil
}
