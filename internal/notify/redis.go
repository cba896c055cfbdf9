package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/artbid/internal/model"
)

// RedisPublisher отправляет события в pub/sub канал auction_events:<auctionID>
// для живых лент ставок.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher подключается к Redis и проверяет соединение.
func NewRedisPublisher(ctx context.Context, addr, password string, db int) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisPublisher{client: rdb}, nil
}

// Channel возвращает имя канала для аукциона.
func Channel(auctionID int64) string {
	return fmt.Sprintf("auction_events:%d", auctionID)
}

// Publish публикует событие в канал аукциона.
func (p *RedisPublisher) Publish(ctx context.Context, event model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, Channel(event.AuctionID), data).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

// Close закрывает клиент Redis.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
