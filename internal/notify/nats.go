package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mmeshcher/artbid/internal/model"
)

const (
	natsStreamName    = "AUCTION_EVENTS"
	natsSubjectPrefix = "auction.events."
)

// NATSPublisher публикует события в поток JetStream с подтверждением записи.
type NATSPublisher struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewNATSPublisher подключается к NATS и создаёт поток AUCTION_EVENTS, если его нет.
func NewNATSPublisher(ctx context.Context, url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        natsStreamName,
		Description: "Auction settlement and bid notifications",
		Subjects:    []string{natsSubjectPrefix + ">"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create stream: %w", err)
	}

	return &NATSPublisher{conn: conn, js: js}, nil
}

// Publish отправляет событие в subject auction.events.<type> и ждёт подтверждения.
// Идентификатор события передаётся как Msg-Id, поэтому повторная доставка дедуплицируется сервером.
func (p *NATSPublisher) Publish(ctx context.Context, event model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = p.js.Publish(ctx, natsSubjectPrefix+string(event.Type), data, jetstream.WithMsgID(event.ID))
	if err != nil {
		return fmt.Errorf("publish to jetstream: %w", err)
	}
	return nil
}

// Close закрывает соединение с NATS.
func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}
