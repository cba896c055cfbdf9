package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/artbid/internal/model"
)

const (
	defaultQueueSize   = 256
	defaultMaxAttempts = 5
	defaultBackoff     = 200 * time.Millisecond
)

// Dispatcher принимает события от сервиса и доставляет их публикатору в отдельной горутине.
// Notify не ждёт доставки, поэтому медленный брокер не задерживает ставки и расчёты.
type Dispatcher struct {
	publisher Publisher
	logger    *zap.Logger
	queue     chan model.Event

	maxAttempts int
	backoff     time.Duration
}

// Option настраивает Dispatcher.
type Option func(*Dispatcher)

// WithQueueSize задаёт размер буфера событий.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan model.Event, n)
		}
	}
}

// WithRetry задаёт число попыток доставки и начальную паузу между ними.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(d *Dispatcher) {
		if attempts > 0 {
			d.maxAttempts = attempts
		}
		d.backoff = backoff
	}
}

// NewDispatcher создаёт диспетчер поверх публикатора.
func NewDispatcher(publisher Publisher, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		publisher:   publisher,
		logger:      logger,
		queue:       make(chan model.Event, defaultQueueSize),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify ставит событие в очередь и никогда не ждёт. Если очередь заполнена, событие
// отбрасывается с предупреждением: запись уже зафиксирована и не должна зависеть от брокера.
func (d *Dispatcher) Notify(_ context.Context, event model.Event) {
	select {
	case d.queue <- event:
	default:
		d.logger.Warn("event dropped: queue is full",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Int64("auctionID", event.AuctionID),
		)
	}
}

// Run доставляет события до отмены ctx, затем досылает недоставленное событие и то, что осталось в очереди.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return nil
		case ev := <-d.queue:
			if !d.deliver(ctx, ev) {
				d.drain(ev)
				return nil
			}
		}
	}
}

func (d *Dispatcher) drain(pending ...model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	publish := func(ev model.Event) {
		if err := d.publisher.Publish(ctx, ev); err != nil {
			d.logger.Error("failed to deliver event on shutdown",
				zap.String("event_id", ev.ID),
				zap.Error(err),
			)
		}
	}

	for _, ev := range pending {
		publish(ev)
	}
	for {
		select {
		case ev := <-d.queue:
			publish(ev)
		default:
			return
		}
	}
}

// deliver возвращает false, если ctx отменён во время ожидания повтора и событие ещё не доставлено.
func (d *Dispatcher) deliver(ctx context.Context, ev model.Event) bool {
	delay := d.backoff

	for attempt := 1; ; attempt++ {
		err := d.publisher.Publish(ctx, ev)
		if err == nil {
			return true
		}

		if attempt >= d.maxAttempts {
			d.logger.Error("event delivery failed",
				zap.String("event_id", ev.ID),
				zap.String("type", string(ev.Type)),
				zap.Int64("auctionID", ev.AuctionID),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return true
		}

		wait := retryDelay(err, delay)
		d.logger.Warn("event delivery retry",
			zap.String("event_id", ev.ID),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.logger.Warn("event delivery interrupted, handing over to shutdown drain",
				zap.String("event_id", ev.ID),
				zap.Int("attempt", attempt),
			)
			return false
		case <-timer.C:
		}
		delay *= 2
	}
}
