package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/artbid/internal/model"
)

// RetryAfterError сообщает, что получатель попросил повторить доставку не раньше чем через Delay.
type RetryAfterError struct {
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("receiver asked to retry after %s", e.Delay)
}

// WebhookPublisher отправляет события POST-запросом на внешний адрес.
type WebhookPublisher struct {
	url        string
	httpClient *http.Client
}

// NewWebhookPublisher создаёт публикатор для указанного адреса.
func NewWebhookPublisher(url string) *WebhookPublisher {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	return &WebhookPublisher{
		url: url,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Publish отправляет событие. Ответ 429 превращается в *RetryAfterError.
func (p *WebhookPublisher) Publish(ctx context.Context, event model.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", event.ID)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		var retryAfter time.Duration
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &RetryAfterError{Delay: retryAfter}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

// Close ничего не делает.
func (p *WebhookPublisher) Close() error {
	return nil
}

func retryDelay(err error, fallback time.Duration) time.Duration {
	var ra *RetryAfterError
	if errors.As(err, &ra) && ra.Delay > fallback {
		return ra.Delay
	}
	return fallback
}
