package service

import (
	"context"

	"github.com/mmeshcher/artbid/internal/model"
)

//go:generate mockgen -source=notifier.go -destination=mock_notifier.go -package=service

// Notifier принимает события после фиксации транзакции. Notify не должен блокироваться: доставка и повторы на стороне получателя.
type Notifier interface {
	Notify(ctx context.Context, event model.Event)
}
