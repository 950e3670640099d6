package service

import (
	"context"

	"SignalDesk/internal/domain/models"
)

// NewsSource fetches recent market news, newest first.
type NewsSource interface {
	FetchNews(ctx context.Context) ([]models.NewsItem, error)
}

// CalendarSource fetches scheduled economic events.
type CalendarSource interface {
	FetchEvents(ctx context.Context) ([]models.EconomicEvent, error)
}

// TickProcessor consumes live price ticks.
type TickProcessor interface {
	OnTick(ctx context.Context, t models.Tick) error
}
