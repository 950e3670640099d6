package sentinel

import (
	"context"
	"fmt"
	"time"

	"SignalDesk/internal/domain/service"
	applogger "SignalDesk/pkg/logger"
)

// Refresher keeps a NewsCache and a Calendar current on independent timers.
type Refresher struct {
	news      service.NewsSource
	calendar  service.CalendarSource
	newsCache *NewsCache
	cal       *Calendar
	newsEvery time.Duration
	calEvery  time.Duration
	l         *applogger.Logger
}

func NewRefresher(
	news service.NewsSource,
	calendar service.CalendarSource,
	newsCache *NewsCache,
	cal *Calendar,
	newsEvery, calEvery time.Duration,
	l *applogger.Logger,
) *Refresher {
	if newsEvery <= 0 {
		newsEvery = 15 * time.Minute
	}
	if calEvery <= 0 {
		calEvery = time.Hour
	}
	return &Refresher{
		news:      news,
		calendar:  calendar,
		newsCache: newsCache,
		cal:       cal,
		newsEvery: newsEvery,
		calEvery:  calEvery,
		l:         l,
	}
}

// RefreshNews replaces the news cache. On error the previous cache is kept.
func (r *Refresher) RefreshNews(ctx context.Context) error {
	if r.news == nil {
		return nil
	}
	items, err := r.news.FetchNews(ctx)
	if err != nil {
		return fmt.Errorf("fetch news: %w", err)
	}
	r.newsCache.Replace(items)
	return nil
}

// RefreshCalendar replaces the calendar. On error the previous calendar is kept.
func (r *Refresher) RefreshCalendar(ctx context.Context) error {
	if r.calendar == nil {
		return nil
	}
	events, err := r.calendar.FetchEvents(ctx)
	if err != nil {
		return fmt.Errorf("fetch calendar: %w", err)
	}
	r.cal.Replace(events)
	return nil
}

// Run refreshes both caches once, then on their tickers until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	r.refresh(ctx, "news", r.RefreshNews)
	r.refresh(ctx, "calendar", r.RefreshCalendar)

	newsT := time.NewTicker(r.newsEvery)
	defer newsT.Stop()
	calT := time.NewTicker(r.calEvery)
	defer calT.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-newsT.C:
			r.refresh(ctx, "news", r.RefreshNews)
		case <-calT.C:
			r.refresh(ctx, "calendar", r.RefreshCalendar)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context, kind string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		if r.l != nil {
			r.l.Warn("sentinel refresh failed, keeping cached data",
				applogger.String("kind", kind),
				applogger.Error(err),
			)
		}
		return
	}
	if r.l != nil {
		r.l.Debug("sentinel refresh ok", applogger.String("kind", kind))
	}
}
