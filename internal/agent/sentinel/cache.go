package sentinel

import (
	"sort"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
)

const maxNewsItems = 50

// NewsCache holds recent news items, newest first.
type NewsCache struct {
	mu      sync.RWMutex
	items   []models.NewsItem
	updated time.Time
}

func NewNewsCache() *NewsCache { return &NewsCache{} }

// Replace swaps the cache contents with items.
func (c *NewsCache) Replace(items []models.NewsItem) {
	sorted := append([]models.NewsItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.After(sorted[j].Timestamp) })
	if len(sorted) > maxNewsItems {
		sorted = sorted[:maxNewsItems]
	}
	c.mu.Lock()
	c.items = sorted
	c.updated = time.Now()
	c.mu.Unlock()
}

// Add pushes one item to the front.
func (c *NewsCache) Add(item models.NewsItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]models.NewsItem{item}, c.items...)
	if len(c.items) > maxNewsItems {
		c.items = c.items[:maxNewsItems]
	}
	c.updated = time.Now()
}

// Recent returns up to n of the newest items.
func (c *NewsCache) Recent(n int) []models.NewsItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n <= 0 || n > len(c.items) {
		n = len(c.items)
	}
	return append([]models.NewsItem(nil), c.items[:n]...)
}

func (c *NewsCache) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updated
}

// Calendar holds scheduled economic events.
type Calendar struct {
	mu      sync.RWMutex
	events  []models.EconomicEvent
	updated time.Time
}

func NewCalendar() *Calendar { return &Calendar{} }

func (c *Calendar) Replace(events []models.EconomicEvent) {
	cp := append([]models.EconomicEvent(nil), events...)
	c.mu.Lock()
	c.events = cp
	c.updated = time.Now()
	c.mu.Unlock()
}

func (c *Calendar) Add(ev models.EconomicEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	c.updated = time.Now()
}

func (c *Calendar) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// NextHighImpact returns the earliest HIGH impact event in (now, now+window].
func (c *Calendar) NextHighImpact(now time.Time, window time.Duration) (models.EconomicEvent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var (
		best  models.EconomicEvent
		found bool
	)
	limit := now.Add(window)
	for _, ev := range c.events {
		if ev.Impact != models.ImpactHigh {
			continue
		}
		if !ev.Timestamp.After(now) || ev.Timestamp.After(limit) {
			continue
		}
		if !found || ev.Timestamp.Before(best.Timestamp) {
			best, found = ev, true
		}
	}
	return best, found
}
