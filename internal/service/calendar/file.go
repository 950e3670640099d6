package calendar

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/service"
)

// FileSource reads scheduled economic events from a YAML file. The file is
// re-read on every fetch so edits are picked up by the next refresh.
//
//	events:
//	  - title: US Non-Farm Payrolls
//	    timestamp: 2026-03-06T13:30:00Z
//	    impact: HIGH
//	    currency: USD
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

type calendarFile struct {
	Events []models.EconomicEvent `yaml:"events"`
}

// FetchEvents returns the events ordered by time.
func (s *FileSource) FetchEvents(ctx context.Context) ([]models.EconomicEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read calendar %s: %w", s.path, err)
	}
	var f calendarFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse calendar %s: %w", s.path, err)
	}

	out := make([]models.EconomicEvent, 0, len(f.Events))
	for i, ev := range f.Events {
		if ev.Title == "" || ev.Timestamp.IsZero() {
			return nil, fmt.Errorf("calendar %s: event %d needs title and timestamp", s.path, i)
		}
		ev.Impact = models.Impact(strings.ToUpper(string(ev.Impact)))
		if ev.Impact == "" {
			ev.Impact = models.ImpactLow
		}
		ev.Timestamp = ev.Timestamp.UTC()
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

var _ service.CalendarSource = (*FileSource)(nil)
