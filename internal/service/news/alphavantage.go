package news

import (
	"context"
	"fmt"
	"sort"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/service"
	pkghttp "SignalDesk/pkg/http"
)

const (
	defaultURL     = "https://www.alphavantage.co/query"
	defaultTickers = "FOREX:EUR"
	defaultLimit   = 20

	publishedLayout = "20060102T150405"
)

// Config for the Alpha Vantage NEWS_SENTIMENT feed.
type Config struct {
	URL     string
	APIKey  string
	Tickers string
	Limit   int
}

// AlphaVantageSource fetches market news from Alpha Vantage.
type AlphaVantageSource struct {
	cfg    Config
	client *pkghttp.Client
}

func NewAlphaVantageSource(cfg Config, client *pkghttp.Client) *AlphaVantageSource {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.Tickers == "" {
		cfg.Tickers = defaultTickers
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}
	if cfg.APIKey == "" {
		cfg.APIKey = "demo"
	}
	if client == nil {
		client = pkghttp.NewClient()
	}
	return &AlphaVantageSource{cfg: cfg, client: client}
}

type feedResponse struct {
	Feed []struct {
		Title                 string  `json:"title"`
		Summary               string  `json:"summary"`
		Source                string  `json:"source"`
		TimePublished         string  `json:"time_published"`
		OverallSentimentScore float64 `json:"overall_sentiment_score"`
	} `json:"feed"`
	// Set instead of feed when the key is throttled or invalid.
	Information string `json:"Information"`
	Note        string `json:"Note"`
}

// FetchNews returns up to Limit items, newest first.
func (s *AlphaVantageSource) FetchNews(ctx context.Context) ([]models.NewsItem, error) {
	var resp feedResponse
	err := s.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    s.cfg.URL,
		QueryParams: map[string][]string{
			"function": {"NEWS_SENTIMENT"},
			"tickers":  {s.cfg.Tickers},
			"apikey":   {s.cfg.APIKey},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("alphavantage news: %w", err)
	}
	if resp.Feed == nil {
		msg := resp.Information
		if msg == "" {
			msg = resp.Note
		}
		return nil, fmt.Errorf("alphavantage news: empty feed: %s", msg)
	}

	items := make([]models.NewsItem, 0, len(resp.Feed))
	for _, f := range resp.Feed {
		ts, err := time.Parse(publishedLayout, f.TimePublished)
		if err != nil {
			continue
		}
		score := f.OverallSentimentScore
		items = append(items, models.NewsItem{
			Title:     f.Title,
			Timestamp: ts.UTC(),
			Impact:    models.ImpactMedium,
			Sentiment: &score,
			Source:    f.Source,
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Timestamp.After(items[j].Timestamp) })
	if len(items) > s.cfg.Limit {
		items = items[:s.cfg.Limit]
	}
	return items, nil
}

var _ service.NewsSource = (*AlphaVantageSource)(nil)
