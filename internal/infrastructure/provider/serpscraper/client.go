// Package serpscraper calls a hosted search-results scraper that runs
// synchronously and returns its dataset items.
package serpscraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
	"github.com/kirillkom/keyword-intel/internal/infrastructure/provider/ratelimit"
	"github.com/kirillkom/keyword-intel/internal/infrastructure/resilience"
)

const (
	providerName = "serpscraper"
	// MaxQueriesPerRun is the most keywords sent in one scraper run.
	MaxQueriesPerRun = 10
	// MaxResultsPerPage caps resultsPerPage regardless of caller input.
	MaxResultsPerPage = 100
	errorBodyLimit    = 512
)

type Config struct {
	BaseURL     string
	ActorID     string
	Token       string
	HTTPTimeout time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	executor   *resilience.Executor
}

func New(cfg Config, limiter *ratelimit.Limiter, executor *resilience.Executor) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ActorID == "" {
		cfg.ActorID = "apify~google-search-scraper"
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 120 * time.Second
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		limiter:    limiter,
		executor:   executor,
	}
}

type runInput struct {
	Queries          string `json:"queries"`
	CountryCode      string `json:"countryCode,omitempty"`
	LanguageCode     string `json:"languageCode,omitempty"`
	ResultsPerPage   int    `json:"resultsPerPage"`
	MaxPagesPerQuery int    `json:"maxPagesPerQuery"`
}

type datasetItem struct {
	SearchQuery struct {
		Term string `json:"term"`
	} `json:"searchQuery"`
	OrganicResults []struct {
		Position     *int   `json:"position"`
		Title        string `json:"title"`
		URL          string `json:"url"`
		Description  string `json:"description"`
		DisplayedURL string `json:"displayedUrl"`
	} `json:"organicResults"`
	RelatedQueries []domain.RelatedQuery  `json:"relatedQueries"`
	PeopleAlsoAsk  []domain.PeopleAlsoAsk `json:"peopleAlsoAsk"`
	AIOverview     *struct {
		Content string `json:"content"`
		Sources []struct {
			URL string `json:"url"`
		} `json:"sources"`
	} `json:"aiOverview"`
}

// Search runs the scraper for up to MaxQueriesPerRun keywords; extra keywords are dropped.
func (c *Client) Search(ctx context.Context, query domain.SerpQuery) ([]domain.SerpProviderItem, error) {
	if strings.TrimSpace(c.cfg.Token) == "" {
		return nil, domain.WrapError(domain.ErrMissingCredentials, "serp search", errors.New("scraper token is required"))
	}
	keywords := query.Keywords
	if len(keywords) > MaxQueriesPerRun {
		keywords = keywords[:MaxQueriesPerRun]
	}
	if len(keywords) == 0 {
		return nil, nil
	}
	perPage := query.ResultsPerPage
	if perPage <= 0 || perPage > MaxResultsPerPage {
		perPage = MaxResultsPerPage
	}

	input := runInput{
		Queries:          strings.Join(keywords, "\n"),
		CountryCode:      strings.ToLower(query.CountryCode),
		LanguageCode:     query.LanguageCode,
		ResultsPerPage:   perPage,
		MaxPagesPerQuery: 1,
	}

	var items []datasetItem
	err := c.executor.Execute(ctx, "serpscraper.run_sync", func(callCtx context.Context) error {
		if err := c.limiter.Wait(callCtx); err != nil {
			return err
		}
		items = nil
		return c.runSync(callCtx, input, &items)
	}, nil)
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("serp search", err)
	}

	out := make([]domain.SerpProviderItem, 0, len(items))
	for _, item := range items {
		out = append(out, item.toDomain())
	}
	return out, nil
}

func (c *Client) runSync(ctx context.Context, input runInput, out *[]datasetItem) error {
	const operation = "run sync"
	body, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?token=%s",
		c.cfg.BaseURL, url.PathEscape(c.cfg.ActorID), url.QueryEscape(c.cfg.Token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("serpscraper %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		quota := resilience.IsQuotaStatus(resp.StatusCode)
		if quota {
			c.limiter.Backoff(ratelimit.ParseRetryAfter(resp.Header.Get("Retry-After")))
		}
		return &domain.ProviderError{
			Provider:   providerName,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       domain.BodyExcerpt(raw, errorBodyLimit),
			Quota:      quota,
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.ProviderError{
			Provider:  providerName,
			Operation: operation,
			Body:      fmt.Sprintf("decode response: %v", err),
		}
	}
	return nil
}

func (it datasetItem) toDomain() domain.SerpProviderItem {
	item := domain.SerpProviderItem{
		Query:          strings.TrimSpace(it.SearchQuery.Term),
		OrganicResults: make([]domain.ProviderOrganicResult, 0, len(it.OrganicResults)),
		RelatedQueries: it.RelatedQueries,
		PeopleAlsoAsk:  it.PeopleAlsoAsk,
	}
	for _, r := range it.OrganicResults {
		item.OrganicResults = append(item.OrganicResults, domain.ProviderOrganicResult{
			Position:     r.Position,
			Title:        r.Title,
			URL:          r.URL,
			Description:  r.Description,
			DisplayedURL: r.DisplayedURL,
		})
	}
	if it.AIOverview != nil && strings.TrimSpace(it.AIOverview.Content) != "" {
		overview := &domain.AIOverview{Content: it.AIOverview.Content}
		for _, s := range it.AIOverview.Sources {
			if s.URL != "" {
				overview.Sources = append(overview.Sources, s.URL)
			}
		}
		item.AIOverview = overview
	}
	return item
}
