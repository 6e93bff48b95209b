// Package adplanner is the keyword-ideas client for the ad-planning API.
package adplanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
	"github.com/kirillkom/keyword-intel/internal/infrastructure/provider/ratelimit"
	"github.com/kirillkom/keyword-intel/internal/infrastructure/resilience"
)

const (
	providerName = "adplanner"
	// MaxKeywordsPerRequest is the provider's seed-list limit.
	MaxKeywordsPerRequest = 20
	errorBodyLimit        = 512
)

type Config struct {
	BaseURL         string
	APIVersion      string
	DeveloperToken  string
	CustomerID      string
	LoginCustomerID string
	AccessToken     string
	HTTPTimeout     time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	executor   *resilience.Executor
}

func New(cfg Config, limiter *ratelimit.Limiter, executor *resilience.Executor) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v17"
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

func (c *Client) Configured() bool {
	return strings.TrimSpace(c.cfg.DeveloperToken) != "" &&
		strings.TrimSpace(c.cfg.CustomerID) != "" &&
		strings.TrimSpace(c.cfg.AccessToken) != ""
}

type keywordSeed struct {
	Keywords []string `json:"keywords"`
}

type ideasRequest struct {
	Language           string      `json:"language"`
	GeoTargetConstants []string    `json:"geoTargetConstants"`
	KeywordPlanNetwork string      `json:"keywordPlanNetwork"`
	KeywordSeed        keywordSeed `json:"keywordSeed"`
}

type ideaMetrics struct {
	AvgMonthlySearches    flexValue `json:"avgMonthlySearches"`
	Competition           flexValue `json:"competition"`
	CompetitionIndex      flexValue `json:"competitionIndex"`
	LowTopOfPageBidMicros flexValue `json:"lowTopOfPageBidMicros"`
}

type ideaResult struct {
	Text    string      `json:"text"`
	Metrics ideaMetrics `json:"keywordIdeaMetrics"`
}

type ideasResponse struct {
	Results []ideaResult `json:"results"`
}

// KeywordIdeas fetches ideas for at most MaxKeywordsPerRequest seed keywords.
func (c *Client) KeywordIdeas(ctx context.Context, query domain.VolumeQuery) ([]domain.KeywordIdea, error) {
	if !c.Configured() {
		return nil, domain.WrapError(domain.ErrMissingCredentials, "adplanner keyword ideas", errors.New("developer token, customer id and access token are required"))
	}
	if len(query.Keywords) == 0 {
		return nil, nil
	}
	if len(query.Keywords) > MaxKeywordsPerRequest {
		return nil, domain.WrapError(domain.ErrInvalidInput, "adplanner keyword ideas", fmt.Errorf("%d keywords exceeds limit %d", len(query.Keywords), MaxKeywordsPerRequest))
	}

	request := ideasRequest{
		Language:           fmt.Sprintf("languageConstants/%d", query.LanguageCode),
		GeoTargetConstants: []string{fmt.Sprintf("geoTargetConstants/%d", query.LocationCode)},
		KeywordPlanNetwork: "GOOGLE_SEARCH",
		KeywordSeed:        keywordSeed{Keywords: query.Keywords},
	}

	var response ideasResponse
	err := c.executor.Execute(ctx, "adplanner.generate_keyword_ideas", func(callCtx context.Context) error {
		if err := c.limiter.Wait(callCtx); err != nil {
			return err
		}
		return c.postJSON(callCtx, c.ideasPath(), request, &response, "generate keyword ideas")
	}, nil)
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("adplanner keyword ideas", err)
	}

	ideas := make([]domain.KeywordIdea, 0, len(response.Results))
	for _, result := range response.Results {
		ideas = append(ideas, result.toDomain())
	}
	return ideas, nil
}

func (c *Client) ideasPath() string {
	customerID := strings.ReplaceAll(strings.TrimSpace(c.cfg.CustomerID), "-", "")
	return fmt.Sprintf("/%s/customers/%s:generateKeywordIdeas", c.cfg.APIVersion, customerID)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("developer-token", c.cfg.DeveloperToken)
	if c.cfg.LoginCustomerID != "" {
		req.Header.Set("login-customer-id", strings.ReplaceAll(c.cfg.LoginCustomerID, "-", ""))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("adplanner %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
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

func (r ideaResult) toDomain() domain.KeywordIdea {
	idea := domain.KeywordIdea{
		Text:               strings.TrimSpace(r.Text),
		AvgMonthlySearches: string(r.Metrics.AvgMonthlySearches),
		Competition:        competitionEnum(string(r.Metrics.Competition)),
	}
	if v, err := strconv.ParseFloat(string(r.Metrics.CompetitionIndex), 64); err == nil {
		idea.CompetitionIndex = v
	}
	if v, err := strconv.ParseInt(string(r.Metrics.LowTopOfPageBidMicros), 10, 64); err == nil {
		idea.LowTopOfPageBidMicros = &v
	}
	return idea
}

var competitionNames = map[string]int{
	"UNSPECIFIED": 0,
	"UNKNOWN":     1,
	"LOW":         2,
	"MEDIUM":      3,
	"HIGH":        4,
}

// competitionEnum accepts either the numeric enum or its name.
func competitionEnum(raw string) int {
	if raw == "" {
		return 0
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	return competitionNames[strings.ToUpper(raw)]
}

// flexValue holds a JSON scalar that may arrive quoted or bare; 64-bit
// integers are quoted on the wire.
type flexValue string

func (f *flexValue) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexValue(strings.TrimSpace(s))
		return nil
	}
	*f = flexValue(text)
	return nil
}
