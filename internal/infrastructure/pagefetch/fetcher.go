// Package pagefetch downloads raw HTML for result pages.
package pagefetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
)

const providerName = "pagefetch"

type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodySize limits downloaded bytes; zero keeps the collector default.
	MaxBodySize int
}

type Fetcher struct {
	cfg Config
}

func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "keyword-intel/1.0"
	}
	return &Fetcher{cfg: cfg}
}

// Fetch returns the body of pageURL. Non-2xx responses and non-HTML content
// are returned as *domain.ProviderError.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "fetch page", fmt.Errorf("unsupported url %q", pageURL))
	}

	options := []colly.CollectorOption{
		colly.UserAgent(f.cfg.UserAgent),
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
	}
	if f.cfg.MaxBodySize > 0 {
		options = append(options, colly.MaxBodySize(f.cfg.MaxBodySize))
	}
	c := colly.NewCollector(options...)
	c.SetRequestTimeout(f.cfg.Timeout)

	var body string
	var fetchErr error
	c.OnResponse(func(r *colly.Response) {
		contentType := strings.ToLower(r.Headers.Get("Content-Type"))
		if contentType != "" && !strings.Contains(contentType, "html") {
			fetchErr = &domain.ProviderError{
				Provider:   providerName,
				Operation:  "fetch page",
				StatusCode: r.StatusCode,
				Body:       "unexpected content type " + contentType,
			}
			return
		}
		body = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			fetchErr = &domain.ProviderError{
				Provider:   providerName,
				Operation:  "fetch page",
				StatusCode: r.StatusCode,
				Body:       domain.BodyExcerpt(r.Body, 256),
			}
			return
		}
		fetchErr = fmt.Errorf("pagefetch request: %w", err)
	})

	if err := c.Visit(parsed.String()); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("pagefetch visit: %w", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if fetchErr != nil {
		return "", fetchErr
	}
	if strings.TrimSpace(body) == "" {
		return "", &domain.ProviderError{Provider: providerName, Operation: "fetch page", Body: "empty body"}
	}
	return body, nil
}

