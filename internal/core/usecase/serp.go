package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
	"github.com/kirillkom/keyword-intel/internal/core/keyspace"
	"github.com/kirillkom/keyword-intel/internal/core/ports"
)

const (
	DefaultMaxResults = 100
	// MaxSerpKeywords is the most keywords sent to the SERP provider per call.
	MaxSerpKeywords   = 10
	maxResultsPerPage = 100
)

type SerpUseCase struct {
	store    ports.CacheStore
	provider ports.SerpProvider
	fetcher  ports.PageFetcher
	analyzer ports.HTMLAnalyzer
	locales  ports.LocaleResolver
	metrics  ports.PipelineMetrics
	logger   *slog.Logger
}

func NewSerpUseCase(
	store ports.CacheStore,
	provider ports.SerpProvider,
	fetcher ports.PageFetcher,
	analyzer ports.HTMLAnalyzer,
	locales ports.LocaleResolver,
	metrics ports.PipelineMetrics,
	logger *slog.Logger,
) *SerpUseCase {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SerpUseCase{
		store:    store,
		provider: provider,
		fetcher:  fetcher,
		analyzer: analyzer,
		locales:  locales,
		metrics:  metrics,
		logger:   logger,
	}
}

// ValidateSerpRequest rejects requests that must fail before any I/O.
func ValidateSerpRequest(keywords []string, region, language string) error {
	if len(normalizeKeywords(keywords)) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate serp request", errors.New("keywords are required"))
	}
	return validateLocale("validate serp request", region, language)
}

// GetSerpAnalysis serves each keyword from its own cache entry when fresh and
// fetches the rest. Failures are reported in the response, never raised; a
// failed fetch empties the response even when some keywords were cached.
// Keywords past MaxSerpKeywords are not fetched and are listed in Skipped.
func (uc *SerpUseCase) GetSerpAnalysis(ctx context.Context, keywords []string, region, language string, maxResults int) (resp domain.SerpResponse) {
	resp = domain.SerpResponse{Results: map[string]domain.KeywordSerpResult{}, SourceInfo: domain.SourceAPI}
	defer func() {
		if r := recover(); r != nil {
			uc.logger.Error("serp_analysis_panic", "panic", r)
			resp = domain.SerpResponse{
				Results:    map[string]domain.KeywordSerpResult{},
				SourceInfo: resp.SourceInfo,
				Error:      fmt.Sprintf("internal error: %v", r),
			}
		}
	}()

	if err := ValidateSerpRequest(keywords, region, language); err != nil {
		resp.Error = err.Error()
		return resp
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	keywords = normalizeKeywords(keywords)

	var missing []string
	for _, kw := range keywords {
		result, partial, ok := uc.lookupKeyword(ctx, kw, region, language)
		if !ok {
			missing = append(missing, kw)
			continue
		}
		resp.Results[kw] = truncateResult(result, maxResults)
		resp.Partial = resp.Partial || partial
	}
	if len(missing) == 0 {
		resp.SourceInfo = domain.SourceCache
		return resp
	}
	if len(resp.Results) > 0 {
		resp.SourceInfo = domain.SourceMixed
	}

	if len(missing) > MaxSerpKeywords {
		uc.logger.Warn("serp_keywords_capped", "requested", len(missing), "limit", MaxSerpKeywords)
		resp.Skipped = append([]string(nil), missing[MaxSerpKeywords:]...)
		missing = missing[:MaxSerpKeywords]
	}
	fetched, err := uc.fetch(ctx, missing, region, language, maxResults)
	if err != nil {
		uc.logger.Error("serp_fetch_failed", "keywords", len(missing), "error", err)
		return domain.SerpResponse{
			Results:    map[string]domain.KeywordSerpResult{},
			SourceInfo: domain.SourceAPI,
			Error:      err.Error(),
		}
	}

	uc.persist(ctx, fetched, region, language)
	for kw, result := range fetched {
		resp.Results[kw] = result
	}
	return resp
}

func (uc *SerpUseCase) lookupKeyword(ctx context.Context, keyword, region, language string) (domain.KeywordSerpResult, bool, bool) {
	key, err := keyspace.Derive([]string{keyword}, region, language, "")
	if err != nil {
		return domain.KeywordSerpResult{}, false, false
	}
	lookup, err := uc.store.GetSerp(ctx, key)
	if err != nil {
		uc.logger.Warn("serp_cache_read_failed", "key", key, "error", err)
		uc.metrics.ObserveCacheLookup("serp", domain.CacheMiss)
		return domain.KeywordSerpResult{}, false, false
	}
	uc.metrics.ObserveCacheLookup("serp", lookup.Outcome)
	if lookup.Outcome != domain.CacheFresh || lookup.Document == nil {
		uc.logger.Debug("serp_cache_miss", "key", key, "outcome", lookup.Outcome)
		return domain.KeywordSerpResult{}, false, false
	}
	result, ok := lookup.Document.Results[keyword]
	if !ok {
		return domain.KeywordSerpResult{}, false, false
	}
	uc.logger.Debug("serp_cache_hit", "key", key, "partial", lookup.Partial)
	return result, lookup.Partial, true
}

func (uc *SerpUseCase) fetch(ctx context.Context, keywords []string, region, language string, maxResults int) (map[string]domain.KeywordSerpResult, error) {
	perPage := maxResults
	if perPage > maxResultsPerPage {
		perPage = maxResultsPerPage
	}
	items, err := uc.provider.Search(ctx, domain.SerpQuery{
		Keywords:       keywords,
		CountryCode:    uc.locales.SerpCountry(region),
		LanguageCode:   uc.locales.SerpLanguage(language),
		ResultsPerPage: perPage,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch serp: %w", err)
	}
	return assignItems(keywords, items, maxResults), nil
}

// assignItems matches provider items to requested keywords by query text and
// hands unmatched items to unmatched keywords in order.
func assignItems(keywords []string, items []domain.SerpProviderItem, maxResults int) map[string]domain.KeywordSerpResult {
	byQuery := make(map[string]string, len(keywords))
	for _, kw := range keywords {
		byQuery[strings.ToLower(kw)] = kw
	}
	out := make(map[string]domain.KeywordSerpResult, len(items))
	var leftovers []domain.SerpProviderItem
	for _, item := range items {
		kw, ok := byQuery[strings.ToLower(strings.TrimSpace(item.Query))]
		if !ok {
			leftovers = append(leftovers, item)
			continue
		}
		if _, taken := out[kw]; taken {
			continue
		}
		out[kw] = buildKeywordResult(kw, item, maxResults)
	}
	for _, kw := range keywords {
		if len(leftovers) == 0 {
			break
		}
		if _, done := out[kw]; done {
			continue
		}
		out[kw] = buildKeywordResult(kw, leftovers[0], maxResults)
		leftovers = leftovers[1:]
	}
	return out
}

func buildKeywordResult(keyword string, item domain.SerpProviderItem, maxResults int) domain.KeywordSerpResult {
	organic := make([]domain.OrganicResult, 0, len(item.OrganicResults))
	next := 1
	for _, r := range item.OrganicResults {
		if len(organic) == maxResults {
			break
		}
		position := next
		if r.Position != nil && *r.Position > 0 {
			position = *r.Position
		}
		next = position + 1
		organic = append(organic, domain.OrganicResult{
			Position:     position,
			Title:        strings.TrimSpace(r.Title),
			URL:          strings.TrimSpace(r.URL),
			Description:  strings.TrimSpace(r.Description),
			DisplayedURL: r.DisplayedURL,
		})
	}
	return domain.KeywordSerpResult{
		Query:          keyword,
		OrganicResults: organic,
		Analysis:       domain.AnalyzeOrganicResults(organic),
		RelatedQueries: item.RelatedQueries,
		PeopleAlsoAsk:  item.PeopleAlsoAsk,
		AIOverview:     item.AIOverview,
	}
}

// persist writes one document per keyword. Failures never fail the call; a
// quota failure skips the remaining writes.
func (uc *SerpUseCase) persist(ctx context.Context, results map[string]domain.KeywordSerpResult, region, language string) {
	for kw, result := range results {
		key, err := keyspace.Derive([]string{kw}, region, language, "")
		if err != nil {
			continue
		}
		doc := &domain.SerpDocument{
			Key:      key,
			Keywords: []string{kw},
			Region:   region,
			Language: language,
			Results:  map[string]domain.KeywordSerpResult{kw: result},
		}
		if err := uc.store.PutSerp(ctx, doc); err != nil {
			if domain.IsKind(err, domain.ErrQuotaExceeded) {
				uc.logger.Warn("serp_cache_write_skipped", "reason", "quota exceeded", "key", key, "error", err)
				return
			}
			uc.logger.Error("serp_cache_write_failed", "key", key, "error", err)
		}
	}
}

// AnalyzeHTMLContent fetches and analyzes a page; nil on any failure.
func (uc *SerpUseCase) AnalyzeHTMLContent(ctx context.Context, pageURL string) *domain.HTMLAnalysis {
	raw, err := uc.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		uc.logger.Warn("html_fetch_failed", "url", pageURL, "error", err)
		return nil
	}
	analysis, err := uc.analyzer.Analyze(raw)
	if err != nil {
		uc.logger.Warn("html_analysis_failed", "url", pageURL, "error", err)
		return nil
	}
	return &analysis
}

// EnrichResult analyzes pageURL and attaches the analysis to the cached result
// with that URL under keyword. The analysis is returned even when the merge fails.
func (uc *SerpUseCase) EnrichResult(ctx context.Context, keyword, region, language, pageURL string) (*domain.HTMLAnalysis, error) {
	keyword = strings.TrimSpace(keyword)
	if err := ValidateSerpRequest([]string{keyword}, region, language); err != nil {
		return nil, err
	}
	if strings.TrimSpace(pageURL) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "enrich result", errors.New("url is required"))
	}

	analysis := uc.AnalyzeHTMLContent(ctx, pageURL)
	if analysis == nil {
		return nil, domain.WrapError(domain.ErrProvider, "enrich result", fmt.Errorf("analysis of %s failed", pageURL))
	}
	key, err := keyspace.Derive([]string{keyword}, region, language, "")
	if err != nil {
		return analysis, err
	}
	if err := uc.store.MergeResultField(ctx, key, keyword, pageURL, *analysis); err != nil {
		return analysis, fmt.Errorf("merge html analysis: %w", err)
	}
	return analysis, nil
}

func truncateResult(result domain.KeywordSerpResult, maxResults int) domain.KeywordSerpResult {
	if len(result.OrganicResults) <= maxResults {
		return result
	}
	result.OrganicResults = result.OrganicResults[:maxResults]
	result.Analysis = domain.AnalyzeOrganicResults(result.OrganicResults)
	return result
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

func validateLocale(operation, region, language string) error {
	if strings.TrimSpace(region) == "" {
		return domain.WrapError(domain.ErrInvalidInput, operation, errors.New("region is required"))
	}
	if strings.TrimSpace(language) == "" {
		return domain.WrapError(domain.ErrInvalidInput, operation, errors.New("language is required"))
	}
	return nil
}

type noopMetrics struct{}

func (noopMetrics) ObserveCacheLookup(string, domain.CacheOutcome) {}
func (noopMetrics) ObserveBatchRun(string, int, int)               {}
func (noopMetrics) ObserveClustering(domain.ClusteringStatus)      {}
