package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
)

func newSerpUseCaseForTest(store *cacheStoreFake, provider *serpProviderFake) *SerpUseCase {
	return NewSerpUseCase(store, provider, &pageFetcherFake{html: "<h1>x</h1>"}, &htmlAnalyzerFake{}, localeFake{}, newMetricsFake(), discardLogger())
}

func TestGetSerpAnalysisCachesPerKeyword(t *testing.T) {
	store := newCacheStoreFake()
	provider := &serpProviderFake{}
	uc := newSerpUseCaseForTest(store, provider)

	first := uc.GetSerpAnalysis(context.Background(), []string{"soup recipe"}, "TW", "zh-TW", 0)
	if first.Error != "" {
		t.Fatalf("unexpected error: %s", first.Error)
	}
	if first.SourceInfo != domain.SourceAPI {
		t.Fatalf("expected api source, got %q", first.SourceInfo)
	}
	if len(store.puts) != 1 || store.puts[0] != "soup recipe_TW_zh-TW" {
		t.Fatalf("unexpected cache writes: %v", store.puts)
	}
	if got := provider.queries[0]; got.CountryCode != "tw" || got.ResultsPerPage != DefaultMaxResults {
		t.Fatalf("unexpected provider query: %+v", got)
	}

	second := uc.GetSerpAnalysis(context.Background(), []string{"soup recipe"}, "TW", "zh-TW", 0)
	if second.SourceInfo != domain.SourceCache {
		t.Fatalf("expected cache source, got %q", second.SourceInfo)
	}
	if provider.calls != 1 {
		t.Fatalf("expected one provider call, got %d", provider.calls)
	}

	a, _ := json.Marshal(first.Results)
	b, _ := json.Marshal(second.Results)
	if string(a) != string(b) {
		t.Fatalf("cached results differ:\n%s\n%s", a, b)
	}
	result := second.Results["soup recipe"]
	if len(result.OrganicResults) != 2 || result.OrganicResults[0].Position != 1 || result.OrganicResults[1].Position != 2 {
		t.Fatalf("unexpected organic results: %+v", result.OrganicResults)
	}
	if result.Analysis.DomainFrequency["a.example"] != 1 {
		t.Fatalf("expected www prefix stripped: %+v", result.Analysis.DomainFrequency)
	}
}

func TestGetSerpAnalysisMixedSource(t *testing.T) {
	store := newCacheStoreFake()
	provider := &serpProviderFake{}
	uc := newSerpUseCaseForTest(store, provider)

	_ = uc.GetSerpAnalysis(context.Background(), []string{"soup"}, "TW", "zh-TW", 0)
	resp := uc.GetSerpAnalysis(context.Background(), []string{"soup", "stew"}, "TW", "zh-TW", 0)

	if resp.SourceInfo != domain.SourceMixed {
		t.Fatalf("expected mixed source, got %q", resp.SourceInfo)
	}
	if got := provider.queries[1].Keywords; len(got) != 1 || got[0] != "stew" {
		t.Fatalf("expected only the missing keyword fetched, got %v", got)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected two results, got %d", len(resp.Results))
	}
}

func TestGetSerpAnalysisRefetchesStaleEntry(t *testing.T) {
	store := newCacheStoreFake()
	provider := &serpProviderFake{}
	uc := newSerpUseCaseForTest(store, provider)

	_ = uc.GetSerpAnalysis(context.Background(), []string{"soup"}, "TW", "zh-TW", 0)
	store.outcomes["soup_TW_zh-TW"] = domain.CacheStale

	resp := uc.GetSerpAnalysis(context.Background(), []string{"soup"}, "TW", "zh-TW", 0)
	if resp.SourceInfo != domain.SourceAPI {
		t.Fatalf("expected api source for stale entry, got %q", resp.SourceInfo)
	}
	if provider.calls != 2 {
		t.Fatalf("expected refetch, got %d provider calls", provider.calls)
	}
}

func TestGetSerpAnalysisValidation(t *testing.T) {
	provider := &serpProviderFake{}
	uc := newSerpUseCaseForTest(newCacheStoreFake(), provider)

	cases := []struct {
		name     string
		keywords []string
		region   string
		language string
	}{
		{"no keywords", nil, "TW", "zh-TW"},
		{"blank keywords", []string{"  "}, "TW", "zh-TW"},
		{"no region", []string{"soup"}, "", "zh-TW"},
		{"no language", []string{"soup"}, "TW", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := uc.GetSerpAnalysis(context.Background(), tc.keywords, tc.region, tc.language, 0)
			if resp.Error == "" {
				t.Fatalf("expected validation error")
			}
			if resp.Results == nil {
				t.Fatalf("expected empty results map, got nil")
			}
		})
	}
	if provider.calls != 0 {
		t.Fatalf("provider must not be called on invalid input")
	}
}

func TestGetSerpAnalysisProviderErrorIsReported(t *testing.T) {
	provider := &serpProviderFake{err: &domain.ProviderError{Provider: "serpscraper", Operation: "search", StatusCode: 500}}
	store := newCacheStoreFake()
	uc := newSerpUseCaseForTest(store, provider)

	resp := uc.GetSerpAnalysis(context.Background(), []string{"soup"}, "TW", "zh-TW", 0)
	if resp.Error == "" {
		t.Fatalf("expected error in response")
	}
	if len(resp.Results) != 0 {
		t.Fatalf("expected no results, got %d", len(resp.Results))
	}
	if len(store.puts) != 0 {
		t.Fatalf("nothing should be persisted after a provider error")
	}
}

func TestGetSerpAnalysisWriteFailureStillReturnsData(t *testing.T) {
	store := newCacheStoreFake()
	store.putErr = errors.New("connection reset")
	uc := newSerpUseCaseForTest(store, &serpProviderFake{})

	resp := uc.GetSerpAnalysis(context.Background(), []string{"soup", "stew"}, "TW", "zh-TW", 0)
	if resp.Error != "" {
		t.Fatalf("write failure must not surface: %s", resp.Error)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected two results, got %d", len(resp.Results))
	}
	if len(store.puts) != 2 {
		t.Fatalf("expected a write attempt per keyword, got %d", len(store.puts))
	}
}

func TestGetSerpAnalysisQuotaStopsRemainingWrites(t *testing.T) {
	store := newCacheStoreFake()
	store.putErr = domain.WrapError(domain.ErrQuotaExceeded, "put serp", errors.New("disk full"))
	uc := newSerpUseCaseForTest(store, &serpProviderFake{})

	resp := uc.GetSerpAnalysis(context.Background(), []string{"a", "b", "c"}, "TW", "zh-TW", 0)
	if len(resp.Results) != 3 {
		t.Fatalf("expected three results, got %d", len(resp.Results))
	}
	if len(store.puts) != 1 {
		t.Fatalf("expected writes to stop after quota error, got %d attempts", len(store.puts))
	}
}

func TestGetSerpAnalysisCapsProviderKeywords(t *testing.T) {
	provider := &serpProviderFake{}
	uc := newSerpUseCaseForTest(newCacheStoreFake(), provider)

	keywords := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		keywords = append(keywords, fmt.Sprintf("kw%d", i))
	}
	resp := uc.GetSerpAnalysis(context.Background(), keywords, "TW", "zh-TW", 5)
	if got := len(provider.queries[0].Keywords); got != MaxSerpKeywords {
		t.Fatalf("expected %d keywords sent, got %d", MaxSerpKeywords, got)
	}
	if provider.queries[0].ResultsPerPage != 5 {
		t.Fatalf("expected results per page 5, got %d", provider.queries[0].ResultsPerPage)
	}
	if len(resp.Results) != MaxSerpKeywords {
		t.Fatalf("expected %d results, got %d", MaxSerpKeywords, len(resp.Results))
	}
	if len(resp.Skipped) != 2 || resp.Skipped[0] != "kw10" || resp.Skipped[1] != "kw11" {
		t.Fatalf("expected kw10 and kw11 skipped, got %v", resp.Skipped)
	}
	if _, ok := resp.Results["kw11"]; ok {
		t.Fatalf("skipped keyword must not have a result")
	}
}

func TestGetSerpAnalysisUnderCapSkipsNothing(t *testing.T) {
	uc := newSerpUseCaseForTest(newCacheStoreFake(), &serpProviderFake{})

	resp := uc.GetSerpAnalysis(context.Background(), []string{"soup", "stew"}, "TW", "zh-TW", 0)
	if resp.Skipped != nil {
		t.Fatalf("expected no skipped keywords, got %v", resp.Skipped)
	}
}

func TestGetSerpAnalysisFetchFailureDropsCachedResults(t *testing.T) {
	store := newCacheStoreFake()
	provider := &serpProviderFake{}
	uc := newSerpUseCaseForTest(store, provider)

	_ = uc.GetSerpAnalysis(context.Background(), []string{"soup"}, "TW", "zh-TW", 0)
	provider.err = &domain.ProviderError{Provider: "serpscraper", Operation: "search", StatusCode: 503}
	resp := uc.GetSerpAnalysis(context.Background(), []string{"soup", "stew"}, "TW", "zh-TW", 0)

	if resp.Error == "" {
		t.Fatalf("expected error in response")
	}
	if len(resp.Results) != 0 {
		t.Fatalf("expected empty results after failed fetch, got %v", resp.Results)
	}
	if resp.SourceInfo != domain.SourceAPI {
		t.Fatalf("expected api source, got %q", resp.SourceInfo)
	}
}

func TestBuildKeywordResultDefaultsPositions(t *testing.T) {
	five := 5
	item := domain.SerpProviderItem{
		Query: "soup",
		OrganicResults: []domain.ProviderOrganicResult{
			{Title: "a", URL: "https://a.example"},
			{Title: "b", URL: "https://b.example"},
			{Position: &five, Title: "c", URL: "https://c.example"},
			{Title: "d", URL: "https://d.example"},
		},
	}
	got := buildKeywordResult("soup", item, 10)
	want := []int{1, 2, 5, 6}
	for i, r := range got.OrganicResults {
		if r.Position != want[i] {
			t.Fatalf("position[%d] = %d, want %d", i, r.Position, want[i])
		}
	}
	if got.Analysis.TotalResults != 4 {
		t.Fatalf("expected total 4, got %d", got.Analysis.TotalResults)
	}

	capped := buildKeywordResult("soup", item, 2)
	if len(capped.OrganicResults) != 2 {
		t.Fatalf("expected cap at 2, got %d", len(capped.OrganicResults))
	}
}

func TestAssignItemsFallsBackToOrder(t *testing.T) {
	items := []domain.SerpProviderItem{
		{Query: "STEW", OrganicResults: []domain.ProviderOrganicResult{{Title: "stew"}}},
		{Query: "something else", OrganicResults: []domain.ProviderOrganicResult{{Title: "other"}}},
	}
	got := assignItems([]string{"soup", "stew"}, items, 10)
	if got["stew"].OrganicResults[0].Title != "stew" {
		t.Fatalf("expected case-insensitive query match, got %+v", got["stew"])
	}
	if got["soup"].OrganicResults[0].Title != "other" {
		t.Fatalf("expected leftover item assigned to soup, got %+v", got["soup"])
	}
}

func TestAnalyzeHTMLContentReturnsNilOnFailure(t *testing.T) {
	uc := NewSerpUseCase(newCacheStoreFake(), &serpProviderFake{}, &pageFetcherFake{err: errors.New("timeout")}, &htmlAnalyzerFake{}, localeFake{}, nil, discardLogger())
	if got := uc.AnalyzeHTMLContent(context.Background(), "https://a.example"); got != nil {
		t.Fatalf("expected nil on fetch failure, got %+v", got)
	}

	uc = NewSerpUseCase(newCacheStoreFake(), &serpProviderFake{}, &pageFetcherFake{html: "<p>x</p>"}, &htmlAnalyzerFake{err: errors.New("bad html")}, localeFake{}, nil, discardLogger())
	if got := uc.AnalyzeHTMLContent(context.Background(), "https://a.example"); got != nil {
		t.Fatalf("expected nil on analysis failure, got %+v", got)
	}
}

func TestEnrichResultMergesAnalysis(t *testing.T) {
	store := newCacheStoreFake()
	uc := newSerpUseCaseForTest(store, &serpProviderFake{})

	analysis, err := uc.EnrichResult(context.Background(), " soup ", "TW", "zh-TW", "https://a.example/soup")
	if err != nil {
		t.Fatalf("EnrichResult() error: %v", err)
	}
	if analysis == nil || analysis.Title != "title" {
		t.Fatalf("unexpected analysis: %+v", analysis)
	}
	if len(store.merges) != 1 || store.merges[0] != "soup_TW_zh-TW|soup|https://a.example/soup" {
		t.Fatalf("unexpected merges: %v", store.merges)
	}
}

func TestEnrichResultErrors(t *testing.T) {
	store := newCacheStoreFake()
	store.mergeErr = errors.New("db down")
	uc := newSerpUseCaseForTest(store, &serpProviderFake{})

	analysis, err := uc.EnrichResult(context.Background(), "soup", "TW", "zh-TW", "https://a.example")
	if err == nil || !strings.Contains(err.Error(), "merge html analysis") {
		t.Fatalf("expected merge error, got %v", err)
	}
	if analysis == nil {
		t.Fatalf("analysis must be returned even when the merge fails")
	}

	if _, err := uc.EnrichResult(context.Background(), "soup", "TW", "zh-TW", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty url, got %v", err)
	}

	failing := NewSerpUseCase(store, &serpProviderFake{}, &pageFetcherFake{err: errors.New("404")}, &htmlAnalyzerFake{}, localeFake{}, nil, discardLogger())
	if _, err := failing.EnrichResult(context.Background(), "soup", "TW", "zh-TW", "https://a.example"); !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
}
