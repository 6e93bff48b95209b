package domain

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	SourceCache = "cache"
	SourceAPI   = "api"
	SourceMixed = "mixed"
)

type OrganicResult struct {
	Position     int           `json:"position"`
	Title        string        `json:"title"`
	URL          string        `json:"url"`
	Description  string        `json:"description"`
	DisplayedURL string        `json:"displayedUrl,omitempty"`
	HTMLAnalysis *HTMLAnalysis `json:"htmlAnalysis,omitempty"`
}

type HTMLAnalysis struct {
	Title         string    `json:"title"`
	H1            []string  `json:"h1"`
	H2            []string  `json:"h2"`
	H3            []string  `json:"h3"`
	H1Consistency bool      `json:"h1Consistency"`
	Markdown      string    `json:"markdown"`
	AnalyzedAt    time.Time `json:"analyzedAt"`
}

type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

type SerpAnalysis struct {
	TotalResults         int            `json:"totalResults"`
	DomainFrequency      map[string]int `json:"domainFrequency"`
	TopDomains           []DomainCount  `json:"topDomains"`
	AvgTitleLength       float64        `json:"avgTitleLength"`
	AvgDescriptionLength float64        `json:"avgDescriptionLength"`
}

type RelatedQuery struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

type PeopleAlsoAsk struct {
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
}

type AIOverview struct {
	Content string   `json:"content"`
	Sources []string `json:"sources,omitempty"`
}

type KeywordSerpResult struct {
	Query          string          `json:"query"`
	OrganicResults []OrganicResult `json:"organicResults"`
	Analysis       SerpAnalysis    `json:"analysis"`
	RelatedQueries []RelatedQuery  `json:"relatedQueries,omitempty"`
	PeopleAlsoAsk  []PeopleAlsoAsk `json:"peopleAlsoAsk,omitempty"`
	AIOverview     *AIOverview     `json:"aiOverview,omitempty"`
}

// SerpDocument is the persisted cache entry for one cache key.
type SerpDocument struct {
	Key       string                       `json:"key"`
	Keywords  []string                     `json:"keywords"`
	Region    string                       `json:"region"`
	Language  string                       `json:"language"`
	Results   map[string]KeywordSerpResult `json:"results"`
	UpdatedAt time.Time                    `json:"updatedAt"`
}

type SerpResponse struct {
	Results    map[string]KeywordSerpResult `json:"results"`
	SourceInfo string                       `json:"sourceInfo"`
	Partial    bool                         `json:"partial,omitempty"`
	// Skipped holds keywords dropped by the per-call provider cap.
	Skipped    []string                     `json:"skipped,omitempty"`
	Error      string                       `json:"error,omitempty"`
}

// SerpQuery is what the SERP provider receives per call.
type SerpQuery struct {
	Keywords       []string
	CountryCode    string
	LanguageCode   string
	ResultsPerPage int
}

// SerpProviderItem is one provider result item, decoded at the client boundary.
type SerpProviderItem struct {
	Query          string
	OrganicResults []ProviderOrganicResult
	RelatedQueries []RelatedQuery
	PeopleAlsoAsk  []PeopleAlsoAsk
	AIOverview     *AIOverview
}

type ProviderOrganicResult struct {
	Position     *int
	Title        string
	URL          string
	Description  string
	DisplayedURL string
}

// AnalyzeOrganicResults derives the aggregate analysis from the result list in one pass.
func AnalyzeOrganicResults(results []OrganicResult) SerpAnalysis {
	analysis := SerpAnalysis{
		TotalResults:    len(results),
		DomainFrequency: map[string]int{},
		TopDomains:      []DomainCount{},
	}
	if len(results) == 0 {
		return analysis
	}

	titleChars, descChars := 0, 0
	for _, r := range results {
		titleChars += len([]rune(r.Title))
		descChars += len([]rune(r.Description))
		if host := Hostname(r.URL); host != "" {
			analysis.DomainFrequency[host]++
		}
	}
	analysis.AvgTitleLength = Round2(float64(titleChars) / float64(len(results)))
	analysis.AvgDescriptionLength = Round2(float64(descChars) / float64(len(results)))

	for host, count := range analysis.DomainFrequency {
		analysis.TopDomains = append(analysis.TopDomains, DomainCount{Domain: host, Count: count})
	}
	sort.Slice(analysis.TopDomains, func(i, j int) bool {
		a, b := analysis.TopDomains[i], analysis.TopDomains[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Domain < b.Domain
	})
	if len(analysis.TopDomains) > 10 {
		analysis.TopDomains = analysis.TopDomains[:10]
	}
	return analysis
}

// Hostname returns the lower-cased host of rawURL without a leading "www.".
func Hostname(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}
