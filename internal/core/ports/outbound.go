package ports

import (
	"context"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
)

// CacheStore persists SERP documents and volume rows with server-assigned timestamps.
type CacheStore interface {
	GetSerp(ctx context.Context, key string) (domain.SerpLookup, error)
	PutSerp(ctx context.Context, doc *domain.SerpDocument) error
	MergeResultField(ctx context.Context, key, keyword, matchURL string, patch domain.HTMLAnalysis) error

	GetVolumes(ctx context.Context, keywords []string, region, language string) (map[string]domain.CachedVolume, error)
	PutVolumes(ctx context.Context, region, language string, volumes []domain.KeywordVolume) error
}

// ResearchRepository persists research records and their clustering state.
type ResearchRepository interface {
	Create(ctx context.Context, record *domain.ResearchRecord) error
	GetByID(ctx context.Context, id string) (*domain.ResearchRecord, error)
	// TransitionClusteringStatus moves the status to `to` unless the current status is `unless`.
	TransitionClusteringStatus(ctx context.Context, id string, to, unless domain.ClusteringStatus) error
	UpdateClusteringStatus(ctx context.Context, id string, status domain.ClusteringStatus, errMessage string) error
	SaveClusters(ctx context.Context, id string, clustering domain.Clustering) error
}

// SerpProvider is the SERP-scraping API.
type SerpProvider interface {
	Search(ctx context.Context, query domain.SerpQuery) ([]domain.SerpProviderItem, error)
}

// VolumeProvider is the ad-planning API.
type VolumeProvider interface {
	// Configured reports whether the required credentials are present.
	Configured() bool
	KeywordIdeas(ctx context.Context, query domain.VolumeQuery) ([]domain.KeywordIdea, error)
}

// PageFetcher returns the raw HTML of a page.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// HTMLAnalyzer extracts headings and a markdown rendering from raw HTML.
type HTMLAnalyzer interface {
	Analyze(rawHTML string) (domain.HTMLAnalysis, error)
}

// KeywordClusterer groups keywords with an AI model.
type KeywordClusterer interface {
	Cluster(ctx context.Context, query string, keywords []string) (domain.Clustering, error)
}

// LocaleResolver maps caller region/language codes to provider codes.
type LocaleResolver interface {
	AdsLocation(region string) int
	AdsLanguage(language string) int
	SerpCountry(region string) string
	SerpLanguage(language string) string
}

// ClusteringQueue publishes/consumes clustering jobs.
type ClusteringQueue interface {
	PublishClusteringRequested(ctx context.Context, researchID string) error
	SubscribeClusteringRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// InvalidationPublisher signals dependent views that a research record changed.
type InvalidationPublisher interface {
	PublishResearchInvalidated(ctx context.Context, researchID string) error
}

// PipelineMetrics observes cache, batch and workflow outcomes.
type PipelineMetrics interface {
	ObserveCacheLookup(cache string, outcome domain.CacheOutcome)
	ObserveBatchRun(provider string, batches, failed int)
	ObserveClustering(status domain.ClusteringStatus)
}
