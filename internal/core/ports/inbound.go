package ports

import (
	"context"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
)

// SerpService is the inbound contract for cached SERP analysis.
type SerpService interface {
	GetSerpAnalysis(ctx context.Context, keywords []string, region, language string, maxResults int) domain.SerpResponse
	AnalyzeHTMLContent(ctx context.Context, pageURL string) *domain.HTMLAnalysis
	EnrichResult(ctx context.Context, keyword, region, language, pageURL string) (*domain.HTMLAnalysis, error)
}

// VolumeService is the inbound contract for keyword search-volume lookups.
type VolumeService interface {
	GetSearchVolume(ctx context.Context, keywords []string, region, language string) (domain.VolumeResponse, error)
}

// ResearchService creates and reads research records.
type ResearchService interface {
	CreateResearch(ctx context.Context, query, region, language string, keywords []string) (*domain.ResearchRecord, error)
	GetResearch(ctx context.Context, id string) (*domain.ResearchRecord, error)
}

// ClusteringService is the inbound contract for the asynchronous clustering workflow.
type ClusteringService interface {
	RequestClustering(ctx context.Context, researchID string) (domain.ClusteringRequestResult, error)
	PollStatus(ctx context.Context, researchID string) (domain.ClusteringStatus, error)
}

// ClusteringRunner performs a queued clustering job.
type ClusteringRunner interface {
	RunClustering(ctx context.Context, researchID string) error
}
