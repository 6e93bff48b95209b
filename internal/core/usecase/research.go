package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
	"github.com/kirillkom/keyword-intel/internal/core/ports"
)

type ResearchUseCase struct {
	repo    ports.ResearchRepository
	volumes ports.VolumeService
}

func NewResearchUseCase(repo ports.ResearchRepository, volumes ports.VolumeService) *ResearchUseCase {
	return &ResearchUseCase{repo: repo, volumes: volumes}
}

// CreateResearch resolves volumes for keywords and stores them as a new
// research record with clustering not yet requested.
func (uc *ResearchUseCase) CreateResearch(ctx context.Context, query, region, language string, keywords []string) (*domain.ResearchRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create research", errors.New("query is required"))
	}

	volumes, err := uc.volumes.GetSearchVolume(ctx, keywords, region, language)
	if err != nil {
		return nil, err
	}
	if volumes.Error != "" && len(volumes.Results) == 0 {
		return nil, domain.WrapError(domain.ErrProvider, "create research", errors.New(volumes.Error))
	}

	now := time.Now().UTC()
	record := &domain.ResearchRecord{
		ID:               uuid.NewString(),
		Query:            query,
		Region:           region,
		Language:         language,
		Keywords:         volumes.Results,
		ClusteringStatus: domain.ClusteringUnset,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := uc.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create research record: %w", err)
	}
	return record, nil
}

func (uc *ResearchUseCase) GetResearch(ctx context.Context, id string) (*domain.ResearchRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get research", errors.New("id is required"))
	}
	return uc.repo.GetByID(ctx, id)
}
