package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
)

type volumeServiceFake struct {
	resp domain.VolumeResponse
	err  error
}

func (f *volumeServiceFake) GetSearchVolume(context.Context, []string, string, string) (domain.VolumeResponse, error) {
	return f.resp, f.err
}

func TestCreateResearchStoresVolumes(t *testing.T) {
	repo := newResearchRepoFake()
	volumes := &volumeServiceFake{resp: domain.VolumeResponse{Results: []domain.KeywordVolume{{Keyword: "soup", SearchVolume: 10}}}}
	uc := NewResearchUseCase(repo, volumes)

	record, err := uc.CreateResearch(context.Background(), " soup ideas ", "TW", "zh-TW", []string{"soup"})
	if err != nil {
		t.Fatalf("CreateResearch() error: %v", err)
	}
	if record.ID == "" || record.Query != "soup ideas" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.ClusteringStatus != domain.ClusteringUnset {
		t.Fatalf("expected unset clustering status, got %q", record.ClusteringStatus)
	}
	stored, err := uc.GetResearch(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("GetResearch() error: %v", err)
	}
	if len(stored.Keywords) != 1 || stored.Keywords[0].Keyword != "soup" {
		t.Fatalf("unexpected stored keywords: %+v", stored.Keywords)
	}
}

func TestCreateResearchErrors(t *testing.T) {
	repo := newResearchRepoFake()

	uc := NewResearchUseCase(repo, &volumeServiceFake{})
	if _, err := uc.CreateResearch(context.Background(), " ", "TW", "zh-TW", []string{"soup"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	uc = NewResearchUseCase(repo, &volumeServiceFake{err: domain.ErrMissingCredentials})
	if _, err := uc.CreateResearch(context.Background(), "soup", "TW", "zh-TW", []string{"soup"}); !errors.Is(err, domain.ErrMissingCredentials) {
		t.Fatalf("expected missing credentials, got %v", err)
	}

	uc = NewResearchUseCase(repo, &volumeServiceFake{resp: domain.VolumeResponse{Error: "all 1 volume batches failed"}})
	if _, err := uc.CreateResearch(context.Background(), "soup", "TW", "zh-TW", []string{"soup"}); !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatalf("no record should be created on failure")
	}
}

func TestGetResearchNotFound(t *testing.T) {
	uc := NewResearchUseCase(newResearchRepoFake(), &volumeServiceFake{})
	if _, err := uc.GetResearch(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
