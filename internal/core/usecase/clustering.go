package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
	"github.com/kirillkom/keyword-intel/internal/core/ports"
)

const (
	// MaxClusteringKeywords caps the keywords sent to the model; the stored list is untouched.
	MaxClusteringKeywords    = 80
	DefaultClusteringTimeout = 60 * time.Second
	// ClusteringStatusMargin is added to the AI timeout before a processing
	// record without a result is declared lost.
	ClusteringStatusMargin = 30 * time.Second
	statusWriteTimeout     = 10 * time.Second
)

type ClusteringPublisher interface {
	PublishClusteringRequested(ctx context.Context, researchID string) error
}

type ClusteringUseCase struct {
	repo        ports.ResearchRepository
	jobs        ClusteringPublisher
	clusterer   ports.KeywordClusterer
	invalidator ports.InvalidationPublisher
	metrics     ports.PipelineMetrics
	logger      *slog.Logger
	timeout     time.Duration
	now         func() time.Time
}

func NewClusteringUseCase(
	repo ports.ResearchRepository,
	jobs ClusteringPublisher,
	clusterer ports.KeywordClusterer,
	invalidator ports.InvalidationPublisher,
	metrics ports.PipelineMetrics,
	logger *slog.Logger,
	timeout time.Duration,
) *ClusteringUseCase {
	if timeout <= 0 {
		timeout = DefaultClusteringTimeout
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClusteringUseCase{
		repo:        repo,
		jobs:        jobs,
		clusterer:   clusterer,
		invalidator: invalidator,
		metrics:     metrics,
		logger:      logger,
		timeout:     timeout,
		now:         time.Now,
	}
}

// RequestClustering moves the record to processing and queues the AI call.
// It returns without waiting for the job; a record already processing is
// rejected with domain.ErrConflict.
func (uc *ClusteringUseCase) RequestClustering(ctx context.Context, researchID string) (domain.ClusteringRequestResult, error) {
	record, err := uc.repo.GetByID(ctx, researchID)
	if err != nil {
		return domain.ClusteringRequestResult{}, fmt.Errorf("load research record: %w", err)
	}
	if len(uniqueKeywordTexts(record.KeywordTexts(), 0)) == 0 {
		uc.logger.Info("clustering_skipped", "research_id", researchID, "reason", "no keywords")
		return domain.ClusteringRequestResult{Success: true, Skipped: true, Status: record.ClusteringStatus}, nil
	}
	uc.expireLostJob(ctx, record)

	if err := uc.repo.TransitionClusteringStatus(ctx, researchID, domain.ClusteringProcessing, domain.ClusteringProcessing); err != nil {
		return domain.ClusteringRequestResult{}, fmt.Errorf("set status=processing: %w", err)
	}
	uc.metrics.ObserveClustering(domain.ClusteringProcessing)

	if err := uc.jobs.PublishClusteringRequested(ctx, researchID); err != nil {
		workflowErr := domain.WrapError(domain.ErrWorkflow, "enqueue clustering", err)
		uc.markFailed(ctx, researchID, workflowErr)
		uc.invalidate(ctx, researchID)
		return domain.ClusteringRequestResult{}, workflowErr
	}
	return domain.ClusteringRequestResult{Success: true, Status: domain.ClusteringProcessing}, nil
}

// RunClustering performs one queued job. Jobs for records that are no longer
// processing are acknowledged without work.
func (uc *ClusteringUseCase) RunClustering(ctx context.Context, researchID string) error {
	record, err := uc.repo.GetByID(ctx, researchID)
	if err != nil {
		return fmt.Errorf("load research record: %w", err)
	}
	if record.ClusteringStatus != domain.ClusteringProcessing {
		uc.logger.Info("clustering_job_skipped", "research_id", researchID, "status", record.ClusteringStatus)
		return nil
	}

	clustering, err := uc.cluster(ctx, record)
	if err == nil {
		err = uc.persistClusters(ctx, researchID, clustering)
	}
	if err != nil {
		uc.markFailed(ctx, researchID, err)
		uc.invalidate(ctx, researchID)
		return err
	}

	uc.metrics.ObserveClustering(domain.ClusteringCompleted)
	uc.logger.Info("clustering_completed", "research_id", researchID, "clusters", len(clustering.Clusters))
	uc.invalidate(ctx, researchID)
	return nil
}

func (uc *ClusteringUseCase) cluster(ctx context.Context, record *domain.ResearchRecord) (domain.Clustering, error) {
	callCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	keywords := uniqueKeywordTexts(record.KeywordTexts(), MaxClusteringKeywords)
	clustering, err := uc.clusterer.Cluster(callCtx, record.Query, keywords)
	if err != nil {
		return domain.Clustering{}, domain.WrapError(domain.ErrWorkflow, "cluster keywords", err)
	}
	if len(clustering.Clusters) == 0 {
		return domain.Clustering{}, domain.WrapError(domain.ErrWorkflow, "cluster keywords", fmt.Errorf("empty cluster map"))
	}
	return clustering, nil
}

func (uc *ClusteringUseCase) persistClusters(ctx context.Context, researchID string, clustering domain.Clustering) error {
	if err := uc.repo.SaveClusters(ctx, researchID, clustering); err != nil {
		return domain.WrapError(domain.ErrWorkflow, "save clusters", err)
	}
	return nil
}

// PollStatus reads the status. A record holding clusters under any other
// status is corrected to completed.
func (uc *ClusteringUseCase) PollStatus(ctx context.Context, researchID string) (domain.ClusteringStatus, error) {
	record, err := uc.repo.GetByID(ctx, researchID)
	if err != nil {
		return domain.ClusteringUnset, fmt.Errorf("load research record: %w", err)
	}
	if len(record.Clusters) > 0 && record.ClusteringStatus != domain.ClusteringCompleted {
		if err := uc.repo.UpdateClusteringStatus(ctx, researchID, domain.ClusteringCompleted, ""); err != nil {
			uc.logger.Warn("clustering_status_correction_failed", "research_id", researchID, "error", err)
		} else {
			uc.logger.Info("clustering_status_corrected", "research_id", researchID, "from", record.ClusteringStatus)
		}
		return domain.ClusteringCompleted, nil
	}
	uc.expireLostJob(ctx, record)
	return record.ClusteringStatus, nil
}

// expireLostJob fails a record that has been processing longer than the AI
// timeout plus ClusteringStatusMargin. Jobs are not redelivered.
func (uc *ClusteringUseCase) expireLostJob(ctx context.Context, record *domain.ResearchRecord) {
	if record.ClusteringStatus != domain.ClusteringProcessing || record.UpdatedAt.IsZero() {
		return
	}
	age := uc.now().Sub(record.UpdatedAt)
	if age <= uc.timeout+ClusteringStatusMargin {
		return
	}
	cause := domain.WrapError(domain.ErrWorkflow, "cluster keywords",
		fmt.Errorf("no result after %s, job timed out", age.Truncate(time.Second)))
	uc.markFailed(ctx, record.ID, cause)
	uc.invalidate(ctx, record.ID)
	record.ClusteringStatus = domain.ClusteringFailed
	record.ClusteringError = cause.Error()
}

// markFailed persists the failure even if ctx already expired.
func (uc *ClusteringUseCase) markFailed(ctx context.Context, researchID string, cause error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	uc.metrics.ObserveClustering(domain.ClusteringFailed)
	uc.logger.Error("clustering_failed", "research_id", researchID, "error", cause)
	if err := uc.repo.UpdateClusteringStatus(writeCtx, researchID, domain.ClusteringFailed, cause.Error()); err != nil {
		uc.logger.Error("clustering_mark_failed_error", "research_id", researchID, "error", err)
	}
}

func (uc *ClusteringUseCase) invalidate(ctx context.Context, researchID string) {
	if uc.invalidator == nil {
		return
	}
	signalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	if err := uc.invalidator.PublishResearchInvalidated(signalCtx, researchID); err != nil {
		uc.logger.Warn("research_invalidation_failed", "research_id", researchID, "error", err)
	}
}

// uniqueKeywordTexts dedupes case-insensitively; limit <= 0 means no cap.
func uniqueKeywordTexts(keywords []string, limit int) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		key := strings.ToLower(kw)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
