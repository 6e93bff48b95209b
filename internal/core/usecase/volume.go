package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/keyword-intel/internal/core/batch"
	"github.com/kirillkom/keyword-intel/internal/core/domain"
	"github.com/kirillkom/keyword-intel/internal/core/ports"
	"github.com/kirillkom/keyword-intel/internal/core/scriptfilter"
)

const DefaultVolumePacing = 500 * time.Millisecond

type VolumeOptions struct {
	BatchSize int
	Pacing    time.Duration
}

type VolumeUseCase struct {
	store    ports.CacheStore
	provider ports.VolumeProvider
	locales  ports.LocaleResolver
	metrics  ports.PipelineMetrics
	logger   *slog.Logger
	opts     VolumeOptions
	now      func() time.Time
}

func NewVolumeUseCase(
	store ports.CacheStore,
	provider ports.VolumeProvider,
	locales ports.LocaleResolver,
	metrics ports.PipelineMetrics,
	logger *slog.Logger,
	opts VolumeOptions,
) *VolumeUseCase {
	if opts.BatchSize <= 0 {
		opts.BatchSize = batch.DefaultSize
	}
	if opts.Pacing < 0 {
		opts.Pacing = DefaultVolumePacing
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VolumeUseCase{
		store:    store,
		provider: provider,
		locales:  locales,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

// EstimateProcessingTime is the a-priori duration estimate in whole seconds.
func EstimateProcessingTime(keywordCount int, withVolume bool) float64 {
	n := float64(keywordCount)
	estimate := 1.0 + 0.1*n
	if withVolume {
		estimate += 0.5*n + 2*math.Ceil(n/float64(batch.DefaultSize))
	}
	return math.Ceil(estimate)
}

// GetSearchVolume resolves volumes for keywords. Only validation and missing
// credentials are returned as errors; provider trouble is reported in the response.
func (uc *VolumeUseCase) GetSearchVolume(ctx context.Context, keywords []string, region, language string) (domain.VolumeResponse, error) {
	start := uc.now()
	if len(keywords) == 0 {
		return domain.VolumeResponse{}, domain.WrapError(domain.ErrInvalidInput, "get search volume", errors.New("keywords are required"))
	}
	if err := validateLocale("get search volume", region, language); err != nil {
		return domain.VolumeResponse{}, err
	}

	cleaned := scriptfilter.DedupeCaseInsensitive(scriptfilter.FilterSimplified(keywords))
	for i := range cleaned {
		cleaned[i] = strings.TrimSpace(cleaned[i])
	}
	if !uc.provider.Configured() {
		return domain.VolumeResponse{}, domain.WrapError(domain.ErrMissingCredentials, "get search volume", errors.New("ad planner credentials are not configured"))
	}

	resp := domain.VolumeResponse{
		Results:        []domain.KeywordVolume{},
		ProcessingTime: domain.ProcessingTime{Estimated: EstimateProcessingTime(len(cleaned), true)},
		SourceInfo:     domain.SourceAPI,
	}
	if len(cleaned) == 0 {
		resp.ProcessingTime.Actual = domain.Round2(uc.now().Sub(start).Seconds())
		return resp, nil
	}

	cached := uc.cachedVolumes(ctx, cleaned, region, language)
	var remaining []string
	var rows []domain.KeywordVolume
	for _, kw := range cleaned {
		if hit, ok := cached[volumeKey(kw)]; ok {
			rows = append(rows, hit.Volume)
			uc.metrics.ObserveCacheLookup("volume", domain.CacheFresh)
			continue
		}
		uc.metrics.ObserveCacheLookup("volume", domain.CacheMiss)
		remaining = append(remaining, kw)
	}

	var fetched []domain.KeywordVolume
	if len(remaining) > 0 {
		var err error
		fetched, err = uc.fetch(ctx, remaining, region, language, &resp)
		if err != nil {
			resp.Results = []domain.KeywordVolume{}
			resp.Error = err.Error()
			resp.ProcessingTime.Actual = domain.Round2(uc.now().Sub(start).Seconds())
			return resp, nil
		}
	}

	switch {
	case len(remaining) == 0:
		resp.SourceInfo = domain.SourceCache
	case len(rows) > 0:
		resp.SourceInfo = domain.SourceMixed
	}

	resp.Results = mergeVolumes(rows, fetched)
	uc.persist(ctx, region, language, fetched)
	resp.ProcessingTime.Actual = domain.Round2(uc.now().Sub(start).Seconds())
	return resp, nil
}

func (uc *VolumeUseCase) cachedVolumes(ctx context.Context, keywords []string, region, language string) map[string]domain.CachedVolume {
	cached, err := uc.store.GetVolumes(ctx, keywords, region, language)
	if err != nil {
		uc.logger.Warn("volume_cache_read_failed", "keywords", len(keywords), "error", err)
		return nil
	}
	return cached
}

// fetch runs the paced batches. A canceled run returns an error so nothing
// fetched in it is kept or persisted.
func (uc *VolumeUseCase) fetch(ctx context.Context, keywords []string, region, language string, resp *domain.VolumeResponse) ([]domain.KeywordVolume, error) {
	query := domain.VolumeQuery{
		LocationCode: uc.locales.AdsLocation(region),
		LanguageCode: uc.locales.AdsLanguage(language),
	}
	result := batch.Run(ctx, keywords, batch.Options{
		Size:   uc.opts.BatchSize,
		Pacing: uc.opts.Pacing,
		Name:   "adplanner",
		Logger: uc.logger,
	}, func(ctx context.Context, chunk []string) ([]domain.KeywordIdea, error) {
		q := query
		q.Keywords = chunk
		return uc.provider.KeywordIdeas(ctx, q)
	})
	uc.metrics.ObserveBatchRun("adplanner", result.Batches, result.FailedBatches)
	resp.FailedBatches = result.FailedBatches

	if result.Err != nil {
		return nil, fmt.Errorf("volume lookup aborted: %w", result.Err)
	}
	if result.Batches > 0 && result.FailedBatches == result.Batches {
		return nil, fmt.Errorf("all %d volume batches failed: %w", result.Batches, errors.Join(result.Errors...))
	}
	return mapIdeas(result.Items), nil
}

// mapIdeas converts provider ideas, keeping the first occurrence of each
// keyword and dropping Simplified-script ideas.
func mapIdeas(ideas []domain.KeywordIdea) []domain.KeywordVolume {
	seen := make(map[string]struct{}, len(ideas))
	out := make([]domain.KeywordVolume, 0, len(ideas))
	for _, idea := range ideas {
		text := strings.TrimSpace(idea.Text)
		key := volumeKey(text)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		if scriptfilter.Classify(text) == scriptfilter.Simplified {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, domain.KeywordVolume{
			Keyword:          text,
			SearchVolume:     parseMonthlySearches(idea.AvgMonthlySearches),
			Competition:      domain.CompetitionFromEnum(idea.Competition),
			CompetitionIndex: clampCompetitionIndex(idea.CompetitionIndex),
			CPC:              cpcFromMicros(idea.LowTopOfPageBidMicros),
		})
	}
	return out
}

// mergeVolumes combines cached rows and fetched rows (cached wins) and sorts
// by search volume descending, keeping input order for ties.
func mergeVolumes(cached, fetched []domain.KeywordVolume) []domain.KeywordVolume {
	seen := make(map[string]struct{}, len(cached)+len(fetched))
	out := make([]domain.KeywordVolume, 0, len(cached)+len(fetched))
	for _, group := range [][]domain.KeywordVolume{cached, fetched} {
		for _, row := range group {
			key := volumeKey(row.Keyword)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SearchVolume > out[j].SearchVolume
	})
	return out
}

func (uc *VolumeUseCase) persist(ctx context.Context, region, language string, rows []domain.KeywordVolume) {
	if len(rows) == 0 {
		return
	}
	if err := uc.store.PutVolumes(ctx, region, language, rows); err != nil {
		if domain.IsKind(err, domain.ErrQuotaExceeded) {
			uc.logger.Warn("volume_cache_write_skipped", "reason", "quota exceeded", "rows", len(rows), "error", err)
			return
		}
		uc.logger.Error("volume_cache_write_failed", "rows", len(rows), "error", err)
	}
}

func parseMonthlySearches(raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func clampCompetitionIndex(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return domain.Round2(v)
}

func cpcFromMicros(micros *int64) *float64 {
	if micros == nil || *micros < 0 {
		return nil
	}
	cpc := domain.Round2(float64(*micros) / 1_000_000)
	return &cpc
}

func volumeKey(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}
