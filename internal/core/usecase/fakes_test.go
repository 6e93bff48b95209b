package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type localeFake struct{}

func (localeFake) AdsLocation(string) int              { return 2158 }
func (localeFake) AdsLanguage(string) int              { return 1018 }
func (localeFake) SerpCountry(region string) string    { return strings.ToLower(region) }
func (localeFake) SerpLanguage(language string) string { return language }

// cacheStoreFake round-trips documents through JSON like the real store.
type cacheStoreFake struct {
	mu       sync.Mutex
	serp     map[string][]byte
	outcomes map[string]domain.CacheOutcome
	putErr   error
	puts     []string
	merges   []string
	mergeErr error

	volumes    map[string]domain.KeywordVolume
	volumePuts [][]domain.KeywordVolume
	getVolErr  error
}

func newCacheStoreFake() *cacheStoreFake {
	return &cacheStoreFake{
		serp:     map[string][]byte{},
		outcomes: map[string]domain.CacheOutcome{},
		volumes:  map[string]domain.KeywordVolume{},
	}
}

func (f *cacheStoreFake) GetSerp(_ context.Context, key string) (domain.SerpLookup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.serp[key]
	if !ok {
		return domain.SerpLookup{Outcome: domain.CacheMiss}, nil
	}
	if f.outcomes[key] == domain.CacheStale {
		return domain.SerpLookup{Outcome: domain.CacheStale}, nil
	}
	var doc domain.SerpDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.SerpLookup{}, err
	}
	return domain.SerpLookup{Outcome: domain.CacheFresh, Document: &doc}, nil
}

func (f *cacheStoreFake) PutSerp(_ context.Context, doc *domain.SerpDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, doc.Key)
	if f.putErr != nil {
		return f.putErr
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	f.serp[doc.Key] = raw
	delete(f.outcomes, doc.Key)
	return nil
}

func (f *cacheStoreFake) MergeResultField(_ context.Context, key, keyword, matchURL string, _ domain.HTMLAnalysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merges = append(f.merges, fmt.Sprintf("%s|%s|%s", key, keyword, matchURL))
	return f.mergeErr
}

func (f *cacheStoreFake) GetVolumes(_ context.Context, keywords []string, _, _ string) (map[string]domain.CachedVolume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getVolErr != nil {
		return nil, f.getVolErr
	}
	out := map[string]domain.CachedVolume{}
	for _, kw := range keywords {
		key := strings.ToLower(strings.TrimSpace(kw))
		if v, ok := f.volumes[key]; ok {
			out[key] = domain.CachedVolume{Volume: v}
		}
	}
	return out, nil
}

func (f *cacheStoreFake) PutVolumes(_ context.Context, _, _ string, volumes []domain.KeywordVolume) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumePuts = append(f.volumePuts, volumes)
	return nil
}

type serpProviderFake struct {
	items   []domain.SerpProviderItem
	err     error
	calls   int
	queries []domain.SerpQuery
}

func (f *serpProviderFake) Search(_ context.Context, query domain.SerpQuery) ([]domain.SerpProviderItem, error) {
	f.calls++
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	if f.items != nil {
		return f.items, nil
	}
	out := make([]domain.SerpProviderItem, 0, len(query.Keywords))
	for _, kw := range query.Keywords {
		out = append(out, domain.SerpProviderItem{
			Query: kw,
			OrganicResults: []domain.ProviderOrganicResult{
				{Title: kw + " one", URL: "https://www.a.example/" + strings.ReplaceAll(kw, " ", "-"), Description: "first"},
				{Title: kw + " two", URL: "https://b.example/" + strings.ReplaceAll(kw, " ", "-"), Description: "second"},
			},
		})
	}
	return out, nil
}

type volumeProviderFake struct {
	configured bool
	// ideas returns provider output for one batch; nil echoes the batch.
	ideas   func(call int, keywords []string) ([]domain.KeywordIdea, error)
	calls   int
	batches [][]string
	queries []domain.VolumeQuery
}

func (f *volumeProviderFake) Configured() bool { return f.configured }

func (f *volumeProviderFake) KeywordIdeas(_ context.Context, query domain.VolumeQuery) ([]domain.KeywordIdea, error) {
	f.calls++
	f.batches = append(f.batches, query.Keywords)
	f.queries = append(f.queries, query)
	if f.ideas != nil {
		return f.ideas(f.calls, query.Keywords)
	}
	out := make([]domain.KeywordIdea, 0, len(query.Keywords))
	for i, kw := range query.Keywords {
		out = append(out, domain.KeywordIdea{Text: kw, AvgMonthlySearches: fmt.Sprint((i + 1) * 10), Competition: 2})
	}
	return out, nil
}

type pageFetcherFake struct {
	html string
	err  error
}

func (f *pageFetcherFake) Fetch(context.Context, string) (string, error) {
	return f.html, f.err
}

type htmlAnalyzerFake struct {
	err error
}

func (f *htmlAnalyzerFake) Analyze(raw string) (domain.HTMLAnalysis, error) {
	if f.err != nil {
		return domain.HTMLAnalysis{}, f.err
	}
	return domain.HTMLAnalysis{Title: "title", H1: []string{"title"}, H1Consistency: true, Markdown: raw}, nil
}

type researchRepoFake struct {
	mu        sync.Mutex
	records   map[string]*domain.ResearchRecord
	statuses  []domain.ClusteringStatus
	messages  []string
	saveErr   error
	saved     []domain.Clustering
	created   []*domain.ResearchRecord
	updateErr error
}

func newResearchRepoFake(records ...*domain.ResearchRecord) *researchRepoFake {
	f := &researchRepoFake{records: map[string]*domain.ResearchRecord{}}
	for _, r := range records {
		f.records[r.ID] = r
	}
	return f
}

func (f *researchRepoFake) Create(_ context.Context, record *domain.ResearchRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copyRecord := *record
	f.records[record.ID] = &copyRecord
	f.created = append(f.created, &copyRecord)
	return nil
}

func (f *researchRepoFake) GetByID(_ context.Context, id string) (*domain.ResearchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get research record", fmt.Errorf("id=%s", id))
	}
	copyRecord := *r
	return &copyRecord, nil
}

func (f *researchRepoFake) TransitionClusteringStatus(_ context.Context, id string, to, unless domain.ClusteringStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "transition", fmt.Errorf("id=%s", id))
	}
	if r.ClusteringStatus == unless {
		return domain.WrapError(domain.ErrConflict, "transition", fmt.Errorf("status=%s", r.ClusteringStatus))
	}
	r.ClusteringStatus = to
	r.UpdatedAt = time.Now()
	f.statuses = append(f.statuses, to)
	return nil
}

func (f *researchRepoFake) UpdateClusteringStatus(_ context.Context, id string, status domain.ClusteringStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	r, ok := f.records[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "update", fmt.Errorf("id=%s", id))
	}
	r.ClusteringStatus = status
	r.ClusteringError = errMessage
	r.UpdatedAt = time.Now()
	f.statuses = append(f.statuses, status)
	f.messages = append(f.messages, errMessage)
	return nil
}

func (f *researchRepoFake) SaveClusters(_ context.Context, id string, clustering domain.Clustering) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	r := f.records[id]
	r.Clusters = clustering.Clusters
	r.Personas = clustering.Personas
	r.ClusteringStatus = domain.ClusteringCompleted
	f.saved = append(f.saved, clustering)
	f.statuses = append(f.statuses, domain.ClusteringCompleted)
	return nil
}

func (f *researchRepoFake) status(id string) domain.ClusteringStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[id].ClusteringStatus
}

type clustererFake struct {
	result   domain.Clustering
	err      error
	calls    int
	keywords []string
}

func (f *clustererFake) Cluster(_ context.Context, _ string, keywords []string) (domain.Clustering, error) {
	f.calls++
	f.keywords = keywords
	return f.result, f.err
}

type jobsFake struct {
	published []string
	err       error
}

func (f *jobsFake) PublishClusteringRequested(_ context.Context, id string) error {
	f.published = append(f.published, id)
	return f.err
}

type invalidatorFake struct {
	signals []string
	err     error
}

func (f *invalidatorFake) PublishResearchInvalidated(_ context.Context, id string) error {
	f.signals = append(f.signals, id)
	return f.err
}

type metricsFake struct {
	mu         sync.Mutex
	lookups    map[string]int
	clustering []domain.ClusteringStatus
	failed     int
}

func newMetricsFake() *metricsFake {
	return &metricsFake{lookups: map[string]int{}}
}

func (m *metricsFake) ObserveCacheLookup(cache string, outcome domain.CacheOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups[cache+":"+string(outcome)]++
}

func (m *metricsFake) ObserveBatchRun(_ string, _, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed += failed
}

func (m *metricsFake) ObserveClustering(status domain.ClusteringStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clustering = append(m.clustering, status)
}
