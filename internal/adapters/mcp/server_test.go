package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
	"github.com/kirillkom/keyword-intel/internal/observability/logging"
)

type serpFake struct {
	resp  domain.SerpResponse
	calls int
	max   int
}

func (f *serpFake) GetSerpAnalysis(_ context.Context, _ []string, _, _ string, maxResults int) domain.SerpResponse {
	f.calls++
	f.max = maxResults
	return f.resp
}

func (f *serpFake) AnalyzeHTMLContent(context.Context, string) *domain.HTMLAnalysis { return nil }

func (f *serpFake) EnrichResult(context.Context, string, string, string, string) (*domain.HTMLAnalysis, error) {
	return nil, nil
}

type volumeFake struct {
	resp     domain.VolumeResponse
	err      error
	keywords []string
}

func (f *volumeFake) GetSearchVolume(_ context.Context, keywords []string, _, _ string) (domain.VolumeResponse, error) {
	f.keywords = keywords
	return f.resp, f.err
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return text.Text
}

func newTestServer(serp *serpFake, volume *volumeFake) *Server {
	return NewServer(Config{Name: "keyword-intel", Version: "test"}, serp, volume, logging.Discard())
}

func TestServer_Creation(t *testing.T) {
	s := newTestServer(&serpFake{}, &volumeFake{})
	if s.mcpServer == nil {
		t.Fatal("mcpServer should not be nil")
	}
}

func TestSerpToolReturnsJSON(t *testing.T) {
	serp := &serpFake{resp: domain.SerpResponse{
		Results:    map[string]domain.KeywordSerpResult{"soup": {Query: "soup"}},
		SourceInfo: domain.SourceCache,
	}}
	s := newTestServer(serp, &volumeFake{})

	res, err := s.serpHandler(context.Background(), callRequest("get_serp_analysis", map[string]any{
		"keywords":   []any{"soup"},
		"region":     "TW",
		"language":   "zh-TW",
		"maxResults": 5,
	}))
	if err != nil {
		t.Fatalf("serpHandler() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	var body domain.SerpResponse
	if err := json.Unmarshal([]byte(resultText(t, res)), &body); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if body.SourceInfo != domain.SourceCache || serp.max != 5 {
		t.Fatalf("unexpected result %+v (max=%d)", body, serp.max)
	}
}

func TestSerpToolRejectsMissingArguments(t *testing.T) {
	serp := &serpFake{}
	s := newTestServer(serp, &volumeFake{})

	res, err := s.serpHandler(context.Background(), callRequest("get_serp_analysis", map[string]any{"region": "TW"}))
	if err != nil {
		t.Fatalf("serpHandler() error = %v", err)
	}
	if !res.IsError {
		t.Fatal("expected tool error")
	}
	if serp.calls != 0 {
		t.Fatal("lookup must not run for invalid arguments")
	}
}

func TestVolumeToolMapsErrors(t *testing.T) {
	volume := &volumeFake{err: domain.WrapError(domain.ErrMissingCredentials, "get search volume", errors.New("not configured"))}
	s := newTestServer(&serpFake{}, volume)

	res, err := s.volumeHandler(context.Background(), callRequest("get_search_volume", map[string]any{
		"keywords": []any{"soup", "stew"},
		"region":   "TW",
		"language": "zh-TW",
	}))
	if err != nil {
		t.Fatalf("volumeHandler() error = %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "missing provider credentials") {
		t.Fatalf("expected credentials tool error, got %+v", res)
	}
	if len(volume.keywords) != 2 {
		t.Fatalf("expected keywords passed through, got %v", volume.keywords)
	}
}

func TestVolumeToolReportsProviderFailure(t *testing.T) {
	volume := &volumeFake{resp: domain.VolumeResponse{Results: []domain.KeywordVolume{}, Error: "all 1 volume batches failed"}}
	s := newTestServer(&serpFake{}, volume)

	res, _ := s.volumeHandler(context.Background(), callRequest("get_search_volume", map[string]any{
		"keywords": []any{"soup"},
		"region":   "TW",
		"language": "zh-TW",
	}))
	if !res.IsError {
		t.Fatalf("expected tool error for failed lookup")
	}
}
