package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
	"github.com/kirillkom/keyword-intel/internal/infrastructure/resilience"
)

func newTestClient(url string) *Client {
	cfg := resilience.DefaultConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerEnabled = false
	return New(url, "gen", resilience.NewExecutor(cfg))
}

func TestClusterBuildsPromptAndFiltersUnknownKeywords(t *testing.T) {
	var capturedPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		capturedPrompt, _ = payload["prompt"].(string)
		inner := `Here you go: {"clusters":{"recipes":["Soup Recipe","made up"],"empty":["nothing"]},"personas":{"recipes":"home cooks","ghost":"x"}}`
		resp, _ := json.Marshal(map[string]string{"response": inner})
		_, _ = w.Write(resp)
	}))
	defer server.Close()

	clusterer := NewClusterer(newTestClient(server.URL))
	got, err := clusterer.Cluster(context.Background(), "soup", []string{"soup recipe", "Soup Recipe", "bone broth"})
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if !strings.Contains(capturedPrompt, "soup recipe") || strings.Count(capturedPrompt, "oup recipe") != 1 {
		t.Fatalf("expected deduplicated keywords in prompt: %s", capturedPrompt)
	}
	if len(got.Clusters) != 1 || len(got.Clusters["recipes"]) != 1 || got.Clusters["recipes"][0] != "soup recipe" {
		t.Fatalf("unexpected clusters: %+v", got.Clusters)
	}
	if got.Personas["recipes"] != "home cooks" || len(got.Personas) != 1 {
		t.Fatalf("unexpected personas: %+v", got.Personas)
	}
}

func TestClusterCapsKeywordCount(t *testing.T) {
	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		prompt, _ = payload["prompt"].(string)
		_, _ = w.Write([]byte(`{"response":"{\"clusters\":{\"all\":[\"kw-0\"]}}"}`))
	}))
	defer server.Close()

	keywords := make([]string, 100)
	for i := range keywords {
		keywords[i] = fmt.Sprintf("kw-%d", i)
	}
	if _, err := NewClusterer(newTestClient(server.URL)).Cluster(context.Background(), "q", keywords); err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if strings.Contains(prompt, "kw-80") || !strings.Contains(prompt, "kw-79") {
		t.Fatalf("expected exactly the first %d keywords in prompt", MaxClusterKeywords)
	}
}

func TestGenerateIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClusterer(newTestClient(server.URL)).Cluster(context.Background(), "q", []string{"a"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected 502 to be tagged temporary, got %v", err)
	}
}
