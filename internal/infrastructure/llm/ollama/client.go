package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
	"github.com/kirillkom/keyword-intel/internal/infrastructure/resilience"
)

// MaxClusterKeywords bounds the keyword list sent in one clustering prompt.
const MaxClusterKeywords = 80

type Client struct {
	baseURL    string
	genModel   string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel string, executor *resilience.Executor) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

type Clusterer struct {
	client *Client
}

func NewClusterer(client *Client) *Clusterer {
	return &Clusterer{client: client}
}

type clusteringResponse struct {
	Clusters map[string][]string `json:"clusters"`
	Personas map[string]string   `json:"personas"`
}

// Cluster groups at most MaxClusterKeywords distinct keywords. Keywords the
// model invents are dropped, and clusters left empty are removed.
func (c *Clusterer) Cluster(ctx context.Context, query string, keywords []string) (domain.Clustering, error) {
	keywords = uniqueKeywords(keywords, MaxClusterKeywords)
	if len(keywords) == 0 {
		return domain.Clustering{}, domain.WrapError(domain.ErrInvalidInput, "cluster keywords", fmt.Errorf("no keywords"))
	}

	respText, err := c.client.generateJSON(ctx, buildClusteringPrompt(query, keywords))
	if err != nil {
		return domain.Clustering{}, err
	}

	var parsed clusteringResponse
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &parsed); err != nil {
		return domain.Clustering{}, domain.WrapError(domain.ErrProvider, "parse clustering json", err)
	}

	known := make(map[string]string, len(keywords))
	for _, kw := range keywords {
		known[strings.ToLower(kw)] = kw
	}
	result := domain.Clustering{Clusters: make(map[string][]string)}
	for name, members := range parsed.Clusters {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		var kept []string
		for _, m := range members {
			if original, ok := known[strings.ToLower(strings.TrimSpace(m))]; ok {
				kept = append(kept, original)
			}
		}
		if len(kept) > 0 {
			result.Clusters[name] = kept
		}
	}
	if len(result.Clusters) == 0 {
		return domain.Clustering{}, domain.WrapError(domain.ErrProvider, "cluster keywords", fmt.Errorf("model returned no usable clusters"))
	}
	for name, persona := range parsed.Personas {
		if _, ok := result.Clusters[strings.TrimSpace(name)]; ok && strings.TrimSpace(persona) != "" {
			if result.Personas == nil {
				result.Personas = make(map[string]string)
			}
			result.Personas[strings.TrimSpace(name)] = strings.TrimSpace(persona)
		}
	}
	return result, nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	err := c.executor.Execute(ctx, "ollama.generate", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/generate", reqBody, &response, "generate")
	}, nil)
	if err != nil {
		return "", resilience.WrapTemporaryIfNeeded("ollama generate", err)
	}
	return strings.TrimSpace(response.Response), nil
}

func uniqueKeywords(keywords []string, limit int) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		key := strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
		if len(out) == limit {
			break
		}
	}
	return out
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
