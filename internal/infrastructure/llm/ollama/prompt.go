package ollama

import "strings"

func buildClusteringPrompt(query string, keywords []string) string {
	return `You group search keywords by user intent.
Return strict JSON object with keys:
clusters (object: cluster name -> array of keywords taken verbatim from the list),
personas (object: cluster name -> one sentence describing who searches this).
Every keyword belongs to exactly one cluster. No markdown, no extra keys.

Research topic:
` + strings.TrimSpace(query) + `

Keywords:
` + strings.Join(keywords, "\n")
}
