package domain

import "time"

type ClusteringStatus string

const (
	ClusteringUnset      ClusteringStatus = ""
	ClusteringPending    ClusteringStatus = "pending"
	ClusteringProcessing ClusteringStatus = "processing"
	ClusteringCompleted  ClusteringStatus = "completed"
	ClusteringFailed     ClusteringStatus = "failed"
)

type ResearchRecord struct {
	ID               string              `json:"id"`
	Query            string              `json:"query"`
	Region           string              `json:"region"`
	Language         string              `json:"language"`
	Keywords         []KeywordVolume     `json:"keywords"`
	Clusters         map[string][]string `json:"clusters,omitempty"`
	Personas         map[string]string   `json:"personas,omitempty"`
	ClusteringStatus ClusteringStatus    `json:"clusteringStatus"`
	ClusteringError  string              `json:"clusteringError,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// KeywordTexts returns the record's keyword strings in stored order.
func (r *ResearchRecord) KeywordTexts() []string {
	out := make([]string, 0, len(r.Keywords))
	for _, kw := range r.Keywords {
		out = append(out, kw.Keyword)
	}
	return out
}

// Clustering is the AI clustering output.
type Clustering struct {
	Clusters map[string][]string `json:"clusters"`
	Personas map[string]string   `json:"personas,omitempty"`
}

type ClusteringRequestResult struct {
	Success bool             `json:"success"`
	Skipped bool             `json:"skipped,omitempty"`
	Status  ClusteringStatus `json:"status"`
}
