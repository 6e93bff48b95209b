package domain

import (
	"math"
	"time"
)

type CompetitionLevel string

const (
	CompetitionUnspecified CompetitionLevel = "UNSPECIFIED"
	CompetitionUnknown     CompetitionLevel = "UNKNOWN"
	CompetitionLow         CompetitionLevel = "LOW"
	CompetitionMedium      CompetitionLevel = "MEDIUM"
	CompetitionHigh        CompetitionLevel = "HIGH"
)

// CompetitionFromEnum maps the ad planner's numeric competition enum.
func CompetitionFromEnum(v int) CompetitionLevel {
	switch v {
	case 1:
		return CompetitionUnknown
	case 2:
		return CompetitionLow
	case 3:
		return CompetitionMedium
	case 4:
		return CompetitionHigh
	default:
		return CompetitionUnspecified
	}
}

// KeywordVolume is one VolumeDocument row.
type KeywordVolume struct {
	Keyword          string           `json:"keyword"`
	SearchVolume     int64            `json:"searchVolume"`
	Competition      CompetitionLevel `json:"competition"`
	CompetitionIndex float64          `json:"competitionIndex"`
	CPC              *float64         `json:"cpc"`
}

// KeywordIdea is one ad planner result, decoded at the client boundary.
// AvgMonthlySearches is the raw provider value; it may be empty or non-numeric.
type KeywordIdea struct {
	Text                  string
	AvgMonthlySearches    string
	Competition           int
	CompetitionIndex      float64
	LowTopOfPageBidMicros *int64
}

type VolumeQuery struct {
	Keywords     []string
	LocationCode int
	LanguageCode int
}

type ProcessingTime struct {
	Estimated float64 `json:"estimated"`
	Actual    float64 `json:"actual"`
}

type VolumeResponse struct {
	Results        []KeywordVolume `json:"results"`
	ProcessingTime ProcessingTime  `json:"processingTime"`
	SourceInfo     string          `json:"sourceInfo"`
	FailedBatches  int             `json:"failedBatches,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// CachedVolume is a stored volume row with its server-side age.
type CachedVolume struct {
	Volume    KeywordVolume
	UpdatedAt time.Time
	Age       time.Duration
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
