package patterns

import (
	"time"

	"github.com/driftwoodlabs/triaged/internal/store"
)

// fingerprintLen is how many characters of the message form the grouping
// key. Longer messages collapse onto their prefix.
const fingerprintLen = 200

// maxSampleIDs bounds how many record ids a pattern carries.
const maxSampleIDs = 10

// Pattern is one group of error records sharing a message fingerprint
// within the analysis window. Always a projection, never persisted.
type Pattern struct {
	Fingerprint       string                 `json:"fingerprint"`
	Count             int                    `json:"count"`
	Components        []string               `json:"components"`
	Files             []string               `json:"files"`
	SeverityHistogram map[store.Severity]int `json:"severity_histogram"`
	DominantSeverity  store.Severity         `json:"dominant_severity"`
	FirstSeen         time.Time              `json:"first_seen"`
	LastSeen          time.Time              `json:"last_seen"`
	SampleIDs         []string               `json:"sample_ids"`
	RiskScore         int                    `json:"risk_score"`
}

// ComponentRank is one entry of the top-problematic-components ranking.
type ComponentRank struct {
	Component  string `json:"component"`
	ErrorCount int    `json:"error_count"`
}

// Buckets partitions patterns by risk score.
type Buckets struct {
	Critical []*Pattern `json:"critical"`
	Warning  []*Pattern `json:"warning"`
	LowRisk  []*Pattern `json:"low_risk"`
}

// Report is the aggregation result for one window.
type Report struct {
	WindowHours     int             `json:"window_hours"`
	GeneratedAt     time.Time       `json:"generated_at"`
	TotalErrors     int             `json:"total_errors"`
	Patterns        Buckets         `json:"patterns"`
	TopComponents   []ComponentRank `json:"top_problematic_components"`
	Recommendations []string        `json:"recommendations"`
}

// Fingerprint truncates a message to the grouping key. Truncation counts
// characters, not bytes, so a multibyte message never splits mid-rune.
func Fingerprint(message string) string {
	if len(message) <= fingerprintLen {
		return message
	}
	count := 0
	for i := range message {
		if count == fingerprintLen {
			return message[:i]
		}
		count++
	}
	return message
}
