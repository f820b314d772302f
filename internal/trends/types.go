package trends

import (
	"time"

	"github.com/driftwoodlabs/triaged/internal/store"
)

// TrendStatus classifies one pattern's growth between adjacent windows.
type TrendStatus string

const (
	StatusCriticalEscalation TrendStatus = "critical_escalation"
	StatusEscalating         TrendStatus = "escalating"
	StatusIncreasing         TrendStatus = "increasing"
	StatusStable             TrendStatus = "stable"
	StatusDeclining          TrendStatus = "declining"
)

// AlertLevel grades a pattern's urgency.
type AlertLevel string

const (
	AlertNone     AlertLevel = "none"
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// HealthStatus buckets the system health score.
type HealthStatus string

const (
	HealthExcellent HealthStatus = "excellent"
	HealthGood      HealthStatus = "good"
	HealthFair      HealthStatus = "fair"
	HealthPoor      HealthStatus = "poor"
	HealthCritical  HealthStatus = "critical"
)

// PatternTrend is one pattern's movement between the two 24h windows.
type PatternTrend struct {
	Fingerprint      string         `json:"fingerprint"`
	Last24h          int            `json:"last_24h"`
	Previous24h      int            `json:"previous_24h"`
	DailyAverage7d   float64        `json:"daily_average_7d"`
	GrowthPercent    float64        `json:"growth_percent"`
	Status           TrendStatus    `json:"status"`
	DominantSeverity store.Severity `json:"dominant_severity"`
	AlertLevel       AlertLevel     `json:"alert_level"`
}

// TrendGroups partitions pattern trends for the response.
type TrendGroups struct {
	Escalating []*PatternTrend `json:"escalating"`
	Emerging   []*PatternTrend `json:"emerging"`
	Stable     []*PatternTrend `json:"stable"`
	Declining  []*PatternTrend `json:"declining"`
}

// Alert is one actionable finding surfaced to operators.
type Alert struct {
	Fingerprint string     `json:"fingerprint"`
	Level       AlertLevel `json:"level"`
	Message     string     `json:"message"`
}

// Forecast projects near-term error volume from current growth.
type Forecast struct {
	Next24h    int    `json:"next_24h"`
	Next48h    int    `json:"next_48h"`
	Confidence string `json:"confidence"`
}

// Summary is the system-wide health view.
type Summary struct {
	HealthScore      float64      `json:"health_score"`
	Status           HealthStatus `json:"status"`
	TotalErrors24h   int          `json:"total_errors_24h"`
	TotalPatterns    int          `json:"total_patterns"`
	EscalatingCount  int          `json:"escalating_count"`
	CriticalSeverity int          `json:"critical_severity_count"`
	GeneratedAt      time.Time    `json:"generated_at"`
}

// Report is the full trend analysis result.
type Report struct {
	Summary  Summary     `json:"summary"`
	Trends   TrendGroups `json:"trends"`
	Alerts   []*Alert    `json:"alerts"`
	Forecast Forecast    `json:"forecast"`
}
