package patterns

import (
	"time"

	"github.com/driftwoodlabs/triaged/internal/store"
)

// Risk bucket boundaries.
const (
	criticalThreshold = 70
	warningThreshold  = 40
)

// severityPoints maps the dominant severity to its score contribution.
// Unknown severities contribute nothing.
var severityPoints = map[store.Severity]int{
	store.SeverityCritical: 30,
	store.SeverityError:    20,
	store.SeverityWarning:  10,
	store.SeverityInfo:     5,
}

// RiskScore computes the 0-100 risk score for one pattern. Each term is
// capped independently, then the sum is capped at 100:
//
//	frequency = min(count*2, 40)
//	severity  = {critical:30, error:20, warning:10, info:5}
//	breadth   = min(distinctComponents*5, 20)
//	recency   = 10 if last seen <1h, 7 if <6h, 4 if <24h, else 0
//
// Pure function of its inputs; no state is carried between invocations.
func RiskScore(count int, dominant store.Severity, distinctComponents int, lastSeen, now time.Time) int {
	score := 0

	frequency := count * 2
	if frequency > 40 {
		frequency = 40
	}
	score += frequency

	score += severityPoints[dominant]

	breadth := distinctComponents * 5
	if breadth > 20 {
		breadth = 20
	}
	score += breadth

	if !lastSeen.IsZero() {
		age := now.Sub(lastSeen)
		switch {
		case age < time.Hour:
			score += 10
		case age < 6*time.Hour:
			score += 7
		case age < 24*time.Hour:
			score += 4
		}
	}

	if score > 100 {
		score = 100
	}
	return score
}
