// Package trends compares adjacent 24h windows per error pattern,
// classifies escalation, derives a system health score, and projects
// near-term volume.
package trends

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/triaged/internal/fault"
	"github.com/driftwoodlabs/triaged/internal/patterns"
	"github.com/driftwoodlabs/triaged/internal/store"
)

const instrumentationName = "github.com/driftwoodlabs/triaged/internal/trends"

const referenceDays = 7

// Service provides trend analysis.
type Service interface {
	// Analyze compares the last 24h against the previous 24h for every
	// pattern seen within 7 days. Read-only.
	Analyze(ctx context.Context) (*Report, error)
}

// service implements the Service interface.
type service struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time

	tracer          trace.Tracer
	meter           metric.Meter
	analysesCounter metric.Int64Counter
}

// NewService creates a trend analysis service.
func NewService(s store.Store, logger *zap.Logger) (Service, error) {
	if s == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	svc := &service{
		store:  s,
		logger: logger,
		now:    time.Now,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	svc.initMetrics()

	return svc, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (s *service) initMetrics() {
	var err error

	s.analysesCounter, err = s.meter.Int64Counter(
		"triaged.trends.analyses_total",
		metric.WithDescription("Total number of trend analysis runs"),
		metric.WithUnit("{analysis}"),
	)
	if err != nil {
		s.logger.Warn("failed to create analyses counter", zap.Error(err))
	}
}

// Analyze implements Service.
func (s *service) Analyze(ctx context.Context) (*Report, error) {
	ctx, span := s.tracer.Start(ctx, "trends.Analyze")
	defer span.End()

	now := s.now()
	since := now.Add(-referenceDays * 24 * time.Hour)

	records, err := s.store.ListErrorsSince(ctx, since)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list errors failed")
		return nil, fault.Wrap(fault.KindUpstreamFailure, "failed to list error records", err)
	}

	trendList := buildTrends(records, now)

	report := assemble(trendList, now)

	if s.analysesCounter != nil {
		s.analysesCounter.Add(ctx, 1)
	}

	span.SetAttributes(
		attribute.Int("patterns.total", len(trendList)),
		attribute.Float64("health.score", report.Summary.HealthScore),
	)
	s.logger.Info("trend analysis completed",
		zap.Int("patterns", len(trendList)),
		zap.Float64("health_score", report.Summary.HealthScore),
		zap.String("health_status", string(report.Summary.Status)),
		zap.Int("alerts", len(report.Alerts)),
	)

	return report, nil
}

// patternWindow accumulates one fingerprint's per-window counts.
type patternWindow struct {
	fingerprint string
	last24      int
	prev24      int
	total7d     int
	histogram   map[store.Severity]int
	sevOrder    []store.Severity
}

func buildTrends(records []*store.ErrorRecord, now time.Time) []*PatternTrend {
	cutoff24 := now.Add(-24 * time.Hour)
	cutoff48 := now.Add(-48 * time.Hour)

	windows := make(map[string]*patternWindow)
	var order []string

	for _, rec := range records {
		key := patterns.Fingerprint(rec.Message)
		w, ok := windows[key]
		if !ok {
			w = &patternWindow{fingerprint: key, histogram: make(map[store.Severity]int)}
			windows[key] = w
			order = append(order, key)
		}

		w.total7d++
		effective := rec.EffectiveTime()
		switch {
		case !effective.Before(cutoff24):
			w.last24++
		case !effective.Before(cutoff48):
			w.prev24++
		}
		if rec.Severity != "" {
			if w.histogram[rec.Severity] == 0 {
				w.sevOrder = append(w.sevOrder, rec.Severity)
			}
			w.histogram[rec.Severity]++
		}
	}

	out := make([]*PatternTrend, 0, len(order))
	for _, key := range order {
		w := windows[key]
		growth := GrowthPercent(w.prev24, w.last24)
		status := classify(growth)
		dominant := dominantSeverity(w)

		out = append(out, &PatternTrend{
			Fingerprint:      w.fingerprint,
			Last24h:          w.last24,
			Previous24h:      w.prev24,
			DailyAverage7d:   float64(w.total7d) / referenceDays,
			GrowthPercent:    growth,
			Status:           status,
			DominantSeverity: dominant,
			AlertLevel:       alertLevel(status, dominant, w.last24),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].GrowthPercent > out[j].GrowthPercent
	})
	return out
}

// dominantSeverity is the histogram argmax; ties go to the higher
// severity so an even split never downgrades the alert level.
func dominantSeverity(w *patternWindow) store.Severity {
	var dominant store.Severity
	best := 0
	for _, sev := range w.sevOrder {
		n := w.histogram[sev]
		if n > best || (n == best && sev.Rank() > dominant.Rank()) {
			best = n
			dominant = sev
		}
	}
	return dominant
}

// GrowthPercent computes window-over-window growth. When the previous
// window is empty the result is 100 for any activity and 0 for none; the
// divide-by-zero guard is a defined outcome, not an error.
func GrowthPercent(prev24, last24 int) float64 {
	if prev24 == 0 {
		if last24 > 0 {
			return 100
		}
		return 0
	}
	return float64(last24-prev24) / float64(prev24) * 100
}

// classify maps growth percentage onto a trend status.
func classify(growth float64) TrendStatus {
	switch {
	case growth > 100:
		return StatusCriticalEscalation
	case growth > 50:
		return StatusEscalating
	case growth > 20:
		return StatusIncreasing
	case growth < -20:
		return StatusDeclining
	default:
		return StatusStable
	}
}

// alertLevel grades urgency from trend status, severity, and volume.
// Critical severity with any current occurrences is always critical.
func alertLevel(status TrendStatus, dominant store.Severity, last24 int) AlertLevel {
	if dominant == store.SeverityCritical && last24 > 0 {
		return AlertCritical
	}

	switch status {
	case StatusCriticalEscalation, StatusEscalating:
		if last24 > 5 {
			return AlertCritical
		}
		return AlertWarning
	case StatusIncreasing:
		return AlertInfo
	default:
		return AlertNone
	}
}

func assemble(trendList []*PatternTrend, now time.Time) *Report {
	groups := TrendGroups{}
	var alerts []*Alert
	total24 := 0
	escalating := 0
	criticalSeverity := 0

	for _, t := range trendList {
		total24 += t.Last24h

		if t.Status == StatusCriticalEscalation || t.Status == StatusEscalating {
			escalating++
		}
		if t.DominantSeverity == store.SeverityCritical && t.Last24h > 0 {
			criticalSeverity++
		}

		switch {
		case t.Previous24h == 0 && t.Last24h > 0:
			groups.Emerging = append(groups.Emerging, t)
		case t.Status == StatusCriticalEscalation || t.Status == StatusEscalating || t.Status == StatusIncreasing:
			groups.Escalating = append(groups.Escalating, t)
		case t.Status == StatusDeclining:
			groups.Declining = append(groups.Declining, t)
		default:
			groups.Stable = append(groups.Stable, t)
		}

		if t.AlertLevel == AlertWarning || t.AlertLevel == AlertCritical {
			alerts = append(alerts, &Alert{
				Fingerprint: t.Fingerprint,
				Level:       t.AlertLevel,
				Message: fmt.Sprintf("pattern grew %.0f%% window-over-window (%d occurrences in 24h)",
					t.GrowthPercent, t.Last24h),
			})
		}
	}

	health := HealthScore(total24, escalating, criticalSeverity)

	return &Report{
		Summary: Summary{
			HealthScore:      health,
			Status:           healthStatus(health),
			TotalErrors24h:   total24,
			TotalPatterns:    len(trendList),
			EscalatingCount:  escalating,
			CriticalSeverity: criticalSeverity,
			GeneratedAt:      now.UTC(),
		},
		Trends:   groups,
		Alerts:   alerts,
		Forecast: forecast(trendList, total24),
	}
}

// HealthScore derives the 0-100 system health score:
// 100 - min(total24*0.5, 30) - 5 per escalating pattern - 3 per
// critical-severity pattern, floored at 0.
func HealthScore(total24, escalating, criticalSeverity int) float64 {
	volume := float64(total24) * 0.5
	if volume > 30 {
		volume = 30
	}
	score := 100 - volume - 5*float64(escalating) - 3*float64(criticalSeverity)
	if score < 0 {
		score = 0
	}
	return score
}

func healthStatus(score float64) HealthStatus {
	switch {
	case score >= 90:
		return HealthExcellent
	case score >= 75:
		return HealthGood
	case score >= 60:
		return HealthFair
	case score >= 40:
		return HealthPoor
	default:
		return HealthCritical
	}
}

// forecast compounds the mean growth rate of currently active patterns
// onto the 24h total. Confidence is high only with at least 5 samples.
func forecast(trendList []*PatternTrend, total24 int) Forecast {
	var sum float64
	samples := 0
	for _, t := range trendList {
		if t.Last24h > 0 {
			sum += t.GrowthPercent
			samples++
		}
	}

	if samples == 0 {
		return Forecast{Next24h: 0, Next48h: 0, Confidence: "low"}
	}

	mean := sum / float64(samples) / 100
	next24 := float64(total24) * (1 + mean)
	next48 := float64(total24) * (1 + mean) * (1 + mean)
	if next24 < 0 {
		next24 = 0
	}
	if next48 < 0 {
		next48 = 0
	}

	confidence := "low"
	if samples >= 5 {
		confidence = "high"
	}

	return Forecast{
		Next24h:    int(math.Round(next24)),
		Next48h:    int(math.Round(next48)),
		Confidence: confidence,
	}
}
