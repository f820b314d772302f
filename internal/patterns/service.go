// Package patterns groups raw error records into message-fingerprint
// patterns over a time window and ranks them by risk score.
package patterns

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/triaged/internal/fault"
	"github.com/driftwoodlabs/triaged/internal/store"
)

const instrumentationName = "github.com/driftwoodlabs/triaged/internal/patterns"

// DefaultWindowHours is the aggregation window when none is requested.
const DefaultWindowHours = 72

// Service provides pattern aggregation.
type Service interface {
	// Aggregate groups records in the window and returns the ranked
	// report. Read-only: no entity is written. An empty window is a
	// successful empty report, not an error.
	Aggregate(ctx context.Context, windowHours int) (*Report, error)
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

// NewService creates a pattern aggregation service.
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
		"triaged.patterns.analyses_total",
		metric.WithDescription("Total number of pattern aggregation runs"),
		metric.WithUnit("{analysis}"),
	)
	if err != nil {
		s.logger.Warn("failed to create analyses counter", zap.Error(err))
	}
}

// Aggregate implements Service.
func (s *service) Aggregate(ctx context.Context, windowHours int) (*Report, error) {
	if windowHours == 0 {
		windowHours = DefaultWindowHours
	}
	if windowHours < 0 {
		return nil, fault.Newf(fault.KindInvalidRequest, "window hours must be positive, got %d", windowHours)
	}

	ctx, span := s.tracer.Start(ctx, "patterns.Aggregate",
		trace.WithAttributes(attribute.Int("window.hours", windowHours)),
	)
	defer span.End()

	now := s.now()
	since := now.Add(-time.Duration(windowHours) * time.Hour)

	records, err := s.store.ListErrorsSince(ctx, since)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list errors failed")
		return nil, fault.Wrap(fault.KindUpstreamFailure, "failed to list error records", err)
	}

	groups := groupRecords(records)

	all := make([]*Pattern, 0, len(groups.order))
	for _, key := range groups.order {
		p := groups.byKey[key].finish(now)
		all = append(all, p)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].RiskScore > all[j].RiskScore
	})

	report := &Report{
		WindowHours:   windowHours,
		GeneratedAt:   now.UTC(),
		TotalErrors:   len(records),
		Patterns:      bucketize(all),
		TopComponents: rankComponents(all),
	}
	report.Recommendations = recommendations(report)

	if s.analysesCounter != nil {
		s.analysesCounter.Add(ctx, 1)
	}

	span.SetAttributes(
		attribute.Int("patterns.total", len(all)),
		attribute.Int("patterns.critical", len(report.Patterns.Critical)),
	)
	s.logger.Info("pattern aggregation completed",
		zap.Int("window_hours", windowHours),
		zap.Int("total_errors", len(records)),
		zap.Int("patterns", len(all)),
		zap.Int("critical", len(report.Patterns.Critical)),
	)

	return report, nil
}

// group accumulates one fingerprint's records.
type group struct {
	fingerprint string
	count       int
	components  map[string]struct{}
	compOrder   []string
	files       map[string]struct{}
	fileOrder   []string
	histogram   map[store.Severity]int
	sevOrder    []store.Severity
	firstSeen   time.Time
	lastSeen    time.Time
	sampleIDs   []string
}

type groupSet struct {
	byKey map[string]*group
	order []string
}

func groupRecords(records []*store.ErrorRecord) *groupSet {
	gs := &groupSet{byKey: make(map[string]*group)}

	for _, rec := range records {
		key := Fingerprint(rec.Message)
		g, ok := gs.byKey[key]
		if !ok {
			g = &group{
				fingerprint: key,
				components:  make(map[string]struct{}),
				files:       make(map[string]struct{}),
				histogram:   make(map[store.Severity]int),
			}
			gs.byKey[key] = g
			gs.order = append(gs.order, key)
		}
		g.add(rec)
	}
	return gs
}

func (g *group) add(rec *store.ErrorRecord) {
	g.count++

	if rec.Component != "" {
		if _, seen := g.components[rec.Component]; !seen {
			g.components[rec.Component] = struct{}{}
			g.compOrder = append(g.compOrder, rec.Component)
		}
	}
	if rec.File != "" {
		if _, seen := g.files[rec.File]; !seen {
			g.files[rec.File] = struct{}{}
			g.fileOrder = append(g.fileOrder, rec.File)
		}
	}
	if rec.Severity != "" {
		if g.histogram[rec.Severity] == 0 {
			g.sevOrder = append(g.sevOrder, rec.Severity)
		}
		g.histogram[rec.Severity]++
	}

	first := rec.FirstSeen
	if first.IsZero() {
		first = rec.Created
	}
	if g.firstSeen.IsZero() || (!first.IsZero() && first.Before(g.firstSeen)) {
		g.firstSeen = first
	}
	if effective := rec.EffectiveTime(); effective.After(g.lastSeen) {
		g.lastSeen = effective
	}

	if len(g.sampleIDs) < maxSampleIDs {
		g.sampleIDs = append(g.sampleIDs, rec.ID)
	}
}

// dominantSeverity is the histogram argmax; ties go to the higher
// severity so an even split never understates the risk input.
func (g *group) dominantSeverity() store.Severity {
	var dominant store.Severity
	best := 0
	for _, sev := range g.sevOrder {
		n := g.histogram[sev]
		if n > best || (n == best && sev.Rank() > dominant.Rank()) {
			best = n
			dominant = sev
		}
	}
	return dominant
}

func (g *group) finish(now time.Time) *Pattern {
	dominant := g.dominantSeverity()
	return &Pattern{
		Fingerprint:       g.fingerprint,
		Count:             g.count,
		Components:        g.compOrder,
		Files:             g.fileOrder,
		SeverityHistogram: g.histogram,
		DominantSeverity:  dominant,
		FirstSeen:         g.firstSeen,
		LastSeen:          g.lastSeen,
		SampleIDs:         g.sampleIDs,
		RiskScore:         RiskScore(g.count, dominant, len(g.compOrder), g.lastSeen, now),
	}
}

func bucketize(all []*Pattern) Buckets {
	var b Buckets
	for _, p := range all {
		switch {
		case p.RiskScore >= criticalThreshold:
			b.Critical = append(b.Critical, p)
		case p.RiskScore >= warningThreshold:
			b.Warning = append(b.Warning, p)
		default:
			b.LowRisk = append(b.LowRisk, p)
		}
	}
	return b
}

// rankComponents sums pattern counts per component and returns the top 10.
func rankComponents(all []*Pattern) []ComponentRank {
	totals := make(map[string]int)
	var order []string
	for _, p := range all {
		for _, comp := range p.Components {
			if _, seen := totals[comp]; !seen {
				order = append(order, comp)
			}
			totals[comp] += p.Count
		}
	}

	ranks := make([]ComponentRank, 0, len(order))
	for _, comp := range order {
		ranks = append(ranks, ComponentRank{Component: comp, ErrorCount: totals[comp]})
	}
	sort.SliceStable(ranks, func(i, j int) bool {
		return ranks[i].ErrorCount > ranks[j].ErrorCount
	})
	if len(ranks) > 10 {
		ranks = ranks[:10]
	}
	return ranks
}

func recommendations(r *Report) []string {
	var recs []string
	if n := len(r.Patterns.Critical); n > 0 {
		recs = append(recs, fmt.Sprintf("address %d critical-risk pattern(s) immediately", n))
	}
	if n := len(r.Patterns.Warning); n > 0 {
		recs = append(recs, fmt.Sprintf("schedule review of %d warning-level pattern(s)", n))
	}
	if len(r.TopComponents) > 0 && r.TopComponents[0].ErrorCount > 15 {
		recs = append(recs, fmt.Sprintf("component %q concentrates %d errors; consider a focused refactor",
			r.TopComponents[0].Component, r.TopComponents[0].ErrorCount))
	}
	if len(recs) == 0 {
		recs = append(recs, "error levels are within normal bounds; no action required")
	}
	return recs
}
