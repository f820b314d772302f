// Package knowledge implements the two-phase learning loop: harvesting
// resolved errors into learning memories, and consolidating memories into
// immutable, monotonically versioned knowledge-base snapshots.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/triaged/internal/fault"
	"github.com/driftwoodlabs/triaged/internal/ledger"
	"github.com/driftwoodlabs/triaged/internal/patterns"
	"github.com/driftwoodlabs/triaged/internal/store"
)

const instrumentationName = "github.com/driftwoodlabs/triaged/internal/knowledge"

// Config configures the learner.
type Config struct {
	// HarvestWindow bounds how far back the harvester scans for
	// recently-updated resolved errors (default: 24h).
	HarvestWindow time.Duration

	// MemoryLookback is how many learning memories consolidation reads
	// (default: 10).
	MemoryLookback int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HarvestWindow:  24 * time.Hour,
		MemoryLookback: 10,
	}
}

// HarvestResult is the harvest phase's response.
type HarvestResult struct {
	MemoryID     string   `json:"memory_id,omitempty"`
	LearnedCount int      `json:"learned_count"`
	Insights     []string `json:"insights"`
}

// ConsolidateResult is the consolidate phase's response.
type ConsolidateResult struct {
	KnowledgeBaseID string                 `json:"knowledge_base_id,omitempty"`
	Version         int                    `json:"version"`
	Metrics         store.SnapshotMetrics  `json:"metrics"`
	TopPatterns     []store.LearnedPattern `json:"top_patterns"`
	Insights        []string               `json:"insights"`
}

// Service provides the knowledge-base learning loop.
type Service interface {
	// Harvest scans recently resolved errors into one learning memory.
	// Zero resolved errors is a successful no-op.
	Harvest(ctx context.Context) (*HarvestResult, error)

	// Consolidate folds recent memories into the next knowledge-base
	// version. The version sequence is strictly increasing; prior
	// snapshots are never overwritten.
	Consolidate(ctx context.Context) (*ConsolidateResult, error)
}

// service implements the Service interface.
type service struct {
	config   *Config
	store    store.Store
	recorder ledger.Recorder
	logger   *zap.Logger
	now      func() time.Time

	// versionMu serializes read-max-then-create-next. The store rejects
	// duplicate versions as a second line of defense against writers in
	// other processes.
	versionMu sync.Mutex

	tracer             trace.Tracer
	meter              metric.Meter
	harvestCounter     metric.Int64Counter
	consolidateCounter metric.Int64Counter
}

// NewService creates a knowledge learner service.
func NewService(cfg *Config, s store.Store, rec ledger.Recorder, logger *zap.Logger) (Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if s == nil {
		return nil, errors.New("store is required")
	}
	if rec == nil {
		return nil, errors.New("ledger recorder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	svc := &service{
		config:   cfg,
		store:    s,
		recorder: rec,
		logger:   logger,
		now:      time.Now,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}

	svc.initMetrics()

	return svc, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (s *service) initMetrics() {
	var err error

	s.harvestCounter, err = s.meter.Int64Counter(
		"triaged.knowledge.harvests_total",
		metric.WithDescription("Total number of harvest runs"),
		metric.WithUnit("{harvest}"),
	)
	if err != nil {
		s.logger.Warn("failed to create harvest counter", zap.Error(err))
	}

	s.consolidateCounter, err = s.meter.Int64Counter(
		"triaged.knowledge.consolidations_total",
		metric.WithDescription("Total number of consolidate runs"),
		metric.WithUnit("{consolidation}"),
	)
	if err != nil {
		s.logger.Warn("failed to create consolidate counter", zap.Error(err))
	}
}

// Harvest implements Service.
func (s *service) Harvest(ctx context.Context) (*HarvestResult, error) {
	ctx, span := s.tracer.Start(ctx, "knowledge.Harvest")
	defer span.End()

	since := s.now().Add(-s.config.HarvestWindow)
	resolved, err := s.store.ListResolvedErrorsSince(ctx, since)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list resolved errors failed")
		return nil, fault.Wrap(fault.KindUpstreamFailure, "failed to list resolved errors", err)
	}

	if len(resolved) == 0 {
		s.logger.Info("harvest found no resolved errors")
		return &HarvestResult{
			LearnedCount: 0,
			Insights:     []string{"no resolved errors to learn from"},
		}, nil
	}

	entries := make([]store.LearningEntry, 0, len(resolved))
	for _, rec := range resolved {
		entries = append(entries, entryFor(rec))
	}

	mem := &store.LearningMemory{
		ID:      uuid.NewString(),
		Entries: entries,
		Count:   len(entries),
		Created: s.now().UTC(),
	}
	if err := s.store.CreateMemory(ctx, mem); err != nil {
		span.RecordError(err)
		return nil, fault.Wrap(fault.KindUpstreamFailure, "failed to persist learning memory", err)
	}

	if _, err := s.recorder.Record(ctx, ledger.Entry{
		Kind:     "knowledge_harvested",
		Status:   "completed",
		Priority: store.PriorityLow,
		Result:   fmt.Sprintf("learned from %d resolved error(s)", len(entries)),
		Context:  map[string]any{"memory_id": mem.ID, "learned_count": len(entries)},
	}); err != nil {
		span.RecordError(err)
		return nil, fault.Wrap(fault.KindUpstreamFailure, "failed to record harvest action", err)
	}

	if s.harvestCounter != nil {
		s.harvestCounter.Add(ctx, 1)
	}

	span.SetAttributes(attribute.Int("harvest.learned", len(entries)))
	s.logger.Info("harvest completed",
		zap.String("memory_id", mem.ID),
		zap.Int("learned_count", len(entries)),
	)

	return &HarvestResult{
		MemoryID:     mem.ID,
		LearnedCount: len(entries),
		Insights:     harvestInsights(entries),
	}, nil
}

// Consolidate implements Service.
func (s *service) Consolidate(ctx context.Context) (*ConsolidateResult, error) {
	ctx, span := s.tracer.Start(ctx, "knowledge.Consolidate")
	defer span.End()

	memories, err := s.store.ListRecentMemories(ctx, s.config.MemoryLookback)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list memories failed")
		return nil, fault.Wrap(fault.KindUpstreamFailure, "failed to list learning memories", err)
	}

	if len(memories) == 0 {
		s.logger.Info("consolidate found no learning memories")
		return &ConsolidateResult{
			Insights: []string{"no learning memories to consolidate"},
		}, nil
	}

	learned := consolidatePatterns(memories)
	metrics := summarize(learned)

	// Read-max-then-create-next is a check-then-act race; serialize it.
	s.versionMu.Lock()
	defer s.versionMu.Unlock()

	maxVersion, err := s.store.MaxSnapshotVersion(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fault.Wrap(fault.KindUpstreamFailure, "failed to read knowledge base version", err)
	}

	snap := &store.KnowledgeBaseSnapshot{
		ID:       uuid.NewString(),
		Version:  maxVersion + 1,
		Patterns: learned,
		Metrics:  metrics,
		Created:  s.now().UTC(),
	}
	if err := s.store.CreateSnapshot(ctx, snap); err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, fault.Wrap(fault.KindUpstreamFailure,
				fmt.Sprintf("knowledge base version %d was claimed by another writer", snap.Version), err)
		}
		return nil, fault.Wrap(fault.KindUpstreamFailure, "failed to persist knowledge base snapshot", err)
	}

	if _, err := s.recorder.Record(ctx, ledger.Entry{
		Kind:     "knowledge_consolidated",
		Status:   "completed",
		Priority: store.PriorityMedium,
		Result:   fmt.Sprintf("published knowledge base version %d with %d pattern(s)", snap.Version, len(learned)),
		Context: map[string]any{
			"knowledge_base_id": snap.ID,
			"version":           snap.Version,
			"total_patterns":    metrics.TotalPatterns,
			"high_confidence":   metrics.HighConfidence,
		},
	}); err != nil {
		span.RecordError(err)
		return nil, fault.Wrap(fault.KindUpstreamFailure, "failed to record consolidate action", err)
	}

	if s.consolidateCounter != nil {
		s.consolidateCounter.Add(ctx, 1)
	}

	span.SetAttributes(
		attribute.Int("snapshot.version", snap.Version),
		attribute.Int("snapshot.patterns", len(learned)),
	)
	s.logger.Info("consolidation completed",
		zap.Int("version", snap.Version),
		zap.Int("patterns", len(learned)),
		zap.Float64("avg_success_rate", metrics.AverageSuccessRate),
	)

	return &ConsolidateResult{
		KnowledgeBaseID: snap.ID,
		Version:         snap.Version,
		Metrics:         metrics,
		TopPatterns:     topPatterns(learned, 5),
		Insights:        consolidateInsights(metrics),
	}, nil
}

// patternGroup accumulates one message key's tuples across memories.
type patternGroup struct {
	key            string
	occurrences    int
	solutionCounts map[string]int
	solutionOrder  []string
	components     map[string]struct{}
	compOrder      []string
}

func consolidatePatterns(memories []*store.LearningMemory) []store.LearnedPattern {
	groups := make(map[string]*patternGroup)
	var order []string

	for _, mem := range memories {
		for _, entry := range mem.Entries {
			key := patterns.Fingerprint(entry.Message)
			g, ok := groups[key]
			if !ok {
				g = &patternGroup{
					key:            key,
					solutionCounts: make(map[string]int),
					components:     make(map[string]struct{}),
				}
				groups[key] = g
				order = append(order, key)
			}

			g.occurrences++
			if g.solutionCounts[entry.Solution] == 0 {
				g.solutionOrder = append(g.solutionOrder, entry.Solution)
			}
			g.solutionCounts[entry.Solution]++
			if entry.Component != "" {
				if _, seen := g.components[entry.Component]; !seen {
					g.components[entry.Component] = struct{}{}
					g.compOrder = append(g.compOrder, entry.Component)
				}
			}
		}
	}

	out := make([]store.LearnedPattern, 0, len(order))
	for _, key := range order {
		out = append(out, groups[key].finish())
	}
	return out
}

func (g *patternGroup) finish() store.LearnedPattern {
	distinct := len(g.solutionCounts)
	total := g.occurrences

	consistency := 1 - float64(distinct)/float64(total)
	frequency := math.Min(float64(g.occurrences)/10, 1)
	successRate := int(math.Round((consistency*0.6 + frequency*0.4) * 100))

	// Preferred solution is the modal one; ties go to the solution
	// encountered first.
	var preferred string
	best := 0
	for _, sol := range g.solutionOrder {
		if g.solutionCounts[sol] > best {
			best = g.solutionCounts[sol]
			preferred = sol
		}
	}
	var alternatives []string
	for _, sol := range g.solutionOrder {
		if sol != preferred {
			alternatives = append(alternatives, sol)
		}
	}

	return store.LearnedPattern{
		MessageKey:           g.key,
		Occurrences:          g.occurrences,
		PreferredSolution:    preferred,
		AlternativeSolutions: alternatives,
		SuccessRate:          successRate,
		Confidence:           confidenceTier(successRate),
		Components:           g.compOrder,
	}
}

// confidenceTier buckets a success rate.
func confidenceTier(successRate int) string {
	switch {
	case successRate > 80:
		return "high"
	case successRate > 60:
		return "medium"
	default:
		return "low"
	}
}

func summarize(learned []store.LearnedPattern) store.SnapshotMetrics {
	m := store.SnapshotMetrics{TotalPatterns: len(learned)}
	sum := 0
	for _, p := range learned {
		sum += p.SuccessRate
		switch p.Confidence {
		case "high":
			m.HighConfidence++
		case "medium":
			m.MediumConfidence++
		default:
			m.LowConfidence++
		}
	}
	if len(learned) > 0 {
		m.AverageSuccessRate = float64(sum) / float64(len(learned))
	}
	return m
}

func topPatterns(learned []store.LearnedPattern, n int) []store.LearnedPattern {
	sorted := make([]store.LearnedPattern, len(learned))
	copy(sorted, learned)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SuccessRate > sorted[j].SuccessRate
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func harvestInsights(entries []store.LearningEntry) []string {
	causes := make(map[string]int)
	var order []string
	for _, e := range entries {
		if causes[e.Cause] == 0 {
			order = append(order, e.Cause)
		}
		causes[e.Cause]++
	}

	insights := []string{fmt.Sprintf("harvested %d learning tuple(s) across %d cause(s)", len(entries), len(order))}
	for _, cause := range order {
		if causes[cause] > 1 {
			insights = append(insights, fmt.Sprintf("%q resolved %d times; a shared fix likely exists", cause, causes[cause]))
		}
	}
	return insights
}

func consolidateInsights(m store.SnapshotMetrics) []string {
	insights := []string{
		fmt.Sprintf("%d pattern(s) consolidated, average success rate %.0f", m.TotalPatterns, m.AverageSuccessRate),
	}
	if m.HighConfidence > 0 {
		insights = append(insights, fmt.Sprintf("%d pattern(s) are high confidence and safe to suggest automatically", m.HighConfidence))
	}
	if m.LowConfidence > m.HighConfidence {
		insights = append(insights, "most patterns are low confidence; more resolutions are needed before automation")
	}
	return insights
}
