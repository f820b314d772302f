package diagnosis

import (
	"encoding/json"

	"github.com/driftwoodlabs/triaged/internal/store"
)

// extensionKey is where the analysis lives in the error record's
// extension blob.
const extensionKey = "ai_analysis"

// Impact is the assessed blast radius of an error.
type Impact struct {
	Severity         string   `json:"severity"`
	AffectedUsers    string   `json:"affected_users"`
	AffectedFeatures []string `json:"affected_features"`
}

// SuggestedFix is the reasoning service's proposed remediation.
type SuggestedFix struct {
	Description string   `json:"description"`
	Example     string   `json:"example"`
	Files       []string `json:"files"`
}

// Analysis is the normalized diagnosis of one error record.
type Analysis struct {
	RootCause            string       `json:"root_cause"`
	TechnicalExplanation string       `json:"technical_explanation"`
	Impact               Impact       `json:"impact"`
	SuggestedFix         SuggestedFix `json:"suggested_fix"`
	PreventionStrategy   string       `json:"prevention_strategy"`
	Confidence           float64      `json:"confidence"`
}

// Result is the diagnoser's response for one invocation.
type Result struct {
	ErrorID         string    `json:"error_id"`
	Analysis        *Analysis `json:"analysis"`
	Recommendations []string  `json:"recommendations"`
	NextSteps       []string  `json:"next_steps"`
}

// AnalysisFromRecord extracts a cached analysis from an error record's
// extension blob. Returns false when none is present or it cannot be
// interpreted.
func AnalysisFromRecord(rec *store.ErrorRecord) (*Analysis, bool) {
	if rec == nil || rec.Extension == nil {
		return nil, false
	}
	val, ok := rec.Extension[extensionKey]
	if !ok {
		return nil, false
	}

	// The blob may hold the typed struct (same process) or a decoded
	// JSON map (round-tripped through the store).
	switch v := val.(type) {
	case *Analysis:
		return v, true
	case Analysis:
		return &v, true
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		var a Analysis
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, false
		}
		if a.RootCause == "" {
			return nil, false
		}
		return &a, true
	}
}
