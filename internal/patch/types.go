package patch

import (
	"github.com/driftwoodlabs/triaged/internal/diagnosis"
	"github.com/driftwoodlabs/triaged/internal/store"
)

// Proposal is the reasoning service's structured patch response.
type Proposal struct {
	Kind                 string   `json:"kind"`
	TargetFile           string   `json:"target_file"`
	Line                 int      `json:"line"`
	OriginalCode         string   `json:"original_code"`
	FixedCode            string   `json:"fixed_code"`
	Diff                 string   `json:"diff"`
	Explanation          string   `json:"explanation"`
	SafetyScore          float64  `json:"safety_score"`
	BreakingChanges      bool     `json:"breaking_changes"`
	TestSuggestions      []string `json:"test_suggestions"`
	RollbackInstructions string   `json:"rollback_instructions"`
}

// Validation is the deterministic safety verdict for one proposal.
type Validation struct {
	IsSafe   bool     `json:"is_safe"`
	Blockers []string `json:"blockers,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Request identifies what to generate a patch for. At least one of
// ErrorID and TaskID is required; a task-only request resolves the error
// record linked from the task. Analysis, when supplied, skips the
// diagnosis chain.
type Request struct {
	ErrorID  string
	TaskID   string
	Analysis *diagnosis.Analysis
}

// Result is the generator's response for one invocation.
type Result struct {
	PatchID           string            `json:"patch_id"`
	Patch             *Proposal         `json:"patch"`
	Validation        Validation        `json:"validation"`
	Status            store.PatchStatus `json:"status"`
	AutoApplyEligible bool              `json:"auto_apply_eligible"`
	Recommendations   []string          `json:"recommendations"`
}
