package patch

import (
	"regexp"
	"strings"
)

// Safety thresholds.
const (
	blockerScore   = 0.5
	warningScore   = 0.7
	approveScore   = 0.8
	autoApplyScore = 0.9
)

const minFixedCodeLen = 10

var (
	// uiHookPattern matches UI-framework hook naming in fixed code.
	uiHookPattern = regexp.MustCompile(`\buse[A-Z]\w*\s*\(`)

	// markupPattern matches an opening markup tag in fixed code.
	markupPattern = regexp.MustCompile(`<[a-zA-Z]`)
)

// placeholderTargets are target-file values models emit instead of a real
// path.
var placeholderTargets = []string{"path/to/", "unknown", "placeholder", "todo"}

// Validate applies the deterministic safety checks to a proposal.
// Blockers force is_safe false; warnings flag for extra review only.
func Validate(p *Proposal) Validation {
	v := Validation{IsSafe: true}

	switch {
	case p.SafetyScore < blockerScore:
		v.IsSafe = false
		v.Blockers = append(v.Blockers, "safety score below 0.5")
	case p.SafetyScore < warningScore:
		v.Warnings = append(v.Warnings, "safety score in the 0.5-0.7 band; review carefully")
	}

	if p.BreakingChanges {
		v.IsSafe = false
		v.Blockers = append(v.Blockers, "patch declares breaking changes")
	}

	if isPlaceholderTarget(p.TargetFile) {
		v.IsSafe = false
		v.Blockers = append(v.Blockers, "target file is missing or a placeholder")
	}

	if len(strings.TrimSpace(p.FixedCode)) < minFixedCodeLen {
		v.Warnings = append(v.Warnings, "fixed code is very short; likely incomplete")
	}

	if uiHookPattern.MatchString(p.FixedCode) {
		v.Warnings = append(v.Warnings, "fixed code calls UI framework hooks; verify hook rules")
	}
	if markupPattern.MatchString(p.FixedCode) {
		v.Warnings = append(v.Warnings, "fixed code contains markup; verify rendering")
	}

	return v
}

func isPlaceholderTarget(target string) bool {
	trimmed := strings.TrimSpace(target)
	if trimmed == "" {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, ph := range placeholderTargets {
		if strings.Contains(lower, ph) {
			return true
		}
	}
	return false
}

// approved reports whether the proposal persists as approved rather than
// suggested.
func approved(p *Proposal) bool {
	return p.SafetyScore >= approveScore && !p.BreakingChanges
}

// autoApplyEligible is stricter than the persistence threshold: approval
// marks reviewed-looking, eligibility marks unattended-safe.
func autoApplyEligible(p *Proposal, v Validation) bool {
	return p.SafetyScore >= autoApplyScore && !p.BreakingChanges && v.IsSafe
}
