package knowledge

import (
	"strings"

	"github.com/driftwoodlabs/triaged/internal/store"
)

// classification is one harvested diagnosis.
type classification struct {
	Cause    string
	Solution string
}

// classifierRule maps a message predicate to a fixed diagnosis. Rules are
// evaluated top to bottom; the first match wins.
type classifierRule struct {
	matches func(string) bool
	verdict classification
}

func containsFold(substr string) func(string) bool {
	lowered := strings.ToLower(substr)
	return func(msg string) bool {
		return strings.Contains(strings.ToLower(msg), lowered)
	}
}

var classifierRules = []classifierRule{
	{
		matches: containsFold("Cannot read properties of undefined"),
		verdict: classification{
			Cause:    "property access on an undefined value",
			Solution: "guard the access with an existence check or optional chaining before dereferencing",
		},
	},
	{
		matches: containsFold("is not a function"),
		verdict: classification{
			Cause:    "calling a value that is not callable",
			Solution: "verify the imported symbol and the shape of the object providing the function",
		},
	},
	{
		matches: containsFold("network"),
		verdict: classification{
			Cause:    "network request failure",
			Solution: "add failure handling around the request and surface a retryable state to the caller",
		},
	},
	{
		matches: containsFold("timeout"),
		verdict: classification{
			Cause:    "operation exceeded its deadline",
			Solution: "raise the deadline for slow dependencies or reduce the amount of work per call",
		},
	},
	{
		matches: containsFold("permission"),
		verdict: classification{
			Cause:    "caller lacked the required permission",
			Solution: "check the caller's role assignment and the resource's access policy",
		},
	},
	{
		matches: containsFold("unique constraint"),
		verdict: classification{
			Cause:    "duplicate write into a unique column",
			Solution: "check for an existing row before inserting, or convert the write to an upsert",
		},
	},
}

// defaultClassification is the fallback when no rule matches.
var defaultClassification = classification{
	Cause:    "unclassified failure",
	Solution: "review the change that resolved this error and document the fix",
}

// classify maps a resolved error's message onto a (cause, solution) pair.
func classify(message string) classification {
	for _, rule := range classifierRules {
		if rule.matches(message) {
			return rule.verdict
		}
	}
	return defaultClassification
}

// entryFor builds the learning tuple for one resolved record.
func entryFor(rec *store.ErrorRecord) store.LearningEntry {
	verdict := classify(rec.Message)
	return store.LearningEntry{
		Message:   rec.Message,
		Cause:     verdict.Cause,
		Solution:  verdict.Solution,
		Component: rec.Component,
		Severity:  rec.Severity,
	}
}
