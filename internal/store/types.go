package store

import "time"

// Severity is the reported severity of an error record.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for comparison. Unknown severities rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// ErrorStatus is the lifecycle status of an error record.
type ErrorStatus string

const (
	ErrorStatusNew        ErrorStatus = "new"
	ErrorStatusInAnalysis ErrorStatus = "in_analysis"
	ErrorStatusResolved   ErrorStatus = "resolved"
)

// ErrorRecord is one ingested error from the external reporting channel.
// The pipeline never deletes records; the diagnoser writes its analysis
// into Extension and may flip Status, human resolution sets resolved.
type ErrorRecord struct {
	ID         string         `json:"id"`
	Message    string         `json:"message"`
	StackTrace string         `json:"stack_trace,omitempty"`
	File       string         `json:"file,omitempty"`
	Line       int            `json:"line,omitempty"`
	Column     int            `json:"column,omitempty"`
	Severity   Severity       `json:"severity"`
	Component  string         `json:"component,omitempty"`
	Status     ErrorStatus    `json:"status"`
	FirstSeen  time.Time      `json:"first_seen"`
	LastSeen   time.Time      `json:"last_seen"`
	Created    time.Time      `json:"created"`
	Updated    time.Time      `json:"updated"`
	Extension  map[string]any `json:"extension,omitempty"`
}

// EffectiveTime is the timestamp used for windowing: LastSeen when set,
// otherwise Created.
func (r *ErrorRecord) EffectiveTime() time.Time {
	if !r.LastSeen.IsZero() {
		return r.LastSeen
	}
	return r.Created
}

// TaskStatus is the lifecycle status of a remediation task.
type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "open"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Priority orders remediation work.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"

	// PriorityCritical is used by ledger summary entries only; tasks top
	// out at urgent.
	PriorityCritical Priority = "critical"
)

// RemediationTask is a unit of remediation work created by the orchestrator
// or a manual patch flow. Updated externally as work progresses.
type RemediationTask struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	ErrorID     string     `json:"error_id,omitempty"`
	Component   string     `json:"component,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
	Created     time.Time  `json:"created"`
}

// PatchKind is the kind of change a patch proposes.
type PatchKind string

const (
	PatchKindEdit   PatchKind = "edit"
	PatchKindCreate PatchKind = "create"
	PatchKindDelete PatchKind = "delete"
)

// PatchStatus is the review status of a patch suggestion.
type PatchStatus string

const (
	PatchStatusSuggested PatchStatus = "suggested"
	PatchStatusApproved  PatchStatus = "approved"
)

// PatchSuggestion is one proposed code change. Immutable after creation
// except for status transitions by human review.
type PatchSuggestion struct {
	ID             string      `json:"id"`
	TaskID         string      `json:"task_id,omitempty"`
	ErrorID        string      `json:"error_id,omitempty"`
	TargetFile     string      `json:"target_file"`
	Kind           PatchKind   `json:"kind"`
	Diff           string      `json:"diff,omitempty"`
	Content        string      `json:"content,omitempty"`
	SafetyScore    float64     `json:"safety_score"`
	BreakingChange bool        `json:"breaking_change"`
	Status         PatchStatus `json:"status"`
	Created        time.Time   `json:"created"`
}

// Initiator identifies who triggered a pipeline stage.
type Initiator string

const (
	InitiatorSystem Initiator = "system"
	InitiatorUser   Initiator = "user"
)

// AgentAction is one append-only ledger entry describing a stage execution.
// Never mutated or deleted by the pipeline.
type AgentAction struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Status    string         `json:"status"`
	Priority  Priority       `json:"priority"`
	Result    string         `json:"result"`
	Context   map[string]any `json:"context,omitempty"`
	ErrorID   string         `json:"error_id,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	Initiator Initiator      `json:"initiator"`
	Created   time.Time      `json:"created"`
}

// LearningEntry is one harvested (cause, solution) tuple.
type LearningEntry struct {
	Message   string   `json:"message"`
	Cause     string   `json:"cause"`
	Solution  string   `json:"solution"`
	Component string   `json:"component,omitempty"`
	Severity  Severity `json:"severity"`
}

// LearningMemory is one harvest-run snapshot. Created, never mutated.
type LearningMemory struct {
	ID      string          `json:"id"`
	Entries []LearningEntry `json:"entries"`
	Count   int             `json:"count"`
	Created time.Time       `json:"created"`
}

// LearnedPattern is one consolidated message-to-solution pattern.
type LearnedPattern struct {
	MessageKey           string   `json:"message_key"`
	Occurrences          int      `json:"occurrences"`
	PreferredSolution    string   `json:"preferred_solution"`
	AlternativeSolutions []string `json:"alternative_solutions,omitempty"`
	SuccessRate          int      `json:"success_rate"`
	Confidence           string   `json:"confidence"`
	Components           []string `json:"components,omitempty"`
}

// SnapshotMetrics summarizes one knowledge-base snapshot.
type SnapshotMetrics struct {
	TotalPatterns      int     `json:"total_patterns"`
	HighConfidence     int     `json:"high_confidence"`
	MediumConfidence   int     `json:"medium_confidence"`
	LowConfidence      int     `json:"low_confidence"`
	AverageSuccessRate float64 `json:"average_success_rate"`
}

// KnowledgeBaseSnapshot is one immutable, versioned knowledge-base state.
// Versions form a strictly increasing sequence; snapshots are never
// updated in place.
type KnowledgeBaseSnapshot struct {
	ID       string           `json:"id"`
	Version  int              `json:"version"`
	Patterns []LearnedPattern `json:"patterns"`
	Metrics  SnapshotMetrics  `json:"metrics"`
	Created  time.Time        `json:"created"`
}
