// Package store defines the entity store boundary used by every pipeline
// stage. The store itself is an external collaborator; this package holds
// the capability interface limited to the operations the pipeline uses,
// plus an in-memory implementation for tests and local mode.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrVersionConflict is returned when a knowledge-base snapshot with
	// the same version already exists.
	ErrVersionConflict = errors.New("knowledge base version conflict")
)

// Store is the persistence capability consumed by the pipeline stages.
type Store interface {
	// CreateError persists a new error record. Used by the report
	// generator's self-logging loop; ingest itself is external.
	CreateError(ctx context.Context, rec *ErrorRecord) error

	// GetError retrieves one error record. Returns ErrNotFound if absent.
	GetError(ctx context.Context, id string) (*ErrorRecord, error)

	// UpdateError replaces an existing error record.
	UpdateError(ctx context.Context, rec *ErrorRecord) error

	// ListErrorsSince returns records whose effective timestamp (last
	// seen, falling back to created) is at or after since.
	ListErrorsSince(ctx context.Context, since time.Time) ([]*ErrorRecord, error)

	// ListResolvedErrorsSince returns resolved records updated at or
	// after since.
	ListResolvedErrorsSince(ctx context.Context, since time.Time) ([]*ErrorRecord, error)

	// CountErrorsByMessage returns how many records share a message.
	CountErrorsByMessage(ctx context.Context, message string) (int, error)

	// CreateTask persists a new remediation task.
	CreateTask(ctx context.Context, task *RemediationTask) error

	// GetTask retrieves one remediation task. Returns ErrNotFound if
	// absent.
	GetTask(ctx context.Context, id string) (*RemediationTask, error)

	// CountTasksForError returns how many tasks reference an error record.
	CountTasksForError(ctx context.Context, errorID string) (int, error)

	// CreatePatch persists a new patch suggestion.
	CreatePatch(ctx context.Context, patch *PatchSuggestion) error

	// AppendAction appends one ledger entry. Entries are write-once.
	AppendAction(ctx context.Context, action *AgentAction) error

	// CreateMemory persists one learning-memory snapshot.
	CreateMemory(ctx context.Context, mem *LearningMemory) error

	// ListRecentMemories returns up to n memories, newest first.
	ListRecentMemories(ctx context.Context, n int) ([]*LearningMemory, error)

	// MaxSnapshotVersion returns the highest knowledge-base version, or 0
	// when no snapshot exists.
	MaxSnapshotVersion(ctx context.Context) (int, error)

	// CreateSnapshot persists a new knowledge-base snapshot. Returns
	// ErrVersionConflict if a snapshot with the same version exists.
	CreateSnapshot(ctx context.Context, snap *KnowledgeBaseSnapshot) error
}
