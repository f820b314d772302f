package reasoning

import (
	"context"
	"encoding/json"
	"sync"
)

// Stub is a canned-response Client used by tests and the "stub" provider.
// Responses are returned in order; when exhausted, the last one repeats.
// A nil or empty response list yields an empty JSON object.
type Stub struct {
	mu        sync.Mutex
	responses []json.RawMessage
	idx       int

	// Err, when set, is returned by every Generate call.
	Err error

	// Prompts records every prompt received, for assertions.
	Prompts []string
}

// NewStub creates a stub returning the given documents in order.
func NewStub(responses []json.RawMessage) *Stub {
	return &Stub{responses: responses}
}

// Generate implements Client.
func (s *Stub) Generate(ctx context.Context, prompt string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Prompts = append(s.Prompts, prompt)

	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.responses) == 0 {
		return json.RawMessage(`{}`), nil
	}

	resp := s.responses[s.idx]
	if s.idx < len(s.responses)-1 {
		s.idx++
	}
	return resp, nil
}
