package reasoning

import (
	"bytes"
	"encoding/json"

	"github.com/driftwoodlabs/triaged/internal/fault"
)

// Decode validates a raw reasoning document against a response schema in
// one step. Model output wrapped in markdown code fences is unwrapped
// first. An undecodable document fails the whole invocation; callers must
// not write partial state after a Decode error.
func Decode(raw json.RawMessage, v any) error {
	data := stripFences(raw)

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return fault.Wrap(fault.KindUpstreamFailure, "reasoning response does not match schema", err)
	}
	return nil
}

// stripFences removes a surrounding ```json ... ``` block if present.
func stripFences(data []byte) []byte {
	trimmed := bytes.TrimSpace(data)
	if !bytes.HasPrefix(trimmed, []byte("```")) {
		return trimmed
	}

	// Drop the opening fence line and any language tag.
	if idx := bytes.IndexByte(trimmed, '\n'); idx != -1 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = bytes.TrimSuffix(bytes.TrimSpace(trimmed), []byte("```"))
	return bytes.TrimSpace(trimmed)
}
