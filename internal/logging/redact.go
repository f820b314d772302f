// internal/logging/redact.go
package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

const redactedPlaceholder = "[REDACTED]"

// DefaultRedactKeys lists the field keys scrubbed out of the box.
func DefaultRedactKeys() []string {
	return []string{
		"password", "secret", "token", "api_key",
		"authorization", "bearer", "credential", "private_key",
	}
}

// scrubCore replaces the values of sensitive fields before the wrapped
// core sees them. A field is sensitive when its key contains one of the
// configured keys, compared case-insensitively.
type scrubCore struct {
	zapcore.Core
	keys []string
}

func newScrubCore(core zapcore.Core, keys []string) zapcore.Core {
	if len(keys) == 0 {
		return core
	}
	lowered := make([]string, len(keys))
	for i, k := range keys {
		lowered[i] = strings.ToLower(k)
	}
	return &scrubCore{Core: core, keys: lowered}
}

func (c *scrubCore) sensitive(key string) bool {
	key = strings.ToLower(key)
	for _, k := range c.keys {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}

// scrub copies the field slice only when something needs replacing, so
// the common clean entry costs no allocation.
func (c *scrubCore) scrub(fields []zapcore.Field) []zapcore.Field {
	out := fields
	copied := false
	for i, f := range fields {
		if !c.sensitive(f.Key) {
			continue
		}
		if !copied {
			out = make([]zapcore.Field, len(fields))
			copy(out, fields)
			copied = true
		}
		out[i] = zapcore.Field{
			Key:    f.Key,
			Type:   zapcore.StringType,
			String: redactedPlaceholder,
		}
	}
	return out
}

func (c *scrubCore) With(fields []zapcore.Field) zapcore.Core {
	return &scrubCore{Core: c.Core.With(c.scrub(fields)), keys: c.keys}
}

func (c *scrubCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *scrubCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, c.scrub(fields))
}
