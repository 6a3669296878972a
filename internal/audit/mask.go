package audit

import "strings"

// MaskToken replaces the value of every sensitive field. It is stable, so
// masking already-masked data is a no-op.
const MaskToken = "***"

// DefaultSensitivePatterns covers the usual credential-bearing field names.
// Matching is a case-insensitive substring test against the field key.
var DefaultSensitivePatterns = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"credential",
	"authorization",
}

// Masker redacts sensitive fields from audit detail payloads.
type Masker struct {
	patterns []string
}

// NewMasker builds a masker for the given key patterns. Nil falls back to
// DefaultSensitivePatterns.
func NewMasker(patterns []string) *Masker {
	if patterns == nil {
		patterns = DefaultSensitivePatterns
	}
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(strings.ToLower(p))
		if p != "" {
			lowered = append(lowered, p)
		}
	}
	return &Masker{patterns: lowered}
}

// Mask returns a masked copy of detail, recursing into nested mappings and
// sequences of mappings. The input is never modified.
func (m *Masker) Mask(detail map[string]any) map[string]any {
	if detail == nil {
		return nil
	}
	out := make(map[string]any, len(detail))
	for key, value := range detail {
		if m.sensitive(key) {
			out[key] = MaskToken
			continue
		}
		out[key] = m.maskValue(value)
	}
	return out
}

func (m *Masker) maskValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return m.Mask(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = m.maskValue(item)
		}
		return out
	default:
		return value
	}
}

func (m *Masker) sensitive(key string) bool {
	lowered := strings.ToLower(key)
	for _, p := range m.patterns {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}
