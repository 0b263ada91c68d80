package audit

import "strings"

// sensitiveKeys are matched case-insensitively as substrings of a map key
// (spec §4.4: "password, secret, apiKey, privateKey, token, key,
// credential"). Grounded on the teacher's internal/secrets.Redactor
// isSensitiveKey list, narrowed to exactly the spec's closed set.
var sensitiveKeys = []string{
	"password", "secret", "apikey", "privatekey", "token", "key", "credential",
}

const redactedValue = "[REDACTED]"

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// RedactMap walks a free-form map and replaces any value whose key matches
// the sensitive-key rule with the literal "[REDACTED]", recursing into
// nested maps (spec §4.4: "Nested objects are walked"). The rule is
// deterministic: the same input always redacts the same keys, so stored
// and exported forms agree (spec §4.4 last sentence).
func RedactMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if isSensitiveKey(k) {
			out[k] = redactedValue
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return RedactMap(val)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = redactValue(item)
		}
		return result
	default:
		return val
	}
}
