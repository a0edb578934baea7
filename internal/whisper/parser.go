package whisper

import (
	"regexp"
	"strings"
)

// queryPattern matches "<text><whitespace>@<handle>" at the end of the input.
var queryPattern = regexp.MustCompile(`(?s)^(.*?)\s+@(\w+)$`)

// Query is a parsed inline composition.
type Query struct {
	Secret string
	Target string // as typed, without the leading "@"
}

// Parse extracts the secret text and target handle from an inline query.
// The boolean is false when the input is not a whisper and the caller should
// show usage help instead; that is not an error.
func Parse(raw string) (Query, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Query{}, false
	}

	m := queryPattern.FindStringSubmatch(raw)
	if m == nil {
		return Query{}, false
	}

	secret := strings.TrimSpace(m[1])
	if secret == "" {
		return Query{}, false
	}

	return Query{Secret: secret, Target: m[2]}, true
}

// NormalizeHandle case-folds a handle and strips one leading "@".
func NormalizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	handle = strings.TrimPrefix(handle, "@")
	return strings.ToLower(handle)
}
