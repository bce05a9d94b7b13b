package domain

import "strings"

// NormalizeEventType maps legacy event-type names onto their current form.
// Old streams carry a ".v1." infix (e.g. "user.v1.added"); reducers treat
// those as aliases of the plain name.
func NormalizeEventType(eventType string) string {
	return strings.ReplaceAll(eventType, ".v1.", ".")
}
