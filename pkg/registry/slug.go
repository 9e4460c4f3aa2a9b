package registry

import "strings"

// Slug derives an agent id from its name: lowercase, spaces and underscores
// become hyphens, everything else that is not alphanumeric or a hyphen is
// dropped. "Customer Support Bot" becomes "customer-support-bot".
func Slug(name string) string {
	lowered := strings.ToLower(name)

	var b strings.Builder
	b.Grow(len(lowered))

	for _, r := range lowered {
		switch {
		case r == ' ' || r == '_':
			b.WriteByte('-')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}

	return b.String()
}
