package internal

import "strings"

// NormalizeEmail trims surrounding whitespace and lowercases the address. It
// is the single normalization used for lockout keys and backend requests.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MaskEmail masks an address for logging, e.g. "d***@*********.com".
func MaskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "[invalid-email]"
	}

	local := parts[0]
	if len(local) > 1 {
		local = local[:1] + strings.Repeat("*", len(local)-1)
	}

	labels := strings.Split(parts[1], ".")
	if len(labels) > 1 {
		for i := 0; i < len(labels)-1; i++ {
			labels[i] = strings.Repeat("*", len(labels[i]))
		}
	}

	return local + "@" + strings.Join(labels, ".")
}
