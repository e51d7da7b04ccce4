package emailaddr

import "strings"

const maskPlaceholder = "***"

// Mask obscures the local part of an address for logs and responses.
// Up to three leading characters and the last one stay visible; local parts
// of three characters or fewer keep only the first. The domain is unchanged.
// Input without '@' is returned as is.
func Mask(address string) string {
	local, domain, ok := strings.Cut(address, "@")
	if !ok {
		return address
	}

	r := []rune(local)
	switch {
	case len(r) == 0:
		return maskPlaceholder + "@" + domain
	case len(r) <= 3:
		return string(r[0]) + maskPlaceholder + "@" + domain
	default:
		return string(r[:3]) + maskPlaceholder + string(r[len(r)-1]) + "@" + domain
	}
}
