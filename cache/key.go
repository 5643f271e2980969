package cache

import (
	"fmt"
	"strings"
)

// Key joins parts into a cache key. Keys built from the same leading parts
// share a prefix usable with InvalidatePrefix.
func Key(parts ...any) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = fmt.Sprint(p)
	}
	return strings.Join(s, ":")
}

// Prefix returns the key prefix covering every Key(parts..., more...).
func Prefix(parts ...any) string {
	return Key(parts...) + ":"
}
