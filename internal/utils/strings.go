package utils

import (
	"strconv"
	"strings"
)

// FirstNonEmpty returns the first value that is not blank after trimming.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// Dedupe returns the non-empty values of slice in first-seen order without duplicates.
func Dedupe(slice []string) []string {
	out := make([]string, 0, len(slice))
	seen := make(map[string]struct{}, len(slice))
	for _, v := range slice {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Contains reports whether v is in slice.
func Contains(slice []string, v string) bool {
	for _, s := range slice {
		if s == v {
			return true
		}
	}
	return false
}

// Key joins prefix and quoted parts into a cache or counter key. Quoting keeps
// parts that contain the separator from colliding with other part splits.
func Key(prefix string, parts ...string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(strconv.Quote(p))
	}
	return b.String()
}
