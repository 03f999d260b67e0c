package sheetstore

import (
	"fmt"
	"strings"
)

// FormatReference renders a single reference as "[token]"
func FormatReference(token string) string {
	return "[" + token + "]"
}

// ParseReference extracts the token of a single reference
func ParseReference(s string) (string, bool) {
	inner, ok := unbracket(s)
	if !ok {
		return "", false
	}
	return inner, true
}

// FormatReferenceList renders "[t1,t2,...]"
func FormatReferenceList(tokens []string) string {
	return "[" + strings.Join(tokens, ",") + "]"
}

// ParseReferenceList returns the tokens of a "[t1,t2,...]" string
func ParseReferenceList(s string) ([]string, error) {
	inner, ok := unbracket(s)
	if !ok {
		return nil, fmt.Errorf("malformed reference list %q", s)
	}
	return splitTokens(inner), nil
}

// FormatReferenceMap renders "[[k1],[v1],[k2],[v2],...]"
func FormatReferenceMap(pairs [][2]string) string {
	parts := make([]string, 0, len(pairs)*2)
	for _, p := range pairs {
		parts = append(parts, FormatReference(p[0]), FormatReference(p[1]))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// ParseReferenceMap returns the key/value token pairs of a map string in
// the order they were written
func ParseReferenceMap(s string) ([][2]string, error) {
	inner, ok := unbracket(s)
	if !ok {
		return nil, fmt.Errorf("malformed reference map %q", s)
	}
	parts := splitTokens(inner)
	if len(parts)%2 != 0 {
		return nil, fmt.Errorf("reference map %q has an odd number of components", s)
	}
	pairs := make([][2]string, 0, len(parts)/2)
	for i := 0; i < len(parts); i += 2 {
		k, okK := unbracket(parts[i])
		v, okV := unbracket(parts[i+1])
		if !okK || !okV {
			return nil, fmt.Errorf("reference map %q has an unbracketed component", s)
		}
		pairs = append(pairs, [2]string{k, v})
	}
	return pairs, nil
}

func unbracket(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return "", false
	}
	return s[1 : len(s)-1], true
}

func splitTokens(inner string) []string {
	if strings.TrimSpace(inner) == "" {
		return []string{}
	}
	parts := strings.Split(inner, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
