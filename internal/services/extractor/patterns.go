package extractor

import "strings"

// The absolute URL and upload path patterns need lookbehind, lookahead and a
// quote backreference, none of which RE2 supports, so they are scanned by hand.
//
//   absolute: (["']?)(https?://[^"'<>\n]+?\.\w{2,5})\1 followed by a terminator or end
//   upload:   /upload/[^"'<>\n]+?\.\w{2,5} not preceded by [A-Za-z0-9.-],
//             followed by a terminator or end
//
// Both are case-insensitive and take the shortest body that satisfies the tail.

const uploadPrefix = "/upload/"

// findAbsoluteURLs returns every http(s) URL captured by the absolute pattern
func findAbsoluteURLs(s string) []string {
	lower := asciiLower(s)
	var out []string

	pos := 0
	for pos < len(s) {
		idx := strings.Index(lower[pos:], "http")
		if idx < 0 {
			break
		}
		start := pos + idx

		schemeLen := schemeLength(lower[start:])
		if schemeLen == 0 {
			pos = start + 1
			continue
		}

		// A quote right before the scheme must also close the URL; when that fails
		// the unquoted form is tried, matching the regex engine's backtracking.
		if start > 0 && isQuote(s[start-1]) {
			if end, ok := scanBody(s, start, schemeLen, s[start-1]); ok {
				out = append(out, s[start:end])
				pos = end + 1
				continue
			}
		}
		if end, ok := scanBody(s, start, schemeLen, 0); ok {
			out = append(out, s[start:end])
			pos = end
			continue
		}
		pos = start + 1
	}
	return out
}

// findUploadPaths returns every root-relative /upload/ path captured by the upload pattern
func findUploadPaths(s string) []string {
	lower := asciiLower(s)
	var out []string

	pos := 0
	for pos < len(s) {
		idx := strings.Index(lower[pos:], uploadPrefix)
		if idx < 0 {
			break
		}
		start := pos + idx

		if start > 0 && isPathChar(s[start-1]) {
			pos = start + 1
			continue
		}
		if end, ok := scanBody(s, start, len(uploadPrefix), 0); ok {
			out = append(out, s[start:end])
			pos = end
			continue
		}
		pos = start + 1
	}
	return out
}

// scanBody finds the shortest end such that s[start+prefixLen:end] is one or more
// body characters followed by "." and 2-5 word characters, and the character at end
// satisfies the tail. With closeQuote set, s[end] must be that quote and the
// terminator check applies after it.
func scanBody(s string, start, prefixLen int, closeQuote byte) (int, bool) {
	bodyStart := start + prefixLen
	for end := bodyStart + 1; end <= len(s); end++ {
		if isForbidden(s[end-1]) {
			return 0, false
		}
		if !hasExtension(s, bodyStart, end) {
			continue
		}
		if closeQuote != 0 {
			if end < len(s) && s[end] == closeQuote && isTerminatorAt(s, end+1) {
				return end, true
			}
			continue
		}
		if isTerminatorAt(s, end) {
			return end, true
		}
	}
	return 0, false
}

// hasExtension reports whether s[bodyStart:end] ends with ".<2-5 word chars>" and
// keeps at least one body character before the dot
func hasExtension(s string, bodyStart, end int) bool {
	n := 0
	for i := end - 1; i >= bodyStart; i-- {
		c := s[i]
		if c == '.' {
			return n >= 2 && n <= 5 && i > bodyStart
		}
		if !isWordChar(c) {
			return false
		}
		n++
		if n > 5 {
			return false
		}
	}
	return false
}

func schemeLength(lowerTail string) int {
	switch {
	case strings.HasPrefix(lowerTail, "https://"):
		return len("https://")
	case strings.HasPrefix(lowerTail, "http://"):
		return len("http://")
	}
	return 0
}

func isTerminatorAt(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	switch s[i] {
	case '"', '\'', ' ', '\t', '\n', '\r', '\f', '\v', '<', '>', ']', ')', '}', ',':
		return true
	}
	return false
}

func isForbidden(c byte) bool {
	return c == '"' || c == '\'' || c == '<' || c == '>' || c == '\n'
}

func isQuote(c byte) bool {
	return c == '"' || c == '\''
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isPathChar(c byte) bool {
	return c == '.' || c == '-' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// asciiLower lowercases ASCII letters only, keeping byte offsets aligned with s
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
