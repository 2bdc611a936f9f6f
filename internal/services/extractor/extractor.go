// -----------------------------------------------------------------------
// URL Extractor - Asset URL discovery in HTML, Markdown and plain text
// -----------------------------------------------------------------------

package extractor

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
)

// Result holds the URLs found in one fragment, split by form.
// A URL is never present in both sets.
type Result struct {
	Absolute map[string]struct{}
	Relative map[string]struct{}
}

// NewResult returns an empty Result
func NewResult() *Result {
	return &Result{
		Absolute: make(map[string]struct{}),
		Relative: make(map[string]struct{}),
	}
}

// Len returns the number of distinct URLs
func (r *Result) Len() int {
	return len(r.Absolute) + len(r.Relative)
}

// Merge adds every URL of other into r
func (r *Result) Merge(other *Result) {
	for u := range other.Absolute {
		r.Absolute[u] = struct{}{}
	}
	for u := range other.Relative {
		r.Relative[u] = struct{}{}
	}
}

// add classifies a raw captured URL and records it
func (r *Result) add(raw string) {
	decoded := decode(strings.TrimSpace(raw))
	if !isCandidate(decoded) {
		return
	}
	if IsFullURL(decoded) {
		r.Absolute[decoded] = struct{}{}
	} else if strings.HasPrefix(decoded, "/") {
		r.Relative[decoded] = struct{}{}
	}
}

// htmlSources lists the element/attribute pairs that may carry an asset URL
var htmlSources = []struct {
	selector string
	attr     string
}{
	{"img[src]", "src"},
	{"a[href]", "href"},
	{"video[src]", "src"},
	{"audio[src]", "src"},
	{"source[src]", "src"},
	{"iframe[src]", "src"},
	{"embed[src]", "src"},
	{"object[data]", "data"},
}

var (
	markdownImagePattern = regexp.MustCompile(`!\[[^\]]*\]\(([^)"]+)(?:\s+"[^"]*")?\)`)
	markdownLinkPattern  = regexp.MustCompile(`\[[^\]]*\]\(([^)"]+)(?:\s+"[^"]*")?\)`)
	styleURLPattern      = regexp.MustCompile(`url\(['"]?([^)'"]+)['"]?\)`)
)

// Extractor finds candidate asset URLs in content fragments
type Extractor struct {
	logger arbor.ILogger
}

// NewExtractor creates a new extractor
func NewExtractor(logger arbor.ILogger) *Extractor {
	return &Extractor{
		logger: logger,
	}
}

// Extract returns the URLs contained in content.
// HTML is parsed as a DOM; anything else (or HTML that fails to parse) goes through
// the Markdown/text patterns.
func (e *Extractor) Extract(content string, isHTML bool) *Result {
	if strings.TrimSpace(content) == "" {
		return NewResult()
	}

	if isHTML {
		result, err := e.extractHTML(content)
		if err == nil {
			return result
		}
		e.logger.Debug().Err(err).Msg("HTML parse failed, falling back to text extraction")
	}

	return e.extractText(content)
}

// Direct classifies a single URL taken from a structured field such as a cover
// or avatar. Paths without a leading "/" are accepted and normalized.
func Direct(raw string) *Result {
	result := NewResult()
	decoded := decode(strings.TrimSpace(raw))
	if !isCandidate(decoded) {
		return result
	}
	if IsFullURL(decoded) {
		result.Absolute[decoded] = struct{}{}
	} else if p, ok := NormalizeRelative(decoded); ok {
		result.Relative[p] = struct{}{}
	}
	return result
}

// extractHTML collects src/href/data attributes and inline style url() values
func (e *Extractor) extractHTML(html string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML for URL extraction: %w", err)
	}

	result := NewResult()

	for _, source := range htmlSources {
		attr := source.attr
		doc.Find(source.selector).Each(func(i int, s *goquery.Selection) {
			if value, exists := s.Attr(attr); exists {
				result.add(value)
			}
		})
	}

	doc.Find("[style]").Each(func(i int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		for _, m := range styleURLPattern.FindAllStringSubmatch(style, -1) {
			result.add(m[1])
		}
	})

	return result, nil
}

// extractText runs the Markdown image, Markdown link, absolute URL and upload path
// patterns independently over content
func (e *Extractor) extractText(content string) *Result {
	result := NewResult()

	for _, m := range markdownImagePattern.FindAllStringSubmatch(content, -1) {
		result.add(m[1])
	}

	// Links preceded by '!' are images and already handled above
	for _, loc := range markdownLinkPattern.FindAllStringSubmatchIndex(content, -1) {
		if loc[0] > 0 && content[loc[0]-1] == '!' {
			continue
		}
		result.add(content[loc[2]:loc[3]])
	}

	for _, u := range findAbsoluteURLs(content) {
		result.add(u)
	}

	for _, p := range findUploadPaths(content) {
		result.add(p)
	}

	return result
}

// IsFullURL reports whether u is an absolute http(s) URL
func IsFullURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// ExtractPath returns the path component of an absolute URL.
// Non-absolute input is returned unchanged.
func ExtractPath(fullURL string) string {
	if !IsFullURL(fullURL) {
		return fullURL
	}

	if parsed, err := url.Parse(fullURL); err == nil {
		return parsed.Path
	}

	// Manual fallback: everything from the first '/' after the authority
	idx := strings.Index(fullURL, "://")
	if idx > 0 {
		if pathStart := strings.Index(fullURL[idx+3:], "/"); pathStart >= 0 {
			return fullURL[idx+3+pathStart:]
		}
	}
	return fullURL
}

// NormalizeRelative cleans a relative path for map keys: "./" is stripped and a
// leading "/" ensured. Paths climbing with "../" are rejected (ok=false).
func NormalizeRelative(p string) (string, bool) {
	p = strings.TrimSpace(p)
	if p == "" || strings.HasPrefix(p, "../") || strings.Contains(p, "/../") {
		return "", false
	}
	p = strings.TrimPrefix(p, "./")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p, true
}

// JoinBase resolves a root-relative path against the external base URL
func JoinBase(baseURL, p string) string {
	if baseURL == "" {
		return p
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(p, "/")
}

// DecodeURL percent-decodes u, returning it unchanged when an escape is invalid
func DecodeURL(u string) string {
	return decode(u)
}

func decode(u string) string {
	decoded, err := url.PathUnescape(u)
	if err != nil {
		return u
	}
	return decoded
}

func isCandidate(u string) bool {
	if u == "" {
		return false
	}
	for _, prefix := range []string{"data:", "javascript:", "mailto:", "#"} {
		if strings.HasPrefix(u, prefix) {
			return false
		}
	}
	return true
}
