package extractor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestMarkdownImageWithTitleIsRelative(t *testing.T) {
	e := NewExtractor(arbor.NewLogger())

	result := e.Extract(`![x](/upload/a.jpg "t")`, false)

	assert.ElementsMatch(t, []string{"/upload/a.jpg"}, keys(result.Relative))
	assert.Empty(t, result.Absolute)
}

func TestMarkdownLinkAndImage(t *testing.T) {
	e := NewExtractor(arbor.NewLogger())

	content := "see [doc](https://cdn.example.com/files/guide.pdf) and ![pic](https://cdn.example.com/p.png)"
	result := e.Extract(content, false)

	assert.ElementsMatch(t, []string{
		"https://cdn.example.com/files/guide.pdf",
		"https://cdn.example.com/p.png",
	}, keys(result.Absolute))
}

func TestAbsoluteURLInJSON(t *testing.T) {
	e := NewExtractor(arbor.NewLogger())

	content := `{"logo":"https://example.com/upload/logo.png","bg":"/upload/bg.webp","n":1}`
	result := e.Extract(content, false)

	assert.ElementsMatch(t, []string{"https://example.com/upload/logo.png"}, keys(result.Absolute))
	assert.ElementsMatch(t, []string{"/upload/bg.webp"}, keys(result.Relative))
}

func TestUploadPathNeedsBoundary(t *testing.T) {
	e := NewExtractor(arbor.NewLogger())

	// Preceded by a path character: part of another URL, not a root-relative path
	result := e.Extract("cdn.example.com/upload/a.png", false)
	assert.Empty(t, result.Relative)

	result = e.Extract("path: /UPLOAD/Photo.JPG, next", false)
	assert.ElementsMatch(t, []string{"/UPLOAD/Photo.JPG"}, keys(result.Relative))
}

func TestUploadPathShortestMatch(t *testing.T) {
	e := NewExtractor(arbor.NewLogger())

	result := e.Extract("/upload/a.b.jpg)", false)
	assert.ElementsMatch(t, []string{"/upload/a.b.jpg"}, keys(result.Relative))
}

func TestQuotedAbsoluteURLMayContainSpaces(t *testing.T) {
	e := NewExtractor(arbor.NewLogger())

	result := e.Extract(`"https://a.com/x.jpg more.png"`, false)
	assert.ElementsMatch(t, []string{"https://a.com/x.jpg more.png"}, keys(result.Absolute))

	result = e.Extract(`https://a.com/x.jpg more.png`, false)
	assert.ElementsMatch(t, []string{"https://a.com/x.jpg"}, keys(result.Absolute))
}

func TestHTMLAttributesAndStyle(t *testing.T) {
	e := NewExtractor(arbor.NewLogger())

	html := `<p><img src="/upload/one.png"><a href="https://ex.com/doc.pdf">doc</a>
<video src="/upload/clip.mp4"></video><object data="/upload/flash.swf"></object>
<div style="background: url('/upload/bg.jpg') no-repeat"></div>
<a href="#top">top</a><a href="mailto:a@b.c">mail</a><img src="data:image/png;base64,AAA"></p>`

	result := e.Extract(html, true)

	assert.ElementsMatch(t, []string{"/upload/one.png", "/upload/clip.mp4", "/upload/flash.swf", "/upload/bg.jpg"}, keys(result.Relative))
	assert.ElementsMatch(t, []string{"https://ex.com/doc.pdf"}, keys(result.Absolute))
}

func TestRejectedSchemesAndExclusiveClassification(t *testing.T) {
	e := NewExtractor(arbor.NewLogger())

	inputs := []struct {
		content string
		isHTML  bool
	}{
		{`<a href="javascript:void(0)">x</a><a href="#frag">y</a><a href="relative/page">z</a>`, true},
		{`[a](mailto:x@y.z) [b](#anchor) [c](data:text/plain,hi) [d](/upload/ok.png)`, false},
		{`<img src="https://h.com/a.png"><img src="/upload/a.png">`, true},
	}

	for _, in := range inputs {
		result := e.Extract(in.content, in.isHTML)
		for u := range result.Absolute {
			_, dup := result.Relative[u]
			assert.False(t, dup, "url %s classified twice", u)
			assert.True(t, IsFullURL(u))
		}
		for u := range result.Relative {
			assert.True(t, strings.HasPrefix(u, "/"))
		}
		for _, u := range append(keys(result.Absolute), keys(result.Relative)...) {
			for _, bad := range []string{"data:", "javascript:", "mailto:", "#"} {
				assert.False(t, strings.HasPrefix(u, bad), "rejected scheme leaked: %s", u)
			}
		}
	}
}

func TestPercentDecoding(t *testing.T) {
	e := NewExtractor(arbor.NewLogger())

	result := e.Extract(`<img src="/upload/my%20photo.png"><img src="/upload/bad%zz.png">`, true)

	assert.ElementsMatch(t, []string{"/upload/my photo.png", "/upload/bad%zz.png"}, keys(result.Relative))
}

func TestEmptyContent(t *testing.T) {
	e := NewExtractor(arbor.NewLogger())
	assert.Equal(t, 0, e.Extract("   ", true).Len())
}

func TestExtractPath(t *testing.T) {
	assert.Equal(t, "/upload/a.png", ExtractPath("https://example.com/upload/a.png?x=1"))
	assert.Equal(t, "/upload/a.png", ExtractPath("/upload/a.png"))
	// Invalid host escape makes url.Parse fail; the manual fallback still finds the path
	assert.Equal(t, "/upload/a.png", ExtractPath("http://exa%zzmple.com/upload/a.png"))
}

func TestNormalizeRelative(t *testing.T) {
	p, ok := NormalizeRelative("./upload/a.png")
	assert.True(t, ok)
	assert.Equal(t, "/upload/a.png", p)

	_, ok = NormalizeRelative("../secret.png")
	assert.False(t, ok)

	p, ok = NormalizeRelative("/upload/b.png")
	assert.True(t, ok)
	assert.Equal(t, "/upload/b.png", p)
}

func TestJoinBase(t *testing.T) {
	assert.Equal(t, "https://blog.example.com/upload/a.png", JoinBase("https://blog.example.com/", "/upload/a.png"))
	assert.Equal(t, "/upload/a.png", JoinBase("", "/upload/a.png"))
}

func TestDirect(t *testing.T) {
	r := Direct("upload/cover%20image.jpg")
	assert.Contains(t, r.Relative, "/upload/cover image.jpg")
	assert.Empty(t, r.Absolute)

	r = Direct("https://cdn.example.com/a.png")
	assert.Contains(t, r.Absolute, "https://cdn.example.com/a.png")

	assert.Equal(t, 0, Direct("data:image/png;base64,AAAA").Len())
	assert.Equal(t, 0, Direct("../escape.png").Len())
}
