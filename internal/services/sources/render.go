package sources

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
)

// renderer turns stored bodies into extractable fragments
type renderer struct {
	md goldmark.Markdown
}

func newRenderer() *renderer {
	return &renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			// Raw HTML embedded in markdown must survive so its img/src attributes are visible
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
	}
}

// body returns the fragment for a content body in the given format.
// Markdown is rendered to HTML; a render failure falls back to the raw text.
func (r *renderer) body(format, body, kind string) interfaces.ContentFragment {
	switch format {
	case models.FormatMarkdown:
		var buf bytes.Buffer
		if err := r.md.Convert([]byte(body), &buf); err != nil {
			return interfaces.ContentFragment{Body: body, ReferenceKind: kind}
		}
		return interfaces.ContentFragment{Body: buf.String(), IsHTML: true, ReferenceKind: kind}
	case models.FormatText:
		return interfaces.ContentFragment{Body: body, ReferenceKind: kind}
	default:
		return interfaces.ContentFragment{Body: body, IsHTML: true, ReferenceKind: kind}
	}
}

// direct returns a fragment for a single URL field
func direct(u, kind string) interfaces.ContentFragment {
	return interfaces.ContentFragment{Body: u, Direct: true, ReferenceKind: kind}
}
