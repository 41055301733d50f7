// Package markdown renders markdown source to HTML fragments for the
// editor preview and the PDF exporter.
package markdown

import (
	"bytes"

	"markdraft/pkg/logger"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// errorFragment is returned whenever conversion fails internally. Render
// never raises; the preview shows this fragment instead.
const errorFragment = "<p>Error rendering markdown</p>"

type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer configures goldmark to match the editor's dialect: GFM
// tables and task lists, footnotes, raw HTML passthrough, autolinks,
// typographic punctuation, hard line breaks, and chroma-highlighted code
// blocks with inline styles so the output survives PDF export unstyled.
func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			extension.Linkify,
			extension.Typographer,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(false),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithUnsafe(), // editor trusts its own author
		),
	)
	return &Renderer{md: md}
}

// Render converts markdown to an HTML fragment. Empty input yields an
// empty string; an internal failure yields a fixed error fragment, never
// an error.
func (r *Renderer) Render(markdownText string) string {
	if markdownText == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdownText), &buf); err != nil {
		logger.Sugar.Errorf("Error rendering markdown: %v", err)
		return errorFragment
	}
	return buf.String()
}
