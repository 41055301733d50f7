// Package pdf turns pre-rendered HTML fragments into downloadable PDF
// files via headless Chrome.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

var (
	ErrEmptyContent   = errors.New("no content to export")
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageCreate     = errors.New("failed to create browser page")
	ErrPageLoad       = errors.New("failed to load page")
	ErrGeneration     = errors.New("PDF generation failed")
)

// DefaultStem names the file when the caller does not.
const DefaultStem = "markdown-document"

// renderer abstracts the browser so tests run without one.
type renderer interface {
	render(ctx context.Context, htmlDocument string) ([]byte, error)
	Close() error
}

// Exporter renders print-styled HTML to PDF bytes. One export runs at a
// time per exporter; the busy flag covers the whole generation.
type Exporter struct {
	r    renderer
	busy atomic.Bool
}

func NewExporter(timeout time.Duration) *Exporter {
	return &Exporter{r: newRodRenderer(timeout)}
}

// IsGenerating reports whether an export is currently in flight.
func (e *Exporter) IsGenerating() bool {
	return e.busy.Load()
}

// Export renders the HTML fragment to PDF and returns the download
// filename alongside the bytes. Empty content is an error; the caller has
// nothing sensible to download.
func (e *Exporter) Export(ctx context.Context, htmlContent, stem string) (string, []byte, error) {
	if strings.TrimSpace(htmlContent) == "" {
		return "", nil, ErrEmptyContent
	}

	e.busy.Store(true)
	defer e.busy.Store(false)

	data, err := e.r.render(ctx, printDocument(htmlContent))
	if err != nil {
		return "", nil, err
	}
	return Filename(stem, time.Now()), data, nil
}

// Close releases browser resources.
func (e *Exporter) Close() error {
	return e.r.Close()
}

// Filename builds "{stem}-{timestamp}.pdf" with the colons of the ISO
// timestamp replaced by hyphens, so the name is valid on every filesystem.
func Filename(stem string, t time.Time) string {
	if strings.TrimSpace(stem) == "" {
		stem = DefaultStem
	}
	ts := t.UTC().Format("2006-01-02T15:04:05")
	return fmt.Sprintf("%s-%s.pdf", stem, strings.ReplaceAll(ts, ":", "-"))
}

// printDocument wraps the fragment in a standalone page carrying the
// print stylesheet: light background, dark text, bordered code blocks and
// tables, regardless of whatever theme the editor was using.
func printDocument(fragment string) string {
	return fmt.Sprintf(printTemplate, fragment)
}

const printTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Document</title>
<style>
body {
  font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
  font-size: 14px;
  line-height: 1.7;
  color: #1A1A1A;
  background-color: white;
  margin: 0;
  padding: 15px;
}
h1, h2, h3, h4, h5, h6 { color: #1A1A1A; border-bottom-color: #E5E5E5; }
p { color: #374151; margin-bottom: 12px; }
code {
  background-color: #F3F4F6;
  color: #DC2626;
  border: 1px solid #E5E7EB;
  padding: 2px 6px;
  border-radius: 3px;
}
pre {
  background-color: #F8F9FA;
  color: #1A1A1A;
  border: 1px solid #E5E7EB;
  padding: 10px;
  border-radius: 6px;
  max-width: 100%%;
  overflow: hidden;
  white-space: pre-wrap;
  word-wrap: break-word;
}
pre code { background-color: transparent; color: inherit; border: none; }
blockquote {
  background-color: #F8F9FA;
  color: #4B5563;
  border-left: 3px solid #3B82F6;
  margin: 0;
  padding: 4px 12px;
}
a { color: #2563EB; }
table { background-color: white; border-collapse: collapse; }
th, td { border: 1px solid #E5E7EB; color: #1A1A1A; padding: 4px 8px; }
th { background-color: #F9FAFB; }
img { max-width: 100%%; }
</style>
</head>
<body>
%s
</body>
</html>`
