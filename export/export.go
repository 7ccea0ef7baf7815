// Package export renders a dispatched batch as a submission document: a
// title, then for every file its source and the output it produced.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/caffeineduck/runsheet/batch"
	"github.com/caffeineduck/runsheet/catalog"
)

// Format selects the document type.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
)

// ParseFormat accepts "md", "markdown", "html" and "htm", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "md", "markdown":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Ext returns the file extension without the dot.
func (f Format) Ext() string { return string(f) }

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	if f == FormatHTML {
		return "text/html; charset=utf-8"
	}
	return "text/markdown; charset=utf-8"
}

// Option adjusts a rendered document.
type Option func(*options)

type options struct {
	title string
}

// WithTitle replaces the default "Code Submission - <LANG>" heading.
func WithTitle(title string) Option {
	return func(o *options) { o.title = title }
}

// document is the shared model both renderers walk.
type document struct {
	Title    string
	Language string
	Problems []problem
}

type problem struct {
	Number int
	Name   string
	Source string
	Output string
}

func newDocument(b batch.Batch, lang catalog.Language, opts []Option) document {
	o := options{title: "Code Submission - " + strings.ToUpper(string(lang.ID))}
	for _, opt := range opts {
		opt(&o)
	}

	doc := document{Title: o.title, Language: string(lang.ID)}
	for i, f := range b {
		out := f.Output
		if out == "" {
			out = batch.NotExecuted
		}
		doc.Problems = append(doc.Problems, problem{
			Number: i + 1,
			Name:   f.Name,
			Source: f.Content,
			Output: out,
		})
	}
	return doc
}

// Write renders b in the given format.
func Write(w io.Writer, f Format, b batch.Batch, lang catalog.Language, opts ...Option) error {
	switch f {
	case FormatMarkdown:
		return Markdown(w, b, lang, opts...)
	case FormatHTML:
		return HTML(w, b, lang, opts...)
	}
	return fmt.Errorf("unknown export format %q", string(f))
}

// FileName returns Submission_<lang>_<YYYY-MM-DD>.<ext>, dated in UTC.
func FileName(lang catalog.ID, f Format, now time.Time) string {
	return fmt.Sprintf("Submission_%s_%s.%s", lang, now.UTC().Format(time.DateOnly), f.Ext())
}
