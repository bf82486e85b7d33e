package report

import (
	"encoding/json"
	"io"
)

// JSONWriter encodes the summary as one JSON document.
type JSONWriter struct {
	baseWriter
	prefix string
	indent string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent indents nested values with indent, each line starting with
// prefix.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.prefix, w.indent = prefix, indent
	}
}

// WithPrettyPrint indents with two spaces.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter returns a compact JSONWriter unless an indent option is given.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// jsonSummary adds the derived fields a script reading the report needs
// without parsing durations.
type jsonSummary struct {
	*Summary
	DurationSeconds float64 `json:"durationSeconds"`
	Complete        bool    `json:"complete"`
}

// Write encodes s followed by a newline.
func (w *JSONWriter) Write(s *Summary) (int, error) {
	doc := jsonSummary{Summary: s}
	if s.Run != nil {
		doc.DurationSeconds = s.Run.Duration.Seconds()
		doc.Complete = s.Run.State == "completed"
	}

	cw := &countingWriter{w: w.output}
	enc := json.NewEncoder(cw)
	enc.SetEscapeHTML(false)
	if w.indent != "" || w.prefix != "" {
		enc.SetIndent(w.prefix, w.indent)
	}
	err := enc.Encode(doc)
	return cw.n, err
}
