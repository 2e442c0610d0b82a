// Package analyze turns recovered document text into a categorized table of
// lab results.
package analyze

import (
	"context"

	"github.com/rfmoraes/clinic-exams/internal/results"
)

// Request carries the text and hints for one analysis call.
type Request struct {
	Text              string
	FilenameHint      string
	AllowedCategories []string
	Language          string // BCP-47-ish hint for the model, e.g. "pt-BR"
}

// Analyzer is the interface the extraction handler depends on. An empty set
// with a nil error means the document was readable but held no structured
// results; callers surface that as a warning, not a failure.
type Analyzer interface {
	AnalyzeText(ctx context.Context, req Request) (results.Set, []byte /*rawJSON*/, error)
}
