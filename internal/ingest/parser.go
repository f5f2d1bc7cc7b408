// Package ingest turns lender policy documents into stored policies.
package ingest

import (
	"context"

	"github.com/sells-group/lender-match/internal/model"
)

// Parser extracts rule definitions from document text. Rules are returned
// in the order they should be evaluated.
type Parser interface {
	Name() string
	Parse(ctx context.Context, text string) ([]model.RuleDefinition, error)
}
