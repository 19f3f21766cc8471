// Package query implements query normalization and classification (C9):
// whitespace normalization for display/search, a separate cache-key
// normalization, and a deterministic additive-scoring classifier that
// labels a query as code, hybrid, or natural language.
package query

// Class is the classifier's verdict for a query.
type Class string

const (
	ClassCode    Class = "code"
	ClassHybrid  Class = "hybrid"
	ClassNatural Class = "natural"
)

// Classification is the classifier's output: the chosen class and the
// additive score that produced it, useful for downstream weight selection.
type Classification struct {
	Class Class
	Score float64
}
