// Package expand widens a single (sub)query into several phrasings to raise
// retrieval recall. Expansions are additive: the result always starts with
// the original query, rule-based variants cost nothing, and the LLM variant
// degrades to nothing on failure.
package expand

import (
	"context"

	"go.uber.org/zap"

	"github.com/hanwool-labs/docchat/internal/domain"
)

// Expander generates query variants. All strategies append to a list seeded
// with the original query; duplicates by exact text are dropped.
type Expander struct {
	llm           domain.Completer
	model         string
	maxLLMQueries int
	logger        *zap.Logger
}

// New creates a query expander. maxLLMQueries bounds the LLM-generated
// variants per query (default 3 when non-positive).
func New(llm domain.Completer, model string, maxLLMQueries int, logger *zap.Logger) *Expander {
	if maxLLMQueries <= 0 {
		maxLLMQueries = defaultLLMExpansions
	}
	return &Expander{llm: llm, model: model, maxLLMQueries: maxLLMQueries, logger: logger}
}

// Expand returns the original query plus deduplicated variants from the
// phonetic, table-explore and LLM strategies, in that order.
func (e *Expander) Expand(ctx context.Context, query string, docTitles []string) []string {
	queries := []string{query}
	seen := map[string]struct{}{query: {}}

	add := func(candidates ...string) {
		for _, c := range candidates {
			if c == "" {
				continue
			}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			queries = append(queries, c)
		}
	}

	add(PhoneticVariant(query))
	add(TableExploreVariants(query)...)
	add(e.expandLLM(ctx, query, docTitles)...)

	e.logger.Debug("Query expanded",
		zap.String("query", query),
		zap.Int("variants", len(queries)-1),
	)
	return queries
}
