// Package retrieve fans expanded queries out to the vector index and merges
// the results. The document filter narrows retrieval by intent before the
// fan-out; the retriever owns embedding, per-query provenance and score
// merging.
package retrieve

import (
	"regexp"
	"strings"

	"github.com/hanwool-labs/docchat/internal/domain"
)

var (
	extensionPattern     = regexp.MustCompile(`(?i)\.(pdf|docx?|txt|hwp|xlsx?|pptx?)$`)
	yearPattern          = regexp.MustCompile(`\s*20[2-3]\d\s*`)
	parentheticalPattern = regexp.MustCompile(`\s*[(\[][^)\]]*[)\]]\s*`)
	multiSpacePattern    = regexp.MustCompile(`\s+`)
)

// BuildPredicate shapes the retrieval predicate from the classified intent.
// Document lookups restrict to an exact-match title set derived from the
// candidate document names; other intents add no clause (tag filtering is a
// post-retrieval concern because the index only matches exact tag values).
// The visibility clause is always present.
func BuildPredicate(intent domain.Intent, docTitles []string) domain.Predicate {
	pred := domain.DefaultPredicate()

	if intent.Label != domain.IntentDocumentLookup || len(docTitles) == 0 {
		return pred
	}

	seen := map[string]struct{}{}
	titles := make([]string, 0, len(docTitles))
	for _, t := range docTitles {
		title := NormalizeTitle(t)
		if title == "" {
			continue
		}
		if _, dup := seen[title]; dup {
			continue
		}
		seen[title] = struct{}{}
		titles = append(titles, title)
	}
	return pred.WithDocTitles(titles)
}

// NormalizeTitle reduces a document file name to its core title: extension,
// year (2020–2039) and parenthetical qualifiers stripped, whitespace
// collapsed.
//
//	"인사규정 2024 (개정판).pdf" → "인사규정"
func NormalizeTitle(filename string) string {
	title := extensionPattern.ReplaceAllString(filename, "")
	title = yearPattern.ReplaceAllString(title, " ")
	title = parentheticalPattern.ReplaceAllString(title, " ")
	title = multiSpacePattern.ReplaceAllString(title, " ")
	return strings.TrimSpace(title)
}
