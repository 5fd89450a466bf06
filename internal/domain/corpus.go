package domain

import (
	"fmt"
	"strings"
)

// DocSummary describes one document known to the corpus.
type DocSummary struct {
	DocID        string   `json:"doc_id"`
	DocTitle     string   `json:"doc_title"`
	DocType      string   `json:"doc_type,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	PassageCount int      `json:"passage_count"`
}

// CorpusContext summarizes what the corpus currently contains. The query
// decomposer and expander use it to keep generated queries grounded in
// documents that actually exist.
type CorpusContext struct {
	TotalDocs     int            `json:"total_docs"`
	TotalPassages int            `json:"total_passages"`
	DocTypes      []string       `json:"doc_types,omitempty"`
	AllTags       []string       `json:"all_tags,omitempty"`
	RecentDocs    []DocSummary   `json:"recent_docs,omitempty"`
	ByVisibility  map[string]int `json:"by_visibility,omitempty"`
}

// DocTitles returns the titles of the known documents.
func (c CorpusContext) DocTitles() []string {
	titles := make([]string, 0, len(c.RecentDocs))
	for _, d := range c.RecentDocs {
		titles = append(titles, d.DocTitle)
	}
	return titles
}

// PromptSummary renders the corpus context as prompt text for the LLM.
func (c CorpusContext) PromptSummary() string {
	var b strings.Builder
	b.WriteString("현재 시스템에 다음 문서들이 있습니다:\n")
	fmt.Fprintf(&b, "- 총 %d개 문서, %d개 청크\n", c.TotalDocs, c.TotalPassages)

	if len(c.DocTypes) > 0 {
		fmt.Fprintf(&b, "- 문서 유형: %s\n", strings.Join(truncateList(c.DocTypes, 10), ", "))
	}
	if len(c.AllTags) > 0 {
		fmt.Fprintf(&b, "- 주요 태그: %s\n", strings.Join(truncateList(c.AllTags, 15), ", "))
	}
	if len(c.RecentDocs) > 0 {
		b.WriteString("\n최근 업로드된 문서:\n")
		for i, d := range c.RecentDocs {
			if i >= 5 {
				break
			}
			tags := "태그 없음"
			if len(d.Tags) > 0 {
				tags = strings.Join(truncateList(d.Tags, 3), ", ")
			}
			fmt.Fprintf(&b, "  %d. %s (태그: %s)\n", i+1, d.DocTitle, tags)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncateList(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
