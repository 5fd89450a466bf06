package domain

import "fmt"

// Visibility is the access-scope tag gating which passages a request may retrieve.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityOrg     Visibility = "org"
	VisibilityPublic  Visibility = "public"
)

// Passage is a stored unit of document text eligible for retrieval.
// Passages are created during ingestion and are read-only to the pipeline.
type Passage struct {
	ID          string
	DocID       string
	ContentHash string
	Visibility  Visibility
	Tags        []string
	Content     string
	DocTitle    string
	DocType     string
	DocURL      string
	PageStart   int
	PageEnd     int
	ImageRef    string
}

// ScoredPassage wraps a Passage with retrieval and rerank signals.
// It is mutable only within a single retrieval/rerank cycle and never persisted.
type ScoredPassage struct {
	Passage    Passage
	Similarity float64
	Relevance  float64 // set by the reranker
	FinalScore float64
	Reasons    []string
}

// AddReason appends a human-readable scoring reason, skipping exact duplicates.
func (s *ScoredPassage) AddReason(reason string) {
	for _, r := range s.Reasons {
		if r == reason {
			return
		}
	}
	s.Reasons = append(s.Reasons, reason)
}

// AddReasonf formats and appends a scoring reason.
func (s *ScoredPassage) AddReasonf(format string, args ...any) {
	s.AddReason(fmt.Sprintf(format, args...))
}

// SimilarityFromDistance converts a cosine distance into a similarity in [0,1].
// Distances ≥ 1 map to 0; negative distances clamp to 1.
func SimilarityFromDistance(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	if distance > 1 {
		distance = 1
	}
	return 1 - distance
}
