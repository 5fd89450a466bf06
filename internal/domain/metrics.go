package domain

import (
	"strconv"
	"time"
)

// Millis is a duration that marshals to JSON as whole milliseconds, matching
// the *_ms field names it is serialized under.
type Millis time.Duration

// MarshalJSON renders the duration as an integer millisecond count.
func (m Millis) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, time.Duration(m).Milliseconds(), 10), nil
}

// Duration returns the underlying time.Duration.
func (m Millis) Duration() time.Duration { return time.Duration(m) }

// PipelineMetrics accumulates per-stage timings and counters for one question.
// It lives for the duration of a single request and is discarded afterwards.
type PipelineMetrics struct {
	IntentClassification Millis `json:"intent_classification_ms"`
	CorpusDiscovery      Millis `json:"corpus_discovery_ms"`
	QueryDecomposition   Millis `json:"query_decomposition_ms"`
	QueryExpansion       Millis `json:"query_expansion_ms"`
	Retrieval            Millis `json:"retrieval_ms"`
	Reranking            Millis `json:"reranking_ms"`
	Generation           Millis `json:"generation_ms"`
	Total                Millis `json:"total_ms"`

	CacheHits     int `json:"cache_hits"`
	CacheMisses   int `json:"cache_misses"`
	LLMCalls      int `json:"llm_calls"`
	IndexQueries  int `json:"index_queries"`
	ExpandedCount int `json:"expanded_queries"`
}
