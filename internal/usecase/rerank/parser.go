package rerank

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hanwool-labs/docchat/internal/domain"
	"github.com/hanwool-labs/docchat/internal/llmparse"
)

// relevanceScore is one scored batch member in the model's response.
type relevanceScore struct {
	Index     int     `json:"index"`
	Relevance float64 `json:"relevance"`
	Reason    string  `json:"reason"`
}

// parseScores extracts relevance scores from a model response. Models rarely
// honor the requested envelope exactly, so extraction tries a fixed order of
// shapes before giving up:
//
//  1. a bare JSON array
//  2. the requested keys "scores", "results", "evaluations"
//  3. any other key holding a non-empty array
//  4. a single score object, wrapped
func parseScores(raw string) ([]relevanceScore, error) {
	data := []byte(llmparse.StripCodeFence(raw))

	var arr []relevanceScore
	if err := json.Unmarshal(data, &arr); err == nil {
		return arr, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("relevance response is neither array nor object: %w", domain.ErrMalformedResponse)
	}

	for _, key := range []string{"scores", "results", "evaluations"} {
		if nested, ok := obj[key]; ok {
			if err := json.Unmarshal(nested, &arr); err == nil {
				return arr, nil
			}
		}
	}

	// Any other array-valued key, in deterministic order.
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := json.Unmarshal(obj[k], &arr); err == nil && len(arr) > 0 {
			return arr, nil
		}
	}

	// A single score object; require the relevance field so an arbitrary
	// object does not decode to a zero score.
	if _, ok := obj["relevance"]; ok {
		var single relevanceScore
		if err := json.Unmarshal(data, &single); err == nil {
			return []relevanceScore{single}, nil
		}
	}

	return nil, fmt.Errorf("no relevance scores in response: %w", domain.ErrMalformedResponse)
}
