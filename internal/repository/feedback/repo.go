// Package feedback reads per-passage vote counters from the store. Votes are
// kept as fb_pos / fb_neg fields on the passage hash; the reranker folds them
// into its score fusion. Read failures degrade to zero votes, never an error.
package feedback

import (
	"context"
	"strconv"

	"go.uber.org/zap"
)

// Field names on the passage hash.
const (
	fieldPositive = "fb_pos"
	fieldNegative = "fb_neg"
)

// hashReader is the consumer interface for vote lookups (ISP).
type hashReader interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// Repo reads vote counters for passages.
type Repo struct {
	store  hashReader
	logger *zap.Logger
}

// New creates a feedback reader.
func New(store hashReader, logger *zap.Logger) *Repo {
	return &Repo{store: store, logger: logger}
}

// Votes returns the positive and negative vote counts for the passage stored
// under key. Missing fields, malformed values and store errors all read as
// zero; a passage nobody voted on is indistinguishable from one the store
// cannot reach, and both leave the fusion at its neutral ratio.
func (r *Repo) Votes(ctx context.Context, key string) (pos, neg int) {
	fields, err := r.store.HGetAll(ctx, key)
	if err != nil {
		r.logger.Warn("Failed to read feedback votes", zap.String("key", key), zap.Error(err))
		return 0, 0
	}
	return parseCount(fields[fieldPositive]), parseCount(fields[fieldNegative])
}

// Ratio converts vote counts to a score in [0, 1]. No votes is neutral 0.5.
func Ratio(pos, neg int) float64 {
	total := pos + neg
	if total == 0 {
		return 0.5
	}
	return float64(pos) / float64(total)
}

func parseCount(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
