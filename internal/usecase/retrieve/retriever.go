package retrieve

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hanwool-labs/docchat/internal/db"
	"github.com/hanwool-labs/docchat/internal/domain"
	"github.com/hanwool-labs/docchat/internal/metrics"
)

// Defaults for per-query and merged result counts.
const (
	DefaultTopK = 10
	DefaultTopN = 10
)

// Passage hash fields returned from the index.
var returnFields = []string{
	"content", "doc_id", "doc_title", "doc_type", "doc_url",
	"visibility", "tags", "page_start", "page_end", "image_ref", "content_hash",
	"__vector_score",
}

// Searcher is the index contract the retriever consumes (ISP).
type Searcher interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Retriever embeds expanded queries and fans them out to the vector index.
type Retriever struct {
	embed    domain.Embedder
	searcher Searcher
	index    string
	topK     int
	topN     int
	logger   *zap.Logger
}

// New creates a multi-query retriever over the given index.
func New(embed domain.Embedder, searcher Searcher, index string, topK, topN int, logger *zap.Logger) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Retriever{
		embed:    embed,
		searcher: searcher,
		index:    index,
		topK:     topK,
		topN:     topN,
		logger:   logger,
	}
}

// Retrieve embeds all queries in one batched call, runs a KNN search per
// query under the predicate, and merges results by passage id. A passage
// surfaced by several queries has its similarities SUMMED, deliberately
// ranking paraphrase-robust passages above single-query peaks. The merged
// set is sorted by score descending and truncated to top-N.
//
// A failing individual query is logged and skipped; only a failed embedding
// call aborts retrieval.
func (r *Retriever) Retrieve(
	ctx context.Context, queries []string, pred domain.Predicate,
) ([]domain.ScoredPassage, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	vectors, err := r.embed.EmbedTexts(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("embed queries: %w", err)
	}

	perQuery := make([][]domain.ScoredPassage, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i := range queries {
		i := i
		g.Go(func() error {
			metrics.IndexQueriesTotal.Inc()
			res, err := r.searcher.SearchKNN(gctx, &db.KNNQuery{
				IndexName:    r.index,
				Vector:       vectors[i],
				K:            r.topK,
				Predicate:    pred,
				ReturnFields: returnFields,
			})
			if err != nil {
				r.logger.Warn("Index query failed, skipping",
					zap.String("query", queries[i]),
					zap.Error(err),
				)
				return nil
			}
			perQuery[i] = r.scoreEntries(queries[i], res.Entries)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := mergeByID(perQuery)
	sort.SliceStable(merged, func(a, b int) bool {
		return merged[a].Similarity > merged[b].Similarity
	})
	if len(merged) > r.topN {
		merged = merged[:r.topN]
	}

	r.logger.Info("Retrieval merged",
		zap.Int("queries", len(queries)),
		zap.Int("passages", len(merged)),
	)
	return merged, nil
}

// scoreEntries converts index entries into scored passages with per-query
// provenance.
func (r *Retriever) scoreEntries(query string, entries []db.SearchEntry) []domain.ScoredPassage {
	scored := make([]domain.ScoredPassage, 0, len(entries))
	for _, e := range entries {
		sim := domain.SimilarityFromDistance(e.Distance)
		sp := domain.ScoredPassage{
			Passage:    passageFromFields(e.Key, e.Fields),
			Similarity: sim,
		}
		sp.AddReasonf("쿼리 %q 매칭 (유사도 %.2f)", query, sim)
		scored = append(scored, sp)
	}
	return scored
}

// mergeByID folds per-query results into one set keyed by passage id,
// summing similarities and concatenating provenance reasons.
func mergeByID(perQuery [][]domain.ScoredPassage) []domain.ScoredPassage {
	byID := map[string]*domain.ScoredPassage{}
	var order []string

	for _, batch := range perQuery {
		for _, sp := range batch {
			id := sp.Passage.ID
			if existing, ok := byID[id]; ok {
				existing.Similarity += sp.Similarity
				for _, reason := range sp.Reasons {
					existing.AddReason(reason)
				}
				continue
			}
			cp := sp
			byID[id] = &cp
			order = append(order, id)
		}
	}

	merged := make([]domain.ScoredPassage, 0, len(order))
	for _, id := range order {
		merged = append(merged, *byID[id])
	}
	return merged
}

func passageFromFields(key string, fields map[string]string) domain.Passage {
	return domain.Passage{
		ID:          key,
		DocID:       fields["doc_id"],
		ContentHash: fields["content_hash"],
		Visibility:  domain.Visibility(fields["visibility"]),
		Tags:        splitTags(fields["tags"]),
		Content:     fields["content"],
		DocTitle:    fields["doc_title"],
		DocType:     fields["doc_type"],
		DocURL:      fields["doc_url"],
		PageStart:   atoiOrZero(fields["page_start"]),
		PageEnd:     atoiOrZero(fields["page_end"]),
		ImageRef:    fields["image_ref"],
	}
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// splitTags parses a comma-separated TAG field value.
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
