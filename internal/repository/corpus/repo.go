// Package corpus discovers what the passage index currently contains. The
// resulting context grounds query decomposition and expansion in documents
// that actually exist. Discovery scans the index and is cached in the KV
// store; any failure degrades to an empty context, never an error.
package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hanwool-labs/docchat/internal/db"
	"github.com/hanwool-labs/docchat/internal/domain"
)

var cacheKey = domain.KeyPrefix + "corpus_ctx"

// DefaultTTL is how long a discovered corpus context stays cached.
const DefaultTTL = 10 * time.Minute

const (
	listPageSize  = 200
	maxRecentDocs = 20

	fieldDocID      = "doc_id"
	fieldDocTitle   = "doc_title"
	fieldDocType    = "doc_type"
	fieldTags       = "tags"
	fieldVisibility = "visibility"
)

// store is the consumer interface for corpus discovery (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SearchList(ctx context.Context, index string, pred domain.Predicate, offset, limit int, fields []string) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index string, pred domain.Predicate) (int, error)
}

// Repo aggregates the passage index into a corpus context.
type Repo struct {
	store  store
	index  string
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a corpus discovery repo over the given index.
func New(s store, index string, ttl time.Duration, logger *zap.Logger) *Repo {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Repo{store: s, index: index, ttl: ttl, logger: logger}
}

// Context returns the current corpus context, from cache when fresh. A
// discovery or cache failure yields an empty context; the pipeline treats
// missing corpus knowledge as "no grounding available", not an error.
func (r *Repo) Context(ctx context.Context) domain.CorpusContext {
	if cached, ok := r.fromCache(ctx); ok {
		return cached
	}

	cc, err := r.discover(ctx)
	if err != nil {
		r.logger.Warn("Corpus discovery failed, using empty context", zap.Error(err))
		return domain.CorpusContext{}
	}

	r.toCache(ctx, cc)
	return cc
}

func (r *Repo) discover(ctx context.Context) (domain.CorpusContext, error) {
	total, err := r.store.SearchCount(ctx, r.index, domain.Predicate{})
	if err != nil {
		return domain.CorpusContext{}, err
	}

	res, err := r.store.SearchList(ctx, r.index, domain.Predicate{}, 0, listPageSize,
		[]string{fieldDocID, fieldDocTitle, fieldDocType, fieldTags, fieldVisibility})
	if err != nil {
		return domain.CorpusContext{}, err
	}

	cc := domain.CorpusContext{
		TotalPassages: total,
		ByVisibility:  map[string]int{},
	}

	byDoc := map[string]*domain.DocSummary{}
	docOrder := []string{}
	tagSet := map[string]struct{}{}
	typeSet := map[string]struct{}{}

	for _, e := range res.Entries {
		docID := e.Fields[fieldDocID]
		if docID == "" {
			continue
		}

		if vis := e.Fields[fieldVisibility]; vis != "" {
			cc.ByVisibility[vis]++
		}

		tags := splitTags(e.Fields[fieldTags])
		for _, t := range tags {
			tagSet[t] = struct{}{}
		}
		if dt := e.Fields[fieldDocType]; dt != "" {
			typeSet[dt] = struct{}{}
		}

		doc, ok := byDoc[docID]
		if !ok {
			doc = &domain.DocSummary{
				DocID:    docID,
				DocTitle: e.Fields[fieldDocTitle],
				DocType:  e.Fields[fieldDocType],
				Tags:     tags,
			}
			byDoc[docID] = doc
			docOrder = append(docOrder, docID)
		}
		doc.PassageCount++
	}

	cc.TotalDocs = len(byDoc)
	cc.AllTags = sortedKeys(tagSet)
	cc.DocTypes = sortedKeys(typeSet)

	for _, id := range docOrder {
		if len(cc.RecentDocs) >= maxRecentDocs {
			break
		}
		cc.RecentDocs = append(cc.RecentDocs, *byDoc[id])
	}

	r.logger.Info("Corpus context discovered",
		zap.Int("total_docs", cc.TotalDocs),
		zap.Int("total_passages", cc.TotalPassages),
		zap.Int("tags", len(cc.AllTags)),
	)
	return cc, nil
}

func (r *Repo) fromCache(ctx context.Context) (domain.CorpusContext, bool) {
	data, err := r.store.Get(ctx, cacheKey)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			r.logger.Warn("Failed to get cached corpus context", zap.Error(err))
		}
		return domain.CorpusContext{}, false
	}

	var cc domain.CorpusContext
	if err := json.Unmarshal(data, &cc); err != nil {
		r.logger.Warn("Failed to parse cached corpus context", zap.Error(err))
		return domain.CorpusContext{}, false
	}
	return cc, true
}

func (r *Repo) toCache(ctx context.Context, cc domain.CorpusContext) {
	data, err := json.Marshal(cc)
	if err != nil {
		r.logger.Warn("Failed to encode corpus context", zap.Error(err))
		return
	}
	if err := r.store.SetWithTTL(ctx, cacheKey, data, r.ttl); err != nil {
		r.logger.Warn("Failed to cache corpus context", zap.Error(err))
	}
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

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
