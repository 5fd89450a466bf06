// Package rerank re-scores retrieved passages with an LLM relevance judge and
// fuses the result with feedback and similarity signals. Accuracy outranks
// speed here: every passage gets an explicit LLM verdict unless a cached one
// exists, and every failure degrades to a usable score rather than an error.
package rerank

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hanwool-labs/docchat/internal/domain"
)

// Fusion weight and selection defaults.
const (
	DefaultWeightLLM        = 0.6
	DefaultWeightFeedback   = 0.2
	DefaultWeightSimilarity = 0.2
	DefaultTopK             = 5
)

// contentPreviewRunes bounds how much passage text each batch prompt carries.
const contentPreviewRunes = 800

// fallbackRelevance is assigned to a whole batch when its response cannot be
// parsed at all.
const fallbackRelevance = 0.5

// unevaluatedDiscount scales similarity into a conservative relevance
// estimate for batch members the model skipped.
const unevaluatedDiscount = 0.7

// ScoreCache persists relevance maps across identical question/passage-set
// evaluations.
type ScoreCache interface {
	Key(question string, passageIDs []string) string
	Get(ctx context.Context, key string) (map[int]float64, bool)
	Put(ctx context.Context, key string, scores map[int]float64)
}

// FeedbackReader supplies accumulated up/down votes for a passage.
type FeedbackReader interface {
	Votes(ctx context.Context, passageID string) (pos, neg int)
}

// Config tunes the reranker. Zero values fall back to defaults.
type Config struct {
	WeightLLM        float64
	WeightFeedback   float64
	WeightSimilarity float64
	TopK             int
	BatchSize        int  // used only when FixedBatch is true
	FixedBatch       bool // pin BatchSize instead of sizing from passage count
}

// Metrics is a snapshot of per-instance reranker counters.
type Metrics struct {
	CacheHits    int64
	CacheMisses  int64
	LLMCalls     int64
	CacheHitRate float64
}

// Reranker scores passages against the question in concurrent LLM batches.
type Reranker struct {
	llm      domain.Completer
	model    string
	cache    ScoreCache
	feedback FeedbackReader
	cfg      Config
	logger   *zap.Logger

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	llmCalls    atomic.Int64
}

// New creates a reranker. cache may be nil to disable score caching.
func New(
	llm domain.Completer, model string,
	cache ScoreCache, feedback FeedbackReader,
	cfg Config, logger *zap.Logger,
) *Reranker {
	if cfg.WeightLLM == 0 && cfg.WeightFeedback == 0 && cfg.WeightSimilarity == 0 {
		cfg.WeightLLM = DefaultWeightLLM
		cfg.WeightFeedback = DefaultWeightFeedback
		cfg.WeightSimilarity = DefaultWeightSimilarity
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}

	total := cfg.WeightLLM + cfg.WeightFeedback + cfg.WeightSimilarity
	if total < 0.99 || total > 1.01 {
		logger.Warn("Rerank weights do not sum to 1.0", zap.Float64("sum", total))
	}

	return &Reranker{
		llm:      llm,
		model:    model,
		cache:    cache,
		feedback: feedback,
		cfg:      cfg,
		logger:   logger,
	}
}

// Rerank scores the passages against the question and returns the top K by
// fused score. Reranking never fails: scoring falls back per batch and the
// fusion always produces a ranking.
func (r *Reranker) Rerank(
	ctx context.Context, question string, passages []domain.ScoredPassage,
) []domain.ScoredPassage {
	if len(passages) == 0 {
		return nil
	}

	batchSize := r.optimalBatchSize(len(passages))
	relevance := r.evaluateAll(ctx, question, passages, batchSize)

	reranked := make([]domain.ScoredPassage, len(passages))
	copy(reranked, passages)
	for i := range reranked {
		llmScore := relevance[i]
		fbScore := r.feedbackScore(ctx, reranked[i].Passage.ID)
		simScore := reranked[i].Similarity

		reranked[i].Relevance = llmScore
		reranked[i].FinalScore = r.cfg.WeightLLM*llmScore +
			r.cfg.WeightFeedback*fbScore +
			r.cfg.WeightSimilarity*simScore
		reranked[i].AddReasonf("LLM=%.2f, FB=%.2f, Sim=%.2f", llmScore, fbScore, simScore)
	}

	sort.SliceStable(reranked, func(a, b int) bool {
		return reranked[a].FinalScore > reranked[b].FinalScore
	})
	if len(reranked) > r.cfg.TopK {
		reranked = reranked[:r.cfg.TopK]
	}

	r.logger.Info("Reranking completed",
		zap.Int("candidates", len(passages)),
		zap.Int("selected", len(reranked)),
		zap.Float64("top_score", reranked[0].FinalScore),
	)
	return reranked
}

// SnapshotMetrics returns the accumulated cache and call counters.
func (r *Reranker) SnapshotMetrics() Metrics {
	hits := r.cacheHits.Load()
	misses := r.cacheMisses.Load()
	m := Metrics{
		CacheHits:   hits,
		CacheMisses: misses,
		LLMCalls:    r.llmCalls.Load(),
	}
	if total := hits + misses; total > 0 {
		m.CacheHitRate = float64(hits) / float64(total)
	}
	return m
}

// optimalBatchSize sizes LLM batches from the passage count. Small sets get
// small batches for latency; large sets get big batches for call efficiency.
// Dynamic sizing is the default; a fixed size is the explicit override.
func (r *Reranker) optimalBatchSize(n int) int {
	if r.cfg.FixedBatch {
		return r.cfg.BatchSize
	}
	switch {
	case n <= 5:
		return 3
	case n <= 10:
		return 5
	case n <= 20:
		return 7
	default:
		return 10
	}
}

// evaluateAll returns {passage position → relevance}, consulting the cache
// first and evaluating batches concurrently on a miss.
func (r *Reranker) evaluateAll(
	ctx context.Context, question string, passages []domain.ScoredPassage, batchSize int,
) map[int]float64 {
	var cacheKey string
	if r.cache != nil {
		ids := make([]string, len(passages))
		for i, sp := range passages {
			ids[i] = sp.Passage.ID
		}
		cacheKey = r.cache.Key(question, ids)

		if scores, ok := r.cache.Get(ctx, cacheKey); ok {
			r.cacheHits.Add(1)
			r.logger.Debug("Relevance cache hit", zap.String("key", cacheKey))
			return scores
		}
		r.cacheMisses.Add(1)
	}

	scores := make(map[int]float64, len(passages))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(passages); start += batchSize {
		end := start + batchSize
		if end > len(passages) {
			end = len(passages)
		}
		offset, batch := start, passages[start:end]

		g.Go(func() error {
			batchScores := r.evaluateBatch(gctx, question, batch, offset)
			mu.Lock()
			for idx, score := range batchScores {
				scores[idx] = score
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // batch evaluation never returns an error

	if r.cache != nil {
		r.cache.Put(ctx, cacheKey, scores)
	}
	return scores
}

// evaluateBatch scores one batch, returning {global position → relevance}.
// Failures degrade: an unreachable model or unparseable response scores the
// whole batch at the neutral fallback, and members the model skipped get a
// similarity-discounted estimate.
func (r *Reranker) evaluateBatch(
	ctx context.Context, question string, batch []domain.ScoredPassage, offset int,
) map[int]float64 {
	r.llmCalls.Add(1)

	raw, err := r.llm.Complete(ctx, r.model, []domain.ChatMessage{
		{Role: domain.ChatRoleUser, Content: buildBatchPrompt(question, batch)},
	}, domain.ChatOptions{Temperature: 0.0, JSONMode: true})
	if err != nil {
		r.logger.Warn("Relevance evaluation failed, using fallback scores",
			zap.Int("offset", offset),
			zap.Error(err),
		)
		return uniformScores(batch, offset, fallbackRelevance)
	}

	parsed, err := parseScores(raw)
	if err != nil {
		r.logger.Warn("Relevance response unparseable, using fallback scores",
			zap.Int("offset", offset),
			zap.Error(err),
		)
		return uniformScores(batch, offset, fallbackRelevance)
	}

	scores := make(map[int]float64, len(batch))
	for _, s := range parsed {
		if s.Index < 0 || s.Index >= len(batch) {
			continue
		}
		scores[offset+s.Index] = clamp01(s.Relevance)
	}

	// Backfill members the model skipped with a conservative
	// similarity-based estimate, not a neutral default.
	for i, sp := range batch {
		if _, ok := scores[offset+i]; !ok {
			scores[offset+i] = clamp01(sp.Similarity * unevaluatedDiscount)
		}
	}
	return scores
}

func (r *Reranker) feedbackScore(ctx context.Context, passageID string) float64 {
	if r.feedback == nil {
		return 0.5
	}
	pos, neg := r.feedback.Votes(ctx, passageID)
	if pos+neg == 0 {
		return 0.5
	}
	return float64(pos) / float64(pos+neg)
}

func buildBatchPrompt(question string, batch []domain.ScoredPassage) string {
	var chunks strings.Builder
	for i, sp := range batch {
		title := sp.Passage.DocTitle
		if title == "" {
			title = "제목 없음"
		}
		fmt.Fprintf(&chunks, "청크 %d (문서: %s):\n%s\n", i, title, previewContent(sp.Passage.Content))
	}

	return fmt.Sprintf(`다음은 사용자 질문과 검색된 문서 청크들입니다.

**질문**: %s

**청크 목록** (총 %d개):
%s
**중요: 반드시 모든 %d개 청크를 평가해주세요!**

각 청크가 질문에 **실제로 답변할 수 있는 정보를 담고 있는지** 0.0~1.0 점수로 평가해주세요.

**평가 기준**:
- 1.0: 질문에 직접 답변할 수 있는 **구체적인 정보**가 포함됨
- 0.7~0.9: 관련 정보가 있지만 부분적인 답변만 가능
- 0.4~0.6: 약간 관련 있으나 답변에 도움이 제한적
- 0.1~0.3: 거의 관련 없음
- 0.0: 완전히 무관

**낮은 점수(0.1~0.3)를 줘야 하는 경우**:
- 빈 양식/서식/템플릿 (빈칸만 있고 실제 데이터가 없는 문서)
- 목차, 색인, 부서명 목록만 있는 내용

**높은 점수(0.7~1.0)를 줘야 하는 경우**:
- 구체적인 수치, 기준, 조건이 명시된 경우
- 실제 규정, 절차, 방법이 설명된 경우
- **표나 데이터가 포함된 경우** (직급, 기준, 승진 등의 표)

**응답 형식** (JSON - 반드시 %d개 항목):
{"scores": [
  {"index": 0, "relevance": 0.9, "reason": "구체적인 기준 포함"},
  {"index": 1, "relevance": 0.2, "reason": "빈 양식"}
]}

**주의**: 청크 0부터 %d까지 모든 청크를 평가해주세요. JSON만 응답하세요.`,
		question, len(batch), chunks.String(), len(batch), len(batch), len(batch)-1)
}

func previewContent(content string) string {
	runes := []rune(content)
	if len(runes) <= contentPreviewRunes {
		return content
	}
	return string(runes[:contentPreviewRunes])
}

func uniformScores(batch []domain.ScoredPassage, offset int, score float64) map[int]float64 {
	scores := make(map[int]float64, len(batch))
	for i := range batch {
		scores[offset+i] = score
	}
	return scores
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
