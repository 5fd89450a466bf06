// Package pipeline orchestrates the full question-answering flow: intent
// classification, corpus discovery, decomposition, expansion, retrieval,
// reranking, context selection, and streamed generation. Every stage before
// generation degrades on failure instead of aborting; only a failed
// generation call surfaces to the caller.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hanwool-labs/docchat/internal/domain"
	"github.com/hanwool-labs/docchat/internal/metrics"
	"github.com/hanwool-labs/docchat/internal/usecase/answer"
	"github.com/hanwool-labs/docchat/internal/usecase/expand"
	"github.com/hanwool-labs/docchat/internal/usecase/rerank"
	"github.com/hanwool-labs/docchat/internal/usecase/retrieve"
)

// Pipeline stage identifiers, in execution order.
const (
	StageIntent   = "intent"
	StageExpand   = "expand"
	StageSearch   = "search"
	StageRerank   = "rerank"
	StageGenerate = "generate"
)

// stageMessages are the user-facing progress lines emitted per stage.
var stageMessages = map[string]string{
	StageIntent:   "무엇을 알려드릴지 생각하고 있어요",
	StageExpand:   "더 좋은 검색어를 찾고 있어요",
	StageSearch:   "문서에서 정보를 찾는 중...",
	StageRerank:   "가장 정확한 부분만 골라내는 중...",
	StageGenerate: "답변을 정리하고 있어요",
}

// genericFailureMessage hides upstream detail from the client.
const genericFailureMessage = "답변 생성에 실패했습니다. 잠시 후 다시 시도해주세요."

// EventType discriminates pipeline stream events.
type EventType string

const (
	EventStage EventType = "stage"
	EventToken EventType = "token"
	EventFinal EventType = "final"
	EventError EventType = "error"
)

// Event is one element of the answer stream.
type Event struct {
	Type    EventType `json:"type"`
	Stage   string    `json:"stage,omitempty"`
	Message string    `json:"message,omitempty"`
	Token   string    `json:"token,omitempty"`
	Final   *Final    `json:"final,omitempty"`
}

// Final is the terminal payload after the token stream completes.
type Final struct {
	Answer    string                 `json:"answer"`
	Passages  []domain.ScoredPassage `json:"passages"`
	ImageRefs []answer.ImageRef      `json:"image_refs,omitempty"`
	UsedTags  []string               `json:"used_tags,omitempty"`
	Metrics   domain.PipelineMetrics `json:"metrics"`
}

// IntentClassifier labels the question. Classification never fails.
type IntentClassifier interface {
	Classify(ctx context.Context, question string) domain.Intent
}

// CorpusReader summarizes what the corpus currently holds.
type CorpusReader interface {
	Context(ctx context.Context) domain.CorpusContext
}

// Decomposer splits a question into prioritized sub-queries.
type Decomposer interface {
	Decompose(ctx context.Context, question string, intent domain.Intent, corpus domain.CorpusContext) []domain.SubQuery
}

// QueryExpander widens one sub-query into search-query variants.
type QueryExpander interface {
	Expand(ctx context.Context, query string, docTitles []string) []string
}

// Retriever runs multi-query vector search under a predicate.
type Retriever interface {
	Retrieve(ctx context.Context, queries []string, pred domain.Predicate) ([]domain.ScoredPassage, error)
}

// Reranker re-scores retrieved passages and reports its cache counters.
type Reranker interface {
	Rerank(ctx context.Context, question string, passages []domain.ScoredPassage) []domain.ScoredPassage
	SnapshotMetrics() rerank.Metrics
}

// ContextSelector enforces score and size budgets on the final context.
type ContextSelector interface {
	Select(candidates []domain.ScoredPassage) []domain.ScoredPassage
}

// Generator streams the answer over the selected context.
type Generator interface {
	Generate(ctx context.Context, question string, passages []domain.ScoredPassage, emit func(token string)) (answer.Result, error)
}

// Pipeline wires the stages together. One Answer call is one independent
// task tree; no mutable state is shared across requests.
type Pipeline struct {
	intents    IntentClassifier
	corpus     CorpusReader
	decomposer Decomposer
	expander   QueryExpander
	retriever  Retriever
	reranker   Reranker
	selector   ContextSelector
	generator  Generator
	logger     *zap.Logger
}

// New assembles a pipeline from its stages.
func New(
	intents IntentClassifier,
	corpus CorpusReader,
	decomposer Decomposer,
	expander QueryExpander,
	retriever Retriever,
	reranker Reranker,
	selector ContextSelector,
	generator Generator,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		intents:    intents,
		corpus:     corpus,
		decomposer: decomposer,
		expander:   expander,
		retriever:  retriever,
		reranker:   reranker,
		selector:   selector,
		generator:  generator,
		logger:     logger,
	}
}

// Answer runs the pipeline for one question and streams events. The channel
// is closed after the terminal final or error event. Cancelling ctx stops
// the underlying calls, including an in-flight generation stream.
func (p *Pipeline) Answer(ctx context.Context, question string) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		p.run(ctx, question, events)
	}()
	return events
}

// AnswerOnce is the synchronous wrapper: it drains the stream and returns
// the assembled answer with the evidenced passages.
func (p *Pipeline) AnswerOnce(ctx context.Context, question string) (string, []domain.ScoredPassage, error) {
	for ev := range p.Answer(ctx, question) {
		switch ev.Type {
		case EventFinal:
			return ev.Final.Answer, ev.Final.Passages, nil
		case EventError:
			return "", nil, domain.ErrGenerationFailed
		}
	}
	return "", nil, ctx.Err()
}

func (p *Pipeline) run(ctx context.Context, question string, events chan<- Event) {
	pipelineID := uuid.NewString()
	log := p.logger.With(zap.String("pipeline_id", pipelineID))
	log.Info("Pipeline started", zap.String("question", question))

	started := time.Now()
	var pm domain.PipelineMetrics

	// Intent classification and corpus discovery are independent reads.
	p.emitStage(ctx, events, StageIntent)
	tStage := time.Now()

	var (
		intent    domain.Intent
		corpusCtx domain.CorpusContext
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		intent = p.intents.Classify(gctx, question)
		return nil
	})
	g.Go(func() error {
		corpusCtx = p.corpus.Context(gctx)
		return nil
	})
	_ = g.Wait() // both stages degrade internally, never error

	pm.IntentClassification = domain.Millis(time.Since(tStage))
	pm.CorpusDiscovery = pm.IntentClassification // ran in parallel
	observeStage(StageIntent, pm.IntentClassification.Duration())
	log.Info("Intent classified",
		zap.String("intent", string(intent.Label)),
		zap.Float64("confidence", intent.Confidence),
		zap.Int("docs", corpusCtx.TotalDocs),
	)

	tStage = time.Now()
	subQueries := p.decomposer.Decompose(ctx, question, intent, corpusCtx)
	pm.QueryDecomposition = domain.Millis(time.Since(tStage))

	p.emitStage(ctx, events, StageExpand)
	tStage = time.Now()
	docTitles := corpusCtx.DocTitles()
	queries := p.expandAll(ctx, question, subQueries, docTitles)
	pm.QueryExpansion = domain.Millis(time.Since(tStage))
	pm.ExpandedCount = len(queries)
	observeStage(StageExpand, pm.QueryExpansion.Duration())
	log.Info("Queries expanded",
		zap.Int("subqueries", len(subQueries)),
		zap.Int("queries", len(queries)),
	)

	p.emitStage(ctx, events, StageSearch)
	tStage = time.Now()
	pred := retrieve.BuildPredicate(intent, docTitles)
	candidates, err := p.retriever.Retrieve(ctx, queries, pred)
	if err != nil {
		// Degrade to empty context: the generator still answers.
		log.Warn("Retrieval failed, continuing with no candidates", zap.Error(err))
		candidates = nil
	}
	pm.Retrieval = domain.Millis(time.Since(tStage))
	pm.IndexQueries = len(queries)
	observeStage(StageSearch, pm.Retrieval.Duration())

	p.emitStage(ctx, events, StageRerank)
	tStage = time.Now()
	before := p.reranker.SnapshotMetrics()
	ranked := p.reranker.Rerank(ctx, question, candidates)
	after := p.reranker.SnapshotMetrics()
	pm.Reranking = domain.Millis(time.Since(tStage))
	pm.CacheHits = int(after.CacheHits - before.CacheHits)
	pm.CacheMisses = int(after.CacheMisses - before.CacheMisses)
	pm.LLMCalls = int(after.LLMCalls - before.LLMCalls)
	observeStage(StageRerank, pm.Reranking.Duration())

	selected := p.selector.Select(ranked)
	log.Info("Context selected",
		zap.Int("candidates", len(candidates)),
		zap.Int("reranked", len(ranked)),
		zap.Int("selected", len(selected)),
	)

	p.emitStage(ctx, events, StageGenerate)
	tStage = time.Now()
	result, err := p.generator.Generate(ctx, question, selected, func(token string) {
		p.emit(ctx, events, Event{Type: EventToken, Token: token})
	})
	pm.Generation = domain.Millis(time.Since(tStage))
	observeStage(StageGenerate, pm.Generation.Duration())

	if err != nil {
		metrics.PipelineQuestionsTotal.WithLabelValues("error").Inc()
		log.Error("Answer generation failed", zap.Error(err))
		p.emit(ctx, events, Event{Type: EventError, Message: genericFailureMessage})
		return
	}

	pm.Total = domain.Millis(time.Since(started))
	metrics.PipelineQuestionsTotal.WithLabelValues("ok").Inc()
	log.Info("Pipeline completed",
		zap.Duration("total", pm.Total.Duration()),
		zap.Int("cited_passages", len(result.Passages)),
		zap.Int("llm_calls", pm.LLMCalls),
	)

	p.emit(ctx, events, Event{Type: EventFinal, Final: &Final{
		Answer:    result.Answer,
		Passages:  result.Passages,
		ImageRefs: result.ImageRefs,
		UsedTags:  expand.ExtractTags(docTitles),
		Metrics:   pm,
	}})
}

// expandAll widens every sub-query and always searches the original question
// verbatim as well: decomposition and expansion can drift from the user's
// phrasing, and the verbatim query anchors the result set.
func (p *Pipeline) expandAll(
	ctx context.Context, question string, subQueries []domain.SubQuery, docTitles []string,
) []string {
	queries := []string{question}
	seen := map[string]struct{}{question: {}}

	for _, sq := range subQueries {
		for _, q := range p.expander.Expand(ctx, sq.Text, docTitles) {
			if _, dup := seen[q]; dup {
				continue
			}
			seen[q] = struct{}{}
			queries = append(queries, q)
		}
	}
	return queries
}

func (p *Pipeline) emitStage(ctx context.Context, events chan<- Event, stage string) {
	p.emit(ctx, events, Event{Type: EventStage, Stage: stage, Message: stageMessages[stage]})
}

// emit sends an event unless the client has gone away.
func (p *Pipeline) emit(ctx context.Context, events chan<- Event, ev Event) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

func observeStage(stage string, d time.Duration) {
	metrics.PipelineStageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
