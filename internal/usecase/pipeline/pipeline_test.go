package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hanwool-labs/docchat/internal/domain"
	"github.com/hanwool-labs/docchat/internal/usecase/answer"
	"github.com/hanwool-labs/docchat/internal/usecase/rerank"
)

type mockIntents struct{ intent domain.Intent }

func (m *mockIntents) Classify(context.Context, string) domain.Intent { return m.intent }

type mockCorpus struct{ cc domain.CorpusContext }

func (m *mockCorpus) Context(context.Context) domain.CorpusContext { return m.cc }

type mockDecomposer struct{ subs []domain.SubQuery }

func (m *mockDecomposer) Decompose(_ context.Context, q string, _ domain.Intent, _ domain.CorpusContext) []domain.SubQuery {
	if m.subs != nil {
		return m.subs
	}
	return []domain.SubQuery{{Text: q, Focus: "정보", Priority: 1}}
}

type mockExpander struct{}

func (m *mockExpander) Expand(_ context.Context, q string, _ []string) []string {
	return []string{q, q + " 기준"}
}

type mockRetriever struct {
	gotQueries []string
	gotPred    domain.Predicate
	passages   []domain.ScoredPassage
	err        error
}

func (m *mockRetriever) Retrieve(_ context.Context, queries []string, pred domain.Predicate) ([]domain.ScoredPassage, error) {
	m.gotQueries = queries
	m.gotPred = pred
	return m.passages, m.err
}

type mockReranker struct{}

func (m *mockReranker) Rerank(_ context.Context, _ string, ps []domain.ScoredPassage) []domain.ScoredPassage {
	return ps
}

func (m *mockReranker) SnapshotMetrics() rerank.Metrics { return rerank.Metrics{} }

type mockSelector struct{}

func (m *mockSelector) Select(ps []domain.ScoredPassage) []domain.ScoredPassage { return ps }

type mockGenerator struct {
	tokens []string
	result answer.Result
	err    error
}

func (m *mockGenerator) Generate(_ context.Context, _ string, ps []domain.ScoredPassage, emit func(string)) (answer.Result, error) {
	if m.err != nil {
		return answer.Result{}, m.err
	}
	for _, tok := range m.tokens {
		emit(tok)
	}
	res := m.result
	if res.Passages == nil {
		res.Passages = ps
	}
	return res, nil
}

func passage(id string, score float64) domain.ScoredPassage {
	return domain.ScoredPassage{
		Passage:    domain.Passage{ID: id, DocID: "d1", DocTitle: "인사규정", Content: "본문"},
		FinalScore: score,
	}
}

func newTestPipeline(r *mockRetriever, g *mockGenerator) *Pipeline {
	return New(
		&mockIntents{intent: domain.Intent{Label: domain.IntentInformationLookup, Confidence: 0.9}},
		&mockCorpus{cc: domain.CorpusContext{
			TotalDocs:  1,
			RecentDocs: []domain.DocSummary{{DocID: "d1", DocTitle: "인사규정 2024.pdf"}},
		}},
		&mockDecomposer{},
		&mockExpander{},
		r,
		&mockReranker{},
		&mockSelector{},
		g,
		zap.NewNop(),
	)
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var all []Event
	for ev := range events {
		all = append(all, ev)
	}
	return all
}

func TestAnswer_EventOrderAndFinal(t *testing.T) {
	r := &mockRetriever{passages: []domain.ScoredPassage{passage("p1", 0.9)}}
	g := &mockGenerator{
		tokens: []string{"연차는 ", "15일입니다."},
		result: answer.Result{Answer: "연차는 15일입니다."},
	}

	events := collect(t, newTestPipeline(r, g).Answer(context.Background(), "연차는 몇 일인가요?"))

	var stages, tokens []string
	var final *Final
	for _, ev := range events {
		switch ev.Type {
		case EventStage:
			stages = append(stages, ev.Stage)
		case EventToken:
			tokens = append(tokens, ev.Token)
		case EventFinal:
			final = ev.Final
		case EventError:
			t.Fatalf("unexpected error event: %+v", ev)
		}
	}

	wantStages := []string{StageIntent, StageExpand, StageSearch, StageRerank, StageGenerate}
	if len(stages) != len(wantStages) {
		t.Fatalf("stages = %v, want %v", stages, wantStages)
	}
	for i := range wantStages {
		if stages[i] != wantStages[i] {
			t.Errorf("stage[%d] = %s, want %s", i, stages[i], wantStages[i])
		}
	}
	if strings.Join(tokens, "") != "연차는 15일입니다." {
		t.Errorf("tokens reassemble to %q", strings.Join(tokens, ""))
	}
	if final == nil {
		t.Fatal("missing final event")
	}
	if final.Answer != "연차는 15일입니다." {
		t.Errorf("final answer = %q", final.Answer)
	}
	if len(final.Passages) != 1 {
		t.Errorf("final passages = %d, want 1", len(final.Passages))
	}
	if final.Metrics.ExpandedCount == 0 {
		t.Error("final metrics must carry the expanded query count")
	}
	if events[len(events)-1].Type != EventFinal {
		t.Error("final must be the terminal event")
	}
}

func TestAnswer_OriginalQuestionAlwaysSearchedFirst(t *testing.T) {
	r := &mockRetriever{}
	g := &mockGenerator{result: answer.Result{Answer: "답"}}

	collect(t, newTestPipeline(r, g).Answer(context.Background(), "연차 기준과 사용 절차"))

	if len(r.gotQueries) == 0 || r.gotQueries[0] != "연차 기준과 사용 절차" {
		t.Fatalf("queries = %v, want the verbatim question first", r.gotQueries)
	}
	seen := map[string]int{}
	for _, q := range r.gotQueries {
		seen[q]++
		if seen[q] > 1 {
			t.Errorf("duplicate query %q", q)
		}
	}
}

func TestAnswer_VisibilityPredicateAlwaysApplied(t *testing.T) {
	r := &mockRetriever{}
	g := &mockGenerator{result: answer.Result{Answer: "답"}}

	collect(t, newTestPipeline(r, g).Answer(context.Background(), "질문"))

	if len(r.gotPred.Visibilities) != 2 {
		t.Errorf("predicate visibilities = %v, want the mandatory public/org clause", r.gotPred.Visibilities)
	}
}

func TestAnswer_RetrievalFailureDegradesToEmptyContext(t *testing.T) {
	r := &mockRetriever{err: errors.New("embedding api down")}
	g := &mockGenerator{result: answer.Result{Answer: "제공된 자료 내에서 찾지 못했습니다."}}

	events := collect(t, newTestPipeline(r, g).Answer(context.Background(), "질문"))

	var final *Final
	for _, ev := range events {
		if ev.Type == EventError {
			t.Fatal("retrieval failure must not surface as a request failure")
		}
		if ev.Type == EventFinal {
			final = ev.Final
		}
	}
	if final == nil {
		t.Fatal("expected a final event despite retrieval failure")
	}
}

func TestAnswer_GenerationFailureEmitsErrorEvent(t *testing.T) {
	r := &mockRetriever{passages: []domain.ScoredPassage{passage("p1", 0.9)}}
	g := &mockGenerator{err: domain.ErrGenerationFailed}

	events := collect(t, newTestPipeline(r, g).Answer(context.Background(), "질문"))

	last := events[len(events)-1]
	if last.Type != EventError {
		t.Fatalf("terminal event = %+v, want an error event", last)
	}
	if strings.Contains(last.Message, "ErrGenerationFailed") || strings.Contains(last.Message, "api") {
		t.Errorf("error message leaks internals: %q", last.Message)
	}
	if last.Message == "" {
		t.Error("error event must carry a user-facing message")
	}
}

func TestAnswer_StageEventsCarryKoreanMessages(t *testing.T) {
	r := &mockRetriever{}
	g := &mockGenerator{result: answer.Result{Answer: "답"}}

	events := collect(t, newTestPipeline(r, g).Answer(context.Background(), "질문"))

	for _, ev := range events {
		if ev.Type == EventStage && ev.Message == "" {
			t.Errorf("stage %q has no progress message", ev.Stage)
		}
	}
}

func TestAnswerOnce_ReturnsAssembledAnswer(t *testing.T) {
	r := &mockRetriever{passages: []domain.ScoredPassage{passage("p1", 0.9)}}
	g := &mockGenerator{
		tokens: []string{"연차는 15일입니다."},
		result: answer.Result{Answer: "연차는 15일입니다."},
	}

	got, passages, err := newTestPipeline(r, g).AnswerOnce(context.Background(), "연차는?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "연차는 15일입니다." {
		t.Errorf("answer = %q", got)
	}
	if len(passages) != 1 {
		t.Errorf("passages = %d, want 1", len(passages))
	}
}

func TestAnswerOnce_GenerationFailure(t *testing.T) {
	r := &mockRetriever{}
	g := &mockGenerator{err: errors.New("stream broke")}

	_, _, err := newTestPipeline(r, g).AnswerOnce(context.Background(), "질문")
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Errorf("err = %v, want ErrGenerationFailed", err)
	}
}

func TestAnswer_CancelledContextStopsStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &mockRetriever{}
	g := &mockGenerator{result: answer.Result{Answer: "답"}}

	events := newTestPipeline(r, g).Answer(ctx, "질문")
	for range events {
	}
	// Reaching here means the goroutine exited and closed the channel.
}
