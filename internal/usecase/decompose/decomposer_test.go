package decompose

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/hanwool-labs/docchat/internal/domain"
)

type mockCompleter struct {
	response string
	err      error
	calls    int
}

func (m *mockCompleter) Complete(_ context.Context, _ string, _ []domain.ChatMessage, _ domain.ChatOptions) (string, error) {
	m.calls++
	return m.response, m.err
}

func infoIntent() domain.Intent {
	return domain.Intent{Label: domain.IntentInformationLookup, Confidence: 0.9}
}

func TestDecompose_DocumentLookupSkipsLLM(t *testing.T) {
	m := &mockCompleter{}
	d := New(m, "gpt-4o-mini", zap.NewNop())

	subs := d.Decompose(context.Background(), "연차 관련 문서 찾아줘",
		domain.Intent{Label: domain.IntentDocumentLookup, Confidence: 0.95}, domain.CorpusContext{})

	if len(subs) != 1 || subs[0].Text != "연차 관련 문서 찾아줘" {
		t.Fatalf("unexpected sub-queries: %+v", subs)
	}
	if subs[0].Focus != "문서 검색" || subs[0].Priority != 1 {
		t.Errorf("unexpected focus/priority: %+v", subs[0])
	}
	if m.calls != 0 {
		t.Error("document lookup must not call the LLM")
	}
}

func TestDecompose_SimpleQuestionSkipsLLM(t *testing.T) {
	m := &mockCompleter{}
	d := New(m, "gpt-4o-mini", zap.NewNop())

	subs := d.Decompose(context.Background(), "재택근무 규정은?", infoIntent(), domain.CorpusContext{})

	if len(subs) != 1 || subs[0].Text != "재택근무 규정은?" {
		t.Fatalf("unexpected sub-queries: %+v", subs)
	}
	if m.calls != 0 {
		t.Error("simple question must not call the LLM")
	}
}

func TestDecompose_ConjunctionTriggersLLM(t *testing.T) {
	m := &mockCompleter{response: `[
		{"text": "연차 일수 규정", "focus": "일수", "priority": 1},
		{"text": "연차 신청 절차", "focus": "신청", "priority": 1}
	]`}
	d := New(m, "gpt-4o-mini", zap.NewNop())

	subs := d.Decompose(context.Background(), "연차 일수 그리고 신청 방법은?", infoIntent(), domain.CorpusContext{})

	if m.calls != 1 {
		t.Fatalf("expected 1 LLM call, got %d", m.calls)
	}
	if len(subs) != 2 || subs[0].Text != "연차 일수 규정" || subs[1].Focus != "신청" {
		t.Errorf("unexpected sub-queries: %+v", subs)
	}
}

func TestDecompose_TruncatesToMax(t *testing.T) {
	m := &mockCompleter{response: `[
		{"text": "q1", "focus": "f", "priority": 1},
		{"text": "q2", "focus": "f", "priority": 1},
		{"text": "q3", "focus": "f", "priority": 2},
		{"text": "q4", "focus": "f", "priority": 2},
		{"text": "q5", "focus": "f", "priority": 3},
		{"text": "q6", "focus": "f", "priority": 3},
		{"text": "q7", "focus": "f", "priority": 3}
	]`}
	d := New(m, "gpt-4o-mini", zap.NewNop())

	subs := d.Decompose(context.Background(), "복무규정 그리고 인사규정 그리고 보안규정의 핵심 내용을 모두 정리해서 알려줘",
		infoIntent(), domain.CorpusContext{})

	if len(subs) != MaxSubQueries {
		t.Errorf("expected %d sub-queries, got %d", MaxSubQueries, len(subs))
	}
}

func TestDecompose_LLMFailureFallsBackToOriginal(t *testing.T) {
	question := "연차 일수 그리고 신청 방법과 이월 기준까지 한번에 설명해 주세요"

	for name, m := range map[string]*mockCompleter{
		"upstream error": {err: errors.New("api down")},
		"malformed json": {response: "서브쿼리를 만들 수 없습니다"},
		"empty array":    {response: "[]"},
		"blank texts":    {response: `[{"text": "  ", "focus": "f", "priority": 1}]`},
	} {
		t.Run(name, func(t *testing.T) {
			d := New(m, "gpt-4o-mini", zap.NewNop())
			subs := d.Decompose(context.Background(), question, infoIntent(), domain.CorpusContext{})

			if len(subs) != 1 || subs[0].Text != question {
				t.Fatalf("expected single original-question fallback, got %+v", subs)
			}
			if subs[0].Priority != 1 {
				t.Errorf("fallback priority = %d, want 1", subs[0].Priority)
			}
		})
	}
}

func TestDecompose_InvalidPriorityNormalized(t *testing.T) {
	m := &mockCompleter{response: `[{"text": "연차 규정", "focus": "연차", "priority": 9}]`}
	d := New(m, "gpt-4o-mini", zap.NewNop())

	subs := d.Decompose(context.Background(), "연차 일수 그리고 이월 기준은 어떻게 되나요?",
		infoIntent(), domain.CorpusContext{})

	if subs[0].Priority != 1 {
		t.Errorf("priority = %d, want normalized 1", subs[0].Priority)
	}
}

func TestIsSimpleQuestion(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     bool
	}{
		{"short single question", "연차는 몇 일인가요?", true},
		{"conjunction marker", "연차 그리고 병가 규정은?", false},
		{"comma", "연차, 병가 규정은?", false},
		{"two question marks", "연차는? 병가는?", false},
		{"long question", "우리 회사의 연차 휴가 제도가 어떻게 운영되는지 계산 방식과 함께 자세히 설명해 주시기 바랍니다", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isSimpleQuestion(tc.question); got != tc.want {
				t.Errorf("isSimpleQuestion(%q) = %v, want %v", tc.question, got, tc.want)
			}
		})
	}
}

func TestExtractFocus_NeverEmpty(t *testing.T) {
	if got := ExtractFocus("왜?"); got != "정보" {
		t.Errorf("ExtractFocus(stripped-empty) = %q, want 정보", got)
	}
	if got := ExtractFocus("병가 신청 방법 알려줘"); got == "" {
		t.Error("ExtractFocus must not return empty for real questions")
	}
}
