// Package decompose splits compound questions into focused sub-queries, each
// carrying a single intent. Simple questions pass through untouched; the LLM
// is only consulted when the question shows signs of asking several things.
package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hanwool-labs/docchat/internal/domain"
	"github.com/hanwool-labs/docchat/internal/llmparse"
)

// MaxSubQueries bounds how many sub-queries one question may produce.
// Over-decomposition retrieves noise, so the tail is silently dropped.
const MaxSubQueries = 5

// simpleQuestionRunes is the length under which a single-question text is
// never decomposed.
const simpleQuestionRunes = 50

// conjunctionMarkers signal that a short question may still combine intents.
var conjunctionMarkers = []string{"그리고", "하고", ",", "또", "및", "과"}

// questionWords and particles are stripped when deriving a heuristic focus.
var (
	questionWords = []string{"몇", "어떻게", "언제", "무엇", "왜", "누가", "어디서", "어느"}
	particles     = []string{"은", "는", "이", "가", "을", "를", "의", "에서", "에", "으로", "로"}
)

// Decomposer breaks questions into sub-queries via an LLM, grounded in the
// corpus context.
type Decomposer struct {
	llm    domain.Completer
	model  string
	logger *zap.Logger
}

// New creates a query decomposer.
func New(llm domain.Completer, model string, logger *zap.Logger) *Decomposer {
	return &Decomposer{llm: llm, model: model, logger: logger}
}

type subQueryResponse struct {
	Text     string `json:"text"`
	Focus    string `json:"focus"`
	Priority int    `json:"priority"`
}

// Decompose splits the question into at most MaxSubQueries sub-queries.
// Document lookups and simple questions skip the LLM; any LLM failure falls
// back to a single sub-query holding the original question. The result is
// never empty.
func (d *Decomposer) Decompose(
	ctx context.Context, question string, intent domain.Intent, corpus domain.CorpusContext,
) []domain.SubQuery {
	if intent.Label == domain.IntentDocumentLookup {
		return []domain.SubQuery{{Text: question, Focus: "문서 검색", Priority: 1}}
	}

	if isSimpleQuestion(question) {
		return []domain.SubQuery{{Text: question, Focus: ExtractFocus(question), Priority: 1}}
	}

	subs, err := d.decomposeLLM(ctx, question, corpus)
	if err != nil {
		d.logger.Warn("Query decomposition failed, using original question", zap.Error(err))
		return []domain.SubQuery{{Text: question, Focus: ExtractFocus(question), Priority: 1}}
	}

	d.logger.Info("Question decomposed", zap.Int("subqueries", len(subs)))
	return subs
}

// isSimpleQuestion reports whether the question is short, single-question and
// free of conjunction markers.
func isSimpleQuestion(question string) bool {
	if utf8.RuneCountInString(question) >= simpleQuestionRunes {
		return false
	}
	if strings.Count(question, "?") > 1 {
		return false
	}
	for _, marker := range conjunctionMarkers {
		if strings.Contains(question, marker) {
			return false
		}
	}
	return true
}

func (d *Decomposer) decomposeLLM(
	ctx context.Context, question string, corpus domain.CorpusContext,
) ([]domain.SubQuery, error) {
	systemPrompt := fmt.Sprintf(`%s

당신은 사용자 질문을 검색에 최적화된 서브쿼리로 분해하는 전문가입니다.

**서브쿼리 생성 원칙:**
1. 각 서브쿼리는 **하나의 의도**만 포함
2. 검색하기 쉬운 **구체적인 키워드** 포함
3. 현재 문서 컨텍스트에 있는 유형/태그 활용
4. 최대 %d개까지만 생성 (과도한 분해 금지)
5. 원문의 핵심 의도를 놓치지 않도록 주의

**우선순위 부여:**
- priority=1: 필수 정보 (질문의 핵심)
- priority=2: 중요 정보 (보조 설명)
- priority=3: 선택 정보 (참고 사항)

**출력 형식 (JSON 배열만 출력):**
[
  {"text": "서브쿼리 텍스트", "focus": "핵심 초점 (2-3 단어)", "priority": 1},
  ...
]

**예시:**

질문: "연차는 몇 일이고 어떻게 신청하나요?"
출력:
[
  {"text": "연차 일수 규정", "focus": "일수", "priority": 1},
  {"text": "연차 신청 절차", "focus": "신청", "priority": 1}
]

질문: "병가 신청하려는데 필요한 서류랑 기한 알려줘"
출력:
[
  {"text": "병가 신청 필요 서류", "focus": "서류", "priority": 1},
  {"text": "병가 신청 기한", "focus": "기한", "priority": 1}
]`, corpus.PromptSummary(), MaxSubQueries)

	userPrompt := fmt.Sprintf(
		"사용자 질문: %q\n\n이 질문을 검색에 최적화된 서브쿼리로 분해하세요.\nJSON 배열만 출력하세요.",
		question,
	)

	raw, err := d.llm.Complete(ctx, d.model, []domain.ChatMessage{
		{Role: domain.ChatRoleSystem, Content: systemPrompt},
		{Role: domain.ChatRoleUser, Content: userPrompt},
	}, domain.ChatOptions{Temperature: 0.1})
	if err != nil {
		return nil, fmt.Errorf("decompose question: %w", err)
	}

	var parsed []subQueryResponse
	if err := json.Unmarshal([]byte(llmparse.StripCodeFence(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("parse decomposition: %w: %w", domain.ErrMalformedResponse, err)
	}

	subs := make([]domain.SubQuery, 0, len(parsed))
	for _, sq := range parsed {
		text := strings.TrimSpace(sq.Text)
		if text == "" {
			continue
		}
		priority := sq.Priority
		if priority < 1 || priority > 3 {
			priority = 1
		}
		subs = append(subs, domain.SubQuery{Text: text, Focus: sq.Focus, Priority: priority})
	}
	if len(subs) == 0 {
		return nil, fmt.Errorf("decomposition yielded no sub-queries: %w", domain.ErrMalformedResponse)
	}

	if len(subs) > MaxSubQueries {
		d.logger.Warn("Too many sub-queries, truncating",
			zap.Int("got", len(subs)),
			zap.Int("kept", MaxSubQueries),
		)
		subs = subs[:MaxSubQueries]
	}
	return subs, nil
}

// ExtractFocus derives a short focus label from a question by stripping
// question words, particles and punctuation, keeping the first three words.
func ExtractFocus(question string) string {
	for _, w := range questionWords {
		question = strings.ReplaceAll(question, w, "")
	}
	for _, p := range particles {
		question = strings.ReplaceAll(question, p, " ")
	}
	for _, ch := range []string{"?", "!", ".", ","} {
		question = strings.ReplaceAll(question, ch, "")
	}

	words := strings.Fields(question)
	if len(words) > 3 {
		words = words[:3]
	}
	if len(words) == 0 {
		return "정보"
	}
	return strings.Join(words, " ")
}
