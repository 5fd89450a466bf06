package expand

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hanwool-labs/docchat/internal/domain"
	"github.com/hanwool-labs/docchat/internal/llmparse"
)

const defaultLLMExpansions = 3

// Candidate length bounds in runes, exclusive. One-word fragments retrieve
// noise; near-paragraph rewrites drift from the question.
const (
	minCandidateRunes = 5
	maxCandidateRunes = 100
)

// expandLLM asks the model for paraphrases stressing typo correction,
// character-spaced noun variants (OCR-broken spacing) and synonyms. Any
// failure returns nil; the caller already holds the original query.
func (e *Expander) expandLLM(ctx context.Context, query string, docTitles []string) []string {
	prompt := fmt.Sprintf(`다음 질문을 분석하고 %d가지 다른 표현으로 확장하세요.

원본 질문: %s

사용 가능한 문서: %s

요구사항:
1. **오타 교정 필수**: 오타가 있다면 교정하세요 (예: "살려줄래" → "알려줄래")
2. **띄어쓰기 변형 필수**: 핵심 명사에 글자 사이 띄어쓰기를 넣은 변형을 반드시 포함하세요
   - 예: "과장" → "과 장", "임용기준" → "임 용 기 준"
   - 문서가 OCR로 스캔되어 띄어쓰기가 불규칙할 수 있으므로 이 변형이 매우 중요합니다
3. 동의어 사용 (예: "연차" → "휴가")
4. 의미는 동일하게 유지

출력 형식:
1. [오타 교정된 원본 질문]
2. [핵심 명사에 띄어쓰기를 넣은 변형]
3. [동의어를 사용한 변형]`, e.maxLLMQueries, query, summarizeTitles(docTitles))

	raw, err := e.llm.Complete(ctx, e.model, []domain.ChatMessage{
		{Role: domain.ChatRoleUser, Content: prompt},
	}, domain.ChatOptions{Temperature: 0.3, MaxTokens: 300})
	if err != nil {
		e.logger.Warn("LLM query expansion failed, keeping original only", zap.Error(err))
		return nil
	}

	var candidates []string
	for _, item := range llmparse.ListItems(raw) {
		n := utf8.RuneCountInString(item)
		if n <= minCandidateRunes || n >= maxCandidateRunes {
			continue
		}
		candidates = append(candidates, item)
		if len(candidates) >= e.maxLLMQueries {
			break
		}
	}
	return candidates
}

// summarizeTitles renders up to 10 document titles for the prompt.
func summarizeTitles(titles []string) string {
	if len(titles) == 0 {
		return "(문서 정보 없음)"
	}
	shown := titles
	if len(shown) > 10 {
		shown = shown[:10]
	}
	summary := strings.Join(shown, ", ")
	if rest := len(titles) - len(shown); rest > 0 {
		summary += fmt.Sprintf(" 외 %d개", rest)
	}
	return summary
}
