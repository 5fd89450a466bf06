// Package intent classifies what a question is asking for. The label shapes
// the rest of the pipeline: document lookups skip decomposition and filter by
// title, everything else goes through the full retrieval path.
package intent

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/hanwool-labs/docchat/internal/domain"
	"github.com/hanwool-labs/docchat/internal/llmparse"
)

const systemPrompt = `당신은 사용자 질문의 의도를 분류하는 전문가입니다.

사용자 질문을 다음 3가지 의도 중 하나로 분류하세요:

1. **document_lookup** (문서 검색 요청)
   - 특징: 문서 자체를 찾거나 열람하려는 요청
   - 키워드: "문서 찾아", "어디서 볼 수 있나", "관련 문서", "문서 목록"
   - 예시:
     - "연차 관련 문서 찾아줘"
     - "인사규정 문서 어디서 볼 수 있어?"
     - "복무규정 보고 싶어"

2. **information_lookup** (정보 질의)
   - 특징: 특정 정보나 답변을 얻으려는 질문
   - 키워드: "몇", "어떻게", "언제", "무엇", "왜"
   - 예시:
     - "연차는 몇 일인가요?"
     - "병가는 어떻게 신청하나요?"
     - "재택근무 규정은 어떻게 되나요?"

3. **multi_part** (복합 질의)
   - 특징: 문서 검색 + 정보 질의가 결합된 요청
   - 키워드: "찾고 ~해줘", "보고 ~알려줘"
   - 예시:
     - "연차 문서 찾고 내용 요약해줘"
     - "복무규정 보고 핵심만 알려줘"
     - "인사규정 문서에서 승진 관련 내용 찾아줘"

**출력 형식 (JSON만 출력):**
{
  "label": "document_lookup" | "information_lookup" | "multi_part",
  "confidence": 0.0 ~ 1.0,
  "reason": "분류 근거 설명"
}

**분류 기준:**
- confidence ≥ 0.7: 확신 있음
- confidence < 0.7: 안전 모드 (information_lookup)
- 불명확한 경우 information_lookup으로 분류`

// Classifier labels questions via an LLM taxonomy prompt.
type Classifier struct {
	llm    domain.Completer
	model  string
	logger *zap.Logger
}

// New creates an intent classifier.
func New(llm domain.Completer, model string, logger *zap.Logger) *Classifier {
	return &Classifier{llm: llm, model: model, logger: logger}
}

type intentResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Classify labels the question. Classification never fails: an upstream error
// or malformed response falls back to information_lookup at low confidence,
// and a confident prediction below the threshold is downgraded to the same
// safe label.
func (c *Classifier) Classify(ctx context.Context, question string) domain.Intent {
	userPrompt := fmt.Sprintf("사용자 질문: %q\n\n이 질문의 의도를 분류하세요.", question)

	raw, err := c.llm.Complete(ctx, c.model, []domain.ChatMessage{
		{Role: domain.ChatRoleSystem, Content: systemPrompt},
		{Role: domain.ChatRoleUser, Content: userPrompt},
	}, domain.ChatOptions{Temperature: 0.0})
	if err != nil {
		c.logger.Warn("Intent classification failed, using fallback", zap.Error(err))
		return fallbackIntent("분류 실패, 폴백 모드: " + err.Error())
	}

	var resp intentResponse
	if err := json.Unmarshal([]byte(llmparse.StripCodeFence(raw)), &resp); err != nil {
		c.logger.Warn("Intent response is not valid JSON, using fallback", zap.Error(err))
		return fallbackIntent("JSON 파싱 실패, 폴백 모드: " + err.Error())
	}
	if !domain.ValidIntentLabel(resp.Label) || resp.Confidence < 0 || resp.Confidence > 1 {
		c.logger.Warn("Intent response carries invalid fields, using fallback",
			zap.String("label", resp.Label),
			zap.Float64("confidence", resp.Confidence),
		)
		return fallbackIntent(fmt.Sprintf("잘못된 분류 응답 (label=%s), 폴백 모드", resp.Label))
	}

	intent := domain.Intent{
		Label:      domain.IntentLabel(resp.Label),
		Confidence: resp.Confidence,
		Reason:     resp.Reason,
	}

	if intent.Confidence < domain.MinIntentConfidence {
		c.logger.Info("Intent confidence below threshold, downgrading",
			zap.String("label", string(intent.Label)),
			zap.Float64("confidence", intent.Confidence),
		)
		intent = domain.Intent{
			Label:      domain.IntentInformationLookup,
			Confidence: 0.5,
			Reason:     fmt.Sprintf("확신도 낮음 (%.2f), 안전 모드: %s", intent.Confidence, intent.Reason),
		}
	}

	c.logger.Info("Intent classified",
		zap.String("label", string(intent.Label)),
		zap.Float64("confidence", intent.Confidence),
	)
	return intent
}

func fallbackIntent(reason string) domain.Intent {
	return domain.Intent{
		Label:      domain.IntentInformationLookup,
		Confidence: 0.3,
		Reason:     reason,
	}
}
