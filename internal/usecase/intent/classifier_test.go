package intent

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
}

func (m *mockCompleter) Complete(_ context.Context, _ string, _ []domain.ChatMessage, _ domain.ChatOptions) (string, error) {
	return m.response, m.err
}

func classify(t *testing.T, m *mockCompleter) domain.Intent {
	t.Helper()
	c := New(m, "gpt-4o-mini", zap.NewNop())
	return c.Classify(context.Background(), "연차는 몇 일인가요?")
}

func TestClassify_ConfidentLabel(t *testing.T) {
	got := classify(t, &mockCompleter{
		response: `{"label": "document_lookup", "confidence": 0.95, "reason": "문서 요청"}`,
	})

	if got.Label != domain.IntentDocumentLookup {
		t.Errorf("Label = %s, want document_lookup", got.Label)
	}
	if got.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", got.Confidence)
	}
}

func TestClassify_StripsCodeFence(t *testing.T) {
	got := classify(t, &mockCompleter{
		response: "```json\n{\"label\": \"multi_part\", \"confidence\": 0.88, \"reason\": \"복합\"}\n```",
	})

	if got.Label != domain.IntentMultiPart {
		t.Errorf("Label = %s, want multi_part", got.Label)
	}
}

func TestClassify_LowConfidenceDowngrades(t *testing.T) {
	got := classify(t, &mockCompleter{
		response: `{"label": "document_lookup", "confidence": 0.6, "reason": "애매함"}`,
	})

	if got.Label != domain.IntentInformationLookup {
		t.Errorf("Label = %s, want information_lookup after downgrade", got.Label)
	}
	if got.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want 0.5 after downgrade", got.Confidence)
	}
}

func TestClassify_UpstreamErrorFallsBack(t *testing.T) {
	got := classify(t, &mockCompleter{err: errors.New("api down")})

	if got.Label != domain.IntentInformationLookup {
		t.Errorf("Label = %s, want information_lookup fallback", got.Label)
	}
	if got.Confidence != 0.3 {
		t.Errorf("Confidence = %v, want 0.3 fallback", got.Confidence)
	}
	if got.Reason == "" {
		t.Error("fallback must carry a diagnostic reason")
	}
}

func TestClassify_MalformedJSONFallsBack(t *testing.T) {
	got := classify(t, &mockCompleter{response: "문서 검색 요청으로 보입니다"})

	if got.Label != domain.IntentInformationLookup || got.Confidence != 0.3 {
		t.Errorf("got %+v, want information_lookup at 0.3", got)
	}
}

func TestClassify_UnknownLabelFallsBack(t *testing.T) {
	got := classify(t, &mockCompleter{
		response: `{"label": "chitchat", "confidence": 0.9, "reason": "?"}`,
	})

	if got.Label != domain.IntentInformationLookup || got.Confidence != 0.3 {
		t.Errorf("got %+v, want information_lookup at 0.3", got)
	}
}
