package answer

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hanwool-labs/docchat/internal/domain"
)

type mockStream struct {
	deltas []string
	pos    int
	err    error // returned after all deltas
	closed bool
}

func (m *mockStream) Recv() (string, error) {
	if m.pos >= len(m.deltas) {
		if m.err != nil {
			return "", m.err
		}
		return "", io.EOF
	}
	d := m.deltas[m.pos]
	m.pos++
	return d, nil
}

func (m *mockStream) Close() { m.closed = true }

type mockStreamer struct {
	stream  *mockStream
	openErr error
	msgs    []domain.ChatMessage
}

func (m *mockStreamer) Stream(_ context.Context, _ string, msgs []domain.ChatMessage, _ domain.ChatOptions) (domain.TokenStream, error) {
	m.msgs = msgs
	if m.openErr != nil {
		return nil, m.openErr
	}
	return m.stream, nil
}

func contextPassage(id, title, content string) domain.ScoredPassage {
	return domain.ScoredPassage{
		Passage: domain.Passage{
			ID:       id,
			DocID:    "d1",
			DocTitle: title,
			DocType:  "policy",
			Content:  content,
		},
		FinalScore: 0.9,
	}
}

func TestGenerate_StreamsAndFiltersEvidence(t *testing.T) {
	ms := &mockStreamer{stream: &mockStream{deltas: []string{
		"연차는 제10조에 따라 ", "15일입니다.\n", "자세한 내용은 인사규정을 참고하세요.",
	}}}
	g := NewGenerator(ms, "gpt-4o", zap.NewNop())

	passages := []domain.ScoredPassage{
		contextPassage("p1", "인사규정", "제10조 연차휴가는 15일로 한다."),
		contextPassage("p2", "보안규정", "출입증은 경비실에서 발급한다."),
	}

	var emitted []string
	res, err := g.Generate(context.Background(), "연차는 몇 일인가요?", passages, func(tok string) {
		emitted = append(emitted, tok)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(res.Answer, "제10조") {
		t.Errorf("answer lost stream content: %q", res.Answer)
	}
	if strings.Join(emitted, "") != "연차는 제10조에 따라 15일입니다.\n자세한 내용은 인사규정을 참고하세요." {
		t.Errorf("emitted segments reassemble to %q", strings.Join(emitted, ""))
	}
	if len(res.Passages) != 1 || res.Passages[0].Passage.ID != "p1" {
		t.Errorf("evidence filter kept %v, want only p1", res.Passages)
	}
	if !ms.stream.closed {
		t.Error("stream must be closed")
	}
}

func TestGenerate_EmptyContextEmitsNotFoundWithoutLLM(t *testing.T) {
	ms := &mockStreamer{openErr: errors.New("must not be called")}
	g := NewGenerator(ms, "gpt-4o", zap.NewNop())

	var emitted []string
	res, err := g.Generate(context.Background(), "q", nil, func(tok string) {
		emitted = append(emitted, tok)
	})
	if err != nil {
		t.Fatalf("empty context is a designed outcome, got error: %v", err)
	}
	if res.Answer != emptyContextAnswer {
		t.Errorf("answer = %q, want the canned not-found answer", res.Answer)
	}
	if len(emitted) != 1 {
		t.Errorf("the not-found answer must still be emitted, got %v", emitted)
	}
	if len(res.Passages) != 0 {
		t.Errorf("no passages must be cited, got %v", res.Passages)
	}
}

func TestGenerate_OpenFailureIsGenerationError(t *testing.T) {
	ms := &mockStreamer{openErr: errors.New("api down")}
	g := NewGenerator(ms, "gpt-4o", zap.NewNop())

	_, err := g.Generate(context.Background(), "q",
		[]domain.ScoredPassage{contextPassage("p1", "t", "c")}, func(string) {})

	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Errorf("err = %v, want ErrGenerationFailed", err)
	}
}

func TestGenerate_MidStreamFailureIsGenerationError(t *testing.T) {
	ms := &mockStreamer{stream: &mockStream{
		deltas: []string{"부분 답변"},
		err:    errors.New("connection reset"),
	}}
	g := NewGenerator(ms, "gpt-4o", zap.NewNop())

	_, err := g.Generate(context.Background(), "q",
		[]domain.ScoredPassage{contextPassage("p1", "t", "c")}, func(string) {})

	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Errorf("err = %v, want ErrGenerationFailed", err)
	}
	if !ms.stream.closed {
		t.Error("stream must be closed on failure")
	}
}

func TestGenerate_PromptCarriesPersonaAndContext(t *testing.T) {
	ms := &mockStreamer{stream: &mockStream{deltas: []string{"답"}}}
	g := NewGenerator(ms, "gpt-4o", zap.NewNop())

	_, err := g.Generate(context.Background(), "연차는?",
		[]domain.ScoredPassage{contextPassage("p1", "인사규정", "제10조 연차휴가")}, func(string) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ms.msgs) != 2 || ms.msgs[0].Role != domain.ChatRoleSystem {
		t.Fatalf("expected system+user messages, got %v", ms.msgs)
	}
	if !strings.Contains(ms.msgs[0].Content, "회사 내부 규정 안내용 비서") {
		t.Error("system message must carry the persona")
	}
	user := ms.msgs[1].Content
	if !strings.Contains(user, "[1] 인사규정 (doc_type=policy, visibility=, tags=)") {
		t.Errorf("user message missing numbered context header:\n%s", user)
	}
	if !strings.Contains(user, "연차는?") {
		t.Error("user message must carry the question")
	}
}

func TestBuildContextBlock_AssignsSequentialImageMarkers(t *testing.T) {
	p1 := contextPassage("p1", "규정", "본문1")
	p1.Passage.ImageRef = "img/table-1.png"
	p2 := contextPassage("p2", "규정", "본문2")
	p3 := contextPassage("p3", "규정", "본문3")
	p3.Passage.ImageRef = "img/chart-2.png"

	block, images := buildContextBlock([]domain.ScoredPassage{p1, p2, p3})

	if len(images) != 2 {
		t.Fatalf("image refs = %d, want 2", len(images))
	}
	if images[0].Marker != 1 || images[1].Marker != 2 {
		t.Errorf("markers = %d, %d, want sequential 1, 2", images[0].Marker, images[1].Marker)
	}
	if images[1].PassageID != "p3" {
		t.Errorf("second image from %s, want p3", images[1].PassageID)
	}
	if !strings.Contains(block, "[이미지 1]") || !strings.Contains(block, "[이미지 2]") {
		t.Errorf("context block missing image markers:\n%s", block)
	}
}

func TestFlushBuffer_FlushesAtNewline(t *testing.T) {
	var segments []string
	buf := newFlushBuffer(func(tok string) { segments = append(segments, tok) })

	buf.write("첫 줄\n둘째")
	if len(segments) != 1 || segments[0] != "첫 줄\n" {
		t.Fatalf("segments = %q, want the first line flushed at its newline", segments)
	}

	buf.flush()
	if strings.Join(segments, "") != "첫 줄\n둘째" {
		t.Errorf("reassembled = %q", strings.Join(segments, ""))
	}
}

func TestFlushBuffer_ForcesFlushAtPrecedingSpace(t *testing.T) {
	var segments []string
	buf := newFlushBuffer(func(tok string) { segments = append(segments, tok) })

	// 60 runes without a newline; a space sits at position 54.
	head := strings.Repeat("가", 54)
	buf.write(head + " " + strings.Repeat("나", 5))

	if len(segments) == 0 {
		t.Fatal("expected a forced flush past 50 runes")
	}
	if segments[0] != head+" " {
		t.Errorf("forced flush cut at %d runes, want the nearest preceding space", len([]rune(segments[0])))
	}

	buf.flush()
	if strings.Join(segments, "") != head+" "+strings.Repeat("나", 5) {
		t.Error("flush must release the remainder intact")
	}
}

func TestFlushBuffer_NoSpaceStillReleases(t *testing.T) {
	var segments []string
	buf := newFlushBuffer(func(tok string) { segments = append(segments, tok) })

	long := strings.Repeat("가", 70)
	buf.write(long)

	if strings.Join(segments, "") != long {
		t.Errorf("unbroken text must still be released, got %q", strings.Join(segments, ""))
	}
}

func TestFlushBuffer_ShortTextWaitsForFlush(t *testing.T) {
	var segments []string
	buf := newFlushBuffer(func(tok string) { segments = append(segments, tok) })

	buf.write("짧은 토큰")
	if len(segments) != 0 {
		t.Fatalf("short text without newline must stay buffered, got %q", segments)
	}

	buf.flush()
	if strings.Join(segments, "") != "짧은 토큰" {
		t.Errorf("flush released %q", strings.Join(segments, ""))
	}
}
