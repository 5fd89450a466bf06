package answer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hanwool-labs/docchat/internal/domain"
)

// flushRunes is the buffered-token length past which output is force-flushed
// at the nearest preceding space, bounding latency to first visible text.
const flushRunes = 50

const generationTemperature = 0.2

const personaPrompt = "너는 회사 내부 규정 안내용 비서다. " +
	"주어진 컨텍스트(문서 청크) 범위 안에서만 한국어로 정확히 답해라. " +
	"근거가 불충분하면 '제공된 자료 내에서 확실하지 않습니다'라고 말하고, " +
	"모호한 부분이 존재한다면 추가로 확인할 항목을 제안해라. " +
	"필요시 목록이나 단계 형식으로 간결하게 정리해라."

// emptyContextAnswer is the designed terminal answer when nothing survived
// selection. It is emitted without a model call.
const emptyContextAnswer = "제공된 자료 내에서 질문과 관련된 내용을 찾지 못했습니다. " +
	"질문을 조금 더 구체적으로 바꾸거나 문서 제목을 함께 알려주시면 다시 찾아보겠습니다."

// ImageRef ties a sequential marker in the context block to a passage image.
type ImageRef struct {
	Marker    int
	Ref       string
	PassageID string
}

// Result is the terminal payload of a generation stream.
type Result struct {
	Answer    string
	Passages  []domain.ScoredPassage
	ImageRefs []ImageRef
}

// Generator streams grounded answers over a selected context.
type Generator struct {
	llm    domain.Streamer
	model  string
	logger *zap.Logger
}

// NewGenerator creates an answer generator.
func NewGenerator(llm domain.Streamer, model string, logger *zap.Logger) *Generator {
	return &Generator{llm: llm, model: model, logger: logger}
}

// Generate streams an answer for the question over the selected passages,
// calling emit for each flushed text segment. The returned Result carries the
// full answer, the evidence-filtered passages, and any image markers.
//
// An empty context is a designed outcome, not an error: the canned
// not-found answer is emitted and returned with no passages. Only a failure
// of the generation call itself surfaces as an error.
func (g *Generator) Generate(
	ctx context.Context,
	question string,
	passages []domain.ScoredPassage,
	emit func(token string),
) (Result, error) {
	if len(passages) == 0 {
		emit(emptyContextAnswer)
		return Result{Answer: emptyContextAnswer}, nil
	}

	contextBlock, imageRefs := buildContextBlock(passages)

	stream, err := g.llm.Stream(ctx, g.model, []domain.ChatMessage{
		{Role: domain.ChatRoleSystem, Content: personaPrompt},
		{Role: domain.ChatRoleUser, Content: buildUserPrompt(question, contextBlock)},
	}, domain.ChatOptions{Temperature: generationTemperature})
	if err != nil {
		return Result{}, fmt.Errorf("open answer stream: %w", domain.ErrGenerationFailed)
	}
	defer stream.Close()

	answer, err := drainStream(stream, emit)
	if err != nil {
		return Result{}, fmt.Errorf("answer stream: %w", domain.ErrGenerationFailed)
	}

	evidenced := FilterEvidenced(answer, passages)
	g.logger.Info("Answer generated",
		zap.Int("context_passages", len(passages)),
		zap.Int("evidenced_passages", len(evidenced)),
		zap.Int("answer_runes", utf8.RuneCountInString(answer)),
	)

	return Result{Answer: answer, Passages: evidenced, ImageRefs: imageRefs}, nil
}

// drainStream accumulates deltas and emits them in word-safe segments.
func drainStream(stream domain.TokenStream, emit func(token string)) (string, error) {
	var full strings.Builder
	buf := newFlushBuffer(emit)

	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		full.WriteString(delta)
		buf.write(delta)
	}
	buf.flush()
	return strings.TrimSpace(full.String()), nil
}

// flushBuffer batches streamed deltas: it flushes at newline boundaries, or
// forcibly at the nearest preceding space once flushRunes characters have
// accumulated, so words are never split mid-token.
type flushBuffer struct {
	pending []rune
	emit    func(token string)
}

func newFlushBuffer(emit func(token string)) *flushBuffer {
	return &flushBuffer{emit: emit}
}

func (b *flushBuffer) write(delta string) {
	b.pending = append(b.pending, []rune(delta)...)

	for {
		if i := indexRune(b.pending, '\n'); i >= 0 {
			b.emitThrough(i)
			continue
		}
		if len(b.pending) < flushRunes {
			return
		}
		if i := lastIndexRune(b.pending, ' '); i >= 0 {
			b.emitThrough(i)
			continue
		}
		// No safe break point: release everything rather than stall.
		b.emitThrough(len(b.pending) - 1)
	}
}

// flush releases whatever remains; call once after the stream ends.
func (b *flushBuffer) flush() {
	if len(b.pending) > 0 {
		b.emitThrough(len(b.pending) - 1)
	}
}

func (b *flushBuffer) emitThrough(i int) {
	b.emit(string(b.pending[:i+1]))
	b.pending = b.pending[i+1:]
}

func indexRune(rs []rune, r rune) int {
	for i, c := range rs {
		if c == r {
			return i
		}
	}
	return -1
}

func lastIndexRune(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}

// buildContextBlock renders the numbered passage context for the prompt and
// assigns sequential markers to passages carrying images.
func buildContextBlock(passages []domain.ScoredPassage) (string, []ImageRef) {
	var block strings.Builder
	var images []ImageRef

	for i, sp := range passages {
		p := sp.Passage
		title := p.DocTitle
		if title == "" {
			title = p.DocID
		}
		if title == "" {
			title = "제목 없음"
		}

		fmt.Fprintf(&block, "[%d] %s (doc_type=%s, visibility=%s, tags=%s)",
			i+1, title, p.DocType, p.Visibility, strings.Join(p.Tags, ","))
		if p.ImageRef != "" {
			marker := len(images) + 1
			images = append(images, ImageRef{Marker: marker, Ref: p.ImageRef, PassageID: p.ID})
			fmt.Fprintf(&block, " [이미지 %d]", marker)
		}
		block.WriteString("\n")
		block.WriteString(strings.TrimSpace(p.Content))
		block.WriteString("\n\n")
	}
	return strings.TrimSpace(block.String()), images
}

func buildUserPrompt(question, contextBlock string) string {
	return fmt.Sprintf(
		"질문:\n%s\n\n다음은 검색된 관련 문서 청크들이다. 이 정보만 사용해서 답변해라.\n\n%s",
		question, contextBlock,
	)
}
