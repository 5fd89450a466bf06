package answer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hanwool-labs/docchat/internal/domain"
)

// minKeyPhraseRunes is the shortest extracted phrase considered distinctive
// enough for a verbatim-match check.
const minKeyPhraseRunes = 4

// minTokenOverlap is the stopword-filtered token overlap ratio above which a
// passage counts as evidenced even without an exact phrase match.
const minTokenOverlap = 0.15

var (
	// 제N조 / 제 N 조 regulation clause references.
	clausePattern = regexp.MustCompile(`제\s*\d+\s*조(?:\s*의\s*\d+)?`)

	// Quantities with a Korean counting unit, e.g. "15일", "1년", "3 개월".
	numberUnitPattern = regexp.MustCompile(`\d+(?:\.\d+)?\s*(?:일|년|개월|월|주|시간|분|회|명|원|건|호|급|차|항|%|퍼센트)`)

	// Parenthesized qualifiers, e.g. "(육아휴직 제외)".
	parentheticalPattern = regexp.MustCompile(`[(（]([^)）]+)[)）]`)

	tokenSplitPattern = regexp.MustCompile(`[\s.,;:!?·()（）\[\]"'「」『』]+`)
)

// Particles and filler words that match between almost any two Korean texts.
var evidenceStopwords = map[string]struct{}{
	"그리고": {}, "또는": {}, "하지만": {}, "그러나": {}, "따라서": {},
	"경우": {}, "관련": {}, "대한": {}, "대해": {}, "위한": {}, "통해": {},
	"있는": {}, "없는": {}, "있습니다": {}, "없습니다": {}, "합니다": {},
	"됩니다": {}, "입니다": {}, "있다": {}, "없다": {}, "한다": {}, "된다": {},
	"수": {}, "것": {}, "등": {}, "및": {}, "더": {}, "이": {}, "그": {}, "저": {},
	"때": {}, "중": {}, "내": {}, "해당": {}, "다음": {}, "위해": {}, "같은": {},
}

// FilterEvidenced keeps only the passages the answer text actually draws on.
// A passage survives when any of these holds:
//
//   - a distinctive key phrase of the passage (clause reference, quantity,
//     or parenthetical of at least 4 characters) appears verbatim in the answer
//   - the passage and the answer reference a common regulation clause number
//   - the passage and the answer share a number+unit quantity
//   - stopword-filtered token overlap reaches 0.15
//
// When nothing qualifies, the single highest-ranked passage is kept: an
// answer always cites at least one source.
func FilterEvidenced(answer string, passages []domain.ScoredPassage) []domain.ScoredPassage {
	if len(passages) == 0 {
		return nil
	}

	answerClauses := clauseNumbers(answer)
	answerQuantities := quantities(answer)
	answerTokens := contentTokens(answer)

	kept := make([]domain.ScoredPassage, 0, len(passages))
	for _, sp := range passages {
		content := sp.Passage.Content

		switch {
		case phraseAppearsVerbatim(answer, keyPhrases(content)):
		case intersects(answerClauses, clauseNumbers(content)):
		case intersects(answerQuantities, quantities(content)):
		case tokenOverlap(answerTokens, contentTokens(content)) >= minTokenOverlap:
		default:
			continue
		}
		kept = append(kept, sp)
	}

	if len(kept) == 0 {
		return passages[:1]
	}
	return kept
}

// keyPhrases extracts the distinctive phrases of a passage worth checking
// for verbatim reuse.
func keyPhrases(content string) []string {
	var phrases []string
	phrases = append(phrases, clausePattern.FindAllString(content, -1)...)
	phrases = append(phrases, numberUnitPattern.FindAllString(content, -1)...)
	for _, m := range parentheticalPattern.FindAllStringSubmatch(content, -1) {
		phrases = append(phrases, strings.TrimSpace(m[1]))
	}

	distinctive := phrases[:0]
	for _, p := range phrases {
		if utf8.RuneCountInString(p) >= minKeyPhraseRunes {
			distinctive = append(distinctive, p)
		}
	}
	return distinctive
}

func phraseAppearsVerbatim(answer string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(answer, p) {
			return true
		}
	}
	return false
}

// clauseNumbers extracts the referenced clause numbers, normalized so
// "제 10 조" and "제10조" compare equal.
func clauseNumbers(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, m := range clausePattern.FindAllString(text, -1) {
		set[stripSpaces(m)] = struct{}{}
	}
	return set
}

// quantities extracts number+unit mentions, space-normalized.
func quantities(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, m := range numberUnitPattern.FindAllString(text, -1) {
		set[stripSpaces(m)] = struct{}{}
	}
	return set
}

func intersects(a, b map[string]struct{}) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	for k := range b {
		if _, ok := a[k]; ok {
			return true
		}
	}
	return false
}

// contentTokens splits text into content-bearing tokens: stopwords and
// single-character fragments are dropped.
func contentTokens(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range tokenSplitPattern.Split(text, -1) {
		tok = strings.TrimFunc(tok, unicode.IsPunct)
		if utf8.RuneCountInString(tok) < 2 {
			continue
		}
		if _, stop := evidenceStopwords[tok]; stop {
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

// tokenOverlap is the share of the passage's content tokens echoed by the
// answer. The passage side is the denominator: a short passage fully restated
// in a long answer is strong evidence, the reverse is not.
func tokenOverlap(answerTokens, passageTokens map[string]struct{}) float64 {
	if len(passageTokens) == 0 {
		return 0
	}
	shared := 0
	for tok := range passageTokens {
		if _, ok := answerTokens[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(passageTokens))
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
