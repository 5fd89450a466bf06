package expand

import "strings"

// Table-explore expansion: questions like "직급별 기준 보여줘" usually want a
// table or schedule buried in a document. Detecting that intent and appending
// table-markup hint tokens pulls in passages whose text is mostly markup.

// tableNouns and tableVerbs must co-occur for the table-explore intent.
var (
	tableNouns = []string{"표", "목록", "현황", "기준", "일람", "내역", "리스트"}
	tableVerbs = []string{"보여", "알려", "정리", "뽑아", "찾아", "출력"}
)

// fillerVerbs are trailing request phrases stripped before topic extraction.
var fillerVerbs = []string{
	"보여줘", "보여주세요", "알려줘", "알려주세요", "정리해줘", "정리해주세요",
	"뽑아줘", "찾아줘", "찾아주세요", "출력해줘", "말해줘", "해줘", "해주세요",
	"주세요", "궁금합니다", "궁금해요",
}

// markupHints are appended to the extracted topic, one variant each.
var markupHints = []string{"표", "목록", "기준표", "현황"}

// specificSynonyms swaps a generic term for the specific one documents use.
// Ordered so the variant chosen for a query is deterministic.
var specificSynonyms = []struct{ generic, specific string }{
	{"기준", "기준표"},
	{"직급", "직급 체계"},
	{"급여", "급여 테이블"},
	{"일정", "일정표"},
	{"현황", "현황표"},
}

// maxHintVariants bounds the markup-hint candidates per query.
const maxHintVariants = 4

// TableExploreVariants returns hint-augmented variants when the query shows
// table-lookup intent, or nil otherwise.
func TableExploreVariants(query string) []string {
	if !wantsTable(query) {
		return nil
	}

	topic := extractTopic(query)
	if topic == "" {
		return nil
	}

	var variants []string
	for _, hint := range markupHints {
		if len(variants) >= maxHintVariants {
			break
		}
		if strings.HasSuffix(topic, hint) {
			continue
		}
		variants = append(variants, topic+" "+hint)
	}

	for _, s := range specificSynonyms {
		if strings.Contains(topic, s.generic) && !strings.Contains(topic, s.specific) {
			variants = append(variants, strings.Replace(topic, s.generic, s.specific, 1))
			break
		}
	}

	return variants
}

// wantsTable detects keyword co-occurrence of a table noun and a request verb.
func wantsTable(query string) bool {
	var noun bool
	for _, n := range tableNouns {
		if strings.Contains(query, n) {
			noun = true
			break
		}
	}
	if !noun {
		return false
	}
	for _, v := range tableVerbs {
		if strings.Contains(query, v) {
			return true
		}
	}
	return false
}

// extractTopic strips filler request verbs and punctuation, leaving the
// subject of the lookup.
func extractTopic(query string) string {
	topic := query
	for _, f := range fillerVerbs {
		topic = strings.ReplaceAll(topic, f, "")
	}
	topic = strings.Trim(topic, " ?!.,")
	return strings.Join(strings.Fields(topic), " ")
}
