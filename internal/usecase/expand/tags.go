package expand

import (
	"regexp"
	"sort"
	"strings"
)

// keywordTags maps Korean title keywords to canonical tags.
var keywordTags = []struct{ keyword, tag string }{
	{"인사", "hr-policy"},
	{"규정", "policy"},
	{"연차", "vacation"},
	{"휴가", "vacation"},
	{"휴무", "leave"},
	{"급여", "salary"},
	{"보수", "salary"},
	{"복지", "welfare"},
	{"평가", "evaluation"},
	{"고과", "evaluation"},
	{"채용", "recruitment"},
	{"입사", "recruitment"},
	{"퇴직", "retirement"},
	{"해고", "termination"},
	{"징계", "discipline"},
	{"보안", "security"},
	{"개인정보", "privacy"},
	{"안전", "safety"},
	{"매뉴얼", "manual"},
	{"가이드", "guide"},
}

var yearPattern = regexp.MustCompile(`20[2-3]\d`)

// ExtractTags derives tags from document titles by rule-based keyword mapping
// plus year extraction (2020–2039). Deterministic: the result is sorted and
// deduplicated.
func ExtractTags(docTitles []string) []string {
	set := map[string]struct{}{}

	for _, title := range docTitles {
		for _, y := range yearPattern.FindAllString(title, -1) {
			set[y] = struct{}{}
		}
		for _, kt := range keywordTags {
			if strings.Contains(title, kt.keyword) {
				set[kt.tag] = struct{}{}
			}
		}
	}

	if len(set) == 0 {
		return nil
	}
	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
