package expand

import "strings"

// transliterations maps loanword spellings to the variant form actually found
// in many scanned documents. Substitution is deterministic and needs no
// external call.
var transliterations = strings.NewReplacer(
	"리더쉽", "리더십",
	"메뉴얼", "매뉴얼",
	"워크샵", "워크숍",
	"컨택", "콘택트",
	"어플리케이션", "애플리케이션",
	"메세지", "메시지",
	"컨텐츠", "콘텐츠",
	"플랜", "계획",
	"가이드라인", "지침",
	"프로세스", "절차",
	"스케줄", "일정",
	"템플릿", "양식",
)

// PhoneticVariant applies the transliteration table to the query. Returns ""
// when no substitution fires, so an unchanged query is never duplicated.
func PhoneticVariant(query string) string {
	variant := transliterations.Replace(query)
	if variant == query {
		return ""
	}
	return variant
}
