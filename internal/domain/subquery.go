package domain

// SubQuery is one prioritized search query derived from the user question.
// At least one SubQuery always exists: the original question itself when
// decomposition fails or is unnecessary.
type SubQuery struct {
	Text     string
	Focus    string
	Priority int // 1=essential … 3=optional
}
