package domain

// Predicate narrows a vector search over passage metadata.
//
// The visibility clause is mandatory: every retrieval call carries it, and any
// additional clause is conjoined with AND, never OR, and never replaces it.
type Predicate struct {
	Visibilities []Visibility
	DocTitles    []string
}

// DefaultPredicate returns the mandatory visibility-only predicate
// (public and org passages; private is never retrievable by the pipeline).
func DefaultPredicate() Predicate {
	return Predicate{Visibilities: []Visibility{VisibilityPublic, VisibilityOrg}}
}

// WithDocTitles conjoins an exact-match document-title clause.
func (p Predicate) WithDocTitles(titles []string) Predicate {
	p.DocTitles = titles
	return p
}
