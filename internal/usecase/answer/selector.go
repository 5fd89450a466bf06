// Package answer assembles the final context from reranked passages, streams
// a grounded answer, and afterwards prunes the cited passages down to those
// the answer text actually evidences.
package answer

import (
	"sort"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hanwool-labs/docchat/internal/domain"
)

// Selection defaults.
const (
	DefaultMinScore   = 0.05
	DefaultPerDocCap  = 2
	DefaultDocCap     = 3
	DefaultCharBudget = 6000
)

// SelectorConfig tunes context selection. Zero values fall back to defaults.
type SelectorConfig struct {
	MinScore   float64
	PerDocCap  int
	DocCap     int
	CharBudget int
}

// Selector enforces score, per-document fairness, and size budgets on the
// passage set that goes into the generation prompt.
type Selector struct {
	cfg    SelectorConfig
	logger *zap.Logger
}

// NewSelector creates a context selector.
func NewSelector(cfg SelectorConfig, logger *zap.Logger) *Selector {
	if cfg.MinScore <= 0 {
		cfg.MinScore = DefaultMinScore
	}
	if cfg.PerDocCap <= 0 {
		cfg.PerDocCap = DefaultPerDocCap
	}
	if cfg.DocCap <= 0 {
		cfg.DocCap = DefaultDocCap
	}
	if cfg.CharBudget <= 0 {
		cfg.CharBudget = DefaultCharBudget
	}
	return &Selector{cfg: cfg, logger: logger}
}

// Select filters candidates down to the passages worth prompting with.
// Whenever at least one candidate exists, at least one passage is returned:
// an answer with zero context is never more useful than a weak one.
func (s *Selector) Select(candidates []domain.ScoredPassage) []domain.ScoredPassage {
	if len(candidates) == 0 {
		return nil
	}

	ordered := make([]domain.ScoredPassage, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(a, b int) bool {
		return ordered[a].FinalScore > ordered[b].FinalScore
	})

	survivors := s.aboveThreshold(ordered)
	capped := s.applyDocCaps(survivors)
	picked := s.fitBudget(capped)

	s.logger.Debug("Context selected",
		zap.Int("candidates", len(candidates)),
		zap.Int("selected", len(picked)),
	)
	return picked
}

// aboveThreshold drops low-score passages, keeping the single best one when
// the threshold would empty the set.
func (s *Selector) aboveThreshold(ordered []domain.ScoredPassage) []domain.ScoredPassage {
	survivors := make([]domain.ScoredPassage, 0, len(ordered))
	for _, sp := range ordered {
		if sp.FinalScore >= s.cfg.MinScore {
			survivors = append(survivors, sp)
		}
	}
	if len(survivors) == 0 {
		return ordered[:1]
	}
	return survivors
}

// applyDocCaps limits passages per document and distinct documents, walking
// in score order so the caps always favor the strongest evidence.
func (s *Selector) applyDocCaps(ordered []domain.ScoredPassage) []domain.ScoredPassage {
	perDoc := map[string]int{}
	kept := make([]domain.ScoredPassage, 0, len(ordered))

	for _, sp := range ordered {
		docID := sp.Passage.DocID
		count, seen := perDoc[docID]
		if !seen && len(perDoc) >= s.cfg.DocCap {
			continue
		}
		if count >= s.cfg.PerDocCap {
			continue
		}
		perDoc[docID] = count + 1
		kept = append(kept, sp)

		if len(kept) >= s.cfg.DocCap*s.cfg.PerDocCap {
			break
		}
	}
	return kept
}

// fitBudget greedily accumulates passages into the character budget. The
// first passage is taken unconditionally, even when it alone blows the
// budget: candidates exist, so the context must not be empty.
func (s *Selector) fitBudget(ordered []domain.ScoredPassage) []domain.ScoredPassage {
	picked := make([]domain.ScoredPassage, 0, len(ordered))
	total := 0

	for _, sp := range ordered {
		length := utf8.RuneCountInString(sp.Passage.Content)
		if len(picked) > 0 && total+length > s.cfg.CharBudget {
			break
		}
		picked = append(picked, sp)
		total += length
	}
	return picked
}
