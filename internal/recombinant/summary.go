package recombinant

import "github.com/acorg/go3seq/internal/models"

// ParentPair groups the recombinants predicted for one (unordered) pair of
// parents.
type ParentPair struct {
	P            string
	Q            string
	Recombinants []*models.Recombinant
}

// Summary accumulates recombinants as they are read. Parent pairs are kept
// in the order they were first seen.
type Summary struct {
	Count      int
	Duplicates int
	Pairs      []*ParentPair

	pairs map[[2]string]*ParentPair
	seen  map[[3]string]bool
}

func NewSummary() *Summary {
	return &Summary{
		pairs: make(map[[2]string]*ParentPair),
		seen:  make(map[[3]string]bool),
	}
}

// Add records rec and reports whether the same child was already reported
// for the same parents.
func (s *Summary) Add(rec *models.Recombinant) (duplicate bool) {
	p, q := rec.Parents()
	s.Count++

	key := [3]string{p, q, rec.RecombinantID}
	if s.seen[key] {
		s.Duplicates++
		duplicate = true
	} else {
		s.seen[key] = true
	}

	pair, ok := s.pairs[[2]string{p, q}]
	if !ok {
		pair = &ParentPair{P: p, Q: q}
		s.pairs[[2]string{p, q}] = pair
		s.Pairs = append(s.Pairs, pair)
	}
	pair.Recombinants = append(pair.Recombinants, rec)

	return duplicate
}

func Summarize(recs []*models.Recombinant) *Summary {
	s := NewSummary()
	for _, rec := range recs {
		s.Add(rec)
	}
	return s
}
