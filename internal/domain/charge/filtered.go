package charge

import (
	"github.com/turtacn/charge-repository/internal/domain/molecule"
	"github.com/turtacn/charge-repository/pkg/errors"
)

// FilteredView reads a traceable repository as if one molecule, and every
// molecule isomorphic to it, had never been added.  Filtering happens per
// lookup; the repository is not copied or modified.
type FilteredView struct {
	repo     *Repository
	molid    int
	excluded map[molecule.Typing]map[int]struct{}
}

// NewFilteredView hides molid from repo.
func NewFilteredView(repo *Repository, molid int) (*FilteredView, error) {
	if !repo.Traceable() {
		return nil, errors.New(errors.CodeNotTraceable, "filtered views need a traceable repository").
			WithDetailf("molid=%d", molid)
	}
	v := &FilteredView{
		repo:     repo,
		molid:    molid,
		excluded: make(map[molecule.Typing]map[int]struct{}, len(molecule.Typings)),
	}
	for _, t := range molecule.Typings {
		set := make(map[int]struct{})
		for _, id := range repo.Isomorphs(t, molid) {
			set[id] = struct{}{}
		}
		v.excluded[t] = set
	}
	return v, nil
}

// MolID returns the hidden molecule.
func (v *FilteredView) MolID() int { return v.molid }

// Excluded reports whether observations of id are hidden under typing t.
func (v *FilteredView) Excluded(t molecule.Typing, id int) bool {
	_, ok := v.excluded[t][id]
	return ok
}

// Charges returns the bucket for (shell, fp) without hidden observations.
// A bucket left empty by filtering is reported as absent.
func (v *FilteredView) Charges(t molecule.Typing, shell int, fp molecule.Fingerprint) ([]float64, bool) {
	obs, ok := v.repo.Store(t).Observations(shell, fp)
	if !ok {
		return nil, false
	}
	ex := v.excluded[t]
	var out []float64
	for _, o := range obs {
		if _, hidden := ex[o.MolID]; !hidden {
			out = append(out, o.Charge)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// Source returns the view of one typing as a ChargeSource.
func (v *FilteredView) Source(t molecule.Typing) ChargeSource {
	return filteredSource{view: v, typing: t}
}

type filteredSource struct {
	view   *FilteredView
	typing molecule.Typing
}

func (s filteredSource) Charges(shell int, fp molecule.Fingerprint) ([]float64, bool) {
	return s.view.Charges(s.typing, shell, fp)
}
