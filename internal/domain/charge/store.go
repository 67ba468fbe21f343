// Package charge holds the fingerprint-keyed charge statistics: sorted
// buckets of observed partial charges per shell size and neighborhood
// fingerprint, isomorphism groups of whole molecules, and read views that
// hide selected molecules for leave-one-out evaluation.
package charge

import (
	"sort"

	"github.com/turtacn/charge-repository/internal/domain/molecule"
)

// Observation is one recorded partial charge.  MolID is the contributing
// molecule in traceable repositories and zero otherwise.
type Observation struct {
	Charge float64
	MolID  int
}

// Less orders observations by charge, then by molecule id.
func (o Observation) Less(p Observation) bool {
	if o.Charge != p.Charge {
		return o.Charge < p.Charge
	}
	return o.MolID < p.MolID
}

// ChargeSource is the read side shared by stores and filtered views.
type ChargeSource interface {
	// Charges returns the ascending charges recorded for fp at shell, and
	// false when there are none.
	Charges(shell int, fp molecule.Fingerprint) ([]float64, bool)
}

// Store maps shell size to fingerprint to a sorted, non-empty bucket.
// Empty buckets and shells are never kept.
type Store struct {
	shells map[int]map[molecule.Fingerprint][]Observation
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{shells: make(map[int]map[molecule.Fingerprint][]Observation)}
}

var _ ChargeSource = (*Store)(nil)

// Observations returns the bucket for (shell, fp).  The slice is owned by
// the store and must not be modified.
func (s *Store) Observations(shell int, fp molecule.Fingerprint) ([]Observation, bool) {
	fps, ok := s.shells[shell]
	if !ok {
		return nil, false
	}
	obs, ok := fps[fp]
	return obs, ok
}

// Charges implements ChargeSource.
func (s *Store) Charges(shell int, fp molecule.Fingerprint) ([]float64, bool) {
	obs, ok := s.Observations(shell, fp)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(obs))
	for i, o := range obs {
		out[i] = o.Charge
	}
	return out, true
}

// Shells returns the populated shell sizes in ascending order.
func (s *Store) Shells() []int {
	out := make([]int, 0, len(s.shells))
	for shell := range s.shells {
		out = append(out, shell)
	}
	sort.Ints(out)
	return out
}

// Fingerprints returns the keys populated at shell in ascending order.
func (s *Store) Fingerprints(shell int) []molecule.Fingerprint {
	fps := s.shells[shell]
	out := make([]molecule.Fingerprint, 0, len(fps))
	for fp := range fps {
		out = append(out, fp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of buckets and observations at shell.
func (s *Store) Len(shell int) (buckets, observations int) {
	for _, obs := range s.shells[shell] {
		buckets++
		observations += len(obs)
	}
	return buckets, observations
}

// Insert adds o to its bucket, keeping the bucket sorted.
func (s *Store) Insert(shell int, fp molecule.Fingerprint, o Observation) {
	fps, ok := s.shells[shell]
	if !ok {
		fps = make(map[molecule.Fingerprint][]Observation)
		s.shells[shell] = fps
	}
	obs := fps[fp]
	i := sort.Search(len(obs), func(k int) bool { return !obs[k].Less(o) })
	obs = append(obs, Observation{})
	copy(obs[i+1:], obs[i:])
	obs[i] = o
	fps[fp] = obs
}

// Remove deletes one observation equal to o and prunes the bucket and shell
// when they become empty.  It reports false when no such observation exists.
func (s *Store) Remove(shell int, fp molecule.Fingerprint, o Observation) bool {
	fps, ok := s.shells[shell]
	if !ok {
		return false
	}
	obs, ok := fps[fp]
	if !ok {
		return false
	}
	i := sort.Search(len(obs), func(k int) bool { return !obs[k].Less(o) })
	if i == len(obs) || obs[i] != o {
		return false
	}
	obs = append(obs[:i], obs[i+1:]...)
	switch {
	case len(obs) > 0:
		fps[fp] = obs
	case len(fps) > 1:
		delete(fps, fp)
	default:
		delete(s.shells, shell)
	}
	return true
}

// Merge appends a batch of unsorted observations to a bucket.  Call Sort
// once all batches are merged.
func (s *Store) Merge(shell int, fp molecule.Fingerprint, obs []Observation) {
	if len(obs) == 0 {
		return
	}
	fps, ok := s.shells[shell]
	if !ok {
		fps = make(map[molecule.Fingerprint][]Observation)
		s.shells[shell] = fps
	}
	fps[fp] = append(fps[fp], obs...)
}

// Sort restores bucket order after Merge.
func (s *Store) Sort() {
	for _, fps := range s.shells {
		for _, obs := range fps {
			sort.Slice(obs, func(i, j int) bool { return obs[i].Less(obs[j]) })
		}
	}
}

// Equal reports whether both stores hold the same buckets.
func (s *Store) Equal(o *Store) bool {
	if len(s.shells) != len(o.shells) {
		return false
	}
	for shell, fps := range s.shells {
		ofps, ok := o.shells[shell]
		if !ok || len(fps) != len(ofps) {
			return false
		}
		for fp, obs := range fps {
			oobs, ok := ofps[fp]
			if !ok || len(obs) != len(oobs) {
				return false
			}
			for i := range obs {
				if obs[i] != oobs[i] {
					return false
				}
			}
		}
	}
	return true
}

// IsoIndex maps a molecule id to the sorted ids of every molecule sharing
// its whole-molecule fingerprint, itself included.  Molecules without an
// isomorphic partner are absent.
type IsoIndex map[int][]int

// NewIsoIndex builds an index from groups of isomorphic molecule ids.
// Groups with fewer than two members are dropped.
func NewIsoIndex(groups [][]int) IsoIndex {
	idx := make(IsoIndex)
	for _, g := range groups {
		if len(g) < 2 {
			continue
		}
		members := append([]int(nil), g...)
		sort.Ints(members)
		for _, id := range members {
			idx[id] = members
		}
	}
	return idx
}

// Group returns the isomorphism group of molid.
func (idx IsoIndex) Group(molid int) ([]int, bool) {
	g, ok := idx[molid]
	return g, ok
}

// MolIDs returns the indexed molecule ids in ascending order.
func (idx IsoIndex) MolIDs() []int {
	out := make([]int, 0, len(idx))
	for id := range idx {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Groups returns the number of distinct groups.
func (idx IsoIndex) Groups() int {
	n := 0
	for id, g := range idx {
		if len(g) > 0 && g[0] == id {
			n++
		}
	}
	return n
}

// Equal compares two indices member by member.
func (idx IsoIndex) Equal(o IsoIndex) bool {
	if len(idx) != len(o) {
		return false
	}
	for id, g := range idx {
		og, ok := o[id]
		if !ok || len(g) != len(og) {
			return false
		}
		for i := range g {
			if g[i] != og[i] {
				return false
			}
		}
	}
	return true
}
