package charge

import (
	"context"

	"github.com/turtacn/charge-repository/internal/domain/molecule"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/charge-repository/pkg/errors"
)

// Repository holds one Store and one IsoIndex per typing for the shell sizes
// [shellMin, shellMax].  It has a single writer.
type Repository struct {
	shellMin  int
	shellMax  int
	traceable bool

	stores map[molecule.Typing]*Store
	iso    map[molecule.Typing]IsoIndex

	canon  molecule.Canonizer
	logger logging.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithTraceable makes observations keep the id of their molecule, which
// filtered views require.
func WithTraceable(traceable bool) Option {
	return func(r *Repository) { r.traceable = traceable }
}

// WithCanonizer sets the canonicalizer used by Add and Subtract.
func WithCanonizer(c molecule.Canonizer) Option {
	return func(r *Repository) { r.canon = c }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// New returns an empty repository.  A negative shellMin is treated as zero.
func New(shellMin, shellMax int, opts ...Option) (*Repository, error) {
	if shellMin < 0 {
		shellMin = 0
	}
	if shellMax < shellMin {
		return nil, errors.InvalidParam("shell range is empty").
			WithDetailf("shell_min=%d shell_max=%d", shellMin, shellMax)
	}
	r := &Repository{
		shellMin: shellMin,
		shellMax: shellMax,
		stores:   make(map[molecule.Typing]*Store, len(molecule.Typings)),
		iso:      make(map[molecule.Typing]IsoIndex, len(molecule.Typings)),
	}
	for _, t := range molecule.Typings {
		r.stores[t] = NewStore()
		r.iso[t] = IsoIndex{}
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDefault(r.logger).Named("repository")
	return r, nil
}

// ShellRange returns the configured shell sizes.
func (r *Repository) ShellRange() (shellMin, shellMax int) {
	return r.shellMin, r.shellMax
}

// Traceable reports whether observations carry molecule ids.
func (r *Repository) Traceable() bool { return r.traceable }

// Store returns the store for typing t.
func (r *Repository) Store(t molecule.Typing) *Store { return r.stores[t] }

// IsoIndex returns the isomorphism index for typing t.
func (r *Repository) IsoIndex(t molecule.Typing) IsoIndex { return r.iso[t] }

// Isomorphs returns the isomorphism group of molid, or just molid when it
// has no recorded partner.
func (r *Repository) Isomorphs(t molecule.Typing, molid int) []int {
	if g, ok := r.iso[t].Group(molid); ok {
		return append([]int(nil), g...)
	}
	return []int{molid}
}

// Load replaces the contents of one typing.  It is how bulk builds and
// archive reads populate a repository; nil arguments mean empty.
func (r *Repository) Load(t molecule.Typing, store *Store, iso IsoIndex) {
	if store == nil {
		store = NewStore()
	}
	if iso == nil {
		iso = IsoIndex{}
	}
	r.stores[t] = store
	r.iso[t] = iso
}

// SetCanonizer replaces the canonicalizer, typically after a read.
func (r *Repository) SetCanonizer(c molecule.Canonizer) { r.canon = c }

// Equal compares shell range, traceability, stores and indices.
func (r *Repository) Equal(o *Repository) bool {
	if r.shellMin != o.shellMin || r.shellMax != o.shellMax || r.traceable != o.traceable {
		return false
	}
	for _, t := range molecule.Typings {
		if !r.stores[t].Equal(o.stores[t]) || !r.iso[t].Equal(o.iso[t]) {
			return false
		}
	}
	return true
}

// entry is one pending mutation.
type entry struct {
	typing molecule.Typing
	shell  int
	fp     molecule.Fingerprint
	obs    Observation
}

// mutationShells returns the shells touched by Add and Subtract.  Shell 0
// fingerprints only the atom type and is left to bulk builds.
func (r *Repository) mutationShells() (from, to int) {
	from = r.shellMin
	if from < 1 {
		from = 1
	}
	return from, r.shellMax
}

// observe fingerprints every atom of mol at every mutation shell under both
// typings.  Nothing is mutated, so data errors leave the repository intact.
func (r *Repository) observe(ctx context.Context, mol molecule.Molecule) ([]entry, error) {
	if r.canon == nil {
		return nil, errors.New(errors.CodeNoCanonizer, "repository has no canonicalizer")
	}
	if mol.Graph == nil {
		return nil, errors.InvalidParam("molecule has no graph").WithDetailf("molid=%d", mol.ID)
	}
	charges, err := mol.Graph.Charges()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "read charges").WithDetailf("molid=%d", mol.ID)
	}
	molid := 0
	if r.traceable {
		molid = mol.ID
	}

	from, to := r.mutationShells()
	var entries []entry
	for _, t := range molecule.Typings {
		g, err := mol.Graph.ForTyping(t)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeUnknown, "retype molecule").WithDetailf("molid=%d", mol.ID)
		}
		for shell := from; shell <= to; shell++ {
			for i, a := range g.Atoms() {
				fp, err := r.canon.CanonizeNeighborhood(ctx, g, a.ID, shell)
				if err != nil {
					return nil, errors.Wrap(err, errors.CodeUnknown, "fingerprint neighborhood").
						WithDetailf("molid=%d atom=%d shell=%d", mol.ID, a.ID, shell)
				}
				entries = append(entries, entry{
					typing: t,
					shell:  shell,
					fp:     fp,
					obs:    Observation{Charge: charges[i], MolID: molid},
				})
			}
		}
	}
	return entries, nil
}

// Add records every atom charge of mol at shells max(1, shellMin) through
// shellMax.  Shell 0 buckets are only filled by bulk builds, and shells below
// shellMin are never touched.
func (r *Repository) Add(ctx context.Context, mol molecule.Molecule) error {
	entries, err := r.observe(ctx, mol)
	if err != nil {
		return err
	}
	for _, e := range entries {
		r.stores[e.typing].Insert(e.shell, e.fp, e.obs)
	}
	r.logger.Debug("molecule added", logging.MolID(mol.ID), logging.Int("observations", len(entries)))
	return nil
}

// Subtract removes the charges Add recorded for mol.  Removing an
// observation the repository does not hold is an invariant violation; the
// call is then undone before the error is returned.
func (r *Repository) Subtract(ctx context.Context, mol molecule.Molecule) error {
	entries, err := r.observe(ctx, mol)
	if err != nil {
		return err
	}
	for k, e := range entries {
		if r.stores[e.typing].Remove(e.shell, e.fp, e.obs) {
			continue
		}
		for j := k - 1; j >= 0; j-- {
			undo := entries[j]
			r.stores[undo.typing].Insert(undo.shell, undo.fp, undo.obs)
		}
		return errors.InvariantViolation("subtracting an observation the repository does not hold").
			WithDetailf("molid=%d typing=%s shell=%d fingerprint=%s charge=%g",
				mol.ID, e.typing, e.shell, e.fp, e.obs.Charge)
	}
	r.logger.Debug("molecule subtracted", logging.MolID(mol.ID), logging.Int("observations", len(entries)))
	return nil
}

// ShellStats counts the contents of one shell.
type ShellStats struct {
	Shell        int
	Buckets      int
	Observations int
}

// TypingStats summarizes one typing.
type TypingStats struct {
	Typing       molecule.Typing
	Shells       []ShellStats
	IsoGroups    int
	IsoMolecules int
}

// Stats summarizes a repository.
type Stats struct {
	ShellMin  int
	ShellMax  int
	Traceable bool
	Typings   []TypingStats
}

// Stats counts buckets and observations per typing and shell.
func (r *Repository) Stats() Stats {
	st := Stats{ShellMin: r.shellMin, ShellMax: r.shellMax, Traceable: r.traceable}
	for _, t := range molecule.Typings {
		ts := TypingStats{
			Typing:       t,
			IsoGroups:    r.iso[t].Groups(),
			IsoMolecules: len(r.iso[t]),
		}
		for _, shell := range r.stores[t].Shells() {
			b, o := r.stores[t].Len(shell)
			ts.Shells = append(ts.Shells, ShellStats{Shell: shell, Buckets: b, Observations: o})
		}
		st.Typings = append(st.Typings, ts)
	}
	return st
}
