package molecule

import "context"

// Exchanger sends one request to a canonical labelling solver and returns its
// raw textual answer.  *dreadnaut.Channel satisfies it.  Implementations need
// not be safe for concurrent use.
type Exchanger interface {
	Exchange(ctx context.Context, request string) (string, error)
}

// Canonizer computes fingerprints of colored graphs.
type Canonizer interface {
	// Canonize fingerprints g.  When core is non-nil that atom is colored
	// apart from every other atom.
	Canonize(ctx context.Context, g *Graph, core *AtomID) (Fingerprint, error)

	// CanonizeNeighborhood fingerprints the shell-neighborhood of atom with
	// atom as its core.
	CanonizeNeighborhood(ctx context.Context, g *Graph, atom AtomID, shell int) (Fingerprint, error)
}

// FingerprintCache memoizes solver answers across processes.  Implementations
// return found=false on a miss; errors are reserved for backend failures.
type FingerprintCache interface {
	Get(ctx context.Context, key string) (fp Fingerprint, found bool, err error)
	Set(ctx context.Context, key string, fp Fingerprint) error
}
