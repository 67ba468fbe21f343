package molecule

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/charge-repository/pkg/errors"
)

// Canonicalizer turns graphs into fingerprints through a solver Exchanger.
// It inherits the Exchanger's concurrency rules: one Canonicalizer per
// goroutine unless the Exchanger is safe for concurrent use.
type Canonicalizer struct {
	ex     Exchanger
	cache  FingerprintCache
	logger logging.Logger
}

// CanonicalizerOption configures a Canonicalizer.
type CanonicalizerOption func(*Canonicalizer)

// WithCache consults cache before the solver and stores every new answer.
// Cache failures are logged and otherwise ignored.
func WithCache(cache FingerprintCache) CanonicalizerOption {
	return func(c *Canonicalizer) { c.cache = cache }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) CanonicalizerOption {
	return func(c *Canonicalizer) { c.logger = l }
}

// NewCanonicalizer returns a Canonicalizer over ex.
func NewCanonicalizer(ex Exchanger, opts ...CanonicalizerOption) *Canonicalizer {
	c := &Canonicalizer{ex: ex}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDefault(c.logger)
	return c
}

var _ Canonizer = (*Canonicalizer)(nil)

// Canonize implements Canonizer.
func (c *Canonicalizer) Canonize(ctx context.Context, g *Graph, core *AtomID) (Fingerprint, error) {
	if g == nil || g.Len() == 0 {
		return "", errors.InvalidParam("cannot canonize an empty graph")
	}
	if core != nil {
		if _, ok := g.Atom(*core); !ok {
			return "", errors.InvalidParam("core atom not in graph").WithDetailf("atom=%d", *core)
		}
	}

	colors := colorsOf(g, core)
	request := EncodeRequest(g, colors)

	var key string
	if c.cache != nil {
		key = cacheKey(request, colors)
		fp, found, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("fingerprint cache lookup failed", logging.Err(err))
		case found:
			return fp, nil
		}
	}

	out, err := c.ex.Exchange(ctx, request)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeUnknown, "solver exchange")
	}
	lab, err := ParseResponse(out, g.Len())
	if err != nil {
		return "", err
	}
	fp := HashSignature(Signature(lab.CanonicalColors(colors), lab.Edges()))

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, fp); err != nil {
			c.logger.Warn("fingerprint cache store failed", logging.Err(err))
		}
	}
	return fp, nil
}

// CanonizeNeighborhood implements Canonizer.
func (c *Canonicalizer) CanonizeNeighborhood(ctx context.Context, g *Graph, atom AtomID, shell int) (Fingerprint, error) {
	frag, err := g.Neighborhood(atom, shell)
	if err != nil {
		return "", err
	}
	return c.Canonize(ctx, frag, &atom)
}

// cacheKey identifies a request together with the colors it was built from.
// The request text alone only carries the partition, not the atom types.
func cacheKey(request string, colors []Color) string {
	h := sha256.New()
	h.Write([]byte(request))
	for _, col := range colors {
		flag := byte('n')
		if col.IsCore {
			flag = 'c'
		}
		h.Write([]byte{0, flag})
		h.Write([]byte(col.AtomType))
	}
	return hex.EncodeToString(h.Sum(nil))
}
