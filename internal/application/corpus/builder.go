// Package corpus builds charge repositories from a directory of reference
// molecules and keeps them current as molecules are added.
package corpus

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/charge-repository/internal/config"
	"github.com/turtacn/charge-repository/internal/domain/charge"
	"github.com/turtacn/charge-repository/internal/domain/molecule"
	"github.com/turtacn/charge-repository/internal/infrastructure/dreadnaut"
	"github.com/turtacn/charge-repository/internal/infrastructure/moleculeio"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/charge-repository/internal/infrastructure/workerpool"
	"github.com/turtacn/charge-repository/pkg/errors"
)

// Build stage names, used in logs and metrics.
const (
	StageRead       = "read"
	StageIsomorphs  = "isomorphs"
	StageAccumulate = "accumulate"
	StageRetype     = "retype"
)

// BuildConfig sizes a build.
type BuildConfig struct {
	ShellMin  int
	ShellMax  int
	Traceable bool

	// Workers is the number of canonicalizers, each with its own solver.
	Workers int
	// ReadConcurrency bounds concurrent molecule reads.
	ReadConcurrency int
	// ChunkSize is the number of molecules per accumulation task.
	ChunkSize int
}

// BuildConfigFrom extracts the build settings of cfg.
func BuildConfigFrom(cfg *config.Config) BuildConfig {
	return BuildConfig{
		ShellMin:        cfg.Repository.ShellMin,
		ShellMax:        cfg.Repository.ShellMax,
		Traceable:       cfg.Repository.Traceable,
		Workers:         cfg.Worker.Workers,
		ReadConcurrency: cfg.Worker.ReadConcurrency,
		ChunkSize:       cfg.Worker.ChunkSize,
	}
}

// CanonizerFactory creates the canonicalizer owned by one worker together
// with the function that releases it.
type CanonizerFactory func(ctx context.Context, worker int) (molecule.Canonizer, func() error, error)

// SolverCanonizers returns a factory that starts one dreadnaut process per
// worker.  cache may be nil.
func SolverCanonizers(cfg dreadnaut.Config, cache molecule.FingerprintCache, logger logging.Logger, metrics *prometheus.RepoMetrics) CanonizerFactory {
	logger = logging.OrDefault(logger)
	return func(_ context.Context, worker int) (molecule.Canonizer, func() error, error) {
		wlog := logger.With(logging.Int("worker", worker))
		ch, err := dreadnaut.New(cfg, wlog, metrics)
		if err != nil {
			return nil, nil, err
		}
		opts := []molecule.CanonicalizerOption{molecule.WithLogger(wlog)}
		if cache != nil {
			opts = append(opts, molecule.WithCache(cache))
		}
		return molecule.NewCanonicalizer(ch, opts...), ch.Close, nil
	}
}

// Builder bulk-builds a repository from a corpus.
type Builder struct {
	cfg      BuildConfig
	reader   moleculeio.Reader
	newCanon CanonizerFactory
	logger   logging.Logger
	metrics  *prometheus.RepoMetrics
}

// NewBuilder returns a Builder.  metrics may be nil.
func NewBuilder(cfg BuildConfig, reader moleculeio.Reader, newCanon CanonizerFactory, logger logging.Logger, metrics *prometheus.RepoMetrics) *Builder {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ReadConcurrency <= 0 {
		cfg.ReadConcurrency = config.DefaultReadConcurrency
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = config.DefaultChunkSize
	}
	return &Builder{
		cfg:      cfg,
		reader:   reader,
		newCanon: newCanon,
		logger:   logging.OrDefault(logger).Named("corpus"),
		metrics:  metrics,
	}
}

type worker struct {
	canon   molecule.Canonizer
	release func() error
}

// Build reads the whole corpus and returns the repository it describes.  Any
// failure aborts the build; no partial repository is returned.
func (b *Builder) Build(ctx context.Context) (*charge.Repository, error) {
	log := b.logger.With(logging.String("run_id", uuid.NewString()))
	started := time.Now()

	repo, err := charge.New(b.cfg.ShellMin, b.cfg.ShellMax,
		charge.WithTraceable(b.cfg.Traceable), charge.WithLogger(b.logger))
	if err != nil {
		return nil, err
	}
	lo, hi := repo.ShellRange()
	log.Info("build started",
		logging.Int("shell_min", lo), logging.Int("shell_max", hi),
		logging.Bool("traceable", b.cfg.Traceable), logging.Int("workers", b.cfg.Workers))

	mols, err := b.readAll(ctx, log)
	if err != nil {
		return nil, err
	}

	pool, err := workerpool.New(ctx, b.cfg.Workers,
		func(ctx context.Context, id int) (*worker, error) {
			canon, release, err := b.newCanon(ctx, id)
			if err != nil {
				return nil, err
			}
			return &worker{canon: canon, release: release}, nil
		},
		func(w *worker) error {
			if w.release == nil {
				return nil
			}
			return w.release()
		},
		workerpool.WithName("build"), workerpool.WithLogger(b.logger), workerpool.WithMetrics(b.metrics))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := pool.Close(); err != nil {
			log.Warn("releasing workers failed", logging.Err(err))
		}
	}()

	for _, t := range molecule.Typings {
		typed, err := b.retype(ctx, log, mols, t)
		if err != nil {
			return nil, err
		}
		iso, err := b.isomorphs(ctx, log, pool, t, typed)
		if err != nil {
			return nil, err
		}
		store, err := b.accumulate(ctx, log, pool, t, typed, lo, hi)
		if err != nil {
			return nil, err
		}
		repo.Load(t, store, iso)
		for _, shell := range store.Shells() {
			buckets, charges := store.Len(shell)
			b.metrics.SetRepositorySize(t.String(), shell, buckets, charges)
		}
	}

	log.Info("build finished", logging.Int("molecules", len(mols)), logging.Duration("elapsed", time.Since(started)))
	return repo, nil
}

// readAll loads every molecule of the corpus in molid order.
func (b *Builder) readAll(ctx context.Context, log logging.Logger) ([]molecule.Molecule, error) {
	defer b.stage(log, StageRead)()

	ids, err := b.reader.ListIDs()
	if err != nil {
		return nil, err
	}
	mols := make([]molecule.Molecule, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.ReadConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			mol, err := b.reader.Read(id)
			b.metrics.RecordMolecule(err)
			if err != nil {
				return err
			}
			mols[i] = mol
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), errors.CodeCanceled, "read corpus")
		}
		return nil, err
	}
	log.Info("corpus read", logging.Int("molecules", len(mols)))
	return mols, nil
}

// retype returns the molecules with their graphs in typing t.  Native graphs
// are shared, Element graphs are copies.
func (b *Builder) retype(ctx context.Context, log logging.Logger, mols []molecule.Molecule, t molecule.Typing) ([]molecule.Molecule, error) {
	if t == molecule.Native {
		return mols, nil
	}
	defer b.stage(log, StageRetype)()

	out := make([]molecule.Molecule, len(mols))
	for i, mol := range mols {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.CodeCanceled, "retype corpus")
		}
		g, err := mol.Graph.ForTyping(t)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeUnknown, "retype molecule").WithDetailf("molid=%d", mol.ID)
		}
		out[i] = molecule.Molecule{ID: mol.ID, Graph: g}
	}
	return out, nil
}

// isomorphs fingerprints whole molecules and groups the ids that share a
// fingerprint.
func (b *Builder) isomorphs(ctx context.Context, log logging.Logger, pool *workerpool.Pool[*worker], t molecule.Typing, mols []molecule.Molecule) (charge.IsoIndex, error) {
	defer b.stage(log, StageIsomorphs+"_"+t.String())()

	fps, err := workerpool.Map(ctx, pool, StageIsomorphs, mols,
		func(ctx context.Context, w *worker, mol molecule.Molecule) (molecule.Fingerprint, error) {
			fp, err := w.canon.Canonize(ctx, mol.Graph, nil)
			if err != nil {
				return "", errors.Wrap(err, errors.CodeUnknown, "fingerprint molecule").WithDetailf("molid=%d", mol.ID)
			}
			return fp, nil
		})
	if err != nil {
		return nil, err
	}

	byFP := make(map[molecule.Fingerprint][]int)
	for i, fp := range fps {
		byFP[fp] = append(byFP[fp], mols[i].ID)
	}
	var groups [][]int
	for _, ids := range byFP {
		if len(ids) > 1 {
			groups = append(groups, ids)
		}
	}
	iso := charge.NewIsoIndex(groups)
	log.Info("isomorphism groups found", logging.String("typing", t.String()),
		logging.Int("groups", len(groups)), logging.Int("molecules", len(iso)))
	return iso, nil
}

// shellTask is one accumulation task: every atom of a molecule chunk at one
// shell.
type shellTask struct {
	shell int
	mols  []molecule.Molecule
}

type bucket struct {
	fp  molecule.Fingerprint
	obs []charge.Observation
}

type shellResult struct {
	shell   int
	buckets []bucket
}

// accumulate fingerprints every atom neighborhood at every shell and merges
// the charges into a sorted store.
func (b *Builder) accumulate(ctx context.Context, log logging.Logger, pool *workerpool.Pool[*worker], t molecule.Typing, mols []molecule.Molecule, lo, hi int) (*charge.Store, error) {
	defer b.stage(log, StageAccumulate+"_"+t.String())()

	chunks := workerpool.Chunk(mols, b.cfg.ChunkSize)
	var tasks []shellTask
	for shell := lo; shell <= hi; shell++ {
		for _, chunk := range chunks {
			tasks = append(tasks, shellTask{shell: shell, mols: chunk})
		}
	}

	results, err := workerpool.Map(ctx, pool, StageAccumulate, tasks,
		func(ctx context.Context, w *worker, task shellTask) (shellResult, error) {
			return b.accumulateChunk(ctx, w.canon, task)
		})
	if err != nil {
		return nil, err
	}

	store := charge.NewStore()
	for _, r := range results {
		for _, bk := range r.buckets {
			store.Merge(r.shell, bk.fp, bk.obs)
		}
	}
	store.Sort()
	return store, nil
}

func (b *Builder) accumulateChunk(ctx context.Context, canon molecule.Canonizer, task shellTask) (shellResult, error) {
	acc := make(map[molecule.Fingerprint][]charge.Observation)
	for _, mol := range task.mols {
		charges, err := mol.Graph.Charges()
		if err != nil {
			return shellResult{}, errors.Wrap(err, errors.CodeUnknown, "read charges").WithDetailf("molid=%d", mol.ID)
		}
		molid := 0
		if b.cfg.Traceable {
			molid = mol.ID
		}
		for i, a := range mol.Graph.Atoms() {
			fp, err := canon.CanonizeNeighborhood(ctx, mol.Graph, a.ID, task.shell)
			if err != nil {
				return shellResult{}, errors.Wrap(err, errors.CodeUnknown, "fingerprint neighborhood").
					WithDetailf("molid=%d atom=%d shell=%d", mol.ID, a.ID, task.shell)
			}
			acc[fp] = append(acc[fp], charge.Observation{Charge: charges[i], MolID: molid})
		}
	}

	res := shellResult{shell: task.shell, buckets: make([]bucket, 0, len(acc))}
	for fp, obs := range acc {
		res.buckets = append(res.buckets, bucket{fp: fp, obs: obs})
	}
	sort.Slice(res.buckets, func(i, j int) bool { return res.buckets[i].fp < res.buckets[j].fp })
	return res, nil
}

// stage logs and times a build stage.  Call the returned func when the stage
// ends.
func (b *Builder) stage(log logging.Logger, name string) func() {
	start := time.Now()
	log.Debug("stage started", logging.Stage(name))
	return func() {
		d := time.Since(start)
		b.metrics.RecordStage(name, d)
		log.Debug("stage done", logging.Stage(name), logging.Duration("elapsed", d))
	}
}
