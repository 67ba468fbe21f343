package corpus

import (
	"context"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/turtacn/charge-repository/internal/domain/charge"
	"github.com/turtacn/charge-repository/internal/infrastructure/archive"
	"github.com/turtacn/charge-repository/internal/infrastructure/moleculeio"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/charge-repository/pkg/errors"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before updating the repository.
const DefaultDebounce = 500 * time.Millisecond

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// ArchivePath is rewritten after every batch of additions.
	ArchivePath string
	Debounce    time.Duration
}

// Watcher adds molecule files that appear in the corpus directory to a
// repository and rewrites its archive.  Files present when Run starts are
// assumed to be in the repository already.  A molecule is added at most
// once; later writes to its file are ignored.
type Watcher struct {
	cfg     WatcherConfig
	reader  *moleculeio.DirReader
	repo    *charge.Repository
	logger  logging.Logger
	metrics *prometheus.RepoMetrics

	added map[int]bool
}

// NewWatcher returns a Watcher.  repo must have a canonizer.
func NewWatcher(cfg WatcherConfig, reader *moleculeio.DirReader, repo *charge.Repository, logger logging.Logger, metrics *prometheus.RepoMetrics) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Watcher{
		cfg:     cfg,
		reader:  reader,
		repo:    repo,
		logger:  logging.OrDefault(logger).Named("watcher"),
		metrics: metrics,
		added:   make(map[int]bool),
	}
}

// Run watches until ctx is done.  It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.New(errors.CodeUnavailable, "create file watcher").WithCause(err)
	}
	defer fw.Close()

	if err := fw.Add(w.reader.Dir()); err != nil {
		return errors.New(errors.CodeInvalidParam, "watch corpus directory").
			WithDetailf("dir=%s", w.reader.Dir()).WithCause(err)
	}
	existing, err := w.reader.ListIDs()
	if err != nil {
		return err
	}
	for _, id := range existing {
		w.added[id] = true
	}
	w.logger.Info("watching corpus", logging.String("dir", w.reader.Dir()), logging.Int("known", len(existing)))

	pending := make(map[int]bool)
	timer := time.NewTimer(w.cfg.Debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			id, ok := w.reader.IDFromPath(ev.Name)
			if !ok || w.added[id] {
				continue
			}
			pending[id] = true
			timer.Reset(w.cfg.Debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", logging.Err(err))

		case <-timer.C:
			w.flush(ctx, pending)
			pending = make(map[int]bool)
		}
	}
}

// flush adds the pending molecules and rewrites the archive when anything
// changed.  A molecule that fails to read or add is logged and retried on
// its next file event.
func (w *Watcher) flush(ctx context.Context, pending map[int]bool) {
	ids := make([]int, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	added := 0
	for _, id := range ids {
		mol, err := w.reader.Read(id)
		if err == nil {
			err = w.repo.Add(ctx, mol)
		}
		if err != nil {
			w.logger.Warn("molecule not added", logging.MolID(id), logging.Err(err))
			w.metrics.RecordError("watcher", err)
			continue
		}
		w.added[id] = true
		added++
	}
	if added == 0 {
		return
	}

	n, err := archive.Write(w.cfg.ArchivePath, w.repo)
	if err != nil {
		w.logger.Error("archive rewrite failed", logging.String("path", w.cfg.ArchivePath), logging.Err(err))
		w.metrics.RecordError("watcher", err)
		return
	}
	w.metrics.RecordArchiveBytes("write", n)
	w.logger.Info("repository updated", logging.Int("added", added), logging.Int64("bytes", n))
}
