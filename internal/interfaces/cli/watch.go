package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/charge-repository/internal/application/corpus"
	"github.com/turtacn/charge-repository/internal/config"
	"github.com/turtacn/charge-repository/internal/domain/charge"
	"github.com/turtacn/charge-repository/internal/domain/molecule"
	"github.com/turtacn/charge-repository/internal/infrastructure/archive"
	"github.com/turtacn/charge-repository/internal/infrastructure/moleculeio"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/charge-repository/pkg/errors"
)

type watchOptions struct {
	input    string
	format   string
	archive  string
	debounce time.Duration
}

func newWatchCmd() *cobra.Command {
	o := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Add molecules to a repository as they appear in the corpus directory",
		Long: "Loads an existing archive and adds every molecule file created in the corpus\n" +
			"directory afterwards, rewriting the archive after each batch.  Runs until\n" +
			"interrupted.  With --config, log level changes in the file apply live.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.input, "input", "i", "", "corpus directory (default: repository.input_dir)")
	f.StringVar(&o.format, "format", "", "molecule format: lgf or yaml (default: repository.format)")
	f.StringVarP(&o.archive, "archive", "a", "", "archive to update (default: repository.archive_path)")
	f.DurationVar(&o.debounce, "debounce", corpus.DefaultDebounce, "quiet period before a batch is added")
	return cmd
}

func runWatch(cmd *cobra.Command, o *watchOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg := cliCtx.Config
	input := firstNonEmpty(o.input, cfg.Repository.InputDir)
	if input == "" {
		return errors.InvalidParam("no corpus directory; pass --input or set repository.input_dir")
	}
	path := firstNonEmpty(o.archive, cfg.Repository.ArchivePath)

	reader, err := moleculeio.NewDirReader(input, firstNonEmpty(o.format, cfg.Repository.Format), cliCtx.Logger)
	if err != nil {
		return err
	}
	repo, err := archive.Read(path, charge.WithLogger(cliCtx.Logger))
	if err != nil {
		return err
	}
	cliCtx.watchConfig()

	return cliCtx.withCanonizer(cmd.Context(), func(canon molecule.Canonizer) error {
		repo.SetCanonizer(canon)
		w := corpus.NewWatcher(corpus.WatcherConfig{ArchivePath: path, Debounce: o.debounce},
			reader, repo, cliCtx.Logger, cliCtx.Metrics)
		return w.Run(cmd.Context())
	})
}

// watchConfig applies log level edits of the config file while a long
// command runs.  Without a config file it does nothing.
func (c *CLIContext) watchConfig() {
	if c.ConfigPath == "" {
		return
	}
	setter, ok := c.Logger.(logging.LevelSetter)
	if !ok {
		return
	}
	err := config.Watch(c.ConfigPath,
		func(cfg *config.Config) {
			setter.SetLevel(cfg.Log.Level)
			c.Logger.Info("log level reloaded", logging.String("level", cfg.Log.Level))
		},
		func(err error) {
			c.Logger.Warn("ignoring invalid config edit", logging.Err(err))
		},
	)
	if err != nil {
		c.Logger.Warn("config watch disabled", logging.Err(err))
	}
}
