package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/charge-repository/internal/application/corpus"
	"github.com/turtacn/charge-repository/internal/infrastructure/archive"
	"github.com/turtacn/charge-repository/internal/infrastructure/moleculeio"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/charge-repository/pkg/errors"
)

type buildOptions struct {
	input     string
	format    string
	archive   string
	shellMin  int
	shellMax  int
	traceable bool
	workers   int
}

func newBuildCmd() *cobra.Command {
	o := &buildOptions{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a repository from a corpus directory",
		Long: "Reads every <molid>.<format> file of the input directory, fingerprints\n" +
			"every atom neighborhood and writes the resulting repository archive.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.input, "input", "i", "", "corpus directory (default: repository.input_dir)")
	f.StringVar(&o.format, "format", "", "molecule format: lgf or yaml (default: repository.format)")
	f.StringVarP(&o.archive, "archive", "a", "", "archive to write (default: repository.archive_path)")
	f.IntVar(&o.shellMin, "shell-min", -1, "smallest shell (default: repository.shell_min)")
	f.IntVar(&o.shellMax, "shell-max", -1, "largest shell (default: repository.shell_max)")
	f.BoolVar(&o.traceable, "traceable", false, "record molecule ids with every charge")
	f.IntVarP(&o.workers, "workers", "w", 0, "solver processes (default: worker.workers)")
	return cmd
}

func runBuild(cmd *cobra.Command, o *buildOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg := cliCtx.Config

	bc := corpus.BuildConfigFrom(cfg)
	if o.shellMin >= 0 {
		bc.ShellMin = o.shellMin
	}
	if o.shellMax >= 0 {
		bc.ShellMax = o.shellMax
	}
	if o.traceable {
		bc.Traceable = true
	}
	if o.workers > 0 {
		bc.Workers = o.workers
	}
	input := firstNonEmpty(o.input, cfg.Repository.InputDir)
	if input == "" {
		return errors.InvalidParam("no corpus directory; pass --input or set repository.input_dir")
	}
	path := firstNonEmpty(o.archive, cfg.Repository.ArchivePath)

	reader, err := moleculeio.NewDirReader(input, firstNonEmpty(o.format, cfg.Repository.Format), cliCtx.Logger)
	if err != nil {
		return err
	}
	cache, closeCache, err := cliCtx.openCache()
	if err != nil {
		return err
	}
	defer closeCache()

	builder := corpus.NewBuilder(bc, reader, cliCtx.canonizers(cache), cliCtx.Logger, cliCtx.Metrics)
	repo, err := builder.Build(cmd.Context())
	if err != nil {
		return err
	}

	n, err := archive.Write(path, repo)
	if err != nil {
		return err
	}
	cliCtx.Metrics.RecordArchiveBytes("write", n)
	cliCtx.Logger.Info("archive written", logging.String("path", path), logging.Int64("bytes", n))
	PrintSuccess(cmd, fmt.Sprintf("repository written to %s (%d bytes)", path, n))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
