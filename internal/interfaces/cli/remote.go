package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/charge-repository/internal/domain/charge"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/charge-repository/internal/infrastructure/storage/minio"
	"github.com/turtacn/charge-repository/pkg/errors"
)

// openArchiveStore connects to the configured object store.
func (c *CLIContext) openArchiveStore(cmd *cobra.Command) (*minio.ArchiveStore, error) {
	mcfg := c.Config.Storage.MinIO
	if !mcfg.Enabled {
		return nil, errors.InvalidConfig("object storage is disabled; set storage.minio.enabled")
	}
	client, err := minio.NewClient(mcfg, c.Logger)
	if err != nil {
		return nil, err
	}
	if err := minio.EnsureBucket(cmd.Context(), client, mcfg.Bucket, mcfg.Region, c.Logger); err != nil {
		return nil, err
	}
	return minio.NewArchiveStore(client, mcfg, c.Logger, c.Metrics), nil
}

func newPushCmd() *cobra.Command {
	var archivePath string
	cmd := &cobra.Command{
		Use:   "push [NAME]",
		Short: "Upload an archive to object storage",
		Long:  "Validates the local archive and uploads it.  NAME defaults to the archive's file name.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			path := firstNonEmpty(archivePath, cliCtx.Config.Repository.ArchivePath)
			name := filepath.Base(path)
			if len(args) == 1 {
				name = args[0]
			}
			store, err := cliCtx.openArchiveStore(cmd)
			if err != nil {
				return err
			}
			info, err := store.Push(cmd.Context(), path, name)
			if err != nil {
				return err
			}
			return PrintResult(cmd, info, func() string {
				return fmt.Sprintf("OK: pushed %s as %s (%d bytes)\n", path, store.ObjectName(name), info.Size)
			})
		},
	}
	cmd.Flags().StringVarP(&archivePath, "archive", "a", "", "archive to upload (default: repository.archive_path)")
	return cmd
}

func newPullCmd() *cobra.Command {
	var archivePath string
	var list bool
	cmd := &cobra.Command{
		Use:   "pull [NAME]",
		Short: "Download an archive from object storage",
		Long: "Downloads NAME, validates it and replaces the local archive.  With --list,\n" +
			"prints the stored archives instead.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			store, err := cliCtx.openArchiveStore(cmd)
			if err != nil {
				return err
			}
			if list {
				infos, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				return PrintResult(cmd, infos, func() string {
					rows := make([][]string, len(infos))
					for i, in := range infos {
						rows[i] = []string{in.Name, strconv.FormatInt(in.Size, 10), in.LastModified.Format(time.RFC3339)}
					}
					return FormatTable([]string{"NAME", "BYTES", "MODIFIED"}, rows)
				})
			}
			if len(args) != 1 {
				return errors.InvalidParam("pull needs an archive name or --list")
			}
			path := firstNonEmpty(archivePath, cliCtx.Config.Repository.ArchivePath)
			repo, err := store.Pull(cmd.Context(), args[0], path, charge.WithLogger(cliCtx.Logger))
			if err != nil {
				return err
			}
			lo, hi := repo.ShellRange()
			cliCtx.Logger.Debug("pulled repository", logging.Int("shell_min", lo), logging.Int("shell_max", hi))
			PrintSuccess(cmd, fmt.Sprintf("pulled %s to %s", args[0], path))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&archivePath, "archive", "a", "", "local archive to replace (default: repository.archive_path)")
	f.BoolVar(&list, "list", false, "list stored archives")
	return cmd
}
