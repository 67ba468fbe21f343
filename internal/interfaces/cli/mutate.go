package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/charge-repository/internal/domain/charge"
	"github.com/turtacn/charge-repository/internal/domain/molecule"
	"github.com/turtacn/charge-repository/internal/infrastructure/archive"
	"github.com/turtacn/charge-repository/internal/infrastructure/moleculeio"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/charge-repository/pkg/errors"
)

type mutateOptions struct {
	archive string
	molid   int
}

func newAddCmd() *cobra.Command {
	return newMutateCmd("add", "Add molecules to a repository",
		func(ctx context.Context, repo *charge.Repository, mol molecule.Molecule) error {
			return repo.Add(ctx, mol)
		})
}

func newSubtractCmd() *cobra.Command {
	return newMutateCmd("subtract", "Remove molecules previously added to a repository",
		func(ctx context.Context, repo *charge.Repository, mol molecule.Molecule) error {
			return repo.Subtract(ctx, mol)
		})
}

func newMutateCmd(use, short string, apply func(context.Context, *charge.Repository, molecule.Molecule) error) *cobra.Command {
	o := &mutateOptions{}
	cmd := &cobra.Command{
		Use:   use + " FILE...",
		Short: short,
		Long: short + ".  Each file is one molecule in a format chosen by its extension.\n" +
			"The archive is rewritten only when every molecule succeeds.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMutate(cmd, o, args, apply)
		},
	}
	cmd.Flags().StringVarP(&o.archive, "archive", "a", "", "archive to update (default: repository.archive_path)")
	cmd.Flags().IntVar(&o.molid, "molid", 0, "molecule id for traceable repositories when a single file is given (default: from the file name)")
	return cmd
}

func runMutate(cmd *cobra.Command, o *mutateOptions, files []string, apply func(context.Context, *charge.Repository, molecule.Molecule) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	if o.molid != 0 && len(files) != 1 {
		return errors.InvalidParam("--molid needs exactly one file")
	}

	mols := make([]molecule.Molecule, 0, len(files))
	for _, f := range files {
		mol, err := moleculeio.ReadFile(f)
		if err != nil {
			return err
		}
		if o.molid != 0 {
			mol.ID = o.molid
		}
		mols = append(mols, mol)
	}

	path := firstNonEmpty(o.archive, cliCtx.Config.Repository.ArchivePath)
	repo, err := archive.Read(path, charge.WithLogger(cliCtx.Logger))
	if err != nil {
		return err
	}

	err = cliCtx.withCanonizer(cmd.Context(), func(canon molecule.Canonizer) error {
		repo.SetCanonizer(canon)
		for _, mol := range mols {
			if err := apply(cmd.Context(), repo, mol); err != nil {
				return err
			}
			cliCtx.Logger.Info("molecule applied", logging.String("command", cmd.Name()), logging.MolID(mol.ID))
		}
		return nil
	})
	if err != nil {
		return err
	}

	n, err := archive.Write(path, repo)
	if err != nil {
		return err
	}
	cliCtx.Metrics.RecordArchiveBytes("write", n)
	PrintSuccess(cmd, fmt.Sprintf("%d molecule(s) applied to %s", len(mols), path))
	return nil
}
