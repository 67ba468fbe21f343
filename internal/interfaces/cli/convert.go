package cli

import (
	"bytes"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/charge-repository/internal/infrastructure/moleculeio"
	"github.com/turtacn/charge-repository/pkg/errors"
)

func newConvertCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "convert FILE",
		Short: "Rewrite a molecule file as YAML",
		Long: "Parses a molecule in any supported format and writes it in the YAML corpus\n" +
			"format, to stdout or to --out.  Atom ids, types and charges are kept.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mol, err := moleculeio.ReadFile(args[0])
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := (moleculeio.YAML{}).Encode(&buf, mol.Graph); err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return errors.New(errors.CodeInvalidParam, "write converted molecule").
					WithDetailf("path=%s", out).WithCause(err)
			}
			PrintSuccess(cmd, "wrote "+out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file (default: stdout)")
	return cmd
}
