package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/charge-repository/internal/domain/charge"
	"github.com/turtacn/charge-repository/internal/domain/molecule"
	"github.com/turtacn/charge-repository/internal/infrastructure/archive"
	"github.com/turtacn/charge-repository/pkg/errors"
)

type inspectOptions struct {
	archive     string
	typing      string
	fingerprint string
	shell       int
	exclude     int
	isomorphs   int
}

func newInspectCmd() *cobra.Command {
	o := &inspectOptions{}
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarize a repository or print one bucket",
		Long: "Without flags, prints bucket and charge counts per typing and shell.\n" +
			"With --fingerprint and --shell, prints the charges of that bucket; --exclude\n" +
			"hides the charges of a molecule and its isomorphs (traceable archives only).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.archive, "archive", "a", "", "archive to read (default: repository.archive_path)")
	f.StringVar(&o.typing, "typing", "iacm", "typing of the bucket: iacm or elem")
	f.StringVar(&o.fingerprint, "fingerprint", "", "bucket fingerprint")
	f.IntVar(&o.shell, "shell", -1, "bucket shell")
	f.IntVar(&o.exclude, "exclude", 0, "molecule id to leave out of the bucket")
	f.IntVar(&o.isomorphs, "isomorphs", 0, "print the isomorphism group of this molecule id")
	return cmd
}

// bucketResult is the JSON form of a bucket lookup.
type bucketResult struct {
	Typing      string    `json:"typing"`
	Shell       int       `json:"shell"`
	Fingerprint string    `json:"fingerprint"`
	Excluded    int       `json:"excluded,omitempty"`
	Found       bool      `json:"found"`
	Charges     []float64 `json:"charges"`
}

func runInspect(cmd *cobra.Command, o *inspectOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	path := firstNonEmpty(o.archive, cliCtx.Config.Repository.ArchivePath)
	repo, err := archive.Read(path)
	if err != nil {
		return err
	}
	typing, err := molecule.ParseTyping(o.typing)
	if err != nil {
		return err
	}

	switch {
	case o.isomorphs != 0:
		group := repo.Isomorphs(typing, o.isomorphs)
		return PrintResult(cmd, group, func() string { return joinInts(group) + "\n" })
	case o.fingerprint != "":
		return inspectBucket(cmd, repo, typing, o)
	default:
		st := repo.Stats()
		return PrintResult(cmd, st, func() string { return formatStats(st) })
	}
}

func inspectBucket(cmd *cobra.Command, repo *charge.Repository, typing molecule.Typing, o *inspectOptions) error {
	fp, err := molecule.ParseFingerprint(o.fingerprint)
	if err != nil {
		return err
	}
	if o.shell < 0 {
		return errors.InvalidParam("--shell is required with --fingerprint")
	}

	var src charge.ChargeSource = repo.Store(typing)
	if o.exclude != 0 {
		view, err := charge.NewFilteredView(repo, o.exclude)
		if err != nil {
			return err
		}
		src = view.Source(typing)
	}
	charges, found := src.Charges(o.shell, fp)

	res := bucketResult{
		Typing:      typing.String(),
		Shell:       o.shell,
		Fingerprint: string(fp),
		Excluded:    o.exclude,
		Found:       found,
		Charges:     charges,
	}
	return PrintResult(cmd, res, func() string {
		if !found {
			return "not found\n"
		}
		vals := make([]string, len(charges))
		for i, c := range charges {
			vals[i] = strconv.FormatFloat(c, 'g', -1, 64)
		}
		return strings.Join(vals, " ") + "\n"
	})
}

func formatStats(st charge.Stats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "shells %d-%d, traceable=%t\n\n", st.ShellMin, st.ShellMax, st.Traceable)
	var rows [][]string
	for _, ts := range st.Typings {
		for _, ss := range ts.Shells {
			rows = append(rows, []string{
				ts.Typing.String(),
				strconv.Itoa(ss.Shell),
				strconv.Itoa(ss.Buckets),
				strconv.Itoa(ss.Observations),
			})
		}
	}
	sb.WriteString(FormatTable([]string{"TYPING", "SHELL", "BUCKETS", "CHARGES"}, rows))
	for _, ts := range st.Typings {
		fmt.Fprintf(&sb, "\n%s: %d isomorphism groups over %d molecules", ts.Typing, ts.IsoGroups, ts.IsoMolecules)
	}
	sb.WriteString("\n")
	return sb.String()
}

func joinInts(ids []int) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = strconv.Itoa(id)
	}
	return strings.Join(s, " ")
}
