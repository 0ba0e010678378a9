package kgroute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/kgroute/pkg/archive"
	"github.com/soundprediction/kgroute/pkg/config"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect archived runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent archived runs",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show one archived run with its routes",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd)

	for _, c := range []*cobra.Command{runsListCmd, runsShowCmd} {
		addArchiveFlags(c)
		c.Flags().Duration("timeout", 30*time.Second, "Give up after this long")
		c.Flags().Bool("json", false, "Print JSON instead of text")
	}
	runsListCmd.Flags().Int("limit", archive.DefaultListLimit, "Number of runs to list")
}

// openArchive opens only the archive; no graph or model is needed.
func openArchive(cmd *cobra.Command) (archive.Store, context.Context, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	store, err := newArchive(ctx, cfg.Archive)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return store, ctx, func() {
		_ = store.Close()
		cancel()
	}, nil
}

func newArchive(ctx context.Context, a config.ArchiveConfig) (archive.Store, error) {
	if a.DSN == "" {
		return nil, errors.New("no run archive configured (set archive.dsn or --archive-dsn)")
	}
	return archive.New(ctx, &archive.Config{Type: a.Type, DSN: a.DSN})
}

func runRunsList(cmd *cobra.Command, args []string) error {
	store, ctx, release, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer release()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd.OutOrStdout(), runs)
	}
	printRuns(cmd.OutOrStdout(), runs)
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store, ctx, release, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer release()

	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd.OutOrStdout(), run)
	}
	printRun(cmd.OutOrStdout(), run)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRuns(w io.Writer, runs []*archive.Run) {
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %-15s %s -> %s\n",
			r.RunID, r.CreatedAt.Format(time.RFC3339), r.Decision, r.Question, r.Answer)
	}
}

func printRun(w io.Writer, run *archive.Run) {
	fmt.Fprintf(w, "Question: %s\n", run.Question)
	fmt.Fprintf(w, "Answer:   %s\n", run.Answer)
	fmt.Fprintf(w, "Decision: %s\n", run.Decision)
	fmt.Fprintf(w, "Asked:    %s\n", run.QueryTime.Format(time.RFC3339))
	if run.DirectAnswer != "" {
		fmt.Fprintf(w, "Direct:   %q %s\n", run.DirectAnswer, run.DirectRationale)
	}
	for _, r := range run.Routes {
		fmt.Fprintf(w, "\nRoute %d: %s (%s, depth %d, %dms)\n",
			r.Index+1, strings.Join(r.SubObjectives, "; "), r.State, r.Depth, r.DurationMS)
		fmt.Fprintf(w, "  %q %s\n", r.Answer, r.Rationale)
		if r.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", r.Error)
		}
		for _, line := range r.Evidence {
			fmt.Fprintf(w, "  - %s\n", line)
		}
	}
}
