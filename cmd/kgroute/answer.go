package kgroute

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/kgroute"
	"github.com/soundprediction/kgroute/pkg/server/dto"
	"github.com/soundprediction/kgroute/pkg/types"
)

var answerCmd = &cobra.Command{
	Use:   "answer [question]",
	Short: "Answer one question over the configured graph",
	Long: `Answer one question over the configured graph and print the result.

The question is planned into routes, each route is explored hop by hop, and
the answers of finished routes are reconciled. Use --details to print every
explored route with its evidence, or --json for machine-readable output.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnswer,
}

func init() {
	rootCmd.AddCommand(answerCmd)

	answerCmd.Flags().String("query-time", "", "When the question is asked (RFC3339 or YYYY-MM-DD), default now")
	answerCmd.Flags().Int("routes", 0, "Maximum number of routes (0 uses the configuration)")
	answerCmd.Flags().Int("width", 0, "Beam width (0 uses the configuration)")
	answerCmd.Flags().Int("depth", 0, "Maximum hops per route (0 uses the configuration)")
	answerCmd.Flags().Duration("timeout", 5*time.Minute, "Give up after this long")
	answerCmd.Flags().Bool("details", false, "Print every explored route")
	answerCmd.Flags().Bool("json", false, "Print the result as JSON")

	addGraphFlags(answerCmd)
	addModelFlags(answerCmd)
}

func runAnswer(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	qtFlag, _ := cmd.Flags().GetString("query-time")
	queryTime, err := parseQueryTime(qtFlag)
	if err != nil {
		return err
	}
	opts := &kgroute.AnswerOptions{QueryTime: queryTime}
	opts.MaxRoutes, _ = cmd.Flags().GetInt("routes")
	opts.Width, _ = cmd.Flags().GetInt("width")
	opts.Depth, _ = cmd.Flags().GetInt("depth")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	details, _ := cmd.Flags().GetBool("details")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ctx = context.WithValue(ctx, types.ContextKeyRequestSource, "cli")

	_, client, _, release, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer release()

	res, err := client.Answer(ctx, question, opts)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), dto.NewAnswerResponse(res, details))
	}
	printAnswer(cmd.OutOrStdout(), res, details)
	return nil
}

// parseQueryTime accepts RFC3339 timestamps and plain dates. Empty means
// the zero time, which the engine replaces with now.
func parseQueryTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid query time %q: use RFC3339 or YYYY-MM-DD", s)
}

func printAnswer(w io.Writer, res *types.AnswerResult, details bool) {
	fmt.Fprintf(w, "Answer:   %s\n", res.Answer)
	fmt.Fprintf(w, "Decision: %s\n", res.Decision)
	fmt.Fprintf(w, "Run:      %s\n", res.RunID)
	if res.DirectAttempt != nil {
		fmt.Fprintf(w, "Direct:   %s\n", res.DirectAttempt.Summary())
	}
	if !details {
		return
	}
	for _, r := range res.Routes {
		if r == nil || r.Route == nil {
			continue
		}
		fmt.Fprintf(w, "\nRoute %d: %s (%s, depth %d, %s)\n", r.Route.Index+1, r.Route.Objectives(), r.State, r.Depth, r.Duration.Round(time.Millisecond))
		fmt.Fprintf(w, "  %s\n", r.Summary())
		if r.Err != nil {
			fmt.Fprintf(w, "  error: %v\n", r.Err)
		}
		if r.Evidence != nil {
			for _, line := range r.Evidence.Lines() {
				fmt.Fprintf(w, "  - %s\n", line)
			}
		}
	}
}
