package kgroute

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/kgroute"
	"github.com/soundprediction/kgroute/pkg/config"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect the configured graph",
}

var graphTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the entity types of the configured graph",
	Args:  cobra.NoArgs,
	RunE:  runGraphTypes,
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.AddCommand(graphTypesCmd)

	addGraphFlags(graphTypesCmd)
	graphTypesCmd.Flags().Duration("timeout", 30*time.Second, "Give up after this long")
}

// runGraphTypes opens only the graph; no model is needed to list types.
func runGraphTypes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return listEntityTypes(ctx, cmd, cfg.Database)
}

func listEntityTypes(ctx context.Context, cmd *cobra.Command, db config.DatabaseConfig) error {
	graph, err := kgroute.NewGraphFromConfig(ctx, db, nil)
	if err != nil {
		return err
	}
	defer graph.Close(ctx)

	entityTypes, err := graph.GetEntityTypes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list entity types from %s: %w", graph.Provider(), err)
	}
	for _, t := range entityTypes {
		fmt.Fprintln(cmd.OutOrStdout(), t)
	}
	return nil
}
