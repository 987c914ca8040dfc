package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Itangalo/scenario-lab-sub001/internal/export"
	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
)

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Write a run's cost ledger, metrics and turn narratives to disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		state, err := engine.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		dir, _ := cmd.Flags().GetString("out")
		if err := exportRun(dir, state); err != nil {
			return err
		}
		fmt.Printf("Exports written to %s\n", dir)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "exports", "Output directory")
	rootCmd.AddCommand(exportCmd)
}

// exportRun writes all derived documents for one run under dir.
func exportRun(dir string, state *domain.ScenarioState) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	costs, err := os.Create(filepath.Join(dir, "costs.csv"))
	if err != nil {
		return err
	}
	defer costs.Close()
	if err := export.CostCSV(costs, state); err != nil {
		return err
	}

	metrics, err := os.Create(filepath.Join(dir, "metrics.csv"))
	if err != nil {
		return err
	}
	defer metrics.Close()
	if err := export.MetricCSV(metrics, state); err != nil {
		return err
	}

	return export.TurnNarratives(filepath.Join(dir, "narratives"), state)
}
