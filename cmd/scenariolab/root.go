package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	scenariolab "github.com/Itangalo/scenario-lab-sub001"
	"github.com/Itangalo/scenario-lab-sub001/internal/adapters/file"
	"github.com/Itangalo/scenario-lab-sub001/internal/config"
	"github.com/Itangalo/scenario-lab-sub001/internal/logging"
	"github.com/Itangalo/scenario-lab-sub001/pkg/adapters/redis"
	"github.com/Itangalo/scenario-lab-sub001/pkg/ports"
)

var rootCmd = &cobra.Command{
	Use:   "scenariolab",
	Short: "Scenario Lab runs multi-actor, turn-based model simulations",
	Long: `Scenario Lab executes scenario definitions where language-model actors
negotiate, decide and reshape a shared world turn by turn, with durable
snapshots, response caching and hard cost controls.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("store", ".scenariolab/runs", "Directory for run snapshots")
	rootCmd.PersistentFlags().String("redis", "", "Redis address for run snapshots (overrides --store)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

// newLogger builds the CLI logger from the persistent flags.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return logging.New(level)
}

// newStore picks the snapshot store: Redis when an address is given, the
// atomic file store otherwise. SCENARIOLAB_REDIS_ADDR applies when neither
// flag is set.
func newStore(cmd *cobra.Command) (ports.SnapshotStore, error) {
	addr, _ := cmd.Flags().GetString("redis")
	if addr == "" {
		addr = config.LoadEnv().RedisAddr
	}
	if addr != "" {
		return redis.New(addr, "", 0), nil
	}
	dir, _ := cmd.Flags().GetString("store")
	if dir == "" {
		return nil, fmt.Errorf("a snapshot store directory is required")
	}
	return file.New(dir), nil
}

// newEngine wires an Engine from the persistent flags.
func newEngine(cmd *cobra.Command, opts ...scenariolab.Option) (*scenariolab.Engine, error) {
	store, err := newStore(cmd)
	if err != nil {
		return nil, err
	}
	base := []scenariolab.Option{
		scenariolab.WithStore(store),
		scenariolab.WithLogger(newLogger(cmd)),
	}
	return scenariolab.New(append(base, opts...)...)
}
