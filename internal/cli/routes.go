package cli

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"adaptive-signal-rl/internal/config"
	"adaptive-signal-rl/internal/scenario"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Write a route file for the junction",
	Long: `Write a route file with one route and one flow per approach. Flows not
given on the command line are drawn from the training ranges.

Example:
  signalctl routes --out testDemands.rou.xml --major 1500 --minor 400`,
	Args: cobra.NoArgs,
	RunE: runRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)

	routesCmd.Flags().String("out", "", "output file (defaults to the configured route file)")
	routesCmd.Flags().Int("major", 0, "vehicles per hour on each major approach")
	routesCmd.Flags().Int("minor", 0, "vehicles per hour on each other approach")
	routesCmd.Flags().Int64("seed", 0, "random seed for drawn flows (0 seeds from the clock)")
}

func runRoutes(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = cfg.Simulation.RouteFile
	}
	major, _ := cmd.Flags().GetInt("major")
	minor, _ := cmd.Flags().GetInt("minor")
	seed, _ := cmd.Flags().GetInt64("seed")
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	high, low := cfg.FlowRanges()
	if major > 0 {
		high = scenario.FlowRange{Min: major, Max: major}
	}
	if minor > 0 {
		low = scenario.FlowRange{Min: minor, Max: minor}
	}

	layout := cfg.Layout()
	demand := scenario.Draw(rand.New(rand.NewSource(seed)), layout, cfg.Training.MajorApproaches, high, low)
	if err := scenario.WriteFile(out, layout, demand); err != nil {
		return err
	}
	newLogger().Info("routes written", "path", out, "demand", demand)
	return nil
}
