package cli

import (
	"github.com/spf13/cobra"

	"adaptive-signal-rl/internal/control"
)

var fixedCmd = &cobra.Command{
	Use:   "fixed",
	Short: "Run one episode on the light's own program",
	Long: `Run one episode without an agent. The traffic light follows the
program defined in the network (or the synthetic program), and the run
records queue, outflow, delay and green maxout series as a baseline.`,
	Args: cobra.NoArgs,
	RunE: runFixed,
}

func init() {
	rootCmd.AddCommand(fixedCmd)
}

func runFixed(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	h, err := newHarness()
	if err != nil {
		return err
	}
	defer h.close()

	res, err := h.runner.RunEpisode(ctx, control.ModeFixed, nil)
	if err != nil {
		return err
	}
	return h.save(res)
}
