package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"adaptive-signal-rl/internal/agent"
	"adaptive-signal-rl/internal/control"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Control the light with a trained model",
	Long: `Load a trained model and run one episode with greedy decisions. The
model file is only read.

Example:
  signalctl serve --model model.msgpack --routes testDemands.rou.xml --gui`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("model", "", "trained model to load")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	h, err := newHarness()
	if err != nil {
		return err
	}
	defer h.close()
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		h.cfg.Agent.ModelPath = model
	}

	ag, err := agent.Load(h.cfg.Agent.ModelPath, h.cfg.Hyperparams(), h.rng(), h.logger.WithName("agent"))
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}

	res, err := h.runner.RunEpisode(ctx, control.ModeServe, ag)
	if err != nil {
		return err
	}
	return h.save(res)
}
