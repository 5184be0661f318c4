package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"adaptive-signal-rl/internal/agent"
	"adaptive-signal-rl/internal/scenario"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the agent over episodes of random demand",
	Long: `Train the agent over several episodes. Each episode draws a high flow
for the major approaches and a low flow for the rest, rewrites the route
file, and runs the control loop with learning enabled. The agent carries
over between episodes and is saved once at the end.

Example:
  signalctl train --episodes 10 --model model.msgpack --seed 7`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().Int("episodes", 0, "training episodes")
	trainCmd.Flags().String("model", "", "where to save the trained model")
	trainCmd.Flags().Int64("seed", 0, "random seed (0 seeds from the clock)")

	_ = viper.BindPFlag("training.episodes", trainCmd.Flags().Lookup("episodes"))
	_ = viper.BindPFlag("agent.seed", trainCmd.Flags().Lookup("seed"))
}

func runTrain(cmd *cobra.Command, args []string) error {
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

	rng := h.rng()
	ag, err := agent.New(h.cfg.Hyperparams(), rng, h.logger.WithName("agent"))
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	layout := h.cfg.Layout()
	high, low := h.cfg.FlowRanges()
	major := h.cfg.Training.MajorApproaches
	results, err := h.runner.Train(ctx, ag, h.cfg.Training.Episodes, func(int) scenario.Demand {
		return scenario.Draw(rng, layout, major, high, low)
	})
	for _, res := range results {
		if serr := h.save(res); serr != nil {
			h.logger.Error(serr, "failed to write result", "episode", res.Episode)
		}
	}
	if err != nil {
		return err
	}

	if err := ag.Save(h.cfg.Agent.ModelPath); err != nil {
		return err
	}
	h.logger.Info("training complete",
		"model", h.cfg.Agent.ModelPath,
		"episodes", len(results),
		"trainSteps", ag.TrainSteps(),
		"epsilon", ag.Epsilon(),
	)
	return nil
}
