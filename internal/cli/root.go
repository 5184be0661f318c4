package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "signalctl",
	Short: "signalctl - adaptive traffic signal control experiments",
	Long: `signalctl drives a single signalized junction in a traffic simulator.

The light either runs its own fixed program or is controlled by a small
value-learning agent that chooses between holding the current phase and
advancing to the next one, and in doing so how long until its next decision.

Example:
  signalctl routes --out trainDemands.rou.xml
  signalctl train --episodes 10
  signalctl serve --model model.msgpack`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .signalctl.yaml)")
	flags.Bool("verbose", false, "log every decision")
	flags.String("backend", "", "simulator backend (synthetic, bridge)")
	flags.String("bridge-addr", "", "simulator bridge address")
	flags.String("routes", "", "route file passed to the simulator")
	flags.Float64("duration", 0, "simulated seconds per episode")
	flags.Bool("gui", false, "start the simulator with its GUI")
	flags.String("metrics-addr", "", "serve /healthz, /stats and /metrics on this address")
	flags.String("output-dir", "", "directory for result files")

	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("simulation.backend", flags.Lookup("backend"))
	_ = viper.BindPFlag("simulation.bridge.address", flags.Lookup("bridge-addr"))
	_ = viper.BindPFlag("simulation.route_file", flags.Lookup("routes"))
	_ = viper.BindPFlag("simulation.duration", flags.Lookup("duration"))
	_ = viper.BindPFlag("simulation.gui", flags.Lookup("gui"))
	_ = viper.BindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
	_ = viper.BindPFlag("output.dir", flags.Lookup("output-dir"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error getting working directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".signalctl")
	}

	viper.SetEnvPrefix("SIGNALCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
