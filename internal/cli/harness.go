package cli

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/spf13/viper"

	"adaptive-signal-rl/internal/config"
	"adaptive-signal-rl/internal/control"
	"adaptive-signal-rl/internal/metrics"
	"adaptive-signal-rl/internal/report"
	"adaptive-signal-rl/internal/sim"
	"adaptive-signal-rl/internal/sim/bridge"
)

// harness is what every run command needs: validated config, a logger, a
// simulator backend and the optional metrics server.
type harness struct {
	cfg      *config.Config
	logger   logr.Logger
	recorder *metrics.Recorder
	server   *metrics.Server
	runner   *control.Runner
}

func newLogger() logr.Logger {
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags))
	if viper.GetBool("verbose") {
		stdr.SetVerbosity(1)
	}
	return logger.WithName("signalctl")
}

func newHarness() (*harness, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger()
	h := &harness{cfg: cfg, logger: logger, recorder: metrics.NewRecorder()}
	h.runner = &control.Runner{
		Settings: cfg.Settings(),
		Backend:  newBackend(cfg, logger),
		Logger:   logger.WithName("control"),
		Metrics:  h.recorder,
	}
	if cfg.Metrics.Addr != "" {
		h.server = metrics.NewServer(cfg.Metrics.Addr, h.recorder, logger.WithName("metrics"))
		h.server.Start()
	}
	return h, nil
}

func newBackend(cfg *config.Config, logger logr.Logger) sim.Simulator {
	if cfg.Simulation.Backend == config.BackendBridge {
		return bridge.New(cfg.BridgeOptions(), logger.WithName("bridge"))
	}
	return sim.NewSynthetic(cfg.SyntheticOptions(), logger.WithName("synthetic"))
}

func (h *harness) rng() *rand.Rand {
	seed := h.cfg.Agent.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	h.logger.V(1).Info("seeded", "seed", seed)
	return rand.New(rand.NewSource(seed))
}

func (h *harness) save(res *control.Result) error {
	path, err := report.Write(h.cfg.Output.Dir, res)
	if err != nil {
		return err
	}
	s := report.Summarize(res)
	h.logger.Info("result written",
		"path", path,
		"meanQueue", s.MeanQueue,
		"meanDelay", s.MeanDelay,
		"meanMaxout", s.MeanMaxout,
	)
	return nil
}

func (h *harness) close() {
	if h.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		h.logger.Error(err, "metrics shutdown")
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
