package config

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/viper"

	"adaptive-signal-rl/internal/agent"
	"adaptive-signal-rl/internal/control"
	"adaptive-signal-rl/internal/intersection"
	"adaptive-signal-rl/internal/scenario"
	"adaptive-signal-rl/internal/sim"
	"adaptive-signal-rl/internal/sim/bridge"
)

const (
	BackendSynthetic = "synthetic"
	BackendBridge    = "bridge"
)

// Config represents the signalctl configuration
type Config struct {
	Simulation   SimulationConfig   `mapstructure:"simulation"`
	Intersection IntersectionConfig `mapstructure:"intersection"`
	Observation  ObservationConfig  `mapstructure:"observation"`
	Control      ControlConfig      `mapstructure:"control"`
	Agent        AgentConfig        `mapstructure:"agent"`
	Training     TrainingConfig     `mapstructure:"training"`
	Output       OutputConfig       `mapstructure:"output"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Synthetic    SyntheticConfig    `mapstructure:"synthetic"`
}

// SimulationConfig selects the simulator backend and how it is started
type SimulationConfig struct {
	Backend     string       `mapstructure:"backend"`
	Bridge      BridgeConfig `mapstructure:"bridge"`
	NetworkFile string       `mapstructure:"network_file"`
	RouteFile   string       `mapstructure:"route_file"`
	StepLength  float64      `mapstructure:"step_length"` // seconds
	GUI         bool         `mapstructure:"gui"`
	Delay       float64      `mapstructure:"delay"` // GUI delay in ms
	StepLog     bool         `mapstructure:"step_log"`
	Duration    float64      `mapstructure:"duration"` // simulated seconds
}

type BridgeConfig struct {
	Network     string        `mapstructure:"network"`
	Address     string        `mapstructure:"address"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	IOTimeout   time.Duration `mapstructure:"io_timeout"`
}

type IntersectionConfig struct {
	TrafficLightID string   `mapstructure:"traffic_light_id"`
	Approaches     []string `mapstructure:"approaches"`
	IncomingFormat string   `mapstructure:"incoming_format"`
	OutgoingFormat string   `mapstructure:"outgoing_format"`
	GreenPhases    []int    `mapstructure:"green_phases"`
	PhaseCount     int      `mapstructure:"phase_count"`
	MinGreen       float64  `mapstructure:"min_green"`
}

type ObservationConfig struct {
	SamplePeriod float64 `mapstructure:"sample_period"`
}

type ControlConfig struct {
	HoldInterval    float64 `mapstructure:"hold_interval"`
	AdvanceInterval float64 `mapstructure:"advance_interval"`
}

// AgentConfig holds the learner's hyperparameters. Seed 0 means seed from
// the clock.
type AgentConfig struct {
	Gamma        float64 `mapstructure:"gamma"`
	EpsilonStart float64 `mapstructure:"epsilon_start"`
	EpsilonMin   float64 `mapstructure:"epsilon_min"`
	EpsilonDecay float64 `mapstructure:"epsilon_decay"`
	LearningRate float64 `mapstructure:"learning_rate"`
	Tau          float64 `mapstructure:"tau"`
	BatchSize    int     `mapstructure:"batch_size"`
	MemorySize   int     `mapstructure:"memory_size"`
	Hidden       []int   `mapstructure:"hidden"`
	Seed         int64   `mapstructure:"seed"`
	ModelPath    string  `mapstructure:"model_path"`
}

type TrainingConfig struct {
	Episodes        int             `mapstructure:"episodes"`
	MajorApproaches []string        `mapstructure:"major_approaches"`
	HighFlow        FlowRangeConfig `mapstructure:"high_flow"`
	LowFlow         FlowRangeConfig `mapstructure:"low_flow"`
}

// FlowRangeConfig is a half-open range of vehicles per hour
type FlowRangeConfig struct {
	Min int `mapstructure:"min"`
	Max int `mapstructure:"max"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// MetricsConfig enables the HTTP metrics server when Addr is set
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type SyntheticConfig struct {
	Program        []PhaseConfig `mapstructure:"program"`
	TravelTime     float64       `mapstructure:"travel_time"`
	ExitTime       float64       `mapstructure:"exit_time"`
	SaturationFlow float64       `mapstructure:"saturation_flow"`
}

// PhaseConfig is one phase of the synthetic light's program. Green lists
// approach names.
type PhaseConfig struct {
	Duration float64  `mapstructure:"duration"`
	Green    []string `mapstructure:"green"`
}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	cfg := &Config{}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	sc := &cfg.Simulation
	if sc.Backend == "" {
		sc.Backend = BackendSynthetic
	}
	if sc.Bridge.Network == "" {
		sc.Bridge.Network = "unix"
	}
	if sc.Bridge.Address == "" && sc.Bridge.Network == "unix" {
		sc.Bridge.Address = "/tmp/signalctl-bridge.sock"
	}
	if sc.NetworkFile == "" {
		sc.NetworkFile = "map.net.xml"
	}
	if sc.RouteFile == "" {
		sc.RouteFile = "trainDemands.rou.xml"
	}
	if sc.StepLength == 0 {
		sc.StepLength = 0.01
	}
	if sc.Duration == 0 {
		sc.Duration = 3600
	}

	def := intersection.Default()
	in := &cfg.Intersection
	if in.TrafficLightID == "" {
		in.TrafficLightID = def.TrafficLightID
	}
	if len(in.Approaches) == 0 {
		in.Approaches = lo.Map(def.Approaches, func(a intersection.Approach, _ int) string { return a.Name })
	}
	if in.IncomingFormat == "" {
		in.IncomingFormat = "edge_%s_1"
	}
	if in.OutgoingFormat == "" {
		in.OutgoingFormat = "edge_%s_2"
	}
	if len(in.GreenPhases) == 0 {
		in.GreenPhases = def.GreenPhases
	}
	if in.PhaseCount == 0 {
		in.PhaseCount = def.PhaseCount
	}
	if in.MinGreen == 0 {
		in.MinGreen = def.MinGreen
	}

	if cfg.Observation.SamplePeriod == 0 {
		cfg.Observation.SamplePeriod = 3
	}
	if cfg.Control.HoldInterval == 0 {
		cfg.Control.HoldInterval = 3
	}
	if cfg.Control.AdvanceInterval == 0 {
		cfg.Control.AdvanceInterval = 15
	}

	hp := agent.DefaultHyperparams()
	ag := &cfg.Agent
	if ag.Gamma == 0 {
		ag.Gamma = hp.Gamma
	}
	if ag.EpsilonStart == 0 {
		ag.EpsilonStart = hp.EpsilonStart
	}
	if ag.EpsilonMin == 0 {
		ag.EpsilonMin = hp.EpsilonMin
	}
	if ag.EpsilonDecay == 0 {
		ag.EpsilonDecay = hp.EpsilonDecay
	}
	if ag.LearningRate == 0 {
		ag.LearningRate = hp.LearningRate
	}
	if ag.Tau == 0 {
		ag.Tau = hp.Tau
	}
	if ag.BatchSize == 0 {
		ag.BatchSize = hp.BatchSize
	}
	if ag.MemorySize == 0 {
		ag.MemorySize = hp.MemorySize
	}
	if len(ag.Hidden) == 0 {
		ag.Hidden = hp.Hidden
	}
	if ag.ModelPath == "" {
		ag.ModelPath = "model.msgpack"
	}

	tr := &cfg.Training
	if tr.Episodes == 0 {
		tr.Episodes = 10
	}
	if len(tr.MajorApproaches) == 0 {
		tr.MajorApproaches = []string{"NS", "SN"}
	}
	if tr.HighFlow == (FlowRangeConfig{}) {
		tr.HighFlow = FlowRangeConfig{Min: 1200, Max: 2000}
	}
	if tr.LowFlow == (FlowRangeConfig{}) {
		tr.LowFlow = FlowRangeConfig{Min: 200, Max: 700}
	}

	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "results"
	}

	syn := &cfg.Synthetic
	if len(syn.Program) == 0 {
		syn.Program = []PhaseConfig{
			{Duration: 31, Green: []string{"NS", "SN"}},
			{Duration: 4},
			{Duration: 2},
			{Duration: 31, Green: []string{"LR", "RL"}},
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Simulation.Backend {
	case BackendSynthetic, BackendBridge:
	default:
		return fmt.Errorf("invalid backend: %s (must be %s or %s)", c.Simulation.Backend, BackendSynthetic, BackendBridge)
	}
	if c.Simulation.Backend == BackendBridge && c.Simulation.Bridge.Address == "" {
		return fmt.Errorf("bridge address is required")
	}
	if c.Simulation.StepLength <= 0 {
		return fmt.Errorf("step_length must be > 0")
	}
	if c.Simulation.Duration <= 0 {
		return fmt.Errorf("duration must be > 0")
	}

	in := c.Intersection
	if dup := lo.FindDuplicates(in.Approaches); len(dup) > 0 {
		return fmt.Errorf("duplicate approaches: %v", dup)
	}
	if in.PhaseCount <= 0 {
		return fmt.Errorf("phase_count must be > 0")
	}
	if bad := lo.Filter(in.GreenPhases, func(p int, _ int) bool { return p < 0 || p >= in.PhaseCount }); len(bad) > 0 {
		return fmt.Errorf("green phases %v out of range [0,%d)", bad, in.PhaseCount)
	}

	if c.Observation.SamplePeriod <= 0 {
		return fmt.Errorf("sample_period must be > 0")
	}
	if c.Control.HoldInterval <= 0 || c.Control.AdvanceInterval <= 0 {
		return fmt.Errorf("decision intervals must be > 0")
	}

	if c.Agent.EpsilonMin > c.Agent.EpsilonStart {
		return fmt.Errorf("epsilon_min %v exceeds epsilon_start %v", c.Agent.EpsilonMin, c.Agent.EpsilonStart)
	}
	if c.Agent.Tau < 0 || c.Agent.Tau > 1 {
		return fmt.Errorf("tau must be in [0,1]")
	}
	if c.Agent.BatchSize > c.Agent.MemorySize {
		return fmt.Errorf("batch_size %d exceeds memory_size %d", c.Agent.BatchSize, c.Agent.MemorySize)
	}

	if c.Training.Episodes <= 0 {
		return fmt.Errorf("episodes must be > 0")
	}
	if unknown, _ := lo.Difference(c.Training.MajorApproaches, in.Approaches); len(unknown) > 0 {
		return fmt.Errorf("unknown major approaches: %v", unknown)
	}
	for _, fr := range []FlowRangeConfig{c.Training.HighFlow, c.Training.LowFlow} {
		if fr.Min < 0 || fr.Max < fr.Min {
			return fmt.Errorf("invalid flow range [%d,%d)", fr.Min, fr.Max)
		}
	}

	for i, p := range c.Synthetic.Program {
		if p.Duration <= 0 {
			return fmt.Errorf("synthetic phase %d: duration must be > 0", i)
		}
		if unknown, _ := lo.Difference(p.Green, in.Approaches); len(unknown) > 0 {
			return fmt.Errorf("synthetic phase %d: unknown approaches %v", i, unknown)
		}
	}
	return nil
}

func (c *Config) Layout() intersection.Layout {
	in := c.Intersection
	return intersection.Layout{
		TrafficLightID: in.TrafficLightID,
		Approaches:     intersection.Approaches(in.Approaches, in.IncomingFormat, in.OutgoingFormat),
		GreenPhases:    in.GreenPhases,
		PhaseCount:     in.PhaseCount,
		MinGreen:       in.MinGreen,
	}
}

func (c *Config) StartConfig() sim.StartConfig {
	s := c.Simulation
	return sim.StartConfig{
		NetworkFile: s.NetworkFile,
		RouteFile:   s.RouteFile,
		StepLength:  s.StepLength,
		GUI:         s.GUI,
		Delay:       s.Delay,
		Quiet:       !s.StepLog,
	}
}

func (c *Config) Settings() control.Settings {
	return control.Settings{
		Layout:          c.Layout(),
		Duration:        c.Simulation.Duration,
		SamplePeriod:    c.Observation.SamplePeriod,
		HoldInterval:    c.Control.HoldInterval,
		AdvanceInterval: c.Control.AdvanceInterval,
		Start:           c.StartConfig(),
	}
}

func (c *Config) Hyperparams() agent.Hyperparams {
	a := c.Agent
	return agent.Hyperparams{
		Gamma:        a.Gamma,
		EpsilonStart: a.EpsilonStart,
		EpsilonMin:   a.EpsilonMin,
		EpsilonDecay: a.EpsilonDecay,
		LearningRate: a.LearningRate,
		Tau:          a.Tau,
		BatchSize:    a.BatchSize,
		MemorySize:   a.MemorySize,
		Hidden:       a.Hidden,
	}
}

func (c *Config) BridgeOptions() bridge.Options {
	b := c.Simulation.Bridge
	return bridge.Options{
		Network:     b.Network,
		Address:     b.Address,
		DialTimeout: b.DialTimeout,
		IOTimeout:   b.IOTimeout,
	}
}

// SyntheticOptions resolves the program's approach names to incoming edges.
func (c *Config) SyntheticOptions() sim.SyntheticOptions {
	layout := c.Layout()
	program := lo.Map(c.Synthetic.Program, func(p PhaseConfig, _ int) sim.PhaseSpec {
		return sim.PhaseSpec{
			Duration: p.Duration,
			Green: lo.FilterMap(p.Green, func(name string, _ int) (string, bool) {
				a, ok := layout.Approach(name)
				return a.Incoming, ok
			}),
		}
	})
	return sim.SyntheticOptions{
		TrafficLightID: layout.TrafficLightID,
		Program:        program,
		TravelTime:     c.Synthetic.TravelTime,
		ExitTime:       c.Synthetic.ExitTime,
		SaturationFlow: c.Synthetic.SaturationFlow,
	}
}

// FlowRanges returns the training demand ranges.
func (c *Config) FlowRanges() (high, low scenario.FlowRange) {
	h, l := c.Training.HighFlow, c.Training.LowFlow
	return scenario.FlowRange{Min: h.Min, Max: h.Max}, scenario.FlowRange{Min: l.Min, Max: l.Max}
}
