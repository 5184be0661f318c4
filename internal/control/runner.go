// Package control runs one signalized junction through the simulator, either
// on the light's own program or under a learning agent that picks both the
// action and the time until its next decision.
package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"adaptive-signal-rl/internal/agent"
	"adaptive-signal-rl/internal/intersection"
	"adaptive-signal-rl/internal/metrics"
	"adaptive-signal-rl/internal/observe"
	"adaptive-signal-rl/internal/reward"
	"adaptive-signal-rl/internal/scenario"
	"adaptive-signal-rl/internal/sim"
)

// initialDecision is the decision baseline before the first decision.
const initialDecision = 0.01

var (
	ErrNoAgent         = errors.New("mode requires an agent")
	ErrInvalidSettings = errors.New("invalid control settings")
)

type Settings struct {
	Layout          intersection.Layout
	Duration        float64 // simulated seconds per episode
	SamplePeriod    float64
	HoldInterval    float64
	AdvanceInterval float64
	Start           sim.StartConfig
}

func DefaultSettings() Settings {
	return Settings{
		Layout:          intersection.Default(),
		Duration:        3600,
		SamplePeriod:    3,
		HoldInterval:    3,
		AdvanceInterval: 15,
		Start: sim.StartConfig{
			NetworkFile: "map.net.xml",
			RouteFile:   "trainDemands.rou.xml",
			StepLength:  0.01,
			Quiet:       true,
		},
	}
}

func (s Settings) Validate() error {
	switch {
	case s.Duration <= 0:
		return fmt.Errorf("%w: duration must be > 0", ErrInvalidSettings)
	case s.SamplePeriod <= 0:
		return fmt.Errorf("%w: sample period must be > 0", ErrInvalidSettings)
	case s.HoldInterval <= 0 || s.AdvanceInterval <= 0:
		return fmt.Errorf("%w: decision intervals must be > 0", ErrInvalidSettings)
	case len(s.Layout.Approaches) == 0:
		return fmt.Errorf("%w: no approaches", ErrInvalidSettings)
	case s.Layout.PhaseCount <= 0:
		return fmt.Errorf("%w: phase count must be > 0", ErrInvalidSettings)
	}
	return nil
}

// Result is everything recorded during one episode.
type Result struct {
	RunID       string                `yaml:"run_id"`
	Mode        Mode                  `yaml:"mode"`
	Episode     int                   `yaml:"episode"`
	Demand      scenario.Demand       `yaml:"demand,omitempty"`
	SimTime     float64               `yaml:"sim_time"`
	Decisions   int                   `yaml:"decisions"`
	Holds       int                   `yaml:"holds"`
	Advances    int                   `yaml:"advances"`
	Downgrades  int                   `yaml:"downgrades"`
	TotalReward float64               `yaml:"total_reward"`
	Epsilon     float64               `yaml:"epsilon,omitempty"`
	TrainSteps  int                   `yaml:"train_steps,omitempty"`
	InCounts    []observe.Sample      `yaml:"in_counts"`
	OutCounts   []observe.Sample      `yaml:"out_counts"`
	InDelays    []observe.Sample      `yaml:"in_delays"`
	Maxouts     []observe.PhaseRecord `yaml:"maxouts"`
}

type Runner struct {
	Settings Settings
	Backend  sim.Simulator
	Logger   logr.Logger
	Metrics  *metrics.Recorder
}

// RunEpisode runs one episode to the configured duration. Train and serve
// need an agent; fixed ignores it.
func (r *Runner) RunEpisode(ctx context.Context, mode Mode, ag *agent.Agent) (*Result, error) {
	return r.runEpisode(ctx, mode, ag, 0)
}

// DemandFunc picks the demand for a training episode.
type DemandFunc func(episode int) scenario.Demand

// Train runs episodes training episodes on ag. Each episode gets a fresh
// route file drawn by demand. The agent carries over between episodes.
func (r *Runner) Train(ctx context.Context, ag *agent.Agent, episodes int, demand DemandFunc) ([]*Result, error) {
	if episodes <= 0 {
		return nil, fmt.Errorf("%w: episodes must be > 0", ErrInvalidSettings)
	}
	results := make([]*Result, 0, episodes)
	for i := 0; i < episodes; i++ {
		d := demand(i)
		if err := scenario.WriteFile(r.Settings.Start.RouteFile, r.Settings.Layout, d); err != nil {
			return results, fmt.Errorf("episode %d: %w", i, err)
		}
		r.Logger.Info("training episode", "episode", i, "demand", d)

		res, err := r.runEpisode(ctx, ModeTrain, ag, i)
		if err != nil {
			return results, fmt.Errorf("episode %d: %w", i, err)
		}
		res.Demand = d
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) runEpisode(ctx context.Context, mode Mode, ag *agent.Agent, episode int) (res *Result, err error) {
	if err := r.Settings.Validate(); err != nil {
		return nil, err
	}
	switch mode {
	case ModeFixed:
	case ModeTrain, ModeServe:
		if ag == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoAgent, mode)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	layout := r.Settings.Layout
	runID := uuid.NewString()
	logger := r.Logger.WithValues("run", runID, "mode", mode, "episode", episode)

	sess, err := sim.Open(ctx, r.Backend, r.Settings.Start, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close simulation: %w", cerr))
		}
	}()

	collector := observe.NewLaneCollector(sess, layout.Approaches, r.Settings.SamplePeriod)
	detector, err := observe.NewPhaseDetector(sess, layout)
	if err != nil {
		return nil, err
	}
	sess.Observe(collector)
	sess.Observe(detector)

	if mode != ModeFixed {
		if err := sess.SetPhase(layout.TrafficLightID, 0); err != nil {
			return nil, fmt.Errorf("failed to reset light: %w", err)
		}
	}
	r.Metrics.EpisodeStarted(runID, string(mode), episode)

	res = &Result{RunID: runID, Mode: mode, Episode: episode}
	ep := &episodeLoop{
		runner:    r,
		sess:      sess,
		mode:      mode,
		agent:     ag,
		collector: collector,
		sched:     newScheduler(layout, r.Settings.HoldInterval, r.Settings.AdvanceInterval),
		result:    res,
		logger:    logger,
	}
	if err := ep.run(ctx); err != nil {
		return nil, err
	}

	res.InCounts = collector.InCounts()
	res.OutCounts = collector.OutCounts()
	res.InDelays = collector.InDelays()
	res.Maxouts = detector.Records()
	if ag != nil {
		res.Epsilon = ag.Epsilon()
		res.TrainSteps = ag.TrainSteps()
	}
	logger.Info("episode finished",
		"simTime", res.SimTime,
		"decisions", res.Decisions,
		"downgrades", res.Downgrades,
		"totalReward", res.TotalReward,
	)
	return res, nil
}

type episodeLoop struct {
	runner    *Runner
	sess      *sim.Session
	mode      Mode
	agent     *agent.Agent
	collector *observe.LaneCollector
	sched     *scheduler
	result    *Result
	logger    logr.Logger

	state        []float64
	action       int
	lastDecision float64
}

func (e *episodeLoop) run(ctx context.Context) error {
	duration := e.runner.Settings.Duration

	state, err := e.queue()
	if err != nil {
		return err
	}
	e.state = state
	e.action = ActionHold
	e.lastDecision = initialDecision

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now, err := e.sess.Time()
		if err != nil {
			return fmt.Errorf("simulation time: %w", err)
		}
		if now > duration {
			break
		}
		if err := e.sess.Step(); err != nil {
			return err
		}
		if now, err = e.sess.Time(); err != nil {
			return fmt.Errorf("simulation time: %w", err)
		}
		e.result.SimTime = now

		if e.mode == ModeFixed || now-e.lastDecision < e.sched.interval {
			continue
		}
		if err := e.decide(now); err != nil {
			return fmt.Errorf("decision at t=%.2f: %w", now, err)
		}
	}

	if e.mode == ModeTrain {
		return e.finish()
	}
	return nil
}

func (e *episodeLoop) decide(now float64) error {
	next, err := e.queue()
	if err != nil {
		return err
	}
	rew := e.reward()

	var requested int
	switch e.mode {
	case ModeTrain:
		e.agent.Remember(e.state, e.action, rew, next, false)
		trained := e.learn()
		requested = e.agent.Act(e.state)
		e.runner.Metrics.Learner(e.agent.Epsilon(), trained, e.agent.Memory().Stats())
	case ModeServe:
		requested = e.agent.Greedy(next)
	}

	tlsID := e.runner.Settings.Layout.TrafficLightID
	d, err := e.sched.translate(requested, func() (int, error) {
		return e.sess.Phase(tlsID)
	})
	if err != nil {
		return fmt.Errorf("read phase: %w", err)
	}
	if d.Downgraded {
		e.logger.Info("advance downgraded to hold", "time", now, "phase", d.Phase)
		e.result.Downgrades++
	}
	if d.Action == ActionAdvance {
		if err := e.sess.SetPhase(tlsID, d.NextPhase); err != nil {
			return fmt.Errorf("set phase %d: %w", d.NextPhase, err)
		}
		e.result.Advances++
	} else {
		e.result.Holds++
	}
	e.result.Decisions++
	e.result.TotalReward += rew
	e.runner.Metrics.Decision(now, ActionName(d.Action), d.Downgraded, rew, next[0])
	e.logger.V(1).Info("decision",
		"time", now,
		"state", next[0],
		"reward", rew,
		"requested", ActionName(d.Requested),
		"action", ActionName(d.Action),
		"interval", d.Interval,
	)

	e.state = next
	e.action = d.Action
	e.lastDecision = now
	return nil
}

// finish stores the terminal transition and trains on it once.
func (e *episodeLoop) finish() error {
	next, err := e.queue()
	if err != nil {
		return fmt.Errorf("terminal state: %w", err)
	}
	e.agent.Remember(e.state, e.action, e.reward(), next, true)
	trained := e.learn()
	e.runner.Metrics.Learner(e.agent.Epsilon(), trained, e.agent.Memory().Stats())
	return nil
}

func (e *episodeLoop) learn() bool {
	trained := e.agent.TrainStep()
	if !trained {
		e.logger.V(1).Info("target blended without training", "memory", e.agent.Memory().Len())
	}
	e.agent.SyncTarget()
	return trained
}

// queue is the aggregate vehicle count on the incoming edges.
func (e *episodeLoop) queue() ([]float64, error) {
	total := 0
	for _, edge := range e.runner.Settings.Layout.IncomingEdges() {
		n, err := e.sess.VehicleCount(edge)
		if err != nil {
			return nil, fmt.Errorf("vehicle count on %s: %w", edge, err)
		}
		total += n
	}
	return []float64{float64(total)}, nil
}

func (e *episodeLoop) reward() float64 {
	obs, ok := e.collector.Latest()
	if !ok {
		return 0
	}
	return reward.Compute(obs.Incoming, obs.Outgoing, obs.Delay)
}
