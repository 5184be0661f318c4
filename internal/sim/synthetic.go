package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/go-logr/logr"

	"adaptive-signal-rl/internal/scenario"
)

const (
	defaultTravelTime     = 4.0
	defaultExitTime       = 4.0
	defaultSaturationFlow = 1800.0
	timeEpsilon           = 1e-9
)

// PhaseSpec is one phase of the fixed-time program. Green lists the incoming
// edges discharged while the phase is active.
type PhaseSpec struct {
	Duration float64
	Green    []string
}

type SyntheticOptions struct {
	TrafficLightID string
	Program        []PhaseSpec
	TravelTime     float64 // seconds from edge entry to the stop line
	ExitTime       float64 // seconds spent on the outgoing edge
	SaturationFlow float64 // vehicles per hour discharged by a green approach
}

type inLane struct {
	flow      scenario.EdgeFlow
	outgoing  string
	spawnAcc  float64
	moving    []float64 // remaining travel time per vehicle
	queue     []float64 // accumulated waiting time per halted vehicle
	discharge float64
}

// Synthetic is a deterministic in-process queue model of one signalized
// junction. Demand is read from the route file named in StartConfig.
type Synthetic struct {
	opts   SyntheticOptions
	logger logr.Logger

	lanes     map[string]*inLane
	order     []string
	exits     map[string][]float64
	green     map[string]bool
	dt        float64
	steps     int64
	phase     int
	remaining float64
	started   bool
	closed    bool
}

func NewSynthetic(opts SyntheticOptions, logger logr.Logger) *Synthetic {
	if opts.TravelTime <= 0 {
		opts.TravelTime = defaultTravelTime
	}
	if opts.ExitTime <= 0 {
		opts.ExitTime = defaultExitTime
	}
	if opts.SaturationFlow <= 0 {
		opts.SaturationFlow = defaultSaturationFlow
	}
	return &Synthetic{opts: opts, logger: logger}
}

func (s *Synthetic) Start(ctx context.Context, cfg StartConfig) error {
	if s.started {
		return ErrAlreadyStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if cfg.StepLength <= 0 {
		return fmt.Errorf("step length must be > 0, got %v", cfg.StepLength)
	}
	if len(s.opts.Program) == 0 {
		return fmt.Errorf("synthetic program has no phases")
	}
	for i, p := range s.opts.Program {
		if p.Duration <= 0 {
			return fmt.Errorf("phase %d duration must be > 0", i)
		}
	}
	routes, err := scenario.Load(cfg.RouteFile)
	if err != nil {
		return err
	}
	flows, err := routes.EdgeFlows()
	if err != nil {
		return err
	}

	s.lanes = make(map[string]*inLane, len(flows))
	s.order = s.order[:0]
	s.exits = make(map[string][]float64, len(flows))
	for _, f := range flows {
		if _, dup := s.lanes[f.Incoming]; dup {
			return fmt.Errorf("duplicate flow on edge %s", f.Incoming)
		}
		s.lanes[f.Incoming] = &inLane{flow: f, outgoing: f.Outgoing}
		s.order = append(s.order, f.Incoming)
		s.exits[f.Outgoing] = nil
	}
	s.dt = cfg.StepLength
	s.steps = 0
	s.setPhase(0)
	s.started = true
	s.closed = false
	s.logger.V(1).Info("synthetic simulation started", "edges", s.order, "stepLength", s.dt)
	return nil
}

func (s *Synthetic) now() float64 {
	return float64(s.steps) * s.dt
}

func (s *Synthetic) check() error {
	switch {
	case s.closed:
		return ErrClosed
	case !s.started:
		return ErrNotStarted
	}
	return nil
}

func (s *Synthetic) Step() error {
	if err := s.check(); err != nil {
		return err
	}
	s.steps++
	now := s.now()

	s.remaining -= s.dt
	for s.remaining <= timeEpsilon {
		next := (s.phase + 1) % len(s.opts.Program)
		carry := s.remaining
		s.setPhase(next)
		s.remaining += carry
	}

	for out, left := range s.exits {
		s.exits[out] = advance(left, s.dt)
	}

	rate := s.opts.SaturationFlow / 3600
	for _, edge := range s.order {
		lane := s.lanes[edge]

		kept := lane.moving[:0]
		for _, t := range lane.moving {
			t -= s.dt
			if t <= timeEpsilon {
				lane.queue = append(lane.queue, 0)
				continue
			}
			kept = append(kept, t)
		}
		lane.moving = kept

		if now > lane.flow.Begin && now <= lane.flow.End {
			lane.spawnAcc += lane.flow.VehsPerHour / 3600 * s.dt
			for lane.spawnAcc >= 1 {
				lane.moving = append(lane.moving, s.opts.TravelTime)
				lane.spawnAcc--
			}
		}

		if s.green[edge] {
			lane.discharge += rate * s.dt
			for lane.discharge >= 1 && len(lane.queue) > 0 {
				lane.queue = lane.queue[1:]
				s.exits[lane.outgoing] = append(s.exits[lane.outgoing], s.opts.ExitTime)
				lane.discharge--
			}
			lane.discharge = math.Min(lane.discharge, 1)
		} else {
			lane.discharge = 0
		}

		for i := range lane.queue {
			lane.queue[i] += s.dt
		}
	}
	return nil
}

func advance(left []float64, dt float64) []float64 {
	kept := left[:0]
	for _, t := range left {
		if t -= dt; t > timeEpsilon {
			kept = append(kept, t)
		}
	}
	return kept
}

func (s *Synthetic) setPhase(index int) {
	s.phase = index
	s.remaining = s.opts.Program[index].Duration
	s.green = make(map[string]bool, len(s.opts.Program[index].Green))
	for _, edge := range s.opts.Program[index].Green {
		s.green[edge] = true
	}
}

func (s *Synthetic) Time() (float64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.now(), nil
}

func (s *Synthetic) VehicleCount(edgeID string) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if lane, ok := s.lanes[edgeID]; ok {
		return len(lane.moving) + len(lane.queue), nil
	}
	if left, ok := s.exits[edgeID]; ok {
		return len(left), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownEdge, edgeID)
}

func (s *Synthetic) HaltedCount(edgeID string) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if lane, ok := s.lanes[edgeID]; ok {
		return len(lane.queue), nil
	}
	if _, ok := s.exits[edgeID]; ok {
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownEdge, edgeID)
}

func (s *Synthetic) WaitingTime(edgeID string) (float64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if lane, ok := s.lanes[edgeID]; ok {
		var total float64
		for _, w := range lane.queue {
			total += w
		}
		return total, nil
	}
	if _, ok := s.exits[edgeID]; ok {
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownEdge, edgeID)
}

func (s *Synthetic) Phase(tlsID string) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if tlsID != s.opts.TrafficLightID {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTrafficLight, tlsID)
	}
	return s.phase, nil
}

// SetPhase switches immediately and restarts the phase timer.
func (s *Synthetic) SetPhase(tlsID string, index int) error {
	if err := s.check(); err != nil {
		return err
	}
	if tlsID != s.opts.TrafficLightID {
		return fmt.Errorf("%w: %s", ErrUnknownTrafficLight, tlsID)
	}
	if index < 0 || index >= len(s.opts.Program) {
		return fmt.Errorf("%w: %d not in [0,%d]", ErrPhaseOutOfRange, index, len(s.opts.Program)-1)
	}
	s.setPhase(index)
	return nil
}

// Close is idempotent. A closed Synthetic may be started again.
func (s *Synthetic) Close() error {
	if s.started {
		s.logger.V(1).Info("synthetic simulation closed", "time", s.now())
	}
	s.started = false
	s.closed = true
	return nil
}
