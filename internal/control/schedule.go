package control

import (
	"errors"
	"fmt"
	"strings"

	"adaptive-signal-rl/internal/intersection"
)

type Mode string

const (
	ModeFixed Mode = "fixed"
	ModeTrain Mode = "train"
	ModeServe Mode = "serve"
)

var ErrUnknownMode = errors.New("unknown mode")

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeFixed, ModeTrain, ModeServe:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

const (
	ActionHold    = 0
	ActionAdvance = 1
)

func ActionName(action int) string {
	if action == ActionAdvance {
		return "advance"
	}
	return "hold"
}

// Decision is the outcome of translating one requested action.
type Decision struct {
	Requested  int
	Action     int
	Interval   float64
	Phase      int
	NextPhase  int
	Downgraded bool
}

// scheduler owns the decision interval. Only translate changes it.
type scheduler struct {
	layout   intersection.Layout
	hold     float64
	advance  float64
	interval float64
}

func newScheduler(layout intersection.Layout, hold, advance float64) *scheduler {
	return &scheduler{
		layout:   layout,
		hold:     hold,
		advance:  advance,
		interval: hold,
	}
}

// translate maps a requested action onto the light. The phase is only read
// for an advance request. An advance outside a green phase is downgraded to
// a hold.
func (s *scheduler) translate(requested int, phase func() (int, error)) (Decision, error) {
	d := Decision{Requested: requested, Action: ActionHold, Phase: -1, NextPhase: -1}
	if requested != ActionAdvance {
		s.interval = s.hold
		d.Interval = s.interval
		return d, nil
	}

	current, err := phase()
	if err != nil {
		return Decision{}, err
	}
	d.Phase = current
	if !s.layout.IsGreen(current) {
		d.Downgraded = true
		s.interval = s.hold
		d.Interval = s.interval
		return d, nil
	}
	d.Action = ActionAdvance
	d.NextPhase = s.layout.NextPhase(current)
	s.interval = s.advance
	d.Interval = s.interval
	return d, nil
}
