// Package sim is the boundary to the microscopic traffic simulator. A
// Simulator is a stepping engine with edge-level queries and traffic-light
// phase control; Session adds per-step observers on top of it.
package sim

import (
	"context"
	"errors"
	"strconv"
)

var (
	ErrNotStarted          = errors.New("simulation not started")
	ErrClosed              = errors.New("simulation closed")
	ErrAlreadyStarted      = errors.New("simulation already started")
	ErrUnknownEdge         = errors.New("unknown edge")
	ErrUnknownTrafficLight = errors.New("unknown traffic light")
	ErrPhaseOutOfRange     = errors.New("phase index out of range")
)

// StartConfig describes one simulation launch.
type StartConfig struct {
	NetworkFile string
	RouteFile   string
	StepLength  float64
	GUI         bool
	Delay       float64
	Quiet       bool
}

type Simulator interface {
	Start(ctx context.Context, cfg StartConfig) error
	Step() error
	Time() (float64, error)
	VehicleCount(edgeID string) (int, error)
	HaltedCount(edgeID string) (int, error)
	WaitingTime(edgeID string) (float64, error)
	Phase(tlsID string) (int, error)
	SetPhase(tlsID string, index int) error
	Close() error
}

// Command returns the simulator command line for cfg.
func (cfg StartConfig) Command() []string {
	binary := "sumo"
	if cfg.GUI {
		binary = "sumo-gui"
	}
	cmd := []string{
		binary,
		"-n", cfg.NetworkFile,
		"-r", cfg.RouteFile,
		"--step-length", strconv.FormatFloat(cfg.StepLength, 'f', -1, 64),
		"-S",
		"-d", strconv.FormatFloat(cfg.Delay, 'f', 1, 64),
		"-Q",
	}
	if cfg.Quiet {
		cmd = append(cmd, "--no-step-log")
	}
	return cmd
}
