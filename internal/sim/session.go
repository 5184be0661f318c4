package sim

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
)

// Observer is invoked once after every simulation step. Returning false
// unregisters it.
type Observer interface {
	Tick(now float64) (bool, error)
}

// Session is a started simulation with its registered observers.
type Session struct {
	Simulator
	observers []Observer
	logger    logr.Logger
}

// Open starts backend with cfg. The caller owns the returned session and
// must Close it.
func Open(ctx context.Context, backend Simulator, cfg StartConfig, logger logr.Logger) (*Session, error) {
	if err := backend.Start(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to start simulation: %w", err)
	}
	logger.V(1).Info("simulation started", "command", cfg.Command())
	return &Session{Simulator: backend, logger: logger}, nil
}

func (s *Session) Observe(o Observer) {
	s.observers = append(s.observers, o)
}

// Step advances the simulation and runs every observer synchronously.
func (s *Session) Step() error {
	if err := s.Simulator.Step(); err != nil {
		return fmt.Errorf("simulation step: %w", err)
	}
	now, err := s.Simulator.Time()
	if err != nil {
		return fmt.Errorf("simulation time: %w", err)
	}
	kept := s.observers[:0]
	for _, o := range s.observers {
		keep, err := o.Tick(now)
		if err != nil {
			return fmt.Errorf("observer at t=%.2f: %w", now, err)
		}
		if keep {
			kept = append(kept, o)
		} else {
			s.logger.V(1).Info("observer unregistered", "time", now)
		}
	}
	s.observers = kept
	return nil
}
