package observe

import (
	"fmt"

	"adaptive-signal-rl/internal/intersection"
)

// initialBaseline avoids measuring the first green against t=0.
const initialBaseline = 0.01

type PhaseRecord struct {
	Time   float64 `yaml:"t"`
	Maxout float64 `yaml:"maxout"`
}

type PhaseReader interface {
	Phase(tlsID string) (int, error)
}

// PhaseDetector records how long each green phase ran beyond the minimum
// green time.
type PhaseDetector struct {
	reader     PhaseReader
	layout     intersection.Layout
	lastPhase  int
	lastChange float64
	records    []PhaseRecord
}

// NewPhaseDetector reads the light's current phase as the starting point.
func NewPhaseDetector(reader PhaseReader, layout intersection.Layout) (*PhaseDetector, error) {
	phase, err := reader.Phase(layout.TrafficLightID)
	if err != nil {
		return nil, fmt.Errorf("read phase of %s: %w", layout.TrafficLightID, err)
	}
	return &PhaseDetector{
		reader:     reader,
		layout:     layout,
		lastPhase:  phase,
		lastChange: initialBaseline,
	}, nil
}

func (d *PhaseDetector) Tick(now float64) (bool, error) {
	phase, err := d.reader.Phase(d.layout.TrafficLightID)
	if err != nil {
		return false, fmt.Errorf("read phase of %s: %w", d.layout.TrafficLightID, err)
	}
	if phase == d.lastPhase {
		return true, nil
	}
	if d.layout.IsGreen(d.lastPhase) {
		d.records = append(d.records, PhaseRecord{
			Time:   now,
			Maxout: (now - d.lastChange) - d.layout.MinGreen,
		})
	}
	d.lastPhase = phase
	d.lastChange = now
	return true, nil
}

func (d *PhaseDetector) Records() []PhaseRecord { return clone(d.records) }
