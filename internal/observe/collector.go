// Package observe holds the per-step observers: lane aggregates sampled on a
// fixed period, and green-phase maxout records.
package observe

import (
	"fmt"

	"adaptive-signal-rl/internal/intersection"
)

type Sample struct {
	Time  float64 `yaml:"t"`
	Value float64 `yaml:"v"`
}

// Observation is one sampling tick across all three series.
type Observation struct {
	Time     float64
	Incoming float64
	Outgoing float64
	Delay    float64
}

// EdgeProbe is the subset of the simulator the collector reads.
type EdgeProbe interface {
	VehicleCount(edgeID string) (int, error)
	HaltedCount(edgeID string) (int, error)
	WaitingTime(edgeID string) (float64, error)
}

// LaneCollector sums moving vehicles, outflow and waiting time over every
// approach once per sampling period.
type LaneCollector struct {
	probe      EdgeProbe
	approaches []intersection.Approach
	period     float64
	last       float64

	inCounts  []Sample
	outCounts []Sample
	inDelays  []Sample
}

func NewLaneCollector(probe EdgeProbe, approaches []intersection.Approach, period float64) *LaneCollector {
	return &LaneCollector{
		probe:      probe,
		approaches: approaches,
		period:     period,
	}
}

func (c *LaneCollector) Tick(now float64) (bool, error) {
	if now-c.last < c.period {
		return true, nil
	}
	var in, out, delay float64
	for _, a := range c.approaches {
		vehicles, err := c.probe.VehicleCount(a.Incoming)
		if err != nil {
			return false, fmt.Errorf("count %s: %w", a.Incoming, err)
		}
		halted, err := c.probe.HaltedCount(a.Incoming)
		if err != nil {
			return false, fmt.Errorf("halted %s: %w", a.Incoming, err)
		}
		leaving, err := c.probe.VehicleCount(a.Outgoing)
		if err != nil {
			return false, fmt.Errorf("count %s: %w", a.Outgoing, err)
		}
		wait, err := c.probe.WaitingTime(a.Incoming)
		if err != nil {
			return false, fmt.Errorf("waiting time %s: %w", a.Incoming, err)
		}
		in += float64(vehicles - halted)
		out += float64(leaving)
		delay += wait
	}
	c.inCounts = append(c.inCounts, Sample{Time: now, Value: in})
	c.outCounts = append(c.outCounts, Sample{Time: now, Value: out})
	c.inDelays = append(c.inDelays, Sample{Time: now, Value: delay})
	c.last = now
	return true, nil
}

// Latest returns the most recent sampling tick.
func (c *LaneCollector) Latest() (Observation, bool) {
	n := len(c.inCounts)
	if n == 0 {
		return Observation{}, false
	}
	return Observation{
		Time:     c.inCounts[n-1].Time,
		Incoming: c.inCounts[n-1].Value,
		Outgoing: c.outCounts[n-1].Value,
		Delay:    c.inDelays[n-1].Value,
	}, true
}

func (c *LaneCollector) InCounts() []Sample  { return clone(c.inCounts) }
func (c *LaneCollector) OutCounts() []Sample { return clone(c.outCounts) }
func (c *LaneCollector) InDelays() []Sample  { return clone(c.inDelays) }

func clone[T any](s []T) []T {
	out := make([]T, len(s))
	copy(out, s)
	return out
}
