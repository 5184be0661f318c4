// Package intersection describes the single signalized junction under control:
// its approaches, its traffic light and which phases count as green.
package intersection

import (
	"fmt"

	"github.com/samber/lo"
)

// Approach is one incoming/outgoing edge pair.
type Approach struct {
	Name     string
	Incoming string
	Outgoing string
}

type Layout struct {
	TrafficLightID string
	Approaches     []Approach
	GreenPhases    []int
	PhaseCount     int
	MinGreen       float64
}

// Default is the four-approach junction with green phases 0 and 3.
func Default() Layout {
	return Layout{
		TrafficLightID: "juncInterTL",
		Approaches:     Approaches([]string{"LR", "RL", "NS", "SN"}, "edge_%s_1", "edge_%s_2"),
		GreenPhases:    []int{0, 3},
		PhaseCount:     4,
		MinGreen:       10,
	}
}

// Approaches expands approach names into edge pairs using printf-style
// patterns such as "edge_%s_1".
func Approaches(names []string, incoming, outgoing string) []Approach {
	return lo.Map(names, func(name string, _ int) Approach {
		return Approach{
			Name:     name,
			Incoming: fmt.Sprintf(incoming, name),
			Outgoing: fmt.Sprintf(outgoing, name),
		}
	})
}

func (l Layout) IsGreen(phase int) bool {
	return lo.Contains(l.GreenPhases, phase)
}

// NextPhase wraps around the end of the cycle.
func (l Layout) NextPhase(phase int) int {
	if l.PhaseCount <= 0 {
		return phase + 1
	}
	return (phase + 1) % l.PhaseCount
}

func (l Layout) IncomingEdges() []string {
	return lo.Map(l.Approaches, func(a Approach, _ int) string { return a.Incoming })
}

func (l Layout) Approach(name string) (Approach, bool) {
	return lo.Find(l.Approaches, func(a Approach) bool { return a.Name == name })
}
