// Package reward maps an intersection observation to a scalar reward.
package reward

// Linear weights. Outflow is deliberately weighted at zero.
const (
	WeightIncoming = 1.0
	WeightDelay    = -0.5
	WeightOutgoing = 0.0
)

func Compute(incoming, outgoing, delay float64) float64 {
	return WeightIncoming*incoming + WeightDelay*delay + WeightOutgoing*outgoing
}
