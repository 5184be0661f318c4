// Package agent implements the value-learning traffic-light agent: an
// epsilon-greedy DQN with a replay memory and a softly updated target
// network.
package agent

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/go-logr/logr"

	"adaptive-signal-rl/internal/buffer"
)

const (
	StateDim    = 1
	ActionCount = 2
)

type Hyperparams struct {
	Gamma        float64
	EpsilonStart float64
	EpsilonMin   float64
	EpsilonDecay float64
	LearningRate float64
	Tau          float64
	BatchSize    int
	MemorySize   int
	Hidden       []int
}

func DefaultHyperparams() Hyperparams {
	return Hyperparams{
		Gamma:        0.85,
		EpsilonStart: 1.0,
		EpsilonMin:   0.1,
		EpsilonDecay: 0.98,
		LearningRate: 0.1,
		Tau:          0.125,
		BatchSize:    16,
		MemorySize:   200,
		Hidden:       []int{32, 16},
	}
}

func (hp Hyperparams) sizes() []int {
	sizes := []int{StateDim}
	sizes = append(sizes, hp.Hidden...)
	return append(sizes, ActionCount)
}

type Agent struct {
	hp      Hyperparams
	online  *Network
	target  *Network
	memory  *buffer.ReplayBuffer
	epsilon float64
	rng     *rand.Rand
	logger  logr.Logger

	trainSteps int
	lastLoss   float64
}

// New creates an agent whose online and target networks are initialized
// independently.
func New(hp Hyperparams, rng *rand.Rand, logger logr.Logger) (*Agent, error) {
	if hp.BatchSize <= 0 {
		return nil, errors.New("batch size must be > 0")
	}
	memory, err := buffer.NewReplayBuffer(hp.MemorySize)
	if err != nil {
		return nil, fmt.Errorf("replay memory: %w", err)
	}
	online, err := NewNetwork(hp.sizes(), hp.LearningRate, rng)
	if err != nil {
		return nil, err
	}
	target, err := NewNetwork(hp.sizes(), hp.LearningRate, rng)
	if err != nil {
		return nil, err
	}
	return &Agent{
		hp:      hp,
		online:  online,
		target:  target,
		memory:  memory,
		epsilon: hp.EpsilonStart,
		rng:     rng,
		logger:  logger,
	}, nil
}

// Act decays epsilon, then explores with probability epsilon or exploits the
// online network otherwise.
func (a *Agent) Act(state []float64) int {
	a.epsilon = math.Max(a.hp.EpsilonMin, a.epsilon*a.hp.EpsilonDecay)
	if a.rng.Float64() < a.epsilon {
		return a.rng.Intn(ActionCount)
	}
	return argmax(a.online.Predict(state))
}

// Greedy picks the best action of the online network without exploring.
func (a *Agent) Greedy(state []float64) int {
	return argmax(a.online.Predict(state))
}

func (a *Agent) Remember(state []float64, action int, reward float64, next []float64, terminal bool) uint64 {
	return a.memory.Push(buffer.Transition{
		State:     state,
		Action:    action,
		Reward:    reward,
		NextState: next,
		Terminal:  terminal,
	})
}

// TrainStep fits the online network on one minibatch. It reports false and
// does nothing while the memory holds fewer transitions than a minibatch.
func (a *Agent) TrainStep() bool {
	batch, err := a.memory.Sample(a.hp.BatchSize, a.rng)
	if err != nil {
		if !errors.Is(err, buffer.ErrInsufficientData) {
			a.logger.Error(err, "minibatch sampling failed")
		}
		return false
	}
	var loss float64
	for _, tr := range batch {
		target := a.target.Predict(tr.State)
		if tr.Terminal {
			target[tr.Action] = tr.Reward
		} else {
			future := a.target.Predict(tr.NextState)
			target[tr.Action] = tr.Reward + a.hp.Gamma*future[argmax(future)]
		}
		loss += a.online.Fit(tr.State, target)
	}
	a.trainSteps++
	a.lastLoss = loss / float64(len(batch))
	return true
}

// SyncTarget blends the target network toward the online network.
func (a *Agent) SyncTarget() {
	if err := a.target.Blend(a.online, a.hp.Tau); err != nil {
		a.logger.Error(err, "target sync failed")
	}
}

func (a *Agent) Epsilon() float64             { return a.epsilon }
func (a *Agent) TrainSteps() int              { return a.trainSteps }
func (a *Agent) LastLoss() float64            { return a.lastLoss }
func (a *Agent) Memory() *buffer.ReplayBuffer { return a.memory }
func (a *Agent) Hyperparams() Hyperparams     { return a.hp }
func (a *Agent) Online() *Network             { return a.online }
func (a *Agent) Target() *Network             { return a.target }
