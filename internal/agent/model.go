package agent

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"

	"adaptive-signal-rl/internal/buffer"
)

const modelVersion = 1

var ErrInvalidModel = errors.New("invalid model artifact")

type LayerWeights struct {
	Rows int       `msgpack:"rows"`
	Cols int       `msgpack:"cols"`
	W    []float64 `msgpack:"w"` // row-major, shape: [rows][cols]
	B    []float64 `msgpack:"b"` // shape: [rows]
}

// Model is the persisted form of the online network.
type Model struct {
	Version    int            `msgpack:"version"`
	Sizes      []int          `msgpack:"sizes"`
	Layers     []LayerWeights `msgpack:"layers"`
	Epsilon    float64        `msgpack:"epsilon"`
	TrainSteps int            `msgpack:"train_steps"`
	SavedAt    time.Time      `msgpack:"saved_at"`
}

func (n *Network) Weights() []LayerWeights {
	out := make([]LayerWeights, 0, len(n.layers))
	for _, l := range n.layers {
		r, c := l.W.Dims()
		out = append(out, LayerWeights{
			Rows: r,
			Cols: c,
			W:    append([]float64(nil), l.W.RawMatrix().Data...),
			B:    append([]float64(nil), l.B.RawVector().Data...),
		})
	}
	return out
}

func networkFromModel(m Model, lr float64) (*Network, error) {
	if m.Version != modelVersion {
		return nil, fmt.Errorf("%w: version %d", ErrInvalidModel, m.Version)
	}
	if len(m.Sizes) < 2 || m.Sizes[0] != StateDim || m.Sizes[len(m.Sizes)-1] != ActionCount {
		return nil, fmt.Errorf("%w: sizes %v", ErrInvalidModel, m.Sizes)
	}
	if len(m.Layers) != len(m.Sizes)-1 {
		return nil, fmt.Errorf("%w: %d layers for sizes %v", ErrInvalidModel, len(m.Layers), m.Sizes)
	}
	n := &Network{sizes: append([]int(nil), m.Sizes...), lr: lr}
	for i, lw := range m.Layers {
		if lw.Rows != m.Sizes[i+1] || lw.Cols != m.Sizes[i] || len(lw.W) != lw.Rows*lw.Cols || len(lw.B) != lw.Rows {
			return nil, fmt.Errorf("%w: layer %d shape mismatch", ErrInvalidModel, i)
		}
		for _, v := range append(append([]float64(nil), lw.W...), lw.B...) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: layer %d has non-finite weights", ErrInvalidModel, i)
			}
		}
		n.layers = append(n.layers, &layer{
			W:    mat.NewDense(lw.Rows, lw.Cols, append([]float64(nil), lw.W...)),
			B:    mat.NewVecDense(lw.Rows, append([]float64(nil), lw.B...)),
			relu: i+1 < len(m.Layers),
		})
	}
	return n, nil
}

// Save writes the online network to path, replacing any previous artifact.
func (a *Agent) Save(path string) error {
	body, err := msgpack.Marshal(Model{
		Version:    modelVersion,
		Sizes:      a.online.Sizes(),
		Layers:     a.online.Weights(),
		Epsilon:    a.epsilon,
		TrainSteps: a.trainSteps,
		SavedAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create model directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace model: %w", err)
	}
	a.logger.Info("model saved", "path", path, "trainSteps", a.trainSteps)
	return nil
}

// Load restores an agent from a saved artifact. Both networks start from the
// stored weights.
func Load(path string, hp Hyperparams, rng *rand.Rand, logger logr.Logger) (*Agent, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	var m Model
	if err := msgpack.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	online, err := networkFromModel(m, hp.LearningRate)
	if err != nil {
		return nil, err
	}
	target, err := NewNetwork(m.Sizes, hp.LearningRate, rng)
	if err != nil {
		return nil, err
	}
	if err := target.CopyFrom(online); err != nil {
		return nil, err
	}
	hp.Hidden = append([]int(nil), m.Sizes[1:len(m.Sizes)-1]...)
	if hp.BatchSize <= 0 {
		hp.BatchSize = DefaultHyperparams().BatchSize
	}
	memory, err := buffer.NewReplayBuffer(hp.MemorySize)
	if err != nil {
		return nil, fmt.Errorf("replay memory: %w", err)
	}
	logger.Info("model loaded", "path", path, "sizes", m.Sizes, "trainSteps", m.TrainSteps, "savedAt", m.SavedAt)
	return &Agent{
		hp:         hp,
		online:     online,
		target:     target,
		memory:     memory,
		epsilon:    m.Epsilon,
		rng:        rng,
		logger:     logger,
		trainSteps: m.TrainSteps,
	}, nil
}
