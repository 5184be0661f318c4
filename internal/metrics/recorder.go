// Package metrics exposes control-loop counters to Prometheus and a JSON
// snapshot of the current run.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"adaptive-signal-rl/internal/buffer"
)

const namespace = "signalctl"

type Snapshot struct {
	RunID      string       `json:"run_id"`
	Mode       string       `json:"mode"`
	Episode    int          `json:"episode"`
	SimTime    float64      `json:"sim_time"`
	Epsilon    float64      `json:"epsilon"`
	Decisions  int          `json:"decisions"`
	Downgrades int          `json:"downgrades"`
	TrainSteps int          `json:"train_steps"`
	Memory     buffer.Stats `json:"memory"`
}

// Recorder is safe to use from the control loop while the HTTP server reads
// it. A nil *Recorder discards everything.
type Recorder struct {
	registry   *prometheus.Registry
	decisions  *prometheus.CounterVec
	downgrades prometheus.Counter
	trainSteps prometheus.Counter
	episodes   prometheus.Counter
	epsilon    prometheus.Gauge
	reward     prometheus.Gauge
	queue      prometheus.Gauge
	simTime    prometheus.Gauge

	mu       sync.Mutex
	snapshot Snapshot
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Decisions applied to the traffic light, by effective action.",
		}, []string{"action"}),
		downgrades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downgrades_total",
			Help:      "Advance actions downgraded to hold because the light was not green.",
		}),
		trainSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "train_steps_total",
			Help:      "Minibatch updates of the online network.",
		}),
		episodes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "episodes_total",
			Help:      "Simulation episodes started.",
		}),
		epsilon: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "epsilon",
			Help:      "Current exploration rate.",
		}),
		reward: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reward",
			Help:      "Reward observed at the last decision.",
		}),
		queue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Vehicles on the incoming edges at the last decision.",
		}),
		simTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulation_time_seconds",
			Help:      "Simulation time at the last decision.",
		}),
	}
	r.registry.MustRegister(r.decisions, r.downgrades, r.trainSteps, r.episodes,
		r.epsilon, r.reward, r.queue, r.simTime)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) EpisodeStarted(runID, mode string, episode int) {
	if r == nil {
		return
	}
	r.episodes.Inc()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot.RunID = runID
	r.snapshot.Mode = mode
	r.snapshot.Episode = episode
	r.snapshot.SimTime = 0
}

// Decision records one control decision. action is the effective action's
// label; downgraded marks an advance that could not be applied.
func (r *Recorder) Decision(now float64, action string, downgraded bool, reward, queue float64) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(action).Inc()
	if downgraded {
		r.downgrades.Inc()
	}
	r.reward.Set(reward)
	r.queue.Set(queue)
	r.simTime.Set(now)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot.SimTime = now
	r.snapshot.Decisions++
	if downgraded {
		r.snapshot.Downgrades++
	}
}

func (r *Recorder) Learner(epsilon float64, trained bool, memory buffer.Stats) {
	if r == nil {
		return
	}
	r.epsilon.Set(epsilon)
	if trained {
		r.trainSteps.Inc()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot.Epsilon = epsilon
	r.snapshot.Memory = memory
	if trained {
		r.snapshot.TrainSteps++
	}
}

func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}
