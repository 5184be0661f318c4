package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"adaptive-signal-rl/internal/buffer"
)

func TestRecorder_Counts(t *testing.T) {
	rec := NewRecorder()
	rec.EpisodeStarted("run-1", "train", 2)
	rec.Decision(3.01, "hold", false, 4, 12)
	rec.Decision(6.02, "hold", true, 2, 14)
	rec.Decision(21.03, "advance", false, -1, 9)
	rec.Learner(0.5, true, buffer.Stats{Size: 3, Capacity: 200, Pushed: 3})
	rec.Learner(0.49, false, buffer.Stats{Size: 4, Capacity: 200, Pushed: 4})

	if got := testutil.ToFloat64(rec.decisions.WithLabelValues("hold")); got != 2 {
		t.Errorf("expected 2 hold decisions, got %v", got)
	}
	if got := testutil.ToFloat64(rec.downgrades); got != 1 {
		t.Errorf("expected 1 downgrade, got %v", got)
	}
	if got := testutil.ToFloat64(rec.trainSteps); got != 1 {
		t.Errorf("expected 1 train step, got %v", got)
	}
	if got := testutil.ToFloat64(rec.queue); got != 9 {
		t.Errorf("expected queue gauge 9, got %v", got)
	}

	snap := rec.Snapshot()
	if snap.RunID != "run-1" || snap.Episode != 2 || snap.Decisions != 3 || snap.Downgrades != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.Epsilon != 0.49 || snap.Memory.Size != 4 || snap.TrainSteps != 1 {
		t.Errorf("unexpected learner snapshot: %+v", snap)
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var rec *Recorder
	rec.EpisodeStarted("x", "serve", 0)
	rec.Decision(1, "hold", false, 0, 0)
	rec.Learner(1, true, buffer.Stats{})
	if snap := rec.Snapshot(); snap.Decisions != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

func TestHandler(t *testing.T) {
	rec := NewRecorder()
	rec.EpisodeStarted("run-2", "serve", 0)
	rec.Decision(3, "advance", false, 1, 2)
	h := Handler(rec)

	tests := []struct {
		name   string
		method string
		path   string
		status int
		body   string
	}{
		{"healthz", http.MethodGet, "/healthz", http.StatusOK, "ok"},
		{"stats", http.MethodGet, "/stats", http.StatusOK, `"run_id":"run-2"`},
		{"stats post", http.MethodPost, "/stats", http.StatusMethodNotAllowed, ""},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, `signalctl_decisions_total{action="advance"} 1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, w.Code)
			}
			if tt.body != "" && !strings.Contains(w.Body.String(), tt.body) {
				t.Errorf("expected body to contain %q, got %q", tt.body, w.Body.String())
			}
		})
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	var snap Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if snap.Decisions != 1 || snap.Mode != "serve" {
		t.Errorf("unexpected stats: %+v", snap)
	}
}
