package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"adaptive-signal-rl/internal/control"
	"adaptive-signal-rl/internal/observe"
	"adaptive-signal-rl/internal/scenario"
)

func sampleResult() *control.Result {
	return &control.Result{
		RunID:       "8f2c",
		Mode:        control.ModeServe,
		Episode:     2,
		Demand:      scenario.Demand{"NS": 1500, "LR": 300},
		SimTime:     60.01,
		Decisions:   7,
		Holds:       5,
		Advances:    2,
		Downgrades:  1,
		TotalReward: 12.5,
		InCounts:    []observe.Sample{{Time: 3, Value: 4}, {Time: 6, Value: 10}, {Time: 9, Value: 7}},
		OutCounts:   []observe.Sample{{Time: 3, Value: 1}, {Time: 6, Value: 2}, {Time: 9, Value: 3}},
		InDelays:    []observe.Sample{{Time: 3, Value: 0}, {Time: 6, Value: 6}, {Time: 9, Value: 3}},
		Maxouts:     []observe.PhaseRecord{{Time: 21, Maxout: 11}, {Time: 44, Maxout: 5}},
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		res  *control.Result
		want Summary
	}{
		{
			name: "populated",
			res:  sampleResult(),
			want: Summary{Samples: 3, MeanQueue: 7, MaxQueue: 10, MeanOutflow: 2, MeanDelay: 3, GreenExits: 2, MeanMaxout: 8},
		},
		{
			name: "empty",
			res:  &control.Result{Mode: control.ModeFixed},
			want: Summary{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summarize(tt.res); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestWriteRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	res := sampleResult()

	path, err := Write(dir, res)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if filepath.Base(path) != "serve-002-8f2c.yaml" {
		t.Errorf("unexpected file name %s", filepath.Base(path))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	for _, key := range []string{"summary:", "mean_queue: 7", "in_counts:", "maxout: 11", "run_id: 8f2c"} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("expected output to contain %q", key)
		}
	}

	doc, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if doc.Result.Decisions != 7 || len(doc.Result.InCounts) != 3 || doc.Result.Demand["NS"] != 1500 {
		t.Errorf("unexpected result after reload: %+v", doc.Result)
	}
	if doc.Summary.MaxQueue != 10 {
		t.Errorf("unexpected summary after reload: %+v", doc.Summary)
	}
}
