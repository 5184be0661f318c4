package sim

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"

	"adaptive-signal-rl/internal/intersection"
	"adaptive-signal-rl/internal/scenario"
)

func newTestSynthetic(t *testing.T) (*Synthetic, StartConfig) {
	t.Helper()
	routes := filepath.Join(t.TempDir(), "demands.rou.xml")
	demand := scenario.Demand{"LR": 3600, "RL": 3600, "NS": 3600, "SN": 3600}
	if err := scenario.WriteFile(routes, intersection.Default(), demand); err != nil {
		t.Fatalf("failed to write routes: %v", err)
	}
	s := NewSynthetic(SyntheticOptions{
		TrafficLightID: "juncInterTL",
		Program: []PhaseSpec{
			{Duration: 20, Green: []string{"edge_NS_1", "edge_SN_1"}},
			{Duration: 2},
			{Duration: 2},
			{Duration: 20, Green: []string{"edge_LR_1", "edge_RL_1"}},
		},
		TravelTime:     4,
		ExitTime:       4,
		SaturationFlow: 7200,
	}, logr.Discard())
	return s, StartConfig{RouteFile: routes, StepLength: 0.5, Quiet: true}
}

func stepN(t *testing.T, s Simulator, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := s.Step(); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}
}

func TestSynthetic_Lifecycle(t *testing.T) {
	s, cfg := newTestSynthetic(t)

	if err := s.Step(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted before start, got %v", err)
	}
	if err := s.Start(context.Background(), cfg); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(context.Background(), cfg); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := s.Time(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	if err := s.Start(context.Background(), cfg); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	now, err := s.Time()
	if err != nil || now != 0 {
		t.Errorf("expected time 0 after restart, got %v (%v)", now, err)
	}
}

func TestSynthetic_QueuesOnRedDischargesOnGreen(t *testing.T) {
	s, cfg := newTestSynthetic(t)
	if err := s.Start(context.Background(), cfg); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Close()

	stepN(t, s, 20)
	now, _ := s.Time()
	if now != 10 {
		t.Fatalf("expected t=10, got %v", now)
	}

	halted, _ := s.HaltedCount("edge_LR_1")
	if halted != 6 {
		t.Errorf("expected 6 halted vehicles on red approach, got %d", halted)
	}
	count, _ := s.VehicleCount("edge_LR_1")
	if count < halted {
		t.Errorf("vehicle count %d below halted count %d", count, halted)
	}
	if wait, _ := s.WaitingTime("edge_LR_1"); wait <= 0 {
		t.Errorf("expected positive waiting time on red approach, got %v", wait)
	}

	if halted, _ := s.HaltedCount("edge_NS_1"); halted != 0 {
		t.Errorf("expected no queue on green approach, got %d", halted)
	}
	if wait, _ := s.WaitingTime("edge_NS_1"); wait != 0 {
		t.Errorf("expected zero waiting time on green approach, got %v", wait)
	}
	if out, _ := s.VehicleCount("edge_NS_2"); out == 0 {
		t.Error("expected discharged vehicles on the outgoing edge")
	}
}

func TestSynthetic_PhaseProgram(t *testing.T) {
	s, cfg := newTestSynthetic(t)
	if err := s.Start(context.Background(), cfg); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Close()

	stepN(t, s, 39)
	if phase, _ := s.Phase("juncInterTL"); phase != 0 {
		t.Errorf("expected phase 0 at t=19.5, got %d", phase)
	}
	stepN(t, s, 1)
	if phase, _ := s.Phase("juncInterTL"); phase != 1 {
		t.Errorf("expected phase 1 at t=20, got %d", phase)
	}
	stepN(t, s, 8)
	if phase, _ := s.Phase("juncInterTL"); phase != 3 {
		t.Errorf("expected phase 3 at t=24, got %d", phase)
	}
	stepN(t, s, 40)
	if phase, _ := s.Phase("juncInterTL"); phase != 0 {
		t.Errorf("expected wrap to phase 0 at t=44, got %d", phase)
	}
}

func TestSynthetic_SetPhase(t *testing.T) {
	s, cfg := newTestSynthetic(t)
	if err := s.Start(context.Background(), cfg); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Close()

	if err := s.SetPhase("juncInterTL", 3); err != nil {
		t.Fatalf("SetPhase failed: %v", err)
	}
	stepN(t, s, 39)
	if phase, _ := s.Phase("juncInterTL"); phase != 3 {
		t.Errorf("expected phase 3 to run its full duration, got %d", phase)
	}

	tests := []struct {
		name  string
		tls   string
		index int
		want  error
	}{
		{"past end", "juncInterTL", 4, ErrPhaseOutOfRange},
		{"negative", "juncInterTL", -1, ErrPhaseOutOfRange},
		{"unknown light", "other", 0, ErrUnknownTrafficLight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.SetPhase(tt.tls, tt.index); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSynthetic_UnknownEdge(t *testing.T) {
	s, cfg := newTestSynthetic(t)
	if err := s.Start(context.Background(), cfg); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Close()

	if _, err := s.VehicleCount("nowhere"); !errors.Is(err, ErrUnknownEdge) {
		t.Errorf("expected ErrUnknownEdge, got %v", err)
	}
	if _, err := s.WaitingTime("nowhere"); !errors.Is(err, ErrUnknownEdge) {
		t.Errorf("expected ErrUnknownEdge, got %v", err)
	}
}

func TestSynthetic_StartErrors(t *testing.T) {
	s, cfg := newTestSynthetic(t)

	bad := cfg
	bad.StepLength = 0
	if err := s.Start(context.Background(), bad); err == nil {
		t.Error("expected error for zero step length")
	}

	missing := cfg
	missing.RouteFile = filepath.Join(t.TempDir(), "missing.rou.xml")
	if err := s.Start(context.Background(), missing); err == nil {
		t.Error("expected error for missing route file")
	}

	empty := NewSynthetic(SyntheticOptions{TrafficLightID: "juncInterTL"}, logr.Discard())
	if err := empty.Start(context.Background(), cfg); err == nil {
		t.Error("expected error for empty program")
	}
}

func TestStartConfig_Command(t *testing.T) {
	cfg := StartConfig{
		NetworkFile: "map.net.xml",
		RouteFile:   "trainDemands.rou.xml",
		StepLength:  0.01,
		Quiet:       true,
	}
	want := []string{"sumo", "-n", "map.net.xml", "-r", "trainDemands.rou.xml", "--step-length", "0.01", "-S", "-d", "0.0", "-Q", "--no-step-log"}
	got := cfg.Command()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d = %q, want %q", i, got[i], want[i])
		}
	}

	cfg.GUI = true
	cfg.Delay = 50
	cfg.Quiet = false
	got = cfg.Command()
	if got[0] != "sumo-gui" || got[9] != "50.0" || got[len(got)-1] != "-Q" {
		t.Errorf("unexpected gui command: %v", got)
	}
}
