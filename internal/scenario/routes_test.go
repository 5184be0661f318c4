package scenario

import (
	"bytes"
	"errors"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"adaptive-signal-rl/internal/intersection"
)

func TestBuild(t *testing.T) {
	layout := intersection.Default()
	doc := Build(layout, Demand{"LR": 300, "RL": 300, "NS": 1500, "SN": 1500})

	if len(doc.Routes) != 4 || len(doc.Flows) != 4 {
		t.Fatalf("expected 4 routes and 4 flows, got %d and %d", len(doc.Routes), len(doc.Flows))
	}
	if doc.Routes[2].Edges != "edge_NS_1 edge_NS_2" {
		t.Errorf("unexpected NS route edges: %q", doc.Routes[2].Edges)
	}
	if doc.Flows[2].ID != "flow_NS" || doc.Flows[2].VehsPerHour != 1500 {
		t.Errorf("unexpected NS flow: %+v", doc.Flows[2])
	}
	if doc.Flows[0].Route != "route_0" || doc.Flows[0].End != 86400 {
		t.Errorf("unexpected LR flow: %+v", doc.Flows[0])
	}
}

func TestWriteFileLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demands.rou.xml")
	layout := intersection.Default()
	if err := WriteFile(path, layout, Demand{"LR": 250, "RL": 260, "NS": 1400, "SN": 1410}); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	flows, err := doc.EdgeFlows()
	if err != nil {
		t.Fatalf("EdgeFlows failed: %v", err)
	}
	if len(flows) != 4 {
		t.Fatalf("expected 4 flows, got %d", len(flows))
	}
	sn := flows[3]
	if sn.Incoming != "edge_SN_1" || sn.Outgoing != "edge_SN_2" || sn.VehsPerHour != 1410 {
		t.Errorf("unexpected SN flow: %+v", sn)
	}
}

func TestEncode_Header(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, Build(intersection.Default(), Demand{})); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "<?xml") {
		t.Errorf("expected XML header, got %q", out[:20])
	}
	if !strings.Contains(out, `vehsPerHour="0"`) {
		t.Errorf("expected zero flow rate for missing approaches:\n%s", out)
	}
}

func TestEdgeFlows_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{
			name: "no flows",
			doc:  `<routes><route id="r" edges="a b"/></routes>`,
			want: ErrNoFlows,
		},
		{
			name: "unknown route",
			doc:  `<routes><route id="r" edges="a b"/><flow id="f" route="x" begin="0" end="10" vehsPerHour="5"/></routes>`,
			want: ErrUnknownRoute,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Decode(strings.NewReader(tt.doc))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if _, err := doc.EdgeFlows(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDraw(t *testing.T) {
	layout := intersection.Default()
	rng := rand.New(rand.NewSource(3))
	high := FlowRange{Min: 1200, Max: 2000}
	low := FlowRange{Min: 200, Max: 700}

	for i := 0; i < 50; i++ {
		d := Draw(rng, layout, []string{"NS", "SN"}, high, low)
		if d["NS"] != d["SN"] || d["LR"] != d["RL"] {
			t.Fatalf("expected paired rates, got %v", d)
		}
		if d["NS"] < 1200 || d["NS"] >= 2000 {
			t.Errorf("high rate %v outside [1200,2000)", d["NS"])
		}
		if d["LR"] < 200 || d["LR"] >= 700 {
			t.Errorf("low rate %v outside [200,700)", d["LR"])
		}
	}
}

func TestFlowRange_Degenerate(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if got := (FlowRange{Min: 500, Max: 500}).draw(rng); got != 500 {
		t.Errorf("expected 500, got %v", got)
	}
}
