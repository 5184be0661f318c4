// Package report writes episode results as YAML documents.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"adaptive-signal-rl/internal/control"
	"adaptive-signal-rl/internal/observe"
)

type Summary struct {
	Samples     int     `yaml:"samples"`
	MeanQueue   float64 `yaml:"mean_queue"`
	MaxQueue    float64 `yaml:"max_queue"`
	MeanOutflow float64 `yaml:"mean_outflow"`
	MeanDelay   float64 `yaml:"mean_delay"`
	GreenExits  int     `yaml:"green_exits"`
	MeanMaxout  float64 `yaml:"mean_maxout"`
}

type Document struct {
	Summary Summary         `yaml:"summary"`
	Result  *control.Result `yaml:"result"`
}

func Summarize(res *control.Result) Summary {
	s := Summary{
		Samples:     len(res.InCounts),
		MeanQueue:   mean(res.InCounts),
		MeanOutflow: mean(res.OutCounts),
		MeanDelay:   mean(res.InDelays),
		GreenExits:  len(res.Maxouts),
	}
	if len(res.InCounts) > 0 {
		s.MaxQueue = lo.MaxBy(res.InCounts, func(a, b observe.Sample) bool {
			return a.Value > b.Value
		}).Value
	}
	if len(res.Maxouts) > 0 {
		s.MeanMaxout = lo.SumBy(res.Maxouts, func(r observe.PhaseRecord) float64 {
			return r.Maxout
		}) / float64(len(res.Maxouts))
	}
	return s
}

func mean(series []observe.Sample) float64 {
	if len(series) == 0 {
		return 0
	}
	return lo.SumBy(series, func(s observe.Sample) float64 { return s.Value }) / float64(len(series))
}

func Encode(w io.Writer, res *control.Result) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Document{Summary: Summarize(res), Result: res}); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return enc.Close()
}

// FileName is <mode>-<episode>-<run id>.yaml.
func FileName(res *control.Result) string {
	return fmt.Sprintf("%s-%03d-%s.yaml", res.Mode, res.Episode, res.RunID)
}

// Write stores res under dir and returns the file path.
func Write(dir string, res *control.Result) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(dir, FileName(res))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Encode(f, res); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	return path, nil
}

func Read(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return doc, nil
}
