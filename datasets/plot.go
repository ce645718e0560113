package datasets

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// WriteHistograms saves token length and audio duration histograms as PNG
// files in dir and returns their paths.
func WriteHistograms(s *Stats, dir string, bins int) ([]string, error) {
	if s.Samples == 0 {
		return nil, fmt.Errorf("no samples to plot")
	}
	if bins <= 0 {
		bins = 20
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plot dir %s: %w", dir, err)
	}

	charts := []struct {
		file, title, xLabel string
		values              []float64
	}{
		{"token_lengths.png", "Prompt token lengths", "tokens", s.TokenLengths},
		{"audio_seconds.png", "Audio durations", "seconds", s.AudioSeconds},
	}

	var paths []string
	for _, c := range charts {
		p := plot.New()
		p.Title.Text = c.title
		p.X.Label.Text = c.xLabel
		p.Y.Label.Text = "samples"

		h, err := plotter.NewHist(plotter.Values(c.values), bins)
		if err != nil {
			return nil, fmt.Errorf("failed to build histogram %s: %w", c.file, err)
		}
		p.Add(h)

		path := filepath.Join(dir, c.file)
		if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
