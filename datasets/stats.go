package datasets

import (
	"context"
	"fmt"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// SampleInfo describes one raw example without building its tensors.
type SampleInfo struct {
	Tokens       int
	AudioSeconds float64
	Channels     int
	SampleRate   int
}

// Inspect formats and tokenizes row i and reports its sizes. Audio is decoded
// but not transformed.
func (d *SupervisedDataset) Inspect(i int) (SampleInfo, error) {
	if i < 0 || i >= d.Len() {
		return SampleInfo{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, d.Len())
	}
	raw, err := d.rawData.Row(i)
	if err != nil {
		return SampleInfo{}, fmt.Errorf("failed to read row %d: %w", i, err)
	}
	prompt, info, err := d.template.FormatDiffusionSupervisedSample(raw)
	if err != nil {
		return SampleInfo{}, fmt.Errorf("example %d: %w", i, err)
	}
	ids, err := d.Tokenize(prompt, WithSpecialTokens(false))
	if err != nil {
		return SampleInfo{}, fmt.Errorf("example %d: %w", i, err)
	}
	out := SampleInfo{Tokens: len(ids)}
	if info.Audio != nil {
		out.AudioSeconds = info.Audio.Duration().Seconds()
		out.Channels = info.Audio.Channels()
		out.SampleRate = info.Audio.SampleRate
	}
	return out, nil
}

// Stats summarizes token lengths and audio durations over a dataset.
type Stats struct {
	Samples      int
	TokenLengths []float64
	AudioSeconds []float64

	MinTokens, MaxTokens int
	MeanTokens           float64
	TotalAudioSeconds    float64
}

// CollectStats inspects every sample using workers goroutines (NumCPU when
// zero). progress, when non-nil, is called after each sample
// and must be safe for concurrent use.
func CollectStats(ctx context.Context, d *SupervisedDataset, workers int, progress func()) (*Stats, error) {
	n := d.Len()
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	infos := make([]SampleInfo, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			info, err := d.Inspect(i)
			if err != nil {
				return err
			}
			infos[i] = info
			if progress != nil {
				progress()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summarize(infos), nil
}

func summarize(infos []SampleInfo) *Stats {
	s := &Stats{Samples: len(infos)}
	if len(infos) == 0 {
		return s
	}
	s.TokenLengths = make([]float64, len(infos))
	s.AudioSeconds = make([]float64, len(infos))
	total := 0
	for i, info := range infos {
		s.TokenLengths[i] = float64(info.Tokens)
		s.AudioSeconds[i] = info.AudioSeconds
		s.TotalAudioSeconds += info.AudioSeconds
		total += info.Tokens
	}
	s.MinTokens = int(slices.Min(s.TokenLengths))
	s.MaxTokens = int(slices.Max(s.TokenLengths))
	s.MeanTokens = float64(total) / float64(len(infos))
	return s
}
