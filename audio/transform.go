package audio

import (
	"fmt"
	"math"
)

// Transform rewrites a waveform. Implementations must not modify their input.
type Transform interface {
	Apply(w *Waveform) (*Waveform, error)
}

// Compose applies each transform in order.
type Compose []Transform

// Apply implements Transform.
func (c Compose) Apply(w *Waveform) (*Waveform, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	out := w
	for i, t := range c {
		next, err := t.Apply(out)
		if err != nil {
			return nil, fmt.Errorf("transform %d (%T): %w", i, t, err)
		}
		out = next
	}
	return out, nil
}

// Resample converts the waveform to Rate using linear interpolation.
type Resample struct {
	Rate int
}

// Apply implements Transform.
func (r Resample) Apply(w *Waveform) (*Waveform, error) {
	if r.Rate <= 0 {
		return nil, fmt.Errorf("invalid target sample rate %d", r.Rate)
	}
	if w.SampleRate <= 0 {
		return nil, fmt.Errorf("waveform has unknown sample rate")
	}
	if w.SampleRate == r.Rate {
		return w.Clone(), nil
	}

	inLen := w.Len()
	outLen := int(int64(inLen) * int64(r.Rate) / int64(w.SampleRate))
	ratio := float64(w.SampleRate) / float64(r.Rate)

	out := &Waveform{SampleRate: r.Rate, Samples: make([][]float32, len(w.Samples))}
	for c, in := range w.Samples {
		ch := make([]float32, outLen)
		for i := range outLen {
			// source position in the input stream (fractional)
			pos := float64(i) * ratio
			idx := int(pos)
			frac := float32(pos - float64(idx))
			s0 := sampleAt(in, idx)
			s1 := sampleAt(in, idx+1)
			ch[i] = s0 + frac*(s1-s0)
		}
		out.Samples[c] = ch
	}
	return out, nil
}

// sampleAt clamps idx to the last sample.
func sampleAt(buf []float32, idx int) float32 {
	if len(buf) == 0 {
		return 0
	}
	if idx >= len(buf) {
		idx = len(buf) - 1
	}
	return buf[idx]
}

// ToMono averages all channels into one.
type ToMono struct{}

// Apply implements Transform.
func (ToMono) Apply(w *Waveform) (*Waveform, error) {
	if w.Channels() == 1 {
		return w.Clone(), nil
	}
	n := w.Len()
	mono := make([]float32, n)
	inv := 1 / float32(w.Channels())
	for _, ch := range w.Samples {
		for i, s := range ch {
			mono[i] += s * inv
		}
	}
	return &Waveform{SampleRate: w.SampleRate, Samples: [][]float32{mono}}, nil
}

// PadOrTrim zero-pads or truncates every channel to exactly Length samples.
type PadOrTrim struct {
	Length int
}

// Apply implements Transform.
func (p PadOrTrim) Apply(w *Waveform) (*Waveform, error) {
	if p.Length <= 0 {
		return nil, fmt.Errorf("invalid target length %d", p.Length)
	}
	out := &Waveform{SampleRate: w.SampleRate, Samples: make([][]float32, len(w.Samples))}
	for c, ch := range w.Samples {
		fixed := make([]float32, p.Length)
		copy(fixed, ch)
		out.Samples[c] = fixed
	}
	return out, nil
}

// PeakNormalize scales the waveform so its largest absolute sample is Peak
// (1.0 when zero). Silent clips are returned unchanged.
type PeakNormalize struct {
	Peak float32
}

// Apply implements Transform.
func (p PeakNormalize) Apply(w *Waveform) (*Waveform, error) {
	target := p.Peak
	if target == 0 {
		target = 1
	}
	var peak float64
	for _, ch := range w.Samples {
		for _, s := range ch {
			peak = math.Max(peak, math.Abs(float64(s)))
		}
	}
	out := w.Clone()
	if peak == 0 {
		return out, nil
	}
	gain := target / float32(peak)
	for _, ch := range out.Samples {
		for i := range ch {
			ch[i] *= gain
		}
	}
	return out, nil
}

// Pipeline turns a waveform into a (channels, samples) tensor after applying
// its transforms. It is the audio processor handed to the datasets.
type Pipeline struct {
	Transforms Compose
}

// NewPipeline returns a Pipeline applying the given transforms in order.
func NewPipeline(transforms ...Transform) *Pipeline {
	return &Pipeline{Transforms: Compose(transforms)}
}

// Transform implements the datasets audio processor.
func (p *Pipeline) Transform(w *Waveform) (*Tensor, error) {
	out, err := p.Transforms.Apply(w)
	if err != nil {
		return nil, err
	}
	return FromWaveform(out)
}
