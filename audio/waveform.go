// Package audio holds the waveform and tensor types used by the supervised
// text-to-audio datasets, plus the small set of transforms needed to turn a
// decoded clip into a fixed-shape training tensor.
//
// Layout and intended usage:
//
//   - Waveform stores decoded samples per channel as float32 in [-1, 1].
//   - Transform implementations (Resample, ToMono, PadOrTrim, PeakNormalize)
//     rewrite a Waveform; Compose chains them in order.
//   - Pipeline applies a Compose and converts the result into a Tensor of shape
//     (channels, samples), which is what the collator stacks into a batch.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyWaveform is returned when a waveform has no channels.
var ErrEmptyWaveform = errors.New("waveform has no channels")

// Waveform is a decoded audio clip. Samples is indexed [channel][sample].
type Waveform struct {
	Samples    [][]float32
	SampleRate int
}

// Channels returns the number of channels in the waveform.
func (w *Waveform) Channels() int {
	return len(w.Samples)
}

// Len returns the number of samples per channel (of the first channel).
func (w *Waveform) Len() int {
	if len(w.Samples) == 0 {
		return 0
	}
	return len(w.Samples[0])
}

// Duration returns the length of the clip. A zero sample rate yields zero.
func (w *Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(w.Len()) / float64(w.SampleRate) * float64(time.Second))
}

// Validate checks the waveform has at least one channel and that every
// channel has the same length.
func (w *Waveform) Validate() error {
	if w == nil || len(w.Samples) == 0 {
		return ErrEmptyWaveform
	}
	n := len(w.Samples[0])
	for c, ch := range w.Samples {
		if len(ch) != n {
			return fmt.Errorf("channel %d has %d samples, expected %d", c, len(ch), n)
		}
	}
	return nil
}

// Clone returns a deep copy of the waveform.
func (w *Waveform) Clone() *Waveform {
	out := &Waveform{SampleRate: w.SampleRate, Samples: make([][]float32, len(w.Samples))}
	for c, ch := range w.Samples {
		out.Samples[c] = append([]float32(nil), ch...)
	}
	return out
}

// FromArray builds a waveform from a decoded JSON value. A flat list of
// numbers is a mono clip; a list of lists is one list per channel.
func FromArray(v any, sampleRate int) (*Waveform, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("audio array must be a list, got %T", v)
	}
	if len(items) == 0 {
		return &Waveform{Samples: [][]float32{{}}, SampleRate: sampleRate}, nil
	}

	if _, nested := items[0].([]any); nested {
		w := &Waveform{SampleRate: sampleRate, Samples: make([][]float32, len(items))}
		for c, item := range items {
			ch, ok := item.([]any)
			if !ok {
				return nil, fmt.Errorf("channel %d must be a list, got %T", c, item)
			}
			samples, err := toFloat32s(ch)
			if err != nil {
				return nil, fmt.Errorf("channel %d: %w", c, err)
			}
			w.Samples[c] = samples
		}
		if err := w.Validate(); err != nil {
			return nil, err
		}
		return w, nil
	}

	samples, err := toFloat32s(items)
	if err != nil {
		return nil, err
	}
	return &Waveform{Samples: [][]float32{samples}, SampleRate: sampleRate}, nil
}

func toFloat32s(items []any) ([]float32, error) {
	out := make([]float32, len(items))
	for i, item := range items {
		switch n := item.(type) {
		case float64:
			out[i] = float32(n)
		case float32:
			out[i] = n
		case int:
			out[i] = float32(n)
		case int64:
			out[i] = float32(n)
		default:
			return nil, fmt.Errorf("sample %d is not a number (%T)", i, item)
		}
	}
	return out, nil
}
