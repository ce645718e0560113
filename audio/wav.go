package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/riff"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when the input is not a readable PCM WAV file.
var ErrInvalidWAV = errors.New("invalid WAV file")

// WAV sample codings.
const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// DecodeWAV reads an integer PCM or 32-bit float WAV stream, including
// WAVE_FORMAT_EXTENSIBLE files with either coding, and returns it as a
// waveform with samples scaled to [-1, 1].
func DecodeWAV(r io.ReadSeeker) (*Waveform, error) {
	coding, err := wavCoding(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if coding != wavFormatPCM && coding != wavFormatFloat {
		return nil, fmt.Errorf("%w: unsupported audio format %d (only PCM and IEEE float)", ErrInvalidWAV, coding)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}
	channels := buf.Format.NumChannels
	if channels <= 0 {
		return nil, fmt.Errorf("%w: no channels", ErrInvalidWAV)
	}

	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(d.BitDepth)
	}
	sample, err := sampleDecoder(coding, depth)
	if err != nil {
		return nil, err
	}

	frames := len(buf.Data) / channels
	w := &Waveform{SampleRate: buf.Format.SampleRate, Samples: make([][]float32, channels)}
	for c := range channels {
		w.Samples[c] = make([]float32, frames)
	}
	for i := range frames {
		for c := range channels {
			w.Samples[c][i] = sample(buf.Data[i*channels+c])
		}
	}
	return w, nil
}

// sampleDecoder maps a decoded integer sample to a float in [-1, 1].
func sampleDecoder(coding uint16, depth int) (func(int) float32, error) {
	if coding == wavFormatFloat {
		if depth != 32 {
			return nil, fmt.Errorf("%w: unsupported float bit depth %d", ErrInvalidWAV, depth)
		}
		// the decoder hands back the raw bits of each float
		return func(v int) float32 { return math.Float32frombits(uint32(int32(v))) }, nil
	}
	if depth <= 0 || depth > 32 {
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, depth)
	}
	scale := float32(int64(1) << (depth - 1))
	if depth == 8 {
		// 8-bit PCM is unsigned
		return func(v int) float32 { return float32(v-128) / scale }, nil
	}
	return func(v int) float32 { return float32(v) / scale }, nil
}

// wavCoding returns the sample coding from the fmt chunk. For extensible
// files it is the first two bytes of the SubFormat GUID.
func wavCoding(r io.ReadSeeker) (uint16, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	p := riff.New(r)
	if err := p.ParseHeaders(); err != nil {
		return 0, err
	}
	for {
		ch, err := p.NextChunk()
		if err != nil {
			return 0, fmt.Errorf("fmt chunk not found: %w", err)
		}
		if ch.ID != riff.FmtID {
			ch.Drain()
			continue
		}
		var format uint16
		if err := ch.ReadLE(&format); err != nil {
			return 0, err
		}
		if format != wavFormatExtensible {
			return format, nil
		}
		var ext struct {
			Channels      uint16
			SampleRate    uint32
			ByteRate      uint32
			BlockAlign    uint16
			BitsPerSample uint16
			ExtSize       uint16
			ValidBits     uint16
			ChannelMask   uint32
			SubFormat     [16]byte
		}
		if err := ch.ReadLE(&ext); err != nil {
			return 0, fmt.Errorf("short extensible fmt chunk: %w", err)
		}
		return binary.LittleEndian.Uint16(ext.SubFormat[:2]), nil
	}
}

// DecodeWAVBytes decodes an in-memory WAV file.
func DecodeWAVBytes(b []byte) (*Waveform, error) {
	return DecodeWAV(bytes.NewReader(b))
}

// LoadWAV opens and decodes the WAV file at path.
func LoadWAV(path string) (*Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio %s: %w", path, err)
	}
	defer f.Close()

	w, err := DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return w, nil
}
