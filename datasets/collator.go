package datasets

import (
	"errors"
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/audioSFT/audio"
	"github.com/Noofbiz/audioSFT/device"
)

var (
	// ErrEmptyBatch is returned when collating zero samples.
	ErrEmptyBatch = errors.New("cannot collate an empty batch")
	// ErrMixedAudio is returned when only some samples carry audio.
	ErrMixedAudio = errors.New("batch mixes samples with and without audio")
)

// SupervisedBatch is a padded batch stored in flat row-major buffers.
type SupervisedBatch struct {
	InputIDs      []int64 // size = (B, L)
	Labels        []int64 // size = (B, L)
	AttentionMask []bool  // size = (B, L)
	// Audio is the stacked audio, size = (B, C, N), or nil.
	Audio *audio.Tensor

	BatchSize int
	SeqLen    int

	// Device is where the batch is meant to live during training.
	Device device.Device
}

// Row returns the padded input ids of row i.
func (b *SupervisedBatch) Row(i int) []int64 {
	return b.InputIDs[i*b.SeqLen : (i+1)*b.SeqLen]
}

// LabelRow returns the padded labels of row i.
func (b *SupervisedBatch) LabelRow(i int) []int64 {
	return b.Labels[i*b.SeqLen : (i+1)*b.SeqLen]
}

// MaskRow returns the attention mask of row i.
func (b *SupervisedBatch) MaskRow(i int) []bool {
	return b.AttentionMask[i*b.SeqLen : (i+1)*b.SeqLen]
}

// ToGomlxTensors converts the batch into gomlx tensors. Inputs are
// [input_ids, attention_mask] followed by audio when present; labels are
// [labels].
func (b *SupervisedBatch) ToGomlxTensors() (inputs []*tensors.Tensor, labels []*tensors.Tensor) {
	inputs = []*tensors.Tensor{
		tensors.FromFlatDataAndDimensions(b.InputIDs, b.BatchSize, b.SeqLen),
		tensors.FromFlatDataAndDimensions(b.AttentionMask, b.BatchSize, b.SeqLen),
	}
	if b.Audio != nil {
		inputs = append(inputs, b.Audio.ToGomlx())
	}
	labels = []*tensors.Tensor{
		tensors.FromFlatDataAndDimensions(b.Labels, b.BatchSize, b.SeqLen),
	}
	return inputs, labels
}

// SupervisedCollator assembles samples into padded batches.
type SupervisedCollator struct {
	PadTokenID int64
	// Device overrides device.Current() when set.
	Device *device.Device
}

// NewSupervisedCollator returns a collator padding input ids with padTokenID.
func NewSupervisedCollator(padTokenID int64) *SupervisedCollator {
	return &SupervisedCollator{PadTokenID: padTokenID}
}

// Collate pads and stacks samples into one batch.
func (c *SupervisedCollator) Collate(samples []SupervisedSample) (*SupervisedBatch, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyBatch
	}

	ids := make([][]int64, len(samples))
	labels := make([][]int64, len(samples))
	for i, s := range samples {
		if len(s.InputIDs) != len(s.Labels) {
			return nil, fmt.Errorf("sample %d has %d input ids but %d labels", i, len(s.InputIDs), len(s.Labels))
		}
		ids[i] = s.InputIDs
		labels[i] = s.Labels
	}

	flatIDs, seqLen := rightPadding(ids, c.PadTokenID)
	flatLabels, _ := rightPadding(labels, IgnoreIndex)

	stacked, err := stackAudio(samples)
	if err != nil {
		return nil, err
	}

	dev := device.Current()
	if c.Device != nil {
		dev = *c.Device
	}

	return &SupervisedBatch{
		InputIDs:      flatIDs,
		Labels:        flatLabels,
		AttentionMask: paddingMask(ids, seqLen),
		Audio:         stacked,
		BatchSize:     len(samples),
		SeqLen:        seqLen,
		Device:        dev,
	}, nil
}

func stackAudio(samples []SupervisedSample) (*audio.Tensor, error) {
	withAudio := 0
	for _, s := range samples {
		if s.Audio != nil {
			withAudio++
		}
	}
	switch withAudio {
	case 0:
		return nil, nil
	case len(samples):
	default:
		return nil, fmt.Errorf("%w: %d of %d samples have audio", ErrMixedAudio, withAudio, len(samples))
	}

	ts := make([]*audio.Tensor, len(samples))
	for i, s := range samples {
		ts[i] = s.Audio
	}
	stacked, err := audio.Stack(ts)
	if err != nil {
		return nil, fmt.Errorf("failed to stack audio: %w", err)
	}
	return stacked, nil
}
