package datasets

import (
	"context"

	"github.com/Noofbiz/audioSFT/audio"
)

// This package adapts raw text-to-audio examples into training batches.
//
// Layout and intended usage:
//
// SupervisedDataset
//   - Wraps a source.RawDataset (local files, s3 mirror or hub dataset)
//   - Applies a template.Template to pull the prompt and the audio out of
//     each raw row
//   - Tokenizes the prompt with a caller supplied Tokenizer and turns the
//     audio into a tensor with a caller supplied Processor
//
// SupervisedCollator
//   - Right-pads token ids with the tokenizer's pad id and labels with
//     IgnoreIndex, builds the attention mask and stacks the audio tensors
//
// Loader
//   - Iterates the dataset in (optionally shuffled) batches and implements
//     gomlx's train.Dataset so batches can be fed to a gomlx training loop
//
// Rows are read and preprocessed lazily, one example at a time, so memory is
// bounded by the batch size rather than the dataset size.

// IgnoreIndex marks label positions excluded from the loss.
const IgnoreIndex int64 = -100

// Tokenizer encodes prompt text into token ids.
type Tokenizer interface {
	Encode(text string, addSpecialTokens bool) ([]int64, error)
	PadTokenID() int64
	ModelMaxLength() int
}

// Processor turns a decoded waveform into the audio tensor of one sample.
// audio.Pipeline implements it.
type Processor interface {
	Transform(w *audio.Waveform) (*audio.Tensor, error)
}

// Dataset is the minimal interface the Loader needs: an indexable source of
// preprocessed samples.
type Dataset interface {
	Len() int
	Example(i int) (SupervisedSample, error)
}

// ContextDataset is a Dataset whose examples can be read with a context, so
// cancelling a batch also cancels remote reads.
type ContextDataset interface {
	Dataset
	ExampleContext(ctx context.Context, i int) (SupervisedSample, error)
}

// exampleContext reads example i, passing ctx on when ds supports it.
func exampleContext(ctx context.Context, ds Dataset, i int) (SupervisedSample, error) {
	if cds, ok := ds.(ContextDataset); ok {
		return cds.ExampleContext(ctx, i)
	}
	if err := ctx.Err(); err != nil {
		return SupervisedSample{}, err
	}
	return ds.Example(i)
}
