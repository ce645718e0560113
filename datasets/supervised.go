package datasets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Noofbiz/audioSFT/audio"
	"github.com/Noofbiz/audioSFT/source"
	"github.com/Noofbiz/audioSFT/template"
)

// ErrIndexOutOfRange is returned by Example for indices outside [0, Len).
var ErrIndexOutOfRange = errors.New("index out of range")

// SupervisedSample is one preprocessed example.
type SupervisedSample struct {
	InputIDs []int64 // size = (L,)
	Labels   []int64 // size = (L,)
	// Audio is the processed target clip, nil when the example has none.
	Audio *audio.Tensor
}

// Options configures NewSupervisedDataset.
type Options struct {
	// Path names the dataset (local path, s3:// URI or hub id). Required.
	Path string
	// Template formats raw rows. Required.
	Template template.Template
	// Tokenizer encodes prompts. Required.
	Tokenizer Tokenizer
	// Processor transforms audio. Nil lays the waveform out as (C, N).
	Processor Processor

	// Name is the dataset configuration.
	Name string
	// Size limits the dataset to its first Size rows when positive.
	Size int
	// Split selects the split, "train" when empty.
	Split string
	// DataFiles selects files within Path.
	DataFiles string
	// OptionalArgs are extra key=value loader options.
	OptionalArgs []string

	// Source settings that have no equivalent above.
	CacheDir    string
	Objects     source.ObjectStore
	HubEndpoint string
}

// SupervisedDataset serves tokenized text-to-audio samples from a raw
// dataset.
type SupervisedDataset struct {
	tokenizer  Tokenizer
	transforms Processor
	template   template.Template
	rawData    source.RawDataset
}

// NewSupervisedDataset loads the raw rows named by opts.
func NewSupervisedDataset(ctx context.Context, opts Options) (*SupervisedDataset, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("you must set a valid dataset path, got %q", opts.Path)
	}
	if opts.Template == nil {
		return nil, errors.New("you must set a valid template")
	}
	if opts.Tokenizer == nil {
		return nil, errors.New("you must set a tokenizer")
	}

	raw, err := source.Load(ctx, source.Spec{
		Path:        opts.Path,
		Name:        opts.Name,
		Split:       opts.Split,
		DataFiles:   opts.DataFiles,
		Args:        opts.OptionalArgs,
		CacheDir:    opts.CacheDir,
		Objects:     opts.Objects,
		HubEndpoint: opts.HubEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", opts.Path, err)
	}
	if opts.Size > 0 {
		raw = source.Select(raw, opts.Size)
	}
	slog.Info("loaded supervised dataset", "path", opts.Path, "split", opts.Split, "rows", raw.Len())

	return NewFromRaw(raw, opts.Template, opts.Tokenizer, opts.Processor), nil
}

// NewFromRaw wraps an already loaded raw dataset.
func NewFromRaw(raw source.RawDataset, tpl template.Template, tk Tokenizer, processor Processor) *SupervisedDataset {
	return &SupervisedDataset{
		tokenizer:  tk,
		transforms: processor,
		template:   tpl,
		rawData:    raw,
	}
}

// Preprocess formats, tokenizes and transforms one raw row. Labels are a
// copy of the input ids.
func (d *SupervisedDataset) Preprocess(raw source.Row) (SupervisedSample, error) {
	prompt, info, err := d.template.FormatDiffusionSupervisedSample(raw)
	if err != nil {
		return SupervisedSample{}, err
	}

	ids, err := d.Tokenize(prompt, WithSpecialTokens(false))
	if err != nil {
		return SupervisedSample{}, err
	}
	tensor, err := d.ProcessAudio(info.Audio)
	if err != nil {
		return SupervisedSample{}, fmt.Errorf("failed to process audio: %w", err)
	}

	return SupervisedSample{
		InputIDs: ids,
		Labels:   append([]int64(nil), ids...),
		Audio:    tensor,
	}, nil
}

// ProcessAudio applies the dataset's processor. A nil waveform yields a nil
// tensor.
func (d *SupervisedDataset) ProcessAudio(w *audio.Waveform) (*audio.Tensor, error) {
	if w == nil {
		return nil, nil
	}
	if d.transforms == nil {
		return audio.FromWaveform(w)
	}
	return d.transforms.Transform(w)
}

// tokenizeConfig holds the settings of a Tokenize call.
type tokenizeConfig struct {
	addSpecialTokens bool
	truncate         bool
	maxLength        int
}

// TokenizeOption changes how Tokenize encodes text.
type TokenizeOption func(*tokenizeConfig)

// WithSpecialTokens controls whether BOS/EOS style tokens are added (default true).
func WithSpecialTokens(add bool) TokenizeOption {
	return func(c *tokenizeConfig) { c.addSpecialTokens = add }
}

// WithMaxLength truncates to n tokens instead of the tokenizer's model max length.
func WithMaxLength(n int) TokenizeOption {
	return func(c *tokenizeConfig) { c.maxLength = n }
}

// WithoutTruncation keeps every token.
func WithoutTruncation() TokenizeOption {
	return func(c *tokenizeConfig) { c.truncate = false }
}

// Tokenize encodes text into token ids. By default special tokens are added
// and the result is truncated to the tokenizer's model max length. No
// padding is applied.
func (d *SupervisedDataset) Tokenize(text string, opts ...TokenizeOption) ([]int64, error) {
	cfg := tokenizeConfig{addSpecialTokens: true, truncate: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxLength == 0 {
		cfg.maxLength = d.tokenizer.ModelMaxLength()
	}

	ids, err := d.tokenizer.Encode(text, cfg.addSpecialTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize: %w", err)
	}
	if cfg.truncate && cfg.maxLength > 0 && len(ids) > cfg.maxLength {
		ids = ids[:cfg.maxLength]
	}
	return ids, nil
}

// Example reads and preprocesses the sample at index i.
func (d *SupervisedDataset) Example(i int) (SupervisedSample, error) {
	return d.ExampleContext(context.Background(), i)
}

// ExampleContext is Example with a context for remote reads. A sample whose
// remote audio is refused is retried once with a refreshed row.
func (d *SupervisedDataset) ExampleContext(ctx context.Context, i int) (SupervisedSample, error) {
	if i < 0 || i >= d.Len() {
		return SupervisedSample{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, d.Len())
	}
	raw, err := source.RowContext(ctx, d.rawData, i)
	if err != nil {
		return SupervisedSample{}, fmt.Errorf("failed to read row %d: %w", i, err)
	}
	sample, err := d.Preprocess(raw)
	if errors.Is(err, template.ErrAssetUnavailable) {
		fresh, rerr := raw.Refresh(ctx)
		if rerr == nil {
			slog.Debug("retrying example with refreshed row", "index", i)
			sample, err = d.Preprocess(fresh)
		}
	}
	if err != nil {
		return SupervisedSample{}, fmt.Errorf("example %d: %w", i, err)
	}
	return sample, nil
}

// Get is an alias of Example.
func (d *SupervisedDataset) Get(i int) (SupervisedSample, error) {
	return d.Example(i)
}

// Len returns the number of samples in the dataset.
func (d *SupervisedDataset) Len() int {
	return d.rawData.Len()
}

// Collator returns a collator padding with the tokenizer's pad id.
func (d *SupervisedDataset) Collator() *SupervisedCollator {
	return NewSupervisedCollator(d.tokenizer.PadTokenID())
}
