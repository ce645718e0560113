// Package tokenizer adapts Hugging Face tokenizers (through the
// daulet/tokenizers bindings) to the datasets.Tokenizer interface.
//
// The bindings link against libtokenizers; build with
// CGO_LDFLAGS="-L/path/to/lib" as described by the bindings.
package tokenizer

import (
	"errors"
	"fmt"

	"github.com/daulet/tokenizers"
)

// DefaultModelMaxLength mirrors the value used by most text encoders of
// text-to-audio models.
const DefaultModelMaxLength = 512

// Options are the tokenizer settings not stored in tokenizer.json.
type Options struct {
	// PadTokenID is the id written into padded positions.
	PadTokenID int64
	// ModelMaxLength bounds encoded sequences. Zero uses DefaultModelMaxLength.
	ModelMaxLength int
}

// HF is a loaded Hugging Face tokenizer.
type HF struct {
	tk   *tokenizers.Tokenizer
	opts Options
}

// FromFile loads a tokenizer.json file.
func FromFile(path string, opts Options) (*HF, error) {
	tk, err := tokenizers.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", path, err)
	}
	return newHF(tk, opts), nil
}

// FromPretrained downloads (or reuses the cached) tokenizer of a hub model.
func FromPretrained(model string, opts Options) (*HF, error) {
	tk, err := tokenizers.FromPretrained(model)
	if err != nil {
		return nil, fmt.Errorf("failed to load pretrained tokenizer %s: %w", model, err)
	}
	return newHF(tk, opts), nil
}

func newHF(tk *tokenizers.Tokenizer, opts Options) *HF {
	if opts.ModelMaxLength == 0 {
		opts.ModelMaxLength = DefaultModelMaxLength
	}
	return &HF{tk: tk, opts: opts}
}

// Encode returns the token ids of text.
func (h *HF) Encode(text string, addSpecialTokens bool) ([]int64, error) {
	if h.tk == nil {
		return nil, errors.New("tokenizer is closed")
	}
	ids, _ := h.tk.Encode(text, addSpecialTokens)
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out, nil
}

// PadTokenID returns the configured padding id.
func (h *HF) PadTokenID() int64 { return h.opts.PadTokenID }

// ModelMaxLength returns the maximum sequence length.
func (h *HF) ModelMaxLength() int { return h.opts.ModelMaxLength }

// VocabSize returns the size of the vocabulary.
func (h *HF) VocabSize() int { return int(h.tk.VocabSize()) }

// Close releases the native tokenizer.
func (h *HF) Close() error {
	if h.tk == nil {
		return nil
	}
	err := h.tk.Close()
	h.tk = nil
	return err
}
