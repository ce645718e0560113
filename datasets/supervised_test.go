package datasets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/Noofbiz/audioSFT/audio"
	"github.com/Noofbiz/audioSFT/template"
)

const (
	bosID = 1
	eosID = 2
	padID = 0
)

// wordTokenizer maps each whitespace separated word to 10+len(word).
type wordTokenizer struct {
	maxLen int
}

func (w wordTokenizer) Encode(text string, addSpecialTokens bool) ([]int64, error) {
	var ids []int64
	if addSpecialTokens {
		ids = append(ids, bosID)
	}
	for _, word := range strings.Fields(text) {
		ids = append(ids, int64(10+len(word)))
	}
	if addSpecialTokens {
		ids = append(ids, eosID)
	}
	return ids, nil
}

func (w wordTokenizer) PadTokenID() int64   { return padID }
func (w wordTokenizer) ModelMaxLength() int { return w.maxLen }

// writeJSONL writes one caption/audio record per line.
func writeJSONL(t *testing.T, path string, records []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create jsonl %s: %v", path, err)
	}
	defer f.Close()
	for _, r := range records {
		if _, err := f.WriteString(r + "\n"); err != nil {
			t.Fatalf("failed to write record: %v", err)
		}
	}
}

func record(caption string, samples ...float32) string {
	parts := make([]string, len(samples))
	for i, s := range samples {
		parts[i] = fmt.Sprint(s)
	}
	return fmt.Sprintf(`{"caption":%q,"audio":{"array":[%s],"sampling_rate":4}}`, caption, strings.Join(parts, ","))
}

// newTestDataset builds a dataset over a temporary JSONL file.
func newTestDataset(t *testing.T, records []string, processor Processor, size int) *SupervisedDataset {
	t.Helper()
	path := filepath.Join(t.TempDir(), "train.jsonl")
	writeJSONL(t, path, records)

	tpl, err := template.Get("AudioCaps")
	if err != nil {
		t.Fatalf("template lookup failed: %v", err)
	}
	ds, err := NewSupervisedDataset(context.Background(), Options{
		Path:      path,
		Template:  tpl,
		Tokenizer: wordTokenizer{maxLen: 16},
		Processor: processor,
		Size:      size,
	})
	if err != nil {
		t.Fatalf("NewSupervisedDataset failed: %v", err)
	}
	return ds
}

func TestNewSupervisedDataset_Preconditions(t *testing.T) {
	tpl, _ := template.Get("AudioCaps")
	if _, err := NewSupervisedDataset(context.Background(), Options{Template: tpl, Tokenizer: wordTokenizer{}}); err == nil ||
		!strings.Contains(err.Error(), "valid dataset path") {
		t.Fatalf("expected dataset path error, got %v", err)
	}
	if _, err := NewSupervisedDataset(context.Background(), Options{Path: "x.jsonl", Tokenizer: wordTokenizer{}}); err == nil ||
		!strings.Contains(err.Error(), "valid template") {
		t.Fatalf("expected template error, got %v", err)
	}
}

func TestSupervisedDataset_Example(t *testing.T) {
	ds := newTestDataset(t, []string{
		record("a dog barks", 0.1, 0.2, 0.3, 0.4),
		record("thunder", 0.5, 0.5, 0.5, 0.5),
	}, nil, 0)

	if ds.Len() != 2 {
		t.Fatalf("expected len 2, got %d", ds.Len())
	}

	s, err := ds.Example(0)
	if err != nil {
		t.Fatalf("Example(0) failed: %v", err)
	}
	// no special tokens during preprocessing
	wantIDs := []int64{11, 13, 15}
	if !slices.Equal(s.InputIDs, wantIDs) {
		t.Fatalf("unexpected input ids %v, want %v", s.InputIDs, wantIDs)
	}
	if !slices.Equal(s.Labels, wantIDs) {
		t.Fatalf("labels should copy input ids, got %v", s.Labels)
	}
	s.Labels[0] = IgnoreIndex
	if s.InputIDs[0] == IgnoreIndex {
		t.Fatalf("labels must not alias input ids")
	}
	if s.Audio == nil || !slices.Equal(s.Audio.Shape, []int{1, 4}) {
		t.Fatalf("unexpected audio %+v", s.Audio)
	}

	if _, err := ds.Example(2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := ds.Get(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange for negative index, got %v", err)
	}
}

func TestSupervisedDataset_SizeAndProcessor(t *testing.T) {
	ds := newTestDataset(t, []string{
		record("one", 0.1, 0.2),
		record("two", 0.1),
		record("three", 0.1),
	}, audio.NewPipeline(audio.PadOrTrim{Length: 3}), 2)

	if ds.Len() != 2 {
		t.Fatalf("size should limit dataset to 2 rows, got %d", ds.Len())
	}
	s, err := ds.Example(1)
	if err != nil {
		t.Fatalf("Example(1) failed: %v", err)
	}
	if !slices.Equal(s.Audio.Shape, []int{1, 3}) || !slices.Equal(s.Audio.Data, []float32{0.1, 0, 0}) {
		t.Fatalf("processor not applied: %+v", s.Audio)
	}
}

func TestSupervisedDataset_PreprocessError(t *testing.T) {
	ds := newTestDataset(t, []string{`{"caption":"no audio here"}`}, nil, 0)
	if _, err := ds.Example(0); err == nil || !strings.Contains(err.Error(), "audio field") {
		t.Fatalf("expected missing audio error, got %v", err)
	}
}

func TestTokenize(t *testing.T) {
	ds := NewFromRaw(nil, nil, wordTokenizer{maxLen: 3}, nil)

	ids, err := ds.Tokenize("a bb ccc dddd")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	// special tokens added, then truncated to model max length
	if !slices.Equal(ids, []int64{bosID, 11, 12}) {
		t.Fatalf("unexpected default tokenization %v", ids)
	}

	ids, _ = ds.Tokenize("a bb ccc dddd", WithSpecialTokens(false), WithMaxLength(2))
	if !slices.Equal(ids, []int64{11, 12}) {
		t.Fatalf("unexpected tokenization with max length %v", ids)
	}

	ids, _ = ds.Tokenize("a bb ccc dddd", WithoutTruncation())
	if len(ids) != 6 {
		t.Fatalf("expected 6 ids without truncation, got %v", ids)
	}

	unbounded := NewFromRaw(nil, nil, wordTokenizer{maxLen: 0}, nil)
	ids, _ = unbounded.Tokenize("a bb ccc dddd", WithSpecialTokens(false))
	if len(ids) != 4 {
		t.Fatalf("non-positive max length must not truncate, got %v", ids)
	}
}

func TestSupervisedDataset_Collator(t *testing.T) {
	ds := NewFromRaw(nil, nil, wordTokenizer{}, nil)
	if c := ds.Collator(); c.PadTokenID != padID {
		t.Fatalf("collator pad id %d, want %d", c.PadTokenID, padID)
	}
}
