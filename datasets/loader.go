package datasets

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"runtime"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"golang.org/x/sync/errgroup"
)

var _ train.Dataset = (*Loader)(nil)

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// BatchSize is the number of samples per batch (default 8).
	BatchSize int
	// Shuffle permutes the sample order every epoch using Seed+epoch.
	Shuffle bool
	Seed    int64
	// DropLast skips a final batch smaller than BatchSize.
	DropLast bool
	// Workers preprocesses samples of a batch in parallel. Zero uses
	// runtime.NumCPU().
	Workers int
	// Name is reported by Name(); defaults to "SupervisedDataset".
	Name string
}

// Loader iterates a Dataset in collated batches. It implements gomlx's
// train.Dataset: Yield returns io.EOF at the end of each epoch and Reset
// starts the next one.
type Loader struct {
	ds       Dataset
	collator *SupervisedCollator
	opts     LoaderOptions

	mu    sync.Mutex
	epoch int
	order []int
	pos   int
}

// NewLoader returns a Loader over ds using collator to build batches.
func NewLoader(ds Dataset, collator *SupervisedCollator, opts LoaderOptions) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 8
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Name == "" {
		opts.Name = "SupervisedDataset"
	}
	l := &Loader{ds: ds, collator: collator, opts: opts}
	l.buildOrder()
	return l
}

func (l *Loader) buildOrder() {
	n := l.ds.Len()
	if l.opts.Shuffle {
		l.order = rand.New(rand.NewSource(l.opts.Seed + int64(l.epoch))).Perm(n)
	} else {
		l.order = make([]int, n)
		for i := range l.order {
			l.order[i] = i
		}
	}
	l.pos = 0
}

// Name implements train.Dataset.
func (l *Loader) Name() string {
	return l.opts.Name
}

// Reset implements train.Dataset. It moves to the next epoch.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.epoch++
	l.buildOrder()
}

// Epoch returns the current epoch, starting from 0.
func (l *Loader) Epoch() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epoch
}

// NumBatches returns the number of batches in one epoch.
func (l *Loader) NumBatches() int {
	n := l.ds.Len()
	if l.opts.DropLast {
		return n / l.opts.BatchSize
	}
	return (n + l.opts.BatchSize - 1) / l.opts.BatchSize
}

// Next returns the next batch of the epoch, or io.EOF when it is exhausted.
func (l *Loader) Next(ctx context.Context) (*SupervisedBatch, error) {
	indices := l.take()
	if indices == nil {
		return nil, io.EOF
	}

	samples := make([]SupervisedSample, len(indices))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	for pos, idx := range indices {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := exampleContext(gctx, l.ds, idx)
			if err != nil {
				return err
			}
			// each worker writes its own slot
			samples[pos] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to build batch: %w", err)
	}
	return l.collator.Collate(samples)
}

// take reserves the indices of the next batch.
func (l *Loader) take() []int {
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := len(l.order) - l.pos
	if remaining <= 0 || (l.opts.DropLast && remaining < l.opts.BatchSize) {
		return nil
	}
	end := min(l.pos+l.opts.BatchSize, len(l.order))
	indices := l.order[l.pos:end]
	l.pos = end
	return indices
}

// Specs returned by Yield. Trainers compile one graph per distinct spec, so
// they only separate batches with a different number of input tensors.
const (
	SpecText      = "text"
	SpecTextAudio = "text+audio"
)

// Yield implements train.Dataset. spec is SpecTextAudio when the batch
// carries audio and SpecText otherwise; use Next to get the batch itself.
func (l *Loader) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	batch, err := l.Next(context.Background())
	if err != nil {
		return nil, nil, nil, err
	}
	inputs, labels = batch.ToGomlxTensors()
	if batch.Audio != nil {
		return SpecTextAudio, inputs, labels, nil
	}
	return SpecText, inputs, labels, nil
}
