package datasets

import (
	"errors"
	"io"
	"testing"

	"github.com/gomlx/gomlx/backends/simplego"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	mlctx "github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
)

// Same-shaped batches must reuse one compiled executor well past the
// trainer's executor limit.
func TestLoader_TrainsPastMaxExecutors(t *testing.T) {
	backend, err := simplego.New("")
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	ctx := mlctx.New()
	modelFn := func(ctx *mlctx.Context, spec any, inputs []*Node) []*Node {
		clips := inputs[2]
		w := ctx.VariableWithValue("w", float32(1)).ValueGraph(clips.Graph())
		return []*Node{Mul(ReduceAllSum(clips), w)}
	}
	lossFn := func(labels, predictions []*Node) *Node {
		return Square(predictions[0])
	}
	trainer := train.NewTrainer(backend, ctx, modelFn, lossFn, optimizers.StochasticGradientDescent().Done(), nil, nil)

	steps := train.DefaultMaxExecutors + 10
	l := NewLoader(&audioDataset{n: steps}, hostCollator(), LoaderOptions{BatchSize: 1})
	for step := 0; step < steps; step++ {
		spec, inputs, labels, err := l.Yield()
		if errors.Is(err, io.EOF) {
			t.Fatalf("epoch ended early at step %d", step)
		}
		if err != nil {
			t.Fatalf("Yield %d failed: %v", step, err)
		}
		trainer.TrainStep(spec, inputs, labels)
	}
}
