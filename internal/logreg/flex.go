package logreg

import (
	"context"

	"github.com/samcharles93/autoflex/internal/device"
	"github.com/samcharles93/autoflex/internal/graph"
	"github.com/samcharles93/autoflex/internal/transformer"
)

const (
	groupEval   = "logreg_eval"
	groupTrain  = "logreg_train"
	groupCommit = "logreg_commit"
)

// Trainer runs the flex version of the model. Each iteration calls three
// groups: eval computes the loss, train writes the updated weights into a
// scratch tensor, and commit copies them back. Splitting the update keeps
// the weights out of every group that reads them, so their scale only
// changes right before they are overwritten.
type Trainer struct {
	tr      *transformer.Transformer
	problem Problem

	x, y, notY, one *device.Tensor
	thetas, next    *device.Tensor
	loss            *device.Tensor
}

// NewTrainer allocates the model on tr, loads the data and finalizes tr.
// tr must not have been finalized.
func NewTrainer(tr *transformer.Transformer, p Problem) (*Trainer, error) {
	n, f, err := p.dims()
	if err != nil {
		return nil, err
	}
	t := &Trainer{tr: tr, problem: p}
	tensor := func(name string, shape ...int) *device.Tensor {
		if err != nil {
			return nil
		}
		var tn *device.Tensor
		tn, err = tr.DeviceTensor(name, shape...)
		return tn
	}

	t.x = tensor("x", n, f)
	t.y = tensor("y", n)
	t.notY = tensor("not_y", n)
	t.one = tensor("one", 1)
	t.thetas = tensor("thetas", f)
	t.next = tensor("thetas_next", f)
	z := tensor("z", n)
	th := tensor("tanh_z", n)
	pred := tensor("pred", n)
	logP := tensor("log_pred", n)
	q := tensor("one_minus_pred", n)
	logQ := tensor("log_one_minus_pred", n)
	pos := tensor("pos_ll", n)
	neg := tensor("neg_ll", n)
	ll := tensor("ll", n)
	t.loss = tensor("loss", 1)
	diff := tensor("residual", n)
	grad := tensor("grad", f)
	if err != nil {
		return nil, err
	}

	forward := []graph.Op{
		&graph.Dot{Out: z, A: t.x, B: t.thetas, M: n, N: 1, K: f, Alpha: 1},
		&graph.ElementWise{Fn: graph.Tanh, Out: th, A: z},
		&graph.ElementWise{Fn: graph.Axpby, Out: pred, A: th, B: t.one, Alpha: 0.5, Beta: 0.5},
	}
	eval := append(append([]graph.Op(nil), forward...),
		&graph.ElementWise{Fn: graph.Log, Out: logP, A: pred},
		&graph.ElementWise{Fn: graph.Axpby, Out: q, A: pred, B: t.one, Alpha: -1, Beta: 1},
		&graph.ElementWise{Fn: graph.Log, Out: logQ, A: q},
		&graph.ElementWise{Fn: graph.Mul, Out: pos, A: t.y, B: logP},
		&graph.ElementWise{Fn: graph.Mul, Out: neg, A: t.notY, B: logQ},
		&graph.ElementWise{Fn: graph.Add, Out: ll, A: pos, B: neg},
		&graph.ReduceSum{Out: t.loss, In: ll, Alpha: -1},
	)
	train := append(append([]graph.Op(nil), forward...),
		&graph.ElementWise{Fn: graph.Sub, Out: diff, A: pred, B: t.y},
		&graph.Dot{Out: grad, A: t.x, B: diff, M: f, N: 1, K: n, TransA: true, Alpha: 2},
		&graph.ElementWise{Fn: graph.Axpby, Out: t.next, A: t.thetas, B: grad, Alpha: 1, Beta: -p.Alpha},
	)
	commit := []graph.Op{
		&graph.ElementWise{Fn: graph.Copy, Out: t.thetas, A: t.next},
	}
	for _, g := range []struct {
		name string
		ops  []graph.Op
	}{{groupEval, eval}, {groupTrain, train}, {groupCommit, commit}} {
		if _, err := tr.TransformOrderedOps(g.name, g.ops); err != nil {
			return nil, err
		}
	}

	flat := make([]float64, 0, n*f)
	for _, row := range p.XS {
		flat = append(flat, row...)
	}
	notY := make([]float64, n)
	for i, y := range p.YS {
		notY[i] = 1 - y
	}
	consts := []constant{{t.x, flat}, {t.y, p.YS}, {t.notY, notY}, {t.one, []float64{1}}, {t.thetas, make([]float64, f)}}
	if err := load(tr, consts); err != nil {
		return nil, err
	}
	if err := tr.Finalize(); err != nil {
		return nil, err
	}
	return t, nil
}

type constant struct {
	t    *device.Tensor
	vals []float64
}

// load writes every constant, runs one adaptation cycle on the recorded
// magnitudes, and writes them again at the adapted scales. A write never
// adapts within its own cycle, so the explicit cycle is required.
func load(tr *transformer.Transformer, consts []constant) error {
	for _, c := range consts {
		if err := c.t.Set(c.vals); err != nil {
			return err
		}
	}
	tr.FlexManager().Autoflex()
	for _, c := range consts {
		if err := c.t.Set(c.vals); err != nil {
			return err
		}
	}
	return nil
}

// Step runs one iteration and returns the loss measured before the update.
func (t *Trainer) Step(ctx context.Context) (float64, error) {
	if err := t.tr.Call(ctx, groupEval); err != nil {
		return 0, err
	}
	var loss float64
	if err := t.tr.Exec(func() error {
		loss = t.loss.Get()[0]
		return nil
	}); err != nil {
		return 0, err
	}
	for _, name := range []string{groupTrain, groupCommit} {
		if err := t.tr.Call(ctx, name); err != nil {
			return 0, err
		}
	}
	return loss, nil
}

// Thetas returns the current weights.
func (t *Trainer) Thetas() []float64 {
	var out []float64
	_ = t.tr.Exec(func() error {
		out = t.thetas.Get()
		return nil
	})
	return out
}

// Train runs p.MaxIter iterations, calling onStep after each one if set.
func (t *Trainer) Train(ctx context.Context, onStep StepFunc) (Result, error) {
	res := Result{Losses: make([]float64, 0, t.problem.MaxIter)}
	for i := range t.problem.MaxIter {
		loss, err := t.Step(ctx)
		if err != nil {
			return res, err
		}
		res.Losses = append(res.Losses, loss)
		if onStep != nil {
			if err := onStep(i, loss, t.Thetas()); err != nil {
				return res, err
			}
		}
	}
	res.Thetas = t.Thetas()
	return res, nil
}
