// Package logreg trains a small logistic regression with flex kernel groups
// and with a float64 reference, so the two can be compared step by step.
package logreg

import (
	"errors"
	"fmt"
	"math"
)

// Problem is a binary classification data set with its training settings.
type Problem struct {
	XS      [][]float64
	YS      []float64
	MaxIter int
	Alpha   float64
}

// DefaultProblem is a four sample, three feature data set.
func DefaultProblem() Problem {
	return Problem{
		XS: [][]float64{
			{0.52, 1.12, 0.77},
			{0.88, -1.08, 0.15},
			{0.52, 0.06, -1.30},
			{0.74, -2.49, 1.39},
		},
		YS:      []float64{1, 1, 0, 1},
		MaxIter: 10,
		Alpha:   0.1,
	}
}

// InitialScale is a starting scale suited to DefaultProblem: every
// intermediate stays below 32 in magnitude during the first iteration.
const InitialScale = 0x1p-10

var ErrBadProblem = errors.New("logreg: malformed problem")

func (p Problem) dims() (samples, features int, err error) {
	samples = len(p.XS)
	if samples == 0 || len(p.YS) != samples {
		return 0, 0, fmt.Errorf("%w: %d samples, %d labels", ErrBadProblem, samples, len(p.YS))
	}
	features = len(p.XS[0])
	for i, row := range p.XS {
		if len(row) != features || features == 0 {
			return 0, 0, fmt.Errorf("%w: row %d has %d features", ErrBadProblem, i, len(row))
		}
	}
	if p.MaxIter < 0 {
		return 0, 0, fmt.Errorf("%w: negative iteration count", ErrBadProblem)
	}
	return samples, features, nil
}

// Result is the outcome of a training run. Losses[i] is the loss before
// update i.
type Result struct {
	Thetas []float64 `json:"thetas"`
	Losses []float64 `json:"losses"`
}

// StepFunc observes each iteration. Returning an error stops training.
type StepFunc func(iter int, loss float64, thetas []float64) error

// sigmoid is the tanh form used by both implementations.
func sigmoid(x float64) float64 { return 0.5 * (math.Tanh(x) + 1) }

// Reference trains in float64.
func Reference(p Problem) (Result, error) {
	n, f, err := p.dims()
	if err != nil {
		return Result{}, err
	}
	thetas := make([]float64, f)
	res := Result{Losses: make([]float64, 0, p.MaxIter)}
	pred := make([]float64, n)
	for range p.MaxIter {
		var loss float64
		for i, row := range p.XS {
			var z float64
			for k, x := range row {
				z += x * thetas[k]
			}
			pred[i] = sigmoid(z)
			loss -= math.Log(pred[i])*p.YS[i] + math.Log(1-pred[i])*(1-p.YS[i])
		}
		res.Losses = append(res.Losses, loss)

		grad := make([]float64, f)
		for i, row := range p.XS {
			for k, x := range row {
				grad[k] += 2 * (pred[i] - p.YS[i]) * x
			}
		}
		for k := range thetas {
			thetas[k] -= p.Alpha * grad[k]
		}
	}
	res.Thetas = thetas
	return res, nil
}
