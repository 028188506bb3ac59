package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/autoflex/internal/logger"
	"github.com/samcharles93/autoflex/internal/logreg"
	"github.com/samcharles93/autoflex/internal/transformer"
)

type diffStats struct {
	MaxAbs  float64
	MeanAbs float64
	RMSE    float64
	Cosine  float64
	Length  int
}

// diffVectors compares a against the reference b over their common prefix.
func diffVectors(a, b []float64) diffStats {
	n := min(len(a), len(b))
	if n == 0 {
		return diffStats{}
	}
	var sumAbs, sumSq, dot, normA, normB, maxAbs float64
	for i := range n {
		diff := math.Abs(a[i] - b[i])
		sumAbs += diff
		sumSq += diff * diff
		if diff > maxAbs {
			maxAbs = diff
		}
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	cos := 0.0
	if normA > 0 && normB > 0 {
		cos = dot / (math.Sqrt(normA) * math.Sqrt(normB))
	}
	return diffStats{
		MaxAbs:  maxAbs,
		MeanAbs: sumAbs / float64(n),
		RMSE:    math.Sqrt(sumSq / float64(n)),
		Cosine:  cos,
		Length:  n,
	}
}

type modeResult struct {
	mode   string
	losses diffStats
	thetas diffStats
}

func compareCmd() *cli.Command {
	var (
		opts       flexOptions
		iterations int64
		alpha      float64
	)

	return &cli.Command{
		Name:  "compare",
		Usage: "Run the logistic regression example with autoflex and with fixed point and compare both against float64",
		Flags: append(flexFlags(&opts),
			&cli.Int64Flag{
				Name:        "iterations",
				Aliases:     []string{"n"},
				Usage:       "number of gradient descent iterations",
				Value:       10,
				Destination: &iterations,
			},
			&cli.Float64Flag{
				Name:        "alpha",
				Usage:       "learning rate",
				Value:       0.1,
				Destination: &alpha,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg, err := LoadConfig(configPath())
			if err != nil {
				log.Warn("ignoring config file", "error", err)
			}
			applyFlexConfig(cmd.IsSet, cfg, &opts)

			problem := logreg.DefaultProblem()
			problem.MaxIter = int(iterations)
			problem.Alpha = alpha
			results, err := compareModes(ctx, problem, opts, log)
			if err != nil {
				return err
			}
			printComparison(os.Stdout, results)
			return nil
		},
	}
}

// compareModes trains problem once per mode, concurrently, each on its own
// transformer.
func compareModes(ctx context.Context, p logreg.Problem, opts flexOptions, log logger.Logger) ([]modeResult, error) {
	ref, err := logreg.Reference(p)
	if err != nil {
		return nil, err
	}
	modes := []string{"autoflex", "fixed-point"}
	results := make([]modeResult, len(modes))
	g, gctx := errgroup.WithContext(ctx)
	for i, mode := range modes {
		g.Go(func() error {
			o := opts
			o.fixedPoint = mode == "fixed-point"
			tr, err := transformer.New(o.config(), transformer.WithLogger(log.With("mode", mode)))
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()
			trainer, err := logreg.NewTrainer(tr, p)
			if err != nil {
				return fmt.Errorf("%s: %w", mode, err)
			}
			res, err := trainer.Train(gctx, nil)
			if err != nil {
				return fmt.Errorf("%s: %w", mode, err)
			}
			results[i] = modeResult{
				mode:   mode,
				losses: diffVectors(res.Losses, ref.Losses),
				thetas: diffVectors(res.Thetas, ref.Thetas),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func printComparison(w io.Writer, results []modeResult) {
	table := newTable(w, []string{"MODE", "LOSS MAX ABS", "LOSS RMSE", "LOSS COS", "THETA MAX ABS", "THETA COS"})
	var rows [][]string
	for _, r := range results {
		rows = append(rows, []string{
			r.mode,
			formatFloat(r.losses.MaxAbs),
			formatFloat(r.losses.RMSE),
			strconv.FormatFloat(r.losses.Cosine, 'f', 6, 64),
			formatFloat(r.thetas.MaxAbs),
			strconv.FormatFloat(r.thetas.Cosine, 'f', 6, 64),
		})
	}
	table.AppendBulk(rows)
	table.Render()
}
