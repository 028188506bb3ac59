package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/autoflex/internal/api"
	"github.com/samcharles93/autoflex/internal/diag"
	"github.com/samcharles93/autoflex/internal/logger"
	"github.com/samcharles93/autoflex/internal/logreg"
	"github.com/samcharles93/autoflex/internal/transformer"
)

var errToleranceExceeded = errors.New("flex losses outside tolerance")

func trainCmd() *cli.Command {
	var (
		opts       flexOptions
		iterations int64
		alpha      float64
		diagPath   string
		keep       int64
		addr       string
		strict     bool
	)

	return &cli.Command{
		Name:  "train",
		Usage: "Train the logistic regression example with flex tensors and compare against float64",
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
			&cli.StringFlag{
				Name:        "diag",
				Usage:       "write diagnostics to a .jsonl or .db file",
				Destination: &diagPath,
			},
			&cli.Int64Flag{
				Name:        "keep",
				Usage:       "snapshots kept in memory for the history endpoint",
				Value:       256,
				Destination: &keep,
			},
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "serve the introspection API on this address and keep running after training",
				Destination: &addr,
			},
			&cli.BoolFlag{
				Name:        "strict",
				Usage:       "exit non-zero when a loss falls outside tolerance",
				Destination: &strict,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			cfg, err := LoadConfig(configPath())
			if err != nil {
				log.Warn("ignoring config file", "error", err)
			}
			applyFlexConfig(cmd.IsSet, cfg, &opts)
			applyTrainConfig(cmd.IsSet, cfg, &iterations, &alpha, &diagPath, &addr)

			problem := logreg.DefaultProblem()
			problem.MaxIter = int(iterations)
			problem.Alpha = alpha
			ref, err := logreg.Reference(problem)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			metrics := diag.NewMetrics(reg)

			runID := diag.NewRunID()
			store := api.NewSnapshotStore(int(keep))
			sinks := diag.Tee{store}
			if diagPath != "" {
				file, err := diag.Open(diagPath, runID)
				if err != nil {
					return err
				}
				async := diag.NewAsync(file, 0, log)
				defer func() {
					if err := async.Close(); err != nil {
						log.Warn("closing diagnostics", "path", diagPath, "error", err)
					}
					if n := async.Dropped(); n > 0 {
						log.Warn("diagnostic snapshots dropped", "count", n)
					}
				}()
				sinks = append(sinks, async)
			}

			tr, err := transformer.New(opts.config(),
				transformer.WithLogger(log),
				transformer.WithDiagnosticSink(sinks),
				transformer.WithObserver(metrics),
			)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			trainer, err := logreg.NewTrainer(tr, problem)
			if err != nil {
				return err
			}
			log.Info("training", "run_id", runID, "dtype", opts.dtype, "fixed_point", opts.fixedPoint, "iterations", problem.MaxIter)

			g, gctx := errgroup.WithContext(ctx)
			if addr != "" {
				server := api.NewServer(tr, store, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				g.Go(func() error { return serve(gctx, addr, server, log) })
			}
			g.Go(func() error {
				res, err := trainer.Train(gctx, func(iter int, loss float64, _ []float64) error {
					metrics.Observe(tr.Snapshot())
					log.Debug("step", "iter", iter, "loss", loss, "reference", ref.Losses[iter])
					return nil
				})
				if err != nil {
					return fmt.Errorf("train: %w", err)
				}
				bad := report(os.Stdout, res, ref, tr.Tolerance())
				if bad > 0 && strict {
					return fmt.Errorf("%w: %d of %d", errToleranceExceeded, bad, len(res.Losses))
				}
				if addr == "" {
					return nil
				}
				log.Info("training finished, serving until interrupted", "address", addr)
				<-gctx.Done()
				return nil
			})
			return g.Wait()
		},
	}
}

// report prints flex losses next to the reference and returns how many fall
// outside tol.
func report(w io.Writer, got, want logreg.Result, tol transformer.Tolerance) int {
	table := newTable(w, []string{"ITER", "FLEX LOSS", "REFERENCE", "ABS ERR", "OK"})

	bad := 0
	var rows [][]string
	for i, loss := range got.Losses {
		ok := i < len(want.Losses) && tol.Close(loss, want.Losses[i])
		ref := math.NaN()
		if i < len(want.Losses) {
			ref = want.Losses[i]
		}
		mark := "yes"
		if !ok {
			mark = "no"
			bad++
		}
		rows = append(rows, []string{
			strconv.Itoa(i),
			formatFloat(loss),
			formatFloat(ref),
			formatFloat(math.Abs(loss - ref)),
			mark,
		})
	}
	table.AppendBulk(rows)
	table.Render()

	_, _ = fmt.Fprintf(w, "\nthetas    %v\nreference %v\n", got.Thetas, want.Thetas)
	return bad
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
