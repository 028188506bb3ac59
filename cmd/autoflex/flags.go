package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/autoflex/internal/logreg"
	"github.com/samcharles93/autoflex/internal/transformer"
)

var (
	logLevel  string
	logFormat string
	debug     bool
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// flexOptions are the numeric settings shared by commands that build a
// transformer.
type flexOptions struct {
	dtype        string
	fixedPoint   bool
	preAdjust    bool
	initialScale float64
	historyLen   int64
	diagEvery    int64
	verbose      bool
	rtol         float64
	atol         float64
}

func (o flexOptions) config() transformer.Config {
	return transformer.Config{
		StorageDType:    o.dtype,
		FixedPoint:      o.fixedPoint,
		PreAdjustWrites: o.preAdjust,
		InitialScale:    o.initialScale,
		HistoryLen:      int(o.historyLen),
		DiagnosticEvery: int(o.diagEvery),
		Verbose:         o.verbose,
		Tolerance:       transformer.Tolerance{RTol: o.rtol, ATol: o.atol},
	}
}

func flexFlags(o *flexOptions) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "dtype",
			Usage:       "storage format (flex16, flex8)",
			Value:       "flex16",
			Destination: &o.dtype,
		},
		&cli.BoolFlag{
			Name:        "fixed-point",
			Usage:       "disable adaptation and use one fixed scale for every tensor",
			Destination: &o.fixedPoint,
		},
		&cli.BoolFlag{
			Name:        "pre-adjust",
			Usage:       "raise the scale ahead of host writes that would clip",
			Destination: &o.preAdjust,
		},
		&cli.Float64Flag{
			Name:        "initial-scale",
			Usage:       "scale of every tensor before its first adaptation",
			Value:       logreg.InitialScale,
			Destination: &o.initialScale,
		},
		&cli.Int64Flag{
			Name:        "history",
			Usage:       "number of magnitude observations kept per tensor",
			Value:       4,
			Destination: &o.historyLen,
		},
		&cli.Int64Flag{
			Name:        "diag-every",
			Usage:       "persist diagnostics every N kernel group calls",
			Value:       1,
			Destination: &o.diagEvery,
		},
		&cli.BoolFlag{
			Name:        "verbose",
			Aliases:     []string{"v"},
			Usage:       "log every scale adaptation at info level",
			Destination: &o.verbose,
		},
		&cli.Float64Flag{
			Name:        "rtol",
			Usage:       "relative tolerance against the float64 reference",
			Value:       transformer.DefaultTolerance.RTol,
			Destination: &o.rtol,
		},
		&cli.Float64Flag{
			Name:        "atol",
			Usage:       "absolute tolerance against the float64 reference",
			Value:       transformer.DefaultTolerance.ATol,
			Destination: &o.atol,
		},
	}
}
