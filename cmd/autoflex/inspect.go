package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/autoflex/internal/diag"
)

func inspectCmd() *cli.Command {
	var (
		runID string
		entry string
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Summarize a diagnostics file written by train --diag",
		ArgsUsage: "<file.jsonl|file.db>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "run",
				Usage:       "only show records of this run id",
				Destination: &runID,
			},
			&cli.StringFlag{
				Name:        "entry",
				Usage:       "show the full history of one entry",
				Destination: &entry,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return errors.New("inspect: diagnostics file required")
			}
			recs, err := diag.Read(path)
			if err != nil {
				return err
			}
			recs = filterRun(recs, runID)
			if len(recs) == 0 {
				return fmt.Errorf("inspect: no records in %s", path)
			}
			if entry != "" {
				return printHistory(os.Stdout, recs, entry)
			}
			printSummary(os.Stdout, recs)
			return nil
		},
	}
}

func filterRun(recs []diag.Record, runID string) []diag.Record {
	if runID == "" {
		return recs
	}
	var out []diag.Record
	for _, r := range recs {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	return out
}

// entrySummary aggregates every record of one entry within one run.
type entrySummary struct {
	last    diag.Record
	changes int
	peak    float64
}

func summarize(recs []diag.Record) []entrySummary {
	type key struct {
		run string
		id  int
	}
	byKey := make(map[key]*entrySummary)
	var order []key
	for _, r := range recs {
		k := key{r.RunID, r.EntryID}
		s, ok := byKey[k]
		if !ok {
			s = &entrySummary{last: r}
			byKey[k] = s
			order = append(order, k)
		}
		if r.Scale != s.last.Scale {
			s.changes++
		}
		if r.MaxAbs > s.peak {
			s.peak = r.MaxAbs
		}
		s.last = r
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].run != order[j].run {
			return order[i].run < order[j].run
		}
		return order[i].id < order[j].id
	})
	out := make([]entrySummary, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func printSummary(w io.Writer, recs []diag.Record) {
	table := newTable(w, []string{"RUN", "ENTRY", "SCALE", "PEAK MAX ABS", "CHANGES", "CLIPPED", "LAST STEP"})
	var rows [][]string
	for _, s := range summarize(recs) {
		rows = append(rows, []string{
			shortRun(s.last.RunID),
			s.last.Name,
			formatFloat(s.last.Scale),
			formatFloat(s.peak),
			strconv.Itoa(s.changes),
			strconv.FormatInt(s.last.Clipped, 10),
			strconv.Itoa(s.last.Step),
		})
	}
	table.AppendBulk(rows)
	table.Render()
}

func printHistory(w io.Writer, recs []diag.Record, name string) error {
	table := newTable(w, []string{"RUN", "STEP", "SCALE", "MAX ABS", "STEP INDEX", "CLIPPED"})
	var rows [][]string
	for _, r := range recs {
		if r.Name != name {
			continue
		}
		rows = append(rows, []string{
			shortRun(r.RunID),
			strconv.Itoa(r.Step),
			formatFloat(r.Scale),
			formatFloat(r.MaxAbs),
			strconv.Itoa(r.StepIndex),
			strconv.FormatInt(r.Clipped, 10),
		})
	}
	if len(rows) == 0 {
		return fmt.Errorf("inspect: no records for entry %q", name)
	}
	table.AppendBulk(rows)
	table.Render()
	return nil
}

func shortRun(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
