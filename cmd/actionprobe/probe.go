// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/actionprobe/internal/probe"
	"github.com/ManuGH/actionprobe/internal/report"
)

// ErrProbeFailed is returned when the run ends in the failed state.
var ErrProbeFailed = errors.New("probe run failed")

type probeOptions struct {
	interval time.Duration
	price    float64
	force    bool
	out      string
	quiet    bool
}

func newProbeCmd(o *rootOptions) *cobra.Command {
	var po probeOptions
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Probe the availability of every action in the listing",
		Long: `Loads the listing of the configured city and requests the detail of
each action in order, pausing --interval between remote requests. Details
still fresh in the cache are not requested again. With --price only actions
with that minimum price are probed. Interrupting stops the run after the
request in flight.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var interval *time.Duration
			if cmd.Flags().Changed("interval") {
				interval = &po.interval
			}
			var minPrice *float64
			if cmd.Flags().Changed("price") {
				minPrice = &po.price
			}
			return runProbe(cmd.Context(), o, po, interval, minPrice)
		},
	}
	f := cmd.Flags()
	f.DurationVar(&po.interval, "interval", 0, "pause between remote requests (default from config)")
	f.Float64Var(&po.price, "price", 0, "only probe actions with this minimum price")
	f.BoolVar(&po.force, "force", false, "refetch the listing before probing")
	f.StringVarP(&po.out, "out", "o", "", "write a JSON report to this file")
	f.BoolVarP(&po.quiet, "quiet", "q", false, "do not print progress")
	return cmd
}

func runProbe(ctx context.Context, o *rootOptions, po probeOptions, interval *time.Duration, minPrice *float64) (err error) {
	var reporters []probe.Reporter
	if !po.quiet {
		reporters = append(reporters, newProgressPrinter(o.errOut))
	}
	rt, err := newRuntime(ctx, o.cfg, reporters...)
	if err != nil {
		return err
	}
	defer closeRuntime(ctx, rt, &err)

	listing, err := rt.svc.FetchListing(ctx, "", po.force)
	if err != nil {
		return err
	}
	if minPrice != nil {
		if !slices.Contains(rt.svc.Session().PriceOptions(), *minPrice) {
			return fmt.Errorf("no action has minimum price %s", price(*minPrice))
		}
		rt.svc.Session().SetFilter(minPrice)
	}

	if _, err := rt.svc.StartProbe(ctx, interval); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { rt.svc.StopProbe() })
	defer stop()

	final, err := rt.svc.WaitProbe(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}

	rep := report.Build(final, listing.Actions, o.cfg.API.SiteURL, time.Now())
	writeSummary(o.out, rep)
	if po.out != "" {
		if err := report.WriteJSON(po.out, rep); err != nil {
			return err
		}
		fmt.Fprintf(o.out, "report written to %s\n", po.out)
	}
	if final.Status == probe.StatusFailed {
		return fmt.Errorf("%w: %s", ErrProbeFailed, final.Err)
	}
	return nil
}

func writeSummary(w io.Writer, rep report.Report) {
	run := rep.Run
	fmt.Fprintf(w, "run %s %s: %d/%d probed\n", run.RunID, run.Status, len(run.Results), run.Total)
	for _, code := range rep.StatusCodes() {
		fmt.Fprintf(w, "  %d: %d\n", code, rep.Summary[code])
	}
}

// progressPrinter prints one line per newly recorded result.
type progressPrinter struct {
	mu   sync.Mutex
	w    io.Writer
	seen map[string]struct{}
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, seen: make(map[string]struct{})}
}

func (p *progressPrinter) UpdateProbeSnapshot(s probe.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, id := range s.Items {
		res, ok := s.Results[id]
		if !ok {
			continue
		}
		key := s.RunID + "/" + id
		if _, done := p.seen[key]; done {
			continue
		}
		p.seen[key] = struct{}{}
		source := "remote"
		if res.Cached {
			source = "cache"
		}
		fmt.Fprintf(p.w, "[%d/%d] %s %d (%s)\n", i+1, s.Total, id, res.StatusCode, source)
	}
}

