package store

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"referral-process-measures/internal/measures"
	"referral-process-measures/internal/records"
)

// Options controls a store build.
type Options struct {
	AsOf    time.Time
	Months  int
	Targets measures.Targets
	// Workers bounds concurrent month computations; 0 means GOMAXPROCS.
	Workers int
}

// Build computes every reporting month concurrently and the pending snapshots,
// then assembles the store. The input tables are shared read-only.
func Build(ctx context.Context, refs *records.ReferralTable, dsms *records.DSMTable, opts Options, logger zerolog.Logger) (*Store, error) {
	if refs == nil {
		return nil, fmt.Errorf("build store: referral table is required")
	}
	start := time.Now()
	in := measures.Inputs{Referrals: refs, DSMs: dsms, Targets: opts.Targets}
	months := measures.ReportingMonths(opts.AsOf, opts.Months)
	results := make([]*measures.MonthResult, len(months))

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, month := range months {
		i, month := i, month
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			monthStart := time.Now()
			result, err := measures.ComputeMonth(in, month)
			if err != nil {
				return err
			}
			results[i] = result
			logger.Info().
				Str("month", month.Format("2006-01")).
				Int("clinics", len(result.Measures.Clinics())).
				Dur("duration", time.Since(monthStart)).
				Msg("month computed")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build store: %w", err)
	}

	pending := make([]measures.DataSource, 0, len(measures.PendingStatuses))
	for _, status := range measures.PendingStatuses {
		pending = append(pending, measures.NewPendingSource(refs.Rows, status))
	}

	s := New(opts.AsOf, results, pending)
	logger.Info().
		Str("as_of", opts.AsOf.Format("2006-01-02")).
		Int("months", len(months)).
		Int("referrals", len(refs.Rows)).
		Dur("duration", time.Since(start)).
		Msg("measure store built")
	return s, nil
}
