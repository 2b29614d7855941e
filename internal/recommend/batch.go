package recommend

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RecommendBatch merges per-format results across lines. A format's
// confidence is the mean over the lines it matched and MatchCount is the
// number of those lines.
func (r *Recommender) RecommendBatch(ctx context.Context, lines []string, opts Options) ([]Recommendation, error) {
	if len(lines) == 0 {
		return nil, nil
	}

	formats := r.Catalog().Filter(opts.GroupFilter, opts.VendorFilter)
	perLine := make([][]scored, len(lines))

	err := r.forEachLine(ctx, len(lines), opts, func(ctx context.Context, i int) error {
		entries, _, err := r.score(ctx, lines[i], formats, opts)
		if err != nil {
			return err
		}
		perLine[i] = entries
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Fold in line order so outcome order is deterministic.
	byID := make(map[string]accumulator)
	var order []string
	for _, entries := range perLine {
		for _, s := range entries {
			acc, ok := byID[s.format.ID]
			if !ok {
				order = append(order, s.format.ID)
			}
			byID[s.format.ID] = acc.merge(accumulator{}.add(s))
		}
	}

	accs := make([]accumulator, 0, len(order))
	for _, id := range order {
		accs = append(accs, byID[id])
	}
	return shape(accs, len(lines), opts), nil
}

// RecommendBatchPerLine returns one ranked list per line, in input order.
func (r *Recommender) RecommendBatchPerLine(ctx context.Context, lines []string, opts Options) ([][]Recommendation, error) {
	results := make([][]Recommendation, len(lines))

	err := r.forEachLine(ctx, len(lines), opts, func(ctx context.Context, i int) error {
		recs, err := r.Recommend(ctx, lines[i], opts)
		if err != nil {
			return err
		}
		results[i] = recs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// forEachLine runs fn for every line index, across lines in parallel when
// the batch is larger than the configured threshold.
func (r *Recommender) forEachLine(ctx context.Context, n int, opts Options, fn func(context.Context, int) error) error {
	threshold := r.cfg.BatchParallelThreshold
	if threshold <= 0 {
		threshold = DefaultConfig().BatchParallelThreshold
	}

	if !opts.Parallel || n <= threshold {
		for i := 0; i < n; i++ {
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	return g.Wait()
}
