// Package recommend scores a log line against every catalog format
// concurrently and turns the per-format outcomes into ranked recommendations.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cisec/aisac-logformat/internal/catalog"
	"github.com/cisec/aisac-logformat/internal/grok"
	"github.com/cisec/aisac-logformat/internal/matcher"
)

var (
	// ErrNoFormats is returned when the catalog holds no formats.
	ErrNoFormats = errors.New("no log formats loaded")
	// ErrNilCatalog is returned when a recommender is built without a catalog.
	ErrNilCatalog = errors.New("catalog is nil")
	// ErrNoSource is returned by Reload when no catalog source is set.
	ErrNoSource = errors.New("no catalog source configured")
)

// Snapshot is one loaded generation of the catalog and the sub-pattern
// library its templates resolve against.
type Snapshot struct {
	Catalog *catalog.Catalog
	// Library replaces the compiler's library on reload. Nil keeps the
	// current one.
	Library *grok.Library
}

// Source produces a freshly loaded snapshot.
type Source func(ctx context.Context) (*Snapshot, error)

// Observer receives recommender events. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveTaskTimeout()
	ObserveRecommend(elapsed time.Duration, results int)
	ObserveMemo(hit bool)
	ObserveReload(formats int, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveTaskTimeout()                 {}
func (nopObserver) ObserveRecommend(time.Duration, int) {}
func (nopObserver) ObserveMemo(bool)                    {}
func (nopObserver) ObserveReload(int, error)            {}

type memoKey struct {
	line string
	opts Options
}

// memoEntry remembers the catalog the results were scored against, so
// results computed across a reload are never served afterwards.
type memoEntry struct {
	cat  *catalog.Catalog
	recs []Recommendation
}

// Recommender ranks catalog formats for log lines. It is safe for
// concurrent use; Reload swaps the catalog atomically.
type Recommender struct {
	catalog  atomic.Pointer[catalog.Catalog]
	engine   *matcher.Engine
	cfg      Config
	memo     *lru.Cache[memoKey, memoEntry]
	observer Observer
	logger   zerolog.Logger

	reloadMu sync.Mutex
	source   Source
}

// New creates a recommender over cat.
func New(cat *catalog.Catalog, engine *matcher.Engine, cfg Config, logger zerolog.Logger) (*Recommender, error) {
	if cat == nil {
		return nil, ErrNilCatalog
	}
	if cat.Len() == 0 {
		return nil, ErrNoFormats
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultConfig().TaskTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}

	r := &Recommender{
		engine:   engine,
		cfg:      cfg,
		observer: nopObserver{},
		logger:   logger.With().Str("component", "recommender").Logger(),
	}
	if cfg.MemoSize > 0 {
		memo, err := lru.New[memoKey, memoEntry](cfg.MemoSize)
		if err != nil {
			return nil, fmt.Errorf("creating result memo: %w", err)
		}
		r.memo = memo
	}
	r.catalog.Store(cat)

	r.logger.Info().
		Int("formats", cat.Len()).
		Int("patterns", cat.PatternCount()).
		Int("workers", cfg.Workers).
		Msg("Recommender ready")

	return r, nil
}

// SetSource sets the loader used by Reload.
func (r *Recommender) SetSource(src Source) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()
	r.source = src
}

// SetObserver installs an event observer. Passing nil restores the no-op one.
// It must be called before the recommender is shared.
func (r *Recommender) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	r.observer = o
}

// Catalog returns the current catalog snapshot.
func (r *Recommender) Catalog() *catalog.Catalog {
	return r.catalog.Load()
}

// Engine returns the matching engine.
func (r *Recommender) Engine() *matcher.Engine {
	return r.engine
}

// Recommend ranks every format passing the group and vendor filters for line.
func (r *Recommender) Recommend(ctx context.Context, line string, opts Options) ([]Recommendation, error) {
	cat := r.Catalog()
	key := memoKey{line: line, opts: opts}
	if r.memo != nil {
		if e, ok := r.memo.Get(key); ok && e.cat == cat {
			r.observer.ObserveMemo(true)
			return append([]Recommendation(nil), e.recs...), nil
		}
		r.observer.ObserveMemo(false)
	}

	start := time.Now()
	formats := cat.Filter(opts.GroupFilter, opts.VendorFilter)

	entries, timedOut, err := r.score(ctx, line, formats, opts)
	if err != nil {
		return nil, err
	}

	accs := make([]accumulator, len(entries))
	for i, s := range entries {
		accs[i] = accumulator{}.add(s)
	}
	recs := shape(accs, 1, opts)

	if r.memo != nil && !timedOut && r.Catalog() == cat {
		r.memo.Add(key, memoEntry{cat: cat, recs: recs})
	}
	r.observer.ObserveRecommend(time.Since(start), len(recs))
	return append([]Recommendation(nil), recs...), nil
}

// RecommendInGroup ranks only the formats of group with default options.
func (r *Recommender) RecommendInGroup(ctx context.Context, line, group string) ([]Recommendation, error) {
	if len(r.Catalog().ByGroup(group)) == 0 {
		r.logger.Warn().Str("group", group).Msg("No formats in group")
		return nil, nil
	}
	opts := DefaultOptions()
	opts.GroupFilter = group
	opts.Timeout = r.cfg.TaskTimeout
	return r.Recommend(ctx, line, opts)
}

// score runs the engine once per format and returns the matched formats with
// their final confidences. Results are collected by index, so order does not
// depend on completion order.
func (r *Recommender) score(ctx context.Context, line string, formats []*catalog.Format, opts Options) ([]scored, bool, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.cfg.TaskTimeout
	}

	outcomes := make([]matcher.Outcome, len(formats))
	var timeouts atomic.Int32

	run := func(ctx context.Context, i int) {
		outcomes[i] = r.matchWithin(ctx, line, formats[i], timeout)
		if outcomes[i].TimedOut {
			timeouts.Add(1)
			r.observer.ObserveTaskTimeout()
			r.logger.Warn().
				Str("format_id", formats[i].ID).
				Dur("timeout", timeout).
				Msg("Format match timed out")
		}
	}

	if opts.Parallel && len(formats) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.Workers)
		for i := range formats {
			g.Go(func() error {
				run(gctx, i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range formats {
			if ctx.Err() != nil {
				break
			}
			run(ctx, i)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	completes := 0
	for _, o := range outcomes {
		if o.Status == matcher.Complete {
			completes++
		}
	}

	var entries []scored
	for i, o := range outcomes {
		if !o.Matched() {
			continue
		}
		s := scored{
			format:     formats[i],
			outcome:    o,
			confidence: o.Confidence,
			reason:     reasonFor(o, completes),
		}
		if o.Status == matcher.Complete && completes > 1 {
			s.confidence = tieBreakConfidence(o)
		}
		entries = append(entries, s)
	}
	return entries, timeouts.Load() > 0, nil
}

// matchWithin runs the engine for one format and gives up once timeout
// elapses. The engine goroutine is left to finish on its own; it stops at the
// next template boundary or when the regex engine's match timeout fires.
func (r *Recommender) matchWithin(ctx context.Context, line string, f *catalog.Format, timeout time.Duration) matcher.Outcome {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan matcher.Outcome, 1)
	go func() {
		done <- r.engine.Match(tctx, line, f)
	}()

	select {
	case out := <-done:
		return out
	case <-tctx.Done():
		return matcher.Outcome{TimedOut: errors.Is(tctx.Err(), context.DeadlineExceeded)}
	}
}

// shape derives recommendations, applies the confidence and partial filters,
// sorts, truncates and assigns ranks.
func shape(accs []accumulator, lines int, opts Options) []Recommendation {
	recs := make([]Recommendation, 0, len(accs))
	for _, a := range accs {
		rec := a.recommendation(lines)
		if rec.Confidence < opts.MinConfidence {
			continue
		}
		if !opts.IncludePartialMatches && !rec.Exact {
			continue
		}
		recs = append(recs, rec)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Exact != b.Exact {
			return a.Exact
		}
		return a.Format.ID < b.Format.ID
	})

	if opts.MaxResults > 0 && len(recs) > opts.MaxResults {
		recs = recs[:opts.MaxResults]
	}
	for i := range recs {
		recs[i].Rank = i + 1
	}
	return recs
}

// Reload re-reads the catalog from the configured source, swaps it in and
// drops compiled templates and memoized results. The previous catalog stays
// active when loading fails or yields no formats.
func (r *Recommender) Reload(ctx context.Context) (int, error) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	if r.source == nil {
		return 0, ErrNoSource
	}

	snap, err := r.source(ctx)
	if err == nil && (snap == nil || snap.Catalog == nil || snap.Catalog.Len() == 0) {
		err = ErrNoFormats
	}
	if err != nil {
		r.observer.ObserveReload(0, err)
		r.logger.Error().Err(err).Msg("Catalog reload failed")
		return 0, fmt.Errorf("reloading catalog: %w", err)
	}

	cat := snap.Catalog
	if snap.Library != nil {
		r.engine.Compiler().Swap(snap.Library)
	} else {
		r.engine.Compiler().Reset()
	}
	r.catalog.Store(cat)
	if r.memo != nil {
		r.memo.Purge()
	}

	r.observer.ObserveReload(cat.Len(), nil)
	r.logger.Info().
		Int("formats", cat.Len()).
		Int("patterns", cat.PatternCount()).
		Msg("Catalog reloaded")
	return cat.Len(), nil
}

// AvailableFormats returns every loaded format.
func (r *Recommender) AvailableFormats() []*catalog.Format {
	return r.Catalog().All()
}

// FormatsByGroup returns the formats of group.
func (r *Recommender) FormatsByGroup(group string) []*catalog.Format {
	return r.Catalog().ByGroup(group)
}

// Format returns a format by ID.
func (r *Recommender) Format(id string) (*catalog.Format, bool) {
	return r.Catalog().Get(id)
}

// GroupStatistics counts formats per group.
func (r *Recommender) GroupStatistics() map[string]int {
	return r.Catalog().GroupStatistics()
}

// VendorStatistics counts formats per vendor.
func (r *Recommender) VendorStatistics() map[string]int {
	return r.Catalog().VendorStatistics()
}
