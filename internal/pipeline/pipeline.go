// Package pipeline orchestrates an extraction run: filings in, committed
// snapshots and review items out.
package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ta-tracker/internal/canonical"
	"github.com/sells-group/ta-tracker/internal/extract"
	"github.com/sells-group/ta-tracker/internal/model"
	"github.com/sells-group/ta-tracker/internal/resolve"
	"github.com/sells-group/ta-tracker/internal/review"
	"github.com/sells-group/ta-tracker/internal/store"
	"github.com/sells-group/ta-tracker/internal/timeseries"
)

// DefaultWorkers is the per-stage worker count when nothing is configured.
const DefaultWorkers = 4

// Pipeline wires the extractor, canonicalizer, resolver, merger and review
// queue into a single run.
type Pipeline struct {
	store     store.Store
	extractor *extract.Extractor
	canon     *canonical.Canonicalizer
	merger    *timeseries.Merger
	queue     *review.Queue
	policy    resolve.Policy
	workers   int
	log       *zap.Logger
}

// New creates a Pipeline. workers <= 0 falls back to DefaultWorkers.
func New(
	st store.Store,
	ex *extract.Extractor,
	canon *canonical.Canonicalizer,
	queue *review.Queue,
	policy resolve.Policy,
	workers int,
) *Pipeline {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pipeline{
		store:     st,
		extractor: ex,
		canon:     canon,
		merger:    timeseries.NewMerger(st),
		queue:     queue,
		policy:    policy,
		workers:   workers,
		log:       zap.L().With(zap.String("component", "pipeline")),
	}
}

type periodKey struct {
	cik    string
	period string
}

// Run drains the filings channel, extracts and scores mentions, resolves each
// (issuer, period) and merges the outcomes. A filing that fails to parse is
// counted as skipped, not fatal. The whole run is recorded in the run log.
func (p *Pipeline) Run(ctx context.Context, filings <-chan model.Filing, note string) (*model.RunSummary, error) {
	runID, err := p.store.StartRun(ctx, note)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: start run")
	}

	summary, err := p.run(ctx, filings)
	if err != nil {
		if failErr := p.store.FailRun(ctx, runID, err.Error()); failErr != nil {
			p.log.Warn("failed to record run failure", zap.Error(failErr))
		}
		return nil, err
	}

	if err := p.store.CompleteRun(ctx, runID, *summary); err != nil {
		return nil, eris.Wrap(err, "pipeline: complete run")
	}
	p.log.Info("run complete",
		zap.String("run_id", runID),
		zap.Int("filings", summary.FilingsProcessed),
		zap.Int("mentions", summary.Mentions),
		zap.Int("committed", summary.Committed),
		zap.Int("review_queued", summary.ReviewQueued),
		zap.Int("conflicts", summary.Conflicts),
	)
	return summary, nil
}

func (p *Pipeline) run(ctx context.Context, filings <-chan model.Filing) (*model.RunSummary, error) {
	var summary model.RunSummary

	candidates, err := p.scoreFilings(ctx, filings, &summary)
	if err != nil {
		return nil, err
	}

	if err := p.resolveAll(ctx, candidates, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// scoreFilings extracts mentions from every filing and canonicalizes them,
// accumulating scored candidates per (issuer, period). Extraction and
// canonicalization are pure, so filings fan out across workers freely.
func (p *Pipeline) scoreFilings(ctx context.Context, filings <-chan model.Filing, summary *model.RunSummary) (map[periodKey][]model.ScoredCandidate, error) {
	var mu sync.Mutex
	acc := make(map[periodKey][]model.ScoredCandidate)
	histories := newHistoryCache(p.store)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case f, ok := <-filings:
					if !ok {
						return nil
					}
					if f.CIK == "" || f.Period == "" {
						mu.Lock()
						summary.FilingsSkipped++
						mu.Unlock()
						continue
					}

					mentions := p.extractor.Extract(f)

					history, err := histories.get(ctx, f.CIK)
					if err != nil {
						return err
					}

					scored := make([]model.ScoredCandidate, 0, len(mentions))
					for _, m := range mentions {
						match := p.canon.Canonicalize(m.Raw, history)
						scored = append(scored, model.ScoredCandidate{
							MentionCandidate: m,
							AgentID:          match.AgentID,
							Confidence:       match.Confidence,
							Method:           match.Method,
						})
					}

					mu.Lock()
					summary.FilingsProcessed++
					summary.Mentions += len(scored)
					key := periodKey{cik: f.CIK, period: f.Period}
					acc[key] = append(acc[key], scored...)
					mu.Unlock()
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: score filings")
	}
	return acc, nil
}

// resolveAll resolves and merges every accumulated (issuer, period). Work is
// partitioned so one goroutine owns all periods of a given issuer; merges for
// an issuer are therefore serialized without store-level locking.
func (p *Pipeline) resolveAll(ctx context.Context, candidates map[periodKey][]model.ScoredCandidate, summary *model.RunSummary) error {
	byCIK := make(map[string][]periodKey)
	for key := range candidates {
		byCIK[key.cik] = append(byCIK[key.cik], key)
	}
	ciks := make([]string, 0, len(byCIK))
	for cik := range byCIK {
		ciks = append(ciks, cik)
		sort.Slice(byCIK[cik], func(i, j int) bool { return byCIK[cik][i].period < byCIK[cik][j].period })
	}
	sort.Strings(ciks)
	summary.Issuers = len(ciks)

	work := make(chan string)
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for cik := range work {
				for _, key := range byCIK[cik] {
					outcome := resolve.Resolve(key.cik, key.period, candidates[key], p.policy, time.Now().UTC())
					switch outcome.Kind {
					case resolve.OutcomeNone:
						continue
					case resolve.OutcomeSnapshot:
						result, err := p.merger.Merge(ctx, *outcome.Snapshot)
						if err != nil {
							return err
						}
						mu.Lock()
						switch result {
						case timeseries.MergeInsert, timeseries.MergeReplace:
							summary.Committed++
						case timeseries.MergeConflict:
							summary.Conflicts++
						}
						mu.Unlock()
					case resolve.OutcomeReview:
						if err := p.queue.Enqueue(ctx, *outcome.Review); err != nil {
							return err
						}
						mu.Lock()
						summary.ReviewQueued++
						mu.Unlock()
					}
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(work)
		for _, cik := range ciks {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case work <- cik:
			}
		}
		return nil
	})

	return eris.Wrap(g.Wait(), "pipeline: resolve")
}

// historyCache lazily loads each issuer's committed agent counts once per run.
// Histories only break canonicalization ties, so reading them at run start is
// sufficient.
type historyCache struct {
	store store.Store
	mu    sync.Mutex
	data  map[string]map[string]int
}

func newHistoryCache(st store.Store) *historyCache {
	return &historyCache{store: st, data: make(map[string]map[string]int)}
}

func (h *historyCache) get(ctx context.Context, cik string) (map[string]int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if hist, ok := h.data[cik]; ok {
		return hist, nil
	}
	hist, err := h.store.AgentHistory(ctx, cik)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load agent history %s", cik)
	}
	h.data[cik] = hist
	return hist, nil
}
