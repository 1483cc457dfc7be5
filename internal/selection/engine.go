package selection

import (
	"math"
	"math/rand"
	"slices"
	"time"

	"github.com/abhisek/assessor/internal/catalog"
	"github.com/abhisek/assessor/internal/difficulty"
	"github.com/abhisek/assessor/internal/performance"
	"github.com/abhisek/assessor/internal/spacedrep"
)

// Priority weights.
const (
	BasePriority     = 1
	NoveltyBoost     = 3
	WeakTopicBoost   = 2
	StrongTopicDelta = -1
)

// Engine selects items. It is safe for concurrent use.
type Engine struct {
	cfg Config
	now func() time.Time
}

// NewEngine creates an engine. A nil clock defaults to time.Now; zero
// config fields take their defaults.
func NewEngine(cfg Config, now func() time.Time) *Engine {
	def := DefaultConfig()
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = def.FreshnessWindow
	}
	if cfg.HighPriorityShare <= 0 {
		cfg.HighPriorityShare = def.HighPriorityShare
	}
	if cfg.MediumPriorityShare <= 0 {
		cfg.MediumPriorityShare = def.MediumPriorityShare
	}
	if cfg.MaxTopicShare <= 0 || cfg.MaxTopicShare > 1 {
		cfg.MaxTopicShare = def.MaxTopicShare
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{cfg: cfg, now: now}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

type candidate struct {
	item  catalog.Item
	exp   *spacedrep.Exposure
	fresh bool
	score int
}

// Select ranks the pool and returns up to req.Count picks. It never returns
// duplicate or excluded ids, and returns min(Count, eligible) picks.
func (e *Engine) Select(req Request) (*Result, error) {
	if req.Count <= 0 {
		return &Result{}, nil
	}
	now := e.now()
	rng := req.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(req.Seed))
	}
	windowDays := e.cfg.FreshnessWindow.Hours() / 24.0
	res := &Result{}

	pool := dedupe(req.Pool, req.ExcludeIDs)

	isFresh := func(it catalog.Item) bool {
		return req.History.Lookup(it.ID).IsFresh(now, windowDays)
	}
	band := req.Band
	if band == (difficulty.Band{}) {
		band = difficulty.FullBand
	}

	if len(req.Topics) > 0 {
		byTopic := filter(pool, func(it catalog.Item) bool {
			return slices.Contains(req.Topics, it.Topic)
		})
		fresh := filter(byTopic, func(it catalog.Item) bool {
			return band.Contains(it.Difficulty) && isFresh(it)
		})
		if len(fresh) < req.Count && len(byTopic) < len(pool) {
			res.Fallbacks = append(res.Fallbacks, FallbackTopic)
		} else {
			pool = byTopic
		}
	}

	inBand := filter(pool, func(it catalog.Item) bool { return band.Contains(it.Difficulty) })
	if len(inBand) == 0 && len(pool) > 0 {
		res.Fallbacks = append(res.Fallbacks, FallbackBand)
		inBand = pool
	}

	var fresh, stale []candidate
	for _, it := range inBand {
		c := candidate{item: it, exp: req.History.Lookup(it.ID)}
		c.fresh = c.exp.IsFresh(now, windowDays)
		c.score = Priority(it, c.exp, req.Profile, now)
		if c.fresh {
			fresh = append(fresh, c)
		} else {
			stale = append(stale, c)
		}
	}
	res.FreshCandidates = len(fresh)

	cands := fresh
	if len(fresh) < req.Count && len(stale) > 0 {
		res.Fallbacks = append(res.Fallbacks, FallbackFreshness)
		cands = append(cands, stale...)
	}
	res.Candidates = len(cands)
	res.WasFallback = len(res.Fallbacks) > 0
	if len(cands) == 0 {
		return res, ErrEmptyPool
	}

	order := e.rank(cands, req.Count, rng)
	res.Picks, res.TopicCapRelaxed = e.assemble(order, req.Count)

	for i := range res.Picks {
		res.Picks[i].Presentation = catalog.Present(res.Picks[i].Item, rng)
	}
	return res, nil
}

// Replace picks a single item, typically to swap the next unanswered item
// after a difficulty change. exclude should hold every id already placed in
// the session.
func (e *Engine) Replace(req Request) (*Pick, *Result, error) {
	req.Count = 1
	res, err := e.Select(req)
	if err != nil {
		return nil, res, err
	}
	if len(res.Picks) == 0 {
		return nil, res, ErrEmptyPool
	}
	return &res.Picks[0], res, nil
}

// Priority scores one item for a learner. Higher is shown sooner; the
// result is never negative.
func Priority(it catalog.Item, exp *spacedrep.Exposure, p *performance.Profile, now time.Time) int {
	score := BasePriority
	if exp == nil || exp.Attempts == 0 {
		score += NoveltyBoost
	} else {
		score += exp.Boost(now)
	}
	if p.IsWeak(it.Topic) {
		score += WeakTopicBoost
	}
	if p.IsStrong(it.Topic) {
		score += StrongTopicDelta
	}
	return max(score, 0)
}

type ranked struct {
	candidate
	tier Tier
}

// rank orders candidates for assembly: fresh before readmitted, then by
// score. The high and medium tiers keep rank order; the remainder is
// shuffled so the random tier is a uniform draw from the tail.
func (e *Engine) rank(cands []candidate, count int, rng *rand.Rand) []ranked {
	// Pre-shuffle so equal scores do not always favour catalog order.
	rng.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })
	slices.SortStableFunc(cands, func(a, b candidate) int {
		if a.fresh != b.fresh {
			if a.fresh {
				return -1
			}
			return 1
		}
		return b.score - a.score
	})

	high := int(math.Ceil(float64(count) * e.cfg.HighPriorityShare))
	medium := int(math.Ceil(float64(count) * e.cfg.MediumPriorityShare))
	high = min(high, len(cands))
	medium = min(medium, len(cands)-high)

	out := make([]ranked, len(cands))
	for i, c := range cands {
		tier := TierRandom
		switch {
		case i < high:
			tier = TierHigh
		case i < high+medium:
			tier = TierMedium
		}
		out[i] = ranked{candidate: c, tier: tier}
	}
	tail := out[high+medium:]
	rng.Shuffle(len(tail), func(i, j int) { tail[i], tail[j] = tail[j], tail[i] })
	return out
}

// assemble walks the ranked list applying the topic cap. When the cap
// leaves the selection short, skipped items fill the gap in rank order.
func (e *Engine) assemble(order []ranked, count int) ([]Pick, bool) {
	limit := TopicCap(count, e.cfg.MaxTopicShare)
	perTopic := make(map[string]int)
	picks := make([]Pick, 0, min(count, len(order)))
	var skipped []ranked

	for _, r := range order {
		if len(picks) == count {
			break
		}
		if perTopic[r.item.Topic] >= limit {
			skipped = append(skipped, r)
			continue
		}
		perTopic[r.item.Topic]++
		picks = append(picks, r.pick())
	}

	relaxed := false
	for _, r := range skipped {
		if len(picks) == count {
			break
		}
		relaxed = true
		picks = append(picks, r.pick())
	}
	return picks, relaxed
}

func (r ranked) pick() Pick {
	return Pick{Item: r.item, Score: r.score, Tier: r.tier, Readmitted: !r.fresh}
}

// TopicCap is the most items of one topic a selection of count may hold.
func TopicCap(count int, share float64) int {
	return max(1, int(math.Ceil(float64(count)*share)))
}

// dedupe drops excluded ids and repeated ids, keeping the first occurrence.
func dedupe(pool []catalog.Item, exclude []string) []catalog.Item {
	seen := make(map[string]bool, len(pool)+len(exclude))
	for _, id := range exclude {
		seen[id] = true
	}
	out := make([]catalog.Item, 0, len(pool))
	for _, it := range pool {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		out = append(out, it)
	}
	return out
}

func filter(items []catalog.Item, keep func(catalog.Item) bool) []catalog.Item {
	var out []catalog.Item
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}
