package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/assessor/internal/catalog"
	"github.com/abhisek/assessor/internal/difficulty"
	"github.com/abhisek/assessor/internal/metrics"
	"github.com/abhisek/assessor/internal/performance"
	"github.com/abhisek/assessor/internal/selection"
	"github.com/abhisek/assessor/internal/store"
)

var dbCounter atomic.Int64

type fixture struct {
	svc     *Service
	store   *store.Store
	metrics *metrics.Metrics
}

type fixtureOption func(*Deps, *Options)

func withProfiles(p ProfileRepo) fixtureOption {
	return func(d *Deps, _ *Options) { d.Profiles = p }
}

func withOptions(f func(*Options)) fixtureOption {
	return func(_ *Deps, o *Options) { f(o) }
}

func testItems(n int) []catalog.Item {
	items := make([]catalog.Item, n)
	for i := range items {
		items[i] = catalog.Item{
			ID:            fmt.Sprintf("q%02d", i),
			Domain:        "math",
			Topic:         fmt.Sprintf("t%d", i%4),
			Difficulty:    i%10 + 1,
			Content:       fmt.Sprintf("question %d", i),
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: "a",
			Explanation:   "because a",
		}
	}
	return items
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	st, err := store.Open(fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbCounter.Add(1)))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = st.UpsertItems(context.Background(), testItems(40))
	require.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	deps := Deps{
		Catalog:  st,
		Log:      st,
		Profiles: st,
		Sessions: st,
		Selector: selection.NewEngine(selection.DefaultConfig(), nil),
		Controller: difficulty.NewController(difficulty.Config{
			ConfidenceBoostThreshold: 2,
			FastAnswerThreshold:      10 * time.Second,
			DropThreshold:            1,
		}, nil),
		Aggregator: performance.NewAggregator(performance.Config{DailyGoal: 10}, nil),
		Metrics:    m,
	}
	o := Options{
		SessionSize: 5,
		AutoReplace: true,
		Retry:       RetryPolicy{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond, Multiplier: 2},
	}
	for _, opt := range opts {
		opt(&deps, &o)
	}
	return &fixture{svc: New(deps, o), store: st, metrics: m}
}

func seed(v int64) *int64 { return &v }

func (f *fixture) start(t *testing.T, req StartRequest) *Session {
	t.Helper()
	if req.UserID == "" {
		req.UserID = "u1"
	}
	if req.Domain == "" {
		req.Domain = "math"
	}
	if req.Seed == nil {
		req.Seed = seed(7)
	}
	sess, err := f.svc.Start(context.Background(), req)
	require.NoError(t, err)
	return sess
}

func (f *fixture) answer(t *testing.T, sess *Session, pos int, correct bool) *AnswerOutcome {
	t.Helper()
	cur, err := f.svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	pi := cur.Items[pos]
	ans := pi.Presentation.Correct
	if !correct {
		ans = "definitely wrong"
	}
	out, err := f.svc.Submit(context.Background(), AnswerRequest{
		SessionID: sess.ID,
		ItemID:    pi.Item.ID,
		Answer:    ans,
		TimeSpent: 2 * time.Second,
	})
	require.NoError(t, err)
	return out
}

func TestStartSelectsAndPersists(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t, StartRequest{})

	assert.Len(t, sess.Items, 5)
	assert.Equal(t, difficulty.Easy, sess.Difficulty.Level)
	seen := map[string]bool{}
	for i, it := range sess.Items {
		assert.Equal(t, i, it.Position)
		assert.False(t, seen[it.Item.ID], "duplicate %s", it.Item.ID)
		seen[it.Item.ID] = true
		assert.True(t, difficulty.Easy.Band().Contains(it.Item.Difficulty))
		assert.Contains(t, it.Presentation.Options, it.Presentation.Correct)
	}

	got, err := f.svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Items, got.Items)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActiveSessions))
}

func TestStartRequiresUserAndDomain(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Start(context.Background(), StartRequest{Domain: "math"})
	assert.Error(t, err)
}

func TestStartEmptyPool(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Start(context.Background(), StartRequest{UserID: "u1", Domain: "history"})
	assert.ErrorIs(t, err, selection.ErrEmptyPool)
}

func TestStartSameSeedSameItems(t *testing.T) {
	f := newFixture(t)
	a := f.start(t, StartRequest{Seed: seed(42)})
	b := f.start(t, StartRequest{Seed: seed(42)})

	ids := func(s *Session) []string {
		var out []string
		for _, it := range s.Items {
			out = append(out, it.Item.ID)
		}
		return out
	}
	assert.Equal(t, ids(a), ids(b))
}

func TestStartUsesAdaptiveLevel(t *testing.T) {
	f := newFixture(t)
	p := performance.NewProfile("u1", "math")
	p.Overall.Total = 12
	p.Adaptive.CurrentLevel = difficulty.Hard
	_, err := f.store.SaveProfile(context.Background(), p, 0)
	require.NoError(t, err)

	sess := f.start(t, StartRequest{})
	assert.Equal(t, difficulty.Hard, sess.Difficulty.Level)

	fixed := difficulty.Medium
	sess = f.start(t, StartRequest{FixedLevel: &fixed})
	assert.Equal(t, difficulty.Medium, sess.Difficulty.Level)
	assert.True(t, sess.FixedLevel)
}

func TestStartAdaptiveAfterThreshold(t *testing.T) {
	f := newFixture(t, withOptions(func(o *Options) { o.AdaptiveAfter = 20 }))
	p := performance.NewProfile("u1", "math")
	p.Overall.Total = 12
	p.Adaptive.CurrentLevel = difficulty.Hard
	_, err := f.store.SaveProfile(context.Background(), p, 0)
	require.NoError(t, err)

	sess := f.start(t, StartRequest{})
	assert.Equal(t, difficulty.Easy, sess.Difficulty.Level)
}

func TestSubmitRecordsAnswer(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t, StartRequest{})

	out := f.answer(t, sess, 0, true)
	assert.True(t, out.Correct)
	assert.Equal(t, "a", out.CorrectAnswer)
	assert.Equal(t, "because a", out.Explanation)
	assert.Equal(t, 4, out.Remaining)
	assert.Equal(t, 1, out.Profile.Overall.Total)
	assert.True(t, out.Item.Answered)

	stored, err := f.svc.Profile(context.Background(), "u1", "math")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Overall.Total)
	assert.Equal(t, 100, stored.Overall.Accuracy)

	attempts, err := f.store.QueryByUser(context.Background(), "u1", "math")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, sess.ID, attempts[0].SessionID)
	assert.InDelta(t, 2.0, attempts[0].TimeSpentSeconds, 1e-9)
}

func TestSubmitLetterAnswer(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t, StartRequest{})
	pi := sess.Items[0]
	letter := string(rune('A' + pi.Presentation.CorrectIndex))

	out, err := f.svc.Submit(context.Background(), AnswerRequest{
		SessionID: sess.ID, ItemID: pi.Item.ID, Answer: letter, TimeSpent: time.Second,
	})
	require.NoError(t, err)
	assert.True(t, out.Correct)
}

func TestSubmitTwiceRejected(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t, StartRequest{})
	f.answer(t, sess, 0, true)

	_, err := f.svc.Submit(context.Background(), AnswerRequest{
		SessionID: sess.ID, ItemID: sess.Items[0].Item.ID, Answer: "a", TimeSpent: time.Second,
	})
	assert.ErrorIs(t, err, ErrAlreadyAnswered)

	p, err := f.svc.Profile(context.Background(), "u1", "math")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Overall.Total)
}

func TestSubmitUnknownSessionOrItem(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t, StartRequest{})

	_, err := f.svc.Submit(context.Background(), AnswerRequest{SessionID: "nope", ItemID: "q00"})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.svc.Submit(context.Background(), AnswerRequest{SessionID: sess.ID, ItemID: "missing"})
	assert.ErrorIs(t, err, ErrItemNotInSession)
}

func TestSubmitInvalidObservationLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t, StartRequest{})

	_, err := f.svc.Submit(context.Background(), AnswerRequest{
		SessionID: sess.ID, ItemID: sess.Items[0].Item.ID, Answer: "a", TimeSpent: -time.Second,
	})
	require.ErrorIs(t, err, performance.ErrInvalidObservation)
	var inv *performance.InvalidObservationError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, "time_spent", inv.Field)

	attempts, err := f.store.QueryByUser(context.Background(), "u1", "math")
	require.NoError(t, err)
	assert.Empty(t, attempts)
	_, _, err = f.store.LoadProfile(context.Background(), "u1", "math")
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := f.svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.False(t, got.Items[0].Answered)
}

func TestPromotionReplacesNextItem(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t, StartRequest{})
	placedIDs := map[string]bool{}
	for _, it := range sess.Items {
		placedIDs[it.Item.ID] = true
	}

	out := f.answer(t, sess, 0, true)
	assert.Nil(t, out.Change)
	out = f.answer(t, sess, 1, true)
	require.NotNil(t, out.Change)
	assert.Equal(t, difficulty.Easy, out.Change.From)
	assert.Equal(t, difficulty.Medium, out.Change.To)
	assert.Equal(t, difficulty.Medium, out.Level)

	require.NotNil(t, out.Replacement)
	require.NoError(t, out.ReplaceErr)
	rep := out.Replacement
	assert.Equal(t, 2, rep.Position)
	assert.True(t, rep.AdaptivelySelected)
	assert.Equal(t, difficulty.Medium, rep.AdaptiveLevel)
	assert.False(t, placedIDs[rep.Item.ID], "replacement %s was already placed", rep.Item.ID)
	assert.True(t, difficulty.Medium.Band().Contains(rep.Item.Difficulty))

	got, err := f.svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.Item.ID, got.Items[2].Item.ID)
	assert.Contains(t, got.Retired, sess.Items[2].Item.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LevelChanges.WithLabelValues("up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Replacements))
}

func TestDemotionWithoutAutoReplace(t *testing.T) {
	f := newFixture(t, withOptions(func(o *Options) { o.AutoReplace = false }))
	p := performance.NewProfile("u2", "math")
	p.Overall.Total = 1
	p.Adaptive.CurrentLevel = difficulty.Hard
	_, err := f.store.SaveProfile(context.Background(), p, 0)
	require.NoError(t, err)

	sess := f.start(t, StartRequest{UserID: "u2"})
	require.Equal(t, difficulty.Hard, sess.Difficulty.Level)
	before := sess.Items[1].Item.ID

	out := f.answer(t, sess, 0, false)
	require.NotNil(t, out.Change)
	assert.Equal(t, difficulty.Medium, out.Change.To)
	assert.Nil(t, out.Replacement)

	got, err := f.svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, before, got.Items[1].Item.ID)
}

func TestFixedLevelNeverChanges(t *testing.T) {
	f := newFixture(t)
	lvl := difficulty.Easy
	sess := f.start(t, StartRequest{FixedLevel: &lvl})

	for i := range sess.Items {
		out := f.answer(t, sess, i, true)
		assert.Nil(t, out.Change)
		assert.Equal(t, difficulty.Easy, out.Level)
	}
}

// conflictingProfiles fails the first n saves with a version conflict.
type conflictingProfiles struct {
	*store.Store
	mu        sync.Mutex
	conflicts int
	saves     int
}

func (c *conflictingProfiles) SaveProfile(ctx context.Context, p *performance.Profile, v int64) (int64, error) {
	c.mu.Lock()
	c.saves++
	if c.conflicts > 0 {
		c.conflicts--
		c.mu.Unlock()
		return 0, store.ErrConcurrentUpdate
	}
	c.mu.Unlock()
	return c.Store.SaveProfile(ctx, p, v)
}

func TestSubmitRetriesOnConflict(t *testing.T) {
	repo := &conflictingProfiles{conflicts: 2}
	f := newFixture(t, withProfiles(repo))
	repo.Store = f.store

	sess := f.start(t, StartRequest{})
	out := f.answer(t, sess, 0, true)
	assert.Equal(t, 1, out.Profile.Overall.Total)
	assert.Equal(t, 3, repo.saves)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ProfileConflicts))
}

func TestSubmitGivesUpAfterRetries(t *testing.T) {
	repo := &conflictingProfiles{conflicts: 10}
	f := newFixture(t, withProfiles(repo))
	repo.Store = f.store

	sess := f.start(t, StartRequest{})
	_, err := f.svc.Submit(context.Background(), AnswerRequest{
		SessionID: sess.ID, ItemID: sess.Items[0].Item.ID, Answer: "a", TimeSpent: time.Second,
	})
	assert.ErrorIs(t, err, store.ErrConcurrentUpdate)
	assert.Equal(t, 3, repo.saves)

	cur, err := f.svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.True(t, cur.Items[0].Pending)
	assert.False(t, cur.Items[0].Answered)
}

func TestResubmitAfterExhaustedRetriesCountsOnce(t *testing.T) {
	repo := &conflictingProfiles{conflicts: 3}
	f := newFixture(t, withProfiles(repo))
	repo.Store = f.store
	ctx := context.Background()

	sess := f.start(t, StartRequest{})
	first := sess.Items[0]
	_, err := f.svc.Submit(ctx, AnswerRequest{
		SessionID: sess.ID, ItemID: first.Item.ID, Answer: first.Presentation.Correct, TimeSpent: 3 * time.Second,
	})
	require.ErrorIs(t, err, store.ErrConcurrentUpdate)

	// The logged answer wins over whatever the retry sends.
	out, err := f.svc.Submit(ctx, AnswerRequest{
		SessionID: sess.ID, ItemID: first.Item.ID, Answer: "definitely wrong", TimeSpent: time.Second,
	})
	require.NoError(t, err)
	assert.True(t, out.Correct)
	assert.True(t, out.Item.Answered)
	assert.False(t, out.Item.Pending)
	assert.Equal(t, 4, out.Remaining)

	attempts, err := f.store.QueryByUser(ctx, "u1", "math")
	require.NoError(t, err)
	assert.Len(t, attempts, 1)

	profile, err := f.svc.Profile(ctx, "u1", "math")
	require.NoError(t, err)
	assert.Equal(t, len(attempts), profile.Overall.Total)
	assert.Equal(t, 1, profile.Overall.Correct)
	assert.Equal(t, 3.0, profile.Overall.AvgTime)

	_, err = f.svc.Submit(ctx, AnswerRequest{
		SessionID: sess.ID, ItemID: first.Item.ID, Answer: "a", TimeSpent: time.Second,
	})
	assert.ErrorIs(t, err, ErrAlreadyAnswered)
}

func TestPendingItemIsNotReplaced(t *testing.T) {
	repo := &conflictingProfiles{conflicts: 3}
	f := newFixture(t, withProfiles(repo))
	repo.Store = f.store
	ctx := context.Background()

	sess := f.start(t, StartRequest{})
	_, err := f.svc.Submit(ctx, AnswerRequest{
		SessionID: sess.ID, ItemID: sess.Items[0].Item.ID, Answer: "a", TimeSpent: time.Second,
	})
	require.Error(t, err)

	_, err = f.svc.Replace(ctx, sess.ID, 0)
	assert.ErrorIs(t, err, ErrAlreadyAnswered)

	re, err := f.svc.Reselect(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Items[0].Item.ID, re.Items[0].Item.ID)
	assert.True(t, re.Items[0].Pending)
	assert.Len(t, re.Items, 5)
}

func TestConcurrentSubmitSameItemCountsOnce(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t, StartRequest{})
	itemID := sess.Items[0].Item.ID

	var wg sync.WaitGroup
	var ok, dup atomic.Int32
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Submit(context.Background(), AnswerRequest{
				SessionID: sess.ID, ItemID: itemID, Answer: "a", TimeSpent: time.Second,
			})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrAlreadyAnswered):
				dup.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(7), dup.Load())
	p, err := f.svc.Profile(context.Background(), "u1", "math")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Overall.Total)
	assert.Equal(t, 0, f.svc.sessions.size())
}

func TestConcurrentSessionsSameUserNoLostUpdates(t *testing.T) {
	f := newFixture(t, withOptions(func(o *Options) { o.AutoReplace = false }))
	a := f.start(t, StartRequest{Seed: seed(1)})
	b := f.start(t, StartRequest{Seed: seed(2)})

	var wg sync.WaitGroup
	for _, sess := range []*Session{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, it := range sess.Items {
				_, err := f.svc.Submit(context.Background(), AnswerRequest{
					SessionID: sess.ID, ItemID: it.Item.ID, Answer: "a", TimeSpent: time.Second,
				})
				if err != nil {
					t.Errorf("submit: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	p, err := f.svc.Profile(context.Background(), "u1", "math")
	require.NoError(t, err)
	assert.Equal(t, len(a.Items)+len(b.Items), p.Overall.Total)
}

func TestReplaceExplicit(t *testing.T) {
	f := newFixture(t)
	sess := f.start(t, StartRequest{})
	f.answer(t, sess, 0, false)

	_, err := f.svc.Replace(context.Background(), sess.ID, 0)
	assert.ErrorIs(t, err, ErrAlreadyAnswered)
	_, err = f.svc.Replace(context.Background(), sess.ID, 99)
	assert.ErrorIs(t, err, ErrItemNotInSession)

	old := sess.Items[3].Item.ID
	rep, err := f.svc.Replace(context.Background(), sess.ID, 3)
	require.NoError(t, err)
	assert.NotEqual(t, old, rep.Item.ID)
	assert.Equal(t, 3, rep.Position)
	for i, it := range sess.Items {
		if i != 3 {
			assert.NotEqual(t, it.Item.ID, rep.Item.ID)
		}
	}
}

func TestReselectKeepsAnsweredFirst(t *testing.T) {
	f := newFixture(t)
	lvl := difficulty.Hard
	sess := f.start(t, StartRequest{FixedLevel: &lvl})
	f.answer(t, sess, 2, true)

	got, err := f.svc.Reselect(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 5)
	assert.Equal(t, sess.Items[2].Item.ID, got.Items[0].Item.ID)
	assert.True(t, got.Items[0].Answered)
	seen := map[string]bool{}
	for i, it := range got.Items {
		assert.Equal(t, i, it.Position)
		assert.False(t, seen[it.Item.ID])
		seen[it.Item.ID] = true
		if i > 0 {
			assert.False(t, it.Answered)
			assert.True(t, it.AdaptivelySelected)
			assert.Equal(t, difficulty.Hard, it.AdaptiveLevel)
		}
	}
}

func TestEndSummarizesAndDeletes(t *testing.T) {
	f := newFixture(t, withOptions(func(o *Options) { o.AutoReplace = false }))
	sess := f.start(t, StartRequest{})
	f.answer(t, sess, 0, true)
	f.answer(t, sess, 1, false)
	f.answer(t, sess, 2, true)

	sum, err := f.svc.End(context.Background(), sess.ID, "")
	require.NoError(t, err)
	assert.Equal(t, EndAbandoned, sum.Reason)
	assert.Equal(t, 5, sum.Total)
	assert.Equal(t, 3, sum.Answered)
	assert.Equal(t, 2, sum.Correct)
	assert.Equal(t, 67, sum.Accuracy)
	assert.Equal(t, 6*time.Second, sum.TotalTime)

	_, err = f.svc.Get(context.Background(), sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.End(context.Background(), sess.ID, EndCompleted)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.ActiveSessions))
}

func TestEndCompleted(t *testing.T) {
	f := newFixture(t)
	lvl := difficulty.Easy
	sess := f.start(t, StartRequest{FixedLevel: &lvl, Count: 2})
	f.answer(t, sess, 0, true)
	f.answer(t, sess, 1, true)

	sum, err := f.svc.End(context.Background(), sess.ID, "")
	require.NoError(t, err)
	assert.Equal(t, EndCompleted, sum.Reason)
	assert.Equal(t, 100, sum.Accuracy)
}

func TestProfileDefaultsForNewLearner(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.Profile(context.Background(), "new", "math")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Overall.Total)
	assert.Equal(t, difficulty.Easy, p.Overall.RecommendedDifficulty)
}
