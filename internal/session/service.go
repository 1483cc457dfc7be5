package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/assessor/internal/catalog"
	"github.com/abhisek/assessor/internal/difficulty"
	"github.com/abhisek/assessor/internal/history"
	"github.com/abhisek/assessor/internal/metrics"
	"github.com/abhisek/assessor/internal/performance"
	"github.com/abhisek/assessor/internal/selection"
	"github.com/abhisek/assessor/internal/spacedrep"
	"github.com/abhisek/assessor/internal/store"
)

// ProfileRepo persists performance profiles with optimistic versioning.
type ProfileRepo interface {
	LoadProfile(ctx context.Context, userID, domain string) (*performance.Profile, int64, error)
	SaveProfile(ctx context.Context, p *performance.Profile, expectedVersion int64) (int64, error)
}

// SessionRepo persists live sessions.
type SessionRepo interface {
	SaveSession(ctx context.Context, rec store.SessionRecord) error
	LoadSession(ctx context.Context, id string) (*store.SessionRecord, error)
	DeleteSession(ctx context.Context, id string) error
}

// Options tunes the service.
type Options struct {
	SessionSize  int
	InitialLevel difficulty.Level
	// AdaptiveAfter is how many answers a profile needs before sessions
	// start at its adaptive level instead of InitialLevel.
	AdaptiveAfter int
	AutoReplace   bool
	Retry         RetryPolicy
}

// Deps are the service collaborators. Logger, Metrics and Now are optional.
type Deps struct {
	Catalog    catalog.Catalog
	Log        history.Log
	Profiles   ProfileRepo
	Sessions   SessionRepo
	Selector   *selection.Engine
	Controller *difficulty.Controller
	Aggregator *performance.Aggregator
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// Service runs practice sessions.
type Service struct {
	deps     Deps
	opts     Options
	log      *zap.Logger
	now      func() time.Time
	sessions *keyedMutex
	users    *keyedMutex
}

// New creates a service.
func New(deps Deps, opts Options) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if opts.SessionSize < 1 {
		opts.SessionSize = 10
	}
	if !opts.InitialLevel.Valid() {
		opts.InitialLevel = difficulty.Easy
	}
	opts.Retry = opts.Retry.normalized()
	return &Service{
		deps:     deps,
		opts:     opts,
		log:      deps.Logger.Named("session"),
		now:      deps.Now,
		sessions: newKeyedMutex(),
		users:    newKeyedMutex(),
	}
}

// inputs is the I/O snapshot a selection call runs against.
type inputs struct {
	pool    []catalog.Item
	history spacedrep.Index
	profile *performance.Profile
}

// load fetches catalog, history and profile concurrently. The profile may
// be stale by the time selection runs; it only biases scoring.
func (s *Service) load(ctx context.Context, userID, domain string) (*inputs, error) {
	var in inputs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Topics are applied by the selector so it can relax them.
		pool, err := s.deps.Catalog.Query(gctx, catalog.Filter{Domain: domain})
		if err != nil {
			return fmt.Errorf("query catalog: %w", err)
		}
		in.pool = pool
		return nil
	})
	g.Go(func() error {
		records, err := s.deps.Log.QueryByUser(gctx, userID, domain)
		if err != nil {
			return fmt.Errorf("query history: %w", err)
		}
		in.history = history.Index(records)
		return nil
	})
	g.Go(func() error {
		p, err := s.Profile(gctx, userID, domain)
		if err != nil {
			return err
		}
		in.profile = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &in, nil
}

// Profile returns the stored profile, or a fresh one for a new learner.
func (s *Service) Profile(ctx context.Context, userID, domain string) (*performance.Profile, error) {
	p, _, err := s.deps.Profiles.LoadProfile(ctx, userID, domain)
	if errors.Is(err, store.ErrNotFound) {
		return performance.NewProfile(userID, domain), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

// startLevel picks the controller's initial level.
func (s *Service) startLevel(req StartRequest, p *performance.Profile) difficulty.Level {
	if req.FixedLevel != nil {
		return *req.FixedLevel
	}
	if p != nil && p.Overall.Total > s.opts.AdaptiveAfter {
		return p.Adaptive.CurrentLevel
	}
	return s.opts.InitialLevel
}

// Start selects items and opens a session.
func (s *Service) Start(ctx context.Context, req StartRequest) (*Session, error) {
	if req.UserID == "" || req.Domain == "" {
		return nil, errors.New("start session: user and domain are required")
	}
	if req.FixedLevel != nil && !req.FixedLevel.Valid() {
		return nil, fmt.Errorf("start session: invalid level %d", *req.FixedLevel)
	}
	count := req.Count
	if count <= 0 {
		count = s.opts.SessionSize
	}

	in, err := s.load(ctx, req.UserID, req.Domain)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	now := s.now()
	seed := now.UnixNano()
	if req.Seed != nil {
		seed = *req.Seed
	}
	level := s.startLevel(req, in.profile)
	sess := &Session{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		Domain:     req.Domain,
		Topics:     req.Topics,
		Difficulty: difficulty.NewSession(level),
		FixedLevel: req.FixedLevel != nil,
		Seed:       seed,
		StartedAt:  now,
	}

	res, err := s.selectItems(sess, in, count, nil)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	sess.WasFallback = res.WasFallback
	sess.Fallbacks = res.Fallbacks
	sess.Items = make([]PlacedItem, len(res.Picks))
	for i, pk := range res.Picks {
		sess.Items[i] = placed(i, pk)
	}

	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	s.deps.Metrics.SessionStarted()
	s.log.Debug("session started",
		zap.String("user_id", sess.UserID),
		zap.String("session_id", sess.ID),
		zap.String("domain", sess.Domain),
		zap.Stringer("level", level),
		zap.Int("items", len(sess.Items)),
		zap.Bool("was_fallback", res.WasFallback),
	)
	return sess, nil
}

// selectItems runs the selector at the session's current level.
func (s *Service) selectItems(sess *Session, in *inputs, count int, exclude []string) (*selection.Result, error) {
	start := time.Now()
	res, err := s.deps.Selector.Select(selection.Request{
		Pool:       in.pool,
		History:    in.history,
		Profile:    in.profile,
		Band:       sess.Difficulty.Level.Band(),
		Topics:     sess.Topics,
		Count:      count,
		ExcludeIDs: exclude,
		Rand:       sess.rand(),
	})
	s.deps.Metrics.ObserveSelection(reasons(res), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if res.WasFallback {
		s.log.Debug("selection widened",
			zap.String("session_id", sess.ID),
			zap.Strings("fallbacks", reasons(res)),
			zap.Int("candidates", res.Candidates),
			zap.Int("fresh_candidates", res.FreshCandidates),
		)
	}
	return res, nil
}

// rand returns a source derived from the session seed. Each draw advances
// the counter so replays of a persisted session stay deterministic.
func (sess *Session) rand() *rand.Rand {
	sess.Draws++
	return rand.New(rand.NewSource(sess.Seed + sess.Draws))
}

func reasons(res *selection.Result) []string {
	if res == nil {
		return nil
	}
	out := make([]string, len(res.Fallbacks))
	for i, r := range res.Fallbacks {
		out[i] = string(r)
	}
	return out
}

func placed(pos int, pk selection.Pick) PlacedItem {
	return PlacedItem{
		Position:     pos,
		Item:         pk.Item,
		Presentation: pk.Presentation,
		Tier:         pk.Tier,
		Readmitted:   pk.Readmitted,
	}
}

// Get returns a live session.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.fetch(ctx, id)
}

// Submit records an answer. Submissions for one session are serialized and
// an item can be answered once. When the profile update fails after the
// attempt was logged, the position stays pending and a later Submit for the
// same item completes the update with the logged answer.
func (s *Service) Submit(ctx context.Context, req AnswerRequest) (*AnswerOutcome, error) {
	unlock := s.sessions.Lock(req.SessionID)
	defer unlock()

	sess, err := s.fetch(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	i := sess.find(req.ItemID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrItemNotInSession, req.ItemID)
	}
	pi := &sess.Items[i]
	if pi.Answered {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyAnswered, req.ItemID)
	}

	// A pending position already has its attempt logged; only the profile
	// fold is retried, using the logged answer.
	answer, spent, correct := pi.Answer, pi.TimeSpent, pi.Correct
	if !pi.Pending {
		answer, spent = req.Answer, req.TimeSpent
		correct = pi.Presentation.Check(req.Answer)
	}
	obs := performance.Observation{
		Topic:      pi.Item.Topic,
		Difficulty: pi.Item.Level(),
		Correct:    correct,
		TimeSpent:  spent.Seconds(),
	}
	if err := obs.Validate(); err != nil {
		return nil, err
	}

	if !pi.Pending {
		err = s.deps.Log.Append(ctx, history.AttemptRecord{
			UserID:           sess.UserID,
			Domain:           sess.Domain,
			SessionID:        sess.ID,
			ItemID:           pi.Item.ID,
			Topic:            pi.Item.Topic,
			Difficulty:       pi.Item.Difficulty,
			Correct:          correct,
			TimeSpentSeconds: obs.TimeSpent,
			AttemptedAt:      s.now(),
		})
		if errors.Is(err, history.ErrDuplicateAttempt) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyAnswered, req.ItemID)
		}
		if err != nil {
			return nil, fmt.Errorf("append attempt: %w", err)
		}
		pi.Pending = true
		pi.Answer, pi.Correct, pi.TimeSpent = answer, correct, spent
	}

	profile, err := s.recordObservation(ctx, sess.UserID, sess.Domain, obs)
	if err != nil {
		if serr := s.save(context.WithoutCancel(ctx), sess); serr != nil {
			s.log.Warn("pending attempt not persisted",
				zap.String("session_id", sess.ID),
				zap.String("item_id", pi.Item.ID),
				zap.Error(serr),
			)
		}
		return nil, err
	}

	pi.Pending = false
	pi.Answered = true
	s.deps.Metrics.ObserveAnswer(correct, pi.Item.Level().String(), spent)

	out := &AnswerOutcome{
		Correct:       correct,
		CorrectAnswer: pi.Presentation.Correct,
		Explanation:   pi.Item.Explanation,
		Profile:       profile,
	}

	if !sess.FixedLevel {
		var change *difficulty.Change
		sess.Difficulty, change = s.deps.Controller.Transition(sess.Difficulty, difficulty.Signal{
			Index:     i,
			Correct:   correct,
			TimeSpent: spent,
		})
		if change != nil {
			out.Change = change
			s.deps.Metrics.ObserveLevelChange(change.Promoted())
			s.log.Debug("difficulty changed",
				zap.String("user_id", sess.UserID),
				zap.String("session_id", sess.ID),
				zap.String("item_id", pi.Item.ID),
				zap.Stringer("from", change.From),
				zap.Stringer("to", change.To),
				zap.String("reason", change.Reason),
			)
		}
	}
	out.Item = *pi
	out.Level = sess.Difficulty.Level

	if out.Change != nil && s.opts.AutoReplace {
		if next := sess.nextAfter(i); next >= 0 {
			rep, err := s.replaceAt(ctx, sess, next, nil)
			if err != nil {
				out.ReplaceErr = err
				s.log.Warn("replacement skipped",
					zap.String("session_id", sess.ID),
					zap.Int("position", next),
					zap.Error(err),
				)
			} else {
				out.Replacement = rep
			}
		}
	}

	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	out.Remaining = sess.Remaining()
	return out, nil
}

// recordObservation folds obs into the profile. The read, update and save
// run under a per (user, domain) lock; a version conflict from another
// process is retried against a freshly read profile.
func (s *Service) recordObservation(ctx context.Context, userID, domain string, obs performance.Observation) (*performance.Profile, error) {
	unlock := s.users.Lock(userID + "\x00" + domain)
	defer unlock()

	policy := s.opts.Retry
	var lastErr error
	for attempt := range policy.MaxAttempts {
		p, version, err := s.deps.Profiles.LoadProfile(ctx, userID, domain)
		if errors.Is(err, store.ErrNotFound) {
			p, version, err = performance.NewProfile(userID, domain), 0, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load profile: %w", err)
		}

		next, err := s.deps.Aggregator.Update(p, obs)
		if err != nil {
			return nil, err
		}

		_, err = s.deps.Profiles.SaveProfile(ctx, next, version)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, store.ErrConcurrentUpdate) {
			return nil, fmt.Errorf("save profile: %w", err)
		}
		lastErr = err
		s.deps.Metrics.ObserveConflict()
		s.log.Warn("profile update conflict",
			zap.String("user_id", userID),
			zap.String("domain", domain),
			zap.Int("attempt", attempt+1),
		)

		if attempt == policy.MaxAttempts-1 {
			break
		}
		if err := sleep(ctx, policy.backoff(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("save profile after %d attempts: %w", policy.MaxAttempts, lastErr)
}

// Replace swaps the unanswered item at position for one picked at the
// session's current level.
func (s *Service) Replace(ctx context.Context, sessionID string, position int) (*PlacedItem, error) {
	unlock := s.sessions.Lock(sessionID)
	defer unlock()

	sess, err := s.fetch(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= len(sess.Items) {
		return nil, fmt.Errorf("%w: position %d", ErrItemNotInSession, position)
	}
	if sess.Items[position].settled() {
		return nil, fmt.Errorf("%w: position %d", ErrAlreadyAnswered, position)
	}
	rep, err := s.replaceAt(ctx, sess, position, nil)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return rep, nil
}

// replaceAt picks one item excluding everything the session has placed.
// in is loaded on demand when nil.
func (s *Service) replaceAt(ctx context.Context, sess *Session, pos int, in *inputs) (*PlacedItem, error) {
	if in == nil {
		var err error
		if in, err = s.load(ctx, sess.UserID, sess.Domain); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	pick, res, err := s.deps.Selector.Replace(selection.Request{
		Pool:       in.pool,
		History:    in.history,
		Profile:    in.profile,
		Band:       sess.Difficulty.Level.Band(),
		Topics:     sess.Topics,
		ExcludeIDs: sess.excluded(),
		Rand:       sess.rand(),
	})
	s.deps.Metrics.ObserveSelection(reasons(res), time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("replace position %d: %w", pos, err)
	}

	old := sess.Items[pos].Item.ID
	sess.Retired = append(sess.Retired, old)
	item := placed(pos, *pick)
	item.AdaptivelySelected = true
	item.AdaptiveLevel = sess.Difficulty.Level
	sess.Items[pos] = item

	s.deps.Metrics.ObserveReplacement()
	s.log.Debug("item replaced",
		zap.String("session_id", sess.ID),
		zap.Int("position", pos),
		zap.String("from", old),
		zap.String("to", item.Item.ID),
	)
	return &item, nil
}

// Reselect re-runs selection for every unanswered position at the current
// level. Answered items keep their order at the front. The session may
// shrink if the pool cannot refill every position.
func (s *Service) Reselect(ctx context.Context, sessionID string) (*Session, error) {
	unlock := s.sessions.Lock(sessionID)
	defer unlock()

	sess, err := s.fetch(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var answered []PlacedItem
	exclude := append([]string(nil), sess.Retired...)
	for _, it := range sess.Items {
		if it.settled() {
			answered = append(answered, it)
			exclude = append(exclude, it.Item.ID)
		}
	}
	want := len(sess.Items) - len(answered)
	if want == 0 {
		return sess, nil
	}

	in, err := s.load(ctx, sess.UserID, sess.Domain)
	if err != nil {
		return nil, fmt.Errorf("reselect: %w", err)
	}

	res, err := s.selectItems(sess, in, want, exclude)
	if err != nil {
		return nil, fmt.Errorf("reselect: %w", err)
	}

	items := answered
	for _, pk := range res.Picks {
		it := placed(0, pk)
		it.AdaptivelySelected = true
		it.AdaptiveLevel = sess.Difficulty.Level
		items = append(items, it)
	}
	for i := range items {
		items[i].Position = i
	}
	sess.Items = items
	sess.WasFallback = res.WasFallback
	sess.Fallbacks = res.Fallbacks

	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// End closes the session and discards its difficulty state. An empty
// reason is derived from whether every item was answered.
func (s *Service) End(ctx context.Context, sessionID string, reason EndReason) (*Summary, error) {
	unlock := s.sessions.Lock(sessionID)
	defer unlock()

	sess, err := s.fetch(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = EndAbandoned
		if sess.Done() {
			reason = EndCompleted
		}
	}
	sum := summarize(sess, reason, s.now())

	if err := s.deps.Sessions.DeleteSession(ctx, sess.ID); err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}
	s.deps.Metrics.SessionEnded()
	s.log.Debug("session ended",
		zap.String("user_id", sess.UserID),
		zap.String("session_id", sess.ID),
		zap.String("reason", string(reason)),
		zap.Int("answered", sum.Answered),
		zap.Int("correct", sum.Correct),
	)
	return sum, nil
}

func (s *Service) fetch(ctx context.Context, id string) (*Session, error) {
	rec, err := s.deps.Sessions.LoadSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(rec.Data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *Service) save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	err = s.deps.Sessions.SaveSession(ctx, store.SessionRecord{
		ID:        sess.ID,
		UserID:    sess.UserID,
		Domain:    sess.Domain,
		Data:      data,
		StartedAt: sess.StartedAt,
		UpdatedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
