/*
Package tracker provides the explicit context object of the progress tracker.

PURPOSE:
  A Tracker owns every registered game: its configuration, its persistence
  gateway and the single GameSession of the selected region. Every UI
  operation goes through a Tracker method, which serializes access to the
  sessions and hands persistence to the write coalescer.

FLOW OF AN EDIT:
  1. Resolve the task and its reset window from the game config
  2. Populate the window and seed the edited day's initial amounts
  3. Resolve the new reward delta against the window baseline
  4. Re-derive later days of the window, then re-seed the days after it
  5. Snapshot every changed row into the write coalescer

CONCURRENCY:
  One mutex guards every session. Coalesced writes only touch snapshots,
  so they run without it.

SEE ALSO:
  - handlers.go: Mutation handlers
  - writes.go: Coalescer keys and snapshots
  - report.go: Text ledger
*/
package tracker

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/progress-tracker/coalescer"
	"github.com/warp/progress-tracker/currency"
	"github.com/warp/progress-tracker/factory"
	"github.com/warp/progress-tracker/ledger"
)

// ViewAhead is how many days past the selected day a view refresh loads.
const ViewAhead = 7

type game struct {
	cfg       *factory.GameConfig
	gw        ledger.Gateway
	session   *ledger.GameSession
	lastToday ledger.DateKey
}

// Tracker owns the games and their sessions.
type Tracker struct {
	mu     sync.Mutex
	games  map[string]*game
	writes *coalescer.Coalescer
	buf    *writeBuffer
	now    func() time.Time
	logger logrus.FieldLogger
}

// Options configures a Tracker.
type Options struct {
	// Now is the wall clock; time.Now when nil.
	Now func() time.Time
	// Logger receives tracker logs; discarded when nil.
	Logger logrus.FieldLogger
	// Writes is the write coalescer; one with the default delay when nil.
	Writes *coalescer.Coalescer
}

// New creates an empty tracker.
func New(opts Options) *Tracker {
	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	writes := opts.Writes
	if writes == nil {
		writes = coalescer.New(coalescer.DefaultDelay, coalescer.WithLogger(logger))
	}
	return &Tracker{
		games:  make(map[string]*game),
		writes: writes,
		buf:    newWriteBuffer(),
		now:    now,
		logger: logger,
	}
}

// AddGame registers a game with its gateway.
func (t *Tracker) AddGame(cfg *factory.GameConfig, gw ledger.Gateway) error {
	if gw == nil {
		return fmt.Errorf("game %s: %w", cfg.ID, ledger.ErrNoGateway)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.games[cfg.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateGame, cfg.ID)
	}
	t.games[cfg.ID] = &game{cfg: cfg, gw: gw}
	return nil
}

// =============================================================================
// GAME LIST
// =============================================================================

// GameSummary is a game as listed to the UI.
type GameSummary struct {
	ID          string        `json:"id"`
	NameKey     string        `json:"name_key,omitempty"`
	Order       int           `json:"order"`
	AccentColor string        `json:"accent_color,omitempty"`
	Regions     []string      `json:"regions"`
	Tracked     []currency.ID `json:"tracked"`
	Primary     currency.ID   `json:"primary,omitempty"`
}

// Games lists registered games by display order.
func (t *Tracker) Games() []GameSummary {
	t.mu.Lock()
	cfgs := make([]*factory.GameConfig, 0, len(t.games))
	for _, g := range t.games {
		cfgs = append(cfgs, g.cfg)
	}
	t.mu.Unlock()

	factory.SortGames(cfgs)
	out := make([]GameSummary, 0, len(cfgs))
	for _, cfg := range cfgs {
		regions := make([]string, len(cfg.Regions))
		for i, r := range cfg.Regions {
			regions[i] = r.ID
		}
		primary, _ := cfg.PrimaryCurrency()
		out = append(out, GameSummary{
			ID:          cfg.ID,
			NameKey:     cfg.NameKey,
			Order:       cfg.SortOrder(),
			AccentColor: cfg.AccentColor,
			Regions:     regions,
			Tracked:     cfg.TrackedCurrencies(),
			Primary:     primary,
		})
	}
	return out
}

// Config returns a game's configuration.
func (t *Tracker) Config(gameID string) (*factory.GameConfig, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.games[gameID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	return g.cfg, nil
}

// =============================================================================
// SESSIONS
// =============================================================================

// session returns a game and its session, creating the session in the
// game's first region on first use. Caller holds t.mu.
func (t *Tracker) session(gameID string) (*game, *ledger.GameSession, error) {
	g, ok := t.games[gameID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	if g.session == nil {
		g.session = t.newSession(g, g.cfg.DefaultRegion())
		g.lastToday = g.session.Today()
	}
	return g, g.session, nil
}

func (t *Tracker) newSession(g *game, region ledger.Region) *ledger.GameSession {
	return ledger.NewGameSession(g.cfg.ID, region, ledger.SessionOptions{
		Tracked: g.cfg.TrackedCurrencies(),
		Gateway: g.gw,
		Now:     t.now,
		Logger:  t.logger,
	})
}

// ensureSeeded populates date and seeds its initial amounts from the day
// before, unless they were already seeded or loaded.
func ensureSeeded(ctx context.Context, s *ledger.GameSession, date ledger.DateKey) error {
	if err := s.PopulateSessionData(ctx, date); err != nil {
		return err
	}
	if s.Day(date).Seeded() {
		return nil
	}
	return s.PopulateInitialCurrencyValue(ctx, date)
}

// =============================================================================
// VIEW
// =============================================================================

// View is the state the UI renders for one game.
type View struct {
	Game        string           `json:"game"`
	Region      string           `json:"region"`
	SelectedDay ledger.DateKey   `json:"selected_day"`
	Today       ledger.DateKey   `json:"today"`
	NextReset   time.Time        `json:"next_reset"`
	Tracked     []currency.ID    `json:"tracked"`
	Primary     currency.ID      `json:"primary,omitempty"`
	Balance     []currency.Value `json:"balance"`
	Pulls       map[string]int64 `json:"pulls,omitempty"`
	Day         *ledger.DayData  `json:"day"`
}

// UpdateGameView refreshes the selected day of a game and returns its view.
func (t *Tracker) UpdateGameView(ctx context.Context, gameID string) (View, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, s, err := t.session(gameID)
	if err != nil {
		return View{}, err
	}
	return t.refresh(ctx, g, s)
}

// refresh loads the selected day's windows and builds the view. Caller holds t.mu.
func (t *Tracker) refresh(ctx context.Context, g *game, s *ledger.GameSession) (View, error) {
	sel := s.LastSelectedDay
	start := g.cfg.EarliestWindowStart(sel)
	if err := s.PopulateSessionDateRange(ctx, start, sel.AddDays(ViewAhead)); err != nil {
		return View{}, fmt.Errorf("populate view of %s: %w", g.cfg.ID, err)
	}
	if err := ensureSeeded(ctx, s, sel); err != nil {
		return View{}, fmt.Errorf("seed %s of %s: %w", sel, g.cfg.ID, err)
	}

	day := s.Day(sel)
	balance := day.EffectiveCurrencies()
	primary, _ := g.cfg.PrimaryCurrency()
	v := View{
		Game:        g.cfg.ID,
		Region:      s.Region.ID,
		SelectedDay: sel,
		Today:       s.Today(),
		NextReset:   s.NextReset(),
		Tracked:     s.Tracked(),
		Primary:     primary,
		Balance:     balance,
		Day:         day.Clone(),
	}
	if len(g.cfg.Gacha) > 0 {
		v.Pulls = make(map[string]int64, len(g.cfg.Gacha))
		for _, b := range g.cfg.Gacha {
			v.Pulls[b.ID] = b.Pulls(balance)
		}
	}
	return v, nil
}

// SelectDay moves a game's focus to date and refreshes its view.
func (t *Tracker) SelectDay(ctx context.Context, gameID string, date ledger.DateKey) (View, error) {
	if !date.Valid() {
		return View{}, fmt.Errorf("%w: date %d", ErrInvalidValue, int(date))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	g, s, err := t.session(gameID)
	if err != nil {
		return View{}, err
	}
	s.LastSelectedDay = date
	return t.refresh(ctx, g, s)
}

// SelectRegion switches a game to another region. Pending writes are
// flushed first; the new session starts on the region's current date.
func (t *Tracker) SelectRegion(ctx context.Context, gameID, regionID string) (View, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, s, err := t.session(gameID)
	if err != nil {
		return View{}, err
	}
	region, ok := g.cfg.Region(regionID)
	if !ok {
		return View{}, fmt.Errorf("%w: %s/%s", ErrRegionNotFound, gameID, regionID)
	}
	if region.ID == s.Region.ID {
		return t.refresh(ctx, g, s)
	}

	if err := t.writes.FlushAll(ctx); err != nil {
		return View{}, fmt.Errorf("flush before region switch: %w", err)
	}
	g.session = t.newSession(g, region)
	g.lastToday = g.session.Today()
	t.logger.WithFields(logrus.Fields{"game": gameID, "region": regionID}).Info("switched region")
	return t.refresh(ctx, g, g.session)
}

// Day returns a copy of one day of a game, seeded and populated.
func (t *Tracker) Day(ctx context.Context, gameID string, date ledger.DateKey) (*ledger.DayData, error) {
	if !date.Valid() {
		return nil, fmt.Errorf("%w: date %d", ErrInvalidValue, int(date))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, s, err := t.session(gameID)
	if err != nil {
		return nil, err
	}
	if err := ensureSeeded(ctx, s, date); err != nil {
		return nil, err
	}
	return s.Day(date).Clone(), nil
}

// =============================================================================
// ROLLOVER & FLUSH
// =============================================================================

// CheckRollover detects games whose region date advanced since the last
// check. A game still focused on its old current day moves to the new one;
// the new day is seeded either way. Returns the rolled-over game ids, sorted.
func (t *Tracker) CheckRollover(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.games))
	for id := range t.games {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var rolled []string
	for _, id := range ids {
		g := t.games[id]
		if g.session == nil {
			continue
		}
		s := g.session
		today := s.Today()
		if today == g.lastToday {
			continue
		}
		if s.LastSelectedDay == g.lastToday {
			s.LastSelectedDay = today
		}
		if err := ensureSeeded(ctx, s, today); err != nil {
			return rolled, fmt.Errorf("seed %s of %s: %w", today, id, err)
		}
		t.logger.WithFields(logrus.Fields{
			"game": id,
			"from": g.lastToday.String(),
			"to":   today.String(),
		}).Info("day rolled over")
		g.lastToday = today
		rolled = append(rolled, id)
	}
	return rolled, nil
}

// FlushAll writes every pending coalesced write now.
func (t *Tracker) FlushAll(ctx context.Context) error {
	return t.writes.FlushAll(ctx)
}

// Pending lists the keys of writes waiting for their debounce timer.
func (t *Tracker) Pending() []string {
	return t.writes.Pending()
}
