package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vietddude/governor/internal/core/domain"
	"github.com/vietddude/governor/internal/core/taskset"
	"github.com/vietddude/governor/internal/infra/ledger"
)

const self = domain.Address("0xgov")

type mockSource struct {
	mu      sync.Mutex
	games   []*domain.Game
	filters []ledger.GameFilter
	readErr error
}

func (m *mockSource) ListGames(ctx context.Context, f ledger.GameFilter) ([]domain.GameID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = append(m.filters, f)

	var ids []domain.GameID
	for _, g := range m.games {
		if g.State == f.State && g.GovernedBy(f.Governor) {
			ids = append(ids, g.ID)
		}
	}
	if f.Offset >= len(ids) {
		return nil, nil
	}
	end := min(f.Offset+f.Limit, len(ids))
	return ids[f.Offset:end], nil
}

func (m *mockSource) ReadGame(ctx context.Context, id domain.GameID) (*domain.Game, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.games {
		if g.ID == id {
			cp := *g
			return &cp, nil
		}
	}
	return nil, ledger.ErrGameNotFound
}

func (m *mockSource) resolve(id domain.GameID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.games {
		if g.ID == id {
			g.State = domain.GameStateResolved
		}
	}
}

// claimLauncher claims through a task set and never releases, standing in
// for tasks that are still running.
type claimLauncher struct {
	set      *taskset.Memory
	mu       sync.Mutex
	launched []domain.GameID
}

func (l *claimLauncher) Enabled() bool { return true }

func (l *claimLauncher) Launch(ctx context.Context, game *domain.Game) bool {
	ok, _ := l.set.Claim(ctx, game.ID)
	if ok {
		l.mu.Lock()
		l.launched = append(l.launched, game.ID)
		l.mu.Unlock()
	}
	return ok
}

func started(id domain.GameID) *domain.Game {
	return &domain.Game{ID: id, State: domain.GameStateStarted, Governor: self}
}

func TestScan_LaunchesStartedGames(t *testing.T) {
	src := &mockSource{games: []*domain.Game{
		started(1),
		started(2),
		{ID: 3, State: domain.GameStateResolved, Governor: self},
		{ID: 4, State: domain.GameStateStarted, Governor: "0xother"},
		started(5),
	}}
	launcher := &claimLauncher{set: taskset.NewMemory()}

	s := NewScanner(Config{Self: self, Source: src, Launcher: launcher, PageSize: 2})
	n, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 launches, got %d", n)
	}

	want := []domain.GameID{1, 2, 5}
	for i, id := range want {
		if launcher.launched[i] != id {
			t.Errorf("launch %d: expected game %d, got %d", i, id, launcher.launched[i])
		}
	}

	for _, f := range src.filters {
		if f.State != domain.GameStateStarted || f.Governor != self || f.Limit != 2 {
			t.Errorf("unexpected filter: %+v", f)
		}
	}
}

// resolvingLauncher resolves each game on the ledger as soon as it is
// launched, like a task that finishes while the scan is still running.
type resolvingLauncher struct {
	src      *mockSource
	launched []domain.GameID
}

func (l *resolvingLauncher) Enabled() bool { return true }

func (l *resolvingLauncher) Launch(ctx context.Context, game *domain.Game) bool {
	l.launched = append(l.launched, game.ID)
	l.src.resolve(game.ID)
	return true
}

func TestScan_GamesResolvingMidScanDoNotHideLaterPages(t *testing.T) {
	src := &mockSource{games: []*domain.Game{
		started(1), started(2), started(3), started(4), started(5), started(6),
	}}
	launcher := &resolvingLauncher{src: src}

	s := NewScanner(Config{Self: self, Source: src, Launcher: launcher, PageSize: 2})
	n, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if n != 6 {
		t.Errorf("expected 6 launches, got %d (%v)", n, launcher.launched)
	}
	for i, id := range []domain.GameID{1, 2, 3, 4, 5, 6} {
		if i >= len(launcher.launched) || launcher.launched[i] != id {
			t.Errorf("launch %d: expected game %d, got %v", i, id, launcher.launched)
			break
		}
	}
}

func TestScan_Idempotent(t *testing.T) {
	src := &mockSource{games: []*domain.Game{started(1), started(2)}}
	launcher := &claimLauncher{set: taskset.NewMemory()}
	s := NewScanner(Config{Self: self, Source: src, Launcher: launcher})

	first, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("first scan failed: %v", err)
	}
	second, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("second scan failed: %v", err)
	}

	if first != 2 {
		t.Errorf("expected 2 launches on first scan, got %d", first)
	}
	if second != 0 {
		t.Errorf("expected 0 launches on second scan, got %d", second)
	}
}

func TestScan_SkipsGamesResolvedSinceListing(t *testing.T) {
	src := &racingSource{
		mockSource: &mockSource{games: []*domain.Game{started(6)}},
		resolved:   map[domain.GameID]bool{6: true},
	}
	launcher := &claimLauncher{set: taskset.NewMemory()}
	s := NewScanner(Config{Self: self, Source: src, Launcher: launcher})

	n, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no launch for a game resolved after listing, got %d", n)
	}
}

// racingSource lists games as Started but reads some back as Resolved.
type racingSource struct {
	*mockSource
	resolved map[domain.GameID]bool
}

func (r *racingSource) ReadGame(ctx context.Context, id domain.GameID) (*domain.Game, error) {
	g, err := r.mockSource.ReadGame(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.resolved[id] {
		cp := *g
		cp.State = domain.GameStateResolved
		return &cp, nil
	}
	return g, nil
}

func TestScan_ReadError(t *testing.T) {
	src := &mockSource{
		games:   []*domain.Game{started(1)},
		readErr: errors.New("connection refused"),
	}
	launcher := &claimLauncher{set: taskset.NewMemory()}
	s := NewScanner(Config{Self: self, Source: src, Launcher: launcher})

	if _, err := s.Scan(context.Background()); err == nil {
		t.Fatal("expected error when state reads fail")
	}
	if len(launcher.launched) != 0 {
		t.Errorf("expected no launches, got %v", launcher.launched)
	}
}

func TestScan_SkipsGamesNotFound(t *testing.T) {
	src := &phantomSource{
		mockSource: &mockSource{games: []*domain.Game{started(1), started(2)}},
		missing:    2,
	}
	launcher := &claimLauncher{set: taskset.NewMemory()}
	s := NewScanner(Config{Self: self, Source: src, Launcher: launcher})

	n, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if n != 1 || launcher.launched[0] != 1 {
		t.Errorf("expected only game 1 launched, got %v", launcher.launched)
	}
}

// phantomSource lists a game that the ledger then reports as unknown.
type phantomSource struct {
	*mockSource
	missing domain.GameID
}

func (p *phantomSource) ReadGame(ctx context.Context, id domain.GameID) (*domain.Game, error) {
	if id == p.missing {
		return nil, ledger.ErrGameNotFound
	}
	return p.mockSource.ReadGame(ctx, id)
}
