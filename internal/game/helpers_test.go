package game

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-arena/internal/anticheat"
)

type staticProblems struct {
	problems []Problem
}

func (s *staticProblems) RandomProblem(ctx context.Context, difficulty string) (Problem, error) {
	for _, p := range s.problems {
		if difficulty == "" || p.Difficulty == difficulty {
			return p, nil
		}
	}
	return Problem{}, ErrNoProblemsAvailable
}

func defaultProblems() *staticProblems {
	return &staticProblems{problems: []Problem{
		{ID: "reverse-string", Title: "Reverse a string", Description: "Return s reversed.", Example: "reverse_string('abc') == 'cba'", Difficulty: "medium"},
		{ID: "fizzbuzz", Title: "FizzBuzz", Description: "Classic.", Example: "fizzbuzz(3) == 'Fizz'", Difficulty: "easy"},
	}}
}

type countingGrader struct {
	calls atomic.Int64
	score func(req GradeRequest) int
}

func (g *countingGrader) Grade(ctx context.Context, req GradeRequest) (Grading, error) {
	g.calls.Add(1)
	score := 80
	if g.score != nil {
		score = g.score(req)
	}
	return Grading{TotalScore: score, Feedback: "ok", Provider: "stub"}, nil
}

type failingGrader struct{ err error }

func (g failingGrader) Grade(ctx context.Context, req GradeRequest) (Grading, error) {
	return Grading{}, g.err
}

// stuckGrader ignores its context entirely.
type stuckGrader struct{ delay time.Duration }

func (g stuckGrader) Grade(ctx context.Context, req GradeRequest) (Grading, error) {
	time.Sleep(g.delay)
	return Grading{TotalScore: 100}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) count(eventType EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, e := range n.events {
		if e.Type == eventType {
			total++
		}
	}
	return total
}

func (n *recordingNotifier) last(eventType EventType) (Event, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].Type == eventType {
			return n.events[i], true
		}
	}
	return Event{}, false
}

// scriptedScreener returns a fixed verdict per user and accepts everyone else.
type scriptedScreener struct {
	mu       sync.Mutex
	verdicts map[string]anticheat.Verdict
	accepted []string
}

func (s *scriptedScreener) Screen(ctx context.Context, in anticheat.Input) anticheat.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	if verdict, ok := s.verdicts[in.UserID]; ok {
		return verdict
	}
	return anticheat.Verdict{Action: anticheat.ActionAccept, Violations: []string{}}
}

func (s *scriptedScreener) Accept(ctx context.Context, in anticheat.Input) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepted = append(s.accepted, in.UserID)
}

func (s *scriptedScreener) acceptedUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.accepted...)
}

type memoryStore struct {
	mu    sync.Mutex
	items map[string][]byte
	fail  bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{items: make(map[string][]byte)}
}

func (m *memoryStore) Get(ctx context.Context, sessionID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.items[sessionID]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), payload...), nil
}

func (m *memoryStore) Set(ctx context.Context, sessionID string, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return context.DeadlineExceeded
	}
	m.items[sessionID] = append([]byte(nil), payload...)
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, sessionID)
	return nil
}

// versionedStore only accepts snapshots newer than the stored one.
type versionedStore struct {
	*memoryStore
	versions map[string]int64
}

func newVersionedStore() *versionedStore {
	return &versionedStore{memoryStore: newMemoryStore(), versions: make(map[string]int64)}
}

func (v *versionedStore) SetVersion(ctx context.Context, sessionID string, version int64, payload []byte, ttl time.Duration) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if version <= v.versions[sessionID] {
		return false, nil
	}
	v.versions[sessionID] = version
	v.items[sessionID] = append([]byte(nil), payload...)
	return true, nil
}

type memoryArchive struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot
}

func (a *memoryArchive) Archive(ctx context.Context, snapshot Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.snapshots == nil {
		a.snapshots = make(map[string]Snapshot)
	}
	a.snapshots[snapshot.ID] = snapshot
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testDeps() Dependencies {
	return Dependencies{
		Problems:       defaultProblems(),
		GradingTimeout: time.Second,
		Logger:         zerolog.Nop(),
	}
}

func testConfig(maxPlayers, maxRounds int, autoStart bool) SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.MaxPlayers = maxPlayers
	cfg.MaxRounds = maxRounds
	cfg.AutoStart = autoStart
	return cfg
}

func join(t *testing.T, s *GameSession, userID string) ConnectionID {
	t.Helper()
	conn := ConnectionID("conn-" + userID)
	require.NoError(t, s.AddPlayer(context.Background(), userID, conn, userID))
	return conn
}
