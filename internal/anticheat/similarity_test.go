package anticheat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryHistory struct {
	mu        sync.Mutex
	solutions []Solution
}

func (m *memoryHistory) RecentSolutions(ctx context.Context, problemID string, since time.Time, limit int) ([]Solution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Solution
	for _, s := range m.solutions {
		if s.ProblemID == problemID && !s.SubmittedAt.Before(since) {
			out = append(out, s)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryHistory) SaveSolution(ctx context.Context, solution Solution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.solutions = append(m.solutions, solution)
	return nil
}

func TestNormalizeIgnoresNamesAndComments(t *testing.T) {
	a := Normalize("def add(a, b):\n    # sum\n    return a + b\n", "python")
	b := Normalize("def plus(x, y):\n    return x + y  # renamed\n", "python")
	require.Equal(t, a, b)
	require.Equal(t, Fingerprint(a), Fingerprint(b))
	require.Equal(t, "def", a[0])
	require.Equal(t, "v0", a[1])
}

func TestNormalizeReplacesStringLiterals(t *testing.T) {
	tokens := Normalize(`console.log("hello"); /* note */ let x = 'a';`, "javascript")
	require.NotContains(t, tokens, `"hello"`)
	require.Contains(t, tokens, "STR")
	require.NotContains(t, tokens, "note")
}

func TestSimilarityIndexFlagsCopiedSolution(t *testing.T) {
	history := &memoryHistory{}
	index := NewSimilarityIndex(history, SimilarityConfig{})
	now := time.Now().UTC()

	original := Input{UserID: "alice", SessionID: "s1", ProblemID: "p1", Language: "python", Code: "def reverse_string(s):\n    return s[::-1]\n", SubmittedAt: now.Add(-time.Hour)}
	require.NoError(t, index.Remember(context.Background(), original))

	copied := Input{UserID: "bob", SessionID: "s2", ProblemID: "p1", Language: "python", Code: "def rev(text):\n    # flipped\n    return text[::-1]\n", SubmittedAt: now}
	result, err := index.Check(context.Background(), copied)
	require.NoError(t, err)
	require.Equal(t, 60, result.Score)
	require.Equal(t, "similarity", result.Findings[0].Category)
}

func TestSimilarityIndexSkipsOwnSolutionsAndOtherProblems(t *testing.T) {
	history := &memoryHistory{}
	index := NewSimilarityIndex(history, SimilarityConfig{})
	now := time.Now().UTC()
	code := "def reverse_string(s):\n    return s[::-1]\n"

	require.NoError(t, index.Remember(context.Background(), Input{UserID: "alice", ProblemID: "p1", Language: "python", Code: code, SubmittedAt: now}))

	own, err := index.Check(context.Background(), Input{UserID: "alice", ProblemID: "p1", Language: "python", Code: code, SubmittedAt: now})
	require.NoError(t, err)
	require.Zero(t, own.Score)

	other, err := index.Check(context.Background(), Input{UserID: "bob", ProblemID: "p2", Language: "python", Code: code, SubmittedAt: now})
	require.NoError(t, err)
	require.Zero(t, other.Score)
}

func TestSimilarityIndexIgnoresExpiredSolutions(t *testing.T) {
	history := &memoryHistory{}
	index := NewSimilarityIndex(history, SimilarityConfig{Window: 24 * time.Hour})
	now := time.Now().UTC()
	code := "def reverse_string(s):\n    return s[::-1]\n"

	require.NoError(t, index.Remember(context.Background(), Input{UserID: "alice", ProblemID: "p1", Language: "python", Code: code, SubmittedAt: now.Add(-48 * time.Hour)}))

	result, err := index.Check(context.Background(), Input{UserID: "bob", ProblemID: "p1", Language: "python", Code: code, SubmittedAt: now})
	require.NoError(t, err)
	require.Zero(t, result.Score)
}
