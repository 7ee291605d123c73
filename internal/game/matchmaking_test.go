package game

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueIsFIFO(t *testing.T) {
	queue := NewMatchmakingQueue(nil)
	_, matched, pos := queue.Take(MatchRequest{UserID: "a", Mode: "casual", Language: "python"})
	require.False(t, matched)
	require.Equal(t, 1, pos)

	_, matched, pos = queue.Take(MatchRequest{UserID: "b", Mode: "casual", Language: "python"})
	require.True(t, matched)
	require.Zero(t, pos)

	queue.Requeue(QueueEntry{UserID: "a", Mode: "casual", Language: "python"})
	queue.Requeue(QueueEntry{UserID: "c", Mode: "casual", Language: "python"})
	require.Equal(t, 2, queue.Len("casual", "python"))

	entry, matched, _ := queue.Take(MatchRequest{UserID: "d", Mode: "CASUAL", Language: " Python "})
	require.True(t, matched)
	require.Equal(t, "c", entry.UserID)
}

func TestQueueCancelByConnection(t *testing.T) {
	queue := NewMatchmakingQueue(nil)
	queue.Take(MatchRequest{UserID: "a", ConnectionID: "tab-1", Mode: "casual", Language: "python"})
	queue.Take(MatchRequest{UserID: "a", ConnectionID: "tab-1", Mode: "ranked", Language: "go"})

	require.False(t, queue.Cancel("a", "tab-2"))
	require.True(t, queue.Cancel("a", "tab-1"))
	require.Zero(t, queue.Len("casual", "python"))
	require.Zero(t, queue.Len("ranked", "go"))
}

func TestQueuePrune(t *testing.T) {
	clock := newFakeClock()
	queue := NewMatchmakingQueue(clock.Now)
	queue.Take(MatchRequest{UserID: "old", Mode: "casual", Language: "python"})
	clock.Advance(4 * time.Minute)
	queue.Take(MatchRequest{UserID: "fresh", Mode: "casual", Language: "java"})
	clock.Advance(2 * time.Minute)

	expired := queue.Prune(5 * time.Minute)
	require.Len(t, expired, 1)
	require.Equal(t, "old", expired[0].UserID)
	require.Equal(t, 1, queue.Len("casual", "java"))
}

func TestQueueNeverMatchesOneEntryTwice(t *testing.T) {
	queue := NewMatchmakingQueue(nil)
	queue.Take(MatchRequest{UserID: "waiting", Mode: "casual", Language: "python"})

	var wg sync.WaitGroup
	var mu sync.Mutex
	matches := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, matched, _ := queue.Take(MatchRequest{UserID: fmt.Sprintf("u%d", i), Mode: "casual", Language: "python"})
			if matched && entry.UserID == "waiting" {
				mu.Lock()
				matches++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, matches)
}

func TestTakeKeepsOriginalEntryForRepeatRequests(t *testing.T) {
	queue := NewMatchmakingQueue(nil)

	first, matched, pos := queue.Take(MatchRequest{UserID: "a", ConnectionID: "tab-1", Mode: "casual", Language: "python"})
	require.False(t, matched)
	require.Equal(t, 1, pos)
	require.Equal(t, ConnectionID("tab-1"), first.ConnectionID)

	again, matched, pos := queue.Take(MatchRequest{UserID: "a", ConnectionID: "tab-2", Mode: "casual", Language: "python"})
	require.False(t, matched)
	require.Equal(t, 1, pos)
	require.Equal(t, ConnectionID("tab-1"), again.ConnectionID)
	require.Equal(t, 1, queue.Len("casual", "python"))
}

func TestRequeuedEntryMatchesRequesterAlreadyWaiting(t *testing.T) {
	queue := NewMatchmakingQueue(nil)
	take := func(userID string) (QueueEntry, bool, int) {
		return queue.Take(MatchRequest{UserID: userID, ConnectionID: ConnectionID("tab-" + userID), Mode: "casual", Language: "python"})
	}

	_, matched, _ := take("a")
	require.False(t, matched)
	opponent, matched, _ := take("b")
	require.True(t, matched)
	require.Equal(t, "a", opponent.UserID)
	_, matched, pos := take("c")
	require.False(t, matched)
	require.Equal(t, 1, pos)

	queue.Requeue(opponent)
	require.Equal(t, 2, queue.Len("casual", "python"))

	entry, matched, pos := take("c")
	require.True(t, matched)
	require.Zero(t, pos)
	require.Equal(t, "a", entry.UserID)
	require.Zero(t, queue.Len("casual", "python"))
}
