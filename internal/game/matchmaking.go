package game

import (
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/gema-arena/internal/observability"
)

// MatchRequest asks to be paired with another player of the same mode and language.
type MatchRequest struct {
	UserID       string       `json:"user_id" validate:"required"`
	ConnectionID ConnectionID `json:"connection_id"`
	DisplayName  string       `json:"display_name" validate:"required,max=64"`
	Mode         string       `json:"mode" validate:"required,oneof=casual ranked practice tournament"`
	Language     string       `json:"language" validate:"required,oneof=python javascript go java cpp"`
}

// MatchResult reports either the created session or the requester's place in the queue. ConnectionID is the
// connection the requester plays under once matched.
type MatchResult struct {
	Matched       bool         `json:"matched"`
	SessionID     string       `json:"session_id,omitempty"`
	ConnectionID  ConnectionID `json:"connection_id"`
	QueuePosition int          `json:"queue_position,omitempty"`
	Opponent      string       `json:"opponent,omitempty"`
}

type bucketKey struct {
	mode     string
	language string
}

type bucket struct {
	mu      sync.Mutex
	entries []QueueEntry
}

// MatchmakingQueue keeps one FIFO list per (mode, language). Each bucket has its own lock so scan and pop are
// atomic per bucket without serialising unrelated buckets.
type MatchmakingQueue struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	now     func() time.Time
}

// NewMatchmakingQueue constructs an empty queue.
func NewMatchmakingQueue(clock func() time.Time) *MatchmakingQueue {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &MatchmakingQueue{buckets: make(map[bucketKey]*bucket), now: clock}
}

func keyFor(mode, language string) bucketKey {
	return bucketKey{mode: strings.ToLower(strings.TrimSpace(mode)), language: strings.ToLower(strings.TrimSpace(language))}
}

func (q *MatchmakingQueue) bucket(key bucketKey) *bucket {
	q.mu.Lock()
	defer q.mu.Unlock()
	b, ok := q.buckets[key]
	if !ok {
		b = &bucket{}
		q.buckets[key] = b
	}
	return b
}

// Take pops the first waiting entry of another user and reports true; the requester's own waiting entry is
// dropped with it. When nobody else is waiting the requester is enqueued, or keeps its existing place, and its own
// entry and 1-based position are returned.
func (q *MatchmakingQueue) Take(req MatchRequest) (QueueEntry, bool, int) {
	key := keyFor(req.Mode, req.Language)
	b := q.bucket(key)

	b.mu.Lock()
	defer b.mu.Unlock()
	defer q.reportDepth(key, b)

	for i, entry := range b.entries {
		if entry.UserID == req.UserID {
			continue
		}
		kept := make([]QueueEntry, 0, len(b.entries)-1)
		for j, other := range b.entries {
			if j == i || other.UserID == req.UserID {
				continue
			}
			kept = append(kept, other)
		}
		b.entries = kept
		return entry, true, 0
	}

	for i, entry := range b.entries {
		if entry.UserID == req.UserID {
			return entry, false, i + 1
		}
	}

	entry := QueueEntry{
		UserID:       req.UserID,
		ConnectionID: req.ConnectionID,
		DisplayName:  req.DisplayName,
		Language:     key.language,
		Mode:         key.mode,
		EnqueuedAt:   q.now(),
	}
	b.entries = append(b.entries, entry)
	return entry, false, len(b.entries)
}

// Requeue puts entry back at the head of its bucket, keeping its original wait time.
func (q *MatchmakingQueue) Requeue(entry QueueEntry) {
	key := keyFor(entry.Mode, entry.Language)
	b := q.bucket(key)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.entries {
		if existing.UserID == entry.UserID {
			return
		}
	}
	b.entries = append([]QueueEntry{entry}, b.entries...)
	q.reportDepth(key, b)
}

// Cancel removes the user's entries. A non-empty conn only removes the entry queued from that connection.
// It returns whether anything was removed and is safe to repeat.
func (q *MatchmakingQueue) Cancel(userID string, conn ConnectionID) bool {
	q.mu.Lock()
	keys := make([]bucketKey, 0, len(q.buckets))
	buckets := make([]*bucket, 0, len(q.buckets))
	for k, b := range q.buckets {
		keys = append(keys, k)
		buckets = append(buckets, b)
	}
	q.mu.Unlock()

	removed := false
	for i, b := range buckets {
		b.mu.Lock()
		kept := b.entries[:0]
		for _, entry := range b.entries {
			if entry.UserID == userID && (conn == "" || entry.ConnectionID == conn) {
				removed = true
				continue
			}
			kept = append(kept, entry)
		}
		b.entries = kept
		q.reportDepth(keys[i], b)
		b.mu.Unlock()
	}
	return removed
}

// Prune drops entries that waited longer than maxWait and returns them.
func (q *MatchmakingQueue) Prune(maxWait time.Duration) []QueueEntry {
	if maxWait <= 0 {
		return nil
	}
	cutoff := q.now().Add(-maxWait)

	q.mu.Lock()
	keys := make([]bucketKey, 0, len(q.buckets))
	buckets := make([]*bucket, 0, len(q.buckets))
	for k, b := range q.buckets {
		keys = append(keys, k)
		buckets = append(buckets, b)
	}
	q.mu.Unlock()

	var expired []QueueEntry
	for i, b := range buckets {
		b.mu.Lock()
		kept := b.entries[:0]
		for _, entry := range b.entries {
			if entry.EnqueuedAt.Before(cutoff) {
				expired = append(expired, entry)
				continue
			}
			kept = append(kept, entry)
		}
		b.entries = kept
		q.reportDepth(keys[i], b)
		b.mu.Unlock()
	}
	return expired
}

// Len returns the number of waiting entries for mode and language.
func (q *MatchmakingQueue) Len(mode, language string) int {
	b := q.bucket(keyFor(mode, language))
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (q *MatchmakingQueue) reportDepth(key bucketKey, b *bucket) {
	observability.QueueDepth().WithLabelValues(key.mode, key.language).Set(float64(len(b.entries)))
}
