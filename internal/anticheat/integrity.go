package anticheat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IntegrityConfig tunes behavioural tracking.
type IntegrityConfig struct {
	KeyPrefix    string
	TTL          time.Duration
	HistorySize  int
	MinThinkTime time.Duration
	// UniformGaps is the number of consecutive inter-submission gaps inspected for scripted cadence.
	UniformGaps int
	// UniformVariance is the variance, in seconds squared, below which gaps are considered scripted.
	UniformVariance float64
	RateWindow      time.Duration
	MaxPerWindow    int
}

// DefaultIntegrityConfig returns the production tracking limits.
func DefaultIntegrityConfig() IntegrityConfig {
	return IntegrityConfig{
		KeyPrefix:       "arena:integrity",
		TTL:             time.Hour,
		HistorySize:     20,
		MinThinkTime:    30 * time.Second,
		UniformGaps:     3,
		UniformVariance: 1.0,
		RateWindow:      time.Minute,
		MaxPerWindow:    5,
	}
}

type attempt struct {
	At     time.Time `json:"at"`
	Length int       `json:"length"`
}

// IntegrityMonitor keeps a short rolling history of submissions per (session, user) in Redis.
type IntegrityMonitor struct {
	redis *redis.Client
	cfg   IntegrityConfig
}

// NewIntegrityMonitor constructs a monitor backed by client.
func NewIntegrityMonitor(client *redis.Client, cfg IntegrityConfig) *IntegrityMonitor {
	defaults := DefaultIntegrityConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaults.HistorySize
	}
	if cfg.MinThinkTime <= 0 {
		cfg.MinThinkTime = defaults.MinThinkTime
	}
	if cfg.UniformGaps <= 0 {
		cfg.UniformGaps = defaults.UniformGaps
	}
	if cfg.UniformVariance <= 0 {
		cfg.UniformVariance = defaults.UniformVariance
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = defaults.RateWindow
	}
	if cfg.MaxPerWindow <= 0 {
		cfg.MaxPerWindow = defaults.MaxPerWindow
	}
	return &IntegrityMonitor{redis: client, cfg: cfg}
}

func (m *IntegrityMonitor) key(sessionID, userID string) string {
	return fmt.Sprintf("%s:%s:%s", m.cfg.KeyPrefix, sessionID, userID)
}

func (m *IntegrityMonitor) history(ctx context.Context, sessionID, userID string) ([]attempt, error) {
	raw, err := m.redis.LRange(ctx, m.key(sessionID, userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read integrity history: %w", err)
	}
	attempts := make([]attempt, 0, len(raw))
	for _, item := range raw {
		var a attempt
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			continue
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}

// Check flags timing anomalies of in against the recorded history without modifying it.
func (m *IntegrityMonitor) Check(ctx context.Context, in Input) (Analysis, error) {
	var result Analysis

	attempts, err := m.history(ctx, in.SessionID, in.UserID)
	if err != nil {
		return result, err
	}
	if len(attempts) == 0 {
		return result, nil
	}

	now := in.SubmittedAt
	last := attempts[len(attempts)-1]
	gap := now.Sub(last.At)
	if gap < m.cfg.MinThinkTime {
		result.add("timing", fmt.Sprintf("resubmitted after %.0fs", gap.Seconds()), 30)
	}

	if len(attempts) >= m.cfg.UniformGaps {
		times := make([]time.Time, 0, m.cfg.UniformGaps+1)
		for _, a := range attempts[len(attempts)-m.cfg.UniformGaps:] {
			times = append(times, a.At)
		}
		times = append(times, now)
		if variance, ok := gapVariance(times); ok && variance < m.cfg.UniformVariance {
			result.add("timing", fmt.Sprintf("uniform submission cadence over %d gaps", m.cfg.UniformGaps), 40)
		}
	}

	recent := 1
	for _, a := range attempts {
		if now.Sub(a.At) < m.cfg.RateWindow {
			recent++
		}
	}
	if recent > m.cfg.MaxPerWindow {
		result.add("rate", fmt.Sprintf("%d submissions within %s", recent, m.cfg.RateWindow), 35)
	}

	size := len(in.Code)
	if last.Length > 0 && size > 5*last.Length && size-last.Length > 500 && gap < time.Minute {
		result.add("timing", fmt.Sprintf("code grew from %d to %d chars in %.0fs", last.Length, size, gap.Seconds()), 20)
	}

	return result, nil
}

// Record appends the attempt and refreshes the history TTL.
func (m *IntegrityMonitor) Record(ctx context.Context, in Input) error {
	payload, err := json.Marshal(attempt{At: in.SubmittedAt, Length: len(in.Code)})
	if err != nil {
		return err
	}
	key := m.key(in.SessionID, in.UserID)
	_, err = m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		pipe.LTrim(ctx, key, int64(-m.cfg.HistorySize), -1)
		pipe.Expire(ctx, key, m.cfg.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record integrity attempt: %w", err)
	}
	return nil
}

func gapVariance(times []time.Time) (float64, bool) {
	if len(times) < 3 {
		return 0, false
	}
	gaps := make([]float64, 0, len(times)-1)
	var sum float64
	for i := 1; i < len(times); i++ {
		g := times[i].Sub(times[i-1]).Seconds()
		if g <= 0 {
			return 0, false
		}
		gaps = append(gaps, g)
		sum += g
	}
	mean := sum / float64(len(gaps))
	var variance float64
	for _, g := range gaps {
		variance += (g - mean) * (g - mean)
	}
	return variance / float64(len(gaps)), true
}
