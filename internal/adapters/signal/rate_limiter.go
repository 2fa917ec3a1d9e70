package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

// MessageRateLimiter is a sliding-window limiter for chat and reaction
// traffic, keyed by participant.
type MessageRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.ParticipantID][]time.Time
	limit    int
	interval time.Duration
}

func NewMessageRateLimiter(limit int, interval time.Duration) *MessageRateLimiter {
	return &MessageRateLimiter{
		history:  make(map[domain.ParticipantID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *MessageRateLimiter) Allow(pid domain.ParticipantID) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[pid]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[pid] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[pid] = fresh
	return true
}

// Forget drops a participant's window when they leave the room.
func (rl *MessageRateLimiter) Forget(pid domain.ParticipantID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, pid)
}
