package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const deadlineKeyPrefix = "deskbot:escalation:"

// Scheduler runs one-shot deferred tasks keyed by ticket id: "do X at
// time T unless cancelled". Cancelling a fired or unknown timer is a
// safe no-op. When a Redis client is provided, pending deadlines are
// mirrored there so they can be re-armed after a restart; the mirror
// is best-effort and never blocks scheduling.
type Scheduler struct {
	mu     sync.Mutex
	timers map[int64]*time.Timer
	redis  *redis.Client
	logger *zap.Logger
}

// New creates a scheduler. The Redis client may be nil.
func New(client *redis.Client, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		timers: make(map[int64]*time.Timer),
		redis:  client,
		logger: logger,
	}
}

// Schedule arms (or re-arms) the timer for a ticket. The handler runs
// once on its own goroutine at the deadline unless Cancel wins first.
func (s *Scheduler) Schedule(ticketID int64, delay time.Duration, fn func(ticketID int64)) {
	s.mu.Lock()
	if existing, ok := s.timers[ticketID]; ok {
		existing.Stop()
	}
	s.timers[ticketID] = time.AfterFunc(delay, func() {
		s.forget(ticketID)
		fn(ticketID)
	})
	s.mu.Unlock()

	s.mirrorDeadline(ticketID, time.Now().Add(delay))
}

// Cancel removes a pending timer. Idempotent: returns false when the
// timer already fired or never existed.
func (s *Scheduler) Cancel(ticketID int64) bool {
	s.mu.Lock()
	timer, ok := s.timers[ticketID]
	if ok {
		timer.Stop()
		delete(s.timers, ticketID)
	}
	s.mu.Unlock()

	s.dropDeadline(ticketID)
	return ok
}

// Pending reports whether a timer is currently armed for the ticket.
func (s *Scheduler) Pending(ticketID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[ticketID]
	return ok
}

// Restore re-arms timers for deadlines found in the Redis mirror.
// Deadlines already in the past fire immediately.
func (s *Scheduler) Restore(ctx context.Context, fn func(ticketID int64)) error {
	if s.redis == nil {
		return nil
	}

	iter := s.redis.Scan(ctx, 0, deadlineKeyPrefix+"*", 100).Iterator()
	restored := 0
	for iter.Next(ctx) {
		key := iter.Val()
		idRaw := strings.TrimPrefix(key, deadlineKeyPrefix)
		ticketID, err := strconv.ParseInt(idRaw, 10, 64)
		if err != nil {
			s.logger.Warn("skipping malformed deadline key", zap.String("key", key))
			continue
		}

		val, err := s.redis.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		deadline, err := time.Parse(time.RFC3339, val)
		if err != nil {
			s.logger.Warn("skipping malformed deadline value", zap.String("key", key))
			continue
		}

		delay := time.Until(deadline)
		if delay < 0 {
			delay = 0
		}
		s.Schedule(ticketID, delay, fn)
		restored++
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan escalation deadlines: %w", err)
	}

	if restored > 0 {
		s.logger.Info("restored pending escalation timers", zap.Int("count", restored))
	}
	return nil
}

func (s *Scheduler) forget(ticketID int64) {
	s.mu.Lock()
	delete(s.timers, ticketID)
	s.mu.Unlock()
	s.dropDeadline(ticketID)
}

func (s *Scheduler) mirrorDeadline(ticketID int64, deadline time.Time) {
	if s.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	key := deadlineKeyPrefix + strconv.FormatInt(ticketID, 10)
	if err := s.redis.Set(ctx, key, deadline.UTC().Format(time.RFC3339), 0).Err(); err != nil {
		s.logger.Warn("unable to mirror escalation deadline", zap.Int64("ticket_id", ticketID), zap.Error(err))
	}
}

func (s *Scheduler) dropDeadline(ticketID int64) {
	if s.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	key := deadlineKeyPrefix + strconv.FormatInt(ticketID, 10)
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("unable to drop escalation deadline", zap.Int64("ticket_id", ticketID), zap.Error(err))
	}
}
