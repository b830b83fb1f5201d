package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"medibook/internal/models"
	"medibook/pkg/cache"
)

var ErrQueueEmpty = errors.New("notification queue is empty")

// NotificationQueue separates state changes from delivery. Notifications
// with a future SendAt wait in a delayed set until PromoteDue moves them to
// the ready list.
type NotificationQueue interface {
	Enqueue(ctx context.Context, notification *models.Notification) error
	PromoteDue(ctx context.Context, now time.Time, limit int64) (int, error)
	// Dequeue blocks up to timeout and returns ErrQueueEmpty when nothing
	// became ready.
	Dequeue(ctx context.Context, timeout time.Duration) (*models.Notification, error)
}

// QueueStore is satisfied by *cache.RedisCache.
type QueueStore interface {
	RPush(ctx context.Context, key string, payload string) error
	BLPop(ctx context.Context, key string, timeout time.Duration) (string, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRangeByScoreUpTo(ctx context.Context, key string, max float64, limit int64) ([]string, error)
	ZRem(ctx context.Context, key string, member string) (int64, error)
}

type redisNotificationQueue struct {
	store      QueueStore
	readyKey   string
	delayedKey string
}

func NewRedisNotificationQueue(store QueueStore, keyPrefix string) NotificationQueue {
	return &redisNotificationQueue{
		store:      store,
		readyKey:   keyPrefix + ":notifications:ready",
		delayedKey: keyPrefix + ":notifications:delayed",
	}
}

func (q *redisNotificationQueue) Enqueue(ctx context.Context, notification *models.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if notification.SendAt.After(time.Now()) {
		if err := q.store.ZAdd(ctx, q.delayedKey, float64(notification.SendAt.Unix()), string(payload)); err != nil {
			return fmt.Errorf("failed to schedule notification: %w", err)
		}
		return nil
	}
	if err := q.store.RPush(ctx, q.readyKey, string(payload)); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

func (q *redisNotificationQueue) PromoteDue(ctx context.Context, now time.Time, limit int64) (int, error) {
	members, err := q.store.ZRangeByScoreUpTo(ctx, q.delayedKey, float64(now.Unix()), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed notifications: %w", err)
	}

	promoted := 0
	for _, member := range members {
		removed, err := q.store.ZRem(ctx, q.delayedKey, member)
		if err != nil {
			return promoted, fmt.Errorf("failed to claim delayed notification: %w", err)
		}
		// Another worker claimed it.
		if removed == 0 {
			continue
		}
		if err := q.store.RPush(ctx, q.readyKey, member); err != nil {
			return promoted, fmt.Errorf("failed to promote notification: %w", err)
		}
		promoted++
	}
	return promoted, nil
}

func (q *redisNotificationQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.Notification, error) {
	payload, err := q.store.BLPop(ctx, q.readyKey, timeout)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue notification: %w", err)
	}

	var notification models.Notification
	if err := json.Unmarshal([]byte(payload), &notification); err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w", err)
	}
	return &notification, nil
}

type memoryNotificationQueue struct {
	mu      sync.Mutex
	ready   []models.Notification
	delayed []models.Notification
	signal  chan struct{}
}

// NewMemoryNotificationQueue keeps notifications in process. Used with the
// memory storage driver and in tests.
func NewMemoryNotificationQueue() NotificationQueue {
	return &memoryNotificationQueue{signal: make(chan struct{}, 1)}
}

func (q *memoryNotificationQueue) Enqueue(ctx context.Context, notification *models.Notification) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if notification.SendAt.After(time.Now()) {
		q.delayed = append(q.delayed, *notification)
		return nil
	}
	q.ready = append(q.ready, *notification)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

func (q *memoryNotificationQueue) PromoteDue(ctx context.Context, now time.Time, limit int64) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	promoted := 0
	kept := q.delayed[:0]
	for _, n := range q.delayed {
		if !n.SendAt.After(now) && (limit <= 0 || int64(promoted) < limit) {
			q.ready = append(q.ready, n)
			promoted++
			continue
		}
		kept = append(kept, n)
	}
	q.delayed = kept
	return promoted, nil
}

func (q *memoryNotificationQueue) pop() (*models.Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ready) == 0 {
		return nil, false
	}
	n := q.ready[0]
	q.ready = q.ready[1:]
	return &n, true
}

func (q *memoryNotificationQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.Notification, error) {
	if n, ok := q.pop(); ok {
		return n, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			if n, ok := q.pop(); ok {
				return n, nil
			}
			return nil, ErrQueueEmpty
		case <-q.signal:
			if n, ok := q.pop(); ok {
				return n, nil
			}
		}
	}
}
