package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message is one mail waiting for delivery.
type Message struct {
	ID      string `json:"id"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Attempt int    `json:"attempt"`
}

// Queue holds messages until they are due.
type Queue interface {
	Push(ctx context.Context, msg Message, delay time.Duration) error
	// Pop takes the earliest due message, or returns nil when nothing is due.
	Pop(ctx context.Context) (*Message, error)
	Len(ctx context.Context) (int64, error)
}

type queued struct {
	msg Message
	due time.Time
}

type MemoryQueue struct {
	mu    sync.Mutex
	items []queued
	limit int
}

// NewMemoryQueue returns a queue that keeps at most limit messages;
// limit <= 0 means unbounded.
func NewMemoryQueue(limit int) *MemoryQueue {
	return &MemoryQueue{limit: limit}
}

func (q *MemoryQueue) Push(_ context.Context, msg Message, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.limit > 0 && len(q.items) >= q.limit {
		return ErrQueueFull
	}

	q.items = append(q.items, queued{msg: msg, due: time.Now().Add(delay)})
	sort.SliceStable(q.items, func(i, j int) bool { return q.items[i].due.Before(q.items[j].due) })
	return nil
}

func (q *MemoryQueue) Pop(_ context.Context) (*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 || q.items[0].due.After(time.Now()) {
		return nil, nil
	}

	msg := q.items[0].msg
	q.items = q.items[1:]
	return &msg, nil
}

func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

const redisQueueKey = "notify:mail:queue"

// RedisQueue keeps messages in a sorted set scored by due time, so pending
// mail survives restarts and is shared by every replica.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(ctx context.Context, redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("notify: failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("notify: failed to ping redis: %w", err)
	}

	return &RedisQueue{client: client, key: redisQueueKey}, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Push(ctx context.Context, msg Message, delay time.Duration) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: failed to marshal message: %w", err)
	}

	return q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(time.Now().Add(delay).UnixNano()),
		Member: string(data),
	}).Err()
}

func (q *RedisQueue) Pop(ctx context.Context) (*Message, error) {
	results, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(time.Now().UnixNano(), 10),
		Count: 1,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("notify: failed to read queue: %w", err)
	}

	if len(results) == 0 {
		return nil, nil
	}

	return q.claim(ctx, results[0])
}

// claim removes member from the set and decodes it. A nil message means
// another replica removed it first.
func (q *RedisQueue) claim(ctx context.Context, member string) (*Message, error) {
	removed, err := q.client.ZRem(ctx, q.key, member).Result()
	if err != nil {
		return nil, fmt.Errorf("notify: failed to remove message from queue: %w", err)
	}
	if removed == 0 {
		return nil, nil
	}

	var msg Message
	if err := json.Unmarshal([]byte(member), &msg); err != nil {
		return nil, fmt.Errorf("notify: failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key).Result()
}
