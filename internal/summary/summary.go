// Package summary keeps per-day attendance tallies fed from the marked-event queue.
package summary

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"qrattendance/internal/attendance"
	"qrattendance/internal/queue"
)

// Day is the tally for one calendar date.
type Day struct {
	Date   string `json:"date"`
	OnTime int    `json:"onTime"`
	Late   int    `json:"late"`
}

// Tally stores counters per day and status.
type Tally interface {
	Add(ctx context.Context, date string, status attendance.Status) error
	Get(ctx context.Context, date string) (Day, error)
}

const (
	// DefaultPrefix namespaces the per-day hashes.
	DefaultPrefix = "attendance:summary"
	// DefaultTTL keeps a week of tallies plus a day of slack.
	DefaultTTL = 8 * 24 * time.Hour
)

// RedisTally keeps one hash per day, expiring after ttl.
type RedisTally struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisTally creates a tally stored under prefix:<date>.
func NewRedisTally(client *redis.Client, prefix string, ttl time.Duration) *RedisTally {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisTally{client: client, prefix: prefix, ttl: ttl}
}

func (t *RedisTally) key(date string) string { return t.prefix + ":" + date }

// Add increments the counter for status on date.
func (t *RedisTally) Add(ctx context.Context, date string, status attendance.Status) error {
	key := t.key(date)
	pipe := t.client.TxPipeline()
	pipe.HIncrBy(ctx, key, string(status), 1)
	pipe.Expire(ctx, key, t.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Get reads the tally for date; a missing day is all zeros.
func (t *RedisTally) Get(ctx context.Context, date string) (Day, error) {
	vals, err := t.client.HGetAll(ctx, t.key(date)).Result()
	if err != nil {
		return Day{}, err
	}
	day := Day{Date: date}
	day.OnTime, _ = strconv.Atoi(vals[string(attendance.StatusOnTime)])
	day.Late, _ = strconv.Atoi(vals[string(attendance.StatusLate)])
	return day, nil
}

// MemoryTally is a process-local Tally for dev/testing.
type MemoryTally struct {
	mu   sync.Mutex
	days map[string]map[attendance.Status]int
}

// NewMemoryTally creates an empty tally.
func NewMemoryTally() *MemoryTally {
	return &MemoryTally{days: make(map[string]map[attendance.Status]int)}
}

// Add increments the counter for status on date.
func (t *MemoryTally) Add(_ context.Context, date string, status attendance.Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.days[date]
	if !ok {
		d = make(map[attendance.Status]int)
		t.days[date] = d
	}
	d[status]++
	return nil
}

// Get reads the tally for date.
func (t *MemoryTally) Get(_ context.Context, date string) (Day, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.days[date]
	return Day{Date: date, OnTime: d[attendance.StatusOnTime], Late: d[attendance.StatusLate]}, nil
}

// Run consumes marked events until the channel closes, adding each to tally.
// It returns the number of events applied.
func Run(ctx context.Context, messages <-chan queue.Message, tally Tally) int {
	applied := 0
	for msg := range messages {
		if msg.Type != queue.TypeMarked {
			continue
		}
		evt, err := queue.DecodeMarked(msg)
		if err != nil {
			log.Printf("skip message: %v", err)
			continue
		}
		if err := tally.Add(ctx, evt.Date, evt.Status); err != nil {
			log.Printf("tally %s failed: %v", evt.RowID, err)
			continue
		}
		applied++
	}
	return applied
}

// Rebuild recomputes a day from stored rows, for days the queue missed.
func Rebuild(ctx context.Context, date string, counts map[attendance.Status]int) (Day, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return Day{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return Day{Date: date, OnTime: counts[attendance.StatusOnTime], Late: counts[attendance.StatusLate]}, nil
}
