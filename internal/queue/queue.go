package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"qrattendance/internal/attendance"
)

// TypeMarked tags messages carrying an attendance.MarkedEvent.
const TypeMarked = "attendance.marked"

// DefaultKey is the redis list used for attendance events.
const DefaultKey = "attendance:marked"

// Message represents work to be processed.
type Message struct {
	Type string
	Body []byte
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for workers.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a simple Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	return q.client.LPush(ctx, q.key, serialize(msg)).Err()
}

// Consume streams messages using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if err != redis.Nil {
					// back off instead of spinning while redis is down
					select {
					case <-time.After(time.Second):
					case <-ctx.Done():
						return
					}
				}
				continue
			}
			if len(res) == 2 {
				select {
				case out <- deserialize(res[1]):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// serialize stores messages as Type|Body.
func serialize(msg Message) string {
	return msg.Type + "|" + string(msg.Body)
}

func deserialize(s string) Message {
	typ, body, ok := strings.Cut(s, "|")
	if !ok {
		return Message{Body: []byte(s)}
	}
	return Message{Type: typ, Body: []byte(body)}
}

// MarkedPublisher puts attendance events on a queue.
type MarkedPublisher struct {
	Queue Queue
}

// PublishMarked encodes evt as JSON and enqueues it.
func (p MarkedPublisher) PublishMarked(ctx context.Context, evt attendance.MarkedEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode marked event: %w", err)
	}
	return p.Queue.Publish(ctx, Message{Type: TypeMarked, Body: body})
}

// DecodeMarked decodes a TypeMarked message body.
func DecodeMarked(msg Message) (attendance.MarkedEvent, error) {
	var evt attendance.MarkedEvent
	if msg.Type != TypeMarked {
		return evt, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return evt, fmt.Errorf("decode marked event: %w", err)
	}
	return evt, nil
}
