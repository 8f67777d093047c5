package mq

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const defaultMemoryQueueSize = 256

// ErrQueueFull is returned by MemoryBroker.Publish when a channel's buffer is full.
var ErrQueueFull = errors.New("mq: queue full")

// ErrBrokerClosed is returned after Close.
var ErrBrokerClosed = errors.New("mq: broker closed")

// MemoryBroker is an in-process Backend with one buffered queue per channel.
// Failed deliveries are requeued once at the tail.
type MemoryBroker struct {
	mu     sync.Mutex
	size   int
	queues map[string]chan Message
	closed bool
}

func NewMemoryBroker(size int) *MemoryBroker {
	if size <= 0 {
		size = defaultMemoryQueueSize
	}
	return &MemoryBroker{size: size, queues: make(map[string]chan Message)}
}

func (b *MemoryBroker) queue(channel string) (chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	q, ok := b.queues[channel]
	if !ok {
		q = make(chan Message, b.size)
		b.queues[channel] = q
	}
	return q, nil
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}
	q, err := b.queue(channel)
	if err != nil {
		return "", err
	}

	msg := Message{ID: uuid.NewString(), Data: data, Attributes: attrs}
	select {
	case q <- msg:
		return msg.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	default:
		return "", ErrQueueFull
	}
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("memory channel is required")
	}
	q, err := b.queue(channel)
	if err != nil {
		return err
	}

	redelivered := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-q:
			if err := handler(ctx, msg); err != nil && !redelivered[msg.ID] {
				redelivered[msg.ID] = true
				select {
				case q <- msg:
				default:
				}
				continue
			}
			delete(redelivered, msg.ID)
		}
	}
}

// Close rejects further publishes. Running subscribers stop with their context.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
