package mq

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
)

const defaultMemoryBuffer = 64

// MemoryBroker fans every published message out to the subscribers of its
// channel that are active at publish time. A full subscriber buffer drops
// the message for that subscriber only.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscriber]struct{}
	buffer int
	seq    atomic.Int64
	closed bool
}

type memorySubscriber struct {
	messages chan Message
}

func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer <= 0 {
		buffer = defaultMemoryBuffer
	}
	return &MemoryBroker{
		subs:   make(map[string]map[*memorySubscriber]struct{}),
		buffer: buffer,
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if channel == "" {
		return "", errors.New("memory channel is required")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return "", errors.New("memory broker closed")
	}

	id := strconv.FormatInt(b.seq.Add(1), 10)
	msg := Message{ID: id, Data: append([]byte(nil), data...), Attributes: copyAttributes(attrs)}
	for sub := range b.subs[channel] {
		select {
		case sub.messages <- msg:
		default:
		}
	}
	return id, nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if channel == "" {
		return errors.New("memory channel is required")
	}

	sub := &memorySubscriber{messages: make(chan Message, b.buffer)}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("memory broker closed")
	}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*memorySubscriber]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs[channel], sub)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-sub.messages:
			// Redelivery is not supported in memory; handler errors are dropped.
			_ = handler(ctx, msg)
		}
	}
}

// Subscribers reports how many subscribers are attached to channel.
func (b *MemoryBroker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func copyAttributes(attrs map[string]string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
