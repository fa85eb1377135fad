package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/h0rv/kanban/internal/realtime"
)

// EventsChannel is the Redis pub/sub channel carrying board events.
const EventsChannel = "board-events"

// subscriberBuffer is the number of frames queued per subscriber before new
// frames are dropped for it.
const subscriberBuffer = 16

// Broker fans board events out to every open stream.
type Broker interface {
	Publish(ctx context.Context, frame realtime.Frame) error
	// Subscribe returns a channel of frames that is closed once cancel is
	// called or ctx ends.
	Subscribe(ctx context.Context) (frames <-chan realtime.Frame, cancel func(), err error)
	Close() error
}

// MemoryBroker delivers events to subscribers of this process only. Slow
// subscribers miss frames instead of blocking publishers.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[chan realtime.Frame]struct{}
}

// NewMemoryBroker creates an in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[chan realtime.Frame]struct{})}
}

func (b *MemoryBroker) Publish(_ context.Context, frame realtime.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- frame:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context) (<-chan realtime.Frame, func(), error) {
	ch := make(chan realtime.Frame, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			b.mu.Lock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
			b.mu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()
	return ch, cancel, nil
}

// Subscribers returns the number of open subscriptions.
func (b *MemoryBroker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	return nil
}

// RedisBroker shares board events between backend instances over Redis
// pub/sub. Frames travel as WebSocket envelopes.
type RedisBroker struct {
	rc      *redis.Client
	channel string
	log     log.FieldLogger
}

// NewRedisBroker creates a broker on rc. A nil logger uses the standard logger.
func NewRedisBroker(rc *redis.Client, logger log.FieldLogger) *RedisBroker {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RedisBroker{rc: rc, channel: EventsChannel, log: logger}
}

func (b *RedisBroker) Publish(ctx context.Context, frame realtime.Frame) error {
	data, err := realtime.EncodeMessage(frame)
	if err != nil {
		return err
	}
	if err := b.rc.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", frame.Name, err)
	}
	return nil
}

// Subscribe waits for Redis to confirm the subscription, so frames published
// after it returns are delivered.
func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan realtime.Frame, func(), error) {
	ctx, stop := context.WithCancel(ctx)
	sub := b.rc.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		stop()
		_ = sub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	out := make(chan realtime.Frame, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				frame, err := realtime.DecodeMessage([]byte(msg.Payload))
				if err != nil {
					b.log.WithError(err).Warn("dropping malformed board event")
					continue
				}
				select {
				case out <- frame:
				default:
				}
			}
		}
	}()

	cancel := func() {
		stop()
		_ = sub.Close()
		<-done
	}
	return out, cancel, nil
}

func (b *RedisBroker) Close() error {
	return b.rc.Close()
}
