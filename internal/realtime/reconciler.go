package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/store"
)

// ErrStreamClosed is returned when the server ends the stream.
var ErrStreamClosed = errors.New("event stream closed by server")

// Status is the connection state of a subscription.
type Status int32

const (
	StatusConnecting Status = iota
	StatusLive
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusLive:
		return "live"
	case StatusDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// Reconciler translates each pushed event into one cache store mutation.
type Reconciler struct {
	store  *store.Store
	source Source
	log    log.FieldLogger
}

// New creates a reconciler applying events from source to s. A nil logger
// uses the logrus standard logger.
func New(s *store.Store, source Source, logger log.FieldLogger) *Reconciler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Reconciler{store: s, source: source, log: logger}
}

// Apply performs the store mutation for ev.
func (r *Reconciler) Apply(ev Event) error {
	switch e := ev.(type) {
	case Connected:
		return nil
	case CardAssigned:
		if e.Card.Assignee != nil {
			r.store.UpsertUser(*e.Card.Assignee)
			r.store.UpdateCard(e.Card.ID, domain.AssignTo(e.Card.Assignee.ID))
		} else {
			r.store.UpdateCard(e.Card.ID, domain.Unassign())
		}
		return nil
	case CardUpdated:
		r.store.UpdateCard(e.CardID, e.Patch())
		return nil
	case CardCreated:
		entry := domain.CardEntry{ID: e.Card.ID, Title: e.Card.Title, Description: e.Card.Description}
		if e.Card.Assignee != nil {
			r.store.UpsertUser(*e.Card.Assignee)
			entry.AssigneeID = domain.IntPtr(e.Card.Assignee.ID)
		}
		if err := r.store.AddCard(e.ColumnID, entry); err != nil {
			return fmt.Errorf("failed to add card %s to column %s: %w", e.Card.ID, e.ColumnID, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}

// handle decodes and applies one frame. Malformed and unknown frames are
// logged and skipped.
func (r *Reconciler) handle(sub *Subscription, f Frame) {
	ev, err := Decode(f.Name, f.Data)
	if err != nil {
		r.log.WithError(err).WithField("event", f.Name).Warn("skipping board event")
		return
	}
	if _, ok := ev.(Connected); ok {
		sub.setStatus(StatusLive)
		r.log.WithField("board", sub.boardID).Info("board stream live")
	}
	if err := r.Apply(ev); err != nil {
		r.log.WithError(err).WithField("event", f.Name).Warn("board event not applied")
		return
	}
	r.log.WithField("event", f.Name).Debug("board event applied")
}

// Start subscribes to boardID in the background. Delivery is at-most-once:
// when the transport fails the subscription ends and is not retried; state is
// recovered by the next full board fetch.
func (r *Reconciler) Start(ctx context.Context, boardID string) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{boardID: boardID, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		err := r.source.Stream(ctx, boardID, func(f Frame) { r.handle(sub, f) })
		sub.mu.Lock()
		sub.err = err
		sub.mu.Unlock()
		sub.setStatus(StatusDisconnected)
		if err != nil {
			r.log.WithError(err).WithField("board", boardID).Error("board stream disconnected")
			return
		}
		r.log.WithField("board", boardID).Info("board stream closed")
	}()

	return sub
}

// Subscription is a running board stream.
type Subscription struct {
	boardID string
	cancel  context.CancelFunc
	done    chan struct{}
	status  atomic.Int32

	mu  sync.Mutex
	err error
}

func (s *Subscription) setStatus(st Status) {
	s.status.Store(int32(st))
}

// Status reports the connection state.
func (s *Subscription) Status() Status {
	return Status(s.status.Load())
}

// Done is closed once the stream has ended.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the transport error that ended the stream, nil if it was closed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the stream and waits for the reader to exit.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}
