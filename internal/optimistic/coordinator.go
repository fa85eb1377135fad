// Package optimistic applies local board edits immediately and reconciles them
// with the backend afterwards, undoing the edit when the backend rejects it.
package optimistic

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/h0rv/kanban/internal/api"
	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/store"
)

// ErrInvalid is returned before any local change when a mutation's input is
// unusable.
var ErrInvalid = errors.New("invalid mutation")

// Remote is the subset of the board API the coordinator synchronizes with.
type Remote interface {
	CreateCard(ctx context.Context, req api.CreateCardRequest) (domain.Card, error)
	UpdateCard(ctx context.Context, cardID string, update api.CardUpdate) (domain.Card, error)
	DeleteCard(ctx context.Context, cardID string) error
	MoveCard(ctx context.Context, cardID string, req api.MoveRequest) (domain.Card, error)
	UpdateUser(ctx context.Context, userID int, update api.UserUpdate) (domain.User, error)
}

// Mutation is one optimistic edit. Forward applies the local change and
// records whatever Inverse needs to undo it. Sync performs the remote call.
// Commit, if set, folds the server's answer into the store after a
// successful Sync. A Commit error is logged; the remote change stands.
type Mutation struct {
	Name    string
	Forward func(s *store.Store)
	Inverse func(s *store.Store)
	Sync    func(ctx context.Context) error
	Commit  func(s *store.Store) error
}

// RollbackError reports a mutation that was undone because the remote call failed.
type RollbackError struct {
	Mutation string
	Err      error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%s rolled back: %v", e.Mutation, e.Err)
}

func (e *RollbackError) Unwrap() error {
	return e.Err
}

// Coordinator runs mutations against one store and one remote.
//
// Mutations on the same entity are not queued: the latest Forward wins
// locally, and a late failure rolls back to the value captured by its own
// Forward even if a newer edit has landed since.
type Coordinator struct {
	store  *store.Store
	remote Remote
	log    log.FieldLogger
}

// New creates a coordinator. A nil logger uses the logrus standard logger.
func New(s *store.Store, remote Remote, logger log.FieldLogger) *Coordinator {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Coordinator{store: s, remote: remote, log: logger}
}

// Store returns the store the coordinator mutates.
func (c *Coordinator) Store() *store.Store {
	return c.store
}

// Execute applies m locally, synchronizes it, and either commits or rolls it
// back. A failed sync returns a *RollbackError wrapping the remote error.
func (c *Coordinator) Execute(ctx context.Context, m Mutation) error {
	entry := c.log.WithField("mutation", m.Name)

	if m.Forward != nil {
		m.Forward(c.store)
	}

	if err := runSync(ctx, m.Sync); err != nil {
		if m.Inverse != nil {
			m.Inverse(c.store)
		}
		entry.WithError(err).Warn("mutation rolled back")
		return &RollbackError{Mutation: m.Name, Err: err}
	}

	if m.Commit != nil {
		if err := m.Commit(c.store); err != nil {
			entry.WithError(err).Warn("server result not applied locally")
			return nil
		}
	}
	entry.Debug("mutation committed")
	return nil
}

// runSync calls sync, converting a panic into an error.
func runSync(ctx context.Context, sync func(context.Context) error) (err error) {
	if sync == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panicked: %v", r)
		}
	}()
	return sync(ctx)
}
