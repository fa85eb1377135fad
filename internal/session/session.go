// Package session wires one board view together: the cache store, the
// optimistic coordinator and the realtime subscription, all backed by a
// single API client.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/h0rv/kanban/internal/api"
	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/optimistic"
	"github.com/h0rv/kanban/internal/realtime"
	"github.com/h0rv/kanban/internal/store"
)

// Transport names accepted by Live.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "ws"
)

var (
	// ErrStaleQuery is returned by Refetch when a newer refetch superseded it.
	ErrStaleQuery = errors.New("superseded by a newer query")
	// ErrUnknownTransport is returned by Live for an unsupported transport name.
	ErrUnknownTransport = errors.New("unknown transport")
)

// Backend is the read side of the board API a session needs. *api.Client
// satisfies it together with optimistic.Remote.
type Backend interface {
	optimistic.Remote
	GetBoard(ctx context.Context, boardID string, query api.Query) (domain.BoardPayload, error)
	GetUser(ctx context.Context, userID int) (domain.User, error)
}

// Deps are the collaborators of a session.
type Deps struct {
	Backend Backend
	// Sources maps transport names to realtime sources. Missing entries are
	// built from BaseURL and Token.
	Sources map[string]realtime.Source
	BaseURL string
	Token   string
	Logger  log.FieldLogger
}

// Session is an open board view.
type Session struct {
	BoardID  string
	ViewerID int

	store   *store.Store
	backend Backend
	coord   *optimistic.Coordinator
	deps    Deps
	log     log.FieldLogger

	mu         sync.Mutex
	generation uint64
	cancelPrev context.CancelFunc
	query      api.Query
	sub        *realtime.Subscription
}

// Open fetches the viewer and the board concurrently and ingests both.
func Open(ctx context.Context, deps Deps, boardID string, viewerID int) (*Session, error) {
	logger := deps.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := store.New()
	sess := &Session{
		BoardID:  boardID,
		ViewerID: viewerID,
		store:    s,
		backend:  deps.Backend,
		coord:    optimistic.New(s, deps.Backend, logger),
		deps:     deps,
		log:      logger.WithField("board", boardID),
	}

	var (
		viewer domain.User
		board  domain.BoardPayload
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := deps.Backend.GetUser(gctx, viewerID)
		if err != nil {
			return fmt.Errorf("failed to fetch viewer %d: %w", viewerID, err)
		}
		viewer = u
		return nil
	})
	g.Go(func() error {
		b, err := deps.Backend.GetBoard(gctx, boardID, api.Query{})
		if err != nil {
			return fmt.Errorf("failed to fetch board %s: %w", boardID, err)
		}
		board = b
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.IngestUsers([]domain.User{viewer})
	s.IngestBoard(board)
	sess.log.WithField("viewer", viewerID).Debug("session opened")
	return sess, nil
}

// Store returns the session's cache store.
func (s *Session) Store() *store.Store {
	return s.store
}

// Mutations returns the optimistic coordinator bound to the session's store.
func (s *Session) Mutations() *optimistic.Coordinator {
	return s.coord
}

// Query returns the query of the last applied refetch.
func (s *Session) Query() api.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Viewer returns the signed-in user as held by the store.
func (s *Session) Viewer() (domain.User, bool) {
	return s.store.User(s.ViewerID)
}

// Refetch reloads the board for query. Starting a refetch cancels the one in
// flight, and a response that arrives after a newer refetch started is
// discarded with ErrStaleQuery.
func (s *Session) Refetch(ctx context.Context, query api.Query) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancelPrev != nil {
		s.cancelPrev()
	}
	s.generation++
	gen := s.generation
	s.cancelPrev = cancel
	s.mu.Unlock()

	board, err := s.backend.GetBoard(ctx, s.BoardID, query)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		s.log.WithField("query", query.Key()).Debug("discarding stale board response")
		return ErrStaleQuery
	}
	s.cancelPrev = nil
	if err != nil {
		return fmt.Errorf("failed to refetch board %s: %w", s.BoardID, err)
	}
	s.store.IngestBoard(board)
	s.query = query
	return nil
}

// Search refetches the board for text, keeping the assignee filter.
func (s *Session) Search(ctx context.Context, text string) error {
	return s.Refetch(ctx, s.filterQuery(text))
}

// ToggleAssignee flips each user in the store's assignee filter, then
// refetches the board with the resulting filter and the current search text.
func (s *Session) ToggleAssignee(ctx context.Context, userIDs ...int) error {
	for _, id := range userIDs {
		s.store.ToggleAssigneeFilter(id)
	}
	return s.Refetch(ctx, s.filterQuery(s.Query().Q))
}

// ClearAssignees empties the assignee filter and refetches the board.
func (s *Session) ClearAssignees(ctx context.Context) error {
	s.store.ClearAssigneeFilters()
	return s.Refetch(ctx, s.filterQuery(s.Query().Q))
}

func (s *Session) filterQuery(text string) api.Query {
	return api.Query{Q: text, AssigneeIDs: s.store.SelectedAssignees()}
}

func (s *Session) source(transport string) (realtime.Source, error) {
	if src, ok := s.deps.Sources[transport]; ok {
		return src, nil
	}
	switch transport {
	case TransportSSE, "":
		return realtime.NewSSE(s.deps.BaseURL, s.deps.Token), nil
	case TransportWebSocket:
		return realtime.NewWebSocket(s.deps.BaseURL, s.deps.Token), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, transport)
}

// Live starts the realtime subscription over transport ("sse" or "ws"),
// replacing any running one.
func (s *Session) Live(ctx context.Context, transport string) (*realtime.Subscription, error) {
	src, err := s.source(transport)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	prev := s.sub
	s.sub = nil
	s.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	sub := realtime.New(s.store, src, s.log).Start(ctx, s.BoardID)
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return sub, nil
}

// Close stops the realtime subscription and any in-flight refetch.
func (s *Session) Close() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	if s.cancelPrev != nil {
		s.cancelPrev()
		s.cancelPrev = nil
	}
	s.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}
