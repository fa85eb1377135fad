// Command smoke drives a running backend through the client stack: it opens a
// session, goes live, performs each mutation and checks that the local cache
// and the pushed events agree.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/h0rv/kanban/internal/api"
	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/optimistic"
	"github.com/h0rv/kanban/internal/realtime"
	"github.com/h0rv/kanban/internal/session"
	"github.com/h0rv/kanban/internal/store"
)

var (
	urlFlag       string
	tokenFlag     string
	transportFlag string
	failingFlag   string
)

func main() {
	cmd := &cobra.Command{
		Use:          "smoke",
		Short:        "End-to-end check against a running kanban backend",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			return run(ctx)
		},
	}
	cmd.Flags().StringVar(&urlFlag, "url", "http://localhost:4000", "Backend base URL")
	cmd.Flags().StringVar(&tokenFlag, "token", os.Getenv("KANBAN_TOKEN"), "Bearer token")
	cmd.Flags().StringVar(&transportFlag, "transport", session.TransportSSE, "Push transport: sse or ws")
	cmd.Flags().StringVar(&failingFlag, "failing-card", "TICKET-1", "Card whose updates the backend rejects")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		log.WithError(err).Fatal("smoke test failed")
	}
}

func run(ctx context.Context) error {
	client := api.New(urlFlag, api.WithToken(tokenFlag))
	sess, err := session.Open(ctx, session.Deps{
		Backend: client,
		BaseURL: urlFlag,
		Token:   tokenFlag,
	}, "main", 1)
	if err != nil {
		return err
	}
	defer sess.Close()

	st := sess.Store()
	snap := st.Snapshot()
	log.WithFields(log.Fields{"columns": len(snap.ColumnOrder), "cards": len(snap.CardsByID)}).Info("board loaded")
	if len(snap.ColumnOrder) < 2 {
		return errors.New("board needs at least two columns")
	}

	sub, err := sess.Live(ctx, transportFlag)
	if err != nil {
		return err
	}
	if err := waitFor(ctx, "stream live", func() bool { return sub.Status() == realtime.StatusLive }); err != nil {
		return err
	}

	first, last := snap.ColumnOrder[0], snap.ColumnOrder[len(snap.ColumnOrder)-1]
	m := sess.Mutations()

	// Create lands a placeholder first, then the server id.
	if err := m.CreateCard(ctx, first, "Smoke test card"); err != nil {
		return err
	}
	ids := st.ColumnCards(first)
	created := ids[len(ids)-1]
	if optimistic.IsPlaceholder(created) {
		return fmt.Errorf("placeholder %s was not replaced", created)
	}
	log.WithField("card", created).Info("created")

	viewer, _ := sess.Viewer()
	if err := m.AssignCard(ctx, created, &viewer); err != nil {
		return err
	}
	if u, ok := st.Assignee(created); !ok || u.ID != viewer.ID {
		return fmt.Errorf("card %s not assigned to viewer", created)
	}
	log.WithField("card", created).Info("assigned")

	if err := m.EditCard(ctx, created, nil, domain.StringPtr("edited by smoke")); err != nil {
		return err
	}
	if err := m.MoveCard(ctx, created, first, last, len(ids)-1, 0); err != nil {
		return err
	}
	if col, idx, _ := st.Locate(created); col != last || idx != 0 {
		return fmt.Errorf("card %s at %s[%d], want %s[0]", created, col, idx, last)
	}
	log.WithField("card", created).Info("moved")

	if failingFlag != "" {
		before := st.Snapshot()
		err := m.EditCard(ctx, failingFlag, domain.StringPtr("never saved"), nil)
		var rb *optimistic.RollbackError
		if !errors.As(err, &rb) {
			return fmt.Errorf("edit of %s: want rollback, got %v", failingFlag, err)
		}
		if after, _ := st.Card(failingFlag); after.Title != before.CardsByID[failingFlag].Title {
			return fmt.Errorf("card %s not restored after rollback", failingFlag)
		}
		log.WithField("card", failingFlag).Info("rolled back")
	}

	if err := m.DeleteCard(ctx, created); err != nil {
		return err
	}

	// A fresh cache loaded from the backend must agree with the live one.
	board, err := client.GetBoard(ctx, "main", api.Query{})
	if err != nil {
		return err
	}
	fresh := store.New()
	fresh.IngestBoard(board)
	if err := fresh.Snapshot().Validate(); err != nil {
		return err
	}
	if _, err := fresh.Card(created); !errors.Is(err, store.ErrCardNotFound) {
		return fmt.Errorf("card %s still on the backend after delete", created)
	}
	if _, err := st.Card(created); !errors.Is(err, store.ErrCardNotFound) {
		return fmt.Errorf("card %s still cached after delete", created)
	}
	log.Info("smoke test passed")
	return nil
}

func waitFor(ctx context.Context, what string, cond func() bool) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for !cond() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", what, ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}
