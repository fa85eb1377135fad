package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/render"
	"github.com/h0rv/kanban/internal/session"
)

var (
	searchFlag   string
	assigneeFlag []int
	widthFlag    int
)

func addBoardFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&searchFlag, "query", "q", "", "Only show cards whose title contains this text")
	cmd.Flags().IntSliceVar(&assigneeFlag, "assignee", nil, "Only show cards assigned to these user ids")
	cmd.Flags().IntVar(&widthFlag, "width", terminalWidth(), "Render width (env COLUMNS)")
}

func terminalWidth() int {
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 0 {
		return n
	}
	return 120
}

// applyFilters narrows the session's board by the search text and the
// assignee filter given on the command line.
func applyFilters(ctx context.Context, sess *session.Session) error {
	if q := strings.TrimSpace(searchFlag); q != "" {
		if err := sess.Search(ctx, q); err != nil {
			return err
		}
	}
	if len(assigneeFlag) > 0 {
		return sess.ToggleAssignee(ctx, assigneeFlag...)
	}
	return nil
}

func boardHeader(sess *session.Session, st domain.BoardState) string {
	title := "Board " + sess.BoardID
	if viewer, ok := sess.Viewer(); ok {
		title += " · " + viewer.Name
	}
	if ids := st.SelectedAssignees(); len(ids) > 0 {
		title += fmt.Sprintf(" · assignees %v", ids)
	}
	if q := sess.Query().Q; q != "" {
		title += fmt.Sprintf(" · %q", q)
	}
	return render.TitleStyle.Render(title)
}

func boardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Print the board",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := applyFilters(cmd.Context(), sess); err != nil {
				return err
			}
			st := sess.Store().Snapshot()
			fmt.Println(boardHeader(sess, st))
			fmt.Println(render.Board(st, render.Options{Width: widthFlag}))
			return nil
		},
	}
	addBoardFlags(cmd)
	return cmd
}

func watchCmd() *cobra.Command {
	var transport string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the board and redraw it as events arrive",
		Long: `watch keeps a live subscription open and redraws the board on every
change. Stop it with Ctrl-C. The subscription does not reconnect.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := applyFilters(ctx, sess); err != nil {
				return err
			}
			sub, err := sess.Live(ctx, transport)
			if err != nil {
				return err
			}

			changed := make(chan struct{}, 1)
			unsubscribe := sess.Store().Subscribe(func(domain.BoardState) {
				select {
				case changed <- struct{}{}:
				default:
				}
			})
			defer unsubscribe()

			draw := func() {
				st := sess.Store().Snapshot()
				// Clear the screen and home the cursor.
				fmt.Print("\033[H\033[2J")
				fmt.Println(boardHeader(sess, st) + "  " + render.Status(sub.Status()))
				fmt.Println(render.Board(st, render.Options{Width: widthFlag}))
			}
			draw()

			// Status changes do not touch the store, so poll for them.
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			last := sub.Status()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-sub.Done():
					if ctx.Err() != nil {
						return nil
					}
					draw()
					if err := sub.Err(); err != nil {
						return fmt.Errorf("stream ended: %w", err)
					}
					return nil
				case <-changed:
					draw()
				case <-ticker.C:
					if s := sub.Status(); s != last {
						last = s
						log.WithField("status", s).Debug("stream status changed")
						draw()
					}
				}
			}
		},
	}
	addBoardFlags(cmd)
	cmd.Flags().StringVar(&transport, "transport", session.TransportSSE, "Push transport: sse or ws")
	return cmd
}
