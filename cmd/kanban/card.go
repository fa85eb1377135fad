package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/optimistic"
	"github.com/h0rv/kanban/internal/render"
	"github.com/h0rv/kanban/internal/session"
)

func cardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Inspect and edit cards",
	}
	cmd.AddCommand(cardShowCmd(), cardAssignCmd(), cardMoveCmd(), cardDeleteCmd(), cardCreateCmd(), cardEditCmd())
	return cmd
}

// reportMutation prints the board after a mutation and explains a rollback.
func reportMutation(sess *session.Session, highlight string, err error) error {
	if errors.Is(err, optimistic.ErrInvalid) {
		return err
	}
	var rb *optimistic.RollbackError
	if errors.As(err, &rb) {
		fmt.Println(render.ErrorStyle.Render("Backend rejected the change; the board was restored."))
	}
	fmt.Println(render.Board(sess.Store().Snapshot(), render.Options{Width: terminalWidth(), Highlight: highlight}))
	return err
}

func cardShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient()
			if err != nil {
				return err
			}
			lookup, err := client.GetCard(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get card %s: %w", args[0], err)
			}
			card := lookup.Ticket
			entry := domain.CardEntry{ID: card.ID, Title: card.Title, Description: card.Description}
			fmt.Print(render.Card(entry, card.Assignee, lookup.Column.Title, min(terminalWidth(), 72)))
			return nil
		},
	}
}

func cardAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign ID USER_ID|none",
		Short: "Assign a card, or unassign it with none",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			var user *domain.User
			if !strings.EqualFold(args[1], "none") {
				id, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid user id %q", args[1])
				}
				u, ok := sess.Store().User(id)
				if !ok {
					client, _, err := newClient()
					if err != nil {
						return err
					}
					if u, err = client.GetUser(cmd.Context(), id); err != nil {
						return fmt.Errorf("failed to get user %d: %w", id, err)
					}
				}
				user = &u
			}
			err = sess.Mutations().AssignCard(cmd.Context(), args[0], user)
			return reportMutation(sess, args[0], err)
		},
	}
}

func cardMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move ID COLUMN_ID INDEX",
		Short: "Move a card to a position in a column",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			toIndex, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[2])
			}
			sess, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			from, fromIndex, ok := sess.Store().Locate(args[0])
			if !ok {
				return fmt.Errorf("card %s is not on the board", args[0])
			}
			err = sess.Mutations().MoveCard(cmd.Context(), args[0], from, args[1], fromIndex, toIndex)
			return reportMutation(sess, args[0], err)
		},
	}
}

func cardDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()
			return reportMutation(sess, "", sess.Mutations().DeleteCard(cmd.Context(), args[0]))
		},
	}
}

func cardCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create COLUMN_ID TITLE...",
		Short: "Create a card at the end of a column",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			columnID := args[0]
			err = sess.Mutations().CreateCard(cmd.Context(), columnID, strings.Join(args[1:], " "))
			var created string
			if ids := sess.Store().ColumnCards(columnID); len(ids) > 0 {
				created = ids[len(ids)-1]
			}
			return reportMutation(sess, created, err)
		},
	}
}

func cardEditCmd() *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change a card's title or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var titlePtr, descPtr *string
			if cmd.Flags().Changed("title") {
				titlePtr = &title
			}
			if cmd.Flags().Changed("description") {
				descPtr = &description
			}
			sess, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()
			return reportMutation(sess, args[0], sess.Mutations().EditCard(cmd.Context(), args[0], titlePtr, descPtr))
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	return cmd
}
