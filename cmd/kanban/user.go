package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/h0rv/kanban/internal/render"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Search and edit users",
	}
	cmd.AddCommand(userSearchCmd(), userRenameCmd())
	return cmd
}

func userSearchCmd() *cobra.Command {
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "search [QUERY]",
		Short: "Search users by name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient()
			if err != nil {
				return err
			}
			var query string
			if len(args) == 1 {
				query = args[0]
			}
			res, err := client.SearchUsers(cmd.Context(), query, page, pageSize)
			if err != nil {
				return fmt.Errorf("failed to search users: %w", err)
			}
			for _, u := range res.Items {
				fmt.Printf("%4d  %s\n", u.ID, u.Name)
			}
			info := fmt.Sprintf("page %d, %d of %d users", res.PageInfo.Page, len(res.Items), res.PageInfo.Total)
			if res.PageInfo.HasMore {
				info += fmt.Sprintf(", more with --page %d", res.PageInfo.Page+1)
			}
			fmt.Println(render.StatusStyle.Render(info))
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "Page number, starting at 0")
	cmd.Flags().IntVar(&pageSize, "page-size", 10, "Users per page")
	return cmd
}

func userRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename USER_ID NAME...",
		Short: "Rename a user",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			sess, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			name := strings.Join(args[1:], " ")
			if err := sess.Mutations().RenameUser(cmd.Context(), id, name); err != nil {
				return err
			}
			u, _ := sess.Store().User(id)
			fmt.Printf("User %d is now %s\n", u.ID, u.Name)
			return nil
		},
	}
}
