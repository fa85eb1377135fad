package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/h0rv/kanban/internal/api"
	"github.com/h0rv/kanban/internal/auth"
	"github.com/h0rv/kanban/internal/session"
)

var (
	// CLI flags shared by every client command
	urlFlag    string
	tokenFlag  string
	boardFlag  string
	viewerFlag int
	debugFlag  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kanban",
		Short: "Realtime kanban board client and mock backend",
		Long: `kanban talks to a kanban board backend, or runs a local mock of one.

Board state is cached locally, edits are applied optimistically and rolled
back when the backend rejects them, and pushed events keep the board live.

Authentication:
  Pass --token or set KANBAN_TOKEN. Reads are anonymous.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); (err == nil && dbg) || debugFlag {
				log.SetLevel(log.DebugLevel)
			}
		},
	}

	defaultURL := "http://localhost:4000"
	if v, ok := os.LookupEnv("KANBAN_URL"); ok && v != "" {
		defaultURL = v
	}
	rootCmd.PersistentFlags().StringVar(&urlFlag, "url", defaultURL, "Backend base URL (env KANBAN_URL)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "Bearer token for mutating requests (env KANBAN_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&boardFlag, "board", "main", "Board id")
	rootCmd.PersistentFlags().IntVar(&viewerFlag, "viewer", 1, "Id of the signed-in user")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging (env DEBUG)")

	rootCmd.AddCommand(serveCmd(), boardCmd(), watchCmd(), cardCmd(), userCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// newClient builds the API client from the shared flags.
func newClient() (*api.Client, string, error) {
	token, err := auth.GetToken(tokenFlag)
	if err != nil && !errors.Is(err, auth.ErrNoToken) {
		return nil, "", fmt.Errorf("failed to resolve token: %w", err)
	}
	var opts []api.Option
	if token != "" {
		opts = append(opts, api.WithToken(token))
	}
	return api.New(urlFlag, opts...), token, nil
}

// openSession fetches the viewer and the board into a fresh session.
func openSession(ctx context.Context) (*session.Session, error) {
	client, token, err := newClient()
	if err != nil {
		return nil, err
	}
	sess, err := session.Open(ctx, session.Deps{
		Backend: client,
		BaseURL: client.BaseURL(),
		Token:   token,
		Logger:  log.StandardLogger(),
	}, boardFlag, viewerFlag)
	if err != nil {
		return nil, fmt.Errorf("failed to open board %s: %w", boardFlag, err)
	}
	return sess, nil
}
