package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/h0rv/kanban/internal/server"
)

func serveCmd() *cobra.Command {
	var (
		addr      string
		heartbeat time.Duration
		latency   bool
		redisURL  string
		failCards string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the mock board backend",
		Long: `serve runs an in-memory board backend over the bundled demo data.

Card updates on the failing ids (default TICKET-1) answer 500 so rollbacks
can be observed. With --redis, events are shared between instances.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := server.FromEnv(server.Defaults())
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Addr = addr
			}
			if flags.Changed("heartbeat") {
				cfg.Heartbeat = heartbeat
			}
			if flags.Changed("latency") {
				cfg.Latency = latency
			}
			if flags.Changed("redis") {
				cfg.RedisURL = redisURL
			}
			if flags.Changed("fail-cards") {
				cfg.FailingCardIDs = nil
				for _, id := range strings.Split(failCards, ",") {
					if id = strings.TrimSpace(id); id != "" {
						cfg.FailingCardIDs = append(cfg.FailingCardIDs, id)
					}
				}
			}
			if flags.Changed("token") {
				cfg.Token = tokenFlag
			}

			repo, err := server.LoadFixtures()
			if err != nil {
				return err
			}

			var broker server.Broker = server.NewMemoryBroker()
			if cfg.RedisURL != "" {
				rc := redis.NewClient(server.RedisOptions(cfg.RedisURL))
				if err := rc.Ping(cmd.Context()).Err(); err != nil {
					return fmt.Errorf("failed to reach redis: %w", err)
				}
				broker = server.NewRedisBroker(rc, log.StandardLogger())
				log.WithField("channel", server.EventsChannel).Info("sharing board events over redis")
			}
			defer broker.Close()

			log.WithFields(log.Fields{
				"latency":   cfg.Latency,
				"heartbeat": cfg.Heartbeat,
				"failing":   cfg.FailingCardIDs,
			}).Debug("mock backend config")
			return server.New(cfg, repo, broker, log.StandardLogger()).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":4000", "Listen address (env KANBAN_ADDR or PORT)")
	cmd.Flags().DurationVar(&heartbeat, "heartbeat", 15*time.Second, "Stream heartbeat interval (env KANBAN_HEARTBEAT)")
	cmd.Flags().BoolVar(&latency, "latency", false, "Simulate backend latency (env KANBAN_LATENCY)")
	cmd.Flags().StringVar(&redisURL, "redis", "", "Redis URL for cross-instance events (env REDIS_CONNECTION_STRING)")
	cmd.Flags().StringVar(&failCards, "fail-cards", "TICKET-1", "Comma-separated card ids whose updates fail (env KANBAN_FAIL_CARDS)")
	return cmd
}
