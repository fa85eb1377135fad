package server

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config controls the mock backend.
type Config struct {
	Addr      string
	Heartbeat time.Duration
	// FailingCardIDs answer every PATCH with a 500, for exercising rollbacks.
	FailingCardIDs []string
	// Latency enables the artificial response delays.
	Latency bool
	// Token, when set, is required as a bearer credential on mutating routes.
	Token string
	// RedisURL selects the Redis broker; empty uses the in-process broker.
	RedisURL string
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Addr:           ":4000",
		Heartbeat:      15 * time.Second,
		FailingCardIDs: []string{"TICKET-1"},
	}
}

// FromEnv overlays environment variables onto base.
func FromEnv(base Config) (Config, error) {
	cfg := base
	if v, ok := os.LookupEnv("KANBAN_ADDR"); ok && v != "" {
		cfg.Addr = v
	} else if v, ok := os.LookupEnv("PORT"); ok && v != "" {
		cfg.Addr = ":" + v
	}
	if v := os.Getenv("KANBAN_HEARTBEAT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid KANBAN_HEARTBEAT %q", v)
		}
		cfg.Heartbeat = d
	}
	if v, ok := os.LookupEnv("KANBAN_FAIL_CARDS"); ok {
		cfg.FailingCardIDs = splitList(v)
	}
	if v := os.Getenv("KANBAN_LATENCY"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid KANBAN_LATENCY %q", v)
		}
		cfg.Latency = on
	}
	if v := os.Getenv("KANBAN_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("REDIS_CONNECTION_STRING"); v != "" {
		cfg.RedisURL = v
	}
	return cfg, nil
}

func splitList(v string) []string {
	out := []string{}
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// RedisOptions parses a redis:// URL, or the "host:port,password=...,ssl=true"
// form used by managed Redis connection strings.
func RedisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
