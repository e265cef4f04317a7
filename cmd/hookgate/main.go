package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/hookgate/internal/audit"
	"github.com/mattjoyce/hookgate/internal/auth"
	"github.com/mattjoyce/hookgate/internal/config"
	"github.com/mattjoyce/hookgate/internal/gateway"
	"github.com/mattjoyce/hookgate/internal/handlers"
	"github.com/mattjoyce/hookgate/internal/log"
	"github.com/mattjoyce/hookgate/internal/ratelimit"
	"github.com/mattjoyce/hookgate/internal/router"
	"github.com/mattjoyce/hookgate/internal/signature"
	"github.com/mattjoyce/hookgate/internal/storage"
	"github.com/mattjoyce/hookgate/internal/tui/watch"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "serve":
		os.Exit(runServe(args))
	case "watch":
		os.Exit(runWatch(args))
	case "hash-key":
		os.Exit(runHashKey(args))
	case "version":
		fmt.Printf("hookgate version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`hookgate - webhook admission gateway

Usage:
  hookgate <command> [flags]

Commands:
  serve       Run the gateway in the foreground
  watch       Live terminal monitor of admission decisions
  hash-key    Print the BLAKE3 digest of an API key read from stdin
  version     Show version information
  help        Show this help message

Serve flags:
  --config <path>   Configuration file (default: config.yaml)

Watch flags:
  --url <base>      Gateway base URL (default: http://127.0.0.1:8080)
  --token <key>     API key sent as a bearer token with gateway requests
`)
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to configuration file")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("hookgate")
	logger.Info("starting", "version", version, "config", *configPath)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Signature verifier. Open mode is legitimate but loud.
	verifier, err := signature.New(cfg.Signature.Secret, signature.Mode(cfg.Signature.Mode))
	if err != nil {
		logger.Error("signature setup failed", "error", err)
		return 1
	}

	// Role resolver from the configured key table.
	entries := make([]auth.KeyEntry, 0, len(cfg.Auth.Keys))
	for _, k := range cfg.Auth.Keys {
		digest := k.KeyHash
		if digest == "" {
			digest = auth.HashKey(k.Key)
		}
		entries = append(entries, auth.KeyEntry{Digest: digest, Role: auth.Role(k.Role)})
	}
	resolver, err := auth.NewStaticResolver(entries)
	if err != nil {
		logger.Error("auth setup failed", "error", err)
		return 1
	}

	// SQLite backs the audit sink and optionally the counter store.
	var recorder audit.Recorder = audit.NopRecorder{}
	var auditLog audit.Log = audit.SlogLog{Logger: log.WithComponent("audit")}
	var sqlStore *ratelimit.SQLStore
	if cfg.State.Path != "" {
		db, err := storage.Open(ctx, cfg.State.Path)
		if err != nil {
			logger.Error("state database open failed", "error", err)
			return 1
		}
		defer db.Close()

		sink := audit.NewSQLSink(db, log.WithComponent("audit"))
		defer sink.Close()
		recorder, auditLog = sink, sink

		if sqlStore, err = ratelimit.NewSQLStore(db); err != nil {
			logger.Error("sqlite counter store setup failed", "error", err)
			return 1
		}
	}

	limiter, err := buildLimiter(cfg, sqlStore)
	if err != nil {
		logger.Error("rate limiter setup failed", "error", err)
		return 1
	}

	// Periodic sweep keeps the durable counter table from growing forever.
	if sqlStore != nil && cfg.RateLimit.Store == "sqlite" {
		go sweepLoop(ctx, sqlStore, cfg)
	}

	registry := router.NewRegistry()
	handlers.RegisterBuiltins(registry)

	maxBody, _ := cfg.BodySizeBytes()
	srv := gateway.New(
		gateway.Config{Listen: cfg.Listen, MaxBodySize: maxBody},
		verifier, resolver, limiter, registry,
		recorder, auditLog,
		log.WithComponent("gateway"),
	)

	if err := srv.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("gateway stopped", "error", err)
		return 1
	}
	logger.Info("stopped")
	return 0
}

func buildLimiter(cfg *config.Config, sqlStore *ratelimit.SQLStore) (ratelimit.Checker, error) {
	if cfg.RateLimit.Mode == "disabled" {
		log.Warn("rate limiting is DISABLED by configuration")
		return ratelimit.Noop{}, nil
	}

	budgets := make(ratelimit.Budgets, len(cfg.RateLimit.Budgets))
	for role, b := range cfg.RateLimit.Budgets {
		budgets[auth.Role(role)] = ratelimit.Budget{Max: b.Max, Window: b.Window}
	}
	if err := budgets.Validate(); err != nil {
		return nil, err
	}

	var store ratelimit.CounterStore
	switch cfg.RateLimit.Store {
	case "memory":
		store = ratelimit.NewMemoryStore()
	case "redis":
		rs, err := ratelimit.NewRedisStore(ratelimit.RedisConfig{
			Addr:     cfg.RateLimit.Redis.Addr,
			Password: cfg.RateLimit.Redis.Password,
			DB:       cfg.RateLimit.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		store = rs
	case "sqlite":
		if sqlStore == nil {
			return nil, fmt.Errorf("sqlite counter store requires state.path")
		}
		store = sqlStore
	default:
		return nil, fmt.Errorf("unknown counter store %q", cfg.RateLimit.Store)
	}

	return ratelimit.New(store, budgets, log.WithComponent("ratelimit")), nil
}

// sweepLoop clears counter rows older than the longest configured window.
func sweepLoop(ctx context.Context, store *ratelimit.SQLStore, cfg *config.Config) {
	interval := sweepInterval(cfg)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * interval)
			if n, err := store.Sweep(ctx, cutoff); err != nil {
				log.Warn("counter sweep failed", "error", err)
			} else if n > 0 {
				log.Debug("swept expired counters", "rows", n)
			}
		}
	}
}

// sweepInterval is the longest configured window, or a fixed fallback when no
// budgets exist (rate limiting disabled but a sqlite store configured; rows
// left over from earlier runs still need to age out). NewTicker panics on a
// non-positive interval, so this must never return zero.
func sweepInterval(cfg *config.Config) time.Duration {
	var longest time.Duration
	for _, b := range cfg.RateLimit.Budgets {
		if b.Window > longest {
			longest = b.Window
		}
	}
	if longest <= 0 {
		return time.Minute
	}
	return longest
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	url := fs.String("url", "http://127.0.0.1:8080", "gateway base URL")
	token := fs.String("token", "", "API key sent as a bearer token")
	_ = fs.Parse(args)

	if err := watch.Run(*url, *token); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func runHashKey(args []string) int {
	fs := flag.NewFlagSet("hash-key", flag.ExitOnError)
	_ = fs.Parse(args)

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		fmt.Fprintln(os.Stderr, "Error: no key on stdin")
		return 1
	}
	key := strings.TrimSpace(scanner.Text())
	if key == "" {
		fmt.Fprintln(os.Stderr, "Error: empty key")
		return 1
	}

	fmt.Println(auth.HashKey(key))
	return 0
}
