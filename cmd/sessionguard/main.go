// Command sessionguard signs in to the accounts backend and keeps the session
// in a local SQLite file or in Redis between invocations.
//
// Usage:
//
//	sessionguard login -email demo@smartanom.com -password ...
//	sessionguard whoami
//	sessionguard lockout -email demo@smartanom.com
//	sessionguard logout
//
// Configuration is read from the environment and an optional .env file; see
// loadConfig for the variable names.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/SmarTanom/sessionguard"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.logLevel()}))

	guard, closeGuard, err := openGuard(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "open session store: %v\n", err)
		return 1
	}
	defer closeGuard()

	if err := cmd.run(ctx, guard, args[1:], stdout); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func openGuard(cfg *cliConfig, logger *slog.Logger) (*sessionguard.Guard, func(), error) {
	b := sessionguard.New().
		WithConfig(cfg.guardConfig()).
		WithLogger(logger)
	if cfg.Audit {
		b.WithAuditSink(sessionguard.NewSlogSink(logger))
	}

	var rdb *redis.Client
	switch cfg.Store {
	case "redis":
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		b.WithRedis(rdb, cfg.RedisPrefix)
	default:
		b.WithSQLite(cfg.SQLitePath)
	}

	guard, err := b.Build()
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, nil, err
	}

	return guard, func() {
		_ = guard.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
	}, nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: sessionguard <command> [flags]")
	fmt.Fprintln(w, "commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-15s %s\n", name, commands[name].summary)
	}
}
