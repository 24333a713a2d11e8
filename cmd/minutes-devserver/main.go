// Package main runs the in-memory development server for the minutes CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/raphaelgruber/minutes-go/internal/client"
	"github.com/raphaelgruber/minutes-go/internal/config"
	"github.com/raphaelgruber/minutes-go/internal/devserver"
)

func main() {
	var users []client.RegisterInput
	step := flag.Int("step", devserver.DefaultStep, "progress gained per status poll")
	addr := flag.String("addr", "", "listen address (default from MINUTES_DEVSERVER_ADDR)")
	flag.Func("user", "seed user as username:email:password[:full name] (repeatable)", func(s string) error {
		u, err := parseUser(s)
		if err != nil {
			return err
		}
		users = append(users, u)
		return nil
	})
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *addr == "" {
		*addr = cfg.DevServerAddr
	}

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel, os.Stderr)
	defer closeLog()
	slog.SetDefault(logger)

	srv, err := devserver.New(devserver.Options{Step: *step, Users: users, Logger: logger})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting minutes-devserver", "addr", *addr, "step", *step, "users", len(users))
	if err := srv.Run(ctx, *addr); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func parseUser(s string) (client.RegisterInput, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) < 3 {
		return client.RegisterInput{}, errors.New("expected username:email:password[:full name]")
	}
	u := client.RegisterInput{
		Username:        parts[0],
		Email:           parts[1],
		Password:        parts[2],
		ConfirmPassword: parts[2],
		FullName:        parts[0],
	}
	if len(parts) == 4 && parts[3] != "" {
		u.FullName = parts[3]
	}
	return u, nil
}
