package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	riverchat "github.com/putto11262002/riverchat/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer stop()

	config, err := riverchat.LoadConfig()
	if err != nil {
		failed(1, "failed to load config: %v\n", err)
	}
	if err := config.Validate(); err != nil {
		failed(1, "invalid config:\n%s", riverchat.FormatValidationErrors(err))
	}

	logger := riverchat.NewLogger(os.Stdout, config)

	app, err := riverchat.New(ctx, config, logger)
	if err != nil {
		failed(1, "failed to start: %v\n", err)
	}

	if err := app.Start(); err != nil {
		failed(1, "app exited: %v\n", err)
	}
}

func failed(code int, s string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, s, args...)
	os.Exit(code)
}
