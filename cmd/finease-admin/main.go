package main

import (
	"context"
	"fmt"
	"os"

	"finease/internal/backend"
	"finease/internal/cli"
	"finease/internal/config"
	"finease/internal/log"
	"finease/internal/ports"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg)

	open := func(ctx context.Context) (ports.Store, error) {
		bc, err := backend.FromAppConfig(cfg)
		if err != nil {
			return nil, err
		}
		// operator commands never publish events
		bc.AMQPURL = ""
		res, err := backend.NewFactory(logger).Open(ctx, bc)
		if err != nil {
			return nil, err
		}
		return res.Store, nil
	}

	root := cli.NewAdminCommand(open, func() string { return cfg.SQLiteDBPath })
	if err := root.ExecuteContext(context.Background()); err != nil {
		logger.Debug("Command failed", log.FieldError, err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
