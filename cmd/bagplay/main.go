package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/onkernel/bagctl/cmd/bagplay/cli"
	"github.com/onkernel/bagctl/cmd/config"
	"github.com/onkernel/bagctl/lib/logger"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		return err
	}
	level, _ := logger.ParseLevel(cfg.LogLevel)

	deps := &cli.Dependencies{
		Config: cfg,
		Logger: slog.New(logger.NewTextHandler(os.Stderr, level)),
	}
	return cli.NewRootCmd(deps).Execute()
}
