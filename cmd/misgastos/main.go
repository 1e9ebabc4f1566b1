package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"misgastos/internal/cli"
	"misgastos/internal/core"
	"misgastos/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Stderr, os.Getenv("LOG_LEVEL"))

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		logger.LogError(context.Background(), "Configuration validation failed", err,
			log.OpValidate, log.ErrorTypeConfiguration, nil)
		os.Exit(1)
	}

	ctx, stop := cli.GracefulShutdown(context.Background())
	defer stop()

	app, err := cli.InitApp(ctx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize ledger", err)
	}

	err = run(ctx, app, os.Args[1:], os.Stdout)
	if cerr := app.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

// describe turns err into a message for the terminal.
func describe(err error) string {
	switch {
	case core.IsDomain(err):
		return "error: " + err.Error()
	case core.IsStorage(err):
		return "storage error: " + err.Error()
	default:
		return "error: " + err.Error()
	}
}
