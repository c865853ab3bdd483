package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"cctv/internal/app"
	"cctv/internal/clock"
)

// main starts the surveillance service from one TOML config file.
// Params: CLI flag --config (optional, defaults apply without it).
// Returns: process exit code by startup/run result.
func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	service, err := app.NewService(*configPath, clock.RealClock{})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "service init failed:", err.Error())
		os.Exit(1)
	}

	if err := service.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "service run failed:", err.Error())
		os.Exit(1)
	}
}
