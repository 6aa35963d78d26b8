// Package main is the entry point for the HostSentry intrusion detection
// service.
package main

import (
	"context"
	"fmt"
	"os"

	"hostsentry/bootstrap"
	"hostsentry/cmd"
)

// run initializes and starts the HostSentry service.
func run() error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.WaitForShutdown()
	app.Shutdown()

	return nil
}

func main() {
	// CLI mode handles rule file inspection without starting the service.
	if len(os.Args) > 1 && os.Args[1] == "rules" {
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)

		rulesCmd := cmd.NewRulesCmd()
		if err := rulesCmd.Execute(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
