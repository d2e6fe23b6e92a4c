package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

// racePackages hold the goroutine-driven code: completion paths, the
// engine worker and the stream reader.
var racePackages = []string{"./uart/...", "./i2c/...", "./rtc/...", "./adapter/..."}

func TestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run unit tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			race, _ := cmd.Flags().GetBool("race")
			if !race {
				if err := test.Test(); err != nil {
					return fmt.Errorf("failed to run tests: %w", err)
				}
				return nil
			}
			pkgs := args
			if len(pkgs) == 0 {
				pkgs = racePackages
			}
			goTest := exec.CommandContext(cmd.Context(), "go", append([]string{"test", "-race", "-count=1"}, pkgs...)...)
			goTest.Stdout = os.Stdout
			goTest.Stderr = os.Stderr
			slog.Info("running race tests", "packages", pkgs)
			if err := goTest.Run(); err != nil {
				return fmt.Errorf("race tests failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().Bool("race", false, "run the concurrent packages (or the given ones) under the race detector")
	return cmd
}

func LintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Run linting",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := test.Lint(); err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			return nil
		},
	}
}

func IntegrationTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integration-test",
		Short: "Run integration tests against attached hardware",
		Long: `Run integration tests against attached hardware.

The periph configuration given with --config selects the serial port and the
i2c backend the tests open.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg, _ := cmd.Flags().GetString("config"); cfg != "" {
				if err := os.Setenv("PERIPH_CONFIG", cfg); err != nil {
					return fmt.Errorf("could not export config path: %w", err)
				}
			}
			if err := test.Integ(); err != nil {
				return fmt.Errorf("failed to run integration testing: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("config", "", "periph yaml configuration for the hardware under test")
	return cmd
}
