package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// modulePaths are the directories whose commits belong in the changelog.
var modulePaths = []string{"uart", "i2c", "gpio", "rtc", "adapter", "hwctx", "pkg", "cmd/periph"}

func ChangelogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Generate CHANGELOG.md from conventional commits",
		Long: `Generate CHANGELOG.md with git-chglog.

Only commits touching the transport and driver packages are listed unless
--all is given; build tooling changes stay out of the release notes.

Examples:
  dev changelog --next v0.2.0
  dev changelog --path uart --path i2c
  dev changelog --tag v0.1.0 --output CHANGES.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			next, _ := cmd.Flags().GetString("next")
			tag, _ := cmd.Flags().GetString("tag")
			all, _ := cmd.Flags().GetBool("all")
			paths, err := cmd.Flags().GetStringSlice("path")
			if err != nil {
				return fmt.Errorf("could not get path flag: %w", err)
			}

			if _, err := exec.LookPath("git-chglog"); err != nil {
				slog.Error("git-chglog not found in PATH, install it with: go install github.com/git-chglog/git-chglog/cmd/git-chglog@latest")
				return fmt.Errorf("git-chglog not installed: %w", err)
			}

			chglogArgs := []string{"--output", output}
			if next != "" {
				chglogArgs = append(chglogArgs, "--next-tag", next)
			}
			if !all {
				if len(paths) == 0 {
					paths = modulePaths
				}
				for _, p := range paths {
					chglogArgs = append(chglogArgs, "--path", p)
				}
			}
			if tag != "" {
				chglogArgs = append(chglogArgs, tag)
			}

			slog.Info("running git-chglog", "args", chglogArgs)
			gitChglog := exec.CommandContext(cmd.Context(), "git-chglog", chglogArgs...)
			gitChglog.Stdout = os.Stdout
			gitChglog.Stderr = os.Stderr
			if err := gitChglog.Run(); err != nil {
				return fmt.Errorf("failed to generate changelog: %w", err)
			}
			slog.Info("changelog generated", "output", output)
			return nil
		},
	}

	cmd.Flags().String("next", "", "next version tag (e.g. v0.2.0)")
	cmd.Flags().String("output", "CHANGELOG.md", "output file path")
	cmd.Flags().String("tag", "", "generate for a single tag")
	cmd.Flags().StringSlice("path", nil, "limit to commits touching these paths (defaults to the module packages)")
	cmd.Flags().Bool("all", false, "include every commit")
	return cmd
}
