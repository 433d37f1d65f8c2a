package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reelcap/reelcap/config"
	"github.com/reelcap/reelcap/internal/deps"
	"github.com/reelcap/reelcap/internal/util"
)

// NewSetupCommand creates the setup command.
func NewSetupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Check external tool dependencies",
		Long: `Check that the external tools reelcap depends on (ffmpeg, ffprobe)
are installed, and print install instructions for missing ones.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup()
		},
	}
}

func runSetup() error {
	fmt.Println("reelcap dependency check")
	fmt.Println()

	verbose := util.IsVerbose()
	tools := []struct {
		name string
		path string
	}{
		{"ffmpeg", config.GetFFmpegPath()},
		{"ffprobe", config.GetFFprobePath()},
	}

	allFound := true
	for _, t := range tools {
		sp := deps.NewUISpinner(verbose, fmt.Sprintf("Checking %s...", t.name))
		tool := deps.Check(t.name, t.path)
		if tool.Found {
			if tool.Version != "" {
				sp.Success(fmt.Sprintf("%s %s (%s)", tool.Name, tool.Version, tool.Path))
			} else {
				sp.Success(fmt.Sprintf("%s (%s)", tool.Name, tool.Path))
			}
		} else {
			sp.Fail(fmt.Sprintf("%s not found — install with: %s", t.name, deps.InstallHint(t.name)))
			allFound = false
		}
	}

	fmt.Println()
	fmt.Printf("Recordings directory: %s\n", config.GetRecordingsDir())
	fmt.Printf("Data directory:       %s\n", config.GetHome())

	if err := os.MkdirAll(config.GetRecordingsDir(), 0o755); err != nil {
		fmt.Printf("Warning: cannot create recordings directory: %v\n", err)
	}
	if err := os.MkdirAll(config.GetHome(), 0o755); err != nil {
		fmt.Printf("Warning: cannot create data directory: %v\n", err)
	}

	if !allFound {
		return fmt.Errorf("some dependencies are missing")
	}
	fmt.Println("\nAll dependencies are ready.")
	return nil
}
