package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reelcap/reelcap/config"
	"github.com/reelcap/reelcap/internal/library"
)

// PruneOptions holds command options.
type PruneOptions struct {
	DryRun bool
	Force  bool
}

// NewPruneCommand creates the prune command.
func NewPruneCommand() *cobra.Command {
	opts := &PruneOptions{}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop catalog entries for vanished files and delete corrupt strays",
		Long: `Remove catalog entries whose files no longer exist and delete files
below the minimum valid size. Recordings that play fine are never
touched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Show what would be removed without removing it")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Prune without confirmation")
	return cmd
}

func runPrune(opts *PruneOptions) error {
	catalog := library.NewCatalog(config.GetCatalogPath(), 1024)

	if !opts.DryRun && !opts.Force {
		fmt.Print("Prune vanished and undersized recordings? (y/N): ")
		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read user input: %v", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Operation cancelled.")
			return nil
		}
	}

	removed, err := catalog.Prune(opts.DryRun)
	if err != nil {
		return err
	}

	if len(removed) == 0 {
		fmt.Println("Nothing to prune")
		return nil
	}
	for _, e := range removed {
		if opts.DryRun {
			fmt.Printf("would remove: %s (%s)\n", e.ID, e.Path)
		} else {
			fmt.Printf("removed: %s (%s)\n", e.ID, e.Path)
		}
	}
	return nil
}
