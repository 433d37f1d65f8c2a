package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/reelcap/reelcap/config"
	"github.com/reelcap/reelcap/internal/library"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recordings and exports",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" {
				// Tables for humans, JSON for pipes.
				if term.IsTerminal(int(os.Stdout.Fd())) {
					format = "table"
				} else {
					format = "json"
				}
			}
			catalog := library.NewCatalog(config.GetCatalogPath(), 1024)
			return catalog.List(format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Output format: table or json")
	return cmd
}
