package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reelcap/reelcap/internal/util"
	"github.com/reelcap/reelcap/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "reelcap",
	Short: "Screen recording CLI",
	Long: `reelcap captures a display into a fragmented MP4 recording with live
preview and cursor-following zoom, and re-renders finished recordings
into other aspect ratios for distribution.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flag("version").Changed {
			info := version.Info()
			fmt.Printf("reelcap version %s, build %s\n", info["Version"], info["GitCommit"])
			return nil
		}
		return cmd.Help()
	},
}

func Execute() error {
	util.InitLogger(util.IsVerbose())
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information and exit")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	rootCmd.AddCommand(NewRecordCommand())
	rootCmd.AddCommand(NewExportCommand())
	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewPruneCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewStatusCommand())
	rootCmd.AddCommand(NewStopCommand())
	rootCmd.AddCommand(NewSetupCommand())
	rootCmd.AddCommand(NewVersionCommand())
}
