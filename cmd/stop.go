package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/reelcap/reelcap/config"
	"github.com/reelcap/reelcap/internal/client"
)

// NewStopCommand creates the stop command.
func NewStopCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the recording on a running reelcap server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == 0 {
				port = config.GetServerPort()
			}
			res, err := client.New(port).StopRecording(context.Background())
			if err != nil {
				return err
			}
			if res.Error != "" {
				color.Red("✗ Recording failed: %s", res.Error)
				return fmt.Errorf("recording failed")
			}
			color.Green("✓ Recording saved: %s", res.Path)
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Server port (default: configured port)")
	return cmd
}
