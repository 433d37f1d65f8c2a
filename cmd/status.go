package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/reelcap/reelcap/config"
	"github.com/reelcap/reelcap/internal/client"
)

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running reelcap server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == 0 {
				port = config.GetServerPort()
			}
			st, err := client.New(port).Status(context.Background())
			if err != nil {
				return err
			}

			if !st.Recording {
				fmt.Println("State: idle")
			} else {
				elapsed := time.Duration(st.ElapsedSeconds * float64(time.Second)).Round(time.Second)
				fmt.Printf("State: %s\n", st.State)
				fmt.Printf("Elapsed: %s\n", elapsed)
				fmt.Printf("Output: %s\n", st.OutputPath)
				if st.Restarts > 0 {
					fmt.Printf("Restarts: %d\n", st.Restarts)
				}
			}
			fmt.Printf("Zoom: %.1fx\n", st.ZoomLevel)
			fmt.Printf("Preview clients: %d\n", st.PreviewClients)
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Server port (default: configured port)")
	return cmd
}
