package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check backend liveness and authentication",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client, _, err := setup(ctx)
	if err != nil {
		return err
	}
	defer client.Stop(context.Background())

	ping, err := client.Ping(ctx, "status check")
	if err != nil {
		return err
	}
	fmt.Printf("backend reachable (ping at %d)\n", ping.Timestamp)

	status, err := client.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("version: %s (protocol %s)\n", status.Version, status.ProtocolVersion)

	auth, err := client.AuthStatus(ctx)
	if err != nil {
		return err
	}
	if auth.IsAuthenticated {
		fmt.Printf("authenticated (%s)\n", auth.AuthType)
	} else {
		fmt.Println("not authenticated")
		if auth.StatusMessage != "" {
			fmt.Println(auth.StatusMessage)
		}
	}
	return nil
}
