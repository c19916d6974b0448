package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewHealthCmd builds `jobctl health`.
func NewHealthCmd(client *APIClient) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check api-service dependency health",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, body, err := client.get("/health")
			if err != nil {
				return err
			}

			fmt.Printf("Status: %v\n", body["status"])
			fmt.Printf("Store:  %v\n", body["store"])
			fmt.Printf("Queue:  %v\n", body["queue"])

			if code != 200 {
				return fmt.Errorf("service degraded")
			}
			return nil
		},
	}
}
