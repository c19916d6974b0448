package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatusCmd builds `jobctl status <job-id>`.
func NewStatusCmd(client *APIClient) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, body, err := client.get("/task-status/" + args[0])
			if err != nil {
				return err
			}
			if code != 200 {
				return fmt.Errorf("lookup failed (%d): %v", code, body["error"])
			}

			fmt.Printf("Job:      %v\n", body["job_id"])
			fmt.Printf("Category: %v\n", body["category"])
			fmt.Printf("Status:   %v\n", body["status"])
			fmt.Printf("Attempt:  %v\n", body["attempt"])
			if lastErr, ok := body["last_error"].(string); ok && lastErr != "" {
				fmt.Printf("Error:    %s\n", lastErr)
			}
			return nil
		},
	}
}
