package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the jobctl command tree.
func NewRootCmd() *cobra.Command {
	var apiURL string

	cmd := &cobra.Command{
		Use:   "jobctl",
		Short: "Operate the analysis job service",
	}

	cmd.PersistentFlags().StringVar(&apiURL, "api", "http://localhost:8080", "Base URL of the api-service")

	client := NewAPIClient(&apiURL)
	cmd.AddCommand(NewSubmitCmd(client))
	cmd.AddCommand(NewStatusCmd(client))
	cmd.AddCommand(NewHealthCmd(client))

	return cmd
}
