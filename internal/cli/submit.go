package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/insightq/analysis-jobs/internal/domain"
)

// NewSubmitCmd builds `jobctl submit <category> <payload-json>`.
func NewSubmitCmd(client *APIClient) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <category> '<payload-json>'",
		Short: "Submit a job for a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			category := domain.Category(args[0])
			if !category.Known() {
				return fmt.Errorf("unknown category %q (known: %v)", args[0], domain.Categories())
			}

			payload := []byte(args[1])
			if !json.Valid(payload) {
				return fmt.Errorf("payload is not valid JSON")
			}

			code, body, err := client.postJSON("/process-"+category.Endpoint(), payload)
			if err != nil {
				return err
			}
			if code != 200 {
				return fmt.Errorf("submission rejected (%d): %v", code, body["error"])
			}

			fmt.Println("Job submitted:", body["jobId"])
			return nil
		},
	}
}
