package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"jobqueue/pkg/api"

	"github.com/spf13/cobra"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Add a job to the queue",
	Long: `Add a typed job to the queue.

The payload is a JSON object checked against the job type on the server.
With --key, a live job carrying the same key is returned instead of a new one.

Example:
  jobctl enqueue --type echo --payload '{"message":"hello"}'
  jobctl enqueue --type delete_file --payload '{"path":"old.log"}' --priority 10 --max-attempts 5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		jobType, _ := flags.GetString("type")
		rawPayload, _ := flags.GetString("payload")
		priority, _ := flags.GetInt("priority")
		maxAttempts, _ := flags.GetInt("max-attempts")
		key, _ := flags.GetString("key")

		if jobType == "" {
			return errors.New("--type is required")
		}
		if rawPayload == "" {
			rawPayload = "{}"
		}
		if !json.Valid([]byte(rawPayload)) {
			return errors.New("--payload must be valid JSON")
		}

		resp, err := newClient().Enqueue(api.EnqueueRequest{
			Type:           jobType,
			Payload:        json.RawMessage(rawPayload),
			Priority:       priority,
			MaxAttempts:    maxAttempts,
			IdempotencyKey: key,
		})
		if err != nil {
			return fmt.Errorf("enqueue failed: %w", err)
		}

		if resp.Created {
			cmd.Println("Job enqueued successfully!")
		} else {
			cmd.Println("A live job with this key already exists.")
		}
		cmd.Printf("Job ID: %s\n", resp.Job.ID)
		cmd.Printf("Status: %s\n", resp.Job.Status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enqueueCmd)

	enqueueCmd.Flags().String("type", "", "Job type (echo, create_file, delete_file, sync_aws, claude_extraction)")
	enqueueCmd.Flags().StringP("payload", "p", "{}", "Job payload as a JSON object")
	enqueueCmd.Flags().Int("priority", 0, "Priority, higher runs first")
	enqueueCmd.Flags().Int("max-attempts", 0, "Attempt budget (0 uses the server default)")
	enqueueCmd.Flags().StringP("key", "k", "", "Idempotency key")
}
