package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:   "retry [job_id]",
	Short: "Return a job to pending with a fresh attempt budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := newClient().RetryJob(args[0])
		if err != nil {
			return fmt.Errorf("error retrying job: %w", err)
		}

		cmd.Printf("Job %s requeued.\n", job.ID)
		cmd.Printf("Status: %s\n", job.Status)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [job_id]",
	Short: "Delete a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteJob(args[0]); err != nil {
			return fmt.Errorf("error deleting job: %w", err)
		}

		cmd.Printf("Job %s deleted.\n", args[0])
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all completed jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().PurgeCompleted()
		if err != nil {
			return fmt.Errorf("error purging jobs: %w", err)
		}

		cmd.Printf("Purged %d completed job(s).\n", resp.Deleted)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts per status",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := newClient().Stats()
		if err != nil {
			return fmt.Errorf("error fetching stats: %w", err)
		}

		cmd.Printf("%s %s\n", statusIcon("pending"), padCount("Pending", stats.Pending))
		cmd.Printf("%s %s\n", statusIcon("claimed"), padCount("Claimed", stats.Claimed))
		cmd.Printf("%s %s\n", statusIcon("completed"), padCount("Completed", stats.Completed))
		cmd.Printf("%s %s\n", statusIcon("failed"), padCount("Failed", stats.Failed))
		cmd.Println("──────────────────────────────")
		cmd.Printf("  %s\n", padCount("Total", stats.Total))
		return nil
	},
}

func padCount(label string, n int64) string {
	return fmt.Sprintf("%-11s %d", label+":", n)
}

func init() {
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(statsCmd)
}
