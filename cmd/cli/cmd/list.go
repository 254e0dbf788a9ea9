package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	Long:  `List jobs in claim order (highest priority first, then oldest), optionally filtered by status and type.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		status, _ := flags.GetString("status")
		jobType, _ := flags.GetString("type")
		limit, _ := flags.GetInt("limit")
		offset, _ := flags.GetInt("offset")

		resp, err := newClient().ListJobs(ListOptions{
			Status: status,
			Type:   jobType,
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return fmt.Errorf("error fetching jobs: %w", err)
		}

		if len(resp.Jobs) == 0 {
			if offset > 0 {
				cmd.Println("No more jobs found.")
			} else {
				cmd.Println("No jobs found.")
			}
			return nil
		}

		// Print table
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "JOB ID\tTYPE\tSTATUS\tPRIORITY\tATTEMPTS\tCREATED\tERROR")
		for _, j := range resp.Jobs {
			errMsg := ""
			if j.LastError != nil {
				// Truncate long error messages for the table view
				errMsg = *j.LastError
				if len(errMsg) > 50 {
					errMsg = errMsg[:47] + "..."
				}
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d/%d\t%s\t%s\n",
				j.ID,
				j.Type,
				j.Status,
				j.Priority,
				j.Attempts,
				j.MaxAttempts,
				j.CreatedAt.Format(time.RFC3339),
				errMsg,
			)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("status", "s", "", "Filter by status (pending, claimed, completed, failed)")
	listCmd.Flags().String("type", "", "Filter by job type")
	listCmd.Flags().IntP("limit", "l", 20, "Number of jobs to list")
	listCmd.Flags().IntP("offset", "o", 0, "Offset for pagination")
}
