package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "jobctl",
	Short: "Jobctl is a command line tool for the jobqueue controller",
	Long: `jobctl is the command-line interface for jobqueue, a durable priority job queue.

Jobs are typed payloads held in a database and handed out to workers by
priority (higher first), then by age. A failing job is retried until its
attempt budget runs out, after which it stays failed until retried by hand.

Common workflows:

  Enqueue a job:
    jobctl enqueue --type echo --payload '{"message":"hello"}' --priority 5

  Enqueue at most once per key:
    jobctl enqueue --type create_file --payload '{"path":"a.txt","content":"x"}' --key import-42

  Inspect the queue:
    jobctl list --status failed
    jobctl get <job-id>
    jobctl stats

  Administer jobs:
    jobctl retry <job-id>
    jobctl delete <job-id>
    jobctl purge

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    JOBQUEUE_URL      API endpoint (default: http://localhost:6161)
    JOBQUEUE_TOKEN    Admin token, needed for retry, delete and purge`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".jobctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".jobctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "JOBQUEUE_VARNAME"
	viper.SetEnvPrefix("JOBQUEUE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newClient builds a client from the resolved url and token.
func newClient() *JobClient {
	return NewJobClient(viper.GetString("url"), viper.GetString("token"))
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.jobctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "jobqueue controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "Admin token for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
