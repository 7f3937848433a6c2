package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leofalp/chatflow/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "chatflow",
	Short:         "chatflow runs conversational agent graphs",
	Long:          `chatflow answers chat messages by walking a graph of model completions, routers and tools.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Optional dotenv file read before the environment")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error); overrides CHATFLOW_LOG_LEVEL")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
}

// loadConfig reads the configuration and applies the flags shared by all
// commands.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("agent") {
		cfg.AgentID, _ = cmd.Flags().GetString("agent")
	}
	if cmd.Flags().Changed("max-iterations") {
		cfg.MaxIterations, _ = cmd.Flags().GetInt("max-iterations")
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	return cfg, nil
}
