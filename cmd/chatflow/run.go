package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [message]",
	Short: "Answer one message and print the reply",
	Long: `Runs the agent graph once for the given message and renders the reply as
Markdown in the terminal. Use --thread to continue a conversation kept in the
configured memory store.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cmd, cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		service, err := a.chatService(nil)
		if err != nil {
			return err
		}

		thread, _ := cmd.Flags().GetString("thread")
		reply, err := service.Reply(cmd.Context(), thread, strings.Join(args, " "))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			fmt.Fprintln(out, reply.Text)
		} else {
			renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
			if err != nil {
				return err
			}
			rendered, err := renderer.Render(reply.Text)
			if err != nil {
				return err
			}
			fmt.Fprint(out, rendered)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "thread %s: %s after %d node visits\n",
			reply.ThreadID, reply.Result.Termination, reply.Result.Iterations)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("flow", "", "YAML flow to run")
	runCmd.Flags().String("agent", "", "Agent id to load from the snapshot store; overrides AGENT_ID")
	runCmd.Flags().String("thread", "", "Thread id to continue")
	runCmd.Flags().Int("max-iterations", 0, "Node visit cap; overrides MAX_ITERATIONS")
	runCmd.Flags().Bool("raw", false, "Print the reply without Markdown rendering")
}
