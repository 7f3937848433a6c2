package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/leofalp/chatflow/internal/followup"
	"github.com/leofalp/chatflow/internal/server"
	"github.com/leofalp/chatflow/providers/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and the follow-up scheduler",
	Long: `Serves the chat API (POST /api/chat, POST /api/chat/stream), the messenger
relay (POST /api/send-message, POST /api/send-image), graph inspection
(GET /api/graph/{agentID}) and Prometheus metrics (GET /metrics).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cmd, cfg, true)
		if err != nil {
			return err
		}
		defer a.Close()

		service, err := a.chatService(a.messenger)
		if err != nil {
			return err
		}

		if noFollowUps, _ := cmd.Flags().GetBool("no-followups"); !noFollowUps && cfg.SessionID != "" {
			scheduler, err := a.followUpScheduler()
			if err != nil {
				return err
			}
			scheduler.Start(ctx)
			defer scheduler.Stop()
		}

		handler := server.NewHandler(server.Config{
			Chat:      service,
			Messenger: a.messenger,
			Metrics:   promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}),
			Observer:  a.observer,
		})

		addr := fmt.Sprintf(":%d", cfg.Port)
		a.observer.Info(ctx, "chatflow server listening",
			observability.String("addr", addr),
			observability.String("agent_id", cfg.AgentID),
		)
		if err := server.ListenAndServe(ctx, addr, handler); err != nil {
			return err
		}
		a.observer.Info(context.Background(), "chatflow server stopped")
		return nil
	},
}

func (a *app) followUpScheduler() (*followup.Scheduler, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	return followup.NewScheduler(followup.Config{
		Store:     a.followUps,
		Sender:    a.messenger,
		SessionID: a.cfg.SessionID,
		Schedule:  a.cfg.FollowUpCron,
		Location:  loc,
		Observer:  a.observer,
	})
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8014, "Port to listen on; overrides PORT")
	serveCmd.Flags().String("agent", "", "Agent id to load from the snapshot store; overrides AGENT_ID")
	serveCmd.Flags().String("flow", "", "YAML flow used when no stored agent is found")
	serveCmd.Flags().Int("max-iterations", 0, "Node visit cap per run; overrides MAX_ITERATIONS")
	serveCmd.Flags().Bool("no-followups", false, "Do not start the follow-up scheduler")
}
