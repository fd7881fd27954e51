package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/finward/opsflow/internal/orchestration"
	"github.com/finward/opsflow/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the automation API and trigger runbook jobs over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadConfig()
		if err != nil {
			return err
		}
		if doc.Server.AuthSecret == "" {
			return fmt.Errorf("server.auth_secret is required to serve the API")
		}
		if doc.Runbook == "" {
			return fmt.Errorf("a runbook path is required to serve jobs")
		}

		runbook, err := orchestration.LoadRunbook(doc.Runbook)
		if err != nil {
			return err
		}

		st, err := doc.OpenStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		manager, err := doc.BuildManager(st)
		if err != nil {
			return err
		}

		srv := server.New(server.Config{
			Runner:  buildRunner(st, manager),
			Runbook: runbook,
			Store:   st,
			Auth:    server.VerifyConfig{Secret: []byte(doc.Server.AuthSecret)},
		})

		addr := viper.GetString("addr")
		if !cmd.Flags().Changed("addr") && doc.Server.Addr != "" {
			addr = doc.Server.Addr
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return srv.Serve(ctx, addr)
	},
}
