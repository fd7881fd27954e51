package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/finward/opsflow/internal/server"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Issue a bearer token for the automation API",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadConfig()
		if err != nil {
			return err
		}
		if doc.Server.AuthSecret == "" {
			return fmt.Errorf("server.auth_secret is not configured")
		}
		tok, err := server.IssueToken([]byte(doc.Server.AuthSecret), args[0], tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
}
