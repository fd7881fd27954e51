package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored accounts and recent job runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := doc.OpenStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		ctx := context.Background()

		creds, err := st.ListCredentials(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("accounts (%d):\n", len(creds))
		for _, c := range creds {
			state := "ok"
			if c.Stale {
				state = "stale, re-auth required"
			}
			fmt.Printf("  %-30s provider=%-10s %s\n", c.AccountKey, c.Provider, state)
		}

		runs, err := st.ListRuns(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("runs (%d):\n", len(runs))
		for _, r := range runs {
			fmt.Printf("  #%-4d %-20s %-10s started=%s finished=%s\n",
				r.ID, r.Job, r.Status, r.StartedAt, r.FinishedAt)
		}
		return nil
	},
}
