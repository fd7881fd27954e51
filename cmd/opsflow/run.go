package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/finward/opsflow/internal/orchestration"
)

var runCmd = &cobra.Command{
	Use:   "run [job]",
	Short: "Run the whole runbook, or one job with its dependencies",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadConfig()
		if err != nil {
			return err
		}
		if doc.Runbook == "" {
			return fmt.Errorf("a runbook path is required")
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
		runner := buildRunner(st, manager)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var results []orchestration.JobResult
		if len(args) == 1 {
			results, err = runner.RunJob(ctx, runbook, args[0])
		} else {
			results, err = runner.Run(ctx, runbook)
		}
		if err != nil {
			return err
		}

		failed := 0
		for _, res := range results {
			switch {
			case res.Skipped:
				fmt.Printf("SKIP %s (%s)\n", res.Name, res.Error)
			case res.Success:
				fmt.Printf("OK   %s (%s)\n", res.Name, res.Duration.Round(time.Millisecond))
			default:
				failed++
				fmt.Printf("FAIL %s: %s\n", res.Name, res.Error)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d job(s) failed", failed)
		}
		return nil
	},
}
