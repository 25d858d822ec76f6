package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fechamento/internal/cycle"
	"fechamento/internal/model"
)

func cycleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Start and inspect closing cycles",
	}
	cmd.AddCommand(cycleStartCmd())
	cmd.AddCommand(cycleStatusCmd())
	return cmd
}

func cycleStartCmd() *cobra.Command {
	var (
		clientID string
		dateStr  string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run a closing cycle for all active clients",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			opts := cycle.StartOptions{ClientID: clientID, Force: force}
			if dateStr != "" {
				date, err := time.Parse("2006-01-02", dateStr)
				if err != nil {
					return fmt.Errorf("invalid --date, want YYYY-MM-DD: %w", err)
				}
				opts.Date = date
			}

			eng, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.close()

			started, clients, err := eng.orchestrator.Start(ctx, opts)
			if err != nil {
				return err
			}
			if err := eng.orchestrator.Run(ctx, started, clients); err != nil {
				return err
			}

			printCycle(started)
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "run for a single client only")
	cmd.Flags().StringVar(&dateStr, "date", "", "cycle date (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&force, "force", false, "rerun even if a cycle already exists for the date")
	return cmd
}

func cycleStatusCmd() *cobra.Command {
	var instanceID string

	cmd := &cobra.Command{
		Use:   "status [cycle-id]",
		Short: "Show a cycle's status and counters",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cycleID := model.CycleID(time.Now().UTC())
			if len(args) > 0 {
				cycleID = args[0]
			}

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var c *model.Cycle
			if instanceID != "" {
				c, err = store.GetCycle(ctx, cycleID, instanceID)
			} else {
				c, err = store.GetLatestCycle(ctx, cycleID)
			}
			if err != nil {
				return err
			}

			printCycle(c)
			return nil
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "inspect a specific instance instead of the latest")
	return cmd
}

func printCycle(c *model.Cycle) {
	fmt.Printf("cycle:       %s\n", c.ID)
	fmt.Printf("instance:    %s\n", c.InstanceID)
	fmt.Printf("status:      %s\n", c.Status)
	fmt.Printf("clients:     %d total, %d processed, %d failed\n",
		c.ClientsTotal, c.ClientsProcessed, c.ClientsFailed)
	fmt.Printf("transactions: %d captured, %d classified, %d synced, %d in review\n",
		c.TransactionsCaptured, c.TransactionsClassified, c.TransactionsSynced, c.TransactionsInReview)
	if c.FinishedAt != nil {
		fmt.Printf("duration:    %s\n", c.FinishedAt.Sub(c.StartedAt).Round(time.Millisecond))
	}
	for _, e := range c.Errors {
		fmt.Printf("error:       [%s/%s] %s\n", e.ClientID, e.Stage, e.Message)
	}
}
