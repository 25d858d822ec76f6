package main

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"fechamento/internal/model"
)

func clientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Administer registered clients",
	}
	cmd.AddCommand(clientsAddCmd())
	cmd.AddCommand(clientsListCmd())
	cmd.AddCommand(clientsSetActiveCmd("activate", true))
	cmd.AddCommand(clientsSetActiveCmd("deactivate", false))
	return cmd
}

func clientsAddCmd() *cobra.Command {
	var (
		name      string
		source    string
		dest      string
		emails    []string
		threshold string
	)

	cmd := &cobra.Command{
		Use:   "add <client-id>",
		Short: "Register a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client := model.Client{
				ID:           args[0],
				Name:         name,
				Source:       source,
				Destination:  dest,
				NotifyEmails: emails,
				Active:       true,
			}
			if threshold != "" {
				value, err := decimal.NewFromString(threshold)
				if err != nil {
					return fmt.Errorf("invalid --threshold: %w", err)
				}
				client.AuthorizationThreshold = &value
			}

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.SaveClient(ctx, &client); err != nil {
				return err
			}
			fmt.Printf("client %s registered\n", client.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "client display name")
	cmd.Flags().StringVar(&source, "source", "", "capture source system")
	cmd.Flags().StringVar(&dest, "destination", "", "sync destination kind")
	cmd.Flags().StringSliceVar(&emails, "emails", nil, "notification recipients")
	cmd.Flags().StringVar(&threshold, "threshold", "", "per-client authorization threshold override")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("destination")
	return cmd
}

func clientsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered clients",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			clients, err := store.ListClients(ctx)
			if err != nil {
				return err
			}
			if len(clients) == 0 {
				fmt.Println("no clients registered")
				return nil
			}

			for _, c := range clients {
				state := "active"
				if !c.Active {
					state = "inactive"
				}
				fmt.Printf("%-20s %-30s %s -> %s (%s) %s\n",
					c.ID, c.Name, c.Source, c.Destination, state,
					strings.Join(c.NotifyEmails, ","))
			}
			return nil
		},
	}
}

func clientsSetActiveCmd(verb string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <client-id>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.SetClientActive(ctx, args[0], active); err != nil {
				return err
			}
			fmt.Printf("client %s %sd\n", args[0], verb)
			return nil
		},
	}
}
