package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fechamento/internal/model"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "List and resolve pending review items",
	}

	auths := &cobra.Command{
		Use:   "authorizations",
		Short: "Pending high-stakes authorizations",
	}
	auths.AddCommand(authorizationsListCmd())
	auths.AddCommand(authorizationResolveCmd("approve"))
	auths.AddCommand(authorizationResolveCmd("reject"))

	doubts := &cobra.Command{
		Use:   "doubts",
		Short: "Pending classification doubts",
	}
	doubts.AddCommand(doubtsListCmd())
	doubts.AddCommand(doubtResolveCmd())
	doubts.AddCommand(doubtSkipCmd())

	cmd.AddCommand(auths)
	cmd.AddCommand(doubts)
	return cmd
}

func authorizationsListCmd() *cobra.Command {
	var clientID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending authorizations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			auths, err := store.ListPendingAuthorizations(ctx, clientID)
			if err != nil {
				return err
			}
			if len(auths) == 0 {
				fmt.Println("no pending authorizations")
				return nil
			}
			for _, a := range auths {
				fmt.Printf("%s  client=%s txn=%s valor=%s  %s\n",
					a.ID, a.ClientID, a.TransactionID, a.Amount.StringFixed(2), a.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "filter by client")
	return cmd
}

func authorizationResolveCmd(verb string) *cobra.Command {
	var resolvedBy string

	cmd := &cobra.Command{
		Use:   verb + " <authorization-id>",
		Short: verb + " a pending authorization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.close()

			if verb == "approve" {
				err = eng.gate.ApproveAuthorization(ctx, args[0], resolvedBy)
			} else {
				err = eng.gate.RejectAuthorization(ctx, args[0], resolvedBy)
			}
			if err != nil {
				return err
			}
			fmt.Printf("authorization %s %sd\n", args[0], verb)
			return nil
		},
	}

	cmd.Flags().StringVar(&resolvedBy, "by", "", "who resolved it")
	return cmd
}

func doubtsListCmd() *cobra.Command {
	var clientID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending classification doubts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			doubts, err := store.ListPendingDoubts(ctx, clientID)
			if err != nil {
				return err
			}
			if len(doubts) == 0 {
				fmt.Println("no pending doubts")
				return nil
			}
			for _, d := range doubts {
				suggested := "-"
				if d.SuggestedCategory != nil {
					suggested = fmt.Sprintf("%s (%.2f)", d.SuggestedCategory.Name, d.SuggestedCategory.Confidence)
				}
				fmt.Printf("%s  client=%s txn=%s suggested=%s  %s\n",
					d.ID, d.ClientID, d.TransactionID, suggested, d.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "filter by client")
	return cmd
}

func doubtResolveCmd() *cobra.Command {
	var categoryID, categoryName string

	cmd := &cobra.Command{
		Use:   "resolve <doubt-id>",
		Short: "Resolve a doubt with the chosen category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.close()

			category := model.CategoryAssignment{ID: categoryID, Name: categoryName}
			if err := eng.gate.ResolveDoubt(ctx, args[0], category); err != nil {
				return err
			}
			fmt.Printf("doubt %s resolved as %s\n", args[0], categoryName)
			return nil
		},
	}

	cmd.Flags().StringVar(&categoryID, "category-id", "", "category id to apply")
	cmd.Flags().StringVar(&categoryName, "category", "", "category name to apply")
	_ = cmd.MarkFlagRequired("category-id")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func doubtSkipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skip <doubt-id>",
		Short: "Leave a doubt pending for later",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.close()

			if err := eng.gate.SkipDoubt(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("doubt %s left pending\n", args[0])
			return nil
		},
	}
}
