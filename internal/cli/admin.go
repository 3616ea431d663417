package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"finease/internal/core"
	"finease/internal/ports"
	"finease/internal/report"
	"finease/internal/storage"

	"github.com/spf13/cobra"
)

// StoreOpener opens the data store for one command run.
type StoreOpener func(ctx context.Context) (ports.Store, error)

// NewAdminCommand builds the finease-admin command tree.
func NewAdminCommand(open StoreOpener, dbPath func() string) *cobra.Command {
	root := &cobra.Command{
		Use:           "finease-admin",
		Short:         "Operator commands for the FinEase backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCommand(dbPath))
	root.AddCommand(newUsersCommand(open))
	root.AddCommand(newSummaryCommand(open))
	return root
}

func newMigrateCommand(dbPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := dbPath()
			if path == "" {
				return fmt.Errorf("no SQLite database path configured")
			}
			if err := storage.RunMigrations(path); err != nil {
				return err
			}
			version, dirty, err := storage.MigrationVersion(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}

func newUsersCommand(open StoreOpener) *cobra.Command {
	users := &cobra.Command{
		Use:   "users",
		Short: "Inspect and manage user profiles",
	}

	users.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every user profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, open, func(ctx context.Context, store ports.Store) error {
				list, err := store.ListUsers(ctx)
				if err != nil {
					return err
				}
				return printUsers(cmd.OutOrStdout(), list)
			})
		},
	})

	users.AddCommand(&cobra.Command{
		Use:   "set-role EMAIL ROLE",
		Short: "Change a user's role to user or admin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := core.ParseRole(args[1])
			if err != nil {
				return err
			}
			return withStore(cmd, open, func(ctx context.Context, store ports.Store) error {
				if err := store.SetRole(ctx, args[0], role); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", core.NormalizeEmail(args[0]), role)
				return nil
			})
		},
	})
	return users
}

func newSummaryCommand(open StoreOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "summary EMAIL",
		Short: "Print a user's income, expense and balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, open, func(ctx context.Context, store ports.Store) error {
				txns, err := store.ListTransactions(ctx, core.NormalizeEmail(args[0]), report.SortDate, report.Desc)
				if err != nil {
					return err
				}
				sum := report.Summarize(txns)
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "transactions\t%d\n", sum.Count)
				fmt.Fprintf(w, "income\t%s\n", sum.Income)
				fmt.Fprintf(w, "expense\t%s\n", sum.Expense)
				fmt.Fprintf(w, "balance\t%s\n", sum.Balance)
				return w.Flush()
			})
		},
	}
}

func withStore(cmd *cobra.Command, open StoreOpener, fn func(context.Context, ports.Store) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

func printUsers(out io.Writer, users []core.UserProfile) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tNAME\tROLE\tCREATED")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.Email, u.DisplayName, u.Role, u.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}
