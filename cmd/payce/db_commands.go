package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/payce-finance/payce/service/db"
)

func dbListInvoicesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-invoices",
		Usage:   "List invoices straight from the database",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Aliases: []string{"a"}, Usage: "Filter by payer or payee address"},
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Filter by status (pending, paid)"},
			&cli.IntFlag{Name: "limit", Value: 50, Usage: "Maximum number of invoices"},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			invoices, err := store.ListInvoices(context.Background(), db.ListInvoicesParams{
				Address: c.String("address"),
				Status:  c.String("status"),
				Limit:   int32(c.Int("limit")),
			})
			if err != nil {
				return fmt.Errorf("failed to list invoices: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(invoices)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TRANSACTION ID\tSTATUS\tPAYER\tPAYEE\tAMOUNT\tCURRENCY\tNETWORK\tCREATED")
			for _, inv := range invoices {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					inv.TransactionID,
					inv.Status,
					inv.PayerAddress,
					inv.PayeeAddress,
					inv.AmountDisplay,
					inv.Currency,
					inv.Network,
					inv.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d invoices\n", len(invoices))
			return nil
		},
	}
}

func dbListTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "list-transactions",
		Usage: "List recorded payments straight from the database",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Aliases: []string{"a"}, Usage: "Sender or recipient address", Required: true},
			&cli.StringFlag{Name: "network", Aliases: []string{"n"}, Usage: "Filter by network"},
			&cli.StringFlag{Name: "direction", Aliases: []string{"d"}, Usage: "Filter by direction (in, out)"},
			&cli.IntFlag{Name: "limit", Value: 50, Usage: "Maximum number of transactions"},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			txns, err := store.ListTransactions(context.Background(), db.ListTransactionsParams{
				Address:   c.String("address"),
				Network:   c.String("network"),
				Direction: c.String("direction"),
				Limit:     int32(c.Int("limit")),
			})
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(txns)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TRANSACTION ID\tSENDER\tRECIPIENT\tAMOUNT\tCURRENCY\tNETWORK\tSIGNATURE\tCREATED")
			for _, txn := range txns {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					txn.TransactionID,
					txn.Sender,
					txn.Recipient,
					txn.AmountDisplay,
					txn.Currency,
					txn.Network,
					txn.Signature,
					txn.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d transactions\n", len(txns))
			return nil
		},
	}
}

func dbDashboardStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show platform-wide counters",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			stats, err := store.GetDashboardStats(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get dashboard stats: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(stats)
			}

			fmt.Printf("Dashboard stats\n")
			fmt.Printf("  Invoices: %d total, %d pending, %d paid\n",
				stats.TotalInvoices, stats.PendingInvoices, stats.PaidInvoices)
			fmt.Printf("  Transactions: %d\n", stats.TotalTransactions)
			return nil
		},
	}
}

// getStore creates a database store from the CLI context.
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool, nil)
	closer := func() { pool.Close() }

	return store, closer, nil
}
