package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/payce-finance/payce/client"
)

func apiClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	return client.NewClient(c.String("server-url"), nil, logger)
}

func createInvoiceCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a pending invoice",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "payer", Usage: "Payer address", Required: true},
			&cli.StringFlag{Name: "payee", Usage: "Payee (recipient) address", Required: true},
			&cli.StringFlag{Name: "amount", Usage: "Amount in human units, e.g. 100.50", Required: true},
			&cli.StringFlag{Name: "currency", Usage: "Currency symbol, e.g. USDC", Required: true},
			&cli.StringFlag{Name: "network", Usage: "Network, e.g. base or solana", Required: true},
			&cli.StringFlag{Name: "reason", Usage: "Reason shown on the invoice"},
			&cli.StringFlag{Name: "due", Usage: "Due date (RFC 3339)"},
			&cli.StringFlag{Name: "business-email", Usage: "Notify the issuer at this address"},
			&cli.StringFlag{Name: "client-email", Usage: "Notify the payer at this address"},
		},
		Action: func(c *cli.Context) error {
			invoice, err := apiClient(c).CreateInvoice(context.Background(), client.InvoiceParams{
				PayerAddress:     c.String("payer"),
				RecipientAddress: c.String("payee"),
				Amount:           c.String("amount"),
				Currency:         c.String("currency"),
				Network:          c.String("network"),
				Reason:           c.String("reason"),
				DueDate:          c.String("due"),
				BusinessEmail:    c.String("business-email"),
				ClientEmail:      c.String("client-email"),
			})
			if err != nil {
				return fmt.Errorf("failed to create invoice: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(invoice)
			}

			fmt.Printf("Invoice created\n")
			fmt.Printf("  Transaction ID: %s\n", invoice.TransactionID)
			fmt.Printf("  Amount: %s %s (%s)\n", invoice.AmountDisplay, invoice.Currency, invoice.Network)
			fmt.Printf("  Status: %s\n", invoice.Status)
			if invoice.PaymentURL != nil {
				fmt.Printf("  Payment URL: %s\n", *invoice.PaymentURL)
			}
			return nil
		},
	}
}

func getInvoiceCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Get invoice details",
		ArgsUsage: "<transaction_id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction id")
			}

			invoice, err := apiClient(c).GetInvoice(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get invoice: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(invoice)
			}

			fmt.Printf("Invoice %s\n", invoice.TransactionID)
			fmt.Printf("  Status: %s\n", invoice.Status)
			fmt.Printf("  Payer: %s\n", invoice.PayerAddress)
			fmt.Printf("  Payee: %s\n", invoice.PayeeAddress)
			fmt.Printf("  Amount: %s %s (%s)\n", invoice.AmountDisplay, invoice.Currency, invoice.Network)
			if invoice.Reason != nil {
				fmt.Printf("  Reason: %s\n", *invoice.Reason)
			}
			if invoice.DueDate != nil {
				fmt.Printf("  Due: %s\n", invoice.DueDate.Format(time.RFC3339))
			}
			if invoice.PaidAt != nil {
				fmt.Printf("  Paid at: %s\n", invoice.PaidAt.Format(time.RFC3339))
			}
			if invoice.ExplorerURL != nil {
				fmt.Printf("  Explorer: %s\n", *invoice.ExplorerURL)
			}
			return nil
		},
	}
}

func listInvoicesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Usage:   "List invoices",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Aliases: []string{"a"}, Usage: "Filter by payer or payee address"},
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Filter by status (pending, paid)"},
			&cli.IntFlag{Name: "limit", Value: 50, Usage: "Maximum number of invoices"},
			&cli.IntFlag{Name: "offset", Usage: "Offset for pagination"},
		},
		Action: func(c *cli.Context) error {
			invoices, err := apiClient(c).ListInvoices(context.Background(), client.ListInvoicesOptions{
				Address: c.String("address"),
				Status:  c.String("status"),
				Limit:   c.Int("limit"),
				Offset:  c.Int("offset"),
			})
			if err != nil {
				return fmt.Errorf("failed to list invoices: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(invoices)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TRANSACTION ID\tSTATUS\tAMOUNT\tCURRENCY\tNETWORK\tCREATED")
			for _, inv := range invoices {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					inv.TransactionID,
					inv.Status,
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

func settleInvoiceCommand() *cli.Command {
	return &cli.Command{
		Name:      "settle",
		Usage:     "Mark an invoice paid with its settling signature",
		ArgsUsage: "<transaction_id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "signature", Usage: "On-chain signature of the payment", Required: true},
			&cli.StringFlag{Name: "network", Usage: "Network the payment landed on", Value: "solana"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction id")
			}

			invoice, err := apiClient(c).SettleInvoice(
				context.Background(),
				c.Args().First(),
				c.String("signature"),
				c.String("network"),
			)
			if err != nil {
				return fmt.Errorf("failed to settle invoice: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(invoice)
			}

			fmt.Printf("Invoice %s settled\n", invoice.TransactionID)
			if invoice.ExplorerURL != nil {
				fmt.Printf("  Explorer: %s\n", *invoice.ExplorerURL)
			}
			return nil
		},
	}
}

func invoiceStatsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Show invoice counters for an address",
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: address")
			}

			stats, err := apiClient(c).GetInvoiceStats(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get invoice stats: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(stats)
			}

			fmt.Printf("Invoice stats for %s\n", stats.Address)
			fmt.Printf("  Pending: %d (total %s)\n", stats.Pending, stats.PendingTotal)
			fmt.Printf("  Overdue: %d\n", stats.Overdue)
			fmt.Printf("  Paid: %d (total %s)\n", stats.Paid, stats.PaidTotal)
			return nil
		},
	}
}

// outputJSON pretty-prints a value as JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
