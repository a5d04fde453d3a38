package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "payce",
		Usage: "Multi-chain payment orchestration service CLI",
		Description: `A command-line tool for managing and debugging the payce service.

Use this CLI to create and settle invoices, start disbursements, inspect
database state, and watch the notification stream.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Invoice commands (HTTP API)
			{
				Name:  "invoice",
				Usage: "Invoice commands",
				Subcommands: []*cli.Command{
					createInvoiceCommand(),
					getInvoiceCommand(),
					listInvoicesCommand(),
					settleInvoiceCommand(),
					invoiceStatsCommand(),
				},
			},
			// Disbursement commands (HTTP API)
			{
				Name:  "disburse",
				Usage: "Disbursement commands",
				Subcommands: []*cli.Command{
					startDisbursementCommand(),
					disbursementStatusCommand(),
				},
			},
			// Database inspection commands
			{
				Name:  "db",
				Usage: "Database inspection commands",
				Subcommands: []*cli.Command{
					dbListInvoicesCommand(),
					dbListTransactionsCommand(),
					dbDashboardStatsCommand(),
				},
			},
			// Notification stream commands
			{
				Name:  "notifications",
				Usage: "Notification stream commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Payce server URL",
				EnvVars: []string{"PAYCE_SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
