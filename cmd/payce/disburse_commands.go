package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/payce-finance/payce/client"
)

func startDisbursementCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Start a disbursement to multiple recipients",
		Description: `Start a disbursement workflow paying several recipients in one batch.

Recipients are given as repeated --to flags in ADDRESS=AMOUNT form, or as
a JSON file via --file:

  payce disburse start --payer 0xabc... --currency USDC --network base \
    --to 0x111...=100.50 --to 0x222...=25

  payce disburse start --payer payer123 --currency USDC --network solana \
    --file recipients.json`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "payer", Usage: "Payer address", Required: true},
			&cli.StringFlag{Name: "currency", Usage: "Currency symbol, e.g. USDC", Required: true},
			&cli.StringFlag{Name: "network", Usage: "Network, e.g. base or solana", Required: true},
			&cli.StringSliceFlag{Name: "to", Usage: "Recipient in ADDRESS=AMOUNT form (repeatable)"},
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "JSON file with a recipients array"},
			&cli.BoolFlag{Name: "wait", Aliases: []string{"w"}, Usage: "Poll until the disbursement finishes"},
			&cli.DurationFlag{Name: "timeout", Aliases: []string{"t"}, Value: 15 * time.Minute, Usage: "How long to wait with --wait"},
		},
		Action: func(c *cli.Context) error {
			recipients, err := parseRecipients(c)
			if err != nil {
				return err
			}
			if len(recipients) == 0 {
				return fmt.Errorf("at least one recipient is required (--to or --file)")
			}

			cl := apiClient(c)
			handle, err := cl.StartDisbursement(context.Background(), client.DisbursementParams{
				PayerAddress: c.String("payer"),
				Currency:     c.String("currency"),
				Network:      c.String("network"),
				Recipients:   recipients,
			})
			if err != nil {
				return fmt.Errorf("failed to start disbursement: %w", err)
			}

			if !c.Bool("wait") {
				if c.Bool("json") {
					return outputJSON(handle)
				}
				fmt.Printf("Disbursement started\n")
				fmt.Printf("  Disbursement ID: %s\n", handle.DisbursementID)
				fmt.Printf("  Workflow ID: %s\n", handle.WorkflowID)
				fmt.Printf("  Status: payce disburse status %s\n", handle.WorkflowID)
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			if !c.Bool("json") {
				fmt.Fprintf(os.Stderr, "Waiting for disbursement %s...\n", handle.WorkflowID)
			}

			status, err := awaitDisbursement(ctx, cl, handle.WorkflowID)
			if err != nil {
				return err
			}
			return printDisbursement(c, status)
		},
	}
}

func disbursementStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show a disbursement's progress",
		ArgsUsage: "<workflow_id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: workflow id")
			}

			status, err := apiClient(c).GetDisbursement(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get disbursement: %w", err)
			}
			return printDisbursement(c, status)
		},
	}
}

// parseRecipients reads recipients from --to flags or a JSON file.
func parseRecipients(c *cli.Context) ([]client.DisbursementRecipient, error) {
	if file := c.String("file"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read recipients file: %w", err)
		}
		var parsed struct {
			Recipients []client.DisbursementRecipient `json:"recipients"`
		}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse recipients file: %w", err)
		}
		return parsed.Recipients, nil
	}
	return parseRecipientLines(c.StringSlice("to"))
}

// parseRecipientLines converts ADDRESS=AMOUNT flag values into recipients.
func parseRecipientLines(lines []string) ([]client.DisbursementRecipient, error) {
	recipients := make([]client.DisbursementRecipient, 0, len(lines))
	for _, line := range lines {
		address, amount, ok := strings.Cut(line, "=")
		if !ok || address == "" || amount == "" {
			return nil, fmt.Errorf("invalid recipient %q: expected ADDRESS=AMOUNT", line)
		}
		recipients = append(recipients, client.DisbursementRecipient{
			Address: address,
			Amount:  amount,
		})
	}
	return recipients, nil
}

// awaitDisbursement polls until the workflow leaves the running state.
func awaitDisbursement(ctx context.Context, cl *client.Client, workflowID string) (*client.DisbursementStatus, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		status, err := cl.GetDisbursement(ctx, workflowID)
		if err != nil {
			return nil, fmt.Errorf("failed to get disbursement: %w", err)
		}
		if status.Status != "running" {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for disbursement %s", workflowID)
		case <-ticker.C:
		}
	}
}

func printDisbursement(c *cli.Context, status *client.DisbursementStatus) error {
	if c.Bool("json") {
		return outputJSON(status)
	}

	fmt.Printf("Disbursement %s\n", status.WorkflowID)
	fmt.Printf("  Status: %s\n", status.Status)
	if status.Result == nil {
		return nil
	}

	r := status.Result
	fmt.Printf("  Recipients: %d total, %d succeeded, %d failed\n", r.Total, r.Succeeded, r.Failed)
	if r.Error != nil {
		fmt.Printf("  Error: %s\n", *r.Error)
	}
	for _, outcome := range r.Results {
		if outcome.Status == "success" {
			fmt.Printf("    %s %s -> %s\n", outcome.Status, outcome.Address, outcome.Signature)
		} else {
			fmt.Printf("    %s %s: %s\n", outcome.Status, outcome.Address, outcome.Error)
		}
	}
	return nil
}
