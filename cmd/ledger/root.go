package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/codewandler/esgo/core/es"
	"github.com/codewandler/esgo/examples/accounting"
)

var validFormats = []string{"text", "json"}

// rootOptions holds global flags for all commands.
type rootOptions struct {
	cfg    Config
	format string
	ledger *ledger
}

// run executes the ledger command line in args. The opened backend is
// closed even when the command fails.
func run(ctx context.Context, cfg Config, args []string, stdout, stderr io.Writer) error {
	opts := &rootOptions{cfg: cfg}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	return errors.Join(err, opts.close())
}

func (o *rootOptions) close() error {
	if o.ledger == nil {
		return nil
	}
	l := o.ledger
	o.ledger = nil
	return l.Close()
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	cfg := opts.cfg
	cmd := &cobra.Command{
		Use:           "ledger",
		Short:         "An event-sourced bank ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !slices.Contains(validFormats, opts.format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.format, validFormats)
			}
			if err := opts.cfg.validate(); err != nil {
				return err
			}
			log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: opts.cfg.LogLevel}))
			l, err := openLedger(cmd.Context(), opts.cfg, log)
			if err != nil {
				return err
			}
			opts.ledger = l
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfg.Backend, "backend", cfg.Backend, "storage backend (memory|sqlite|nats)")
	cmd.PersistentFlags().StringVar(&opts.cfg.SQLitePath, "db", cfg.SQLitePath, "sqlite database path")
	cmd.PersistentFlags().StringVar(&opts.format, "format", "text", "output format (text|json)")

	cmd.AddCommand(
		newOpenCommand(opts),
		newDepositCommand(opts),
		newWithdrawCommand(opts),
		newCloseCommand(opts),
		newShowCommand(opts),
		newHistoryCommand(opts),
		newSnapshotCommand(opts),
		newReportCommand(opts),
	)
	return cmd
}

func (o *rootOptions) execute(cmd *cobra.Command, id string, c es.Command) error {
	s, err := o.ledger.env.Execute(cmd.Context(), accounting.AccountType, id, c)
	if err != nil {
		return err
	}
	st, err := o.ledger.account.Project(s)
	if err != nil {
		return err
	}
	return o.printState(cmd.OutOrStdout(), id, s.CommittedVersion(), st)
}

func (o *rootOptions) printState(w io.Writer, id string, v es.Version, st es.State) error {
	if o.format == "json" {
		return json.NewEncoder(w).Encode(map[string]any{
			"id":      id,
			"version": v,
			"owner":   accounting.Owner(st),
			"status":  accounting.Status(st),
			"balance": accounting.Balance(st),
		})
	}
	_, err := fmt.Fprintf(w, "%s v%d owner=%s status=%s balance=%d\n",
		id, v, accounting.Owner(st), accounting.Status(st), accounting.Balance(st))
	return err
}

func parseAmount(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return n, nil
}

func newOpenCommand(opts *rootOptions) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "open <owner>",
		Short: "Open a new account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				id = opts.ledger.account.NewID()
			}
			return opts.execute(cmd, id, accounting.Open(args[0]))
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "account id (generated when empty)")
	return cmd
}

func newDepositCommand(opts *rootOptions) *cobra.Command {
	var ref string
	cmd := &cobra.Command{
		Use:   "deposit <account-id> <amount>",
		Short: "Deposit money",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			c := accounting.Deposit(amount)
			if ref != "" {
				c = accounting.DepositWithReference(amount, ref)
			}
			return opts.execute(cmd, args[0], c)
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "reference of the deposit")
	return cmd
}

func newWithdrawCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <account-id> <amount>",
		Short: "Withdraw money",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return opts.execute(cmd, args[0], accounting.Withdraw(amount))
		},
	}
}

func newCloseCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "close <account-id>",
		Short: "Close an empty account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.execute(cmd, args[0], accounting.Close())
		},
	}
}

func newShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <account-id>",
		Short: "Show the current state of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.ledger.env.Load(cmd.Context(), accounting.AccountType, args[0])
			if err != nil {
				return err
			}
			if s.CommittedVersion() == 0 {
				return fmt.Errorf("account %s not found", args[0])
			}
			st, err := opts.ledger.account.Project(s)
			if err != nil {
				return err
			}
			return opts.printState(cmd.OutOrStdout(), args[0], s.CommittedVersion(), st)
		},
	}
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <account-id>",
		Short: "List the events of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := opts.ledger.env.Store().Load(cmd.Context(), accounting.AccountType, args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if opts.format == "json" {
				return json.NewEncoder(w).Encode(events)
			}
			for _, evt := range events {
				payload, err := json.Marshal(evt.Payload)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%4d  %s  %s v%d  %s\n",
					evt.Version, evt.OccurredAt.Format(time.RFC3339), evt.Name, evt.EventVersion, payload)
			}
			return nil
		},
	}
}

func newSnapshotCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <account-id>",
		Short: "Store a snapshot of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := opts.ledger.env.Snapshot(cmd.Context(), accounting.AccountType, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s of %s at v%d\n", snap.ID, args[0], snap.Version)
			return err
		},
	}
}

func newReportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "report <account-id>",
		Short: "Show the balances read model of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.ledger.balances.State(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("no report for %s: %w", args[0], err)
			}
			w := cmd.OutOrStdout()
			if opts.format == "json" {
				return json.NewEncoder(w).Encode(st)
			}
			keys := make([]string, 0, len(st))
			for k := range st {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(w, "%s=%v\n", k, st[k])
			}
			return nil
		},
	}
}
