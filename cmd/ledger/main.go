// Command ledger runs the accounting domain against a memory, SQLite or
// NATS JetStream backend.
//
//	ledger open alice --id acct-1
//	ledger deposit acct-1 100 --ref salary
//	ledger history acct-1
//
// Configuration is read from the environment, see Config.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
