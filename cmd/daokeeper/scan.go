package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/calehh/dao-keeper/daemon"
	"github.com/calehh/dao-keeper/ledger"
	"github.com/calehh/dao-keeper/store"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan and print the result as JSON",
	Args:  cobra.ExactArgs(0),
	RunE:  scanRun,
}

func scanRun(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}
	if err := cfg.ValidateDaemon(); err != nil {
		return err
	}
	client, err := ledger.Dial(logger, cfg)
	if err != nil {
		return err
	}
	defer client.Close()
	st, err := store.Open(logger, cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	res, err := daemon.New(logger, client, nil, st).Scan(ctx)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
