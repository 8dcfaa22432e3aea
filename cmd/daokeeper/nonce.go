package main

import (
	"context"
	"fmt"
	"os"

	"github.com/calehh/dao-keeper/config"
	"github.com/calehh/dao-keeper/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

type nonceArguments struct {
	Forwarder string
}

var nonceArgs nonceArguments

var nonceCmd = &cobra.Command{
	Use:   "nonce <address>",
	Short: "Print the forwarder nonce of an address",
	Args:  cobra.ExactArgs(1),
	RunE:  nonceRun,
}

func init() {
	forwarderFlag(nonceCmd, &nonceArgs.Forwarder)
}

func nonceRun(cmd *cobra.Command, args []string) error {
	if !common.IsHexAddress(args[0]) {
		return fmt.Errorf("%q is not an address", args[0])
	}
	cfg, logger, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}
	forwarder, err := resolveForwarder(cfg, nonceArgs.Forwarder)
	if err != nil {
		return err
	}
	if cfg.Ledger.RPCURL == "" {
		return config.ErrMisconfigured
	}
	client, err := ledger.DialReader(logger, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	nonce, err := client.Nonce(context.Background(), forwarder, common.HexToAddress(args[0]))
	if err != nil {
		return err
	}
	fmt.Println(nonce.String())
	return nil
}

// resolveForwarder prefers the flag over the configured forwarder.
func resolveForwarder(cfg *config.Config, flag string) (common.Address, error) {
	if flag != "" {
		if !common.IsHexAddress(flag) {
			return common.Address{}, fmt.Errorf("%q is not an address", flag)
		}
		return common.HexToAddress(flag), nil
	}
	if fwd, ok := cfg.ForwarderAddress(); ok {
		return fwd, nil
	}
	return common.Address{}, fmt.Errorf("no forwarder: pass --forwarder or set NEXT_PUBLIC_FORWARDER_ADDRESS")
}
