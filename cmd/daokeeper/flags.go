package main

import (
	"io"

	"github.com/calehh/dao-keeper/config"
	cmtflags "github.com/cometbft/cometbft/libs/cli/flags"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/spf13/cobra"
)

var homeDir string

func homeFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&homeDir, "homedir", "d", "", "home directory (default $HOME/.daokeeper)")
}

func forwarderFlag(cmd *cobra.Command, forwarder *string) {
	cmd.Flags().StringVarP(forwarder, "forwarder", "f", "", "forwarder address (default from config)")
}

// loadConfig reads the config and builds the process logger writing to w.
func loadConfig(w io.Writer) (*config.Config, cmtlog.Logger, error) {
	cfg, err := config.Load(homeDir)
	if err != nil {
		return nil, nil, err
	}
	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(w))
	logger, err = cmtflags.ParseLogLevel(cfg.LogLevel, logger, config.DefaultLogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
