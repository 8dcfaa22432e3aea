package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/calehh/dao-keeper/config"
	"github.com/calehh/dao-keeper/crypto"
	"github.com/spf13/cobra"
)

const (
	flagOverwrite = "overwrite"
	flagGenKey    = "gen-key"
	keyFileName   = "key.hex"
)

type printInfo struct {
	Home       string `json:"home"`
	ConfigFile string `json:"config_file"`
	KeyFile    string `json:"key_file,omitempty"`
	Address    string `json:"address,omitempty"`
}

func displayInfo(info printInfo) error {
	out, err := json.MarshalIndent(info, "", " ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(os.Stderr, "%s\n", out)
	return err
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Long: `Write <home>/config/config.toml with defaults. With --gen-key a fresh
secp256k1 key is written to <home>/config/key.hex, usable as a relayer key or
as a voter key for the sign command.`,
	Args: cobra.ExactArgs(0),
	RunE: initRun,
}

func init() {
	initCmd.Flags().BoolP(flagOverwrite, "o", false, "overwrite an existing config.toml")
	initCmd.Flags().Bool(flagGenKey, false, "also generate a key file")
}

func initRun(cmd *cobra.Command, args []string) error {
	overwrite, _ := cmd.Flags().GetBool(flagOverwrite)
	genKey, _ := cmd.Flags().GetBool(flagGenKey)

	cfg := config.DefaultConfig(homeDir)
	info := printInfo{Home: cfg.Home, ConfigFile: cfg.ConfigFile()}
	if _, err := os.Stat(cfg.ConfigFile()); err == nil && !overwrite {
		return fmt.Errorf("%s already exists, use --%s to replace it", cfg.ConfigFile(), flagOverwrite)
	}
	if err := config.WriteConfigFile(cfg.ConfigFile(), cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if genKey {
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		info.KeyFile = filepath.Join(cfg.Home, "config", keyFileName)
		if err := key.Save(info.KeyFile); err != nil {
			return err
		}
		info.Address = key.Address().Hex()
	}
	return displayInfo(info)
}
