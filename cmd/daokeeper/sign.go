package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/calehh/dao-keeper/config"
	"github.com/calehh/dao-keeper/crypto"
	"github.com/calehh/dao-keeper/ledger"
	"github.com/calehh/dao-keeper/relay"
	"github.com/calehh/dao-keeper/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

type signArguments struct {
	KeyPath   string
	Proposal  uint64
	Vote      string
	Forwarder string
	DAO       string
	Nonce     int64
	ChainID   int64
	Gas       uint64
	Post      string
}

var signArgs signArguments

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a gasless vote and print the POST /relay body",
	Long: `Builds vote(proposal, voteType) calldata, wraps it in a ForwardRequest and
signs it with the voter key. Missing nonce and chain id are read from the node.
With --post the body is sent to a running daokeeper.`,
	Args: cobra.ExactArgs(0),
	RunE: signRun,
}

func init() {
	signCmd.Flags().StringVarP(&signArgs.KeyPath, "key", "k", "", "voter key file (hex)")
	signCmd.Flags().Uint64VarP(&signArgs.Proposal, "proposal", "p", 0, "proposal id")
	signCmd.Flags().StringVar(&signArgs.Vote, "vote", "for", "for, against or abstain")
	forwarderFlag(signCmd, &signArgs.Forwarder)
	signCmd.Flags().StringVar(&signArgs.DAO, "dao", "", "DAO address (default from config)")
	signCmd.Flags().Int64Var(&signArgs.Nonce, "nonce", -1, "forwarder nonce, negative reads it from the node")
	signCmd.Flags().Int64Var(&signArgs.ChainID, "chain-id", 0, "chain id, 0 reads it from the node")
	signCmd.Flags().Uint64Var(&signArgs.Gas, "gas", 200000, "gas forwarded to the vote call")
	signCmd.Flags().StringVar(&signArgs.Post, "post", "", "daokeeper base url to submit to, e.g. http://127.0.0.1:8080")
	signCmd.MarkFlagRequired("key")
	signCmd.MarkFlagRequired("proposal")
}

func parseVote(s string) (types.VoteType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "for", "0":
		return types.VoteFor, nil
	case "against", "1":
		return types.VoteAgainst, nil
	case "abstain", "2":
		return types.VoteAbstain, nil
	}
	return 0, fmt.Errorf("unknown vote %q", s)
}

func signRun(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}
	key, err := crypto.LoadKeyFile(signArgs.KeyPath)
	if err != nil {
		return err
	}
	vote, err := parseVote(signArgs.Vote)
	if err != nil {
		return err
	}
	forwarder, err := resolveForwarder(cfg, signArgs.Forwarder)
	if err != nil {
		return err
	}
	daoHex := signArgs.DAO
	if daoHex == "" {
		daoHex = cfg.Ledger.DAOAddress
	}
	if !common.IsHexAddress(daoHex) {
		return fmt.Errorf("no DAO address: pass --dao or set NEXT_PUBLIC_DAO_ADDRESS")
	}
	data, err := ledger.EncodeVote(signArgs.Proposal, vote)
	if err != nil {
		return err
	}

	ctx := context.Background()
	chainID := big.NewInt(signArgs.ChainID)
	nonce := big.NewInt(signArgs.Nonce)
	if signArgs.ChainID == 0 || signArgs.Nonce < 0 {
		if cfg.Ledger.RPCURL == "" {
			return config.ErrMisconfigured
		}
		client, err := ledger.DialReader(logger, cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		if signArgs.ChainID == 0 {
			if chainID, err = client.ChainID(ctx); err != nil {
				return err
			}
		}
		if signArgs.Nonce < 0 {
			if nonce, err = client.Nonce(ctx, forwarder, key.Address()); err != nil {
				return err
			}
		}
	}

	req := &types.ForwardRequest{
		From:  key.Address(),
		To:    common.HexToAddress(daoHex),
		Value: new(big.Int),
		Gas:   new(big.Int).SetUint64(signArgs.Gas),
		Nonce: nonce,
		Data:  data,
	}
	sig, err := crypto.SignForwardRequest(key, chainID, forwarder, req)
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(relay.NewWireSubmission(forwarder, req, sig), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(body))

	if signArgs.Post != "" {
		return postRelay(signArgs.Post, body)
	}
	return nil
}

func postRelay(baseURL string, body []byte) error {
	client := &http.Client{Timeout: 3 * time.Minute}
	res, err := client.Post(strings.TrimRight(baseURL, "/")+"/relay", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	out, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "relay status:", strconv.Itoa(res.StatusCode))
	fmt.Println(string(out))
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("relay rejected the request with status %d", res.StatusCode)
	}
	return nil
}
