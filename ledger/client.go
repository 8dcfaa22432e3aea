package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/calehh/dao-keeper/config"
	"github.com/calehh/dao-keeper/crypto"
	"github.com/calehh/dao-keeper/failure"
	"github.com/calehh/dao-keeper/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Ledger is the read and execute surface of the DAO treasury contract.
type Ledger interface {
	CurrentTime(ctx context.Context) (uint64, error)
	NextProposalID(ctx context.Context) (uint64, error)
	// GetProposal returns a zero record (ID 0) for unknown ids.
	GetProposal(ctx context.Context, id uint64) (*types.Proposal, error)
	ExecutionDelay(ctx context.Context) (uint64, error)
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	TreasuryAddress() common.Address
	Execute(ctx context.Context, id uint64) (common.Hash, error)
}

// Forwarder is the MinimalForwarder surface used by the relay.
type Forwarder interface {
	ChainID(ctx context.Context) (*big.Int, error)
	Nonce(ctx context.Context, forwarder, from common.Address) (*big.Int, error)
	Verify(ctx context.Context, forwarder common.Address, req *types.ForwardRequest, sig []byte) (bool, error)
	ExecuteForward(ctx context.Context, forwarder common.Address, req *types.ForwardRequest, sig []byte) (common.Hash, error)
}

// Backend is what the client needs from a node. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

var (
	ErrProposalIDOverflow = errors.New("proposal id does not fit in uint64")
	ErrDelayOverflow      = errors.New("execution delay does not fit in uint64")
	ErrReadOnly           = errors.New("ledger client has no signing key")
)

type Options struct {
	DAO             common.Address
	ExecuteGasLimit uint64
	ForwardGasLimit uint64
	CallTimeout     time.Duration
	TxTimeout       time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DAO:             cfg.DAOAddress(),
		ExecuteGasLimit: cfg.Ledger.ExecuteGasLimit,
		ForwardGasLimit: cfg.Relay.GasLimit,
		CallTimeout:     cfg.Ledger.CallTimeout,
		TxTimeout:       cfg.Ledger.TxTimeout,
	}
}

var _ Ledger = &Client{}
var _ Forwarder = &Client{}

type Client struct {
	logger  cmtlog.Logger
	backend Backend
	key     *crypto.Key
	opts    Options
	dao     *bind.BoundContract

	mtx     sync.Mutex
	chainID *big.Int

	// sendMtx keeps nonce assignment and broadcast atomic for the key.
	sendMtx sync.Mutex
}

// Dial connects to the configured RPC endpoint. Plain HTTP endpoints are not
// contacted until the first call.
func Dial(logger cmtlog.Logger, cfg *config.Config) (*Client, error) {
	key, err := crypto.LoadKey(cfg.Ledger.RelayerPrivateKey)
	if err != nil {
		return nil, err
	}
	backend, err := ethclient.Dial(cfg.Ledger.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Ledger.RPCURL, err)
	}
	return NewClient(logger, backend, key, OptionsFromConfig(cfg)), nil
}

// DialReader connects without a signing key. Transactions fail with
// ErrReadOnly.
func DialReader(logger cmtlog.Logger, cfg *config.Config) (*Client, error) {
	backend, err := ethclient.Dial(cfg.Ledger.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Ledger.RPCURL, err)
	}
	return NewClient(logger, backend, nil, OptionsFromConfig(cfg)), nil
}

func NewClient(logger cmtlog.Logger, backend Backend, key *crypto.Key, opts Options) *Client {
	if opts.ExecuteGasLimit == 0 {
		opts.ExecuteGasLimit = config.DefaultGasLimit
	}
	if opts.ForwardGasLimit == 0 {
		opts.ForwardGasLimit = config.DefaultGasLimit
	}
	return &Client{
		logger:  logger.With("module", "ledger"),
		backend: backend,
		key:     key,
		opts:    opts,
		dao:     bind.NewBoundContract(opts.DAO, DAOABI, backend, backend, backend),
	}
}

func (c *Client) RelayerAddress() common.Address {
	if c.key == nil {
		return common.Address{}
	}
	return c.key.Address()
}

func (c *Client) TreasuryAddress() common.Address {
	return c.opts.DAO
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.CallTimeout)
}

func (c *Client) CurrentTime(ctx context.Context) (uint64, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("latest header: %w", err)
	}
	if head == nil || head.Time == 0 {
		now := uint64(time.Now().Unix())
		c.logger.Error("latest header has no timestamp, falling back to wall clock", "now", now)
		return now, nil
	}
	return head.Time, nil
}

func (c *Client) NextProposalID(ctx context.Context) (uint64, error) {
	v, err := c.callUint(ctx, c.dao, "nextProposalId")
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, ErrProposalIDOverflow
	}
	return v.Uint64(), nil
}

func (c *Client) ExecutionDelay(ctx context.Context) (uint64, error) {
	v, err := c.callUint(ctx, c.dao, "EXECUTION_DELAY")
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, ErrDelayOverflow
	}
	return v.Uint64(), nil
}

func (c *Client) GetProposal(ctx context.Context, id uint64) (*types.Proposal, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	var out []interface{}
	if err := c.dao.Call(&bind.CallOpts{Context: ctx}, &out, "getProposal", new(big.Int).SetUint64(id)); err != nil {
		return nil, fmt.Errorf("getProposal(%d): %w", id, err)
	}
	rec := *abi.ConvertType(out[0], new(proposalRecord)).(*proposalRecord)
	if rec.Id == nil || rec.Id.Sign() == 0 {
		return &types.Proposal{}, nil
	}
	if !rec.Id.IsUint64() {
		return nil, ErrProposalIDOverflow
	}
	return &types.Proposal{
		ID:           rec.Id.Uint64(),
		Recipient:    rec.Recipient,
		Amount:       rec.Amount,
		Deadline:     saturateUint64(rec.Deadline),
		Description:  rec.Description,
		VotesFor:     rec.VotesFor,
		VotesAgainst: rec.VotesAgainst,
		VotesAbstain: rec.VotesAbstain,
		Executed:     rec.Executed,
	}, nil
}

func (c *Client) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	bal, err := c.backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", addr.Hex(), err)
	}
	return bal, nil
}

func (c *Client) Execute(ctx context.Context, id uint64) (common.Hash, error) {
	return c.transact(ctx, c.dao, c.opts.ExecuteGasLimit, "executeProposal", new(big.Int).SetUint64(id))
}

// ChainID is read once per client and cached afterwards.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.chainID != nil {
		return new(big.Int).Set(c.chainID), nil
	}
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	c.chainID = id
	return new(big.Int).Set(id), nil
}

func (c *Client) forwarder(addr common.Address) *bind.BoundContract {
	return bind.NewBoundContract(addr, ForwarderABI, c.backend, c.backend, c.backend)
}

func (c *Client) Nonce(ctx context.Context, forwarder, from common.Address) (*big.Int, error) {
	return c.callUint(ctx, c.forwarder(forwarder), "getNonce", from)
}

func (c *Client) Verify(ctx context.Context, forwarder common.Address, req *types.ForwardRequest, sig []byte) (bool, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	var out []interface{}
	if err := c.forwarder(forwarder).Call(&bind.CallOpts{Context: ctx}, &out, "verify", forwardTuple(req), sig); err != nil {
		return false, fmt.Errorf("verify: %w", err)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// ExecuteForward dry-runs execute from the relayer account first. The
// forwarder does not revert when the inner call fails, so a failed inner
// call is reported here instead of burning a transaction.
func (c *Client) ExecuteForward(ctx context.Context, forwarder common.Address, req *types.ForwardRequest, sig []byte) (common.Hash, error) {
	contract := c.forwarder(forwarder)
	tuple := forwardTuple(req)
	if err := c.simulateForward(ctx, contract, tuple, sig); err != nil {
		return common.Hash{}, err
	}
	return c.transact(ctx, contract, c.opts.ForwardGasLimit, "execute", tuple, sig)
}

func (c *Client) simulateForward(ctx context.Context, contract *bind.BoundContract, tuple types.ForwardRequest, sig []byte) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx, From: c.RelayerAddress()}, &out, "execute", tuple, sig); err != nil {
		return fmt.Errorf("execute dry run: %w", err)
	}
	success := *abi.ConvertType(out[0], new(bool)).(*bool)
	if success {
		return nil
	}
	returndata := *abi.ConvertType(out[1], new([]byte)).(*[]byte)
	reason, err := abi.UnpackRevert(returndata)
	if err != nil {
		reason = "forwarded call failed"
	}
	return failure.New(failure.KindContractReverted, reason)
}

func (c *Client) callUint(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) (*big.Int, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// transact signs with the relayer key, submits with a fixed gas limit and
// waits for the receipt. A receipt with failed status is ContractReverted.
func (c *Client) transact(ctx context.Context, contract *bind.BoundContract, gasLimit uint64, method string, args ...interface{}) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, ErrReadOnly
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	auth, err := bind.NewKeyedTransactorWithChainID(c.key.PrivateKey(), chainID)
	if err != nil {
		return common.Hash{}, err
	}
	sendCtx, cancelSend := c.callContext(ctx)
	defer cancelSend()
	auth.Context = sendCtx
	auth.GasLimit = gasLimit

	c.sendMtx.Lock()
	tx, err := contract.Transact(auth, method, args...)
	c.sendMtx.Unlock()
	if err != nil {
		err = fmt.Errorf("%s: %w", method, err)
		if failure.IsAccountNonceConflict(err) {
			return common.Hash{}, failure.Wrap(failure.KindNetworkError, err)
		}
		return common.Hash{}, err
	}
	c.logger.Info("transaction sent", "method", method, "hash", tx.Hash().Hex(), "nonce", tx.Nonce())

	waitCtx, cancelWait := ctx, context.CancelFunc(func() {})
	if c.opts.TxTimeout > 0 {
		waitCtx, cancelWait = context.WithTimeout(ctx, c.opts.TxTimeout)
	}
	defer cancelWait()
	receipt, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		return tx.Hash(), fmt.Errorf("wait for %s %s: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return tx.Hash(), failure.New(failure.KindContractReverted, fmt.Sprintf("%s failed in tx %s", method, tx.Hash().Hex()))
	}
	c.logger.Info("transaction mined", "method", method, "hash", tx.Hash().Hex(), "block", receipt.BlockNumber, "gasUsed", receipt.GasUsed)
	return tx.Hash(), nil
}

// forwardTuple fills nil numbers so the request always packs.
func forwardTuple(req *types.ForwardRequest) types.ForwardRequest {
	t := *req.Clone()
	if t.Value == nil {
		t.Value = new(big.Int)
	}
	if t.Gas == nil {
		t.Gas = new(big.Int)
	}
	if t.Nonce == nil {
		t.Nonce = new(big.Int)
	}
	if t.Data == nil {
		t.Data = []byte{}
	}
	return t
}

func saturateUint64(v *big.Int) uint64 {
	if v == nil || v.Sign() < 0 {
		return 0
	}
	if !v.IsUint64() {
		return math.MaxUint64
	}
	return v.Uint64()
}

func (c *Client) Close() {
	if closer, ok := c.backend.(interface{ Close() }); ok {
		closer.Close()
	}
}
