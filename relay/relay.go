package relay

import (
	"context"
	"fmt"

	"github.com/calehh/dao-keeper/failure"
	"github.com/calehh/dao-keeper/ledger"
	"github.com/calehh/dao-keeper/metrics"
	"github.com/calehh/dao-keeper/store"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	ReasonUnknownForwarder  = "unknown_forwarder"
	ReasonUnsupportedTarget = "unsupported_target"
)

// Options restricts what the relayer pays for. Zero addresses lift the
// matching restriction.
type Options struct {
	Forwarder common.Address
	Target    common.Address
}

type Relayer struct {
	logger   cmtlog.Logger
	fwd      ledger.Forwarder
	opts     Options
	metrics  metrics.Metrics
	recorder store.Recorder
}

// New builds a relayer. m and recorder may be nil.
func New(logger cmtlog.Logger, fwd ledger.Forwarder, opts Options, m metrics.Metrics, recorder store.Recorder) *Relayer {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Relayer{
		logger:   logger.With("module", "relay"),
		fwd:      fwd,
		opts:     opts,
		metrics:  m,
		recorder: recorder,
	}
}

// Relay verifies s against the forwarder and submits it, paying gas with the
// relayer key. It never retries. Errors are *failure.Error.
func (r *Relayer) Relay(ctx context.Context, s *Submission) (common.Hash, error) {
	hash, err := r.relay(ctx, s)
	r.finish(s, hash, err)
	return hash, err
}

func (r *Relayer) relay(ctx context.Context, s *Submission) (common.Hash, error) {
	if err := r.Check(ctx, s); err != nil {
		return common.Hash{}, err
	}
	hash, err := r.fwd.ExecuteForward(ctx, s.Forwarder, s.Request, s.Signature)
	if err != nil {
		fe := failure.Classify(err)
		if fe.Kind == failure.KindContractReverted && r.nonceConsumed(ctx, s) {
			return hash, &failure.Error{Kind: failure.KindNonceAlreadyUsed, Reason: fe.Reason, Err: err}
		}
		return hash, fe
	}
	return hash, nil
}

// Check runs every validation Relay does without submitting anything.
func (r *Relayer) Check(ctx context.Context, s *Submission) error {
	if err := r.validate(s); err != nil {
		return err
	}
	ok, err := r.fwd.Verify(ctx, s.Forwarder, s.Request, s.Signature)
	if err != nil {
		fe := failure.Classify(fmt.Errorf("verify: %w", err))
		// verify only reverts on signatures it cannot parse
		if fe.Kind == failure.KindContractReverted {
			return &failure.Error{Kind: failure.KindInvalidSignature, Reason: fe.Reason, Err: err}
		}
		return fe
	}
	if ok {
		return nil
	}
	if r.nonceConsumed(ctx, s) {
		return failure.New(failure.KindNonceAlreadyUsed, fmt.Sprintf("nonce %s of %s already used", s.Request.Nonce, s.Request.From.Hex()))
	}
	return failure.New(failure.KindInvalidSignature, "")
}

func (r *Relayer) validate(s *Submission) error {
	if s == nil || s.Request == nil || len(s.Signature) == 0 || s.Forwarder == (common.Address{}) {
		return failure.New(failure.KindBadRequest, "forwarder, request and signature are required")
	}
	req := s.Request
	if req.Value == nil || req.Gas == nil || req.Nonce == nil {
		return failure.New(failure.KindBadRequest, "value, gas and nonce are required")
	}
	if r.opts.Forwarder != (common.Address{}) && s.Forwarder != r.opts.Forwarder {
		return failure.New(failure.KindBadRequest, ReasonUnknownForwarder)
	}
	if r.opts.Target != (common.Address{}) && req.To != r.opts.Target {
		return failure.New(failure.KindBadRequest, ReasonUnsupportedTarget)
	}
	if len(s.Signature) != crypto.SignatureLength {
		return failure.New(failure.KindInvalidSignature, fmt.Sprintf("signature must be %d bytes", crypto.SignatureLength))
	}
	return nil
}

// nonceConsumed reports whether the forwarder has already moved past the
// request nonce. A failed read counts as not consumed.
func (r *Relayer) nonceConsumed(ctx context.Context, s *Submission) bool {
	current, err := r.fwd.Nonce(ctx, s.Forwarder, s.Request.From)
	if err != nil {
		r.logger.Error("read forwarder nonce fail", "from", s.Request.From.Hex(), "err", err)
		return false
	}
	return current.Cmp(s.Request.Nonce) > 0
}

func (r *Relayer) finish(s *Submission, hash common.Hash, err error) {
	outcome := metrics.OutcomeOK
	record := &store.RelayRecord{Status: store.RelayStatusRelayed}
	if hash != (common.Hash{}) {
		record.TxHash = hash.Hex()
	}
	if err != nil {
		fe := failure.Classify(err)
		outcome = fe.Code()
		record.Status = store.RelayStatusFailed
		record.Error = fe.Error()
		r.logger.Error("relay fail", "err", err)
	}
	r.metrics.MarkRelay(outcome)

	if s != nil {
		record.Forwarder = s.Forwarder.Hex()
		if s.Request != nil {
			record.FromAddress = s.Request.From.Hex()
			record.ToAddress = s.Request.To.Hex()
			if s.Request.Nonce != nil {
				record.Nonce = s.Request.Nonce.String()
			}
		}
	}
	if err == nil {
		r.logger.Info("relayed", "from", record.FromAddress, "nonce", record.Nonce, "tx", record.TxHash)
	}
	if r.recorder != nil {
		if rerr := r.recorder.AddRelay(record); rerr != nil {
			r.logger.Error("record relay fail", "err", rerr)
		}
	}
}
