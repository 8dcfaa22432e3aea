package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/calehh/dao-keeper/eligibility"
	"github.com/calehh/dao-keeper/failure"
	"github.com/calehh/dao-keeper/ledger"
	"github.com/calehh/dao-keeper/metrics"
	"github.com/calehh/dao-keeper/store"
	"github.com/calehh/dao-keeper/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
)

// ErrScanInProgress is returned, without touching the ledger, when another
// scan holds the guard.
var ErrScanInProgress = errors.New("scan_in_progress")

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ReasonSubmittedUnconfirmed marks an execution that was broadcast but not
// seen mined before the wait gave up. It may still land.
const ReasonSubmittedUnconfirmed = "submitted_unconfirmed"

type Daemon struct {
	logger   cmtlog.Logger
	ledger   ledger.Ledger
	metrics  metrics.Metrics
	recorder store.Recorder

	scanning atomic.Bool
}

// New builds a daemon. m and recorder may be nil.
func New(logger cmtlog.Logger, l ledger.Ledger, m metrics.Metrics, recorder store.Recorder) *Daemon {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Daemon{
		logger:   logger.With("module", "daemon"),
		ledger:   l,
		metrics:  m,
		recorder: recorder,
	}
}

// Scan walks every proposal id once and executes the eligible ones. Only
// one scan runs at a time per Daemon.
func (d *Daemon) Scan(ctx context.Context) (*types.ScanResult, error) {
	if !d.scanning.CompareAndSwap(false, true) {
		d.metrics.MarkScan(metrics.OutcomeBusy)
		return nil, ErrScanInProgress
	}
	defer d.scanning.Store(false)

	res, err := d.scan(ctx)
	if err != nil {
		d.metrics.MarkScan(metrics.OutcomeError)
		d.logger.Error("scan aborted", "err", err)
		return nil, err
	}
	d.metrics.MarkScan(metrics.OutcomeOK)
	d.logger.Info("scan done", "checked", res.CheckedProposals, "executed", len(res.Executed), "skipped", len(res.Skipped))
	return res, nil
}

func (d *Daemon) scan(ctx context.Context) (*types.ScanResult, error) {
	now, err := d.ledger.CurrentTime(ctx)
	if err != nil {
		return nil, failure.Classify(fmt.Errorf("read current time: %w", err))
	}
	delay, err := d.ledger.ExecutionDelay(ctx)
	if err != nil {
		return nil, failure.Classify(fmt.Errorf("read execution delay: %w", err))
	}
	next, err := d.ledger.NextProposalID(ctx)
	if err != nil {
		return nil, failure.Classify(fmt.Errorf("read next proposal id: %w", err))
	}
	d.logger.Info("scan start", "now", now, "executionDelay", delay, "proposals", checkedCount(next))

	res := types.NewScanResult()
	res.CheckedProposals = checkedCount(next)
	for id := uint64(1); id < next; id++ {
		d.process(ctx, id, now, delay, res)
	}
	res.Timestamp = time.Now().UTC().Format(timestampLayout)
	return res, nil
}

func (d *Daemon) process(ctx context.Context, id, now, delay uint64, res *types.ScanResult) {
	p, err := d.ledger.GetProposal(ctx, id)
	if err != nil {
		d.skipError(res, id, err)
		return
	}
	dec := eligibility.Precheck(p, now, delay)
	if dec.Status != eligibility.Eligible {
		d.skip(res, id, dec)
		return
	}

	// read the balance right before executing, earlier ids may have spent it
	balance, err := d.ledger.Balance(ctx, d.ledger.TreasuryAddress())
	if err != nil {
		d.skipError(res, id, err)
		return
	}
	dec = eligibility.Evaluate(p, now, delay, balance)
	if dec.Status != eligibility.Eligible {
		d.skip(res, id, dec)
		return
	}

	hash, err := d.ledger.Execute(ctx, id)
	if err != nil {
		if hash != (common.Hash{}) && failure.Is(err, failure.KindNetworkError) {
			d.unconfirmed(res, id, hash, err)
			return
		}
		d.skipError(res, id, err)
		return
	}
	res.AddExecuted(id, hash.Hex())
	d.metrics.MarkExecuted()
	d.logger.Info("proposal executed", "id", id, "tx", hash.Hex())
	d.record(id, hash, store.ExecutionStatusConfirmed)
}

func (d *Daemon) unconfirmed(res *types.ScanResult, id uint64, hash common.Hash, err error) {
	fe := failure.Classify(err)
	res.AddSkipped(id, fmt.Sprintf("%s (tx %s): %s", ReasonSubmittedUnconfirmed, hash.Hex(), fe.Error()))
	d.metrics.MarkSkipped(ReasonSubmittedUnconfirmed)
	d.logger.Error("execution sent but not confirmed", "id", id, "tx", hash.Hex(), "err", err)
	d.record(id, hash, store.ExecutionStatusUnconfirmed)
}

func (d *Daemon) record(id uint64, hash common.Hash, status string) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.AddExecution(id, hash.Hex(), status); err != nil {
		d.logger.Error("record execution fail", "id", id, "err", err)
	}
}

func (d *Daemon) skip(res *types.ScanResult, id uint64, dec eligibility.Decision) {
	res.AddSkipped(id, dec.Reason())
	d.metrics.MarkSkipped(dec.Status.String())
	d.logger.Debug("proposal skipped", "id", id, "reason", dec.Reason())
}

func (d *Daemon) skipError(res *types.ScanResult, id uint64, err error) {
	fe := failure.Classify(err)
	res.AddSkipped(id, fe.Error())
	d.metrics.MarkSkipped(fe.Code())
	d.logger.Error("proposal failed", "id", id, "err", err)
}

func checkedCount(next uint64) uint64 {
	if next == 0 {
		return 0
	}
	return next - 1
}
