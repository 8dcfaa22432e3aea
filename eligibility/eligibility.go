// Package eligibility decides whether a proposal snapshot may be executed.
// Everything here is pure: no I/O, no clock.
package eligibility

import (
	"fmt"
	"math/big"

	"github.com/calehh/dao-keeper/types"
)

type Status int

const (
	Eligible Status = iota
	NotFound
	AlreadyExecuted
	NotYetDue
	NotApproved
	InsufficientFunds
)

func (s Status) String() string {
	switch s {
	case Eligible:
		return "eligible"
	case NotFound:
		return "not_found"
	case AlreadyExecuted:
		return "already_executed"
	case NotYetDue:
		return "deadline_not_passed"
	case NotApproved:
		return "not_approved"
	case InsufficientFunds:
		return "insufficient_funds"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

type Decision struct {
	Status Status

	Now           uint64
	Deadline      uint64
	ExecutionTime uint64
	// Remaining is only set for NotYetDue.
	Remaining uint64

	VotesFor     *big.Int
	VotesAgainst *big.Int
	Balance      *big.Int
	Required     *big.Int
}

// Reason renders the skip reason reported by a scan.
func (d Decision) Reason() string {
	switch d.Status {
	case NotYetDue:
		return fmt.Sprintf("%s (deadline: %d, executionTime: %d, now: %d, remaining: %ds)",
			d.Status, d.Deadline, d.ExecutionTime, d.Now, d.Remaining)
	case NotApproved:
		return fmt.Sprintf("%s (votesFor: %s, votesAgainst: %s)", d.Status, d.VotesFor, d.VotesAgainst)
	case InsufficientFunds:
		return fmt.Sprintf("%s (DAO: %s, Required: %s)", d.Status, d.Balance, d.Required)
	}
	return d.Status.String()
}

// Precheck applies every rule except the funding one. Eligible here means
// "worth reading the treasury balance for".
func Precheck(p *types.Proposal, now, executionDelay uint64) Decision {
	if !p.Exists() {
		return Decision{Status: NotFound, Now: now}
	}
	d := Decision{
		Now:           now,
		Deadline:      p.Deadline,
		ExecutionTime: p.ExecutionTime(executionDelay),
		VotesFor:      orZero(p.VotesFor),
		VotesAgainst:  orZero(p.VotesAgainst),
		Required:      orZero(p.Amount),
	}
	switch {
	case p.Executed:
		d.Status = AlreadyExecuted
	case now < d.ExecutionTime:
		d.Status = NotYetDue
		d.Remaining = d.ExecutionTime - now
	case !p.Approved():
		d.Status = NotApproved
	default:
		d.Status = Eligible
	}
	return d
}

// Evaluate applies all rules in order; the first failing one wins.
func Evaluate(p *types.Proposal, now, executionDelay uint64, treasuryBalance *big.Int) Decision {
	d := Precheck(p, now, executionDelay)
	if d.Status != Eligible {
		return d
	}
	d.Balance = orZero(treasuryBalance)
	if d.Balance.Cmp(d.Required) < 0 {
		d.Status = InsufficientFunds
	}
	return d
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
