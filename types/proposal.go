package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Proposal is a read-only snapshot of a DAO proposal as stored by the
// treasury contract. ID 0 means the contract has no such proposal.
type Proposal struct {
	ID           uint64         `json:"id"`
	Recipient    common.Address `json:"recipient"`
	Amount       *big.Int       `json:"amount"`
	Deadline     uint64         `json:"deadline"`
	Description  string         `json:"description"`
	VotesFor     *big.Int       `json:"votesFor"`
	VotesAgainst *big.Int       `json:"votesAgainst"`
	VotesAbstain *big.Int       `json:"votesAbstain"`
	Executed     bool           `json:"executed"`
}

func (p *Proposal) Exists() bool {
	return p != nil && p.ID != 0
}

// Approved reports whether votes for strictly exceed votes against.
// Abstentions never count.
func (p *Proposal) Approved() bool {
	return bigOrZero(p.VotesFor).Cmp(bigOrZero(p.VotesAgainst)) > 0
}

// ExecutionTime is the first chain second at which the proposal may run.
// It saturates instead of wrapping.
func (p *Proposal) ExecutionTime(delay uint64) uint64 {
	t := p.Deadline + delay
	if t < p.Deadline {
		return ^uint64(0)
	}
	return t
}

type VoteType uint8

const (
	VoteFor     VoteType = 0
	VoteAgainst VoteType = 1
	VoteAbstain VoteType = 2
)

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
