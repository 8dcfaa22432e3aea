package eligibility

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/calehh/dao-keeper/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func proposal(id, deadline uint64, votesFor, votesAgainst int64) *types.Proposal {
	return &types.Proposal{
		ID:           id,
		Amount:       big.NewInt(100),
		Deadline:     deadline,
		VotesFor:     big.NewInt(votesFor),
		VotesAgainst: big.NewInt(votesAgainst),
		VotesAbstain: big.NewInt(0),
	}
}

func TestScenario(t *testing.T) {
	p := proposal(1, 1000, 5, 2)
	funds := big.NewInt(1000)

	assert.Equal(t, Eligible, Evaluate(p, 4600, 3600, funds).Status)

	d := Evaluate(p, 4599, 3600, funds)
	require.Equal(t, NotYetDue, d.Status)
	assert.Equal(t, uint64(1), d.Remaining)
	assert.Equal(t, uint64(4600), d.ExecutionTime)

	rejected := proposal(1, 1000, 2, 5)
	assert.Equal(t, NotApproved, Evaluate(rejected, 4600, 3600, funds).Status)
}

func TestInsufficientFunds(t *testing.T) {
	p := proposal(1, 1000, 5, 2)
	d := Evaluate(p, 4600, 3600, big.NewInt(90))
	assert.Equal(t, InsufficientFunds, d.Status)
	assert.Equal(t, "insufficient_funds (DAO: 90, Required: 100)", d.Reason())

	assert.Equal(t, Eligible, Evaluate(p, 4600, 3600, big.NewInt(100)).Status)
}

func TestNotFoundWins(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		p := proposal(0, r.Uint64()%10000, r.Int63n(10), r.Int63n(10))
		p.Executed = r.Intn(2) == 0
		d := Evaluate(p, r.Uint64()%20000, r.Uint64()%5000, big.NewInt(r.Int63n(200)))
		assert.Equal(t, NotFound, d.Status)
	}
	assert.Equal(t, NotFound, Evaluate(nil, 0, 0, nil).Status)
}

func TestAlreadyExecutedWins(t *testing.T) {
	p := proposal(7, 1000, 5, 2)
	p.Executed = true
	assert.Equal(t, AlreadyExecuted, Evaluate(p, 1_000_000, 3600, big.NewInt(1000)).Status)
	assert.Equal(t, AlreadyExecuted, Evaluate(p, 0, 3600, big.NewInt(0)).Status)
}

func TestBoundaryIsInclusive(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 200; i++ {
		deadline := r.Uint64() % 1_000_000
		delay := r.Uint64() % 100_000
		p := proposal(1, deadline, 3, 1)
		at := Evaluate(p, deadline+delay, delay, big.NewInt(1000))
		assert.NotEqual(t, NotYetDue, at.Status)
		if deadline+delay > 0 {
			before := Evaluate(p, deadline+delay-1, delay, big.NewInt(1000))
			assert.Equal(t, NotYetDue, before.Status)
		}
	}
}

func TestTiesAndAbstainsDoNotApprove(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		against := r.Int63n(50)
		p := proposal(1, 10, against-r.Int63n(against+1), against)
		p.VotesAbstain = big.NewInt(r.Int63n(1000))
		assert.Equal(t, NotApproved, Evaluate(p, 100, 10, big.NewInt(1000)).Status)
	}
}

func TestSaturatingExecutionTime(t *testing.T) {
	p := proposal(1, ^uint64(0)-5, 5, 2)
	d := Evaluate(p, ^uint64(0)-1, 10, big.NewInt(1000))
	assert.Equal(t, NotYetDue, d.Status)
	assert.Equal(t, ^uint64(0), d.ExecutionTime)
}

func TestPrecheckSkipsFunds(t *testing.T) {
	p := proposal(1, 1000, 5, 2)
	assert.Equal(t, Eligible, Precheck(p, 4600, 3600).Status)
}

func TestReasons(t *testing.T) {
	p := proposal(3, 1000, 2, 5)
	assert.Equal(t, "not_approved (votesFor: 2, votesAgainst: 5)", Evaluate(p, 5000, 0, nil).Reason())
	assert.Equal(t,
		"deadline_not_passed (deadline: 1000, executionTime: 4600, now: 4000, remaining: 600s)",
		Evaluate(p, 4000, 3600, nil).Reason())
	assert.Equal(t, "not_found", Evaluate(&types.Proposal{}, 0, 0, nil).Reason())
}
