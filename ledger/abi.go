package ledger

import (
	"math/big"
	"strings"

	"github.com/calehh/dao-keeper/types"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const daoABIJSON = `[
  {"type":"function","name":"nextProposalId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"EXECUTION_DELAY","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getProposal","stateMutability":"view","inputs":[{"name":"proposalId","type":"uint256"}],"outputs":[
    {"name":"","type":"tuple","components":[
      {"name":"id","type":"uint256"},
      {"name":"recipient","type":"address"},
      {"name":"amount","type":"uint256"},
      {"name":"deadline","type":"uint256"},
      {"name":"description","type":"string"},
      {"name":"votesFor","type":"uint256"},
      {"name":"votesAgainst","type":"uint256"},
      {"name":"votesAbstain","type":"uint256"},
      {"name":"executed","type":"bool"}
    ]}
  ]},
  {"type":"function","name":"executeProposal","stateMutability":"nonpayable","inputs":[{"name":"proposalId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"vote","stateMutability":"nonpayable","inputs":[{"name":"proposalId","type":"uint256"},{"name":"voteType","type":"uint8"}],"outputs":[]}
]`

const forwarderABIJSON = `[
  {"type":"function","name":"getNonce","stateMutability":"view","inputs":[{"name":"from","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"verify","stateMutability":"view","inputs":[
    {"name":"req","type":"tuple","components":[
      {"name":"from","type":"address"},
      {"name":"to","type":"address"},
      {"name":"value","type":"uint256"},
      {"name":"gas","type":"uint256"},
      {"name":"nonce","type":"uint256"},
      {"name":"data","type":"bytes"}
    ]},
    {"name":"signature","type":"bytes"}
  ],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"execute","stateMutability":"payable","inputs":[
    {"name":"req","type":"tuple","components":[
      {"name":"from","type":"address"},
      {"name":"to","type":"address"},
      {"name":"value","type":"uint256"},
      {"name":"gas","type":"uint256"},
      {"name":"nonce","type":"uint256"},
      {"name":"data","type":"bytes"}
    ]},
    {"name":"signature","type":"bytes"}
  ],"outputs":[{"name":"success","type":"bool"},{"name":"returndata","type":"bytes"}]}
]`

var (
	DAOABI       = mustParseABI(daoABIJSON)
	ForwarderABI = mustParseABI(forwarderABIJSON)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// proposalRecord is the Go shape of the getProposal tuple.
type proposalRecord struct {
	Id           *big.Int
	Recipient    common.Address
	Amount       *big.Int
	Deadline     *big.Int
	Description  string
	VotesFor     *big.Int
	VotesAgainst *big.Int
	VotesAbstain *big.Int
	Executed     bool
}

// EncodeVote builds the calldata a voter signs into a ForwardRequest.
func EncodeVote(proposalID uint64, vote types.VoteType) ([]byte, error) {
	return DAOABI.Pack("vote", new(big.Int).SetUint64(proposalID), uint8(vote))
}
