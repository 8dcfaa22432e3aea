package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ForwardRequest mirrors the MinimalForwarder request tuple. Field names
// must match the ABI component names for tuple packing.
type ForwardRequest struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Gas   *big.Int
	Nonce *big.Int
	Data  []byte
}

func (r *ForwardRequest) Clone() *ForwardRequest {
	n := &ForwardRequest{
		From: r.From,
		To:   r.To,
		Data: common.CopyBytes(r.Data),
	}
	if r.Value != nil {
		n.Value = new(big.Int).Set(r.Value)
	}
	if r.Gas != nil {
		n.Gas = new(big.Int).Set(r.Gas)
	}
	if r.Nonce != nil {
		n.Nonce = new(big.Int).Set(r.Nonce)
	}
	return n
}
