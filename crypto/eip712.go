package crypto

import (
	"math/big"

	"github.com/calehh/dao-keeper/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	ForwarderDomainName    = "MinimalForwarder"
	ForwarderDomainVersion = "0.0.1"
)

var forwardRequestTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"ForwardRequest": {
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "gas", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "data", Type: "bytes"},
	},
}

// ForwardRequestTypedData binds req to the chain and the forwarder so that a
// signature cannot be replayed on another network or contract.
func ForwardRequestTypedData(chainID *big.Int, forwarder common.Address, req *types.ForwardRequest) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       forwardRequestTypes,
		PrimaryType: "ForwardRequest",
		Domain: apitypes.TypedDataDomain{
			Name:              ForwarderDomainName,
			Version:           ForwarderDomainVersion,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: forwarder.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":  req.From.Hex(),
			"to":    req.To.Hex(),
			"value": decimal(req.Value),
			"gas":   decimal(req.Gas),
			"nonce": decimal(req.Nonce),
			"data":  common.CopyBytes(req.Data),
		},
	}
}

func HashForwardRequest(chainID *big.Int, forwarder common.Address, req *types.ForwardRequest) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(ForwardRequestTypedData(chainID, forwarder, req))
	return hash, err
}

// SignForwardRequest is the client-side half of the relay protocol: the
// voter signs with their own key.
func SignForwardRequest(key *Key, chainID *big.Int, forwarder common.Address, req *types.ForwardRequest) ([]byte, error) {
	hash, err := HashForwardRequest(chainID, forwarder, req)
	if err != nil {
		return nil, err
	}
	return key.Sign(hash)
}

func RecoverForwardRequest(chainID *big.Int, forwarder common.Address, req *types.ForwardRequest, sig []byte) (common.Address, error) {
	hash, err := HashForwardRequest(chainID, forwarder, req)
	if err != nil {
		return common.Address{}, err
	}
	return Recover(hash, sig)
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
