package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/calehh/dao-keeper/failure"
	"github.com/calehh/dao-keeper/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

// Quantity is a uint256 on the wire, sent either as a JSON string (decimal
// or 0x hex) or as a bare JSON number.
type Quantity string

func (q *Quantity) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*q = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*q = Quantity(s)
		return nil
	}
	*q = Quantity(b)
	return nil
}

type WireRequest struct {
	From  string   `json:"from"`
	To    string   `json:"to"`
	Value Quantity `json:"value"`
	Gas   Quantity `json:"gas"`
	Nonce Quantity `json:"nonce"`
	Data  string   `json:"data"`
}

// WireSubmission is the POST /relay body.
type WireSubmission struct {
	Forwarder string       `json:"forwarder"`
	Request   *WireRequest `json:"request"`
	Signature string       `json:"signature"`
}

type Submission struct {
	Forwarder common.Address
	Request   *types.ForwardRequest
	Signature []byte
}

// ParseSubmission decodes a relay body. Every failure is a BadRequest.
func ParseSubmission(body []byte) (*Submission, error) {
	var w WireSubmission
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, failure.New(failure.KindBadRequest, "malformed json")
	}
	return w.Decode()
}

func (w *WireSubmission) Decode() (*Submission, error) {
	if w.Forwarder == "" || w.Request == nil || w.Signature == "" {
		return nil, failure.New(failure.KindBadRequest, "forwarder, request and signature are required")
	}
	forwarder, err := parseAddress("forwarder", w.Forwarder)
	if err != nil {
		return nil, err
	}
	req, err := w.Request.Decode()
	if err != nil {
		return nil, err
	}
	sig, err := hexutil.Decode(w.Signature)
	if err != nil {
		return nil, failure.New(failure.KindBadRequest, "signature is not 0x hex")
	}
	return &Submission{Forwarder: forwarder, Request: req, Signature: sig}, nil
}

func (w *WireRequest) Decode() (*types.ForwardRequest, error) {
	from, err := parseAddress("from", w.From)
	if err != nil {
		return nil, err
	}
	to, err := parseAddress("to", w.To)
	if err != nil {
		return nil, err
	}
	value, err := parseQuantity("value", w.Value)
	if err != nil {
		return nil, err
	}
	gas, err := parseQuantity("gas", w.Gas)
	if err != nil {
		return nil, err
	}
	nonce, err := parseQuantity("nonce", w.Nonce)
	if err != nil {
		return nil, err
	}
	data := []byte{}
	if w.Data != "" {
		if data, err = hexutil.Decode(w.Data); err != nil {
			return nil, failure.New(failure.KindBadRequest, "data is not 0x hex")
		}
	}
	return &types.ForwardRequest{From: from, To: to, Value: value, Gas: gas, Nonce: nonce, Data: data}, nil
}

// NewWireSubmission renders a submission the way clients send it: decimal
// numbers and 0x hex bytes.
func NewWireSubmission(forwarder common.Address, req *types.ForwardRequest, sig []byte) *WireSubmission {
	return &WireSubmission{
		Forwarder: forwarder.Hex(),
		Request: &WireRequest{
			From:  req.From.Hex(),
			To:    req.To.Hex(),
			Value: Quantity(req.Value.String()),
			Gas:   Quantity(req.Gas.String()),
			Nonce: Quantity(req.Nonce.String()),
			Data:  hexutil.Encode(req.Data),
		},
		Signature: hexutil.Encode(sig),
	}
}

func parseAddress(field, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, failure.New(failure.KindBadRequest, fmt.Sprintf("%s is not an address", field))
	}
	return common.HexToAddress(s), nil
}

func parseQuantity(field string, q Quantity) (*big.Int, error) {
	s := strings.TrimSpace(string(q))
	if s == "" {
		return nil, failure.New(failure.KindBadRequest, fmt.Sprintf("%s is required", field))
	}
	v, ok := math.ParseBig256(s)
	if !ok || v.Sign() < 0 {
		return nil, failure.New(failure.KindBadRequest, fmt.Sprintf("%s is not a uint256", field))
	}
	return v, nil
}
