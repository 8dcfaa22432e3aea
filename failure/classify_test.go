package failure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type revertError struct {
	msg  string
	data interface{}
}

func (e *revertError) Error() string          { return e.msg }
func (e *revertError) ErrorCode() int         { return rpcCodeExecutionReverted }
func (e *revertError) ErrorData() interface{} { return e.data }

func encodeRevert(t *testing.T, reason string) string {
	t.Helper()
	strType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: strType}}.Pack(reason)
	require.NoError(t, err)
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return hexutil.Encode(append(selector, packed...))
}

func TestClassifyStructuredRevert(t *testing.T) {
	err := &revertError{msg: "execution reverted", data: encodeRevert(t, "Not enough funds")}
	fe := Classify(fmt.Errorf("execute proposal: %w", err))
	require.NotNil(t, fe)
	assert.Equal(t, KindContractReverted, fe.Kind)
	assert.Equal(t, "Not enough funds", fe.Reason)
	assert.Equal(t, http.StatusInternalServerError, fe.Status())
}

func TestClassifyRevertFallsBackToMessage(t *testing.T) {
	err := &revertError{msg: "execution reverted: Already executed", data: "0xzz"}
	fe := Classify(err)
	assert.Equal(t, KindContractReverted, fe.Kind)
	assert.Equal(t, "Already executed", fe.Reason)
}

func TestClassifyTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()
	fe := Classify(fmt.Errorf("header: %w", ctx.Err()))
	assert.Equal(t, KindNetworkError, fe.Kind)
	assert.True(t, fe.Retryable())
	assert.Equal(t, http.StatusServiceUnavailable, fe.Status())
}

func TestClassifyNoCode(t *testing.T) {
	fe := Classify(fmt.Errorf("call: %w", bind.ErrNoCode))
	assert.Equal(t, KindMisconfiguration, fe.Kind)
}

func TestClassifyMessages(t *testing.T) {
	cases := []struct {
		msg  string
		kind Kind
	}{
		{"insufficient funds for gas * price + value", KindInsufficientRelayerFunds},
		{"MinimalForwarder: signature does not match request", KindInvalidSignature},
		{"nonce too low", KindNetworkError},
		{"replacement transaction underpriced", KindNetworkError},
		{"already known", KindNetworkError},
		{"invalid nonce for request", KindNonceAlreadyUsed},
		{"request already used", KindNonceAlreadyUsed},
		{"VM Exception while processing transaction: reverted: Voting closed", KindContractReverted},
		{"dial tcp 127.0.0.1:8545: connect: connection refused", KindNetworkError},
		{"something odd", KindUnknown},
	}
	for _, c := range cases {
		t.Run(c.msg, func(t *testing.T) {
			assert.Equal(t, c.kind, Classify(errors.New(c.msg)).Kind)
		})
	}
}

func TestClassifyAccountNonceConflictIsRetryable(t *testing.T) {
	err := errors.New("execute: nonce too low: address 0x1111111111111111111111111111111111111111, tx: 4 state: 5")
	assert.True(t, IsAccountNonceConflict(err))
	fe := Classify(err)
	assert.Equal(t, KindNetworkError, fe.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, fe.Status())
	assert.True(t, fe.Retryable())

	assert.False(t, IsAccountNonceConflict(errors.New("nonce 3 of 0xabc already used")))
	assert.False(t, IsAccountNonceConflict(nil))
}

func TestClassifyKeepsExisting(t *testing.T) {
	orig := New(KindNonceAlreadyUsed, "nonce 3 < 4")
	fe := Classify(fmt.Errorf("relay: %w", orig))
	assert.Same(t, orig, fe)
	assert.Equal(t, http.StatusConflict, fe.Status())
	assert.Equal(t, "nonce_already_used", fe.Code())
}

func TestClassifyUnknownKeepsMessage(t *testing.T) {
	fe := Classify(errors.New("boom"))
	assert.Equal(t, "boom", fe.Message())
	assert.Equal(t, "unknown: boom", fe.Error())
}

func TestExtractRevertReason(t *testing.T) {
	assert.Equal(t, "Only members", extractRevertReason(`call failed reason="Only members"`))
	assert.Equal(t, "", extractRevertReason("plain failure"))
}

func TestIs(t *testing.T) {
	assert.False(t, Is(nil, KindUnknown))
	assert.True(t, Is(New(KindBadRequest, ""), KindBadRequest))
}
