package failure

import (
	"context"
	"errors"
	"io"
	"net"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// JSON-RPC error code geth uses for "execution reverted" with revert data.
const rpcCodeExecutionReverted = 3

// Classify maps an arbitrary transport or contract error to the taxonomy.
// Structured signals are checked first. Message matching is a best-effort
// fallback over a short, non-exhaustive list of node messages and must not
// be relied upon for correctness.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if fe, ok := As(err); ok {
		return fe
	}
	if fe := classifyStructured(err); fe != nil {
		return fe
	}
	return classifyMessage(err)
}

func classifyStructured(err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, io.ErrUnexpectedEOF):
		return Wrap(KindNetworkError, err)
	case errors.Is(err, bind.ErrNoCode):
		return Wrap(KindMisconfiguration, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Wrap(KindNetworkError, err)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == rpcCodeExecutionReverted {
		reason := revertReasonFromData(err)
		if reason == "" {
			reason = extractRevertReason(err.Error())
		}
		return &Error{Kind: KindContractReverted, Reason: reason, Err: err}
	}
	return nil
}

func revertReasonFromData(err error) string {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return ""
	}
	var raw []byte
	switch d := dataErr.ErrorData().(type) {
	case string:
		b, decErr := hexutil.Decode(d)
		if decErr != nil {
			return ""
		}
		raw = b
	case []byte:
		raw = d
	default:
		return ""
	}
	reason, unpackErr := abi.UnpackRevert(raw)
	if unpackErr != nil {
		return ""
	}
	return reason
}

// Pool rejections of the sender account's own transaction. They say nothing
// about the forwarded request nonce.
var accountNonceMessages = []string{
	"nonce too low",
	"nonce too high",
	"replacement transaction underpriced",
	"already known",
}

// IsAccountNonceConflict reports whether err is a pool rejection caused by
// the sending account's nonce.
func IsAccountNonceConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range accountNonceMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func classifyMessage(err error) *Error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"), strings.Contains(msg, "insufficient balance"):
		return Wrap(KindInsufficientRelayerFunds, err)
	case IsAccountNonceConflict(err):
		return Wrap(KindNetworkError, err)
	case strings.Contains(msg, "signature"):
		return Wrap(KindInvalidSignature, err)
	case strings.Contains(msg, "nonce"), strings.Contains(msg, "already used"):
		return Wrap(KindNonceAlreadyUsed, err)
	case strings.Contains(msg, "reverted"):
		return &Error{Kind: KindContractReverted, Reason: extractRevertReason(err.Error()), Err: err}
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "network"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "no such host"):
		return Wrap(KindNetworkError, err)
	}
	return Wrap(KindUnknown, err)
}

var revertPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)execution reverted: (.+?)(?:\n|$)`),
	regexp.MustCompile(`(?i)reverted: (.+?)(?:\n|$)`),
	regexp.MustCompile(`reason="(.+?)"`),
	regexp.MustCompile(`(?i)revert (.+?)$`),
}

func extractRevertReason(msg string) string {
	for _, p := range revertPatterns {
		if m := p.FindStringSubmatch(msg); len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
