package failure

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindMisconfiguration
	KindBadRequest
	KindInsufficientRelayerFunds
	KindInvalidSignature
	KindNonceAlreadyUsed
	KindNetworkError
	KindContractReverted
)

var kindCodes = map[Kind]string{
	KindUnknown:                  "unknown",
	KindMisconfiguration:         "server_misconfigured",
	KindBadRequest:               "bad_request",
	KindInsufficientRelayerFunds: "insufficient_relayer_funds",
	KindInvalidSignature:         "invalid_signature",
	KindNonceAlreadyUsed:         "nonce_already_used",
	KindNetworkError:             "network_error",
	KindContractReverted:         "contract_reverted",
}

func (k Kind) String() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the stable error shape shared by the daemon, the relay and the
// HTTP layer. Reason carries the revert reason, the unknown message or a
// precise code overriding the kind's default one.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func Wrap(kind Kind, err error) *Error {
	e := &Error{Kind: kind, Err: err}
	if err != nil {
		e.Reason = err.Error()
	}
	return e
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code is the token returned to HTTP clients in the "error" field.
func (e *Error) Code() string {
	return e.Kind.String()
}

// Retryable reports whether the same call may succeed later without the
// caller changing anything.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetworkError, KindInsufficientRelayerFunds:
		return true
	}
	return false
}

func (e *Error) Status() int {
	switch e.Kind {
	case KindBadRequest, KindInvalidSignature:
		return http.StatusBadRequest
	case KindNonceAlreadyUsed:
		return http.StatusConflict
	case KindInsufficientRelayerFunds, KindNetworkError:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Message is a human readable hint for the caller.
func (e *Error) Message() string {
	switch e.Kind {
	case KindMisconfiguration:
		return "the server is missing required configuration"
	case KindBadRequest:
		if e.Reason != "" {
			return "bad request: " + e.Reason
		}
		return "bad request"
	case KindInsufficientRelayerFunds:
		return "the relayer cannot pay for gas right now, contact the administrator"
	case KindInvalidSignature:
		return "invalid signature, sign the request again"
	case KindNonceAlreadyUsed:
		return "this request was already processed, build a new one with the current nonce"
	case KindNetworkError:
		return "ledger unreachable, try again later"
	case KindContractReverted:
		if e.Reason != "" {
			return "transaction reverted: " + e.Reason
		}
		return "transaction reverted by the contract"
	}
	if e.Reason != "" {
		return e.Reason
	}
	return "unknown error"
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return Classify(err).Kind == kind
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
