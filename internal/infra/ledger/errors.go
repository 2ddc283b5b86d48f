package ledger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrGameNotFound is returned by readers when the id is unknown to the ledger.
var ErrGameNotFound = errors.New("game not found")

// DeterministicError is a submit failure that will recur on retry, such as a
// reverted execution or malformed arguments.
type DeterministicError struct {
	Err error
}

func (e *DeterministicError) Error() string {
	return fmt.Sprintf("deterministic submit failure: %v", e.Err)
}

func (e *DeterministicError) Unwrap() error { return e.Err }

// TransientError is a submit failure plausibly caused by a temporary
// condition: network, timeout, rate limit, nonce race.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient submit failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Failure categorizes a submit error.
type Failure int

const (
	FailureTransient Failure = iota
	FailureDeterministic
)

func (f Failure) String() string {
	if f == FailureDeterministic {
		return "deterministic"
	}
	return "transient"
}

// IsDeterministic reports whether err should not be retried.
func IsDeterministic(err error) bool {
	return Classify(err) == FailureDeterministic
}

// Wrap tags err with its classification. Already-tagged errors are returned
// unchanged.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var det *DeterministicError
	var tr *TransientError
	if errors.As(err, &det) || errors.As(err, &tr) {
		return err
	}
	if Classify(err) == FailureDeterministic {
		return &DeterministicError{Err: err}
	}
	return &TransientError{Err: err}
}

// HTTPStatusError is implemented by transport errors that carry the HTTP
// status of a failed request.
type HTTPStatusError interface {
	error
	HTTPStatus() int
}

// RPCCodeError is implemented by errors that carry a JSON-RPC error code.
type RPCCodeError interface {
	error
	RPCCode() int
}

// JSON-RPC codes. -32000 to -32099 are implementation-defined server errors
// and are classified by message instead.
const (
	rpcCodeReverted       = 3
	rpcCodeParse          = -32700
	rpcCodeInvalidRequest = -32600
	rpcCodeMethodNotFound = -32601
	rpcCodeInvalidParams  = -32602
	rpcCodeInternal       = -32603
)

var deterministicPatterns = []string{
	"execution reverted",
	"revert",
	"invalid argument",
	"invalid params",
	"invalid request",
	"method not found",
	"insufficient funds",
}

// Nonce races resolve themselves once the pending pool settles.
var transientPatterns = []string{
	"nonce too low",
	"replacement transaction underpriced",
	"already known",
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"too many requests",
	"rate limit",
	"bad gateway",
	"service unavailable",
}

// Classify decides whether a submit error is deterministic or transient.
// Structured status and error codes win over message text. Unknown errors
// are treated as transient so they get the bounded retry.
func Classify(err error) Failure {
	if err == nil {
		return FailureTransient
	}

	var det *DeterministicError
	if errors.As(err, &det) {
		return FailureDeterministic
	}
	var tr *TransientError
	if errors.As(err, &tr) {
		return FailureTransient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTransient
	}
	if errors.Is(err, context.Canceled) {
		return FailureDeterministic
	}

	var httpErr HTTPStatusError
	if errors.As(err, &httpErr) {
		return classifyHTTPStatus(httpErr.HTTPStatus())
	}

	var rpcErr RPCCodeError
	if errors.As(err, &rpcErr) {
		switch rpcErr.RPCCode() {
		case rpcCodeReverted, rpcCodeParse, rpcCodeInvalidRequest,
			rpcCodeMethodNotFound, rpcCodeInvalidParams:
			return FailureDeterministic
		case rpcCodeInternal:
			return FailureTransient
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureTransient
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.InvalidArgument, codes.FailedPrecondition, codes.NotFound,
			codes.AlreadyExists, codes.PermissionDenied, codes.Unauthenticated,
			codes.OutOfRange, codes.Unimplemented:
			return FailureDeterministic
		default:
			return FailureTransient
		}
	}

	// Message text may embed ids, amounts and hashes, so numeric codes are
	// never matched here, and reverts are checked before transient hints.
	s := strings.ToLower(err.Error())
	for _, p := range deterministicPatterns {
		if strings.Contains(s, p) {
			return FailureDeterministic
		}
	}
	for _, p := range transientPatterns {
		if strings.Contains(s, p) {
			return FailureTransient
		}
	}

	return FailureTransient
}

// classifyHTTPStatus treats client errors as deterministic, except request
// timeouts and rate limiting.
func classifyHTTPStatus(code int) Failure {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return FailureTransient
	case code >= 400 && code < 500:
		return FailureDeterministic
	default:
		return FailureTransient
	}
}
