package rpc

import (
	"errors"
	"net/http"

	"bountyexchange/native/bounty"
	"bountyexchange/native/token"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeNotFound       = -32004
	codeDuplicateCall  = -32010
	codeConflict       = -32009
	codeTransferFailed = -32022
)

// paramError marks a request that could not be decoded into valid
// parameters.
type paramError struct {
	msg string
}

func (e *paramError) Error() string { return e.msg }

func newParamError(msg string) error { return &paramError{msg: msg} }

// classify maps an error to its HTTP status, JSON-RPC code and short message.
func classify(err error) (int, int, string) {
	var perr *paramError
	switch {
	case errors.As(err, &perr):
		return http.StatusBadRequest, codeInvalidParams, "invalid_params"
	case errors.Is(err, errSignatureRequired),
		errors.Is(err, errSignatureInvalid),
		errors.Is(err, errStaleCall),
		errors.Is(err, bounty.ErrUnauthorized):
		return http.StatusForbidden, codeUnauthorized, "unauthorized"
	case errors.Is(err, errReplayedCall):
		return http.StatusConflict, codeDuplicateCall, "duplicate_call"
	case errors.Is(err, bounty.ErrTransferFailed),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance),
		errors.Is(err, token.ErrOverflow):
		return http.StatusUnprocessableEntity, codeTransferFailed, "transfer_failed"
	case errors.Is(err, bounty.ErrInvalidParameters),
		errors.Is(err, token.ErrInvalidAmount):
		return http.StatusBadRequest, codeInvalidParams, "invalid_params"
	case errors.Is(err, bounty.ErrNotFound),
		errors.Is(err, token.ErrUnknownToken):
		return http.StatusNotFound, codeNotFound, "not_found"
	case errors.Is(err, bounty.ErrAlreadyTerminal),
		errors.Is(err, bounty.ErrExpired),
		errors.Is(err, bounty.ErrNotYetExpired),
		errors.Is(err, bounty.ErrNotFunded),
		errors.Is(err, bounty.ErrAlreadyFunded):
		return http.StatusConflict, codeConflict, "conflict"
	default:
		return http.StatusInternalServerError, codeServerError, "internal_error"
	}
}
