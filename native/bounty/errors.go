package bounty

import "errors"

// Every rejected operation returns one of these (possibly wrapped). No error is
// transient: callers fix the underlying condition and resubmit.
var (
	ErrInvalidParameters = errors.New("bounty: invalid parameters")
	ErrUnauthorized      = errors.New("bounty: unauthorized caller")
	ErrNotFound          = errors.New("bounty: request not found")
	ErrAlreadyTerminal   = errors.New("bounty: request already settled")
	ErrNotYetExpired     = errors.New("bounty: deadline not reached")
	ErrExpired           = errors.New("bounty: deadline passed")
	ErrTransferFailed    = errors.New("bounty: token transfer failed")

	// ErrNotFunded is returned by factory instances that have not pulled the
	// locked asset yet.
	ErrNotFunded = errors.New("bounty: request not funded")
	// ErrAlreadyFunded is returned when requestBounty is repeated.
	ErrAlreadyFunded = errors.New("bounty: request already funded")

	errNilState  = errors.New("bounty engine: state not configured")
	errNilTokens = errors.New("bounty engine: token resolver not configured")
)
