package bounty

import (
	"fmt"
	"math/big"
)

// Status represents the lifecycle states of a bounty request.
type Status uint8

const (
	// StatusPending marks a factory instance that exists but has not pulled
	// the locked asset yet. Registry records never use it.
	StatusPending Status = iota
	StatusOpen
	StatusFulfilled
	StatusReclaimed
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusOpen, StatusFulfilled, StatusReclaimed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusFulfilled || s == StatusReclaimed
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusOpen:
		return "open"
	case StatusFulfilled:
		return "fulfilled"
	case StatusReclaimed:
		return "reclaimed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Asset is an amount of a fungible token identified by the token's address.
type Asset struct {
	Token  [20]byte
	Amount *big.Int
}

func (a Asset) clone() Asset {
	out := Asset{Token: a.Token, Amount: big.NewInt(0)}
	if a.Amount != nil {
		out.Amount = new(big.Int).Set(a.Amount)
	}
	return out
}

// BountyRequest captures the parties, assets, timing and status of a single
// bounty exchange. Records are append-only: once terminal they are never
// modified or deleted.
type BountyRequest struct {
	ID        [32]byte
	Requester [20]byte
	Provider  [20]byte
	Locked    Asset
	Bounty    Asset
	Duration  int64
	Deadline  int64
	CreatedAt int64
	// Custody is the address holding the locked asset while the request is
	// open: the registry vault or the factory instance address.
	Custody [20]byte
	Nonce   uint64
	Status  Status
}

// Clone returns a deep copy of the request so callers can safely mutate the
// copy without affecting the stored instance.
func (r *BountyRequest) Clone() *BountyRequest {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Locked = r.Locked.clone()
	clone.Bounty = r.Bounty.clone()
	return &clone
}

// Funded reports whether the locked asset has been pulled into custody at
// some point, i.e. the request left the pending state.
func (r *BountyRequest) Funded() bool {
	return r != nil && r.Status != StatusPending
}

// CreateParams carries the caller-supplied terms of a new bounty request.
type CreateParams struct {
	LockedAmount *big.Int
	LockedToken  [20]byte
	BountyAmount *big.Int
	BountyToken  [20]byte
	Provider     [20]byte
	// Duration is the number of seconds between funding and the deadline.
	Duration int64
}

// Validate checks the parameters independent of any state.
func (p CreateParams) Validate() error {
	if p.LockedAmount == nil || p.LockedAmount.Sign() <= 0 {
		return fmt.Errorf("%w: locked amount must be positive", ErrInvalidParameters)
	}
	if p.BountyAmount == nil || p.BountyAmount.Sign() <= 0 {
		return fmt.Errorf("%w: bounty amount must be positive", ErrInvalidParameters)
	}
	if p.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidParameters)
	}
	if p.LockedToken == ([20]byte{}) || p.BountyToken == ([20]byte{}) {
		return fmt.Errorf("%w: token reference required", ErrInvalidParameters)
	}
	if p.Provider == ([20]byte{}) {
		return fmt.Errorf("%w: provider required", ErrInvalidParameters)
	}
	return nil
}

// SanitizeRequest validates a stored or incoming record and returns a cloned
// instance with non-nil amounts. The original is never mutated.
func SanitizeRequest(r *BountyRequest) (*BountyRequest, error) {
	if r == nil {
		return nil, fmt.Errorf("nil bounty request")
	}
	clone := r.Clone()
	if clone.Locked.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("bounty request locked amount must be positive")
	}
	if clone.Bounty.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("bounty request bounty amount must be positive")
	}
	if clone.Duration <= 0 {
		return nil, fmt.Errorf("bounty request duration must be positive")
	}
	if clone.Deadline < 0 || clone.CreatedAt < 0 {
		return nil, fmt.Errorf("bounty request timestamps must not be negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid bounty status: %d", clone.Status)
	}
	return clone, nil
}
