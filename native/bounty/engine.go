package bounty

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"bountyexchange/core/events"
	"bountyexchange/core/types"
)

// Token is the fungible-asset capability the engine moves funds with. Both
// calls are all-or-nothing: on insufficient balance or allowance they return an
// error and change nothing.
type Token interface {
	// Transfer moves amount out of from, which must be the acting account.
	Transfer(from, to [20]byte, amount *big.Int) error
	// TransferFrom moves amount from owner to to, consuming the allowance
	// owner granted to spender.
	TransferFrom(spender, owner, to [20]byte, amount *big.Int) error
}

// TokenResolver maps a token reference to its capability.
type TokenResolver interface {
	Token(ref [20]byte) (Token, error)
}

// State is the persistence surface required by the engine.
type State interface {
	BountyPut(*BountyRequest) error
	BountyGet(id [32]byte) (*BountyRequest, bool, error)
}

// Journal is implemented by state backends able to roll back writes, including
// the token balances moved during an operation.
type Journal interface {
	Snapshot() int
	RevertToSnapshot(revision int)
}

type bountyEvent struct {
	evt *types.Event
}

func (e bountyEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e bountyEvent) Event() *types.Event { return e.evt }

// Engine implements the bounty state machine over a single State. The
// registry drives one engine over shared storage; the factory drives one
// engine per instance over that instance's namespace.
type Engine struct {
	state   State
	tokens  TokenResolver
	journal Journal
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates an engine with a no-op emitter and the wall clock.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetTokens configures how token references are resolved.
func (e *Engine) SetTokens(tokens TokenResolver) { e.tokens = tokens }

// SetJournal enables rollback of partially applied operations. Without a
// journal the engine relies on the caller to discard failed writes.
func (e *Engine) SetJournal(j Journal) { e.journal = j }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(bountyEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// atomic runs fn inside a journal snapshot and reverts every write fn made if
// it fails.
func (e *Engine) atomic(fn func() error) error {
	if e.journal == nil {
		return fn()
	}
	revision := e.journal.Snapshot()
	if err := fn(); err != nil {
		e.journal.RevertToSnapshot(revision)
		return err
	}
	return nil
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.tokens == nil {
		return errNilTokens
	}
	return nil
}

func (e *Engine) load(id [32]byte) (*BountyRequest, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	req, ok, err := e.state.BountyGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrNotFound, id)
	}
	return req, nil
}

func (e *Engine) token(ref [20]byte) (Token, error) {
	tok, err := e.tokens.Token(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return tok, nil
}

func transferFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrTransferFailed, err)
}

// open pulls the locked asset from the requester into custody, fixes the
// deadline and stores the request as open. Nothing is stored if the pull
// fails. The caller emits the created event once its own writes succeed.
func (e *Engine) open(req *BountyRequest) (*BountyRequest, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	now := e.now()
	if req.Duration <= 0 || req.Duration > math.MaxInt64-now {
		return nil, fmt.Errorf("%w: duration out of range", ErrInvalidParameters)
	}
	opened := req.Clone()
	opened.Deadline = now + opened.Duration
	opened.Status = StatusOpen
	err := e.atomic(func() error {
		locked, err := e.token(opened.Locked.Token)
		if err != nil {
			return err
		}
		if err := locked.TransferFrom(opened.Custody, opened.Requester, opened.Custody, opened.Locked.Amount); err != nil {
			return transferFailed(err)
		}
		return e.state.BountyPut(opened)
	})
	if err != nil {
		return nil, err
	}
	return opened.Clone(), nil
}

// Submit settles the request in favour of the provider: the bounty moves from
// the provider to the requester and the locked asset moves from custody to the
// provider. Either both transfers happen or neither does.
func (e *Engine) Submit(caller [20]byte, id [32]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	req, err := e.load(id)
	if err != nil {
		return err
	}
	if req.Status.Terminal() {
		return fmt.Errorf("%w: status %s", ErrAlreadyTerminal, req.Status)
	}
	if req.Status != StatusOpen {
		return ErrNotFunded
	}
	if caller != req.Provider {
		return fmt.Errorf("%w: only the designated provider may submit", ErrUnauthorized)
	}
	if e.now() >= req.Deadline {
		return ErrExpired
	}
	err = e.atomic(func() error {
		bountyTok, err := e.token(req.Bounty.Token)
		if err != nil {
			return err
		}
		lockedTok, err := e.token(req.Locked.Token)
		if err != nil {
			return err
		}
		if err := bountyTok.TransferFrom(req.Custody, req.Provider, req.Requester, req.Bounty.Amount); err != nil {
			return transferFailed(err)
		}
		if err := lockedTok.Transfer(req.Custody, req.Provider, req.Locked.Amount); err != nil {
			return transferFailed(err)
		}
		req.Status = StatusFulfilled
		return e.state.BountyPut(req)
	})
	if err != nil {
		return err
	}
	e.emit(NewFulfilledEvent(req))
	return nil
}

// Reclaim returns the locked asset to the requester once the deadline has
// been reached without fulfilment.
func (e *Engine) Reclaim(caller [20]byte, id [32]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	req, err := e.load(id)
	if err != nil {
		return err
	}
	if req.Status.Terminal() {
		return fmt.Errorf("%w: status %s", ErrAlreadyTerminal, req.Status)
	}
	if req.Status != StatusOpen {
		return ErrNotFunded
	}
	if caller != req.Requester {
		return fmt.Errorf("%w: only the requester may reclaim", ErrUnauthorized)
	}
	if e.now() < req.Deadline {
		return ErrNotYetExpired
	}
	err = e.atomic(func() error {
		lockedTok, err := e.token(req.Locked.Token)
		if err != nil {
			return err
		}
		if err := lockedTok.Transfer(req.Custody, req.Requester, req.Locked.Amount); err != nil {
			return transferFailed(err)
		}
		req.Status = StatusReclaimed
		return e.state.BountyPut(req)
	})
	if err != nil {
		return err
	}
	e.emit(NewClaimedEvent(req))
	return nil
}

// IsExpired reports whether the clock has reached the deadline. It ignores the
// status, so a fulfilled request still reports expiry once its deadline has
// passed. Unfunded requests have no deadline and never report expiry.
func (e *Engine) IsExpired(id [32]byte) (bool, error) {
	req, err := e.load(id)
	if err != nil {
		return false, err
	}
	if !req.Funded() {
		return false, nil
	}
	return e.now() >= req.Deadline, nil
}

// Get returns a snapshot of the stored request.
func (e *Engine) Get(id [32]byte) (*BountyRequest, error) {
	req, err := e.load(id)
	if err != nil {
		return nil, err
	}
	return req.Clone(), nil
}

// Deadline returns the request deadline, or zero for an unfunded request.
func (e *Engine) Deadline(id [32]byte) (int64, error) {
	req, err := e.load(id)
	if err != nil {
		return 0, err
	}
	return req.Deadline, nil
}
