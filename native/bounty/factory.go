package bounty

import (
	"fmt"
	"time"

	"bountyexchange/core/events"
)

const factoryDomain = "bounty.factory"

// FactoryState persists the factory's id to instance map and hands out the
// per-instance state each deployed engine operates on.
type FactoryState interface {
	BountyNextNonce() (uint64, error)
	BountyIndex(req *BountyRequest) error
	FactoryInstancePut(id [32]byte, instance [20]byte) error
	FactoryInstanceGet(id [32]byte) ([20]byte, bool, error)
	InstanceState(instance [20]byte) State
}

// Factory deploys one self-contained instance per bounty request. Each
// instance owns its state and is its own custody account, so requesters and
// providers approve funds to the instance address.
type Factory struct {
	address [20]byte
	state   FactoryState
	tokens  TokenResolver
	journal Journal
	emitter events.Emitter
	nowFn   func() int64
}

// NewFactory wires a factory to its state and token resolver.
func NewFactory(state FactoryState, tokens TokenResolver) *Factory {
	return &Factory{
		address: FactoryAddress(),
		state:   state,
		tokens:  tokens,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event sink shared by the factory and its
// instances.
func (f *Factory) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	f.emitter = emitter
}

// SetNowFunc overrides the clock shared by the factory and its instances.
func (f *Factory) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	f.nowFn = now
}

// SetJournal enables rollback of failed operations.
func (f *Factory) SetJournal(j Journal) { f.journal = j }

// Address returns the deployer address of the factory.
func (f *Factory) Address() [20]byte { return f.address }

func (f *Factory) engineFor(instance [20]byte) *Engine {
	engine := NewEngine()
	engine.SetState(f.state.InstanceState(instance))
	engine.SetTokens(f.tokens)
	engine.SetJournal(f.journal)
	engine.SetEmitter(f.emitter)
	engine.SetNowFunc(f.nowFn)
	return engine
}

// CreateBountyRequest deploys an unfunded instance holding the terms and
// records the id to instance mapping. The requester funds it separately with
// RequestBounty.
func (f *Factory) CreateBountyRequest(requester [20]byte, params CreateParams) (*BountyRequest, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if requester == ([20]byte{}) {
		return nil, fmt.Errorf("%w: requester required", ErrInvalidParameters)
	}
	if f.state == nil {
		return nil, errNilState
	}
	var created *BountyRequest
	var engine *Engine
	run := func() error {
		nonce, err := f.state.BountyNextNonce()
		if err != nil {
			return err
		}
		addr := instanceAddress(f.address, nonce)
		id := requestID(factoryDomain, addr, requester, params, nonce)
		if _, exists, err := f.state.FactoryInstanceGet(id); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("bounty factory: identifier collision %x", id)
		}
		engine = f.engineFor(addr)
		req := &BountyRequest{
			ID:        id,
			Requester: requester,
			Provider:  params.Provider,
			Locked:    Asset{Token: params.LockedToken, Amount: params.LockedAmount},
			Bounty:    Asset{Token: params.BountyToken, Amount: params.BountyAmount},
			Duration:  params.Duration,
			CreatedAt: engine.now(),
			Custody:   addr,
			Nonce:     nonce,
			Status:    StatusPending,
		}
		if err := engine.state.BountyPut(req); err != nil {
			return err
		}
		if err := f.state.FactoryInstancePut(id, addr); err != nil {
			return err
		}
		if err := f.state.BountyIndex(req); err != nil {
			return err
		}
		created = req
		return nil
	}
	var err error
	if f.journal != nil {
		revision := f.journal.Snapshot()
		if err = run(); err != nil {
			f.journal.RevertToSnapshot(revision)
		}
	} else {
		err = run()
	}
	if err != nil {
		return nil, err
	}
	engine.emit(NewFactoryCreatedEvent(created))
	return created.Clone(), nil
}

// Instance resolves the deployed instance for id.
func (f *Factory) Instance(id [32]byte) (*Instance, error) {
	if f.state == nil {
		return nil, errNilState
	}
	addr, ok, err := f.state.FactoryInstanceGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrNotFound, id)
	}
	return &Instance{id: id, address: addr, engine: f.engineFor(addr)}, nil
}

// RequestBounty funds the instance for id on behalf of caller.
func (f *Factory) RequestBounty(caller [20]byte, id [32]byte) (*BountyRequest, error) {
	inst, err := f.Instance(id)
	if err != nil {
		return nil, err
	}
	return inst.RequestBounty(caller)
}

// Submit routes a submit to the instance for id.
func (f *Factory) Submit(caller [20]byte, id [32]byte) error {
	inst, err := f.Instance(id)
	if err != nil {
		return err
	}
	return inst.Submit(caller)
}

// Reclaim routes a reclaim to the instance for id.
func (f *Factory) Reclaim(caller [20]byte, id [32]byte) error {
	inst, err := f.Instance(id)
	if err != nil {
		return err
	}
	return inst.Reclaim(caller)
}

// IsExpired reports expiry of the instance for id.
func (f *Factory) IsExpired(id [32]byte) (bool, error) {
	inst, err := f.Instance(id)
	if err != nil {
		return false, err
	}
	return inst.IsExpired()
}

// Get returns the request held by the instance for id.
func (f *Factory) Get(id [32]byte) (*BountyRequest, error) {
	inst, err := f.Instance(id)
	if err != nil {
		return nil, err
	}
	return inst.Get()
}

// Deadline returns the deadline of the instance for id.
func (f *Factory) Deadline(id [32]byte) (int64, error) {
	inst, err := f.Instance(id)
	if err != nil {
		return 0, err
	}
	return inst.Deadline()
}

// Instance is a single deployed bounty request with its own state and custody
// account.
type Instance struct {
	id      [32]byte
	address [20]byte
	engine  *Engine
}

// ID returns the request id the instance was created for.
func (i *Instance) ID() [32]byte { return i.id }

// Address returns the custody account of the instance.
func (i *Instance) Address() [20]byte { return i.address }

// RequestBounty pulls the locked asset from the requester and starts the
// deadline clock. Only the requester may fund, and only once.
func (i *Instance) RequestBounty(caller [20]byte) (*BountyRequest, error) {
	req, err := i.engine.load(i.id)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, fmt.Errorf("%w: status %s", ErrAlreadyTerminal, req.Status)
	}
	if req.Funded() {
		return nil, ErrAlreadyFunded
	}
	if caller != req.Requester {
		return nil, fmt.Errorf("%w: only the requester may fund", ErrUnauthorized)
	}
	opened, err := i.engine.open(req)
	if err != nil {
		return nil, err
	}
	i.engine.emit(NewCreatedEvent(opened))
	return opened, nil
}

// Submit settles the instance in favour of the provider.
func (i *Instance) Submit(caller [20]byte) error { return i.engine.Submit(caller, i.id) }

// Reclaim returns the locked asset to the requester after expiry.
func (i *Instance) Reclaim(caller [20]byte) error { return i.engine.Reclaim(caller, i.id) }

// IsExpired reports whether the funded instance reached its deadline.
func (i *Instance) IsExpired() (bool, error) { return i.engine.IsExpired(i.id) }

// Get returns a snapshot of the instance's request.
func (i *Instance) Get() (*BountyRequest, error) { return i.engine.Get(i.id) }

// Deadline returns the deadline, zero until funded.
func (i *Instance) Deadline() (int64, error) { return i.engine.Deadline(i.id) }
