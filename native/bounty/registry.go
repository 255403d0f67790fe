package bounty

import (
	"fmt"

	"bountyexchange/core/events"
)

const registryDomain = "bounty.registry"

// RegistryState extends State with the nonce and party indexes the registry
// maintains.
type RegistryState interface {
	State
	BountyNextNonce() (uint64, error)
	BountyIndex(req *BountyRequest) error
}

// Registry keeps every bounty request in one keyed store. All locked assets
// sit in a single vault account.
type Registry struct {
	engine *Engine
	state  RegistryState
	vault  [20]byte
}

// NewRegistry wires a registry to its state and token resolver.
func NewRegistry(state RegistryState, tokens TokenResolver) *Registry {
	engine := NewEngine()
	engine.SetState(state)
	engine.SetTokens(tokens)
	return &Registry{engine: engine, state: state, vault: RegistryVaultAddress()}
}

// SetEmitter configures the registry event sink.
func (r *Registry) SetEmitter(emitter events.Emitter) { r.engine.SetEmitter(emitter) }

// SetNowFunc overrides the registry clock.
func (r *Registry) SetNowFunc(now func() int64) { r.engine.SetNowFunc(now) }

// SetJournal enables rollback of failed operations.
func (r *Registry) SetJournal(j Journal) { r.engine.SetJournal(j) }

// Vault returns the custody account of the registry.
func (r *Registry) Vault() [20]byte { return r.vault }

// Create validates the terms, allocates an id, pulls the locked asset from the
// requester into the vault and stores the request as open.
func (r *Registry) Create(requester [20]byte, params CreateParams) (*BountyRequest, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if requester == ([20]byte{}) {
		return nil, fmt.Errorf("%w: requester required", ErrInvalidParameters)
	}
	if err := r.engine.ready(); err != nil {
		return nil, err
	}
	var created *BountyRequest
	err := r.engine.atomic(func() error {
		nonce, err := r.state.BountyNextNonce()
		if err != nil {
			return err
		}
		id := requestID(registryDomain, r.vault, requester, params, nonce)
		if _, exists, err := r.state.BountyGet(id); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("bounty registry: identifier collision %x", id)
		}
		req := &BountyRequest{
			ID:        id,
			Requester: requester,
			Provider:  params.Provider,
			Locked:    Asset{Token: params.LockedToken, Amount: params.LockedAmount},
			Bounty:    Asset{Token: params.BountyToken, Amount: params.BountyAmount},
			Duration:  params.Duration,
			CreatedAt: r.engine.now(),
			Custody:   r.vault,
			Nonce:     nonce,
			Status:    StatusPending,
		}
		opened, err := r.engine.open(req)
		if err != nil {
			return err
		}
		if err := r.state.BountyIndex(opened); err != nil {
			return err
		}
		created = opened
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.engine.emit(NewCreatedEvent(created))
	return created, nil
}

// Submit settles the request in favour of the provider.
func (r *Registry) Submit(caller [20]byte, id [32]byte) error { return r.engine.Submit(caller, id) }

// Reclaim returns the locked asset to the requester after expiry.
func (r *Registry) Reclaim(caller [20]byte, id [32]byte) error { return r.engine.Reclaim(caller, id) }

// IsExpired reports whether the deadline has been reached.
func (r *Registry) IsExpired(id [32]byte) (bool, error) { return r.engine.IsExpired(id) }

// Get returns a snapshot of the request.
func (r *Registry) Get(id [32]byte) (*BountyRequest, error) { return r.engine.Get(id) }

// Deadline returns the request deadline.
func (r *Registry) Deadline(id [32]byte) (int64, error) { return r.engine.Deadline(id) }
