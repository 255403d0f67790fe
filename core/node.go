package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"bountyexchange/core/events"
	"bountyexchange/core/genesis"
	"bountyexchange/core/state"
	"bountyexchange/native/bounty"
	"bountyexchange/native/token"
	"bountyexchange/storage"
)

var genesisAppliedKey = []byte("node/genesis-applied")

// Variant selects the registry or the factory flavour of the exchange.
type Variant string

const (
	VariantRegistry Variant = "registry"
	VariantFactory  Variant = "factory"
)

// ParseVariant validates a user supplied variant name.
func ParseVariant(v string) (Variant, error) {
	switch Variant(v) {
	case VariantRegistry, VariantFactory:
		return Variant(v), nil
	default:
		return "", fmt.Errorf("%w: unknown variant %q", bounty.ErrInvalidParameters, v)
	}
}

// OpenRequest pairs an open request with the variant that holds it.
type OpenRequest struct {
	Variant Variant
	Request *bounty.BountyRequest
}

// Node is the central controller, wiring storage, tokens and both exchange
// variants together. Every operation is serialised by one mutex; mutations are
// committed to the database in one batch or not at all, and the events they
// produced are published only after the commit.
type Node struct {
	mu sync.Mutex

	db       storage.Database
	state    *state.Manager
	tokens   *token.Registry
	registry *bounty.Registry
	factory  *bounty.Factory

	registryState *state.Manager
	factoryState  *state.Manager

	buffer *events.Buffer
	sink   events.Emitter
	logger *slog.Logger
	nowFn  func() int64
}

// NewNode opens the exchange on db and restores the persisted token set.
func NewNode(db storage.Database, logger *slog.Logger) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	root := state.NewManager(db)
	n := &Node{
		db:            db,
		state:         root,
		tokens:        token.NewRegistry(root),
		registryState: root.Namespace([]byte("registry")),
		factoryState:  root.Namespace([]byte("factory")),
		buffer:        &events.Buffer{},
		sink:          events.NoopEmitter{},
		logger:        logger,
		nowFn:         func() int64 { return time.Now().Unix() },
	}
	if err := n.tokens.Load(); err != nil {
		return nil, err
	}
	n.tokens.SetEmitter(n.buffer)

	n.registry = bounty.NewRegistry(n.registryState, n.tokens)
	n.registry.SetJournal(root)
	n.registry.SetEmitter(n.buffer)

	n.factory = bounty.NewFactory(n.factoryState, n.tokens)
	n.factory.SetJournal(root)
	n.factory.SetEmitter(n.buffer)

	n.SetNowFunc(nil)
	return n, nil
}

// SetEmitter configures where committed events are published.
func (n *Node) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sink = emitter
}

// SetNowFunc overrides the clock, in unix seconds, used by both variants.
func (n *Node) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nowFn = now
	n.registry.SetNowFunc(now)
	n.factory.SetNowFunc(now)
}

// Now returns the node clock in unix seconds.
func (n *Node) Now() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nowFn()
}

// mutate runs fn as one atomic unit of work.
func (n *Node) mutate(fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	revision := n.state.Snapshot()
	if err := fn(); err != nil {
		n.state.RevertToSnapshot(revision)
		n.buffer.Reset()
		return err
	}
	if err := n.state.Commit(); err != nil {
		n.state.Discard()
		n.buffer.Reset()
		n.logger.Error("state commit failed", slog.Any("error", err))
		return err
	}
	n.buffer.Flush(n.sink)
	return nil
}

func (n *Node) read(fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn()
}

// ApplyGenesis registers the genesis tokens and mints their allocations. It
// runs once per database; later calls report false without touching state.
func (n *Node) ApplyGenesis(spec *genesis.GenesisSpec) (bool, error) {
	applied := false
	err := n.mutate(func() error {
		var done bool
		ok, err := n.state.KVGet(genesisAppliedKey, &done)
		if err != nil {
			return err
		}
		if ok && done {
			return nil
		}
		if err := genesis.Apply(spec, n.tokens); err != nil {
			return err
		}
		applied = true
		return n.state.KVPut(genesisAppliedKey, true)
	})
	if err != nil {
		// Registration is not journaled, so drop what a failed genesis tracked.
		if reloadErr := n.reloadTokens(); reloadErr != nil {
			return false, errors.Join(err, reloadErr)
		}
		return false, err
	}
	if applied {
		n.logger.Info("genesis applied", slog.Int("tokens", len(spec.Tokens)), slog.Int("accounts", len(spec.Alloc)))
	}
	return applied, nil
}

func (n *Node) reloadTokens() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	tokens := token.NewRegistry(n.state)
	if err := tokens.Load(); err != nil {
		return err
	}
	tokens.SetEmitter(n.buffer)
	n.tokens = tokens
	n.registry = bounty.NewRegistry(n.registryState, tokens)
	n.registry.SetJournal(n.state)
	n.registry.SetEmitter(n.buffer)
	n.registry.SetNowFunc(n.nowFn)
	n.factory = bounty.NewFactory(n.factoryState, tokens)
	n.factory.SetJournal(n.state)
	n.factory.SetEmitter(n.buffer)
	n.factory.SetNowFunc(n.nowFn)
	return nil
}

func (n *Node) exchange(v Variant) (bounty.Exchange, error) {
	switch v {
	case VariantRegistry:
		return n.registry, nil
	case VariantFactory:
		return n.factory, nil
	default:
		return nil, fmt.Errorf("%w: unknown variant %q", bounty.ErrInvalidParameters, v)
	}
}

func (n *Node) variantState(v Variant) (*state.Manager, error) {
	switch v {
	case VariantRegistry:
		return n.registryState, nil
	case VariantFactory:
		return n.factoryState, nil
	default:
		return nil, fmt.Errorf("%w: unknown variant %q", bounty.ErrInvalidParameters, v)
	}
}

// RegistryVault returns the custody address registry requesters approve.
func (n *Node) RegistryVault() [20]byte { return bounty.RegistryVaultAddress() }

// BountyCreate opens a registry request, pulling the locked asset from
// requester into the vault.
func (n *Node) BountyCreate(requester [20]byte, params bounty.CreateParams) (*bounty.BountyRequest, error) {
	var out *bounty.BountyRequest
	err := n.mutate(func() error {
		req, err := n.registry.Create(requester, params)
		out = req
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FactoryCreate deploys an unfunded factory instance.
func (n *Node) FactoryCreate(requester [20]byte, params bounty.CreateParams) (*bounty.BountyRequest, error) {
	var out *bounty.BountyRequest
	err := n.mutate(func() error {
		req, err := n.factory.CreateBountyRequest(requester, params)
		out = req
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FactoryRequestBounty funds the factory instance for id.
func (n *Node) FactoryRequestBounty(caller [20]byte, id [32]byte) (*bounty.BountyRequest, error) {
	var out *bounty.BountyRequest
	err := n.mutate(func() error {
		req, err := n.factory.RequestBounty(caller, id)
		out = req
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FactoryInstance returns the instance address deployed for id.
func (n *Node) FactoryInstance(id [32]byte) ([20]byte, error) {
	var addr [20]byte
	err := n.read(func() error {
		inst, err := n.factory.Instance(id)
		if err != nil {
			return err
		}
		addr = inst.Address()
		return nil
	})
	return addr, err
}

// Submit settles request id of variant v in favour of the provider.
func (n *Node) Submit(v Variant, caller [20]byte, id [32]byte) error {
	return n.mutate(func() error {
		ex, err := n.exchange(v)
		if err != nil {
			return err
		}
		return ex.Submit(caller, id)
	})
}

// Reclaim returns the locked asset of an expired request to its requester.
func (n *Node) Reclaim(v Variant, caller [20]byte, id [32]byte) error {
	return n.mutate(func() error {
		ex, err := n.exchange(v)
		if err != nil {
			return err
		}
		return ex.Reclaim(caller, id)
	})
}

// Get returns a snapshot of request id.
func (n *Node) Get(v Variant, id [32]byte) (*bounty.BountyRequest, error) {
	var out *bounty.BountyRequest
	err := n.read(func() error {
		ex, err := n.exchange(v)
		if err != nil {
			return err
		}
		req, err := ex.Get(id)
		out = req
		return err
	})
	return out, err
}

// IsExpired reports whether request id reached its deadline.
func (n *Node) IsExpired(v Variant, id [32]byte) (bool, error) {
	var expired bool
	err := n.read(func() error {
		ex, err := n.exchange(v)
		if err != nil {
			return err
		}
		expired, err = ex.IsExpired(id)
		return err
	})
	return expired, err
}

// Deadline returns the deadline of request id.
func (n *Node) Deadline(v Variant, id [32]byte) (int64, error) {
	var deadline int64
	err := n.read(func() error {
		ex, err := n.exchange(v)
		if err != nil {
			return err
		}
		deadline, err = ex.Deadline(id)
		return err
	})
	return deadline, err
}

// IDsByParty lists the ids of variant v requests in which addr takes role.
func (n *Node) IDsByParty(v Variant, role state.Party, addr [20]byte) ([][32]byte, error) {
	st, err := n.variantState(v)
	if err != nil {
		return nil, err
	}
	var ids [][32]byte
	err = n.read(func() error {
		var err error
		ids, err = st.BountyIDsByParty(role, addr)
		return err
	})
	return ids, err
}

// OpenRequests returns every funded, non-terminal request of both variants
// ordered by deadline.
func (n *Node) OpenRequests() ([]OpenRequest, error) {
	var out []OpenRequest
	err := n.read(func() error {
		for _, v := range []Variant{VariantRegistry, VariantFactory} {
			st, _ := n.variantState(v)
			ex, _ := n.exchange(v)
			ids, err := st.BountyIDs()
			if err != nil {
				return err
			}
			for _, id := range ids {
				req, err := ex.Get(id)
				if err != nil {
					return fmt.Errorf("load %s request %x: %w", v, id, err)
				}
				if req.Status == bounty.StatusOpen {
					out = append(out, OpenRequest{Variant: v, Request: req})
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Request.Deadline < out[j].Request.Deadline })
	return out, nil
}

// TokenList returns the metadata of every registered token.
func (n *Node) TokenList() []token.Metadata {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tokens.List()
}

// TokenBalanceOf returns owner's balance of the token at ref.
func (n *Node) TokenBalanceOf(ref, owner [20]byte) (*big.Int, error) {
	var out *big.Int
	err := n.read(func() error {
		l, err := n.tokens.Ledger(ref)
		if err != nil {
			return err
		}
		out, err = l.BalanceOf(owner)
		return err
	})
	return out, err
}

// TokenAllowance returns how much spender may move from owner's balance.
func (n *Node) TokenAllowance(ref, owner, spender [20]byte) (*big.Int, error) {
	var out *big.Int
	err := n.read(func() error {
		l, err := n.tokens.Ledger(ref)
		if err != nil {
			return err
		}
		out, err = l.Allowance(owner, spender)
		return err
	})
	return out, err
}

// TokenApprove sets spender's allowance over owner's balance.
func (n *Node) TokenApprove(ref, owner, spender [20]byte, amount *big.Int) error {
	return n.mutate(func() error {
		l, err := n.tokens.Ledger(ref)
		if err != nil {
			return err
		}
		return l.Approve(owner, spender, amount)
	})
}

// TokenTransfer moves amount from owner to recipient.
func (n *Node) TokenTransfer(ref, owner, recipient [20]byte, amount *big.Int) error {
	return n.mutate(func() error {
		l, err := n.tokens.Ledger(ref)
		if err != nil {
			return err
		}
		return l.Transfer(owner, recipient, amount)
	})
}

// TokenBySymbol resolves a token reference from its symbol.
func (n *Node) TokenBySymbol(symbol string) (token.Metadata, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, err := n.tokens.BySymbol(symbol)
	if err != nil {
		return token.Metadata{}, err
	}
	return l.Metadata(), nil
}

// Close releases the underlying database.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state.Discard()
	n.db.Close()
}
