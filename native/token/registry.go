package token

import (
	"fmt"
	"sort"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"bountyexchange/core/events"
	"bountyexchange/core/state"
	"bountyexchange/native/bounty"
)

var tokenListKey = []byte("token/list")

// DeriveAddress returns the deterministic address of a token registered
// without an explicit one.
func DeriveAddress(symbol string) [20]byte {
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256([]byte("token/"+normalizeSymbol(symbol)))[12:])
	return out
}

// Registry keeps every token known to the exchange. Token metadata is
// persisted so a restarted node resolves the same references.
type Registry struct {
	mu       sync.RWMutex
	root     *state.Manager
	byAddr   map[[20]byte]*Ledger
	bySymbol map[string][20]byte
	emitter  events.Emitter
}

// NewRegistry creates a registry storing token data under root.
func NewRegistry(root *state.Manager) *Registry {
	return &Registry{
		root:     root,
		byAddr:   make(map[[20]byte]*Ledger),
		bySymbol: make(map[string][20]byte),
		emitter:  events.NoopEmitter{},
	}
}

// SetEmitter configures the sink for transfer, approval and mint events.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitter = emitter
	for _, l := range r.byAddr {
		l.emitter = emitter
	}
}

func (r *Registry) ledgerStore(addr [20]byte) Store {
	return r.root.Namespace(append([]byte("token/"), addr[:]...))
}

// Load restores every persisted token.
func (r *Registry) Load() error {
	var list []Metadata
	if err := r.root.KVGetList(tokenListKey, &list); err != nil {
		return fmt.Errorf("load tokens: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, meta := range list {
		r.track(meta)
	}
	return nil
}

func (r *Registry) track(meta Metadata) *Ledger {
	l := newLedger(meta, r.ledgerStore(meta.Address), r.emitter)
	r.byAddr[meta.Address] = l
	r.bySymbol[meta.Symbol] = meta.Address
	return l
}

// Register adds a token. A zero address is replaced by the address derived
// from the symbol.
func (r *Registry) Register(meta Metadata) (*Ledger, error) {
	meta.Symbol = normalizeSymbol(meta.Symbol)
	if meta.Symbol == "" {
		return nil, fmt.Errorf("token: symbol required")
	}
	if meta.Address == ([20]byte{}) {
		meta.Address = DeriveAddress(meta.Symbol)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byAddr[meta.Address]; ok {
		return nil, fmt.Errorf("%w: %x", ErrDuplicateToken, meta.Address)
	}
	if _, ok := r.bySymbol[meta.Symbol]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateToken, meta.Symbol)
	}
	var list []Metadata
	if err := r.root.KVGetList(tokenListKey, &list); err != nil {
		return nil, err
	}
	list = append(list, meta)
	if err := r.root.KVPut(tokenListKey, list); err != nil {
		return nil, err
	}
	return r.track(meta), nil
}

// Ledger returns the token at addr.
func (r *Registry) Ledger(addr [20]byte) (*Ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.byAddr[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrUnknownToken, addr)
	}
	return l, nil
}

// BySymbol resolves a token by its symbol.
func (r *Registry) BySymbol(symbol string) (*Ledger, error) {
	r.mu.RLock()
	addr, ok := r.bySymbol[normalizeSymbol(symbol)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	return r.Ledger(addr)
}

// Token implements bounty.TokenResolver.
func (r *Registry) Token(ref [20]byte) (bounty.Token, error) {
	return r.Ledger(ref)
}

// List returns the metadata of every token ordered by symbol.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.byAddr))
	for _, l := range r.byAddr {
		out = append(out, l.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

var _ bounty.TokenResolver = (*Registry)(nil)
