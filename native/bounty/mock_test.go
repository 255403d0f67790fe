package bounty

import (
	"bytes"
	"fmt"
	"math/big"

	"bountyexchange/core/events"
	"bountyexchange/core/types"
)

type balanceKey struct {
	token [20]byte
	owner [20]byte
}

type allowanceKey struct {
	token   [20]byte
	owner   [20]byte
	spender [20]byte
}

type ledgerData struct {
	bounties   map[[20]byte]map[[32]byte]*BountyRequest
	instances  map[[32]byte][20]byte
	nonce      uint64
	indexed    [][32]byte
	balances   map[balanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
}

func (d *ledgerData) clone() *ledgerData {
	out := &ledgerData{
		bounties:   make(map[[20]byte]map[[32]byte]*BountyRequest, len(d.bounties)),
		instances:  make(map[[32]byte][20]byte, len(d.instances)),
		nonce:      d.nonce,
		indexed:    append([][32]byte(nil), d.indexed...),
		balances:   make(map[balanceKey]*big.Int, len(d.balances)),
		allowances: make(map[allowanceKey]*big.Int, len(d.allowances)),
	}
	for ns, records := range d.bounties {
		copied := make(map[[32]byte]*BountyRequest, len(records))
		for id, req := range records {
			copied[id] = req.Clone()
		}
		out.bounties[ns] = copied
	}
	for k, v := range d.instances {
		out.instances[k] = v
	}
	for k, v := range d.balances {
		out.balances[k] = new(big.Int).Set(v)
	}
	for k, v := range d.allowances {
		out.allowances[k] = new(big.Int).Set(v)
	}
	return out
}

// testLedger backs registry state, factory state, instance state and tokens
// with one journaled store so rollback covers balances and records alike.
type testLedger struct {
	data      *ledgerData
	snapshots []*ledgerData
	broken    map[[20]byte]bool
}

func newTestLedger() *testLedger {
	return &testLedger{
		data: &ledgerData{
			bounties:   make(map[[20]byte]map[[32]byte]*BountyRequest),
			instances:  make(map[[32]byte][20]byte),
			balances:   make(map[balanceKey]*big.Int),
			allowances: make(map[allowanceKey]*big.Int),
		},
		broken: make(map[[20]byte]bool),
	}
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func (l *testLedger) Snapshot() int {
	l.snapshots = append(l.snapshots, l.data.clone())
	return len(l.snapshots) - 1
}

func (l *testLedger) RevertToSnapshot(revision int) {
	if revision < 0 || revision >= len(l.snapshots) {
		return
	}
	l.data = l.snapshots[revision]
	l.snapshots = l.snapshots[:revision]
}

func (l *testLedger) scope(ns [20]byte) *scopedState { return &scopedState{ledger: l, ns: ns} }

func (l *testLedger) BountyPut(req *BountyRequest) error { return l.scope([20]byte{}).BountyPut(req) }

func (l *testLedger) BountyGet(id [32]byte) (*BountyRequest, bool, error) {
	return l.scope([20]byte{}).BountyGet(id)
}

func (l *testLedger) BountyNextNonce() (uint64, error) {
	n := l.data.nonce
	l.data.nonce++
	return n, nil
}

func (l *testLedger) BountyIndex(req *BountyRequest) error {
	l.data.indexed = append(l.data.indexed, req.ID)
	return nil
}

func (l *testLedger) FactoryInstancePut(id [32]byte, instance [20]byte) error {
	l.data.instances[id] = instance
	return nil
}

func (l *testLedger) FactoryInstanceGet(id [32]byte) ([20]byte, bool, error) {
	addr, ok := l.data.instances[id]
	return addr, ok, nil
}

func (l *testLedger) InstanceState(instance [20]byte) State { return l.scope(instance) }

func (l *testLedger) Token(ref [20]byte) (Token, error) {
	if ref == ([20]byte{}) {
		return nil, fmt.Errorf("unknown token")
	}
	return &testToken{ledger: l, ref: ref}, nil
}

func (l *testLedger) mint(token, owner [20]byte, amount int64) {
	key := balanceKey{token, owner}
	l.data.balances[key] = new(big.Int).Add(l.balance(token, owner), big.NewInt(amount))
}

func (l *testLedger) approve(token, owner, spender [20]byte, amount int64) {
	l.data.allowances[allowanceKey{token, owner, spender}] = big.NewInt(amount)
}

func (l *testLedger) balance(token, owner [20]byte) *big.Int {
	if v, ok := l.data.balances[balanceKey{token, owner}]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

type scopedState struct {
	ledger *testLedger
	ns     [20]byte
}

func (s *scopedState) BountyPut(req *BountyRequest) error {
	sanitized, err := SanitizeRequest(req)
	if err != nil {
		return err
	}
	records, ok := s.ledger.data.bounties[s.ns]
	if !ok {
		records = make(map[[32]byte]*BountyRequest)
		s.ledger.data.bounties[s.ns] = records
	}
	records[sanitized.ID] = sanitized
	return nil
}

func (s *scopedState) BountyGet(id [32]byte) (*BountyRequest, bool, error) {
	req, ok := s.ledger.data.bounties[s.ns][id]
	if !ok {
		return nil, false, nil
	}
	return req.Clone(), true, nil
}

type testToken struct {
	ledger *testLedger
	ref    [20]byte
}

func (t *testToken) Transfer(from, to [20]byte, amount *big.Int) error {
	if t.ledger.broken[t.ref] {
		return fmt.Errorf("token paused")
	}
	have := t.ledger.balance(t.ref, from)
	if have.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance")
	}
	t.ledger.data.balances[balanceKey{t.ref, from}] = have.Sub(have, amount)
	t.ledger.data.balances[balanceKey{t.ref, to}] = new(big.Int).Add(t.ledger.balance(t.ref, to), amount)
	return nil
}

func (t *testToken) TransferFrom(spender, owner, to [20]byte, amount *big.Int) error {
	key := allowanceKey{t.ref, owner, spender}
	allowed, ok := t.ledger.data.allowances[key]
	if !ok || allowed.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient allowance")
	}
	if err := t.Transfer(owner, to, amount); err != nil {
		return err
	}
	t.ledger.data.allowances[key] = new(big.Int).Sub(allowed, amount)
	return nil
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func (c *capturingEmitter) typesEvents() []*types.Event {
	out := make([]*types.Event, 0, len(c.events))
	for _, evt := range c.events {
		if wrapper, ok := evt.(bountyEvent); ok && wrapper.evt != nil {
			out = append(out, wrapper.evt)
		}
	}
	return out
}

type testClock struct {
	now int64
}

func (c *testClock) Now() int64 { return c.now }
