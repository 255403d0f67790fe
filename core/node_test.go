package core

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"bountyexchange/core/events"
	"bountyexchange/core/genesis"
	"bountyexchange/core/state"
	"bountyexchange/crypto"
	"bountyexchange/native/bounty"
	"bountyexchange/native/token"
	"bountyexchange/storage"
)

var (
	requesterAddr = [20]byte{0x0a}
	providerAddr  = [20]byte{0x0b}
)

type nodeFixture struct {
	node  *Node
	db    *storage.MemDB
	sink  *events.Buffer
	clock *int64
	gold  [20]byte
	gems  [20]byte
}

func newNodeFixture(t *testing.T) *nodeFixture {
	t.Helper()
	doc := "tokens:\n" +
		"  - symbol: GOLD\n" +
		"  - symbol: GEMS\n" +
		"alloc:\n" +
		"  " + crypto.FormatAddress(requesterAddr) + ":\n" +
		"    GOLD: \"100\"\n" +
		"  " + crypto.FormatAddress(providerAddr) + ":\n" +
		"    GEMS: \"100\"\n"
	spec, err := genesis.ParseGenesisSpec([]byte(doc))
	require.NoError(t, err)

	db := storage.NewMemDB()
	node, err := NewNode(db, nil)
	require.NoError(t, err)
	applied, err := node.ApplyGenesis(spec)
	require.NoError(t, err)
	require.True(t, applied)

	sink := &events.Buffer{}
	node.SetEmitter(sink)
	clock := int64(10_000)
	node.SetNowFunc(func() int64 { return clock })

	return &nodeFixture{
		node:  node,
		db:    db,
		sink:  sink,
		clock: &clock,
		gold:  token.DeriveAddress("GOLD"),
		gems:  token.DeriveAddress("GEMS"),
	}
}

func (f *nodeFixture) params() bounty.CreateParams {
	return bounty.CreateParams{
		LockedAmount: big.NewInt(60),
		LockedToken:  f.gold,
		BountyAmount: big.NewInt(25),
		BountyToken:  f.gems,
		Provider:     providerAddr,
		Duration:     300,
	}
}

func (f *nodeFixture) balance(t *testing.T, ref, owner [20]byte) int64 {
	t.Helper()
	bal, err := f.node.TokenBalanceOf(ref, owner)
	require.NoError(t, err)
	return bal.Int64()
}

func (f *nodeFixture) flushedTypes() []string {
	var out []string
	for _, evt := range f.sink.Flush(nil) {
		out = append(out, evt.EventType())
	}
	return out
}

func TestNodeRegistryLifecycle(t *testing.T) {
	f := newNodeFixture(t)
	f.sink.Reset()
	vault := f.node.RegistryVault()

	require.NoError(t, f.node.TokenApprove(f.gold, requesterAddr, vault, big.NewInt(60)))
	req, err := f.node.BountyCreate(requesterAddr, f.params())
	require.NoError(t, err)
	require.Equal(t, bounty.StatusOpen, req.Status)
	require.Equal(t, int64(10_300), req.Deadline)
	require.Equal(t, int64(60), f.balance(t, f.gold, vault))
	require.Equal(t, []string{
		events.TypeTokenApproval,
		events.TypeTokenTransfer,
		bounty.EventTypeBountyCreated,
	}, f.flushedTypes())

	require.NoError(t, f.node.TokenApprove(f.gems, providerAddr, vault, big.NewInt(25)))
	require.NoError(t, f.node.Submit(VariantRegistry, providerAddr, req.ID))
	require.Equal(t, int64(60), f.balance(t, f.gold, providerAddr))
	require.Equal(t, int64(25), f.balance(t, f.gems, requesterAddr))
	require.Equal(t, int64(0), f.balance(t, f.gold, vault))

	got, err := f.node.Get(VariantRegistry, req.ID)
	require.NoError(t, err)
	require.Equal(t, bounty.StatusFulfilled, got.Status)

	ids, err := f.node.IDsByParty(VariantRegistry, state.PartyProvider, providerAddr)
	require.NoError(t, err)
	require.Equal(t, [][32]byte{req.ID}, ids)
}

func TestNodeFailedOperationPublishesNothing(t *testing.T) {
	f := newNodeFixture(t)
	vault := f.node.RegistryVault()
	require.NoError(t, f.node.TokenApprove(f.gold, requesterAddr, vault, big.NewInt(60)))
	req, err := f.node.BountyCreate(requesterAddr, f.params())
	require.NoError(t, err)
	f.sink.Reset()

	// The provider never approved the bounty token.
	err = f.node.Submit(VariantRegistry, providerAddr, req.ID)
	require.True(t, errors.Is(err, bounty.ErrTransferFailed), "got %v", err)
	require.Equal(t, 0, f.sink.Len())
	require.Equal(t, int64(60), f.balance(t, f.gold, vault))

	got, err := f.node.Get(VariantRegistry, req.ID)
	require.NoError(t, err)
	require.Equal(t, bounty.StatusOpen, got.Status)
}

func TestNodeFactoryLifecycleAndReclaim(t *testing.T) {
	f := newNodeFixture(t)
	req, err := f.node.FactoryCreate(requesterAddr, f.params())
	require.NoError(t, err)
	require.Equal(t, bounty.StatusPending, req.Status)

	instance, err := f.node.FactoryInstance(req.ID)
	require.NoError(t, err)
	require.Equal(t, req.Custody, instance)

	expired, err := f.node.IsExpired(VariantFactory, req.ID)
	require.NoError(t, err)
	require.False(t, expired)

	require.NoError(t, f.node.TokenApprove(f.gold, requesterAddr, instance, big.NewInt(60)))
	opened, err := f.node.FactoryRequestBounty(requesterAddr, req.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10_300), opened.Deadline)
	require.Equal(t, int64(60), f.balance(t, f.gold, instance))

	err = f.node.Reclaim(VariantFactory, requesterAddr, req.ID)
	require.True(t, errors.Is(err, bounty.ErrNotYetExpired), "got %v", err)

	*f.clock = 10_300
	deadline, err := f.node.Deadline(VariantFactory, req.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10_300), deadline)
	require.NoError(t, f.node.Reclaim(VariantFactory, requesterAddr, req.ID))
	require.Equal(t, int64(100), f.balance(t, f.gold, requesterAddr))
	require.Equal(t, int64(0), f.balance(t, f.gold, instance))
}

func TestNodeOpenRequestsOrderedByDeadline(t *testing.T) {
	f := newNodeFixture(t)
	vault := f.node.RegistryVault()
	require.NoError(t, f.node.TokenApprove(f.gold, requesterAddr, vault, big.NewInt(100)))

	long := f.params()
	long.Duration = 900
	first, err := f.node.BountyCreate(requesterAddr, long)
	require.NoError(t, err)

	short := f.params()
	short.LockedAmount = big.NewInt(10)
	second, err := f.node.BountyCreate(requesterAddr, short)
	require.NoError(t, err)

	_, err = f.node.FactoryCreate(requesterAddr, f.params())
	require.NoError(t, err)

	open, err := f.node.OpenRequests()
	require.NoError(t, err)
	require.Len(t, open, 2)
	require.Equal(t, second.ID, open[0].Request.ID)
	require.Equal(t, first.ID, open[1].Request.ID)
	require.Equal(t, VariantRegistry, open[0].Variant)
}

func TestNodeStateSurvivesRestart(t *testing.T) {
	f := newNodeFixture(t)
	vault := f.node.RegistryVault()
	require.NoError(t, f.node.TokenApprove(f.gold, requesterAddr, vault, big.NewInt(60)))
	req, err := f.node.BountyCreate(requesterAddr, f.params())
	require.NoError(t, err)

	restarted, err := NewNode(f.db, nil)
	require.NoError(t, err)
	require.Len(t, restarted.TokenList(), 2)

	spec, err := genesis.ParseGenesisSpec([]byte("tokens:\n  - symbol: OTHER\n"))
	require.NoError(t, err)
	applied, err := restarted.ApplyGenesis(spec)
	require.NoError(t, err)
	require.False(t, applied)

	got, err := restarted.Get(VariantRegistry, req.ID)
	require.NoError(t, err)
	require.Equal(t, req.ID, got.ID)
	require.Equal(t, bounty.StatusOpen, got.Status)
	meta, err := restarted.TokenBySymbol("gold")
	require.NoError(t, err)
	require.Equal(t, f.gold, meta.Address)
}

func TestNodeRejectsUnknownVariant(t *testing.T) {
	f := newNodeFixture(t)
	_, err := f.node.Get(Variant("auction"), [32]byte{1})
	require.True(t, errors.Is(err, bounty.ErrInvalidParameters))
	_, err = ParseVariant("auction")
	require.Error(t, err)
	v, err := ParseVariant("factory")
	require.NoError(t, err)
	require.Equal(t, VariantFactory, v)
}
