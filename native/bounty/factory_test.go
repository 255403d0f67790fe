package bounty

import (
	"errors"
	"math/big"
	"testing"
)

type factoryFixture struct {
	ledger  *testLedger
	factory *Factory
	clock   *testClock
	emitter *capturingEmitter
}

func newFactoryFixture(t *testing.T) *factoryFixture {
	t.Helper()
	ledger := newTestLedger()
	clock := &testClock{now: 5_000}
	emitter := &capturingEmitter{}
	factory := NewFactory(ledger, ledger)
	factory.SetJournal(ledger)
	factory.SetNowFunc(clock.Now)
	factory.SetEmitter(emitter)
	return &factoryFixture{ledger: ledger, factory: factory, clock: clock, emitter: emitter}
}

func (f *factoryFixture) create(t *testing.T) *BountyRequest {
	t.Helper()
	req, err := f.factory.CreateBountyRequest(requester, defaultParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return req
}

func (f *factoryFixture) fund(t *testing.T, req *BountyRequest) *BountyRequest {
	t.Helper()
	f.ledger.mint(tokenA, requester, 40)
	f.ledger.approve(tokenA, requester, req.Custody, 40)
	funded, err := f.factory.RequestBounty(requester, req.ID)
	if err != nil {
		t.Fatalf("request bounty: %v", err)
	}
	return funded
}

func TestFactoryCreateDeploysPendingInstance(t *testing.T) {
	f := newFactoryFixture(t)
	req := f.create(t)

	if req.Status != StatusPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}
	inst, err := f.factory.Instance(req.ID)
	if err != nil {
		t.Fatalf("instance: %v", err)
	}
	if inst.Address() != req.Custody || inst.ID() != req.ID {
		t.Fatalf("instance does not match request")
	}
	if inst.Address() == f.factory.Address() {
		t.Fatalf("instance must not share the factory address")
	}
	if d, err := f.factory.Deadline(req.ID); err != nil || d != 0 {
		t.Fatalf("expected zero deadline before funding, got %d (%v)", d, err)
	}
	f.clock.now += 1_000_000
	if expired, err := f.factory.IsExpired(req.ID); err != nil || expired {
		t.Fatalf("unfunded instance must not report expiry")
	}
	if err := f.factory.Submit(provider, req.ID); !errors.Is(err, ErrNotFunded) {
		t.Fatalf("expected ErrNotFunded, got %v", err)
	}
	if err := f.factory.Reclaim(requester, req.ID); !errors.Is(err, ErrNotFunded) {
		t.Fatalf("expected ErrNotFunded, got %v", err)
	}
	evts := f.emitter.typesEvents()
	if len(evts) != 1 || evts[0].Type != EventTypeFactoryCreated {
		t.Fatalf("expected factory created event, got %+v", evts)
	}
	if evts[0].Attributes["instance"] == "" {
		t.Fatalf("factory event missing instance attribute")
	}
}

func TestFactoryInstancesAreDistinct(t *testing.T) {
	f := newFactoryFixture(t)
	first := f.create(t)
	second := f.create(t)
	if first.ID == second.ID {
		t.Fatalf("expected distinct ids")
	}
	if first.Custody == second.Custody {
		t.Fatalf("expected distinct instance addresses")
	}
}

func TestFactoryRequestBountyFundsInstance(t *testing.T) {
	f := newFactoryFixture(t)
	req := f.create(t)

	f.ledger.mint(tokenA, requester, 40)
	f.ledger.approve(tokenA, requester, req.Custody, 40)
	if _, err := f.factory.RequestBounty(stranger, req.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	f.clock.now = 7_000
	funded, err := f.factory.RequestBounty(requester, req.ID)
	if err != nil {
		t.Fatalf("request bounty: %v", err)
	}
	if funded.Status != StatusOpen || funded.Deadline != 7_000+3600 {
		t.Fatalf("unexpected funded record %+v", funded)
	}
	if got := f.ledger.balance(tokenA, req.Custody); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("instance balance = %s, want 40", got)
	}
	if _, err := f.factory.RequestBounty(requester, req.ID); !errors.Is(err, ErrAlreadyFunded) {
		t.Fatalf("expected ErrAlreadyFunded, got %v", err)
	}
	evts := f.emitter.typesEvents()
	if evts[len(evts)-1].Type != EventTypeBountyCreated {
		t.Fatalf("expected created event after funding")
	}
}

func TestFactoryRequestBountyWithoutAllowanceStaysPending(t *testing.T) {
	f := newFactoryFixture(t)
	req := f.create(t)
	f.ledger.mint(tokenA, requester, 40)

	if _, err := f.factory.RequestBounty(requester, req.ID); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	stored, _ := f.factory.Get(req.ID)
	if stored.Status != StatusPending || stored.Deadline != 0 {
		t.Fatalf("instance must stay pending, got %s deadline %d", stored.Status, stored.Deadline)
	}
}

func TestFactorySubmitAndReclaimPerInstance(t *testing.T) {
	f := newFactoryFixture(t)
	first := f.fund(t, f.create(t))
	second := f.fund(t, f.create(t))

	f.ledger.mint(tokenB, provider, 30)
	f.ledger.approve(tokenB, provider, first.Custody, 30)
	if err := f.factory.Submit(provider, first.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := f.ledger.balance(tokenA, provider); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("provider balance = %s, want 40", got)
	}
	if got := f.ledger.balance(tokenA, second.Custody); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("second instance must keep its funds, holds %s", got)
	}

	f.clock.now = second.Deadline
	if err := f.factory.Reclaim(requester, second.ID); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if got := f.ledger.balance(tokenA, requester); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("requester balance = %s, want 40", got)
	}
	if err := f.factory.Reclaim(requester, first.ID); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
	if _, err := f.factory.RequestBounty(requester, first.ID); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal on settled instance, got %v", err)
	}
}

func TestFactoryUnknownID(t *testing.T) {
	f := newFactoryFixture(t)
	if _, err := f.factory.Instance([32]byte{7}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.factory.Get([32]byte{7}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFactoryCreateValidates(t *testing.T) {
	f := newFactoryFixture(t)
	params := defaultParams()
	params.Duration = 0
	if _, err := f.factory.CreateBountyRequest(requester, params); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected ErrInvalidParameters, got %v", err)
	}
	if _, err := f.factory.CreateBountyRequest([20]byte{}, defaultParams()); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected ErrInvalidParameters for zero requester, got %v", err)
	}
}
