package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"bountyexchange/core/events"
)

var (
	ErrInvalidAmount         = errors.New("token: invalid amount")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrOverflow              = errors.New("token: amount overflows 256 bits")
	ErrUnknownToken          = errors.New("token: unknown token")
	ErrDuplicateToken        = errors.New("token: already registered")
)

// Store is the key/value surface a ledger persists balances through.
type Store interface {
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
}

// Metadata describes a registered token.
type Metadata struct {
	Address  [20]byte
	Symbol   string
	Name     string
	Decimals uint8
}

var (
	balancePrefix   = []byte("balance/")
	allowancePrefix = []byte("allowance/")
	supplyKey       = []byte("supply")
)

// Ledger is an ERC-20 style fungible token. Balances, allowances and the
// total supply are stored as 32-byte big-endian words so every amount is
// bounded by 2^256-1.
type Ledger struct {
	meta    Metadata
	store   Store
	emitter events.Emitter
}

func newLedger(meta Metadata, store Store, emitter events.Emitter) *Ledger {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Ledger{meta: meta, store: store, emitter: emitter}
}

// Metadata returns the token description.
func (l *Ledger) Metadata() Metadata { return l.meta }

func balanceKey(owner [20]byte) []byte {
	return append(append([]byte{}, balancePrefix...), owner[:]...)
}

func allowanceKey(owner, spender [20]byte) []byte {
	key := append(append([]byte{}, allowancePrefix...), owner[:]...)
	return append(key, spender[:]...)
}

func toWord(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	word, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrOverflow
	}
	return word, nil
}

func (l *Ledger) load(key []byte) (*uint256.Int, error) {
	var raw [32]byte
	if _, err := l.store.KVGet(key, &raw); err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes32(raw[:]), nil
}

func (l *Ledger) save(key []byte, value *uint256.Int) error {
	return l.store.KVPut(key, value.Bytes32())
}

// BalanceOf returns the balance held by owner.
func (l *Ledger) BalanceOf(owner [20]byte) (*big.Int, error) {
	bal, err := l.load(balanceKey(owner))
	if err != nil {
		return nil, err
	}
	return bal.ToBig(), nil
}

// Allowance returns how much spender may still move out of owner's balance.
func (l *Ledger) Allowance(owner, spender [20]byte) (*big.Int, error) {
	allowed, err := l.load(allowanceKey(owner, spender))
	if err != nil {
		return nil, err
	}
	return allowed.ToBig(), nil
}

// TotalSupply returns the amount minted so far.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	supply, err := l.load(supplyKey)
	if err != nil {
		return nil, err
	}
	return supply.ToBig(), nil
}

// Approve sets the allowance of spender over owner's balance, replacing any
// previous value.
func (l *Ledger) Approve(owner, spender [20]byte, amount *big.Int) error {
	word, err := toWord(amount)
	if err != nil {
		return err
	}
	if err := l.save(allowanceKey(owner, spender), word); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenApproval{
		Token:   l.meta.Address,
		Symbol:  l.meta.Symbol,
		Owner:   owner,
		Spender: spender,
		Amount:  word.ToBig(),
	})
	return nil
}

// Transfer moves amount out of from's balance. Nothing changes if the balance
// is insufficient.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	word, err := toWord(amount)
	if err != nil {
		return err
	}
	return l.move(from, to, word)
}

// TransferFrom moves amount from owner to to on behalf of spender, consuming
// the allowance owner granted to spender.
func (l *Ledger) TransferFrom(spender, owner, to [20]byte, amount *big.Int) error {
	word, err := toWord(amount)
	if err != nil {
		return err
	}
	key := allowanceKey(owner, spender)
	allowed, err := l.load(key)
	if err != nil {
		return err
	}
	if allowed.Lt(word) {
		return fmt.Errorf("%w: %s allowed, %s requested", ErrInsufficientAllowance, allowed.Dec(), word.Dec())
	}
	bal, err := l.load(balanceKey(owner))
	if err != nil {
		return err
	}
	if bal.Lt(word) {
		return fmt.Errorf("%w: %s available, %s requested", ErrInsufficientBalance, bal.Dec(), word.Dec())
	}
	if err := l.save(key, new(uint256.Int).Sub(allowed, word)); err != nil {
		return err
	}
	return l.move(owner, to, word)
}

func (l *Ledger) move(from, to [20]byte, amount *uint256.Int) error {
	fromBal, err := l.load(balanceKey(from))
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s available, %s requested", ErrInsufficientBalance, fromBal.Dec(), amount.Dec())
	}
	if from != to {
		toBal, err := l.load(balanceKey(to))
		if err != nil {
			return err
		}
		credited, overflow := new(uint256.Int).AddOverflow(toBal, amount)
		if overflow {
			return ErrOverflow
		}
		if err := l.save(balanceKey(from), new(uint256.Int).Sub(fromBal, amount)); err != nil {
			return err
		}
		if err := l.save(balanceKey(to), credited); err != nil {
			return err
		}
	}
	l.emitter.Emit(events.TokenTransfer{
		Token:  l.meta.Address,
		Symbol: l.meta.Symbol,
		From:   from,
		To:     to,
		Amount: amount.ToBig(),
	})
	return nil
}

// Mint credits to with newly issued tokens and raises the total supply.
func (l *Ledger) Mint(to [20]byte, amount *big.Int) error {
	word, err := toWord(amount)
	if err != nil {
		return err
	}
	supply, err := l.load(supplyKey)
	if err != nil {
		return err
	}
	total, overflow := new(uint256.Int).AddOverflow(supply, word)
	if overflow {
		return ErrOverflow
	}
	bal, err := l.load(balanceKey(to))
	if err != nil {
		return err
	}
	credited, overflow := new(uint256.Int).AddOverflow(bal, word)
	if overflow {
		return ErrOverflow
	}
	if err := l.save(supplyKey, total); err != nil {
		return err
	}
	if err := l.save(balanceKey(to), credited); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenMint{
		Token:  l.meta.Address,
		Symbol: l.meta.Symbol,
		To:     to,
		Amount: word.ToBig(),
		Total:  total.ToBig(),
	})
	return nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
