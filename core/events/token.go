package events

import (
	"math/big"

	"bountyexchange/core/types"
	"bountyexchange/crypto"
)

const (
	// TypeTokenTransfer is emitted for every balance movement of a token.
	TypeTokenTransfer = "token.transfer"
	// TypeTokenApproval is emitted when an owner sets a spender allowance.
	TypeTokenApproval = "token.approval"
	// TypeTokenMint is emitted when genesis allocations credit an account.
	TypeTokenMint = "token.mint"
)

type TokenTransfer struct {
	Token  [20]byte
	Symbol string
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Event() *types.Event {
	attrs := map[string]string{
		"token":  crypto.FormatAddress(e.Token),
		"from":   crypto.FormatAddress(e.From),
		"to":     crypto.FormatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}
	if symbol := normalizeSymbol(e.Symbol); symbol != "" {
		attrs["symbol"] = symbol
	}
	return &types.Event{Type: TypeTokenTransfer, Attributes: attrs}
}

type TokenApproval struct {
	Token   [20]byte
	Symbol  string
	Owner   [20]byte
	Spender [20]byte
	Amount  *big.Int
}

func (TokenApproval) EventType() string { return TypeTokenApproval }

func (e TokenApproval) Event() *types.Event {
	attrs := map[string]string{
		"token":   crypto.FormatAddress(e.Token),
		"owner":   crypto.FormatAddress(e.Owner),
		"spender": crypto.FormatAddress(e.Spender),
		"amount":  formatAmount(e.Amount),
	}
	if symbol := normalizeSymbol(e.Symbol); symbol != "" {
		attrs["symbol"] = symbol
	}
	return &types.Event{Type: TypeTokenApproval, Attributes: attrs}
}

type TokenMint struct {
	Token  [20]byte
	Symbol string
	To     [20]byte
	Amount *big.Int
	Total  *big.Int
}

func (TokenMint) EventType() string { return TypeTokenMint }

func (e TokenMint) Event() *types.Event {
	attrs := map[string]string{
		"token":  crypto.FormatAddress(e.Token),
		"to":     crypto.FormatAddress(e.To),
		"amount": formatAmount(e.Amount),
		"total":  formatAmount(e.Total),
	}
	if symbol := normalizeSymbol(e.Symbol); symbol != "" {
		attrs["symbol"] = symbol
	}
	return &types.Event{Type: TypeTokenMint, Attributes: attrs}
}
