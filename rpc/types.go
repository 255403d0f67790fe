package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"bountyexchange/core"
	"bountyexchange/crypto"
	"bountyexchange/native/bounty"
	"bountyexchange/native/token"
	"bountyexchange/storage/eventlog"
)

// BountyJSON is the wire form of a bounty request.
type BountyJSON struct {
	ID           string `json:"id"`
	Variant      string `json:"variant"`
	Requester    string `json:"requester"`
	Provider     string `json:"provider"`
	LockedToken  string `json:"lockedToken"`
	LockedAmount string `json:"lockedAmount"`
	BountyToken  string `json:"bountyToken"`
	BountyAmount string `json:"bountyAmount"`
	Duration     int64  `json:"duration"`
	Deadline     int64  `json:"deadline"`
	CreatedAt    int64  `json:"createdAt"`
	Custody      string `json:"custody"`
	Nonce        uint64 `json:"nonce"`
	Status       string `json:"status"`
}

// StatusResult acknowledges a settlement.
type StatusResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type ExpiredResult struct {
	ID      string `json:"id"`
	Expired bool   `json:"expired"`
}

type DeadlineResult struct {
	ID       string `json:"id"`
	Deadline int64  `json:"deadline"`
}

type InstanceResult struct {
	ID       string `json:"id"`
	Instance string `json:"instance"`
}

type IDListResult struct {
	Address string   `json:"address"`
	Variant string   `json:"variant"`
	IDs     []string `json:"ids"`
}

type TokenJSON struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Decimals uint8  `json:"decimals"`
}

type AmountResult struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type EventsResult struct {
	Events []eventlog.Record `json:"events"`
	// Next is the cursor to pass as "after" to continue paging.
	Next int64 `json:"next"`
}

// bountyCreateParams carries the terms of a new request in both variants.
type bountyCreateParams struct {
	LockedToken  string `json:"lockedToken"`
	LockedAmount string `json:"lockedAmount"`
	BountyToken  string `json:"bountyToken"`
	BountyAmount string `json:"bountyAmount"`
	Provider     string `json:"provider"`
	Duration     int64  `json:"duration"`
}

type idParams struct {
	ID string `json:"id"`
}

type partyParams struct {
	Address string `json:"address"`
	Variant string `json:"variant,omitempty"`
}

type balanceParams struct {
	Token string `json:"token"`
	Owner string `json:"owner"`
}

type allowanceParams struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
}

type approveParams struct {
	Token   string `json:"token"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type transferParams struct {
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type listEventsParams struct {
	After int64  `json:"after"`
	Limit int    `json:"limit"`
	Type  string `json:"type,omitempty"`
	ID    string `json:"id,omitempty"`
}

func formatBounty(v core.Variant, r *bounty.BountyRequest) BountyJSON {
	return BountyJSON{
		ID:           formatID(r.ID),
		Variant:      string(v),
		Requester:    crypto.FormatAddress(r.Requester),
		Provider:     crypto.FormatAddress(r.Provider),
		LockedToken:  crypto.FormatAddress(r.Locked.Token),
		LockedAmount: amountString(r.Locked.Amount),
		BountyToken:  crypto.FormatAddress(r.Bounty.Token),
		BountyAmount: amountString(r.Bounty.Amount),
		Duration:     r.Duration,
		Deadline:     r.Deadline,
		CreatedAt:    r.CreatedAt,
		Custody:      crypto.FormatAddress(r.Custody),
		Nonce:        r.Nonce,
		Status:       r.Status.String(),
	}
}

func formatToken(meta token.Metadata) TokenJSON {
	return TokenJSON{
		Address:  crypto.FormatAddress(meta.Address),
		Symbol:   meta.Symbol,
		Name:     meta.Name,
		Decimals: meta.Decimals,
	}
}

func formatID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseID(id string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return out, fmt.Errorf("id required")
	}
	cleaned := strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if len(cleaned) != 64 {
		return out, fmt.Errorf("id must be 32 bytes")
	}
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return out, err
	}
	copy(out[:], raw)
	return out, nil
}

func parsePositiveAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

func parseNonNegativeAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
