package rpc

import (
	"context"
	"strings"

	"bountyexchange/crypto"
)

// resolveToken accepts a token address or a registered symbol.
func (s *Server) resolveToken(ref string) ([20]byte, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return [20]byte{}, newParamError("token required")
	}
	if addr, err := crypto.ParseAddress(trimmed); err == nil {
		return addr, nil
	}
	meta, err := s.node.TokenBySymbol(trimmed)
	if err != nil {
		return [20]byte{}, err
	}
	return meta.Address, nil
}

func (s *Server) handleTokenList(_ context.Context, _ *call) (interface{}, error) {
	list := s.node.TokenList()
	out := make([]TokenJSON, 0, len(list))
	for _, meta := range list {
		out = append(out, formatToken(meta))
	}
	return out, nil
}

func (s *Server) handleTokenBalanceOf(_ context.Context, c *call) (interface{}, error) {
	var params balanceParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	ref, err := s.resolveToken(params.Token)
	if err != nil {
		return nil, err
	}
	owner, err := crypto.ParseAddress(params.Owner)
	if err != nil {
		return nil, newParamError("owner: " + err.Error())
	}
	bal, err := s.node.TokenBalanceOf(ref, owner)
	if err != nil {
		return nil, err
	}
	return AmountResult{Token: crypto.FormatAddress(ref), Amount: amountString(bal)}, nil
}

func (s *Server) handleTokenAllowance(_ context.Context, c *call) (interface{}, error) {
	var params allowanceParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	ref, err := s.resolveToken(params.Token)
	if err != nil {
		return nil, err
	}
	owner, err := crypto.ParseAddress(params.Owner)
	if err != nil {
		return nil, newParamError("owner: " + err.Error())
	}
	spender, err := crypto.ParseAddress(params.Spender)
	if err != nil {
		return nil, newParamError("spender: " + err.Error())
	}
	allowed, err := s.node.TokenAllowance(ref, owner, spender)
	if err != nil {
		return nil, err
	}
	return AmountResult{Token: crypto.FormatAddress(ref), Amount: amountString(allowed)}, nil
}

func (s *Server) handleTokenApprove(_ context.Context, c *call) (interface{}, error) {
	var params approveParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	ref, err := s.resolveToken(params.Token)
	if err != nil {
		return nil, err
	}
	spender, err := crypto.ParseAddress(params.Spender)
	if err != nil {
		return nil, newParamError("spender: " + err.Error())
	}
	amount, err := parseNonNegativeAmount(params.Amount)
	if err != nil {
		return nil, newParamError("amount: " + err.Error())
	}
	if err := s.node.TokenApprove(ref, c.caller, spender, amount); err != nil {
		return nil, err
	}
	return AmountResult{Token: crypto.FormatAddress(ref), Amount: amount.String()}, nil
}

func (s *Server) handleTokenTransfer(_ context.Context, c *call) (interface{}, error) {
	var params transferParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	ref, err := s.resolveToken(params.Token)
	if err != nil {
		return nil, err
	}
	to, err := crypto.ParseAddress(params.To)
	if err != nil {
		return nil, newParamError("to: " + err.Error())
	}
	amount, err := parsePositiveAmount(params.Amount)
	if err != nil {
		return nil, newParamError("amount: " + err.Error())
	}
	if err := s.node.TokenTransfer(ref, c.caller, to, amount); err != nil {
		return nil, err
	}
	return AmountResult{Token: crypto.FormatAddress(ref), Amount: amount.String()}, nil
}
