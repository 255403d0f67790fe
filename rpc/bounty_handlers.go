package rpc

import (
	"context"
	"strings"

	"bountyexchange/core"
	"bountyexchange/core/state"
	"bountyexchange/crypto"
	"bountyexchange/native/bounty"
	"bountyexchange/storage/eventlog"
)

func (s *Server) registerMethods() map[string]method {
	return map[string]method{
		"bounty_create":      {signed: true, fn: s.handleBountyCreate},
		"bounty_submit":      {signed: true, fn: s.settle(core.VariantRegistry, s.node.Submit, bounty.StatusFulfilled)},
		"bounty_reclaim":     {signed: true, fn: s.settle(core.VariantRegistry, s.node.Reclaim, bounty.StatusReclaimed)},
		"bounty_get":         {fn: s.handleGet(core.VariantRegistry)},
		"bounty_isExpired":   {fn: s.handleIsExpired(core.VariantRegistry)},
		"bounty_getDeadline": {fn: s.handleDeadline(core.VariantRegistry)},
		"bounty_vault":       {fn: s.handleVault},

		"factory_createBountyRequest": {signed: true, fn: s.handleFactoryCreate},
		"factory_requestBounty":       {signed: true, fn: s.handleFactoryRequestBounty},
		"factory_submit":              {signed: true, fn: s.settle(core.VariantFactory, s.node.Submit, bounty.StatusFulfilled)},
		"factory_reclaim":             {signed: true, fn: s.settle(core.VariantFactory, s.node.Reclaim, bounty.StatusReclaimed)},
		"factory_get":                 {fn: s.handleGet(core.VariantFactory)},
		"factory_isExpired":           {fn: s.handleIsExpired(core.VariantFactory)},
		"factory_getDeadline":         {fn: s.handleDeadline(core.VariantFactory)},
		"factory_instance":            {fn: s.handleFactoryInstance},

		"bounty_listByRequester": {fn: s.handleListByParty(state.PartyRequester)},
		"bounty_listByProvider":  {fn: s.handleListByParty(state.PartyProvider)},
		"bounty_listEvents":      {fn: s.handleListEvents},

		"token_list":      {fn: s.handleTokenList},
		"token_balanceOf": {fn: s.handleTokenBalanceOf},
		"token_allowance": {fn: s.handleTokenAllowance},
		"token_approve":   {signed: true, fn: s.handleTokenApprove},
		"token_transfer":  {signed: true, fn: s.handleTokenTransfer},
	}
}

func (s *Server) createParams(c *call) (bounty.CreateParams, error) {
	var params bountyCreateParams
	if err := c.decode(&params); err != nil {
		return bounty.CreateParams{}, err
	}
	lockedToken, err := s.resolveToken(params.LockedToken)
	if err != nil {
		return bounty.CreateParams{}, err
	}
	bountyToken, err := s.resolveToken(params.BountyToken)
	if err != nil {
		return bounty.CreateParams{}, err
	}
	lockedAmount, err := parsePositiveAmount(params.LockedAmount)
	if err != nil {
		return bounty.CreateParams{}, newParamError("lockedAmount: " + err.Error())
	}
	bountyAmount, err := parsePositiveAmount(params.BountyAmount)
	if err != nil {
		return bounty.CreateParams{}, newParamError("bountyAmount: " + err.Error())
	}
	provider, err := crypto.ParseAddress(params.Provider)
	if err != nil {
		return bounty.CreateParams{}, newParamError("provider: " + err.Error())
	}
	return bounty.CreateParams{
		LockedAmount: lockedAmount,
		LockedToken:  lockedToken,
		BountyAmount: bountyAmount,
		BountyToken:  bountyToken,
		Provider:     provider,
		Duration:     params.Duration,
	}, nil
}

func (s *Server) handleBountyCreate(_ context.Context, c *call) (interface{}, error) {
	params, err := s.createParams(c)
	if err != nil {
		return nil, err
	}
	req, err := s.node.BountyCreate(c.caller, params)
	if err != nil {
		return nil, err
	}
	return formatBounty(core.VariantRegistry, req), nil
}

func (s *Server) handleFactoryCreate(_ context.Context, c *call) (interface{}, error) {
	params, err := s.createParams(c)
	if err != nil {
		return nil, err
	}
	req, err := s.node.FactoryCreate(c.caller, params)
	if err != nil {
		return nil, err
	}
	return formatBounty(core.VariantFactory, req), nil
}

func (s *Server) handleFactoryRequestBounty(_ context.Context, c *call) (interface{}, error) {
	id, err := decodeID(c)
	if err != nil {
		return nil, err
	}
	req, err := s.node.FactoryRequestBounty(c.caller, id)
	if err != nil {
		return nil, err
	}
	return formatBounty(core.VariantFactory, req), nil
}

type settleFunc func(v core.Variant, caller [20]byte, id [32]byte) error

func (s *Server) settle(v core.Variant, fn settleFunc, status bounty.Status) handlerFunc {
	return func(_ context.Context, c *call) (interface{}, error) {
		id, err := decodeID(c)
		if err != nil {
			return nil, err
		}
		if err := fn(v, c.caller, id); err != nil {
			return nil, err
		}
		return StatusResult{ID: formatID(id), Status: status.String()}, nil
	}
}

func (s *Server) handleGet(v core.Variant) handlerFunc {
	return func(_ context.Context, c *call) (interface{}, error) {
		id, err := decodeID(c)
		if err != nil {
			return nil, err
		}
		req, err := s.node.Get(v, id)
		if err != nil {
			return nil, err
		}
		return formatBounty(v, req), nil
	}
}

func (s *Server) handleIsExpired(v core.Variant) handlerFunc {
	return func(_ context.Context, c *call) (interface{}, error) {
		id, err := decodeID(c)
		if err != nil {
			return nil, err
		}
		expired, err := s.node.IsExpired(v, id)
		if err != nil {
			return nil, err
		}
		return ExpiredResult{ID: formatID(id), Expired: expired}, nil
	}
}

func (s *Server) handleDeadline(v core.Variant) handlerFunc {
	return func(_ context.Context, c *call) (interface{}, error) {
		id, err := decodeID(c)
		if err != nil {
			return nil, err
		}
		deadline, err := s.node.Deadline(v, id)
		if err != nil {
			return nil, err
		}
		return DeadlineResult{ID: formatID(id), Deadline: deadline}, nil
	}
}

func (s *Server) handleFactoryInstance(_ context.Context, c *call) (interface{}, error) {
	id, err := decodeID(c)
	if err != nil {
		return nil, err
	}
	addr, err := s.node.FactoryInstance(id)
	if err != nil {
		return nil, err
	}
	return InstanceResult{ID: formatID(id), Instance: crypto.FormatAddress(addr)}, nil
}

func (s *Server) handleVault(_ context.Context, _ *call) (interface{}, error) {
	return map[string]string{"vault": crypto.FormatAddress(s.node.RegistryVault())}, nil
}

func (s *Server) handleListByParty(role state.Party) handlerFunc {
	return func(_ context.Context, c *call) (interface{}, error) {
		var params partyParams
		if err := c.decode(&params); err != nil {
			return nil, err
		}
		addr, err := crypto.ParseAddress(params.Address)
		if err != nil {
			return nil, newParamError("address: " + err.Error())
		}
		variant := core.VariantRegistry
		if strings.TrimSpace(params.Variant) != "" {
			if variant, err = core.ParseVariant(strings.TrimSpace(params.Variant)); err != nil {
				return nil, err
			}
		}
		ids, err := s.node.IDsByParty(variant, role, addr)
		if err != nil {
			return nil, err
		}
		out := IDListResult{Address: crypto.FormatAddress(addr), Variant: string(variant), IDs: make([]string, 0, len(ids))}
		for _, id := range ids {
			out.IDs = append(out.IDs, formatID(id))
		}
		return out, nil
	}
}

func (s *Server) handleListEvents(ctx context.Context, c *call) (interface{}, error) {
	var params listEventsParams
	if len(c.params) > 0 {
		if err := c.decode(&params); err != nil {
			return nil, err
		}
	}
	if params.After < 0 {
		return nil, newParamError("after must not be negative")
	}
	if s.events == nil {
		return EventsResult{Events: []eventlog.Record{}, Next: params.After}, nil
	}
	records, err := s.events.List(ctx, eventlog.Filter{
		After:     params.After,
		Type:      params.Type,
		RequestID: params.ID,
		Limit:     params.Limit,
	})
	if err != nil {
		return nil, err
	}
	next := params.After
	if len(records) > 0 {
		next = records[len(records)-1].Sequence
	} else {
		records = []eventlog.Record{}
	}
	return EventsResult{Events: records, Next: next}, nil
}

func decodeID(c *call) ([32]byte, error) {
	var params idParams
	if err := c.decode(&params); err != nil {
		return [32]byte{}, err
	}
	id, err := parseID(params.ID)
	if err != nil {
		return [32]byte{}, newParamError("id: " + err.Error())
	}
	return id, nil
}
