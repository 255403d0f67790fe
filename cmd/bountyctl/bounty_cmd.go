package main

import (
	"fmt"
	"strings"
)

func bountyUsage() string {
	return strings.TrimSpace(`Usage:
  bountyctl bounty <command> [flags]

Commands:
  create   Open a request (--variant registry|factory)
  fund     Fund a pending factory request with the bounty asset
  submit   Fulfil a request as its provider
  reclaim  Recover the locked asset after the deadline
  get      Show a request
  deadline Show a request's deadline
  expired  Report whether a request is past its deadline
  list     List request ids by requester or provider
  events   Page through the event log`)
}

func (e *cmdEnv) runBounty(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(e.stderr, bountyUsage())
		return 1
	}
	switch args[0] {
	case "create":
		return e.runBountyCreate(args[1:])
	case "fund":
		return e.runBountyID("fund", args[1:], true)
	case "submit":
		return e.runBountyID("submit", args[1:], true)
	case "reclaim":
		return e.runBountyID("reclaim", args[1:], true)
	case "get":
		return e.runBountyID("get", args[1:], false)
	case "deadline":
		return e.runBountyID("getDeadline", args[1:], false)
	case "expired":
		return e.runBountyID("isExpired", args[1:], false)
	case "list":
		return e.runBountyList(args[1:])
	case "events":
		return e.runBountyEvents(args[1:])
	default:
		fmt.Fprintf(e.stderr, "Unknown bounty subcommand: %s\n", args[0])
		fmt.Fprintln(e.stderr, bountyUsage())
		return 1
	}
}

// variantMethod maps an action onto the method namespace of a variant.
func variantMethod(variant, action string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(variant)) {
	case "", "registry":
		switch action {
		case "create":
			return "bounty_create", nil
		case "fund":
			return "", fmt.Errorf("registry requests are funded at creation")
		}
		return "bounty_" + action, nil
	case "factory":
		switch action {
		case "create":
			return "factory_createBountyRequest", nil
		case "fund":
			return "factory_requestBounty", nil
		}
		return "factory_" + action, nil
	default:
		return "", fmt.Errorf("--variant must be registry or factory")
	}
}

func (e *cmdEnv) runBountyCreate(args []string) int {
	fs := e.flagSet("bounty create")
	variant := fs.String("variant", "registry", "registry or factory")
	keystorePath := fs.String("keystore", "", "requester keystore")
	lockedToken := fs.String("locked-token", "", "token address or symbol escrowed by the requester")
	lockedAmount := fs.String("locked-amount", "", "amount of the locked token")
	bountyToken := fs.String("bounty-token", "", "token address or symbol the provider must deliver")
	bountyAmount := fs.String("bounty-amount", "", "amount of the bounty token")
	provider := fs.String("provider", "", "provider address")
	duration := fs.Int64("duration", 0, "seconds the provider has to fulfil the request")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	method, err := variantMethod(*variant, "create")
	if err != nil {
		return e.fail(err.Error())
	}
	required := []struct{ name, value string }{
		{"--locked-token", *lockedToken},
		{"--locked-amount", *lockedAmount},
		{"--bounty-token", *bountyToken},
		{"--bounty-amount", *bountyAmount},
		{"--provider", *provider},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return e.fail(f.name + " is required")
		}
	}
	if *duration <= 0 {
		return e.fail("--duration must be positive")
	}
	key, err := e.loadKey(*keystorePath)
	if err != nil {
		return e.fail(err.Error())
	}
	return e.send(method, map[string]interface{}{
		"lockedToken":  strings.TrimSpace(*lockedToken),
		"lockedAmount": strings.TrimSpace(*lockedAmount),
		"bountyToken":  strings.TrimSpace(*bountyToken),
		"bountyAmount": strings.TrimSpace(*bountyAmount),
		"provider":     strings.TrimSpace(*provider),
		"duration":     *duration,
	}, key)
}

func (e *cmdEnv) runBountyID(action string, args []string, signed bool) int {
	fs := e.flagSet("bounty " + action)
	variant := fs.String("variant", "registry", "registry or factory")
	id := fs.String("id", "", "0x-prefixed request id")
	var keystorePath *string
	if signed {
		keystorePath = fs.String("keystore", "", "caller keystore")
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	method, err := variantMethod(*variant, action)
	if err != nil {
		return e.fail(err.Error())
	}
	if err := validateID(*id); err != nil {
		return e.fail(err.Error())
	}
	params := map[string]interface{}{"id": strings.TrimSpace(*id)}
	if !signed {
		return e.send(method, params, nil)
	}
	key, err := e.loadKey(*keystorePath)
	if err != nil {
		return e.fail(err.Error())
	}
	return e.send(method, params, key)
}

func (e *cmdEnv) runBountyList(args []string) int {
	fs := e.flagSet("bounty list")
	variant := fs.String("variant", "registry", "registry or factory")
	requester := fs.String("requester", "", "list requests opened by this address")
	provider := fs.String("provider", "", "list requests naming this provider")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	r, p := strings.TrimSpace(*requester), strings.TrimSpace(*provider)
	switch {
	case r != "" && p != "":
		return e.fail("pass only one of --requester or --provider")
	case r != "":
		return e.send("bounty_listByRequester", map[string]interface{}{"address": r, "variant": *variant}, nil)
	case p != "":
		return e.send("bounty_listByProvider", map[string]interface{}{"address": p, "variant": *variant}, nil)
	default:
		return e.fail("--requester or --provider is required")
	}
}

func (e *cmdEnv) runBountyEvents(args []string) int {
	fs := e.flagSet("bounty events")
	after := fs.Int64("after", 0, "return events after this sequence")
	limit := fs.Int("limit", 0, "maximum number of events")
	eventType := fs.String("type", "", "only events of this type")
	id := fs.String("id", "", "only events for this request id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	params := map[string]interface{}{"after": *after}
	if *limit > 0 {
		params["limit"] = *limit
	}
	if t := strings.TrimSpace(*eventType); t != "" {
		params["type"] = t
	}
	if trimmed := strings.TrimSpace(*id); trimmed != "" {
		if err := validateID(trimmed); err != nil {
			return e.fail(err.Error())
		}
		params["id"] = trimmed
	}
	return e.send("bounty_listEvents", params, nil)
}

func validateID(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("--id is required")
	}
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return fmt.Errorf("--id must be a 0x-prefixed 32-byte hex string")
	}
	cleaned := trimmed[2:]
	if len(cleaned) != 64 {
		return fmt.Errorf("--id must be a 0x-prefixed 32-byte hex string")
	}
	for _, r := range cleaned {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return fmt.Errorf("--id must contain only hexadecimal characters")
		}
	}
	return nil
}
