package main

import (
	"fmt"
	"strings"
)

func tokenUsage() string {
	return strings.TrimSpace(`Usage:
  bountyctl token <command> [flags]

Commands:
  list       List registered tokens
  balance    Show a balance (--token, --owner)
  allowance  Show an allowance (--token, --owner, --spender)
  approve    Approve a spender, e.g. the registry vault or a factory instance
  transfer   Transfer tokens to another address`)
}

func (e *cmdEnv) runToken(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(e.stderr, tokenUsage())
		return 1
	}
	switch args[0] {
	case "list":
		return e.send("token_list", nil, nil)
	case "balance":
		fs := e.flagSet("token balance")
		token := fs.String("token", "", "token address or symbol")
		owner := fs.String("owner", "", "account address")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		if *token == "" || *owner == "" {
			return e.fail("--token and --owner are required")
		}
		return e.send("token_balanceOf", map[string]interface{}{"token": *token, "owner": *owner}, nil)
	case "allowance":
		fs := e.flagSet("token allowance")
		token := fs.String("token", "", "token address or symbol")
		owner := fs.String("owner", "", "account address")
		spender := fs.String("spender", "", "spender address")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		if *token == "" || *owner == "" || *spender == "" {
			return e.fail("--token, --owner and --spender are required")
		}
		return e.send("token_allowance", map[string]interface{}{"token": *token, "owner": *owner, "spender": *spender}, nil)
	case "approve", "transfer":
		fs := e.flagSet("token " + args[0])
		keystorePath := fs.String("keystore", "", "owner keystore")
		token := fs.String("token", "", "token address or symbol")
		counterparty := fs.String("to", "", "spender (approve) or recipient (transfer) address")
		amount := fs.String("amount", "", "amount in base units")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		if *token == "" || *counterparty == "" || *amount == "" {
			return e.fail("--token, --to and --amount are required")
		}
		key, err := e.loadKey(*keystorePath)
		if err != nil {
			return e.fail(err.Error())
		}
		if args[0] == "approve" {
			return e.send("token_approve", map[string]interface{}{"token": *token, "spender": *counterparty, "amount": *amount}, key)
		}
		return e.send("token_transfer", map[string]interface{}{"token": *token, "to": *counterparty, "amount": *amount}, key)
	default:
		fmt.Fprintf(e.stderr, "Unknown token subcommand: %s\n", args[0])
		fmt.Fprintln(e.stderr, tokenUsage())
		return 1
	}
}
