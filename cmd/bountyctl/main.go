package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	defaultEndpoint = "http://localhost:8547"
	keystorePassEnv = "BOUNTYCTL_PASS"
	rpcTokenEnv     = "BOUNTY_RPC_TOKEN"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	endpoint := defaultEndpoint
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		endpoint = v
	}
	args, endpoint, err := applyGlobalFlags(args, endpoint)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	env := &cmdEnv{
		stdout:  stdout,
		stderr:  stderr,
		client:  newClient(endpoint, os.Getenv(rpcTokenEnv)),
		passEnv: keystorePassEnv,
	}
	switch args[0] {
	case "keygen":
		return env.runKeygen(args[1:])
	case "address":
		return env.runAddress(args[1:])
	case "bounty":
		return env.runBounty(args[1:])
	case "token":
		return env.runToken(args[1:])
	case "call":
		return env.runCall(args[1:])
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func applyGlobalFlags(args []string, endpoint string) ([]string, string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, "", fmt.Errorf("missing value for --rpc")
			}
			endpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			endpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, endpoint, nil
}

func usage() string {
	return strings.TrimSpace(`Usage:
  bountyctl [--rpc URL] <command> [flags]

Commands:
  keygen   Generate a key and write it to an encrypted keystore
  address  Print the address held by a keystore
  bounty   Create, fund, settle and inspect bounty requests
  token    Query balances and manage allowances
  call     Send a raw JSON-RPC call, signed when --keystore is given

The keystore passphrase is read from BOUNTYCTL_PASS or prompted for.
A bearer token for the RPC endpoint may be set in BOUNTY_RPC_TOKEN.`)
}
