package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"bountyexchange/cmd/internal/passphrase"
	"bountyexchange/crypto"
)

type cmdEnv struct {
	stdout  io.Writer
	stderr  io.Writer
	client  *client
	passEnv string
	// passphrase overrides the environment/terminal source when set.
	passphrase func() (string, error)
}

func (e *cmdEnv) resolvePassphrase() (string, error) {
	if e.passphrase != nil {
		return e.passphrase()
	}
	return passphrase.NewSource(e.passEnv, "bountyctl keystore").Get()
}

func (e *cmdEnv) loadKey(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("--keystore is required")
	}
	pass, err := e.resolvePassphrase()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

func (e *cmdEnv) fail(msg string) int {
	fmt.Fprintf(e.stderr, "Error: %s\n", msg)
	return 1
}

func (e *cmdEnv) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func (e *cmdEnv) runKeygen(args []string) int {
	fs := e.flagSet("keygen")
	out := fs.String("out", "bounty.keystore", "output path for the encrypted keystore")
	force := fs.Bool("force", false, "overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := os.Stat(*out); err == nil && !*force {
		return e.fail(fmt.Sprintf("%s already exists; pass --force to overwrite", *out))
	}
	pass, err := e.resolvePassphrase()
	if err != nil {
		return e.fail(err.Error())
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return e.fail(err.Error())
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return e.fail(err.Error())
	}
	fmt.Fprintf(e.stdout, "address: %s\nkeystore: %s\n", key.PubKey().Address().String(), *out)
	return 0
}

func (e *cmdEnv) runAddress(args []string) int {
	fs := e.flagSet("address")
	keystorePath := fs.String("keystore", "", "path to the encrypted keystore")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*keystorePath) == "" {
		return e.fail("--keystore is required")
	}
	addr, err := crypto.KeystoreAddress(*keystorePath)
	if err != nil {
		return e.fail(err.Error())
	}
	fmt.Fprintln(e.stdout, addr.String())
	return 0
}

// runCall sends an arbitrary method. Params are a JSON object.
func (e *cmdEnv) runCall(args []string) int {
	fs := e.flagSet("call")
	keystorePath := fs.String("keystore", "", "sign the call with this keystore")
	rawParams := fs.String("params", "", "JSON object of method parameters")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		return e.fail("exactly one method name is required")
	}
	var params map[string]interface{}
	if strings.TrimSpace(*rawParams) != "" {
		if err := json.Unmarshal([]byte(*rawParams), &params); err != nil {
			return e.fail("--params must be a JSON object: " + err.Error())
		}
	}
	var key *crypto.PrivateKey
	if strings.TrimSpace(*keystorePath) != "" {
		loaded, err := e.loadKey(*keystorePath)
		if err != nil {
			return e.fail(err.Error())
		}
		key = loaded
		if params == nil {
			params = map[string]interface{}{}
		}
	}
	return e.send(fs.Arg(0), params, key)
}

func (e *cmdEnv) send(method string, params map[string]interface{}, key *crypto.PrivateKey) int {
	result, err := e.client.call(method, params, key)
	if err != nil {
		fmt.Fprintln(e.stderr, err)
		return 1
	}
	writeResult(e.stdout, result)
	return 0
}

func writeResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(w, "null")
		return
	}
	var pretty interface{}
	if err := json.Unmarshal(result, &pretty); err == nil {
		if formatted, err := json.MarshalIndent(pretty, "", "  "); err == nil {
			result = formatted
		}
	}
	fmt.Fprintln(w, string(result))
}
