package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bountyexchange/crypto"
	"bountyexchange/rpc"
)

type recordedCall struct {
	method string
	params json.RawMessage
	auth   string
}

// newStubServer answers every call with result and records what it received.
func newStubServer(t *testing.T, result interface{}) (*httptest.Server, *[]recordedCall) {
	t.Helper()
	calls := &[]recordedCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpc.RPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		rec := recordedCall{method: req.Method, auth: r.Header.Get("Authorization")}
		if len(req.Params) > 0 {
			rec.params = req.Params[0]
		}
		*calls = append(*calls, rec)
		_ = json.NewEncoder(w).Encode(rpc.RPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func newTestEnv(endpoint string) (*cmdEnv, *bytes.Buffer, *bytes.Buffer) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	env := &cmdEnv{
		stdout:     stdout,
		stderr:     stderr,
		client:     newClient(endpoint, "jwt-token"),
		passEnv:    keystorePassEnv,
		passphrase: func() (string, error) { return "test-pass", nil },
	}
	env.client.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return env, stdout, stderr
}

func writeKeystore(t *testing.T) (string, *crypto.PrivateKey) {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "caller.keystore")
	require.NoError(t, crypto.SaveToKeystore(path, key, "test-pass"))
	return path, key
}

func TestKeygenWritesLoadableKeystore(t *testing.T) {
	env, stdout, stderr := newTestEnv("http://unused")
	path := filepath.Join(t.TempDir(), "new.keystore")

	require.Equal(t, 0, env.runKeygen([]string{"--out", path}), stderr.String())
	require.Contains(t, stdout.String(), "address: bty1")

	require.Equal(t, 1, env.runKeygen([]string{"--out", path}))
	require.Contains(t, stderr.String(), "already exists")

	stdout.Reset()
	require.Equal(t, 0, env.runAddress([]string{"--keystore", path}))
	require.True(t, strings.HasPrefix(strings.TrimSpace(stdout.String()), "bty1"))
}

func TestAddressDoesNotNeedPassphrase(t *testing.T) {
	env, stdout, stderr := newTestEnv("http://unused")
	path, key := writeKeystore(t)
	env.passphrase = func() (string, error) {
		t.Fatal("address must not prompt for a passphrase")
		return "", nil
	}

	require.Equal(t, 0, env.runAddress([]string{"--keystore", path}), stderr.String())
	require.Equal(t, key.PubKey().Address().String(), strings.TrimSpace(stdout.String()))

	require.Equal(t, 1, env.runAddress(nil))
	require.Contains(t, stderr.String(), "--keystore is required")
}

func TestBountyCreateSendsSignedCall(t *testing.T) {
	srv, calls := newStubServer(t, map[string]string{"status": "Open"})
	env, stdout, stderr := newTestEnv(srv.URL)
	path, key := writeKeystore(t)
	provider := crypto.FormatAddress([20]byte{0x22})

	code := env.runBounty([]string{"create",
		"--variant", "factory",
		"--keystore", path,
		"--locked-token", "LOOT",
		"--locked-amount", "60",
		"--bounty-token", "FEE",
		"--bounty-amount", "25",
		"--provider", provider,
		"--duration", "300",
	})
	require.Equal(t, 0, code, stderr.String())
	require.Contains(t, stdout.String(), `"status": "Open"`)

	require.Len(t, *calls, 1)
	got := (*calls)[0]
	require.Equal(t, "factory_createBountyRequest", got.method)
	require.Equal(t, "Bearer jwt-token", got.auth)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(got.params, &fields))
	require.Equal(t, key.PubKey().Address().String(), fields["caller"])
	require.EqualValues(t, 1_700_000_000, fields["timestamp"])
	require.Equal(t, "60", fields["lockedAmount"])
	require.EqualValues(t, 300, fields["duration"])

	sig, err := hex.DecodeString(strings.TrimPrefix(fields["signature"].(string), "0x"))
	require.NoError(t, err)
	digest, err := rpc.CallDigest(got.method, got.params)
	require.NoError(t, err)
	recovered, err := crypto.RecoverAddress(digest, sig)
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().Raw(), recovered)
}

func TestBountyIDCommandsRouteByVariant(t *testing.T) {
	srv, calls := newStubServer(t, true)
	env, _, stderr := newTestEnv(srv.URL)
	path, _ := writeKeystore(t)
	id := "0x" + strings.Repeat("ab", 32)

	require.Equal(t, 0, env.runBounty([]string{"fund", "--variant", "factory", "--id", id, "--keystore", path}), stderr.String())
	require.Equal(t, 0, env.runBounty([]string{"submit", "--id", id, "--keystore", path}), stderr.String())
	require.Equal(t, 0, env.runBounty([]string{"expired", "--variant", "factory", "--id", id}), stderr.String())
	require.Equal(t, 0, env.runBounty([]string{"deadline", "--id", id}), stderr.String())

	methods := make([]string, 0, len(*calls))
	for _, c := range *calls {
		methods = append(methods, c.method)
	}
	require.Equal(t, []string{"factory_requestBounty", "bounty_submit", "factory_isExpired", "bounty_getDeadline"}, methods)

	var readOnly map[string]interface{}
	require.NoError(t, json.Unmarshal((*calls)[2].params, &readOnly))
	require.NotContains(t, readOnly, "signature")
}

func TestBountyArgValidation(t *testing.T) {
	env, _, stderr := newTestEnv("http://unused")

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"usage", nil, "Usage:"},
		{"unknown", []string{"burn"}, "Unknown bounty subcommand"},
		{"registry fund", []string{"fund", "--id", "0x" + strings.Repeat("00", 32)}, "funded at creation"},
		{"short id", []string{"get", "--id", "0x1234"}, "32-byte hex"},
		{"bad variant", []string{"get", "--variant", "vault", "--id", "0x" + strings.Repeat("00", 32)}, "--variant"},
		{"missing provider", []string{"create", "--locked-token", "A", "--locked-amount", "1", "--bounty-token", "B", "--bounty-amount", "1", "--duration", "5"}, "--provider is required"},
		{"zero duration", []string{"create", "--locked-token", "A", "--locked-amount", "1", "--bounty-token", "B", "--bounty-amount", "1", "--provider", "x"}, "--duration must be positive"},
		{"list both", []string{"list", "--requester", "a", "--provider", "b"}, "only one"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stderr.Reset()
			require.Equal(t, 1, env.runBounty(tc.args))
			require.Contains(t, stderr.String(), tc.want)
		})
	}
}

func TestCallSurfacesRPCErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(rpc.RPCResponse{JSONRPC: "2.0", ID: 1, Error: &rpc.RPCError{Code: -32004, Message: "bounty: request not found"}})
	}))
	defer srv.Close()

	env, _, stderr := newTestEnv(srv.URL)
	require.Equal(t, 1, env.runCall([]string{"--params", `{"id":"0x00"}`, "bounty_get"}))
	require.Contains(t, stderr.String(), "RPC error -32004")

	stderr.Reset()
	require.Equal(t, 1, env.runCall([]string{"--params", `[1]`, "bounty_get"}))
	require.Contains(t, stderr.String(), "JSON object")
}

func TestRunGlobalFlags(t *testing.T) {
	args, endpoint, err := applyGlobalFlags([]string{"--rpc", "http://node:9000", "token", "list"}, defaultEndpoint)
	require.NoError(t, err)
	require.Equal(t, "http://node:9000", endpoint)
	require.Equal(t, []string{"token", "list"}, args)

	_, _, err = applyGlobalFlags([]string{"--rpc"}, defaultEndpoint)
	require.Error(t, err)

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	require.Equal(t, 1, run([]string{"explode"}, stdout, stderr))
	require.Contains(t, stderr.String(), "Unknown command")
}
