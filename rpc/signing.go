package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"bountyexchange/crypto"
)

const signatureField = "signature"

var (
	errSignatureRequired = errors.New("signature required")
	errSignatureInvalid  = errors.New("signature does not match caller")
	errStaleCall         = errors.New("call timestamp outside accepted window")
	errReplayedCall      = errors.New("call already processed")
)

// signedEnvelope holds the fields every state-changing call carries next to
// its method parameters.
type signedEnvelope struct {
	Caller    string `json:"caller"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// CallDigest returns keccak256(method || canonical params), where the
// canonical params are the JSON object with the signature removed and keys
// sorted.
func CallDigest(method string, params json.RawMessage) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.UseNumber()
	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("params must be a JSON object: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("params must be a JSON object")
	}
	delete(fields, signatureField)
	canonical, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256([]byte(method), canonical), nil
}

// SignCall fills caller, timestamp and a random nonce into params and signs
// the call with key. The nonce keeps identical calls issued within the same
// second distinct. The returned object is ready to be sent as the single
// params element.
func SignCall(key *crypto.PrivateKey, method string, params map[string]interface{}, now time.Time) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(params)+3)
	for k, v := range params {
		out[k] = v
	}
	delete(out, signatureField)
	out["caller"] = key.PubKey().Address().String()
	out["timestamp"] = now.Unix()
	if _, ok := out["nonce"]; !ok {
		out["nonce"] = uuid.NewString()
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	digest, err := CallDigest(method, raw)
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(digest)
	if err != nil {
		return nil, err
	}
	out[signatureField] = "0x" + hex.EncodeToString(sig)
	return out, nil
}

// replayCache remembers call digests for the length of the skew window; a
// digest older than that would be rejected as stale anyway.
type replayCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
}

func newReplayCache(ttl time.Duration) *replayCache {
	return &replayCache{ttl: ttl, seen: make(map[string]time.Time)}
}

// remember records digest and reports false if it was already present.
func (c *replayCache) remember(digest []byte, now time.Time) bool {
	key := string(digest)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, expiry := range c.seen {
		if now.After(expiry) {
			delete(c.seen, k)
		}
	}
	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = now.Add(c.ttl)
	return true
}

// authenticateCall resolves the caller of a state-changing method. With
// signatures required, the signature must recover to the caller, the
// timestamp must be within the skew and the call must not repeat.
func (s *Server) authenticateCall(method string, params json.RawMessage) ([20]byte, error) {
	var env signedEnvelope
	if len(params) == 0 {
		return [20]byte{}, newParamError("params object required")
	}
	if err := json.Unmarshal(params, &env); err != nil {
		return [20]byte{}, newParamError(err.Error())
	}
	caller, err := crypto.ParseAddress(env.Caller)
	if err != nil {
		return [20]byte{}, newParamError("caller: " + err.Error())
	}
	if !s.cfg.RequireSignatures {
		return caller, nil
	}
	if strings.TrimSpace(env.Signature) == "" {
		return [20]byte{}, errSignatureRequired
	}
	now := s.clockNow()
	skew := now.Sub(time.Unix(env.Timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > s.cfg.SignatureSkew {
		return [20]byte{}, errStaleCall
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(env.Signature), "0x"))
	if err != nil || len(sig) != 65 {
		return [20]byte{}, errSignatureInvalid
	}
	digest, err := CallDigest(method, params)
	if err != nil {
		return [20]byte{}, newParamError(err.Error())
	}
	recovered, err := crypto.RecoverAddress(digest, sig)
	if err != nil || recovered != caller {
		return [20]byte{}, errSignatureInvalid
	}
	if !s.replay.remember(digest, now) {
		return [20]byte{}, errReplayedCall
	}
	return caller, nil
}
