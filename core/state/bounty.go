package state

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"bountyexchange/native/bounty"
)

var (
	bountyRecordPrefix    = []byte("bounty/record/")
	bountyNonceKey        = []byte("bounty/nonce")
	bountyIDsKey          = []byte("bounty/ids")
	bountyRequesterPrefix = []byte("bounty/by-requester/")
	bountyProviderPrefix  = []byte("bounty/by-provider/")
	factoryInstancePrefix = []byte("factory/instance/")
	instanceNamespace     = []byte("instance/")
)

// Party selects which side of a request an index lookup refers to.
type Party uint8

const (
	PartyRequester Party = iota
	PartyProvider
)

func prefixed(prefix []byte, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}

// storedBounty is the RLP layout of a bounty request. RLP has no signed
// integers so timestamps are stored as unsigned values.
type storedBounty struct {
	ID           [32]byte
	Requester    [20]byte
	Provider     [20]byte
	LockedToken  [20]byte
	LockedAmount *big.Int
	BountyToken  [20]byte
	BountyAmount *big.Int
	Duration     uint64
	Deadline     uint64
	CreatedAt    uint64
	Custody      [20]byte
	Nonce        uint64
	Status       uint8
}

func newStoredBounty(r *bounty.BountyRequest) *storedBounty {
	return &storedBounty{
		ID:           r.ID,
		Requester:    r.Requester,
		Provider:     r.Provider,
		LockedToken:  r.Locked.Token,
		LockedAmount: new(big.Int).Set(r.Locked.Amount),
		BountyToken:  r.Bounty.Token,
		BountyAmount: new(big.Int).Set(r.Bounty.Amount),
		Duration:     uint64(r.Duration),
		Deadline:     uint64(r.Deadline),
		CreatedAt:    uint64(r.CreatedAt),
		Custody:      r.Custody,
		Nonce:        r.Nonce,
		Status:       uint8(r.Status),
	}
}

func (s *storedBounty) toRequest() (*bounty.BountyRequest, error) {
	out := &bounty.BountyRequest{
		ID:        s.ID,
		Requester: s.Requester,
		Provider:  s.Provider,
		Locked:    bounty.Asset{Token: s.LockedToken, Amount: s.LockedAmount},
		Bounty:    bounty.Asset{Token: s.BountyToken, Amount: s.BountyAmount},
		Duration:  int64(s.Duration),
		Deadline:  int64(s.Deadline),
		CreatedAt: int64(s.CreatedAt),
		Custody:   s.Custody,
		Nonce:     s.Nonce,
		Status:    bounty.Status(s.Status),
	}
	return bounty.SanitizeRequest(out)
}

// BountyPut stores the request under its id within the manager namespace.
func (m *Manager) BountyPut(r *bounty.BountyRequest) error {
	sanitized, err := bounty.SanitizeRequest(r)
	if err != nil {
		return err
	}
	return m.KVPut(prefixed(bountyRecordPrefix, sanitized.ID[:]), newStoredBounty(sanitized))
}

// BountyGet loads the request stored under id.
func (m *Manager) BountyGet(id [32]byte) (*bounty.BountyRequest, bool, error) {
	var stored storedBounty
	ok, err := m.KVGet(prefixed(bountyRecordPrefix, id[:]), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	req, err := stored.toRequest()
	if err != nil {
		return nil, false, fmt.Errorf("bounty %x: %w", id, err)
	}
	return req, true, nil
}

// BountyNextNonce returns the current creation nonce and advances it.
func (m *Manager) BountyNextNonce() (uint64, error) {
	var nonce uint64
	if _, err := m.KVGet(bountyNonceKey, &nonce); err != nil {
		return 0, err
	}
	if err := m.KVPut(bountyNonceKey, nonce+1); err != nil {
		return 0, err
	}
	return nonce, nil
}

// BountyIndex records the request in the global id list and in the per-party
// lists of its requester and provider.
func (m *Manager) BountyIndex(r *bounty.BountyRequest) error {
	if r == nil {
		return fmt.Errorf("bounty index: nil request")
	}
	if err := m.KVAppend(bountyIDsKey, r.ID[:]); err != nil {
		return err
	}
	if err := m.KVAppend(prefixed(bountyRequesterPrefix, r.Requester[:]), r.ID[:]); err != nil {
		return err
	}
	return m.KVAppend(prefixed(bountyProviderPrefix, r.Provider[:]), r.ID[:])
}

// BountyIDs lists every indexed request id in creation order.
func (m *Manager) BountyIDs() ([][32]byte, error) {
	return m.idList(bountyIDsKey)
}

// BountyIDsByParty lists the ids of requests in which addr takes the given
// role, in creation order.
func (m *Manager) BountyIDsByParty(role Party, addr [20]byte) ([][32]byte, error) {
	switch role {
	case PartyRequester:
		return m.idList(prefixed(bountyRequesterPrefix, addr[:]))
	case PartyProvider:
		return m.idList(prefixed(bountyProviderPrefix, addr[:]))
	default:
		return nil, fmt.Errorf("bounty index: unknown party %d", role)
	}
}

func (m *Manager) idList(key []byte) ([][32]byte, error) {
	var raw [][]byte
	if err := m.KVGetList(key, &raw); err != nil {
		return nil, err
	}
	out := make([][32]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 32 {
			return nil, fmt.Errorf("bounty index: malformed id of %d bytes", len(entry))
		}
		var id [32]byte
		copy(id[:], entry)
		out = append(out, id)
	}
	return out, nil
}

// FactoryInstancePut maps a factory request id to its instance address.
func (m *Manager) FactoryInstancePut(id [32]byte, instance [20]byte) error {
	return m.KVPut(prefixed(factoryInstancePrefix, id[:]), instance)
}

// FactoryInstanceGet resolves the instance address for a factory request id.
func (m *Manager) FactoryInstanceGet(id [32]byte) ([20]byte, bool, error) {
	var instance [20]byte
	ok, err := m.KVGet(prefixed(factoryInstancePrefix, id[:]), &instance)
	return instance, ok, err
}

// InstanceState returns the isolated namespace owned by a factory instance.
func (m *Manager) InstanceState(instance [20]byte) bounty.State {
	return m.Namespace(prefixed(instanceNamespace, []byte(hex.EncodeToString(instance[:]))))
}

var (
	_ bounty.RegistryState = (*Manager)(nil)
	_ bounty.FactoryState  = (*Manager)(nil)
	_ bounty.Journal       = (*Manager)(nil)
)
