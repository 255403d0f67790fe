package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"bountyexchange/storage"
)

// journalEntry captures the dirty value a key held before a write so the
// write can be undone by RevertToSnapshot.
type journalEntry struct {
	key     string
	prev    []byte
	hadPrev bool
}

// overlay buffers writes on top of the database. Nothing reaches the database
// until Commit, and every buffered write is journaled.
type overlay struct {
	db      storage.Database
	dirty   map[string][]byte
	journal []journalEntry
}

// Manager provides RLP-encoded key/value access to node state. Writes are
// buffered in a journal shared by every namespace derived from the same root
// manager, so a snapshot taken on one namespace covers all of them.
//
// Manager is not safe for concurrent use.
type Manager struct {
	ov     *overlay
	prefix []byte
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{ov: &overlay{db: db, dirty: make(map[string][]byte)}}
}

// Namespace returns a view of the same state whose keys are scoped under
// prefix. Keys from different namespaces never collide.
func (m *Manager) Namespace(prefix []byte) *Manager {
	scoped := make([]byte, 0, len(m.prefix)+len(prefix)+1)
	scoped = append(scoped, m.prefix...)
	scoped = append(scoped, prefix...)
	scoped = append(scoped, '/')
	return &Manager{ov: m.ov, prefix: scoped}
}

func (m *Manager) kvKey(key []byte) []byte {
	buf := make([]byte, 0, len(m.prefix)+len(key))
	buf = append(buf, m.prefix...)
	buf = append(buf, key...)
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) get(hashed []byte) ([]byte, error) {
	if value, ok := m.ov.dirty[string(hashed)]; ok {
		return value, nil
	}
	value, err := m.ov.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

func (m *Manager) set(hashed []byte, value []byte) {
	key := string(hashed)
	prev, had := m.ov.dirty[key]
	m.ov.journal = append(m.ov.journal, journalEntry{key: key, prev: prev, hadPrev: had})
	m.ov.dirty[key] = append([]byte(nil), value...)
}

// Snapshot returns a revision identifier for the current journal position.
func (m *Manager) Snapshot() int {
	return len(m.ov.journal)
}

// RevertToSnapshot undoes every write made after the snapshot was taken.
func (m *Manager) RevertToSnapshot(revision int) {
	if revision < 0 || revision > len(m.ov.journal) {
		return
	}
	for i := len(m.ov.journal) - 1; i >= revision; i-- {
		entry := m.ov.journal[i]
		if entry.hadPrev {
			m.ov.dirty[entry.key] = entry.prev
		} else {
			delete(m.ov.dirty, entry.key)
		}
	}
	m.ov.journal = m.ov.journal[:revision]
}

// Commit flushes all buffered writes to the database in a single batch and
// resets the journal.
func (m *Manager) Commit() error {
	if len(m.ov.dirty) == 0 {
		m.ov.journal = m.ov.journal[:0]
		return nil
	}
	batch := m.ov.db.NewBatch()
	for key, value := range m.ov.dirty {
		batch.Put([]byte(key), value)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.ov.dirty = make(map[string][]byte)
	m.ov.journal = m.ov.journal[:0]
	return nil
}

// Discard drops every uncommitted write.
func (m *Manager) Discard() {
	m.ov.dirty = make(map[string][]byte)
	m.ov.journal = m.ov.journal[:0]
}

// Pending reports the number of keys with uncommitted writes.
func (m *Manager) Pending() int {
	return len(m.ov.dirty)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is scoped to the namespace and hashed with keccak256.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.set(m.kvKey(key), encoded)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(m.kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := m.kvKey(key)
	data, err := m.get(hashed)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	m.set(hashed, encoded)
	return nil
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(m.kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}
