package store

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemStore is an in-memory node store. It satisfies both halves of the trie's
// persistence contract and is the backend of choice for tests and ephemeral
// tries.
type MemStore struct {
	mu    sync.RWMutex
	nodes map[common.Hash][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{nodes: make(map[common.Hash][]byte)}
}

func (m *MemStore) GetNode(hash common.Hash) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if enc, ok := m.nodes[hash]; ok {
		return common.CopyBytes(enc), nil
	}
	return nil, nil
}

// PutNode stores one node. It implements trie.NodeWriter, so a trie can
// commit straight into the store.
func (m *MemStore) PutNode(hash common.Hash, enc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[hash] = common.CopyBytes(enc)
	return nil
}

func (m *MemStore) PutNodes(nodes []Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range nodes {
		m.nodes[n.Hash] = common.CopyBytes(n.Enc)
	}
	return nil
}

func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

func (m *MemStore) Close() error { return nil }
