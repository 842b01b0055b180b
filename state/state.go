// Package state layers the account-record abstraction on top of the generic
// trie: address to key conversion, record encoding, batched state
// transitions and address-bound state proofs.
package state

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vireo-network/vireo-state/trie"
)

// nodeCacheSize bounds the decoded-node cache of the account trie.
const nodeCacheSize = 16 * 1024

// Change is one account update within a state transition. A nil Account
// removes the record, as does an empty one.
type Change struct {
	Addr    common.Address
	Account *Account
}

// Descriptor identifies a committed state: the block it belongs to and its
// root commitment.
type Descriptor struct {
	BlockNum  uint64
	StateRoot common.Hash
}

// State is the account-keyed facade over the trie engine. Each instance owns
// one root lineage: mutation batches are serialized against each other, while
// lookups and proofs against the current root may run concurrently.
type State struct {
	mu   sync.RWMutex
	trie *trie.Trie
	desc Descriptor
}

// New opens the state at the given descriptor. A zero or EmptyRoot
// descriptor starts an empty state; anything else is resolved through the
// reader.
func New(desc Descriptor, reader trie.NodeReader) (*State, error) {
	tr, err := trie.New(desc.StateRoot, reader, nodeCacheSize)
	if err != nil {
		return nil, err
	}
	if desc.StateRoot == (common.Hash{}) {
		desc.StateRoot = trie.EmptyRoot
	}
	return &State{trie: tr, desc: desc}, nil
}

// Descriptor returns the block number and root of the last committed
// transition.
func (s *State) Descriptor() Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.desc
}

// Root returns the current state root.
func (s *State) Root() common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.desc.StateRoot
}

// GetAccount returns the record stored for addr, or nil if the address has
// no record. Absence is not an error.
func (s *State) GetAccount(addr common.Address) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAccount(addr)
}

func (s *State) getAccount(addr common.Address) (*Account, error) {
	enc, err := s.trie.Get(addr.Bytes())
	if err != nil {
		return nil, err
	}
	if len(enc) == 0 {
		return nil, nil
	}
	return DecodeAccount(enc)
}

// SetAccount stores the record for addr against the current block and
// returns the new root. An empty or nil record removes the address.
func (s *State) SetAccount(addr common.Address, acc *Account) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(s.desc.BlockNum, []Change{{Addr: addr, Account: acc}})
}

// ApplyBatch applies one state transition: all changes land on a single new
// root, in order. The batch is the atomicity unit: on any failure no change
// becomes visible and the previous root stays current. Business rules
// (balances, nonce monotonicity) are the caller's concern; only structural
// correctness is guaranteed here.
func (s *State) ApplyBatch(blockNum uint64, changes []Change) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(blockNum, changes)
}

func (s *State) apply(blockNum uint64, changes []Change) (common.Hash, error) {
	// Work on a copy: nodes are immutable, so the copy shares every
	// unchanged subtree and the original root remains intact until the
	// whole batch has applied.
	tr := s.trie.Copy()
	for _, c := range changes {
		key := c.Addr.Bytes()
		if c.Account == nil || c.Account.IsEmpty() {
			if err := tr.Delete(key); err != nil {
				return common.Hash{}, err
			}
			continue
		}
		if err := tr.Update(key, c.Account.Encode()); err != nil {
			return common.Hash{}, err
		}
	}
	root := tr.Hash()
	s.trie = tr
	s.desc = Descriptor{BlockNum: blockNum, StateRoot: root}
	return root, nil
}

// Commit hands the dirty nodes of the current root to the persistence
// collaborator, children before parents. It does not wait for durability;
// the collaborator acknowledges asynchronously.
func (s *State) Commit(w trie.NodeWriter) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trie.Commit(w)
}
