package state

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vireo-network/vireo-state/trie"
)

var (
	// ErrProofAddress is returned when a proof is verified against a
	// different address than the one it was generated for.
	ErrProofAddress = errors.New("proof bound to a different address")

	// ErrProofRoot is returned when a proof carries a state root other
	// than the trusted one the verifier expects.
	ErrProofRoot = errors.New("proof bound to a different state root")

	// ErrProofValue is returned when the node chain verifies but binds the
	// address to a different record (or a different presence) than the
	// proof claims.
	ErrProofValue = errors.New("proof value does not match claimed account")
)

// StateProof is a self-contained, immutable membership or non-membership
// proof for one address. Nodes holds the encoded trie nodes on the address's
// path, root first. A nil Account claims the address holds no record.
type StateProof struct {
	Address     common.Address
	Account     *Account
	Nodes       [][]byte
	StateRoot   common.Hash
	BlockNumber uint64
}

// Prove builds a proof for addr against the current root. Absent addresses
// are provable too: the chain then shows the path ending before the address
// is reached.
func (s *State) Prove(addr common.Address) (*StateProof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes, err := s.trie.Prove(addr.Bytes())
	if err != nil {
		return nil, err
	}
	acc, err := s.getAccount(addr)
	if err != nil {
		return nil, err
	}
	return &StateProof{
		Address:     addr,
		Account:     acc,
		Nodes:       nodes,
		StateRoot:   s.desc.StateRoot,
		BlockNumber: s.desc.BlockNum,
	}, nil
}

// Verify checks the proof against a trusted state root for an explicitly
// requested target address. The target must equal the address the proof was
// generated for: a chain that is structurally valid under the root for some
// other address never verifies for the requested one, so a proof cannot be
// replayed across addresses.
func (p *StateProof) Verify(trustedRoot common.Hash, target common.Address) error {
	if p.Address != target {
		return fmt.Errorf("%w: proof for %x, requested %x", ErrProofAddress, p.Address, target)
	}
	if p.StateRoot != trustedRoot {
		return fmt.Errorf("%w: proof for %x, trusted %x", ErrProofRoot, p.StateRoot, trustedRoot)
	}
	value, err := trie.VerifyProof(p.StateRoot, target.Bytes(), p.Nodes)
	if err != nil {
		return err
	}
	if p.Account == nil {
		if value != nil {
			return fmt.Errorf("%w: chain binds a record to an address claimed absent", ErrProofValue)
		}
		return nil
	}
	if value == nil {
		return fmt.Errorf("%w: chain proves absence for an address claimed present", ErrProofValue)
	}
	if !bytes.Equal(value, p.Account.Encode()) {
		return fmt.Errorf("%w: record bytes differ", ErrProofValue)
	}
	return nil
}
