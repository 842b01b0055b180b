package trie

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInconsistentPath is returned when a compact path's flag bits
	// disagree with its byte layout.
	ErrInconsistentPath = errors.New("inconsistent path encoding")

	// ErrMalformedNode is returned when an encoded node has an invalid
	// shape, e.g. the wrong number of list elements or an oversized
	// embedded child.
	ErrMalformedNode = errors.New("malformed trie node")

	// ErrHashMismatch is returned during proof verification when a node's
	// recomputed digest disagrees with the expected one.
	ErrHashMismatch = errors.New("proof hash mismatch")
)

// MissingNodeError is returned when a node referenced by hash cannot be
// loaded from the backing store.
type MissingNodeError struct {
	NodeHash common.Hash
	Path     []byte
}

func (e *MissingNodeError) Error() string {
	return fmt.Sprintf("missing trie node %x (path %x)", e.NodeHash, e.Path)
}
