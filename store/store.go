// Package store provides the persistence collaborators of the trie engine:
// synchronous node stores and an asynchronous flusher that hands committed
// nodes off without blocking the commit path.
package store

import "github.com/ethereum/go-ethereum/common"

// Node is one encoded trie node keyed by its digest.
type Node struct {
	Hash common.Hash
	Enc  []byte
}

// Database is the synchronous, durable half of the persistence contract.
// GetNode returns nil, nil for unknown hashes; absence is not an error.
type Database interface {
	GetNode(hash common.Hash) ([]byte, error)
	PutNodes(nodes []Node) error
	Close() error
}
