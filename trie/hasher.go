package trie

import (
	"hash"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/sha3"
)

// keccakState wraps sha3.state. In addition to the usual hash methods, it
// also supports Read to get a variable amount of data from the hash state.
// Read is faster than Sum because it doesn't copy the internal state, but
// also modifies the internal state.
type keccakState interface {
	hash.Hash
	Read([]byte) (int, error)
}

// storeFunc receives every newly hashed dirty node during a commit, in
// child-before-parent order, so a partially persisted batch never references
// a missing child. enc aliases an internal buffer and is only valid for the
// duration of the call.
type storeFunc func(hash hashNode, enc []byte) error

// hasher is used for the trie Hash and Commit operations. A hasher has some
// internal preallocated temp space.
type hasher struct {
	sha    keccakState
	tmp    []byte
	encbuf rlp.EncoderBuffer
}

var hasherPool = sync.Pool{
	New: func() interface{} {
		return &hasher{
			tmp:    make([]byte, 0, 550), // cap is as large as a full fullNode
			sha:    sha3.NewLegacyKeccak256().(keccakState),
			encbuf: rlp.NewEncoderBuffer(nil),
		}
	},
}

func newHasher() *hasher {
	return hasherPool.Get().(*hasher)
}

func returnHasherToPool(h *hasher) {
	hasherPool.Put(h)
}

// hash collapses a node down into a hash node, also returning a copy of the
// original node initialized with the computed hash to replace the original
// one. Nodes with a memoized hash are not rewalked unless a commit needs to
// store their dirty subtree.
func (h *hasher) hash(n node, force bool, onNode storeFunc) (hashed node, cached node, err error) {
	if hash, dirty := n.cache(); hash != nil {
		if onNode == nil || !dirty {
			return hash, n, nil
		}
	}
	switch n := n.(type) {
	case *shortNode:
		collapsed, cached, err := h.hashShortNodeChildren(n, onNode)
		if err != nil {
			return nil, n, err
		}
		hashed, err := h.shortnodeToHash(collapsed, force, onNode)
		if err != nil {
			return nil, n, err
		}
		if hn, ok := hashed.(hashNode); ok {
			cached.flags.hash = hn
		} else {
			cached.flags.hash = nil
		}
		if onNode != nil {
			cached.flags.dirty = false
		}
		return hashed, cached, nil
	case *fullNode:
		collapsed, cached, err := h.hashFullNodeChildren(n, onNode)
		if err != nil {
			return nil, n, err
		}
		hashed, err := h.fullnodeToHash(collapsed, force, onNode)
		if err != nil {
			return nil, n, err
		}
		if hn, ok := hashed.(hashNode); ok {
			cached.flags.hash = hn
		} else {
			cached.flags.hash = nil
		}
		if onNode != nil {
			cached.flags.dirty = false
		}
		return hashed, cached, nil
	default:
		// Value and hash nodes don't have children, so they're left as were.
		return n, n, nil
	}
}

// hashShortNodeChildren collapses the short node. The returned collapsed node
// holds a live reference to the compact Key and must not be modified.
func (h *hasher) hashShortNodeChildren(n *shortNode, onNode storeFunc) (collapsed, cached *shortNode, err error) {
	collapsed, cached = n.copy(), n.copy()
	collapsed.Key = hexToCompact(n.Key)
	switch n.Val.(type) {
	case *fullNode, *shortNode:
		collapsed.Val, cached.Val, err = h.hash(n.Val, false, onNode)
		if err != nil {
			return nil, nil, err
		}
	}
	return collapsed, cached, nil
}

func (h *hasher) hashFullNodeChildren(n *fullNode, onNode storeFunc) (collapsed, cached *fullNode, err error) {
	collapsed, cached = n.copy(), n.copy()
	for i := 0; i < 16; i++ {
		if child := n.Children[i]; child != nil {
			collapsed.Children[i], cached.Children[i], err = h.hash(child, false, onNode)
			if err != nil {
				return nil, nil, err
			}
		}
	}
	return collapsed, cached, nil
}

// shortnodeToHash computes the digest of a collapsed short node. Nodes whose
// encoding is shorter than a digest are returned as-is and embedded inside
// their parent instead of being referenced by hash.
func (h *hasher) shortnodeToHash(n *shortNode, force bool, onNode storeFunc) (node, error) {
	n.encode(h.encbuf)
	enc := h.encodedBytes()
	if len(enc) < 32 && !force {
		return n, nil
	}
	hashed := h.hashData(enc)
	if onNode != nil {
		if err := onNode(hashed, enc); err != nil {
			return nil, err
		}
	}
	return hashed, nil
}

func (h *hasher) fullnodeToHash(n *fullNode, force bool, onNode storeFunc) (node, error) {
	n.encode(h.encbuf)
	enc := h.encodedBytes()
	if len(enc) < 32 && !force {
		return n, nil
	}
	hashed := h.hashData(enc)
	if onNode != nil {
		if err := onNode(hashed, enc); err != nil {
			return nil, err
		}
	}
	return hashed, nil
}

// encodedBytes returns the result of the last encoding operation on h.encbuf
// and resets the buffer.
//
// All node encoding must be done like this:
//
//	node.encode(h.encbuf)
//	enc := h.encodedBytes()
func (h *hasher) encodedBytes() []byte {
	h.tmp = h.encbuf.AppendToBytes(h.tmp[:0])
	h.encbuf.Reset(nil)
	return h.tmp
}

// hashData hashes the provided data.
func (h *hasher) hashData(data []byte) hashNode {
	n := make(hashNode, 32)
	h.sha.Reset()
	h.sha.Write(data)
	h.sha.Read(n)
	return n
}

// proofHash is used to construct trie proofs, returning the collapsed node
// (for later encoding) as well as the hashed node, unless the node is smaller
// than 32 bytes, in which case it is returned as-is. This method does not do
// anything on value or hash nodes.
func (h *hasher) proofHash(original node) (collapsed, hashed node, err error) {
	switch n := original.(type) {
	case *shortNode:
		sn, _, err := h.hashShortNodeChildren(n, nil)
		if err != nil {
			return nil, nil, err
		}
		hashed, err := h.shortnodeToHash(sn, false, nil)
		return sn, hashed, err
	case *fullNode:
		fn, _, err := h.hashFullNodeChildren(n, nil)
		if err != nil {
			return nil, nil, err
		}
		hashed, err := h.fullnodeToHash(fn, false, nil)
		return fn, hashed, err
	default:
		return n, n, nil
	}
}
