package trie

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Prove collects the encoded nodes on the path to key, root first. The chain
// is produced whether or not the key is present: a path that ends before the
// key is consumed proves absence. Nodes embedded in their parent (shorter
// than a digest) are part of the parent's encoding and do not appear as
// separate elements.
func (t *Trie) Prove(key []byte) ([][]byte, error) {
	k := keybytesToHex(key)
	var nodes []node
	tn := t.root
	for len(k) > 0 && tn != nil {
		switch n := tn.(type) {
		case *shortNode:
			if len(k) < len(n.Key) || !bytes.Equal(n.Key, k[:len(n.Key)]) {
				// The trie doesn't contain the key.
				tn = nil
			} else {
				tn = n.Val
				k = k[len(n.Key):]
			}
			nodes = append(nodes, n)
		case *fullNode:
			tn = n.Children[k[0]]
			k = k[1:]
			nodes = append(nodes, n)
		case hashNode:
			var err error
			tn, err = t.resolve(n, nil)
			if err != nil {
				return nil, err
			}
		default:
			panic(fmt.Sprintf("%T: invalid node: %v", tn, tn))
		}
	}
	h := newHasher()
	defer returnHasherToPool(h)
	var proof [][]byte
	for i, n := range nodes {
		collapsed, hashed, err := h.proofHash(n)
		if err != nil {
			return nil, err
		}
		if _, ok := hashed.(hashNode); ok || i == 0 {
			// If the node's encoding is referenced by hash (or it is the
			// root node), it becomes a proof element.
			proof = append(proof, nodeToBytes(collapsed))
		}
	}
	return proof, nil
}

// VerifyProof checks an ordered root-to-leaf node chain against rootHash and
// key, without access to the trie the chain came from. It returns the value
// the chain binds to key, or nil when the chain proves the key absent. Every
// element's digest is recomputed and compared against the reference carried
// by its parent (or rootHash for the first element); any disagreement is an
// ErrHashMismatch.
func VerifyProof(rootHash common.Hash, key []byte, proof [][]byte) ([]byte, error) {
	if len(proof) == 0 {
		if rootHash == EmptyRoot {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: empty proof for root %x", ErrHashMismatch, rootHash)
	}
	k := keybytesToHex(key)
	want := rootHash.Bytes()
	h := newHasher()
	defer returnHasherToPool(h)
	for i, enc := range proof {
		if !bytes.Equal(h.hashData(enc), want) {
			return nil, fmt.Errorf("%w: proof node %d", ErrHashMismatch, i)
		}
		n, err := decodeNode(hashNode(common.CopyBytes(want)), enc)
		if err != nil {
			return nil, fmt.Errorf("proof node %d: %w", i, err)
		}
		rest, cld := step(n, k)
		switch cld := cld.(type) {
		case nil:
			// The trie's structure ends before the key is consumed.
			if i != len(proof)-1 {
				return nil, fmt.Errorf("%w: proof continues past a terminal node", ErrMalformedNode)
			}
			return nil, nil
		case hashNode:
			k = rest
			want = cld
		case valueNode:
			if i != len(proof)-1 {
				return nil, fmt.Errorf("%w: proof continues past a value", ErrMalformedNode)
			}
			return cld, nil
		}
	}
	return nil, fmt.Errorf("%w: proof chain ends before a terminal node", ErrMalformedNode)
}

// step descends through a decoded node (including children embedded in it)
// until it reaches a reference out of the node, a value, or a dead end.
func step(tn node, key []byte) ([]byte, node) {
	for {
		switch n := tn.(type) {
		case *shortNode:
			if len(key) < len(n.Key) || !bytes.Equal(n.Key, key[:len(n.Key)]) {
				return nil, nil
			}
			tn = n.Val
			key = key[len(n.Key):]
		case *fullNode:
			tn = n.Children[key[0]]
			key = key[1:]
		case hashNode:
			return key, n
		case nil:
			return key, nil
		case valueNode:
			return nil, n
		default:
			panic(fmt.Sprintf("%T: invalid node: %v", tn, tn))
		}
	}
}
