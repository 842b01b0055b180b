// Package trie implements the authenticated key-value state trie: a Modified
// Merkle Patricia Trie over immutable nodes, producing a single 32-byte
// commitment over the stored key-value set and compact membership and
// non-membership proofs.
package trie

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/metrics"
	lru "github.com/hashicorp/golang-lru"
)

// EmptyRoot is the root hash of a trie with no entries: the digest of the
// canonical encoding of "no data".
var EmptyRoot = common.HexToHash("56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")

var (
	cacheHitCounter  = metrics.NewRegisteredCounter("trie/cachehit", nil)
	cacheMissCounter = metrics.NewRegisteredCounter("trie/cachemiss", nil)
)

// NodeReader loads canonical node encodings by digest. A nil, nil return
// means the node is unknown to the store.
type NodeReader interface {
	GetNode(hash common.Hash) ([]byte, error)
}

// NodeWriter accepts dirty nodes during a commit. enc is only valid for the
// duration of the call and must be copied if retained.
type NodeWriter interface {
	PutNode(hash common.Hash, enc []byte) error
}

// Trie is a Merkle Patricia Trie over immutable nodes. Mutations never modify
// nodes in place: every insert or delete rebuilds the nodes along the key's
// path, so unchanged subtrees are shared structurally between versions and a
// root captured before a mutation stays valid.
//
// A Trie is not safe for concurrent mutation; writes targeting the same root
// lineage must be serialized by the caller. Lookups and proof generation
// against a committed trie are read-only and may run concurrently.
type Trie struct {
	reader NodeReader
	cache  *lru.Cache // decoded nodes by hash, shared between copies
	root   node
}

// New creates a trie rooted at root. When root is the zero hash or EmptyRoot
// the trie starts out empty; otherwise the root node is resolved from the
// reader, which then must not be nil. cacheSize bounds the number of decoded
// nodes retained in memory; zero disables the cache.
func New(root common.Hash, reader NodeReader, cacheSize int) (*Trie, error) {
	t := &Trie{reader: reader}
	if cacheSize > 0 {
		cache, err := lru.New(cacheSize)
		if err != nil {
			return nil, err
		}
		t.cache = cache
	}
	if root != (common.Hash{}) && root != EmptyRoot {
		rootnode, err := t.resolve(hashNode(root.Bytes()), nil)
		if err != nil {
			return nil, err
		}
		t.root = rootnode
	}
	return t, nil
}

// Copy returns a trie sharing this trie's current root, node cache and
// reader. Because nodes are immutable, mutations applied to the copy never
// become visible through the original.
func (t *Trie) Copy() *Trie {
	return &Trie{reader: t.reader, cache: t.cache, root: t.root}
}

// Get returns the value bound to key, or nil if the trie holds no entry for
// it. An absent key is not an error. The cost is one step per key nibble,
// independent of the trie's population.
func (t *Trie) Get(key []byte) ([]byte, error) {
	value, err := t.get(t.root, keybytesToHex(key), 0)
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (t *Trie) get(n node, key []byte, pos int) ([]byte, error) {
	switch n := n.(type) {
	case nil:
		return nil, nil
	case valueNode:
		return n, nil
	case *shortNode:
		if len(key)-pos < len(n.Key) || !bytes.Equal(n.Key, key[pos:pos+len(n.Key)]) {
			// key not found in trie
			return nil, nil
		}
		return t.get(n.Val, key, pos+len(n.Key))
	case *fullNode:
		return t.get(n.Children[key[pos]], key, pos+1)
	case hashNode:
		child, err := t.resolve(n, key[:pos])
		if err != nil {
			return nil, err
		}
		return t.get(child, key, pos)
	default:
		panic(fmt.Sprintf("%T: invalid node: %v", n, n))
	}
}

// Update binds value to key, replacing any previous binding. An empty value
// removes the key, mirroring the canonical encoding's inability to represent
// empty values. On any error the trie is left unchanged.
func (t *Trie) Update(key, value []byte) error {
	k := keybytesToHex(key)
	if len(value) != 0 {
		_, n, err := t.insert(t.root, nil, k, valueNode(common.CopyBytes(value)))
		if err != nil {
			return err
		}
		t.root = n
		return nil
	}
	return t.Delete(key)
}

// Delete removes the entry for key. Deleting an absent key is a no-op: the
// root is left untouched.
func (t *Trie) Delete(key []byte) error {
	_, n, err := t.delete(t.root, nil, keybytesToHex(key))
	if err != nil {
		return err
	}
	t.root = n
	return nil
}

func (t *Trie) insert(n node, prefix, key []byte, value node) (bool, node, error) {
	if len(key) == 0 {
		if v, ok := n.(valueNode); ok {
			return !bytes.Equal(v, value.(valueNode)), value, nil
		}
		return true, value, nil
	}
	switch n := n.(type) {
	case *shortNode:
		matchlen := prefixLen(key, n.Key)
		// If the whole key matches, keep this short node as is and only
		// update the value.
		if matchlen == len(n.Key) {
			dirty, nn, err := t.insert(n.Val, append(prefix, key[:matchlen]...), key[matchlen:], value)
			if !dirty || err != nil {
				return false, n, err
			}
			return true, &shortNode{n.Key, nn, t.newFlag()}, nil
		}
		// Otherwise branch out at the index where they differ.
		branch := &fullNode{flags: t.newFlag()}
		var err error
		_, branch.Children[n.Key[matchlen]], err = t.insert(nil, append(prefix, n.Key[:matchlen+1]...), n.Key[matchlen+1:], n.Val)
		if err != nil {
			return false, nil, err
		}
		_, branch.Children[key[matchlen]], err = t.insert(nil, append(prefix, key[:matchlen+1]...), key[matchlen+1:], value)
		if err != nil {
			return false, nil, err
		}
		// Replace this short node with the branch if it occurs at index 0.
		if matchlen == 0 {
			return true, branch, nil
		}
		// Otherwise, replace it with a short node leading up to the branch.
		return true, &shortNode{key[:matchlen], branch, t.newFlag()}, nil
	case *fullNode:
		dirty, nn, err := t.insert(n.Children[key[0]], append(prefix, key[0]), key[1:], value)
		if !dirty || err != nil {
			return false, n, err
		}
		n = n.copy()
		n.flags = t.newFlag()
		n.Children[key[0]] = nn
		return true, n, nil
	case nil:
		return true, &shortNode{key, value, t.newFlag()}, nil
	case hashNode:
		// We've hit a part of the trie that isn't loaded yet. Load the node
		// and insert into it.
		rn, err := t.resolve(n, prefix)
		if err != nil {
			return false, nil, err
		}
		dirty, nn, err := t.insert(rn, prefix, key, value)
		if !dirty || err != nil {
			return false, rn, err
		}
		return true, nn, nil
	default:
		panic(fmt.Sprintf("%T: invalid node: %v", n, n))
	}
}

func (t *Trie) delete(n node, prefix, key []byte) (bool, node, error) {
	switch n := n.(type) {
	case *shortNode:
		matchlen := prefixLen(key, n.Key)
		if matchlen < len(n.Key) {
			return false, n, nil // don't replace n on mismatch
		}
		if matchlen == len(key) {
			return true, nil, nil // remove n entirely for whole matches
		}
		// The key is longer than n.Key. Remove the remaining suffix from the
		// subtrie. Child can never be nil here since the subtrie must contain
		// at least two other values with keys longer than n.Key.
		dirty, child, err := t.delete(n.Val, append(prefix, key[:len(n.Key)]...), key[len(n.Key):])
		if !dirty || err != nil {
			return false, n, err
		}
		switch child := child.(type) {
		case *shortNode:
			// Deleting from the subtrie reduced it to another short node.
			// Merge the nodes to avoid creating a shortNode{..., shortNode{...}}.
			// Use concat (which always creates a new slice) instead of append
			// to avoid modifying n.Key since it might be shared with other
			// nodes.
			return true, &shortNode{concat(n.Key, child.Key...), child.Val, t.newFlag()}, nil
		default:
			return true, &shortNode{n.Key, child, t.newFlag()}, nil
		}
	case *fullNode:
		dirty, nn, err := t.delete(n.Children[key[0]], append(prefix, key[0]), key[1:])
		if !dirty || err != nil {
			return false, n, err
		}
		n = n.copy()
		n.flags = t.newFlag()
		n.Children[key[0]] = nn
		// Check how many non-nil entries are left after deleting and reduce
		// the full node to a short node if only one entry is left. Since n
		// must have contained at least two children before deletion (otherwise
		// it would not be a full node) n can never be reduced to nil.
		//
		// When the loop is done, pos contains the index of the single value
		// that is left in n or -2 if n contains at least two values.
		pos := -1
		for i, cld := range &n.Children {
			if cld != nil {
				if pos == -1 {
					pos = i
				} else {
					pos = -2
					break
				}
			}
		}
		if pos >= 0 {
			if pos != 16 {
				// If the remaining entry is a short node, it replaces n and
				// its key gets the missing nibble tacked to the front. This
				// avoids creating an invalid shortNode{..., shortNode{...}}.
				// Since the entry might not be loaded yet, resolve it just
				// for this check.
				cnode := n.Children[pos]
				if hn, ok := cnode.(hashNode); ok {
					rn, err := t.resolve(hn, append(prefix, byte(pos)))
					if err != nil {
						return false, nil, err
					}
					cnode = rn
				}
				if cnode, ok := cnode.(*shortNode); ok {
					k := append([]byte{byte(pos)}, cnode.Key...)
					return true, &shortNode{k, cnode.Val, t.newFlag()}, nil
				}
			}
			// Otherwise, n is replaced by a one-nibble short node containing
			// the child.
			return true, &shortNode{[]byte{byte(pos)}, n.Children[pos], t.newFlag()}, nil
		}
		// n still contains at least two values and cannot be reduced.
		return true, n, nil
	case valueNode:
		return true, nil, nil
	case nil:
		return false, nil, nil
	case hashNode:
		// We've hit a part of the trie that isn't loaded yet. Load the node
		// and delete from it.
		rn, err := t.resolve(n, prefix)
		if err != nil {
			return false, nil, err
		}
		dirty, nn, err := t.delete(rn, prefix, key)
		if !dirty || err != nil {
			return false, rn, err
		}
		return true, nn, nil
	default:
		panic(fmt.Sprintf("%T: invalid node: %v (%v)", n, n, key))
	}
}

// Hash returns the root hash of the trie. It does not write to the store and
// can be used even if the trie has no backing store. The hash is memoized:
// repeated calls without intervening mutations are O(1).
func (t *Trie) Hash() common.Hash {
	if t.root == nil {
		return EmptyRoot
	}
	h := newHasher()
	defer returnHasherToPool(h)
	hashed, cached, _ := h.hash(t.root, true, nil)
	t.root = cached
	return common.BytesToHash(hashed.(hashNode))
}

// Commit computes the root hash and hands every node built since the last
// commit to w, children before parents, the root last. The commitment is
// local: durability and acknowledgment are the persistence collaborator's
// concern.
func (t *Trie) Commit(w NodeWriter) (common.Hash, error) {
	if t.root == nil {
		return EmptyRoot, nil
	}
	h := newHasher()
	defer returnHasherToPool(h)
	hashed, cached, err := h.hash(t.root, true, func(hash hashNode, enc []byte) error {
		return w.PutNode(common.BytesToHash(hash), enc)
	})
	if err != nil {
		return common.Hash{}, err
	}
	t.root = cached
	return common.BytesToHash(hashed.(hashNode)), nil
}

// resolve loads and decodes a node from the cache or the backing store.
// Decoded nodes are immutable and shared freely between concurrent readers.
func (t *Trie) resolve(n hashNode, prefix []byte) (node, error) {
	hash := common.BytesToHash(n)
	if t.cache != nil {
		if cached, ok := t.cache.Get(hash); ok {
			cacheHitCounter.Inc(1)
			return cached.(node), nil
		}
	}
	cacheMissCounter.Inc(1)
	if t.reader == nil {
		return nil, &MissingNodeError{NodeHash: hash, Path: common.CopyBytes(prefix)}
	}
	enc, err := t.reader.GetNode(hash)
	if err != nil {
		return nil, err
	}
	if len(enc) == 0 {
		return nil, &MissingNodeError{NodeHash: hash, Path: common.CopyBytes(prefix)}
	}
	decoded, err := decodeNode(n, enc)
	if err != nil {
		return nil, fmt.Errorf("node %x: %w", hash, err)
	}
	if t.cache != nil {
		t.cache.Add(hash, decoded)
	}
	return decoded, nil
}

func (t *Trie) newFlag() nodeFlag {
	return nodeFlag{dirty: true}
}
