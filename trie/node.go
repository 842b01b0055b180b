package trie

import (
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// node is the in-memory representation of a trie node. The four variants map
// onto the canonical shapes: fullNode is a branch with 16 children plus a
// value slot, shortNode is an extension (no terminator in Key) or a leaf
// (terminator present, Val is a valueNode), hashNode is an unresolved
// reference into the store, and a nil node is the empty trie.
type node interface {
	cache() (hashNode, bool)
	encode(w rlp.EncoderBuffer)
	fstring(string) string
}

type (
	fullNode struct {
		Children [17]node // the 17th slot holds a value terminating at this node
		flags    nodeFlag
	}
	shortNode struct {
		Key   []byte
		Val   node
		flags nodeFlag
	}
	hashNode  []byte
	valueNode []byte
)

// nodeFlag carries caching metadata. hash memoizes the node's digest and is
// recomputed only when the node or a descendant changes; dirty marks nodes
// not yet handed to the persistence collaborator.
type nodeFlag struct {
	hash  hashNode
	dirty bool
}

func (n *fullNode) copy() *fullNode   { copy := *n; return &copy }
func (n *shortNode) copy() *shortNode { copy := *n; return &copy }

func (n *fullNode) cache() (hashNode, bool)  { return n.flags.hash, n.flags.dirty }
func (n *shortNode) cache() (hashNode, bool) { return n.flags.hash, n.flags.dirty }
func (n hashNode) cache() (hashNode, bool)   { return nil, true }
func (n valueNode) cache() (hashNode, bool)  { return nil, true }

var indices = []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "a", "b", "c", "d", "e", "f", "[17]"}

func (n *fullNode) String() string  { return n.fstring("") }
func (n *shortNode) String() string { return n.fstring("") }
func (n hashNode) String() string   { return n.fstring("") }
func (n valueNode) String() string  { return n.fstring("") }

func (n *fullNode) fstring(ind string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[\n%s  ", ind)
	for i, node := range &n.Children {
		if node == nil {
			fmt.Fprintf(&sb, "%s: <nil> ", indices[i])
		} else {
			fmt.Fprintf(&sb, "%s: %v", indices[i], node.fstring(ind+"  "))
		}
	}
	fmt.Fprintf(&sb, "\n%s] ", ind)
	return sb.String()
}
func (n *shortNode) fstring(ind string) string {
	return fmt.Sprintf("{%x: %v} ", n.Key, n.Val.fstring(ind+"  "))
}
func (n hashNode) fstring(string) string  { return fmt.Sprintf("<%x> ", []byte(n)) }
func (n valueNode) fstring(string) string { return fmt.Sprintf("%x ", []byte(n)) }

// decodeNode parses the canonical encoding of a trie node. Malformed input is
// reported as an error, never substituted with a default: a silently defaulted
// node would corrupt the commitment.
func decodeNode(hash, buf []byte) (node, error) {
	if len(buf) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	elems, _, err := rlp.SplitList(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNode, err)
	}
	switch c, _ := rlp.CountValues(elems); c {
	case 2:
		return decodeShort(hash, elems)
	case 17:
		return decodeFull(hash, elems)
	default:
		return nil, fmt.Errorf("%w: invalid number of list elements: %v", ErrMalformedNode, c)
	}
}

func decodeShort(hash, elems []byte) (node, error) {
	kbuf, rest, err := rlp.SplitString(elems)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNode, err)
	}
	flag := nodeFlag{hash: hash}
	key, err := compactToHex(kbuf)
	if err != nil {
		return nil, err
	}
	if hasTerm(key) {
		// value-bearing leaf
		val, _, err := rlp.SplitString(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: leaf value: %v", ErrMalformedNode, err)
		}
		return &shortNode{key, valueNode(common.CopyBytes(val)), flag}, nil
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: extension with empty path", ErrMalformedNode)
	}
	r, _, err := decodeRef(rest)
	if err != nil {
		return nil, err
	}
	return &shortNode{key, r, flag}, nil
}

func decodeFull(hash, elems []byte) (*fullNode, error) {
	n := &fullNode{flags: nodeFlag{hash: hash}}
	for i := 0; i < 16; i++ {
		cld, rest, err := decodeRef(elems)
		if err != nil {
			return nil, fmt.Errorf("child %d: %w", i, err)
		}
		n.Children[i], elems = cld, rest
	}
	val, _, err := rlp.SplitString(elems)
	if err != nil {
		return nil, fmt.Errorf("%w: branch value: %v", ErrMalformedNode, err)
	}
	if len(val) > 0 {
		n.Children[16] = valueNode(common.CopyBytes(val))
	}
	return n, nil
}

func decodeRef(buf []byte) (node, []byte, error) {
	kind, val, rest, err := rlp.Split(buf)
	if err != nil {
		return nil, buf, fmt.Errorf("%w: %v", ErrMalformedNode, err)
	}
	switch {
	case kind == rlp.List:
		// 'embedded' node reference. The encoding must be smaller than a
		// hash in order to be valid.
		if size := len(buf) - len(rest); size > common.HashLength {
			return nil, buf, fmt.Errorf("%w: oversized embedded node (%d bytes)", ErrMalformedNode, size)
		}
		n, err := decodeNode(nil, buf[:len(buf)-len(rest)])
		return n, rest, err
	case kind == rlp.String && len(val) == 0:
		// empty child slot
		return nil, rest, nil
	case kind == rlp.String && len(val) == common.HashLength:
		return hashNode(common.CopyBytes(val)), rest, nil
	default:
		return nil, nil, fmt.Errorf("%w: invalid child reference of size %d", ErrMalformedNode, len(val))
	}
}
