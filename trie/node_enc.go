package trie

import "github.com/ethereum/go-ethereum/rlp"

// nodeToBytes produces the canonical encoding of a node. The encoding is
// deterministic: two logically different nodes never share an encoding, and
// re-encoding a decoded node reproduces the original bytes.
func nodeToBytes(n node) []byte {
	w := rlp.NewEncoderBuffer(nil)
	n.encode(w)
	result := w.ToBytes()
	w.Flush()
	return result
}

func (n *fullNode) encode(w rlp.EncoderBuffer) {
	offset := w.List()
	for _, c := range n.Children {
		if c != nil {
			c.encode(w)
		} else {
			w.Write(rlp.EmptyString)
		}
	}
	w.ListEnd(offset)
}

// encode expects the Key to already be in compact form; the hasher collapses
// keys before encoding.
func (n *shortNode) encode(w rlp.EncoderBuffer) {
	offset := w.List()
	w.WriteBytes(n.Key)
	if n.Val != nil {
		n.Val.encode(w)
	} else {
		w.Write(rlp.EmptyString)
	}
	w.ListEnd(offset)
}

func (n hashNode) encode(w rlp.EncoderBuffer)  { w.WriteBytes(n) }
func (n valueNode) encode(w rlp.EncoderBuffer) { w.WriteBytes(n) }
