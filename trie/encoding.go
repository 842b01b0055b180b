package trie

import "fmt"

// Trie keys are dealt with in three distinct encodings:
//
// KEYBYTES encoding contains the actual key and nothing else. This encoding is
// the input to most API functions.
//
// HEX encoding contains one byte for each nibble of the key and an optional
// trailing 'terminator' byte of value 0x10 which indicates whether or not the
// node at the key contains a value. Hex key encoding is used for nodes loaded
// in memory because it's convenient to access.
//
// COMPACT encoding ("hex prefix" encoding) contains the bytes of the key and
// two flag bits packed into the high nibble of the first byte: the lowest bit
// encodes the oddness of the length, the second-lowest whether the node at
// the key is a value-bearing node. The low nibble of the first byte is zero
// for an even number of nibbles and holds the first nibble for an odd number.
// Compact encoding is used for nodes stored on disk and in proofs.

func hexToCompact(hex []byte) []byte {
	terminator := byte(0)
	if hasTerm(hex) {
		terminator = 1
		hex = hex[:len(hex)-1]
	}
	buf := make([]byte, len(hex)/2+1)
	buf[0] = terminator << 5 // the flag byte
	if len(hex)&1 == 1 {
		buf[0] |= 1 << 4 // odd flag
		buf[0] |= hex[0] // first nibble is contained in the first byte
		hex = hex[1:]
	}
	decodeNibbles(hex, buf[1:])
	return buf
}

// compactToHex reverses hexToCompact. The flag bits must agree with the byte
// layout: an even-length path has a zero pad nibble, and only the two defined
// flag bits may be set.
func compactToHex(compact []byte) ([]byte, error) {
	if len(compact) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrInconsistentPath)
	}
	if flags := compact[0] >> 4; flags > 3 {
		return nil, fmt.Errorf("%w: invalid flag nibble %#x", ErrInconsistentPath, flags)
	}
	if compact[0]&0x10 == 0 && compact[0]&0x0f != 0 {
		return nil, fmt.Errorf("%w: nonzero pad nibble in even-length path", ErrInconsistentPath)
	}
	base := keybytesToHex(compact)
	// delete terminator flag
	if base[0] < 2 {
		base = base[:len(base)-1]
	}
	// apply odd flag
	chop := 2 - base[0]&1
	return base[chop:], nil
}

func keybytesToHex(str []byte) []byte {
	l := len(str)*2 + 1
	nibbles := make([]byte, l)
	for i, b := range str {
		nibbles[i*2] = b / 16
		nibbles[i*2+1] = b % 16
	}
	nibbles[l-1] = 16
	return nibbles
}

// hexToKeybytes turns hex nibbles into key bytes.
// This can only be used for keys of even length.
func hexToKeybytes(hex []byte) []byte {
	if hasTerm(hex) {
		hex = hex[:len(hex)-1]
	}
	if len(hex)&1 != 0 {
		panic("can't convert hex key of odd length")
	}
	key := make([]byte, len(hex)/2)
	decodeNibbles(hex, key)
	return key
}

func decodeNibbles(nibbles []byte, bytes []byte) {
	for bi, ni := 0, 0; ni < len(nibbles); bi, ni = bi+1, ni+2 {
		bytes[bi] = nibbles[ni]<<4 | nibbles[ni+1]
	}
}

// prefixLen returns the length of the common prefix of a and b.
func prefixLen(a, b []byte) int {
	var i, length = 0, len(a)
	if len(b) < length {
		length = len(b)
	}
	for ; i < length; i++ {
		if a[i] != b[i] {
			break
		}
	}
	return i
}

// hasTerm returns whether a hex key has the terminator flag.
func hasTerm(s []byte) bool {
	return len(s) > 0 && s[len(s)-1] == 16
}

// concat always allocates a new slice, unlike append, so the result never
// aliases s1. Node keys may be shared between trie versions.
func concat(s1 []byte, s2 ...byte) []byte {
	r := make([]byte, len(s1)+len(s2))
	copy(r, s1)
	copy(r[len(s1):], s2)
	return r
}
