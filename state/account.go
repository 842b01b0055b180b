package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/vireo-network/vireo-state/trie"
)

var (
	// EmptyRoot is the root hash of an empty trie, the sentinel storage
	// root of an account with no storage.
	EmptyRoot = trie.EmptyRoot

	// EmptyCodeHash is the digest of zero-length code.
	EmptyCodeHash = common.HexToHash("c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470")
)

// ErrAccountDecode is returned when stored account bytes are truncated or
// otherwise malformed. Decoding never falls back to a default record; a
// defaulted record would silently change the state commitment.
var ErrAccountDecode = errors.New("malformed account encoding")

// Account is the record stored per address.
type Account struct {
	Nonce       uint64
	Balance     *uint256.Int
	StorageRoot common.Hash
	CodeHash    common.Hash
}

// NewAccount returns a record with every field at its zero or sentinel value.
func NewAccount() *Account {
	return &Account{
		Balance:     uint256.NewInt(0),
		StorageRoot: EmptyRoot,
		CodeHash:    EmptyCodeHash,
	}
}

// IsEmpty reports whether every field equals its zero or sentinel value.
// Empty records are removed from the trie rather than stored.
func (a *Account) IsEmpty() bool {
	return a.Nonce == 0 &&
		(a.Balance == nil || a.Balance.IsZero()) &&
		a.StorageRoot == EmptyRoot &&
		a.CodeHash == EmptyCodeHash
}

// Copy returns an independent copy of the record.
func (a *Account) Copy() *Account {
	cpy := *a
	if a.Balance != nil {
		cpy.Balance = new(uint256.Int).Set(a.Balance)
	}
	return &cpy
}

// Encode produces the canonical encoding of the record: an RLP list of
// nonce, balance, storage root and code hash, in that order.
func (a *Account) Encode() []byte {
	w := rlp.NewEncoderBuffer(nil)
	list := w.List()
	w.WriteUint64(a.Nonce)
	if a.Balance != nil {
		w.WriteBytes(a.Balance.Bytes())
	} else {
		w.Write(rlp.EmptyString)
	}
	w.WriteBytes(a.StorageRoot[:])
	w.WriteBytes(a.CodeHash[:])
	w.ListEnd(list)
	enc := w.ToBytes()
	w.Flush()
	return enc
}

// DecodeAccount parses the canonical record encoding. Truncated, oversized
// or non-canonical input is rejected with ErrAccountDecode.
func DecodeAccount(enc []byte) (*Account, error) {
	elems, rest, err := rlp.SplitList(enc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccountDecode, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: trailing bytes after record", ErrAccountDecode)
	}
	acc := new(Account)

	nonce, elems, err := splitUint(elems)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrAccountDecode, err)
	}
	acc.Nonce = nonce

	bal, elems, err := splitCanonical(elems, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: balance: %v", ErrAccountDecode, err)
	}
	acc.Balance = new(uint256.Int).SetBytes(bal)

	root, elems, err := splitHash(elems)
	if err != nil {
		return nil, fmt.Errorf("%w: storage root: %v", ErrAccountDecode, err)
	}
	acc.StorageRoot = root

	code, elems, err := splitHash(elems)
	if err != nil {
		return nil, fmt.Errorf("%w: code hash: %v", ErrAccountDecode, err)
	}
	acc.CodeHash = code

	if len(elems) != 0 {
		return nil, fmt.Errorf("%w: trailing fields in record", ErrAccountDecode)
	}
	return acc, nil
}

// splitUint reads one canonically encoded unsigned integer of at most eight
// bytes.
func splitUint(b []byte) (uint64, []byte, error) {
	content, rest, err := splitCanonical(b, 8)
	if err != nil {
		return 0, b, err
	}
	var v uint64
	for _, x := range content {
		v = v<<8 | uint64(x)
	}
	return v, rest, nil
}

// splitCanonical reads one string field of at most max bytes, enforcing the
// canonical integer form (no leading zero bytes).
func splitCanonical(b []byte, max int) ([]byte, []byte, error) {
	content, rest, err := rlp.SplitString(b)
	if err != nil {
		return nil, b, err
	}
	if len(content) > max {
		return nil, b, fmt.Errorf("field longer than %d bytes", max)
	}
	if len(content) > 0 && content[0] == 0 {
		return nil, b, errors.New("non-canonical integer (leading zero bytes)")
	}
	return content, rest, nil
}

// splitHash reads one 32-byte string field.
func splitHash(b []byte) (common.Hash, []byte, error) {
	content, rest, err := rlp.SplitString(b)
	if err != nil {
		return common.Hash{}, b, err
	}
	if len(content) != common.HashLength {
		return common.Hash{}, b, fmt.Errorf("hash field of %d bytes", len(content))
	}
	return common.BytesToHash(content), rest, nil
}
