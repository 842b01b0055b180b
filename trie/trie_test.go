package trie

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memWriter collects committed nodes and serves them back, standing in for
// the store package without importing it.
type memWriter map[common.Hash][]byte

func (m memWriter) PutNode(hash common.Hash, enc []byte) error {
	m[hash] = common.CopyBytes(enc)
	return nil
}

func (m memWriter) GetNode(hash common.Hash) ([]byte, error) {
	return m[hash], nil
}

func newEmpty() *Trie {
	tr, _ := New(common.Hash{}, nil, 0)
	return tr
}

func updateString(t *testing.T, tr *Trie, k, v string) {
	require.NoError(t, tr.Update([]byte(k), []byte(v)))
}

func getString(t *testing.T, tr *Trie, k string) []byte {
	v, err := tr.Get([]byte(k))
	require.NoError(t, err)
	return v
}

func TestEmptyTrie(t *testing.T) {
	tr := newEmpty()
	assert.Equal(t, EmptyRoot, tr.Hash())
	v, err := tr.Get([]byte("anything"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestInsert(t *testing.T) {
	assert := assert.New(t)
	tr := newEmpty()
	updateString(t, tr, "doe", "reindeer")
	updateString(t, tr, "dog", "puppy")
	updateString(t, tr, "dogglesworth", "cat")
	assert.Equal(common.HexToHash("8aad789dff2f538bca5d8ea56e8abe10f4c7ba3a5dea95fea4cd6e7c3a1168d3"), tr.Hash())

	tr = newEmpty()
	updateString(t, tr, "A", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	assert.Equal(common.HexToHash("d23786fb4a010da3ce639d66d5e904a11dbc02746d1ce25029e53290cabf28ab"), tr.Hash())
}

func TestGet(t *testing.T) {
	assert := assert.New(t)
	tr := newEmpty()
	updateString(t, tr, "doe", "reindeer")
	updateString(t, tr, "dog", "puppy")
	updateString(t, tr, "dogglesworth", "cat")

	assert.Equal([]byte("puppy"), getString(t, tr, "dog"))
	assert.Nil(getString(t, tr, "unknown"))
	assert.Nil(getString(t, tr, "do")) // proper prefix of stored keys
}

func TestUpdateReplaces(t *testing.T) {
	tr := newEmpty()
	updateString(t, tr, "dog", "puppy")
	first := tr.Hash()
	updateString(t, tr, "dog", "hound")
	assert.NotEqual(t, first, tr.Hash())
	assert.Equal(t, []byte("hound"), getString(t, tr, "dog"))
}

func TestEmptyValueDeletes(t *testing.T) {
	tr := newEmpty()
	updateString(t, tr, "dog", "puppy")
	require.NoError(t, tr.Update([]byte("dog"), nil))
	assert.Equal(t, EmptyRoot, tr.Hash())
	assert.Nil(t, getString(t, tr, "dog"))
}

func TestDelete(t *testing.T) {
	tr := newEmpty()
	vals := []struct{ k, v string }{
		{"do", "verb"},
		{"ether", "wookiedoo"},
		{"horse", "stallion"},
		{"shaman", "horse"},
		{"doge", "coin"},
		{"ether", ""},
		{"dog", "puppy"},
		{"shaman", ""},
	}
	for _, val := range vals {
		if val.v != "" {
			updateString(t, tr, val.k, val.v)
		} else {
			require.NoError(t, tr.Delete([]byte(val.k)))
		}
	}
	assert.Equal(t, common.HexToHash("5991bb8c6514148a29db676a14ac506cd2cd5775ace63c30a4fe457715e9ac84"), tr.Hash())
}

func TestDeleteAbsentKeyIsNoop(t *testing.T) {
	tr := newEmpty()
	updateString(t, tr, "dog", "puppy")
	root := tr.Hash()
	require.NoError(t, tr.Delete([]byte("doge")))
	require.NoError(t, tr.Delete([]byte("cat")))
	assert.Equal(t, root, tr.Hash())
}

func TestDeleteIsInsertInverse(t *testing.T) {
	// Keys sharing a prefix force a branch; deleting one must collapse the
	// branch back to the exact shape direct insertion produces.
	pairs := []struct{ keep, drop []byte }{
		{keep: []byte{0x11, 0x22, 0x33}, drop: []byte{0x11, 0x2a, 0xff}},
		// sharing only the first nibble
		{keep: []byte{0x1a, 0x22, 0x33}, drop: []byte{0x1b, 0x22, 0x33}},
		// no shared prefix at all
		{keep: []byte{0xaa, 0x22, 0x33}, drop: []byte{0x5b, 0x22, 0x33}},
	}
	for _, p := range pairs {
		tr := newEmpty()
		require.NoError(t, tr.Update(p.keep, []byte("keep")))
		require.NoError(t, tr.Update(p.drop, []byte("drop")))
		require.NoError(t, tr.Delete(p.drop))

		want := newEmpty()
		require.NoError(t, want.Update(p.keep, []byte("keep")))
		assert.Equal(t, want.Hash(), tr.Hash(), "keys %x / %x", p.keep, p.drop)
	}
}

func TestInsertionOrderIndependence(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	keys := make([][]byte, 40)
	for i := range keys {
		keys[i] = make([]byte, 20)
		rnd.Read(keys[i])
	}
	var want common.Hash
	for round := 0; round < 5; round++ {
		tr := newEmpty()
		for _, j := range rnd.Perm(len(keys)) {
			require.NoError(t, tr.Update(keys[j], []byte(fmt.Sprintf("value-%x", keys[j][:4]))))
		}
		if round == 0 {
			want = tr.Hash()
			continue
		}
		assert.Equal(t, want, tr.Hash(), "round %d", round)
	}
}

func TestHashMemoized(t *testing.T) {
	tr := newEmpty()
	updateString(t, tr, "alpha", "1")
	updateString(t, tr, "beta", "2")
	h1 := tr.Hash()
	h2 := tr.Hash()
	assert.Equal(t, h1, h2)
	updateString(t, tr, "gamma", "3")
	assert.NotEqual(t, h1, tr.Hash())
}

func TestCopyIsolation(t *testing.T) {
	assert := assert.New(t)
	tr := newEmpty()
	updateString(t, tr, "shared", "before")
	root := tr.Hash()

	cp := tr.Copy()
	updateString(t, cp, "shared", "after")
	updateString(t, cp, "extra", "entry")

	assert.Equal(root, tr.Hash())
	assert.Equal([]byte("before"), getString(t, tr, "shared"))
	assert.Equal([]byte("after"), getString(t, cp, "shared"))
	assert.Nil(getString(t, tr, "extra"))
}

func TestCommitAndReload(t *testing.T) {
	require := require.New(t)
	store := memWriter{}
	tr := newEmpty()
	entries := map[string]string{
		"doe":          "reindeer",
		"dog":          "puppy",
		"dogglesworth": "cat",
		"horse":        "stallion",
	}
	for k, v := range entries {
		updateString(t, tr, k, v)
	}
	root, err := tr.Commit(store)
	require.NoError(err)
	require.Equal(tr.Hash(), root)

	reloaded, err := New(root, store, 128)
	require.NoError(err)
	for k, v := range entries {
		assert.Equal(t, []byte(v), getString(t, reloaded, k), "key %q", k)
	}
	assert.Equal(t, root, reloaded.Hash())
}

func TestMutateReloadedTrie(t *testing.T) {
	require := require.New(t)
	store := memWriter{}
	tr := newEmpty()
	updateString(t, tr, "doe", "reindeer")
	updateString(t, tr, "dog", "puppy")
	updateString(t, tr, "dogglesworth", "cat")
	root, err := tr.Commit(store)
	require.NoError(err)

	reloaded, err := New(root, store, 128)
	require.NoError(err)
	require.NoError(reloaded.Delete([]byte("dogglesworth")))

	want := newEmpty()
	updateString(t, want, "doe", "reindeer")
	updateString(t, want, "dog", "puppy")
	assert.Equal(t, want.Hash(), reloaded.Hash())
}

func TestMissingNode(t *testing.T) {
	require := require.New(t)
	store := memWriter{}
	tr := newEmpty()
	for i := 0; i < 50; i++ {
		key := make([]byte, 20)
		key[0], key[19] = byte(i), byte(i)
		require.NoError(tr.Update(key, []byte{byte(i + 1)}))
	}
	root, err := tr.Commit(store)
	require.NoError(err)

	// drop everything but the root node
	for hash := range store {
		if hash != root {
			delete(store, hash)
		}
	}
	reloaded, err := New(root, store, 0)
	require.NoError(err)
	probe := make([]byte, 20)
	probe[0], probe[19] = 1, 1
	_, err = reloaded.Get(probe)
	var missing *MissingNodeError
	require.ErrorAs(err, &missing)
	assert.NotEqual(t, common.Hash{}, missing.NodeHash)
}

func TestCommitChildrenBeforeParents(t *testing.T) {
	require := require.New(t)
	var order []common.Hash
	seen := make(map[common.Hash][]byte)
	tr := newEmpty()
	for i := 0; i < 30; i++ {
		key := make([]byte, 20)
		key[0] = byte(i * 7)
		key[19] = byte(i)
		require.NoError(tr.Update(key, []byte(fmt.Sprintf("value %d", i))))
	}
	root, err := tr.Commit(writerFunc(func(hash common.Hash, enc []byte) error {
		order = append(order, hash)
		seen[hash] = common.CopyBytes(enc)
		return nil
	}))
	require.NoError(err)
	require.NotEmpty(order)
	assert.Equal(t, root, order[len(order)-1], "root must arrive last")

	// every reference inside an already-stored node must point to a node
	// stored before it
	stored := make(map[common.Hash]bool)
	for _, hash := range order {
		n, err := decodeNode(hash.Bytes(), seen[hash])
		require.NoError(err)
		checkRefsStored(t, n, stored)
		stored[hash] = true
	}
}

type writerFunc func(hash common.Hash, enc []byte) error

func (f writerFunc) PutNode(hash common.Hash, enc []byte) error { return f(hash, enc) }

func checkRefsStored(t *testing.T, n node, stored map[common.Hash]bool) {
	switch n := n.(type) {
	case *shortNode:
		checkRefsStored(t, n.Val, stored)
	case *fullNode:
		for _, cld := range n.Children {
			if cld != nil {
				checkRefsStored(t, cld, stored)
			}
		}
	case hashNode:
		assert.True(t, stored[common.BytesToHash(n)], "dangling reference %x", []byte(n))
	}
}
