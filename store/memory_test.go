package store

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreRoundTrip(t *testing.T) {
	require := require.New(t)
	m := NewMemStore()

	hash := common.HexToHash("01")
	require.NoError(m.PutNode(hash, []byte("payload")))
	assert.Equal(t, 1, m.Len())

	enc, err := m.GetNode(hash)
	require.NoError(err)
	assert.Equal(t, []byte("payload"), enc)
}

func TestMemStoreMissingIsNotAnError(t *testing.T) {
	m := NewMemStore()
	enc, err := m.GetNode(common.HexToHash("ff"))
	require.NoError(t, err)
	assert.Nil(t, enc)
}

func TestMemStorePutNodes(t *testing.T) {
	require := require.New(t)
	m := NewMemStore()
	nodes := []Node{
		{Hash: common.HexToHash("01"), Enc: []byte("a")},
		{Hash: common.HexToHash("02"), Enc: []byte("b")},
	}
	require.NoError(m.PutNodes(nodes))
	assert.Equal(t, 2, m.Len())
	enc, err := m.GetNode(common.HexToHash("02"))
	require.NoError(err)
	assert.Equal(t, []byte("b"), enc)
}

func TestMemStoreCopiesBuffers(t *testing.T) {
	require := require.New(t)
	m := NewMemStore()

	buf := []byte("original")
	hash := common.HexToHash("01")
	require.NoError(m.PutNode(hash, buf))
	buf[0] = 'X'

	enc, err := m.GetNode(hash)
	require.NoError(err)
	assert.Equal(t, []byte("original"), enc)

	// the returned slice must not alias the stored one either
	enc[0] = 'Y'
	again, err := m.GetNode(hash)
	require.NoError(err)
	assert.Equal(t, []byte("original"), again)
}
