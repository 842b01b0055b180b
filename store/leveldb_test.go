package store

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLevelDB(t *testing.T, dir string) *LevelDBStore {
	s, err := OpenLevelDB(LevelDBConfig{File: dir, EncCacheMB: 8})
	require.NoError(t, err)
	return s
}

func TestLevelDBRoundTrip(t *testing.T) {
	require := require.New(t)
	s := openTestLevelDB(t, t.TempDir())
	defer s.Close()

	nodes := []Node{
		{Hash: common.HexToHash("01"), Enc: []byte("first")},
		{Hash: common.HexToHash("02"), Enc: []byte("second")},
	}
	require.NoError(s.PutNodes(nodes))

	enc, err := s.GetNode(common.HexToHash("01"))
	require.NoError(err)
	assert.Equal(t, []byte("first"), enc)

	// second read comes from the byte cache
	enc, err = s.GetNode(common.HexToHash("01"))
	require.NoError(err)
	assert.Equal(t, []byte("first"), enc)
}

func TestLevelDBMissingIsNotAnError(t *testing.T) {
	s := openTestLevelDB(t, t.TempDir())
	defer s.Close()

	enc, err := s.GetNode(common.HexToHash("ff"))
	require.NoError(t, err)
	assert.Nil(t, enc)
}

func TestLevelDBPutNode(t *testing.T) {
	require := require.New(t)
	s := openTestLevelDB(t, t.TempDir())
	defer s.Close()

	hash := common.HexToHash("aa")
	require.NoError(s.PutNode(hash, []byte("single")))
	enc, err := s.GetNode(hash)
	require.NoError(err)
	assert.Equal(t, []byte("single"), enc)
}

func TestLevelDBSurvivesReopen(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	s := openTestLevelDB(t, dir)
	hash := common.HexToHash("0b")
	require.NoError(s.PutNode(hash, []byte("durable")))
	require.NoError(s.Close())

	// no byte cache this time, the read must come from disk
	s2, err := OpenLevelDB(LevelDBConfig{File: dir})
	require.NoError(err)
	defer s2.Close()
	enc, err := s2.GetNode(hash)
	require.NoError(err)
	assert.Equal(t, []byte("durable"), enc)
}

func TestLevelDBWorksWithFlusher(t *testing.T) {
	require := require.New(t)
	s := openTestLevelDB(t, t.TempDir())
	defer s.Close()

	f := NewFlusher(s, 4)
	n := Node{Hash: common.HexToHash("cc"), Enc: []byte("via flusher")}
	require.NoError(f.PutNode(n.Hash, n.Enc))
	require.NoError(f.Close())

	enc, err := s.GetNode(n.Hash)
	require.NoError(err)
	assert.Equal(t, []byte("via flusher"), enc)
}
