package store

import (
	"time"

	"github.com/allegro/bigcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDBConfig tunes the durable node store.
type LevelDBConfig struct {
	File    string // database directory
	Cache   int    // LevelDB internal cache budget, in MiB
	Handles int    // file handle budget
	// EncCacheMB sizes the read-through cache of encoded nodes in front of
	// LevelDB. Zero disables it.
	EncCacheMB int
}

// LevelDBStore is a durable node store on LevelDB with an optional
// read-through byte cache. Node encodings are content-addressed and never
// change, so cached entries cannot go stale.
type LevelDBStore struct {
	db    *leveldb.DB
	cache *bigcache.BigCache
}

func OpenLevelDB(cfg LevelDBConfig) (*LevelDBStore, error) {
	if cfg.Cache < 16 {
		cfg.Cache = 16
	}
	if cfg.Handles < 16 {
		cfg.Handles = 16
	}
	db, err := leveldb.OpenFile(cfg.File, &opt.Options{
		OpenFilesCacheCapacity: cfg.Handles,
		BlockCacheCapacity:     cfg.Cache / 2 * opt.MiB,
		WriteBuffer:            cfg.Cache / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	})
	if err != nil {
		return nil, err
	}
	s := &LevelDBStore{db: db}
	if cfg.EncCacheMB > 0 {
		conf := bigcache.DefaultConfig(10 * time.Minute)
		conf.HardMaxCacheSize = cfg.EncCacheMB
		cache, err := bigcache.NewBigCache(conf)
		if err != nil {
			db.Close()
			return nil, err
		}
		s.cache = cache
	}
	return s, nil
}

func (s *LevelDBStore) GetNode(hash common.Hash) ([]byte, error) {
	if s.cache != nil {
		if enc, err := s.cache.Get(string(hash[:])); err == nil {
			return enc, nil
		}
	}
	enc, err := s.db.Get(hash[:], nil)
	if err == errors.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(string(hash[:]), enc)
	}
	return enc, nil
}

func (s *LevelDBStore) PutNodes(nodes []Node) error {
	batch := new(leveldb.Batch)
	for _, n := range nodes {
		batch.Put(n.Hash[:], n.Enc)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return err
	}
	if s.cache != nil {
		for _, n := range nodes {
			s.cache.Set(string(n.Hash[:]), n.Enc)
		}
	}
	return nil
}

// PutNode stores one node synchronously. It implements trie.NodeWriter for
// callers that commit without a flusher in between.
func (s *LevelDBStore) PutNode(hash common.Hash, enc []byte) error {
	return s.PutNodes([]Node{{Hash: hash, Enc: common.CopyBytes(enc)}})
}

func (s *LevelDBStore) Close() error {
	if s.cache != nil {
		s.cache.Reset()
	}
	return s.db.Close()
}
