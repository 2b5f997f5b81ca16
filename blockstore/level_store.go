package blockstore

import (
	"encoding/binary"
	"os"
	"sync/atomic"

	"github.com/btcsuite/goleveldb/leveldb"
	"github.com/noctis-project/noctis/blockmodel"
	"github.com/pkg/errors"
)

// levelBackend is the shared leveldb handle and companion blob file a
// family of LevelIndexStore views (a store and everything produced by
// splitting it) hold in common, so that SplitAt can be O(1): splitting
// never copies index entries, it only narrows the [start, start+count)
// window a view reads through.
type levelBackend struct {
	db       *leveldb.DB
	blob     *os.File
	refCount int32
}

func (b *levelBackend) close() error {
	if atomic.AddInt32(&b.refCount, -1) > 0 {
		return nil
	}
	err1 := b.db.Close()
	err2 := b.blob.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// LevelIndexStore is the "swapped index+data" raw block store of spec
// section 4.A: a sequence of (offset, length) pairs in goleveldb,
// keyed by an absolute height, over a blob file holding concatenated
// serialized blocks. SplitAt is O(1): it produces a new view over the
// same backend at a shifted height window.
type LevelIndexStore struct {
	backend *levelBackend
	start   uint64 // absolute height this view's index 0 corresponds to
	count   uint64 // number of blocks owned by this view
}

// OpenLevelIndexStore opens or creates a LevelIndexStore rooted at
// basePath (basePath is the leveldb directory; basePath+".blob" is the
// data file).
func OpenLevelIndexStore(basePath string) (*LevelIndexStore, error) {
	db, err := leveldb.OpenFile(basePath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "opening leveldb index")
	}
	blob, err := os.OpenFile(basePath+".blob", os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "opening blob file")
	}

	count, err := countExistingKeys(db)
	if err != nil {
		db.Close()
		blob.Close()
		return nil, err
	}

	return &LevelIndexStore{
		backend: &levelBackend{db: db, blob: blob, refCount: 1},
		start:   0,
		count:   count,
	}, nil
}

func countExistingKeys(db *leveldb.DB) (uint64, error) {
	iter := db.NewIterator(nil, nil)
	defer iter.Release()
	var max uint64
	found := false
	for iter.Next() {
		h := binary.BigEndian.Uint64(iter.Key())
		if !found || h+1 > max {
			max = h + 1
			found = true
		}
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return max, nil
}

func heightKey(h uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, h)
	return buf
}

// Push implements Store.
func (s *LevelIndexStore) Push(raw *blockmodel.RawBlock) error {
	encoded := blockmodel.EncodeRawBlock(raw)

	info, err := s.backend.blob.Stat()
	if err != nil {
		return errors.Wrap(err, "statting blob file")
	}
	offset := uint64(info.Size())
	if _, err := s.backend.blob.WriteAt(encoded, int64(offset)); err != nil {
		return errors.Wrap(err, "writing blob")
	}
	if err := s.backend.blob.Sync(); err != nil {
		return errors.Wrap(err, "flushing blob")
	}

	rec := encodeRecord(record{Offset: offset, Length: uint64(len(encoded))})
	absHeight := s.start + s.count
	if err := s.backend.db.Put(heightKey(absHeight), rec, nil); err != nil {
		return errors.Wrap(err, "writing index entry")
	}
	s.count++
	return nil
}

// Pop implements Store.
func (s *LevelIndexStore) Pop() error {
	if s.count == 0 {
		return errors.New("pop on empty store")
	}
	absHeight := s.start + s.count - 1
	if err := s.backend.db.Delete(heightKey(absHeight), nil); err != nil {
		return errors.Wrap(err, "deleting index entry")
	}
	s.count--
	return nil
}

// Get implements Store.
func (s *LevelIndexStore) Get(height uint64) (*blockmodel.RawBlock, error) {
	if height >= s.count {
		return nil, errors.Errorf("index %d out of range (size %d)", height, s.count)
	}
	rec, err := s.backend.db.Get(heightKey(s.start+height), nil)
	if err != nil {
		return nil, errors.Wrap(err, "reading index entry")
	}
	r := decodeRecord(rec)
	buf := make([]byte, r.Length)
	if _, err := s.backend.blob.ReadAt(buf, int64(r.Offset)); err != nil {
		return nil, errors.Wrap(err, "reading blob")
	}
	return blockmodel.DecodeRawBlock(buf)
}

// Count implements Store.
func (s *LevelIndexStore) Count() uint64 { return s.count }

// SplitAt implements Store, in O(1): the returned store is a new view
// over the same backend starting at height `at` relative to this
// store; this store's count is narrowed to `at`. No leveldb entries or
// blob bytes are copied or moved.
func (s *LevelIndexStore) SplitAt(at uint64) (Store, error) {
	if at > s.count {
		return nil, errors.Errorf("split height %d exceeds size %d", at, s.count)
	}
	atomic.AddInt32(&s.backend.refCount, 1)
	upper := &LevelIndexStore{
		backend: s.backend,
		start:   s.start + at,
		count:   s.count - at,
	}
	s.count = at
	return upper, nil
}

// Close implements Store. The shared backend is only actually closed
// once every view derived from it (via SplitAt) has also closed.
func (s *LevelIndexStore) Close() error {
	return s.backend.close()
}
