package blockstore

import (
	"os"

	"github.com/noctis-project/noctis/blockmodel"
	"github.com/pkg/errors"
)

// MappedVectorStore is the "memory-mapped file vector" raw block
// store of spec section 4.A: a recordVector of fixed-size
// (blobOffset, blobLength) records pointing into a companion append-
// only blob file. SplitAt is O(moved-count): every surviving record is
// copied to the new store, matching the vector variant's complexity
// bound.
type MappedVectorStore struct {
	indexPath string
	blobPath  string

	index *recordVector
	blob  *os.File
}

// OpenMappedVectorStore opens or creates a MappedVectorStore rooted
// at basePath (basePath is the index file; basePath+".blob" is the
// data file).
func OpenMappedVectorStore(basePath string) (*MappedVectorStore, error) {
	index, err := openRecordVector(basePath, ModeOpenOrCreate, 0, 0)
	if err != nil {
		return nil, errors.Wrap(err, "opening index vector")
	}
	blobPath := basePath + ".blob"
	blob, err := os.OpenFile(blobPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		index.Close()
		return nil, errors.Wrap(err, "opening blob file")
	}
	return &MappedVectorStore{indexPath: basePath, blobPath: blobPath, index: index, blob: blob}, nil
}

// Push implements Store.
func (s *MappedVectorStore) Push(raw *blockmodel.RawBlock) error {
	encoded := blockmodel.EncodeRawBlock(raw)

	info, err := s.blob.Stat()
	if err != nil {
		return errors.Wrap(err, "statting blob file")
	}
	offset := uint64(info.Size())

	if _, err := s.blob.WriteAt(encoded, int64(offset)); err != nil {
		return errors.Wrap(err, "writing blob")
	}
	if err := s.blob.Sync(); err != nil {
		return errors.Wrap(err, "flushing blob")
	}

	if err := s.index.PushBack(record{Offset: offset, Length: uint64(len(encoded))}); err != nil {
		return errors.Wrap(err, "appending index record")
	}
	return nil
}

// Pop implements Store. The underlying blob bytes are left orphaned in
// the blob file, per spec section 8's round-trip law (bytes beyond
// size may differ, [0, size) is preserved).
func (s *MappedVectorStore) Pop() error {
	return s.index.PopBack()
}

// Get implements Store.
func (s *MappedVectorStore) Get(height uint64) (*blockmodel.RawBlock, error) {
	r, err := s.index.Get(height)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, r.Length)
	if _, err := s.blob.ReadAt(buf, int64(r.Offset)); err != nil {
		return nil, errors.Wrap(err, "reading blob")
	}
	return blockmodel.DecodeRawBlock(buf)
}

// Count implements Store.
func (s *MappedVectorStore) Count() uint64 {
	return s.index.Size()
}

// SplitAt implements Store.
func (s *MappedVectorStore) SplitAt(at uint64) (Store, error) {
	newIndexPath := s.indexPath + splitSuffix(at)
	newBlobPath := newIndexPath + ".blob"

	upperIndex, err := s.index.splitOff(at, newIndexPath)
	if err != nil {
		return nil, err
	}

	// The upper half's blob offsets are absolute into this store's
	// blob file; copy the referenced bytes into a dedicated blob file
	// for the new store so the two stores are independently usable
	// and independently closeable.
	upperBlob, err := os.OpenFile(newBlobPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "creating split blob file")
	}
	writeOffset := int64(0)
	for i := uint64(0); i < upperIndex.Size(); i++ {
		r, err := upperIndex.Get(i)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, r.Length)
		if _, err := s.blob.ReadAt(buf, int64(r.Offset)); err != nil {
			return nil, errors.Wrap(err, "reading blob during split")
		}
		if _, err := upperBlob.WriteAt(buf, writeOffset); err != nil {
			return nil, errors.Wrap(err, "writing split blob")
		}
		// Rewrite the copied record to point at its new, compacted offset.
		newOff := uint64(writeOffset)
		off := recordsOffset(upperIndex.prefixSize) + int64(i)*recordSize
		if _, err := upperIndex.file.WriteAt(encodeRecord(record{Offset: newOff, Length: r.Length}), off); err != nil {
			return nil, errors.Wrap(err, "rewriting split record")
		}
		writeOffset += int64(r.Length)
	}
	if err := upperBlob.Sync(); err != nil {
		return nil, errors.Wrap(err, "flushing split blob")
	}

	return &MappedVectorStore{indexPath: newIndexPath, blobPath: newBlobPath, index: upperIndex, blob: upperBlob}, nil
}

// Close implements Store.
func (s *MappedVectorStore) Close() error {
	err1 := s.index.Close()
	err2 := s.blob.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func splitSuffix(at uint64) string {
	return ".split." + itoa(at)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var digits [20]byte
	i := len(digits)
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	return string(digits[i:])
}
