// Package blockstore implements component A of the spec: a persistent
// append-only sequence of blockmodel.RawBlock, indexed by height and
// splittable at a height.
//
// Two implementations share the Store contract, per spec section 4.A:
// MappedVectorStore (a file-backed vector of fixed-size index records
// over a companion blob file) and LevelIndexStore (a goleveldb index
// keyed by height over a companion blob file).
package blockstore

import "github.com/noctis-project/noctis/blockmodel"

// Store is the contract both raw-block-store implementations satisfy.
type Store interface {
	// Push appends raw as the new top block.
	Push(raw *blockmodel.RawBlock) error
	// Pop removes the current top block.
	Pop() error
	// Get returns the block at the given height.
	Get(height uint64) (*blockmodel.RawBlock, error)
	// Count returns the number of stored blocks.
	Count() uint64
	// SplitAt moves every block at height >= at into a new Store,
	// leaving this store holding [0, at).
	SplitAt(at uint64) (Store, error)
	// Close releases the store's file handles.
	Close() error
}
