// Package checkpoints implements the supplemented feature grounded on
// original_source's Checkpoints.cpp/h: a small height-to-hash table
// the validator's rule 12 (spec section 4.D) consults to fast-path
// blocks at or below the checkpoint horizon, plus the
// IsAlternativeBlockAllowed predicate spec section 9's open question
// #2 asks about.
package checkpoints

import (
	"sort"

	"github.com/noctis-project/noctis/crypto"
	"github.com/pkg/errors"
)

// Set holds an ordered table of height->hash checkpoints. Heights may
// be added in any order; Add keeps them sorted, matching the original's
// std::map<uint32_t, Crypto::Hash> iteration order.
type Set struct {
	heights []uint64
	hashes  map[uint64]crypto.Hash
}

// New returns an empty checkpoint set.
func New() *Set {
	return &Set{hashes: make(map[uint64]crypto.Hash)}
}

// Add registers a checkpoint at height. Returns an error if a
// checkpoint already exists at that height, mirroring the original's
// refusal to overwrite.
func (s *Set) Add(height uint64, hash crypto.Hash) error {
	if _, exists := s.hashes[height]; exists {
		return errors.Errorf("checkpoint already set at height %d", height)
	}
	s.hashes[height] = hash
	idx := sort.Search(len(s.heights), func(i int) bool { return s.heights[i] >= height })
	s.heights = append(s.heights, 0)
	copy(s.heights[idx+1:], s.heights[idx:])
	s.heights[idx] = height
	log.Infof("registered checkpoint at height %d: %s", height, hash)
	return nil
}

// Heights returns every checkpointed height in increasing order.
func (s *Set) Heights() []uint64 {
	return append([]uint64(nil), s.heights...)
}

// IsInCheckpointZone reports whether height is at or below the
// highest configured checkpoint.
func (s *Set) IsInCheckpointZone(height uint64) bool {
	if len(s.heights) == 0 {
		return false
	}
	return height <= s.heights[len(s.heights)-1]
}

// CheckBlock validates hash against the checkpoint at height, if any.
// isCheckpoint reports whether height names a checkpoint at all; when
// it is false the block is simply not constrained by this check and
// passed is true. When isCheckpoint is true, passed reports whether
// hash matches.
func (s *Set) CheckBlock(height uint64, hash crypto.Hash) (passed bool, isCheckpoint bool) {
	want, ok := s.hashes[height]
	if !ok {
		return true, false
	}
	return want == hash, true
}

// IsAlternativeBlockAllowed reports whether an alternative (non-
// canonical) block at blockIndex is permitted given the canonical
// chain's current size. Grounded on the original's
// isAlternativeBlockAllowed: blockchainSize 0 is always disallowed
// (spec section 9's open question #2 — the validator's
// previousHeight+1 >= 1 invariant makes this case unreachable in
// practice); otherwise an alternative is allowed only if it does not
// attempt to rewrite history at or before the most recent checkpoint
// not yet superseded by blockchainSize.
func (s *Set) IsAlternativeBlockAllowed(blockchainSize, blockIndex uint64) bool {
	if blockchainSize == 0 {
		return false
	}
	idx := sort.Search(len(s.heights), func(i int) bool { return s.heights[i] > blockchainSize })
	if idx == 0 {
		return true
	}
	checkpointHeight := s.heights[idx-1]
	return checkpointHeight < blockIndex
}
