package core

import (
	"github.com/pkg/errors"

	"github.com/noctis-project/noctis/coreerrors"
	"github.com/noctis-project/noctis/validator"
)

// Load implements spec section 4.G's initialization: the root
// segment's backing store is the only thing that actually survives a
// restart (its cache, per spec section 4.B's "no internal locking,
// nothing persisted beyond the raw store" boundary, is rebuilt fresh
// every process start) — so reconciliation here always takes the
// "raw store is ahead of the cache" branch spec.md describes: the
// whole store is replayed, one block at a time, through the same
// decode/validate/push pipeline AddBlock and AddGenesis use, rebuilding
// the in-memory indexes block by block until the cache matches the
// store exactly.
//
// Load must be called exactly once, before Start, on a Core whose tree
// was just opened by the caller (segmenttree.New over the persisted
// root store) and has never had AddGenesis or AddBlock called on it
// yet. A store with zero blocks is a no-op: the caller still needs to
// supply the genesis block via AddGenesis.
func (c *Core) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	root := c.tree.Root()
	store := c.tree.Store(root)
	seg := c.tree.Segment(root)

	if seg.Count() != 0 {
		return errors.New("core: Load called on an already-populated tree")
	}

	n := store.Count()
	if n == 0 {
		return nil
	}

	raw, err := store.Get(0)
	if err != nil {
		return coreerrors.NewCoreError(coreerrors.ErrCorruptedBlockchain, "load: reading genesis block: %s", err)
	}
	decoded, err := decodeBlock(raw)
	if err != nil {
		return coreerrors.NewCoreError(coreerrors.ErrCorruptedBlockchain, "load: decoding genesis block: %s", err)
	}
	if err := seg.PushBlock(genesisPushInput(decoded, c.params.MinimumDifficulty)); err != nil {
		return coreerrors.NewCoreError(coreerrors.ErrCorruptedBlockchain, "load: replaying genesis block: %s", err)
	}

	for h := uint64(1); h < n; h++ {
		raw, err := store.Get(h)
		if err != nil {
			return coreerrors.NewCoreError(coreerrors.ErrCorruptedBlockchain, "load: reading block %d: %s", h, err)
		}
		decoded, err := decodeBlock(raw)
		if err != nil {
			return coreerrors.NewCoreError(coreerrors.ErrCorruptedBlockchain, "load: decoding block %d: %s", h, err)
		}

		parentHeight := h - 1
		blockInput, err := c.buildBlockInput(seg, parentHeight, decoded)
		if err != nil {
			return coreerrors.NewCoreError(coreerrors.ErrCorruptedBlockchain, "load: preparing block %d: %s", h, err)
		}
		result, err := validator.ValidateBlock(c.validatorCtx, seg, parentHeight, decoded.template.Timestamp, blockInput)
		if err != nil {
			return coreerrors.NewCoreError(coreerrors.ErrCorruptedBlockchain, "load: block %d failed re-validation: %s", h, err)
		}
		if err := seg.PushBlock(buildPushInput(decoded, blockInput, result)); err != nil {
			return coreerrors.NewCoreError(coreerrors.ErrCorruptedBlockchain, "load: replaying block %d: %s", h, err)
		}
	}
	return nil
}

// Save implements spec section 4.G's shutdown: drop every alternative
// branch (they are not worth persisting across a restart, and Load has
// no way to reconcile more than the single root store anyway), fuse
// every segment on the canonical path back into one compact root
// segment, and flush it. Tree.Flush already does both steps in one
// pass. Callers should call Stop before Save so the mempool cleaner
// cannot race the final merge.
func (c *Core) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree.Flush()
}
