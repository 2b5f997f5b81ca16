package core

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/crypto"
	"github.com/noctis-project/noctis/segment"
)

// ErrTooFewUnlockedOutputs is returned by GetRandomOutputs when fewer
// than count unlocked outputs of the requested amount exist anywhere
// on the canonical chain.
var ErrTooFewUnlockedOutputs = errors.New("too few unlocked outputs of the requested amount")

// RandomOutput is one resolved decoy output: its global index and the
// key a ring signature verifies against.
type RandomOutput struct {
	GlobalIndex uint64
	Key         crypto.PublicKey
}

// GetRandomOutputs implements spec section 4.G's get_random_outputs:
// count distinct unlocked global indexes for amount, drawn uniformly
// from the canonical chain's full index range. A bounded number of
// redraws tolerates locked or already-picked indexes; exhausting the
// budget without reaching count is ErrTooFewUnlockedOutputs.
func (c *Core) GetRandomOutputs(amount uint64, count int) ([]RandomOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	height, ok := c.canonicalHeight()
	if !ok {
		if count == 0 {
			return nil, nil
		}
		return nil, ErrTooFewUnlockedOutputs
	}
	view := c.canonicalView()
	total := view.OutputCountForAmount(amount)
	if total == 0 {
		return nil, ErrTooFewUnlockedOutputs
	}

	seen := make(map[uint64]bool, count)
	outputs := make([]RandomOutput, 0, count)
	maxAttempts := int(total) * 4
	if maxAttempts < count*8 {
		maxAttempts = count * 8
	}

	for attempt := 0; len(outputs) < count && attempt < maxAttempts; attempt++ {
		gi := uint64(rand.Int63n(int64(total)))
		if seen[gi] {
			continue
		}
		seen[gi] = true

		var key crypto.PublicKey
		status, err := view.ExtractKeyOutputs(amount, height, []uint64{gi}, func(info *segment.TxInfo, outIndex int, globalIndex uint64) error {
			out := info.Outputs[outIndex]
			if out.TargetKind == blockmodel.OutputKey {
				key = out.Key
			}
			return nil
		})
		if err != nil || status != segment.ExtractSuccess {
			continue
		}
		outputs = append(outputs, RandomOutput{GlobalIndex: gi, Key: key})
	}

	if len(outputs) < count {
		return nil, ErrTooFewUnlockedOutputs
	}
	return outputs, nil
}

// GetTransactions implements spec section 4.G's get_transactions:
// resolves each hash against the mempool first, then the segment
// forest, partitioning into found and missed.
func (c *Core) GetTransactions(hashes []crypto.Hash) (found []*blockmodel.CachedTransaction, missed []crypto.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, hash := range hashes {
		if e, ok := c.pool.Get(hash); ok {
			found = append(found, e.Tx)
			continue
		}
		if tx, ok := c.lookupTransaction(hash); ok {
			found = append(found, tx)
			continue
		}
		missed = append(missed, hash)
	}
	return found, missed
}

// lookupTransaction resolves a transaction's bytes from whichever
// segment in the forest actually cached it (any branch, not just the
// canonical one — a chain-switch leaves abandoned branches' blocks on
// disk, and get_transactions/mempool reconciliation both need to read
// through to them). Callers must already hold c.mu.
func (c *Core) lookupTransaction(hash crypto.Hash) (*blockmodel.CachedTransaction, bool) {
	segID, ok := c.tree.FindSegmentContainingTx(hash)
	if !ok {
		return nil, false
	}
	seg := c.tree.Segment(segID)
	info, ok := seg.OwnTxInfo(hash)
	if !ok {
		return nil, false
	}

	localHeight := info.BlockHeight - seg.StartHeight
	raw, err := c.tree.Store(segID).Get(localHeight)
	if err != nil {
		return nil, false
	}
	if info.TxIndexInBlock >= len(raw.TxBytes) {
		return nil, false
	}
	t, err := blockmodel.DecodeTransactionWithSignatures(raw.TxBytes[info.TxIndexInBlock])
	if err != nil {
		return nil, false
	}
	return blockmodel.NewCachedTransaction(t), true
}

// QueryBlocks implements spec section 4.G's query_blocks: given the
// caller's list of block hashes it believes are on the canonical
// chain (newest first, as a P2P sync handshake supplies them), find
// the most recent one that is actually on this node's canonical
// chain and return every canonical block after it, up to limit.
func (c *Core) QueryBlocks(knownIDs []crypto.Hash, limit int) (startHeight uint64, blocks []*blockmodel.RawBlock, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := c.canonicalView()
	height, ok := c.canonicalHeight()
	if !ok {
		return 0, nil, nil
	}

	splitHeight := uint64(0)
	found := false
	for _, id := range knownIDs {
		if h, ok := view.BlockHeightByHash(id); ok {
			splitHeight = h
			found = true
			break
		}
	}
	if !found {
		return 0, nil, errors.New("no common block found with caller's chain")
	}

	canonicalID := c.tree.Canonical()
	start := splitHeight + 1
	for h := start; h <= height && len(blocks) < limit; h++ {
		segID, ok := c.tree.FindSegmentContainingBlock(mustHashAt(view, h))
		if !ok {
			segID = canonicalID
		}
		raw, err := c.tree.Store(segID).Get(h - c.tree.Segment(segID).StartHeight)
		if err != nil {
			return start, blocks, err
		}
		blocks = append(blocks, raw)
	}
	return start, blocks, nil
}

// QueryBlocksLite is QueryBlocks without the raw transaction bodies:
// only the per-block stats a lightweight sync client needs.
func (c *Core) QueryBlocksLite(knownIDs []crypto.Hash, limit int) (startHeight uint64, stats []blockmodel.PerBlockStats, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := c.canonicalView()
	height, ok := c.canonicalHeight()
	if !ok {
		return 0, nil, nil
	}

	splitHeight := uint64(0)
	found := false
	for _, id := range knownIDs {
		if h, ok := view.BlockHeightByHash(id); ok {
			splitHeight = h
			found = true
			break
		}
	}
	if !found {
		return 0, nil, errors.New("no common block found with caller's chain")
	}

	start := splitHeight + 1
	for h := start; h <= height && len(stats) < limit; h++ {
		st, ok := view.StatsAt(h)
		if !ok {
			break
		}
		stats = append(stats, st)
	}
	return start, stats, nil
}

func mustHashAt(view *segment.Segment, height uint64) crypto.Hash {
	stats, _ := view.StatsAt(height)
	return stats.Hash
}
