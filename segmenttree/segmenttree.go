// Package segmenttree implements component C of the spec: the forest
// of chain segments sharing a common root, the canonical-leaf pointer,
// and the three block-outcome branches of spec section 4.C.
//
// Segments are addressed by a stable SegmentID handle into an arena
// owned by the Tree, per spec section 9's design note: the source's
// raw-pointer parent/child bookkeeping (grounded here on the teacher's
// blockdag/dag.go node-index style) is reimplemented as handles rather
// than pointers, so "iteration up to parent" is a loop over IDs.
package segmenttree

import (
	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/blockstore"
	"github.com/noctis-project/noctis/coreerrors"
	"github.com/noctis-project/noctis/crypto"
	"github.com/noctis-project/noctis/eventbus"
	"github.com/noctis-project/noctis/segment"
)

// SegmentID is a stable handle into the Tree's arena.
type SegmentID int

// invalidSegmentID marks "no parent" (the root) or "not found".
const invalidSegmentID SegmentID = -1

// node is one arena entry: a cache (segment.Segment), the raw-block
// store slice backing the same height range, and the handle-based
// parent/child edges.
type node struct {
	cache    *segment.Segment
	store    blockstore.Store
	parent   SegmentID
	children []SegmentID
	alive    bool
}

// StoreOpener is supplied by the core façade so the tree can create a
// fresh blockstore.Store for every new segment produced by a split or
// a fork, without the tree package needing to know the on-disk layout
// policy (base directory, which Store implementation, etc).
type StoreOpener func(id SegmentID) (blockstore.Store, error)

// Tree owns every segment in the forest plus the canonical-leaf
// pointer. All public operations assume the caller holds the core
// façade's serialization lock.
type Tree struct {
	arena       []node
	rootID      SegmentID
	canonicalID SegmentID
	openStore   StoreOpener
}

// New creates a tree with a single root segment at height 0, backed by
// rootStore.
func New(rootStore blockstore.Store, openStore StoreOpener) *Tree {
	t := &Tree{openStore: openStore}
	root := node{cache: segment.NewRoot(), store: rootStore, parent: invalidSegmentID, alive: true}
	t.arena = append(t.arena, root)
	t.rootID = 0
	t.canonicalID = 0
	return t
}

// Root returns the root segment's handle.
func (t *Tree) Root() SegmentID { return t.rootID }

// PushGenesis seeds the empty root segment with the genesis block. It
// bypasses AddBlock's parent lookup since genesis has no parent; the
// core façade calls this once, at chain bootstrap, before any AddBlock
// call is possible.
func (t *Tree) PushGenesis(mat BlockMaterial) error {
	if err := t.arena[t.rootID].cache.PushBlock(mat.Push); err != nil {
		return err
	}
	return t.arena[t.rootID].store.Push(mat.Raw)
}

// Canonical returns the current canonical leaf's handle.
func (t *Tree) Canonical() SegmentID { return t.canonicalID }

// Segment returns the cache for a handle.
func (t *Tree) Segment(id SegmentID) *segment.Segment { return t.arena[id].cache }

// Store returns the raw-block store for a handle.
func (t *Tree) Store(id SegmentID) blockstore.Store { return t.arena[id].store }

// Parent returns a segment's parent handle, or invalidSegmentID for
// the root.
func (t *Tree) Parent(id SegmentID) SegmentID { return t.arena[id].parent }

// Children returns a segment's child handles.
func (t *Tree) Children(id SegmentID) []SegmentID {
	return append([]SegmentID(nil), t.arena[id].children...)
}

// IsLeaf reports whether a segment has no children.
func (t *Tree) IsLeaf(id SegmentID) bool { return len(t.arena[id].children) == 0 }

// CumulativeDifficulty returns the segment's top block's cumulative
// difficulty, or 0 if the segment (and its ancestors) is empty.
func (t *Tree) CumulativeDifficulty(id SegmentID) uint64 {
	seg := t.arena[id].cache
	if seg.Count() == 0 {
		if t.arena[id].parent == invalidSegmentID {
			return 0
		}
		return t.CumulativeDifficulty(t.arena[id].parent)
	}
	stats, _ := seg.StatsAt(seg.TopHeight())
	return stats.CumulativeDifficulty
}

// Leaves returns the handles of every leaf segment (segments with no
// children), including alternative leaves.
func (t *Tree) Leaves() []SegmentID {
	var leaves []SegmentID
	for id := range t.arena {
		if t.arena[id].alive && len(t.arena[id].children) == 0 {
			leaves = append(leaves, SegmentID(id))
		}
	}
	return leaves
}

// FindSegmentContainingBlock walks every alive segment looking for the
// one that itself owns hash (not merely has it visible through an
// ancestor); unlike the original_source bug flagged in spec section 9
// (the C++ `findAlternativeSegmentContainingBlock` returns nullptr
// unconditionally even after a successful find), this returns the
// segment actually located.
func (t *Tree) FindSegmentContainingBlock(hash crypto.Hash) (SegmentID, bool) {
	for id := range t.arena {
		if !t.arena[id].alive {
			continue
		}
		if _, ok := t.arena[id].cache.OwnBlockHeight(hash); ok {
			return SegmentID(id), true
		}
	}
	return invalidSegmentID, false
}

// FindSegmentContainingTx mirrors FindSegmentContainingBlock for
// transactions: it returns the one alive segment that itself caches
// hash, so the core façade can read the transaction's raw bytes from
// that segment's own store rather than a descendant's.
func (t *Tree) FindSegmentContainingTx(hash crypto.Hash) (SegmentID, bool) {
	for id := range t.arena {
		if !t.arena[id].alive {
			continue
		}
		if _, ok := t.arena[id].cache.OwnTxInfo(hash); ok {
			return SegmentID(id), true
		}
	}
	return invalidSegmentID, false
}

// AllSegments returns the handles of every alive segment, root and
// leaves and everything in between, for callers (the core façade's
// transaction lookup) that need to search the whole forest rather
// than just its leaves.
func (t *Tree) AllSegments() []SegmentID {
	var ids []SegmentID
	for id := range t.arena {
		if t.arena[id].alive {
			ids = append(ids, SegmentID(id))
		}
	}
	return ids
}

// pathToRoot returns the chain of handles from id up to (and
// including) the root.
func (t *Tree) pathToRoot(id SegmentID) []SegmentID {
	var path []SegmentID
	for cur := id; cur != invalidSegmentID; cur = t.arena[cur].parent {
		path = append(path, cur)
	}
	return path
}

// commonAncestor finds the deepest segment both a and b descend from.
func (t *Tree) commonAncestor(a, b SegmentID) SegmentID {
	pathA := t.pathToRoot(a)
	inA := make(map[SegmentID]bool, len(pathA))
	for _, id := range pathA {
		inA[id] = true
	}
	for cur := b; cur != invalidSegmentID; cur = t.arena[cur].parent {
		if inA[cur] {
			return cur
		}
	}
	return t.rootID
}

func (t *Tree) allocate(n node) SegmentID {
	n.alive = true
	t.arena = append(t.arena, n)
	return SegmentID(len(t.arena) - 1)
}

// split carves segment id into [start,forkHeight) staying at id and
// [forkHeight, end) moving to a new node, which becomes a child of id.
// The new node's raw store is split the same way.
func (t *Tree) split(id SegmentID, forkHeight uint64) (SegmentID, error) {
	storeBase := segmentStoreBase(t, id)
	upperCache, err := t.arena[id].cache.Split(forkHeight)
	if err != nil {
		return invalidSegmentID, err
	}

	upperStore, err := t.arena[id].store.SplitAt(forkHeight - storeBase)
	if err != nil {
		return invalidSegmentID, err
	}

	newID := t.allocate(node{cache: upperCache, store: upperStore, parent: id})
	upperCache.Parent = t.arena[id].cache

	// Re-parent id's existing children onto the new upper segment; they
	// logically continue from forkHeight, not from id directly anymore.
	oldChildren := t.arena[id].children
	t.arena[id].children = []SegmentID{newID}
	for _, child := range oldChildren {
		t.arena[child].parent = newID
		t.arena[child].cache.Parent = upperCache
		t.arena[newID].children = append(t.arena[newID].children, child)
	}

	// The canonical tip now lives in the upper half, so the canonical
	// pointer follows it and keeps naming a leaf.
	if t.canonicalID == id {
		t.canonicalID = newID
	}

	return newID, nil
}

// segmentStoreBase returns the store-relative height offset of a
// segment: stores are opened fresh per segment and always start their
// own local indexing at 0, while the segment cache's StartHeight is
// absolute, so callers translate between the two here.
func segmentStoreBase(t *Tree, id SegmentID) uint64 {
	return t.arena[id].cache.StartHeight
}

// BlockMaterial is everything PushBlock / AddBlock needs about one
// incoming block: its parsed template hash, its cache-level push
// input, and its raw bytes for the store.
type BlockMaterial struct {
	Hash crypto.Hash
	Push segment.PushInput
	Raw  *blockmodel.RawBlock
}

// Outcome is the three-way branch result of AddBlock.
type Outcome int

// Supported Outcome values.
const (
	OutcomeExtendedCanonical Outcome = iota
	OutcomeExtendedAlternative
	OutcomeExtendedAlternativeAndSwitched
	OutcomeForked
)

// AddResult carries everything the core façade needs to translate an
// AddBlock outcome into the public add_block/submit_block result and
// events.
type AddResult struct {
	Outcome      Outcome
	LeafID       SegmentID
	ForkHeight   uint64 // valid when Outcome == OutcomeForked
	SwitchEvent  *eventbus.Event
	AbandonedTxs []crypto.Hash // txs from abandoned branch(es), for mempool re-admission
}

// ErrUnknownParent is returned by AddBlock when parentHash names no
// block known to the tree: the caller should treat the incoming block
// as an orphan (spec section 4.G's RejectedAsOrphaned).
var ErrUnknownParent = coreerrors.NewCoreError(coreerrors.ErrCorruptedBlockchain, "parent block not found")

// AddBlock implements spec section 4.C's three branches: it locates
// the segment owning parentHash, then decides whether the new block
// extends a childless segment at its own tip (branches 1/2) or must
// fork off an interior block or a segment that already has children
// (branch 3). Callers (the core façade) are responsible for validation
// before calling this, and for translating the result into the public
// add_block outcome and events.
func (t *Tree) AddBlock(parentHash crypto.Hash, mat BlockMaterial) (*AddResult, error) {
	segID, ok := t.FindSegmentContainingBlock(parentHash)
	if !ok {
		return nil, ErrUnknownParent
	}
	parentHeight, _ := t.arena[segID].cache.OwnBlockHeight(parentHash)
	seg := t.arena[segID].cache

	if parentHeight == seg.TopHeight() && t.IsLeaf(segID) {
		return t.addToLeaf(segID, mat)
	}
	return t.addFork(segID, parentHeight+1, mat)
}

// addToLeaf handles branches 1 and 2: pushing onto a childless
// segment, then possibly switching canonical leaves.
func (t *Tree) addToLeaf(leaf SegmentID, mat BlockMaterial) (*AddResult, error) {
	if err := t.arena[leaf].cache.PushBlock(mat.Push); err != nil {
		return nil, err
	}
	if err := t.arena[leaf].store.Push(mat.Raw); err != nil {
		return nil, err
	}

	if leaf == t.canonicalID {
		return &AddResult{Outcome: OutcomeExtendedCanonical, LeafID: leaf}, nil
	}

	if t.CumulativeDifficulty(leaf) <= t.CumulativeDifficulty(t.canonicalID) {
		return &AddResult{Outcome: OutcomeExtendedAlternative, LeafID: leaf}, nil
	}

	result, err := t.switchCanonical(leaf)
	if err != nil {
		return nil, err
	}
	result.Outcome = OutcomeExtendedAlternativeAndSwitched
	return result, nil
}

// addFork handles branch 3: splitting the target segment at
// forkHeight (when the parent is an interior block, or the segment
// already has children) and creating a fresh leaf for the new block.
// If forkHeight already equals the segment's own end and the segment
// has no content beyond it, no split is needed — the new leaf simply
// becomes another child of that segment.
func (t *Tree) addFork(parent SegmentID, forkHeight uint64, mat BlockMaterial) (*AddResult, error) {
	seg := t.arena[parent].cache
	if forkHeight < seg.StartHeight+seg.Count() {
		// split leaves the [start,forkHeight) range at parent and moves
		// everything from forkHeight on to a new child segment; the new
		// fork leaf we're about to create is a sibling of that child,
		// not a child of it, so parent stays put.
		if _, err := t.split(parent, forkHeight); err != nil {
			return nil, err
		}
	}

	newLeafStore, err := t.openStore(SegmentID(len(t.arena)))
	if err != nil {
		return nil, err
	}
	newLeafCache := segment.NewRoot()
	newLeafCache.StartHeight = forkHeight
	newLeafCache.Parent = t.arena[parent].cache

	newLeafID := t.allocate(node{cache: newLeafCache, store: newLeafStore, parent: parent})
	t.arena[parent].children = append(t.arena[parent].children, newLeafID)

	if err := newLeafCache.PushBlock(mat.Push); err != nil {
		return nil, err
	}
	if err := newLeafStore.Push(mat.Raw); err != nil {
		return nil, err
	}

	return &AddResult{Outcome: OutcomeForked, LeafID: newLeafID, ForkHeight: forkHeight}, nil
}

// switchCanonical implements the switch(leaf) operation of spec
// section 4.C branch 2: collect the abandoned branch's transactions and
// the new branch's block hashes, and move the canonical pointer. No raw
// store is rewritten here: each segment keeps its own store, and the
// canonical path's stores are fused into one only by Flush. It does
// not touch the mempool; the core façade handles actualization and
// emits the ChainSwitch event using the returned material.
func (t *Tree) switchCanonical(newLeaf SegmentID) (*AddResult, error) {
	oldLeaf := t.canonicalID
	ancestor := t.commonAncestor(oldLeaf, newLeaf)
	log.Infof("reorganizing: switching canonical leaf %d -> %d (common ancestor %d)", oldLeaf, newLeaf, ancestor)

	commonRootHeight := t.arena[ancestor].cache.StartHeight + t.arena[ancestor].cache.Count()
	if commonRootHeight > 0 {
		commonRootHeight--
	}

	abandonedTxs := t.collectTxHashes(oldLeaf, ancestor)

	newBranchHashes, err := t.collectHashesFromAncestor(newLeaf, ancestor)
	if err != nil {
		return nil, err
	}

	t.canonicalID = newLeaf

	ev := eventbus.NewChainSwitch(commonRootHeight, newBranchHashes)
	return &AddResult{
		SwitchEvent:  &ev,
		AbandonedTxs: abandonedTxs,
		ForkHeight:   commonRootHeight,
		LeafID:       newLeaf,
	}, nil
}

// collectTxHashes gathers every transaction hash cached in segments
// strictly between ancestor (exclusive) and leaf (inclusive), walking
// up from leaf. Used to find the abandoned branch's transactions on a
// switch away from it.
func (t *Tree) collectTxHashes(leaf, ancestor SegmentID) []crypto.Hash {
	var hashes []crypto.Hash
	for cur := leaf; cur != ancestor && cur != invalidSegmentID; cur = t.arena[cur].parent {
		seg := t.arena[cur].cache
		for h := seg.StartHeight; h < seg.StartHeight+seg.Count(); h++ {
			hashes = append(hashes, seg.TxHashesAtHeight(h)...)
		}
	}
	return hashes
}

// collectHashesFromAncestor returns the block hashes on the path from
// ancestor (exclusive) down to leaf (inclusive), in ascending height
// order — the ChainSwitch event's hashes_on_new_branch payload.
func (t *Tree) collectHashesFromAncestor(leaf, ancestor SegmentID) ([]crypto.Hash, error) {
	var segments []SegmentID
	for cur := leaf; cur != ancestor && cur != invalidSegmentID; cur = t.arena[cur].parent {
		segments = append(segments, cur)
	}
	var hashes []crypto.Hash
	for i := len(segments) - 1; i >= 0; i-- {
		seg := t.arena[segments[i]].cache
		for h := seg.StartHeight; h < seg.StartHeight+seg.Count(); h++ {
			stats, ok := seg.StatsAt(h)
			if !ok {
				return nil, coreerrors.NewCoreError(coreerrors.ErrCorruptedBlockchain, "missing stats at height %d during chain switch", h)
			}
			hashes = append(hashes, stats.Hash)
		}
	}
	return hashes, nil
}

// PruneAlternative drops an alternative leaf entirely, e.g. because it
// lost a tie-break or was abandoned. Only this segment is marked dead
// and removed from its parent's children; its ancestors are left as
// they are, even one left childless by the removal, and live siblings
// are untouched.
func (t *Tree) PruneAlternative(id SegmentID) error {
	if id == t.canonicalID {
		return coreerrors.NewCoreError(coreerrors.ErrCorruptedBlockchain, "refusing to prune the canonical leaf")
	}
	if err := t.arena[id].store.Close(); err != nil {
		return err
	}
	t.arena[id].alive = false
	parent := t.arena[id].parent
	t.arena[parent].children = removeID(t.arena[parent].children, id)
	return nil
}

// Flush implements spec section 4.C's merge/flush: every alternative
// leaf (and any segment that exists only to host one) is dropped, and
// every segment on the canonical path is fused back into a single
// root segment with a single backing store. Called on save/shutdown.
func (t *Tree) Flush() error {
	onPath := make(map[SegmentID]bool)
	for _, id := range t.pathToRoot(t.canonicalID) {
		onPath[id] = true
	}

	for id := range t.arena {
		sid := SegmentID(id)
		if !t.arena[sid].alive || onPath[sid] {
			continue
		}
		if err := t.arena[sid].store.Close(); err != nil {
			return err
		}
		t.arena[sid].alive = false
	}

	path := t.pathToRoot(t.canonicalID)
	rootCache := t.arena[t.rootID].cache
	rootStore := t.arena[t.rootID].store
	for i := len(path) - 2; i >= 0; i-- {
		child := path[i]
		if err := rootCache.Merge(t.arena[child].cache); err != nil {
			return err
		}
		if err := appendAllBlocks(rootStore, t.arena[child].store); err != nil {
			return err
		}
		if err := t.arena[child].store.Close(); err != nil {
			return err
		}
		t.arena[child].alive = false
	}

	t.arena = []node{{cache: rootCache, store: rootStore, parent: invalidSegmentID, alive: true}}
	t.rootID = 0
	t.canonicalID = 0
	return nil
}

// appendAllBlocks copies every raw block from src onto the end of dst,
// used when fusing a child segment's store into its parent's on
// Flush; the Store contract has no bulk-append primitive, so this
// reads and re-pushes one block at a time.
func appendAllBlocks(dst, src blockstore.Store) error {
	for h := uint64(0); h < src.Count(); h++ {
		raw, err := src.Get(h)
		if err != nil {
			return err
		}
		if err := dst.Push(raw); err != nil {
			return err
		}
	}
	return nil
}

func removeID(ids []SegmentID, target SegmentID) []SegmentID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
