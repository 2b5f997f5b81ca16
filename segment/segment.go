// Package segment implements component B of the spec: the in-memory
// index cache owned by a contiguous range of heights within a chain
// segment tree. A Segment holds no raw block bytes of its own (those
// live in blockstore.Store); it caches everything needed to validate
// and serve the next block without touching disk.
package segment

import (
	"sort"

	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/coreerrors"
	"github.com/noctis-project/noctis/crypto"
	"github.com/noctis-project/noctis/ruleerrors"
)

// TxInfo carries everything the cache needs about a transaction beyond
// its raw bytes: the outputs (for later resolution by global index),
// the unlock time, and the global output indexes assigned to each of
// its outputs in inclusion order.
type TxInfo struct {
	Outputs            []blockmodel.Output
	UnlockTime         uint64
	GlobalOutputIndexes []uint64
	BlockHeight        uint64
	TxIndexInBlock     int
}

// OutputRef locates one output by the (height, tx index, output index)
// triple the spec uses as the global-index payload.
type OutputRef struct {
	Height   uint64
	TxIndex  int
	OutIndex int
}

// amountIndex is the per-amount append-only list of global indexes
// the spec calls key_outputs_by_amount, plus the absolute global index
// its first element occupies (so a segment split can renumber nothing
// and instead just remember where its slice starts).
type amountIndex struct {
	startGlobalIndex uint64
	refs             []OutputRef
}

// Segment is a contiguous range [StartHeight, StartHeight+Count) of
// heights together with the indexes of spec section 4.B. All public
// operations assume the caller holds the core-wide serialization lock;
// Segment itself does no internal locking.
type Segment struct {
	Parent   *Segment
	Children []*Segment

	StartHeight uint64
	count       uint64

	blockByHash      map[crypto.Hash]uint64
	blockStats       []blockmodel.PerBlockStats // index i holds stats for StartHeight+i
	txIndex          map[crypto.Hash]struct{ height uint64; txIdx int }
	txHash           map[crypto.Hash]*TxInfo
	txByLocation     map[txLocation]crypto.Hash
	spentKeyImages   map[crypto.Hash]uint64
	multisigSpent    map[multisigKey]uint64
	keyOutputsByAmount map[uint64]*amountIndex
	paymentIDIndex   map[crypto.Hash][]crypto.Hash
	timestampOrder   []timestampEntry
}

type txLocation struct {
	height uint64
	txIdx  int
}

type multisigKey struct {
	amount uint64
	index  uint64
}

type timestampEntry struct {
	timestamp int64
	hash      crypto.Hash
}

// NewRoot creates the empty root segment starting at height 0.
func NewRoot() *Segment {
	return newSegment(nil, 0)
}

func newSegment(parent *Segment, startHeight uint64) *Segment {
	return &Segment{
		Parent:             parent,
		StartHeight:        startHeight,
		blockByHash:        make(map[crypto.Hash]uint64),
		txIndex:            make(map[crypto.Hash]struct{ height uint64; txIdx int }),
		txHash:             make(map[crypto.Hash]*TxInfo),
		txByLocation:       make(map[txLocation]crypto.Hash),
		spentKeyImages:     make(map[crypto.Hash]uint64),
		multisigSpent:      make(map[multisigKey]uint64),
		keyOutputsByAmount: make(map[uint64]*amountIndex),
		paymentIDIndex:     make(map[crypto.Hash][]crypto.Hash),
	}
}

// Count returns the number of heights this segment owns.
func (s *Segment) Count() uint64 { return s.count }

// TopHeight returns the height of the last block this segment owns.
// Only valid when Count() > 0.
func (s *Segment) TopHeight() uint64 { return s.StartHeight + s.count - 1 }

// SpentSet is the accumulated set of key-images and multisig refs a
// validation pass (or push_block) has touched; it is the "working
// spent-set" of spec section 4.D.
type SpentSet struct {
	KeyImages []crypto.Hash
	Multisig  []MultisigRef
}

// MultisigRef identifies a spent multisig output by (amount, global
// output index).
type MultisigRef struct {
	Amount uint64
	Index  uint64
}

// HasKeyImage reports whether the key-image is already spent in this
// segment or any ancestor.
func (s *Segment) HasKeyImage(ki crypto.Hash) bool {
	for seg := s; seg != nil; seg = seg.Parent {
		if _, ok := seg.spentKeyImages[ki]; ok {
			return true
		}
	}
	return false
}

// HasMultisigSpend reports whether the multisig output is already
// spent in this segment or any ancestor.
func (s *Segment) HasMultisigSpend(ref MultisigRef) bool {
	key := multisigKey{amount: ref.Amount, index: ref.Index}
	for seg := s; seg != nil; seg = seg.Parent {
		if _, ok := seg.multisigSpent[key]; ok {
			return true
		}
	}
	return false
}

// BlockHeightByHash looks up the height of a block by hash, searching
// this segment and its ancestors.
func (s *Segment) BlockHeightByHash(hash crypto.Hash) (uint64, bool) {
	for seg := s; seg != nil; seg = seg.Parent {
		if h, ok := seg.blockByHash[hash]; ok {
			return h, true
		}
	}
	return 0, false
}

// OwnBlockHeight looks up the height of a block by hash within this
// segment alone, without searching ancestors. Used by the segment tree
// to locate the one segment that actually owns a given block, rather
// than any descendant whose ancestor chain happens to contain it.
func (s *Segment) OwnBlockHeight(hash crypto.Hash) (uint64, bool) {
	h, ok := s.blockByHash[hash]
	return h, ok
}

// StatsAt returns the cached per-block stats for a height, searching
// this segment and its ancestors.
func (s *Segment) StatsAt(height uint64) (blockmodel.PerBlockStats, bool) {
	for seg := s; seg != nil; seg = seg.Parent {
		if height >= seg.StartHeight && height < seg.StartHeight+seg.count {
			return seg.blockStats[height-seg.StartHeight], true
		}
	}
	return blockmodel.PerBlockStats{}, false
}

// TxInfoByHash resolves a transaction's cached info across this
// segment and its ancestors.
func (s *Segment) TxInfoByHash(hash crypto.Hash) (*TxInfo, bool) {
	for seg := s; seg != nil; seg = seg.Parent {
		if info, ok := seg.txHash[hash]; ok {
			return info, true
		}
	}
	return nil, false
}

// OutputCountForAmount returns the total number of key/multisig
// outputs of amount visible from this segment (this segment plus its
// ancestors), i.e. one past the highest global index assigned for
// that amount. Used by callers implementing get_random_outputs to pick
// global indexes in [0, count) to resolve via ExtractKeyOutputs.
func (s *Segment) OutputCountForAmount(amount uint64) uint64 {
	for seg := s; seg != nil; seg = seg.Parent {
		if idx, ok := seg.keyOutputsByAmount[amount]; ok {
			return idx.startGlobalIndex + uint64(len(idx.refs))
		}
	}
	return 0
}

// OwnTxInfo looks up a transaction's cached info within this segment
// alone, without searching ancestors. Mirrors OwnBlockHeight: used by
// the segment tree to locate the one segment that actually owns a
// given transaction, so its backing raw-block store (rather than some
// descendant's) is the one to read the transaction's bytes from.
func (s *Segment) OwnTxInfo(hash crypto.Hash) (*TxInfo, bool) {
	info, ok := s.txHash[hash]
	return info, ok
}

// TxHashesAtHeight returns the hashes of every transaction included in
// the block at height, in inclusion order, searching this segment and
// its ancestors. Used when reassembling the transactions of an
// abandoned branch on a chain switch.
func (s *Segment) TxHashesAtHeight(height uint64) []crypto.Hash {
	for seg := s; seg != nil; seg = seg.Parent {
		if height < seg.StartHeight || height >= seg.StartHeight+seg.count {
			continue
		}
		var hashes []crypto.Hash
		for idx := 0; ; idx++ {
			hash, ok := seg.txByLocation[txLocation{height: height, txIdx: idx}]
			if !ok {
				break
			}
			hashes = append(hashes, hash)
		}
		return hashes
	}
	return nil
}

// PushInput describes one block worth of material to append, the
// payload of the spec's push_block contract.
type PushInput struct {
	Hash                crypto.Hash
	Timestamp           int64
	Transactions        []PushTransaction
	SpentSet            SpentSet
	Size                uint64
	GeneratedCoinsDelta uint64
	Difficulty          uint64
}

// PushTransaction is one transaction's contribution to a pushed block:
// its hash, its outputs/unlock-time, and its extracted payment id (if
// any).
type PushTransaction struct {
	Hash       crypto.Hash
	Outputs    []blockmodel.Output
	UnlockTime uint64
	PaymentID  *crypto.Hash
}

// PushBlock implements spec section 4.B's push_block contract: fails
// if any key-image or multisig ref in spentSet is already spent in
// this segment or an ancestor; otherwise every index is updated as one
// unit from the caller's point of view.
func (s *Segment) PushBlock(in PushInput) error {
	for _, ki := range in.SpentSet.KeyImages {
		if s.HasKeyImage(ki) {
			return ruleerrors.NewTransactionValidationError(ruleerrors.ErrKeyImageAlreadySpent, "key image %s already spent", ki)
		}
	}
	for _, ref := range in.SpentSet.Multisig {
		if s.HasMultisigSpend(ref) {
			return ruleerrors.NewTransactionValidationError(ruleerrors.ErrIdenticalOutputIndexes, "multisig output (%d,%d) already spent", ref.Amount, ref.Index)
		}
	}

	height := s.StartHeight + s.count

	prevStats, hasPrev := s.previousStats()
	generated := in.GeneratedCoinsDelta
	if hasPrev {
		generated += prevStats.AlreadyGeneratedCoins
	}
	txCount := uint64(len(in.Transactions))
	generatedTxs := txCount
	if hasPrev {
		generatedTxs += prevStats.AlreadyGeneratedTransactions
	}

	s.blockByHash[in.Hash] = height
	s.blockStats = append(s.blockStats, blockmodel.PerBlockStats{
		Hash:                         in.Hash,
		Timestamp:                    in.Timestamp,
		CumulativeDifficulty:         s.cumulativeDifficultyBefore() + in.Difficulty,
		AlreadyGeneratedCoins:        generated,
		AlreadyGeneratedTransactions: generatedTxs,
		BlockSize:                    in.Size,
	})
	s.timestampOrder = append(s.timestampOrder, timestampEntry{timestamp: in.Timestamp, hash: in.Hash})

	for txIdx, tx := range in.Transactions {
		s.txIndex[tx.Hash] = struct{ height uint64; txIdx int }{height: height, txIdx: txIdx}
		s.txByLocation[txLocation{height: height, txIdx: txIdx}] = tx.Hash

		globalIndexes := make([]uint64, len(tx.Outputs))
		for outIdx, out := range tx.Outputs {
			if out.TargetKind != blockmodel.OutputKey && out.TargetKind != blockmodel.OutputMultisig {
				continue
			}
			idx := s.keyOutputsByAmount[out.Amount]
			if idx == nil {
				idx = &amountIndex{startGlobalIndex: s.globalCountAncestor(out.Amount)}
				s.keyOutputsByAmount[out.Amount] = idx
			}
			globalIndexes[outIdx] = idx.startGlobalIndex + uint64(len(idx.refs))
			idx.refs = append(idx.refs, OutputRef{Height: height, TxIndex: txIdx, OutIndex: outIdx})
		}

		s.txHash[tx.Hash] = &TxInfo{
			Outputs:             tx.Outputs,
			UnlockTime:          tx.UnlockTime,
			GlobalOutputIndexes:  globalIndexes,
			BlockHeight:         height,
			TxIndexInBlock:      txIdx,
		}

		if tx.PaymentID != nil {
			s.paymentIDIndex[*tx.PaymentID] = append(s.paymentIDIndex[*tx.PaymentID], tx.Hash)
		}
	}

	for _, ki := range in.SpentSet.KeyImages {
		s.spentKeyImages[ki] = height
	}
	for _, ref := range in.SpentSet.Multisig {
		s.multisigSpent[multisigKey{amount: ref.Amount, index: ref.Index}] = height
	}

	s.count++
	return nil
}

func (s *Segment) previousStats() (blockmodel.PerBlockStats, bool) {
	if s.count > 0 {
		return s.blockStats[s.count-1], true
	}
	if s.Parent != nil {
		return s.Parent.StatsAt(s.StartHeight - 1)
	}
	return blockmodel.PerBlockStats{}, false
}

func (s *Segment) cumulativeDifficultyBefore() uint64 {
	if stats, ok := s.previousStats(); ok {
		return stats.CumulativeDifficulty
	}
	return 0
}

// globalCountAncestor returns how many global indexes for this amount
// already exist in the ancestor chain, which becomes the starting
// point for this segment's own append-only list.
func (s *Segment) globalCountAncestor(amount uint64) uint64 {
	for seg := s.Parent; seg != nil; seg = seg.Parent {
		if idx, ok := seg.keyOutputsByAmount[amount]; ok {
			return idx.startGlobalIndex + uint64(len(idx.refs))
		}
	}
	return 0
}

// Split implements spec section 4.B's split contract: every index
// entry at height >= height moves into a freshly created segment;
// both halves remain independently usable. The new segment's Parent
// is left nil — callers in the segmenttree package wire parentage.
func (s *Segment) Split(height uint64) (*Segment, error) {
	if height < s.StartHeight || height > s.StartHeight+s.count {
		return nil, coreerrors.NewCoreError(coreerrors.ErrCorruptedBlockchain, "split height %d outside segment [%d,%d)", height, s.StartHeight, s.StartHeight+s.count)
	}
	localIdx := height - s.StartHeight
	upper := newSegment(nil, height)
	upper.count = s.count - localIdx

	upper.blockStats = append(upper.blockStats, s.blockStats[localIdx:]...)
	s.blockStats = s.blockStats[:localIdx]

	for hash, ht := range s.blockByHash {
		if ht >= height {
			upper.blockByHash[hash] = ht
			delete(s.blockByHash, hash)
		}
	}
	for hash, loc := range s.txIndex {
		if loc.height >= height {
			upper.txIndex[hash] = loc
			delete(s.txIndex, hash)
		}
	}
	movedTxs := make(map[crypto.Hash]bool)
	for hash, info := range s.txHash {
		if info.BlockHeight >= height {
			upper.txHash[hash] = info
			delete(s.txHash, hash)
			movedTxs[hash] = true
		}
	}
	for loc, hash := range s.txByLocation {
		if loc.height >= height {
			upper.txByLocation[loc] = hash
			delete(s.txByLocation, loc)
		}
	}
	for ki, ht := range s.spentKeyImages {
		if ht >= height {
			upper.spentKeyImages[ki] = ht
			delete(s.spentKeyImages, ki)
		}
	}
	for k, ht := range s.multisigSpent {
		if ht >= height {
			upper.multisigSpent[k] = ht
			delete(s.multisigSpent, k)
		}
	}
	for amount, idx := range s.keyOutputsByAmount {
		splitPoint := sort.Search(len(idx.refs), func(i int) bool {
			return idx.refs[i].Height >= height
		})
		if splitPoint == len(idx.refs) {
			continue
		}
		upperRefs := append([]OutputRef(nil), idx.refs[splitPoint:]...)
		upper.keyOutputsByAmount[amount] = &amountIndex{
			startGlobalIndex: idx.startGlobalIndex + uint64(splitPoint),
			refs:             upperRefs,
		}
		idx.refs = idx.refs[:splitPoint]
	}
	for tag, hashes := range s.paymentIDIndex {
		var kept, moved []crypto.Hash
		for _, h := range hashes {
			if movedTxs[h] {
				moved = append(moved, h)
			} else {
				kept = append(kept, h)
			}
		}
		if len(kept) > 0 {
			s.paymentIDIndex[tag] = kept
		} else {
			delete(s.paymentIDIndex, tag)
		}
		if len(moved) > 0 {
			upper.paymentIDIndex[tag] = moved
		}
	}

	s.count = localIdx
	rebuildTimestampOrder(s)
	rebuildTimestampOrder(upper)

	return upper, nil
}

// Merge is Split's inverse: it absorbs upper, which must be this
// segment's direct continuation (upper.StartHeight ==
// s.StartHeight+s.Count()), back into s. Used by the segment tree's
// save/flush path (spec section 4.C's merge/flush) to fuse the
// canonical path back into one compact segment. upper itself is not
// cleared; its blocks are copied into s.
func (s *Segment) Merge(upper *Segment) error {
	if upper.StartHeight != s.StartHeight+s.count {
		return coreerrors.NewCoreError(coreerrors.ErrCorruptedBlockchain, "cannot merge non-adjacent segments [%d,%d) and [%d,%d)", s.StartHeight, s.StartHeight+s.count, upper.StartHeight, upper.StartHeight+upper.count)
	}

	s.blockStats = append(s.blockStats, upper.blockStats...)
	for hash, ht := range upper.blockByHash {
		s.blockByHash[hash] = ht
	}
	for hash, loc := range upper.txIndex {
		s.txIndex[hash] = loc
	}
	for hash, info := range upper.txHash {
		s.txHash[hash] = info
	}
	for loc, hash := range upper.txByLocation {
		s.txByLocation[loc] = hash
	}
	for ki, ht := range upper.spentKeyImages {
		s.spentKeyImages[ki] = ht
	}
	for k, ht := range upper.multisigSpent {
		s.multisigSpent[k] = ht
	}
	for amount, upperIdx := range upper.keyOutputsByAmount {
		idx, ok := s.keyOutputsByAmount[amount]
		if !ok {
			s.keyOutputsByAmount[amount] = upperIdx
			continue
		}
		idx.refs = append(idx.refs, upperIdx.refs...)
	}
	for tag, hashes := range upper.paymentIDIndex {
		s.paymentIDIndex[tag] = append(s.paymentIDIndex[tag], hashes...)
	}

	s.count += upper.count
	rebuildTimestampOrder(s)
	return nil
}

func rebuildTimestampOrder(s *Segment) {
	order := make([]timestampEntry, 0, len(s.blockStats))
	for _, st := range s.blockStats {
		order = append(order, timestampEntry{timestamp: st.Timestamp, hash: st.Hash})
	}
	s.timestampOrder = order
}

// LastTimestamps returns up to n most recent timestamps visible from
// this segment (walking into ancestors as needed), newest first. Used
// by the validator's median-timestamp check.
func (s *Segment) LastTimestamps(n int) []int64 {
	result := make([]int64, 0, n)
	height := s.StartHeight + s.count
	for height > 0 && len(result) < n {
		height--
		stats, ok := s.StatsAt(height)
		if !ok {
			break
		}
		result = append(result, stats.Timestamp)
	}
	return result
}
