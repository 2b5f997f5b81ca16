package segment

// ExtractStatus is the three-way result of ExtractKeyOutputs.
type ExtractStatus int

// Supported ExtractStatus values.
const (
	ExtractSuccess ExtractStatus = iota
	ExtractInvalidGlobalIndex
	ExtractOutputLocked
)

// OutputVisitor is invoked once per resolved global index by
// ExtractKeyOutputs.
type OutputVisitor func(info *TxInfo, outIndex int, globalIndex uint64) error

// unlockSatisfied mirrors the validator's unlock-time predicate:
// either an absolute timestamp the current height's block time must
// exceed, or (the common case) a block-height threshold.
func unlockSatisfied(unlockTime uint64, currentHeight uint64) bool {
	const unlockTimestampThreshold = 500000000
	if unlockTime < unlockTimestampThreshold {
		return currentHeight >= unlockTime
	}
	// Spec section 4.D resolves unlock times against current_height
	// only; a timestamp-valued unlock_time has no height to compare
	// against here, so it is conservatively treated as still locked.
	return false
}

// ExtractKeyOutputs implements spec section 4.B's extract_key_outputs
// contract: for each global index, resolve the referenced output,
// verify its unlock, and invoke f. Scanning stops at the first
// failure.
func (s *Segment) ExtractKeyOutputs(amount uint64, currentHeight uint64, globalIndexes []uint64, f OutputVisitor) (ExtractStatus, error) {
	for _, gi := range globalIndexes {
		ref, info, ok := s.resolveGlobalIndex(amount, gi)
		if !ok {
			return ExtractInvalidGlobalIndex, nil
		}
		if !unlockSatisfied(info.UnlockTime, currentHeight) {
			return ExtractOutputLocked, nil
		}
		if err := f(info, ref.OutIndex, gi); err != nil {
			return ExtractSuccess, err
		}
	}
	return ExtractSuccess, nil
}

// resolveGlobalIndex walks this segment and its ancestors to find the
// (height, tx index, output index) triple a global index was assigned
// to, then resolves the cached TxInfo at that location.
func (s *Segment) resolveGlobalIndex(amount uint64, globalIndex uint64) (OutputRef, *TxInfo, bool) {
	for seg := s; seg != nil; seg = seg.Parent {
		idx, ok := seg.keyOutputsByAmount[amount]
		if !ok {
			continue
		}
		if globalIndex < idx.startGlobalIndex || globalIndex >= idx.startGlobalIndex+uint64(len(idx.refs)) {
			continue
		}
		ref := idx.refs[globalIndex-idx.startGlobalIndex]
		info, ok := s.txInfoAt(ref)
		if !ok {
			return OutputRef{}, nil, false
		}
		return ref, info, true
	}
	return OutputRef{}, nil, false
}

func (s *Segment) txInfoAt(ref OutputRef) (*TxInfo, bool) {
	for seg := s; seg != nil; seg = seg.Parent {
		if ref.Height < seg.StartHeight || ref.Height >= seg.StartHeight+seg.count {
			continue
		}
		hash, ok := seg.txByLocation[txLocation{height: ref.Height, txIdx: ref.TxIndex}]
		if !ok {
			return nil, false
		}
		return seg.txHash[hash], true
	}
	return nil, false
}
