package core

import (
	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/coreerrors"
	"github.com/noctis-project/noctis/crypto"
	"github.com/noctis-project/noctis/eventbus"
	"github.com/noctis-project/noctis/ruleerrors"
	"github.com/noctis-project/noctis/segment"
	"github.com/noctis-project/noctis/segmenttree"
	"github.com/noctis-project/noctis/validator"
)

// AddBlock implements spec section 4.G's add_block: deserialize,
// validate against the segment owning the claimed parent, push into
// the segment tree, and translate the outcome into the public
// AddBlockErrorCode plus the façade's own side effects (events,
// mempool bookkeeping).
//
// The returned code is only meaningful when err is nil (AlreadyExists,
// RejectedAsOrphaned and the Added* codes) or when it is
// DeserializationFailed, which comes with the decode error: a non-nil err of
// dynamic type *ruleerrors.BlockValidationError or
// *ruleerrors.TransactionValidationError means validation rejected the
// block, which spec section 7 tracks as its own condition
// (ConditionBlockValidationFailed / ConditionTransactionValidationFailed)
// rather than as one of AddBlockErrorCode's value members; callers
// that need the fine-grained validation rule should type-assert err,
// the same way validator's own callers do. A non-nil err of dynamic
// type *coreerrors.CoreError means an internal invariant was violated
// and is fatal, per spec section 7's propagation policy.
func (c *Core) AddBlock(raw *blockmodel.RawBlock) (ruleerrors.AddBlockErrorCode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addBlock(raw)
}

// addBlock additionally enforces spec section 9's open question #2: a
// block that does not extend the canonical tip is an alternative-chain
// candidate, and checkpoints.Set.IsAlternativeBlockAllowed rejects any
// such candidate that would rewrite history at or before a configured
// checkpoint. Canonical-tip extensions skip this check entirely — a
// checkpoint can never be rewritten by the chain that is already past it.
func (c *Core) addBlock(raw *blockmodel.RawBlock) (ruleerrors.AddBlockErrorCode, error) {
	decoded, err := decodeBlock(raw)
	if err != nil {
		log.Debugf("rejected block: %s", err)
		return ruleerrors.DeserializationFailed, err
	}

	if _, ok := c.tree.FindSegmentContainingBlock(decoded.hash); ok {
		return ruleerrors.AlreadyExists, nil
	}

	parentSegID, ok := c.tree.FindSegmentContainingBlock(decoded.template.ParentBlockHash)
	if !ok {
		log.Debugf("rejected block %s: parent %s unknown", decoded.hash, decoded.template.ParentBlockHash)
		return ruleerrors.RejectedAsOrphaned, nil
	}
	parentSeg := c.tree.Segment(parentSegID)
	parentHeight, _ := parentSeg.OwnBlockHeight(decoded.template.ParentBlockHash)

	if canonicalHeight, ok := c.canonicalHeight(); ok {
		extendsCanonicalTip := parentSegID == c.tree.Canonical() && parentHeight == canonicalHeight
		if !extendsCanonicalTip && !c.checkpoints.IsAlternativeBlockAllowed(canonicalHeight+1, parentHeight+1) {
			return 0, ruleerrors.NewBlockValidationError(ruleerrors.ErrAlternativeRewritesCheckpoint,
				"alternative block at height %d would rewrite history at or before a checkpoint", parentHeight+1)
		}
	}

	blockInput, err := c.buildBlockInput(parentSeg, parentHeight, decoded)
	if err != nil {
		return 0, err
	}

	result, err := validator.ValidateBlock(c.validatorCtx, parentSeg, parentHeight, c.now().Unix(), blockInput)
	if err != nil {
		return 0, err
	}

	mat := segmenttree.BlockMaterial{
		Hash: decoded.hash,
		Push: buildPushInput(decoded, blockInput, result),
		Raw:  raw,
	}

	addResult, err := c.tree.AddBlock(decoded.template.ParentBlockHash, mat)
	if err != nil {
		if addResult == nil {
			return 0, coreerrors.NewCoreError(coreerrors.ErrCorruptedBlockchain, "add_block: %s", err)
		}
		return 0, err
	}

	height := parentHeight + 1
	var code ruleerrors.AddBlockErrorCode

	switch addResult.Outcome {
	case segmenttree.OutcomeExtendedCanonical:
		code = ruleerrors.AddedToMain
		log.Infof("accepted block %s at height %d, extending main chain", decoded.hash, height)
		c.events.Publish(eventbus.NewBlock(height, decoded.hash))
		c.removeIncludedTransactions(decoded)
	case segmenttree.OutcomeExtendedAlternative, segmenttree.OutcomeForked:
		code = ruleerrors.AddedToAlternative
		log.Infof("accepted block %s at height %d on an alternative chain", decoded.hash, height)
		c.events.Publish(eventbus.NewAlternativeBlock(height, decoded.hash))
		c.removeIncludedTransactions(decoded)
	case segmenttree.OutcomeExtendedAlternativeAndSwitched:
		code = ruleerrors.AddedToAlternativeAndSwitched
		log.Infof("block %s at height %d won the fork, switching main chain", decoded.hash, height)
		c.removeIncludedTransactions(decoded)
		c.reconcileMempoolAfterSwitch(addResult.AbandonedTxs)
		if addResult.SwitchEvent != nil {
			c.events.Publish(*addResult.SwitchEvent)
		}
	}

	return code, nil
}

// buildBlockInput assembles the validator.BlockInput for a candidate
// block extending parentHeight in parentSeg.
func (c *Core) buildBlockInput(parentSeg *segment.Segment, parentHeight uint64, decoded *decodedBlock) (*validator.BlockInput, error) {
	timestamps, cumulativeDifficulties, _ := recentWindow(parentSeg, parentHeight, c.params.DifficultyWindow)
	difficulty := c.params.NextDifficulty(timestamps, cumulativeDifficulties)

	_, _, rewardWindowSizes := recentWindow(parentSeg, parentHeight, c.params.RewardBlocksWindow)

	var cumulativeSize uint64
	coinbaseCached := blockmodel.NewCachedTransaction(decoded.template.Coinbase)
	cumulativeSize += coinbaseCached.Size()
	for _, tx := range decoded.transactions {
		cumulativeSize += tx.Size()
	}

	// The genesis block is its own parent version reference point (no
	// block at height -1 to derive one from); every other height's
	// parent version is whatever the upgrade schedule mandated there.
	parentVersion := c.params.VersionAt(parentHeight)
	if parentHeight == 0 {
		parentVersion = decoded.template.MajorVersion
	}
	parentStats, _ := parentSeg.StatsAt(parentHeight)

	return &validator.BlockInput{
		Hash:               decoded.hash,
		Template:           decoded.template,
		Transactions:       decoded.transactions,
		CumulativeSize:     cumulativeSize,
		ParentMajorVersion: parentVersion,
		ParentBlockSize:    parentStats.BlockSize,
		Difficulty:         difficulty,
		RecentBlockSizes:   rewardWindowSizes,
	}, nil
}

// buildPushInput assembles segment.PushInput from a validated block.
func buildPushInput(decoded *decodedBlock, in *validator.BlockInput, result *validator.BlockResult) segment.PushInput {
	working := &segment.SpentSet{}
	pushTxs := make([]segment.PushTransaction, len(decoded.transactions))
	for i, tx := range decoded.transactions {
		t := tx.Transaction()
		for _, input := range t.Inputs {
			if input.Kind == blockmodel.InputKey {
				working.KeyImages = append(working.KeyImages, input.KeyImage)
			}
			if input.Kind == blockmodel.InputMultisig {
				working.Multisig = append(working.Multisig, segment.MultisigRef{Amount: input.Amount, Index: input.MultisigOutputIndex})
			}
		}
		pushTxs[i] = segment.PushTransaction{
			Hash:       tx.Hash(),
			Outputs:    t.Outputs,
			UnlockTime: t.UnlockTime,
			PaymentID:  blockmodel.ExtractPaymentID(t.Extra),
		}
	}

	return segment.PushInput{
		Hash:         decoded.hash,
		Timestamp:    decoded.template.Timestamp,
		Transactions: pushTxs,
		SpentSet:     *working,
		Size:         in.CumulativeSize,
		// result.Reward is the full coinbase payout (newly emitted
		// coins plus recycled fees); only the emitted portion is new
		// supply, so the fees already counted as generated when their
		// originating coin was mined must not be re-added here.
		GeneratedCoinsDelta: result.Reward - result.Fees,
		Difficulty:          in.Difficulty,
	}
}

// removeIncludedTransactions drops every transaction this block
// carried from the mempool: once a transaction appears in any known
// block (canonical or alternative), it is no longer an unconfirmed
// candidate, per spec section 5's ordering guarantee that
// DeleteTransaction(InBlock) fires for txs landing in a newly-accepted
// block.
func (c *Core) removeIncludedTransactions(decoded *decodedBlock) {
	hashes := make([]crypto.Hash, len(decoded.transactions))
	for i, tx := range decoded.transactions {
		hashes[i] = tx.Hash()
	}
	c.pool.RemoveIncluded(hashes)
}

// reconcileMempoolAfterSwitch implements the mempool half of spec
// section 5's chain-switch ordering guarantee: every transaction
// abandoned by the old branch is offered back into the pool (it is no
// longer confirmed), and the whole pool is then actualized against the
// new canonical view so anything that no longer validates (e.g. a key
// image the new branch already spent) is dropped. Called after the
// segment tree's internal state is updated but before the ChainSwitch
// event is published.
func (c *Core) reconcileMempoolAfterSwitch(abandoned []crypto.Hash) {
	view := c.canonicalView()
	height, ok := c.canonicalHeight()
	if !ok {
		return
	}
	nextHeight := height + 1
	_, _, recentSizes := recentWindow(view, height, c.params.RewardBlocksWindow)

	for _, hash := range abandoned {
		tx, ok := c.lookupTransaction(hash)
		if !ok {
			continue
		}
		paymentID := blockmodel.ExtractPaymentID(tx.Transaction().Extra)
		_ = c.pool.Admit(view, nextHeight, tx, recentSizes, paymentID)
	}
	c.pool.Actualize(view, nextHeight, recentSizes)
}
