package validator

import (
	"math/big"

	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/crypto"
	"github.com/noctis-project/noctis/ruleerrors"
	"github.com/noctis-project/noctis/segment"
)

// ValidateBlock runs the ordered, short-circuiting checks of spec
// section 4.D against a candidate block extending previousHeight.
// view must already reflect the chain the block extends (but not the
// block itself); in.Difficulty must already be the value
// consensus.Params.NextDifficulty computed for this height.
//
// On success it returns the fees collected and the reward the
// coinbase output sum was checked against; it does not push anything
// into view — that is core.AddBlock's job once validation passes.
func ValidateBlock(ctx *Context, view ChainView, previousHeight uint64, now int64, in *BlockInput) (*BlockResult, error) {
	height := previousHeight + 1
	tpl := in.Template

	if err := checkBlockVersion(ctx, height, tpl); err != nil {
		return nil, err
	}
	if err := checkParentBlock(ctx, tpl, in.ParentMajorVersion, in.ParentBlockSize); err != nil {
		return nil, err
	}
	if err := checkTimestampNotInFuture(ctx, tpl, now); err != nil {
		return nil, err
	}
	if err := checkTimestampNotTooOld(ctx, view, tpl); err != nil {
		return nil, err
	}
	if err := checkCoinbaseInputShape(tpl.Coinbase); err != nil {
		return nil, err
	}
	if err := checkCoinbaseHeight(tpl.Coinbase, height); err != nil {
		return nil, err
	}
	if err := checkCoinbaseUnlockTime(ctx, tpl.Coinbase, height); err != nil {
		return nil, err
	}
	coinbaseSum, err := checkCoinbaseOutputs(tpl.Coinbase)
	if err != nil {
		return nil, err
	}
	if err := checkCumulativeSize(ctx, in, tpl.MajorVersion); err != nil {
		return nil, err
	}
	if err := checkDifficulty(in.Difficulty); err != nil {
		return nil, err
	}

	working := &segment.SpentSet{}
	var fees uint64
	for _, tx := range in.Transactions {
		f, err := ValidateTransaction(view, height, tx, working)
		if err != nil {
			return nil, err
		}
		next := fees + f
		if next < fees {
			return nil, ruleerrors.NewBlockValidationError(ruleerrors.ErrCoinbaseAmountOverflow, "sum of transaction fees overflows u64")
		}
		fees = next
	}

	reward, err := checkReward(ctx, view, previousHeight, in, coinbaseSum, fees)
	if err != nil {
		return nil, err
	}

	if err := checkCheckpointAndPoW(ctx, height, in.Hash, tpl, in.Difficulty); err != nil {
		return nil, err
	}

	return &BlockResult{Fees: fees, Reward: reward}, nil
}

// checkBlockVersion implements rule 1: the block's major version must
// be the one the upgrade manager mandates at this height.
func checkBlockVersion(ctx *Context, height uint64, tpl *blockmodel.BlockTemplate) error {
	want := ctx.Params.VersionAt(height)
	if tpl.MajorVersion != want {
		return ruleerrors.NewBlockValidationError(ruleerrors.ErrWrongBlockVersion, "block major version %d, want %d at height %d", tpl.MajorVersion, want, height)
	}
	return nil
}

// checkParentBlock implements rule 2: if this block's major version
// is 2 or above, the parent block's major version may not exceed it
// (versions only step forward down the canonical chain), and its
// binary size may not exceed the configured limit. Major version 1
// blocks skip both constraints outright.
func checkParentBlock(ctx *Context, tpl *blockmodel.BlockTemplate, parentMajorVersion uint8, parentBlockSize uint64) error {
	if tpl.MajorVersion < 2 {
		return nil
	}
	if parentMajorVersion > tpl.MajorVersion {
		return ruleerrors.NewBlockValidationError(ruleerrors.ErrParentBlockVersion, "parent block major version %d exceeds this block's version %d", parentMajorVersion, tpl.MajorVersion)
	}
	if parentBlockSize > ctx.MaxParentBlockSize {
		return ruleerrors.NewBlockValidationError(ruleerrors.ErrParentBlockTooBig, "parent block size %d exceeds limit %d", parentBlockSize, ctx.MaxParentBlockSize)
	}
	return nil
}

// checkTimestampNotInFuture implements rule 3.
func checkTimestampNotInFuture(ctx *Context, tpl *blockmodel.BlockTemplate, now int64) error {
	if tpl.Timestamp > now+ctx.BlockFutureTimeLimit {
		return ruleerrors.NewBlockValidationError(ruleerrors.ErrTimestampTooFarInFuture, "block timestamp %d is more than %ds ahead of %d", tpl.Timestamp, ctx.BlockFutureTimeLimit, now)
	}
	return nil
}

// checkTimestampNotTooOld implements rule 4: once enough history
// exists, the timestamp must not be below the median of the trailing
// window.
func checkTimestampNotTooOld(ctx *Context, view ChainView, tpl *blockmodel.BlockTemplate) error {
	if ctx.TimestampCheckWindow <= 0 {
		return nil
	}
	recent := view.LastTimestamps(ctx.TimestampCheckWindow)
	if len(recent) < ctx.TimestampCheckWindow {
		return nil
	}
	median := medianTimestamp(recent)
	if tpl.Timestamp < median {
		return ruleerrors.NewBlockValidationError(ruleerrors.ErrTimestampTooOld, "block timestamp %d is below median %d of recent blocks", tpl.Timestamp, median)
	}
	return nil
}

func medianTimestamp(timestamps []int64) int64 {
	sorted := append([]int64(nil), timestamps...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return sorted[len(sorted)/2]
}

// checkCumulativeSize implements rule 5.
func checkCumulativeSize(ctx *Context, in *BlockInput, version uint8) error {
	limit := ctx.Params.NextBlockSizeLimit(in.RecentBlockSizes, version)
	if in.CumulativeSize > limit {
		return ruleerrors.NewBlockValidationError(ruleerrors.ErrCumulativeSizeTooBig, "cumulative block size %d exceeds limit %d", in.CumulativeSize, limit)
	}
	return nil
}

// checkCoinbaseInputShape implements rule 6: the coinbase transaction
// has exactly one input, and it is a coinbase input.
func checkCoinbaseInputShape(coinbase *blockmodel.Transaction) error {
	if len(coinbase.Inputs) != 1 {
		return ruleerrors.NewBlockValidationError(ruleerrors.ErrBadCoinbaseInputCount, "coinbase transaction has %d inputs, want 1", len(coinbase.Inputs))
	}
	if coinbase.Inputs[0].Kind != blockmodel.InputCoinbase {
		return ruleerrors.NewBlockValidationError(ruleerrors.ErrBadCoinbaseInputType, "coinbase transaction's sole input is not a coinbase input")
	}
	return nil
}

// checkCoinbaseHeight implements rule 7.
func checkCoinbaseHeight(coinbase *blockmodel.Transaction, height uint64) error {
	if coinbase.Inputs[0].CoinbaseHeight != height {
		return ruleerrors.NewBlockValidationError(ruleerrors.ErrBadCoinbaseHeight, "coinbase height %d, want %d", coinbase.Inputs[0].CoinbaseHeight, height)
	}
	return nil
}

// checkCoinbaseUnlockTime implements rule 8: the coinbase's unlock
// time must be exactly height plus the configured mined-money unlock
// window, so the reward cannot be spent before it matures.
func checkCoinbaseUnlockTime(ctx *Context, coinbase *blockmodel.Transaction, height uint64) error {
	want := height + ctx.Params.MinedMoneyUnlockWindow
	if coinbase.UnlockTime != want {
		return ruleerrors.NewBlockValidationError(ruleerrors.ErrBadCoinbaseUnlockTime, "coinbase unlock time %d, want %d", coinbase.UnlockTime, want)
	}
	return nil
}

// checkCoinbaseOutputs implements rule 9: every coinbase output has a
// non-zero amount and a well-formed key, and the output sum does not
// overflow.
func checkCoinbaseOutputs(coinbase *blockmodel.Transaction) (uint64, error) {
	var sum uint64
	for _, out := range coinbase.Outputs {
		if out.Amount == 0 {
			return 0, ruleerrors.NewBlockValidationError(ruleerrors.ErrZeroCoinbaseOutputAmount, "coinbase output has a zero amount")
		}
		if out.TargetKind != blockmodel.OutputKey || !crypto.CheckKey(out.Key) {
			return 0, ruleerrors.NewBlockValidationError(ruleerrors.ErrInvalidCoinbaseOutputKey, "coinbase output has an invalid target key")
		}
		next := sum + out.Amount
		if next < sum {
			return 0, ruleerrors.NewBlockValidationError(ruleerrors.ErrCoinbaseAmountOverflow, "coinbase output amounts overflow u64")
		}
		sum = next
	}
	return sum, nil
}

// checkDifficulty implements rule 10: the retarget must have produced
// a usable, non-zero difficulty.
func checkDifficulty(difficulty uint64) error {
	if difficulty == 0 {
		return ruleerrors.NewBlockValidationError(ruleerrors.ErrZeroDifficulty, "")
	}
	return nil
}

// checkReward implements rule 11: the coinbase output sum must equal
// base_reward(already_generated_coins) penalized for size, plus the
// fees collected from this block's transactions.
func checkReward(ctx *Context, view ChainView, previousHeight uint64, in *BlockInput, coinbaseSum, fees uint64) (uint64, error) {
	var alreadyGenerated uint64
	if stats, ok := view.StatsAt(previousHeight); ok {
		alreadyGenerated = stats.AlreadyGeneratedCoins
	}
	medianSize := medianFloor(in.RecentBlockSizes, ctx.Params.RewardFullZone(in.Template.MajorVersion))
	reward := ctx.Params.Reward(alreadyGenerated, in.CumulativeSize, medianSize, fees, in.Template.MajorVersion)
	if coinbaseSum != reward {
		return 0, ruleerrors.NewBlockValidationError(ruleerrors.ErrRewardMismatch, "coinbase output sum %d, want reward %d", coinbaseSum, reward)
	}
	return reward, nil
}

func medianFloor(recentSizes []uint64, zone uint64) uint64 {
	median := medianOf(recentSizes)
	if median < zone {
		return zone
	}
	return median
}

func medianOf(sizes []uint64) uint64 {
	if len(sizes) == 0 {
		return 0
	}
	sorted := append([]uint64(nil), sizes...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// checkCheckpointAndPoW implements rule 12: inside the checkpoint
// horizon the block hash must match the configured checkpoint exactly;
// above it, the proof-of-work hash must meet the difficulty target.
func checkCheckpointAndPoW(ctx *Context, height uint64, hash crypto.Hash, tpl *blockmodel.BlockTemplate, difficulty uint64) error {
	if ctx.Checkpoints != nil && ctx.Checkpoints.IsInCheckpointZone(height) {
		passed, isCheckpoint := ctx.Checkpoints.CheckBlock(height, hash)
		if isCheckpoint && !passed {
			return ruleerrors.NewBlockValidationError(ruleerrors.ErrCheckpointMismatch, "block hash %s does not match checkpoint at height %d", hash, height)
		}
		return nil
	}

	powHash := crypto.PoWHash(blockmodel.EncodeBlockTemplate(tpl))
	if !meetsDifficulty(powHash, difficulty) {
		return ruleerrors.NewBlockValidationError(ruleerrors.ErrProofOfWorkTooWeak, "block hash does not meet difficulty %d", difficulty)
	}
	return nil
}

// maxHashTarget is the largest value a 256-bit hash can take, the
// numerator of the standard target = maxHashTarget / difficulty
// relation.
var maxHashTarget = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// meetsDifficulty reports whether hash, read as a big-endian 256-bit
// integer, falls at or below the target implied by difficulty.
func meetsDifficulty(hash crypto.Hash, difficulty uint64) bool {
	if difficulty == 0 {
		return false
	}
	target := new(big.Int).Div(maxHashTarget, new(big.Int).SetUint64(difficulty))
	hashInt := new(big.Int).SetBytes(hash[:])
	return hashInt.Cmp(target) <= 0
}
