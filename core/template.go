package core

import (
	"github.com/pkg/errors"

	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/crypto"
)

// ErrZeroDifficulty is returned by GetBlockTemplate when the next
// difficulty is zero. NextDifficulty never returns less than
// Params.MinimumDifficulty, so this happens only with a zero
// MinimumDifficulty. Per spec section 4.G this
// condition is fatal to the caller, not retryable with different
// arguments.
var ErrZeroDifficulty = errors.New("next difficulty is zero")

// BlockTemplateResult is the output of GetBlockTemplate: a filled-in
// template ready for proof-of-work search, plus the difficulty it must
// meet and the height it would occupy.
type BlockTemplateResult struct {
	Template   *blockmodel.BlockTemplate
	TxBytes    [][]byte
	Difficulty uint64
	Height     uint64
}

// maxCoinbaseSizingRounds bounds GetBlockTemplate's fixed-point search
// for invariant 8 (cumulative_size == transactions_size + size(coinbase)
// exactly): each round's coinbase reward can only change because the
// corresponding cumulative size changed, and that size is bounded by
// the total number of selectable mempool transactions, so the search
// converges in a handful of rounds in practice. This is a backstop
// against a pathological oscillation, not an expected case.
const maxCoinbaseSizingRounds = 16

// GetBlockTemplate implements spec section 4.G's get_block_template:
// select a mempool template, build a coinbase paying minerAddress the
// resulting reward, and converge cumulative_size and the coinbase's
// own encoded size to a fixed point (the coinbase's varint-encoded
// reward amount's byte length depends on the reward value, which
// itself depends on cumulative_size via the size penalty term).
func (c *Core) GetBlockTemplate(minerAddress crypto.PublicKey, extraNonce []byte) (*BlockTemplateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	height, ok := c.canonicalHeight()
	if !ok {
		return nil, errCoreNotReady
	}
	view := c.canonicalView()
	nextHeight := height + 1
	version := c.params.VersionAt(nextHeight)

	timestamps, cumulativeDifficulties, _ := recentWindow(view, height, c.params.DifficultyWindow)
	difficulty := c.params.NextDifficulty(timestamps, cumulativeDifficulties)
	if difficulty == 0 {
		return nil, ErrZeroDifficulty
	}

	_, _, recentSizes := recentWindow(view, height, c.params.RewardBlocksWindow)
	parentStats, _ := view.StatsAt(height)

	tpl := c.pool.BuildTemplate(recentSizes, version)
	medianSize := c.params.RewardFullZone(version)
	if m := medianFloor(recentSizes, medianSize); m > medianSize {
		medianSize = m
	}

	var fees uint64
	for _, e := range tpl.Transactions {
		fees += e.Fee
	}

	coinbase, _ := buildCoinbaseFixedPoint(c, nextHeight, parentStats.AlreadyGeneratedCoins, tpl.TotalSize, medianSize, fees, version, minerAddress, extraNonce)

	txHashes := make([]crypto.Hash, len(tpl.Transactions))
	txBytes := make([][]byte, len(tpl.Transactions))
	for i, e := range tpl.Transactions {
		txHashes[i] = e.Hash
		txBytes[i] = e.Tx.Encoded()
	}

	bt := &blockmodel.BlockTemplate{
		MajorVersion:    version,
		MinorVersion:    0,
		ParentBlockHash: parentStats.Hash,
		Timestamp:       c.now().Unix(),
		Nonce:           0,
		Coinbase:        coinbase,
		TxHashes:        txHashes,
	}

	return &BlockTemplateResult{
		Template:   bt,
		TxBytes:    txBytes,
		Difficulty: difficulty,
		Height:     nextHeight,
	}, nil
}

// medianFloor mirrors consensus.MedianBlockSize but is kept local so
// the reward median here and mempool.BuildTemplate's own size-limit
// median are visibly computed the same way (both are the plain,
// undoubled median of the same trailing window).
func medianFloor(sizes []uint64, floor uint64) uint64 {
	m := medianOf(sizes)
	if m < floor {
		return floor
	}
	return m
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

// buildCoinbaseFixedPoint iterates the coinbase transaction's encoded
// size and its own reward amount to a fixed point: round 0 guesses the
// coinbase is 33 bytes (1 + 32), computes cumulative_size and the
// resulting reward, builds the real coinbase, and re-measures; if its
// size changed the loop repeats with the new measurement until the
// size is stable or the round budget is exhausted.
func buildCoinbaseFixedPoint(c *Core, height, alreadyGeneratedCoins, txBytesSize, medianSize, fees uint64, version uint8, minerAddress crypto.PublicKey, extraNonce []byte) (*blockmodel.Transaction, uint64) {
	var coinbaseSize uint64 = 1 + 32 // rough initial guess: varint height tag + one key output
	var coinbase *blockmodel.Transaction

	for round := 0; round < maxCoinbaseSizingRounds; round++ {
		cumulativeSize := txBytesSize + coinbaseSize
		reward := c.params.Reward(alreadyGeneratedCoins, cumulativeSize, medianSize, fees, version)
		coinbase = &blockmodel.Transaction{
			Inputs: []blockmodel.Input{{Kind: blockmodel.InputCoinbase, CoinbaseHeight: height}},
			Outputs: []blockmodel.Output{
				{Amount: reward, TargetKind: blockmodel.OutputKey, Key: minerAddress},
			},
			UnlockTime: height + c.params.MinedMoneyUnlockWindow,
			Extra:      extraNonce,
		}
		measured := uint64(len(blockmodel.EncodeTransactionWithSignatures(coinbase)))
		if measured == coinbaseSize {
			return coinbase, coinbaseSize
		}
		coinbaseSize = measured
	}
	return coinbase, coinbaseSize
}
