// Package validator implements component D of the spec: the pure,
// stateless rule checks of spec section 4.D. Every exported function
// here takes a ChainView plus the concrete facts of the candidate
// block or transaction and returns a *ruleerrors.BlockValidationError
// or *ruleerrors.TransactionValidationError on the first rule it
// fails, in the same short-circuiting, one-function-per-rule style as
// the teacher's blockdag/validate.go.
package validator

import (
	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/checkpoints"
	"github.com/noctis-project/noctis/consensus"
	"github.com/noctis-project/noctis/crypto"
	"github.com/noctis-project/noctis/segment"
)

// ChainView is the narrow read surface the validator needs from a
// chain segment. *segment.Segment satisfies it; tests can supply a
// smaller fake.
type ChainView interface {
	StatsAt(height uint64) (blockmodel.PerBlockStats, bool)
	LastTimestamps(n int) []int64
	HasKeyImage(ki crypto.Hash) bool
	HasMultisigSpend(ref segment.MultisigRef) bool
	ExtractKeyOutputs(amount uint64, currentHeight uint64, globalIndexes []uint64, f segment.OutputVisitor) (segment.ExtractStatus, error)
}

// Context bundles the network parameters and policy constants every
// validation pass consults.
type Context struct {
	Params      *consensus.Params
	Checkpoints *checkpoints.Set

	// BlockFutureTimeLimit is the number of seconds a block's
	// timestamp may sit ahead of Now() before rule 3 rejects it.
	BlockFutureTimeLimit int64

	// TimestampCheckWindow is how many trailing timestamps rule 4's
	// median check consults.
	TimestampCheckWindow int

	// MaxParentBlockSize is the binary size limit rule 2 places on
	// the immediate parent block, per spec section 4.D.
	MaxParentBlockSize uint64
}

// BlockInput bundles one candidate block's header, resolved
// non-coinbase transactions, and the out-of-band facts the validator
// cannot derive from ChainView alone (cumulative size, computed
// difficulty, the parent's own version/size, and the trailing sizes
// the reward-zone/size-limit rules consult).
type BlockInput struct {
	Hash     crypto.Hash
	Template *blockmodel.BlockTemplate

	// Transactions are the block's non-coinbase transactions, in
	// inclusion order, already resolved from the mempool or wire.
	Transactions []*blockmodel.CachedTransaction

	CumulativeSize     uint64
	ParentMajorVersion uint8
	ParentBlockSize    uint64
	Difficulty         uint64
	RecentBlockSizes   []uint64 // trailing RewardBlocksWindow sizes, oldest first
}

// BlockResult carries what ValidateBlock computed along the way that
// the caller (core.AddBlock) needs to push into the segment cache:
// the total fees collected and the reward the coinbase must equal.
type BlockResult struct {
	Fees   uint64
	Reward uint64
}
