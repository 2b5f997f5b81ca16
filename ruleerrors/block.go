package ruleerrors

import "fmt"

// BlockValidationErrorCode enumerates every reason the block-level
// validator (component D, spec section 4.D) can reject a block.
type BlockValidationErrorCode int

// Supported BlockValidationErrorCode values. The order of this list is
// not the order in which the validator checks them.
const (
	ErrWrongBlockVersion BlockValidationErrorCode = iota
	ErrParentBlockVersion
	ErrParentBlockTooBig
	ErrTimestampTooFarInFuture
	ErrTimestampTooOld
	ErrCumulativeSizeTooBig
	ErrBadCoinbaseInputCount
	ErrBadCoinbaseInputType
	ErrBadCoinbaseHeight
	ErrBadCoinbaseUnlockTime
	ErrZeroCoinbaseOutputAmount
	ErrInvalidCoinbaseOutputKey
	ErrCoinbaseAmountOverflow
	ErrDifficultyOverhead
	ErrZeroDifficulty
	ErrRewardMismatch
	ErrCheckpointMismatch
	ErrProofOfWorkTooWeak
	ErrTransactionAbsentInPool
	ErrAlternativeRewritesCheckpoint
)

var blockValidationErrorCodeStrings = map[BlockValidationErrorCode]string{
	ErrWrongBlockVersion:             "block has wrong major version for this height",
	ErrParentBlockVersion:            "parent block violates the major-version constraints for this block's version",
	ErrParentBlockTooBig:             "parent block binary size exceeds 2048 bytes",
	ErrTimestampTooFarInFuture:       "block timestamp is too far in the future",
	ErrTimestampTooOld:               "block timestamp is below the median of recent timestamps",
	ErrCumulativeSizeTooBig:          "cumulative block size exceeds the size limit for this height",
	ErrBadCoinbaseInputCount:         "coinbase does not have exactly one coinbase input",
	ErrBadCoinbaseInputType:          "coinbase's sole input is not a coinbase input",
	ErrBadCoinbaseHeight:             "coinbase input height does not equal previous height plus one",
	ErrBadCoinbaseUnlockTime:         "coinbase unlock time does not match the mined-money unlock window",
	ErrZeroCoinbaseOutputAmount:      "coinbase has an output with a zero amount",
	ErrInvalidCoinbaseOutputKey:      "coinbase has an output with an invalid target key",
	ErrCoinbaseAmountOverflow:        "coinbase output amounts overflow u64",
	ErrDifficultyOverhead:            "failed computing next difficulty",
	ErrZeroDifficulty:                "computed next difficulty is zero",
	ErrRewardMismatch:                "computed reward does not equal the coinbase output sum",
	ErrCheckpointMismatch:            "block hash does not match the configured checkpoint for this height",
	ErrProofOfWorkTooWeak:            "block hash does not meet the required difficulty",
	ErrTransactionAbsentInPool:       "a transaction referenced by the submitted template is no longer in the pool",
	ErrAlternativeRewritesCheckpoint: "alternative block would rewrite history at or before a configured checkpoint",
}

// String returns the descriptive (not protocol-stable) message for
// the code.
func (c BlockValidationErrorCode) String() string {
	if s, ok := blockValidationErrorCodeStrings[c]; ok {
		return s
	}
	return "unknown block validation error code"
}

// BlockValidationError is returned by the validator (and propagated
// through core.AddBlock) when a block fails one of the ordered checks
// of spec section 4.D.
type BlockValidationError struct {
	Code        BlockValidationErrorCode
	Description string
}

// Error implements the error interface.
func (e *BlockValidationError) Error() string {
	return e.Description
}

// NewBlockValidationError constructs a BlockValidationError the way
// the teacher's ruleError(code, msg) call sites do, formatting the
// description eagerly so logging call sites don't need to.
func NewBlockValidationError(code BlockValidationErrorCode, format string, args ...interface{}) *BlockValidationError {
	desc := code.String()
	if format != "" {
		desc = fmt.Sprintf(format, args...)
	}
	return &BlockValidationError{Code: code, Description: desc}
}
