// Package ruleerrors implements the two-level error scheme that ties
// block/transaction ingest outcomes to caller-visible codes: an
// AddBlockErrorCode (or BlockValidationErrorCode / TransactionValidationErrorCode)
// is the fine-grained discriminant, an AddBlockErrorCondition groups
// codes into equivalence classes callers can match on.
//
// This mirrors the call convention seen at the teacher's
// blockdag/dag.go:576 (`ruleError(err.ErrorCode, newErrString)`) and
// domain/consensus/processes/coinbasemanager's
// `errors.Wrap(ruleerrors.ErrXxx, ...)` idiom, generalized to the
// CryptoNote-style taxonomy of spec section 7.
package ruleerrors

// AddBlockErrorCode is the fine-grained result of an add_block or
// submit_block call: it carries both success-shaped outcomes
// (AddedToMain, ...) and the orphan/duplicate rejections that never
// reach validation.
type AddBlockErrorCode int

// Supported AddBlockErrorCode values.
const (
	AddedToMain AddBlockErrorCode = iota
	AddedToAlternative
	AddedToAlternativeAndSwitched
	AlreadyExists
	RejectedAsOrphaned
	DeserializationFailed
)

var addBlockErrorCodeStrings = map[AddBlockErrorCode]string{
	AddedToMain:                   "added to main chain",
	AddedToAlternative:            "added to an alternative chain",
	AddedToAlternativeAndSwitched: "added to an alternative chain and switched to it",
	AlreadyExists:                 "block already exists",
	RejectedAsOrphaned:            "rejected: parent block unknown",
	DeserializationFailed:         "block deserialization failed",
}

// String returns the human-readable message for the code. The string
// is descriptive only, never part of the wire/RPC protocol: the
// numeric code is.
func (c AddBlockErrorCode) String() string {
	if s, ok := addBlockErrorCodeStrings[c]; ok {
		return s
	}
	return "unknown add-block error code"
}

// IsSuccess reports whether this code represents a block that was
// actually stored somewhere in the segment tree (main or alternative),
// as opposed to a rejection.
func (c AddBlockErrorCode) IsSuccess() bool {
	switch c {
	case AddedToMain, AddedToAlternative, AddedToAlternativeAndSwitched, AlreadyExists:
		return true
	default:
		return false
	}
}

// AddBlockErrorCondition groups AddBlockErrorCode (and the richer
// BlockValidationError / TransactionValidationError kinds) into
// equivalence classes for caller matching, per spec section 7.
type AddBlockErrorCondition int

// Supported AddBlockErrorCondition values.
const (
	BlockAdded AddBlockErrorCondition = iota
	BlockRejected
	ConditionBlockValidationFailed
	ConditionTransactionValidationFailed
	ConditionDeserializationFailed
	ConditionTransactionAbsentInPool
)

var addBlockErrorConditionStrings = map[AddBlockErrorCondition]string{
	BlockAdded:                           "block added",
	BlockRejected:                        "block rejected",
	ConditionBlockValidationFailed:       "block validation failed",
	ConditionTransactionValidationFailed: "transaction validation failed",
	ConditionDeserializationFailed:       "deserialization failed",
	ConditionTransactionAbsentInPool:     "templated transaction absent from pool",
}

// String returns the human-readable name of the condition.
func (c AddBlockErrorCondition) String() string {
	if s, ok := addBlockErrorConditionStrings[c]; ok {
		return s
	}
	return "unknown add-block error condition"
}

// Condition classifies an AddBlockErrorCode into its equivalence
// class. It only sees the success/orphan/deserialization shapes: a
// validation rejection is never carried as a code, so callers that
// also have the error AddBlock/SubmitBlock returned should use
// ConditionOf instead.
func Condition(code AddBlockErrorCode) AddBlockErrorCondition {
	switch code {
	case AddedToMain, AddedToAlternative, AddedToAlternativeAndSwitched, AlreadyExists:
		return BlockAdded
	case RejectedAsOrphaned:
		return BlockRejected
	case DeserializationFailed:
		return ConditionDeserializationFailed
	default:
		return BlockRejected
	}
}

// ConditionOf classifies the full (code, err) pair AddBlock/SubmitBlock
// return, per spec section 7: a validation error takes precedence over
// the code (which is meaningless on that path), and
// ErrTransactionAbsentInPool gets its own condition distinct from the
// rest of BlockValidationError's codes since it is submit_block-specific
// (spec section 4.G) rather than a property of the block's contents.
func ConditionOf(code AddBlockErrorCode, err error) AddBlockErrorCondition {
	switch e := err.(type) {
	case *TransactionValidationError:
		return ConditionTransactionValidationFailed
	case *BlockValidationError:
		if e.Code == ErrTransactionAbsentInPool {
			return ConditionTransactionAbsentInPool
		}
		return ConditionBlockValidationFailed
	case nil:
		return Condition(code)
	default:
		return BlockRejected
	}
}
