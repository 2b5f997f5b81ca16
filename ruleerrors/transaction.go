package ruleerrors

import "fmt"

// TransactionValidationErrorCode enumerates every reason the
// transaction-level validator (spec section 4.D) can reject a
// transaction, whether encountered during block validation or
// mempool admission.
type TransactionValidationErrorCode int

// Supported TransactionValidationErrorCode values.
const (
	ErrEmptyInputs TransactionValidationErrorCode = iota
	ErrUnknownInputType
	ErrEmptyOutputUsage
	ErrIdenticalKeyImages
	ErrIdenticalOutputIndexes
	ErrKeyImageAlreadySpent
	ErrInvalidGlobalIndex
	ErrSpendTimeLocked
	ErrInvalidSignatures
	ErrWrongSignatureCount
	ErrInputAmountOverflow
	ErrWrongInputCount
	ErrUnexpectedInputType
	ErrBaseInputWrongBlockIndex
	ErrZeroOutputAmount
	ErrInvalidOutputKey
	ErrInvalidRequiredSignatureCount
	ErrUnknownOutputType
	ErrOutputAmountOverflow
	ErrWrongNetAmount
	ErrWrongUnlockTime
)

var transactionValidationErrorCodeStrings = map[TransactionValidationErrorCode]string{
	ErrEmptyInputs:                   "transaction has no inputs",
	ErrUnknownInputType:              "transaction input has an unrecognized type",
	ErrEmptyOutputUsage:              "key input has no output indexes",
	ErrIdenticalKeyImages:            "duplicate key image within the transaction or working spent-set",
	ErrIdenticalOutputIndexes:        "duplicate multisig (amount, output_index) within the transaction or working spent-set",
	ErrKeyImageAlreadySpent:          "key image already spent on the canonical chain",
	ErrInvalidGlobalIndex:            "output index does not resolve to an existing global output",
	ErrSpendTimeLocked:               "referenced output is still time-locked",
	ErrInvalidSignatures:             "ring signature does not validate against the resolved output keys",
	ErrWrongSignatureCount:           "multisig input signature count does not equal the output's required_sigs",
	ErrInputAmountOverflow:           "sum of input amounts overflows u64",
	ErrWrongInputCount:               "transaction has more than one coinbase input, or a coinbase input alongside other inputs",
	ErrUnexpectedInputType:           "coinbase input type appears outside a coinbase transaction",
	ErrBaseInputWrongBlockIndex:      "coinbase input height does not match the containing block",
	ErrZeroOutputAmount:              "transaction output has a zero amount",
	ErrInvalidOutputKey:              "transaction output target key is invalid",
	ErrInvalidRequiredSignatureCount: "multisig output has an invalid required_sigs count",
	ErrUnknownOutputType:             "transaction output has an unrecognized target type",
	ErrOutputAmountOverflow:          "sum of output amounts overflows u64",
	ErrWrongNetAmount:                "sum of outputs exceeds sum of inputs",
	ErrWrongUnlockTime:               "unlock_time is not satisfied at the current height",
}

// String returns the descriptive (not protocol-stable) message for
// the code.
func (c TransactionValidationErrorCode) String() string {
	if s, ok := transactionValidationErrorCodeStrings[c]; ok {
		return s
	}
	return "unknown transaction validation error code"
}

// TransactionValidationError is returned by the transaction validator
// for both in-block and mempool-admission validation passes.
type TransactionValidationError struct {
	Code        TransactionValidationErrorCode
	Description string
}

// Error implements the error interface.
func (e *TransactionValidationError) Error() string {
	return e.Description
}

// NewTransactionValidationError constructs a TransactionValidationError,
// formatting the description eagerly.
func NewTransactionValidationError(code TransactionValidationErrorCode, format string, args ...interface{}) *TransactionValidationError {
	desc := code.String()
	if format != "" {
		desc = fmt.Sprintf(format, args...)
	}
	return &TransactionValidationError{Code: code, Description: desc}
}
