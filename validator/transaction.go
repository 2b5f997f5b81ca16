package validator

import (
	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/crypto"
	"github.com/noctis-project/noctis/ruleerrors"
	"github.com/noctis-project/noctis/segment"
)

// unlockTimestampThreshold mirrors segment's own threshold: an
// unlock_time below it is a block height, at or above it a Unix
// timestamp. Duplicated rather than exported from segment because
// that package's predicate is purely internal to output extraction;
// this one gates a transaction's own spend-time, a distinct rule.
const unlockTimestampThreshold = 500000000

func unlockSatisfiedAtHeight(unlockTime, currentHeight uint64) bool {
	if unlockTime < unlockTimestampThreshold {
		return currentHeight >= unlockTime
	}
	return false
}

// ValidateTransaction runs spec section 4.D's transaction-level checks
// against a single non-coinbase transaction. working accumulates the
// key-images and multisig refs this transaction spends so that a
// later transaction in the same block sees them as already spent;
// callers share one working SpentSet across every transaction in a
// block (or mempool admission pass).
//
// On success it returns the transaction's fee (input sum minus output
// sum).
func ValidateTransaction(view ChainView, currentHeight uint64, tx *blockmodel.CachedTransaction, working *segment.SpentSet) (uint64, error) {
	t := tx.Transaction()

	if len(t.Inputs) == 0 {
		return 0, ruleerrors.NewTransactionValidationError(ruleerrors.ErrEmptyInputs, "")
	}
	if !unlockSatisfiedAtHeight(t.UnlockTime, currentHeight) {
		return 0, ruleerrors.NewTransactionValidationError(ruleerrors.ErrWrongUnlockTime, "unlock_time %d not satisfied at height %d", t.UnlockTime, currentHeight)
	}

	seenKeyImages := make(map[crypto.Hash]bool)
	seenMultisig := make(map[segment.MultisigRef]bool)
	msg := tx.PrefixHash()

	for i, in := range t.Inputs {
		switch in.Kind {
		case blockmodel.InputCoinbase:
			return 0, ruleerrors.NewTransactionValidationError(ruleerrors.ErrUnexpectedInputType, "coinbase input appears in a non-coinbase transaction")
		case blockmodel.InputKey:
			if err := validateKeyInput(view, currentHeight, msg[:], in, ringSignaturesFor(t, i), working, seenKeyImages); err != nil {
				return 0, err
			}
		case blockmodel.InputMultisig:
			if err := validateMultisigInput(view, currentHeight, msg[:], in, ringSignaturesFor(t, i), working, seenMultisig); err != nil {
				return 0, err
			}
		default:
			return 0, ruleerrors.NewTransactionValidationError(ruleerrors.ErrUnknownInputType, "input %d has unrecognized kind %d", i, in.Kind)
		}
	}

	if err := validateOutputs(t.Outputs); err != nil {
		return 0, err
	}

	inSum, overflow := t.InputSum()
	if overflow {
		return 0, ruleerrors.NewTransactionValidationError(ruleerrors.ErrInputAmountOverflow, "")
	}
	outSum, overflow := t.OutputSum()
	if overflow {
		return 0, ruleerrors.NewTransactionValidationError(ruleerrors.ErrOutputAmountOverflow, "")
	}
	if outSum > inSum {
		return 0, ruleerrors.NewTransactionValidationError(ruleerrors.ErrWrongNetAmount, "output sum %d exceeds input sum %d", outSum, inSum)
	}
	return inSum - outSum, nil
}

func ringSignaturesFor(t *blockmodel.Transaction, inputIdx int) [][]byte {
	if inputIdx >= len(t.RingSignatures) {
		return nil
	}
	return t.RingSignatures[inputIdx]
}

// validateKeyInput implements the KeyInput checks: the ring reference
// is well-formed, every referenced output resolves and is unlocked,
// the key image has not been seen before (in this transaction, this
// block, or the canonical chain), and the ring signature validates
// against the resolved output keys.
func validateKeyInput(view ChainView, currentHeight uint64, msg []byte, in blockmodel.Input, sigs [][]byte, working *segment.SpentSet, seen map[crypto.Hash]bool) error {
	if len(in.OutputIndexes) == 0 {
		return ruleerrors.NewTransactionValidationError(ruleerrors.ErrEmptyOutputUsage, "")
	}
	for i := 1; i < len(in.OutputIndexes); i++ {
		if in.OutputIndexes[i] <= in.OutputIndexes[i-1] {
			return ruleerrors.NewTransactionValidationError(ruleerrors.ErrEmptyOutputUsage, "ring output indexes must strictly increase after the first")
		}
	}

	if seen[in.KeyImage] {
		return ruleerrors.NewTransactionValidationError(ruleerrors.ErrIdenticalKeyImages, "key image %s used twice in the same transaction", in.KeyImage)
	}
	if view.HasKeyImage(in.KeyImage) || containsKeyImage(working.KeyImages, in.KeyImage) {
		return ruleerrors.NewTransactionValidationError(ruleerrors.ErrKeyImageAlreadySpent, "key image %s already spent", in.KeyImage)
	}

	pubKeys := make([]crypto.PublicKey, 0, len(in.OutputIndexes))
	status, err := view.ExtractKeyOutputs(in.Amount, currentHeight, in.OutputIndexes, func(info *segment.TxInfo, outIndex int, globalIndex uint64) error {
		out := info.Outputs[outIndex]
		if out.TargetKind != blockmodel.OutputKey {
			return ruleerrors.NewTransactionValidationError(ruleerrors.ErrInvalidGlobalIndex, "global index %d does not resolve to a key output", globalIndex)
		}
		pubKeys = append(pubKeys, out.Key)
		return nil
	})
	if err != nil {
		return err
	}
	switch status {
	case segment.ExtractInvalidGlobalIndex:
		return ruleerrors.NewTransactionValidationError(ruleerrors.ErrInvalidGlobalIndex, "")
	case segment.ExtractOutputLocked:
		return ruleerrors.NewTransactionValidationError(ruleerrors.ErrSpendTimeLocked, "")
	}

	if !crypto.CheckRingSignature(msg, in.KeyImage, pubKeys, sigs) {
		return ruleerrors.NewTransactionValidationError(ruleerrors.ErrInvalidSignatures, "")
	}

	seen[in.KeyImage] = true
	working.KeyImages = append(working.KeyImages, in.KeyImage)
	return nil
}

// validateMultisigInput implements the MultisigInput checks: the
// referenced (amount, output_index) has not been seen before, it
// resolves to an unlocked multisig output, the declared signature
// count matches that output's required_sigs, and walking the output's
// keys in order consumes exactly that many valid signatures.
func validateMultisigInput(view ChainView, currentHeight uint64, msg []byte, in blockmodel.Input, sigs [][]byte, working *segment.SpentSet, seen map[segment.MultisigRef]bool) error {
	ref := segment.MultisigRef{Amount: in.Amount, Index: in.MultisigOutputIndex}
	if seen[ref] {
		return ruleerrors.NewTransactionValidationError(ruleerrors.ErrIdenticalOutputIndexes, "multisig output (%d,%d) used twice in the same transaction", ref.Amount, ref.Index)
	}
	if view.HasMultisigSpend(ref) || containsMultisigRef(working.Multisig, ref) {
		return ruleerrors.NewTransactionValidationError(ruleerrors.ErrIdenticalOutputIndexes, "multisig output (%d,%d) already spent", ref.Amount, ref.Index)
	}

	var resolved *blockmodel.Output
	status, err := view.ExtractKeyOutputs(in.Amount, currentHeight, []uint64{in.MultisigOutputIndex}, func(info *segment.TxInfo, outIndex int, globalIndex uint64) error {
		out := info.Outputs[outIndex]
		if out.TargetKind != blockmodel.OutputMultisig {
			return ruleerrors.NewTransactionValidationError(ruleerrors.ErrInvalidGlobalIndex, "global index %d does not resolve to a multisig output", globalIndex)
		}
		resolved = &out
		return nil
	})
	if err != nil {
		return err
	}
	switch status {
	case segment.ExtractInvalidGlobalIndex:
		return ruleerrors.NewTransactionValidationError(ruleerrors.ErrInvalidGlobalIndex, "")
	case segment.ExtractOutputLocked:
		return ruleerrors.NewTransactionValidationError(ruleerrors.ErrSpendTimeLocked, "")
	}

	if in.SigCount != resolved.RequiredSigs {
		return ruleerrors.NewTransactionValidationError(ruleerrors.ErrWrongSignatureCount, "signature count %d, want %d", in.SigCount, resolved.RequiredSigs)
	}
	if !greedyMultisigVerify(msg, resolved.Keys, sigs) {
		return ruleerrors.NewTransactionValidationError(ruleerrors.ErrInvalidSignatures, "")
	}

	seen[ref] = true
	working.Multisig = append(working.Multisig, ref)
	return nil
}

// greedyMultisigVerify walks keys in order, consuming the next
// unconsumed signature whenever it validates against the current key.
// It never backtracks: a key that doesn't match the current signature
// is skipped and the signature waits for the next key, the way the
// original CryptoNote multisig verifier checks signatures are supplied
// in the same order as their keys. It succeeds only if every signature
// was consumed.
func greedyMultisigVerify(msg []byte, keys []crypto.PublicKey, sigs [][]byte) bool {
	sigIdx := 0
	for _, key := range keys {
		if sigIdx >= len(sigs) {
			break
		}
		if crypto.CheckSignature(msg, key, sigs[sigIdx]) {
			sigIdx++
		}
	}
	return sigIdx == len(sigs)
}

func containsKeyImage(haystack []crypto.Hash, needle crypto.Hash) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func containsMultisigRef(haystack []segment.MultisigRef, needle segment.MultisigRef) bool {
	for _, r := range haystack {
		if r == needle {
			return true
		}
	}
	return false
}

// validateOutputs implements the output-side checks shared by every
// non-coinbase transaction: no zero amounts, well-formed target keys,
// valid required_sigs for multisig targets, and no amount overflow.
func validateOutputs(outputs []blockmodel.Output) error {
	var sum uint64
	for i, out := range outputs {
		if out.Amount == 0 {
			return ruleerrors.NewTransactionValidationError(ruleerrors.ErrZeroOutputAmount, "output %d has a zero amount", i)
		}
		switch out.TargetKind {
		case blockmodel.OutputKey:
			if !crypto.CheckKey(out.Key) {
				return ruleerrors.NewTransactionValidationError(ruleerrors.ErrInvalidOutputKey, "output %d has an invalid target key", i)
			}
		case blockmodel.OutputMultisig:
			if out.RequiredSigs == 0 || int(out.RequiredSigs) > len(out.Keys) {
				return ruleerrors.NewTransactionValidationError(ruleerrors.ErrInvalidRequiredSignatureCount, "output %d has required_sigs %d over %d keys", i, out.RequiredSigs, len(out.Keys))
			}
			for _, k := range out.Keys {
				if !crypto.CheckKey(k) {
					return ruleerrors.NewTransactionValidationError(ruleerrors.ErrInvalidOutputKey, "output %d has an invalid multisig key", i)
				}
			}
		default:
			return ruleerrors.NewTransactionValidationError(ruleerrors.ErrUnknownOutputType, "output %d has unrecognized target kind %d", i, out.TargetKind)
		}
		next := sum + out.Amount
		if next < sum {
			return ruleerrors.NewTransactionValidationError(ruleerrors.ErrOutputAmountOverflow, "")
		}
		sum = next
	}
	return nil
}
