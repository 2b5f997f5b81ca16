package validator

import (
	"testing"

	"golang.org/x/crypto/ed25519"

	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/consensus"
	"github.com/noctis-project/noctis/crypto"
	"github.com/noctis-project/noctis/segment"
)

func hashN(n byte) crypto.Hash {
	var h crypto.Hash
	h[0] = n
	return h
}

func testParams() *consensus.Params {
	return &consensus.Params{
		DifficultyWindow:       10,
		DifficultyCut:          2,
		TargetSeconds:          120,
		MinimumDifficulty:      1,
		MoneySupply:            1 << 40,
		EmissionSpeedFactor:    5,
		RewardBlocksWindow:     5,
		RewardZoneByVersion:    map[uint8]uint64{1: 20000},
		DefaultRewardZone:      20000,
		MinedMoneyUnlockWindow: 10,
		Upgrades: []consensus.Upgrade{
			{MajorVersion: 1, Height: 0},
		},
	}
}

func testContext() *Context {
	return &Context{
		Params:               testParams(),
		BlockFutureTimeLimit: 7200,
		TimestampCheckWindow: 0,
		MaxParentBlockSize:   2048,
	}
}

func genKey(t *testing.T) (crypto.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	var out crypto.PublicKey
	copy(out[:], pub)
	return out, priv
}

func coinbaseTx(height uint64, unlockTime uint64, outputs []blockmodel.Output) *blockmodel.Transaction {
	return &blockmodel.Transaction{
		Inputs:     []blockmodel.Input{{Kind: blockmodel.InputCoinbase, CoinbaseHeight: height}},
		Outputs:    outputs,
		UnlockTime: unlockTime,
	}
}

func TestValidateBlockAcceptsWellFormedGenesisChild(t *testing.T) {
	ctx := testContext()
	root := segment.NewRoot()
	if err := root.PushBlock(segment.PushInput{Hash: hashN(0), Timestamp: 1000, Size: 50, Difficulty: 1}); err != nil {
		t.Fatalf("pushing genesis: %v", err)
	}

	reward := ctx.Params.Reward(0, 50, ctx.Params.RewardFullZone(1), 0, 1)
	pub, _ := genKey(t)
	tpl := &blockmodel.BlockTemplate{
		MajorVersion: 1,
		Timestamp:    1100,
		Coinbase:     coinbaseTx(1, 1+ctx.Params.MinedMoneyUnlockWindow, []blockmodel.Output{{Amount: reward, TargetKind: blockmodel.OutputKey, Key: pub}}),
	}

	in := &BlockInput{
		Hash:               hashN(1),
		Template:            tpl,
		CumulativeSize:      50,
		ParentMajorVersion:  1,
		ParentBlockSize:     50,
		Difficulty:          1,
		RecentBlockSizes:    []uint64{50},
	}

	result, err := ValidateBlock(ctx, root, 0, 1100, in)
	if err != nil {
		t.Fatalf("ValidateBlock: %v", err)
	}
	if result.Reward != reward {
		t.Fatalf("result reward = %d, want %d", result.Reward, reward)
	}
	if result.Fees != 0 {
		t.Fatalf("result fees = %d, want 0", result.Fees)
	}
}

func TestValidateBlockRejectsWrongVersion(t *testing.T) {
	ctx := testContext()
	root := segment.NewRoot()
	_ = root.PushBlock(segment.PushInput{Hash: hashN(0), Timestamp: 1000, Size: 50, Difficulty: 1})

	tpl := &blockmodel.BlockTemplate{MajorVersion: 9, Timestamp: 1100, Coinbase: coinbaseTx(1, 11, nil)}
	in := &BlockInput{Hash: hashN(1), Template: tpl, Difficulty: 1}

	_, err := ValidateBlock(ctx, root, 0, 1100, in)
	if err == nil {
		t.Fatal("expected a wrong-version rejection")
	}
}

func TestValidateBlockRejectsFutureTimestamp(t *testing.T) {
	ctx := testContext()
	root := segment.NewRoot()
	_ = root.PushBlock(segment.PushInput{Hash: hashN(0), Timestamp: 1000, Size: 50, Difficulty: 1})

	tpl := &blockmodel.BlockTemplate{MajorVersion: 1, Timestamp: 100000, Coinbase: coinbaseTx(1, 11, nil)}
	in := &BlockInput{Hash: hashN(1), Template: tpl, Difficulty: 1}

	_, err := ValidateBlock(ctx, root, 0, 1100, in)
	if err == nil {
		t.Fatal("expected a future-timestamp rejection")
	}
}

func TestValidateBlockRejectsZeroDifficulty(t *testing.T) {
	ctx := testContext()
	root := segment.NewRoot()
	_ = root.PushBlock(segment.PushInput{Hash: hashN(0), Timestamp: 1000, Size: 50, Difficulty: 1})

	pub, _ := genKey(t)
	reward := ctx.Params.Reward(0, 50, ctx.Params.RewardFullZone(1), 0, 1)
	tpl := &blockmodel.BlockTemplate{
		MajorVersion: 1,
		Timestamp:    1100,
		Coinbase:     coinbaseTx(1, 11, []blockmodel.Output{{Amount: reward, TargetKind: blockmodel.OutputKey, Key: pub}}),
	}
	in := &BlockInput{Hash: hashN(1), Template: tpl, CumulativeSize: 50, Difficulty: 0}

	_, err := ValidateBlock(ctx, root, 0, 1100, in)
	if err == nil {
		t.Fatal("expected a zero-difficulty rejection")
	}
}

func TestCheckParentBlockSkipsConstraintsBelowMajorVersion2(t *testing.T) {
	ctx := testContext()
	tpl := &blockmodel.BlockTemplate{MajorVersion: 1}

	// A parent with a higher major version and an oversized parent
	// block would both fail the checks below if this block were
	// version >= 2; at version 1 neither constraint applies.
	if err := checkParentBlock(ctx, tpl, 9, ctx.MaxParentBlockSize+1); err != nil {
		t.Fatalf("checkParentBlock at major version 1: %v", err)
	}
}

func TestCheckParentBlockEnforcesConstraintsAtMajorVersion2(t *testing.T) {
	ctx := testContext()
	tpl := &blockmodel.BlockTemplate{MajorVersion: 2}

	if err := checkParentBlock(ctx, tpl, 3, 100); err == nil {
		t.Fatal("expected a parent-version rejection at major version 2")
	}
	if err := checkParentBlock(ctx, tpl, 2, ctx.MaxParentBlockSize+1); err == nil {
		t.Fatal("expected a parent-block-size rejection at major version 2")
	}
	if err := checkParentBlock(ctx, tpl, 2, ctx.MaxParentBlockSize); err != nil {
		t.Fatalf("checkParentBlock at the exact size limit: %v", err)
	}
}

func TestValidateTransactionAcceptsValidKeyInputAndComputesFee(t *testing.T) {
	pub, priv := genKey(t)
	root := segment.NewRoot()
	err := root.PushBlock(segment.PushInput{
		Hash:      hashN(0),
		Timestamp: 1000,
		Transactions: []segment.PushTransaction{
			{Hash: hashN(50), Outputs: []blockmodel.Output{{Amount: 10, TargetKind: blockmodel.OutputKey, Key: pub}}},
		},
		Size: 100,
	})
	if err != nil {
		t.Fatalf("pushing block: %v", err)
	}

	spendPub, _ := genKey(t)
	tx := &blockmodel.Transaction{
		Inputs: []blockmodel.Input{
			{Kind: blockmodel.InputKey, Amount: 10, OutputIndexes: []uint64{0}, KeyImage: hashN(200)},
		},
		Outputs: []blockmodel.Output{{Amount: 7, TargetKind: blockmodel.OutputKey, Key: spendPub}},
	}
	cached := blockmodel.NewCachedTransaction(tx)
	msg := cached.PrefixHash()
	sig := ed25519.Sign(priv, msg[:])
	tx.RingSignatures = [][][]byte{{sig}}

	working := &segment.SpentSet{}
	fee, err := ValidateTransaction(root, 1, cached, working)
	if err != nil {
		t.Fatalf("ValidateTransaction: %v", err)
	}
	if fee != 3 {
		t.Fatalf("fee = %d, want 3", fee)
	}
	if len(working.KeyImages) != 1 || working.KeyImages[0] != hashN(200) {
		t.Fatalf("working set did not record the spent key image: %+v", working)
	}
}

func TestValidateTransactionRejectsDuplicateKeyImageAcrossTransactions(t *testing.T) {
	pub, priv := genKey(t)
	root := segment.NewRoot()
	_ = root.PushBlock(segment.PushInput{
		Hash:      hashN(0),
		Timestamp: 1000,
		Transactions: []segment.PushTransaction{
			{Hash: hashN(50), Outputs: []blockmodel.Output{{Amount: 10, TargetKind: blockmodel.OutputKey, Key: pub}}},
		},
		Size: 100,
	})

	buildTx := func(outAmount uint64) *blockmodel.CachedTransaction {
		spendPub, _ := genKey(t)
		tx := &blockmodel.Transaction{
			Inputs:  []blockmodel.Input{{Kind: blockmodel.InputKey, Amount: 10, OutputIndexes: []uint64{0}, KeyImage: hashN(200)}},
			Outputs: []blockmodel.Output{{Amount: outAmount, TargetKind: blockmodel.OutputKey, Key: spendPub}},
		}
		cached := blockmodel.NewCachedTransaction(tx)
		msg := cached.PrefixHash()
		tx.RingSignatures = [][][]byte{{ed25519.Sign(priv, msg[:])}}
		return blockmodel.NewCachedTransaction(tx)
	}

	working := &segment.SpentSet{}
	first := buildTx(5)
	if _, err := ValidateTransaction(root, 1, first, working); err != nil {
		t.Fatalf("first spend should validate: %v", err)
	}

	second := buildTx(3)
	if _, err := ValidateTransaction(root, 1, second, working); err == nil {
		t.Fatal("expected the second transaction to be rejected as a double spend")
	}
}

func TestValidateTransactionRejectsBadRingSignature(t *testing.T) {
	pub, _ := genKey(t)
	_, wrongPriv := genKey(t)
	root := segment.NewRoot()
	_ = root.PushBlock(segment.PushInput{
		Hash:      hashN(0),
		Timestamp: 1000,
		Transactions: []segment.PushTransaction{
			{Hash: hashN(50), Outputs: []blockmodel.Output{{Amount: 10, TargetKind: blockmodel.OutputKey, Key: pub}}},
		},
		Size: 100,
	})

	spendPub, _ := genKey(t)
	tx := &blockmodel.Transaction{
		Inputs:  []blockmodel.Input{{Kind: blockmodel.InputKey, Amount: 10, OutputIndexes: []uint64{0}, KeyImage: hashN(201)}},
		Outputs: []blockmodel.Output{{Amount: 7, TargetKind: blockmodel.OutputKey, Key: spendPub}},
	}
	cached := blockmodel.NewCachedTransaction(tx)
	msg := cached.PrefixHash()
	tx.RingSignatures = [][][]byte{{ed25519.Sign(wrongPriv, msg[:])}}

	working := &segment.SpentSet{}
	if _, err := ValidateTransaction(root, 1, cached, working); err == nil {
		t.Fatal("expected a signature-validation rejection")
	}
}

func TestGreedyMultisigVerifyRequiresInOrderMatches(t *testing.T) {
	pub1, priv1 := genKey(t)
	pub2, priv2 := genKey(t)
	msg := []byte("multisig spend")
	sig1 := ed25519.Sign(priv1, msg)
	sig2 := ed25519.Sign(priv2, msg)

	if !greedyMultisigVerify(msg, []crypto.PublicKey{pub1, pub2}, [][]byte{sig1, sig2}) {
		t.Fatal("expected in-order signatures over both keys to verify")
	}
	if !greedyMultisigVerify(msg, []crypto.PublicKey{pub1, pub2}, [][]byte{sig2}) {
		t.Fatal("a signature for the second key alone should verify by skipping the first key")
	}
	if !greedyMultisigVerify(msg, []crypto.PublicKey{pub1, pub2}, nil) {
		t.Fatal("zero required signatures should trivially succeed")
	}
}
