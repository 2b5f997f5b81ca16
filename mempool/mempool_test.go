package mempool

import (
	"testing"
	"time"

	"golang.org/x/crypto/ed25519"

	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/consensus"
	"github.com/noctis-project/noctis/crypto"
	"github.com/noctis-project/noctis/segment"
	"github.com/noctis-project/noctis/validator"
)

func hashN(n byte) crypto.Hash {
	var h crypto.Hash
	h[0] = n
	return h
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

// spendingTx builds a single-input, single-ring key spend off the
// output planted at global index 0 by testChain, signed with priv,
// paying fee out of amount-outAmount.
func spendingTx(t *testing.T, priv ed25519.PrivateKey, keyImage crypto.Hash, amount, outAmount uint64) *blockmodel.CachedTransaction {
	t.Helper()
	spendPub, _ := genKey(t)
	tx := &blockmodel.Transaction{
		Inputs: []blockmodel.Input{
			{Kind: blockmodel.InputKey, Amount: amount, OutputIndexes: []uint64{0}, KeyImage: keyImage},
		},
		Outputs: []blockmodel.Output{{Amount: outAmount, TargetKind: blockmodel.OutputKey, Key: spendPub}},
	}
	cached := blockmodel.NewCachedTransaction(tx)
	msg := cached.PrefixHash()
	tx.RingSignatures = [][][]byte{{ed25519.Sign(priv, msg[:])}}
	return blockmodel.NewCachedTransaction(tx)
}

// testChain returns a one-block segment whose sole transaction
// planted a single spendable key output of the given amount, plus the
// keypair that can spend it.
func testChain(t *testing.T, amount uint64) (*segment.Segment, crypto.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv := genKey(t)
	root := segment.NewRoot()
	err := root.PushBlock(segment.PushInput{
		Hash:      hashN(0),
		Timestamp: 1000,
		Transactions: []segment.PushTransaction{
			{Hash: hashN(50), Outputs: []blockmodel.Output{{Amount: amount, TargetKind: blockmodel.OutputKey, Key: pub}}},
		},
		Size: 100,
	})
	if err != nil {
		t.Fatalf("pushing chain block: %v", err)
	}
	return root, pub, priv
}

func testConfig(now time.Time) Config {
	return Config{
		Params: &consensus.Params{
			RewardZoneByVersion: map[uint8]uint64{1: 20000},
			DefaultRewardZone:   20000,
			Upgrades:            []consensus.Upgrade{{MajorVersion: 1, Height: 0}},
		},
		MinimumFee:      1,
		CoinbaseReserve: 600,
		Expiry:          time.Hour,
		Now:             func() time.Time { return now },
	}
}

func TestAdmitAcceptsAWellFormedSpend(t *testing.T) {
	chain, _, priv := testChain(t, 10)
	pool := New(testConfig(time.Unix(2000, 0)))

	tx := spendingTx(t, priv, hashN(200), 10, 7)
	if err := pool.Admit(chain, 1, tx, nil, nil); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if pool.Len() != 1 {
		t.Fatalf("pool len = %d, want 1", pool.Len())
	}
	entry, ok := pool.Get(tx.Hash())
	if !ok {
		t.Fatal("entry not found by hash after admission")
	}
	if entry.Fee != 3 {
		t.Fatalf("entry fee = %d, want 3", entry.Fee)
	}
}

func TestAdmitRejectsDuplicateSubmission(t *testing.T) {
	chain, _, priv := testChain(t, 10)
	pool := New(testConfig(time.Unix(2000, 0)))

	tx := spendingTx(t, priv, hashN(200), 10, 7)
	if err := pool.Admit(chain, 1, tx, nil, nil); err != nil {
		t.Fatalf("first Admit: %v", err)
	}
	if err := pool.Admit(chain, 1, tx, nil, nil); err != ErrAlreadyAdmitted {
		t.Fatalf("second Admit error = %v, want ErrAlreadyAdmitted", err)
	}
}

func TestAdmitRejectsConflictingKeyImage(t *testing.T) {
	chain, _, priv := testChain(t, 10)
	pool := New(testConfig(time.Unix(2000, 0)))

	first := spendingTx(t, priv, hashN(200), 10, 7)
	if err := pool.Admit(chain, 1, first, nil, nil); err != nil {
		t.Fatalf("first Admit: %v", err)
	}

	// A different transaction spending the same key image (double
	// spend attempt) must be rejected even though it individually
	// validates against the chain — and, per scenario S6, the
	// rejection must be the validator's own key-image-spent error, not
	// a separate pool-level conflict error.
	second := spendingTx(t, priv, hashN(200), 10, 8)
	if err := pool.Admit(chain, 1, second, nil, nil); err == nil {
		t.Fatal("expected the second transaction to be rejected as a double spend")
	}
	if pool.Len() != 1 {
		t.Fatalf("pool len = %d, want 1 (second tx must not be indexed)", pool.Len())
	}
}

func TestAdmitRejectsBelowMinimumFee(t *testing.T) {
	chain, _, priv := testChain(t, 10)
	cfg := testConfig(time.Unix(2000, 0))
	cfg.MinimumFee = 100
	pool := New(cfg)

	tx := spendingTx(t, priv, hashN(200), 10, 9) // fee = 1, below MinimumFee
	if err := pool.Admit(chain, 1, tx, nil, nil); err != ErrFeeTooLow {
		t.Fatalf("Admit error = %v, want ErrFeeTooLow", err)
	}
}

func TestAdmitRejectsRecentlyDeletedWithinExpiry(t *testing.T) {
	chain, _, priv := testChain(t, 10)
	now := time.Unix(2000, 0)
	pool := New(testConfig(now))

	tx := spendingTx(t, priv, hashN(200), 10, 7)
	if err := pool.Admit(chain, 1, tx, nil, nil); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	pool.cfg.Now = func() time.Time { return now.Add(2 * time.Hour) } // past Expiry
	pool.Sweep()
	if pool.Len() != 0 {
		t.Fatalf("pool len = %d after sweep, want 0", pool.Len())
	}

	pool.cfg.Now = func() time.Time { return now.Add(2*time.Hour + time.Minute) }
	if err := pool.Admit(chain, 1, tx, nil, nil); err != ErrRecentlyDeleted {
		t.Fatalf("re-Admit immediately after eviction error = %v, want ErrRecentlyDeleted", err)
	}
}

func TestSweepEvictsExpiredEntriesAndPurgesRecentlyDeleted(t *testing.T) {
	chain, _, priv := testChain(t, 10)
	now := time.Unix(2000, 0)
	cfg := testConfig(now)
	cfg.Expiry = time.Minute
	pool := New(cfg)

	tx := spendingTx(t, priv, hashN(200), 10, 7)
	if err := pool.Admit(chain, 1, tx, nil, nil); err != nil {
		t.Fatalf("Admit: %v", err)
	}

	pool.cfg.Now = func() time.Time { return now.Add(2 * time.Minute) }
	pool.Sweep()
	if pool.Len() != 0 {
		t.Fatalf("pool len = %d after first sweep, want 0", pool.Len())
	}
	if _, recorded := pool.recentlyDeleted[tx.Hash()]; !recorded {
		t.Fatal("evicted hash was not recorded in the recently-deleted set")
	}

	// A second sweep, once Expiry has again elapsed since the
	// eviction itself, must purge the recently-deleted record too.
	pool.cfg.Now = func() time.Time { return now.Add(5 * time.Minute) }
	pool.Sweep()
	if _, recorded := pool.recentlyDeleted[tx.Hash()]; recorded {
		t.Fatal("recently-deleted record was not purged after its own expiry")
	}
}

func TestBuildTemplateOrdersByFeePerByte(t *testing.T) {
	chainA, _, privA := testChain(t, 100)
	chainB, _, privB := testChain(t, 100)
	pool := New(testConfig(time.Unix(2000, 0)))

	low := spendingTx(t, privA, hashN(201), 100, 95)  // fee 5
	high := spendingTx(t, privB, hashN(202), 100, 50) // fee 50
	if err := pool.Admit(chainA, 1, low, nil, nil); err != nil {
		t.Fatalf("admitting low-fee tx: %v", err)
	}
	if err := pool.Admit(chainB, 1, high, nil, nil); err != nil {
		t.Fatalf("admitting high-fee tx: %v", err)
	}

	tpl := pool.BuildTemplate(nil, 1)
	if len(tpl.Transactions) != 2 {
		t.Fatalf("template has %d transactions, want 2", len(tpl.Transactions))
	}
	if tpl.Transactions[0].Hash != high.Hash() {
		t.Fatal("the higher fee-per-byte transaction must be selected first")
	}
}

// TestTemplateOrderingMatchesFeePerByteThenSizeThenArrival reproduces
// scenario S5 directly against the priority comparator: three entries
// with (fee, size) = (100,100), (50,50), (10,10) all share a fee/size
// ratio of 1.0, so the tiebreak must fall through to ascending size,
// yielding (10,10), (50,50), (100,100).
func TestTemplateOrderingMatchesFeePerByteThenSizeThenArrival(t *testing.T) {
	pool := New(testConfig(time.Unix(2000, 0)))
	base := time.Unix(1000, 0)

	mk := func(n byte, fee, size uint64) *Entry {
		return &Entry{Hash: hashN(n), Fee: fee, Size: size, ReceivedAt: base}
	}
	e100 := mk(1, 100, 100)
	e50 := mk(2, 50, 50)
	e10 := mk(3, 10, 10)
	pool.byHash[e100.Hash] = e100
	pool.byHash[e50.Hash] = e50
	pool.byHash[e10.Hash] = e10

	ordered := pool.sortedByPriority()
	if len(ordered) != 3 {
		t.Fatalf("sortedByPriority returned %d entries, want 3", len(ordered))
	}
	want := []crypto.Hash{e10.Hash, e50.Hash, e100.Hash}
	for i, e := range ordered {
		if e.Hash != want[i] {
			t.Fatalf("position %d = %s, want %s", i, e.Hash, want[i])
		}
	}
}

func TestActualizeRemovesTransactionsThatNoLongerValidate(t *testing.T) {
	chain, _, priv := testChain(t, 10)
	pool := New(testConfig(time.Unix(2000, 0)))

	tx := spendingTx(t, priv, hashN(200), 10, 7)
	if err := pool.Admit(chain, 1, tx, nil, nil); err != nil {
		t.Fatalf("Admit: %v", err)
	}

	// Simulate the key image having been spent by a newly-connected
	// block: ValidateTransaction against the same chain will now see
	// it as already spent, so actualization must evict the entry.
	spentView := &spentOverlay{ChainView: chain, spent: tx.Transaction().Inputs[0].KeyImage}
	pool.Actualize(spentView, 1, nil)

	if pool.Len() != 0 {
		t.Fatalf("pool len = %d after Actualize, want 0", pool.Len())
	}
}

// spentOverlay wraps a ChainView and reports one extra key image as
// already spent, standing in for "the chain moved since admission".
type spentOverlay struct {
	validator.ChainView
	spent crypto.Hash
}

func (v *spentOverlay) HasKeyImage(ki crypto.Hash) bool {
	if ki == v.spent {
		return true
	}
	return v.ChainView.HasKeyImage(ki)
}

func TestAdmitClassifiesFeeZeroFusionTransaction(t *testing.T) {
	chain, _, priv := testChain(t, 10)
	cfg := testConfig(time.Unix(2000, 0))
	cfg.IsFusionTransaction = func(tx *blockmodel.Transaction) bool { return true }
	pool := New(cfg)

	tx := spendingTx(t, priv, hashN(200), 10, 10) // fee 0, must be treated as fusion
	if err := pool.Admit(chain, 1, tx, nil, nil); err != nil {
		t.Fatalf("Admit fee-zero fusion tx: %v", err)
	}
	entry, _ := pool.Get(tx.Hash())
	if !entry.Fusion {
		t.Fatal("entry should have been classified as a fusion transaction")
	}
}
