// Package mempool implements component F of the spec: the in-memory
// transaction pool with priority/payment-id indexing, admission,
// template selection, a periodic cleaner, and chain-change
// actualization.
//
// Grounded on domain/mempool/mempool.go's pool/depends/dependsByPrev
// map trio (TxPool's three parallel maps), retargeted from the UTXO
// outpoint-dependency model that file tracks to this spec's
// key-image/payment-id model: there is no unconfirmed-parent-tx
// dependency chain here (CryptoNote-style ring signatures reference
// already-confirmed global indexes only), so the third index becomes
// the payment-id multimap spec section 4.F calls for instead of a
// dependsByPrev table.
package mempool

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/consensus"
	"github.com/noctis-project/noctis/crypto"
	"github.com/noctis-project/noctis/eventbus"
	"github.com/noctis-project/noctis/segment"
	"github.com/noctis-project/noctis/validator"
)

// Admission rejections that are policy decisions of the pool itself,
// not a rule violation of the block/transaction validator. A
// transaction that conflicts with one already pooled is rejected by
// the validator's own ErrKeyImageAlreadySpent / ErrIdenticalOutputIndexes
// instead (see poolView below), not a sentinel here.
var (
	ErrAlreadyAdmitted     = errors.New("transaction already in the pool")
	ErrRecentlyDeleted     = errors.New("transaction was recently evicted and its expiry has not elapsed")
	ErrTransactionTooLarge = errors.New("transaction exceeds the pool's current size allowance")
	ErrFeeTooLow           = errors.New("transaction fee is below the minimum relay fee")
)

// DefaultFusionPredicate is the currency-defined "well-formed fusion
// transaction" predicate spec section 4.F leaves open: a transaction
// that consolidates more than one input into a single output pays no
// fee and is still admitted. Callers with a real fusion-transaction
// definition should supply their own via Config.IsFusionTransaction.
func DefaultFusionPredicate(tx *blockmodel.Transaction) bool {
	return len(tx.Inputs) > 1 && len(tx.Outputs) == 1
}

// Config bundles the policy constants and collaborators the pool
// needs for admission, selection, and the cleaner.
type Config struct {
	Params *consensus.Params

	MinimumFee      uint64
	CoinbaseReserve uint64
	Expiry          time.Duration

	Now                 func() time.Time
	IsFusionTransaction func(*blockmodel.Transaction) bool

	Events *eventbus.Bus
}

// Entry is one admitted transaction plus the bookkeeping the
// admission, selection, and cleaner algorithms need.
type Entry struct {
	Hash       crypto.Hash
	Tx         *blockmodel.CachedTransaction
	Fee        uint64
	Size       uint64
	ReceivedAt time.Time
	SpentSet   segment.SpentSet
	PaymentID  *crypto.Hash
	Fusion     bool
}

// priority is fee per byte, the ratio scenario S5 ranks by. Ties on
// that ratio break by ascending size, then by earlier arrival — the
// exact three-level order scenario S5 spells out.
func (e *Entry) priority() float64 {
	if e.Size == 0 {
		return 0
	}
	return float64(e.Fee) / float64(e.Size)
}

type deletion struct {
	at time.Time
}

// Pool is the in-memory transaction pool of spec section 4.F.
//
// Pool does no locking of its own on the admission/selection/removal
// path: like segment.Segment, it assumes the caller (the core façade)
// holds the one core-wide lock. The cleaner goroutine is the one
// exception — it runs on its own timer and must acquire that same
// lock itself, so callers pass Lock/Unlock to NewCleaner.
type Pool struct {
	cfg Config

	byHash          map[crypto.Hash]*Entry
	byPaymentID     map[crypto.Hash][]crypto.Hash
	keyImages       map[crypto.Hash]crypto.Hash
	multisig        map[segment.MultisigRef]crypto.Hash
	recentlyDeleted map[crypto.Hash]deletion
}

// New creates an empty pool.
func New(cfg Config) *Pool {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IsFusionTransaction == nil {
		cfg.IsFusionTransaction = DefaultFusionPredicate
	}
	return &Pool{
		cfg:             cfg,
		byHash:          make(map[crypto.Hash]*Entry),
		byPaymentID:     make(map[crypto.Hash][]crypto.Hash),
		keyImages:       make(map[crypto.Hash]crypto.Hash),
		multisig:        make(map[segment.MultisigRef]crypto.Hash),
		recentlyDeleted: make(map[crypto.Hash]deletion),
	}
}

// Len returns the number of transactions currently pooled.
func (p *Pool) Len() int { return len(p.byHash) }

// Get returns the pooled entry for hash, if any.
func (p *Pool) Get(hash crypto.Hash) (*Entry, bool) {
	e, ok := p.byHash[hash]
	return e, ok
}

// ByPaymentID returns the hashes of every pooled transaction tagged
// with paymentID, in admission order.
func (p *Pool) ByPaymentID(paymentID crypto.Hash) []crypto.Hash {
	return append([]crypto.Hash(nil), p.byPaymentID[paymentID]...)
}

// Admit runs spec section 4.F's seven-step admission algorithm
// against tx. view must reflect the canonical chain at currentHeight;
// recentBlockSizes is the trailing reward-window of block sizes used
// to size the per-transaction cap. paymentID is the tag extracted
// from tx's extra field, if any (parsing tx.Extra is the caller's
// concern, not the pool's).
func (p *Pool) Admit(view validator.ChainView, currentHeight uint64, tx *blockmodel.CachedTransaction, recentBlockSizes []uint64, paymentID *crypto.Hash) error {
	hash := tx.Hash()

	// Step 7 (checked first: a cheap reject before the expensive
	// validation passes below; the ordering rejects the same inputs
	// the algorithm names, just sooner).
	if del, ok := p.recentlyDeleted[hash]; ok && p.cfg.Now().Sub(del.at) < p.cfg.Expiry {
		return ErrRecentlyDeleted
	}
	if _, exists := p.byHash[hash]; exists {
		return ErrAlreadyAdmitted
	}

	// Steps 1-2: the spec distinguishes a "semantic, no chain
	// spent-set" pass from a "full chain resolution" pass, but
	// validator.ValidateTransaction only has one mode — it always
	// resolves against whatever ChainView it is given — so mempool
	// admission performs the full chain-resolving pass directly, with
	// the view overlaid by the pool's own already-reserved key
	// images/multisig refs (poolView below). That overlay is what
	// makes a same-key-image double-admit surface as the validator's
	// own ErrKeyImageAlreadySpent rather than a separate pool-level
	// error — matching a key image spent by an already-pooled
	// transaction and one spent on-chain identically.
	working := &segment.SpentSet{}
	fee, err := validator.ValidateTransaction(&poolView{ChainView: view, pool: p}, currentHeight, tx, working)
	if err != nil {
		return err
	}

	// Step 3. medianSize is the reward-zone-floored median (the same
	// basis BuildTemplate's caps use), not the raw trailing-window
	// median alone: with no block history yet, a raw median of zero
	// would make every transaction "too large" on a young chain.
	version := p.cfg.Params.VersionAt(currentHeight)
	medianSize := p.cfg.Params.NextBlockSizeLimit(recentBlockSizes, version) / 2
	limit := 2 * medianSize
	if limit < p.cfg.CoinbaseReserve {
		limit = 0
	} else {
		limit -= p.cfg.CoinbaseReserve
	}
	if tx.Size() > limit {
		return ErrTransactionTooLarge
	}

	// Step 4.
	fusion := fee == 0 && p.cfg.IsFusionTransaction(tx.Transaction())
	if fee == 0 && !fusion {
		return ErrFeeTooLow
	}
	if fee > 0 && fee < p.cfg.MinimumFee {
		return ErrFeeTooLow
	}

	// Steps 5-6 (merge working into the pool's own spent-set, index).
	p.insert(&Entry{
		Hash:       hash,
		Tx:         tx,
		Fee:        fee,
		Size:       tx.Size(),
		ReceivedAt: p.cfg.Now(),
		SpentSet:   *working,
		PaymentID:  paymentID,
		Fusion:     fusion,
	})
	log.Debugf("admitted transaction %s (%d bytes, fee %d)", hash, tx.Size(), fee)
	return nil
}

// poolView overlays a ChainView with the pool's own accumulated
// spent-set, so that a transaction conflicting with one already
// pooled is rejected by the validator's ordinary
// ErrKeyImageAlreadySpent / ErrIdenticalOutputIndexes paths instead of
// a separate pool-specific error.
type poolView struct {
	validator.ChainView
	pool *Pool
}

func (v *poolView) HasKeyImage(ki crypto.Hash) bool {
	if _, ok := v.pool.keyImages[ki]; ok {
		return true
	}
	return v.ChainView.HasKeyImage(ki)
}

func (v *poolView) HasMultisigSpend(ref segment.MultisigRef) bool {
	if _, ok := v.pool.multisig[ref]; ok {
		return true
	}
	return v.ChainView.HasMultisigSpend(ref)
}

func (p *Pool) insert(e *Entry) {
	p.byHash[e.Hash] = e
	if e.PaymentID != nil {
		p.byPaymentID[*e.PaymentID] = append(p.byPaymentID[*e.PaymentID], e.Hash)
	}
	for _, ki := range e.SpentSet.KeyImages {
		p.keyImages[ki] = e.Hash
	}
	for _, ref := range e.SpentSet.Multisig {
		p.multisig[ref] = e.Hash
	}
}

// Remove evicts hash from the pool without recording it in the
// recently-deleted set (used when a transaction is mined into a
// block, not when it expires).
func (p *Pool) Remove(hash crypto.Hash) {
	p.remove(hash)
}

func (p *Pool) remove(hash crypto.Hash) *Entry {
	e, ok := p.byHash[hash]
	if !ok {
		return nil
	}
	delete(p.byHash, hash)
	if e.PaymentID != nil {
		p.byPaymentID[*e.PaymentID] = removeHash(p.byPaymentID[*e.PaymentID], hash)
		if len(p.byPaymentID[*e.PaymentID]) == 0 {
			delete(p.byPaymentID, *e.PaymentID)
		}
	}
	for _, ki := range e.SpentSet.KeyImages {
		if p.keyImages[ki] == hash {
			delete(p.keyImages, ki)
		}
	}
	for _, ref := range e.SpentSet.Multisig {
		if p.multisig[ref] == hash {
			delete(p.multisig, ref)
		}
	}
	return e
}

func removeHash(hashes []crypto.Hash, target crypto.Hash) []crypto.Hash {
	out := hashes[:0]
	for _, h := range hashes {
		if h != target {
			out = append(out, h)
		}
	}
	return out
}

// RemoveIncluded drops every one of hashes that is currently pooled
// and publishes a single DeleteTransaction(..., InBlock) event naming
// whichever of them were actually present, per spec section 5's
// ordering guarantee that a transaction landing in any newly-accepted
// block (canonical or alternative) leaves the pool immediately.
func (p *Pool) RemoveIncluded(hashes []crypto.Hash) {
	var removed []crypto.Hash
	for _, hash := range hashes {
		if p.remove(hash) != nil {
			removed = append(removed, hash)
		}
	}
	if len(removed) > 0 && p.cfg.Events != nil {
		p.cfg.Events.Publish(eventbus.NewDeleteTransaction(removed, eventbus.DeleteInBlock))
	}
}

// Actualize implements spec section 4.F's "actualization after chain
// change": every pooled transaction is removed and re-admitted
// through the normal path against the new chain state; any that fail
// re-admission are reported via a DeleteTransaction(..., NotActual)
// event rather than silently dropped.
func (p *Pool) Actualize(view validator.ChainView, currentHeight uint64, recentBlockSizes []uint64) {
	type reinsert struct {
		tx        *blockmodel.CachedTransaction
		paymentID *crypto.Hash
	}
	pending := make([]reinsert, 0, len(p.byHash))
	for _, e := range p.byHash {
		pending = append(pending, reinsert{tx: e.Tx, paymentID: e.PaymentID})
	}
	for _, r := range pending {
		p.remove(r.tx.Hash())
	}

	var failed []crypto.Hash
	for _, r := range pending {
		if err := p.Admit(view, currentHeight, r.tx, recentBlockSizes, r.paymentID); err != nil {
			failed = append(failed, r.tx.Hash())
		}
	}
	if len(failed) > 0 && p.cfg.Events != nil {
		p.cfg.Events.Publish(eventbus.NewDeleteTransaction(failed, eventbus.DeleteNotActual))
	}
}

// sortedByPriority returns every pooled entry ordered highest priority
// first, the order BuildTemplate walks.
func (p *Pool) sortedByPriority() []*Entry {
	entries := make([]*Entry, 0, len(p.byHash))
	for _, e := range p.byHash {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if pi, pj := entries[i].priority(), entries[j].priority(); pi != pj {
			return pi > pj
		}
		if entries[i].Size != entries[j].Size {
			return entries[i].Size < entries[j].Size
		}
		return entries[i].ReceivedAt.Before(entries[j].ReceivedAt)
	})
	return entries
}
