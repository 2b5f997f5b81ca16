// Package core implements component G of the spec: the façade that
// owns the segment tree, the mempool, and the validator context behind
// a single serializing lock, and exposes the add_block / submit_block /
// add_tx_to_pool / get_block_template / query_blocks / get_random_outputs
// / get_transactions operation table of spec section 4.G.
//
// Grounded on the teacher's kaspad.go component-wrapper shape (one
// struct holding every subsystem, wired up once at construction) and
// domain/consensus/processes/blockprocessor/validateandinsertblock.go's
// validate-then-insert sequencing, retargeted from kaspad's per-virtual-
// -block DAG processing to this spec's single segment-tree-plus-mempool
// model. The façade's lock is non-reentrant (sync.Mutex, not a
// recursive lock): every unexported helper that runs while the lock is
// already held is written lock-free and never re-acquires it, the same
// public/internal split blockdag.BlockDAG uses between its exported
// methods and its internal processBlock-style helpers.
package core

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/noctis-project/noctis/checkpoints"
	"github.com/noctis-project/noctis/consensus"
	"github.com/noctis-project/noctis/eventbus"
	"github.com/noctis-project/noctis/mempool"
	"github.com/noctis-project/noctis/segment"
	"github.com/noctis-project/noctis/segmenttree"
	"github.com/noctis-project/noctis/validator"
)

// Config bundles the network parameters and policy constants Core
// needs beyond what it builds for itself (the tree, the pool, the
// cleaner).
type Config struct {
	Params      *consensus.Params
	Checkpoints *checkpoints.Set
	Events      *eventbus.Bus

	// ValidatorCtx carries the BlockFutureTimeLimit / TimestampCheckWindow
	// / MaxParentBlockSize policy constants validator.ValidateBlock
	// consults; its Params and Checkpoints fields are overwritten with
	// this Config's own at construction so the two never drift apart.
	ValidatorCtx *validator.Context

	// Pool configures the mempool; its Params and Events fields are
	// likewise overwritten at construction.
	Pool mempool.Config

	// Now stands in for wall-clock time everywhere Core needs it
	// (block timestamp-in-future checks, mempool expiry); defaults to
	// time.Now.
	Now func() time.Time
}

// Core is the component-G façade: the single entry point every
// external caller (RPC, P2P relay, CLI) goes through to touch chain
// state. All exported methods take Core's lock; none of them may be
// called from within another exported method's call stack, since the
// lock is not reentrant.
type Core struct {
	mu sync.Mutex

	params      *consensus.Params
	checkpoints *checkpoints.Set
	events      *eventbus.Bus
	validatorCtx *validator.Context
	now         func() time.Time

	tree    *segmenttree.Tree
	pool    *mempool.Pool
	cleaner *mempool.Cleaner
}

// New wires a Core around an already-opened tree (the caller is
// responsible for opening or bootstrapping the underlying blockstore
// and for seeding an empty chain through Core.AddGenesis or Load).
func New(cfg Config, tree *segmenttree.Tree) *Core {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	vctx := *cfg.ValidatorCtx
	vctx.Params = cfg.Params
	vctx.Checkpoints = cfg.Checkpoints

	c := &Core{
		params:       cfg.Params,
		checkpoints:  cfg.Checkpoints,
		events:       cfg.Events,
		validatorCtx: &vctx,
		now:          now,
		tree:         tree,
	}

	poolCfg := cfg.Pool
	poolCfg.Params = cfg.Params
	poolCfg.Events = cfg.Events
	if poolCfg.Now == nil {
		poolCfg.Now = now
	}
	c.pool = mempool.New(poolCfg)
	c.cleaner = mempool.NewCleaner(c.pool, c.mu.Lock, c.mu.Unlock)
	return c
}

// Start begins the mempool's background eviction sweep.
func (c *Core) Start() { c.cleaner.Start() }

// Stop halts the mempool's background eviction sweep. Callers should
// call this before Save, so the sweep cannot race the final flush.
func (c *Core) Stop() { c.cleaner.Stop() }

// canonicalView returns the segment cache for the current canonical
// leaf. Callers must already hold c.mu.
func (c *Core) canonicalView() *segment.Segment {
	return c.tree.Segment(c.tree.Canonical())
}

// canonicalHeight returns the height of the canonical leaf's top
// block, or 0 with ok=false if the chain has no blocks yet (no
// genesis pushed). Callers must already hold c.mu.
func (c *Core) canonicalHeight() (height uint64, ok bool) {
	seg := c.canonicalView()
	if seg.Count() == 0 && c.tree.Canonical() == c.tree.Root() {
		return 0, false
	}
	return seg.TopHeight(), true
}

// recentWindow gathers the trailing n blocks' timestamps and
// cumulative difficulties, oldest first, as consensus.Params.NextDifficulty
// and consensus.MedianBlockSize expect — unlike Segment.LastTimestamps,
// which returns newest first for the validator's median-timestamp
// check. Callers must already hold c.mu.
func recentWindow(seg *segment.Segment, topHeight uint64, n int) (timestamps []int64, cumulativeDifficulties []uint64, sizes []uint64) {
	count := topHeight + 1
	if uint64(n) < count {
		count = uint64(n)
	}
	start := topHeight + 1 - count
	for h := start; h <= topHeight; h++ {
		stats, ok := seg.StatsAt(h)
		if !ok {
			continue
		}
		timestamps = append(timestamps, stats.Timestamp)
		cumulativeDifficulties = append(cumulativeDifficulties, stats.CumulativeDifficulty)
		sizes = append(sizes, stats.BlockSize)
	}
	return timestamps, cumulativeDifficulties, sizes
}

// errCoreNotReady is returned by operations that need a canonical
// block to exist (everything except pushing the genesis block).
var errCoreNotReady = errors.New("core has no genesis block yet")
