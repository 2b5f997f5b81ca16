package mempool

import (
	"time"

	"github.com/noctis-project/noctis/crypto"
	"github.com/noctis-project/noctis/eventbus"
)

// cleanerInterval is the cleaner goroutine's tick period, grounded on
// the teacher's orphan-pool expiry scan cadence
// (domain/mempool/mempool.go's orphanExpireScanInterval), retargeted
// from that pool's 5-minute orphan scan to spec section 4.F's
// 60-second pool-wide sweep.
const cleanerInterval = 60 * time.Second

// Cleaner runs Pool's periodic eviction sweep on its own ticker. It
// must be started and stopped explicitly; it is not started by New so
// that tests can drive eviction deterministically by calling Sweep.
type Cleaner struct {
	pool   *Pool
	lock   func()
	unlock func()
	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}
}

// NewCleaner builds a cleaner for pool. lock/unlock must be the same
// mutex the core façade serializes every other pool access through
// (spec section 4.G: "the façade never calls back into its own locked
// methods from within a locked method" — the cleaner is the one
// caller that does not already hold that lock when its tick fires, so
// it must take it itself).
func NewCleaner(pool *Pool, lock, unlock func()) *Cleaner {
	return &Cleaner{pool: pool, lock: lock, unlock: unlock}
}

// Start begins the ticker goroutine. Calling Start twice without an
// intervening Stop leaks the first goroutine.
func (c *Cleaner) Start() {
	c.ticker = time.NewTicker(cleanerInterval)
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		for {
			select {
			case <-c.ticker.C:
				c.lock()
				c.pool.Sweep()
				c.unlock()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop halts the ticker goroutine and waits for it to exit.
func (c *Cleaner) Stop() {
	if c.stop == nil {
		return
	}
	c.ticker.Stop()
	close(c.stop)
	<-c.done
}

// Sweep evicts every pooled transaction older than Config.Expiry,
// recording each in the recently-deleted set (itself purged of
// entries older than Expiry in the same pass), and emits a
// DeleteTransaction(..., DeleteOutdated) event for whatever was
// evicted. Exported so callers (tests, or a façade driving its own
// timer) can invoke a sweep without waiting on the ticker.
func (p *Pool) Sweep() {
	now := p.cfg.Now()

	var expired []crypto.Hash
	for hash, e := range p.byHash {
		if now.Sub(e.ReceivedAt) >= p.cfg.Expiry {
			expired = append(expired, hash)
		}
	}
	for _, hash := range expired {
		p.remove(hash)
		p.recentlyDeleted[hash] = deletion{at: now}
	}

	for hash, del := range p.recentlyDeleted {
		if now.Sub(del.at) >= p.cfg.Expiry {
			delete(p.recentlyDeleted, hash)
		}
	}

	if len(expired) > 0 {
		log.Debugf("evicted %d outdated transaction(s) from the pool", len(expired))
		if p.cfg.Events != nil {
			p.cfg.Events.Publish(eventbus.NewDeleteTransaction(expired, eventbus.DeleteOutdated))
		}
	}
}
