package mempool

import (
	"github.com/noctis-project/noctis/segment"
)

// Template is the result of BuildTemplate: the transactions selected
// for the next block body, in inclusion order, and their combined
// size.
type Template struct {
	Transactions []*Entry
	TotalSize    uint64
}

// BuildTemplate implements spec section 4.F's template-selection
// algorithm: pooled transactions are walked in priority order,
// skipping any whose spent-set conflicts with one already selected or
// whose size would push the running total over the applicable cap;
// the walk continues with the remaining entries after a skip.
//
// Fusion transactions are attempted first and checked against the
// plain median_size cap; every other transaction is then attempted
// against min(1.25*median_size, max_cumulative_size - coinbase_reserve),
// the same order and caps spec section 4.F names.
func (p *Pool) BuildTemplate(recentBlockSizes []uint64, version uint8) *Template {
	maxCumulative := p.cfg.Params.NextBlockSizeLimit(recentBlockSizes, version)
	// medianSize is the same reward-zone-floored median Admit's step 3
	// uses (half of NextBlockSizeLimit, which is 2*max(median, zone)):
	// a raw trailing-window median of zero on a young chain must not
	// collapse every cap to zero.
	medianSize := maxCumulative / 2

	generalCap := maxCumulative
	if generalCap < p.cfg.CoinbaseReserve {
		generalCap = 0
	} else {
		generalCap -= p.cfg.CoinbaseReserve
	}
	if cap125 := medianSize + medianSize/4; cap125 < generalCap {
		generalCap = cap125
	}

	entries := p.sortedByPriority()
	working := &segment.SpentSet{}
	tpl := &Template{}

	tryAdd := func(e *Entry, limit uint64) {
		if conflictsWithEntry(working, &e.SpentSet) {
			return
		}
		if tpl.TotalSize+e.Size > limit {
			return
		}
		tpl.Transactions = append(tpl.Transactions, e)
		tpl.TotalSize += e.Size
		working.KeyImages = append(working.KeyImages, e.SpentSet.KeyImages...)
		working.Multisig = append(working.Multisig, e.SpentSet.Multisig...)
	}

	for _, e := range entries {
		if e.Fusion {
			tryAdd(e, medianSize)
		}
	}
	for _, e := range entries {
		if !e.Fusion {
			tryAdd(e, generalCap)
		}
	}
	return tpl
}

func conflictsWithEntry(working *segment.SpentSet, candidate *segment.SpentSet) bool {
	for _, ki := range candidate.KeyImages {
		for _, have := range working.KeyImages {
			if have == ki {
				return true
			}
		}
	}
	for _, ref := range candidate.Multisig {
		for _, have := range working.Multisig {
			if have == ref {
				return true
			}
		}
	}
	return false
}
