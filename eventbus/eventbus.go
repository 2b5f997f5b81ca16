// Package eventbus implements component H of the spec: bounded FIFO
// queues observers subscribe to, fed by the core façade under its
// lock and drained by consumers from their own goroutine.
//
// Grounded on original_source's MessageQueue.h (push/front/pop/stop,
// cancellation on stop) translated to Go channels, and on the
// teacher's blockdag/notifications.go tagged-notification-type style
// for the event variant itself.
package eventbus

import (
	"github.com/noctis-project/noctis/crypto"
)

// DeleteReason discriminates why a mempool transaction was removed.
type DeleteReason int

// Supported DeleteReason values.
const (
	DeleteInBlock DeleteReason = iota
	DeleteOutdated
	DeleteNotActual
)

func (r DeleteReason) String() string {
	switch r {
	case DeleteInBlock:
		return "InBlock"
	case DeleteOutdated:
		return "Outdated"
	case DeleteNotActual:
		return "NotActual"
	default:
		return "Unknown"
	}
}

// EventKind discriminates the Event tagged union.
type EventKind int

// Supported EventKind values.
const (
	KindNewBlock EventKind = iota
	KindNewAlternativeBlock
	KindChainSwitch
	KindAddTransaction
	KindDeleteTransaction
)

// Event is the single tagged variant of spec section 4.H / section 9's
// design note: every field that isn't relevant to Kind is simply left
// zero. Events are passed by value; copying one is cheap since a copy
// of the chain-switch hash list shares its backing array.
type Event struct {
	Kind EventKind

	// NewBlock, NewAlternativeBlock
	Height uint64
	Hash   crypto.Hash

	// ChainSwitch
	CommonRootHeight  uint64
	HashesOnNewBranch []crypto.Hash

	// AddTransaction, DeleteTransaction
	Hashes []crypto.Hash
	Reason DeleteReason
}

// NewBlock constructs a KindNewBlock event.
func NewBlock(height uint64, hash crypto.Hash) Event {
	return Event{Kind: KindNewBlock, Height: height, Hash: hash}
}

// NewAlternativeBlock constructs a KindNewAlternativeBlock event.
func NewAlternativeBlock(height uint64, hash crypto.Hash) Event {
	return Event{Kind: KindNewAlternativeBlock, Height: height, Hash: hash}
}

// NewChainSwitch constructs a KindChainSwitch event.
func NewChainSwitch(commonRootHeight uint64, hashesOnNewBranch []crypto.Hash) Event {
	return Event{Kind: KindChainSwitch, CommonRootHeight: commonRootHeight, HashesOnNewBranch: hashesOnNewBranch}
}

// NewAddTransaction constructs a KindAddTransaction event.
func NewAddTransaction(hashes []crypto.Hash) Event {
	return Event{Kind: KindAddTransaction, Hashes: hashes}
}

// NewDeleteTransaction constructs a KindDeleteTransaction event.
func NewDeleteTransaction(hashes []crypto.Hash, reason DeleteReason) Event {
	return Event{Kind: KindDeleteTransaction, Hashes: hashes, Reason: reason}
}
