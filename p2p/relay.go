// Package p2p is the interface-only stand-in for spec section 1's
// out-of-scope P2P transport collaborator: the boundary a real
// peer-to-peer component would call to submit inbound blocks and
// transactions, and to learn about the core façade's own
// newly-accepted blocks so it can relay them onward.
//
// Grounded on the teacher's netadapter/server/grpcserver package (one
// gRPC service, one bidirectional MessageStream RPC per peer) and on
// domain/blockdag/notifications.go's notification-forwarding idiom,
// adapted to fan out component H's eventbus instead of a
// NotificationManager.
package p2p

import (
	"io"

	"github.com/pkg/errors"

	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/crypto"
	"github.com/noctis-project/noctis/eventbus"
	"github.com/noctis-project/noctis/p2p/relaypb"
	"github.com/noctis-project/noctis/ruleerrors"
)

// Submitter is the core façade's thread-safe submission surface, the
// only way a P2P collaborator may affect chain state, per spec
// section 4's shared-resource policy ("External collaborators (P2P,
// RPC) interact only through the façade's thread-safe submission
// points").
type Submitter interface {
	AddBlock(raw *blockmodel.RawBlock) (ruleerrors.AddBlockErrorCode, error)
	AddTransaction(raw []byte) error
	QueryBlocks(knownIDs []crypto.Hash, limit int) (startHeight uint64, blocks []*blockmodel.RawBlock, err error)
}

// Relay implements relaypb.RelayServer, translating each inbound
// envelope into exactly one Submitter call and, on its own goroutine
// per connection (Broadcast), forwarding the façade's own events back
// out as inventory announcements.
type Relay struct {
	core   Submitter
	events *eventbus.Queue
}

// NewRelay builds a Relay around core's submission surface and an
// event subscription already obtained from core's eventbus.Bus.
func NewRelay(core Submitter, sub *eventbus.Queue) *Relay {
	return &Relay{core: core, events: sub}
}

// MessageStream implements relaypb.RelayServer: it reads inbound
// envelopes until the peer closes the stream or a transport error
// occurs. A rejected block or transaction is logged and the stream
// continues — one bad envelope does not cost the peer its connection,
// the same tolerance the teacher's grpcserver gives malformed
// messages.
func (r *Relay) MessageStream(stream relaypb.Relay_MessageStreamServer) error {
	for {
		env, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		resp, err := r.handle(env)
		if err != nil {
			log.Warnf("p2p: handling inbound message: %s", err)
			continue
		}
		if resp == nil {
			continue
		}
		if err := stream.Send(resp); err != nil {
			return err
		}
	}
}

func (r *Relay) handle(env *relaypb.Envelope) (*relaypb.Envelope, error) {
	switch relaypb.EnvelopeKind(env.Kind) {
	case relaypb.KindBlocks:
		return nil, r.handleBlocks(env.Blocks)
	case relaypb.KindTx:
		return nil, r.handleTx(env.Tx)
	case relaypb.KindGetBlocks:
		return r.handleGetBlocks(env.GetBlocks)
	default:
		return nil, errors.Errorf("p2p: unknown envelope kind %d", env.Kind)
	}
}

func (r *Relay) handleBlocks(msg *relaypb.BlocksMessage) error {
	if msg == nil {
		return errors.New("p2p: blocks envelope missing payload")
	}
	for _, b := range msg.Blocks {
		raw := &blockmodel.RawBlock{TemplateBytes: b.TemplateBytes, TxBytes: b.TxBytes}
		code, err := r.core.AddBlock(raw)
		if err != nil {
			log.Debugf("p2p: rejected relayed block: %s", err)
			continue
		}
		log.Debugf("p2p: relayed block processed: %s", code)
	}
	return nil
}

func (r *Relay) handleTx(msg *relaypb.TxMessage) error {
	if msg == nil {
		return errors.New("p2p: tx envelope missing payload")
	}
	if err := r.core.AddTransaction(msg.TxBytes); err != nil {
		log.Debugf("p2p: rejected relayed transaction: %s", err)
	}
	return nil
}

func (r *Relay) handleGetBlocks(msg *relaypb.GetBlocksMessage) (*relaypb.Envelope, error) {
	if msg == nil {
		return nil, errors.New("p2p: get_blocks envelope missing payload")
	}
	knownIDs := make([]crypto.Hash, len(msg.KnownHashes))
	for i, h := range msg.KnownHashes {
		copy(knownIDs[i][:], h)
	}

	_, blocks, err := r.core.QueryBlocks(knownIDs, int(msg.Limit))
	if err != nil {
		return nil, err
	}

	out := make([]*relaypb.RawBlockMessage, len(blocks))
	for i, b := range blocks {
		out[i] = &relaypb.RawBlockMessage{TemplateBytes: b.TemplateBytes, TxBytes: b.TxBytes}
	}
	return &relaypb.Envelope{Kind: int32(relaypb.KindBlocks), Blocks: &relaypb.BlocksMessage{Blocks: out}}, nil
}

// Broadcast drains the subscribed event queue and forwards every
// inventory-worthy event to stream as an InvMessage, until the queue
// is stopped (core.Stop) or the send fails. Run it on its own
// goroutine per connected peer, alongside that peer's MessageStream
// call.
func (r *Relay) Broadcast(stream relaypb.Relay_MessageStreamServer) error {
	for {
		ev, err := r.events.Front()
		if err != nil {
			return err
		}
		if perr := r.events.Pop(); perr != nil {
			return perr
		}

		env := inventoryEnvelope(ev)
		if env == nil {
			continue
		}
		if err := stream.Send(env); err != nil {
			return err
		}
	}
}

// inventoryEnvelope translates the subset of eventbus.Event kinds a
// peer cares about into an outbound Envelope; everything else (mempool
// churn, chain switches) is this façade's own bookkeeping and has no
// wire representation in this stand-in.
func inventoryEnvelope(ev eventbus.Event) *relaypb.Envelope {
	switch ev.Kind {
	case eventbus.KindNewBlock, eventbus.KindNewAlternativeBlock:
		hash := ev.Hash
		return &relaypb.Envelope{
			Kind: int32(relaypb.KindInv),
			Inv:  &relaypb.InvMessage{Hashes: [][]byte{hash[:]}, Height: ev.Height},
		}
	default:
		return nil
	}
}
