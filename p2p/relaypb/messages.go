// Package relaypb defines the wire messages the P2P relay stand-in
// exchanges with a peer, hand-written in the shape `protoc-gen-go`
// would produce rather than generated (running protoc is out of scope
// for this exercise): plain structs with `protobuf:` struct tags,
// satisfying the legacy github.com/golang/protobuf/proto.Message
// interface (Reset/String/ProtoMessage), which google.golang.org/protobuf's
// runtime marshals via its struct-tag-based legacy support without
// requiring generated descriptors.
//
// Grounded on the teacher's protowire package: one envelope message
// multiplexes every variant over a single stream, the same role
// KaspadMessage plays for protowire's MessageStream RPC, and a plain
// Kind discriminant with mostly-nil sibling fields stands in for a
// real oneof the same way blockmodel.Input/Output's tagged unions do.
package relaypb

import "fmt"

// EnvelopeKind discriminates which of Envelope's payload fields is
// populated.
type EnvelopeKind int32

// Supported EnvelopeKind values.
const (
	KindInv EnvelopeKind = iota
	KindGetBlocks
	KindBlocks
	KindTx
)

// Envelope is the single message type exchanged over a Relay
// connection's MessageStream.
type Envelope struct {
	Kind      int32             `protobuf:"varint,1,opt,name=kind,proto3" json:"kind,omitempty"`
	Inv       *InvMessage       `protobuf:"bytes,2,opt,name=inv,proto3" json:"inv,omitempty"`
	GetBlocks *GetBlocksMessage `protobuf:"bytes,3,opt,name=get_blocks,json=getBlocks,proto3" json:"get_blocks,omitempty"`
	Blocks    *BlocksMessage    `protobuf:"bytes,4,opt,name=blocks,proto3" json:"blocks,omitempty"`
	Tx        *TxMessage        `protobuf:"bytes,5,opt,name=tx,proto3" json:"tx,omitempty"`
}

func (m *Envelope) Reset()         { *m = Envelope{} }
func (m *Envelope) String() string { return fmt.Sprintf("%+v", *m) }
func (*Envelope) ProtoMessage()    {}

// InvMessage announces newly-accepted block hashes, the relay
// equivalent of spec section 4.H's KindNewBlock/KindNewAlternativeBlock
// events.
type InvMessage struct {
	Hashes [][]byte `protobuf:"bytes,1,rep,name=hashes,proto3" json:"hashes,omitempty"`
	Height uint64   `protobuf:"varint,2,opt,name=height,proto3" json:"height,omitempty"`
}

func (m *InvMessage) Reset()         { *m = InvMessage{} }
func (m *InvMessage) String() string { return fmt.Sprintf("%+v", *m) }
func (*InvMessage) ProtoMessage()    {}

// GetBlocksMessage requests every block after the caller's highest
// known chain position, mirroring core.QueryBlocks's knownIDs/limit
// parameters directly.
type GetBlocksMessage struct {
	KnownHashes [][]byte `protobuf:"bytes,1,rep,name=known_hashes,json=knownHashes,proto3" json:"known_hashes,omitempty"`
	Limit       uint32   `protobuf:"varint,2,opt,name=limit,proto3" json:"limit,omitempty"`
}

func (m *GetBlocksMessage) Reset()         { *m = GetBlocksMessage{} }
func (m *GetBlocksMessage) String() string { return fmt.Sprintf("%+v", *m) }
func (*GetBlocksMessage) ProtoMessage()    {}

// RawBlockMessage is blockmodel.RawBlock's wire form: the opaque
// template blob plus its transactions' opaque blobs, unparsed by the
// relay itself (spec section 1 treats parsing as the core façade's
// job, not the transport's).
type RawBlockMessage struct {
	TemplateBytes []byte   `protobuf:"bytes,1,opt,name=template_bytes,json=templateBytes,proto3" json:"template_bytes,omitempty"`
	TxBytes       [][]byte `protobuf:"bytes,2,rep,name=tx_bytes,json=txBytes,proto3" json:"tx_bytes,omitempty"`
}

func (m *RawBlockMessage) Reset()         { *m = RawBlockMessage{} }
func (m *RawBlockMessage) String() string { return fmt.Sprintf("%+v", *m) }
func (*RawBlockMessage) ProtoMessage()    {}

// BlocksMessage carries a batch of blocks, sent either unsolicited
// (relaying a newly-mined block's full body) or in response to a
// GetBlocksMessage.
type BlocksMessage struct {
	Blocks []*RawBlockMessage `protobuf:"bytes,1,rep,name=blocks,proto3" json:"blocks,omitempty"`
}

func (m *BlocksMessage) Reset()         { *m = BlocksMessage{} }
func (m *BlocksMessage) String() string { return fmt.Sprintf("%+v", *m) }
func (*BlocksMessage) ProtoMessage()    {}

// TxMessage relays one opaque transaction blob for mempool admission.
type TxMessage struct {
	TxBytes []byte `protobuf:"bytes,1,opt,name=tx_bytes,json=txBytes,proto3" json:"tx_bytes,omitempty"`
}

func (m *TxMessage) Reset()         { *m = TxMessage{} }
func (m *TxMessage) String() string { return fmt.Sprintf("%+v", *m) }
func (*TxMessage) ProtoMessage()    {}
