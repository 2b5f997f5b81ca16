package relaypb

import (
	"context"

	"google.golang.org/grpc"
)

// RelayServer is the server-side contract a Relay must satisfy: a
// single bidirectional stream multiplexing every envelope kind,
// grounded on the teacher's protowire.P2PServer's own single
// MessageStream RPC.
type RelayServer interface {
	MessageStream(Relay_MessageStreamServer) error
}

// Relay_MessageStreamServer is the server-side handle for one peer's
// stream.
type Relay_MessageStreamServer interface {
	Send(*Envelope) error
	Recv() (*Envelope, error)
	grpc.ServerStream
}

type relayMessageStreamServer struct {
	grpc.ServerStream
}

func (x *relayMessageStreamServer) Send(m *Envelope) error {
	return x.ServerStream.SendMsg(m)
}

func (x *relayMessageStreamServer) Recv() (*Envelope, error) {
	m := new(Envelope)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _Relay_MessageStream_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(RelayServer).MessageStream(&relayMessageStreamServer{stream})
}

var _Relay_serviceDesc = grpc.ServiceDesc{
	ServiceName: "relaypb.Relay",
	HandlerType: (*RelayServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "MessageStream",
			Handler:       _Relay_MessageStream_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "relaypb/relay.proto",
}

// RegisterRelayServer registers srv's handler with s, the same call
// shape a generated RegisterRelayServer would have.
func RegisterRelayServer(s *grpc.Server, srv RelayServer) {
	s.RegisterService(&_Relay_serviceDesc, srv)
}

// RelayClient is the client-side contract for dialing a Relay peer.
type RelayClient interface {
	MessageStream(ctx context.Context, opts ...grpc.CallOption) (Relay_MessageStreamClient, error)
}

type relayClient struct {
	cc grpc.ClientConnInterface
}

// NewRelayClient wraps cc (typically from grpc.Dial) as a RelayClient.
func NewRelayClient(cc grpc.ClientConnInterface) RelayClient {
	return &relayClient{cc}
}

func (c *relayClient) MessageStream(ctx context.Context, opts ...grpc.CallOption) (Relay_MessageStreamClient, error) {
	stream, err := c.cc.NewStream(ctx, &_Relay_serviceDesc.Streams[0], "/relaypb.Relay/MessageStream", opts...)
	if err != nil {
		return nil, err
	}
	return &relayMessageStreamClient{stream}, nil
}

// Relay_MessageStreamClient is the client-side handle for a dialed
// peer's stream.
type Relay_MessageStreamClient interface {
	Send(*Envelope) error
	Recv() (*Envelope, error)
	grpc.ClientStream
}

type relayMessageStreamClient struct {
	grpc.ClientStream
}

func (x *relayMessageStreamClient) Send(m *Envelope) error {
	return x.ClientStream.SendMsg(m)
}

func (x *relayMessageStreamClient) Recv() (*Envelope, error) {
	m := new(Envelope)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
