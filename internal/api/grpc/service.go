package grpc

import (
	"context"

	"google.golang.org/grpc"

	"nft-rental-escrow/internal/ledger"
)

const ServiceName = "rentalescrow.v1.EscrowService"

// EscrowServiceServer is the server API for the escrow service.
type EscrowServiceServer interface {
	Submit(context.Context, *ledger.Request) (*ledger.Result, error)
	GetRental(context.Context, *GetRentalRequest) (*GetRentalResponse, error)
	Reschedule(context.Context, *RescheduleRequest) (*RescheduleResponse, error)
	DeriveRecord(context.Context, *DeriveRecordRequest) (*DeriveRecordResponse, error)
}

var _ EscrowServiceServer = (*EscrowHandler)(nil)

func RegisterEscrowServiceServer(s grpc.ServiceRegistrar, srv EscrowServiceServer) {
	s.RegisterService(&EscrowServiceDesc, srv)
}

// unaryHandler adapts a typed method to the grpc.MethodDesc handler shape.
func unaryHandler[Req, Res any](method string, call func(EscrowServiceServer, context.Context, *Req) (*Res, error)) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(EscrowServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(EscrowServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var EscrowServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EscrowServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: unaryHandler("Submit", EscrowServiceServer.Submit)},
		{MethodName: "GetRental", Handler: unaryHandler("GetRental", EscrowServiceServer.GetRental)},
		{MethodName: "Reschedule", Handler: unaryHandler("Reschedule", EscrowServiceServer.Reschedule)},
		{MethodName: "DeriveRecord", Handler: unaryHandler("DeriveRecord", EscrowServiceServer.DeriveRecord)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rentalescrow/v1/escrow.proto",
}

// EscrowServiceClient calls the escrow service over the JSON codec.
type EscrowServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewEscrowServiceClient(cc grpc.ClientConnInterface) *EscrowServiceClient {
	return &EscrowServiceClient{cc: cc}
}

func (c *EscrowServiceClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

func (c *EscrowServiceClient) Submit(ctx context.Context, in *ledger.Request, opts ...grpc.CallOption) (*ledger.Result, error) {
	out := new(ledger.Result)
	if err := c.invoke(ctx, "Submit", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EscrowServiceClient) GetRental(ctx context.Context, in *GetRentalRequest, opts ...grpc.CallOption) (*GetRentalResponse, error) {
	out := new(GetRentalResponse)
	if err := c.invoke(ctx, "GetRental", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EscrowServiceClient) Reschedule(ctx context.Context, in *RescheduleRequest, opts ...grpc.CallOption) (*RescheduleResponse, error) {
	out := new(RescheduleResponse)
	if err := c.invoke(ctx, "Reschedule", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EscrowServiceClient) DeriveRecord(ctx context.Context, in *DeriveRecordRequest, opts ...grpc.CallOption) (*DeriveRecordResponse, error) {
	out := new(DeriveRecordResponse)
	if err := c.invoke(ctx, "DeriveRecord", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
