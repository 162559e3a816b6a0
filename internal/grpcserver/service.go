package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "beerich.BeeRich"

// FullMethodName returns the path gRPC uses for method, e.g. "/beerich.BeeRich/Login".
func FullMethodName(method string) string {
	return "/" + ServiceName + "/" + method
}

// BeeRichServer is implemented by BeeRichHandler.
type BeeRichServer interface {
	Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error)
	Logout(ctx context.Context, req *LogoutRequest) (*LogoutResponse, error)
	CreateRecord(ctx context.Context, req *CreateRecordRequest) (*Record, error)
	ListRecords(ctx context.Context, req *ListRecordsRequest) (*ListRecordsResponse, error)
	GetRecord(ctx context.Context, req *GetRecordRequest) (*Record, error)
	UpdateRecord(ctx context.Context, req *UpdateRecordRequest) (*Record, error)
	DeleteRecord(ctx context.Context, req *DeleteRecordRequest) (*DeleteRecordResponse, error)
}

func unaryMethod[Req any, Resp any](
	method string,
	call func(srv BeeRichServer, ctx context.Context, req *Req) (*Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(
			srv interface{},
			ctx context.Context,
			dec func(interface{}) error,
			interceptor grpc.UnaryServerInterceptor,
		) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BeeRichServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethodName(method),
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(BeeRichServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes BeeRichServer to grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BeeRichServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Login", BeeRichServer.Login),
		unaryMethod("Logout", BeeRichServer.Logout),
		unaryMethod("CreateRecord", BeeRichServer.CreateRecord),
		unaryMethod("ListRecords", BeeRichServer.ListRecords),
		unaryMethod("GetRecord", BeeRichServer.GetRecord),
		unaryMethod("UpdateRecord", BeeRichServer.UpdateRecord),
		unaryMethod("DeleteRecord", BeeRichServer.DeleteRecord),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "beerich",
}

// Client calls BeeRich over a connection using the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, FullMethodName(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, "Login", in, opts)
}

func (c *Client) Logout(ctx context.Context, in *LogoutRequest, opts ...grpc.CallOption) (*LogoutResponse, error) {
	return invoke[LogoutResponse](ctx, c.cc, "Logout", in, opts)
}

func (c *Client) CreateRecord(ctx context.Context, in *CreateRecordRequest, opts ...grpc.CallOption) (*Record, error) {
	return invoke[Record](ctx, c.cc, "CreateRecord", in, opts)
}

func (c *Client) ListRecords(ctx context.Context, in *ListRecordsRequest, opts ...grpc.CallOption) (*ListRecordsResponse, error) {
	return invoke[ListRecordsResponse](ctx, c.cc, "ListRecords", in, opts)
}

func (c *Client) GetRecord(ctx context.Context, in *GetRecordRequest, opts ...grpc.CallOption) (*Record, error) {
	return invoke[Record](ctx, c.cc, "GetRecord", in, opts)
}

func (c *Client) UpdateRecord(ctx context.Context, in *UpdateRecordRequest, opts ...grpc.CallOption) (*Record, error) {
	return invoke[Record](ctx, c.cc, "UpdateRecord", in, opts)
}

func (c *Client) DeleteRecord(ctx context.Context, in *DeleteRecordRequest, opts ...grpc.CallOption) (*DeleteRecordResponse, error) {
	return invoke[DeleteRecordResponse](ctx, c.cc, "DeleteRecord", in, opts)
}
