// Package grpcserver exposes login, logout and owned-record operations over
// gRPC. Messages are plain Go structs carried by a JSON codec.
package grpcserver

import (
	"context"
	"net"

	"google.golang.org/grpc"

	"github.com/patric-chuzhbe/beerich/internal/grpcserver/interceptor"
	"github.com/patric-chuzhbe/beerich/internal/models"
)

type identityResolver interface {
	RequireIdentity(ctx context.Context, tokenString string) (*models.Identity, error)
}

// ProtectedMethods require a valid session; the others are public.
var ProtectedMethods = []string{
	FullMethodName("CreateRecord"),
	FullMethodName("ListRecords"),
	FullMethodName("GetRecord"),
	FullMethodName("UpdateRecord"),
	FullMethodName("DeleteRecord"),
}

// NewServer builds a gRPC server with the logging and auth interceptors and
// handler registered.
func NewServer(handler BeeRichServer, theAuth identityResolver) *grpc.Server {
	authInterceptor := interceptor.NewAuthInterceptor(theAuth)

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptor.UnaryLoggingInterceptor(),
			authInterceptor.UnaryAuthInterceptor(ProtectedMethods),
		),
	)
	server.RegisterService(&ServiceDesc, handler)

	return server
}

// NewGRPCServer is NewServer plus a TCP listener on addr.
func NewGRPCServer(
	addr string,
	handler BeeRichServer,
	theAuth identityResolver,
) (*grpc.Server, net.Listener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	return NewServer(handler, theAuth), lis, nil
}
