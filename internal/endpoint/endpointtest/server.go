// Package endpointtest runs an in-process GlobeSort server for tests.
package endpointtest

import (
	"context"
	"net"
	"slices"
	"sync/atomic"
	"testing"

	"google.golang.org/grpc"

	"globesort/internal/wire"
)

// Handler supplies the server behaviour. A nil Ping succeeds; a nil Sort
// behaves like SortWithDuration(0).
type Handler struct {
	Ping func(ctx context.Context) error
	Sort func(ctx context.Context, values []int32) ([]int32, error)
}

// SortWithDuration sorts the request and appends ms as the sentinel.
func SortWithDuration(ms int32) func(context.Context, []int32) ([]int32, error) {
	return func(_ context.Context, values []int32) ([]int32, error) {
		out := slices.Clone(values)
		slices.Sort(out)
		return append(out, ms), nil
	}
}

// Server is a running test server bound to 127.0.0.1.
type Server struct {
	Host string
	Port int

	handler Handler
	srv     *grpc.Server
	pings   atomic.Int64
	sorts   atomic.Int64
}

// Start listens on an ephemeral port and stops the server when the test ends.
func Start(t testing.TB, h Handler, opts ...grpc.ServerOption) *Server {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &Server{
		Host:    "127.0.0.1",
		Port:    lis.Addr().(*net.TCPAddr).Port,
		handler: h,
		srv:     grpc.NewServer(append([]grpc.ServerOption{grpc.ForceServerCodec(wire.Codec{})}, opts...)...),
	}
	s.srv.RegisterService(s.desc(), s)

	go s.srv.Serve(lis)
	t.Cleanup(s.srv.Stop)
	return s
}

// Pings returns the number of Ping calls served.
func (s *Server) Pings() int64 { return s.pings.Load() }

// Sorts returns the number of SortIntegers calls served.
func (s *Server) Sorts() int64 { return s.sorts.Load() }

// Stop terminates the server immediately.
func (s *Server) Stop() { s.srv.Stop() }

func (s *Server) desc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: wire.ServiceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Ping", Handler: s.handlePing},
			{MethodName: "SortIntegers", Handler: s.handleSort},
		},
	}
}

func (s *Server) handlePing(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	if err := dec(&wire.Empty{}); err != nil {
		return nil, err
	}
	s.pings.Add(1)
	if s.handler.Ping != nil {
		if err := s.handler.Ping(ctx); err != nil {
			return nil, err
		}
	}
	return &wire.Empty{}, nil
}

func (s *Server) handleSort(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	in := &wire.IntArray{}
	if err := dec(in); err != nil {
		return nil, err
	}
	s.sorts.Add(1)

	sort := s.handler.Sort
	if sort == nil {
		sort = SortWithDuration(0)
	}
	out, err := sort(ctx, in.Values)
	if err != nil {
		return nil, err
	}
	return &wire.IntArray{Values: out}, nil
}
