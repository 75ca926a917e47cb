// Package compilesvc exposes the sweep compiler as the gRPC service
// seqsweep.v1.Compiler. Requests and responses are google.protobuf.Struct
// documents: a sweep definition in, a plan summary out.
package compilesvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/seqsweep/internal/compiler"
	"github.com/banshee-data/seqsweep/internal/config"
	"github.com/banshee-data/seqsweep/internal/monitoring"
	"github.com/banshee-data/seqsweep/internal/sweep"
)

const (
	ServiceName   = "seqsweep.v1.Compiler"
	compileMethod = "/" + ServiceName + "/Compile"
)

// CompilerServer is the server API of seqsweep.v1.Compiler.
type CompilerServer interface {
	Compile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes seqsweep.v1.Compiler for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CompilerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Compile", Handler: compileHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "seqsweep/v1/compiler.proto",
}

func compileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CompilerServer).Compile(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: compileMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CompilerServer).Compile(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterCompilerServer registers srv on s.
func RegisterCompilerServer(s grpc.ServiceRegistrar, srv CompilerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// PlanStore persists compiled plans. *db.DB implements it.
type PlanStore interface {
	InsertPlan(def *config.SweepDefinition, plan *compiler.Plan) (string, error)
}

// Server compiles sweep definitions, optionally storing every plan.
type Server struct {
	store PlanStore
}

// NewServer returns a server. store may be nil.
func NewServer(store PlanStore) *Server {
	return &Server{store: store}
}

// Compile implements CompilerServer. The response holds the plan document,
// plus "plan_id" when the plan was stored.
func (s *Server) Compile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}
	data, err := json.Marshal(req.AsMap())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "encode request: %v", err)
	}
	def, err := config.Parse(data)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := compiler.Compile(def)
	if err != nil {
		return nil, toStatus(err)
	}
	doc, err := res.Plan.Document()
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	if s.store != nil {
		id, err := s.store.InsertPlan(def, res.Plan)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "store plan: %v", err)
		}
		doc["plan_id"] = id
	}

	out, err := structpb.NewStruct(doc)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode plan: %v", err)
	}
	monitoring.Logf("compile %s: %d iterations", def.Sequence, res.Plan.Size)
	return out, nil
}

// toStatus maps sweep errors to gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, sweep.ErrInvalidType), errors.Is(err, sweep.ErrInvalidValue):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, sweep.ErrInvalidState):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, sweep.ErrOwnership):
		return status.Error(codes.PermissionDenied, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// Serve runs a gRPC server with srv on addr until ctx is done.
func Serve(ctx context.Context, addr string, srv CompilerServer) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	gs := grpc.NewServer()
	RegisterCompilerServer(gs, srv)

	go func() {
		<-ctx.Done()
		gs.GracefulStop()
	}()
	monitoring.Logf("%s listening on %s", ServiceName, lis.Addr())
	if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
