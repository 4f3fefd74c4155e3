// Package crawlv1 is the gRPC surface of the crawl supervisor.
//
// Messages travel as google.protobuf.Struct values so no generated code is
// needed; codec.go validates everything crossing the boundary.
package crawlv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

const ServiceName = "crawlrunner.v1.CrawlService"

const (
	StartFullMethodName   = "/" + ServiceName + "/Start"
	StopFullMethodName    = "/" + ServiceName + "/Stop"
	StatusFullMethodName  = "/" + ServiceName + "/Status"
	HistoryFullMethodName = "/" + ServiceName + "/History"
	WatchFullMethodName   = "/" + ServiceName + "/Watch"
)

// WatchRequest selects which events a Watch call receives.
type WatchRequest struct {
	// After skips events with a sequence number at or below it.
	After uint64
	// RunID, if set, only passes events of that run.
	RunID string
	// Follow keeps the call open for new events until the stream closes.
	Follow bool
}

// WatchServer is the sending half of a Watch call.
type WatchServer interface {
	Send(lib.Event) error
	Context() context.Context
}

// CrawlServiceServer is implemented by the daemon.
type CrawlServiceServer interface {
	Start(ctx context.Context, cfg lib.CrawlConfig) (runID string, err error)
	Stop(ctx context.Context, reason string) error
	Status(ctx context.Context) (lib.RunSnapshot, error)
	History(ctx context.Context, limit int) ([]lib.RunSnapshot, error)
	Watch(req WatchRequest, stream WatchServer) error
}

// RegisterCrawlServiceServer registers srv on s.
func RegisterCrawlServiceServer(s grpc.ServiceRegistrar, srv CrawlServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes CrawlService for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CrawlServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Start", Handler: unaryHandler(StartFullMethodName, handleStart)},
		{MethodName: "Stop", Handler: unaryHandler(StopFullMethodName, handleStop)},
		{MethodName: "Status", Handler: statusHandler},
		{MethodName: "History", Handler: unaryHandler(HistoryFullMethodName, handleHistory)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
}

type unaryFunc func(srv CrawlServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryFunc) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CrawlServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CrawlServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func invalidArgument(err error) error {
	return status.Error(codes.InvalidArgument, err.Error())
}

func handleStart(srv CrawlServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	cfg, err := ConfigFromStruct(in)
	if err != nil {
		return nil, invalidArgument(err)
	}
	id, err := srv.Start(ctx, cfg)
	if err != nil {
		return nil, ToStatus(err)
	}
	return toStruct(object{"run_id": id})
}

func handleStop(srv CrawlServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newReader("stop", in)
	reason := r.str("reason", false)
	if err := r.done(); err != nil {
		return nil, invalidArgument(err)
	}
	if err := srv.Stop(ctx, reason); err != nil {
		return nil, ToStatus(err)
	}
	return toStruct(object{})
}

func handleHistory(srv CrawlServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newReader("history", in)
	limit := r.num("limit", false)
	if err := r.done(); err != nil {
		return nil, invalidArgument(err)
	}
	if limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "history.limit: must not be negative")
	}
	runs, err := srv.History(ctx, int(limit))
	if err != nil {
		return nil, ToStatus(err)
	}
	list := make([]any, 0, len(runs))
	for _, snap := range runs {
		m, err := snapshotObject(snap)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		list = append(list, m)
	}
	return toStruct(object{"runs": list})
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, _ any) (any, error) {
		snap, err := srv.(CrawlServiceServer).Status(ctx)
		if err != nil {
			return nil, ToStatus(err)
		}
		return SnapshotToStruct(snap)
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StatusFullMethodName}
	return interceptor(ctx, in, info, call)
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	req, err := WatchRequestFromStruct(in)
	if err != nil {
		return invalidArgument(err)
	}
	return srv.(CrawlServiceServer).Watch(req, &watchServer{stream})
}

type watchServer struct {
	grpc.ServerStream
}

func (w *watchServer) Send(e lib.Event) error {
	m, err := EventToStruct(e)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return w.ServerStream.SendMsg(m)
}

// WatchRequestToStruct encodes a watch request.
func WatchRequestToStruct(req WatchRequest) (*structpb.Struct, error) {
	return toStruct(object{"after": float64(req.After), "run_id": req.RunID, "follow": req.Follow})
}

// WatchRequestFromStruct decodes a watch request.
func WatchRequestFromStruct(s *structpb.Struct) (WatchRequest, error) {
	r := newReader("watch", s)
	after := r.num("after", false)
	req := WatchRequest{RunID: r.str("run_id", false), Follow: r.boolean("follow")}
	if after < 0 {
		r.fail("after", "must not be negative")
	}
	req.After = uint64(max(after, 0))
	return req, r.done()
}
