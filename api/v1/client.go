package crawlv1

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

// Client is a typed CrawlService client. Errors returned by the server are
// mapped back onto the lib sentinels by FromStatus.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Start(ctx context.Context, cfg lib.CrawlConfig, opts ...grpc.CallOption) (string, error) {
	in, err := ConfigToStruct(cfg)
	if err != nil {
		return "", err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, StartFullMethodName, in, out, opts...); err != nil {
		return "", FromStatus(err)
	}
	r := newReader("start", out)
	id := r.str("run_id", true)
	return id, r.done()
}

func (c *Client) Stop(ctx context.Context, reason string, opts ...grpc.CallOption) error {
	in, err := toStruct(object{"reason": reason})
	if err != nil {
		return err
	}
	if err := c.cc.Invoke(ctx, StopFullMethodName, in, new(structpb.Struct), opts...); err != nil {
		return FromStatus(err)
	}
	return nil
}

func (c *Client) Status(ctx context.Context, opts ...grpc.CallOption) (lib.RunSnapshot, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, StatusFullMethodName, &emptypb.Empty{}, out, opts...); err != nil {
		return lib.RunSnapshot{}, FromStatus(err)
	}
	return SnapshotFromStruct(out)
}

// History returns up to limit recorded runs, newest first. Zero means the server default.
func (c *Client) History(ctx context.Context, limit int, opts ...grpc.CallOption) ([]lib.RunSnapshot, error) {
	in, err := toStruct(object{"limit": limit})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, HistoryFullMethodName, in, out, opts...); err != nil {
		return nil, FromStatus(err)
	}
	r := newReader("history", out)
	values := r.list("runs")
	if err := r.done(); err != nil {
		return nil, err
	}
	runs := make([]lib.RunSnapshot, 0, len(values))
	for i, v := range values {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("history.runs[%d]: must be an object", i)
		}
		snap, err := SnapshotFromStruct(s)
		if err != nil {
			return nil, fmt.Errorf("history.runs[%d]: %w", i, err)
		}
		runs = append(runs, snap)
	}
	return runs, nil
}

// Watch opens an event stream. Cancel ctx to end a following watch.
func (c *Client) Watch(ctx context.Context, req WatchRequest, opts ...grpc.CallOption) (*WatchClient, error) {
	in, err := WatchRequestToStruct(req)
	if err != nil {
		return nil, err
	}
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], WatchFullMethodName, opts...)
	if err != nil {
		return nil, FromStatus(err)
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, FromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, FromStatus(err)
	}
	return &WatchClient{stream: stream}, nil
}

type WatchClient struct {
	stream grpc.ClientStream
}

// Recv returns the next event, or io.EOF once the server ends the stream.
func (w *WatchClient) Recv() (lib.Event, error) {
	m := new(structpb.Struct)
	if err := w.stream.RecvMsg(m); err != nil {
		return lib.Event{}, FromStatus(err)
	}
	return EventFromStruct(m)
}
