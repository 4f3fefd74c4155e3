package crawlv1

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

type fakeServer struct {
	started lib.CrawlConfig
	reason  string
	limit   int
	events  []lib.Event
	err     error
}

func (f *fakeServer) Start(_ context.Context, cfg lib.CrawlConfig) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.started = cfg
	return "run-42", nil
}

func (f *fakeServer) Stop(_ context.Context, reason string) error {
	f.reason = reason
	return f.err
}

func (f *fakeServer) Status(context.Context) (lib.RunSnapshot, error) {
	return lib.RunSnapshot{RunID: "run-42", State: lib.RunStateRunning, Status: "Crawling: 1/2 pages"}, f.err
}

func (f *fakeServer) History(_ context.Context, limit int) ([]lib.RunSnapshot, error) {
	f.limit = limit
	return []lib.RunSnapshot{
		{RunID: "b", State: lib.RunStateFailed, Failure: &lib.Failure{Kind: lib.FailureTimeout}},
		{RunID: "a", State: lib.RunStateCompleted},
	}, f.err
}

func (f *fakeServer) Watch(req WatchRequest, stream WatchServer) error {
	for _, e := range f.events {
		if e.Sequence <= req.After || (req.RunID != "" && e.RunID != req.RunID) {
			continue
		}
		if err := stream.Send(e); err != nil {
			return err
		}
	}
	return nil
}

func dialFake(t *testing.T, srv CrawlServiceServer) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterCrawlServiceServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func TestClient_Unary(t *testing.T) {
	srv := &fakeServer{}
	c := dialFake(t, srv)
	ctx := context.Background()

	id, err := c.Start(ctx, sampleConfig())
	if err != nil {
		t.Fatal(err)
	}
	if id != "run-42" || srv.started != sampleConfig() {
		t.Fatalf("unexpected start: id=%s cfg=%+v", id, srv.started)
	}

	if err := c.Stop(ctx, "enough"); err != nil {
		t.Fatal(err)
	}
	if srv.reason != "enough" {
		t.Fatalf("expected reason to reach the server, got %q", srv.reason)
	}

	snap, err := c.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != lib.RunStateRunning || snap.Status != "Crawling: 1/2 pages" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	runs, err := c.History(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if srv.limit != 7 || len(runs) != 2 || runs[0].RunID != "b" || runs[0].Failure.Kind != lib.FailureTimeout {
		t.Fatalf("unexpected history %+v (limit %d)", runs, srv.limit)
	}
}

func TestClient_ErrorsKeepSentinels(t *testing.T) {
	srv := &fakeServer{err: errors.Join(errors.New("run abc"), lib.ErrAlreadyRunning)}
	c := dialFake(t, srv)

	_, err := c.Start(context.Background(), sampleConfig())
	if !errors.Is(err, lib.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %s", status.Code(err))
	}
}

func TestClient_Watch(t *testing.T) {
	var events []lib.Event
	for i, runID := range []string{"a", "b", "b"} {
		e := lib.NewLogEvent(runID, lib.StreamStdout, lib.CrawlMessage{Content: runID})
		e.Sequence = uint64(i + 1)
		events = append(events, e)
	}
	c := dialFake(t, &fakeServer{events: events})

	w, err := c.Watch(context.Background(), WatchRequest{After: 1, RunID: "b"})
	if err != nil {
		t.Fatal(err)
	}
	var got []uint64
	for {
		e, err := w.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, e.Sequence)
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("expected sequences [2 3], got %v", got)
	}
}

func TestWatchRequest_RejectsNegativeAfter(t *testing.T) {
	s, err := toStruct(object{"after": -1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := WatchRequestFromStruct(s); err == nil {
		t.Fatal("expected a negative cursor to be rejected")
	}
}
