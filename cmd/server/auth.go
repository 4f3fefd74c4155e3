package main

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type spiffeIdContextKey struct{}

// identifyFunc resolves the caller of an RPC, or nil if it has no identity.
type identifyFunc func(ctx context.Context) *string

func extractSpiffeIdFromContext(ctx context.Context) *string {
	if v := ctx.Value(spiffeIdContextKey{}); v != nil {
		if spiffeId, ok := v.(string); ok {
			return &spiffeId
		}
	}
	return nil
}

func extractSpiffeIdFromTls(ctx context.Context) *string {
	if v := extractSpiffeIdFromContext(ctx); v != nil {
		return v
	}

	p, ok := peer.FromContext(ctx)
	if !ok || p == nil {
		return nil
	}
	ti, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok {
		return nil
	}
	if len(ti.State.PeerCertificates) == 0 || ti.State.PeerCertificates[0] == nil {
		return nil
	}

	// Trust domain of the first SPIFFE URI SAN, e.g. spiffe://client1 -> "client1".
	for _, uri := range ti.State.PeerCertificates[0].URIs {
		if uri != nil && uri.Scheme == "spiffe" {
			return &uri.Host
		}
	}
	return nil
}

// identifyLocal is used in insecure mode: a client certificate still wins,
// everyone else is the same local user.
func identifyLocal(ctx context.Context) *string {
	if id := extractSpiffeIdFromTls(ctx); id != nil {
		return id
	}
	id := localIdentity
	return &id
}

func injectSpiffeId(ctx context.Context, spiffeId string) context.Context {
	return context.WithValue(ctx, spiffeIdContextKey{}, spiffeId)
}

func injectSpiffeIdUnary(identify identifyFunc) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		spiffeId := identify(ctx)
		if spiffeId == nil {
			return nil, status.Error(codes.Unauthenticated, "client must have SPIFFE ID")
		}
		return handler(injectSpiffeId(ctx, *spiffeId), req)
	}
}

type streamWithCtx struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *streamWithCtx) Context() context.Context { return s.ctx }

func injectSpiffeIdStream(identify identifyFunc) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := ss.Context()
		spiffeId := identify(ctx)
		if spiffeId == nil {
			return status.Error(codes.Unauthenticated, "client must have SPIFFE ID")
		}
		return handler(srv, &streamWithCtx{ServerStream: ss, ctx: injectSpiffeId(ctx, *spiffeId)})
	}
}

// checkOwnership allows the call only for the identity that started runID.
func (s *CrawlServiceServer) checkOwnership(ctx context.Context, runID string) error {
	spiffeId := extractSpiffeIdFromContext(ctx)
	if spiffeId == nil {
		return status.Error(codes.Unauthenticated, "client must have SPIFFE ID")
	}

	s.mu.RLock()
	owner, ok := s.owners[runID]
	s.mu.RUnlock()

	if !ok || owner != *spiffeId {
		return status.Error(codes.PermissionDenied, "only the client that started the crawl can stop it")
	}
	return nil
}
