package ratelimit

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// GRPCKeyFunc 从 gRPC 调用提取限流 key
type GRPCKeyFunc func(ctx context.Context, fullMethod string) string

// PeerKey 以调用方主机地址为 key，拿不到 peer 时退化为方法名
func PeerKey(ctx context.Context, fullMethod string) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		host, _, err := net.SplitHostPort(p.Addr.String())
		if err != nil {
			host = p.Addr.String()
		}
		return fullMethod + "|" + host
	}
	return fullMethod
}

// UnaryServerInterceptor 只对 methods 中列出的方法限流；限流器出错时放行
func UnaryServerInterceptor(limiter Limiter, limit Limit, keyFunc GRPCKeyFunc, methods ...string) grpc.UnaryServerInterceptor {
	if limiter == nil {
		limiter = Discard()
	}
	if keyFunc == nil {
		keyFunc = PeerKey
	}
	guarded := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		guarded[m] = struct{}{}
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := guarded[info.FullMethod]; !ok || !limit.valid() {
			return handler(ctx, req)
		}
		allowed, err := limiter.Allow(ctx, keyFunc(ctx, info.FullMethod), limit)
		if err == nil && !allowed {
			return nil, status.Error(codes.Unavailable, ErrLimited.Error())
		}
		return handler(ctx, req)
	}
}
