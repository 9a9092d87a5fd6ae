package breaker

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (cb *circuitBreaker) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		target := ""
		if cc != nil {
			target = cc.Target()
		}
		key := cb.opts.keyFunc(ctx, method, target)
		if key == "" {
			return invoker(ctx, method, req, reply, cc, opts...)
		}

		err := cb.Execute(ctx, key, func() error {
			return invoker(ctx, method, req, reply, cc, opts...)
		})
		if errors.Is(err, ErrOpenState) {
			return status.Error(codes.Unavailable, err.Error())
		}
		return err
	}
}
