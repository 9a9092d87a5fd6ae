package coordinator

import (
	"context"
	"errors"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/lease"
	"github.com/ceyewan/leaseflake/metrics"
	"github.com/ceyewan/leaseflake/ratelimit"
	"github.com/ceyewan/leaseflake/trace"
	"github.com/ceyewan/leaseflake/xerrors"
)

// ServiceName gRPC 服务全名
const ServiceName = "leaseflake.coordinator.v1.Coordinator"

// 方法全名
const (
	MethodAcquire = "/" + ServiceName + "/Acquire"
	MethodRenew   = "/" + ServiceName + "/Renew"
	MethodRelease = "/" + ServiceName + "/Release"
	MethodList    = "/" + ServiceName + "/List"
)

// coordinatorServer 手写 ServiceDesc 的 HandlerType
type coordinatorServer interface {
	acquire(ctx context.Context, in *AcquireRequest) (*LeaseReply, error)
	renew(ctx context.Context, in *RenewRequest) (*RenewReply, error)
	release(ctx context.Context, in *ReleaseRequest) (*ReleaseReply, error)
	list(ctx context.Context, in *ListRequest) (*ListReply, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*coordinatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Acquire", Handler: unaryHandler(MethodAcquire, coordinatorServer.acquire)},
		{MethodName: "Renew", Handler: unaryHandler(MethodRenew, coordinatorServer.renew)},
		{MethodName: "Release", Handler: unaryHandler(MethodRelease, coordinatorServer.release)},
		{MethodName: "List", Handler: unaryHandler(MethodList, coordinatorServer.list)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "leaseflake/coordinator/v1",
}

// unaryHandler 把类型化的方法适配为 grpc.MethodHandler
func unaryHandler[Req, Resp any](fullMethod string, call func(coordinatorServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(coordinatorServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServerOption 配置 Server 的选项
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger   clog.Logger
	meter    metrics.Meter
	limiter  ratelimit.Limiter
	limit    ratelimit.Limit
	tracing  bool
	grpcOpts []grpc.ServerOption
}

// WithServerLogger 注入日志记录器
func WithServerLogger(logger clog.Logger) ServerOption {
	return func(o *serverOptions) {
		if logger != nil {
			o.logger = logger.WithNamespace("coordinator", "grpc")
		}
	}
}

// WithServerMeter 启用 gRPC RED 指标
func WithServerMeter(meter metrics.Meter) ServerOption {
	return func(o *serverOptions) { o.meter = meter }
}

// WithAcquireRateLimit 对 Acquire 按调用方限流
func WithAcquireRateLimit(limiter ratelimit.Limiter, limit ratelimit.Limit) ServerOption {
	return func(o *serverOptions) {
		o.limiter = limiter
		o.limit = limit
	}
}

// WithServerTracing 启用 otelgrpc 服务端链路
func WithServerTracing() ServerOption {
	return func(o *serverOptions) { o.tracing = true }
}

// WithGRPCServerOptions 追加原生 grpc.ServerOption
func WithGRPCServerOptions(opts ...grpc.ServerOption) ServerOption {
	return func(o *serverOptions) { o.grpcOpts = append(o.grpcOpts, opts...) }
}

// Server 协调者 gRPC 服务
type Server struct {
	api    API
	grpc   *grpc.Server
	health *health.Server
	logger clog.Logger
}

var _ coordinatorServer = (*Server)(nil)

// NewServer 创建 gRPC 服务并注册协调者与健康检查
func NewServer(api API, opts ...ServerOption) (*Server, error) {
	if api == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "coordinator api is required")
	}
	o := &serverOptions{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	var interceptors []grpc.UnaryServerInterceptor
	if o.meter != nil {
		m, err := metrics.NewGRPCServerMetrics(o.meter, "leaseflake-coordinator", nil)
		if err != nil {
			return nil, xerrors.Wrap(err, "create grpc server metrics")
		}
		interceptors = append(interceptors, m.UnaryServerInterceptor())
	}
	if o.limiter != nil {
		interceptors = append(interceptors,
			ratelimit.UnaryServerInterceptor(o.limiter, o.limit, ratelimit.PeerKey, MethodAcquire))
	}

	grpcOpts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(interceptors...)}
	if o.tracing {
		grpcOpts = append(grpcOpts, grpc.StatsHandler(trace.GRPCServerStatsHandler()))
	}
	grpcOpts = append(grpcOpts, o.grpcOpts...)

	s := &Server{
		api:    api,
		grpc:   grpc.NewServer(grpcOpts...),
		health: health.NewServer(),
		logger: o.logger,
	}
	s.grpc.RegisterService(&serviceDesc, s)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s, nil
}

// Serve 阻塞处理连接，GracefulStop/Stop 后返回 nil
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("coordinator grpc server listening", clog.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return xerrors.Wrap(err, "grpc serve")
	}
	return nil
}

// GracefulStop 标记为 NOT_SERVING 并等待进行中的调用完成，ctx 到期后强制停止
func (s *Server) GracefulStop(ctx context.Context) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("graceful stop timed out, forcing")
		s.grpc.Stop()
	}
}

// GRPCServer 返回底层 grpc.Server
func (s *Server) GRPCServer() *grpc.Server { return s.grpc }

func (s *Server) acquire(ctx context.Context, in *AcquireRequest) (*LeaseReply, error) {
	l, err := s.api.Acquire(ctx, *in)
	if err != nil {
		return nil, s.toStatus(ctx, "acquire", err)
	}
	return toLeaseReply(l), nil
}

func (s *Server) renew(ctx context.Context, in *RenewRequest) (*RenewReply, error) {
	expiresAt, err := s.api.Renew(ctx, in.WorkerID, in.HolderToken)
	if err != nil {
		return nil, s.toStatus(ctx, "renew", err)
	}
	return &RenewReply{ExpiresAtUnixMs: expiresAt.UnixMilli()}, nil
}

func (s *Server) release(ctx context.Context, in *ReleaseRequest) (*ReleaseReply, error) {
	if err := s.api.Release(ctx, in.WorkerID, in.HolderToken); err != nil {
		return nil, s.toStatus(ctx, "release", err)
	}
	return &ReleaseReply{}, nil
}

func (s *Server) list(ctx context.Context, _ *ListRequest) (*ListReply, error) {
	all, err := s.api.List(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, "list", err)
	}
	return toListReply(all, time.Now()), nil
}

func (s *Server) toStatus(ctx context.Context, op string, err error) error {
	code := StatusCode(err)
	if code == codes.Unavailable || code == codes.Internal {
		s.logger.ErrorContext(ctx, "lease operation failed", clog.String("op", op), clog.Error(err))
	}
	return status.Error(code, err.Error())
}

// StatusCode 领域错误到 gRPC 状态码的映射
func StatusCode(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case xerrors.Is(err, lease.ErrExhausted):
		return codes.ResourceExhausted
	case xerrors.Is(err, lease.ErrStale):
		return codes.FailedPrecondition
	case xerrors.Is(err, xerrors.ErrInvalidInput):
		return codes.InvalidArgument
	case xerrors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case xerrors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Unavailable
	}
}
