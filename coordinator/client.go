package coordinator

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/ceyewan/leaseflake/breaker"
	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/lease"
	"github.com/ceyewan/leaseflake/metrics"
	"github.com/ceyewan/leaseflake/trace"
	"github.com/ceyewan/leaseflake/xerrors"
)

// DefaultCallTimeout 单次 RPC 的默认超时
const DefaultCallTimeout = 3 * time.Second

// ClientOption 配置 Client 的选项
type ClientOption func(*clientOptions)

type clientOptions struct {
	logger      clog.Logger
	meter       metrics.Meter
	breaker     breaker.Breaker
	noBreaker   bool
	callTimeout time.Duration
	tracing     bool
	waitReady   bool
	dialOpts    []grpc.DialOption
}

// WithClientLogger 注入日志记录器
func WithClientLogger(logger clog.Logger) ClientOption {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger.WithNamespace("coordinator", "client")
		}
	}
}

// WithClientMeter 注入指标，用于默认熔断器
func WithClientMeter(meter metrics.Meter) ClientOption {
	return func(o *clientOptions) { o.meter = meter }
}

// WithBreaker 替换默认熔断器，传 nil 关闭熔断
func WithBreaker(b breaker.Breaker) ClientOption {
	return func(o *clientOptions) {
		o.breaker = b
		o.noBreaker = b == nil
	}
}

// WithCallTimeout 单次 RPC 超时，<=0 表示只受调用方 ctx 约束
func WithCallTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.callTimeout = d }
}

// WithClientTracing 启用 otelgrpc 客户端链路
func WithClientTracing() ClientOption {
	return func(o *clientOptions) { o.tracing = true }
}

// WithWaitReady Dial 时用健康检查确认协调者可用
func WithWaitReady() ClientOption {
	return func(o *clientOptions) { o.waitReady = true }
}

// WithDialOptions 追加原生 grpc.DialOption，例如测试用的 bufconn dialer
func WithDialOptions(opts ...grpc.DialOption) ClientOption {
	return func(o *clientOptions) { o.dialOpts = append(o.dialOpts, opts...) }
}

// Client 协调者 gRPC 客户端
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	logger  clog.Logger
}

var _ API = (*Client)(nil)

// Dial 创建到协调者的连接，连接本身是惰性的，失败在首次调用时暴露
func Dial(ctx context.Context, addr string, opts ...ClientOption) (*Client, error) {
	if addr == "" {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "coordinator address is required")
	}
	o := &clientOptions{
		logger:      clog.Discard(),
		meter:       metrics.Discard(),
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.breaker == nil && !o.noBreaker {
		b, err := breaker.New(breaker.DefaultConfig(),
			breaker.WithLogger(o.logger), breaker.WithMeter(o.meter))
		if err != nil {
			return nil, xerrors.Wrap(err, "create circuit breaker")
		}
		o.breaker = b
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	if o.breaker != nil {
		dialOpts = append(dialOpts, grpc.WithChainUnaryInterceptor(o.breaker.UnaryClientInterceptor()))
	}
	if o.tracing {
		dialOpts = append(dialOpts, grpc.WithStatsHandler(trace.GRPCClientStatsHandler()))
	}
	dialOpts = append(dialOpts, o.dialOpts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, xerrors.Wrapf(xerrors.Join(xerrors.ErrUnavailable, err), "dial coordinator %s", addr)
	}
	c := &Client{conn: conn, timeout: o.callTimeout, logger: o.logger}

	if o.waitReady {
		if err := c.checkHealth(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) checkHealth(ctx context.Context) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fromStatus(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return xerrors.Wrapf(xerrors.ErrUnavailable, "coordinator status %s", resp.GetStatus())
	}
	return nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return fromStatus(err)
	}
	return nil
}

func (c *Client) Acquire(ctx context.Context, req AcquireRequest) (lease.WorkerLease, error) {
	var out LeaseReply
	if err := c.invoke(ctx, MethodAcquire, &req, &out); err != nil {
		return lease.WorkerLease{}, err
	}
	return out.toLease(), nil
}

func (c *Client) Renew(ctx context.Context, workerID int64, token string) (time.Time, error) {
	var out RenewReply
	if err := c.invoke(ctx, MethodRenew, &RenewRequest{WorkerID: workerID, HolderToken: token}, &out); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(out.ExpiresAtUnixMs), nil
}

func (c *Client) Release(ctx context.Context, workerID int64, token string) error {
	return c.invoke(ctx, MethodRelease, &ReleaseRequest{WorkerID: workerID, HolderToken: token}, &ReleaseReply{})
}

// List 返回的记录不含 HolderToken
func (c *Client) List(ctx context.Context) ([]lease.WorkerLease, error) {
	var out ListReply
	if err := c.invoke(ctx, MethodList, &ListRequest{}, &out); err != nil {
		return nil, err
	}
	all := make([]lease.WorkerLease, len(out.Leases))
	for i, info := range out.Leases {
		all[i] = info.toLease()
	}
	return all, nil
}

// Close 关闭底层连接
func (c *Client) Close() error {
	return c.conn.Close()
}

// fromStatus gRPC 状态码还原为领域错误
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return xerrors.Join(xerrors.ErrUnavailable, err)
	}
	msg := st.Message()
	switch st.Code() {
	case codes.ResourceExhausted:
		return xerrors.Wrap(lease.ErrExhausted, msg)
	case codes.FailedPrecondition:
		return xerrors.Wrap(lease.ErrStale, msg)
	case codes.InvalidArgument:
		return xerrors.Wrap(xerrors.ErrInvalidInput, msg)
	case codes.DeadlineExceeded:
		return xerrors.Wrap(xerrors.Join(xerrors.ErrUnavailable, xerrors.ErrTimeout), msg)
	case codes.Canceled:
		return xerrors.Wrap(context.Canceled, msg)
	default:
		return xerrors.Wrapf(xerrors.ErrUnavailable, "%s: %s", st.Code(), msg)
	}
}
