package coordinator

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/lease"
	"github.com/ceyewan/leaseflake/metrics"
	"github.com/ceyewan/leaseflake/ratelimit"
	"github.com/ceyewan/leaseflake/trace"
	"github.com/ceyewan/leaseflake/xerrors"
)

// HTTPOption 配置 HTTPHandler 的选项
type HTTPOption func(*httpOptions)

type httpOptions struct {
	logger  clog.Logger
	meter   metrics.Meter
	tracing string
	limiter ratelimit.Limiter
	limit   ratelimit.Limit

	authSecret string
}

// WithHTTPLogger 注入日志记录器
func WithHTTPLogger(logger clog.Logger) HTTPOption {
	return func(o *httpOptions) {
		if logger != nil {
			o.logger = logger.WithNamespace("coordinator", "http")
		}
	}
}

// WithHTTPMeter 启用 HTTP RED 指标
func WithHTTPMeter(meter metrics.Meter) HTTPOption {
	return func(o *httpOptions) { o.meter = meter }
}

// WithHTTPTracing 启用 otelgin 链路，serviceName 写入 span
func WithHTTPTracing(serviceName string) HTTPOption {
	return func(o *httpOptions) { o.tracing = serviceName }
}

// WithHTTPAcquireRateLimit 对 acquire 路由按客户端 IP 限流
func WithHTTPAcquireRateLimit(limiter ratelimit.Limiter, limit ratelimit.Limit) HTTPOption {
	return func(o *httpOptions) {
		o.limiter = limiter
		o.limit = limit
	}
}

// HTTPHandler 协调者的 JSON 接口
//
//	POST /v1/leases/acquire              {"preferred_worker_id":5,"holder":"node-a"}
//	POST /v1/leases/:worker_id/renew     {"holder_token":"..."}
//	POST /v1/leases/:worker_id/release   {"holder_token":"..."}
//	GET  /v1/leases
//	GET  /healthz
//
// 配置 WithHTTPAuth 后 /v1/leases 下的路由需要 Authorization: Bearer <token>。
type HTTPHandler struct {
	api    API
	engine *gin.Engine
	logger clog.Logger
}

// NewHTTPHandler 创建 HTTP 接口
func NewHTTPHandler(api API, opts ...HTTPOption) (*HTTPHandler, error) {
	if api == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "coordinator api is required")
	}
	o := &httpOptions{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	if o.tracing != "" {
		engine.Use(trace.GinMiddleware(o.tracing))
	}
	if o.meter != nil {
		m, err := metrics.NewHTTPServerMetrics(o.meter, "leaseflake-coordinator", nil)
		if err != nil {
			return nil, xerrors.Wrap(err, "create http server metrics")
		}
		engine.Use(m.GinMiddleware())
	}

	h := &HTTPHandler{api: api, engine: engine, logger: o.logger}

	acquire := []gin.HandlerFunc{h.acquire}
	if o.limiter != nil {
		acquire = append([]gin.HandlerFunc{ratelimit.GinMiddleware(o.limiter, o.limit)}, acquire...)
	}

	v1 := engine.Group("/v1/leases")
	if o.authSecret != "" {
		v1.Use(bearerAuth(o.authSecret, o.logger))
	}
	v1.POST("/acquire", acquire...)
	v1.POST("/:worker_id/renew", h.renew)
	v1.POST("/:worker_id/release", h.release)
	v1.GET("", h.list)
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return h, nil
}

// ServeHTTP 实现 http.Handler
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.engine.ServeHTTP(w, r)
}

func (h *HTTPHandler) acquire(c *gin.Context) {
	var req AcquireRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.fail(c, "acquire", xerrors.Wrap(xerrors.ErrInvalidInput, err.Error()))
			return
		}
	}
	l, err := h.api.Acquire(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "acquire", err)
		return
	}
	c.JSON(http.StatusOK, toLeaseReply(l))
}

type tokenBody struct {
	HolderToken string `json:"holder_token" binding:"required"`
}

func (h *HTTPHandler) bindSlot(c *gin.Context, op string) (int64, string, bool) {
	workerID, err := strconv.ParseInt(c.Param("worker_id"), 10, 64)
	if err != nil {
		h.fail(c, op, xerrors.Wrapf(xerrors.ErrInvalidInput, "worker_id %q", c.Param("worker_id")))
		return 0, "", false
	}
	var body tokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, op, xerrors.Wrap(xerrors.ErrInvalidInput, err.Error()))
		return 0, "", false
	}
	return workerID, body.HolderToken, true
}

func (h *HTTPHandler) renew(c *gin.Context) {
	workerID, token, ok := h.bindSlot(c, "renew")
	if !ok {
		return
	}
	expiresAt, err := h.api.Renew(c.Request.Context(), workerID, token)
	if err != nil {
		h.fail(c, "renew", err)
		return
	}
	c.JSON(http.StatusOK, &RenewReply{ExpiresAtUnixMs: expiresAt.UnixMilli()})
}

func (h *HTTPHandler) release(c *gin.Context) {
	workerID, token, ok := h.bindSlot(c, "release")
	if !ok {
		return
	}
	if err := h.api.Release(c.Request.Context(), workerID, token); err != nil {
		h.fail(c, "release", err)
		return
	}
	c.JSON(http.StatusOK, &ReleaseReply{})
}

func (h *HTTPHandler) list(c *gin.Context) {
	all, err := h.api.List(c.Request.Context())
	if err != nil {
		h.fail(c, "list", err)
		return
	}
	c.JSON(http.StatusOK, toListReply(all, time.Now()))
}

func (h *HTTPHandler) fail(c *gin.Context, op string, err error) {
	code := HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "lease operation failed", clog.String("op", op), clog.Error(err))
	}
	body := gin.H{"error": err.Error(), "reason": resultOf(err)}
	if ec := xerrors.GetCode(err); ec != "" {
		body["code"] = ec
	}
	c.AbortWithStatusJSON(code, body)
}

// HTTPStatus 领域错误到 HTTP 状态码的映射
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case xerrors.Is(err, lease.ErrExhausted):
		return http.StatusConflict
	case xerrors.Is(err, lease.ErrStale):
		return http.StatusGone
	case xerrors.Is(err, xerrors.ErrInvalidInput):
		return http.StatusBadRequest
	case xerrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusServiceUnavailable
	}
}
