package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPServerMetrics 协调者 HTTP 管理接口的请求指标
type HTTPServerMetrics struct {
	r *red
}

// NewHTTPServerMetrics 创建 HTTP 服务端指标，cfg 为 nil 时使用默认指标名
func NewHTTPServerMetrics(m Meter, service string, cfg *ServerMetricsConfig) (*HTTPServerMetrics, error) {
	if cfg == nil {
		cfg = &ServerMetricsConfig{Service: service}
	}
	r, err := newRED(m, cfg, OperationHTTPServer, MetricHTTPServerRequestTotal, MetricHTTPServerDurationSeconds)
	if err != nil {
		return nil, err
	}
	return &HTTPServerMetrics{r: r}, nil
}

// Observe 记录一次请求，route 应为路由模板而非原始路径
func (m *HTTPServerMetrics) Observe(ctx context.Context, method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	m.r.observe(ctx, d,
		L(LabelMethod, method),
		L(LabelRoute, orDefault(route, UnknownRoute)),
		L(LabelStatusClass, HTTPStatusClass(status)),
		L(LabelOutcome, HTTPOutcome(status)),
	)
}

// GinMiddleware 记录请求指标的 Gin 中间件
func (m *HTTPServerMetrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		// 未命中路由时 FullPath 为空，Observe 会收敛为 UnknownRoute
		m.Observe(c.Request.Context(), c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
