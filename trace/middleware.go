package trace

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc/filters"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc/stats"
)

// AttrRole 标记 span 来自协调者还是生成器
const AttrRole = attribute.Key("leaseflake.role")

// 角色取值
const (
	RoleCoordinator = "coordinator"
	RoleGenerator   = "generator"
)

// untracedPaths 探活与抓取指标的请求量大且没有业务含义，不产生 span
var untracedPaths = []string{"/healthz", "/metrics"}

// GinMiddleware 协调者 HTTP 接口的追踪中间件，span 以路由模板命名，
// 例如 "POST /v1/leases/:worker_id/renew"，避免按 workerId 产生大量不同的名字
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName,
		otelgin.WithGinFilter(traceHTTP),
		otelgin.WithSpanNameFormatter(httpSpanName),
	)
}

func traceHTTP(c *gin.Context) bool {
	p := c.Request.URL.Path
	for _, skip := range untracedPaths {
		if p == skip || strings.HasPrefix(p, skip+"/") {
			return false
		}
	}
	return true
}

func httpSpanName(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	return c.Request.Method + " " + route
}

// GRPCServerStatsHandler 协调者 gRPC 服务端追踪，跳过健康检查
func GRPCServerStatsHandler() stats.Handler {
	return otelgrpc.NewServerHandler(
		otelgrpc.WithFilter(filters.Not(filters.HealthCheck())),
		otelgrpc.WithSpanAttributes(AttrRole.String(RoleCoordinator)),
	)
}

// GRPCClientStatsHandler 生成器侧 gRPC 客户端追踪
func GRPCClientStatsHandler() stats.Handler {
	return otelgrpc.NewClientHandler(
		otelgrpc.WithFilter(filters.Not(filters.HealthCheck())),
		otelgrpc.WithSpanAttributes(AttrRole.String(RoleGenerator)),
	)
}
