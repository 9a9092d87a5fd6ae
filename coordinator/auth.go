package coordinator

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ceyewan/leaseflake/clog"
	"github.com/ceyewan/leaseflake/xerrors"
)

// 运维令牌校验失败的原因
var (
	ErrTokenMissing = xerrors.New("coordinator: bearer token missing")
	ErrTokenInvalid = xerrors.New("coordinator: bearer token invalid")
	ErrTokenExpired = xerrors.New("coordinator: bearer token expired")
)

const tokenIssuer = "leaseflake-coordinator"

// WithHTTPAuth 要求 /v1/leases 下的请求携带 HS256 签名的 Bearer Token，secret 为空时不校验。
// /healthz 不受影响。
func WithHTTPAuth(secret string) HTTPOption {
	return func(o *httpOptions) { o.authSecret = secret }
}

// IssueToken 签发访问 HTTP 接口的令牌，供运维工具与测试使用
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", xerrors.Wrap(xerrors.ErrInvalidInput, "auth secret is empty")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func verifyToken(secret []byte, raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		if xerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, xerrors.Wrap(ErrTokenInvalid, err.Error())
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func bearerAuth(secret string, logger clog.Logger) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrTokenMissing.Error()})
			return
		}
		claims, err := verifyToken(key, raw)
		if err != nil {
			logger.WarnContext(c.Request.Context(), "reject http request",
				clog.String("path", c.FullPath()), clog.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set("subject", claims.Subject)
		c.Next()
	}
}
