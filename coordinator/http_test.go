package coordinator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/leaseflake/lease"
	"github.com/ceyewan/leaseflake/ratelimit"
	"github.com/ceyewan/leaseflake/testkit"
	"github.com/ceyewan/leaseflake/xerrors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHTTPHandler(t *testing.T) {
	f := newFixture(t, &Config{WorkerBits: 1})
	h, err := NewHTTPHandler(f.svc,
		WithHTTPLogger(testkit.NewLogger()),
		WithHTTPMeter(testkit.NewMeter(t)),
		WithHTTPTracing("leaseflake-coordinator-test"))
	require.NoError(t, err)

	var granted LeaseReply
	t.Run("获取", func(t *testing.T) {
		w := doJSON(t, h, http.MethodPost, "/v1/leases/acquire", AcquireRequest{PreferredWorkerID: ptr(1), Holder: "node-a"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &granted))
		assert.Equal(t, int64(1), granted.WorkerID)
		assert.NotEmpty(t, granted.HolderToken)
	})

	t.Run("空请求体获取", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/leases/acquire", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("耗尽返回 409", func(t *testing.T) {
		w := doJSON(t, h, http.MethodPost, "/v1/leases/acquire", AcquireRequest{})
		assert.Equal(t, http.StatusConflict, w.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, lease.CodeExhausted, body["code"])
		assert.Equal(t, "exhausted", body["reason"])
	})

	t.Run("续约", func(t *testing.T) {
		w := doJSON(t, h, http.MethodPost, "/v1/leases/1/renew", tokenBody{HolderToken: granted.HolderToken})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var reply RenewReply
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
		assert.Equal(t, granted.ExpiresAtUnixMs, reply.ExpiresAtUnixMs)
	})

	t.Run("失效令牌返回 410", func(t *testing.T) {
		w := doJSON(t, h, http.MethodPost, "/v1/leases/1/renew", tokenBody{HolderToken: "obsolete"})
		assert.Equal(t, http.StatusGone, w.Code)
		assert.Contains(t, w.Body.String(), lease.CodeStale)
	})

	t.Run("非法参数返回 400", func(t *testing.T) {
		w := doJSON(t, h, http.MethodPost, "/v1/leases/abc/renew", tokenBody{HolderToken: "t"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w = doJSON(t, h, http.MethodPost, "/v1/leases/1/renew", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("列表", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/v1/leases", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var reply ListReply
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
		assert.Len(t, reply.Leases, 2)
		assert.NotContains(t, w.Body.String(), granted.HolderToken)
	})

	t.Run("释放", func(t *testing.T) {
		w := doJSON(t, h, http.MethodPost, "/v1/leases/1/release", tokenBody{HolderToken: granted.HolderToken})
		assert.Equal(t, http.StatusOK, w.Code)
		w = doJSON(t, h, http.MethodPost, "/v1/leases/1/release", tokenBody{HolderToken: granted.HolderToken})
		assert.Equal(t, http.StatusGone, w.Code)
	})

	t.Run("健康检查", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestHTTPAcquireRateLimit(t *testing.T) {
	f := newFixture(t, nil)
	limiter, err := ratelimit.New(&ratelimit.Config{Enabled: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })

	h, err := NewHTTPHandler(f.svc, WithHTTPAcquireRateLimit(limiter, ratelimit.Limit{Rate: 0.001, Burst: 1}))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, doJSON(t, h, http.MethodPost, "/v1/leases/acquire", AcquireRequest{}).Code)
	assert.Equal(t, http.StatusTooManyRequests, doJSON(t, h, http.MethodPost, "/v1/leases/acquire", AcquireRequest{}).Code)
}

func TestHTTPAuth(t *testing.T) {
	const secret = "s3cret"
	f := newFixture(t, nil)
	h, err := NewHTTPHandler(f.svc, WithHTTPAuth(secret))
	require.NoError(t, err)

	withToken := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/leases", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	t.Run("缺少令牌", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, withToken(""))
	})

	t.Run("有效令牌", func(t *testing.T) {
		token, err := IssueToken(secret, "ops", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, withToken(token))
	})

	t.Run("签名不符", func(t *testing.T) {
		token, err := IssueToken("other", "ops", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, withToken(token))
	})

	t.Run("令牌过期", func(t *testing.T) {
		token, err := IssueToken(secret, "ops", -time.Minute)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, withToken(token))

		_, err = verifyToken([]byte(secret), token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("健康检查不需要令牌", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/healthz", nil).Code)
	})

	_, err = IssueToken("", "ops", time.Minute)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, HTTPStatus(nil))
	assert.Equal(t, http.StatusConflict, HTTPStatus(lease.ErrExhausted))
	assert.Equal(t, http.StatusGone, HTTPStatus(lease.ErrStale))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(xerrors.ErrInvalidInput))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(xerrors.New("etcd down")))
}
